package middleware

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/OFFIS-RIT/kiwi-research/pkg/logger"
	"github.com/OFFIS-RIT/kiwi-research/pkg/store"
)

func IsAdmin(user *AppUser) bool {
	if user == nil {
		return false
	}
	return user.Role == "admin"
}

// RequireProjectAccess loads the project named by the :id path parameter
// and lets only its owner or an admin through.
func RequireProjectAccess(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		cc := c.(*AppContext)
		if cc.User == nil {
			return c.JSON(http.StatusUnauthorized, map[string]string{"message": "Unauthorized"})
		}

		projectID, err := strconv.ParseInt(c.Param("id"), 10, 64)
		if err != nil || projectID <= 0 {
			return c.JSON(http.StatusBadRequest, map[string]string{"message": "Invalid project id"})
		}

		project, err := cc.App.Store.GetProject(c.Request().Context(), projectID)
		if errors.Is(err, store.ErrNotFound) {
			return c.JSON(http.StatusNotFound, map[string]string{"message": "Project not found"})
		}
		if err != nil {
			logger.Error("[Server] Failed to load project", "project_id", projectID, "err", err)
			return c.JSON(http.StatusInternalServerError, map[string]string{"message": "Internal server error"})
		}

		if project.OwnerID != cc.User.UserID && !IsAdmin(cc.User) {
			return c.JSON(http.StatusForbidden, map[string]string{"message": "Forbidden"})
		}

		cc.Project = &project
		return next(c)
	}
}
