package routes

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/OFFIS-RIT/kiwi-research/internal/server/middleware"
	"github.com/OFFIS-RIT/kiwi-research/pkg/common"
	"github.com/OFFIS-RIT/kiwi-research/pkg/logger"
)

func CreateProjectHandler(c echo.Context) error {
	type createProjectBody struct {
		Name        string `json:"name" validate:"required,max=200"`
		Description string `json:"description" validate:"max=2000"`
	}

	data := new(createProjectBody)
	if err := c.Bind(data); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"message": "Invalid request body"})
	}
	if err := c.Validate(data); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"message": "Invalid request body"})
	}

	cc := c.(*middleware.AppContext)
	if cc.User == nil {
		return c.JSON(http.StatusUnauthorized, map[string]string{"message": "Unauthorized"})
	}

	project, err := cc.App.Store.CreateProject(c.Request().Context(), common.Project{
		Name:        data.Name,
		Description: data.Description,
		OwnerID:     cc.User.UserID,
	})
	if err != nil {
		logger.Error("[Server] Failed to create project", "err", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"message": "Internal server error"})
	}

	return c.JSON(http.StatusCreated, project)
}

func GetProjectsHandler(c echo.Context) error {
	cc := c.(*middleware.AppContext)
	if cc.User == nil {
		return c.JSON(http.StatusUnauthorized, map[string]string{"message": "Unauthorized"})
	}

	projects, err := cc.App.Store.ListProjects(c.Request().Context(), cc.User.UserID)
	if err != nil {
		logger.Error("[Server] Failed to list projects", "err", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"message": "Internal server error"})
	}

	return c.JSON(http.StatusOK, projects)
}
