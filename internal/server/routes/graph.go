package routes

import (
	"encoding/json"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/OFFIS-RIT/kiwi-research/internal/server/middleware"
	"github.com/OFFIS-RIT/kiwi-research/pkg/common"
	"github.com/OFFIS-RIT/kiwi-research/pkg/logger"
)

// GetGraphHandler reads the project's graph with the same filters the
// graph_query tool offers the model.
func GetGraphHandler(c echo.Context) error {
	type getGraphParams struct {
		Label string `query:"label" validate:"max=200"`
		Type  string `query:"type" validate:"max=50"`
	}

	params := new(getGraphParams)
	if err := c.Bind(params); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"message": "Invalid request params"})
	}
	if err := c.Validate(params); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"message": "Invalid request params"})
	}

	cc := c.(*middleware.AppContext)
	g, err := cc.App.Store.QueryGraph(c.Request().Context(), common.GraphQuery{
		ProjectID: cc.Project.ID,
		Label:     params.Label,
		Type:      params.Type,
	})
	if err != nil {
		logger.Error("[Server] Failed to query graph", "project_id", cc.Project.ID, "err", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"message": "Internal server error"})
	}

	return c.JSON(http.StatusOK, g)
}

// PostWebResultsHandler stores relevant raw search results as documents and
// adds their summary stubs to the graph.
func PostWebResultsHandler(c echo.Context) error {
	var results []common.WebSearchOutput
	if err := json.NewDecoder(c.Request().Body).Decode(&results); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"message": "Invalid request body"})
	}

	cc := c.(*middleware.AppContext)
	g, err := cc.App.Ingest.FoldWebResults(c.Request().Context(), cc.Project.ID, cc.User.UserID, results)
	if err != nil {
		logger.Error("[Server] Failed to fold web results", "project_id", cc.Project.ID, "err", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"message": "Internal server error"})
	}

	return c.JSON(http.StatusCreated, g)
}
