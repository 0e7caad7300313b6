package server

import (
	"github.com/OFFIS-RIT/kiwi-research/internal/server/middleware"
	"github.com/OFFIS-RIT/kiwi-research/internal/server/routes"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func RegisterRoutes(e *echo.Echo, gatherer prometheus.Gatherer) {
	// Health check route
	e.GET("/health", func(c echo.Context) error {
		return c.String(200, "OK")
	})
	e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	apiRoutes := e.Group("/api", middleware.AuthMiddleware)

	// Project routes
	apiRoutes.GET("/projects", routes.GetProjectsHandler)
	apiRoutes.POST("/projects", routes.CreateProjectHandler)

	projectRoutes := apiRoutes.Group("/projects/:id", middleware.RequireProjectAccess)

	// Chat routes
	projectRoutes.GET("/chats", routes.GetChatsHandler)
	projectRoutes.POST("/chats", routes.CreateChatHandler)
	projectRoutes.GET("/chats/:chat_id", routes.GetChatHandler)
	projectRoutes.POST("/chats/:chat_id/messages", routes.PostMessageHandler)

	// Document routes
	projectRoutes.GET("/documents", routes.GetDocumentsHandler)
	projectRoutes.POST("/documents", routes.CreateDocumentHandler)
	projectRoutes.POST("/documents/pdf", routes.UploadPDFHandler)
	projectRoutes.GET("/documents/:document_id", routes.GetDocumentHandler)

	// Graph routes
	projectRoutes.GET("/graph", routes.GetGraphHandler)
	projectRoutes.POST("/web-results", routes.PostWebResultsHandler)
}
