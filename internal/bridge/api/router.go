package api

import (
	"github.com/gin-gonic/gin"

	"github.com/miktos/bridge/internal/common/logger"
)

// SetupRoutes configures every bridge route on router.
func SetupRoutes(router *gin.Engine, svc Service, hub *Hub, log *logger.Logger) {
	handler := NewHandler(svc, log)
	stream := NewStreamHandler(svc, hub, log)

	router.GET("/health", handler.HealthCheck)

	api := router.Group("/api/v1")
	{
		api.GET("/status", handler.GetStatus)
		api.POST("/commands", handler.ExecuteCommand)
		api.GET("/connectors", handler.ListConnectors)
	}

	workflows := api.Group("/workflows")
	{
		workflows.GET("", handler.ListWorkflows)
		workflows.GET("/:workflowId", handler.GetWorkflow)
		workflows.POST("/:workflowId/cancel", handler.CancelWorkflow)
	}

	ws := router.Group("/ws")
	{
		ws.GET("/progress", stream.StreamProgress)
		ws.GET("/connectors/:name", stream.ToolPush)
	}
}

// NewRouter builds a gin engine with the standard middleware and every route.
func NewRouter(svc Service, hub *Hub, log *logger.Logger) *gin.Engine {
	router := gin.New()
	router.Use(Recovery(log), RequestLogger(log), CORS(), ErrorHandler(log))
	SetupRoutes(router, svc, hub, log)
	return router
}
