package api

import (
	"github.com/gin-gonic/gin"
)

func SetupRoutes(router *gin.Engine, handler *Handler) {
	// Health check
	router.GET("/health", handler.HealthCheck)

	// API v1 routes
	v1 := router.Group("/api/v1")
	{
		v1.GET("/exams", handler.ListExams)
		v1.GET("/exams/:id/submissions", handler.ListSubmissions)
		v1.GET("/reports/:report/runs/:run_id", handler.GetArchivedReport)

		// Sync routes
		v1.POST("/sync/trigger", handler.TriggerSync)
	}
}
