package routes

import (
	"github.com/gin-gonic/gin"

	"ai-subtitler/internal/api/middleware"
	"ai-subtitler/internal/api/v1/handlers"
	"ai-subtitler/internal/api/v1/services"
)

// ServiceContainer holds all services needed by handlers
type ServiceContainer struct {
	JobService     services.JobService
	FileService    services.FileService
	MaxUploadBytes int64
}

// RegisterRoutes registers all v1 API routes. Every route is owner-scoped.
func RegisterRoutes(router *gin.RouterGroup, container *ServiceContainer) {
	router.Use(middleware.RequireOwner())

	jobHandler := handlers.NewJobHandler(container.JobService, container.MaxUploadBytes)
	convert := router.Group("/convert")
	{
		convert.POST("", jobHandler.Convert)
		convert.GET("/:id", jobHandler.Status)
	}

	jobs := router.Group("/jobs")
	{
		jobs.GET("", jobHandler.List)
		jobs.GET("/export", jobHandler.Export)
		jobs.DELETE("/:id", jobHandler.Delete)
		jobs.POST("/:id/retry", jobHandler.Retry)
	}

	router.GET("/download/:id/:filename", jobHandler.Download)

	if container.FileService != nil {
		fileHandler := handlers.NewFileHandler(container.FileService)
		router.GET("/files/*path", fileHandler.Get)
	}
}
