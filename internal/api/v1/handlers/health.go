package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"ai-subtitler/internal/api/v1/services"
)

type HealthHandler struct {
	service services.HealthService
}

func NewHealthHandler(service services.HealthService) *HealthHandler {
	return &HealthHandler{service: service}
}

// Get handles GET /health
func (h *HealthHandler) Get(c *gin.Context) {
	c.JSON(http.StatusOK, h.service.Health(c.Request.Context()))
}
