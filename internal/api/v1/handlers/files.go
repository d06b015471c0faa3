package handlers

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"ai-subtitler/internal/api/middleware"
	"ai-subtitler/internal/api/v1/services"
)

// FileHandler serves uploaded files to their owner.
type FileHandler struct {
	service services.FileService
}

func NewFileHandler(service services.FileService) *FileHandler {
	return &FileHandler{service: service}
}

// Get handles GET /api/v1/files/*path
func (h *FileHandler) Get(c *gin.Context) {
	rc, contentType, err := h.service.Open(c.Request.Context(), middleware.OwnerID(c), c.Param("path"))
	if err != nil {
		middleware.HandleError(c, err)
		return
	}
	defer rc.Close()

	c.Header("Content-Type", contentType)
	c.Status(http.StatusOK)
	_, _ = io.Copy(c.Writer, rc)
}
