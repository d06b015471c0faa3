package handlers

import (
	"bytes"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"ai-subtitler/internal/api/errors"
	"ai-subtitler/internal/api/middleware"
	"ai-subtitler/internal/api/v1/dto"
	"ai-subtitler/internal/api/v1/services"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// JobHandler handles conversion job endpoints.
type JobHandler struct {
	service        services.JobService
	maxUploadBytes int64
}

func NewJobHandler(service services.JobService, maxUploadBytes int64) *JobHandler {
	return &JobHandler{service: service, maxUploadBytes: maxUploadBytes}
}

// Convert handles POST /api/v1/convert
//
// Accepts a multipart upload with a "file" part plus "language" and optional
// "preferPrimary" fields, stores it and queues a conversion job.
func (h *JobHandler) Convert(c *gin.Context) {
	if h.maxUploadBytes > 0 {
		// multipart framing adds a little on top of the file itself
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUploadBytes+1<<20)
	}

	var req dto.ConvertRequest
	if err := middleware.ValidateForm(c, &req); err != nil {
		middleware.HandleError(c, err)
		return
	}

	header, err := c.FormFile("file")
	if err != nil {
		middleware.HandleError(c, errors.NewBadRequestError("No file uploaded"))
		return
	}
	file, err := header.Open()
	if err != nil {
		middleware.HandleError(c, errors.NewBadRequestError("Unreadable file"))
		return
	}
	defer file.Close()

	response, err := h.service.Submit(c.Request.Context(), middleware.OwnerID(c), dto.Upload{
		FileName:      header.Filename,
		Size:          header.Size,
		ContentType:   header.Header.Get("Content-Type"),
		Body:          file,
		Language:      req.Language,
		PreferPrimary: req.PreferPrimary,
	})
	if err != nil {
		middleware.HandleError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, response)
}

// Status handles GET /api/v1/convert/:id
func (h *JobHandler) Status(c *gin.Context) {
	response, err := h.service.Status(c.Request.Context(), middleware.OwnerID(c), c.Param("id"))
	if err != nil {
		middleware.HandleError(c, err)
		return
	}

	c.Header("Cache-Control", "no-store")
	c.JSON(http.StatusOK, response)
}

// List handles GET /api/v1/jobs
func (h *JobHandler) List(c *gin.Context) {
	var query dto.ListJobsQuery
	if err := middleware.ValidateQuery(c, &query); err != nil {
		middleware.HandleError(c, err)
		return
	}

	response, err := h.service.List(c.Request.Context(), middleware.OwnerID(c), query)
	if err != nil {
		middleware.HandleError(c, err)
		return
	}

	c.Header("X-Total-Count", strconv.Itoa(response.Pagination.Total))
	c.JSON(http.StatusOK, response)
}

// Delete handles DELETE /api/v1/jobs/:id
func (h *JobHandler) Delete(c *gin.Context) {
	if err := h.service.Delete(c.Request.Context(), middleware.OwnerID(c), c.Param("id")); err != nil {
		middleware.HandleError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// Retry handles POST /api/v1/jobs/:id/retry
func (h *JobHandler) Retry(c *gin.Context) {
	response, err := h.service.Retry(c.Request.Context(), middleware.OwnerID(c), c.Param("id"))
	if err != nil {
		middleware.HandleError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, response)
}

// Download handles GET /api/v1/download/:id/:filename
func (h *JobHandler) Download(c *gin.Context) {
	artifact, err := h.service.Download(c.Request.Context(), middleware.OwnerID(c), c.Param("id"))
	if err != nil {
		middleware.HandleError(c, err)
		return
	}

	c.Header("Content-Disposition", `attachment; filename="`+artifact.FileName+`"`)
	c.Data(http.StatusOK, artifact.ContentType, artifact.Data)
}

// Export handles GET /api/v1/jobs/export
func (h *JobHandler) Export(c *gin.Context) {
	var buf bytes.Buffer
	if err := h.service.Export(c.Request.Context(), middleware.OwnerID(c), &buf); err != nil {
		middleware.HandleError(c, err)
		return
	}

	filename := "jobs-" + time.Now().UTC().Format("20060102-150405") + ".xlsx"
	c.Header("Content-Disposition", `attachment; filename="`+filename+`"`)
	c.Data(http.StatusOK, xlsxContentType, buf.Bytes())
}
