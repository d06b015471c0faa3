package dto

import (
	"io"
	"strings"
	"time"

	"ai-subtitler/internal/app/model"
)

// ConvertRequest holds the form fields of POST /api/v1/convert next to the file part.
type ConvertRequest struct {
	Language      string `form:"language" binding:"required,subtitle_lang"`
	PreferPrimary bool   `form:"preferPrimary"`
}

// Upload is a validated conversion request with its file stream.
type Upload struct {
	FileName      string
	Size          int64
	ContentType   string
	Body          io.Reader
	Language      string
	PreferPrimary bool
}

// ConvertResponse acknowledges an accepted upload.
type ConvertResponse struct {
	JobID      string          `json:"jobId"`
	Status     model.JobStatus `json:"status"`
	PollingURL string          `json:"pollingUrl"`
}

// JobStatusResponse is the polling shape.
type JobStatusResponse struct {
	JobID       string          `json:"jobId"`
	Status      model.JobStatus `json:"status"`
	Progress    int             `json:"progress"`
	ETA         *int            `json:"eta"`
	DownloadURL *string         `json:"downloadUrl"`
	Error       *string         `json:"error"`
}

// NewJobStatusResponse maps a job record to its polling shape.
func NewJobStatusResponse(job *model.ConversionJob) *JobStatusResponse {
	return &JobStatusResponse{
		JobID:       job.ID,
		Status:      job.Status,
		Progress:    job.Progress,
		ETA:         job.ETA,
		DownloadURL: job.DownloadURL,
		Error:       job.Error,
	}
}

// JobResponse is a job as shown in listings.
type JobResponse struct {
	ID          string          `json:"id"`
	FileName    string          `json:"fileName"`
	FileSize    int64           `json:"fileSize"`
	FileType    string          `json:"fileType"`
	Language    string          `json:"language"`
	Status      model.JobStatus `json:"status"`
	Progress    int             `json:"progress"`
	DownloadURL *string         `json:"downloadUrl,omitempty"`
	Error       *string         `json:"error,omitempty"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
}

func NewJobResponse(job *model.ConversionJob) JobResponse {
	return JobResponse{
		ID:          job.ID,
		FileName:    job.FileName,
		FileSize:    job.FileSize,
		FileType:    job.FileType,
		Language:    job.Language,
		Status:      job.Status,
		Progress:    job.Progress,
		DownloadURL: job.DownloadURL,
		Error:       job.Error,
		CreatedAt:   job.CreatedAt,
		UpdatedAt:   job.UpdatedAt,
	}
}

// ListJobsQuery filters GET /api/v1/jobs.
type ListJobsQuery struct {
	Limit  int    `form:"limit" binding:"omitempty,min=1,max=100"`
	Offset int    `form:"offset" binding:"omitempty,min=0"`
	Status string `form:"status" binding:"omitempty,job_status"`
}

// Filter converts the query into a repository filter.
func (q ListJobsQuery) Filter() model.JobFilter {
	limit := q.Limit
	if limit == 0 {
		limit = 20
	}
	return model.JobFilter{
		Status: model.JobStatus(strings.ToLower(q.Status)),
		Limit:  limit,
		Offset: q.Offset,
	}
}

// Pagination represents pagination metadata
type Pagination struct {
	Total  int `json:"total"`
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}

type ListJobsResponse struct {
	Jobs       []JobResponse `json:"jobs"`
	Pagination Pagination    `json:"pagination"`
}

// Artifact is a finished subtitle file ready to stream.
type Artifact struct {
	FileName    string
	ContentType string
	Data        []byte
}
