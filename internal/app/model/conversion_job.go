package model

import (
	"time"
)

// JobStatus is the persisted lifecycle state of a ConversionJob.
type JobStatus string

const (
	StatusPending    JobStatus = "pending"
	StatusRetrying   JobStatus = "retrying"
	StatusProcessing JobStatus = "processing"
	StatusCompleted  JobStatus = "completed"
	StatusFailed     JobStatus = "failed"
)

// AllStatuses lists every known status in lifecycle order.
var AllStatuses = []JobStatus{StatusPending, StatusRetrying, StatusProcessing, StatusCompleted, StatusFailed}

// EligibleStatuses are the statuses the queue may dispatch.
var EligibleStatuses = []JobStatus{StatusPending, StatusRetrying}

// TerminalStatuses are the statuses with no outgoing transition except deletion.
var TerminalStatuses = []JobStatus{StatusCompleted, StatusFailed}

// IsValid reports whether s is a known status.
func (s JobStatus) IsValid() bool {
	for _, known := range AllStatuses {
		if s == known {
			return true
		}
	}
	return false
}

// IsEligible reports whether a job in this status may be picked up by a worker.
// retrying is treated exactly like pending.
func (s JobStatus) IsEligible() bool {
	return s == StatusPending || s == StatusRetrying
}

// IsTerminal reports whether the job has finished processing.
func (s JobStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// ConversionJob is the durable record of one media-to-subtitle conversion.
type ConversionJob struct {
	ID            string    `json:"id" db:"id"`
	UserID        string    `json:"userId" db:"user_id"`
	FileName      string    `json:"fileName" db:"file_name"`
	FileSize      int64     `json:"fileSize" db:"file_size"`
	FileType      string    `json:"fileType" db:"file_type"`
	FileURL       string    `json:"fileUrl" db:"file_url"`
	Language      string    `json:"language" db:"language"`
	PreferPrimary bool      `json:"preferPrimary" db:"prefer_primary"`
	Status        JobStatus `json:"status" db:"status"`
	Progress      int       `json:"progress" db:"progress"`
	ETA           *int      `json:"eta,omitempty" db:"eta"`
	DownloadURL   *string   `json:"downloadUrl,omitempty" db:"download_url"`
	Error         *string   `json:"error,omitempty" db:"error"`
	CreatedAt     time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt     time.Time `json:"updatedAt" db:"updated_at"`
}

// TableName returns the table name for ConversionJob
func (ConversionJob) TableName() string {
	return "conversion_jobs"
}

// NewConversionJob returns a freshly uploaded job in the pending state.
func NewConversionJob(id, userID, fileName string, fileSize int64, fileType, fileURL, language string) *ConversionJob {
	now := time.Now().UTC()
	return &ConversionJob{
		ID:        id,
		UserID:    userID,
		FileName:  fileName,
		FileSize:  fileSize,
		FileType:  fileType,
		FileURL:   fileURL,
		Language:  language,
		Status:    StatusPending,
		Progress:  0,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Clone returns a deep copy so callers can mutate without aliasing stored records.
func (j *ConversionJob) Clone() *ConversionJob {
	if j == nil {
		return nil
	}
	c := *j
	if j.ETA != nil {
		eta := *j.ETA
		c.ETA = &eta
	}
	if j.DownloadURL != nil {
		u := *j.DownloadURL
		c.DownloadURL = &u
	}
	if j.Error != nil {
		e := *j.Error
		c.Error = &e
	}
	return &c
}

// JobFilter narrows an owner-scoped listing.
type JobFilter struct {
	Status JobStatus
	Limit  int
	Offset int
}

// JobUpdate is a partial mutation of a ConversionJob. Nil fields are left untouched;
// the Clear* flags null the corresponding column.
type JobUpdate struct {
	Status           *JobStatus
	Progress         *int
	ETA              *int
	ClearETA         bool
	Error            *string
	ClearError       bool
	DownloadURL      *string
	ClearDownloadURL bool
}

// IsEmpty reports whether the update would change nothing but updatedAt.
func (u JobUpdate) IsEmpty() bool {
	return u.Status == nil && u.Progress == nil && u.ETA == nil && !u.ClearETA &&
		u.Error == nil && !u.ClearError && u.DownloadURL == nil && !u.ClearDownloadURL
}

// Apply mutates job in place and bumps UpdatedAt.
func (u JobUpdate) Apply(job *ConversionJob, now time.Time) {
	if u.Status != nil {
		job.Status = *u.Status
	}
	if u.Progress != nil {
		job.Progress = *u.Progress
	}
	if u.ClearETA {
		job.ETA = nil
	}
	if u.ETA != nil {
		eta := *u.ETA
		job.ETA = &eta
	}
	if u.ClearError {
		job.Error = nil
	}
	if u.Error != nil {
		msg := *u.Error
		job.Error = &msg
	}
	if u.ClearDownloadURL {
		job.DownloadURL = nil
	}
	if u.DownloadURL != nil {
		url := *u.DownloadURL
		job.DownloadURL = &url
	}
	job.UpdatedAt = now
}
