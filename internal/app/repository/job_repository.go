package repository

import (
	"context"
	"errors"
	"time"

	"ai-subtitler/internal/app/model"
)

// ErrJobNotFound is returned when no record matches the job id.
var ErrJobNotFound = errors.New("conversion job not found")

// DefaultListLimit caps owner listings when the filter sets no limit.
const DefaultListLimit = 50

// JobRepository persists ConversionJob records.
type JobRepository interface {
	Create(ctx context.Context, job *model.ConversionJob) (*model.ConversionJob, error)
	Get(ctx context.Context, id string) (*model.ConversionJob, error)
	// Update applies a partial mutation, bumps updatedAt and returns the new record.
	Update(ctx context.Context, id string, update model.JobUpdate) (*model.ConversionJob, error)
	Delete(ctx context.Context, id string) error
	// ListByOwner returns the owner's jobs newest first.
	ListByOwner(ctx context.Context, ownerID string, filter model.JobFilter) ([]*model.ConversionJob, error)
	CountByOwner(ctx context.Context, ownerID string, status model.JobStatus) (int, error)
	// ListByStatus returns jobs in any of the statuses ordered by creation time ascending.
	ListByStatus(ctx context.Context, statuses ...model.JobStatus) ([]*model.ConversionJob, error)
	// DeleteTerminalBefore removes completed and failed jobs created before cutoff.
	DeleteTerminalBefore(ctx context.Context, cutoff time.Time) (int64, error)
	Close() error
}
