package services

import (
	"context"
	"io"

	"ai-subtitler/internal/api/v1/dto"
	"ai-subtitler/internal/app/api/provider"
	"ai-subtitler/internal/app/queue"
)

// JobService covers the owner-scoped conversion job operations.
type JobService interface {
	Submit(ctx context.Context, owner string, upload dto.Upload) (*dto.ConvertResponse, error)
	Status(ctx context.Context, owner, id string) (*dto.JobStatusResponse, error)
	List(ctx context.Context, owner string, query dto.ListJobsQuery) (*dto.ListJobsResponse, error)
	Delete(ctx context.Context, owner, id string) error
	Retry(ctx context.Context, owner, id string) (*dto.JobStatusResponse, error)
	Download(ctx context.Context, owner, id string) (*dto.Artifact, error)
	Export(ctx context.Context, owner string, w io.Writer) error
}

// FileService serves uploaded source files back to their owner.
type FileService interface {
	Open(ctx context.Context, owner, path string) (io.ReadCloser, string, error)
}

// HealthService reports process health.
type HealthService interface {
	Health(ctx context.Context) *dto.HealthResponse
}

// Enqueuer admits job ids for processing.
type Enqueuer interface {
	Enqueue(ctx context.Context, jobID string) (queue.Admission, error)
	Stats() queue.Stats
}

// ProviderSnapshot exposes per-provider attempt statistics.
type ProviderSnapshot interface {
	Snapshot() []provider.ProviderStats
}
