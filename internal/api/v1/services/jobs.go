package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"go.uber.org/zap"

	apierrors "ai-subtitler/internal/api/errors"
	"ai-subtitler/internal/api/v1/dto"
	"ai-subtitler/internal/app/common"
	"ai-subtitler/internal/app/export"
	"ai-subtitler/internal/app/model"
	"ai-subtitler/internal/app/repository"
	"ai-subtitler/internal/app/storage"
	"ai-subtitler/internal/app/subtitle"
)

// PollingPath is the status endpoint prefix handed back on upload.
const PollingPath = "/api/v1/convert/"

// UploadStore persists uploaded sources and resolves them again.
type UploadStore interface {
	storage.SourceStore
	Save(ctx context.Context, owner, originalName string, r io.Reader) (string, int64, error)
}

type jobService struct {
	repo           repository.JobRepository
	uploads        UploadStore
	artifacts      storage.ArtifactStore
	queue          Enqueuer
	maxUploadBytes int64
	logger         *zap.Logger
}

// NewJobService creates the job service.
func NewJobService(
	repo repository.JobRepository,
	uploads UploadStore,
	artifacts storage.ArtifactStore,
	queue Enqueuer,
	maxUploadBytes int64,
	logger *zap.Logger,
) JobService {
	return &jobService{
		repo:           repo,
		uploads:        uploads,
		artifacts:      artifacts,
		queue:          queue,
		maxUploadBytes: maxUploadBytes,
		logger:         common.OrNop(logger),
	}
}

func (s *jobService) Submit(ctx context.Context, owner string, upload dto.Upload) (*dto.ConvertResponse, error) {
	if !dto.IsSupportedMediaType(upload.ContentType) {
		return nil, apierrors.NewBadRequestError("Invalid file type")
	}
	if s.maxUploadBytes > 0 && upload.Size > s.maxUploadBytes {
		return nil, apierrors.NewPayloadTooLargeError("File too large")
	}

	ref, n, err := s.uploads.Save(ctx, owner, upload.FileName, upload.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, apierrors.NewPayloadTooLargeError("File too large")
		}
		return nil, fmt.Errorf("failed to store upload: %w", err)
	}

	job := model.NewConversionJob(uuid.NewString(), owner, upload.FileName, n, upload.ContentType, ref, strings.ToLower(upload.Language))
	job.PreferPrimary = upload.PreferPrimary
	if _, err := s.repo.Create(ctx, job); err != nil {
		s.discardUpload(ctx, ref)
		return nil, fmt.Errorf("failed to create job: %w", err)
	}

	s.enqueue(ctx, job.ID)
	return &dto.ConvertResponse{
		JobID:      job.ID,
		Status:     job.Status,
		PollingURL: PollingPath + job.ID,
	}, nil
}

func (s *jobService) Status(ctx context.Context, owner, id string) (*dto.JobStatusResponse, error) {
	job, err := s.owned(ctx, owner, id)
	if err != nil {
		return nil, err
	}
	return dto.NewJobStatusResponse(job), nil
}

func (s *jobService) List(ctx context.Context, owner string, query dto.ListJobsQuery) (*dto.ListJobsResponse, error) {
	filter := query.Filter()
	jobs, err := s.repo.ListByOwner(ctx, owner, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	total, err := s.repo.CountByOwner(ctx, owner, filter.Status)
	if err != nil {
		return nil, fmt.Errorf("failed to count jobs: %w", err)
	}

	return &dto.ListJobsResponse{
		Jobs: lo.Map(jobs, func(job *model.ConversionJob, _ int) dto.JobResponse {
			return dto.NewJobResponse(job)
		}),
		Pagination: dto.Pagination{Total: total, Limit: filter.Limit, Offset: filter.Offset},
	}, nil
}

// Delete removes the record. A job still processing keeps running and its
// final update is dropped by the pipeline.
func (s *jobService) Delete(ctx context.Context, owner, id string) error {
	job, err := s.owned(ctx, owner, id)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return fmt.Errorf("failed to delete job: %w", err)
	}
	s.discardUpload(ctx, job.FileURL)
	if job.DownloadURL != nil {
		s.discardArtifact(ctx, *job.DownloadURL)
	}
	return nil
}

func (s *jobService) Retry(ctx context.Context, owner, id string) (*dto.JobStatusResponse, error) {
	job, err := s.owned(ctx, owner, id)
	if err != nil {
		return nil, err
	}
	if job.Status != model.StatusFailed {
		return nil, apierrors.NewConflictError(fmt.Sprintf("Job is %s and cannot be retried", job.Status))
	}
	if !model.CanRetry(job) {
		return nil, apierrors.NewConflictError("Job failed during processing and its source file was removed, upload it again")
	}

	src, err := s.uploads.Open(ctx, job.FileURL)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return nil, apierrors.NewConflictError("Source file is no longer available, upload it again")
		}
		return nil, fmt.Errorf("failed to check source file: %w", err)
	}
	_ = src.Close()

	updated, err := s.repo.Update(ctx, id, model.ResetForRetry())
	if errors.Is(err, model.ErrInvalidTransition) {
		return nil, apierrors.NewConflictError("Job was already retried")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to reset job: %w", err)
	}

	s.enqueue(ctx, id)
	return dto.NewJobStatusResponse(updated), nil
}

func (s *jobService) Download(ctx context.Context, owner, id string) (*dto.Artifact, error) {
	job, err := s.owned(ctx, owner, id)
	if err != nil {
		return nil, err
	}
	if job.Status != model.StatusCompleted || job.DownloadURL == nil {
		return nil, apierrors.NewConflictError("Job is not completed")
	}

	data, err := s.artifacts.Get(ctx, *job.DownloadURL)
	if err != nil {
		return nil, fmt.Errorf("failed to read artifact: %w", err)
	}
	fileName := path.Base(*job.DownloadURL)
	if unescaped, err := url.PathUnescape(fileName); err == nil {
		fileName = unescaped
	}
	return &dto.Artifact{
		FileName:    fileName,
		ContentType: subtitle.ContentType,
		Data:        data,
	}, nil
}

const exportPageSize = 500

func (s *jobService) Export(ctx context.Context, owner string, w io.Writer) error {
	var jobs []*model.ConversionJob
	for offset := 0; ; offset += exportPageSize {
		page, err := s.repo.ListByOwner(ctx, owner, model.JobFilter{Limit: exportPageSize, Offset: offset})
		if err != nil {
			return fmt.Errorf("failed to list jobs: %w", err)
		}
		jobs = append(jobs, page...)
		if len(page) < exportPageSize {
			break
		}
	}
	return export.WriteExcel(w, jobs)
}

// owned loads a job and checks it belongs to owner.
func (s *jobService) owned(ctx context.Context, owner, id string) (*model.ConversionJob, error) {
	job, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if job.UserID != owner {
		return nil, apierrors.NewForbiddenError("Forbidden")
	}
	return job, nil
}

// enqueue admits the job. A refusal leaves the record pending for the
// startup recovery scan.
func (s *jobService) enqueue(ctx context.Context, id string) {
	admission, err := s.queue.Enqueue(ctx, id)
	if err != nil {
		s.logger.Error("Failed to enqueue job", zap.String("job_id", id), zap.Error(err))
		return
	}
	s.logger.Info("Job submitted", zap.String("job_id", id), zap.String("admission", string(admission)))
}

func (s *jobService) discardUpload(ctx context.Context, ref string) {
	if err := s.uploads.Delete(ctx, ref); err != nil && !errors.Is(err, storage.ErrObjectNotFound) {
		s.logger.Warn("Failed to delete upload", zap.String("ref", ref), zap.Error(err))
	}
}

func (s *jobService) discardArtifact(ctx context.Context, ref string) {
	if err := s.artifacts.Delete(ctx, ref); err != nil && !errors.Is(err, storage.ErrObjectNotFound) {
		s.logger.Warn("Failed to delete subtitle artifact", zap.String("ref", ref), zap.Error(err))
	}
}
