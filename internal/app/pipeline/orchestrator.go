// Package pipeline drives one conversion job from uploaded media to a stored
// subtitle artifact.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"ai-subtitler/internal/app/api/provider"
	"ai-subtitler/internal/app/audio"
	"ai-subtitler/internal/app/common"
	apperrors "ai-subtitler/internal/app/errors"
	"ai-subtitler/internal/app/model"
	"ai-subtitler/internal/app/notify"
	"ai-subtitler/internal/app/repository"
	"ai-subtitler/internal/app/storage"
	"ai-subtitler/internal/app/subtitle"
)

// Stage names used for timing.
const (
	StageResolve    = "resolve"
	StageExtract    = "extract"
	StageTranscribe = "transcribe"
	StageSerialize  = "serialize"
	StagePersist    = "persist"
)

const (
	finalizeTimeout = 30 * time.Second
	etaInterval     = 2 * time.Second
)

// AudioExtractor streams the events of one extraction run.
type AudioExtractor interface {
	Extract(ctx context.Context, input, output string) <-chan audio.Event
}

// Observer receives stage timings and job outcomes.
type Observer interface {
	ObserveStage(stage string, duration time.Duration)
	ObserveOutcome(status model.JobStatus, kind apperrors.Kind)
}

type nopObserver struct{}

func (nopObserver) ObserveStage(string, time.Duration)             {}
func (nopObserver) ObserveOutcome(model.JobStatus, apperrors.Kind) {}

// Orchestrator runs the conversion pipeline for a job id.
type Orchestrator struct {
	repo        repository.JobRepository
	sources     storage.SourceStore
	artifacts   storage.ArtifactStore
	extractor   AudioExtractor
	transcriber provider.Transcriber
	publisher   notify.Publisher
	observer    Observer
	workDir     string
	logger      *zap.Logger
	now         func() time.Time
}

// Option customises an Orchestrator.
type Option func(*Orchestrator)

func WithPublisher(p notify.Publisher) Option {
	return func(o *Orchestrator) {
		if p != nil {
			o.publisher = p
		}
	}
}

func WithObserver(obs Observer) Option {
	return func(o *Orchestrator) {
		if obs != nil {
			o.observer = obs
		}
	}
}

// WithWorkDir sets the parent directory of per-job scratch directories.
func WithWorkDir(dir string) Option {
	return func(o *Orchestrator) {
		o.workDir = dir
	}
}

func NewOrchestrator(
	repo repository.JobRepository,
	sources storage.SourceStore,
	artifacts storage.ArtifactStore,
	extractor AudioExtractor,
	transcriber provider.Transcriber,
	logger *zap.Logger,
	opts ...Option,
) *Orchestrator {
	o := &Orchestrator{
		repo:        repo,
		sources:     sources,
		artifacts:   artifacts,
		extractor:   extractor,
		transcriber: transcriber,
		publisher:   notify.NopPublisher{},
		observer:    nopObserver{},
		logger:      common.OrNop(logger).Named("pipeline"),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Execute implements queue.Executor.
func (o *Orchestrator) Execute(ctx context.Context, jobID string) error {
	return o.Run(ctx, jobID)
}

// run holds the state of one attempt.
type run struct {
	o        *Orchestrator
	job      *model.ConversionJob
	log      *zap.Logger
	progress int
	lastETA  time.Time
}

// Run processes jobID end to end. Missing or ineligible jobs are a no-op.
// A stage failure marks the job failed and is returned to the caller.
func (o *Orchestrator) Run(ctx context.Context, jobID string) error {
	log := o.logger.With(zap.String("job_id", jobID))

	job, err := o.repo.Get(ctx, jobID)
	if errors.Is(err, repository.ErrJobNotFound) {
		log.Warn("Job no longer exists, skipping")
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to load job %s: %w", jobID, err)
	}
	if !job.Status.IsEligible() {
		log.Info("Job is not eligible for processing, skipping", zap.String("status", string(job.Status)))
		return nil
	}

	started, err := o.repo.Update(ctx, jobID, model.StartProcessing())
	if errors.Is(err, repository.ErrJobNotFound) {
		log.Warn("Job was deleted before processing started")
		return nil
	}
	if errors.Is(err, model.ErrInvalidTransition) {
		log.Info("Job was claimed elsewhere, skipping", zap.Error(err))
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to start job %s: %w", jobID, err)
	}
	o.publish(ctx, started)

	r := &run{o: o, job: started, log: log, progress: model.ProgressStarted}
	log.Info("Processing job",
		zap.String("file", job.FileName),
		zap.String("language", job.Language),
		zap.Bool("prefer_primary", job.PreferPrimary))

	// Source deletion and state finalisation must outlive a cancelled job context.
	finalCtx := context.WithoutCancel(ctx)
	defer r.deleteSource(finalCtx)

	downloadURL, err := r.process(ctx)
	if err != nil {
		r.fail(finalCtx, err)
		return err
	}
	return r.complete(finalCtx, downloadURL)
}

// process runs the resolve, extract, transcribe, serialize and persist stages
// inside a scratch directory that is always removed.
func (r *run) process(ctx context.Context) (string, error) {
	scratch, err := os.MkdirTemp(r.o.workDir, "job-"+r.job.ID+"-")
	if err != nil {
		return "", fmt.Errorf("failed to create work directory: %w", err)
	}
	defer r.cleanup(scratch)

	var sourcePath string
	err = r.stage(StageResolve, func() error {
		sourcePath, err = r.resolveSource(ctx, scratch)
		return err
	})
	if err != nil {
		return "", err
	}
	r.advance(ctx, model.ProgressAccepted)

	r.advance(ctx, model.ProgressExtracting)
	audioPath := filepath.Join(scratch, "audio.wav")
	err = r.stage(StageExtract, func() error {
		return r.extract(ctx, sourcePath, audioPath)
	})
	if err != nil {
		return "", err
	}

	r.advance(ctx, model.ProgressTranscribing)
	var result *provider.Result
	err = r.stage(StageTranscribe, func() error {
		result, err = r.o.transcriber.Transcribe(ctx, provider.Request{
			AudioPath:     audioPath,
			Language:      r.job.Language,
			PreferPrimary: r.job.PreferPrimary,
		})
		return err
	})
	if err != nil {
		return "", err
	}
	r.log.Info("Transcribed audio",
		zap.String("provider", result.Provider),
		zap.Strings("attempted", result.Attempted),
		zap.Int("cues", len(result.Cues)))

	var srt string
	err = r.stage(StageSerialize, func() error {
		srt, err = subtitle.EncodeSRT(result.Cues)
		if err != nil {
			return err
		}
		if werr := os.WriteFile(filepath.Join(scratch, "subtitles.srt"), []byte(srt), 0o644); werr != nil {
			return apperrors.SerializationFailed(fmt.Sprintf("could not write subtitle file: %v", werr))
		}
		return nil
	})
	if err != nil {
		return "", err
	}

	r.advance(ctx, model.ProgressPersisting)
	key := ArtifactKey(r.job.ID, r.job.FileName)
	var downloadURL string
	err = r.stage(StagePersist, func() error {
		downloadURL, err = r.o.artifacts.Put(ctx, key, []byte(srt), subtitle.ContentType)
		if err != nil {
			return apperrors.PersistFailed(key, err)
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return downloadURL, nil
}

func (r *run) stage(name string, fn func() error) error {
	started := r.o.now()
	err := fn()
	r.o.observer.ObserveStage(name, r.o.now().Sub(started))
	return err
}

// resolveSource returns a readable path for the job's upload, copying it into
// scratch when the store is not backed by local files.
func (r *run) resolveSource(ctx context.Context, scratch string) (string, error) {
	ref := r.job.FileURL
	if lr, ok := r.o.sources.(storage.LocalResolver); ok {
		path, err := lr.LocalPath(ref)
		if err != nil {
			return "", apperrors.SourceNotFound(ref, err)
		}
		info, err := os.Stat(path)
		if errors.Is(err, fs.ErrNotExist) {
			return "", apperrors.SourceNotFound(ref, apperrors.FileNotFound(err))
		}
		if err != nil {
			return "", apperrors.SourceNotFound(ref, err)
		}
		if info.IsDir() {
			return "", apperrors.SourceNotFound(ref, fmt.Errorf("%s is a directory", path))
		}
		return path, nil
	}

	src, err := r.o.sources.Open(ctx, ref)
	if errors.Is(err, storage.ErrObjectNotFound) {
		return "", apperrors.SourceNotFound(ref, apperrors.FileNotFound(err))
	}
	if err != nil {
		return "", apperrors.SourceNotFound(ref, err)
	}
	defer src.Close()

	path := filepath.Join(scratch, "source"+strings.ToLower(filepath.Ext(r.job.FileName)))
	dst, err := os.Create(path)
	if err != nil {
		return "", apperrors.SourceNotFound(ref, err)
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return "", apperrors.SourceNotFound(ref, err)
	}
	if err := dst.Close(); err != nil {
		return "", apperrors.SourceNotFound(ref, err)
	}
	return path, nil
}

func (r *run) extract(ctx context.Context, input, output string) error {
	started := r.o.now()
	return audio.Await(r.o.extractor.Extract(ctx, input, output), func(ev audio.Event) {
		switch ev.Kind {
		case audio.EventStarted:
			r.log.Debug("Extraction started", zap.String("command", ev.Command))
		case audio.EventProgress:
			r.estimate(ctx, started, ev.Percent())
		case audio.EventFailed:
			r.log.Warn("Extraction failed", zap.Error(ev.Err))
		}
	})
}

// estimate records the remaining extraction time derived from the processed share.
func (r *run) estimate(ctx context.Context, started time.Time, percent float64) {
	if percent <= 0 || percent >= 100 {
		return
	}
	now := r.o.now()
	if !r.lastETA.IsZero() && now.Sub(r.lastETA) < etaInterval {
		return
	}
	r.lastETA = now

	elapsed := now.Sub(started).Seconds()
	remaining := int(elapsed*(100-percent)/percent + 0.5)
	r.update(ctx, model.EstimateRemaining(remaining))
}

// advance moves progress forward; it never moves backwards.
func (r *run) advance(ctx context.Context, progress int) {
	if progress <= r.progress {
		return
	}
	r.progress = progress
	update := model.AdvanceProgress(progress)
	// The estimate only covers extraction.
	update.ClearETA = r.job.ETA != nil && progress > model.ProgressExtracting
	r.update(ctx, update)
}

// update persists an in-flight change. A deleted record is tolerated.
func (r *run) update(ctx context.Context, update model.JobUpdate) {
	job, err := r.o.repo.Update(ctx, r.job.ID, update)
	if err != nil {
		if errors.Is(err, repository.ErrJobNotFound) {
			r.log.Warn("Job record disappeared while processing")
		} else {
			r.log.Warn("Failed to record job progress", zap.Error(err))
		}
		return
	}
	r.job = job
	r.o.publish(ctx, job)
}

func (r *run) complete(ctx context.Context, downloadURL string) error {
	ctx, cancel := context.WithTimeout(ctx, finalizeTimeout)
	defer cancel()

	job, err := r.o.repo.Update(ctx, r.job.ID, model.Complete(downloadURL))
	if errors.Is(err, repository.ErrJobNotFound) {
		r.log.Warn("Job was deleted while processing, dropping result", zap.String("download_url", downloadURL))
		r.o.observer.ObserveOutcome(model.StatusCompleted, "")
		return nil
	}
	if errors.Is(err, model.ErrInvalidTransition) {
		r.log.Warn("Job left processing before its result was recorded", zap.String("download_url", downloadURL), zap.Error(err))
		if derr := r.o.artifacts.Delete(ctx, downloadURL); derr != nil {
			r.log.Warn("Failed to delete orphaned artifact", zap.String("download_url", downloadURL), zap.Error(derr))
		}
		return err
	}
	if err != nil {
		err = fmt.Errorf("failed to mark job completed: %w", err)
		r.fail(ctx, err)
		return err
	}

	r.o.publish(ctx, job)
	r.o.observer.ObserveOutcome(model.StatusCompleted, "")
	r.log.Info("Job completed", zap.String("download_url", downloadURL))
	return nil
}

// fail records cause on the job. Errors doing so are logged and never
// replace cause.
func (r *run) fail(ctx context.Context, cause error) {
	ctx, cancel := context.WithTimeout(ctx, finalizeTimeout)
	defer cancel()

	kind := apperrors.KindOf(cause)
	r.o.observer.ObserveOutcome(model.StatusFailed, kind)
	r.log.Error("Job failed", zap.String("kind", string(kind)), zap.Error(cause))

	job, err := r.o.repo.Update(ctx, r.job.ID, model.Fail(cause.Error()))
	if err != nil {
		if errors.Is(err, repository.ErrJobNotFound) {
			r.log.Warn("Job was deleted while processing, failure not recorded")
			return
		}
		if errors.Is(err, model.ErrInvalidTransition) {
			r.log.Warn("Job already left processing, failure not recorded", zap.Error(err))
			return
		}
		r.log.Error("Failed to mark job failed", zap.Error(err))
		return
	}
	r.o.publish(ctx, job)
}

func (r *run) cleanup(scratch string) {
	if err := os.RemoveAll(scratch); err != nil {
		r.log.Warn("Failed to remove work directory", zap.String("dir", scratch), zap.Error(err))
	}
}

func (r *run) deleteSource(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, finalizeTimeout)
	defer cancel()

	if err := r.o.sources.Delete(ctx, r.job.FileURL); err != nil {
		r.log.Warn("Failed to delete source upload", zap.String("ref", r.job.FileURL), zap.Error(err))
	}
}

func (o *Orchestrator) publish(ctx context.Context, job *model.ConversionJob) {
	if err := o.publisher.Publish(ctx, notify.FromJob(job)); err != nil {
		o.logger.Debug("Failed to publish job event", zap.String("job_id", job.ID), zap.Error(err))
	}
}

// ArtifactKey is the object key of a job's subtitle artifact.
func ArtifactKey(jobID, fileName string) string {
	base := filepath.Base(fileName)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	base = strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', '?', '#', '%', '"':
			return '_'
		}
		return r
	}, strings.TrimSpace(base))
	if base == "" || base == "." || base == ".." {
		base = "subtitles"
	}
	return jobID + "/" + base + ".srt"
}
