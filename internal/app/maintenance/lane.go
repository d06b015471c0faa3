// Package maintenance runs the periodic retention sweep and the stale job
// reaper on a schedule separate from the job worker pool.
package maintenance

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron"
	"go.uber.org/zap"

	"ai-subtitler/internal/app/common"
	"ai-subtitler/internal/app/model"
	"ai-subtitler/internal/app/repository"
)

// Config controls the lane.
type Config struct {
	// Retention is how long terminal jobs are kept, measured from creation.
	Retention time.Duration
	// StaleAfter is how long a processing job may go without an update
	// before it is considered abandoned.
	StaleAfter time.Duration
	// Schedule is a cron spec such as "@every 1h".
	Schedule string
	// RunTimeout bounds one maintenance run.
	RunTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		Retention:  30 * 24 * time.Hour,
		StaleAfter: 2 * time.Hour,
		Schedule:   "@every 1h",
		RunTimeout: 5 * time.Minute,
	}
}

// InFlight reports whether a job is executing in this process.
type InFlight interface {
	Contains(jobID string) bool
}

// Observer receives maintenance results.
type Observer interface {
	ObserveSweep(deleted int64)
	ObserveReaped(n int)
}

type nopObserver struct{}

func (nopObserver) ObserveSweep(int64) {}
func (nopObserver) ObserveReaped(int)  {}

// Result summarises one maintenance run.
type Result struct {
	Swept  int64 `json:"swept"`
	Reaped int   `json:"reaped"`
}

// ErrBusy is returned when a run is already in progress.
var ErrBusy = errors.New("maintenance run already in progress")

// Lane executes maintenance one run at a time.
type Lane struct {
	cfg      Config
	repo     repository.JobRepository
	inFlight InFlight
	observer Observer
	logger   *zap.Logger
	now      func() time.Time

	mu   sync.Mutex
	cron *cron.Cron
}

// Option customises a Lane.
type Option func(*Lane)

func WithObserver(o Observer) Option {
	return func(l *Lane) {
		if o != nil {
			l.observer = o
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(l *Lane) {
		l.now = now
	}
}

func New(cfg Config, repo repository.JobRepository, inFlight InFlight, logger *zap.Logger, opts ...Option) *Lane {
	d := DefaultConfig()
	if cfg.Retention <= 0 {
		cfg.Retention = d.Retention
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = d.StaleAfter
	}
	if cfg.Schedule == "" {
		cfg.Schedule = d.Schedule
	}
	if cfg.RunTimeout <= 0 {
		cfg.RunTimeout = d.RunTimeout
	}

	l := &Lane{
		cfg:      cfg,
		repo:     repo,
		inFlight: inFlight,
		observer: nopObserver{},
		logger:   common.OrNop(logger).Named("maintenance"),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Start schedules periodic runs.
func (l *Lane) Start() error {
	c := cron.New()
	if err := c.AddFunc(l.cfg.Schedule, l.tick); err != nil {
		return fmt.Errorf("invalid maintenance schedule %q: %w", l.cfg.Schedule, err)
	}
	c.Start()
	l.cron = c
	l.logger.Info("Maintenance lane started",
		zap.String("schedule", l.cfg.Schedule),
		zap.Duration("retention", l.cfg.Retention),
		zap.Duration("stale_after", l.cfg.StaleAfter))
	return nil
}

// Stop stops scheduling. A run in progress finishes on its own.
func (l *Lane) Stop() {
	if l.cron != nil {
		l.cron.Stop()
		l.cron = nil
	}
}

func (l *Lane) tick() {
	if !l.mu.TryLock() {
		l.logger.Warn("Skipping maintenance run, previous run still in progress")
		return
	}
	defer l.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), l.cfg.RunTimeout)
	defer cancel()
	if _, err := l.run(ctx); err != nil {
		l.logger.Error("Maintenance run failed", zap.Error(err))
	}
}

// RunOnce reaps stale jobs and then sweeps expired ones. It returns ErrBusy
// if a scheduled run is in progress.
func (l *Lane) RunOnce(ctx context.Context) (Result, error) {
	if !l.mu.TryLock() {
		return Result{}, ErrBusy
	}
	defer l.mu.Unlock()
	return l.run(ctx)
}

func (l *Lane) run(ctx context.Context) (Result, error) {
	var res Result
	reaped, reapErr := l.ReapStale(ctx)
	res.Reaped = reaped

	swept, sweepErr := l.Sweep(ctx)
	res.Swept = swept

	return res, errors.Join(reapErr, sweepErr)
}

// Sweep deletes completed and failed jobs created before the retention window.
func (l *Lane) Sweep(ctx context.Context) (int64, error) {
	cutoff := l.now().UTC().Add(-l.cfg.Retention)
	n, err := l.repo.DeleteTerminalBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("retention sweep failed: %w", err)
	}
	l.observer.ObserveSweep(n)
	l.logger.Info("Retention sweep finished", zap.Int64("deleted", n), zap.Time("cutoff", cutoff))
	return n, nil
}

// ReapStale marks processing jobs that stopped updating as failed. Jobs
// executing in this process are left alone. Reaped jobs are not requeued;
// they wait for an explicit retry.
func (l *Lane) ReapStale(ctx context.Context) (int, error) {
	jobs, err := l.repo.ListByStatus(ctx, model.StatusProcessing)
	if err != nil {
		return 0, fmt.Errorf("failed to list processing jobs: %w", err)
	}

	cutoff := l.now().UTC().Add(-l.cfg.StaleAfter)
	reaped := 0
	var errs []error
	for _, job := range jobs {
		if !job.UpdatedAt.Before(cutoff) {
			continue
		}
		if l.inFlight != nil && l.inFlight.Contains(job.ID) {
			continue
		}

		_, err := l.repo.Update(ctx, job.ID, model.Fail(model.InterruptedMessage))
		if errors.Is(err, repository.ErrJobNotFound) {
			continue
		}
		if errors.Is(err, model.ErrInvalidTransition) {
			l.logger.Debug("Stale job finished before it was reaped", zap.String("job_id", job.ID), zap.Error(err))
			continue
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("reap job %s: %w", job.ID, err))
			continue
		}
		reaped++
		l.logger.Warn("Marked stale processing job as failed",
			zap.String("job_id", job.ID),
			zap.Time("last_update", job.UpdatedAt))
	}

	l.observer.ObserveReaped(reaped)
	return reaped, errors.Join(errs...)
}
