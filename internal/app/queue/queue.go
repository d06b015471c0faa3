package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"ai-subtitler/internal/app/common"
	"ai-subtitler/internal/app/model"
	"ai-subtitler/internal/app/repository"
)

// Executor runs one job to completion.
type Executor interface {
	Execute(ctx context.Context, jobID string) error
}

// ExecutorFunc adapts a function to Executor.
type ExecutorFunc func(ctx context.Context, jobID string) error

func (f ExecutorFunc) Execute(ctx context.Context, jobID string) error {
	return f(ctx, jobID)
}

// Observer receives queue gauges and execution outcomes.
type Observer interface {
	ObserveDepth(depth int)
	ObserveRunning(running int)
	ObserveExecution(duration time.Duration, err error)
}

type nopObserver struct{}

func (nopObserver) ObserveDepth(int)                      {}
func (nopObserver) ObserveRunning(int)                    {}
func (nopObserver) ObserveExecution(time.Duration, error) {}

// Admission is the outcome of an Enqueue call.
type Admission string

const (
	Admitted       Admission = "admitted"
	AlreadyQueued  Admission = "already_queued"
	AlreadyRunning Admission = "already_running"
	NotFound       Admission = "not_found"
	Ineligible     Admission = "ineligible"
	Paused         Admission = "paused"
)

// Config bounds execution.
type Config struct {
	// Concurrency is the maximum number of jobs executing at once.
	Concurrency int
	// RateLimit admissions are allowed per RateWindow.
	RateLimit  int
	RateWindow time.Duration
	// JobTimeout caps a single execution.
	JobTimeout time.Duration
	// CancelGrace bounds how long Shutdown waits for cancelled executions
	// to finish their final writes.
	CancelGrace time.Duration
}

func DefaultConfig() Config {
	return Config{
		Concurrency: 2,
		RateLimit:   5,
		RateWindow:  time.Second,
		JobTimeout:  30 * time.Minute,
		CancelGrace: 5 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Concurrency <= 0 {
		c.Concurrency = d.Concurrency
	}
	if c.RateLimit <= 0 {
		c.RateLimit = d.RateLimit
	}
	if c.RateWindow <= 0 {
		c.RateWindow = d.RateWindow
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = d.JobTimeout
	}
	if c.CancelGrace <= 0 {
		c.CancelGrace = d.CancelGrace
	}
	return c
}

// Option customises a Queue.
type Option func(*Queue)

func WithObserver(o Observer) Option {
	return func(q *Queue) {
		if o != nil {
			q.observer = o
		}
	}
}

func WithRegistry(r *InFlightRegistry) Option {
	return func(q *Queue) {
		if r != nil {
			q.registry = r
		}
	}
}

// Stats is a point-in-time view of the queue.
type Stats struct {
	Pending     int      `json:"pending"`
	Running     int      `json:"running"`
	Paused      bool     `json:"paused"`
	InFlightIDs []string `json:"inFlightIds"`
}

// Queue admits job ids and executes them FIFO with bounded concurrency and
// a token-bucket admission rate. A job id is executed at most once at a time.
type Queue struct {
	cfg      Config
	repo     repository.JobRepository
	exec     Executor
	registry *InFlightRegistry
	limiter  *rate.Limiter
	observer Observer
	logger   *zap.Logger

	mu      sync.Mutex
	pending []string
	queued  map[string]struct{}
	paused  bool
	running int
	idle    chan struct{}

	wake  chan struct{}
	slots chan struct{}

	execCtx    context.Context
	execCancel context.CancelFunc

	startOnce      sync.Once
	stopDispatch   context.CancelFunc
	dispatcherDone chan struct{}
}

func New(cfg Config, repo repository.JobRepository, exec Executor, logger *zap.Logger, opts ...Option) *Queue {
	cfg = cfg.withDefaults()
	execCtx, execCancel := context.WithCancel(context.Background())

	q := &Queue{
		cfg:        cfg,
		repo:       repo,
		exec:       exec,
		registry:   NewInFlightRegistry(),
		limiter:    rate.NewLimiter(rate.Every(cfg.RateWindow/time.Duration(cfg.RateLimit)), cfg.RateLimit),
		observer:   nopObserver{},
		logger:     common.OrNop(logger).Named("queue"),
		queued:     make(map[string]struct{}),
		wake:       make(chan struct{}, 1),
		slots:      make(chan struct{}, cfg.Concurrency),
		execCtx:    execCtx,
		execCancel: execCancel,
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Registry exposes the in-flight registry so maintenance can skip live jobs.
func (q *Queue) Registry() *InFlightRegistry {
	return q.registry
}

// Config returns the effective configuration.
func (q *Queue) Config() Config {
	return q.cfg
}

// Start launches the dispatcher. Later calls are no-ops.
func (q *Queue) Start(ctx context.Context) {
	q.startOnce.Do(func() {
		ctx, cancel := context.WithCancel(ctx)
		q.mu.Lock()
		q.stopDispatch = cancel
		q.dispatcherDone = make(chan struct{})
		q.mu.Unlock()

		q.logger.Info("Queue started",
			zap.Int("concurrency", q.cfg.Concurrency),
			zap.Int("rate_limit", q.cfg.RateLimit),
			zap.Duration("rate_window", q.cfg.RateWindow))
		go q.dispatch(ctx)
	})
}

// Enqueue admits jobID for execution. Unknown, ineligible and duplicate ids
// are no-ops reported through the returned Admission; only repository
// failures are errors.
func (q *Queue) Enqueue(ctx context.Context, jobID string) (Admission, error) {
	log := q.logger.With(zap.String("job_id", jobID))

	if q.registry.Contains(jobID) {
		log.Debug("Job already running, enqueue coalesced")
		return AlreadyRunning, nil
	}

	job, err := q.repo.Get(ctx, jobID)
	if errors.Is(err, repository.ErrJobNotFound) {
		log.Warn("Refusing to enqueue job without a persisted record")
		return NotFound, nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to load job %s: %w", jobID, err)
	}
	if !job.Status.IsEligible() {
		if q.registry.Contains(jobID) {
			return AlreadyRunning, nil
		}
		log.Warn("Refusing to enqueue job in ineligible status", zap.String("status", string(job.Status)))
		return Ineligible, nil
	}

	q.mu.Lock()
	switch {
	case q.paused:
		q.mu.Unlock()
		log.Warn("Queue is drained, enqueue ignored")
		return Paused, nil
	case q.isQueuedLocked(jobID):
		q.mu.Unlock()
		log.Debug("Job already queued, enqueue coalesced")
		return AlreadyQueued, nil
	case q.registry.Contains(jobID):
		q.mu.Unlock()
		return AlreadyRunning, nil
	}
	q.pending = append(q.pending, jobID)
	q.queued[jobID] = struct{}{}
	depth := len(q.pending)
	q.mu.Unlock()

	q.signal()
	q.observer.ObserveDepth(depth)
	log.Info("Job enqueued", zap.Int("depth", depth))
	return Admitted, nil
}

// Recover enqueues every persisted pending or retrying job, oldest first.
func (q *Queue) Recover(ctx context.Context) (int, error) {
	jobs, err := q.repo.ListByStatus(ctx, model.EligibleStatuses...)
	if err != nil {
		return 0, fmt.Errorf("failed to list recoverable jobs: %w", err)
	}

	admitted := 0
	for _, job := range jobs {
		a, err := q.Enqueue(ctx, job.ID)
		if err != nil {
			q.logger.Warn("Failed to recover job", zap.String("job_id", job.ID), zap.Error(err))
			continue
		}
		if a == Admitted {
			admitted++
		}
	}
	q.logger.Info("Recovered queued jobs", zap.Int("found", len(jobs)), zap.Int("admitted", admitted))
	return admitted, nil
}

// Drain pauses dispatching and discards queued work that has not started.
// Running executions are left alone. It returns the number of discarded ids.
func (q *Queue) Drain() int {
	q.mu.Lock()
	q.paused = true
	cleared := len(q.pending)
	q.pending = nil
	q.queued = make(map[string]struct{})
	q.mu.Unlock()

	q.observer.ObserveDepth(0)
	q.logger.Info("Queue drained", zap.Int("discarded", cleared))
	return cleared
}

// Resume re-enables dispatching after Drain.
func (q *Queue) Resume() {
	q.mu.Lock()
	q.paused = false
	q.mu.Unlock()
	q.signal()
}

// Wait blocks until no execution is running or ctx is done. Call it after
// Drain; otherwise new executions may start while waiting.
func (q *Queue) Wait(ctx context.Context) error {
	q.mu.Lock()
	if q.running == 0 {
		q.mu.Unlock()
		return nil
	}
	idle := q.idle
	q.mu.Unlock()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown drains, stops the dispatcher and waits for running executions.
// If ctx expires first the executions are cancelled and given up to
// CancelGrace to return.
func (q *Queue) Shutdown(ctx context.Context) error {
	q.Drain()

	q.mu.Lock()
	stop, done := q.stopDispatch, q.dispatcherDone
	q.mu.Unlock()
	if stop != nil {
		stop()
		<-done
	}

	if err := q.Wait(ctx); err != nil {
		ids := q.registry.IDs()
		q.execCancel()
		q.logger.Warn("Cancelled running jobs on shutdown", zap.Strings("job_ids", ids))

		graceCtx, cancel := context.WithTimeout(context.Background(), q.cfg.CancelGrace)
		defer cancel()
		if gerr := q.Wait(graceCtx); gerr != nil {
			q.logger.Error("Cancelled jobs still running after grace period",
				zap.Strings("job_ids", q.registry.IDs()),
				zap.Duration("grace", q.cfg.CancelGrace))
		}
		return fmt.Errorf("queue shutdown: %w", err)
	}
	q.logger.Info("Queue stopped")
	return nil
}

func (q *Queue) Stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()
	return Stats{
		Pending:     len(q.pending),
		Running:     q.running,
		Paused:      q.paused,
		InFlightIDs: q.registry.IDs(),
	}
}

func (q *Queue) isQueuedLocked(id string) bool {
	_, ok := q.queued[id]
	return ok
}

func (q *Queue) signal() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

func (q *Queue) dispatch(ctx context.Context) {
	defer close(q.dispatcherDone)

	for {
		select {
		case q.slots <- struct{}{}:
		case <-ctx.Done():
			return
		}

		id, ok := q.next(ctx)
		if !ok {
			<-q.slots
			return
		}

		if err := q.limiter.Wait(ctx); err != nil {
			q.registry.Release(id)
			<-q.slots
			return
		}

		q.mu.Lock()
		if q.paused {
			q.mu.Unlock()
			q.registry.Release(id)
			<-q.slots
			continue
		}
		if q.running == 0 {
			q.idle = make(chan struct{})
		}
		q.running++
		running := q.running
		q.mu.Unlock()

		q.observer.ObserveRunning(running)
		go q.execute(id)
	}
}

// next pops the oldest queued id and registers it as in flight.
func (q *Queue) next(ctx context.Context) (string, bool) {
	for {
		q.mu.Lock()
		for !q.paused && len(q.pending) > 0 {
			id := q.pending[0]
			q.pending[0] = ""
			q.pending = q.pending[1:]
			delete(q.queued, id)
			if q.registry.TryAcquire(id) {
				depth := len(q.pending)
				q.mu.Unlock()
				q.observer.ObserveDepth(depth)
				return id, true
			}
		}
		q.mu.Unlock()

		select {
		case <-q.wake:
		case <-ctx.Done():
			return "", false
		}
	}
}

func (q *Queue) execute(id string) {
	log := q.logger.With(zap.String("job_id", id))
	start := time.Now()
	ctx, cancel := context.WithTimeout(q.execCtx, q.cfg.JobTimeout)

	var err error
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job execution panicked: %v", r)
			log.Error("Job execution panicked", zap.Any("panic", r))
		}
		cancel()
		q.registry.Release(id)
		<-q.slots

		q.mu.Lock()
		q.running--
		running := q.running
		if running == 0 {
			close(q.idle)
		}
		q.mu.Unlock()

		q.observer.ObserveRunning(running)
		q.observer.ObserveExecution(time.Since(start), err)
		q.signal()
	}()

	log.Debug("Job dispatched")
	err = q.exec.Execute(ctx, id)
	if err != nil {
		log.Warn("Job execution failed", zap.Error(err), zap.Duration("elapsed", time.Since(start)))
		return
	}
	log.Info("Job execution finished", zap.Duration("elapsed", time.Since(start)))
}
