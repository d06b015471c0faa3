package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"ai-subtitler/internal/app/model"
	"ai-subtitler/internal/app/testutil"
)

func fastConfig(concurrency int) Config {
	return Config{
		Concurrency: concurrency,
		RateLimit:   1000,
		RateWindow:  time.Millisecond,
		JobTimeout:  5 * time.Second,
	}
}

func seedPending(repo *testutil.MemoryJobRepository, n int) []string {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	ids := make([]string, n)
	for i := range ids {
		ids[i] = fmt.Sprintf("job-%02d", i)
		repo.Seed(testutil.NewPendingJob(ids[i], "user-1", "en", base.Add(time.Duration(i)*time.Second)))
	}
	return ids
}

func shutdown(t *testing.T, q *Queue) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, q.Shutdown(ctx))
}

func TestQueue_CoalescesDuplicateEnqueue(t *testing.T) {
	repo := testutil.NewMemoryJobRepository()
	ids := seedPending(repo, 1)

	var calls atomic.Int32
	release := make(chan struct{})
	q := New(fastConfig(2), repo, ExecutorFunc(func(ctx context.Context, id string) error {
		calls.Add(1)
		<-release
		return nil
	}), zaptest.NewLogger(t))

	ctx := context.Background()
	a, err := q.Enqueue(ctx, ids[0])
	require.NoError(t, err)
	assert.Equal(t, Admitted, a)

	a, err = q.Enqueue(ctx, ids[0])
	require.NoError(t, err)
	assert.Equal(t, AlreadyQueued, a)

	q.Start(ctx)
	require.Eventually(t, func() bool { return calls.Load() == 1 }, 2*time.Second, 5*time.Millisecond)
	assert.True(t, q.Registry().Contains(ids[0]))

	a, err = q.Enqueue(ctx, ids[0])
	require.NoError(t, err)
	assert.Equal(t, AlreadyRunning, a)

	close(release)
	shutdown(t, q)

	assert.Equal(t, int32(1), calls.Load())
	assert.False(t, q.Registry().Contains(ids[0]), "registry entry must be released after execution")
}

func TestQueue_NeverExceedsConcurrency(t *testing.T) {
	repo := testutil.NewMemoryJobRepository()
	ids := seedPending(repo, 10)

	var active, peak, done atomic.Int32
	q := New(fastConfig(2), repo, ExecutorFunc(func(ctx context.Context, id string) error {
		n := active.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		active.Add(-1)
		done.Add(1)
		return nil
	}), zaptest.NewLogger(t))

	ctx := context.Background()
	q.Start(ctx)

	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			a, err := q.Enqueue(ctx, id)
			assert.NoError(t, err)
			assert.Equal(t, Admitted, a)
		}(id)
	}
	wg.Wait()

	require.Eventually(t, func() bool { return done.Load() == int32(len(ids)) }, 5*time.Second, 10*time.Millisecond)
	shutdown(t, q)

	assert.LessOrEqual(t, peak.Load(), int32(2))
	assert.Greater(t, peak.Load(), int32(0))
}

func TestQueue_RefusesUnknownAndIneligibleJobs(t *testing.T) {
	repo := testutil.NewMemoryJobRepository()
	completed := testutil.NewPendingJob("done", "user-1", "en", time.Now().UTC())
	completed.Status = model.StatusCompleted
	repo.Seed(completed)

	var calls atomic.Int32
	q := New(fastConfig(1), repo, ExecutorFunc(func(ctx context.Context, id string) error {
		calls.Add(1)
		return nil
	}), zaptest.NewLogger(t))
	q.Start(context.Background())

	tests := []struct {
		name string
		id   string
		want Admission
	}{
		{"missing record", "ghost", NotFound},
		{"terminal status", "done", Ineligible},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, err := q.Enqueue(context.Background(), tt.id)
			require.NoError(t, err)
			assert.Equal(t, tt.want, a)
		})
	}

	shutdown(t, q)
	assert.Zero(t, calls.Load())
	assert.Zero(t, q.Stats().Pending)
}

func TestQueue_EnqueueSurfacesRepositoryErrors(t *testing.T) {
	repo := testutil.NewMemoryJobRepository()
	repo.SetError("Get", errors.New("database is locked"))

	q := New(fastConfig(1), repo, ExecutorFunc(func(context.Context, string) error { return nil }), nil)
	_, err := q.Enqueue(context.Background(), "job-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database is locked")
}

func TestQueue_DrainDiscardsQueuedWork(t *testing.T) {
	repo := testutil.NewMemoryJobRepository()
	ids := seedPending(repo, 3)

	var calls atomic.Int32
	started := make(chan string, len(ids))
	release := make(chan struct{})
	q := New(fastConfig(1), repo, ExecutorFunc(func(ctx context.Context, id string) error {
		calls.Add(1)
		started <- id
		<-release
		return nil
	}), zaptest.NewLogger(t))

	ctx := context.Background()
	q.Start(ctx)
	for _, id := range ids {
		_, err := q.Enqueue(ctx, id)
		require.NoError(t, err)
	}

	select {
	case id := <-started:
		assert.Equal(t, ids[0], id)
	case <-time.After(2 * time.Second):
		t.Fatal("first job never started")
	}

	assert.Equal(t, 2, q.Drain())
	assert.True(t, q.Stats().Paused)

	a, err := q.Enqueue(ctx, ids[1])
	require.NoError(t, err)
	assert.Equal(t, Paused, a)

	close(release)
	waitCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	require.NoError(t, q.Wait(waitCtx))
	assert.Equal(t, int32(1), calls.Load())

	q.Resume()
	a, err = q.Enqueue(ctx, ids[1])
	require.NoError(t, err)
	assert.Equal(t, Admitted, a)
	require.Eventually(t, func() bool { return calls.Load() == 2 }, 2*time.Second, 5*time.Millisecond)

	shutdown(t, q)
}

func TestQueue_RecoverEnqueuesOldestFirst(t *testing.T) {
	repo := testutil.NewMemoryJobRepository()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	newer := testutil.NewPendingJob("newer", "u", "en", base.Add(2*time.Minute))
	oldest := testutil.NewPendingJob("oldest", "u", "en", base)
	middle := testutil.NewPendingJob("middle", "u", "en", base.Add(time.Minute))
	middle.Status = model.StatusRetrying
	running := testutil.NewPendingJob("running", "u", "en", base.Add(-time.Hour))
	running.Status = model.StatusProcessing
	finished := testutil.NewPendingJob("finished", "u", "en", base.Add(-time.Hour))
	finished.Status = model.StatusFailed
	repo.Seed(newer, oldest, middle, running, finished)

	var mu sync.Mutex
	var order []string
	q := New(fastConfig(1), repo, ExecutorFunc(func(ctx context.Context, id string) error {
		mu.Lock()
		order = append(order, id)
		mu.Unlock()
		return nil
	}), zaptest.NewLogger(t))

	ctx := context.Background()
	n, err := q.Recover(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	q.Start(ctx)
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(order) == 3
	}, 2*time.Second, 5*time.Millisecond)
	shutdown(t, q)

	assert.Equal(t, []string{"oldest", "middle", "newer"}, order)
}

func TestQueue_SurvivesPanickingExecution(t *testing.T) {
	repo := testutil.NewMemoryJobRepository()
	ids := seedPending(repo, 2)

	var calls atomic.Int32
	q := New(fastConfig(1), repo, ExecutorFunc(func(ctx context.Context, id string) error {
		calls.Add(1)
		if id == ids[0] {
			panic("boom")
		}
		return nil
	}), zaptest.NewLogger(t))

	ctx := context.Background()
	q.Start(ctx)
	for _, id := range ids {
		_, err := q.Enqueue(ctx, id)
		require.NoError(t, err)
	}

	require.Eventually(t, func() bool { return calls.Load() == 2 }, 2*time.Second, 5*time.Millisecond)
	shutdown(t, q)
	assert.Zero(t, q.Registry().Len())
}

func TestQueue_RateLimitsAdmissions(t *testing.T) {
	repo := testutil.NewMemoryJobRepository()
	ids := seedPending(repo, 4)

	var done atomic.Int32
	cfg := Config{Concurrency: 4, RateLimit: 2, RateWindow: 200 * time.Millisecond, JobTimeout: time.Second}
	q := New(cfg, repo, ExecutorFunc(func(ctx context.Context, id string) error {
		done.Add(1)
		return nil
	}), zaptest.NewLogger(t))

	ctx := context.Background()
	for _, id := range ids {
		_, err := q.Enqueue(ctx, id)
		require.NoError(t, err)
	}

	start := time.Now()
	q.Start(ctx)
	require.Eventually(t, func() bool { return done.Load() == 4 }, 3*time.Second, 5*time.Millisecond)
	elapsed := time.Since(start)
	shutdown(t, q)

	// Burst of 2, then one token every 100ms.
	assert.GreaterOrEqual(t, elapsed, 150*time.Millisecond)
}

func TestQueue_ShutdownCancelsAfterDeadline(t *testing.T) {
	repo := testutil.NewMemoryJobRepository()
	ids := seedPending(repo, 1)

	cancelled := make(chan error, 1)
	q := New(fastConfig(1), repo, ExecutorFunc(func(ctx context.Context, id string) error {
		<-ctx.Done()
		cancelled <- ctx.Err()
		return ctx.Err()
	}), nil)

	ctx := context.Background()
	q.Start(ctx)
	_, err := q.Enqueue(ctx, ids[0])
	require.NoError(t, err)
	require.Eventually(t, func() bool { return q.Stats().Running == 1 }, 2*time.Second, 5*time.Millisecond)

	shutdownCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	err = q.Shutdown(shutdownCtx)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	select {
	case err := <-cancelled:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("running execution was not cancelled")
	}
}

func TestQueue_ShutdownWaitsForCancelledExecutions(t *testing.T) {
	tests := []struct {
		name      string
		cleanup   time.Duration
		grace     time.Duration
		wantWrite bool
	}{
		{name: "cleanup within grace", cleanup: 100 * time.Millisecond, grace: 2 * time.Second, wantWrite: true},
		{name: "cleanup outlives grace", cleanup: 1500 * time.Millisecond, grace: 50 * time.Millisecond, wantWrite: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := testutil.NewMemoryJobRepository()
			ids := seedPending(repo, 1)

			var wrote atomic.Bool
			release := make(chan struct{})
			cfg := fastConfig(1)
			cfg.CancelGrace = tt.grace
			q := New(cfg, repo, ExecutorFunc(func(ctx context.Context, id string) error {
				<-ctx.Done()
				// Final state write after cancellation, like the pipeline's failure record.
				select {
				case <-time.After(tt.cleanup):
				case <-release:
					return ctx.Err()
				}
				wrote.Store(true)
				return ctx.Err()
			}), nil)
			defer close(release)

			ctx := context.Background()
			q.Start(ctx)
			_, err := q.Enqueue(ctx, ids[0])
			require.NoError(t, err)
			require.Eventually(t, func() bool { return q.Stats().Running == 1 }, 2*time.Second, 5*time.Millisecond)

			shutdownCtx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
			defer cancel()
			start := time.Now()
			err = q.Shutdown(shutdownCtx)
			require.ErrorIs(t, err, context.DeadlineExceeded)

			assert.Equal(t, tt.wantWrite, wrote.Load())
			if tt.wantWrite {
				assert.Zero(t, q.Stats().Running)
			} else {
				assert.Less(t, time.Since(start), tt.cleanup, "shutdown is bounded by the grace period")
			}
		})
	}
}

func TestQueue_JobTimeoutBoundsExecution(t *testing.T) {
	repo := testutil.NewMemoryJobRepository()
	ids := seedPending(repo, 1)

	result := make(chan error, 1)
	cfg := fastConfig(1)
	cfg.JobTimeout = 30 * time.Millisecond
	q := New(cfg, repo, ExecutorFunc(func(ctx context.Context, id string) error {
		<-ctx.Done()
		result <- ctx.Err()
		return ctx.Err()
	}), zaptest.NewLogger(t))

	ctx := context.Background()
	q.Start(ctx)
	_, err := q.Enqueue(ctx, ids[0])
	require.NoError(t, err)

	select {
	case err := <-result:
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	case <-time.After(2 * time.Second):
		t.Fatal("execution outlived its timeout")
	}
	shutdown(t, q)
}
