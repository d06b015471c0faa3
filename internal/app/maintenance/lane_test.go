package maintenance

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"ai-subtitler/internal/app/model"
	"ai-subtitler/internal/app/repository"
	"ai-subtitler/internal/app/testutil"
)

type fakeInFlight map[string]bool

func (f fakeInFlight) Contains(id string) bool { return f[id] }

type countingObserver struct {
	swept  int64
	reaped int
}

func (c *countingObserver) ObserveSweep(n int64) { c.swept += n }
func (c *countingObserver) ObserveReaped(n int)  { c.reaped += n }

var now = time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

func jobWith(id string, status model.JobStatus, created, updated time.Time) *model.ConversionJob {
	job := testutil.NewPendingJob(id, "user-1", "en", created)
	job.Status = status
	job.UpdatedAt = updated
	switch status {
	case model.StatusCompleted:
		url := "/api/v1/download/" + id + "/x.srt"
		job.DownloadURL = &url
		job.Progress = 100
	case model.StatusFailed:
		msg := "boom"
		job.Error = &msg
	}
	return job
}

func TestLane_Sweep(t *testing.T) {
	repo := testutil.NewMemoryJobRepository()
	old := now.Add(-31 * 24 * time.Hour)
	recent := now.Add(-29 * 24 * time.Hour)
	repo.Seed(
		jobWith("old-completed", model.StatusCompleted, old, old),
		jobWith("old-failed", model.StatusFailed, old, old),
		jobWith("old-pending", model.StatusPending, old, old),
		jobWith("recent-completed", model.StatusCompleted, recent, recent),
	)

	obs := &countingObserver{}
	lane := New(Config{}, repo, nil, zaptest.NewLogger(t), WithClock(func() time.Time { return now }), WithObserver(obs))

	n, err := lane.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.Equal(t, int64(2), obs.swept)

	for _, id := range []string{"old-pending", "recent-completed"} {
		_, err := repo.Get(context.Background(), id)
		assert.NoError(t, err, id)
	}
	for _, id := range []string{"old-completed", "old-failed"} {
		_, err := repo.Get(context.Background(), id)
		assert.ErrorIs(t, err, repository.ErrJobNotFound, id)
	}
}

func TestLane_ReapStale(t *testing.T) {
	repo := testutil.NewMemoryJobRepository()
	created := now.Add(-5 * time.Hour)
	repo.Seed(
		jobWith("stale", model.StatusProcessing, created, now.Add(-3*time.Hour)),
		jobWith("stale-but-running-here", model.StatusProcessing, created, now.Add(-3*time.Hour)),
		jobWith("fresh", model.StatusProcessing, created, now.Add(-10*time.Minute)),
		jobWith("pending", model.StatusPending, created, now.Add(-4*time.Hour)),
	)

	obs := &countingObserver{}
	lane := New(Config{StaleAfter: 2 * time.Hour}, repo, fakeInFlight{"stale-but-running-here": true},
		zaptest.NewLogger(t), WithClock(func() time.Time { return now }), WithObserver(obs))

	n, err := lane.ReapStale(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 1, obs.reaped)

	stale, err := repo.Get(context.Background(), "stale")
	require.NoError(t, err)
	assert.Equal(t, model.StatusFailed, stale.Status)
	require.NotNil(t, stale.Error)
	assert.Equal(t, model.InterruptedMessage, *stale.Error)
	assert.NoError(t, stale.CheckInvariants())

	for _, id := range []string{"stale-but-running-here", "fresh"} {
		job, err := repo.Get(context.Background(), id)
		require.NoError(t, err)
		assert.Equal(t, model.StatusProcessing, job.Status, id)
	}
	pending, err := repo.Get(context.Background(), "pending")
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, pending.Status)
}

func TestLane_ReapStaleLeavesFinishedJobAlone(t *testing.T) {
	repo := testutil.NewMemoryJobRepository()
	created := now.Add(-5 * time.Hour)
	repo.Seed(jobWith("finishing", model.StatusProcessing, created, now.Add(-3*time.Hour)))

	// The worker completes the job between the listing and the reaper's write.
	url := "/api/v1/download/finishing/x.srt"
	repo.BeforeUpdate = func(id string, update model.JobUpdate) {
		if update.Error != nil && *update.Error == model.InterruptedMessage {
			_, err := repo.Update(context.Background(), id, model.Complete(url))
			require.NoError(t, err)
		}
	}

	lane := New(Config{StaleAfter: 2 * time.Hour}, repo, nil, zaptest.NewLogger(t), WithClock(func() time.Time { return now }))
	n, err := lane.ReapStale(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	job, err := repo.Get(context.Background(), "finishing")
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, job.Status)
	require.NotNil(t, job.DownloadURL)
	assert.Equal(t, url, *job.DownloadURL)
	assert.Nil(t, job.Error)
}

func TestLane_RunOnceJoinsErrors(t *testing.T) {
	repo := testutil.NewMemoryJobRepository()
	repo.SetError("ListByStatus", errors.New("list failed"))
	repo.SetError("DeleteTerminalBefore", errors.New("delete failed"))

	lane := New(Config{}, repo, nil, zaptest.NewLogger(t))
	res, err := lane.RunOnce(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "list failed")
	assert.Contains(t, err.Error(), "delete failed")
	assert.Equal(t, Result{}, res)
}

func TestLane_RunOnceRefusesOverlap(t *testing.T) {
	lane := New(Config{}, testutil.NewMemoryJobRepository(), nil, nil)

	lane.mu.Lock()
	_, err := lane.RunOnce(context.Background())
	lane.mu.Unlock()
	assert.ErrorIs(t, err, ErrBusy)

	_, err = lane.RunOnce(context.Background())
	assert.NoError(t, err)
}

func TestLane_StartRejectsBadSchedule(t *testing.T) {
	lane := New(Config{Schedule: "every now and then"}, testutil.NewMemoryJobRepository(), nil, nil)
	assert.Error(t, lane.Start())
}

func TestLane_ScheduledRun(t *testing.T) {
	repo := testutil.NewMemoryJobRepository()
	old := now.Add(-60 * 24 * time.Hour)
	repo.Seed(jobWith("old", model.StatusCompleted, old, old))

	lane := New(Config{Schedule: "@every 1s"}, repo, nil, nil, WithClock(func() time.Time { return now }))
	require.NoError(t, lane.Start())
	defer lane.Stop()

	require.Eventually(t, func() bool {
		_, err := repo.Get(context.Background(), "old")
		return errors.Is(err, repository.ErrJobNotFound)
	}, 5*time.Second, 50*time.Millisecond)
}
