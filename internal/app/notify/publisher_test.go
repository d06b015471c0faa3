package notify

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"ai-subtitler/internal/app/model"
)

func TestFromJob(t *testing.T) {
	eta := 12
	job := model.NewConversionJob("job-1", "user-1", "talk.mp4", 10, "video/mp4", "/api/v1/files/user-1/x.mp4", "en")
	job.Status = model.StatusProcessing
	job.Progress = model.ProgressTranscribing
	job.ETA = &eta

	ev := FromJob(job)
	assert.Equal(t, "job-1", ev.JobID)
	assert.Equal(t, "user-1", ev.UserID)
	assert.Equal(t, model.StatusProcessing, ev.Status)
	assert.Equal(t, 50, ev.Progress)
	require.NotNil(t, ev.ETA)
	assert.Equal(t, 12, *ev.ETA)
	assert.Nil(t, ev.DownloadURL)
	assert.Equal(t, job.UpdatedAt, ev.At)
}

func TestChannel(t *testing.T) {
	assert.Equal(t, "subtitles:progress:user-1", Channel("user-1"))
}

func TestNopPublisher(t *testing.T) {
	var p Publisher = NopPublisher{}
	assert.NoError(t, p.Publish(context.Background(), Event{JobID: "x"}))
	assert.NoError(t, p.Close())
}

func TestNewRedisPublisher_InvalidURL(t *testing.T) {
	_, err := NewRedisPublisher(context.Background(), "not-a-url", nil)
	assert.Error(t, err)
}

func TestRedisPublisher_RoundTrip(t *testing.T) {
	redisURL := os.Getenv("REDIS_URL")
	if redisURL == "" {
		t.Skip("REDIS_URL not set, skipping redis integration test")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	pub, err := NewRedisPublisher(ctx, redisURL, zaptest.NewLogger(t))
	require.NoError(t, err)
	defer pub.Close()

	sub := pub.Subscribe(ctx, "user-rt")
	defer sub.Close()
	events := sub.Events()
	// Subscription is established asynchronously.
	time.Sleep(100 * time.Millisecond)

	require.NoError(t, pub.Publish(ctx, Event{JobID: "job-rt", UserID: "user-rt", Status: model.StatusCompleted, Progress: 100}))

	select {
	case ev := <-events:
		assert.Equal(t, "job-rt", ev.JobID)
		assert.Equal(t, model.StatusCompleted, ev.Status)
	case <-ctx.Done():
		t.Fatal("event not received")
	}
}

type failingPublisher struct {
	events []Event
	err    error
}

func (p *failingPublisher) Publish(_ context.Context, ev Event) error {
	p.events = append(p.events, ev)
	return p.err
}

func (p *failingPublisher) Close() error { return p.err }

func TestFanout(t *testing.T) {
	broken := &failingPublisher{err: errors.New("redis: connection refused")}
	healthy := &failingPublisher{}
	fan := Fanout{broken, healthy}

	err := fan.Publish(context.Background(), Event{JobID: "job-1", Progress: 50})

	require.Error(t, err)
	assert.Len(t, broken.events, 1)
	require.Len(t, healthy.events, 1, "later members still receive the event")
	assert.Equal(t, 50, healthy.events[0].Progress)
	assert.ErrorIs(t, fan.Close(), broken.err)
}
