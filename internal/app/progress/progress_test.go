package progress

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"ai-subtitler/internal/app/model"
	"ai-subtitler/internal/app/notify"
)

func TestBar_Disabled(t *testing.T) {
	b := New(Config{Enabled: false}, "convert")
	assert.NoError(t, b.Publish(context.Background(), notify.Event{Status: model.StatusProcessing, Progress: 50}))
	assert.NoError(t, b.Close())
}

func finishes(t *testing.T, b *Bar) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		_ = b.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("progress bar did not shut down")
	}
}

func TestBar_FollowsJobToCompletion(t *testing.T) {
	var out bytes.Buffer
	b := New(Config{Enabled: true, Writer: &out}, "talk.mp4")

	ctx := context.Background()
	for _, p := range []int{0, 10, 30, 50, 90} {
		assert.NoError(t, b.Publish(ctx, notify.Event{Status: model.StatusProcessing, Progress: p}))
	}
	assert.Equal(t, int64(90), b.bar.Current())

	// Progress never moves backwards.
	assert.NoError(t, b.Publish(ctx, notify.Event{Status: model.StatusProcessing, Progress: 30}))
	assert.Equal(t, int64(90), b.bar.Current())

	assert.NoError(t, b.Publish(ctx, notify.Event{Status: model.StatusCompleted, Progress: 100}))
	finishes(t, b)
	assert.Equal(t, "completed", b.currentStatus())
}

func TestBar_AbortsOnFailure(t *testing.T) {
	var out bytes.Buffer
	b := New(Config{Enabled: true, Writer: &out}, "talk.mp4")

	assert.NoError(t, b.Publish(context.Background(), notify.Event{Status: model.StatusFailed}))
	assert.NoError(t, b.Publish(context.Background(), notify.Event{Status: model.StatusProcessing, Progress: 50}))
	finishes(t, b)
}

func TestBar_CloseWithoutTerminalEvent(t *testing.T) {
	b := New(Config{Enabled: true, Writer: &bytes.Buffer{}}, "x")
	finishes(t, b)
}

func TestIsTTY(t *testing.T) {
	assert.False(t, IsTTY(&bytes.Buffer{}))
	assert.False(t, IsTTY(nil))
	assert.True(t, ShouldShow(true))
}
