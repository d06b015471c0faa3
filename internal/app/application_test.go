package app

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"ai-subtitler/internal/app/model"
	"ai-subtitler/internal/app/notify"
	"ai-subtitler/internal/app/testutil"
	"ai-subtitler/internal/config"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Database.DSN = filepath.Join(dir, "jobs.db")
	cfg.Storage.UploadDir = filepath.Join(dir, "uploads")
	cfg.Storage.WorkDir = filepath.Join(dir, "work")
	cfg.Storage.Artifacts.LocalDir = filepath.Join(dir, "artifacts")
	cfg.Server.Port = 0
	cfg.Server.Environment = "test"
	cfg.Transcription.OpenAI.APIKey = "sk-test"
	return cfg
}

func TestInitializeApplication(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)

	application, cleanup, err := InitializeApplication(ctx, cfg, zaptest.NewLogger(t), nil)
	require.NoError(t, err)
	defer cleanup()

	assert.NotNil(t, application.Server)
	assert.IsType(t, notify.NopPublisher{}, application.Publisher)

	job := model.NewConversionJob("job-1", "user-1", "talk.mp4", 10, "video/mp4", "/api/v1/files/user-1/missing.mp4", "en")
	_, err = application.Repo.Create(ctx, job)
	require.NoError(t, err)

	require.NoError(t, application.Start(ctx))

	// The source does not exist, so the recovered job fails quickly.
	require.Eventually(t, func() bool {
		got, err := application.Repo.Get(ctx, "job-1")
		return err == nil && got.Status == model.StatusFailed
	}, 5*time.Second, 20*time.Millisecond)

	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	require.NoError(t, application.Shutdown(shutdownCtx))
	assert.True(t, application.Queue.Stats().Paused)
}

func TestProvidePublisher(t *testing.T) {
	cfg := testConfig(t)

	t.Run("no redis and no listener", func(t *testing.T) {
		pub, cleanup, err := providePublisher(context.Background(), cfg, nil, zaptest.NewLogger(t))
		require.NoError(t, err)
		defer cleanup()
		assert.IsType(t, notify.NopPublisher{}, pub)
	})

	t.Run("listener only", func(t *testing.T) {
		listener := &testutil.RecordingPublisher{}
		pub, cleanup, err := providePublisher(context.Background(), cfg, listener, zaptest.NewLogger(t))
		require.NoError(t, err)
		defer cleanup()
		assert.Same(t, listener, pub)
	})

	t.Run("unreachable redis", func(t *testing.T) {
		broken := *cfg
		broken.Redis.URL = "redis://127.0.0.1:1/0"
		_, _, err := providePublisher(context.Background(), &broken, nil, zaptest.NewLogger(t))
		assert.Error(t, err)
	})
}

func TestProvideDeepgramWithoutKey(t *testing.T) {
	cfg := testConfig(t)
	assert.Nil(t, provideDeepgram(cfg, nil))

	cfg.Transcription.Deepgram.APIKey = "0123456789abcdef0123456789abcdef"
	assert.NotNil(t, provideDeepgram(cfg, nil))
}

func TestInitializeMaintenance(t *testing.T) {
	cfg := testConfig(t)
	lane, cleanup, err := InitializeMaintenance(context.Background(), cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	defer cleanup()

	result, err := lane.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, result.Swept)
	assert.Zero(t, result.Reaped)
}
