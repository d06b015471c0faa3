package pipeline

import (
	"context"
	"errors"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"ai-subtitler/internal/app/api/provider"
	"ai-subtitler/internal/app/audio"
	apperrors "ai-subtitler/internal/app/errors"
	"ai-subtitler/internal/app/model"
	"ai-subtitler/internal/app/repository"
	"ai-subtitler/internal/app/storage"
	"ai-subtitler/internal/app/subtitle"
	"ai-subtitler/internal/app/testutil"
)

type fixture struct {
	repo      *testutil.MemoryJobRepository
	uploads   *storage.LocalStore
	artifacts *testutil.MemoryArtifactStore
	primary   *testutil.MockProvider
	fallback  *testutil.MockProvider
	publisher *testutil.RecordingPublisher
	workDir   string
	orch      *Orchestrator
}

func newFixture(t *testing.T, behavior testutil.FFmpegBehavior, sources storage.SourceStore) *fixture {
	t.Helper()
	logger := zaptest.NewLogger(t)

	uploads, err := storage.NewLocalStore(t.TempDir(), "", logger)
	require.NoError(t, err)
	if sources == nil {
		sources = uploads
	}

	f := &fixture{
		repo:      testutil.NewMemoryJobRepository(),
		uploads:   uploads,
		artifacts: testutil.NewMemoryArtifactStore(),
		primary:   testutil.NewMockProvider("openai"),
		fallback:  testutil.NewMockProvider("deepgram"),
		publisher: &testutil.RecordingPublisher{},
		workDir:   t.TempDir(),
	}
	chain := provider.NewChain(f.primary, f.fallback, "en", nil, logger)
	extractor := audio.NewExtractor(testutil.FakeFFmpeg(t, behavior), logger)
	f.orch = NewOrchestrator(f.repo, sources, f.artifacts, extractor, chain, logger,
		WithPublisher(f.publisher),
		WithWorkDir(f.workDir))
	return f
}

// seedJob uploads a fake media file and stores a pending job pointing at it.
func (f *fixture) seedJob(t *testing.T, id, language string) *model.ConversionJob {
	t.Helper()
	ref, size, err := f.uploads.Save(context.Background(), "user-1", "Talk.mp4", strings.NewReader("fake media"))
	require.NoError(t, err)
	job := model.NewConversionJob(id, "user-1", "Talk.mp4", size, "video/mp4", ref, language)
	f.repo.Seed(job)
	return job
}

func (f *fixture) job(t *testing.T, id string) *model.ConversionJob {
	t.Helper()
	job, err := f.repo.Get(context.Background(), id)
	require.NoError(t, err)
	return job
}

func (f *fixture) assertWorkDirEmpty(t *testing.T) {
	t.Helper()
	entries, err := os.ReadDir(f.workDir)
	require.NoError(t, err)
	assert.Empty(t, entries, "scratch files must be removed")
}

func (f *fixture) assertSourceDeleted(t *testing.T, job *model.ConversionJob) {
	t.Helper()
	path, err := f.uploads.LocalPath(job.FileURL)
	require.NoError(t, err)
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err), "source upload must be deleted")
}

func TestOrchestrator_CompletesJob(t *testing.T) {
	f := newFixture(t, testutil.FFmpegSucceeds, nil)
	seeded := f.seedJob(t, "job-1", "en")
	f.primary.On("Transcribe", mock.Anything, mock.Anything, "en").Return(testutil.SampleCues("hello", 3), nil)

	require.NoError(t, f.orch.Run(context.Background(), "job-1"))

	job := f.job(t, "job-1")
	assert.Equal(t, model.StatusCompleted, job.Status)
	assert.Equal(t, 100, job.Progress)
	assert.Nil(t, job.Error)
	assert.Nil(t, job.ETA)
	require.NotNil(t, job.DownloadURL)
	assert.Equal(t, f.artifacts.URL("job-1/Talk.srt"), *job.DownloadURL)
	assert.NoError(t, job.CheckInvariants())

	data, err := f.artifacts.Get(context.Background(), *job.DownloadURL)
	require.NoError(t, err)
	cues, err := subtitle.ParseSRT(string(data))
	require.NoError(t, err)
	assert.Equal(t, testutil.SampleCues("hello", 3), cues)
	assert.Equal(t, subtitle.ContentType, f.artifacts.ContentType(*job.DownloadURL))

	assert.Equal(t, []int{0, 10, 30, 50, 90, 100}, f.repo.ProgressHistory("job-1"))
	assert.Zero(t, f.fallback.CallCount(), "default language must not reach the fallback provider")

	events := f.publisher.Events("job-1")
	require.NotEmpty(t, events)
	assert.Equal(t, model.StatusProcessing, events[0].Status)
	assert.Equal(t, model.StatusCompleted, events[len(events)-1].Status)

	f.assertWorkDirEmpty(t)
	f.assertSourceDeleted(t, seeded)
	f.primary.AssertExpectations(t)
}

func TestOrchestrator_RecordsExtractionEstimate(t *testing.T) {
	f := newFixture(t, testutil.FFmpegSucceeds, nil)
	f.seedJob(t, "job-eta", "en")
	f.primary.On("Transcribe", mock.Anything, mock.Anything, "en").Return(testutil.SampleCues("x", 1), nil)

	require.NoError(t, f.orch.Run(context.Background(), "job-eta"))

	var estimated bool
	for _, call := range f.repo.Calls("Update") {
		if call.JobID == "job-eta" && call.Update.ETA != nil {
			estimated = true
			assert.GreaterOrEqual(t, *call.Update.ETA, 0)
		}
	}
	assert.True(t, estimated, "extraction progress should produce an ETA")
	assert.Nil(t, f.job(t, "job-eta").ETA)
}

func TestOrchestrator_ExtractionFailure(t *testing.T) {
	tests := []struct {
		name     string
		behavior testutil.FFmpegBehavior
		contains string
	}{
		{"tool exits nonzero", testutil.FFmpegFails, testutil.FFmpegErrorLine},
		{"tool writes nothing", testutil.FFmpegEmptyOutput, "output file is empty"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, tt.behavior, nil)
			seeded := f.seedJob(t, "job-1", "en")

			err := f.orch.Run(context.Background(), "job-1")
			require.Error(t, err)
			assert.ErrorIs(t, err, apperrors.ErrExtractionFailed)

			job := f.job(t, "job-1")
			assert.Equal(t, model.StatusFailed, job.Status)
			require.NotNil(t, job.Error)
			assert.Contains(t, *job.Error, tt.contains)
			assert.Nil(t, job.DownloadURL)
			assert.NoError(t, job.CheckInvariants())

			assert.Zero(t, f.primary.CallCount())
			assert.Zero(t, f.artifacts.Len())
			f.assertWorkDirEmpty(t)
			f.assertSourceDeleted(t, seeded)
		})
	}
}

func TestOrchestrator_FallsBackToPrimary(t *testing.T) {
	f := newFixture(t, testutil.FFmpegSucceeds, nil)
	f.seedJob(t, "job-fr", "fr")
	f.fallback.On("Transcribe", mock.Anything, mock.Anything, "fr").Return(nil, errors.New("upstream 503"))
	f.primary.On("Transcribe", mock.Anything, mock.Anything, "fr").Return(testutil.SampleCues("primary", 2), nil)

	require.NoError(t, f.orch.Run(context.Background(), "job-fr"))

	job := f.job(t, "job-fr")
	assert.Equal(t, model.StatusCompleted, job.Status)
	data, err := f.artifacts.Get(context.Background(), *job.DownloadURL)
	require.NoError(t, err)
	cues, err := subtitle.ParseSRT(string(data))
	require.NoError(t, err)
	assert.Equal(t, testutil.SampleCues("primary", 2), cues)

	assert.Equal(t, 1, f.fallback.CallCount())
	assert.Equal(t, 1, f.primary.CallCount())
}

func TestOrchestrator_NonDefaultLanguageUsesFallbackFirst(t *testing.T) {
	f := newFixture(t, testutil.FFmpegSucceeds, nil)
	f.seedJob(t, "job-de", "de")
	f.fallback.On("Transcribe", mock.Anything, mock.Anything, "de").Return(testutil.SampleCues("fallback", 1), nil)

	require.NoError(t, f.orch.Run(context.Background(), "job-de"))

	assert.Equal(t, model.StatusCompleted, f.job(t, "job-de").Status)
	assert.Zero(t, f.primary.CallCount())
}

func TestOrchestrator_BothProvidersFail(t *testing.T) {
	f := newFixture(t, testutil.FFmpegSucceeds, nil)
	f.seedJob(t, "job-es", "es")
	f.fallback.On("Transcribe", mock.Anything, mock.Anything, "es").Return(nil, errors.New("bad language"))
	f.primary.On("Transcribe", mock.Anything, mock.Anything, "es").Return(nil, errors.New("quota exceeded"))

	err := f.orch.Run(context.Background(), "job-es")
	require.ErrorIs(t, err, apperrors.ErrTranscriptionFailed)

	job := f.job(t, "job-es")
	assert.Equal(t, model.StatusFailed, job.Status)
	require.NotNil(t, job.Error)
	assert.Contains(t, *job.Error, "quota exceeded")
	assert.Nil(t, job.DownloadURL)
	f.assertWorkDirEmpty(t)
}

func TestOrchestrator_StageFailures(t *testing.T) {
	tests := []struct {
		name   string
		setup  func(t *testing.T, f *fixture, job *model.ConversionJob)
		target error
	}{
		{
			name: "source missing",
			setup: func(t *testing.T, f *fixture, job *model.ConversionJob) {
				require.NoError(t, f.uploads.Delete(context.Background(), job.FileURL))
			},
			target: apperrors.ErrSourceNotFound,
		},
		{
			name: "empty transcript",
			setup: func(t *testing.T, f *fixture, job *model.ConversionJob) {
				f.primary.On("Transcribe", mock.Anything, mock.Anything, "en").Return([]model.Cue{}, nil)
			},
			target: apperrors.ErrSerializationFailed,
		},
		{
			name: "artifact store down",
			setup: func(t *testing.T, f *fixture, job *model.ConversionJob) {
				f.primary.On("Transcribe", mock.Anything, mock.Anything, "en").Return(testutil.SampleCues("x", 2), nil)
				f.artifacts.PutErr = errors.New("bucket unreachable")
			},
			target: apperrors.ErrPersistFailed,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, testutil.FFmpegSucceeds, nil)
			job := f.seedJob(t, "job-1", "en")
			tt.setup(t, f, job)

			err := f.orch.Run(context.Background(), "job-1")
			require.ErrorIs(t, err, tt.target)

			got := f.job(t, "job-1")
			assert.Equal(t, model.StatusFailed, got.Status)
			assert.Nil(t, got.DownloadURL)
			assert.NoError(t, got.CheckInvariants())
			f.assertWorkDirEmpty(t)
		})
	}
}

func TestOrchestrator_MissingSourceIsFileNotFound(t *testing.T) {
	t.Run("local upload", func(t *testing.T) {
		f := newFixture(t, testutil.FFmpegSucceeds, nil)
		job := f.seedJob(t, "job-1", "en")
		require.NoError(t, f.uploads.Delete(context.Background(), job.FileURL))

		err := f.orch.Run(context.Background(), "job-1")
		assert.ErrorIs(t, err, apperrors.ErrSourceNotFound)
		assert.ErrorIs(t, err, apperrors.ErrFileNotFound)
	})

	t.Run("remote upload", func(t *testing.T) {
		f := newFixture(t, testutil.FFmpegSucceeds, testutil.NewMemorySourceStore())
		f.repo.Seed(model.NewConversionJob("job-1", "user-1", "clip.wav", 5, "audio/wav", "s3://uploads/gone.wav", "en"))

		err := f.orch.Run(context.Background(), "job-1")
		assert.ErrorIs(t, err, apperrors.ErrSourceNotFound)
		assert.ErrorIs(t, err, apperrors.ErrFileNotFound)
		assert.ErrorIs(t, err, storage.ErrObjectNotFound)
	})
}

func TestOrchestrator_SpoolsRemoteSources(t *testing.T) {
	sources := testutil.NewMemorySourceStore()
	f := newFixture(t, testutil.FFmpegSucceeds, sources)
	job := model.NewConversionJob("job-remote", "user-1", "clip.wav", 5, "audio/wav", "s3://uploads/clip.wav", "en")
	f.repo.Seed(job)
	sources.Add(job.FileURL, []byte("audio"))
	f.primary.On("Transcribe", mock.Anything, mock.Anything, "en").Return(testutil.SampleCues("x", 1), nil)

	require.NoError(t, f.orch.Run(context.Background(), "job-remote"))

	assert.Equal(t, model.StatusCompleted, f.job(t, "job-remote").Status)
	assert.Equal(t, []string{"s3://uploads/clip.wav"}, sources.Deleted())
	f.assertWorkDirEmpty(t)
}

func TestOrchestrator_SourceDeleteFailureIsNotEscalated(t *testing.T) {
	sources := testutil.NewMemorySourceStore()
	sources.DeleteErr = errors.New("permission denied")
	f := newFixture(t, testutil.FFmpegSucceeds, sources)
	job := model.NewConversionJob("job-1", "user-1", "clip.wav", 5, "audio/wav", "s3://uploads/clip.wav", "en")
	f.repo.Seed(job)
	sources.Add(job.FileURL, []byte("audio"))
	f.primary.On("Transcribe", mock.Anything, mock.Anything, "en").Return(testutil.SampleCues("x", 1), nil)

	require.NoError(t, f.orch.Run(context.Background(), "job-1"))
	assert.Equal(t, model.StatusCompleted, f.job(t, "job-1").Status)
}

func TestOrchestrator_JobDeletedWhileProcessing(t *testing.T) {
	f := newFixture(t, testutil.FFmpegSucceeds, nil)
	f.seedJob(t, "job-1", "en")
	f.primary.On("Transcribe", mock.Anything, mock.Anything, "en").Return(testutil.SampleCues("x", 2), nil)

	var once sync.Once
	f.repo.BeforeUpdate = func(id string, update model.JobUpdate) {
		if update.Progress != nil && *update.Progress == model.ProgressTranscribing {
			once.Do(func() {
				require.NoError(t, f.repo.Delete(context.Background(), id))
			})
		}
	}

	assert.NotPanics(t, func() {
		assert.NoError(t, f.orch.Run(context.Background(), "job-1"))
	})

	_, err := f.repo.Get(context.Background(), "job-1")
	assert.ErrorIs(t, err, repository.ErrJobNotFound)
	f.assertWorkDirEmpty(t)
}

func TestOrchestrator_ReapedJobKeepsInterruptedStatus(t *testing.T) {
	f := newFixture(t, testutil.FFmpegSucceeds, nil)
	f.seedJob(t, "job-1", "en")
	f.primary.On("Transcribe", mock.Anything, mock.Anything, "en").Return(testutil.SampleCues("x", 2), nil)

	// The maintenance lane gives up on the job just before its result lands.
	f.repo.BeforeUpdate = func(id string, update model.JobUpdate) {
		if update.Status != nil && *update.Status == model.StatusCompleted {
			_, err := f.repo.Update(context.Background(), id, model.Fail(model.InterruptedMessage))
			require.NoError(t, err)
		}
	}

	err := f.orch.Run(context.Background(), "job-1")
	require.ErrorIs(t, err, model.ErrInvalidTransition)

	job := f.job(t, "job-1")
	assert.Equal(t, model.StatusFailed, job.Status)
	require.NotNil(t, job.Error)
	assert.Equal(t, model.InterruptedMessage, *job.Error)
	assert.Zero(t, f.artifacts.Len(), "the unrecorded artifact is removed")
	f.assertWorkDirEmpty(t)
}

func TestOrchestrator_FailureTransitionErrorDoesNotMaskCause(t *testing.T) {
	f := newFixture(t, testutil.FFmpegFails, nil)
	f.seedJob(t, "job-1", "en")
	f.repo.BeforeUpdate = func(id string, update model.JobUpdate) {
		if update.Status != nil && *update.Status == model.StatusFailed {
			f.repo.SetError("Update", errors.New("database is locked"))
		}
	}

	err := f.orch.Run(context.Background(), "job-1")
	require.ErrorIs(t, err, apperrors.ErrExtractionFailed)
	assert.NotContains(t, err.Error(), "database is locked")
}

func TestOrchestrator_CancelledJobKillsExtraction(t *testing.T) {
	f := newFixture(t, testutil.FFmpegHangs, nil)
	f.seedJob(t, "job-1", "en")

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	started := time.Now()
	err := f.orch.Run(ctx, "job-1")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(started), 10*time.Second)

	job := f.job(t, "job-1")
	assert.Equal(t, model.StatusFailed, job.Status, "failure must be recorded even after cancellation")
	f.assertWorkDirEmpty(t)
}

func TestOrchestrator_SkipsIneligibleAndMissingJobs(t *testing.T) {
	f := newFixture(t, testutil.FFmpegSucceeds, nil)
	done := f.seedJob(t, "job-done", "en")
	done.Status = model.StatusCompleted
	done.Progress = 100
	url := "memory://artifacts/job-done/Talk.srt"
	done.DownloadURL = &url
	f.repo.Seed(done)

	require.NoError(t, f.orch.Run(context.Background(), "job-done"))
	require.NoError(t, f.orch.Run(context.Background(), "ghost"))

	assert.Empty(t, f.repo.Calls("Update"))
	assert.Equal(t, model.StatusCompleted, f.job(t, "job-done").Status)
}

func TestOrchestrator_RetryingJobIsProcessed(t *testing.T) {
	f := newFixture(t, testutil.FFmpegSucceeds, nil)
	job := f.seedJob(t, "job-1", "en")
	job.Status = model.StatusRetrying
	f.repo.Seed(job)
	f.primary.On("Transcribe", mock.Anything, mock.Anything, "en").Return(testutil.SampleCues("x", 1), nil)

	require.NoError(t, f.orch.Execute(context.Background(), "job-1"))
	assert.Equal(t, model.StatusCompleted, f.job(t, "job-1").Status)
}

func TestOrchestrator_DownloadURLIsEscaped(t *testing.T) {
	f := newFixture(t, testutil.FFmpegSucceeds, nil)
	ref, size, err := f.uploads.Save(context.Background(), "user-1", "My Talk.mp4", strings.NewReader("fake media"))
	require.NoError(t, err)
	f.repo.Seed(model.NewConversionJob("job-1", "user-1", "My Talk.mp4", size, "video/mp4", ref, "en"))
	f.primary.On("Transcribe", mock.Anything, mock.Anything, "en").Return(testutil.SampleCues("x", 1), nil)

	require.NoError(t, f.orch.Run(context.Background(), "job-1"))

	job := f.job(t, "job-1")
	require.NotNil(t, job.DownloadURL)
	assert.Equal(t, "memory://artifacts/job-1/My%20Talk.srt", *job.DownloadURL)
	assert.NotContains(t, *job.DownloadURL, " ")
	_, err = f.artifacts.Get(context.Background(), *job.DownloadURL)
	assert.NoError(t, err)
}

func TestArtifactKey(t *testing.T) {
	tests := []struct {
		fileName string
		want     string
	}{
		{"lecture.mp4", "job/lecture.srt"},
		{"My Talk.final.wav", "job/My Talk.final.srt"},
		{"../../etc/passwd", "job/passwd.srt"},
		{"what?.mp3", "job/what_.srt"},
		{".mp4", "job/subtitles.srt"},
		{"", "job/subtitles.srt"},
	}
	for _, tt := range tests {
		t.Run(tt.fileName, func(t *testing.T) {
			assert.Equal(t, tt.want, ArtifactKey("job", tt.fileName))
		})
	}
}
