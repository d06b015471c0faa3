package app

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/google/wire"
	goopenai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"ai-subtitler/internal/api/server"
	"ai-subtitler/internal/api/v1/services"
	"ai-subtitler/internal/app/api/deepgram"
	"ai-subtitler/internal/app/api/openai"
	"ai-subtitler/internal/app/api/openai/whisper"
	"ai-subtitler/internal/app/api/provider"
	"ai-subtitler/internal/app/audio"
	"ai-subtitler/internal/app/maintenance"
	"ai-subtitler/internal/app/metrics"
	"ai-subtitler/internal/app/notify"
	"ai-subtitler/internal/app/pipeline"
	"ai-subtitler/internal/app/queue"
	"ai-subtitler/internal/app/repository"
	"ai-subtitler/internal/app/repository/pg"
	"ai-subtitler/internal/app/repository/sqlite"
	"ai-subtitler/internal/app/storage"
	"ai-subtitler/internal/config"
)

// StoreSet provides persistence and blob storage.
var StoreSet = wire.NewSet(provideRepository, provideUploads, provideArtifacts)

// TranscriptionSet provides both providers behind the policy chain.
var TranscriptionSet = wire.NewSet(
	provideOpenAIClient,
	provideWhisper,
	provideDeepgram,
	provider.NewProviderMetrics,
	provideChain,
	wire.Bind(new(provider.Transcriber), new(*provider.Chain)),
)

func provideRepository(ctx context.Context, cfg *config.Config, logger *zap.Logger) (repository.JobRepository, func(), error) {
	var (
		repo *repository.SQLJobRepository
		err  error
	)
	switch cfg.Database.Driver {
	case config.DriverPostgres:
		repo, err = pg.Open(ctx, cfg.Database.DSN)
	default:
		repo, err = sqlite.Open(ctx, cfg.Database.DSN)
	}
	if err != nil {
		return nil, nil, err
	}

	logger.Info("Opened job database", zap.String("driver", cfg.Database.Driver))
	cleanup := func() {
		if err := repo.Close(); err != nil {
			logger.Warn("Failed to close job database", zap.Error(err))
		}
	}
	return repo, cleanup, nil
}

func provideUploads(cfg *config.Config, logger *zap.Logger) (*storage.LocalStore, error) {
	return storage.NewLocalStore(cfg.Storage.UploadDir, storage.DefaultUploadURLPrefix, logger)
}

func provideArtifacts(ctx context.Context, cfg *config.Config) (storage.ArtifactStore, error) {
	a := cfg.Storage.Artifacts
	switch a.Backend {
	case config.BackendMinio:
		return storage.NewMinioArtifactStore(ctx, storage.MinioConfig{
			Endpoint:      a.Endpoint,
			AccessKey:     a.AccessKey,
			SecretKey:     a.SecretKey,
			Bucket:        a.Bucket,
			UseSSL:        a.UseSSL,
			PublicBaseURL: a.PublicBaseURL,
		})
	case config.BackendS3:
		return storage.NewS3ArtifactStore(storage.S3Config{
			Endpoint:      a.Endpoint,
			Region:        a.Region,
			AccessKey:     a.AccessKey,
			SecretKey:     a.SecretKey,
			Bucket:        a.Bucket,
			UsePathStyle:  a.UsePathStyle,
			PublicBaseURL: a.PublicBaseURL,
		})
	default:
		dir, err := filepath.Abs(a.LocalDir)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve artifact dir: %w", err)
		}
		return storage.NewLocalArtifactStore(dir, storage.DefaultArtifactURLPrefix)
	}
}

func provideOpenAIClient(cfg *config.Config) *goopenai.Client {
	return openai.NewClient(openai.ClientConfig{
		APIKey:  cfg.Transcription.OpenAI.APIKey,
		BaseURL: cfg.Transcription.OpenAI.BaseURL,
	})
}

func provideWhisper(client *goopenai.Client, cfg *config.Config, logger *zap.Logger) *whisper.Provider {
	return whisper.NewProvider(client, cfg.Transcription.OpenAI.Model, logger)
}

// provideDeepgram returns nil without an API key; the chain then always uses
// the primary provider.
func provideDeepgram(cfg *config.Config, logger *zap.Logger) *deepgram.Provider {
	dg := cfg.Transcription.Deepgram
	if dg.APIKey == "" {
		return nil
	}
	return deepgram.NewProvider(deepgram.Config{
		APIKey:      dg.APIKey,
		BaseURL:     dg.BaseURL,
		Model:       dg.Model,
		SmartFormat: dg.SmartFormat,
		Timeout:     dg.Timeout,
	}, logger)
}

func provideChain(
	primary *whisper.Provider,
	fallback *deepgram.Provider,
	stats *provider.DefaultProviderMetrics,
	m *metrics.Metrics,
	cfg *config.Config,
	logger *zap.Logger,
) *provider.Chain {
	var secondary provider.TranscriptionProvider
	if fallback != nil {
		secondary = fallback
	} else {
		logger.Warn("Deepgram is not configured, every job uses OpenAI")
	}
	return provider.NewChain(primary, secondary, cfg.Transcription.DefaultLanguage, provider.Recorders{m, stats}, logger)
}

func provideExtractor(cfg *config.Config, logger *zap.Logger) *audio.Extractor {
	return audio.NewExtractor(cfg.Media.FFmpegPath, logger)
}

// providePublisher combines the Redis publisher, when configured, with the
// caller's listener. Only the Redis connection is closed on cleanup.
func providePublisher(ctx context.Context, cfg *config.Config, listener ProgressListener, logger *zap.Logger) (notify.Publisher, func(), error) {
	var fan notify.Fanout
	cleanup := func() {}

	if cfg.Redis.URL != "" {
		redisPub, err := notify.NewRedisPublisher(ctx, cfg.Redis.URL, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		fan = append(fan, redisPub)
		cleanup = func() {
			if err := redisPub.Close(); err != nil {
				logger.Warn("Failed to close redis publisher", zap.Error(err))
			}
		}
	}
	if listener != nil {
		fan = append(fan, listener)
	}

	switch len(fan) {
	case 0:
		return notify.NopPublisher{}, cleanup, nil
	case 1:
		return fan[0], cleanup, nil
	default:
		return fan, cleanup, nil
	}
}

func provideOrchestrator(
	repo repository.JobRepository,
	uploads *storage.LocalStore,
	artifacts storage.ArtifactStore,
	extractor *audio.Extractor,
	transcriber provider.Transcriber,
	publisher notify.Publisher,
	m *metrics.Metrics,
	cfg *config.Config,
	logger *zap.Logger,
) *pipeline.Orchestrator {
	return pipeline.NewOrchestrator(repo, uploads, artifacts, extractor, transcriber, logger,
		pipeline.WithPublisher(publisher),
		pipeline.WithObserver(m),
		pipeline.WithWorkDir(cfg.Storage.WorkDir),
	)
}

func provideQueue(cfg *config.Config, repo repository.JobRepository, orchestrator *pipeline.Orchestrator, m *metrics.Metrics, logger *zap.Logger) *queue.Queue {
	return queue.New(queue.Config{
		Concurrency: cfg.Queue.Concurrency,
		RateLimit:   cfg.Queue.RateLimit,
		RateWindow:  cfg.Queue.RateWindow,
		JobTimeout:  cfg.Queue.JobTimeout,
	}, repo, orchestrator, logger, queue.WithObserver(m))
}

func maintenanceConfig(cfg *config.Config) maintenance.Config {
	return maintenance.Config{
		Retention:  cfg.Retention.MaxAge,
		StaleAfter: cfg.Retention.StaleAfter,
		Schedule:   cfg.Retention.Schedule,
		RunTimeout: cfg.Retention.RunTimeout,
	}
}

func provideMaintenance(cfg *config.Config, repo repository.JobRepository, q *queue.Queue, m *metrics.Metrics, logger *zap.Logger) *maintenance.Lane {
	return maintenance.New(maintenanceConfig(cfg), repo, q.Registry(), logger, maintenance.WithObserver(m))
}

// provideStandaloneMaintenance serves one-off CLI runs. No job executes in
// this process, so the in-flight set is empty; a processing job older than
// the stale threshold has outlived any job timeout elsewhere.
func provideStandaloneMaintenance(cfg *config.Config, repo repository.JobRepository, logger *zap.Logger) *maintenance.Lane {
	return maintenance.New(maintenanceConfig(cfg), repo, queue.NewInFlightRegistry(), logger)
}

func provideServer(
	cfg *config.Config,
	repo repository.JobRepository,
	uploads *storage.LocalStore,
	artifacts storage.ArtifactStore,
	q *queue.Queue,
	m *metrics.Metrics,
	stats *provider.DefaultProviderMetrics,
	logger *zap.Logger,
) *server.Server {
	return server.NewServer(server.Config{
		Addr:           cfg.Addr(),
		Environment:    cfg.Server.Environment,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		MaxUploadBytes: cfg.Server.MaxUploadBytes,
	}, server.Dependencies{
		Jobs:    services.NewJobService(repo, uploads, artifacts, q, cfg.Server.MaxUploadBytes, logger),
		Files:   services.NewFileService(uploads, storage.DefaultUploadURLPrefix),
		Health:  services.NewHealthService(q, stats),
		Metrics: m.Handler(),
	}, logger)
}
