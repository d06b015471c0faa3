//go:build wireinject
// +build wireinject

package app

import (
	"context"

	"github.com/google/wire"
	"go.uber.org/zap"

	"ai-subtitler/internal/app/maintenance"
	"ai-subtitler/internal/app/metrics"
	"ai-subtitler/internal/app/repository"
	"ai-subtitler/internal/config"
)

// InitializeApplication assembles the full service. listener may be nil.
func InitializeApplication(ctx context.Context, cfg *config.Config, logger *zap.Logger, listener ProgressListener) (*Application, func(), error) {
	wire.Build(
		StoreSet,
		TranscriptionSet,
		metrics.New,
		provideExtractor,
		providePublisher,
		provideOrchestrator,
		provideQueue,
		provideMaintenance,
		provideServer,
		wire.Struct(new(Application), "*"),
	)
	return nil, nil, nil
}

// InitializeRepository opens only the job database.
func InitializeRepository(ctx context.Context, cfg *config.Config, logger *zap.Logger) (repository.JobRepository, func(), error) {
	wire.Build(provideRepository)
	return nil, nil, nil
}

// InitializeMaintenance builds a maintenance lane for a process that runs no
// jobs itself.
func InitializeMaintenance(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*maintenance.Lane, func(), error) {
	wire.Build(provideRepository, provideStandaloneMaintenance)
	return nil, nil, nil
}
