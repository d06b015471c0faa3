package app

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"ai-subtitler/internal/api/server"
	"ai-subtitler/internal/app/api/provider"
	"ai-subtitler/internal/app/maintenance"
	"ai-subtitler/internal/app/metrics"
	"ai-subtitler/internal/app/notify"
	"ai-subtitler/internal/app/pipeline"
	"ai-subtitler/internal/app/queue"
	"ai-subtitler/internal/app/repository"
	"ai-subtitler/internal/app/storage"
	"ai-subtitler/internal/config"
)

// ProgressListener receives job events in addition to the configured
// publisher. It is not closed by the application.
type ProgressListener notify.Publisher

// Application is the assembled service: persistence, stores, the provider
// chain, the pipeline and both scheduling lanes.
type Application struct {
	Config        *config.Config
	Logger        *zap.Logger
	Repo          repository.JobRepository
	Uploads       *storage.LocalStore
	Artifacts     storage.ArtifactStore
	Metrics       *metrics.Metrics
	ProviderStats *provider.DefaultProviderMetrics
	Publisher     notify.Publisher
	Orchestrator  *pipeline.Orchestrator
	Queue         *queue.Queue
	Maintenance   *maintenance.Lane
	Server        *server.Server
}

// Start launches the dispatcher, re-admits persisted pending work and
// schedules the maintenance lane. The HTTP server is started separately.
func (a *Application) Start(ctx context.Context) error {
	a.Queue.Start(ctx)

	recovered, err := a.Queue.Recover(ctx)
	if err != nil {
		return fmt.Errorf("failed to recover pending jobs: %w", err)
	}
	a.Logger.Info("Recovered pending jobs", zap.Int("count", recovered))

	if err := a.Maintenance.Start(); err != nil {
		return err
	}
	return nil
}

// Shutdown stops the maintenance lane, drains the queue and waits for running
// jobs until ctx expires, after which they are cancelled.
func (a *Application) Shutdown(ctx context.Context) error {
	a.Maintenance.Stop()
	return a.Queue.Shutdown(ctx)
}

// Stop shuts down the HTTP server and then the application.
func (a *Application) Stop(ctx context.Context) error {
	var errs []error
	if err := a.Server.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("http server: %w", err))
	}
	if err := a.Shutdown(ctx); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
