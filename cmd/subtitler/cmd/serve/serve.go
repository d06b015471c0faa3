package serve

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"ai-subtitler/cmd/subtitler/cmd/cmdutil"
	"ai-subtitler/internal/app"
)

// Cmd represents the serve command
var Cmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and the background job queue",
	Long: `Run the HTTP API and the background job queue

- Pending and retrying jobs left in the database are queued again on start
- The maintenance lane sweeps expired jobs and fails stale ones on schedule
- SIGINT or SIGTERM drains the queue and waits for running jobs`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := cmdutil.Load()
		if err != nil {
			return err
		}
		defer cmdutil.Sync(logger)

		if err := cfg.RequireProviders(); err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		application, cleanup, err := app.InitializeApplication(ctx, cfg, logger, nil)
		if err != nil {
			return fmt.Errorf("failed to initialize application: %w", err)
		}
		defer cleanup()

		// Jobs run detached from the signal context; Shutdown cancels them.
		if err := application.Start(context.WithoutCancel(ctx)); err != nil {
			return err
		}
		if err := application.Server.Start(); err != nil {
			return err
		}
		logger.Info("Subtitler is running", zap.String("addr", cfg.Addr()))

		var serveErr error
		select {
		case <-ctx.Done():
			logger.Info("Shutdown signal received")
		case serveErr = <-application.Server.Errors():
			logger.Error("HTTP server failed", zap.Error(serveErr))
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := application.Stop(shutdownCtx); err != nil {
			logger.Warn("Shutdown did not complete cleanly", zap.Error(err))
		}
		logger.Info("Subtitler stopped")
		return serveErr
	},
}
