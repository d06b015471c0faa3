package jobs

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"ai-subtitler/cmd/subtitler/cmd/cmdutil"
	"ai-subtitler/internal/api/v1/services"
	"ai-subtitler/internal/app"
	"ai-subtitler/internal/app/export"
	"ai-subtitler/internal/app/model"
	"ai-subtitler/internal/app/progress"
	"ai-subtitler/internal/app/queue"
)

// inlineQueue collects admitted ids so the command can run them itself.
type inlineQueue struct {
	ids []string
}

func (q *inlineQueue) Enqueue(_ context.Context, id string) (queue.Admission, error) {
	q.ids = append(q.ids, id)
	return queue.Admitted, nil
}

func (q *inlineQueue) Stats() queue.Stats {
	return queue.Stats{Pending: len(q.ids)}
}

func jobService(application *app.Application, q services.Enqueuer) services.JobService {
	return services.NewJobService(
		application.Repo,
		application.Uploads,
		application.Artifacts,
		q,
		application.Config.Server.MaxUploadBytes,
		application.Logger,
	)
}

var retryCmd = &cobra.Command{
	Use:   "retry <job-id>",
	Short: "Retry a failed job in this process",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := cmdutil.Load()
		if err != nil {
			return err
		}
		defer cmdutil.Sync(logger)

		if err := cfg.RequireProviders(); err != nil {
			return err
		}

		ctx := cmd.Context()
		bar := progress.New(progress.Config{Enabled: progress.ShouldShow(false)}, args[0])
		application, cleanup, err := app.InitializeApplication(ctx, cfg, logger, bar)
		if err != nil {
			bar.Close()
			return err
		}
		defer cleanup()

		q := &inlineQueue{}
		if _, err := jobService(application, q).Retry(ctx, owner, args[0]); err != nil {
			bar.Close()
			return err
		}
		for _, id := range q.ids {
			if err := application.Orchestrator.Run(ctx, id); err != nil {
				bar.Close()
				return fmt.Errorf("retry failed: %w", err)
			}
		}
		bar.Close()

		job, err := application.Repo.Get(ctx, args[0])
		if err != nil {
			return err
		}
		fmt.Printf("job %s is %s\n", job.ID, job.Status)
		return nil
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete <job-id>",
	Short: "Delete a job and its uploaded source",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := cmdutil.Load()
		if err != nil {
			return err
		}
		defer cmdutil.Sync(logger)

		application, cleanup, err := app.InitializeApplication(cmd.Context(), cfg, logger, nil)
		if err != nil {
			return err
		}
		defer cleanup()

		if err := jobService(application, &inlineQueue{}).Delete(cmd.Context(), owner, args[0]); err != nil {
			return err
		}
		fmt.Printf("job %s deleted\n", args[0])
		return nil
	},
}

var exportFile string

func init() {
	exportCmd.Flags().StringVarP(&exportFile, "output", "o", "", "xlsx file to write")
	exportCmd.MarkFlagRequired("output")
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export a user's jobs to excel",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := cmdutil.Load()
		if err != nil {
			return err
		}
		defer cmdutil.Sync(logger)

		repo, cleanup, err := app.InitializeRepository(cmd.Context(), cfg, logger)
		if err != nil {
			return err
		}
		defer cleanup()

		var all []*model.ConversionJob
		const pageSize = 500
		for off := 0; ; off += pageSize {
			page, err := repo.ListByOwner(cmd.Context(), owner, model.JobFilter{Limit: pageSize, Offset: off})
			if err != nil {
				return err
			}
			all = append(all, page...)
			if len(page) < pageSize {
				break
			}
		}

		if err := export.ToExcel(all, exportFile); err != nil {
			return err
		}
		abs, _ := filepath.Abs(exportFile)
		fmt.Printf("exported %d jobs to %s\n", len(all), abs)
		return nil
	},
}
