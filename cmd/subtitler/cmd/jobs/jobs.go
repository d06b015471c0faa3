package jobs

import (
	"fmt"
	"strconv"
	"time"

	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"ai-subtitler/cmd/subtitler/cmd/cmdutil"
	"ai-subtitler/internal/app"
	"ai-subtitler/internal/app/model"
)

var (
	owner  string
	status string
	limit  int
	offset int
)

func init() {
	Cmd.PersistentFlags().StringVarP(&owner, "user", "u", "", "owner whose jobs are addressed")
	Cmd.MarkPersistentFlagRequired("user")

	listCmd.Flags().StringVarP(&status, "status", "s", "", "only show jobs in this status")
	listCmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum number of jobs to show")
	listCmd.Flags().IntVar(&offset, "offset", 0, "number of jobs to skip")

	Cmd.AddCommand(listCmd, retryCmd, deleteCmd, exportCmd)
}

// Cmd groups the job inspection commands.
var Cmd = &cobra.Command{
	Use:   "jobs",
	Short: "Inspect and manage conversion jobs",
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List a user's jobs, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		filter := model.JobFilter{Status: model.JobStatus(status), Limit: limit, Offset: offset}
		if status != "" && !filter.Status.IsValid() {
			return fmt.Errorf("unknown status %q", status)
		}

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

		jobs, err := repo.ListByOwner(cmd.Context(), owner, filter)
		if err != nil {
			return err
		}
		total, err := repo.CountByOwner(cmd.Context(), owner, filter.Status)
		if err != nil {
			return err
		}

		if len(jobs) == 0 {
			fmt.Println("No jobs found")
			return nil
		}
		fmt.Println(renderJobs(jobs))
		fmt.Printf("showing %d of %d\n", len(jobs), total)
		return nil
	},
}

func renderJobs(jobs []*model.ConversionJob) string {
	rows := lo.Map(jobs, func(j *model.ConversionJob, _ int) []string {
		return []string{
			j.ID,
			j.FileName,
			j.Language,
			string(j.Status),
			strconv.Itoa(j.Progress) + "%",
			j.CreatedAt.Local().Format(time.DateTime),
			lo.FromPtr(j.Error),
		}
	})
	return cmdutil.RenderTable(
		[]string{"ID", "File", "Lang", "Status", "Progress", "Created", "Error"},
		rows,
		[]cmdutil.ColumnAlignment{
			cmdutil.AlignLeft, cmdutil.AlignLeft, cmdutil.AlignLeft, cmdutil.AlignLeft,
			cmdutil.AlignRight, cmdutil.AlignLeft, cmdutil.AlignLeft,
		},
	)
}
