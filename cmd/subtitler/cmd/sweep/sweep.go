package sweep

import (
	"fmt"

	"github.com/spf13/cobra"

	"ai-subtitler/cmd/subtitler/cmd/cmdutil"
	"ai-subtitler/internal/app"
)

// Cmd represents the sweep command
var Cmd = &cobra.Command{
	Use:   "sweep",
	Short: "Run the retention sweep and stale job reaper once",
	Long: `Run the retention sweep and stale job reaper once

- Completed and failed jobs older than retention.maxAge are deleted
- Jobs stuck in processing longer than retention.staleAfter are marked failed`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := cmdutil.Load()
		if err != nil {
			return err
		}
		defer cmdutil.Sync(logger)

		lane, cleanup, err := app.InitializeMaintenance(cmd.Context(), cfg, logger)
		if err != nil {
			return err
		}
		defer cleanup()

		result, err := lane.RunOnce(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Printf("swept %d expired jobs, reaped %d stale jobs\n", result.Swept, result.Reaped)
		return nil
	},
}
