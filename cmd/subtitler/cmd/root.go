package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"ai-subtitler/cmd/subtitler/cmd/cmdutil"
	"ai-subtitler/cmd/subtitler/cmd/convert"
	"ai-subtitler/cmd/subtitler/cmd/jobs"
	"ai-subtitler/cmd/subtitler/cmd/serve"
	"ai-subtitler/cmd/subtitler/cmd/sweep"
	"ai-subtitler/cmd/subtitler/cmd/version"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "subtitler",
	Short: "Turn uploaded video and audio into SRT subtitles",
	Long: `Turn uploaded video and audio into SRT subtitles.

- serve runs the HTTP API with the background job queue
- convert runs a single local file through the pipeline
- jobs and sweep inspect and maintain the job database`,
	SilenceUsage:     true,
	TraverseChildren: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(serve.Cmd)
	rootCmd.AddCommand(convert.Cmd)
	rootCmd.AddCommand(jobs.Cmd)
	rootCmd.AddCommand(sweep.Cmd)
	rootCmd.AddCommand(version.Cmd)

	rootCmd.PersistentFlags().StringVarP(&cmdutil.ConfigPath, "config", "c", "", "path to a YAML config file")
	rootCmd.PersistentFlags().BoolVarP(&cmdutil.Verbose, "verbose", "V", false, "verbose output")
}
