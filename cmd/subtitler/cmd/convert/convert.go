package convert

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"ai-subtitler/cmd/subtitler/cmd/cmdutil"
	"ai-subtitler/internal/api/v1/dto"
	"ai-subtitler/internal/app"
	"ai-subtitler/internal/app/model"
	"ai-subtitler/internal/app/progress"
)

var (
	inputFile     string
	outputFile    string
	language      string
	owner         string
	preferPrimary bool
	forceProgress bool
)

func init() {
	Cmd.Flags().StringVarP(&inputFile, "input", "i", "", "video or audio file to transcribe")
	Cmd.Flags().StringVarP(&outputFile, "output", "o", "", "where to write the SRT file (default: <input>.srt)")
	Cmd.Flags().StringVarP(&language, "language", "l", "", "spoken language code (default: transcription.defaultLanguage)")
	Cmd.Flags().StringVarP(&owner, "user", "u", "cli", "owner recorded on the job")
	Cmd.Flags().BoolVar(&preferPrimary, "prefer-primary", false, "always transcribe with OpenAI")
	Cmd.Flags().BoolVar(&forceProgress, "progress", false, "show the progress bar even when stderr is not a terminal")

	Cmd.MarkFlagRequired("input")
}

// Cmd represents the convert command
var Cmd = &cobra.Command{
	Use:   "convert",
	Short: "Convert one local media file to SRT subtitles",
	Long: `Convert one local media file to SRT subtitles

- The file is copied into the upload store and recorded as a job
- Audio is extracted with ffmpeg and sent to the transcription providers
- The finished subtitles are written next to the input unless --output is set`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := cmdutil.Load()
		if err != nil {
			return err
		}
		defer cmdutil.Sync(logger)

		if err := cfg.RequireProviders(); err != nil {
			return err
		}

		lang := strings.ToLower(lo.Ternary(language == "", cfg.Transcription.DefaultLanguage, language))
		if !lo.Contains(dto.SupportedLanguages, lang) {
			return fmt.Errorf("unsupported language %q, expected one of: %s", lang, strings.Join(dto.SupportedLanguages, ", "))
		}
		if outputFile == "" {
			outputFile = strings.TrimSuffix(inputFile, filepath.Ext(inputFile)) + ".srt"
		}

		ctx := cmd.Context()
		bar := progress.New(progress.Config{Enabled: progress.ShouldShow(forceProgress)}, filepath.Base(inputFile))

		application, cleanup, err := app.InitializeApplication(ctx, cfg, logger, bar)
		if err != nil {
			bar.Close()
			return fmt.Errorf("failed to initialize application: %w", err)
		}
		defer cleanup()

		job, err := submit(ctx, application, lang)
		if err != nil {
			bar.Close()
			return err
		}

		runErr := application.Orchestrator.Run(ctx, job.ID)
		bar.Close()
		if runErr != nil {
			return fmt.Errorf("conversion failed: %w", runErr)
		}
		return writeArtifact(ctx, application, job.ID, logger)
	},
}

func submit(ctx context.Context, application *app.Application, lang string) (*model.ConversionJob, error) {
	f, err := os.Open(inputFile)
	if err != nil {
		return nil, fmt.Errorf("failed to open input: %w", err)
	}
	defer f.Close()

	ref, size, err := application.Uploads.Save(ctx, owner, filepath.Base(inputFile), f)
	if err != nil {
		return nil, err
	}

	contentType := mime.TypeByExtension(strings.ToLower(filepath.Ext(inputFile)))
	job := model.NewConversionJob(uuid.NewString(), owner, filepath.Base(inputFile), size, contentType, ref, lang)
	job.PreferPrimary = preferPrimary

	created, err := application.Repo.Create(ctx, job)
	if err != nil {
		_ = application.Uploads.Delete(ctx, ref)
		return nil, fmt.Errorf("failed to record job: %w", err)
	}
	return created, nil
}

func writeArtifact(ctx context.Context, application *app.Application, jobID string, logger *zap.Logger) error {
	job, err := application.Repo.Get(ctx, jobID)
	if err != nil {
		return err
	}
	if job.Status != model.StatusCompleted || job.DownloadURL == nil {
		return errors.New(lo.FromPtrOr(job.Error, "job did not complete"))
	}

	data, err := application.Artifacts.Get(ctx, *job.DownloadURL)
	if err != nil {
		return fmt.Errorf("failed to read subtitles: %w", err)
	}
	if err := os.WriteFile(outputFile, data, 0o644); err != nil {
		return fmt.Errorf("failed to write subtitles: %w", err)
	}

	logger.Info("Conversion finished", zap.String("job_id", jobID), zap.String("output", outputFile))
	fmt.Printf("subtitles written to %s\n", outputFile)
	return nil
}
