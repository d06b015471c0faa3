// Package cmdutil holds the state and helpers shared by subtitler commands.
package cmdutil

import (
	"fmt"

	"go.uber.org/zap"

	"ai-subtitler/internal/app/common"
	"ai-subtitler/internal/config"
)

var (
	// ConfigPath is bound to the persistent --config flag.
	ConfigPath string
	// Verbose is bound to the persistent --verbose flag.
	Verbose bool
)

// Load reads .env, the config file and the environment, and builds a logger.
// Verbose forces the development logger.
func Load() (*config.Config, *zap.Logger, error) {
	envFile, err := config.LoadEnv()
	if err != nil {
		return nil, nil, err
	}

	cfg, err := config.Load(ConfigPath)
	if err != nil {
		return nil, nil, err
	}

	logger, err := common.NewLogger(cfg.Log.Development || Verbose)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to build logger: %w", err)
	}
	if envFile != "" {
		logger.Debug("Loaded environment file", zap.String("path", envFile))
	}
	return cfg, logger, nil
}

// Sync flushes the logger, ignoring the error stderr returns on some platforms.
func Sync(logger *zap.Logger) {
	_ = logger.Sync()
}
