package main

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/srg/blesense/pkg/config"
)

// loadConfig reads --config and applies the global flag overrides on top of it.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	if timeout, _ := cmd.Flags().GetDuration("timeout"); timeout > 0 {
		cfg.Monitor.StepTimeout = timeout
	}
	if cmd.Flags().Changed("heart-rate") {
		cfg.Monitor.HeartRate, _ = cmd.Flags().GetBool("heart-rate")
	}
	return cfg, cfg.Validate()
}

// configureLogger creates a logger writing to the command's stderr.
// --log-level takes precedence over the configured level.
func configureLogger(cmd *cobra.Command, cfg *config.Config) (*logrus.Logger, error) {
	logLevel := cfg.LogLevel

	if logLevelStr, _ := cmd.Flags().GetString("log-level"); logLevelStr != "" {
		switch logLevelStr {
		case "debug":
			logLevel = logrus.DebugLevel
		case "info":
			logLevel = logrus.InfoLevel
		case "warn":
			logLevel = logrus.WarnLevel
		case "error":
			logLevel = logrus.ErrorLevel
		default:
			return nil, fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", logLevelStr)
		}
	}

	logger := logrus.New()
	logger.SetOutput(cmd.ErrOrStderr())
	logger.SetLevel(logLevel)
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})
	return logger, nil
}
