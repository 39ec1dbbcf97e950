package config

import (
	"fmt"
	"os"
	"time"

	"github.com/mcuadros/go-defaults"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Config holds application configuration
type Config struct {
	LogLevel logrus.Level   `yaml:"log_level" json:"log_level"`
	Monitor  MonitorConfig  `yaml:"monitor" json:"monitor"`
	Platform PlatformConfig `yaml:"platform" json:"platform"`
}

// MonitorConfig tunes the sensor session.
type MonitorConfig struct {
	// StepTimeout bounds every platform round trip (open, discovery, descriptor writes, reads).
	StepTimeout time.Duration `yaml:"step_timeout" json:"step_timeout" default:"10s"`

	// HeartRate additionally subscribes to the Heart Rate Measurement characteristic.
	HeartRate bool `yaml:"heart_rate" json:"heart_rate" default:"false"`

	// RollbackPartialSetup tears the whole session down when humidity setup fails
	// after temperature setup succeeded. When false the temperature subscription
	// stays live until Disconnect.
	RollbackPartialSetup bool `yaml:"rollback_partial_setup" json:"rollback_partial_setup" default:"false"`

	// NotificationBuffer is the number of undelivered notifications kept before the oldest is dropped.
	NotificationBuffer int `yaml:"notification_buffer" json:"notification_buffer" default:"64"`
}

// PlatformConfig selects how the host BLE stack is reached.
type PlatformConfig struct {
	// Adapter is the BlueZ adapter used for pairing-state introspection on Linux.
	Adapter string `yaml:"adapter" json:"adapter" default:"hci0"`

	// PairingCheck is one of "auto", "bluez" or "none". "auto" asks BlueZ when it
	// is reachable and assumes the device is paired otherwise.
	PairingCheck string `yaml:"pairing_check" json:"pairing_check" default:"auto"`
}

// DefaultConfig returns default configuration values
func DefaultConfig() *Config {
	cfg := &Config{}
	defaults.SetDefaults(cfg)
	cfg.LogLevel = logrus.InfoLevel
	return cfg
}

// Load reads a YAML configuration file on top of the defaults. An empty path
// returns the defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if c.Monitor.StepTimeout <= 0 {
		return fmt.Errorf("monitor.step_timeout must be positive, got %s", c.Monitor.StepTimeout)
	}
	if c.Monitor.NotificationBuffer <= 0 {
		return fmt.Errorf("monitor.notification_buffer must be positive, got %d", c.Monitor.NotificationBuffer)
	}
	switch c.Platform.PairingCheck {
	case "auto", "bluez", "none":
	default:
		return fmt.Errorf("platform.pairing_check must be auto, bluez or none, got %q", c.Platform.PairingCheck)
	}
	return nil
}

// NewLogger creates a configured logger instance
func (c *Config) NewLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(c.LogLevel)

	// Use structured logging format
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})

	return logger
}
