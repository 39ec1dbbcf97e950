package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.NotNil(t, cfg)
	assert.Equal(t, logrus.InfoLevel, cfg.LogLevel)
	assert.Equal(t, 10*time.Second, cfg.Monitor.StepTimeout)
	assert.False(t, cfg.Monitor.HeartRate)
	assert.False(t, cfg.Monitor.RollbackPartialSetup)
	assert.Equal(t, 64, cfg.Monitor.NotificationBuffer)
	assert.Equal(t, "hci0", cfg.Platform.Adapter)
	assert.Equal(t, "auto", cfg.Platform.PairingCheck)
	assert.NoError(t, cfg.Validate())
}

func TestLoad(t *testing.T) {
	t.Run("empty path returns defaults", func(t *testing.T) {
		cfg, err := Load("")
		require.NoError(t, err)
		assert.Equal(t, DefaultConfig(), cfg)
	})

	t.Run("file overrides defaults", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "blesense.yaml")
		require.NoError(t, os.WriteFile(path, []byte(`
log_level: debug
monitor:
  step_timeout: 3s
  heart_rate: true
platform:
  pairing_check: none
`), 0o600))

		cfg, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, logrus.DebugLevel, cfg.LogLevel)
		assert.Equal(t, 3*time.Second, cfg.Monitor.StepTimeout)
		assert.True(t, cfg.Monitor.HeartRate)
		assert.Equal(t, 64, cfg.Monitor.NotificationBuffer, "unset fields MUST keep defaults")
		assert.Equal(t, "none", cfg.Platform.PairingCheck)
		assert.Equal(t, "hci0", cfg.Platform.Adapter)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
		assert.Error(t, err)
	})

	t.Run("invalid values", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "bad.yaml")
		require.NoError(t, os.WriteFile(path, []byte("platform:\n  pairing_check: sometimes\n"), 0o600))

		_, err := Load(path)
		assert.ErrorContains(t, err, "pairing_check")
	})
}

func TestConfig_NewLogger(t *testing.T) {
	tests := []struct {
		name     string
		logLevel logrus.Level
	}{
		{
			name:     "creates logger with debug level",
			logLevel: logrus.DebugLevel,
		},
		{
			name:     "creates logger with info level",
			logLevel: logrus.InfoLevel,
		},
		{
			name:     "creates logger with warn level",
			logLevel: logrus.WarnLevel,
		},
		{
			name:     "creates logger with error level",
			logLevel: logrus.ErrorLevel,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{
				LogLevel: tt.logLevel,
			}

			logger := cfg.NewLogger()

			assert.NotNil(t, logger)
			assert.Equal(t, tt.logLevel, logger.GetLevel())

			// Verify formatter is set correctly
			formatter, ok := logger.Formatter.(*logrus.TextFormatter)
			assert.True(t, ok)
			assert.True(t, formatter.FullTimestamp)
			assert.Equal(t, time.RFC3339, formatter.TimestampFormat)
		})
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"defaults are valid", func(*Config) {}, ""},
		{"zero step timeout", func(c *Config) { c.Monitor.StepTimeout = 0 }, "step_timeout"},
		{"negative buffer", func(c *Config) { c.Monitor.NotificationBuffer = -1 }, "notification_buffer"},
		{"bluez pairing check", func(c *Config) { c.Platform.PairingCheck = "bluez" }, ""},
		{"unknown pairing check", func(c *Config) { c.Platform.PairingCheck = "maybe" }, "pairing_check"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestConfig_ZeroValues(t *testing.T) {
	cfg := &Config{}

	// Test that zero values don't cause panics
	logger := cfg.NewLogger()
	assert.NotNil(t, logger)

	// Zero log level should default to PanicLevel (0)
	assert.Equal(t, logrus.PanicLevel, logger.GetLevel())
	assert.Error(t, cfg.Validate(), "zero config MUST not validate")
}

func BenchmarkDefaultConfig(b *testing.B) {
	for i := 0; i < b.N; i++ {
		_ = DefaultConfig()
	}
}

func BenchmarkConfig_NewLogger(b *testing.B) {
	cfg := DefaultConfig()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = cfg.NewLogger()
	}
}
