package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"codeberg.org/mutker/coherentd/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func resetArgs(t *testing.T) {
	t.Helper()
	oldArgs := os.Args
	os.Args = []string{"coherentd"}
	t.Cleanup(func() { os.Args = oldArgs })
}

func TestLoad(t *testing.T) {
	resetArgs(t)

	configContent := []byte(`
domains = ["compute", "io"]
pulse_rate = 500.0
interval = 5
listen = ":8080"
monitor = false
log_level = "debug"
telemetry = true
database = "/path/to/telemetry.db"
`)
	configPath := filepath.Join(t.TempDir(), "coherentd.toml")
	err := os.WriteFile(configPath, configContent, 0o600)
	require.NoError(t, err)

	t.Setenv("COHERENTD_CONFIG", configPath)

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, []string{"compute", "io"}, cfg.Domains)
	assert.InDelta(t, 500.0, cfg.PulseRate, 1e-9)
	assert.Equal(t, 5, cfg.Interval)
	assert.Equal(t, ":8080", cfg.Listen)
	assert.False(t, cfg.Monitor)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.True(t, cfg.Telemetry)
	assert.Equal(t, "/path/to/telemetry.db", cfg.TelemetryDB)
}

func TestLoadDefaults(t *testing.T) {
	resetArgs(t)
	t.Setenv("COHERENTD_CONFIG", "")

	cfg, err := config.Load()
	require.NoError(t, err, "Failed to load config")

	assert.Equal(t, []string{"compute", "memory", "io", "net"}, cfg.Domains)
	assert.InDelta(t, config.DefaultPulseRate, cfg.PulseRate, 1e-9)
	assert.InDelta(t, config.DefaultRetention, cfg.Retention, 1e-9)
	assert.InDelta(t, config.DefaultCeiling, cfg.Ceiling, 1e-9)
	assert.InDelta(t, config.DefaultThreshold, cfg.Threshold, 1e-9)
	assert.Equal(t, config.DefaultInterval, cfg.Interval)
	assert.Equal(t, config.DefaultListen, cfg.Listen)
	assert.Equal(t, config.DefaultLogLevel, cfg.LogLevel)
	assert.False(t, cfg.Telemetry)
	assert.False(t, cfg.Monitor)
}

func TestLoadConfigFileInvalidFormat(t *testing.T) {
	resetArgs(t)

	configContent := []byte(`
This is not a valid TOML file
`)
	configPath := filepath.Join(t.TempDir(), "coherentd.toml")
	err := os.WriteFile(configPath, configContent, 0o600)
	require.NoError(t, err)

	t.Setenv("COHERENTD_CONFIG", configPath)

	_, err = config.Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Failed to read config file")
}

func TestInvalidLogLevel(t *testing.T) {
	resetArgs(t)

	configContent := []byte(`
log_level = "invalid"
`)
	configPath := filepath.Join(t.TempDir(), "coherentd.toml")
	err := os.WriteFile(configPath, configContent, 0o600)
	require.NoError(t, err)

	t.Setenv("COHERENTD_CONFIG", configPath)

	_, err = config.Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Invalid log level")
}

func TestInvalidPulseRate(t *testing.T) {
	resetArgs(t)

	configContent := []byte(`
pulse_rate = -10.0
`)
	configPath := filepath.Join(t.TempDir(), "coherentd.toml")
	err := os.WriteFile(configPath, configContent, 0o600)
	require.NoError(t, err)

	t.Setenv("COHERENTD_CONFIG", configPath)

	_, err = config.Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Invalid pulse rate")
}

func TestEmptyDomains(t *testing.T) {
	resetArgs(t)

	configContent := []byte(`
domains = []
`)
	configPath := filepath.Join(t.TempDir(), "coherentd.toml")
	err := os.WriteFile(configPath, configContent, 0o600)
	require.NoError(t, err)

	t.Setenv("COHERENTD_CONFIG", configPath)

	_, err = config.Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Invalid domain list")
}

func TestLogLevelFlag(t *testing.T) {
	oldArgs := os.Args
	defer func() { os.Args = oldArgs }()
	os.Args = []string{"coherentd", "--log-level", "debug"}

	t.Setenv("COHERENTD_CONFIG", "")

	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.LogLevel, "Expected LogLevel to be set by flag")
}
