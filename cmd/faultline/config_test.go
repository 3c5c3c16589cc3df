package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "faultline.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "faultline.db", cfg.DBPath)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 16, cfg.HistoryMax)
	assert.Equal(t, "gpt-4o-mini", cfg.Backend.Model)
	assert.Equal(t, 20*time.Second, cfg.Backend.Timeout)
	assert.Equal(t, "0 * * * *", cfg.Sweep.Schedule)
	assert.Equal(t, 24*time.Hour, cfg.Sweep.ReviewSLA)
	assert.Empty(t, cfg.Backend.APIKey)
}

func TestLoadConfigFromFile(t *testing.T) {
	path := writeConfigFile(t, `
db_path: /var/lib/faultline/data.db
log_level: debug
history_max: 32
backend:
  model: gpt-4o
  timeout: 45s
safety_rules:
  - indexOf(query, "carbon monoxide") >= 0
sweep:
  schedule: "*/30 * * * *"
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/faultline/data.db", cfg.DBPath)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 32, cfg.HistoryMax)
	assert.Equal(t, "gpt-4o", cfg.Backend.Model)
	assert.Equal(t, 45*time.Second, cfg.Backend.Timeout)
	require.Len(t, cfg.SafetyRules, 1)
	assert.Equal(t, "*/30 * * * *", cfg.Sweep.Schedule)

	// Keys absent from the file keep their defaults.
	assert.Equal(t, 30*24*time.Hour, cfg.Sweep.Retention)
}

func TestLoadConfigEnvOverridesFile(t *testing.T) {
	path := writeConfigFile(t, `
log_level: debug
backend:
  model: gpt-4o
`)
	t.Setenv("FAULTLINE_LOG_LEVEL", "warn")
	t.Setenv("FAULTLINE_BACKEND__MODEL", "gpt-4o-mini")
	t.Setenv("FAULTLINE_BACKEND__API_KEY", "sk-test")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "warn", cfg.LogLevel)
	assert.Equal(t, "gpt-4o-mini", cfg.Backend.Model)
	assert.Equal(t, "sk-test", cfg.Backend.APIKey)
}

func TestLoadConfigRejectsMalformedYAML(t *testing.T) {
	path := writeConfigFile(t, "db_path: [unclosed\n")
	_, err := LoadConfig(path)
	require.Error(t, err)
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty db_path", func(c *Config) { c.DBPath = "" }},
		{"zero history_max", func(c *Config) { c.HistoryMax = 0 }},
		{"unknown log_level", func(c *Config) { c.LogLevel = "verbose" }},
		{"negative timeout", func(c *Config) { c.Backend.Timeout = -time.Second }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			require.Error(t, cfg.Validate())
		})
	}

	require.NoError(t, DefaultConfig().Validate())
}
