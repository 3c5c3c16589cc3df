package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Config is the full runtime configuration, loadable from YAML with
// FAULTLINE_* environment overrides.
type Config struct {
	DBPath     string `koanf:"db_path"`
	LogLevel   string `koanf:"log_level"`
	HistoryMax int    `koanf:"history_max"`

	Backend struct {
		APIKey  string        `koanf:"api_key"` // usually via FAULTLINE_BACKEND__API_KEY
		Model   string        `koanf:"model"`
		Timeout time.Duration `koanf:"timeout"`
	} `koanf:"backend"`

	SafetyRules []string `koanf:"safety_rules"`

	Sweep struct {
		Schedule  string        `koanf:"schedule"`
		Retention time.Duration `koanf:"retention"`
		ReviewSLA time.Duration `koanf:"review_sla"`
	} `koanf:"sweep"`
}

// DefaultConfig returns the configuration used when nothing is overridden.
func DefaultConfig() *Config {
	cfg := &Config{
		DBPath:     "faultline.db",
		LogLevel:   "info",
		HistoryMax: 16,
	}
	cfg.Backend.Model = "gpt-4o-mini"
	cfg.Backend.Timeout = 20 * time.Second
	cfg.Sweep.Schedule = "0 * * * *"
	cfg.Sweep.Retention = 30 * 24 * time.Hour
	cfg.Sweep.ReviewSLA = 24 * time.Hour
	return cfg
}

// LoadConfig reads configuration from the given YAML file, then overlays
// environment variable overrides (FAULTLINE_*). Double underscores nest:
// FAULTLINE_BACKEND__MODEL → backend.model, FAULTLINE_DB_PATH → db_path.
func LoadConfig(path string) (*Config, error) {
	k := koanf.New(".")

	cfg := DefaultConfig()

	if _, err := os.Stat(path); err == nil {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("accessing config %s: %w", path, err)
	}

	if err := k.Load(env.Provider("FAULTLINE_", ".", func(s string) string {
		return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, "FAULTLINE_")), "__", ".")
	}), nil); err != nil {
		return nil, fmt.Errorf("loading env overrides: %w", err)
	}

	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for values the wiring cannot recover from.
func (c *Config) Validate() error {
	if c.DBPath == "" {
		return fmt.Errorf("db_path is required")
	}
	if c.HistoryMax < 1 {
		return fmt.Errorf("history_max must be at least 1")
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log_level %q: must be one of debug, info, warn, error", c.LogLevel)
	}
	if c.Backend.Timeout < 0 {
		return fmt.Errorf("backend.timeout must be non-negative")
	}
	return nil
}
