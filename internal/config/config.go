// Package config loads Wugbot settings from YAML with environment overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Backends accepted in DatabaseConfig.Backend.
const (
	BackendSQLite = "sqlite"
	BackendMemory = "memory"
)

// Config holds all Wugbot configuration.
type Config struct {
	Database DatabaseConfig `yaml:"database"`
	Media    MediaConfig    `yaml:"media"`
	Index    IndexConfig    `yaml:"index"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// DatabaseConfig selects the record store.
type DatabaseConfig struct {
	Backend string `yaml:"backend"` // sqlite, memory
	DSN     string `yaml:"dsn"`     // file path or ":memory:"
}

// MediaConfig configures blob storage for recordings and documents.
type MediaConfig struct {
	Dir string `yaml:"dir"`
}

// IndexConfig configures the similar-forms index.
type IndexConfig struct {
	Dir string `yaml:"dir"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level       string `yaml:"level"` // debug, info, warn, error
	Development bool   `yaml:"development"`
}

// DefaultConfig returns the built-in settings.
func DefaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Backend: BackendSQLite,
			DSN:     "wugbot.db",
		},
		Media: MediaConfig{
			Dir: "media",
		},
		Index: IndexConfig{
			Dir: "index",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load loads configuration from a YAML file. A missing file yields the
// defaults. Environment overrides are applied either way.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
		case err != nil:
			return nil, fmt.Errorf("failed to read config: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config: %w", err)
			}
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if dsn := os.Getenv("WUGBOT_DB"); dsn != "" {
		c.Database.DSN = dsn
		if dsn == ":memory:" {
			c.Database.Backend = BackendSQLite
		}
	}
	if backend := os.Getenv("WUGBOT_BACKEND"); backend != "" {
		c.Database.Backend = backend
	}
	if dir := os.Getenv("WUGBOT_MEDIA_DIR"); dir != "" {
		c.Media.Dir = dir
	}
	if dir := os.Getenv("WUGBOT_INDEX_DIR"); dir != "" {
		c.Index.Dir = dir
	}
	if level := os.Getenv("WUGBOT_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	switch c.Database.Backend {
	case BackendSQLite:
		if c.Database.DSN == "" {
			return fmt.Errorf("database dsn is required for the %s backend", BackendSQLite)
		}
	case BackendMemory:
	default:
		return fmt.Errorf("invalid database backend: %q (valid: %s, %s)", c.Database.Backend, BackendSQLite, BackendMemory)
	}
	if c.Media.Dir == "" {
		return fmt.Errorf("media dir is required")
	}
	if c.Index.Dir == "" {
		return fmt.Errorf("index dir is required")
	}
	return nil
}
