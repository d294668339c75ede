// Package config loads tool configuration from YAML.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Backend names a store adapter.
type Backend string

const (
	// BackendMemory keeps records in process memory. Nothing survives
	// the process; intended for tests and one-shot runs.
	BackendMemory Backend = "memory"

	// BackendSQLite persists records in a SQLite database file.
	BackendSQLite Backend = "sqlite"
)

// Config is the tool configuration.
type Config struct {
	// Store selects the store backend.
	Store Backend `yaml:"store"`

	// DatabasePath is the SQLite database file. Ignored for the
	// memory backend.
	DatabasePath string `yaml:"database_path"`

	// TaxonomyDir points at the CUE sub-type declarations. Empty
	// disables taxonomy warnings.
	TaxonomyDir string `yaml:"taxonomy_dir"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Store:        BackendSQLite,
		DatabasePath: "intelgraph.db",
		LogLevel:     "info",
	}
}

// Load reads a YAML config file and merges it over the defaults.
// A missing path returns the defaults unchanged.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("reading config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config %s: %w", path, err)
	}
	if err := cfg.validate(); err != nil {
		return cfg, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

func (c Config) validate() error {
	switch c.Store {
	case BackendMemory, BackendSQLite:
	default:
		return fmt.Errorf("unknown store backend %q", c.Store)
	}
	switch c.LogLevel {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log level %q", c.LogLevel)
	}
	if c.Store == BackendSQLite && c.DatabasePath == "" {
		return fmt.Errorf("sqlite backend needs database_path")
	}
	return nil
}
