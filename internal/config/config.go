// Manages the localdb.yaml configuration file.

// Package config loads and saves the localdb configuration.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// FileName is the name of the configuration file in the data directory.
const FileName = "localdb.yaml"

// Config stores the settings of the localdb command.
// Loaded from localdb.yaml, created with defaults if missing.
type Config struct {
	// DataDir holds the table files. Relative paths are resolved against the
	// directory of the configuration file.
	DataDir string `yaml:"data_dir"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level"`

	// ResetCorrupt starts a table empty when its file can't be decoded
	// instead of failing.
	ResetCorrupt bool `yaml:"reset_corrupt"`

	// Git records every change to the data directory as a git commit.
	Git GitConfig `yaml:"git"`

	// Watch configures the watch command.
	Watch WatchConfig `yaml:"watch"`
}

// GitConfig configures the git history of the data directory.
type GitConfig struct {
	Enabled bool   `yaml:"enabled"`
	Author  string `yaml:"author"`
	Email   string `yaml:"email"`
}

// Validate checks that the author is set when history is enabled.
func (g *GitConfig) Validate() error {
	if !g.Enabled {
		return nil
	}
	if g.Author == "" {
		return errors.New("author is required")
	}
	if g.Email == "" {
		return errors.New("email is required")
	}
	return nil
}

// WatchConfig configures the watch command.
type WatchConfig struct {
	// ChecksPerSecond limits how often one table file is validated while it
	// keeps changing. 0 means unlimited.
	ChecksPerSecond float64 `yaml:"checks_per_second"`

	// Burst is the number of checks allowed at once.
	Burst int `yaml:"burst"`
}

// Validate checks that the values are non-negative.
func (w *WatchConfig) Validate() error {
	if w.ChecksPerSecond < 0 {
		return errors.New("checks_per_second must be non-negative")
	}
	if w.Burst < 0 {
		return errors.New("burst must be non-negative")
	}
	return nil
}

// Default returns the default configuration.
func Default() Config {
	return Config{
		DataDir:  ".",
		LogLevel: "info",
		Git: GitConfig{
			Author: "localdb",
			Email:  "localdb@localhost",
		},
		Watch: WatchConfig{
			ChecksPerSecond: 2,
			Burst:           4,
		},
	}
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return errors.New("data_dir is required")
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	if err := c.Git.Validate(); err != nil {
		return fmt.Errorf("git: %w", err)
	}
	if err := c.Watch.Validate(); err != nil {
		return fmt.Errorf("watch: %w", err)
	}
	return nil
}

// Level parses LogLevel.
func (c *Config) Level() (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("invalid log_level %q: %w", c.LogLevel, err)
	}
	return l, nil
}

// ResolveDataDir returns DataDir, made absolute relative to the directory of
// the configuration file at path.
func (c *Config) ResolveDataDir(path string) string {
	if filepath.IsAbs(c.DataDir) {
		return c.DataDir
	}
	return filepath.Join(filepath.Dir(path), c.DataDir)
}

// Load loads the configuration from path.
// Creates the file with defaults if it doesn't exist.
func Load(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path) //nolint:gosec // G304: path is provided by the operator
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil { //nolint:gosec // G301: 0o755 is intentional for data directories
			return nil, fmt.Errorf("failed to create config directory: %w", err)
		}
		if err := cfg.Save(path); err != nil {
			return nil, err
		}
		return &cfg, nil
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid %s: %w", path, err)
	}
	return &cfg, nil
}

// Save saves the configuration to path.
func (c *Config) Save(path string) error {
	if err := c.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
