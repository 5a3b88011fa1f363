// Copyright 2026 The Corkboard Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"

	"gopkg.in/yaml.v3"
)

// Config is the master configuration for Corkboard.
type Config struct {
	// Matrix configures the homeserver connection.
	Matrix MatrixConfig `yaml:"matrix"`

	// Paths configures directory locations.
	Paths PathsConfig `yaml:"paths"`

	// Log configures the rotating log file.
	Log LogConfig `yaml:"log"`
}

// MatrixConfig configures the homeserver connection and credentials.
type MatrixConfig struct {
	// HomeserverURL is the base URL of the Matrix homeserver
	// (e.g., "https://matrix.example.com"). Required.
	HomeserverURL string `yaml:"homeserver_url"`

	// ServerName is the Matrix server name used in m.space.child
	// "via" hints and for constructing user IDs
	// (e.g., "example.com"). Required.
	ServerName string `yaml:"server_name"`

	// UserID is the full Matrix user ID to operate as
	// (e.g., "@alice:example.com"). Required.
	UserID string `yaml:"user_id"`

	// AccessTokenFile is the path to a file containing the access
	// token for UserID, or "-" to read the token from stdin.
	// Tokens never appear in the config file itself or on the
	// command line.
	AccessTokenFile string `yaml:"access_token_file"`
}

// PathsConfig configures directory locations.
type PathsConfig struct {
	// Data is the base directory for Corkboard state. The
	// relationship cache document lives here.
	Data string `yaml:"data"`
}

// LogConfig configures the rotating log file written alongside
// structured stderr output.
type LogConfig struct {
	// File is the log file path. Empty disables file logging
	// (stderr only).
	File string `yaml:"file"`

	// MaxSizeMB is the size in megabytes at which the log file is
	// rotated. Default: 10.
	MaxSizeMB int `yaml:"max_size_mb"`

	// MaxBackups is the number of rotated files to retain.
	// Default: 3.
	MaxBackups int `yaml:"max_backups"`

	// MaxAgeDays is the number of days to retain rotated files.
	// Default: 28.
	MaxAgeDays int `yaml:"max_age_days"`

	// Level is the minimum log level: debug, info, warn, or error.
	// Default: info.
	Level string `yaml:"level"`
}

// Default returns the default configuration. These defaults are used
// as a base before loading the config file. They exist primarily to
// ensure all fields have sensible zero-values, not as a fallback: the
// config file is required.
func Default() *Config {
	homeDir, _ := os.UserHomeDir()
	defaultData := filepath.Join(homeDir, ".local", "share", "corkboard")

	return &Config{
		Paths: PathsConfig{
			Data: defaultData,
		},
		Log: LogConfig{
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 28,
			Level:      "info",
		},
	}
}

// Load loads configuration from the CORKBOARD_CONFIG environment
// variable.
//
// This is the only way to load configuration without an explicit
// path. There are no fallbacks or defaults: if CORKBOARD_CONFIG is
// not set, this fails. This ensures deterministic, auditable
// configuration with no hidden overrides.
func Load() (*Config, error) {
	configPath := os.Getenv("CORKBOARD_CONFIG")
	if configPath == "" {
		return nil, fmt.Errorf("CORKBOARD_CONFIG environment variable not set; " +
			"set it to the path of your corkboard.yaml config file, or use --config flag")
	}

	return LoadFile(configPath)
}

// LoadFile loads configuration from a specific file path.
//
// The config file is the single source of truth. Environment
// variables do not override config values. The only expansion
// performed is ${HOME} and similar path variables for portability.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	cfg.expandVariables()

	return cfg, nil
}

// expandVariables expands ${VAR} and ${VAR:-default} patterns in
// path fields.
func (c *Config) expandVariables() {
	vars := map[string]string{
		"CORKBOARD_DATA": c.Paths.Data,
		"HOME":           os.Getenv("HOME"),
	}

	c.Paths.Data = expandVars(c.Paths.Data, vars)
	vars["CORKBOARD_DATA"] = c.Paths.Data // Update for dependent paths.

	c.Matrix.AccessTokenFile = expandVars(c.Matrix.AccessTokenFile, vars)
	c.Log.File = expandVars(c.Log.File, vars)
}

// varPattern matches ${VAR} and ${VAR:-default}.
var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		name := parts[1]
		defaultValue := ""
		if len(parts) >= 3 {
			defaultValue = parts[2]
		}

		// Check provided vars first, then environment.
		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	if c.Matrix.HomeserverURL == "" {
		errs = append(errs, fmt.Errorf("matrix.homeserver_url is required"))
	} else if parsed, err := url.Parse(c.Matrix.HomeserverURL); err != nil || parsed.Scheme == "" || parsed.Host == "" {
		errs = append(errs, fmt.Errorf("matrix.homeserver_url %q is not an absolute URL", c.Matrix.HomeserverURL))
	}

	if c.Matrix.ServerName == "" {
		errs = append(errs, fmt.Errorf("matrix.server_name is required"))
	}

	if c.Matrix.UserID == "" {
		errs = append(errs, fmt.Errorf("matrix.user_id is required"))
	}

	if c.Matrix.AccessTokenFile == "" {
		errs = append(errs, fmt.Errorf("matrix.access_token_file is required"))
	}

	if c.Paths.Data == "" {
		errs = append(errs, fmt.Errorf("paths.data is required"))
	}

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log.level must be one of: debug, info, warn, error"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// CachePath returns the path of the relationship cache document
// inside the data directory.
func (c *Config) CachePath() string {
	return filepath.Join(c.Paths.Data, "kanban_cache.json")
}

// EnsurePaths creates the data directory if it doesn't exist.
func (c *Config) EnsurePaths() error {
	if c.Paths.Data == "" {
		return nil
	}
	if err := os.MkdirAll(c.Paths.Data, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", c.Paths.Data, err)
	}
	return nil
}
