// Copyright 2026 The Corkboard Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// validConfig fills in the required Matrix fields so Validate passes.
func validConfig() *Config {
	cfg := Default()
	cfg.Matrix.HomeserverURL = "https://matrix.example.com"
	cfg.Matrix.ServerName = "example.com"
	cfg.Matrix.UserID = "@alice:example.com"
	cfg.Matrix.AccessTokenFile = "/secrets/token"
	return cfg
}

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Log.MaxSizeMB != 10 {
		t.Errorf("expected max_size_mb=10, got %d", cfg.Log.MaxSizeMB)
	}
	if cfg.Log.Level != "info" {
		t.Errorf("expected level=info, got %s", cfg.Log.Level)
	}
	if cfg.Paths.Data == "" {
		t.Error("expected non-empty default data directory")
	}
}

func TestLoad_RequiresCorkboardConfig(t *testing.T) {
	origConfig := os.Getenv("CORKBOARD_CONFIG")
	defer os.Setenv("CORKBOARD_CONFIG", origConfig)

	os.Unsetenv("CORKBOARD_CONFIG")

	_, err := Load()
	if err == nil {
		t.Fatal("expected error when CORKBOARD_CONFIG not set, got nil")
	}
	if !strings.Contains(err.Error(), "CORKBOARD_CONFIG environment variable not set") {
		t.Errorf("unexpected error message: %v", err)
	}
}

func TestLoadFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "corkboard.yaml")

	configContent := `
matrix:
  homeserver_url: https://matrix.example.com
  server_name: example.com
  user_id: "@alice:example.com"
  access_token_file: /secrets/token

paths:
  data: /custom/data

log:
  file: /var/log/corkboard.log
  max_backups: 7
  level: debug
`
	if err := os.WriteFile(configPath, []byte(configContent), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := LoadFile(configPath)
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}

	if cfg.Matrix.HomeserverURL != "https://matrix.example.com" {
		t.Errorf("homeserver_url = %s", cfg.Matrix.HomeserverURL)
	}
	if cfg.Matrix.UserID != "@alice:example.com" {
		t.Errorf("user_id = %s", cfg.Matrix.UserID)
	}
	if cfg.Paths.Data != "/custom/data" {
		t.Errorf("data = %s", cfg.Paths.Data)
	}
	if cfg.Log.MaxBackups != 7 {
		t.Errorf("max_backups = %d, want 7", cfg.Log.MaxBackups)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("level = %s, want debug", cfg.Log.Level)
	}
	// Unset fields keep their defaults.
	if cfg.Log.MaxSizeMB != 10 {
		t.Errorf("max_size_mb = %d, want default 10", cfg.Log.MaxSizeMB)
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate on loaded config: %v", err)
	}
}

func TestLoadFileExpandsHome(t *testing.T) {
	origHome := os.Getenv("HOME")
	defer os.Setenv("HOME", origHome)
	os.Setenv("HOME", "/home/tester")

	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "corkboard.yaml")

	configContent := `
matrix:
  homeserver_url: https://matrix.example.com
  server_name: example.com
  user_id: "@alice:example.com"
  access_token_file: ${HOME}/.config/corkboard/token
paths:
  data: ${HOME}/corkboard
log:
  file: ${CORKBOARD_DATA}/corkboard.log
`
	if err := os.WriteFile(configPath, []byte(configContent), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := LoadFile(configPath)
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}

	if cfg.Paths.Data != "/home/tester/corkboard" {
		t.Errorf("data = %s, want /home/tester/corkboard", cfg.Paths.Data)
	}
	if cfg.Matrix.AccessTokenFile != "/home/tester/.config/corkboard/token" {
		t.Errorf("access_token_file = %s", cfg.Matrix.AccessTokenFile)
	}
	if cfg.Log.File != "/home/tester/corkboard/corkboard.log" {
		t.Errorf("log file = %s, want data-relative path", cfg.Log.File)
	}
}

func TestExpandVars(t *testing.T) {
	tests := []struct {
		input    string
		vars     map[string]string
		expected string
	}{
		{
			input:    "${HOME}/corkboard",
			vars:     map[string]string{"HOME": "/home/user"},
			expected: "/home/user/corkboard",
		},
		{
			input:    "${MISSING:-default}",
			vars:     map[string]string{},
			expected: "default",
		},
		{
			input:    "${PRESENT:-default}",
			vars:     map[string]string{"PRESENT": "value"},
			expected: "value",
		},
		{
			input:    "${A}/${B}",
			vars:     map[string]string{"A": "first", "B": "second"},
			expected: "first/second",
		},
		{
			input:    "no variables here",
			vars:     map[string]string{},
			expected: "no variables here",
		},
	}

	for _, tt := range tests {
		result := expandVars(tt.input, tt.vars)
		if result != tt.expected {
			t.Errorf("expandVars(%q) = %q, want %q", tt.input, result, tt.expected)
		}
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
	}{
		{
			name:    "valid config",
			modify:  func(c *Config) {},
			wantErr: false,
		},
		{
			name: "missing homeserver URL",
			modify: func(c *Config) {
				c.Matrix.HomeserverURL = ""
			},
			wantErr: true,
		},
		{
			name: "relative homeserver URL",
			modify: func(c *Config) {
				c.Matrix.HomeserverURL = "matrix.example.com"
			},
			wantErr: true,
		},
		{
			name: "missing user ID",
			modify: func(c *Config) {
				c.Matrix.UserID = ""
			},
			wantErr: true,
		},
		{
			name: "missing token file",
			modify: func(c *Config) {
				c.Matrix.AccessTokenFile = ""
			},
			wantErr: true,
		},
		{
			name: "empty data path",
			modify: func(c *Config) {
				c.Paths.Data = ""
			},
			wantErr: true,
		},
		{
			name: "invalid log level",
			modify: func(c *Config) {
				c.Log.Level = "verbose"
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.modify(cfg)

			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestEnsurePaths(t *testing.T) {
	tmpDir := t.TempDir()

	cfg := validConfig()
	cfg.Paths.Data = filepath.Join(tmpDir, "corkboard")

	if err := cfg.EnsurePaths(); err != nil {
		t.Fatalf("EnsurePaths failed: %v", err)
	}

	info, err := os.Stat(cfg.Paths.Data)
	if err != nil {
		t.Fatalf("data dir not created: %v", err)
	}
	if !info.IsDir() {
		t.Fatalf("data path %s is not a directory", cfg.Paths.Data)
	}

	if got := cfg.CachePath(); got != filepath.Join(cfg.Paths.Data, "kanban_cache.json") {
		t.Errorf("CachePath() = %s", got)
	}
}
