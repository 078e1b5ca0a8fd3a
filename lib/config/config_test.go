// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// writeConfig writes content to a temporary p2pmatrix.yaml and returns
// its path.
func writeConfig(t *testing.T, content string) string {
	t.Helper()
	configPath := filepath.Join(t.TempDir(), "p2pmatrix.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return configPath
}

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Environment != Development {
		t.Errorf("expected environment=development, got %s", cfg.Environment)
	}
	if cfg.Transport.Mode != TransportDirect {
		t.Errorf("expected transport.mode=direct, got %s", cfg.Transport.Mode)
	}
	if cfg.Transport.RequestTimeout != 30*time.Second {
		t.Errorf("expected request_timeout=30s, got %v", cfg.Transport.RequestTimeout)
	}
	if cfg.Transport.Relay.QueueCapacity != 1024 {
		t.Errorf("expected queue_capacity=1024, got %d", cfg.Transport.Relay.QueueCapacity)
	}
	if cfg.Store.Backend != BackendJSON {
		t.Errorf("expected store.backend=json, got %s", cfg.Store.Backend)
	}
}

func TestLoad_RequiresConfigVariable(t *testing.T) {
	t.Setenv("P2PMATRIX_CONFIG", "")

	_, err := Load()
	if err == nil {
		t.Fatal("expected error when P2PMATRIX_CONFIG not set, got nil")
	}
	if !strings.HasPrefix(err.Error(), "P2PMATRIX_CONFIG environment variable not set") {
		t.Errorf("unexpected error message: %q", err)
	}
}

func TestLoad_WithConfigVariable(t *testing.T) {
	configPath := writeConfig(t, `
homeserver: http://localhost:6167
root: /tmp/p2pmatrix-load
`)
	t.Setenv("P2PMATRIX_CONFIG", configPath)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Homeserver != "http://localhost:6167" {
		t.Errorf("homeserver = %q", cfg.Homeserver)
	}
	if cfg.Store.Path != "/tmp/p2pmatrix-load/state" {
		t.Errorf("store.path = %q, want expansion of ${P2PMATRIX_ROOT}", cfg.Store.Path)
	}
	if cfg.Transport.Relay.SocketPath != "/tmp/p2pmatrix-load/relay.sock" {
		t.Errorf("relay.socket_path = %q", cfg.Transport.Relay.SocketPath)
	}
}

func TestLoadFile(t *testing.T) {
	configPath := writeConfig(t, `
homeserver: https://matrix.example.com
root: /srv/p2pmatrix
transport:
  mode: relay
  request_timeout: 10s
  relay:
    socket_path: /run/p2pmatrix/relay.sock
    queue_capacity: 64
    timeout: 45s
store:
  backend: sqlite
  compression: lz4
`)

	cfg, err := LoadFile(configPath)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}

	if cfg.Transport.Mode != TransportRelay {
		t.Errorf("transport.mode = %q", cfg.Transport.Mode)
	}
	if cfg.Transport.RequestTimeout != 10*time.Second {
		t.Errorf("request_timeout = %v", cfg.Transport.RequestTimeout)
	}
	if cfg.Transport.Relay.SocketPath != "/run/p2pmatrix/relay.sock" {
		t.Errorf("relay.socket_path = %q", cfg.Transport.Relay.SocketPath)
	}
	if cfg.Transport.Relay.QueueCapacity != 64 {
		t.Errorf("relay.queue_capacity = %d", cfg.Transport.Relay.QueueCapacity)
	}
	if cfg.Transport.Relay.Timeout != 45*time.Second {
		t.Errorf("relay.timeout = %v", cfg.Transport.Relay.Timeout)
	}
	if cfg.Transport.Relay.DialAttempts != 5 {
		t.Errorf("relay.dial_attempts = %d, want default 5", cfg.Transport.Relay.DialAttempts)
	}
	if cfg.Store.Backend != BackendSQLite || cfg.Store.Compression != "lz4" {
		t.Errorf("store = %+v", cfg.Store)
	}
	if cfg.Store.Path != "/srv/p2pmatrix/state" {
		t.Errorf("store.path = %q", cfg.Store.Path)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestLoadFileMissing(t *testing.T) {
	if _, err := LoadFile(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoadFileInvalidYAML(t *testing.T) {
	configPath := writeConfig(t, "transport: [not, a, map\n")
	if _, err := LoadFile(configPath); err == nil {
		t.Fatal("expected error for malformed YAML")
	}
}

func TestEnvironmentOverrides(t *testing.T) {
	configPath := writeConfig(t, `
environment: production
homeserver: https://dev.example.com
store:
  backend: json

production:
  homeserver: https://matrix.example.com
  transport:
    request_timeout: 5s
    relay:
      timeout: 2m
  store:
    path: /var/lib/p2pmatrix
`)

	cfg, err := LoadFile(configPath)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}

	if cfg.Homeserver != "https://matrix.example.com" {
		t.Errorf("homeserver = %q, want production override", cfg.Homeserver)
	}
	if cfg.Transport.RequestTimeout != 5*time.Second {
		t.Errorf("request_timeout = %v, want production override", cfg.Transport.RequestTimeout)
	}
	if cfg.Transport.Relay.Timeout != 2*time.Minute {
		t.Errorf("relay.timeout = %v, want production override", cfg.Transport.Relay.Timeout)
	}
	if cfg.Store.Path != "/var/lib/p2pmatrix" {
		t.Errorf("store.path = %q, want production override", cfg.Store.Path)
	}
	// An explicit production section replaces the implicit defaults.
	if cfg.Store.Backend != BackendJSON {
		t.Errorf("store.backend = %q, want json from base config", cfg.Store.Backend)
	}
}

func TestProductionDefaultsToSQLite(t *testing.T) {
	configPath := writeConfig(t, `
environment: production
homeserver: https://matrix.example.com
`)

	cfg, err := LoadFile(configPath)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.Store.Backend != BackendSQLite {
		t.Errorf("store.backend = %q, want sqlite in production", cfg.Store.Backend)
	}
}

func TestEnvVarsDoNotOverride(t *testing.T) {
	t.Setenv("P2PMATRIX_ROOT", "/env/root")
	t.Setenv("P2PMATRIX_HOMESERVER", "https://env.example.com")

	configPath := writeConfig(t, `
homeserver: https://file.example.com
root: /file/root
`)

	cfg, err := LoadFile(configPath)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}

	if cfg.Homeserver != "https://file.example.com" {
		t.Errorf("homeserver = %q (env vars should not override)", cfg.Homeserver)
	}
	if cfg.Root != "/file/root" {
		t.Errorf("root = %q (env vars should not override)", cfg.Root)
	}
	if cfg.Store.Path != "/file/root/state" {
		t.Errorf("store.path = %q, want derived from file root", cfg.Store.Path)
	}
}

func TestExpandVars(t *testing.T) {
	tests := []struct {
		input    string
		vars     map[string]string
		expected string
	}{
		{
			input:    "${HOME}/p2pmatrix",
			vars:     map[string]string{"HOME": "/home/user"},
			expected: "/home/user/p2pmatrix",
		},
		{
			input:    "${P2PMATRIX_TEST_MISSING:-default}",
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
	valid := func() *Config {
		cfg := Default()
		cfg.Homeserver = "http://localhost:6167"
		cfg.Store.Path = "/tmp/state"
		cfg.Transport.Relay.SocketPath = "/tmp/relay.sock"
		return cfg
	}

	if err := valid().Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"bad environment", func(c *Config) { c.Environment = "staging" }, "invalid environment"},
		{"missing homeserver", func(c *Config) { c.Homeserver = "" }, "homeserver is required"},
		{"bad mode", func(c *Config) { c.Transport.Mode = "carrier-pigeon" }, "transport.mode"},
		{"zero timeout", func(c *Config) { c.Transport.RequestTimeout = 0 }, "request_timeout"},
		{"relay without socket", func(c *Config) {
			c.Transport.Mode = TransportRelay
			c.Transport.Relay.SocketPath = ""
		}, "socket_path"},
		{"relay zero capacity", func(c *Config) {
			c.Transport.Mode = TransportRelay
			c.Transport.Relay.QueueCapacity = 0
		}, "queue_capacity"},
		{"bad backend", func(c *Config) { c.Store.Backend = "redis" }, "store.backend"},
		{"bad compression", func(c *Config) { c.Store.Compression = "brotli" }, "store.compression"},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			cfg := valid()
			test.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), test.want) {
				t.Errorf("error = %q, want mention of %q", err, test.want)
			}
		})
	}

	// Multiple problems are reported together.
	cfg := valid()
	cfg.Homeserver = ""
	cfg.Store.Backend = "redis"
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "homeserver") || !strings.Contains(err.Error(), "store.backend") {
		t.Errorf("expected both errors joined, got %v", err)
	}
}
