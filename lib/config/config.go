// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment represents the deployment environment.
type Environment string

const (
	// Development is for local development machines.
	Development Environment = "development"
	// Production is for production deployments.
	Production Environment = "production"
)

// Transport modes.
const (
	TransportDirect = "direct"
	TransportRelay  = "relay"
)

// Store backends.
const (
	BackendJSON   = "json"
	BackendSQLite = "sqlite"
)

// Config is the master configuration.
type Config struct {
	// Environment identifies the deployment type.
	Environment Environment `yaml:"environment"`

	// Homeserver is the base URL of the Matrix homeserver
	// (e.g., "https://matrix.example.com").
	Homeserver string `yaml:"homeserver"`

	// Root is the base directory for client data. Store.Path defaults
	// to a directory beneath it.
	Root string `yaml:"root"`

	// Transport selects and tunes the request transport.
	Transport TransportConfig `yaml:"transport"`

	// Store selects and tunes the state store.
	Store StoreConfig `yaml:"store"`

	// Per-environment overrides, applied after the base config.
	Development *ConfigOverrides `yaml:"development,omitempty"`
	Production  *ConfigOverrides `yaml:"production,omitempty"`
}

// ConfigOverrides contains fields that can be overridden per environment.
type ConfigOverrides struct {
	Homeserver string           `yaml:"homeserver,omitempty"`
	Transport  *TransportConfig `yaml:"transport,omitempty"`
	Store      *StoreConfig     `yaml:"store,omitempty"`
}

// TransportConfig configures how requests reach the homeserver.
type TransportConfig struct {
	// Mode is "direct" (HTTP to the homeserver) or "relay" (handed to
	// the external relay process over RelaySocket).
	// Default: direct
	Mode string `yaml:"mode"`

	// RequestTimeout bounds each direct request.
	// Default: 30s
	RequestTimeout time.Duration `yaml:"request_timeout"`

	// Relay configures relay mode.
	Relay RelayConfig `yaml:"relay"`
}

// RelayConfig configures the relay transport.
type RelayConfig struct {
	// SocketPath is the Unix socket of the relay process.
	// Default: ${P2PMATRIX_ROOT}/relay.sock
	SocketPath string `yaml:"socket_path"`

	// QueueCapacity bounds the inbound response queue.
	// Default: 1024
	QueueCapacity int `yaml:"queue_capacity"`

	// Timeout bounds each wait for a relayed response.
	// Default: 30s
	Timeout time.Duration `yaml:"timeout"`

	// DialAttempts bounds connection attempts to the relay socket.
	// Default: 5
	DialAttempts int `yaml:"dial_attempts"`
}

// StoreConfig configures the state store.
type StoreConfig struct {
	// Backend is "json" or "sqlite".
	// Default: json (development), sqlite (production)
	Backend string `yaml:"backend"`

	// Path is the store root directory.
	// Default: ${P2PMATRIX_ROOT}/state
	Path string `yaml:"path"`

	// Compression is the SQLite record compression: none, lz4, zstd.
	// Ignored by the JSON backend.
	// Default: zstd
	Compression string `yaml:"compression"`
}

// Default returns the default configuration. These defaults are the
// base the config file is merged into; the file itself is still
// required.
func Default() *Config {
	homeDir, _ := os.UserHomeDir()
	defaultRoot := filepath.Join(homeDir, ".local", "share", "p2pmatrix")

	return &Config{
		Environment: Development,
		Root:        defaultRoot,
		Transport: TransportConfig{
			Mode:           TransportDirect,
			RequestTimeout: 30 * time.Second,
			Relay: RelayConfig{
				SocketPath:    "${P2PMATRIX_ROOT}/relay.sock",
				QueueCapacity: 1024,
				Timeout:       30 * time.Second,
				DialAttempts:  5,
			},
		},
		Store: StoreConfig{
			Backend:     BackendJSON,
			Path:        "${P2PMATRIX_ROOT}/state",
			Compression: "zstd",
		},
	}
}

// Load loads configuration from the P2PMATRIX_CONFIG environment
// variable. There is no fallback when it is unset.
func Load() (*Config, error) {
	configPath := os.Getenv("P2PMATRIX_CONFIG")
	if configPath == "" {
		return nil, fmt.Errorf("P2PMATRIX_CONFIG environment variable not set; " +
			"set it to the path of your p2pmatrix.yaml config file, or use --config flag")
	}

	return LoadFile(configPath)
}

// LoadFile loads configuration from a specific file path.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	cfg.applyEnvironmentOverrides()
	cfg.expandVariables()

	return cfg, nil
}

// applyEnvironmentOverrides applies the section matching Environment.
func (c *Config) applyEnvironmentOverrides() {
	var overrides *ConfigOverrides

	switch c.Environment {
	case Development:
		overrides = c.Development
	case Production:
		overrides = c.Production
		if overrides == nil {
			overrides = &ConfigOverrides{
				Store: &StoreConfig{Backend: BackendSQLite},
			}
		}
	}

	if overrides == nil {
		return
	}

	if overrides.Homeserver != "" {
		c.Homeserver = overrides.Homeserver
	}

	if overrides.Transport != nil {
		if overrides.Transport.Mode != "" {
			c.Transport.Mode = overrides.Transport.Mode
		}
		if overrides.Transport.RequestTimeout != 0 {
			c.Transport.RequestTimeout = overrides.Transport.RequestTimeout
		}
		relay := overrides.Transport.Relay
		if relay.SocketPath != "" {
			c.Transport.Relay.SocketPath = relay.SocketPath
		}
		if relay.QueueCapacity != 0 {
			c.Transport.Relay.QueueCapacity = relay.QueueCapacity
		}
		if relay.Timeout != 0 {
			c.Transport.Relay.Timeout = relay.Timeout
		}
		if relay.DialAttempts != 0 {
			c.Transport.Relay.DialAttempts = relay.DialAttempts
		}
	}

	if overrides.Store != nil {
		if overrides.Store.Backend != "" {
			c.Store.Backend = overrides.Store.Backend
		}
		if overrides.Store.Path != "" {
			c.Store.Path = overrides.Store.Path
		}
		if overrides.Store.Compression != "" {
			c.Store.Compression = overrides.Store.Compression
		}
	}
}

// expandVariables expands ${VAR} and ${VAR:-default} patterns in paths.
func (c *Config) expandVariables() {
	vars := map[string]string{
		"P2PMATRIX_ROOT": c.Root,
		"HOME":           os.Getenv("HOME"),
	}

	c.Root = expandVars(c.Root, vars)
	vars["P2PMATRIX_ROOT"] = c.Root // Update for dependent paths.

	c.Store.Path = expandVars(c.Store.Path, vars)
	c.Transport.Relay.SocketPath = expandVars(c.Transport.Relay.SocketPath, vars)
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

// Validate checks the configuration for errors. All problems are
// reported together.
func (c *Config) Validate() error {
	var errs []error

	if c.Environment != Development && c.Environment != Production {
		errs = append(errs, fmt.Errorf("invalid environment: %s", c.Environment))
	}

	if c.Homeserver == "" {
		errs = append(errs, fmt.Errorf("homeserver is required"))
	}

	if !slices.Contains([]string{TransportDirect, TransportRelay}, c.Transport.Mode) {
		errs = append(errs, fmt.Errorf("transport.mode must be one of: %s, %s", TransportDirect, TransportRelay))
	}
	if c.Transport.RequestTimeout <= 0 {
		errs = append(errs, fmt.Errorf("transport.request_timeout must be positive"))
	}
	if c.Transport.Mode == TransportRelay {
		if c.Transport.Relay.SocketPath == "" {
			errs = append(errs, fmt.Errorf("transport.relay.socket_path is required in relay mode"))
		}
		if c.Transport.Relay.QueueCapacity <= 0 {
			errs = append(errs, fmt.Errorf("transport.relay.queue_capacity must be positive"))
		}
		if c.Transport.Relay.Timeout <= 0 {
			errs = append(errs, fmt.Errorf("transport.relay.timeout must be positive"))
		}
		if c.Transport.Relay.DialAttempts <= 0 {
			errs = append(errs, fmt.Errorf("transport.relay.dial_attempts must be positive"))
		}
	}

	if !slices.Contains([]string{BackendJSON, BackendSQLite}, c.Store.Backend) {
		errs = append(errs, fmt.Errorf("store.backend must be one of: %s, %s", BackendJSON, BackendSQLite))
	}
	if c.Store.Path == "" {
		errs = append(errs, fmt.Errorf("store.path is required"))
	}
	if !slices.Contains([]string{"none", "lz4", "zstd"}, c.Store.Compression) {
		errs = append(errs, fmt.Errorf("store.compression must be one of: none, lz4, zstd"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}
