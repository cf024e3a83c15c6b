package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config describes everything a hearthd instance needs to build and
// run its runtime: where to listen, which plugins to install, and
// where to keep its data on disk.
type Config struct {
	// RuntimeID identifies this daemon. It is hashed into the
	// encryption key that protects the CA's root private key at rest,
	// so it must stay stable across restarts of the same daemon.
	RuntimeID string `yaml:"runtimeID"`

	// DataDir holds the CA store, the lump store (if persisted), and
	// any other on-disk state.
	DataDir string `yaml:"dataDir"`

	Listen   ListenConfig   `yaml:"listen"`
	Plugins  PluginsConfig  `yaml:"plugins"`
	Log      LogConfig      `yaml:"log"`
	Security SecurityConfig `yaml:"security"`
}

// ListenConfig holds the network addresses a daemon binds.
type ListenConfig struct {
	// Connection is the address remote peers dial to open a
	// CapTP-style connection (e.g. "0.0.0.0:7420").
	Connection string `yaml:"connection"`

	// Metrics is the address the /metrics, /health, /ready, and /live
	// HTTP handlers are served from.
	Metrics string `yaml:"metrics"`
}

// PluginsConfig controls which runtime.Plugin implementations a
// hearthd instance installs at startup.
type PluginsConfig struct {
	Wasm bool `yaml:"wasm"`
	// Registry is loaded from the file but not consulted: the registry
	// process is always built.
	Registry bool `yaml:"registry"`
}

// LogConfig mirrors the pkg/log level/format knobs. The fields are
// loaded from the file, but hearthd configures logging from its
// --log-level/--log-json flags and does not apply these values.
type LogConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// SecurityConfig controls mTLS enforcement on remote connections.
type SecurityConfig struct {
	// RequireTLS wraps every accepted/dialed Connection in crypto/tls
	// using the CA in DataDir. When false, connections are plain
	// framed streams (useful for local development).
	RequireTLS bool `yaml:"requireTLS"`
}

// Default returns the configuration a bare `hearthd run` uses when no
// file is given.
func Default() *Config {
	return &Config{
		RuntimeID: "hearthd",
		DataDir:   ".hearth/data",
		Listen: ListenConfig{
			Connection: "0.0.0.0:7420",
			Metrics:    "127.0.0.1:9420",
		},
		Plugins: PluginsConfig{
			Wasm:     true,
			Registry: true,
		},
		Log: LogConfig{
			Level: "info",
			JSON:  false,
		},
		Security: SecurityConfig{
			RequireTLS: true,
		},
	}
}

// Load reads and parses a YAML configuration file, starting from
// Default and overlaying whatever the file specifies.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}

	return cfg, nil
}

// Validate checks the fields Load and the CLI both depend on being
// non-empty.
func (c *Config) Validate() error {
	if c.RuntimeID == "" {
		return fmt.Errorf("runtimeID must not be empty")
	}
	if c.DataDir == "" {
		return fmt.Errorf("dataDir must not be empty")
	}
	if c.Listen.Connection == "" {
		return fmt.Errorf("listen.connection must not be empty")
	}
	return nil
}
