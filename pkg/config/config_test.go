package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.True(t, cfg.Plugins.Wasm)
	assert.True(t, cfg.Security.RequireTLS)
}

func TestLoadOverlaysDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "hearthd.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
runtimeID: daemon-1
dataDir: /var/lib/hearthd
listen:
  connection: 0.0.0.0:9000
plugins:
  wasm: true
  registry: false
`), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "daemon-1", cfg.RuntimeID)
	assert.Equal(t, "/var/lib/hearthd", cfg.DataDir)
	assert.Equal(t, "0.0.0.0:9000", cfg.Listen.Connection)
	assert.False(t, cfg.Plugins.Registry)
	// Fields left unset in the file keep their Default() value.
	assert.Equal(t, "127.0.0.1:9420", cfg.Listen.Metrics)
	assert.True(t, cfg.Security.RequireTLS)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoadInvalidYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "hearthd.yaml")
	require.NoError(t, os.WriteFile(path, []byte("not: valid: yaml: ["), 0644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid default", func(c *Config) {}, false},
		{"empty runtimeID", func(c *Config) { c.RuntimeID = "" }, true},
		{"empty dataDir", func(c *Config) { c.DataDir = "" }, true},
		{"empty listen address", func(c *Config) { c.Listen.Connection = "" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
