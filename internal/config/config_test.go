package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTemp(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "browserbox.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDefaults(t *testing.T) {
	cfg := Defaults()

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 30*time.Minute, cfg.Server.SessionTTL)
	assert.True(t, cfg.Runtime.DiskCache)
	assert.Zero(t, cfg.Runtime.Timeout, "no run timeout by default")
	assert.True(t, cfg.Packages.Install)
	assert.Equal(t, "https://pypi.org/pypi", cfg.Packages.IndexURL)
	assert.True(t, cfg.History.Enabled)
	assert.Equal(t, "info", cfg.Log.Level)
	require.NoError(t, cfg.Validate())
}

func TestLoadFromYAML(t *testing.T) {
	path := writeTemp(t, `
server:
  port: 9090
  session_ttl: 5m
runtime:
  wasm_path: /opt/python.wasm
  memory_mb: 256
  timeout: 90s
  mounts:
    - guest: /data
      host: ./input
      read_only: true
packages:
  install: false
  allowed: [tabulate, attrs]
history:
  enabled: false
log:
  level: debug
  format: json
`)
	t.Setenv("BROWSERBOX_CONFIG", "")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 5*time.Minute, cfg.Server.SessionTTL)
	assert.Equal(t, "/opt/python.wasm", cfg.Runtime.WasmPath)
	assert.Equal(t, uint32(4096), cfg.Runtime.MemoryPages())
	assert.Equal(t, 90*time.Second, cfg.Runtime.Timeout)
	require.Len(t, cfg.Runtime.Mounts, 1)
	assert.Equal(t, MountConfig{Guest: "/data", Host: "./input", ReadOnly: true}, cfg.Runtime.Mounts[0])
	assert.False(t, cfg.Packages.Install)
	assert.Equal(t, []string{"tabulate", "attrs"}, cfg.Packages.Allowed)
	assert.False(t, cfg.History.Enabled)
	assert.Equal(t, "json", cfg.Log.Format)

	// Unset fields keep their defaults.
	assert.Equal(t, 4, cfg.Packages.Concurrency)
	assert.Equal(t, int64(32<<20), cfg.Server.MaxUploadMemory)
}

func TestLoadDiscoversEnvPath(t *testing.T) {
	path := writeTemp(t, "server:\n  port: 7000\n")
	t.Setenv("BROWSERBOX_CONFIG", path)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 7000, cfg.Server.Port)
}

func TestEnvOverridesFile(t *testing.T) {
	path := writeTemp(t, "server:\n  port: 7000\nlog:\n  level: warn\n")
	t.Setenv("BROWSERBOX_PORT", "7100")
	t.Setenv("BROWSERBOX_LOG_LEVEL", "error")
	t.Setenv("BROWSERBOX_INSTALL", "false")
	t.Setenv("BROWSERBOX_SESSION_TTL", "1h")
	t.Setenv("BROWSERBOX_ALLOWED_PACKAGES", "six, attrs ,")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 7100, cfg.Server.Port)
	assert.Equal(t, "error", cfg.Log.Level)
	assert.False(t, cfg.Packages.Install)
	assert.Equal(t, time.Hour, cfg.Server.SessionTTL)
	assert.Equal(t, []string{"six", "attrs"}, cfg.Packages.Allowed)
}

func TestEnvOverrideMalformed(t *testing.T) {
	t.Setenv("BROWSERBOX_CONFIG", "")
	t.Setenv("BROWSERBOX_PORT", "eighty")

	_, err := Load(writeTemp(t, ""))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "BROWSERBOX_PORT")
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestLoadInvalidYAML(t *testing.T) {
	_, err := Load(writeTemp(t, "server: [unclosed"))
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"port", func(c *Config) { c.Server.Port = 0 }, "server.port"},
		{"ttl", func(c *Config) { c.Server.SessionTTL = -time.Second }, "server.session_ttl"},
		{"wasm", func(c *Config) { c.Runtime.WasmPath = "" }, "runtime.wasm_path"},
		{"root mount", func(c *Config) { c.Runtime.Mounts = []MountConfig{{Guest: "/", Host: "."}} }, "reserved"},
		{"packages mount", func(c *Config) { c.Runtime.Mounts = []MountConfig{{Guest: "packages/", Host: "."}} }, "reserved"},
		{"mount host", func(c *Config) { c.Runtime.Mounts = []MountConfig{{Guest: "/data"}} }, "host is required"},
		{"index", func(c *Config) { c.Packages.IndexURL = "ftp://mirror" }, "packages.index_url"},
		{"history", func(c *Config) { c.History.Path = "" }, "history.path"},
		{"level", func(c *Config) { c.Log.Level = "loud" }, "log.level"},
		{"format", func(c *Config) { c.Log.Format = "xml" }, "log.format"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestValidateCollectsAll(t *testing.T) {
	cfg := Defaults()
	cfg.Server.Port = -1
	cfg.Log.Format = "xml"

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server.port")
	assert.Contains(t, err.Error(), "log.format")
}
