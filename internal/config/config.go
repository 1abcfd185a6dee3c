// Package config provides unified configuration for browserbox.
//
// Configuration is loaded with a layered approach:
//  1. Built-in defaults
//  2. YAML config file (explicit path, BROWSERBOX_CONFIG, ./browserbox.yaml)
//  3. Environment variable overrides (BROWSERBOX_ prefix)
//  4. Validation
package config

import (
	"path/filepath"
	"time"
)

// Config holds all configuration for browserbox.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Runtime  RuntimeConfig  `yaml:"runtime"`
	Packages PackagesConfig `yaml:"packages"`
	History  HistoryConfig  `yaml:"history"`
	Log      LogConfig      `yaml:"log"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`              // default: 8080
	SessionTTL      time.Duration `yaml:"session_ttl"`       // default: 30m, 0 disables expiry
	MaxUploadMemory int64         `yaml:"max_upload_memory"` // multipart buffer, default: 32MB
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`  // default: 10s
}

// RuntimeConfig holds interpreter settings.
type RuntimeConfig struct {
	WasmPath  string        `yaml:"wasm_path"`  // default: .browserbox/python.wasm
	MemoryMB  uint32        `yaml:"memory_mb"`  // 0 = wazero default (4GB)
	DiskCache bool          `yaml:"disk_cache"` // default: true
	CacheDir  string        `yaml:"cache_dir"`  // default: XDG cache dir
	Timeout   time.Duration `yaml:"timeout"`    // per run, 0 = none
	Mounts    []MountConfig `yaml:"mounts"`
}

// MountConfig exposes a host directory to scripts.
type MountConfig struct {
	Guest    string `yaml:"guest"`
	Host     string `yaml:"host"`
	ReadOnly bool   `yaml:"read_only"`
}

// PackagesConfig holds package installer settings.
type PackagesConfig struct {
	Dir            string        `yaml:"dir"`
	CacheDir       string        `yaml:"cache_dir"`
	IndexURL       string        `yaml:"index_url"`
	Install        bool          `yaml:"install"` // install packages inferred from imports, default: true
	Allowed        []string      `yaml:"allowed"`
	MaxWheelSize   int64         `yaml:"max_wheel_size"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	Concurrency    int           `yaml:"concurrency"`
}

// HistoryConfig holds the run log settings.
type HistoryConfig struct {
	Enabled bool   `yaml:"enabled"` // default: true
	Path    string `yaml:"path"`    // default: .browserbox/history.db
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error; default: info
	Format string `yaml:"format"` // text or json; default: text
}

// MemoryPages converts MemoryMB to 64KB WASM pages.
func (r RuntimeConfig) MemoryPages() uint32 {
	return r.MemoryMB * 16
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	return Config{
		Server: ServerConfig{
			Port:            8080,
			SessionTTL:      30 * time.Minute,
			MaxUploadMemory: 32 << 20,
			ShutdownTimeout: 10 * time.Second,
		},
		Runtime: RuntimeConfig{
			WasmPath:  filepath.Join(".browserbox", "python.wasm"),
			DiskCache: true,
		},
		Packages: PackagesConfig{
			Dir:            filepath.Join(".browserbox", "python", "packages"),
			CacheDir:       filepath.Join(".browserbox", "cache", "wheels"),
			IndexURL:       "https://pypi.org/pypi",
			Install:        true,
			MaxWheelSize:   64 << 20,
			RequestTimeout: 60 * time.Second,
			Concurrency:    4,
		},
		History: HistoryConfig{
			Enabled: true,
			Path:    filepath.Join(".browserbox", "history.db"),
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}
