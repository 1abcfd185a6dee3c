package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Load loads configuration from a layered set of sources.
//
// The loading order is:
//  1. Built-in defaults
//  2. YAML config file (explicit path, BROWSERBOX_CONFIG env, ./browserbox.yaml)
//  3. BROWSERBOX_* environment variable overrides
//  4. Validation
func Load(configPath string) (*Config, error) {
	cfg := Defaults()

	filePath := discoverConfigFile(configPath)
	if filePath != "" {
		if err := loadYAMLFile(filePath, &cfg); err != nil {
			return nil, fmt.Errorf("loading config file %s: %w", filePath, err)
		}
	}

	if err := applyEnvOverrides(&cfg); err != nil {
		return nil, fmt.Errorf("environment overrides: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return &cfg, nil
}

// discoverConfigFile returns the explicit path, then $BROWSERBOX_CONFIG,
// then ./browserbox.yaml if it exists. Empty means defaults only.
func discoverConfigFile(configPath string) string {
	if configPath != "" {
		return configPath
	}
	if envPath := os.Getenv("BROWSERBOX_CONFIG"); envPath != "" {
		return envPath
	}
	for _, path := range []string{"browserbox.yaml", "browserbox.yml"} {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// loadYAMLFile reads and parses a YAML file into the Config struct.
// Fields not present in the YAML retain their current (default) values.
func loadYAMLFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

// applyEnvOverrides maps BROWSERBOX_* environment variables to config
// fields. Malformed numeric or boolean values are errors rather than being
// silently ignored.
func applyEnvOverrides(cfg *Config) error {
	strs := map[string]*string{
		"BROWSERBOX_PYTHON_WASM":  &cfg.Runtime.WasmPath,
		"BROWSERBOX_CACHE_DIR":    &cfg.Runtime.CacheDir,
		"BROWSERBOX_PACKAGES_DIR": &cfg.Packages.Dir,
		"BROWSERBOX_INDEX_URL":    &cfg.Packages.IndexURL,
		"BROWSERBOX_HISTORY_PATH": &cfg.History.Path,
		"BROWSERBOX_LOG_LEVEL":    &cfg.Log.Level,
		"BROWSERBOX_LOG_FORMAT":   &cfg.Log.Format,
	}
	for key, field := range strs {
		if v := os.Getenv(key); v != "" {
			*field = v
		}
	}

	if v := os.Getenv("BROWSERBOX_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("BROWSERBOX_PORT: %w", err)
		}
		cfg.Server.Port = port
	}
	if v := os.Getenv("BROWSERBOX_SESSION_TTL"); v != "" {
		ttl, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("BROWSERBOX_SESSION_TTL: %w", err)
		}
		cfg.Server.SessionTTL = ttl
	}
	if v := os.Getenv("BROWSERBOX_RUN_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("BROWSERBOX_RUN_TIMEOUT: %w", err)
		}
		cfg.Runtime.Timeout = d
	}
	if v := os.Getenv("BROWSERBOX_INSTALL"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("BROWSERBOX_INSTALL: %w", err)
		}
		cfg.Packages.Install = b
	}
	if v := os.Getenv("BROWSERBOX_HISTORY"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("BROWSERBOX_HISTORY: %w", err)
		}
		cfg.History.Enabled = b
	}
	if v := os.Getenv("BROWSERBOX_ALLOWED_PACKAGES"); v != "" {
		cfg.Packages.Allowed = nil
		for _, p := range strings.Split(v, ",") {
			if p = strings.TrimSpace(p); p != "" {
				cfg.Packages.Allowed = append(cfg.Packages.Allowed, p)
			}
		}
	}
	return nil
}
