package config

import (
	"errors"
	"fmt"
	"net/url"
	"path"
	"strings"
)

// Validate checks the configuration for required fields and valid values.
// Returns an error with a descriptive field path on failure.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port must be in 1..65535, got %d", c.Server.Port))
	}
	if c.Server.SessionTTL < 0 {
		errs = append(errs, fmt.Errorf("server.session_ttl must be >= 0, got %v", c.Server.SessionTTL))
	}
	if c.Server.MaxUploadMemory <= 0 {
		errs = append(errs, fmt.Errorf("server.max_upload_memory must be > 0, got %d", c.Server.MaxUploadMemory))
	}

	if c.Runtime.WasmPath == "" {
		errs = append(errs, errors.New("runtime.wasm_path is required"))
	}
	if c.Runtime.Timeout < 0 {
		errs = append(errs, fmt.Errorf("runtime.timeout must be >= 0, got %v", c.Runtime.Timeout))
	}
	for i, m := range c.Runtime.Mounts {
		guest := path.Clean("/" + strings.Trim(m.Guest, "/"))
		switch {
		case m.Host == "":
			errs = append(errs, fmt.Errorf("runtime.mounts[%d].host is required", i))
		case guest == "/" || guest == "/packages":
			errs = append(errs, fmt.Errorf("runtime.mounts[%d].guest %q is reserved", i, m.Guest))
		}
	}

	if c.Packages.Dir == "" {
		errs = append(errs, errors.New("packages.dir is required"))
	}
	if u, err := url.Parse(c.Packages.IndexURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		errs = append(errs, fmt.Errorf("packages.index_url must be an http(s) URL, got %q", c.Packages.IndexURL))
	}
	if c.Packages.Concurrency < 0 {
		errs = append(errs, fmt.Errorf("packages.concurrency must be >= 0, got %d", c.Packages.Concurrency))
	}

	if c.History.Enabled && c.History.Path == "" {
		errs = append(errs, errors.New("history.path is required when history.enabled is true"))
	}

	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		errs = append(errs, fmt.Errorf("log.level must be debug, info, warn or error, got %q", c.Log.Level))
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format must be \"text\" or \"json\", got %q", c.Log.Format))
	}

	return errors.Join(errs...)
}
