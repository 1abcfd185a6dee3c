package executor

import (
	"io"
	"log/slog"
	"time"
)

// ExecutorOption configures the Executor at creation time.
type ExecutorOption func(*executorConfig)

type executorConfig struct {
	diskCache        bool
	cacheDir         string
	precompile       []Language // Languages to precompile at startup
	memoryLimitPages uint32     // Max memory pages (each page = 64KB), 0 = default (4GB)
	logger           *slog.Logger
}

func defaultExecutorConfig() executorConfig {
	return executorConfig{
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

// WithLogger sets the logger for compilation events.
func WithLogger(l *slog.Logger) ExecutorOption {
	return func(c *executorConfig) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithDiskCache enables persistent compilation cache for faster CLI startup.
// Optionally provide a custom directory; otherwise uses
// ~/.cache/browserbox or XDG_CACHE_HOME/browserbox.
//
//	executor.New(executor.WithDiskCache())            // default dir
//	executor.New(executor.WithDiskCache("/tmp/cache")) // custom dir
func WithDiskCache(dir ...string) ExecutorOption {
	return func(c *executorConfig) {
		c.diskCache = true
		if len(dir) > 0 && dir[0] != "" {
			c.cacheDir = dir[0]
		}
	}
}

// WithPrecompile compiles the specified languages at Executor creation time.
// This moves the compilation cost to startup rather than first execution.
func WithPrecompile(langs ...Language) ExecutorOption {
	return func(c *executorConfig) {
		c.precompile = langs
	}
}

// WithMemoryLimit sets the maximum memory available to WASM modules.
// Each page is 64KB. Default is 0 (no limit, up to 4GB).
func WithMemoryLimit(pages uint32) ExecutorOption {
	return func(c *executorConfig) {
		c.memoryLimitPages = pages
	}
}

// SessionOption configures a Session.
type SessionOption func(*sessionConfig)

type sessionConfig struct {
	timeout   time.Duration
	mounts    []Mount
	installer Installer
	env       map[string]string
}

func defaultSessionConfig() sessionConfig {
	return sessionConfig{
		env: make(map[string]string),
	}
}

// WithTimeout bounds every Run. Zero, the default, leaves the deadline to
// the caller's context.
func WithTimeout(d time.Duration) SessionOption {
	return func(c *sessionConfig) {
		c.timeout = d
	}
}

// WithMount exposes hostPath to scripts at guestPath.
//
//	executor.WithMount("/data", "./input", true)   // read-only
//	executor.WithMount("/scratch", "./tmp", false) // read-write
func WithMount(guestPath, hostPath string, readOnly bool) SessionOption {
	return func(c *sessionConfig) {
		c.mounts = append(c.mounts, Mount{
			GuestPath: guestPath,
			HostPath:  hostPath,
			ReadOnly:  readOnly,
		})
	}
}

// WithInstaller sets where InstallPackages fetches packages. The
// installer's directory is mounted read-only at /packages and put on
// PYTHONPATH.
func WithInstaller(inst Installer) SessionOption {
	return func(c *sessionConfig) {
		c.installer = inst
	}
}

// WithEnv sets an environment variable for every run.
func WithEnv(key, value string) SessionOption {
	return func(c *sessionConfig) {
		c.env[key] = value
	}
}
