package coordinator

import (
	"io"
	"log/slog"
)

// Option configures a Coordinator.
type Option func(*config)

type config struct {
	logger       *slog.Logger
	listener     func(from, to State)
	inferInstall bool
}

func defaultConfig() config {
	return config{
		logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
		inferInstall: true,
	}
}

// WithLogger sets the structured logger for lifecycle events.
func WithLogger(l *slog.Logger) Option {
	return func(c *config) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithStateListener registers fn to observe every state transition. It is
// called synchronously, outside the coordinator's lock.
func WithStateListener(fn func(from, to State)) Option {
	return func(c *config) {
		c.listener = fn
	}
}

// WithInferredInstall controls whether packages found by scanning the
// script's imports are installed before it runs. Enabled by default.
func WithInferredInstall(enabled bool) Option {
	return func(c *config) {
		c.inferInstall = enabled
	}
}

// RunOption configures a single run.
type RunOption func(*runConfig)

type runConfig struct {
	sink         func(Chunk)
	onState      func(from, to State)
	requirements []string
}

// WithOutput streams each output chunk to fn as soon as it is produced.
func WithOutput(fn func(Chunk)) RunOption {
	return func(c *runConfig) {
		c.sink = fn
	}
}

// WithRequirements declares packages the script cannot run without. A
// declared package that fails to install aborts the run.
func WithRequirements(pkgs ...string) RunOption {
	return func(c *runConfig) {
		c.requirements = append(c.requirements, pkgs...)
	}
}

// WithRunStateListener observes the state transitions of this run only.
func WithRunStateListener(fn func(from, to State)) RunOption {
	return func(c *runConfig) {
		c.onState = fn
	}
}
