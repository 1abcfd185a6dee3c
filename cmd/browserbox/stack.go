package main

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"slices"
	"strings"

	"github.com/caffeineduck/browserbox/executor"
	"github.com/caffeineduck/browserbox/history"
	"github.com/caffeineduck/browserbox/internal/config"
	"github.com/caffeineduck/browserbox/internal/logging"
	"github.com/caffeineduck/browserbox/language/python"
	"github.com/caffeineduck/browserbox/pypi"
	"github.com/caffeineduck/browserbox/session"
)

// stack is everything a command needs to run scripts: the shared executor,
// the interpreter, the package installer and the run log.
type stack struct {
	cfg     config.Config
	log     *slog.Logger
	exec    *executor.Executor
	lang    *python.Python
	inst    *pypi.Installer
	history *history.Store
}

func newLogger(cfg config.Config) *slog.Logger {
	return logging.New(cfg.Log.Level, cfg.Log.Format, os.Stderr)
}

func openStack(cfg config.Config, log *slog.Logger, precompile bool) (*stack, error) {
	lang, err := python.Load(cfg.Runtime.WasmPath)
	if err != nil {
		return nil, fmt.Errorf("load python: %w (set --python or %s)", err, python.EnvWasmPath)
	}

	execOpts := []executor.ExecutorOption{executor.WithLogger(log)}
	if cfg.Runtime.DiskCache {
		execOpts = append(execOpts, executor.WithDiskCache(cfg.Runtime.CacheDir))
	}
	if pages := cfg.Runtime.MemoryPages(); pages > 0 {
		execOpts = append(execOpts, executor.WithMemoryLimit(pages))
	}
	if precompile {
		execOpts = append(execOpts, executor.WithPrecompile(lang))
	}

	exec, err := executor.New(execOpts...)
	if err != nil {
		return nil, err
	}

	st := &stack{
		cfg:  cfg,
		log:  log,
		exec: exec,
		lang: lang,
		inst: newInstaller(cfg, log),
	}

	if cfg.History.Enabled {
		st.history, err = history.Open(cfg.History.Path)
		if err != nil {
			exec.Close()
			return nil, err
		}
	}
	return st, nil
}

func newInstaller(cfg config.Config, log *slog.Logger) *pypi.Installer {
	hosts := slices.Clone(pypi.DefaultAllowedHosts)
	if u, err := url.Parse(cfg.Packages.IndexURL); err == nil && u.Hostname() != "" && !slices.Contains(hosts, u.Hostname()) {
		hosts = append(hosts, u.Hostname())
	}
	return pypi.New(pypi.Config{
		Dir:            cfg.Packages.Dir,
		CacheDir:       cfg.Packages.CacheDir,
		IndexURL:       cfg.Packages.IndexURL,
		Allowed:        cfg.Packages.Allowed,
		AllowedHosts:   hosts,
		MaxWheelSize:   cfg.Packages.MaxWheelSize,
		RequestTimeout: cfg.Packages.RequestTimeout,
		Concurrency:    cfg.Packages.Concurrency,
		Logger:         log,
	})
}

func (s *stack) runtimeOptions() []executor.SessionOption {
	opts := []executor.SessionOption{executor.WithInstaller(s.inst)}
	if s.cfg.Runtime.Timeout > 0 {
		opts = append(opts, executor.WithTimeout(s.cfg.Runtime.Timeout))
	}
	for _, m := range s.cfg.Runtime.Mounts {
		opts = append(opts, executor.WithMount(m.Guest, m.Host, m.ReadOnly))
	}
	return opts
}

func (s *stack) sessionOptions() []session.Option {
	opts := []session.Option{
		session.WithLogger(s.log),
		session.WithInferredInstall(s.cfg.Packages.Install),
	}
	if s.history != nil {
		opts = append(opts, session.WithHistory(s.history))
	}
	return opts
}

func (s *stack) newSession(extra ...session.Option) (*session.Session, error) {
	rt, err := s.exec.NewSession(s.lang, s.runtimeOptions()...)
	if err != nil {
		return nil, err
	}
	return session.New(rt, append(s.sessionOptions(), extra...)...), nil
}

func (s *stack) newManager() *session.Manager {
	return session.NewManager(
		session.ExecutorRuntimes(s.exec, s.lang, s.runtimeOptions()...),
		s.log,
		s.sessionOptions()...,
	)
}

func (s *stack) Close() error {
	var errs []error
	if s.history != nil {
		errs = append(errs, s.history.Close())
	}
	errs = append(errs, s.exec.Close())
	return errors.Join(errs...)
}

// parseMount parses guest:host[:ro|rw].
func parseMount(spec string) (config.MountConfig, error) {
	parts := strings.Split(spec, ":")
	if len(parts) < 2 || len(parts) > 3 || parts[0] == "" || parts[1] == "" {
		return config.MountConfig{}, fmt.Errorf("invalid mount spec %q (expected guest:host[:ro|rw])", spec)
	}

	m := config.MountConfig{Guest: parts[0], Host: parts[1]}
	if len(parts) == 3 {
		switch parts[2] {
		case "ro":
			m.ReadOnly = true
		case "rw":
		default:
			return config.MountConfig{}, fmt.Errorf("invalid mount mode %q (expected ro or rw)", parts[2])
		}
	}
	return m, nil
}
