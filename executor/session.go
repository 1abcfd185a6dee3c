package executor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/sys"
)

var (
	ErrSessionClosed = errors.New("session closed")
	ErrSessionBusy   = errors.New("session busy")
	ErrNoInstaller   = errors.New("no package installer configured")
)

// PackagesPath is where installed packages appear to scripts.
const PackagesPath = "/packages"

// Installer fetches packages into a directory scripts can import from.
type Installer interface {
	Install(ctx context.Context, names ...string) error
	Dir() string
}

// Session is a persistent script filesystem plus the means to run a
// script against it. Every Run starts a fresh interpreter; only files
// persist between runs.
type Session struct {
	exec   *Executor
	lang   Language
	cfg    sessionConfig
	root   string
	mounts []Mount

	mu     sync.Mutex
	execMu sync.Mutex
	closed bool
}

// NewSession creates a session for lang with an empty working filesystem.
func (e *Executor) NewSession(lang Language, opts ...SessionOption) (*Session, error) {
	cfg := defaultSessionConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	mounts := cfg.mounts
	if cfg.installer != nil {
		mounts = append(mounts, Mount{
			GuestPath: PackagesPath,
			HostPath:  cfg.installer.Dir(),
			ReadOnly:  true,
		})
		cfg.env["PYTHONPATH"] = PackagesPath
	}

	dir, err := os.MkdirTemp("", "browserbox-session-*")
	if err != nil {
		return nil, fmt.Errorf("create session root: %w", err)
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		os.RemoveAll(dir)
		return nil, fmt.Errorf("resolve session root: %w", err)
	}

	return &Session{
		exec:   e,
		lang:   lang,
		cfg:    cfg,
		root:   abs,
		mounts: normalizeMounts(mounts),
	}, nil
}

// Root returns the host directory backing the session filesystem.
func (s *Session) Root() string {
	return s.root
}

func (s *Session) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// WriteFile creates or replaces a file, creating parent directories.
func (s *Session) WriteFile(name string, data []byte) error {
	if s.isClosed() {
		return ErrSessionClosed
	}
	p, err := resolve(s.root, name, s.mounts)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	return os.WriteFile(p, data, 0o644)
}

// ReadFile returns the content of a file in the session filesystem.
func (s *Session) ReadFile(name string) ([]byte, error) {
	if s.isClosed() {
		return nil, ErrSessionClosed
	}
	p, err := resolve(s.root, name, s.mounts)
	if err != nil {
		return nil, err
	}
	return os.ReadFile(p)
}

// ListFiles returns every regular file in the session filesystem as a
// slash-separated relative path, in lexical order. Bytecode caches are
// skipped.
func (s *Session) ListFiles() ([]string, error) {
	if s.isClosed() {
		return nil, ErrSessionClosed
	}

	var paths []string
	err := filepath.WalkDir(s.root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if d.Name() == "__pycache__" {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(s.root, p)
		if err != nil {
			return err
		}
		paths = append(paths, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list files: %w", err)
	}
	return paths, nil
}

// Reset empties the session filesystem. Installed packages are kept.
func (s *Session) Reset() error {
	if s.isClosed() {
		return ErrSessionClosed
	}
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return fmt.Errorf("reset: %w", err)
	}
	for _, e := range entries {
		if err := os.RemoveAll(filepath.Join(s.root, e.Name())); err != nil {
			return fmt.Errorf("reset: %w", err)
		}
	}
	return nil
}

// InstallPackages makes names importable by later runs.
func (s *Session) InstallPackages(ctx context.Context, names []string) error {
	if s.isClosed() {
		return ErrSessionClosed
	}
	if s.cfg.installer == nil {
		return ErrNoInstaller
	}
	return s.cfg.installer.Install(ctx, names...)
}

// Run executes the script at scriptPath, streaming its output to stdout and
// stderr. A script that exits non-zero returns its exit code with a nil
// error; err is reserved for failures of the runtime itself, including
// cancellation.
func (s *Session) Run(ctx context.Context, scriptPath string, stdout, stderr io.Writer) (int, error) {
	if !s.execMu.TryLock() {
		return -1, ErrSessionBusy
	}
	defer s.execMu.Unlock()

	if s.isClosed() {
		return -1, ErrSessionClosed
	}
	if _, err := resolve(s.root, scriptPath, s.mounts); err != nil {
		return -1, err
	}

	compiled, err := s.exec.getCompiled(ctx, s.lang)
	if err != nil {
		return -1, err
	}

	if s.cfg.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.timeout)
		defer cancel()
	}

	fsConfig := wazero.NewFSConfig().WithDirMount(s.root, "/")
	for _, m := range s.mounts {
		if m.ReadOnly {
			fsConfig = fsConfig.WithReadOnlyDirMount(m.HostPath, m.GuestPath)
		} else {
			fsConfig = fsConfig.WithDirMount(m.HostPath, m.GuestPath)
		}
	}

	moduleConfig := wazero.NewModuleConfig().
		WithStdout(stdout).
		WithStderr(stderr).
		WithArgs(s.lang.Args(guestPath(scriptPath))...).
		WithFSConfig(fsConfig).
		WithSysWalltime().
		WithSysNanotime().
		WithSysNanosleep().
		WithName("")

	for k, v := range s.lang.Env() {
		moduleConfig = moduleConfig.WithEnv(k, v)
	}
	for k, v := range s.cfg.env {
		moduleConfig = moduleConfig.WithEnv(k, v)
	}

	mod, err := s.exec.runtime.InstantiateModule(ctx, compiled, moduleConfig)
	if mod != nil {
		mod.Close(context.Background())
	}
	return s.exitStatus(ctx, err)
}

func (s *Session) exitStatus(ctx context.Context, err error) (int, error) {
	if err == nil {
		return 0, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		if errors.Is(ctxErr, context.DeadlineExceeded) && s.cfg.timeout > 0 {
			return -1, fmt.Errorf("timeout after %v: %w", s.cfg.timeout, ctxErr)
		}
		return -1, fmt.Errorf("execution interrupted: %w", ctxErr)
	}
	var exitErr *sys.ExitError
	if errors.As(err, &exitErr) {
		return int(exitErr.ExitCode()), nil
	}
	return -1, fmt.Errorf("execution failed: %w", err)
}

// Close releases the session and removes its root.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	return os.RemoveAll(s.root)
}

func guestPath(name string) string {
	return filepath.ToSlash(filepath.Clean("/" + name))
}
