package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
)

// ErrExecutorClosed is returned when compiling after Close.
var ErrExecutorClosed = errors.New("executor closed")

// Executor manages the WASM runtime and compiled module caching. One
// Executor is shared by every Session in a process. Modules are cached per
// interpreter build, so two Python binaries can be served side by side.
type Executor struct {
	runtime  wazero.Runtime
	cache    wazero.CompilationCache
	log      *slog.Logger
	compiled map[moduleKey]wazero.CompiledModule
	mu       sync.RWMutex
	closed   bool
}

type moduleKey struct {
	name string
	sum  uint64
}

func keyOf(lang Language) moduleKey {
	if d, ok := lang.(ModuleDigester); ok {
		return moduleKey{name: lang.Name(), sum: d.ModuleDigest()}
	}
	return moduleKey{name: lang.Name(), sum: xxhash.Sum64(lang.Module())}
}

// New creates an Executor.
func New(opts ...ExecutorOption) (*Executor, error) {
	cfg := defaultExecutorConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	ctx := context.Background()

	var cache wazero.CompilationCache
	var err error

	if cfg.diskCache {
		cacheDir := cfg.cacheDir
		if cacheDir == "" {
			cacheDir = DefaultCacheDir()
		}
		cache, err = wazero.NewCompilationCacheWithDir(cacheDir)
		if err != nil {
			return nil, fmt.Errorf("create disk cache: %w", err)
		}
	}

	rtConfig := wazero.NewRuntimeConfig().WithCloseOnContextDone(true)
	if cache != nil {
		rtConfig = rtConfig.WithCompilationCache(cache)
	}
	if cfg.memoryLimitPages > 0 {
		rtConfig = rtConfig.WithMemoryLimitPages(cfg.memoryLimitPages)
	}

	rt := wazero.NewRuntimeWithConfig(ctx, rtConfig)
	if _, err := wasi_snapshot_preview1.Instantiate(ctx, rt); err != nil {
		if cache != nil {
			cache.Close(ctx)
		}
		rt.Close(ctx)
		return nil, fmt.Errorf("instantiate WASI: %w", err)
	}

	e := &Executor{
		runtime:  rt,
		cache:    cache,
		log:      cfg.logger,
		compiled: make(map[moduleKey]wazero.CompiledModule),
	}

	for _, lang := range cfg.precompile {
		if _, err := e.getCompiled(ctx, lang); err != nil {
			e.Close()
			return nil, fmt.Errorf("precompile %s: %w", lang.Name(), err)
		}
	}

	return e, nil
}

// getCompiled returns a cached compiled module, compiling if necessary.
func (e *Executor) getCompiled(ctx context.Context, lang Language) (wazero.CompiledModule, error) {
	key := keyOf(lang)

	e.mu.RLock()
	if e.closed {
		e.mu.RUnlock()
		return nil, ErrExecutorClosed
	}
	if compiled, ok := e.compiled[key]; ok {
		e.mu.RUnlock()
		return compiled, nil
	}
	e.mu.RUnlock()

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil, ErrExecutorClosed
	}
	if compiled, ok := e.compiled[key]; ok {
		return compiled, nil
	}

	module := lang.Module()
	if len(module) == 0 {
		return nil, fmt.Errorf("compile %s: empty module", key.name)
	}

	start := time.Now()
	compiled, err := e.runtime.CompileModule(ctx, module)
	if err != nil {
		return nil, fmt.Errorf("compile %s: %w", key.name, err)
	}
	e.log.Info("module compiled",
		"language", key.name,
		"size", len(module),
		"cached", e.cache != nil,
		"duration", time.Since(start).Round(time.Millisecond))

	e.compiled[key] = compiled
	return compiled, nil
}

// Compiled reports whether this build of lang has already been compiled.
func (e *Executor) Compiled(lang Language) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	_, ok := e.compiled[keyOf(lang)]
	return ok
}

// Close releases all resources held by the Executor.
func (e *Executor) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil
	}
	e.closed = true

	ctx := context.Background()

	var errs []error
	if err := e.runtime.Close(ctx); err != nil {
		errs = append(errs, err)
	}
	if e.cache != nil {
		if err := e.cache.Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

// DefaultCacheDir returns the directory used for the on-disk compilation
// cache when none is configured.
func DefaultCacheDir() string {
	if dir := os.Getenv("XDG_CACHE_HOME"); dir != "" {
		return filepath.Join(dir, "browserbox")
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".cache", "browserbox")
	}
	return filepath.Join(os.TempDir(), "browserbox-cache")
}
