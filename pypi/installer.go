// Package pypi installs pure-Python wheels from a PyPI-compatible index into
// a directory that sandboxed scripts import from.
package pypi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/caffeineduck/browserbox/internal/metrics"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

const (
	DefaultIndexURL       = "https://pypi.org/pypi"
	DefaultMaxURLLength   = 8192
	DefaultMaxWheelSize   = 64 << 20 // 64MB
	DefaultMaxMetaSize    = 8 << 20  // 8MB
	DefaultRequestTimeout = 60 * time.Second
	DefaultConcurrency    = 4
	DefaultRatePerSecond  = 10
)

// DefaultAllowedHosts are the hosts the installer talks to unless
// configured otherwise.
var DefaultAllowedHosts = []string{"pypi.org", "files.pythonhosted.org"}

// Config configures an Installer.
type Config struct {
	Dir      string // Directory to install packages into
	CacheDir string // Downloaded wheels; empty disables caching
	IndexURL string

	// Allowed, if set, restricts installs to these distributions.
	// "pkg" also permits "pkg[extra]".
	Allowed      []string
	AllowedHosts []string

	MaxURLLength   int
	MaxWheelSize   int64
	RequestTimeout time.Duration
	RatePerSecond  float64
	Concurrency    int

	Client *http.Client
	Logger *slog.Logger
}

// DefaultConfig returns the default installer configuration.
func DefaultConfig() Config {
	return Config{
		Dir:      filepath.Join(".browserbox", "python", "packages"),
		CacheDir: filepath.Join(".browserbox", "cache", "wheels"),
		IndexURL: DefaultIndexURL,
	}
}

// Package is an installed distribution.
type Package struct {
	Name    string `json:"name"`
	Version string `json:"version"`

	distInfo string
}

// Installer downloads and extracts wheels. It is safe for concurrent use.
type Installer struct {
	cfg     Config
	client  *http.Client
	limiter *rate.Limiter
	log     *slog.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// New creates an Installer, filling unset limits with defaults.
func New(cfg Config) *Installer {
	if cfg.Dir == "" {
		cfg.Dir = DefaultConfig().Dir
	}
	if cfg.IndexURL == "" {
		cfg.IndexURL = DefaultIndexURL
	}
	cfg.IndexURL = strings.TrimRight(cfg.IndexURL, "/")
	if len(cfg.AllowedHosts) == 0 {
		cfg.AllowedHosts = DefaultAllowedHosts
	}
	if cfg.MaxURLLength == 0 {
		cfg.MaxURLLength = DefaultMaxURLLength
	}
	if cfg.MaxWheelSize == 0 {
		cfg.MaxWheelSize = DefaultMaxWheelSize
	}
	if cfg.RequestTimeout == 0 {
		cfg.RequestTimeout = DefaultRequestTimeout
	}
	if cfg.RatePerSecond == 0 {
		cfg.RatePerSecond = DefaultRatePerSecond
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: cfg.RequestTimeout}
	}

	return &Installer{
		cfg:     cfg,
		client:  client,
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSecond), cfg.Concurrency),
		log:     cfg.Logger,
		locks:   make(map[string]*sync.Mutex),
	}
}

// Dir returns the install directory.
func (i *Installer) Dir() string {
	return i.cfg.Dir
}

// Install installs each requirement, fetching up to Concurrency packages at
// once. Already installed packages are skipped. The first failure cancels
// the remaining installs and is returned.
func (i *Installer) Install(ctx context.Context, specs ...string) error {
	if err := os.MkdirAll(i.cfg.Dir, 0o755); err != nil {
		return fmt.Errorf("create package dir: %w", err)
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(i.cfg.Concurrency)
	for _, spec := range specs {
		g.Go(func() error {
			return i.installOne(ctx, spec)
		})
	}
	return g.Wait()
}

func (i *Installer) installOne(ctx context.Context, raw string) error {
	spec, err := ParseSpec(raw)
	if err != nil {
		metrics.PackageInstalls.WithLabelValues("rejected").Inc()
		return fmt.Errorf("install %q: %w", raw, err)
	}
	if err := i.check(spec.Name); err != nil {
		metrics.PackageInstalls.WithLabelValues("rejected").Inc()
		return err
	}

	unlock := i.lock(spec.Name)
	defer unlock()

	if pkg, ok := i.installed(spec.Name); ok && (spec.Version == "" || pkg.Version == spec.Version) {
		i.log.Debug("package already installed", "package", pkg.Name, "version", pkg.Version)
		metrics.PackageInstalls.WithLabelValues("cached").Inc()
		return nil
	}

	if err := i.fetch(ctx, spec); err != nil {
		metrics.PackageInstalls.WithLabelValues("error").Inc()
		i.log.Warn("package install failed", "package", spec.Name, "error", err)
		return fmt.Errorf("install %s: %w", spec.Name, err)
	}
	metrics.PackageInstalls.WithLabelValues("ok").Inc()
	return nil
}

// check applies the blocklist and the allowlist.
func (i *Installer) check(name string) error {
	if reason, blocked := Blocked(name); blocked {
		return &BlockedError{Package: name, Reason: reason}
	}
	if len(i.cfg.Allowed) == 0 {
		return nil
	}
	norm := Normalize(name)
	for _, pkg := range i.cfg.Allowed {
		base, _, _ := strings.Cut(pkg, "[")
		if Normalize(base) == norm {
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrNotAllowed, name)
}

func (i *Installer) lock(name string) func() {
	key := Normalize(name)
	i.mu.Lock()
	l, ok := i.locks[key]
	if !ok {
		l = &sync.Mutex{}
		i.locks[key] = l
	}
	i.mu.Unlock()
	l.Lock()
	return l.Unlock
}

type releaseFile struct {
	PackageType string `json:"packagetype"`
	Filename    string `json:"filename"`
	URL         string `json:"url"`
	Size        int64  `json:"size"`
}

type projectInfo struct {
	Info struct {
		Name    string `json:"name"`
		Version string `json:"version"`
	} `json:"info"`
	URLs []releaseFile `json:"urls"`
}

func (i *Installer) fetch(ctx context.Context, spec Spec) error {
	metaURL := i.cfg.IndexURL + "/" + url.PathEscape(spec.Name)
	if spec.Version != "" {
		metaURL += "/" + url.PathEscape(spec.Version)
	}
	metaURL += "/json"

	body, err := i.get(ctx, metaURL, DefaultMaxMetaSize)
	if err != nil {
		return err
	}

	var info projectInfo
	if err := json.Unmarshal(body, &info); err != nil {
		return fmt.Errorf("parse index response: %w", err)
	}

	wheel, ok := findWheel(info.URLs)
	if !ok {
		return ErrNoWheel
	}
	if wheel.Size > i.cfg.MaxWheelSize {
		return fmt.Errorf("%s: %w", wheel.Filename, ErrTooLarge)
	}

	data, err := i.download(ctx, wheel)
	if err != nil {
		return err
	}

	i.log.Info("installing package", "package", info.Info.Name, "version", info.Info.Version, "wheel", wheel.Filename)
	return extractWheel(data, i.cfg.Dir)
}

func (i *Installer) download(ctx context.Context, wheel releaseFile) ([]byte, error) {
	name := filepath.Base(wheel.Filename)
	if i.cfg.CacheDir != "" && name != "." && name != "/" {
		cached := filepath.Join(i.cfg.CacheDir, name)
		if data, err := os.ReadFile(cached); err == nil {
			return data, nil
		}
		data, err := i.get(ctx, wheel.URL, i.cfg.MaxWheelSize)
		if err != nil {
			return nil, err
		}
		if err := os.MkdirAll(i.cfg.CacheDir, 0o755); err == nil {
			if err := os.WriteFile(cached, data, 0o644); err != nil {
				i.log.Debug("cache wheel", "wheel", name, "error", err)
			}
		}
		return data, nil
	}
	return i.get(ctx, wheel.URL, i.cfg.MaxWheelSize)
}

// get fetches rawURL from an allowed host, reading at most limit bytes.
func (i *Installer) get(ctx context.Context, rawURL string, limit int64) ([]byte, error) {
	if len(rawURL) > i.cfg.MaxURLLength {
		return nil, errors.New("url exceeds max length")
	}
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid url: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, errors.New("scheme must be http or https")
	}
	if !slices.Contains(i.cfg.AllowedHosts, parsed.Hostname()) {
		return nil, fmt.Errorf("%w: %s", ErrHostNotAllowed, parsed.Hostname())
	}

	if err := i.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := i.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, ErrNotFound
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("index returned status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if int64(len(data)) > limit {
		return nil, ErrTooLarge
	}
	return data, nil
}

// findWheel picks a pure Python 3 wheel. No C extensions work in WASM.
func findWheel(files []releaseFile) (releaseFile, bool) {
	for _, f := range files {
		if f.PackageType != "bdist_wheel" {
			continue
		}
		name := strings.ToLower(f.Filename)
		if strings.HasSuffix(name, "-py3-none-any.whl") || strings.HasSuffix(name, "-py2.py3-none-any.whl") {
			return f, true
		}
	}
	return releaseFile{}, false
}

// List returns installed packages sorted by name.
func (i *Installer) List() ([]Package, error) {
	entries, err := os.ReadDir(i.cfg.Dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}

	var pkgs []Package
	for _, e := range entries {
		if pkg, ok := parseDistInfo(e.Name()); ok && e.IsDir() {
			pkgs = append(pkgs, pkg)
		}
	}
	slices.SortFunc(pkgs, func(a, b Package) int { return strings.Compare(Normalize(a.Name), Normalize(b.Name)) })
	return pkgs, nil
}

// Installed reports whether name is installed, and which version.
func (i *Installer) Installed(name string) (Package, bool) {
	return i.installed(name)
}

func (i *Installer) installed(name string) (Package, bool) {
	pkgs, err := i.List()
	if err != nil {
		return Package{}, false
	}
	norm := Normalize(name)
	for _, p := range pkgs {
		if Normalize(p.Name) == norm {
			return p, true
		}
	}
	return Package{}, false
}

// Remove uninstalls name using the wheel's RECORD, falling back to its
// top-level module names.
func (i *Installer) Remove(name string) error {
	unlock := i.lock(name)
	defer unlock()

	pkg, ok := i.installed(name)
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}

	distInfo := filepath.Join(i.cfg.Dir, pkg.distInfo)
	for _, top := range topLevel(distInfo, pkg.Name) {
		for _, p := range []string{top, top + ".py"} {
			target := filepath.Join(i.cfg.Dir, p)
			if !strings.HasPrefix(target, filepath.Clean(i.cfg.Dir)+string(filepath.Separator)) {
				continue
			}
			if err := os.RemoveAll(target); err != nil {
				return fmt.Errorf("remove %s: %w", name, err)
			}
		}
	}
	if err := os.RemoveAll(distInfo); err != nil {
		return fmt.Errorf("remove %s: %w", name, err)
	}
	i.log.Info("package removed", "package", pkg.Name)
	return nil
}

// ClearCache deletes downloaded wheels.
func (i *Installer) ClearCache() error {
	if i.cfg.CacheDir == "" {
		return nil
	}
	if err := os.RemoveAll(i.cfg.CacheDir); err != nil {
		return fmt.Errorf("clear cache: %w", err)
	}
	return nil
}
