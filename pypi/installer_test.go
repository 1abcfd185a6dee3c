package pypi

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildWheel(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range files {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

type fakeIndex struct {
	*httptest.Server
	wheels   map[string][]byte // project -> wheel
	names    map[string]string // project -> wheel filename
	requests atomic.Int32
}

func newFakeIndex(t *testing.T) *fakeIndex {
	t.Helper()
	idx := &fakeIndex{
		wheels: make(map[string][]byte),
		names:  make(map[string]string),
	}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /pypi/{name}/json", func(w http.ResponseWriter, r *http.Request) {
		idx.requests.Add(1)
		name := r.PathValue("name")
		filename, ok := idx.names[name]
		if !ok {
			http.NotFound(w, r)
			return
		}
		resp := map[string]any{
			"info": map[string]string{"name": name, "version": "1.0.0"},
			"urls": []map[string]any{
				{"packagetype": "sdist", "filename": name + "-1.0.0.tar.gz", "url": idx.URL + "/files/" + name + ".tar.gz"},
				{"packagetype": "bdist_wheel", "filename": filename, "url": idx.URL + "/files/" + filename},
			},
		}
		json.NewEncoder(w).Encode(resp)
	})
	mux.HandleFunc("GET /files/{file}", func(w http.ResponseWriter, r *http.Request) {
		idx.requests.Add(1)
		for name, filename := range idx.names {
			if filename == r.PathValue("file") {
				w.Write(idx.wheels[name])
				return
			}
		}
		http.NotFound(w, r)
	})
	idx.Server = httptest.NewServer(mux)
	t.Cleanup(idx.Close)
	return idx
}

func (f *fakeIndex) add(t *testing.T, name, tag string, files map[string]string) {
	t.Helper()
	f.names[name] = fmt.Sprintf("%s-1.0.0-%s.whl", name, tag)
	f.wheels[name] = buildWheel(t, files)
}

func newTestInstaller(t *testing.T, idx *fakeIndex, mutate ...func(*Config)) *Installer {
	t.Helper()
	cfg := Config{
		Dir:          filepath.Join(t.TempDir(), "packages"),
		CacheDir:     filepath.Join(t.TempDir(), "cache"),
		IndexURL:     idx.URL + "/pypi",
		AllowedHosts: []string{"127.0.0.1"},
		Client:       idx.Client(),
	}
	for _, m := range mutate {
		m(&cfg)
	}
	return New(cfg)
}

func TestInstallPureWheel(t *testing.T) {
	idx := newFakeIndex(t)
	idx.add(t, "tabulate", "py3-none-any", map[string]string{
		"tabulate/__init__.py":                   "def tabulate(rows): pass\n",
		"tabulate-1.0.0.dist-info/METADATA":      "Name: tabulate\n",
		"tabulate-1.0.0.dist-info/top_level.txt": "tabulate\n",
	})
	inst := newTestInstaller(t, idx)

	require.NoError(t, inst.Install(context.Background(), "tabulate"))

	data, err := os.ReadFile(filepath.Join(inst.Dir(), "tabulate", "__init__.py"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "def tabulate")

	pkgs, err := inst.List()
	require.NoError(t, err)
	require.Len(t, pkgs, 1)
	assert.Equal(t, "tabulate", pkgs[0].Name)
	assert.Equal(t, "1.0.0", pkgs[0].Version)

	pkg, ok := inst.Installed("Tabulate")
	assert.True(t, ok)
	assert.Equal(t, "1.0.0", pkg.Version)
}

func TestInstallSkipsInstalled(t *testing.T) {
	idx := newFakeIndex(t)
	idx.add(t, "six", "py2.py3-none-any", map[string]string{
		"six.py":                     "",
		"six-1.0.0.dist-info/RECORD": "six.py,,\n",
	})
	inst := newTestInstaller(t, idx)

	require.NoError(t, inst.Install(context.Background(), "six"))
	before := idx.requests.Load()
	require.NoError(t, inst.Install(context.Background(), "six>=1"))
	assert.Equal(t, before, idx.requests.Load(), "second install should not hit the index")
}

func TestInstallUsesWheelCache(t *testing.T) {
	idx := newFakeIndex(t)
	idx.add(t, "attrs", "py3-none-any", map[string]string{
		"attrs/__init__.py":            "",
		"attrs-1.0.0.dist-info/RECORD": "attrs/__init__.py,,\n",
	})
	inst := newTestInstaller(t, idx)

	require.NoError(t, inst.Install(context.Background(), "attrs"))
	require.NoError(t, inst.Remove("attrs"))
	before := idx.requests.Load()
	require.NoError(t, inst.Install(context.Background(), "attrs"))
	assert.Equal(t, before+1, idx.requests.Load(), "only metadata should be fetched again")

	require.NoError(t, inst.ClearCache())
	_, err := os.Stat(inst.cfg.CacheDir)
	assert.True(t, os.IsNotExist(err))
}

func TestInstallRejectsNativeWheel(t *testing.T) {
	idx := newFakeIndex(t)
	idx.add(t, "fastthing", "py3-none-any", map[string]string{
		"fastthing/__init__.py":  "",
		"fastthing/_speedups.so": "\x7fELF",
	})
	inst := newTestInstaller(t, idx)

	err := inst.Install(context.Background(), "fastthing")
	require.ErrorIs(t, err, ErrNativeCode)
	_, statErr := os.Stat(filepath.Join(inst.Dir(), "fastthing"))
	assert.True(t, os.IsNotExist(statErr), "nothing should be extracted")
}

func TestInstallRejectsPlatformWheel(t *testing.T) {
	idx := newFakeIndex(t)
	idx.add(t, "ujson", "cp312-cp312-manylinux_2_17_x86_64", map[string]string{"ujson.py": ""})
	inst := newTestInstaller(t, idx)

	require.ErrorIs(t, inst.Install(context.Background(), "ujson"), ErrNoWheel)
}

func TestInstallRejectsZipSlip(t *testing.T) {
	idx := newFakeIndex(t)
	idx.add(t, "evil", "py3-none-any", map[string]string{"../../escape.py": "boom"})
	inst := newTestInstaller(t, idx)

	err := inst.Install(context.Background(), "evil")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsafe path")
}

func TestInstallNotFound(t *testing.T) {
	idx := newFakeIndex(t)
	inst := newTestInstaller(t, idx)

	require.ErrorIs(t, inst.Install(context.Background(), "doesnotexist"), ErrNotFound)
}

func TestInstallBlocked(t *testing.T) {
	idx := newFakeIndex(t)
	inst := newTestInstaller(t, idx)

	err := inst.Install(context.Background(), "NumPy==1.26")
	require.ErrorIs(t, err, ErrBlocked)
	assert.Contains(t, err.Error(), "C extensions")
	assert.Zero(t, idx.requests.Load())
}

func TestInstallAllowlist(t *testing.T) {
	idx := newFakeIndex(t)
	idx.add(t, "requests_toolbelt", "py3-none-any", map[string]string{"requests_toolbelt/__init__.py": ""})
	inst := newTestInstaller(t, idx, func(c *Config) {
		c.Allowed = []string{"requests-toolbelt[all]"}
	})

	require.NoError(t, inst.Install(context.Background(), "requests_toolbelt"))
	require.ErrorIs(t, inst.Install(context.Background(), "attrs"), ErrNotAllowed)
}

func TestInstallInvalidNames(t *testing.T) {
	inst := New(Config{Dir: t.TempDir()})
	for _, name := range []string{"", "foo|bar", "$(whoami)", "-leading", "a b c"} {
		err := inst.Install(context.Background(), name)
		assert.ErrorIs(t, err, ErrInvalidName, "name %q", name)
	}
}

func TestInstallHostNotAllowed(t *testing.T) {
	idx := newFakeIndex(t)
	inst := newTestInstaller(t, idx, func(c *Config) {
		c.AllowedHosts = []string{"pypi.org"}
	})

	require.ErrorIs(t, inst.Install(context.Background(), "anything"), ErrHostNotAllowed)
}

func TestInstallWheelTooLarge(t *testing.T) {
	idx := newFakeIndex(t)
	idx.add(t, "big", "py3-none-any", map[string]string{"big.py": strings.Repeat("x", 4096)})
	inst := newTestInstaller(t, idx, func(c *Config) {
		c.MaxWheelSize = 64
	})

	require.ErrorIs(t, inst.Install(context.Background(), "big"), ErrTooLarge)
}

func TestInstallConcurrent(t *testing.T) {
	idx := newFakeIndex(t)
	names := []string{"alpha", "beta", "gamma", "delta", "epsilon"}
	for _, n := range names {
		idx.add(t, n, "py3-none-any", map[string]string{
			n + ".py":                     "",
			n + "-1.0.0.dist-info/RECORD": n + ".py,,\n",
		})
	}
	inst := newTestInstaller(t, idx, func(c *Config) { c.Concurrency = 2 })

	require.NoError(t, inst.Install(context.Background(), names...))
	pkgs, err := inst.List()
	require.NoError(t, err)
	assert.Len(t, pkgs, len(names))
}

func TestRemove(t *testing.T) {
	idx := newFakeIndex(t)
	idx.add(t, "python_dateutil", "py2.py3-none-any", map[string]string{
		"dateutil/__init__.py":                          "",
		"dateutil/parser.py":                            "",
		"python_dateutil-1.0.0.dist-info/top_level.txt": "dateutil\n",
	})
	inst := newTestInstaller(t, idx)
	require.NoError(t, inst.Install(context.Background(), "python_dateutil"))

	require.NoError(t, inst.Remove("python-dateutil"))
	entries, err := os.ReadDir(inst.Dir())
	require.NoError(t, err)
	assert.Empty(t, entries)

	require.ErrorIs(t, inst.Remove("python-dateutil"), ErrNotFound)
}

func TestListEmptyDir(t *testing.T) {
	inst := New(Config{Dir: filepath.Join(t.TempDir(), "missing")})
	pkgs, err := inst.List()
	require.NoError(t, err)
	assert.Empty(t, pkgs)
}
