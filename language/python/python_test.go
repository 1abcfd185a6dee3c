package python

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/cespare/xxhash/v2"
)

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "python.wasm")
	os.WriteFile(good, []byte("\x00asm\x01\x00\x00\x00"), 0o644)

	lang, err := Load(good)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if len(lang.Module()) != 8 {
		t.Errorf("unexpected module size %d", len(lang.Module()))
	}

	bad := filepath.Join(dir, "python.txt")
	os.WriteFile(bad, []byte("print('hi')"), 0o644)
	if _, err := Load(bad); !errors.Is(err, ErrNotWasm) {
		t.Errorf("expected ErrNotWasm, got %v", err)
	}

	if _, err := Load(filepath.Join(dir, "missing.wasm")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("expected not-exist error, got %v", err)
	}
}

func TestDefaultPath(t *testing.T) {
	t.Setenv(EnvWasmPath, "/opt/python.wasm")
	if got := DefaultPath(); got != "/opt/python.wasm" {
		t.Errorf("expected env override, got %q", got)
	}

	t.Setenv(EnvWasmPath, "")
	if got := DefaultPath(); got != filepath.Join(".browserbox", "python.wasm") {
		t.Errorf("unexpected default %q", got)
	}
}

func TestArgs(t *testing.T) {
	args := New(nil).Args("/main.py")
	if len(args) != 2 || args[0] != "python" || args[1] != "/main.py" {
		t.Errorf("unexpected args %v", args)
	}
}

func TestEnv(t *testing.T) {
	env := New(nil).Env()
	if env["PYTHONDONTWRITEBYTECODE"] != "1" {
		t.Error("bytecode caching should be disabled")
	}
	if New(nil).Name() != "python" {
		t.Error("name should be python")
	}
}

func TestModuleDigest(t *testing.T) {
	wasm := []byte("\x00asm\x01\x00\x00\x00")
	lang := New(wasm)
	if lang.ModuleDigest() != xxhash.Sum64(wasm) {
		t.Error("digest should be the xxhash of the module")
	}
	if New([]byte("\x00asm\x01\x00\x00\x01")).ModuleDigest() == lang.ModuleDigest() {
		t.Error("different builds should have different digests")
	}
}
