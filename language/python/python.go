// Package python provides the Python language adapter for browserbox.
//
// The interpreter is a WASI build of RustPython. It is not embedded; fetch
// it once with
//
//	BROWSERBOX_PYTHON_URL=<release url> go generate ./language/python
//
// or point BROWSERBOX_PYTHON_WASM at an existing build.
package python

//go:generate go run ../../internal/tools/download $BROWSERBOX_PYTHON_URL python.wasm

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/cespare/xxhash/v2"
)

// EnvWasmPath overrides the interpreter location used by DefaultPath.
const EnvWasmPath = "BROWSERBOX_PYTHON_WASM"

var wasmMagic = []byte{0x00, 'a', 's', 'm'}

// ErrNotWasm is returned by Load for files without the WASM magic header.
var ErrNotWasm = errors.New("not a wasm module")

// Python implements the executor.Language interface for Python execution.
type Python struct {
	wasm   []byte
	digest uint64
}

// New returns a Python adapter for the given interpreter binary.
func New(wasm []byte) *Python {
	return &Python{wasm: wasm, digest: xxhash.Sum64(wasm)}
}

// Load reads the interpreter binary from path.
func Load(path string) (*Python, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load python interpreter: %w", err)
	}
	if !bytes.HasPrefix(data, wasmMagic) {
		return nil, fmt.Errorf("load python interpreter %s: %w", path, ErrNotWasm)
	}
	return New(data), nil
}

// DefaultPath returns $BROWSERBOX_PYTHON_WASM, or python.wasm under the
// local .browserbox directory.
func DefaultPath() string {
	if p := os.Getenv(EnvWasmPath); p != "" {
		return p
	}
	return filepath.Join(".browserbox", "python.wasm")
}

// Name returns "python".
func (p *Python) Name() string {
	return "python"
}

// Module returns the RustPython WASM binary.
func (p *Python) Module() []byte {
	return p.wasm
}

// ModuleDigest returns the xxhash of the binary, computed once by New.
func (p *Python) ModuleDigest() uint64 {
	return p.digest
}

// Args returns the command-line arguments for the Python interpreter.
func (p *Python) Args(scriptPath string) []string {
	return []string{"python", scriptPath}
}

// Env disables bytecode caching and buffering so output streams promptly
// and the working filesystem only holds script files.
func (p *Python) Env() map[string]string {
	return map[string]string{
		"PYTHONDONTWRITEBYTECODE": "1",
		"PYTHONUNBUFFERED":        "1",
		"PYTHONIOENCODING":        "utf-8",
		"HOME":                    "/",
	}
}
