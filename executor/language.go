package executor

// Language defines the interface for a WASM-based interpreter.
// Implement this interface to run scripts written in another language.
type Language interface {
	// Name returns a unique identifier for this language (e.g., "python").
	// Used as the cache key for compiled modules.
	Name() string

	// Module returns the WASM binary for the language interpreter.
	Module() []byte

	// Args returns the command-line arguments that run the script at
	// scriptPath, a guest path such as "/main.py".
	// For Python: []string{"python", "/main.py"}
	Args(scriptPath string) []string

	// Env returns environment variables every run of this language needs.
	Env() map[string]string
}

// ModuleDigester is implemented by languages that hash their module once.
// The digest must equal xxhash.Sum64(Module()). Languages without it are
// rehashed on every lookup.
type ModuleDigester interface {
	ModuleDigest() uint64
}
