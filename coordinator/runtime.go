package coordinator

import (
	"context"
	"io"
)

// Runtime is the embedded interpreter a Coordinator drives. Paths are
// slash-separated and relative to the runtime's working directory.
type Runtime interface {
	InstallPackages(ctx context.Context, names []string) error
	WriteFile(path string, data []byte) error
	ReadFile(path string) ([]byte, error)
	ListFiles() ([]string, error)

	// Run executes the script and blocks until it exits. A non-zero exit
	// code reports a script failure; err reports a failure of the runtime
	// itself.
	Run(ctx context.Context, scriptPath string, stdout, stderr io.Writer) (exitCode int, err error)
}

// Resetter is implemented by runtimes that can clear their filesystem view
// between runs.
type Resetter interface {
	Reset() error
}
