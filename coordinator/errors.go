package coordinator

import (
	"errors"
	"fmt"

	"github.com/caffeineduck/browserbox/workspace"
)

var (
	// ErrRunInProgress is returned when a run is requested while another is
	// active. The active run is not affected.
	ErrRunInProgress = errors.New("run in progress")

	ErrPackageLoad     = errors.New("package load failed")
	ErrScriptExecution = errors.New("script execution failed")

	ErrNoScript        = workspace.ErrNoScript
	ErrAmbiguousScript = workspace.ErrAmbiguousScript
)

// PackageLoadError reports a dependency that could not be installed.
// Declared requirements abort the run; inferred ones only warn.
type PackageLoadError struct {
	Package  string
	Declared bool
	Err      error
}

func (e *PackageLoadError) Error() string {
	return fmt.Sprintf("load package %s: %v", e.Package, e.Err)
}

func (e *PackageLoadError) Is(target error) bool {
	return target == ErrPackageLoad
}

func (e *PackageLoadError) Unwrap() error {
	return e.Err
}

// ScriptExecutionError carries the interpreter's failure output.
type ScriptExecutionError struct {
	Message   string // last line of the traceback, e.g. "ValueError: bad"
	Traceback string // full stderr text of the run
	ExitCode  int
	Err       error // runtime error, if the module did not exit normally
}

func (e *ScriptExecutionError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("exit code %d", e.ExitCode)
}

func (e *ScriptExecutionError) Is(target error) bool {
	return target == ErrScriptExecution
}

func (e *ScriptExecutionError) Unwrap() error {
	return e.Err
}
