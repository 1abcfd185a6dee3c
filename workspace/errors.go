package workspace

import "errors"

var (
	// ErrNotFound is returned when a requested file is not staged.
	ErrNotFound = errors.New("not found")

	// ErrInvalidName is returned for names that cannot live in a workspace.
	ErrInvalidName = errors.New("invalid file name")

	// ErrNoScript is returned when a run is requested without a script name
	// and the workspace holds no Python script.
	ErrNoScript = errors.New("no script staged")

	// ErrAmbiguousScript is returned when a run is requested without a
	// script name and more than one Python script is staged.
	ErrAmbiguousScript = errors.New("multiple scripts staged, select one")
)

// NotFoundError wraps ErrNotFound with the missing name.
type NotFoundError struct {
	Name string
}

func (e *NotFoundError) Error() string {
	return "file not found: " + e.Name
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}
