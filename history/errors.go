package history

import "errors"

// ErrNotFound is returned when a run is not in the log.
var ErrNotFound = errors.New("not found")

// NotFoundError wraps ErrNotFound with the missing run ID.
type NotFoundError struct {
	ID string
}

func (e *NotFoundError) Error() string {
	return "run not found: " + e.ID
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}
