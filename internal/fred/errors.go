package fred

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when the provider knows no series for the requested id.
var ErrNotFound = errors.New("series not found")

// UpstreamError is a transport failure, a non-success status, or an error
// payload reported by FRED. StatusCode is zero when no status is known.
type UpstreamError struct {
	StatusCode int
	Message    string
}

func (e *UpstreamError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("FRED API errored with status code %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("FRED API errored with status code %d", e.StatusCode)
}

// StorageError wraps a local persistence failure.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}
