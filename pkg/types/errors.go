package types

import (
	"errors"
	"fmt"
)

// ErrCancelled is recorded as the terminal error for tasks that were still
// in flight or queued when the run was cancelled.
var ErrCancelled = errors.New("run was cancelled")

// ConfigError represents an unusable configuration. It is fatal and raised
// before any acquisition work starts.
type ConfigError struct {
	Err error
}

func (e *ConfigError) Error() string { return fmt.Sprintf("invalid configuration: %s", e.Err) }

func (e *ConfigError) Unwrap() error { return e.Err }

// PullError represents a failure to pull an image from its registry.
type PullError struct {
	Ref   *ImageRef
	Cause error
	// Permanent is true when retrying cannot help, such as an unknown
	// reference or rejected credentials.
	Permanent bool
}

func (e *PullError) Error() string { return fmt.Sprintf("pulling %s: %s", e.Ref, e.Cause) }

func (e *PullError) Unwrap() error { return e.Cause }

// ExportError represents a failure to serialize a pulled image to its
// archive stream. It is always task-terminal, a fresh pull would be required.
type ExportError struct {
	Ref   *ImageRef
	Cause error
}

func (e *ExportError) Error() string { return fmt.Sprintf("exporting %s: %s", e.Ref, e.Cause) }

func (e *ExportError) Unwrap() error { return e.Cause }

// PackagingError represents a failure while compressing an exported archive.
type PackagingError struct {
	Cause error
}

func (e *PackagingError) Error() string { return fmt.Sprintf("packaging archive: %s", e.Cause) }

func (e *PackagingError) Unwrap() error { return e.Cause }

// StorageError represents a filesystem failure in the storage directory.
// When raised during setup for the storage root itself it aborts the run,
// since no task could possibly succeed.
type StorageError struct {
	Path  string
	Cause error
}

func (e *StorageError) Error() string { return fmt.Sprintf("storage path %s: %s", e.Path, e.Cause) }

func (e *StorageError) Unwrap() error { return e.Cause }

// IsTransientPull reports whether the given error is a pull failure that may
// resolve on retry.
func IsTransientPull(err error) bool {
	var pullErr *PullError
	if errors.As(err, &pullErr) {
		return !pullErr.Permanent
	}
	return false
}
