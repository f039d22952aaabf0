// internal/checkpoint/errors.go
package checkpoint

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when a checkpoint id is not in the index.
var ErrNotFound = errors.New("checkpoint not found")

// StorageError wraps a disk failure during a store operation.
type StorageError struct {
	Op   string
	Path string
	Err  error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// CorruptionError reports a blob whose content no longer matches the hash
// recorded in the manifest.
type CorruptionError struct {
	FilePath string
	Want     string
	Got      string
}

func (e *CorruptionError) Error() string {
	return fmt.Sprintf("snapshot corrupted for %s: hash mismatch (want %s, got %s)", e.FilePath, e.Want, e.Got)
}

// CapacityError is returned when the files requested for a checkpoint exceed
// the configured size limit.
type CapacityError struct {
	SizeBytes  int64
	LimitBytes int64
}

func (e *CapacityError) Error() string {
	return fmt.Sprintf("checkpoint size %d bytes exceeds limit %d bytes", e.SizeBytes, e.LimitBytes)
}
