package store

import (
	"errors"
	"fmt"
)

var (
	// ErrStorage matches every *StorageError.
	ErrStorage = errors.New("storage error")
	// ErrNotFound is returned by Get for an unknown ID.
	ErrNotFound = errors.New("memory not found")
	// ErrFTSUnavailable means the SQLite build lacks FTS5.
	ErrFTSUnavailable = errors.New("sqlite built without FTS5 (build with -tags sqlite_fts5)")
)

// StorageError reports a failed store operation. A failed insert leaves no
// row and no image behind.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

func (e *StorageError) Is(target error) bool { return target == ErrStorage }

func storageErr(op string, err error) error {
	return &StorageError{Op: op, Err: err}
}
