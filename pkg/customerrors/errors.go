// Package customerrors defines the error taxonomy shared by the storage
// engines, the tree index and the table catalog.
package customerrors

import (
	"errors"
	"fmt"
)

// Logical errors are expected outcomes of normal operation. They are
// reported to the caller and never retried.
var (
	// ErrKeyNotFound should be returned from lookup operations when the
	// lookup key is not found in index/store.
	ErrKeyNotFound = errors.New("key not found")

	// ErrDuplicateKey is returned when inserting a key that already exists.
	ErrDuplicateKey = errors.New("duplicate key")
)

// ErrCapacityExceeded is a caller-detectable precondition violation, e.g.
// merging two entry lists whose combined size does not fit into a page.
var ErrCapacityExceeded = errors.New("capacity exceeded")

// ErrStorageCorruption is fatal to the in-progress operation: decode failure,
// checksum or size mismatch, dangling child/sibling reference.
var ErrStorageCorruption = errors.New("storage corruption")

var (
	// ErrKeyTooLarge is returned by index implementations when a key is
	// larger than a configured limit if any.
	ErrKeyTooLarge = errors.New("key is too large")

	// ErrEmptyKey should be returned by backends when an operation is
	// requested with an empty key.
	ErrEmptyKey = errors.New("empty key")

	ErrNoImplementation  = errors.New("engine has no implementation")
	ErrUnknownEngine     = errors.New("unknown engine")
	ErrClosed            = errors.New("storage is closed")
	ErrInvalidOptions    = errors.New("invalid options")
	ErrUnknownColumn     = errors.New("unknown column")
	ErrMissingPrimaryKey = errors.New("missing primary key value")
	ErrTableExists       = errors.New("table already exists")
	ErrTableNotFound     = errors.New("table not found")
	ErrNotPrimaryKey     = errors.New("primary key can not be modified")
	ErrRecordTooLarge    = errors.New("record is too large")
)

// CorruptionError describes a page that could not be trusted.
type CorruptionError struct {
	PageID uint64
	Reason string
}

func (e *CorruptionError) Error() string {
	return fmt.Sprintf("%s: page %d: %s", ErrStorageCorruption, e.PageID, e.Reason)
}

func (e *CorruptionError) Is(target error) bool {
	return target == ErrStorageCorruption
}

// Corrupted builds a CorruptionError for the given page.
func Corrupted(pageID uint64, format string, args ...interface{}) error {
	return &CorruptionError{
		PageID: pageID,
		Reason: fmt.Sprintf(format, args...),
	}
}

// IsLogical reports whether err is a KeyNotFound or DuplicateKey outcome.
func IsLogical(err error) bool {
	return errors.Is(err, ErrKeyNotFound) || errors.Is(err, ErrDuplicateKey)
}

func IsCapacity(err error) bool {
	return errors.Is(err, ErrCapacityExceeded)
}

func IsCorruption(err error) bool {
	return errors.Is(err, ErrStorageCorruption)
}
