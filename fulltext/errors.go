package fulltext

import (
	"errors"
	"fmt"

	"github.com/hupe1980/lexkv/key"
)

var (
	// ErrDuplicateReference is returned when a reference is added twice.
	ErrDuplicateReference = errors.New("fulltext: duplicate reference")
	// ErrCorruptSnapshot is returned when a snapshot cannot be restored.
	ErrCorruptSnapshot = errors.New("fulltext: corrupt snapshot")
	// ErrBatchClosed is returned when a committed or rolled back batch is used.
	ErrBatchClosed = errors.New("fulltext: batch closed")
	// ErrFull is returned when the document id space is exhausted. Rebuilding
	// or restoring the index compacts the ids.
	ErrFull = errors.New("fulltext: document id space exhausted")
)

// DuplicateReferenceError reports an Add for a reference that is already
// indexed.
type DuplicateReferenceError struct {
	Ref key.Key
}

func (e *DuplicateReferenceError) Error() string {
	return fmt.Sprintf("fulltext: reference %s is already indexed", e.Ref)
}

func (e *DuplicateReferenceError) Unwrap() error { return ErrDuplicateReference }

func corrupt(reason string) error {
	return fmt.Errorf("%w: %s", ErrCorruptSnapshot, reason)
}
