package engine

import (
	"errors"
	"fmt"

	"github.com/hupe1980/lexkv/key"
)

var (
	// ErrConstraint is returned when a write would duplicate a primary key or
	// a unique index key.
	ErrConstraint = errors.New("constraint violation")
	// ErrTransactionClosed is returned by every operation on a transaction
	// that has committed or aborted.
	ErrTransactionClosed = errors.New("transaction closed")
	// ErrStorage wraps host engine and decoding failures.
	ErrStorage = errors.New("storage error")
	// ErrStoreNotFound is returned for stores missing from the schema.
	ErrStoreNotFound = errors.New("store not found")
	// ErrIndexNotFound is returned for indexes missing from a store.
	ErrIndexNotFound = errors.New("index not found")
	// ErrReadOnly is returned for writes in a read-only transaction.
	ErrReadOnly = errors.New("transaction is read-only")
	// ErrMissingKey is returned when a record has no key and the store
	// cannot generate one.
	ErrMissingKey = errors.New("record has no key")
	// ErrClosed is returned after the engine has been closed.
	ErrClosed = errors.New("engine closed")
	// ErrAborted is the abort cause of a transaction aborted by its owner.
	ErrAborted = errors.New("transaction aborted")
)

// ConstraintError reports the store, index and key of a uniqueness
// violation. Index is empty for primary key collisions.
type ConstraintError struct {
	Store string
	Index string
	Key   key.Key
}

func (e *ConstraintError) Error() string {
	if e.Index == "" {
		return fmt.Sprintf("constraint violation: store %q already has key %s", e.Store, e.Key)
	}
	return fmt.Sprintf("constraint violation: store %q unique index %q already has key %s", e.Store, e.Index, e.Key)
}

// Unwrap returns ErrConstraint.
func (e *ConstraintError) Unwrap() error { return ErrConstraint }

// StorageError wraps a failure of the host engine or of record decoding.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage error: %s: %v", e.Op, e.Err)
}

// Unwrap returns ErrStorage and the underlying error.
func (e *StorageError) Unwrap() []error { return []error{ErrStorage, e.Err} }

func storageErr(op string, err error) error {
	if err == nil {
		return nil
	}
	var se *StorageError
	if errors.As(err, &se) {
		return err
	}
	return &StorageError{Op: op, Err: err}
}
