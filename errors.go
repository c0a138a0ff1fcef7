package lexkv

import (
	"errors"
	"fmt"

	"github.com/hupe1980/lexkv/engine"
	"github.com/hupe1980/lexkv/fulltext"
	"github.com/hupe1980/lexkv/key"
	"github.com/hupe1980/lexkv/keyrange"
	"github.com/hupe1980/lexkv/schema"
)

var (
	// ErrConstraint is returned when a write duplicates a primary key or a
	// unique index key.
	ErrConstraint = engine.ErrConstraint
	// ErrDuplicateReference is returned when a full-text document is added
	// twice.
	ErrDuplicateReference = fulltext.ErrDuplicateReference
	// ErrInvalidRange is returned for malformed key ranges.
	ErrInvalidRange = keyrange.ErrInvalidRange
	// ErrTransactionClosed is returned for operations on a committed or
	// aborted transaction.
	ErrTransactionClosed = engine.ErrTransactionClosed
	// ErrIndexNotFound is returned for unknown secondary indexes and for
	// searches on stores without a full-text index.
	ErrIndexNotFound = engine.ErrIndexNotFound
	// ErrStorage wraps host engine failures.
	ErrStorage = engine.ErrStorage
	// ErrSchema is returned when a schema is invalid or cannot be reconciled
	// with the stored one.
	ErrSchema = schema.ErrSchema
	// ErrStoreNotFound is returned for stores missing from the schema or the
	// transaction scope.
	ErrStoreNotFound = engine.ErrStoreNotFound
	// ErrReadOnly is returned for writes through a read-only transaction or
	// database.
	ErrReadOnly = engine.ErrReadOnly
	// ErrMissingKey is returned when a record has no key and its store
	// cannot generate one.
	ErrMissingKey = engine.ErrMissingKey
	// ErrInvalidKey is returned for values that cannot be keys.
	ErrInvalidKey = key.ErrInvalidKey
	// ErrCorruptSnapshot is returned when a full-text snapshot fails
	// validation.
	ErrCorruptSnapshot = fulltext.ErrCorruptSnapshot
	// ErrClosed is returned by a closed DB.
	ErrClosed = errors.New("lexkv: database closed")
)

type (
	// ConstraintError reports the store, index and key of a uniqueness
	// violation.
	ConstraintError = engine.ConstraintError
	// StorageError wraps a host engine failure.
	StorageError = engine.StorageError
	// SchemaError describes a schema problem.
	SchemaError = schema.SchemaError
	// InvalidRangeError describes a malformed key range.
	InvalidRangeError = keyrange.InvalidRangeError
	// DuplicateReferenceError reports a full-text document added twice.
	DuplicateReferenceError = fulltext.DuplicateReferenceError
	// InvalidKeyError reports a value that cannot be a key.
	InvalidKeyError = key.InvalidKeyError
)

// translateError maps errors from lower layers onto the public error
// surface. Typed errors and sentinels are shared with the inner packages, so
// only errors without a public counterpart need rewriting.
func translateError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, engine.ErrClosed) && !errors.Is(err, ErrClosed) {
		return fmt.Errorf("%w: %w", ErrClosed, err)
	}
	if errors.Is(err, fulltext.ErrBatchClosed) && !errors.Is(err, ErrTransactionClosed) {
		return fmt.Errorf("%w: %w", ErrTransactionClosed, err)
	}
	return err
}
