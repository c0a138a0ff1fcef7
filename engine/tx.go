package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/hupe1980/lexkv/backend"
	"github.com/hupe1980/lexkv/key"
	"github.com/hupe1980/lexkv/record"
	"github.com/hupe1980/lexkv/schema"
)

// Mode is the access mode of a transaction.
type Mode uint8

const (
	ReadOnly Mode = iota
	ReadWrite
)

func (m Mode) String() string {
	if m == ReadWrite {
		return "readwrite"
	}
	return "readonly"
}

// State is the lifecycle state of a transaction.
type State uint8

const (
	StateOpen State = iota
	StateCommitted
	StateAborted
)

func (s State) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateCommitted:
		return "committed"
	default:
		return "aborted"
	}
}

// Mirror receives the mutations applied to one store inside a write
// transaction. Mutation callbacks run before the store operation returns;
// an error from them aborts the transaction.
type Mirror interface {
	Added(k key.Key, r record.Record) error
	Updated(k key.Key, r record.Record) error
	Removed(k key.Key) error
	Cleared() error
	// Prepare runs before the backend commit and may write reserved
	// entries through tx.
	Prepare(tx *Tx) error
	// Commit runs after a successful backend commit.
	Commit()
	// Rollback runs when the transaction aborts.
	Rollback()
}

// Tx is a transaction over a fixed set of stores. A Tx must only be used by
// one goroutine at a time.
type Tx struct {
	ctx     context.Context
	eng     *Engine
	btx     backend.Tx
	mode    Mode
	scope   map[string]schema.StoreConfig
	names   []string
	mirrors map[string]Mirror
	stores  map[string]*StoreTx
	dirty   map[string]bool

	state    State
	cause    error
	onFinish []func(State)
}

// Mode returns the access mode.
func (t *Tx) Mode() Mode { return t.mode }

// State returns the lifecycle state.
func (t *Tx) State() State { return t.state }

// Err returns the abort cause, or nil while open or after commit.
func (t *Tx) Err() error { return t.cause }

// Stores returns the transaction scope in ascending order.
func (t *Tx) Stores() []string { return append([]string(nil), t.names...) }

// Dirty reports whether the transaction wrote to store.
func (t *Tx) Dirty(store string) bool { return t.dirty[store] }

// OnFinish registers fn to run once when the transaction commits or aborts.
func (t *Tx) OnFinish(fn func(State)) { t.onFinish = append(t.onFinish, fn) }

// check returns an error when the transaction cannot run another operation.
func (t *Tx) check(write bool) error {
	if t.state != StateOpen {
		if t.cause != nil {
			return fmt.Errorf("%w: %w", ErrTransactionClosed, t.cause)
		}
		return ErrTransactionClosed
	}
	if err := t.ctx.Err(); err != nil {
		return err
	}
	if write && t.mode != ReadWrite {
		return ErrReadOnly
	}
	return nil
}

// fail aborts the transaction with err as the cause and returns err.
func (t *Tx) fail(err error) error {
	if t.state == StateOpen {
		t.abort(err)
	}
	return err
}

// Store returns the handle for a store in the transaction scope.
func (t *Tx) Store(name string) (*StoreTx, error) {
	if err := t.check(false); err != nil {
		return nil, err
	}
	if s, ok := t.stores[name]; ok {
		return s, nil
	}
	cfg, ok := t.scope[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q is not in the transaction scope", ErrStoreNotFound, name)
	}
	b, err := t.btx.Bucket(storeBucket(name))
	if err != nil {
		return nil, t.fail(storageErr("open store "+name, err))
	}
	s := &StoreTx{tx: t, name: name, cfg: cfg, bucket: b, indexes: map[string]backend.Bucket{}}
	t.stores[name] = s
	return s, nil
}

func (t *Tx) meta() (backend.Bucket, error) {
	b, err := t.btx.Bucket(metaBucket)
	if err != nil {
		return nil, storageErr("open meta", err)
	}
	return b, nil
}

// markDirty bumps the store generation the first time a transaction writes
// to the store.
func (t *Tx) markDirty(store string) error {
	if t.dirty[store] {
		return nil
	}
	meta, err := t.meta()
	if err != nil {
		return err
	}
	gen, err := getUint64(meta, genPrefix+store)
	if err != nil {
		return storageErr("read generation", err)
	}
	if err := putUint64(meta, genPrefix+store, gen+1); err != nil {
		return storageErr("write generation", err)
	}
	t.dirty[store] = true
	return nil
}

// Generation returns the generation of store as seen by this transaction.
// Inside a write transaction that touched the store it is the generation
// the commit will publish.
func (t *Tx) Generation(store string) (uint64, error) {
	if err := t.check(false); err != nil {
		return 0, err
	}
	meta, err := t.meta()
	if err != nil {
		return 0, t.fail(err)
	}
	gen, err := getUint64(meta, genPrefix+store)
	if err != nil {
		return 0, t.fail(storageErr("read generation", err))
	}
	return gen, nil
}

// Snapshot returns a copy of the reserved snapshot entry of store, or nil.
func (t *Tx) Snapshot(store string) ([]byte, error) {
	if err := t.check(false); err != nil {
		return nil, err
	}
	b, err := t.btx.Bucket(reservedBucket)
	if errors.Is(err, backend.ErrBucketNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, t.fail(storageErr("open reserved", err))
	}
	v, err := b.Get([]byte(store))
	if err != nil {
		return nil, t.fail(storageErr("read snapshot", err))
	}
	if v == nil {
		return nil, nil
	}
	return append([]byte(nil), v...), nil
}

// PutSnapshot stores the reserved snapshot entry of store. A nil data
// deletes it.
func (t *Tx) PutSnapshot(store string, data []byte) error {
	if err := t.check(true); err != nil {
		return err
	}
	b, err := t.btx.CreateBucket(reservedBucket)
	if err != nil {
		return t.fail(storageErr("open reserved", err))
	}
	if data == nil {
		err = b.Delete([]byte(store))
	} else {
		err = b.Put([]byte(store), data)
	}
	if err != nil {
		return t.fail(storageErr("write snapshot", err))
	}
	return nil
}

// Commit publishes the transaction. Read-only transactions simply end. A
// cancelled context aborts the transaction.
func (t *Tx) Commit() error {
	if err := t.check(false); err != nil {
		return t.fail(err)
	}
	if t.mode == ReadOnly {
		_ = t.btx.Rollback()
		t.finish(StateCommitted, nil)
		return nil
	}

	for _, name := range t.names {
		if m := t.mirrors[name]; m != nil && t.dirty[name] {
			if err := m.Prepare(t); err != nil {
				if t.state == StateOpen {
					t.abort(err)
				}
				return fmt.Errorf("prepare %s: %w", name, err)
			}
		}
	}

	if err := t.btx.Commit(); err != nil {
		err = storageErr("commit", err)
		t.rollbackMirrors()
		t.finish(StateAborted, err)
		return err
	}
	for _, name := range t.names {
		if m := t.mirrors[name]; m != nil {
			m.Commit()
		}
	}
	t.finish(StateCommitted, nil)
	return nil
}

// Abort rolls the transaction back. Aborting an aborted transaction is a
// no-op; aborting a committed one returns ErrTransactionClosed.
func (t *Tx) Abort() error {
	switch t.state {
	case StateAborted:
		return nil
	case StateCommitted:
		return ErrTransactionClosed
	}
	t.abort(ErrAborted)
	return nil
}

func (t *Tx) abort(cause error) {
	_ = t.btx.Rollback()
	t.rollbackMirrors()
	t.finish(StateAborted, cause)
}

func (t *Tx) rollbackMirrors() {
	for i := len(t.names) - 1; i >= 0; i-- {
		if m := t.mirrors[t.names[i]]; m != nil {
			m.Rollback()
		}
	}
}

func (t *Tx) finish(s State, cause error) {
	t.state = s
	t.cause = cause
	if s == StateAborted && !errors.Is(cause, ErrAborted) {
		t.eng.logger.Warn("transaction aborted", "stores", t.names, "error", cause)
	}
	hooks := t.onFinish
	t.onFinish = nil
	for _, fn := range hooks {
		fn(s)
	}
}
