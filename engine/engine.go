package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync/atomic"

	"github.com/hupe1980/lexkv/backend"
	"github.com/hupe1980/lexkv/codec"
	"github.com/hupe1980/lexkv/schema"
)

// Options configures Open.
type Options struct {
	Codec  codec.Codec
	Logger *slog.Logger
	// ReadOnly opens without creating or migrating anything. The requested
	// version must be 0 or equal to the stored one.
	ReadOnly bool
}

// Engine is an open, bootstrapped database on a host backend.
type Engine struct {
	db       backend.DB
	schema   schema.Schema
	version  int
	previous int
	codec    codec.Codec
	logger   *slog.Logger
	readOnly bool
	closed   atomic.Bool
}

// Open bootstraps the database at version with schema s. Version 0 opens
// the current version (1 for a new database). A nil schema uses the stored
// one, which requires an existing database.
func Open(ctx context.Context, db backend.DB, version int, s schema.Schema, opts Options) (*Engine, error) {
	if version < 0 {
		return nil, &schema.SchemaError{Reason: fmt.Sprintf("negative version %d", version)}
	}
	if opts.Codec == nil {
		opts.Codec = codec.Default
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}

	var declared schema.Schema
	if s != nil {
		var err error
		if declared, err = s.Normalize(); err != nil {
			return nil, err
		}
	}

	e := &Engine{
		db:       db,
		codec:    opts.Codec,
		logger:   opts.Logger,
		readOnly: opts.ReadOnly,
	}

	var err error
	if opts.ReadOnly {
		err = e.attach(ctx, version, declared)
	} else {
		err = e.bootstrap(ctx, version, declared)
	}
	if err != nil {
		return nil, err
	}
	return e, nil
}

// attach validates an existing database without writing to it.
func (e *Engine) attach(ctx context.Context, version int, declared schema.Schema) error {
	btx, err := e.db.Begin(ctx, false)
	if err != nil {
		return storageErr("begin", err)
	}
	defer func() { _ = btx.Rollback() }()

	meta, err := btx.Bucket(metaBucket)
	if errors.Is(err, backend.ErrBucketNotFound) {
		return &schema.SchemaError{Reason: "database does not exist"}
	}
	if err != nil {
		return storageErr("open meta", err)
	}
	if err := e.checkCodec(meta, false); err != nil {
		return err
	}
	stored, err := getUint64(meta, metaVersion)
	if err != nil {
		return storageErr("read version", err)
	}
	if version != 0 && uint64(version) != stored {
		return &schema.SchemaError{Reason: fmt.Sprintf("read-only open requires version %d, got %d", stored, version)}
	}
	states, err := storedStores(meta)
	if err != nil {
		return err
	}
	if declared == nil {
		declared = states
	} else if err := verifyLayout(declared, states); err != nil {
		return err
	}
	e.schema = declared
	e.version = int(stored)
	e.previous = int(stored)
	return nil
}

func (e *Engine) checkCodec(meta backend.Bucket, write bool) error {
	name, err := meta.Get([]byte(metaCodec))
	if err != nil {
		return storageErr("read codec", err)
	}
	if name == nil {
		if !write {
			return nil
		}
		return storageErr("write codec", meta.Put([]byte(metaCodec), []byte(e.codec.Name())))
	}
	if string(name) != e.codec.Name() {
		return &schema.SchemaError{Reason: fmt.Sprintf("database uses codec %q, opened with %q", name, e.codec.Name())}
	}
	return nil
}

// verifyLayout checks that every declared store exists with the same layout.
func verifyLayout(declared, stored schema.Schema) error {
	for _, name := range declared.StoreNames() {
		have, ok := stored[name]
		if !ok {
			return &schema.SchemaError{Store: name, Reason: "store does not exist at this version"}
		}
		if !have.Equal(declared[name]) {
			return &schema.SchemaError{Store: name, Reason: "store layout differs from the stored one at the same version"}
		}
	}
	return nil
}

// Version returns the schema version of the open database.
func (e *Engine) Version() int { return e.version }

// PreviousVersion returns the version stored before Open ran, 0 for a new
// database.
func (e *Engine) PreviousVersion() int { return e.previous }

// Schema returns the normalized schema. Callers must not modify it.
func (e *Engine) Schema() schema.Schema { return e.schema }

// Config returns the configuration of a store.
func (e *Engine) Config(store string) (schema.StoreConfig, error) {
	cfg, ok := e.schema[store]
	if !ok {
		return schema.StoreConfig{}, fmt.Errorf("%w: %q", ErrStoreNotFound, store)
	}
	return cfg, nil
}

// StoreNames returns the declared store names in ascending order.
func (e *Engine) StoreNames() []string { return e.schema.StoreNames() }

// Codec returns the record codec.
func (e *Engine) Codec() codec.Codec { return e.codec }

// Backend returns the host database.
func (e *Engine) Backend() backend.DB { return e.db }

// ReadOnly reports whether the engine rejects write transactions.
func (e *Engine) ReadOnly() bool { return e.readOnly }

// TxOptions configures Begin.
type TxOptions struct {
	Mode Mode
	// Stores is the transaction scope. Empty means every declared store.
	Stores []string
	// Mirrors receive the mutations of write transactions, per store.
	Mirrors map[string]Mirror
}

// Begin starts a transaction over the given stores.
func (e *Engine) Begin(ctx context.Context, opts TxOptions) (*Tx, error) {
	if e.closed.Load() {
		return nil, ErrClosed
	}
	stores := opts.Stores
	if len(stores) == 0 {
		stores = e.StoreNames()
	}
	scope := make(map[string]schema.StoreConfig, len(stores))
	for _, name := range stores {
		cfg, err := e.Config(name)
		if err != nil {
			return nil, err
		}
		scope[name] = cfg
	}
	if opts.Mode == ReadWrite && e.readOnly {
		return nil, fmt.Errorf("%w: database opened read-only", ErrReadOnly)
	}

	btx, err := e.db.Begin(ctx, opts.Mode == ReadWrite)
	if err != nil {
		if ctx.Err() != nil {
			return nil, err
		}
		return nil, storageErr("begin", err)
	}
	names := make([]string, 0, len(scope))
	for name := range scope {
		names = append(names, name)
	}
	slices.Sort(names)
	return &Tx{
		ctx:     ctx,
		eng:     e,
		btx:     btx,
		mode:    opts.Mode,
		scope:   scope,
		names:   names,
		mirrors: opts.Mirrors,
		stores:  map[string]*StoreTx{},
		dirty:   map[string]bool{},
	}, nil
}

// View runs fn in a read-only transaction.
func (e *Engine) View(ctx context.Context, stores []string, fn func(tx *Tx) error) error {
	tx, err := e.Begin(ctx, TxOptions{Mode: ReadOnly, Stores: stores})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Abort() }()
	return fn(tx)
}

// Generation returns the committed mutation generation of a store.
func (e *Engine) Generation(ctx context.Context, store string) (uint64, error) {
	var gen uint64
	err := e.View(ctx, []string{store}, func(tx *Tx) error {
		var err error
		gen, err = tx.Generation(store)
		return err
	})
	return gen, err
}

// Close marks the engine closed. It does not close the backend, which the
// caller owns.
func (e *Engine) Close() error {
	if e.closed.Swap(true) {
		return ErrClosed
	}
	return nil
}
