// Package bolt implements the lexkv host engine on go.etcd.io/bbolt.
package bolt

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"go.etcd.io/bbolt"

	"github.com/hupe1980/lexkv/backend"
)

// Options configures the bbolt file.
type Options struct {
	// Timeout bounds the wait for the file lock held by another process.
	Timeout time.Duration
	// NoSync skips fsync on commit. Only for tests and bulk loads.
	NoSync bool
	// ReadOnly opens the file with a shared lock and rejects writes.
	ReadOnly bool
	// FileMode is used when the file is created. Default 0600.
	FileMode os.FileMode
}

// DB wraps bbolt.DB and implements backend.DB.
type DB struct {
	db *bbolt.DB
}

var _ backend.DB = (*DB)(nil)

// Open opens or creates a bbolt database file.
func Open(path string, opts Options) (*DB, error) {
	mode := opts.FileMode
	if mode == 0 {
		mode = 0o600
	}
	timeout := opts.Timeout
	if timeout == 0 {
		timeout = 5 * time.Second
	}
	db, err := bbolt.Open(path, mode, &bbolt.Options{
		Timeout:  timeout,
		NoSync:   opts.NoSync,
		ReadOnly: opts.ReadOnly,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open bbolt %s: %w", path, err)
	}
	return &DB{db: db}, nil
}

// Begin starts a bbolt transaction.
func (d *DB) Begin(ctx context.Context, writable bool) (backend.Tx, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	tx, err := d.db.Begin(writable)
	if err != nil {
		return nil, translate(err)
	}
	return &boltTx{tx: tx}, nil
}

// WriteTo streams a consistent snapshot of the file from a read transaction.
func (d *DB) WriteTo(ctx context.Context, w io.Writer) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	var n int64
	err := d.db.View(func(tx *bbolt.Tx) error {
		var err error
		n, err = tx.WriteTo(w)
		return err
	})
	return n, translate(err)
}

// Path returns the database file path.
func (d *DB) Path() string { return d.db.Path() }

// Close closes the database file.
func (d *DB) Close() error { return d.db.Close() }

func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, bbolt.ErrTxNotWritable), errors.Is(err, bbolt.ErrDatabaseReadOnly):
		return fmt.Errorf("%w: %v", backend.ErrTxNotWritable, err)
	case errors.Is(err, bbolt.ErrTxClosed):
		return fmt.Errorf("%w: %v", backend.ErrTxDone, err)
	case errors.Is(err, bbolt.ErrDatabaseNotOpen):
		return fmt.Errorf("%w: %v", backend.ErrClosed, err)
	case errors.Is(err, bbolt.ErrBucketNotFound):
		return fmt.Errorf("%w: %v", backend.ErrBucketNotFound, err)
	default:
		return err
	}
}

type boltTx struct {
	tx *bbolt.Tx
}

func (t *boltTx) Bucket(name string) (backend.Bucket, error) {
	b := t.tx.Bucket([]byte(name))
	if b == nil {
		return nil, fmt.Errorf("%w: %s", backend.ErrBucketNotFound, name)
	}
	return &boltBucket{b: b}, nil
}

func (t *boltTx) CreateBucket(name string) (backend.Bucket, error) {
	b, err := t.tx.CreateBucketIfNotExists([]byte(name))
	if err != nil {
		return nil, translate(err)
	}
	return &boltBucket{b: b}, nil
}

func (t *boltTx) DeleteBucket(name string) error {
	return translate(t.tx.DeleteBucket([]byte(name)))
}

func (t *boltTx) Buckets() ([]string, error) {
	var names []string
	err := t.tx.ForEach(func(name []byte, _ *bbolt.Bucket) error {
		names = append(names, string(name))
		return nil
	})
	return names, translate(err)
}

func (t *boltTx) Writable() bool { return t.tx.Writable() }

func (t *boltTx) Commit() error { return translate(t.tx.Commit()) }

func (t *boltTx) Rollback() error { return translate(t.tx.Rollback()) }

type boltBucket struct {
	b *bbolt.Bucket
}

func (b *boltBucket) Get(k []byte) ([]byte, error) { return b.b.Get(k), nil }

func (b *boltBucket) Put(k, v []byte) error { return translate(b.b.Put(k, v)) }

func (b *boltBucket) Delete(k []byte) error { return translate(b.b.Delete(k)) }

func (b *boltBucket) Cursor() backend.Cursor { return &boltCursor{c: b.b.Cursor()} }

func (b *boltBucket) Sequence() (uint64, error) { return b.b.Sequence(), nil }

func (b *boltBucket) SetSequence(v uint64) error { return translate(b.b.SetSequence(v)) }

func (b *boltBucket) NextSequence() (uint64, error) {
	v, err := b.b.NextSequence()
	return v, translate(err)
}

type boltCursor struct {
	c *bbolt.Cursor
}

func (c *boltCursor) First() ([]byte, []byte) { return c.c.First() }
func (c *boltCursor) Last() ([]byte, []byte) { return c.c.Last() }
func (c *boltCursor) Seek(s []byte) ([]byte, []byte) { return c.c.Seek(s) }
func (c *boltCursor) Next() ([]byte, []byte) { return c.c.Next() }
func (c *boltCursor) Prev() ([]byte, []byte) { return c.c.Prev() }
func (c *boltCursor) Err() error { return nil }
