// Package backend defines the host storage engine lexkv runs on: an ordered,
// bucketed, transactional key-value store with bbolt semantics.
//
// Keys inside a bucket are kept in bytewise order. Byte slices returned by a
// Bucket or Cursor are only valid until the transaction ends.
package backend

import (
	"context"
	"errors"
	"io"
)

var (
	// ErrBucketNotFound is returned when a bucket does not exist.
	ErrBucketNotFound = errors.New("backend: bucket not found")
	// ErrTxNotWritable is returned for writes in a read-only transaction.
	ErrTxNotWritable = errors.New("backend: transaction not writable")
	// ErrTxDone is returned when a finished transaction is used.
	ErrTxDone = errors.New("backend: transaction already committed or rolled back")
	// ErrClosed is returned by a closed DB.
	ErrClosed = errors.New("backend: database closed")
)

// DB is an open host database.
type DB interface {
	// Begin starts a transaction. Only one writable transaction is active at
	// a time; Begin blocks until the previous one ends.
	Begin(ctx context.Context, writable bool) (Tx, error)
	// WriteTo writes a consistent copy of the whole database to w.
	WriteTo(ctx context.Context, w io.Writer) (int64, error)
	// Path returns the file backing the database.
	Path() string
	Close() error
}

// Tx is a backend transaction.
type Tx interface {
	// Bucket returns ErrBucketNotFound when the bucket does not exist.
	Bucket(name string) (Bucket, error)
	// CreateBucket creates the bucket if it does not exist yet.
	CreateBucket(name string) (Bucket, error)
	DeleteBucket(name string) error
	// Buckets lists bucket names in ascending order.
	Buckets() ([]string, error)
	Writable() bool
	Commit() error
	Rollback() error
}

// Bucket is an ordered key space with a sequence counter.
type Bucket interface {
	// Get returns nil when the key does not exist.
	Get(k []byte) ([]byte, error)
	Put(k, v []byte) error
	Delete(k []byte) error
	Cursor() Cursor
	Sequence() (uint64, error)
	SetSequence(v uint64) error
	NextSequence() (uint64, error)
}

// Cursor walks a bucket in key order. Every positioning method returns a nil
// key when no entry exists at the requested position; Err reports why.
// Mutating the bucket while a cursor is in use invalidates the cursor.
type Cursor interface {
	First() (k, v []byte)
	Last() (k, v []byte)
	// Seek moves to the first key >= seek.
	Seek(seek []byte) (k, v []byte)
	Next() (k, v []byte)
	Prev() (k, v []byte)
	Err() error
}

// Kind names a backend implementation.
type Kind string

const (
	Bolt   Kind = "bolt"
	SQLite Kind = "sqlite"
)
