package engine

import (
	"github.com/hupe1980/lexkv/backend"
	"github.com/hupe1980/lexkv/key"
	"github.com/hupe1980/lexkv/keyrange"
	"github.com/hupe1980/lexkv/record"
	"github.com/hupe1980/lexkv/schema"
)

// IndexTx is a secondary index bound to a transaction.
type IndexTx struct {
	store  *StoreTx
	cfg    schema.IndexConfig
	bucket backend.Bucket
}

// Config returns the index configuration.
func (i *IndexTx) Config() schema.IndexConfig { return i.cfg }

// Get returns the first record whose index key equals k.
func (i *IndexTx) Get(k key.Key) (record.Record, bool, error) {
	e, ok, err := i.first(k, false)
	return e.Record, ok, err
}

// GetKey returns the primary key of the first record whose index key
// equals k.
func (i *IndexTx) GetKey(k key.Key) (key.Key, bool, error) {
	e, ok, err := i.first(k, true)
	return e.Key, ok, err
}

func (i *IndexTx) first(k key.Key, keysOnly bool) (Entry, bool, error) {
	c, err := i.rangeCursor(keyrange.Only(k), Next, keysOnly)
	if err != nil {
		return Entry{}, false, err
	}
	defer c.Close()
	if c.Next() {
		return c.Entry(), true, nil
	}
	return Entry{}, false, c.Err()
}

// Range opens a cursor over the index entries whose index key is in r.
// Entries with equal index keys are ordered by primary key.
func (i *IndexTx) Range(r keyrange.Range, dir Direction) (*Cursor, error) {
	return i.rangeCursor(r, dir, false)
}

// Count returns the number of index entries in r.
func (i *IndexTx) Count(r keyrange.Range) (int, error) {
	c, err := i.rangeCursor(r, Next, true)
	if err != nil {
		return 0, err
	}
	defer c.Close()
	return c.Count()
}

func (i *IndexTx) rangeCursor(r keyrange.Range, dir Direction, keysOnly bool) (*Cursor, error) {
	if err := i.store.tx.check(false); err != nil {
		return nil, err
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return newCursor(i.store, i.bucket, true, r, dir, keysOnly), nil
}
