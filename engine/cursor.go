package engine

import (
	"bytes"
	"fmt"
	"iter"

	"github.com/hupe1980/lexkv/backend"
	"github.com/hupe1980/lexkv/key"
	"github.com/hupe1980/lexkv/keyrange"
)

// Direction is the iteration order of a cursor.
type Direction uint8

const (
	// Next iterates in ascending key order.
	Next Direction = iota
	// Prev iterates in descending key order.
	Prev
)

func (d Direction) String() string {
	if d == Prev {
		return "prev"
	}
	return "next"
}

// ParseDirection parses "next" or "prev".
func ParseDirection(s string) (Direction, error) {
	switch s {
	case "", "next":
		return Next, nil
	case "prev":
		return Prev, nil
	default:
		return Next, fmt.Errorf("unknown direction %q", s)
	}
}

// Cursor is a pull iterator over a store or an index. It is valid until its
// transaction ends; abandoning it is safe.
//
//	for c.Next() {
//		e := c.Entry()
//	}
//	if err := c.Err(); err != nil { ... }
type Cursor struct {
	store    *StoreTx
	bucket   backend.Bucket
	index    bool
	lo, hi   []byte
	dir      Direction
	keysOnly bool

	c       backend.Cursor
	started bool
	done    bool // ran past the range; Seek can reposition
	closed  bool
	entry   Entry
	err     error
}

func newCursor(s *StoreTx, b backend.Bucket, index bool, r keyrange.Range, dir Direction, keysOnly bool) *Cursor {
	lo, hi := r.Bounds()
	return &Cursor{
		store:    s,
		bucket:   b,
		index:    index,
		lo:       lo,
		hi:       hi,
		dir:      dir,
		keysOnly: keysOnly,
	}
}

// Next advances the cursor and reports whether an entry is available.
func (c *Cursor) Next() bool {
	if c.done || !c.ready() {
		return false
	}
	var k, v []byte
	switch {
	case !c.started:
		k, v = c.start()
	case c.dir == Next:
		k, v = c.c.Next()
	default:
		k, v = c.c.Prev()
	}
	return c.land(k, v)
}

// Seek positions the cursor at the first entry >= target (ascending) or the
// last entry <= target (descending), clamped to the cursor range. For index
// cursors target is an index key.
func (c *Cursor) Seek(target key.Key) bool {
	if !c.ready() {
		return false
	}
	if !target.IsValid() {
		c.err = &key.InvalidKeyError{Reason: "zero seek key"}
		return false
	}
	c.started = true
	c.done = false
	enc := target.Encode()

	var k, v []byte
	if c.dir == Next {
		if c.lo != nil && bytes.Compare(enc, c.lo) < 0 {
			enc = c.lo
		}
		k, v = c.c.Seek(enc)
	} else {
		upper := key.PrefixEnd(enc)
		if c.hi != nil && bytes.Compare(upper, c.hi) > 0 {
			upper = c.hi
		}
		k, v = c.seekBefore(upper)
	}
	return c.land(k, v)
}

func (c *Cursor) ready() bool {
	if c.closed || c.err != nil {
		return false
	}
	if err := c.store.tx.check(false); err != nil {
		c.err = err
		return false
	}
	if c.c == nil {
		c.c = c.bucket.Cursor()
	}
	return true
}

func (c *Cursor) start() ([]byte, []byte) {
	c.started = true
	if c.dir == Next {
		if c.lo == nil {
			return c.c.First()
		}
		return c.c.Seek(c.lo)
	}
	if c.hi == nil {
		return c.c.Last()
	}
	return c.seekBefore(c.hi)
}

// seekBefore moves to the last key < bound.
func (c *Cursor) seekBefore(bound []byte) ([]byte, []byte) {
	k, _ := c.c.Seek(bound)
	if k == nil {
		return c.c.Last()
	}
	return c.c.Prev()
}

func (c *Cursor) inRange(k []byte) bool {
	if k == nil {
		return false
	}
	if c.lo != nil && bytes.Compare(k, c.lo) < 0 {
		return false
	}
	return c.hi == nil || bytes.Compare(k, c.hi) < 0
}

func (c *Cursor) land(k, v []byte) bool {
	if err := c.c.Err(); err != nil {
		c.err = c.store.tx.fail(storageErr("cursor", err))
		return false
	}
	if !c.inRange(k) {
		c.done = true
		c.entry = Entry{}
		return false
	}
	e, err := c.decode(k, v)
	if err != nil {
		c.err = c.store.tx.fail(err)
		return false
	}
	c.entry = e
	return true
}

func (c *Cursor) decode(k, v []byte) (Entry, error) {
	if !c.index {
		pk, err := key.DecodeAll(k)
		if err != nil {
			return Entry{}, storageErr("decode key", err)
		}
		e := Entry{Key: pk}
		if !c.keysOnly {
			if e.Record, err = decodeRecord(c.store.tx.eng.codec, v); err != nil {
				return Entry{}, err
			}
		}
		return e, nil
	}

	ik, pk, err := key.Split(k)
	if err != nil {
		return Entry{}, storageErr("decode index entry", err)
	}
	e := Entry{Key: pk, IndexKey: ik}
	if c.keysOnly {
		return e, nil
	}
	raw, err := c.store.bucket.Get(pk.Encode())
	if err != nil {
		return Entry{}, storageErr("get", err)
	}
	if raw == nil {
		return Entry{}, storageErr("index lookup", fmt.Errorf("index entry %s points to missing record %s", ik, pk))
	}
	if e.Record, err = decodeRecord(c.store.tx.eng.codec, raw); err != nil {
		return Entry{}, err
	}
	return e, nil
}

// Entry returns the current entry. It is only meaningful after Next or Seek
// returned true.
func (c *Cursor) Entry() Entry { return c.entry }

// Err returns the error that stopped the cursor, if any.
func (c *Cursor) Err() error { return c.err }

// Close releases the cursor. Further calls to Next and Seek return false.
func (c *Cursor) Close() {
	c.closed = true
	c.entry = Entry{}
}

// Count returns the number of entries in the cursor range, independent of
// the current position.
func (c *Cursor) Count() (int, error) {
	if err := c.store.tx.check(false); err != nil {
		return 0, err
	}
	bc := c.bucket.Cursor()
	var k []byte
	if c.lo == nil {
		k, _ = bc.First()
	} else {
		k, _ = bc.Seek(c.lo)
	}
	n := 0
	for ; c.inRange(k); k, _ = bc.Next() {
		n++
	}
	if err := bc.Err(); err != nil {
		return 0, c.store.tx.fail(storageErr("count", err))
	}
	return n, nil
}

// All returns an iterator over the remaining entries. Iteration stops at the
// first error, which is yielded with a zero Entry.
func (c *Cursor) All() iter.Seq2[Entry, error] {
	return func(yield func(Entry, error) bool) {
		for c.Next() {
			if !yield(c.Entry(), nil) {
				return
			}
		}
		if err := c.Err(); err != nil {
			yield(Entry{}, err)
		}
	}
}
