package engine

import (
	"errors"
	"fmt"
	"math"

	"github.com/google/uuid"

	"github.com/hupe1980/lexkv/backend"
	"github.com/hupe1980/lexkv/codec"
	"github.com/hupe1980/lexkv/key"
	"github.com/hupe1980/lexkv/keyrange"
	"github.com/hupe1980/lexkv/record"
	"github.com/hupe1980/lexkv/schema"
)

// maxGeneratedKey is the largest key an auto-increment generator hands out
// (2^53, the largest integer a float64 key holds exactly).
const maxGeneratedKey = 1 << 53

// Entry is one record as seen through a store or an index.
type Entry struct {
	Key key.Key
	// IndexKey is only set for entries read through an index.
	IndexKey key.Key
	Record   record.Record
}

// StoreTx is a store bound to a transaction.
type StoreTx struct {
	tx      *Tx
	name    string
	cfg     schema.StoreConfig
	bucket  backend.Bucket
	indexes map[string]backend.Bucket
}

// Name returns the store name.
func (s *StoreTx) Name() string { return s.name }

// Config returns the store configuration.
func (s *StoreTx) Config() schema.StoreConfig { return s.cfg }

func (s *StoreTx) indexBucket(name string) (backend.Bucket, error) {
	if b, ok := s.indexes[name]; ok {
		return b, nil
	}
	b, err := s.tx.btx.Bucket(indexBucket(s.name, name))
	if err != nil {
		return nil, s.tx.fail(storageErr("open index "+name, err))
	}
	s.indexes[name] = b
	return b, nil
}

func decodeRecord(c codec.Codec, v []byte) (record.Record, error) {
	r, err := codec.DecodeRecord(c, v)
	if err != nil {
		return nil, storageErr("decode record", err)
	}
	return r, nil
}

// Get returns the record stored under k.
func (s *StoreTx) Get(k key.Key) (record.Record, bool, error) {
	if err := s.tx.check(false); err != nil {
		return nil, false, err
	}
	if !k.IsValid() {
		return nil, false, &key.InvalidKeyError{Value: k, Reason: "zero key"}
	}
	v, err := s.bucket.Get(k.Encode())
	if err != nil {
		return nil, false, s.tx.fail(storageErr("get", err))
	}
	if v == nil {
		return nil, false, nil
	}
	r, err := decodeRecord(s.tx.eng.codec, v)
	if err != nil {
		return nil, false, s.tx.fail(err)
	}
	return r, true, nil
}

// GetAll returns the records in r in ascending key order. A limit <= 0 is
// unbounded.
func (s *StoreTx) GetAll(r keyrange.Range, limit int) ([]Entry, error) {
	c, err := s.Range(r, Next)
	if err != nil {
		return nil, err
	}
	defer c.Close()
	var out []Entry
	for (limit <= 0 || len(out) < limit) && c.Next() {
		out = append(out, c.Entry())
	}
	return out, c.Err()
}

// Keys returns the keys in r in ascending order. A limit <= 0 is unbounded.
func (s *StoreTx) Keys(r keyrange.Range, limit int) ([]key.Key, error) {
	c, err := s.rangeCursor(r, Next, true)
	if err != nil {
		return nil, err
	}
	defer c.Close()
	var out []key.Key
	for (limit <= 0 || len(out) < limit) && c.Next() {
		out = append(out, c.Entry().Key)
	}
	return out, c.Err()
}

// Count returns the number of records in r.
func (s *StoreTx) Count(r keyrange.Range) (int, error) {
	c, err := s.rangeCursor(r, Next, true)
	if err != nil {
		return 0, err
	}
	defer c.Close()
	return c.Count()
}

// Range opens a cursor over the records in r.
func (s *StoreTx) Range(r keyrange.Range, dir Direction) (*Cursor, error) {
	return s.rangeCursor(r, dir, false)
}

func (s *StoreTx) rangeCursor(r keyrange.Range, dir Direction, keysOnly bool) (*Cursor, error) {
	if err := s.tx.check(false); err != nil {
		return nil, err
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return newCursor(s, s.bucket, false, r, dir, keysOnly), nil
}

// Add inserts records. A primary or unique index key collision returns a
// *ConstraintError after undoing the records of this call already written;
// the transaction stays open.
func (s *StoreTx) Add(recs ...record.Record) ([]Entry, error) {
	return s.writeBatch(recs, nil, false)
}

// Put inserts or replaces records. Unique index collisions behave as in Add,
// restoring replaced records.
func (s *StoreTx) Put(recs ...record.Record) ([]Entry, error) {
	return s.writeBatch(recs, nil, true)
}

// AddKey inserts a record under an explicit out-of-line key.
func (s *StoreTx) AddKey(k key.Key, rec record.Record) (Entry, error) {
	out, err := s.writeBatch([]record.Record{rec}, &k, false)
	if err != nil {
		return Entry{}, err
	}
	return out[0], nil
}

// PutKey inserts or replaces a record under an explicit out-of-line key.
func (s *StoreTx) PutKey(k key.Key, rec record.Record) (Entry, error) {
	out, err := s.writeBatch([]record.Record{rec}, &k, true)
	if err != nil {
		return Entry{}, err
	}
	return out[0], nil
}

// undo restores the state before one record write.
type undo struct {
	key    key.Key
	newRec record.Record
	oldRaw []byte
	oldRec record.Record
}

func (s *StoreTx) writeBatch(recs []record.Record, explicit *key.Key, overwrite bool) ([]Entry, error) {
	if err := s.tx.check(true); err != nil {
		return nil, err
	}
	out := make([]Entry, 0, len(recs))
	undos := make([]undo, 0, len(recs))
	for _, rec := range recs {
		u, err := s.writeOne(rec, explicit, overwrite)
		if err != nil {
			if s.tx.state != StateOpen {
				return nil, err
			}
			if cerr := s.compensate(undos); cerr != nil {
				return nil, cerr
			}
			return nil, err
		}
		undos = append(undos, u)
		out = append(out, Entry{Key: u.key, Record: u.newRec})
	}
	return out, nil
}

// compensate undoes the writes of a failed batch in reverse order.
func (s *StoreTx) compensate(undos []undo) error {
	for i := len(undos) - 1; i >= 0; i-- {
		u := undos[i]
		if err := s.removeEntries(u.key, u.newRec); err != nil {
			return s.tx.fail(err)
		}
		m := s.tx.mirrors[s.name]
		if u.oldRaw == nil {
			if err := s.bucket.Delete(u.key.Encode()); err != nil {
				return s.tx.fail(storageErr("compensate", err))
			}
			if m != nil {
				if err := m.Removed(u.key); err != nil {
					return s.tx.fail(err)
				}
			}
			continue
		}
		if err := s.bucket.Put(u.key.Encode(), u.oldRaw); err != nil {
			return s.tx.fail(storageErr("compensate", err))
		}
		if err := s.putEntries(u.key, u.oldRec); err != nil {
			return s.tx.fail(err)
		}
		if m != nil {
			if err := m.Updated(u.key, u.oldRec); err != nil {
				return s.tx.fail(err)
			}
		}
	}
	return nil
}

func (s *StoreTx) writeOne(in record.Record, explicit *key.Key, overwrite bool) (undo, error) {
	if in == nil {
		in = record.Record{}
	}
	rec := in.Clone()
	k, err := s.resolveKey(rec, explicit)
	if err != nil {
		return undo{}, err
	}
	enc := k.Encode()

	oldRaw, err := s.bucket.Get(enc)
	if err != nil {
		return undo{}, s.tx.fail(storageErr("get", err))
	}
	if oldRaw != nil && !overwrite {
		return undo{}, &ConstraintError{Store: s.name, Key: k}
	}

	raw, err := codec.EncodeRecord(s.tx.eng.codec, rec)
	if err != nil {
		return undo{}, err
	}
	// Round trip so indexes, callers and mirrors see exactly what a later
	// read returns.
	stored, err := codec.DecodeRecord(s.tx.eng.codec, raw)
	if err != nil {
		return undo{}, err
	}
	if err := s.checkUnique(k, stored); err != nil {
		return undo{}, err
	}

	if err := s.tx.markDirty(s.name); err != nil {
		return undo{}, s.tx.fail(err)
	}

	u := undo{key: k, newRec: stored}
	if oldRaw != nil {
		u.oldRaw = append([]byte(nil), oldRaw...)
		if u.oldRec, err = decodeRecord(s.tx.eng.codec, u.oldRaw); err != nil {
			return undo{}, s.tx.fail(err)
		}
		if err := s.removeEntries(k, u.oldRec); err != nil {
			return undo{}, s.tx.fail(err)
		}
	}
	if err := s.bucket.Put(enc, raw); err != nil {
		return undo{}, s.tx.fail(storageErr("put", err))
	}
	if err := s.putEntries(k, stored); err != nil {
		return undo{}, s.tx.fail(err)
	}

	if m := s.tx.mirrors[s.name]; m != nil {
		if oldRaw != nil {
			err = m.Updated(k, stored)
		} else {
			err = m.Added(k, stored)
		}
		if err != nil {
			return undo{}, s.tx.fail(err)
		}
	}
	return u, nil
}

// resolveKey extracts or generates the primary key and writes generated keys
// back into the key path.
func (s *StoreTx) resolveKey(rec record.Record, explicit *key.Key) (key.Key, error) {
	if s.cfg.KeyPath != "" {
		if explicit != nil {
			return key.Key{}, &key.InvalidKeyError{Value: *explicit, Reason: fmt.Sprintf("store %q uses the in-line key path %q", s.name, s.cfg.KeyPath)}
		}
		if v, ok := rec.Get(s.cfg.KeyPath); ok {
			k, err := key.FromValue(v)
			if err != nil {
				return key.Key{}, err
			}
			return k, s.advanceGenerator(k)
		}
		k, err := s.generateKey()
		if err != nil {
			return key.Key{}, err
		}
		if err := rec.Set(s.cfg.KeyPath, k.Value()); err != nil {
			return key.Key{}, &key.InvalidKeyError{Value: k, Reason: err.Error()}
		}
		return k, nil
	}

	if explicit != nil {
		if !explicit.IsValid() {
			return key.Key{}, &key.InvalidKeyError{Reason: "zero key"}
		}
		return *explicit, s.advanceGenerator(*explicit)
	}
	return s.generateKey()
}

func (s *StoreTx) generateKey() (key.Key, error) {
	switch s.cfg.KeyGeneration {
	case schema.KeyGenAutoIncrement:
		n, err := s.bucket.NextSequence()
		if err != nil {
			return key.Key{}, s.tx.fail(storageErr("next sequence", err))
		}
		if n > maxGeneratedKey {
			return key.Key{}, &ConstraintError{Store: s.name, Key: key.Number(float64(n))}
		}
		return key.Number(float64(n)), nil
	case schema.KeyGenUUID:
		id, err := uuid.NewRandom()
		if err != nil {
			return key.Key{}, err
		}
		return key.String(id.String()), nil
	default:
		return key.Key{}, fmt.Errorf("%w: store %q", ErrMissingKey, s.name)
	}
}

// advanceGenerator moves an auto-increment generator past an explicit
// numeric key.
func (s *StoreTx) advanceGenerator(k key.Key) error {
	if s.cfg.KeyGeneration != schema.KeyGenAutoIncrement {
		return nil
	}
	f, ok := k.Float()
	if !ok || f < 1 {
		return nil
	}
	n := uint64(math.Min(math.Floor(f), maxGeneratedKey))
	cur, err := s.bucket.Sequence()
	if err != nil {
		return s.tx.fail(storageErr("sequence", err))
	}
	if n > cur {
		if err := s.bucket.SetSequence(n); err != nil {
			return s.tx.fail(storageErr("set sequence", err))
		}
	}
	return nil
}

// indexKeys returns the keys a record contributes to an index. Records
// without a valid value at the key path contribute nothing.
func indexKeys(rec record.Record, idx schema.IndexConfig) []key.Key {
	v, ok := rec.Get(idx.KeyPath)
	if !ok {
		return nil
	}
	if idx.MultiEntry {
		if arr, ok := v.([]any); ok {
			var ks []key.Key
			for _, e := range arr {
				if k, err := key.FromValue(e); err == nil {
					ks = append(ks, k)
				}
			}
			return key.SortedUnique(ks)
		}
	}
	k, err := key.FromValue(v)
	if err != nil {
		return nil
	}
	return []key.Key{k}
}

func (s *StoreTx) checkUnique(k key.Key, rec record.Record) error {
	self := k.Encode()
	for _, idx := range s.cfg.Indexes {
		if !idx.Unique {
			continue
		}
		ib, err := s.indexBucket(idx.Name)
		if err != nil {
			return err
		}
		for _, ik := range indexKeys(rec, idx) {
			clash, err := findOther(ib, ik.Encode(), self)
			if err != nil {
				return s.tx.fail(storageErr("check unique", err))
			}
			if clash {
				return &ConstraintError{Store: s.name, Index: idx.Name, Key: ik}
			}
		}
	}
	return nil
}

func (s *StoreTx) putEntries(k key.Key, rec record.Record) error {
	for _, idx := range s.cfg.Indexes {
		ib, err := s.indexBucket(idx.Name)
		if err != nil {
			return err
		}
		for _, ik := range indexKeys(rec, idx) {
			if err := ib.Put(key.Composite(ik, k), emptyValue); err != nil {
				return storageErr("write index entry", err)
			}
		}
	}
	return nil
}

func (s *StoreTx) removeEntries(k key.Key, rec record.Record) error {
	for _, idx := range s.cfg.Indexes {
		ib, err := s.indexBucket(idx.Name)
		if err != nil {
			return err
		}
		for _, ik := range indexKeys(rec, idx) {
			if err := ib.Delete(key.Composite(ik, k)); err != nil {
				return storageErr("delete index entry", err)
			}
		}
	}
	return nil
}

// Delete removes records by key. Missing keys are ignored. It returns the
// number of records removed.
func (s *StoreTx) Delete(keys ...key.Key) (int, error) {
	if err := s.tx.check(true); err != nil {
		return 0, err
	}
	n := 0
	for _, k := range keys {
		if !k.IsValid() {
			return n, &key.InvalidKeyError{Reason: "zero key"}
		}
		removed, err := s.deleteOne(k)
		if err != nil {
			return n, err
		}
		if removed {
			n++
		}
	}
	return n, nil
}

func (s *StoreTx) deleteOne(k key.Key) (bool, error) {
	enc := k.Encode()
	raw, err := s.bucket.Get(enc)
	if err != nil {
		return false, s.tx.fail(storageErr("get", err))
	}
	if raw == nil {
		return false, nil
	}
	old, err := decodeRecord(s.tx.eng.codec, raw)
	if err != nil {
		return false, s.tx.fail(err)
	}
	if err := s.tx.markDirty(s.name); err != nil {
		return false, s.tx.fail(err)
	}
	if err := s.removeEntries(k, old); err != nil {
		return false, s.tx.fail(err)
	}
	if err := s.bucket.Delete(enc); err != nil {
		return false, s.tx.fail(storageErr("delete", err))
	}
	if m := s.tx.mirrors[s.name]; m != nil {
		if err := m.Removed(k); err != nil {
			return false, s.tx.fail(err)
		}
	}
	return true, nil
}

// DeleteRange removes every record in r.
func (s *StoreTx) DeleteRange(r keyrange.Range) (int, error) {
	if err := s.tx.check(true); err != nil {
		return 0, err
	}
	keys, err := s.Keys(r, 0)
	if err != nil {
		return 0, err
	}
	return s.Delete(keys...)
}

// Clear removes all records and index entries. The key generator is kept.
func (s *StoreTx) Clear() error {
	if err := s.tx.check(true); err != nil {
		return err
	}
	if err := s.tx.markDirty(s.name); err != nil {
		return s.tx.fail(err)
	}
	seq, err := s.bucket.Sequence()
	if err != nil {
		return s.tx.fail(storageErr("sequence", err))
	}
	b, err := recreateBucket(s.tx.btx, storeBucket(s.name))
	if err != nil {
		return s.tx.fail(err)
	}
	if err := b.SetSequence(seq); err != nil {
		return s.tx.fail(storageErr("set sequence", err))
	}
	s.bucket = b
	for _, idx := range s.cfg.Indexes {
		ib, err := recreateBucket(s.tx.btx, indexBucket(s.name, idx.Name))
		if err != nil {
			return s.tx.fail(err)
		}
		s.indexes[idx.Name] = ib
	}
	if m := s.tx.mirrors[s.name]; m != nil {
		if err := m.Cleared(); err != nil {
			return s.tx.fail(err)
		}
	}
	return nil
}

func recreateBucket(btx backend.Tx, name string) (backend.Bucket, error) {
	if err := btx.DeleteBucket(name); err != nil && !errors.Is(err, backend.ErrBucketNotFound) {
		return nil, storageErr("drop bucket", err)
	}
	b, err := btx.CreateBucket(name)
	if err != nil {
		return nil, storageErr("create bucket", err)
	}
	return b, nil
}

// Index returns a handle on a secondary index.
func (s *StoreTx) Index(name string) (*IndexTx, error) {
	if err := s.tx.check(false); err != nil {
		return nil, err
	}
	cfg, ok := s.cfg.Index(name)
	if !ok {
		return nil, fmt.Errorf("%w: store %q has no index %q", ErrIndexNotFound, s.name, name)
	}
	b, err := s.indexBucket(name)
	if err != nil {
		return nil, err
	}
	return &IndexTx{store: s, cfg: cfg, bucket: b}, nil
}
