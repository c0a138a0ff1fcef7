package engine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/hupe1980/lexkv/backend"
	"github.com/hupe1980/lexkv/key"
	"github.com/hupe1980/lexkv/schema"
)

// bootstrap creates or upgrades the database in one write transaction.
func (e *Engine) bootstrap(ctx context.Context, version int, declared schema.Schema) (err error) {
	btx, err := e.db.Begin(ctx, true)
	if err != nil {
		return storageErr("begin", err)
	}
	defer func() {
		if err != nil {
			_ = btx.Rollback()
		}
	}()

	meta, err := btx.CreateBucket(metaBucket)
	if err != nil {
		return storageErr("create meta", err)
	}
	if _, err := btx.CreateBucket(reservedBucket); err != nil {
		return storageErr("create reserved", err)
	}
	if err := e.checkCodec(meta, true); err != nil {
		return err
	}
	stored, err := getUint64(meta, metaVersion)
	if err != nil {
		return storageErr("read version", err)
	}
	states, err := storedStores(meta)
	if err != nil {
		return err
	}

	target := uint64(version)
	if target == 0 {
		target = max(stored, 1)
	}
	if declared == nil {
		if stored == 0 {
			return &schema.SchemaError{Reason: "a schema is required to create a database"}
		}
		if target != stored {
			return &schema.SchemaError{Reason: "a schema is required to upgrade a database"}
		}
		declared = states
	}

	switch {
	case target < stored:
		return &schema.SchemaError{Reason: fmt.Sprintf("requested version %d is lower than stored version %d", target, stored)}
	case target == stored:
		if err := verifyLayout(declared, states); err != nil {
			return err
		}
	default:
		e.logger.Info("migrating database", "from", stored, "to", target, "path", e.db.Path())
		m := &migration{e: e, btx: btx, meta: meta}
		for _, name := range declared.StoreNames() {
			have, ok := states[name]
			if err := m.store(name, declared[name], have, ok); err != nil {
				return err
			}
		}
		if err := putUint64(meta, metaVersion, target); err != nil {
			return storageErr("write version", err)
		}
	}

	for name := range states {
		if _, ok := declared[name]; !ok {
			e.logger.Warn("store is not declared in the schema and is kept untouched", "store", name)
		}
	}

	if err := btx.Commit(); err != nil {
		return storageErr("commit bootstrap", err)
	}
	e.schema = declared
	e.version = int(target)
	e.previous = int(stored)
	return nil
}

type migration struct {
	e    *Engine
	btx  backend.Tx
	meta backend.Bucket
}

func (m *migration) store(name string, want, have schema.StoreConfig, exists bool) error {
	log := m.e.logger.With("store", name)

	if exists && !want.SameKeying(have) {
		log.Warn("primary key layout changed, dropping store contents",
			"old_key_path", have.KeyPath, "new_key_path", want.KeyPath,
			"old_key_generation", have.KeyGeneration.String(), "new_key_generation", want.KeyGeneration.String())
		if err := m.dropStore(name); err != nil {
			return err
		}
		exists = false
	}

	if !exists {
		log.Info("creating store")
		if _, err := m.btx.CreateBucket(storeBucket(name)); err != nil {
			return storageErr("create store", err)
		}
		have = schema.StoreConfig{KeyPath: want.KeyPath, KeyGeneration: want.KeyGeneration}
		if err := m.bumpGeneration(name); err != nil {
			return err
		}
	}

	changed := false
	for _, idx := range have.Indexes {
		if w, ok := want.Index(idx.Name); ok && w == idx {
			continue
		}
		log.Info("dropping index", "index", idx.Name)
		if err := m.btx.DeleteBucket(indexBucket(name, idx.Name)); err != nil && !errors.Is(err, backend.ErrBucketNotFound) {
			return storageErr("drop index", err)
		}
	}
	for _, idx := range want.Indexes {
		if h, ok := have.Index(idx.Name); ok && h == idx {
			continue
		}
		log.Info("building index", "index", idx.Name, "key_path", idx.KeyPath, "unique", idx.Unique, "multi_entry", idx.MultiEntry)
		if err := m.buildIndex(name, idx); err != nil {
			return err
		}
		changed = true
	}
	if changed || !want.FullText.Equal(have.FullText) {
		if err := m.bumpGeneration(name); err != nil {
			return err
		}
	}
	return storageErr("write store state", putStoreState(m.meta, name, want))
}

func (m *migration) dropStore(name string) error {
	buckets, err := m.btx.Buckets()
	if err != nil {
		return storageErr("list buckets", err)
	}
	prefix := indexBucketPrefix(name)
	for _, b := range buckets {
		if b == storeBucket(name) || strings.HasPrefix(b, prefix) {
			if err := m.btx.DeleteBucket(b); err != nil {
				return storageErr("drop bucket", err)
			}
		}
	}
	if err := m.meta.Delete([]byte(statePrefix + name)); err != nil {
		return storageErr("drop store state", err)
	}
	return m.bumpGeneration(name)
}

func (m *migration) bumpGeneration(name string) error {
	gen, err := getUint64(m.meta, genPrefix+name)
	if err != nil {
		return storageErr("read generation", err)
	}
	return storageErr("write generation", putUint64(m.meta, genPrefix+name, gen+1))
}

// buildIndex (re)creates an index bucket from the records of a store.
func (m *migration) buildIndex(store string, idx schema.IndexConfig) error {
	name := indexBucket(store, idx.Name)
	if err := m.btx.DeleteBucket(name); err != nil && !errors.Is(err, backend.ErrBucketNotFound) {
		return storageErr("drop index", err)
	}
	ib, err := m.btx.CreateBucket(name)
	if err != nil {
		return storageErr("create index", err)
	}
	sb, err := m.btx.Bucket(storeBucket(store))
	if err != nil {
		return storageErr("open store", err)
	}

	c := sb.Cursor()
	for k, v := c.First(); k != nil; k, v = c.Next() {
		pk, err := key.DecodeAll(k)
		if err != nil {
			return storageErr("decode key", err)
		}
		rec, err := decodeRecord(m.e.codec, v)
		if err != nil {
			return err
		}
		for _, ik := range indexKeys(rec, idx) {
			enc := ik.Encode()
			if idx.Unique {
				clash, err := findOther(ib, enc, k)
				if err != nil {
					return storageErr("check unique", err)
				}
				if clash {
					return &schema.SchemaError{Store: store, Index: idx.Name, Reason: fmt.Sprintf("unique index cannot be built: duplicate key %s (record %s)", ik, pk)}
				}
			}
			if err := ib.Put(key.Composite(ik, pk), emptyValue); err != nil {
				return storageErr("write index entry", err)
			}
		}
	}
	return storageErr("scan store", c.Err())
}

// findOther reports whether the index bucket has an entry for the encoded
// index key that belongs to a primary key other than self.
func findOther(ib backend.Bucket, indexKey, self []byte) (bool, error) {
	c := ib.Cursor()
	for k, _ := c.Seek(indexKey); k != nil && bytes.HasPrefix(k, indexKey); k, _ = c.Next() {
		if !bytes.Equal(k[len(indexKey):], self) {
			return true, nil
		}
	}
	return false, c.Err()
}
