package lexkv

import (
	"context"
	"time"

	"github.com/hupe1980/lexkv/fulltext"
)

// Store is a handle on one store. Every method runs in its own transaction;
// use DB.Update or DB.View to group operations.
type Store struct {
	db   *DB
	name string
	cfg  StoreConfig
}

// Name returns the store name.
func (s *Store) Name() string { return s.name }

// Config returns the store configuration.
func (s *Store) Config() StoreConfig { return s.cfg }

// HasFullText reports whether the store has a full-text index.
func (s *Store) HasFullText() bool { return s.cfg.FullText != nil }

func (s *Store) view(ctx context.Context, fn func(st *StoreTx) error) error {
	return s.db.View(ctx, []string{s.name}, func(tx *Tx) error {
		st, err := tx.Store(s.name)
		if err != nil {
			return err
		}
		return fn(st)
	})
}

func (s *Store) update(ctx context.Context, fn func(st *StoreTx) error) error {
	return s.db.Update(ctx, []string{s.name}, func(tx *Tx) error {
		st, err := tx.Store(s.name)
		if err != nil {
			return err
		}
		return fn(st)
	})
}

// Get returns the record stored under k.
func (s *Store) Get(ctx context.Context, k Key) (rec Record, ok bool, err error) {
	err = s.view(ctx, func(st *StoreTx) error {
		rec, ok, err = st.Get(k)
		return err
	})
	return rec, ok, err
}

// GetAll returns up to limit records in r in ascending key order. A limit
// of 0 returns all of them.
func (s *Store) GetAll(ctx context.Context, r Range, limit int) (out []Entry, err error) {
	err = s.view(ctx, func(st *StoreTx) error {
		out, err = st.GetAll(r, limit)
		return err
	})
	return out, err
}

// Keys returns up to limit keys in r in ascending order.
func (s *Store) Keys(ctx context.Context, r Range, limit int) (out []Key, err error) {
	err = s.view(ctx, func(st *StoreTx) error {
		out, err = st.Keys(r, limit)
		return err
	})
	return out, err
}

// Count returns the number of records in r.
func (s *Store) Count(ctx context.Context, r Range) (n int, err error) {
	err = s.view(ctx, func(st *StoreTx) error {
		n, err = st.Count(r)
		return err
	})
	return n, err
}

// Scan calls fn for every record in r in direction dir until fn returns
// false.
func (s *Store) Scan(ctx context.Context, r Range, dir Direction, fn func(Entry) bool) error {
	return s.view(ctx, func(st *StoreTx) error {
		c, err := st.Range(r, dir)
		if err != nil {
			return err
		}
		defer c.Close()
		for c.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			if !fn(c.Entry()) {
				return nil
			}
		}
		return c.Err()
	})
}

// IndexGet returns the first record whose index key equals k.
func (s *Store) IndexGet(ctx context.Context, index string, k Key) (rec Record, ok bool, err error) {
	err = s.view(ctx, func(st *StoreTx) error {
		idx, err := st.Index(index)
		if err != nil {
			return err
		}
		rec, ok, err = idx.Get(k)
		return err
	})
	return rec, ok, err
}

// IndexGetAll returns up to limit entries of an index in r, ordered by
// index key and then primary key.
func (s *Store) IndexGetAll(ctx context.Context, index string, r Range, limit int) (out []Entry, err error) {
	err = s.view(ctx, func(st *StoreTx) error {
		idx, err := st.Index(index)
		if err != nil {
			return err
		}
		c, err := idx.Range(r, Next)
		if err != nil {
			return err
		}
		defer c.Close()
		for c.Next() {
			out = append(out, c.Entry())
			if limit > 0 && len(out) == limit {
				break
			}
		}
		return c.Err()
	})
	return out, err
}

// Add inserts records. A primary or unique index key collision fails with
// a *ConstraintError and nothing is written.
func (s *Store) Add(ctx context.Context, recs ...Record) (out []Entry, err error) {
	start := time.Now()
	err = s.update(ctx, func(st *StoreTx) error {
		out, err = st.Add(recs...)
		return err
	})
	s.db.opts.metricsCollector.RecordAdd(len(recs), time.Since(start), err)
	s.db.opts.logger.LogAdd(ctx, s.name, len(recs), err)
	return out, err
}

// Put inserts or replaces records.
func (s *Store) Put(ctx context.Context, recs ...Record) (out []Entry, err error) {
	start := time.Now()
	err = s.update(ctx, func(st *StoreTx) error {
		out, err = st.Put(recs...)
		return err
	})
	s.db.opts.metricsCollector.RecordPut(len(recs), time.Since(start), err)
	s.db.opts.logger.LogPut(ctx, s.name, len(recs), err)
	return out, err
}

// AddKey inserts a record under an explicit key.
func (s *Store) AddKey(ctx context.Context, k Key, rec Record) (e Entry, err error) {
	start := time.Now()
	err = s.update(ctx, func(st *StoreTx) error {
		e, err = st.AddKey(k, rec)
		return err
	})
	s.db.opts.metricsCollector.RecordAdd(1, time.Since(start), err)
	s.db.opts.logger.LogAdd(ctx, s.name, 1, err)
	return e, err
}

// PutKey inserts or replaces a record under an explicit key.
func (s *Store) PutKey(ctx context.Context, k Key, rec Record) (e Entry, err error) {
	start := time.Now()
	err = s.update(ctx, func(st *StoreTx) error {
		e, err = st.PutKey(k, rec)
		return err
	})
	s.db.opts.metricsCollector.RecordPut(1, time.Since(start), err)
	s.db.opts.logger.LogPut(ctx, s.name, 1, err)
	return e, err
}

// Delete removes records by key and returns how many existed.
func (s *Store) Delete(ctx context.Context, keys ...Key) (n int, err error) {
	start := time.Now()
	err = s.update(ctx, func(st *StoreTx) error {
		n, err = st.Delete(keys...)
		return err
	})
	s.db.opts.metricsCollector.RecordDelete(n, time.Since(start), err)
	s.db.opts.logger.LogDelete(ctx, s.name, n, err)
	return n, err
}

// DeleteRange removes every record in r.
func (s *Store) DeleteRange(ctx context.Context, r Range) (n int, err error) {
	start := time.Now()
	err = s.update(ctx, func(st *StoreTx) error {
		n, err = st.DeleteRange(r)
		return err
	})
	s.db.opts.metricsCollector.RecordDelete(n, time.Since(start), err)
	s.db.opts.logger.LogDelete(ctx, s.name, n, err)
	return n, err
}

// Clear removes every record, index entry and full-text document.
func (s *Store) Clear(ctx context.Context) error {
	start := time.Now()
	err := s.update(ctx, func(st *StoreTx) error {
		return st.Clear()
	})
	s.db.opts.metricsCollector.RecordClear(time.Since(start), err)
	s.db.opts.logger.LogDelete(ctx, s.name, -1, err)
	return err
}

// Search runs a full-text query and returns the matching records by
// descending score.
func (s *Store) Search(ctx context.Context, query string, opts ...SearchOption) ([]ScoredRecord, error) {
	return s.db.Search(ctx, s.name, query, opts...)
}

// SearchKeys runs a full-text query and returns the index hits without
// reading the records.
func (s *Store) SearchKeys(ctx context.Context, query string) ([]fulltext.Hit, error) {
	ti, err := s.db.textIndex(s.name)
	if err != nil {
		return nil, err
	}
	ti.mu.RLock()
	defer ti.mu.RUnlock()
	return ti.idx.Search(query), nil
}
