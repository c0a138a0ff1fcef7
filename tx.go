package lexkv

import (
	"context"
	"slices"
	"time"

	"github.com/hupe1980/lexkv/engine"
	"github.com/hupe1980/lexkv/fulltext"
	"github.com/hupe1980/lexkv/key"
	"github.com/hupe1980/lexkv/record"
)

type (
	// StoreTx is a store bound to a transaction.
	StoreTx = engine.StoreTx
	// IndexTx is a secondary index bound to a transaction.
	IndexTx = engine.IndexTx
	// State is the lifecycle state of a transaction.
	State = engine.State
)

// Tx is a transaction over a fixed set of stores. It must end with Commit
// or Abort: it holds the full-text locks of its stores until then. A Tx must
// only be used by one goroutine at a time, and that goroutine must not
// start another transaction on overlapping stores while it is open.
type Tx struct {
	db     *DB
	tx     *engine.Tx
	locked []*textIndex
	write  bool
}

// Begin starts a transaction over stores, or over every store when none are
// given.
func (db *DB) Begin(ctx context.Context, mode Mode, stores ...string) (*Tx, error) {
	if db.closed.Load() {
		return nil, ErrClosed
	}
	names := stores
	if len(names) == 0 {
		names = db.StoreNames()
	}
	names = slices.Clone(names)
	slices.Sort(names)
	names = slices.Compact(names)
	for _, name := range names {
		if _, err := db.eng.Config(name); err != nil {
			return nil, err
		}
	}

	t := &Tx{db: db, write: mode == ReadWrite}
	var mirrors map[string]engine.Mirror
	started := false
	defer func() {
		if !started {
			for _, m := range mirrors {
				m.Rollback()
			}
			t.unlock()
		}
	}()

	for _, name := range names {
		ti := db.text[name]
		if ti == nil {
			continue
		}
		if t.write {
			ti.mu.Lock()
		} else {
			ti.mu.RLock()
		}
		t.locked = append(t.locked, ti)
		if t.write {
			if mirrors == nil {
				mirrors = map[string]engine.Mirror{}
			}
			mirrors[name] = &textMirror{db: db, ti: ti, batch: ti.idx.Begin()}
		}
	}

	etx, err := db.eng.Begin(ctx, engine.TxOptions{Mode: mode, Stores: names, Mirrors: mirrors})
	if err != nil {
		return nil, translateError(err)
	}
	t.tx = etx
	etx.OnFinish(t.finish)
	started = true
	return t, nil
}

func (t *Tx) unlock() {
	for i := len(t.locked) - 1; i >= 0; i-- {
		if t.write {
			t.locked[i].mu.Unlock()
		} else {
			t.locked[i].mu.RUnlock()
		}
	}
	t.locked = nil
}

func (t *Tx) finish(s State) {
	var dirty []string
	if s == engine.StateCommitted && t.write {
		for _, ti := range t.locked {
			if t.tx.Dirty(ti.store) {
				dirty = append(dirty, ti.store)
			}
		}
	}
	t.unlock()
	if p := t.db.persist; p != nil {
		for _, name := range dirty {
			p.mark(name)
		}
	}
}

// Update runs fn in a read-write transaction over stores. The transaction
// commits when fn returns nil and aborts otherwise, including when fn
// panics or the commit fails.
func (db *DB) Update(ctx context.Context, stores []string, fn func(tx *Tx) error) error {
	tx, err := db.Begin(ctx, ReadWrite, stores...)
	if err != nil {
		return err
	}
	defer func() {
		if tx.State() == engine.StateOpen {
			_ = tx.Abort()
		}
	}()
	if err := fn(tx); err != nil {
		return translateError(err)
	}
	return tx.Commit()
}

// View runs fn in a read-only transaction over stores.
func (db *DB) View(ctx context.Context, stores []string, fn func(tx *Tx) error) error {
	tx, err := db.Begin(ctx, ReadOnly, stores...)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Abort() }()
	return translateError(fn(tx))
}

// Mode returns the access mode.
func (t *Tx) Mode() Mode { return t.tx.Mode() }

// State returns the lifecycle state.
func (t *Tx) State() State { return t.tx.State() }

// Err returns the abort cause, or nil while open or after commit.
func (t *Tx) Err() error { return t.tx.Err() }

// Stores returns the transaction scope in ascending order.
func (t *Tx) Stores() []string { return t.tx.Stores() }

// Store returns a store in the transaction scope.
func (t *Tx) Store(name string) (*StoreTx, error) {
	s, err := t.tx.Store(name)
	return s, translateError(err)
}

// Commit publishes the transaction.
func (t *Tx) Commit() error {
	return translateError(t.tx.Commit())
}

// Abort rolls the transaction back, including every full-text mutation it
// made.
func (t *Tx) Abort() error {
	return translateError(t.tx.Abort())
}

// textMirror applies the mutations of one store to its full-text index
// through a batch, so an abort restores the index exactly.
type textMirror struct {
	db    *DB
	ti    *textIndex
	batch *fulltext.Batch
}

var _ engine.Mirror = (*textMirror)(nil)

func (m *textMirror) Added(k key.Key, r record.Record) error { return m.batch.Add(k, r) }

func (m *textMirror) Updated(k key.Key, r record.Record) error { return m.batch.Update(k, r) }

func (m *textMirror) Removed(k key.Key) error {
	_, err := m.batch.Remove(k)
	return err
}

func (m *textMirror) Cleared() error { return m.batch.Clear() }

// Prepare writes the snapshot into the committing transaction in
// SnapshotSync mode. It is stamped with the generation the commit publishes.
func (m *textMirror) Prepare(tx *engine.Tx) error {
	if m.db.opts.snapshotMode != SnapshotSync {
		return nil
	}
	start := time.Now()
	store := m.ti.store
	gen, err := tx.Generation(store)
	if err != nil {
		return err
	}
	data, err := m.ti.idx.Snapshot(
		fulltext.WithGeneration(gen),
		fulltext.WithCompression(m.db.opts.snapshotCompression),
	)
	if err == nil {
		err = tx.PutSnapshot(store, data)
	}
	m.db.opts.metricsCollector.RecordSnapshot(len(data), time.Since(start), err)
	m.db.opts.logger.LogSnapshot(context.Background(), store, gen, len(data), err)
	return err
}

func (m *textMirror) Commit() { m.batch.Commit() }

func (m *textMirror) Rollback() { m.batch.Rollback() }
