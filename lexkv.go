package lexkv

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/lexkv/engine"
	"github.com/hupe1980/lexkv/fulltext"
	"github.com/hupe1980/lexkv/key"
	"github.com/hupe1980/lexkv/keyrange"
	"github.com/hupe1980/lexkv/record"
	"github.com/hupe1980/lexkv/schema"
)

type (
	// Key is a primary or index key.
	Key = key.Key
	// Record is a stored document.
	Record = record.Record
	// Range is a key range.
	Range = keyrange.Range
	// Entry is one record as seen through a store or an index.
	Entry = engine.Entry
	// Cursor iterates a store or an index inside a transaction.
	Cursor = engine.Cursor
	// Direction is the iteration order of a cursor.
	Direction = engine.Direction
	// Mode is the access mode of a transaction.
	Mode = engine.Mode
	// Schema maps store names to their configuration.
	Schema = schema.Schema
	// StoreConfig configures one store.
	StoreConfig = schema.StoreConfig
)

const (
	Next      = engine.Next
	Prev      = engine.Prev
	ReadOnly  = engine.ReadOnly
	ReadWrite = engine.ReadWrite
)

// textIndex is the full-text index of one store and the lock that keeps it
// in step with the store. Write transactions hold mu exclusively from begin
// to end, readers share it.
type textIndex struct {
	store string
	mu    sync.RWMutex
	idx   *fulltext.Index
}

// DB is an open lexkv database.
type DB struct {
	loc     Location
	opts    options
	eng     *engine.Engine
	text    map[string]*textIndex
	persist *persister
	closed  atomic.Bool
}

// Open opens or creates the database at loc with the given schema version
// and schema. Version 0 opens the current version. A higher version than
// the stored one migrates the stores to s; a lower one fails with a
// SchemaError.
//
// Every full-text index is restored from its snapshot when the snapshot
// matches the store, and rebuilt from the records otherwise.
func Open(ctx context.Context, loc Location, version int, s Schema, optFns ...Option) (*DB, error) {
	o := applyOptions(optFns)

	bdb, err := loc.open(&o)
	if err != nil {
		return nil, translateError(err)
	}

	eng, err := engine.Open(ctx, bdb, version, s, engine.Options{
		Codec:    o.codec,
		Logger:   o.logger.Logger,
		ReadOnly: o.readOnly,
	})
	if err != nil {
		o.logger.LogMigration(ctx, 0, version, err)
		_ = bdb.Close()
		return nil, translateError(err)
	}
	o.logger.LogMigration(ctx, eng.PreviousVersion(), eng.Version(), nil)

	db := &DB{
		loc:  loc,
		opts: o,
		eng:  eng,
		text: map[string]*textIndex{},
	}
	for _, name := range eng.StoreNames() {
		cfg, _ := eng.Config(name)
		if cfg.FullText == nil {
			continue
		}
		db.text[name] = &textIndex{store: name, idx: fulltext.New(cfg.FullText.Fields)}
	}

	if db.persistent() && o.snapshotMode == SnapshotAsync {
		db.persist = newPersister(db, o.snapshotInterval)
	}

	if err := db.loadIndexes(ctx); err != nil {
		db.abandon()
		return nil, err
	}
	if db.persist != nil {
		db.persist.start()
	}
	return db, nil
}

// abandon releases resources after a failed Open.
func (db *DB) abandon() {
	_ = db.eng.Close()
	_ = db.eng.Backend().Close()
}

// persistent reports whether snapshots are written.
func (db *DB) persistent() bool {
	return !db.opts.readOnly && db.opts.snapshotMode != SnapshotOff
}

// loadIndexes restores or rebuilds every full-text index in parallel. Rebuilt
// indexes get a fresh snapshot.
func (db *DB) loadIndexes(ctx context.Context) error {
	if len(db.text) == 0 {
		return nil
	}
	var (
		mu      sync.Mutex
		rebuilt []string
	)
	g, gctx := errgroup.WithContext(ctx)
	for name, ti := range db.text {
		g.Go(func() error {
			restored, err := db.loadIndex(gctx, ti)
			if err != nil {
				return fmt.Errorf("load fulltext index %s: %w", name, err)
			}
			if !restored {
				mu.Lock()
				rebuilt = append(rebuilt, name)
				mu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return translateError(err)
	}

	if !db.persistent() {
		return nil
	}
	for _, name := range rebuilt {
		if db.persist != nil {
			db.persist.mark(name)
			continue
		}
		if err := db.saveSnapshot(ctx, name); err != nil {
			return translateError(err)
		}
	}
	return nil
}

// loadIndex restores ti from its snapshot when the snapshot is intact and
// stamped with the committed store generation. Otherwise it rebuilds ti
// from the store.
func (db *DB) loadIndex(ctx context.Context, ti *textIndex) (restored bool, err error) {
	ti.mu.Lock()
	defer ti.mu.Unlock()

	start := time.Now()
	err = db.eng.View(ctx, []string{ti.store}, func(tx *engine.Tx) error {
		if db.opts.snapshotMode != SnapshotOff {
			gen, err := tx.Generation(ti.store)
			if err != nil {
				return err
			}
			data, err := tx.Snapshot(ti.store)
			if err != nil {
				return err
			}
			if data != nil && db.restore(ctx, ti, data, gen) {
				restored = true
				return nil
			}
		}
		return db.rebuild(tx, ti)
	})

	method := "rebuild"
	if restored {
		method = "restore"
	}
	db.opts.logger.LogRecovery(ctx, ti.store, method, ti.idx.Len(), time.Since(start), err)
	return restored, err
}

// restore applies a snapshot. Stale or damaged snapshots are logged and
// reported as not restored.
func (db *DB) restore(ctx context.Context, ti *textIndex, data []byte, gen uint64) bool {
	log := db.opts.logger.WithStore(ti.store)
	h, err := fulltext.PeekHeader(data)
	if err != nil {
		log.WarnContext(ctx, "ignoring fulltext snapshot", "error", err)
		return false
	}
	if h.Generation != gen {
		log.InfoContext(ctx, "fulltext snapshot is stale", "snapshot_generation", h.Generation, "generation", gen)
		return false
	}
	if h.Fingerprint != ti.idx.Fingerprint() {
		log.InfoContext(ctx, "fulltext snapshot was built for another field configuration")
		return false
	}
	if err := ti.idx.Restore(data); err != nil {
		log.WarnContext(ctx, "ignoring fulltext snapshot", "error", err)
		return false
	}
	return true
}

// rebuild indexes every record of the store into a fresh index and swaps it
// into ti. The caller holds ti.mu.
func (db *DB) rebuild(tx *engine.Tx, ti *textIndex) error {
	s, err := tx.Store(ti.store)
	if err != nil {
		return err
	}
	fresh := fulltext.New(ti.idx.Fields())
	c, err := s.Range(keyrange.All(), engine.Next)
	if err != nil {
		return err
	}
	defer c.Close()
	for c.Next() {
		e := c.Entry()
		if err := fresh.Add(e.Key, e.Record); err != nil {
			return err
		}
	}
	if err := c.Err(); err != nil {
		return err
	}
	return ti.idx.Replace(fresh)
}

// Rebuild discards the full-text index of store and rebuilds it from the
// records.
func (db *DB) Rebuild(ctx context.Context, store string) error {
	if db.closed.Load() {
		return ErrClosed
	}
	ti, err := db.textIndex(store)
	if err != nil {
		return err
	}
	start := time.Now()
	ti.mu.Lock()
	err = db.eng.View(ctx, []string{store}, func(tx *engine.Tx) error {
		return db.rebuild(tx, ti)
	})
	docs := ti.idx.Len()
	ti.mu.Unlock()
	db.opts.metricsCollector.RecordRebuild(docs, time.Since(start), err)
	db.opts.logger.LogRecovery(ctx, store, "rebuild", docs, time.Since(start), err)
	if err != nil {
		return translateError(err)
	}
	if !db.persistent() {
		return nil
	}
	return translateError(db.saveSnapshot(ctx, store))
}

func (db *DB) textIndex(store string) (*textIndex, error) {
	if _, err := db.eng.Config(store); err != nil {
		return nil, err
	}
	ti, ok := db.text[store]
	if !ok {
		return nil, fmt.Errorf("%w: store %q has no fulltext index", ErrIndexNotFound, store)
	}
	return ti, nil
}

// saveSnapshot persists the committed state of the full-text index of
// store. The snapshot is taken under the read lock, so no write transaction
// on the store is in flight and the index matches the committed generation.
func (db *DB) saveSnapshot(ctx context.Context, store string) error {
	ti := db.text[store]
	start := time.Now()

	ti.mu.RLock()
	gen, err := db.eng.Generation(ctx, store)
	var data []byte
	if err == nil {
		data, err = ti.idx.Snapshot(
			fulltext.WithGeneration(gen),
			fulltext.WithCompression(db.opts.snapshotCompression),
		)
	}
	ti.mu.RUnlock()

	if err == nil {
		err = db.writeSnapshot(ctx, store, data)
	}
	db.opts.metricsCollector.RecordSnapshot(len(data), time.Since(start), err)
	db.opts.logger.LogSnapshot(ctx, store, gen, len(data), err)
	return err
}

func (db *DB) writeSnapshot(ctx context.Context, store string, data []byte) error {
	tx, err := db.eng.Begin(ctx, engine.TxOptions{Mode: engine.ReadWrite, Stores: []string{store}})
	if err != nil {
		return err
	}
	if err := tx.PutSnapshot(store, data); err != nil {
		_ = tx.Abort()
		return err
	}
	return tx.Commit()
}

// Version returns the schema version.
func (db *DB) Version() int { return db.eng.Version() }

// Location returns where the database is stored.
func (db *DB) Location() Location { return db.loc }

// StoreNames returns the store names in ascending order.
func (db *DB) StoreNames() []string { return db.eng.StoreNames() }

// Schema returns the normalized schema. Callers must not modify it.
func (db *DB) Schema() Schema { return db.eng.Schema() }

// Store returns the handle of a store.
func (db *DB) Store(name string) (*Store, error) {
	cfg, err := db.eng.Config(name)
	if err != nil {
		return nil, err
	}
	return &Store{db: db, name: name, cfg: cfg}, nil
}

// StoreStats describes one store.
type StoreStats struct {
	Name           string
	Records        int
	Indexes        int
	Generation     uint64
	FullText       bool
	TextDocuments  int
	TextTerms      int
	SnapshotBytes  int
	SnapshotFresh  bool
	SnapshotFormat string
}

// Stats describes the database.
type Stats struct {
	Location Location
	Version  int
	Codec    string
	Stores   []StoreStats
}

// Stats collects record counts, index sizes and snapshot state per store.
func (db *DB) Stats(ctx context.Context) (Stats, error) {
	if db.closed.Load() {
		return Stats{}, ErrClosed
	}
	st := Stats{Location: db.loc, Version: db.Version(), Codec: db.eng.Codec().Name()}
	for _, name := range db.StoreNames() {
		cfg, _ := db.eng.Config(name)
		ss := StoreStats{Name: name, Indexes: len(cfg.Indexes)}
		err := db.View(ctx, []string{name}, func(tx *Tx) error {
			s, err := tx.tx.Store(name)
			if err != nil {
				return err
			}
			if ss.Records, err = s.Count(keyrange.All()); err != nil {
				return err
			}
			if ss.Generation, err = tx.tx.Generation(name); err != nil {
				return err
			}
			ti, ok := db.text[name]
			if !ok {
				return nil
			}
			ss.FullText = true
			is := ti.idx.Stats()
			ss.TextDocuments, ss.TextTerms = is.Documents, is.Terms
			data, err := tx.tx.Snapshot(name)
			if err != nil || data == nil {
				return err
			}
			ss.SnapshotBytes = len(data)
			if h, err := fulltext.PeekHeader(data); err == nil {
				ss.SnapshotFresh = h.Generation == ss.Generation
				ss.SnapshotFormat = h.Compression.String()
			}
			return nil
		})
		if err != nil {
			return Stats{}, err
		}
		st.Stores = append(st.Stores, ss)
	}
	return st, nil
}

// Close flushes pending snapshots and closes the database. Transactions
// still open must have ended before Close is called.
func (db *DB) Close() error {
	if db.closed.Swap(true) {
		return ErrClosed
	}
	var errs []error
	if db.persist != nil {
		errs = append(errs, db.persist.close(context.Background()))
	}
	errs = append(errs, db.eng.Close(), db.eng.Backend().Close())
	return translateError(errors.Join(errs...))
}
