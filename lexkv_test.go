package lexkv

import (
	"bytes"
	"context"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/lexkv/backend/bolt"
	"github.com/hupe1980/lexkv/blobstore"
	"github.com/hupe1980/lexkv/engine"
	"github.com/hupe1980/lexkv/key"
	"github.com/hupe1980/lexkv/keyrange"
	"github.com/hupe1980/lexkv/schema"
)

func testSchema() Schema {
	return Schema{
		"blogs": {
			KeyPath:       "id",
			KeyGeneration: schema.KeyGenAutoIncrement,
			Indexes:       []schema.IndexConfig{{Name: "path", KeyPath: "path", Unique: true}},
		},
		"posts": {
			KeyPath:       "id",
			KeyGeneration: schema.KeyGenAutoIncrement,
			Indexes:       []schema.IndexConfig{{Name: "tags", MultiEntry: true}},
			FullText: &schema.FullTextConfig{
				Fields: []schema.Field{{Name: "title", Boost: 2}, {Name: "body", Boost: 1}},
			},
		},
	}
}

func testLocation(t *testing.T) Location {
	t.Helper()
	return Bolt(filepath.Join(t.TempDir(), "lexkv.db"))
}

func openAt(t *testing.T, loc Location, opts ...Option) *DB {
	t.Helper()
	opts = append([]Option{WithBoltOptions(bolt.Options{NoSync: true})}, opts...)
	db, err := Open(context.Background(), loc, 1, testSchema(), opts...)
	require.NoError(t, err)
	return db
}

func openTestDB(t *testing.T, opts ...Option) *DB {
	t.Helper()
	db := openAt(t, testLocation(t), opts...)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func mustStore(t *testing.T, db *DB, name string) *Store {
	t.Helper()
	s, err := db.Store(name)
	require.NoError(t, err)
	return s
}

func hitKeys(results []ScoredRecord) []key.Key {
	out := make([]key.Key, len(results))
	for i, r := range results {
		out[i] = r.Key
	}
	return out
}

// syncBuffer is a bytes.Buffer safe for concurrent log writers.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func captureLogger(buf *syncBuffer) *Logger {
	return NewLogger(slog.NewJSONHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func TestOpen_StoresAndVersion(t *testing.T) {
	db := openTestDB(t)

	assert.Equal(t, 1, db.Version())
	assert.Equal(t, []string{"blogs", "posts"}, db.StoreNames())

	_, err := db.Store("missing")
	require.ErrorIs(t, err, ErrStoreNotFound)

	posts := mustStore(t, db, "posts")
	assert.True(t, posts.HasFullText())
	assert.Equal(t, "id", posts.Config().KeyPath)
}

func TestOpen_DowngradeFails(t *testing.T) {
	loc := testLocation(t)
	ctx := context.Background()

	db, err := Open(ctx, loc, 2, testSchema(), WithBoltOptions(bolt.Options{NoSync: true}))
	require.NoError(t, err)
	require.NoError(t, db.Close())

	_, err = Open(ctx, loc, 1, testSchema())
	require.ErrorIs(t, err, ErrSchema)

	var se *SchemaError
	require.ErrorAs(t, err, &se)
}

func TestOpen_InvalidSchema(t *testing.T) {
	s := Schema{"docs": {FullText: &schema.FullTextConfig{Fields: []schema.Field{{Name: "text"}}}}}
	_, err := Open(context.Background(), testLocation(t), 1, s)
	require.ErrorIs(t, err, ErrSchema)
}

func TestOpen_MigrationAddsFullText(t *testing.T) {
	ctx := context.Background()
	loc := testLocation(t)

	s := testSchema()
	plain := s["posts"]
	plain.FullText = nil
	s["posts"] = plain

	db, err := Open(ctx, loc, 1, s)
	require.NoError(t, err)
	_, err = mustStore(t, db, "posts").Add(ctx, Record{"title": "rust ownership"})
	require.NoError(t, err)
	_, err = db.Search(ctx, "posts", "rust")
	require.ErrorIs(t, err, ErrIndexNotFound)
	require.NoError(t, db.Close())

	db, err = Open(ctx, loc, 2, testSchema())
	require.NoError(t, err)
	defer db.Close()

	results, err := db.Search(ctx, "posts", "rust")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "rust ownership", results[0].Record["title"])
}

func TestOpen_ReadOnly(t *testing.T) {
	ctx := context.Background()
	loc := testLocation(t)

	db := openAt(t, loc)
	_, err := mustStore(t, db, "posts").Add(ctx, Record{"title": "rust"})
	require.NoError(t, err)
	require.NoError(t, db.Close())

	ro, err := Open(ctx, loc, 0, nil, WithReadOnly())
	require.NoError(t, err)
	defer ro.Close()

	posts := mustStore(t, ro, "posts")
	_, err = posts.Add(ctx, Record{"title": "go"})
	require.ErrorIs(t, err, ErrReadOnly)

	results, err := posts.Search(ctx, "rust")
	require.NoError(t, err)
	assert.Len(t, results, 1)
}

func TestClose(t *testing.T) {
	db := openAt(t, testLocation(t))
	require.NoError(t, db.Close())
	require.ErrorIs(t, db.Close(), ErrClosed)

	_, err := db.Begin(context.Background(), ReadOnly)
	require.ErrorIs(t, err, ErrClosed)
	require.ErrorIs(t, db.Rebuild(context.Background(), "posts"), ErrClosed)
}

func TestUpdate_AbortRestoresIndex(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	posts := mustStore(t, db, "posts")

	_, err := posts.Add(ctx, Record{"title": "rust ownership"})
	require.NoError(t, err)

	boom := assert.AnError
	err = db.Update(ctx, []string{"posts"}, func(tx *Tx) error {
		st, err := tx.Store("posts")
		if err != nil {
			return err
		}
		if _, err := st.Add(Record{"title": "rust traits"}); err != nil {
			return err
		}
		if err := st.Clear(); err != nil {
			return err
		}
		results, err := tx.Search("posts", "rust")
		if err != nil {
			return err
		}
		assert.Empty(t, results)
		return boom
	})
	require.ErrorIs(t, err, boom)

	results, err := posts.Search(ctx, "rust")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "rust ownership", results[0].Record["title"])

	n, err := posts.Count(ctx, keyrange.All())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

// within fails the test when fn does not return in time, which is how a
// leaked transaction lock shows up.
func within(t *testing.T, fn func() error) error {
	t.Helper()
	done := make(chan error, 1)
	go func() { done <- fn() }()
	select {
	case err := <-done:
		return err
	case <-time.After(5 * time.Second):
		require.FailNow(t, "blocked on a transaction that was never ended")
		return nil
	}
}

func TestUpdate_CanceledBeforeCommitReleasesLocks(t *testing.T) {
	db := openTestDB(t)
	posts := mustStore(t, db, "posts")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	err := db.Update(ctx, []string{"posts"}, func(tx *Tx) error {
		st, err := tx.Store("posts")
		if err != nil {
			return err
		}
		if _, err := st.Add(Record{"title": "rust ownership"}); err != nil {
			return err
		}
		cancel()
		return nil
	})
	require.ErrorIs(t, err, context.Canceled)

	bg := context.Background()
	require.NoError(t, within(t, func() error {
		results, err := posts.Search(bg, "rust")
		assert.Empty(t, results)
		return err
	}))
	require.NoError(t, within(t, func() error {
		_, err := posts.Add(bg, Record{"title": "rust traits"})
		return err
	}))

	results, err := posts.Search(bg, "rust")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "rust traits", results[0].Record["title"])
}

func TestUpdate_PanicReleasesLocks(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	posts := mustStore(t, db, "posts")
	blogs := mustStore(t, db, "blogs")

	assert.PanicsWithValue(t, "boom", func() {
		_ = db.Update(ctx, []string{"posts", "blogs"}, func(tx *Tx) error {
			st, err := tx.Store("posts")
			if err != nil {
				return err
			}
			if _, err := st.Add(Record{"title": "rust ownership"}); err != nil {
				return err
			}
			panic("boom")
		})
	})

	require.NoError(t, within(t, func() error {
		results, err := posts.Search(ctx, "rust")
		assert.Empty(t, results)
		return err
	}))
	require.NoError(t, within(t, func() error {
		_, err := blogs.Add(ctx, Record{"path": "after-panic"})
		return err
	}))
	n, err := posts.Count(ctx, keyrange.All())
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestBegin_ManualCommit(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	tx, err := db.Begin(ctx, ReadWrite, "posts", "blogs", "posts")
	require.NoError(t, err)
	assert.Equal(t, []string{"blogs", "posts"}, tx.Stores())
	assert.Equal(t, ReadWrite, tx.Mode())

	st, err := tx.Store("posts")
	require.NoError(t, err)
	entries, err := st.Add(Record{"title": "go channels"}, Record{"title": "go interfaces"})
	require.NoError(t, err)
	require.Len(t, entries, 2)

	inTx, err := tx.Search("posts", "go")
	require.NoError(t, err)
	assert.Len(t, inTx, 2)

	require.NoError(t, tx.Commit())
	assert.Equal(t, engine.StateCommitted, tx.State())
	require.ErrorIs(t, tx.Commit(), ErrTransactionClosed)

	results, err := db.Search(ctx, "posts", "go")
	require.NoError(t, err)
	assert.Len(t, results, 2)
}

func TestBegin_UnknownStore(t *testing.T) {
	db := openTestDB(t)
	_, err := db.Begin(context.Background(), ReadOnly, "nope")
	require.ErrorIs(t, err, ErrStoreNotFound)

	// The failed begin must not leave any lock behind.
	_, err = mustStore(t, db, "posts").Add(context.Background(), Record{"title": "x"})
	require.NoError(t, err)
}

func TestView_RejectsWrites(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	err := db.View(ctx, []string{"posts"}, func(tx *Tx) error {
		st, err := tx.Store("posts")
		if err != nil {
			return err
		}
		_, err = st.Add(Record{"title": "x"})
		return err
	})
	require.ErrorIs(t, err, ErrReadOnly)
}

func TestStore_ConvenienceMethods(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	posts := mustStore(t, db, "posts")

	entries, err := posts.Put(ctx,
		Record{"title": "alpha", "tags": []any{"a", "b"}},
		Record{"title": "beta", "tags": []any{"b"}},
		Record{"title": "gamma"},
	)
	require.NoError(t, err)
	require.Len(t, entries, 3)

	rec, ok, err := posts.Get(ctx, key.Int(2))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "beta", rec["title"])

	keys, err := posts.Keys(ctx, keyrange.LowerBound(key.Int(2), false), 0)
	require.NoError(t, err)
	assert.Equal(t, []key.Key{key.Int(2), key.Int(3)}, keys)

	all, err := posts.GetAll(ctx, keyrange.All(), 2)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	tagged, err := posts.IndexGetAll(ctx, "tags", keyrange.Only(key.String("b")), 0)
	require.NoError(t, err)
	require.Len(t, tagged, 2)
	assert.Equal(t, key.Int(1), tagged[0].Key)

	first, ok, err := posts.IndexGet(ctx, "tags", key.String("a"))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "alpha", first["title"])

	_, _, err = posts.IndexGet(ctx, "nope", key.String("a"))
	require.ErrorIs(t, err, ErrIndexNotFound)

	var seen []key.Key
	require.NoError(t, posts.Scan(ctx, keyrange.All(), Prev, func(e Entry) bool {
		seen = append(seen, e.Key)
		return len(seen) < 2
	}))
	assert.Equal(t, []key.Key{key.Int(3), key.Int(2)}, seen)

	n, err := posts.DeleteRange(ctx, keyrange.UpperBound(key.Int(2), false))
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	hits, err := posts.SearchKeys(ctx, "alpha beta gamma")
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, key.Int(3), hits[0].Ref)

	require.NoError(t, posts.Clear(ctx))
	count, err := posts.Count(ctx, keyrange.All())
	require.NoError(t, err)
	assert.Zero(t, count)

	// Clear keeps the key generator.
	e, err := posts.Add(ctx, Record{"title": "delta"})
	require.NoError(t, err)
	assert.Equal(t, key.Int(4), e[0].Key)
}

func TestStore_PutKeyOnInlineStoreFails(t *testing.T) {
	db := openTestDB(t)
	_, err := mustStore(t, db, "posts").PutKey(context.Background(), key.Int(1), Record{"title": "x"})
	require.ErrorIs(t, err, ErrInvalidKey)
}

func TestSearch_Options(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	posts := mustStore(t, db, "posts")

	for _, title := range []string{"go go go", "go go", "go", "rust"} {
		_, err := posts.Add(ctx, Record{"title": title})
		require.NoError(t, err)
	}

	results, err := posts.Search(ctx, "go")
	require.NoError(t, err)
	require.Len(t, results, 3)
	for i := 1; i < len(results); i++ {
		assert.GreaterOrEqual(t, results[i-1].Score, results[i].Score)
	}

	limited, err := posts.Search(ctx, "go", WithLimit(2))
	require.NoError(t, err)
	assert.Equal(t, hitKeys(results[:2]), hitKeys(limited))

	paged, err := posts.Search(ctx, "go", WithOffset(1), WithLimit(1))
	require.NoError(t, err)
	assert.Equal(t, hitKeys(results[1:2]), hitKeys(paged))

	empty, err := posts.Search(ctx, "go", WithOffset(10))
	require.NoError(t, err)
	assert.Empty(t, empty)

	_, err = db.Search(ctx, "blogs", "go")
	require.ErrorIs(t, err, ErrIndexNotFound)
	_, err = db.Search(ctx, "missing", "go")
	require.ErrorIs(t, err, ErrStoreNotFound)
}

func TestSnapshotModes(t *testing.T) {
	tests := []struct {
		name        string
		mode        SnapshotMode
		wantRestore bool
	}{
		{name: "async", mode: SnapshotAsync, wantRestore: true},
		{name: "sync", mode: SnapshotSync, wantRestore: true},
		{name: "off", mode: SnapshotOff, wantRestore: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			loc := testLocation(t)

			db := openAt(t, loc, WithSnapshotMode(tt.mode), WithSnapshotInterval(time.Millisecond))
			_, err := mustStore(t, db, "posts").Add(ctx, Record{"title": "rust ownership"})
			require.NoError(t, err)

			st, err := db.Stats(ctx)
			require.NoError(t, err)
			if tt.mode == SnapshotSync {
				assert.True(t, st.Stores[1].SnapshotFresh)
			}
			require.NoError(t, db.Close())

			var buf syncBuffer
			db = openAt(t, loc, WithSnapshotMode(tt.mode), WithLogger(captureLogger(&buf)))
			defer db.Close()

			if tt.wantRestore {
				assert.Contains(t, buf.String(), `"method":"restore"`)
			} else {
				assert.Contains(t, buf.String(), `"method":"rebuild"`)
			}
			results, err := db.Search(ctx, "posts", "rust")
			require.NoError(t, err)
			assert.Len(t, results, 1)
		})
	}
}

func TestOpen_StaleSnapshotIsRebuilt(t *testing.T) {
	ctx := context.Background()
	loc := testLocation(t)

	db := openAt(t, loc, WithSnapshotMode(SnapshotSync))
	_, err := mustStore(t, db, "posts").Add(ctx, Record{"title": "rust ownership"})
	require.NoError(t, err)
	require.NoError(t, db.Close())

	// Writes without snapshots leave the stored one behind the generation.
	db = openAt(t, loc, WithSnapshotMode(SnapshotOff))
	_, err = mustStore(t, db, "posts").Add(ctx, Record{"title": "rust lifetimes"})
	require.NoError(t, err)
	require.NoError(t, db.Close())

	var buf syncBuffer
	db = openAt(t, loc, WithLogger(captureLogger(&buf)))
	defer db.Close()

	assert.Contains(t, buf.String(), "fulltext snapshot is stale")
	assert.Contains(t, buf.String(), `"method":"rebuild"`)
	results, err := db.Search(ctx, "posts", "rust")
	require.NoError(t, err)
	assert.Len(t, results, 2)
}

func TestOpen_CorruptSnapshotIsRebuilt(t *testing.T) {
	ctx := context.Background()
	loc := testLocation(t)

	db := openAt(t, loc, WithSnapshotMode(SnapshotSync))
	_, err := mustStore(t, db, "posts").Add(ctx, Record{"title": "rust ownership"})
	require.NoError(t, err)

	tx, err := db.eng.Begin(ctx, engine.TxOptions{Mode: engine.ReadWrite, Stores: []string{"posts"}})
	require.NoError(t, err)
	data, err := tx.Snapshot("posts")
	require.NoError(t, err)
	data[len(data)-1] ^= 0xff
	require.NoError(t, tx.PutSnapshot("posts", data))
	require.NoError(t, tx.Commit())
	require.NoError(t, db.Close())

	var buf syncBuffer
	db = openAt(t, loc, WithLogger(captureLogger(&buf)))
	defer db.Close()

	assert.Contains(t, buf.String(), "ignoring fulltext snapshot")
	results, err := db.Search(ctx, "posts", "rust")
	require.NoError(t, err)
	assert.Len(t, results, 1)
}

func TestStats(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t, WithSnapshotMode(SnapshotSync))

	_, err := mustStore(t, db, "posts").Add(ctx, Record{"title": "rust ownership", "body": "memory safety"})
	require.NoError(t, err)

	st, err := db.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, st.Version)
	assert.Equal(t, "go-json", st.Codec)
	require.Len(t, st.Stores, 2)

	blogs, posts := st.Stores[0], st.Stores[1]
	assert.Equal(t, "blogs", blogs.Name)
	assert.False(t, blogs.FullText)
	assert.Equal(t, 1, blogs.Indexes)

	assert.Equal(t, 1, posts.Records)
	assert.Equal(t, uint64(1), posts.Generation)
	assert.True(t, posts.FullText)
	assert.Equal(t, 1, posts.TextDocuments)
	assert.Equal(t, 4, posts.TextTerms)
	assert.Positive(t, posts.SnapshotBytes)
	assert.True(t, posts.SnapshotFresh)
	assert.Equal(t, "zstd", posts.SnapshotFormat)
}

func TestRebuild(t *testing.T) {
	ctx := context.Background()
	metrics := &BasicMetricsCollector{}
	db := openTestDB(t, WithMetricsCollector(metrics), WithSnapshotMode(SnapshotSync))
	posts := mustStore(t, db, "posts")

	_, err := posts.Add(ctx, Record{"title": "rust"}, Record{"title": "go"})
	require.NoError(t, err)
	require.NoError(t, db.Rebuild(ctx, "posts"))

	results, err := posts.Search(ctx, "rust")
	require.NoError(t, err)
	assert.Len(t, results, 1)

	require.ErrorIs(t, db.Rebuild(ctx, "blogs"), ErrIndexNotFound)

	stats := metrics.GetStats()
	assert.Equal(t, int64(1), stats.AddCount)
	assert.Equal(t, int64(2), stats.AddRecords)
	assert.Equal(t, int64(1), stats.RebuildCount)
	assert.Equal(t, int64(2), stats.RebuildDocuments)
	assert.Equal(t, int64(1), stats.SearchCount)
	assert.GreaterOrEqual(t, stats.SnapshotCount, int64(2))
}

func TestMetrics_Errors(t *testing.T) {
	ctx := context.Background()
	metrics := &BasicMetricsCollector{}
	db := openTestDB(t, WithMetricsCollector(metrics))
	blogs := mustStore(t, db, "blogs")

	_, err := blogs.Add(ctx, Record{"path": "a"})
	require.NoError(t, err)
	_, err = blogs.Add(ctx, Record{"path": "a"})
	require.ErrorIs(t, err, ErrConstraint)
	_, err = blogs.Delete(ctx, key.Int(1), key.Int(99))
	require.NoError(t, err)
	require.NoError(t, blogs.Clear(ctx))

	stats := metrics.GetStats()
	assert.Equal(t, int64(2), stats.AddCount)
	assert.Equal(t, int64(1), stats.AddErrors)
	assert.Equal(t, int64(1), stats.DeleteRecords)
	assert.Equal(t, int64(1), stats.ClearCount)
}

func TestDeleteDatabase(t *testing.T) {
	ctx := context.Background()
	for _, loc := range []Location{
		Bolt(filepath.Join(t.TempDir(), "drop.db")),
		SQLite(filepath.Join(t.TempDir(), "drop.sqlite")),
	} {
		t.Run(string(loc.Kind()), func(t *testing.T) {
			db, err := Open(ctx, loc, 1, testSchema())
			require.NoError(t, err)
			_, err = mustStore(t, db, "posts").Add(ctx, Record{"title": "rust"})
			require.NoError(t, err)
			require.NoError(t, db.Close())

			require.NoError(t, DeleteDatabase(ctx, loc))
			require.NoError(t, DeleteDatabase(ctx, loc))

			db, err = Open(ctx, loc, 1, testSchema())
			require.NoError(t, err)
			defer db.Close()
			n, err := mustStore(t, db, "posts").Count(ctx, keyrange.All())
			require.NoError(t, err)
			assert.Zero(t, n)
		})
	}
}

func TestParseLocation(t *testing.T) {
	loc, err := ParseLocation("sqlite", "x.db")
	require.NoError(t, err)
	assert.Equal(t, SQLite("x.db"), loc)
	assert.Equal(t, "sqlite:x.db", loc.String())

	loc, err = ParseLocation("", "y.db")
	require.NoError(t, err)
	assert.Equal(t, Bolt("y.db"), loc)

	_, err = ParseLocation("leveldb", "z")
	require.Error(t, err)
}

func TestBackupRestore(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t, WithSnapshotMode(SnapshotSync))
	_, err := mustStore(t, db, "posts").Add(ctx, Record{"title": "rust ownership"})
	require.NoError(t, err)

	bs := blobstore.NewMemoryStore()
	require.NoError(t, db.Backup(ctx, bs, "nightly.lxb"))

	names, err := bs.List(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"nightly.lxb"}, names)

	target := filepath.Join(t.TempDir(), "restored", "lexkv.db")
	require.NoError(t, RestoreBackup(ctx, bs, "nightly.lxb", target))
	require.ErrorIs(t, RestoreBackup(ctx, bs, "nightly.lxb", target), ErrBackupExists)
	require.ErrorIs(t, RestoreBackup(ctx, bs, "missing.lxb", filepath.Join(t.TempDir(), "x.db")), blobstore.ErrNotFound)

	var buf syncBuffer
	restored, err := Open(ctx, Bolt(target), 0, nil, WithLogger(captureLogger(&buf)))
	require.NoError(t, err)
	defer restored.Close()

	assert.Contains(t, buf.String(), `"method":"restore"`)
	results, err := restored.Search(ctx, "posts", "rust")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "rust ownership", results[0].Record["title"])
}

func TestBackup_SQLite(t *testing.T) {
	ctx := context.Background()
	loc := SQLite(filepath.Join(t.TempDir(), "src.sqlite"))
	db, err := Open(ctx, loc, 1, testSchema())
	require.NoError(t, err)
	defer db.Close()

	_, err = mustStore(t, db, "blogs").Add(ctx, Record{"path": "a"}, Record{"path": "b"})
	require.NoError(t, err)

	bs := blobstore.NewLocalStore(t.TempDir())
	require.NoError(t, db.Backup(ctx, bs, "copy.lxb"))

	target := filepath.Join(t.TempDir(), "copy.sqlite")
	require.NoError(t, RestoreBackup(ctx, bs, "copy.lxb", target))

	copyDB, err := Open(ctx, SQLite(target), 0, nil)
	require.NoError(t, err)
	defer copyDB.Close()
	n, err := mustStore(t, copyDB, "blogs").Count(ctx, keyrange.All())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestPersister_FlushesOnClose(t *testing.T) {
	ctx := context.Background()
	loc := testLocation(t)

	// A long interval keeps the background round from running before Close.
	db := openAt(t, loc, WithSnapshotInterval(time.Hour))
	posts := mustStore(t, db, "posts")
	for i := 0; i < 5; i++ {
		_, err := posts.Add(ctx, Record{"title": "rust"})
		require.NoError(t, err)
	}
	require.NoError(t, db.Close())

	var buf syncBuffer
	db = openAt(t, loc, WithLogger(captureLogger(&buf)))
	defer db.Close()
	assert.Contains(t, buf.String(), `"method":"restore"`)

	gen, err := db.eng.Generation(ctx, "posts")
	require.NoError(t, err)
	assert.Equal(t, uint64(5), gen)
}

func TestPersister_Take(t *testing.T) {
	p := newPersister(nil, time.Second)
	p.mark("b")
	p.mark("a")
	p.mark("b")
	assert.Equal(t, []string{"a", "b"}, p.take())
	assert.Empty(t, p.take())
}

func TestTranslateError(t *testing.T) {
	assert.NoError(t, translateError(nil))
	assert.ErrorIs(t, translateError(engine.ErrClosed), ErrClosed)
	assert.ErrorIs(t, translateError(ErrConstraint), ErrConstraint)
}

func TestSnapshotMode_String(t *testing.T) {
	assert.Equal(t, "async", SnapshotAsync.String())
	assert.Equal(t, "sync", SnapshotSync.String())
	assert.Equal(t, "off", SnapshotOff.String())
}
