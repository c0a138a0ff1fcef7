package engine

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/lexkv/key"
	"github.com/hupe1980/lexkv/keyrange"
	"github.com/hupe1980/lexkv/record"
)

func TestStore_AddGetPut(t *testing.T) {
	e := openEngine(t, openBackend(t), 1, testSchema())

	update(t, e, func(tx *Tx) {
		s := store(t, tx, "plain")
		out, err := s.Add(record.Record{"name": "a", "n": 1})
		require.NoError(t, err)
		require.Len(t, out, 1)
		assert.Equal(t, key.String("a"), out[0].Key)
		assert.Equal(t, float64(1), out[0].Record["n"])

		_, err = s.Add(record.Record{"name": "a"})
		var ce *ConstraintError
		require.ErrorAs(t, err, &ce)
		assert.Equal(t, "plain", ce.Store)
		assert.Empty(t, ce.Index)
		assert.Equal(t, StateOpen, tx.State())

		_, err = s.Put(record.Record{"name": "a", "n": 2})
		require.NoError(t, err)
	})

	view(t, e, func(tx *Tx) {
		r, ok, err := store(t, tx, "plain").Get(key.String("a"))
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, record.Record{"name": "a", "n": float64(2)}, r)
	})
}

func TestStore_InputNotModified(t *testing.T) {
	e := openEngine(t, openBackend(t), 1, testSchema())
	in := record.Record{"title": "x"}
	update(t, e, func(tx *Tx) {
		out, err := store(t, tx, "books").Add(in)
		require.NoError(t, err)
		assert.Equal(t, float64(1), out[0].Record["id"])
	})
	assert.Equal(t, record.Record{"title": "x"}, in)
}

func TestStore_AutoIncrement(t *testing.T) {
	e := openEngine(t, openBackend(t), 1, testSchema())

	update(t, e, func(tx *Tx) {
		s := store(t, tx, "notes")
		a, err := s.Add(record.Record{"v": "a"}, record.Record{"v": "b"})
		require.NoError(t, err)
		assert.Equal(t, key.Int(1), a[0].Key)
		assert.Equal(t, key.Int(2), a[1].Key)

		// Explicit numeric keys advance the generator.
		_, err = s.AddKey(key.Number(10.5), record.Record{"v": "c"})
		require.NoError(t, err)
		next, err := s.Add(record.Record{"v": "d"})
		require.NoError(t, err)
		assert.Equal(t, key.Int(11), next[0].Key)

		// Non-numeric and small keys leave it alone.
		_, err = s.AddKey(key.String("z"), record.Record{})
		require.NoError(t, err)
		_, err = s.AddKey(key.Number(-5), record.Record{})
		require.NoError(t, err)
		next, err = s.Add(record.Record{"v": "e"})
		require.NoError(t, err)
		assert.Equal(t, key.Int(12), next[0].Key)
	})

	// Clear keeps the generator.
	update(t, e, func(tx *Tx) {
		s := store(t, tx, "notes")
		require.NoError(t, s.Clear())
		out, err := s.Add(record.Record{"v": "f"})
		require.NoError(t, err)
		assert.Equal(t, key.Int(13), out[0].Key)
		n, err := s.Count(keyrange.All())
		require.NoError(t, err)
		assert.Equal(t, 1, n)
	})
}

func TestStore_InlineKeyGeneration(t *testing.T) {
	e := openEngine(t, openBackend(t), 1, testSchema())
	update(t, e, func(tx *Tx) {
		out, err := store(t, tx, "books").Add(record.Record{"title": "a"}, record.Record{"id": 7, "title": "b"}, record.Record{"title": "c"})
		require.NoError(t, err)
		assert.Equal(t, key.Int(1), out[0].Key)
		assert.Equal(t, key.Int(7), out[1].Key)
		assert.Equal(t, key.Int(8), out[2].Key)
		assert.Equal(t, float64(8), out[2].Record["id"])

		ids, err := store(t, tx, "ids").Add(record.Record{})
		require.NoError(t, err)
		_, err = uuid.Parse(ids[0].Record["uid"].(string))
		require.NoError(t, err)
	})
}

func TestStore_KeyErrors(t *testing.T) {
	e := openEngine(t, openBackend(t), 1, testSchema())
	update(t, e, func(tx *Tx) {
		_, err := store(t, tx, "plain").Add(record.Record{"other": 1})
		assert.ErrorIs(t, err, ErrMissingKey)

		_, err = store(t, tx, "plain").Add(record.Record{"name": true})
		assert.ErrorIs(t, err, key.ErrInvalidKey)

		_, err = store(t, tx, "plain").AddKey(key.String("k"), record.Record{})
		assert.ErrorIs(t, err, key.ErrInvalidKey)

		_, _, err = store(t, tx, "plain").Get(key.Key{})
		assert.ErrorIs(t, err, key.ErrInvalidKey)

		assert.Equal(t, StateOpen, tx.State())
	})
}

func TestStore_UniqueIndexCompensates(t *testing.T) {
	e := openEngine(t, openBackend(t), 1, testSchema())
	update(t, e, func(tx *Tx) {
		_, err := store(t, tx, "books").Add(record.Record{"id": 1, "isbn": "A", "author": "x"})
		require.NoError(t, err)
	})

	update(t, e, func(tx *Tx) {
		s := store(t, tx, "books")
		_, err := s.Add(
			record.Record{"id": 2, "isbn": "B"},
			record.Record{"id": 3, "isbn": "A"},
		)
		var ce *ConstraintError
		require.ErrorAs(t, err, &ce)
		assert.Equal(t, "isbn", ce.Index)
		assert.Equal(t, key.String("A"), ce.Key)

		// The first record of the batch was undone.
		_, ok, err := s.Get(key.Int(2))
		require.NoError(t, err)
		assert.False(t, ok)

		// Replacing a record with a clashing one restores the original.
		_, err = s.Put(record.Record{"id": 1, "isbn": "C", "author": "y"}, record.Record{"id": 4, "isbn": "C"})
		require.ErrorAs(t, err, &ce)
		r, ok, err := s.Get(key.Int(1))
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, "A", r["isbn"])

		idx, err := s.Index("author")
		require.NoError(t, err)
		n, err := idx.Count(keyrange.Only(key.String("x")))
		require.NoError(t, err)
		assert.Equal(t, 1, n)
		n, err = idx.Count(keyrange.Only(key.String("y")))
		require.NoError(t, err)
		assert.Zero(t, n)

		// A record may keep its own unique value.
		_, err = s.Put(record.Record{"id": 1, "isbn": "A", "author": "z"})
		require.NoError(t, err)
	})
}

func TestStore_MultiEntryIndex(t *testing.T) {
	e := openEngine(t, openBackend(t), 1, testSchema())
	update(t, e, func(tx *Tx) {
		s := store(t, tx, "books")
		_, err := s.Add(
			record.Record{"id": 1, "tags": []string{"go", "db", "go"}},
			record.Record{"id": 2, "tags": []any{"db", true, nil}},
			record.Record{"id": 3, "tags": "go"},
		)
		require.NoError(t, err)

		idx, err := s.Index("tags")
		require.NoError(t, err)
		n, err := idx.Count(keyrange.All())
		require.NoError(t, err)
		assert.Equal(t, 4, n)

		c, err := idx.Range(keyrange.Only(key.String("db")), Next)
		require.NoError(t, err)
		var got []key.Key
		for e, err := range c.All() {
			require.NoError(t, err)
			got = append(got, e.Key)
			assert.Equal(t, key.String("db"), e.IndexKey)
			assert.NotNil(t, e.Record)
		}
		assert.Equal(t, []key.Key{key.Int(1), key.Int(2)}, got)

		pk, ok, err := idx.GetKey(key.String("go"))
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, key.Int(1), pk)

		// Deleting removes every entry of the record.
		removed, err := s.Delete(key.Int(1), key.Int(99))
		require.NoError(t, err)
		assert.Equal(t, 1, removed)
		n, err = idx.Count(keyrange.All())
		require.NoError(t, err)
		assert.Equal(t, 2, n)

		_, err = s.Index("missing")
		assert.ErrorIs(t, err, ErrIndexNotFound)
	})
}

func TestStore_DeleteRange(t *testing.T) {
	e := openEngine(t, openBackend(t), 1, testSchema())
	update(t, e, func(tx *Tx) {
		s := store(t, tx, "notes")
		for i := 1; i <= 10; i++ {
			_, err := s.Add(record.Record{"i": i})
			require.NoError(t, err)
		}
		r, err := keyrange.Bound(key.Int(3), key.Int(6), false, true)
		require.NoError(t, err)
		n, err := s.DeleteRange(r)
		require.NoError(t, err)
		assert.Equal(t, 3, n)

		keys, err := s.Keys(keyrange.All(), 0)
		require.NoError(t, err)
		assert.Equal(t, []key.Key{key.Int(1), key.Int(2), key.Int(6), key.Int(7), key.Int(8), key.Int(9), key.Int(10)}, keys)

		all, err := s.GetAll(keyrange.LowerBound(key.Int(8), false), 2)
		require.NoError(t, err)
		require.Len(t, all, 2)
		assert.Equal(t, float64(8), all[0].Record["i"])
	})
}

func TestStore_ContextCanceled(t *testing.T) {
	e := openEngine(t, openBackend(t), 1, testSchema())
	ctx, cancel := context.WithCancel(context.Background())
	tx, err := e.Begin(ctx, TxOptions{Mode: ReadWrite})
	require.NoError(t, err)
	defer func() { _ = tx.Abort() }()

	s := store(t, tx, "plain")
	cancel()
	_, err = s.Add(record.Record{"name": "a"})
	assert.ErrorIs(t, err, context.Canceled)
}

type mirrorEvent struct {
	op  string
	key string
}

type recordingMirror struct {
	events     []mirrorEvent
	prepared   int
	committed  int
	rolledBack int
	failOn     string
}

func (m *recordingMirror) add(op string, k key.Key) error {
	m.events = append(m.events, mirrorEvent{op, k.String()})
	if m.failOn != "" && m.failOn == op {
		return fmt.Errorf("mirror refused %s", op)
	}
	return nil
}

func (m *recordingMirror) Added(k key.Key, _ record.Record) error   { return m.add("added", k) }
func (m *recordingMirror) Updated(k key.Key, _ record.Record) error { return m.add("updated", k) }
func (m *recordingMirror) Removed(k key.Key) error                  { return m.add("removed", k) }
func (m *recordingMirror) Cleared() error                           { return m.add("cleared", key.Key{}) }
func (m *recordingMirror) Prepare(*Tx) error                        { m.prepared++; return nil }
func (m *recordingMirror) Commit()                                  { m.committed++ }
func (m *recordingMirror) Rollback()                                { m.rolledBack++ }

func TestTx_Mirror(t *testing.T) {
	e := openEngine(t, openBackend(t), 1, testSchema())
	m := &recordingMirror{}
	tx, err := e.Begin(context.Background(), TxOptions{
		Mode:    ReadWrite,
		Stores:  []string{"books"},
		Mirrors: map[string]Mirror{"books": m},
	})
	require.NoError(t, err)

	s := store(t, tx, "books")
	_, err = s.Add(record.Record{"id": 1, "isbn": "A"})
	require.NoError(t, err)
	_, err = s.Put(record.Record{"id": 1, "isbn": "B"})
	require.NoError(t, err)
	_, err = s.Add(record.Record{"id": 2, "isbn": "C"}, record.Record{"id": 3, "isbn": "B"})
	require.Error(t, err)
	_, err = s.Delete(key.Int(1))
	require.NoError(t, err)
	require.NoError(t, s.Clear())
	require.NoError(t, tx.Commit())

	assert.Equal(t, []mirrorEvent{
		{"added", "1"},
		{"updated", "1"},
		{"added", "2"},
		{"removed", "2"},
		{"removed", "1"},
		{"cleared", key.Key{}.String()},
	}, m.events)
	assert.Equal(t, 1, m.prepared)
	assert.Equal(t, 1, m.committed)
	assert.Zero(t, m.rolledBack)
}

func TestTx_MirrorFailureAborts(t *testing.T) {
	e := openEngine(t, openBackend(t), 1, testSchema())
	m := &recordingMirror{failOn: "added"}
	tx, err := e.Begin(context.Background(), TxOptions{
		Mode:    ReadWrite,
		Mirrors: map[string]Mirror{"plain": m},
	})
	require.NoError(t, err)

	_, err = store(t, tx, "plain").Add(record.Record{"name": "a"})
	require.Error(t, err)
	assert.Equal(t, StateAborted, tx.State())
	assert.Equal(t, 1, m.rolledBack)
	assert.ErrorIs(t, tx.Commit(), ErrTransactionClosed)
}
