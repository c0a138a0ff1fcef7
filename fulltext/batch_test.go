package fulltext

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/lexkv/key"
	"github.com/hupe1980/lexkv/record"
)

func TestBatch_RollbackRestoresState(t *testing.T) {
	idx := postsIndex(t)
	before, err := idx.Snapshot()
	require.NoError(t, err)
	wantRust := idx.Search("rust")

	bt := idx.Begin()
	require.NoError(t, bt.Add(key.Int(10), record.Record{"title": "rust again"}))
	require.NoError(t, bt.Update(key.Int(1), record.Record{"title": "changed"}))
	removed, err := bt.Remove(key.Int(2))
	require.NoError(t, err)
	assert.True(t, removed)
	removed, err = bt.Remove(key.Int(99))
	require.NoError(t, err)
	assert.False(t, removed)
	require.NoError(t, bt.Clear())
	require.NoError(t, bt.Add(key.Int(11), record.Record{"body": "after clear"}))
	assert.Equal(t, 5, bt.Len())
	assert.Equal(t, 1, idx.Len())

	bt.Rollback()

	after, err := idx.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, before, after)
	assert.Equal(t, wantRust, idx.Search("rust"))

	assert.ErrorIs(t, bt.Add(key.Int(12), record.Record{}), ErrBatchClosed)
	bt.Rollback()
}

func TestBatch_Commit(t *testing.T) {
	idx := postsIndex(t)
	bt := idx.Begin()
	require.NoError(t, bt.Update(key.Int(4), record.Record{"title": "rust everywhere"}))
	bt.Commit()
	bt.Rollback()

	assert.Len(t, idx.Search("rust"), 3)
	assert.ErrorIs(t, bt.Clear(), ErrBatchClosed)
}

func TestBatch_AddAllKeepsEarlierMutations(t *testing.T) {
	idx := New(postsIndex(t).Fields())
	bt := idx.Begin()
	require.NoError(t, bt.Add(key.Int(1), record.Record{"title": "kept"}))

	err := bt.AddAll([]Document{
		{Ref: key.Int(2), Record: record.Record{"title": "dropped"}},
		{Ref: key.Int(1), Record: record.Record{"title": "clash"}},
	})
	require.ErrorIs(t, err, ErrDuplicateReference)
	assert.Equal(t, 1, bt.Len())
	assert.Equal(t, []key.Key{key.Int(1)}, refs(idx.Search("kept")))
	assert.Empty(t, idx.Search("dropped"))

	bt.Rollback()
	assert.Zero(t, idx.Len())
}
