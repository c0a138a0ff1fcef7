package lexkv

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/lexkv/key"
	"github.com/hupe1980/lexkv/keyrange"
)

func TestScenario_UniqueIndexRejectsDuplicate(t *testing.T) {
	ctx := context.Background()
	blogs := mustStore(t, openTestDB(t), "blogs")

	_, err := blogs.Add(ctx, Record{"name": "A", "path": "a"})
	require.NoError(t, err)

	_, err = blogs.Add(ctx, Record{"name": "B", "path": "a"})
	require.ErrorIs(t, err, ErrConstraint)
	var ce *ConstraintError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "path", ce.Index)

	all, err := blogs.GetAll(ctx, keyrange.All(), 0)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "A", all[0].Record["name"])

	entries, err := blogs.IndexGetAll(ctx, "path", keyrange.Only(key.String("a")), 0)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestScenario_AutoIncrementKeys(t *testing.T) {
	ctx := context.Background()
	blogs := mustStore(t, openTestDB(t), "blogs")

	first, err := blogs.Add(ctx, Record{"name": "X", "path": "x"})
	require.NoError(t, err)
	second, err := blogs.Add(ctx, Record{"name": "Y", "path": "y"})
	require.NoError(t, err)

	assert.Equal(t, key.Int(1), first[0].Key)
	assert.Equal(t, 1.0, first[0].Record["id"])
	assert.Equal(t, key.Int(2), second[0].Key)
	assert.Equal(t, 2.0, second[0].Record["id"])
	assert.Negative(t, key.Compare(first[0].Key, second[0].Key))
}

func addRustPost(t *testing.T, posts *Store) {
	t.Helper()
	_, err := posts.Add(context.Background(), Record{"id": 1, "title": "rust ownership", "body": "memory safety"})
	require.NoError(t, err)
}

func TestScenario_SearchFindsInsertedRecord(t *testing.T) {
	ctx := context.Background()
	posts := mustStore(t, openTestDB(t), "posts")
	addRustPost(t, posts)

	results, err := posts.Search(ctx, "rust")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, key.Int(1), results[0].Key)
	assert.Positive(t, results[0].Score)
	assert.Equal(t, "rust ownership", results[0].Record["title"])

	results, err = posts.Search(ctx, "nonexistent")
	require.NoError(t, err)
	assert.NotNil(t, results)
	assert.Empty(t, results)
}

func TestScenario_DeleteRemovesFromSearch(t *testing.T) {
	ctx := context.Background()
	posts := mustStore(t, openTestDB(t), "posts")
	addRustPost(t, posts)

	n, err := posts.Delete(ctx, key.Int(1))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	results, err := posts.Search(ctx, "rust")
	require.NoError(t, err)
	assert.Empty(t, results)

	hits, err := posts.SearchKeys(ctx, "rust")
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestScenario_ReopenRestoresSearch(t *testing.T) {
	for _, mode := range []SnapshotMode{SnapshotAsync, SnapshotSync} {
		t.Run(mode.String(), func(t *testing.T) {
			ctx := context.Background()
			loc := testLocation(t)

			db := openAt(t, loc, WithSnapshotMode(mode))
			posts := mustStore(t, db, "posts")
			addRustPost(t, posts)
			_, err := posts.Add(ctx,
				Record{"id": 2, "title": "rust async", "body": "rust futures and rust executors"},
				Record{"id": 3, "title": "go channels", "body": "rust comparison"},
			)
			require.NoError(t, err)

			before, err := posts.Search(ctx, "rust")
			require.NoError(t, err)
			require.Len(t, before, 3)
			require.NoError(t, db.Close())

			var buf syncBuffer
			db = openAt(t, loc, WithSnapshotMode(mode), WithLogger(captureLogger(&buf)))
			t.Cleanup(func() { _ = db.Close() })
			after, err := mustStore(t, db, "posts").Search(ctx, "rust")
			require.NoError(t, err)

			assert.Equal(t, before, after)
			assert.Contains(t, buf.String(), `"method":"restore"`)
			assert.NotContains(t, buf.String(), `"method":"rebuild"`)
		})
	}
}
