// Package backendtest is a conformance suite shared by the backend
// implementations.
package backendtest

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/lexkv/backend"
)

// Run executes the suite. open must return a fresh, empty database.
func Run(t *testing.T, open func(t *testing.T) backend.DB) {
	t.Run("Buckets", func(t *testing.T) { testBuckets(t, open(t)) })
	t.Run("PutGetDelete", func(t *testing.T) { testPutGetDelete(t, open(t)) })
	t.Run("CursorOrder", func(t *testing.T) { testCursorOrder(t, open(t)) })
	t.Run("Sequence", func(t *testing.T) { testSequence(t, open(t)) })
	t.Run("Rollback", func(t *testing.T) { testRollback(t, open(t)) })
	t.Run("ReadOnly", func(t *testing.T) { testReadOnly(t, open(t)) })
	t.Run("WriteTo", func(t *testing.T) { testWriteTo(t, open(t)) })
	t.Run("CanceledContext", func(t *testing.T) { testCanceled(t, open(t)) })
}

func update(t *testing.T, db backend.DB, fn func(tx backend.Tx)) {
	t.Helper()
	tx, err := db.Begin(context.Background(), true)
	require.NoError(t, err)
	fn(tx)
	require.NoError(t, tx.Commit())
}

func view(t *testing.T, db backend.DB, fn func(tx backend.Tx)) {
	t.Helper()
	tx, err := db.Begin(context.Background(), false)
	require.NoError(t, err)
	defer func() { _ = tx.Rollback() }()
	fn(tx)
}

func testBuckets(t *testing.T, db backend.DB) {
	update(t, db, func(tx backend.Tx) {
		_, err := tx.CreateBucket("b")
		require.NoError(t, err)
		_, err = tx.CreateBucket("a")
		require.NoError(t, err)
		_, err = tx.CreateBucket("a")
		require.NoError(t, err, "create is idempotent")
	})

	view(t, db, func(tx backend.Tx) {
		names, err := tx.Buckets()
		require.NoError(t, err)
		assert.Equal(t, []string{"a", "b"}, names)

		_, err = tx.Bucket("missing")
		assert.ErrorIs(t, err, backend.ErrBucketNotFound)
	})

	update(t, db, func(tx backend.Tx) {
		require.NoError(t, tx.DeleteBucket("a"))
		assert.ErrorIs(t, tx.DeleteBucket("a"), backend.ErrBucketNotFound)
	})

	view(t, db, func(tx backend.Tx) {
		names, err := tx.Buckets()
		require.NoError(t, err)
		assert.Equal(t, []string{"b"}, names)
	})
}

func testPutGetDelete(t *testing.T, db backend.DB) {
	update(t, db, func(tx backend.Tx) {
		b, err := tx.CreateBucket("kv")
		require.NoError(t, err)
		require.NoError(t, b.Put([]byte("k1"), []byte("v1")))
		require.NoError(t, b.Put([]byte("k1"), []byte("v1b")))
		require.NoError(t, b.Put([]byte("k2"), []byte("v2")))
		require.NoError(t, b.Delete([]byte("k2")))
		require.NoError(t, b.Delete([]byte("never")))
	})

	view(t, db, func(tx backend.Tx) {
		b, err := tx.Bucket("kv")
		require.NoError(t, err)

		v, err := b.Get([]byte("k1"))
		require.NoError(t, err)
		assert.Equal(t, []byte("v1b"), v)

		v, err = b.Get([]byte("k2"))
		require.NoError(t, err)
		assert.Nil(t, v)
	})
}

func testCursorOrder(t *testing.T, db backend.DB) {
	keys := [][]byte{{0x01}, {0x01, 0x00}, {0x02}, {0x10, 0xFF}, {0xFF}}
	update(t, db, func(tx backend.Tx) {
		b, err := tx.CreateBucket("c")
		require.NoError(t, err)
		for i := len(keys) - 1; i >= 0; i-- {
			require.NoError(t, b.Put(keys[i], []byte{byte(i)}))
		}
	})

	view(t, db, func(tx backend.Tx) {
		b, err := tx.Bucket("c")
		require.NoError(t, err)
		c := b.Cursor()

		var got [][]byte
		for k, _ := c.First(); k != nil; k, _ = c.Next() {
			got = append(got, bytes.Clone(k))
		}
		require.NoError(t, c.Err())
		assert.Equal(t, keys, got)

		got = nil
		for k, _ := c.Last(); k != nil; k, _ = c.Prev() {
			got = append(got, bytes.Clone(k))
		}
		assert.Equal(t, [][]byte{{0xFF}, {0x10, 0xFF}, {0x02}, {0x01, 0x00}, {0x01}}, got)

		k, v := c.Seek([]byte{0x01, 0x00, 0x00})
		assert.Equal(t, []byte{0x02}, k)
		assert.Equal(t, []byte{2}, v)

		k, _ = c.Seek([]byte{0xFF, 0x00})
		assert.Nil(t, k)
	})
}

func testSequence(t *testing.T, db backend.DB) {
	update(t, db, func(tx backend.Tx) {
		b, err := tx.CreateBucket("s")
		require.NoError(t, err)

		n, err := b.NextSequence()
		require.NoError(t, err)
		assert.Equal(t, uint64(1), n)

		require.NoError(t, b.SetSequence(41))
		n, err = b.NextSequence()
		require.NoError(t, err)
		assert.Equal(t, uint64(42), n)
	})

	view(t, db, func(tx backend.Tx) {
		b, err := tx.Bucket("s")
		require.NoError(t, err)
		n, err := b.Sequence()
		require.NoError(t, err)
		assert.Equal(t, uint64(42), n)
	})
}

func testRollback(t *testing.T, db backend.DB) {
	update(t, db, func(tx backend.Tx) {
		_, err := tx.CreateBucket("r")
		require.NoError(t, err)
	})

	tx, err := db.Begin(context.Background(), true)
	require.NoError(t, err)
	b, err := tx.Bucket("r")
	require.NoError(t, err)
	require.NoError(t, b.Put([]byte("k"), []byte("v")))
	require.NoError(t, tx.Rollback())
	assert.ErrorIs(t, tx.Commit(), backend.ErrTxDone)

	view(t, db, func(tx backend.Tx) {
		b, err := tx.Bucket("r")
		require.NoError(t, err)
		v, err := b.Get([]byte("k"))
		require.NoError(t, err)
		assert.Nil(t, v)
	})
}

func testReadOnly(t *testing.T, db backend.DB) {
	update(t, db, func(tx backend.Tx) {
		_, err := tx.CreateBucket("ro")
		require.NoError(t, err)
	})

	view(t, db, func(tx backend.Tx) {
		assert.False(t, tx.Writable())
		b, err := tx.Bucket("ro")
		require.NoError(t, err)
		assert.ErrorIs(t, b.Put([]byte("k"), []byte("v")), backend.ErrTxNotWritable)
	})
}

func testWriteTo(t *testing.T, db backend.DB) {
	update(t, db, func(tx backend.Tx) {
		b, err := tx.CreateBucket("w")
		require.NoError(t, err)
		require.NoError(t, b.Put([]byte("k"), []byte("v")))
	})

	var buf bytes.Buffer
	n, err := db.WriteTo(context.Background(), &buf)
	require.NoError(t, err)
	assert.Equal(t, int64(buf.Len()), n)
	assert.Positive(t, n)
}

func testCanceled(t *testing.T, db backend.DB) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := db.Begin(ctx, false)
	assert.ErrorIs(t, err, context.Canceled)
}
