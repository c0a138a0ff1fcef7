package fulltext

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/lexkv/key"
	"github.com/hupe1980/lexkv/record"
	"github.com/hupe1980/lexkv/schema"
)

func TestSnapshot_RoundTrip(t *testing.T) {
	for _, c := range []Compression{CompressNone, CompressLZ4, CompressZSTD} {
		t.Run(c.String(), func(t *testing.T) {
			idx := postsIndex(t)
			// Leave gaps in the id space.
			require.True(t, idx.Remove(key.Int(3)))
			require.NoError(t, idx.Update(key.Int(1), record.Record{"title": "rust ownership rules", "body": "borrow checker"}))

			data, err := idx.Snapshot(WithCompression(c), WithGeneration(42))
			require.NoError(t, err)

			h, err := PeekHeader(data)
			require.NoError(t, err)
			assert.Equal(t, uint64(42), h.Generation)
			assert.Equal(t, idx.Fingerprint(), h.Fingerprint)

			restored := New(idx.Fields())
			require.NoError(t, restored.Restore(data))
			assert.Equal(t, idx.Len(), restored.Len())
			assert.Equal(t, idx.Stats(), restored.Stats())

			for _, q := range []string{"rust", "memory", "own*", "+rust -borrow", "go", "nothing", "title:rules"} {
				assert.Equal(t, idx.Search(q), restored.Search(q), q)
			}

			// The restored index keeps working.
			require.NoError(t, restored.Add(key.Int(3), record.Record{"title": "rust restored"}))
			assert.Len(t, restored.Search("rust"), 3)
		})
	}
}

func TestSnapshot_Deterministic(t *testing.T) {
	build := func(order []int64) []byte {
		idx := New([]schema.Field{{Name: "text"}})
		for _, i := range order {
			require.NoError(t, idx.Add(key.Int(i), record.Record{"text": "doc" + key.Int(i).String() + " shared words"}))
		}
		data, err := idx.Snapshot()
		require.NoError(t, err)
		return data
	}
	assert.Equal(t, build([]int64{1, 2, 3, 4}), build([]int64{4, 2, 3, 1}))

	// History does not leak into the snapshot.
	idx := New([]schema.Field{{Name: "text"}})
	for _, i := range []int64{9, 1, 2, 3, 4} {
		require.NoError(t, idx.Add(key.Int(i), record.Record{"text": "doc" + key.Int(i).String() + " shared words"}))
	}
	require.True(t, idx.Remove(key.Int(9)))
	data, err := idx.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, build([]int64{1, 2, 3, 4}), data)
}

func TestSnapshot_Corruption(t *testing.T) {
	idx := postsIndex(t)
	data, err := idx.Snapshot()
	require.NoError(t, err)

	tamper := func(fn func(b []byte) []byte) []byte {
		return fn(append([]byte(nil), data...))
	}

	cases := map[string][]byte{
		"empty":     nil,
		"short":     data[:10],
		"magic":     tamper(func(b []byte) []byte { b[0] = 'X'; return b }),
		"version":   tamper(func(b []byte) []byte { b[4] = 9; return b }),
		"checksum":  tamper(func(b []byte) []byte { b[len(b)-1] ^= 0xFF; return b }),
		"truncated": data[:len(data)-3],
	}
	for name, bad := range cases {
		t.Run(name, func(t *testing.T) {
			target := postsIndex(t)
			require.NoError(t, target.Update(key.Int(1), record.Record{"title": "marker"}))
			err := target.Restore(bad)
			assert.ErrorIs(t, err, ErrCorruptSnapshot)
			// Unchanged on failure.
			assert.Len(t, target.Search("marker"), 1)
		})
	}

	other := New([]schema.Field{{Name: "title", Boost: 3}, {Name: "body"}})
	assert.ErrorIs(t, other.Restore(data), ErrCorruptSnapshot)
}

func TestSnapshot_Empty(t *testing.T) {
	idx := New([]schema.Field{{Name: "text"}})
	data, err := idx.Snapshot()
	require.NoError(t, err)

	restored := New([]schema.Field{{Name: "text"}})
	require.NoError(t, restored.Add(key.Int(1), record.Record{"text": "gone"}))
	require.NoError(t, restored.Restore(data))
	assert.Zero(t, restored.Len())
}
