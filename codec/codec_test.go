package codec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/lexkv/record"
)

func TestByName(t *testing.T) {
	for _, name := range []string{"json", "go-json"} {
		c, ok := ByName(name)
		require.True(t, ok)
		assert.Equal(t, name, c.Name())
	}
	_, ok := ByName("msgpack")
	assert.False(t, ok)
}

func TestRecord_Codecs(t *testing.T) {
	in := record.Record{
		"id":    1,
		"title": "hello",
		"tags":  []string{"a", "b"},
		"meta":  map[string]any{"n": 2.5},
	}
	for _, c := range []Codec{JSON{}, GoJSON{}} {
		t.Run(c.Name(), func(t *testing.T) {
			b, err := EncodeRecord(c, in)
			require.NoError(t, err)

			out, err := DecodeRecord(c, b)
			require.NoError(t, err)
			assert.Equal(t, 1.0, out["id"])
			assert.Equal(t, []any{"a", "b"}, out["tags"])
			assert.Equal(t, 2.5, out["meta"].(map[string]any)["n"])
		})
	}
}

func TestDecodeRecord_Invalid(t *testing.T) {
	_, err := DecodeRecord(GoJSON{}, []byte("{broken"))
	assert.Error(t, err)

	r, err := DecodeRecord(JSON{}, []byte("null"))
	require.NoError(t, err)
	assert.NotNil(t, r)
}
