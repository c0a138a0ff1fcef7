package hash

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCRC32C_MatchesStreaming(t *testing.T) {
	data := []byte("the quick brown fox")
	h := NewCRC32C()
	_, _ = h.Write(data[:5])
	_, _ = h.Write(data[5:])
	assert.Equal(t, CRC32C(data), h.Sum32())
	assert.Equal(t, uint32(0xe3069283), CRC32C([]byte("123456789")))
}

func TestFingerprint(t *testing.T) {
	assert.Equal(t, Fingerprint("a", "b"), Fingerprint("a", "b"))
	assert.NotEqual(t, Fingerprint("ab", "c"), Fingerprint("a", "bc"))
}
