package testutil

import (
	"math/rand/v2"
	"strings"
	"sync"

	"github.com/hupe1980/lexkv/fulltext"
	"github.com/hupe1980/lexkv/key"
	"github.com/hupe1980/lexkv/record"
)

// Vocabulary is the word list random text is drawn from. Every word is a
// valid index term.
var Vocabulary = []string{
	"rust", "go", "memory", "safety", "ownership", "borrow", "channel",
	"goroutine", "lifetime", "trait", "interface", "generic", "compiler",
	"runtime", "garbage", "collector", "pointer", "slice", "vector", "closure",
}

// RNG wraps a seeded generator. It is thread-safe.
type RNG struct {
	rand *rand.Rand
	seed uint64
	mu   sync.Mutex
}

// NewRNG creates a new RNG instance with the specified seed.
func NewRNG(seed uint64) *RNG {
	return &RNG{rand: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)), seed: seed}
}

// Seed returns the initial seed.
func (r *RNG) Seed() uint64 {
	return r.seed
}

// Intn returns a non-negative pseudo-random number in [0,n).
func (r *RNG) Intn(n int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.IntN(n)
}

// Word returns a random word from Vocabulary.
func (r *RNG) Word() string {
	return Vocabulary[r.Intn(len(Vocabulary))]
}

// Text returns n random words separated by spaces.
func (r *RNG) Text(n int) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	words := make([]string, n)
	for i := range words {
		words[i] = Vocabulary[r.rand.IntN(len(Vocabulary))]
	}
	return strings.Join(words, " ")
}

// Key returns a random number, string or array key from a small domain, so
// repeated calls collide.
func (r *RNG) Key() key.Key {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch r.rand.IntN(3) {
	case 0:
		return key.Number(float64(r.rand.IntN(100) - 50))
	case 1:
		return key.String(string(rune('a' + r.rand.IntN(26))))
	default:
		return key.Array(key.Int(int64(r.rand.IntN(5))), key.String("x"))
	}
}

// Posts returns n records with a title of titleWords words and a body of
// up to maxBodyWords words.
func (r *RNG) Posts(n, titleWords, maxBodyWords int) []record.Record {
	out := make([]record.Record, n)
	for i := range out {
		out[i] = record.Record{
			"title": r.Text(titleWords),
			"body":  r.Text(1 + r.Intn(maxBodyWords)),
		}
	}
	return out
}

// Matching returns the sorted keys of the documents in model whose text
// contains term as an index term.
func Matching(model map[string]Doc, term string) []key.Key {
	out := []key.Key{}
	for _, d := range model {
		for _, tok := range fulltext.Tokenize(d.Text) {
			if tok == term {
				out = append(out, d.Key)
				break
			}
		}
	}
	key.Sort(out)
	return out
}

// Doc is one entry of a ground-truth model for Matching.
type Doc struct {
	Key  key.Key
	Text string
}
