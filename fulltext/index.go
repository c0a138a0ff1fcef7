package fulltext

import (
	"math"
	"slices"
	"strings"
	"sync"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/hupe1980/lexkv/key"
	"github.com/hupe1980/lexkv/record"
	"github.com/hupe1980/lexkv/schema"
)

const (
	k1 = 1.2
	b  = 0.75
)

// Hit is one search result.
type Hit struct {
	Ref   key.Key
	Score float64
}

// Document is a record to index under a reference.
type Document struct {
	Ref    key.Key
	Record record.Record
}

// Stats summarizes the index contents.
type Stats struct {
	Documents int
	// Terms is the vocabulary size summed over fields.
	Terms int
}

type posting struct {
	docs *roaring.Bitmap
	tf   map[uint32]uint32
}

type document struct {
	id   uint32
	ref  key.Key
	enc  string
	lens []uint32
	tf   []map[string]uint32
}

// state is the complete index contents. Clear swaps in a fresh state so a
// batch can restore the old one.
type state struct {
	docs    map[uint32]*document
	refs    map[string]uint32
	terms   []map[string]*posting
	vocab   [][]string
	lengths []uint64
	nextID  uint32
}

func newState(fields int) *state {
	s := &state{
		docs:    make(map[uint32]*document),
		refs:    make(map[string]uint32),
		terms:   make([]map[string]*posting, fields),
		vocab:   make([][]string, fields),
		lengths: make([]uint64, fields),
	}
	for f := range s.terms {
		s.terms[f] = make(map[string]*posting)
	}
	return s
}

// Index is an in-memory inverted index with per-field boosts.
type Index struct {
	mu     sync.RWMutex
	fields []schema.Field
	byName map[string]int
	state  *state
}

// New creates an empty index over fields. Field names are record key paths.
// A zero boost counts as 1.
func New(fields []schema.Field) *Index {
	fs := make([]schema.Field, len(fields))
	byName := make(map[string]int, len(fields))
	for i, f := range fields {
		if f.Boost == 0 {
			f.Boost = 1
		}
		fs[i] = f
		byName[f.Name] = i
	}
	return &Index{
		fields: fs,
		byName: byName,
		state:  newState(len(fs)),
	}
}

// Fields returns the indexed fields.
func (idx *Index) Fields() []schema.Field { return slices.Clone(idx.fields) }

// Len returns the number of indexed documents.
func (idx *Index) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.state.docs)
}

// Contains reports whether ref is indexed.
func (idx *Index) Contains(ref key.Key) bool {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	_, ok := idx.state.refs[ref.Encoded()]
	return ok
}

// Stats returns the document and vocabulary counts.
func (idx *Index) Stats() Stats {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	st := Stats{Documents: len(idx.state.docs)}
	for _, v := range idx.state.vocab {
		st.Terms += len(v)
	}
	return st
}

// Add indexes rec under ref. It fails with *DuplicateReferenceError if ref
// is already indexed.
func (idx *Index) Add(ref key.Key, rec record.Record) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	_, err := idx.addLocked(ref, rec)
	return err
}

// AddAll indexes docs as a unit: on the first failure the documents added by
// this call are removed again and the error is returned.
func (idx *Index) AddAll(docs []Document) error {
	bt := idx.Begin()
	if err := bt.AddAll(docs); err != nil {
		bt.Rollback()
		return err
	}
	bt.Commit()
	return nil
}

// Update indexes rec under ref, replacing any previous document.
func (idx *Index) Update(ref key.Key, rec record.Record) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	_, _, err := idx.updateLocked(ref, rec)
	return err
}

// Remove drops ref from the index and reports whether it was indexed.
func (idx *Index) Remove(ref key.Key) bool {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	return idx.removeLocked(ref) != nil
}

// Clear removes every document.
func (idx *Index) Clear() {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.state = newState(len(idx.fields))
}

// Replace takes over the contents of src, which must index the same fields.
// src must not be used afterwards.
func (idx *Index) Replace(src *Index) error {
	if src.Fingerprint() != idx.Fingerprint() {
		return corrupt("replacement index has a different field configuration")
	}
	src.mu.Lock()
	st := src.state
	src.state = newState(len(src.fields))
	src.mu.Unlock()

	idx.mu.Lock()
	idx.state = st
	idx.mu.Unlock()
	return nil
}

func (idx *Index) addLocked(ref key.Key, rec record.Record) (*document, error) {
	if !ref.IsValid() {
		return nil, &key.InvalidKeyError{Value: ref, Reason: "zero reference"}
	}
	s := idx.state
	enc := ref.Encoded()
	if _, ok := s.refs[enc]; ok {
		return nil, &DuplicateReferenceError{Ref: ref}
	}
	if s.nextID == math.MaxUint32 {
		return nil, ErrFull
	}
	d := idx.analyze(ref, enc, rec)
	d.id = s.nextID
	s.nextID++
	s.insert(d)
	return d, nil
}

func (idx *Index) updateLocked(ref key.Key, rec record.Record) (old, cur *document, err error) {
	if !ref.IsValid() {
		return nil, nil, &key.InvalidKeyError{Value: ref, Reason: "zero reference"}
	}
	old = idx.removeLocked(ref)
	cur, err = idx.addLocked(ref, rec)
	if err != nil && old != nil {
		idx.state.insert(old)
		old = nil
	}
	return old, cur, err
}

func (idx *Index) removeLocked(ref key.Key) *document {
	s := idx.state
	id, ok := s.refs[ref.Encoded()]
	if !ok {
		return nil
	}
	d := s.docs[id]
	s.remove(d)
	return d
}

// analyze tokenizes the indexed fields of rec.
func (idx *Index) analyze(ref key.Key, enc string, rec record.Record) *document {
	d := &document{
		ref:  ref,
		enc:  enc,
		lens: make([]uint32, len(idx.fields)),
		tf:   make([]map[string]uint32, len(idx.fields)),
	}
	for f, field := range idx.fields {
		toks := Tokenize(rec.Text(field.Name))
		tf := make(map[string]uint32, len(toks))
		for _, t := range toks {
			tf[t]++
		}
		d.lens[f] = uint32(len(toks))
		d.tf[f] = tf
	}
	return d
}

func (s *state) insert(d *document) {
	for f, tf := range d.tf {
		for term, n := range tf {
			p, ok := s.terms[f][term]
			if !ok {
				p = &posting{docs: roaring.New(), tf: make(map[uint32]uint32)}
				s.terms[f][term] = p
				i, _ := slices.BinarySearch(s.vocab[f], term)
				s.vocab[f] = slices.Insert(s.vocab[f], i, term)
			}
			p.docs.Add(d.id)
			p.tf[d.id] = n
		}
		s.lengths[f] += uint64(d.lens[f])
	}
	s.docs[d.id] = d
	s.refs[d.enc] = d.id
}

func (s *state) remove(d *document) {
	for f, tf := range d.tf {
		for term := range tf {
			p, ok := s.terms[f][term]
			if !ok {
				continue
			}
			p.docs.Remove(d.id)
			delete(p.tf, d.id)
			if p.docs.IsEmpty() {
				delete(s.terms[f], term)
				if i, found := slices.BinarySearch(s.vocab[f], term); found {
					s.vocab[f] = slices.Delete(s.vocab[f], i, i+1)
				}
			}
		}
		s.lengths[f] -= uint64(d.lens[f])
	}
	delete(s.docs, d.id)
	delete(s.refs, d.enc)
}

// Search parses q and runs it. See ParseQuery for the syntax.
func (idx *Index) Search(q string) []Hit {
	return idx.SearchQuery(ParseQuery(q))
}

// SearchQuery runs q and returns the matching documents by descending score,
// ties by ascending reference.
func (idx *Index) SearchQuery(q Query) []Hit {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	s := idx.state
	n := len(s.docs)
	if n == 0 || len(q.Clauses) == 0 {
		return nil
	}

	scores := make(map[uint32]float64)
	var required *roaring.Bitmap
	optional := roaring.New()
	prohibited := roaring.New()

	for _, c := range q.Clauses {
		matched := roaring.New()
		for _, f := range idx.clauseFields(c) {
			boost := idx.fields[f].Boost
			avgLen := float64(s.lengths[f]) / float64(n)
			for _, term := range s.expand(f, c) {
				p := s.terms[f][term]
				matched.Or(p.docs)
				if c.Presence == Prohibited {
					continue
				}
				idf := idf(n, int(p.docs.GetCardinality()))
				it := p.docs.Iterator()
				for it.HasNext() {
					id := it.Next()
					tf := float64(p.tf[id])
					dl := float64(s.docs[id].lens[f])
					scores[id] += boost * idf * tf * (k1 + 1) / (tf + k1*(1-b+b*dl/avgLen))
				}
			}
		}
		switch c.Presence {
		case Required:
			if required == nil {
				required = matched
			} else {
				required.And(matched)
			}
		case Prohibited:
			prohibited.Or(matched)
		default:
			optional.Or(matched)
		}
	}

	candidates := optional
	if required != nil {
		candidates = required
	}
	candidates.AndNot(prohibited)
	if candidates.IsEmpty() {
		return nil
	}

	hits := make([]Hit, 0, candidates.GetCardinality())
	it := candidates.Iterator()
	for it.HasNext() {
		id := it.Next()
		hits = append(hits, Hit{Ref: s.docs[id].ref, Score: scores[id]})
	}
	SortHits(hits)
	return hits
}

// SortHits orders hits by descending score, ties by ascending reference.
func SortHits(hits []Hit) {
	slices.SortFunc(hits, func(a, b Hit) int {
		switch {
		case a.Score > b.Score:
			return -1
		case a.Score < b.Score:
			return 1
		default:
			return key.Compare(a.Ref, b.Ref)
		}
	})
}

// idf = log(1 + (N - n + 0.5) / (n + 0.5))
func idf(docs, df int) float64 {
	N := float64(docs)
	n := float64(df)
	return math.Log(1 + (N-n+0.5)/(n+0.5))
}

func (idx *Index) clauseFields(c Clause) []int {
	if c.Field != "" {
		if f, ok := idx.byName[c.Field]; ok {
			return []int{f}
		}
		return nil
	}
	all := make([]int, len(idx.fields))
	for i := range all {
		all[i] = i
	}
	return all
}

// expand returns the vocabulary terms of field f that c matches.
func (s *state) expand(f int, c Clause) []string {
	if !c.Prefix {
		if _, ok := s.terms[f][c.Term]; ok {
			return []string{c.Term}
		}
		return nil
	}
	vocab := s.vocab[f]
	i, _ := slices.BinarySearch(vocab, c.Term)
	j := i
	for j < len(vocab) && strings.HasPrefix(vocab[j], c.Term) {
		j++
	}
	return vocab[i:j]
}
