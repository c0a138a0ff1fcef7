package fulltext

import (
	"cmp"
	"encoding/binary"
	"fmt"
	"math"
	"slices"
	"strconv"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/hupe1980/lexkv/internal/compress"
	"github.com/hupe1980/lexkv/internal/hash"
	"github.com/hupe1980/lexkv/key"
)

// Snapshot layout:
//
//	[0:4]   magic "LXFT"
//	[4:6]   format version, little endian
//	[6]     compression type
//	[7]     reserved, zero
//	[8:16]  generation, little endian
//	[16:20] field configuration fingerprint
//	[20:24] CRC32-C of the body
//	[24:]   body: compressed payload block
//
// The payload lists the documents in reference order (their position is the
// document id), then per field the sorted vocabulary with a roaring bitmap
// of document ids and the term frequencies in bitmap order.
const (
	snapshotMagic   = "LXFT"
	snapshotVersion = 1
	headerSize      = 24
)

// Compression selects the snapshot body compression.
type Compression = compress.Type

const (
	CompressNone = compress.None
	CompressLZ4  = compress.LZ4
	CompressZSTD = compress.ZSTD
)

// ParseCompression parses "none", "lz4" or "zstd".
func ParseCompression(s string) (Compression, error) { return compress.ParseType(s) }

// Header describes a snapshot without decoding its body.
type Header struct {
	Version     uint16
	Compression Compression
	Generation  uint64
	Fingerprint uint32
	Checksum    uint32
}

type snapshotOptions struct {
	generation  uint64
	compression Compression
}

// SnapshotOption configures Snapshot.
type SnapshotOption func(*snapshotOptions)

// WithGeneration stamps the snapshot with the store generation it reflects.
func WithGeneration(gen uint64) SnapshotOption {
	return func(o *snapshotOptions) { o.generation = gen }
}

// WithCompression sets the body compression. The default is ZSTD.
func WithCompression(c Compression) SnapshotOption {
	return func(o *snapshotOptions) { o.compression = c }
}

// Fingerprint identifies the field configuration and tokenizer. Snapshots
// only restore into an index with the same fingerprint.
func (idx *Index) Fingerprint() uint32 {
	parts := make([]string, 0, 1+2*len(idx.fields))
	parts = append(parts, tokenizerVersion)
	for _, f := range idx.fields {
		parts = append(parts, f.Name, strconv.FormatFloat(f.Boost, 'g', -1, 64))
	}
	return hash.Fingerprint(parts...)
}

// Snapshot serializes the index.
func (idx *Index) Snapshot(opts ...SnapshotOption) ([]byte, error) {
	o := snapshotOptions{compression: CompressZSTD}
	for _, opt := range opts {
		opt(&o)
	}

	idx.mu.RLock()
	payload, err := idx.state.encode()
	idx.mu.RUnlock()
	if err != nil {
		return nil, err
	}

	body, err := compress.Encode(payload, o.compression)
	if err != nil {
		return nil, fmt.Errorf("fulltext: compress snapshot: %w", err)
	}

	out := make([]byte, headerSize, headerSize+len(body))
	copy(out, snapshotMagic)
	binary.LittleEndian.PutUint16(out[4:], snapshotVersion)
	out[6] = byte(o.compression)
	binary.LittleEndian.PutUint64(out[8:], o.generation)
	binary.LittleEndian.PutUint32(out[16:], idx.Fingerprint())
	binary.LittleEndian.PutUint32(out[20:], hash.CRC32C(body))
	return append(out, body...), nil
}

// PeekHeader decodes the snapshot header and verifies magic and version.
func PeekHeader(data []byte) (Header, error) {
	if len(data) < headerSize {
		return Header{}, corrupt("short header")
	}
	if string(data[:4]) != snapshotMagic {
		return Header{}, corrupt("bad magic")
	}
	h := Header{
		Version:     binary.LittleEndian.Uint16(data[4:]),
		Compression: Compression(data[6]),
		Generation:  binary.LittleEndian.Uint64(data[8:]),
		Fingerprint: binary.LittleEndian.Uint32(data[16:]),
		Checksum:    binary.LittleEndian.Uint32(data[20:]),
	}
	if h.Version != snapshotVersion {
		return Header{}, corrupt(fmt.Sprintf("unsupported version %d", h.Version))
	}
	return h, nil
}

// Restore replaces the index contents with a snapshot. On any error the
// index is left unchanged.
func (idx *Index) Restore(data []byte) error {
	h, err := PeekHeader(data)
	if err != nil {
		return err
	}
	if h.Fingerprint != idx.Fingerprint() {
		return corrupt("field configuration changed")
	}
	body := data[headerSize:]
	if hash.CRC32C(body) != h.Checksum {
		return corrupt("checksum mismatch")
	}
	payload, err := compress.Decode(body)
	if err != nil {
		return corrupt(err.Error())
	}
	s, err := decodeState(payload, len(idx.fields))
	if err != nil {
		return err
	}

	idx.mu.Lock()
	idx.state = s
	idx.mu.Unlock()
	return nil
}

func appendBytes(buf, b []byte) []byte {
	buf = binary.AppendUvarint(buf, uint64(len(b)))
	return append(buf, b...)
}

// encode writes the canonical payload. Document ids are renumbered in
// reference order so equal contents encode to equal bytes.
func (s *state) encode() ([]byte, error) {
	docs := make([]*document, 0, len(s.docs))
	for _, d := range s.docs {
		docs = append(docs, d)
	}
	slices.SortFunc(docs, func(a, b *document) int { return cmp.Compare(a.enc, b.enc) })

	remap := make(map[uint32]uint32, len(docs))
	buf := binary.AppendUvarint(nil, uint64(len(docs)))
	for i, d := range docs {
		remap[d.id] = uint32(i)
		buf = appendBytes(buf, []byte(d.enc))
		for _, l := range d.lens {
			buf = binary.AppendUvarint(buf, uint64(l))
		}
	}

	buf = binary.AppendUvarint(buf, uint64(len(s.terms)))
	type entry struct{ id, tf uint32 }
	var entries []entry
	for f := range s.terms {
		buf = binary.AppendUvarint(buf, s.lengths[f])
		buf = binary.AppendUvarint(buf, uint64(len(s.vocab[f])))
		for _, term := range s.vocab[f] {
			p := s.terms[f][term]
			entries = entries[:0]
			it := p.docs.Iterator()
			for it.HasNext() {
				id := it.Next()
				entries = append(entries, entry{remap[id], p.tf[id]})
			}
			slices.SortFunc(entries, func(a, b entry) int { return cmp.Compare(a.id, b.id) })

			bm := roaring.New()
			for _, e := range entries {
				bm.Add(e.id)
			}
			bm.RunOptimize()
			raw, err := bm.ToBytes()
			if err != nil {
				return nil, fmt.Errorf("fulltext: encode postings: %w", err)
			}
			buf = appendBytes(buf, []byte(term))
			buf = appendBytes(buf, raw)
			for _, e := range entries {
				buf = binary.AppendUvarint(buf, uint64(e.tf))
			}
		}
	}
	return buf, nil
}

type reader struct {
	buf []byte
	err error
}

func (r *reader) uvarint() uint64 {
	if r.err != nil {
		return 0
	}
	v, n := binary.Uvarint(r.buf)
	if n <= 0 {
		r.err = corrupt("truncated varint")
		return 0
	}
	r.buf = r.buf[n:]
	return v
}

func (r *reader) bytes() []byte {
	n := r.uvarint()
	if r.err != nil {
		return nil
	}
	if n > uint64(len(r.buf)) {
		r.err = corrupt("truncated bytes")
		return nil
	}
	b := r.buf[:n]
	r.buf = r.buf[n:]
	return b
}

// count reads a length and rejects values that cannot fit in the remaining
// input, given at least size bytes per element.
func (r *reader) count(size int) int {
	n := r.uvarint()
	if r.err == nil && n > uint64(len(r.buf)/size) {
		r.err = corrupt("implausible count")
		return 0
	}
	return int(n)
}

func decodeState(payload []byte, fields int) (*state, error) {
	r := &reader{buf: payload}
	s := newState(fields)

	n := r.count(1 + fields)
	if uint64(n) >= math.MaxUint32 {
		return nil, corrupt("too many documents")
	}
	docs := make([]*document, n)
	var prev string
	for i := range docs {
		enc := string(r.bytes())
		if r.err != nil {
			return nil, r.err
		}
		if i > 0 && enc <= prev {
			return nil, corrupt("documents out of order")
		}
		prev = enc
		ref, err := key.FromEncoded(enc)
		if err != nil {
			return nil, corrupt("bad reference: " + err.Error())
		}
		d := &document{
			id:   uint32(i),
			ref:  ref,
			enc:  enc,
			lens: make([]uint32, fields),
			tf:   make([]map[string]uint32, fields),
		}
		for f := range fields {
			d.lens[f] = uint32(r.uvarint())
			d.tf[f] = make(map[string]uint32)
		}
		docs[i] = d
		s.docs[d.id] = d
		s.refs[enc] = d.id
	}

	if got := r.uvarint(); r.err == nil && got != uint64(fields) {
		return nil, corrupt(fmt.Sprintf("snapshot has %d fields, index has %d", got, fields))
	}
	for f := range fields {
		s.lengths[f] = r.uvarint()
		terms := r.count(2)
		if r.err != nil {
			return nil, r.err
		}
		vocab := make([]string, 0, terms)
		var sum uint64
		for range terms {
			term := string(r.bytes())
			raw := r.bytes()
			if r.err != nil {
				return nil, r.err
			}
			if term == "" || (len(vocab) > 0 && term <= vocab[len(vocab)-1]) {
				return nil, corrupt("vocabulary out of order")
			}
			bm := roaring.New()
			if err := bm.UnmarshalBinary(raw); err != nil {
				return nil, corrupt("bad postings: " + err.Error())
			}
			if bm.IsEmpty() {
				return nil, corrupt("empty posting list")
			}
			p := &posting{docs: bm, tf: make(map[uint32]uint32, bm.GetCardinality())}
			it := bm.Iterator()
			for it.HasNext() {
				id := it.Next()
				tf := r.uvarint()
				if r.err != nil {
					return nil, r.err
				}
				if id >= uint32(n) || tf == 0 {
					return nil, corrupt("bad posting entry")
				}
				p.tf[id] = uint32(tf)
				docs[id].tf[f][term] = uint32(tf)
				sum += tf
			}
			s.terms[f][term] = p
			vocab = append(vocab, term)
		}
		s.vocab[f] = vocab
		if sum != s.lengths[f] {
			return nil, corrupt("field length mismatch")
		}
	}
	if r.err != nil {
		return nil, r.err
	}
	if len(r.buf) != 0 {
		return nil, corrupt("trailing bytes")
	}
	s.nextID = uint32(n)
	return s, nil
}
