package key

import (
	"encoding/binary"
	"errors"
	"math"
)

// Type tags. tagEnd terminates arrays and sorts below every element tag;
// 0xFF never starts an encoding, so it can be appended to build an exclusive
// successor of any encoded prefix.
const (
	tagEnd    byte = 0x00
	tagNumber byte = 0x10
	tagString byte = 0x20
	tagBinary byte = 0x30
	tagArray  byte = 0x40

	// Successor is greater than the first byte of every encoded key.
	Successor byte = 0xFF
)

var errTruncated = errors.New("truncated key encoding")

// Encode returns the order-preserving, prefix-free encoding of k.
// Invalid keys encode to nil.
func (k Key) Encode() []byte {
	if !k.IsValid() {
		return nil
	}
	return Append(make([]byte, 0, encodedSizeHint(k)), k)
}

func encodedSizeHint(k Key) int {
	switch k.kind {
	case KindNumber:
		return 9
	case KindString, KindBinary:
		return len(k.str) + 3
	default:
		return 16
	}
}

// Append appends the encoding of k to dst.
func Append(dst []byte, k Key) []byte {
	switch k.kind {
	case KindNumber:
		bits := math.Float64bits(k.num)
		if bits&(1<<63) != 0 {
			bits = ^bits
		} else {
			bits |= 1 << 63
		}
		dst = append(dst, tagNumber)
		return binary.BigEndian.AppendUint64(dst, bits)
	case KindString:
		dst = append(dst, tagString)
		return appendEscaped(dst, k.str)
	case KindBinary:
		dst = append(dst, tagBinary)
		return appendEscaped(dst, k.str)
	case KindArray:
		dst = append(dst, tagArray)
		for _, e := range k.arr {
			dst = Append(dst, e)
		}
		return append(dst, tagEnd)
	default:
		return dst
	}
}

// 0x00 is escaped as 0x00 0xFF and the payload ends with 0x00 0x01, so a
// string that is a prefix of another always sorts first.
func appendEscaped(dst []byte, s string) []byte {
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == 0x00 {
			dst = append(dst, 0x00, 0xFF)
			continue
		}
		dst = append(dst, c)
	}
	return append(dst, 0x00, 0x01)
}

// Decode decodes one key from the front of b and returns the remainder.
func Decode(b []byte) (Key, []byte, error) {
	if len(b) == 0 {
		return Key{}, nil, &InvalidKeyError{Reason: errTruncated.Error()}
	}
	switch b[0] {
	case tagNumber:
		if len(b) < 9 {
			return Key{}, nil, &InvalidKeyError{Reason: errTruncated.Error()}
		}
		bits := binary.BigEndian.Uint64(b[1:9])
		if bits&(1<<63) != 0 {
			bits &^= 1 << 63
		} else {
			bits = ^bits
		}
		return Key{kind: KindNumber, num: math.Float64frombits(bits)}, b[9:], nil
	case tagString, tagBinary:
		s, rest, err := decodeEscaped(b[1:])
		if err != nil {
			return Key{}, nil, err
		}
		kind := KindString
		if b[0] == tagBinary {
			kind = KindBinary
		}
		return Key{kind: kind, str: s}, rest, nil
	case tagArray:
		rest := b[1:]
		var elems []Key
		for {
			if len(rest) == 0 {
				return Key{}, nil, &InvalidKeyError{Reason: errTruncated.Error()}
			}
			if rest[0] == tagEnd {
				return Key{kind: KindArray, arr: elems}, rest[1:], nil
			}
			var (
				e   Key
				err error
			)
			e, rest, err = Decode(rest)
			if err != nil {
				return Key{}, nil, err
			}
			elems = append(elems, e)
		}
	default:
		return Key{}, nil, &InvalidKeyError{Reason: "unknown key tag"}
	}
}

func decodeEscaped(b []byte) (string, []byte, error) {
	out := make([]byte, 0, len(b))
	for i := 0; i < len(b); i++ {
		if b[i] != 0x00 {
			out = append(out, b[i])
			continue
		}
		if i+1 >= len(b) {
			break
		}
		switch b[i+1] {
		case 0x01:
			return string(out), b[i+2:], nil
		case 0xFF:
			out = append(out, 0x00)
			i++
		default:
			return "", nil, &InvalidKeyError{Reason: "bad escape in key encoding"}
		}
	}
	return "", nil, &InvalidKeyError{Reason: errTruncated.Error()}
}

// DecodeAll decodes b, which must hold exactly one key.
func DecodeAll(b []byte) (Key, error) {
	k, rest, err := Decode(b)
	if err != nil {
		return Key{}, err
	}
	if len(rest) != 0 {
		return Key{}, &InvalidKeyError{Reason: "trailing bytes after key"}
	}
	return k, nil
}

// Composite joins an index key and a primary key into one index entry key.
// Both halves are prefix-free, so the entry can be split again with Split.
func Composite(indexKey, primaryKey Key) []byte {
	dst := make([]byte, 0, encodedSizeHint(indexKey)+encodedSizeHint(primaryKey))
	dst = Append(dst, indexKey)
	return Append(dst, primaryKey)
}

// Split is the inverse of Composite.
func Split(b []byte) (indexKey, primaryKey Key, err error) {
	indexKey, rest, err := Decode(b)
	if err != nil {
		return Key{}, Key{}, err
	}
	primaryKey, err = DecodeAll(rest)
	if err != nil {
		return Key{}, Key{}, err
	}
	return indexKey, primaryKey, nil
}

// PrefixEnd returns the smallest byte string greater than every string that
// starts with the encoding enc.
func PrefixEnd(enc []byte) []byte {
	out := make([]byte, len(enc)+1)
	copy(out, enc)
	out[len(enc)] = Successor
	return out
}
