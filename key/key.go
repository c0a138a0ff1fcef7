// Package key defines the key values records and index entries are ordered by.
//
// A Key is one of four kinds. Keys of different kinds order by kind:
//
//	Number < String < Binary < Array
//
// Numbers compare by value, strings and binaries bytewise, and arrays
// element by element (a shorter array that is a prefix of a longer one sorts
// first). The same order is preserved by the byte encoding produced by
// Append/Encode, which is what the storage backends sort on.
package key

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Kind is the type tag of a Key.
type Kind uint8

const (
	// KindInvalid is the zero Kind. Invalid keys cannot be stored.
	KindInvalid Kind = iota
	// KindNumber is a float64 key. NaN is not a valid key.
	KindNumber
	// KindString is a UTF-8 string key.
	KindString
	// KindBinary is an opaque byte string key.
	KindBinary
	// KindArray is an ordered list of keys.
	KindArray
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindBinary:
		return "binary"
	case KindArray:
		return "array"
	default:
		return "invalid"
	}
}

// Key is an immutable key value.
type Key struct {
	kind Kind
	num  float64
	str  string // string and binary payload
	arr  []Key
}

// Number returns a number key. NaN yields an invalid key.
func Number(f float64) Key {
	if math.IsNaN(f) {
		return Key{}
	}
	if f == 0 {
		f = 0 // fold -0 into +0
	}
	return Key{kind: KindNumber, num: f}
}

// Int returns a number key for i.
func Int(i int64) Key { return Number(float64(i)) }

// String returns a string key.
func String(s string) Key { return Key{kind: KindString, str: s} }

// Binary returns a binary key. The slice is copied.
func Binary(b []byte) Key { return Key{kind: KindBinary, str: string(b)} }

// Array returns an array key. Invalid elements make the whole key invalid.
func Array(elems ...Key) Key {
	cp := make([]Key, len(elems))
	for i, e := range elems {
		if !e.IsValid() {
			return Key{}
		}
		cp[i] = e
	}
	return Key{kind: KindArray, arr: cp}
}

// Kind returns the kind of k.
func (k Key) Kind() Kind { return k.kind }

// IsValid reports whether k can be stored.
func (k Key) IsValid() bool { return k.kind != KindInvalid }

// Float returns the number value of a number key.
func (k Key) Float() (float64, bool) {
	return k.num, k.kind == KindNumber
}

// Text returns the value of a string key.
func (k Key) Text() (string, bool) {
	return k.str, k.kind == KindString
}

// Bytes returns a copy of the value of a binary key.
func (k Key) Bytes() ([]byte, bool) {
	if k.kind != KindBinary {
		return nil, false
	}
	return []byte(k.str), true
}

// Elems returns a copy of the elements of an array key.
func (k Key) Elems() ([]Key, bool) {
	if k.kind != KindArray {
		return nil, false
	}
	cp := make([]Key, len(k.arr))
	copy(cp, k.arr)
	return cp, true
}

// Value converts k into the plain Go value written back into records:
// float64, string, []byte or []any.
func (k Key) Value() any {
	switch k.kind {
	case KindNumber:
		return k.num
	case KindString:
		return k.str
	case KindBinary:
		return []byte(k.str)
	case KindArray:
		out := make([]any, len(k.arr))
		for i, e := range k.arr {
			out[i] = e.Value()
		}
		return out
	default:
		return nil
	}
}

// String renders k for logs and error messages.
func (k Key) String() string {
	switch k.kind {
	case KindNumber:
		return strconv.FormatFloat(k.num, 'g', -1, 64)
	case KindString:
		return strconv.Quote(k.str)
	case KindBinary:
		return fmt.Sprintf("0x%x", k.str)
	case KindArray:
		parts := make([]string, len(k.arr))
		for i, e := range k.arr {
			parts[i] = e.String()
		}
		return "[" + strings.Join(parts, ",") + "]"
	default:
		return "<invalid>"
	}
}

// Equal reports whether a and b are the same key.
func (k Key) Equal(o Key) bool { return Compare(k, o) == 0 }

// Compare returns -1, 0 or +1 depending on whether a sorts before, equal to,
// or after b. Invalid keys sort before everything.
func Compare(a, b Key) int {
	if a.kind != b.kind {
		if a.kind < b.kind {
			return -1
		}
		return 1
	}
	switch a.kind {
	case KindNumber:
		switch {
		case a.num < b.num:
			return -1
		case a.num > b.num:
			return 1
		default:
			return 0
		}
	case KindString, KindBinary:
		return strings.Compare(a.str, b.str)
	case KindArray:
		n := min(len(a.arr), len(b.arr))
		for i := 0; i < n; i++ {
			if c := Compare(a.arr[i], b.arr[i]); c != 0 {
				return c
			}
		}
		switch {
		case len(a.arr) < len(b.arr):
			return -1
		case len(a.arr) > len(b.arr):
			return 1
		default:
			return 0
		}
	default:
		return 0
	}
}

// Less reports whether a sorts before b.
func Less(a, b Key) bool { return Compare(a, b) < 0 }

// Encoded returns the encoding of k as a string, suitable as a map key.
func (k Key) Encoded() string { return string(k.Encode()) }

// FromEncoded is the inverse of Encoded.
func FromEncoded(s string) (Key, error) { return DecodeAll([]byte(s)) }
