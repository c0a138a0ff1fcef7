// Package keyrange describes contiguous intervals of keys.
//
// A Range is a pure value. Cursors translate it into a half-open byte
// interval over encoded keys with Bounds.
package keyrange

import (
	"errors"
	"fmt"

	"github.com/hupe1980/lexkv/key"
)

// ErrInvalidRange is returned for ranges whose bounds cannot match anything
// or are not valid keys.
var ErrInvalidRange = errors.New("invalid key range")

// InvalidRangeError carries the offending bounds.
type InvalidRangeError struct {
	Lower  key.Key
	Upper  key.Key
	Reason string
}

func (e *InvalidRangeError) Error() string {
	return fmt.Sprintf("invalid key range [%s, %s]: %s", e.Lower, e.Upper, e.Reason)
}

// Unwrap returns ErrInvalidRange.
func (e *InvalidRangeError) Unwrap() error { return ErrInvalidRange }

// Kind identifies the shape of a Range.
type Kind uint8

const (
	// KindAll matches every key.
	KindAll Kind = iota
	// KindOnly matches exactly one key.
	KindOnly
	// KindLower has only a lower bound.
	KindLower
	// KindUpper has only an upper bound.
	KindUpper
	// KindBound has both bounds.
	KindBound
)

var kindNames = map[Kind]string{
	KindAll:   "all",
	KindOnly:  "only",
	KindLower: "lower",
	KindUpper: "upper",
	KindBound: "lowerupper",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

// Range is an interval of keys. The zero value matches all keys.
type Range struct {
	kind      Kind
	lower     key.Key
	upper     key.Key
	lowerOpen bool
	upperOpen bool
}

// All returns the range that matches every key.
func All() Range { return Range{kind: KindAll} }

// Only returns the range containing exactly k.
func Only(k key.Key) Range {
	return Range{kind: KindOnly, lower: k, upper: k}
}

// LowerBound returns the range of keys >= k (> k when open).
func LowerBound(k key.Key, open bool) Range {
	return Range{kind: KindLower, lower: k, lowerOpen: open}
}

// UpperBound returns the range of keys <= k (< k when open).
func UpperBound(k key.Key, open bool) Range {
	return Range{kind: KindUpper, upper: k, upperOpen: open}
}

// Bound returns the range between lo and hi. It fails when lo > hi, or when
// lo == hi and either side is open.
func Bound(lo, hi key.Key, loOpen, hiOpen bool) (Range, error) {
	r := Range{kind: KindBound, lower: lo, upper: hi, lowerOpen: loOpen, upperOpen: hiOpen}
	if err := r.Validate(); err != nil {
		return Range{}, err
	}
	return r, nil
}

// Validate checks that the bounds are valid keys and describe a non-empty
// interval.
func (r Range) Validate() error {
	switch r.kind {
	case KindAll:
		return nil
	case KindOnly, KindLower:
		if !r.lower.IsValid() {
			return &InvalidRangeError{Lower: r.lower, Upper: r.upper, Reason: "lower bound is not a valid key"}
		}
		return nil
	case KindUpper:
		if !r.upper.IsValid() {
			return &InvalidRangeError{Lower: r.lower, Upper: r.upper, Reason: "upper bound is not a valid key"}
		}
		return nil
	case KindBound:
		if !r.lower.IsValid() || !r.upper.IsValid() {
			return &InvalidRangeError{Lower: r.lower, Upper: r.upper, Reason: "bound is not a valid key"}
		}
		c := key.Compare(r.lower, r.upper)
		if c > 0 {
			return &InvalidRangeError{Lower: r.lower, Upper: r.upper, Reason: "lower bound greater than upper bound"}
		}
		if c == 0 && (r.lowerOpen || r.upperOpen) {
			return &InvalidRangeError{Lower: r.lower, Upper: r.upper, Reason: "equal bounds with an open side"}
		}
		return nil
	default:
		return &InvalidRangeError{Reason: "unknown range kind"}
	}
}

// Kind returns the shape of r.
func (r Range) Kind() Kind { return r.kind }

// Lower returns the lower bound and whether it is open. ok is false when the
// range has no lower bound.
func (r Range) Lower() (k key.Key, open, ok bool) {
	switch r.kind {
	case KindOnly, KindLower, KindBound:
		return r.lower, r.lowerOpen, true
	}
	return key.Key{}, false, false
}

// Upper returns the upper bound and whether it is open. ok is false when the
// range has no upper bound.
func (r Range) Upper() (k key.Key, open, ok bool) {
	switch r.kind {
	case KindOnly, KindUpper, KindBound:
		return r.upper, r.upperOpen, true
	}
	return key.Key{}, false, false
}

// Includes reports whether k lies inside r.
func (r Range) Includes(k key.Key) bool {
	if lo, open, ok := r.Lower(); ok {
		c := key.Compare(k, lo)
		if c < 0 || (c == 0 && open) {
			return false
		}
	}
	if hi, open, ok := r.Upper(); ok {
		c := key.Compare(k, hi)
		if c > 0 || (c == 0 && open) {
			return false
		}
	}
	return true
}

// Bounds returns the half-open interval [lo, hi) of encoded keys covered by
// r. A nil bound is unbounded. The interval is also correct for index entries
// laid out as enc(indexKey)||enc(primaryKey), because encodings are
// prefix-free and no encoding starts with key.Successor.
func (r Range) Bounds() (lo, hi []byte) {
	if k, open, ok := r.Lower(); ok {
		lo = k.Encode()
		if open {
			lo = key.PrefixEnd(lo)
		}
	}
	if k, open, ok := r.Upper(); ok {
		hi = k.Encode()
		if !open {
			hi = key.PrefixEnd(hi)
		}
	}
	return lo, hi
}

func (r Range) String() string {
	switch r.kind {
	case KindAll:
		return "(-inf, +inf)"
	case KindOnly:
		return "[" + r.lower.String() + "]"
	}
	var s string
	if k, open, ok := r.Lower(); ok {
		s = bracket(open, "(", "[") + k.String()
	} else {
		s = "(-inf"
	}
	s += ", "
	if k, open, ok := r.Upper(); ok {
		s += k.String() + bracket(open, ")", "]")
	} else {
		s += "+inf)"
	}
	return s
}

func bracket(open bool, o, c string) string {
	if open {
		return o
	}
	return c
}

// Parse builds a range from its kind name ("all", "only", "lower", "upper",
// "lowerupper" or "bound").
func Parse(kind string, lower, upper key.Key, lowerOpen, upperOpen bool) (Range, error) {
	var r Range
	switch kind {
	case "", "all":
		return All(), nil
	case "only":
		r = Only(lower)
	case "lower":
		r = LowerBound(lower, lowerOpen)
	case "upper":
		r = UpperBound(upper, upperOpen)
	case "lowerupper", "bound":
		return Bound(lower, upper, lowerOpen, upperOpen)
	default:
		return Range{}, &InvalidRangeError{Reason: fmt.Sprintf("unknown range kind %q", kind)}
	}
	if err := r.Validate(); err != nil {
		return Range{}, err
	}
	return r, nil
}
