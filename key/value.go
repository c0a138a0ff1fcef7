package key

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"reflect"
	"slices"
)

// ErrInvalidKey is returned for values that cannot be used as keys.
var ErrInvalidKey = errors.New("invalid key")

// InvalidKeyError describes a value that is not a valid key.
type InvalidKeyError struct {
	Value  any
	Reason string
}

func (e *InvalidKeyError) Error() string {
	if e.Value == nil {
		return fmt.Sprintf("invalid key: %s", e.Reason)
	}
	return fmt.Sprintf("invalid key %v (%T): %s", e.Value, e.Value, e.Reason)
}

// Unwrap returns ErrInvalidKey.
func (e *InvalidKeyError) Unwrap() error { return ErrInvalidKey }

// FromValue converts a record field value into a Key.
//
// Accepted values: Key, all Go integer and float types (NaN rejected),
// json.Number, string, []byte and slices of accepted values (arrays).
func FromValue(v any) (Key, error) {
	switch x := v.(type) {
	case Key:
		if !x.IsValid() {
			return Key{}, &InvalidKeyError{Value: v, Reason: "zero key"}
		}
		return x, nil
	case float64:
		return number(v, x)
	case float32:
		return number(v, float64(x))
	case int:
		return Int(int64(x)), nil
	case int8:
		return Int(int64(x)), nil
	case int16:
		return Int(int64(x)), nil
	case int32:
		return Int(int64(x)), nil
	case int64:
		return Int(x), nil
	case uint:
		return Number(float64(x)), nil
	case uint8:
		return Number(float64(x)), nil
	case uint16:
		return Number(float64(x)), nil
	case uint32:
		return Number(float64(x)), nil
	case uint64:
		return Number(float64(x)), nil
	case json.Number:
		f, err := x.Float64()
		if err != nil {
			return Key{}, &InvalidKeyError{Value: v, Reason: err.Error()}
		}
		return number(v, f)
	case string:
		return String(x), nil
	case []byte:
		return Binary(x), nil
	case []any:
		return arrayOf(v, len(x), func(i int) any { return x[i] })
	case nil:
		return Key{}, &InvalidKeyError{Reason: "nil value"}
	}

	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array {
		return arrayOf(v, rv.Len(), func(i int) any { return rv.Index(i).Interface() })
	}
	return Key{}, &InvalidKeyError{Value: v, Reason: "unsupported type"}
}

func number(orig any, f float64) (Key, error) {
	if math.IsNaN(f) {
		return Key{}, &InvalidKeyError{Value: orig, Reason: "NaN"}
	}
	return Number(f), nil
}

func arrayOf(orig any, n int, at func(int) any) (Key, error) {
	elems := make([]Key, n)
	for i := 0; i < n; i++ {
		e, err := FromValue(at(i))
		if err != nil {
			return Key{}, &InvalidKeyError{Value: orig, Reason: fmt.Sprintf("element %d: %v", i, err)}
		}
		elems[i] = e
	}
	return Key{kind: KindArray, arr: elems}, nil
}

// Sort sorts keys ascending in place.
func Sort(keys []Key) { slices.SortFunc(keys, Compare) }

// SortedUnique returns a sorted copy of keys without duplicates.
func SortedUnique(keys []Key) []Key {
	out := slices.Clone(keys)
	Sort(out)
	return slices.CompactFunc(out, Key.Equal)
}
