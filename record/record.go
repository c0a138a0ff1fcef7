// Package record defines the document type stored in lexkv stores.
package record

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrPathConflict is returned by Set when an intermediate path element exists
// but is not an object.
var ErrPathConflict = errors.New("key path conflicts with existing value")

// Record is a schemaless document. Values are the JSON data model: nil, bool,
// float64, string, []any and map[string]any (plus []byte and Go numeric types
// before the first round trip through a codec).
type Record map[string]any

// Get resolves a dotted key path ("a.b.c").
func (r Record) Get(path string) (any, bool) {
	if r == nil || path == "" {
		return nil, false
	}
	var cur any = map[string]any(r)
	for _, part := range strings.Split(path, ".") {
		m, ok := asMap(cur)
		if !ok {
			return nil, false
		}
		cur, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// Set stores v at a dotted key path, creating intermediate objects.
func (r Record) Set(path string, v any) error {
	if r == nil {
		return errors.New("record: set on nil record")
	}
	if path == "" {
		return errors.New("record: empty key path")
	}
	parts := strings.Split(path, ".")
	cur := map[string]any(r)
	for _, part := range parts[:len(parts)-1] {
		next, ok := cur[part]
		if !ok || next == nil {
			m := map[string]any{}
			cur[part] = m
			cur = m
			continue
		}
		m, ok := asMap(next)
		if !ok {
			return fmt.Errorf("record: %q: %w", path, ErrPathConflict)
		}
		cur = m
	}
	cur[parts[len(parts)-1]] = v
	return nil
}

func asMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case Record:
		return m, true
	default:
		return nil, false
	}
}

// Clone returns a deep copy of r. Maps and slices are copied; scalars are
// shared.
func (r Record) Clone() Record {
	if r == nil {
		return nil
	}
	return Record(cloneMap(r))
}

func cloneMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch x := v.(type) {
	case map[string]any:
		return cloneMap(x)
	case Record:
		return Record(cloneMap(x))
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = cloneValue(e)
		}
		return out
	case []byte:
		return append([]byte(nil), x...)
	default:
		return v
	}
}

// Text returns the indexable text at path: strings as is, numbers and
// booleans formatted, arrays joined with spaces. Objects contribute nothing.
func (r Record) Text(path string) string {
	v, ok := r.Get(path)
	if !ok {
		return ""
	}
	var sb strings.Builder
	appendText(&sb, v)
	return sb.String()
}

func appendText(sb *strings.Builder, v any) {
	var s string
	switch x := v.(type) {
	case string:
		s = x
	case float64:
		s = strconv.FormatFloat(x, 'f', -1, 64)
	case float32:
		s = strconv.FormatFloat(float64(x), 'f', -1, 32)
	case int:
		s = strconv.Itoa(x)
	case int64:
		s = strconv.FormatInt(x, 10)
	case bool:
		s = strconv.FormatBool(x)
	case []any:
		for _, e := range x {
			appendText(sb, e)
		}
		return
	case []string:
		for _, e := range x {
			appendText(sb, e)
		}
		return
	default:
		return
	}
	if s == "" {
		return
	}
	if sb.Len() > 0 {
		sb.WriteByte(' ')
	}
	sb.WriteString(s)
}
