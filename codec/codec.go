// Package codec encodes and decodes the records stored in lexkv.
//
// The codec name is written into the database meta bucket when the database
// is created. Opening it with a different codec fails, because stored record
// bytes would no longer decode.
package codec

import (
	"fmt"

	gojson "github.com/goccy/go-json"

	"github.com/hupe1980/lexkv/record"
)

// Codec encodes/decodes values.
// Implementations must be safe for concurrent use.
type Codec interface {
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
	Name() string
}

// Default is the codec used for new databases.
var Default Codec = GoJSON{}

// GoJSON stores records with github.com/goccy/go-json. Its output decodes
// with JSON and the other way round.
type GoJSON struct{}

func (GoJSON) Marshal(v any) ([]byte, error)      { return gojson.Marshal(v) }
func (GoJSON) Unmarshal(data []byte, v any) error { return gojson.Unmarshal(data, v) }

// Name returns "go-json", the value recorded in the meta bucket.
func (GoJSON) Name() string { return "go-json" }

// ByName returns a built-in codec by its stable name.
func ByName(name string) (Codec, bool) {
	switch name {
	case "json":
		return JSON{}, true
	case "go-json":
		return GoJSON{}, true
	default:
		return nil, false
	}
}

// EncodeRecord marshals r with c.
func EncodeRecord(c Codec, r record.Record) ([]byte, error) {
	b, err := c.Marshal(map[string]any(r))
	if err != nil {
		return nil, fmt.Errorf("codec %s: encode record: %w", c.Name(), err)
	}
	return b, nil
}

// DecodeRecord unmarshals a record encoded by EncodeRecord.
func DecodeRecord(c Codec, data []byte) (record.Record, error) {
	var m map[string]any
	if err := c.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("codec %s: decode record: %w", c.Name(), err)
	}
	if m == nil {
		m = map[string]any{}
	}
	return record.Record(m), nil
}
