// Package schema declares the stores of a lexkv database: their primary keys,
// key generators, secondary indexes and full-text indexes.
package schema

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"sort"
	"strings"
)

// ErrSchema is the sentinel for invalid or incompatible schemas.
var ErrSchema = errors.New("schema error")

// SchemaError describes a schema problem. Store and Index are empty when the
// problem is not tied to one.
type SchemaError struct {
	Store  string
	Index  string
	Reason string
}

func (e *SchemaError) Error() string {
	switch {
	case e.Store != "" && e.Index != "":
		return fmt.Sprintf("schema error: store %q index %q: %s", e.Store, e.Index, e.Reason)
	case e.Store != "":
		return fmt.Sprintf("schema error: store %q: %s", e.Store, e.Reason)
	default:
		return "schema error: " + e.Reason
	}
}

// Unwrap returns ErrSchema.
func (e *SchemaError) Unwrap() error { return ErrSchema }

// Schema maps store names to their configuration.
type Schema map[string]StoreConfig

// StoreConfig configures one store.
type StoreConfig struct {
	// KeyPath is the dotted path of the primary key inside records. Empty
	// means out-of-line keys (supplied by the caller or generated).
	KeyPath       string          `json:"key_path,omitempty" yaml:"key_path,omitempty"`
	KeyGeneration KeyGeneration   `json:"key_generation,omitempty" yaml:"key_generation,omitempty"`
	Indexes       []IndexConfig   `json:"indexes,omitempty" yaml:"indexes,omitempty"`
	FullText      *FullTextConfig `json:"fulltext,omitempty" yaml:"fulltext,omitempty"`
}

// IndexConfig configures a secondary index.
type IndexConfig struct {
	Name       string `json:"name" yaml:"name"`
	KeyPath    string `json:"key_path,omitempty" yaml:"key_path,omitempty"`
	Unique     bool   `json:"unique,omitempty" yaml:"unique,omitempty"`
	MultiEntry bool   `json:"multi_entry,omitempty" yaml:"multi_entry,omitempty"`
}

// Field is a full-text indexed record field with its score multiplier.
type Field struct {
	Name  string  `json:"name" yaml:"name"`
	Boost float64 `json:"boost,omitempty" yaml:"boost,omitempty"`
}

// FullTextConfig enables a full-text index on a store. Documents are
// referenced by primary key; Ref names the record field holding it and
// defaults to the store key path.
type FullTextConfig struct {
	Ref    string  `json:"ref,omitempty" yaml:"ref,omitempty"`
	Fields []Field `json:"fields" yaml:"fields"`
}

// ReservedPrefix starts every internal bucket name.
const ReservedPrefix = "__"

// ValidateName checks a store or index name.
func ValidateName(name string) error {
	switch {
	case name == "":
		return errors.New("name must not be empty")
	case strings.Contains(name, "/"):
		return fmt.Errorf("name %q must not contain '/'", name)
	case strings.HasPrefix(name, ReservedPrefix):
		return fmt.Errorf("name %q must not start with %q", name, ReservedPrefix)
	}
	return nil
}

// Normalize validates s and returns a copy with defaults applied: index key
// paths default to the index name, and a zero boost becomes 1.
func (s Schema) Normalize() (Schema, error) {
	out := make(Schema, len(s))
	for _, name := range s.StoreNames() {
		cfg, err := normalizeStore(name, s[name])
		if err != nil {
			return nil, err
		}
		out[name] = cfg
	}
	return out, nil
}

// Validate reports whether s is a valid schema.
func (s Schema) Validate() error {
	_, err := s.Normalize()
	return err
}

func normalizeStore(name string, cfg StoreConfig) (StoreConfig, error) {
	if err := ValidateName(name); err != nil {
		return StoreConfig{}, &SchemaError{Store: name, Reason: err.Error()}
	}
	if !cfg.KeyGeneration.valid() {
		return StoreConfig{}, &SchemaError{Store: name, Reason: fmt.Sprintf("unknown key generation %d", cfg.KeyGeneration)}
	}
	if cfg.KeyGeneration == KeyGenUUID && cfg.KeyPath == "" {
		return StoreConfig{}, &SchemaError{Store: name, Reason: "uuid key generation requires a key path"}
	}

	out := StoreConfig{KeyPath: cfg.KeyPath, KeyGeneration: cfg.KeyGeneration}
	seen := make(map[string]bool, len(cfg.Indexes))
	for _, idx := range cfg.Indexes {
		if err := ValidateName(idx.Name); err != nil {
			return StoreConfig{}, &SchemaError{Store: name, Index: idx.Name, Reason: err.Error()}
		}
		if seen[idx.Name] {
			return StoreConfig{}, &SchemaError{Store: name, Index: idx.Name, Reason: "duplicate index name"}
		}
		seen[idx.Name] = true
		if idx.KeyPath == "" {
			idx.KeyPath = idx.Name
		}
		out.Indexes = append(out.Indexes, idx)
	}

	if cfg.FullText != nil {
		ft, err := normalizeFullText(name, cfg)
		if err != nil {
			return StoreConfig{}, err
		}
		out.FullText = ft
	}
	return out, nil
}

func normalizeFullText(store string, cfg StoreConfig) (*FullTextConfig, error) {
	ft := cfg.FullText
	if cfg.KeyPath == "" && ft.Ref == "" {
		return nil, &SchemaError{Store: store, Reason: "fulltext requires a key path or a ref"}
	}
	if cfg.KeyPath != "" && ft.Ref != "" && ft.Ref != cfg.KeyPath {
		return nil, &SchemaError{Store: store, Reason: fmt.Sprintf("fulltext ref %q must match key path %q", ft.Ref, cfg.KeyPath)}
	}
	if len(ft.Fields) == 0 {
		return nil, &SchemaError{Store: store, Reason: "fulltext requires at least one field"}
	}
	out := &FullTextConfig{Ref: ft.Ref, Fields: make([]Field, 0, len(ft.Fields))}
	if out.Ref == "" {
		out.Ref = cfg.KeyPath
	}
	seen := make(map[string]bool, len(ft.Fields))
	for _, f := range ft.Fields {
		if f.Name == "" {
			return nil, &SchemaError{Store: store, Reason: "fulltext field name must not be empty"}
		}
		if seen[f.Name] {
			return nil, &SchemaError{Store: store, Reason: fmt.Sprintf("duplicate fulltext field %q", f.Name)}
		}
		seen[f.Name] = true
		if f.Boost < 0 || math.IsNaN(f.Boost) || math.IsInf(f.Boost, 0) {
			return nil, &SchemaError{Store: store, Reason: fmt.Sprintf("fulltext field %q has invalid boost %v", f.Name, f.Boost)}
		}
		if f.Boost == 0 {
			f.Boost = 1
		}
		out.Fields = append(out.Fields, f)
	}
	return out, nil
}

// StoreNames returns the store names in ascending order.
func (s Schema) StoreNames() []string {
	names := make([]string, 0, len(s))
	for name := range s {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Index returns the index configuration with the given name.
func (c StoreConfig) Index(name string) (IndexConfig, bool) {
	for _, idx := range c.Indexes {
		if idx.Name == name {
			return idx, true
		}
	}
	return IndexConfig{}, false
}

// SameKeying reports whether c and o derive primary keys the same way.
func (c StoreConfig) SameKeying(o StoreConfig) bool {
	return c.KeyPath == o.KeyPath && c.KeyGeneration == o.KeyGeneration
}

// Equal reports whether c and o describe the same store layout.
func (c StoreConfig) Equal(o StoreConfig) bool {
	if !c.SameKeying(o) || len(c.Indexes) != len(o.Indexes) {
		return false
	}
	for _, idx := range c.Indexes {
		other, ok := o.Index(idx.Name)
		if !ok || other != idx {
			return false
		}
	}
	return c.FullText.Equal(o.FullText)
}

// Equal reports whether two full-text configurations are identical,
// including field order.
func (f *FullTextConfig) Equal(o *FullTextConfig) bool {
	if f == nil || o == nil {
		return f == o
	}
	return f.Ref == o.Ref && slices.Equal(f.Fields, o.Fields)
}
