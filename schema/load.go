package schema

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	gojson "github.com/goccy/go-json"
	"gopkg.in/yaml.v3"
)

// Document is the on-disk schema file:
//
//	version: 2
//	stores:
//	  docs:
//	    key_path: id
//	    key_generation: auto_increment
//	    indexes:
//	      - {name: byAuthor, key_path: author}
//	    fulltext:
//	      fields: [{name: title, boost: 10}, {name: body}]
type Document struct {
	Version int    `json:"version,omitempty" yaml:"version,omitempty"`
	Stores  Schema `json:"stores" yaml:"stores"`
}

// Load parses a YAML or JSON schema document and validates it.
func Load(data []byte) (*Document, error) {
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, &SchemaError{Reason: fmt.Sprintf("parse: %v", err)}
	}
	return finish(&doc)
}

// LoadFile reads a schema document. Files ending in .json are decoded as
// JSON; everything else as YAML.
func LoadFile(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read schema %s: %w", path, err)
	}
	if strings.EqualFold(filepath.Ext(path), ".json") {
		var doc Document
		if err := gojson.Unmarshal(data, &doc); err != nil {
			return nil, &SchemaError{Reason: fmt.Sprintf("parse %s: %v", path, err)}
		}
		return finish(&doc)
	}
	return Load(data)
}

func finish(doc *Document) (*Document, error) {
	if doc.Version < 0 {
		return nil, &SchemaError{Reason: fmt.Sprintf("negative version %d", doc.Version)}
	}
	stores, err := doc.Stores.Normalize()
	if err != nil {
		return nil, err
	}
	doc.Stores = stores
	return doc, nil
}
