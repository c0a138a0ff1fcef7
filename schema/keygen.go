package schema

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// KeyGeneration selects how a store derives keys for records that lack one.
type KeyGeneration uint8

const (
	// KeyGenNone requires every record to carry its key.
	KeyGenNone KeyGeneration = iota
	// KeyGenAutoIncrement assigns 1, 2, 3, ... from a per-store generator.
	KeyGenAutoIncrement
	// KeyGenUUID assigns random (version 4) UUID strings.
	KeyGenUUID
)

func (g KeyGeneration) valid() bool { return g <= KeyGenUUID }

func (g KeyGeneration) String() string {
	switch g {
	case KeyGenNone:
		return "none"
	case KeyGenAutoIncrement:
		return "auto_increment"
	case KeyGenUUID:
		return "uuid"
	default:
		return fmt.Sprintf("KeyGeneration(%d)", uint8(g))
	}
}

// ParseKeyGeneration parses a key generation name.
func ParseKeyGeneration(s string) (KeyGeneration, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none":
		return KeyGenNone, nil
	case "auto_increment", "autoincrement", "auto":
		return KeyGenAutoIncrement, nil
	case "uuid":
		return KeyGenUUID, nil
	default:
		return KeyGenNone, &SchemaError{Reason: fmt.Sprintf("unknown key generation %q", s)}
	}
}

// MarshalText implements encoding.TextMarshaler.
func (g KeyGeneration) MarshalText() ([]byte, error) {
	if !g.valid() {
		return nil, &SchemaError{Reason: g.String()}
	}
	return []byte(g.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (g *KeyGeneration) UnmarshalText(b []byte) error {
	v, err := ParseKeyGeneration(string(b))
	if err != nil {
		return err
	}
	*g = v
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (g KeyGeneration) MarshalYAML() (any, error) { return g.String(), nil }

// UnmarshalYAML implements yaml.Unmarshaler.
func (g *KeyGeneration) UnmarshalYAML(n *yaml.Node) error {
	return g.UnmarshalText([]byte(n.Value))
}
