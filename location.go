package lexkv

import (
	"context"
	"errors"
	"fmt"
	"io/fs"

	"github.com/hupe1980/lexkv/backend"
	"github.com/hupe1980/lexkv/backend/bolt"
	"github.com/hupe1980/lexkv/backend/sqlite"
	lfs "github.com/hupe1980/lexkv/internal/fs"
)

// Location names a database file and the host engine that stores it.
type Location struct {
	kind backend.Kind
	path string
}

// Bolt locates a bbolt database file.
func Bolt(path string) Location { return Location{kind: backend.Bolt, path: path} }

// SQLite locates a SQLite database file.
func SQLite(path string) Location { return Location{kind: backend.SQLite, path: path} }

// ParseLocation builds a Location from a backend name ("bolt" or "sqlite").
func ParseLocation(kind, path string) (Location, error) {
	switch backend.Kind(kind) {
	case backend.Bolt, "":
		return Bolt(path), nil
	case backend.SQLite:
		return SQLite(path), nil
	default:
		return Location{}, fmt.Errorf("unknown backend %q", kind)
	}
}

// Kind returns the host engine.
func (l Location) Kind() backend.Kind { return l.kind }

// Path returns the database file.
func (l Location) Path() string { return l.path }

func (l Location) String() string { return string(l.kind) + ":" + l.path }

func (l Location) open(o *options) (backend.DB, error) {
	if l.path == "" {
		return nil, errors.New("lexkv: empty database path")
	}
	switch l.kind {
	case backend.Bolt:
		return bolt.Open(l.path, o.bolt)
	case backend.SQLite:
		return sqlite.Open(l.path, o.sqlite)
	default:
		return nil, fmt.Errorf("lexkv: unknown backend %q", l.kind)
	}
}

// files lists the files the host engine keeps for the database.
func (l Location) files() []string {
	if l.kind == backend.SQLite {
		return []string{l.path, l.path + "-wal", l.path + "-shm", l.path + "-journal"}
	}
	return []string{l.path}
}

// DeleteDatabase irreversibly removes every file of the database at loc.
// The database must not be open. Deleting a missing database is not an
// error.
func DeleteDatabase(ctx context.Context, loc Location) error {
	if loc.path == "" {
		return errors.New("lexkv: empty database path")
	}
	for _, name := range loc.files() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := lfs.Default.Remove(name); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("delete %s: %w", name, err)
		}
	}
	return nil
}
