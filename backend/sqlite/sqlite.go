// Package sqlite implements the lexkv host engine on pure-Go SQLite
// (modernc.org/sqlite).
//
// All buckets share one table ordered by (bucket, key); SQLite compares BLOB
// keys with memcmp, which gives the same bytewise order as bbolt.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/hupe1980/lexkv/backend"
)

const ddl = `
CREATE TABLE IF NOT EXISTS buckets (
	name TEXT PRIMARY KEY,
	seq  INTEGER NOT NULL DEFAULT 0
);
CREATE TABLE IF NOT EXISTS kv (
	bucket TEXT NOT NULL,
	k      BLOB NOT NULL,
	v      BLOB NOT NULL,
	PRIMARY KEY (bucket, k)
) WITHOUT ROWID;`

// Options configures the SQLite connection.
type Options struct {
	// BusyTimeout is how long a connection waits on a locked database.
	BusyTimeout time.Duration
}

// DB implements backend.DB on a SQLite file in WAL mode.
type DB struct {
	db   *sql.DB
	path string

	// SQLite allows one writer; holding wmu for the lifetime of a write
	// transaction turns lock contention into queueing.
	wmu sync.Mutex
}

var _ backend.DB = (*DB)(nil)

// Open opens or creates a SQLite database file.
func Open(path string, opts Options) (*DB, error) {
	busy := opts.BusyTimeout
	if busy == 0 {
		busy = 5 * time.Second
	}
	dsn := fmt.Sprintf("%s?_pragma=busy_timeout(%d)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)", path, busy.Milliseconds())
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %q: %w", path, err)
	}
	if _, err := db.Exec(ddl); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &DB{db: db, path: path}, nil
}

// Begin starts a transaction. The transaction is not bound to ctx: it lives
// until Commit or Rollback.
func (d *DB) Begin(ctx context.Context, writable bool) (backend.Tx, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if writable {
		d.wmu.Lock()
	}
	tx, err := d.db.BeginTx(context.Background(), nil)
	if err != nil {
		if writable {
			d.wmu.Unlock()
		}
		return nil, translate(err)
	}
	return &sqlTx{db: d, tx: tx, writable: writable}, nil
}

// WriteTo writes a consistent copy made with VACUUM INTO.
func (d *DB) WriteTo(ctx context.Context, w io.Writer) (int64, error) {
	dir, err := os.MkdirTemp(filepath.Dir(d.path), ".lexkv-backup-")
	if err != nil {
		return 0, err
	}
	defer os.RemoveAll(dir)

	tmp := filepath.Join(dir, "copy.db")
	if _, err := d.db.ExecContext(ctx, "VACUUM INTO "+quote(tmp)); err != nil {
		return 0, fmt.Errorf("vacuum into: %w", err)
	}
	f, err := os.Open(tmp)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	return io.Copy(w, f)
}

func quote(s string) string { return "'" + strings.ReplaceAll(s, "'", "''") + "'" }

// Path returns the database file path.
func (d *DB) Path() string { return d.path }

// Close closes the connection pool.
func (d *DB) Close() error { return d.db.Close() }

func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, sql.ErrTxDone):
		return fmt.Errorf("%w: %v", backend.ErrTxDone, err)
	case errors.Is(err, sql.ErrConnDone):
		return fmt.Errorf("%w: %v", backend.ErrClosed, err)
	case strings.Contains(err.Error(), "database is closed"):
		return fmt.Errorf("%w: %v", backend.ErrClosed, err)
	default:
		return err
	}
}

type sqlTx struct {
	db       *DB
	tx       *sql.Tx
	writable bool
	done     bool
}

func (t *sqlTx) check(write bool) error {
	if t.done {
		return backend.ErrTxDone
	}
	if write && !t.writable {
		return backend.ErrTxNotWritable
	}
	return nil
}

func (t *sqlTx) Bucket(name string) (backend.Bucket, error) {
	if err := t.check(false); err != nil {
		return nil, err
	}
	var one int
	err := t.tx.QueryRow("SELECT 1 FROM buckets WHERE name = ?", name).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", backend.ErrBucketNotFound, name)
	}
	if err != nil {
		return nil, translate(err)
	}
	return &sqlBucket{tx: t, name: name}, nil
}

func (t *sqlTx) CreateBucket(name string) (backend.Bucket, error) {
	if err := t.check(true); err != nil {
		return nil, err
	}
	if _, err := t.tx.Exec("INSERT OR IGNORE INTO buckets (name, seq) VALUES (?, 0)", name); err != nil {
		return nil, translate(err)
	}
	return &sqlBucket{tx: t, name: name}, nil
}

func (t *sqlTx) DeleteBucket(name string) error {
	if err := t.check(true); err != nil {
		return err
	}
	res, err := t.tx.Exec("DELETE FROM buckets WHERE name = ?", name)
	if err != nil {
		return translate(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", backend.ErrBucketNotFound, name)
	}
	_, err = t.tx.Exec("DELETE FROM kv WHERE bucket = ?", name)
	return translate(err)
}

func (t *sqlTx) Buckets() ([]string, error) {
	if err := t.check(false); err != nil {
		return nil, err
	}
	rows, err := t.tx.Query("SELECT name FROM buckets ORDER BY name")
	if err != nil {
		return nil, translate(err)
	}
	defer rows.Close()
	var names []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, err
		}
		names = append(names, n)
	}
	return names, rows.Err()
}

func (t *sqlTx) Writable() bool { return t.writable }

func (t *sqlTx) Commit() error {
	if t.done {
		return backend.ErrTxDone
	}
	t.done = true
	defer t.release()
	return translate(t.tx.Commit())
}

func (t *sqlTx) Rollback() error {
	if t.done {
		return backend.ErrTxDone
	}
	t.done = true
	defer t.release()
	return translate(t.tx.Rollback())
}

func (t *sqlTx) release() {
	if t.writable {
		t.db.wmu.Unlock()
	}
}

type sqlBucket struct {
	tx   *sqlTx
	name string
}

func (b *sqlBucket) Get(k []byte) ([]byte, error) {
	if err := b.tx.check(false); err != nil {
		return nil, err
	}
	var v []byte
	err := b.tx.tx.QueryRow("SELECT v FROM kv WHERE bucket = ? AND k = ?", b.name, k).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, translate(err)
	}
	if v == nil {
		v = []byte{}
	}
	return v, nil
}

func (b *sqlBucket) Put(k, v []byte) error {
	if err := b.tx.check(true); err != nil {
		return err
	}
	if len(k) == 0 {
		return errors.New("sqlite: key required")
	}
	if v == nil {
		v = []byte{}
	}
	_, err := b.tx.tx.Exec(
		"INSERT INTO kv (bucket, k, v) VALUES (?, ?, ?) ON CONFLICT (bucket, k) DO UPDATE SET v = excluded.v",
		b.name, k, v,
	)
	return translate(err)
}

func (b *sqlBucket) Delete(k []byte) error {
	if err := b.tx.check(true); err != nil {
		return err
	}
	_, err := b.tx.tx.Exec("DELETE FROM kv WHERE bucket = ? AND k = ?", b.name, k)
	return translate(err)
}

func (b *sqlBucket) Cursor() backend.Cursor { return &sqlCursor{b: b} }

func (b *sqlBucket) Sequence() (uint64, error) {
	if err := b.tx.check(false); err != nil {
		return 0, err
	}
	var seq int64
	err := b.tx.tx.QueryRow("SELECT seq FROM buckets WHERE name = ?", b.name).Scan(&seq)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("%w: %s", backend.ErrBucketNotFound, b.name)
	}
	return uint64(seq), translate(err)
}

func (b *sqlBucket) SetSequence(v uint64) error {
	if err := b.tx.check(true); err != nil {
		return err
	}
	_, err := b.tx.tx.Exec("UPDATE buckets SET seq = ? WHERE name = ?", int64(v), b.name)
	return translate(err)
}

func (b *sqlBucket) NextSequence() (uint64, error) {
	if err := b.tx.check(true); err != nil {
		return 0, err
	}
	var seq int64
	err := b.tx.tx.QueryRow("UPDATE buckets SET seq = seq + 1 WHERE name = ? RETURNING seq", b.name).Scan(&seq)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("%w: %s", backend.ErrBucketNotFound, b.name)
	}
	return uint64(seq), translate(err)
}

// sqlCursor steps through the bucket with one indexed point query per move.
type sqlCursor struct {
	b   *sqlBucket
	cur []byte
	err error
}

func (c *sqlCursor) step(query string, args ...any) ([]byte, []byte) {
	if c.err != nil {
		return nil, nil
	}
	if err := c.b.tx.check(false); err != nil {
		c.err = err
		return nil, nil
	}
	var k, v []byte
	err := c.b.tx.tx.QueryRow(query, append([]any{c.b.name}, args...)...).Scan(&k, &v)
	if errors.Is(err, sql.ErrNoRows) {
		c.cur = nil
		return nil, nil
	}
	if err != nil {
		c.err = translate(err)
		c.cur = nil
		return nil, nil
	}
	if v == nil {
		v = []byte{}
	}
	c.cur = k
	return k, v
}

func (c *sqlCursor) First() ([]byte, []byte) {
	return c.step("SELECT k, v FROM kv WHERE bucket = ? ORDER BY k ASC LIMIT 1")
}

func (c *sqlCursor) Last() ([]byte, []byte) {
	return c.step("SELECT k, v FROM kv WHERE bucket = ? ORDER BY k DESC LIMIT 1")
}

func (c *sqlCursor) Seek(seek []byte) ([]byte, []byte) {
	return c.step("SELECT k, v FROM kv WHERE bucket = ? AND k >= ? ORDER BY k ASC LIMIT 1", seek)
}

func (c *sqlCursor) Next() ([]byte, []byte) {
	if c.cur == nil {
		return nil, nil
	}
	return c.step("SELECT k, v FROM kv WHERE bucket = ? AND k > ? ORDER BY k ASC LIMIT 1", c.cur)
}

func (c *sqlCursor) Prev() ([]byte, []byte) {
	if c.cur == nil {
		return nil, nil
	}
	return c.step("SELECT k, v FROM kv WHERE bucket = ? AND k < ? ORDER BY k DESC LIMIT 1", c.cur)
}

func (c *sqlCursor) Err() error { return c.err }
