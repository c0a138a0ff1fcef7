package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"strings"

	"github.com/alecthomas/kong"
	"github.com/dustin/go-humanize"
	gojson "github.com/goccy/go-json"

	"github.com/hupe1980/lexkv"
	"github.com/hupe1980/lexkv/blobstore"
	miniostore "github.com/hupe1980/lexkv/blobstore/minio"
	s3store "github.com/hupe1980/lexkv/blobstore/s3"
	"github.com/hupe1980/lexkv/key"
	"github.com/hupe1980/lexkv/keyrange"
	"github.com/hupe1980/lexkv/schema"
)

// Config carries the process environment of one CLI invocation.
type Config struct {
	Name        string
	Description string
	// Exit is called by the parser for --help and usage errors.
	Exit   func(int)
	Getenv func(string) string
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
}

// NewConfig returns a Config bound to the real process.
func NewConfig() *Config {
	return &Config{
		Name:        "lexkv",
		Description: "Inspect and modify a lexkv database.",
		Exit:        os.Exit,
		Getenv:      os.Getenv,
		Stdin:       os.Stdin,
		Stdout:      os.Stdout,
		Stderr:      os.Stderr,
	}
}

type rangeFlags struct {
	Kind      string `default:"all" enum:"all,only,lower,upper,bound" help:"Range kind: all, only, lower, upper or bound."`
	Lower     string `help:"Lower bound key (JSON)."`
	Upper     string `help:"Upper bound key (JSON)."`
	LowerOpen bool   `help:"Exclude the lower bound."`
	UpperOpen bool   `help:"Exclude the upper bound."`
}

func (f rangeFlags) parse() (keyrange.Range, error) {
	var lo, hi key.Key
	var err error
	if f.Lower != "" {
		if lo, err = parseKey(f.Lower); err != nil {
			return keyrange.Range{}, err
		}
	}
	if f.Upper != "" {
		if hi, err = parseKey(f.Upper); err != nil {
			return keyrange.Range{}, err
		}
	}
	return keyrange.Parse(f.Kind, lo, hi, f.LowerOpen, f.UpperOpen)
}

type cmdGet struct {
	Store string `arg:"" help:"Store name."`
	Key   string `arg:"" help:"Key (JSON, bare words are strings)."`
	Index string `help:"Look the key up in this index instead of the primary key."`
}

type cmdPut struct {
	Store   string   `arg:"" help:"Store name."`
	Records []string `arg:"" optional:"" help:"Records as JSON objects; read as JSON lines from stdin when omitted."`
	Key     string   `help:"Explicit key for a store without key path (JSON)."`
}

type cmdAdd struct {
	cmdPut
}

type cmdDelete struct {
	Store string     `arg:"" help:"Store name."`
	Keys  []string   `arg:"" optional:"" help:"Keys to delete (JSON)."`
	Range rangeFlags `embed:"" prefix:"range-"`
}

type cmdClear struct {
	Store string `arg:"" help:"Store name."`
}

type cmdScan struct {
	Store   string     `arg:"" help:"Store name."`
	Index   string     `help:"Scan this index instead of the store."`
	Reverse bool       `short:"r" help:"Iterate in descending key order."`
	Limit   int        `short:"n" help:"Stop after this many entries (0 = all)."`
	Range   rangeFlags `embed:"" prefix:"range-"`
}

type cmdCount struct {
	Store string     `arg:"" help:"Store name."`
	Index string     `help:"Count entries of this index instead of the store."`
	Range rangeFlags `embed:"" prefix:"range-"`
}

type cmdSearch struct {
	Store    string `arg:"" help:"Store name."`
	Query    string `arg:"" help:"Full-text query."`
	Limit    int    `short:"n" help:"Maximum number of results (0 = all)."`
	Offset   int    `help:"Skip this many results."`
	KeysOnly bool   `short:"k" help:"Print keys and scores without records."`
}

type cmdRebuild struct {
	Stores []string `arg:"" optional:"" help:"Stores to rebuild; all full-text stores when omitted."`
}

type cmdStats struct{}

type cmdBackup struct {
	Target string `arg:"" help:"Directory, s3://bucket/prefix or minio://endpoint/bucket/prefix."`
	Name   string `arg:"" help:"Backup blob name."`
}

type cmdRestore struct {
	Source string `arg:"" help:"Directory, s3://bucket/prefix or minio://endpoint/bucket/prefix."`
	Name   string `arg:"" help:"Backup blob name."`
}

type cmdDrop struct{}

type cli struct {
	DB       string `name:"db" required:"" help:"Database file."`
	Backend  string `default:"bolt" enum:"bolt,sqlite" help:"Host engine: bolt or sqlite."`
	Schema   string `type:"existingfile" help:"Schema file (YAML or JSON)."`
	Version  int    `help:"Schema version to open with; defaults to the schema file's version, or the stored version without --schema."`
	LogLevel string `default:"warn" enum:"debug,info,warn,error" help:"Log level on stderr."`

	Get     cmdGet     `cmd:"" help:"Print the record stored under a key."`
	Put     cmdPut     `cmd:"" help:"Insert or replace records."`
	Add     cmdAdd     `cmd:"" help:"Insert records, failing on existing keys."`
	Delete  cmdDelete  `cmd:"" help:"Delete records by key or range."`
	Clear   cmdClear   `cmd:"" help:"Delete all records of a store."`
	Scan    cmdScan    `cmd:"" help:"Print the records in a key range."`
	Count   cmdCount   `cmd:"" help:"Count the records in a key range."`
	Search  cmdSearch  `cmd:"" help:"Run a full-text query."`
	Rebuild cmdRebuild `cmd:"" help:"Rebuild full-text indexes from the records."`
	Stats   cmdStats   `cmd:"" help:"Print database statistics."`
	Backup  cmdBackup  `cmd:"" help:"Write a compressed backup to a blob store."`
	Restore cmdRestore `cmd:"" help:"Restore a backup into --db, which must not exist."`
	Drop    cmdDrop    `cmd:"" help:"Delete the database files."`
}

// app is bound into every command's Run method.
type app struct {
	ctx  context.Context
	cli  *cli
	cfg  *Config
	out  *gojson.Encoder
	opts []lexkv.Option
}

// Run parses args and executes the selected command. It returns the
// process exit code.
func Run(ctx context.Context, args []string, cfg *Config) int {
	exited := -1
	var c cli
	parser, err := kong.New(&c,
		kong.Name(cfg.Name),
		kong.Description(cfg.Description),
		kong.Writers(cfg.Stdout, cfg.Stderr),
		kong.Exit(func(code int) {
			exited = code
			cfg.Exit(code)
		}),
		kong.UsageOnError(),
	)
	if err != nil {
		fmt.Fprintf(cfg.Stderr, "%s: %v\n", cfg.Name, err)
		return 1
	}
	kctx, err := parser.Parse(args)
	if exited >= 0 {
		return exited
	}
	if err != nil {
		fmt.Fprintf(cfg.Stderr, "%s: error: %v\n", cfg.Name, err)
		return 2
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		fmt.Fprintf(cfg.Stderr, "%s: error: %v\n", cfg.Name, err)
		return 2
	}
	a := &app{
		ctx: ctx,
		cli: &c,
		cfg: cfg,
		out: gojson.NewEncoder(cfg.Stdout),
		opts: []lexkv.Option{
			lexkv.WithLogger(lexkv.NewLogger(slog.NewTextHandler(cfg.Stderr, &slog.HandlerOptions{Level: level}))),
		},
	}
	if err := kctx.Run(a); err != nil {
		fmt.Fprintf(cfg.Stderr, "%s: error: %v\n", cfg.Name, err)
		return 1
	}
	return 0
}

func (a *app) location() (lexkv.Location, error) {
	return lexkv.ParseLocation(a.cli.Backend, a.cli.DB)
}

// open opens the database. Without a schema file the database is opened
// at its stored version and schema.
func (a *app) open(readOnly bool) (*lexkv.DB, error) {
	loc, err := a.location()
	if err != nil {
		return nil, err
	}
	var stores lexkv.Schema
	version := a.cli.Version
	if a.cli.Schema != "" {
		doc, err := schema.LoadFile(a.cli.Schema)
		if err != nil {
			return nil, err
		}
		stores = doc.Stores
		if version == 0 {
			version = doc.Version
		}
		if version == 0 {
			version = 1
		}
	}
	opts := a.opts
	if readOnly {
		opts = append(opts[:len(opts):len(opts)], lexkv.WithReadOnly())
	}
	return lexkv.Open(a.ctx, loc, version, stores, opts...)
}

func (a *app) withDB(readOnly bool, fn func(db *lexkv.DB) error) (err error) {
	db, err := a.open(readOnly)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := db.Close(); err == nil {
			err = cerr
		}
	}()
	return fn(db)
}

func (a *app) withStore(name string, readOnly bool, fn func(st *lexkv.Store) error) error {
	return a.withDB(readOnly, func(db *lexkv.DB) error {
		st, err := db.Store(name)
		if err != nil {
			return err
		}
		return fn(st)
	})
}

type entryJSON struct {
	Key      any          `json:"key"`
	IndexKey any          `json:"index_key,omitempty"`
	Score    float64      `json:"score,omitempty"`
	Record   lexkv.Record `json:"record,omitempty"`
}

func (a *app) printEntry(e lexkv.Entry) error {
	out := entryJSON{Key: e.Key.Value(), Record: e.Record}
	if e.IndexKey.IsValid() {
		out.IndexKey = e.IndexKey.Value()
	}
	return a.out.Encode(out)
}

// parseKey decodes a JSON key. Text that is not valid JSON is taken as a
// string key, so bare words need no quoting.
func parseKey(s string) (key.Key, error) {
	var v any
	if err := gojson.Unmarshal([]byte(s), &v); err != nil {
		return key.String(s), nil
	}
	return key.FromValue(v)
}

func parseKeys(args []string) ([]key.Key, error) {
	out := make([]key.Key, 0, len(args))
	for _, s := range args {
		k, err := parseKey(s)
		if err != nil {
			return nil, err
		}
		out = append(out, k)
	}
	return out, nil
}

// records decodes the arguments, or JSON lines from r when there are none.
func records(args []string, r io.Reader) ([]lexkv.Record, error) {
	var out []lexkv.Record
	decode := func(line string) error {
		var rec lexkv.Record
		if err := gojson.Unmarshal([]byte(line), &rec); err != nil {
			return fmt.Errorf("decode record %q: %w", line, err)
		}
		out = append(out, rec)
		return nil
	}
	if len(args) > 0 {
		for _, s := range args {
			if err := decode(s); err != nil {
				return nil, err
			}
		}
		return out, nil
	}
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 16*1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		if err := decode(line); err != nil {
			return nil, err
		}
	}
	return out, sc.Err()
}

func (c *cmdGet) Run(a *app) error {
	k, err := parseKey(c.Key)
	if err != nil {
		return err
	}
	return a.withStore(c.Store, true, func(st *lexkv.Store) error {
		var rec lexkv.Record
		var found bool
		if c.Index != "" {
			rec, found, err = st.IndexGet(a.ctx, c.Index, k)
		} else {
			rec, found, err = st.Get(a.ctx, k)
		}
		if err != nil {
			return err
		}
		if !found {
			return fmt.Errorf("key %s not found", k)
		}
		return a.out.Encode(rec)
	})
}

func (c *cmdPut) write(a *app, add bool) error {
	recs, err := records(c.Records, a.cfg.Stdin)
	if err != nil {
		return err
	}
	if len(recs) == 0 {
		return errors.New("no records given")
	}
	return a.withStore(c.Store, false, func(st *lexkv.Store) error {
		var entries []lexkv.Entry
		switch {
		case c.Key != "":
			if len(recs) != 1 {
				return errors.New("--key takes exactly one record")
			}
			k, err := parseKey(c.Key)
			if err != nil {
				return err
			}
			var e lexkv.Entry
			if add {
				e, err = st.AddKey(a.ctx, k, recs[0])
			} else {
				e, err = st.PutKey(a.ctx, k, recs[0])
			}
			if err != nil {
				return err
			}
			entries = []lexkv.Entry{e}
		case add:
			if entries, err = st.Add(a.ctx, recs...); err != nil {
				return err
			}
		default:
			if entries, err = st.Put(a.ctx, recs...); err != nil {
				return err
			}
		}
		for _, e := range entries {
			if err := a.printEntry(e); err != nil {
				return err
			}
		}
		return nil
	})
}

func (c *cmdPut) Run(a *app) error { return c.write(a, false) }

func (c *cmdAdd) Run(a *app) error { return c.write(a, true) }

func (c *cmdDelete) Run(a *app) error {
	if len(c.Keys) == 0 && c.Range.Kind == "all" {
		return errors.New("no keys or range given; use clear to delete everything")
	}
	keys, err := parseKeys(c.Keys)
	if err != nil {
		return err
	}
	r, err := c.Range.parse()
	if err != nil {
		return err
	}
	return a.withStore(c.Store, false, func(st *lexkv.Store) error {
		var n int
		if len(keys) > 0 {
			n, err = st.Delete(a.ctx, keys...)
		} else {
			n, err = st.DeleteRange(a.ctx, r)
		}
		if err != nil {
			return err
		}
		return a.out.Encode(map[string]int{"removed": n})
	})
}

func (c *cmdClear) Run(a *app) error {
	return a.withStore(c.Store, false, func(st *lexkv.Store) error {
		return st.Clear(a.ctx)
	})
}

func (c *cmdScan) Run(a *app) error {
	r, err := c.Range.parse()
	if err != nil {
		return err
	}
	dir := lexkv.Next
	if c.Reverse {
		dir = lexkv.Prev
	}
	return a.withDB(true, func(db *lexkv.DB) error {
		return db.View(a.ctx, []string{c.Store}, func(tx *lexkv.Tx) error {
			st, err := tx.Store(c.Store)
			if err != nil {
				return err
			}
			var cur *lexkv.Cursor
			if c.Index != "" {
				idx, err := st.Index(c.Index)
				if err != nil {
					return err
				}
				cur, err = idx.Range(r, dir)
				if err != nil {
					return err
				}
			} else if cur, err = st.Range(r, dir); err != nil {
				return err
			}
			defer cur.Close()

			n := 0
			for e, err := range cur.All() {
				if err != nil {
					return err
				}
				if err := a.printEntry(e); err != nil {
					return err
				}
				if n++; c.Limit > 0 && n >= c.Limit {
					break
				}
			}
			return nil
		})
	})
}

func (c *cmdCount) Run(a *app) error {
	r, err := c.Range.parse()
	if err != nil {
		return err
	}
	return a.withDB(true, func(db *lexkv.DB) error {
		return db.View(a.ctx, []string{c.Store}, func(tx *lexkv.Tx) error {
			st, err := tx.Store(c.Store)
			if err != nil {
				return err
			}
			var n int
			if c.Index != "" {
				idx, err := st.Index(c.Index)
				if err != nil {
					return err
				}
				n, err = idx.Count(r)
				if err != nil {
					return err
				}
			} else if n, err = st.Count(r); err != nil {
				return err
			}
			return a.out.Encode(map[string]int{"count": n})
		})
	})
}

func (c *cmdSearch) Run(a *app) error {
	return a.withStore(c.Store, true, func(st *lexkv.Store) error {
		if c.KeysOnly {
			hits, err := st.SearchKeys(a.ctx, c.Query)
			if err != nil {
				return err
			}
			hits = page(hits, c.Offset, c.Limit)
			for _, h := range hits {
				if err := a.out.Encode(entryJSON{Key: h.Ref.Value(), Score: h.Score}); err != nil {
					return err
				}
			}
			return nil
		}
		results, err := st.Search(a.ctx, c.Query, lexkv.WithLimit(c.Limit), lexkv.WithOffset(c.Offset))
		if err != nil {
			return err
		}
		for _, r := range results {
			if err := a.out.Encode(entryJSON{Key: r.Key.Value(), Score: r.Score, Record: r.Record}); err != nil {
				return err
			}
		}
		return nil
	})
}

func page[T any](s []T, offset, limit int) []T {
	if offset >= len(s) {
		return nil
	}
	s = s[offset:]
	if limit > 0 && len(s) > limit {
		s = s[:limit]
	}
	return s
}

func (c *cmdRebuild) Run(a *app) error {
	return a.withDB(false, func(db *lexkv.DB) error {
		stores := c.Stores
		if len(stores) == 0 {
			for _, name := range db.StoreNames() {
				if st, err := db.Store(name); err == nil && st.HasFullText() {
					stores = append(stores, name)
				}
			}
		}
		for _, name := range stores {
			if err := db.Rebuild(a.ctx, name); err != nil {
				return err
			}
			if err := a.out.Encode(map[string]string{"rebuilt": name}); err != nil {
				return err
			}
		}
		return nil
	})
}

type statsJSON struct {
	Location string `json:"location"`
	Version  int    `json:"version"`
	Codec    string `json:"codec"`
	Bytes    int64  `json:"bytes"`
	Size     string `json:"size"`
}

type storeStatsJSON struct {
	Store          string `json:"store"`
	Records        int    `json:"records"`
	RecordsHuman   string `json:"records_human"`
	Indexes        int    `json:"indexes"`
	Generation     uint64 `json:"generation"`
	FullText       bool   `json:"fulltext"`
	TextDocuments  int    `json:"text_documents,omitempty"`
	TextTerms      int    `json:"text_terms,omitempty"`
	SnapshotBytes  int    `json:"snapshot_bytes,omitempty"`
	SnapshotSize   string `json:"snapshot_size,omitempty"`
	SnapshotFresh  bool   `json:"snapshot_fresh,omitempty"`
	SnapshotFormat string `json:"snapshot_format,omitempty"`
}

func (c *cmdStats) Run(a *app) error {
	return a.withDB(true, func(db *lexkv.DB) error {
		st, err := db.Stats(a.ctx)
		if err != nil {
			return err
		}
		var size int64
		if fi, err := os.Stat(st.Location.Path()); err == nil {
			size = fi.Size()
		}
		if err := a.out.Encode(statsJSON{
			Location: st.Location.String(),
			Version:  st.Version,
			Codec:    st.Codec,
			Bytes:    size,
			Size:     humanize.Bytes(uint64(size)),
		}); err != nil {
			return err
		}
		for _, s := range st.Stores {
			out := storeStatsJSON{
				Store:          s.Name,
				Records:        s.Records,
				RecordsHuman:   humanize.Comma(int64(s.Records)),
				Indexes:        s.Indexes,
				Generation:     s.Generation,
				FullText:       s.FullText,
				TextDocuments:  s.TextDocuments,
				TextTerms:      s.TextTerms,
				SnapshotBytes:  s.SnapshotBytes,
				SnapshotFresh:  s.SnapshotFresh,
				SnapshotFormat: s.SnapshotFormat,
			}
			if s.SnapshotBytes > 0 {
				out.SnapshotSize = humanize.Bytes(uint64(s.SnapshotBytes))
			}
			if err := a.out.Encode(out); err != nil {
				return err
			}
		}
		return nil
	})
}

// blobStore resolves a backup target: s3://bucket/prefix,
// minio://endpoint/bucket/prefix or a local directory. MinIO credentials
// come from MINIO_ACCESS_KEY, MINIO_SECRET_KEY and MINIO_REGION;
// MINIO_INSECURE=true disables TLS.
func (a *app) blobStore(target string) (blobstore.BlobStore, error) {
	u, err := url.Parse(target)
	if err != nil || u.Scheme == "" || u.Scheme == "file" {
		if err == nil && u.Scheme == "file" {
			target = u.Path
		}
		return blobstore.NewLocalStore(target), nil
	}
	switch u.Scheme {
	case "s3":
		if u.Host == "" {
			return nil, fmt.Errorf("missing bucket in %q", target)
		}
		bs, err := s3store.New(a.ctx, u.Host, strings.Trim(u.Path, "/"))
		if err != nil {
			return nil, err
		}
		return bs, nil
	case "minio":
		bucket, prefix, _ := strings.Cut(strings.Trim(u.Path, "/"), "/")
		if u.Host == "" || bucket == "" {
			return nil, fmt.Errorf("want minio://endpoint/bucket/prefix, got %q", target)
		}
		bs, err := miniostore.Dial(miniostore.Config{
			Endpoint:  u.Host,
			AccessKey: a.cfg.Getenv("MINIO_ACCESS_KEY"),
			SecretKey: a.cfg.Getenv("MINIO_SECRET_KEY"),
			Region:    a.cfg.Getenv("MINIO_REGION"),
			Secure:    a.cfg.Getenv("MINIO_INSECURE") != "true",
		}, bucket, prefix)
		if err != nil {
			return nil, err
		}
		return bs, nil
	default:
		return nil, fmt.Errorf("unsupported backup target scheme %q", u.Scheme)
	}
}

func (c *cmdBackup) Run(a *app) error {
	bs, err := a.blobStore(c.Target)
	if err != nil {
		return err
	}
	return a.withDB(true, func(db *lexkv.DB) error {
		return db.Backup(a.ctx, bs, c.Name)
	})
}

func (c *cmdRestore) Run(a *app) error {
	bs, err := a.blobStore(c.Source)
	if err != nil {
		return err
	}
	return lexkv.RestoreBackup(a.ctx, bs, c.Name, a.cli.DB)
}

func (c *cmdDrop) Run(a *app) error {
	loc, err := a.location()
	if err != nil {
		return err
	}
	return lexkv.DeleteDatabase(a.ctx, loc)
}
