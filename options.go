package lexkv

import (
	"log/slog"
	"time"

	"github.com/hupe1980/lexkv/backend/bolt"
	"github.com/hupe1980/lexkv/backend/sqlite"
	"github.com/hupe1980/lexkv/codec"
	"github.com/hupe1980/lexkv/fulltext"
)

// SnapshotMode controls when full-text snapshots are persisted.
type SnapshotMode uint8

const (
	// SnapshotAsync persists snapshots from a background goroutine after
	// commits, throttled by the snapshot interval. Close flushes them.
	SnapshotAsync SnapshotMode = iota
	// SnapshotSync writes the snapshot inside every write transaction that
	// touches a full-text store.
	SnapshotSync
	// SnapshotOff never persists snapshots. Indexes are rebuilt on open.
	SnapshotOff
)

func (m SnapshotMode) String() string {
	switch m {
	case SnapshotAsync:
		return "async"
	case SnapshotSync:
		return "sync"
	case SnapshotOff:
		return "off"
	default:
		return "unknown"
	}
}

// DefaultSnapshotInterval is the minimum delay between two background
// snapshot rounds.
const DefaultSnapshotInterval = time.Second

type options struct {
	codec               codec.Codec
	metricsCollector    MetricsCollector
	logger              *Logger
	snapshotMode        SnapshotMode
	snapshotInterval    time.Duration
	snapshotCompression fulltext.Compression
	readOnly            bool
	bolt                bolt.Options
	sqlite              sqlite.Options
}

// Option configures Open.
type Option func(*options)

// WithCodec configures the record codec. It is fixed when the database is
// created; reopening with another codec fails with a SchemaError.
//
// If nil is passed, codec.Default is used.
func WithCodec(c codec.Codec) Option {
	return func(o *options) {
		if c == nil {
			c = codec.Default
		}
		o.codec = c
	}
}

// WithMetricsCollector configures a metrics collector for monitoring operations.
// Pass nil to disable metrics collection.
//
// Example with BasicMetricsCollector:
//
//	metrics := &lexkv.BasicMetricsCollector{}
//	db, _ := lexkv.Open(ctx, lexkv.Bolt("app.db"), 1, s, lexkv.WithMetricsCollector(metrics))
//	// ... use db ...
//	stats := metrics.GetStats()
//	fmt.Printf("Searches: %d, Avg latency: %dns\n", stats.SearchCount, stats.SearchAvgNanos)
func WithMetricsCollector(mc MetricsCollector) Option {
	return func(o *options) {
		if mc == nil {
			mc = NoopMetricsCollector{}
		}
		o.metricsCollector = mc
	}
}

// WithLogger configures structured logging for operations.
// Pass nil to disable logging.
//
// Example with JSON logging:
//
//	logger := lexkv.NewJSONLogger(slog.LevelInfo)
//	db, _ := lexkv.Open(ctx, loc, 1, s, lexkv.WithLogger(logger))
func WithLogger(logger *Logger) Option {
	return func(o *options) {
		if logger == nil {
			logger = NoopLogger()
		}
		o.logger = logger
	}
}

// WithLogLevel creates a text logger with the specified level and sets it.
// Convenience wrapper for WithLogger(NewTextLogger(level)).
func WithLogLevel(level slog.Level) Option {
	return func(o *options) {
		o.logger = NewTextLogger(level)
	}
}

// WithSnapshotMode selects how full-text snapshots are persisted.
func WithSnapshotMode(mode SnapshotMode) Option {
	return func(o *options) {
		o.snapshotMode = mode
	}
}

// WithSnapshotInterval sets the minimum delay between background snapshot
// rounds in SnapshotAsync mode.
func WithSnapshotInterval(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.snapshotInterval = d
		}
	}
}

// WithSnapshotCompression sets the snapshot body compression (ZSTD by
// default).
func WithSnapshotCompression(c fulltext.Compression) Option {
	return func(o *options) {
		o.snapshotCompression = c
	}
}

// WithReadOnly opens an existing database without migrating it. Writes
// fail with ErrReadOnly and no snapshots are persisted.
func WithReadOnly() Option {
	return func(o *options) {
		o.readOnly = true
	}
}

// WithBoltOptions configures the bbolt backend.
func WithBoltOptions(opts bolt.Options) Option {
	return func(o *options) {
		o.bolt = opts
	}
}

// WithSQLiteOptions configures the SQLite backend.
func WithSQLiteOptions(opts sqlite.Options) Option {
	return func(o *options) {
		o.sqlite = opts
	}
}

func applyOptions(optFns []Option) options {
	o := options{
		codec:               codec.Default,
		metricsCollector:    NoopMetricsCollector{},
		logger:              NoopLogger(),
		snapshotMode:        SnapshotAsync,
		snapshotInterval:    DefaultSnapshotInterval,
		snapshotCompression: fulltext.CompressZSTD,
	}
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}
	if o.readOnly {
		o.bolt.ReadOnly = true
	}
	return o
}

type searchOptions struct {
	limit  int
	offset int
}

// SearchOption configures a search.
type SearchOption func(*searchOptions)

// WithLimit caps the number of results. Zero means unbounded.
func WithLimit(n int) SearchOption {
	return func(o *searchOptions) {
		o.limit = max(n, 0)
	}
}

// WithOffset skips the first n results after ranking.
func WithOffset(n int) SearchOption {
	return func(o *searchOptions) {
		o.offset = max(n, 0)
	}
}

func applySearchOptions(optFns []SearchOption) searchOptions {
	var o searchOptions
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}
	return o
}
