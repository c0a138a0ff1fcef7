package lexkv

import (
	"sync/atomic"
	"time"
)

// MetricsCollector defines an interface for collecting operational metrics.
// Implement this interface to integrate with monitoring systems like Prometheus.
//
// Example Prometheus integration:
//
//	type PrometheusCollector struct {
//	    writeCounter    *prometheus.CounterVec
//	    searchHistogram prometheus.Histogram
//	}
//
//	func (p *PrometheusCollector) RecordSearch(results int, d time.Duration, err error) {
//	    p.searchHistogram.Observe(d.Seconds())
//	}
type MetricsCollector interface {
	// RecordAdd is called after each add operation with the number of
	// records in the batch.
	RecordAdd(count int, duration time.Duration, err error)

	// RecordPut is called after each put operation.
	RecordPut(count int, duration time.Duration, err error)

	// RecordDelete is called after each delete with the number of removed
	// records.
	RecordDelete(removed int, duration time.Duration, err error)

	// RecordClear is called after each clear operation.
	RecordClear(duration time.Duration, err error)

	// RecordSearch is called after each search operation.
	RecordSearch(results int, duration time.Duration, err error)

	// RecordSnapshot is called after each persisted full-text snapshot.
	RecordSnapshot(size int, duration time.Duration, err error)

	// RecordRebuild is called after each full-text index rebuild.
	RecordRebuild(documents int, duration time.Duration, err error)
}

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordAdd(int, time.Duration, error)      {}
func (NoopMetricsCollector) RecordPut(int, time.Duration, error)      {}
func (NoopMetricsCollector) RecordDelete(int, time.Duration, error)   {}
func (NoopMetricsCollector) RecordClear(time.Duration, error)         {}
func (NoopMetricsCollector) RecordSearch(int, time.Duration, error)   {}
func (NoopMetricsCollector) RecordSnapshot(int, time.Duration, error) {}
func (NoopMetricsCollector) RecordRebuild(int, time.Duration, error)  {}

// BasicMetricsCollector provides simple in-memory metrics collection.
// Useful for debugging and basic monitoring without external dependencies.
type BasicMetricsCollector struct {
	AddCount         atomic.Int64
	AddRecords       atomic.Int64
	AddErrors        atomic.Int64
	PutCount         atomic.Int64
	PutRecords       atomic.Int64
	PutErrors        atomic.Int64
	DeleteCount      atomic.Int64
	DeleteRecords    atomic.Int64
	DeleteErrors     atomic.Int64
	ClearCount       atomic.Int64
	ClearErrors      atomic.Int64
	SearchCount      atomic.Int64
	SearchErrors     atomic.Int64
	SearchResults    atomic.Int64
	SearchTotalNanos atomic.Int64
	SnapshotCount    atomic.Int64
	SnapshotErrors   atomic.Int64
	SnapshotBytes    atomic.Int64
	RebuildCount     atomic.Int64
	RebuildErrors    atomic.Int64
	RebuildDocuments atomic.Int64
}

// RecordAdd implements MetricsCollector.
func (b *BasicMetricsCollector) RecordAdd(count int, _ time.Duration, err error) {
	b.AddCount.Add(1)
	if err != nil {
		b.AddErrors.Add(1)
		return
	}
	b.AddRecords.Add(int64(count))
}

// RecordPut implements MetricsCollector.
func (b *BasicMetricsCollector) RecordPut(count int, _ time.Duration, err error) {
	b.PutCount.Add(1)
	if err != nil {
		b.PutErrors.Add(1)
		return
	}
	b.PutRecords.Add(int64(count))
}

// RecordDelete implements MetricsCollector.
func (b *BasicMetricsCollector) RecordDelete(removed int, _ time.Duration, err error) {
	b.DeleteCount.Add(1)
	if err != nil {
		b.DeleteErrors.Add(1)
		return
	}
	b.DeleteRecords.Add(int64(removed))
}

// RecordClear implements MetricsCollector.
func (b *BasicMetricsCollector) RecordClear(_ time.Duration, err error) {
	b.ClearCount.Add(1)
	if err != nil {
		b.ClearErrors.Add(1)
	}
}

// RecordSearch implements MetricsCollector.
func (b *BasicMetricsCollector) RecordSearch(results int, duration time.Duration, err error) {
	b.SearchCount.Add(1)
	b.SearchTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.SearchErrors.Add(1)
		return
	}
	b.SearchResults.Add(int64(results))
}

// RecordSnapshot implements MetricsCollector.
func (b *BasicMetricsCollector) RecordSnapshot(size int, _ time.Duration, err error) {
	b.SnapshotCount.Add(1)
	if err != nil {
		b.SnapshotErrors.Add(1)
		return
	}
	b.SnapshotBytes.Add(int64(size))
}

// RecordRebuild implements MetricsCollector.
func (b *BasicMetricsCollector) RecordRebuild(documents int, _ time.Duration, err error) {
	b.RebuildCount.Add(1)
	if err != nil {
		b.RebuildErrors.Add(1)
		return
	}
	b.RebuildDocuments.Add(int64(documents))
}

// GetStats returns a snapshot of current metrics.
func (b *BasicMetricsCollector) GetStats() BasicMetricsStats {
	return BasicMetricsStats{
		AddCount:         b.AddCount.Load(),
		AddRecords:       b.AddRecords.Load(),
		AddErrors:        b.AddErrors.Load(),
		PutCount:         b.PutCount.Load(),
		PutRecords:       b.PutRecords.Load(),
		PutErrors:        b.PutErrors.Load(),
		DeleteCount:      b.DeleteCount.Load(),
		DeleteRecords:    b.DeleteRecords.Load(),
		DeleteErrors:     b.DeleteErrors.Load(),
		ClearCount:       b.ClearCount.Load(),
		ClearErrors:      b.ClearErrors.Load(),
		SearchCount:      b.SearchCount.Load(),
		SearchErrors:     b.SearchErrors.Load(),
		SearchResults:    b.SearchResults.Load(),
		SearchAvgNanos:   b.avgSearchNanos(),
		SnapshotCount:    b.SnapshotCount.Load(),
		SnapshotErrors:   b.SnapshotErrors.Load(),
		SnapshotBytes:    b.SnapshotBytes.Load(),
		RebuildCount:     b.RebuildCount.Load(),
		RebuildErrors:    b.RebuildErrors.Load(),
		RebuildDocuments: b.RebuildDocuments.Load(),
	}
}

func (b *BasicMetricsCollector) avgSearchNanos() int64 {
	count := b.SearchCount.Load()
	if count == 0 {
		return 0
	}
	return b.SearchTotalNanos.Load() / count
}

// BasicMetricsStats is a snapshot of BasicMetricsCollector state.
type BasicMetricsStats struct {
	AddCount         int64
	AddRecords       int64
	AddErrors        int64
	PutCount         int64
	PutRecords       int64
	PutErrors        int64
	DeleteCount      int64
	DeleteRecords    int64
	DeleteErrors     int64
	ClearCount       int64
	ClearErrors      int64
	SearchCount      int64
	SearchErrors     int64
	SearchResults    int64
	SearchAvgNanos   int64
	SnapshotCount    int64
	SnapshotErrors   int64
	SnapshotBytes    int64
	RebuildCount     int64
	RebuildErrors    int64
	RebuildDocuments int64
}
