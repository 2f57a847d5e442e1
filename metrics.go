package tiervec

import (
	"sync/atomic"
	"time"
)

// Metrics is an aggregate snapshot of store state.
type Metrics struct {
	// TotalDocuments counts documents across all shards, including the
	// building shard's unflushed documents.
	TotalDocuments int `json:"total_documents"`

	// TotalShards counts all shards in the manifest.
	TotalShards int `json:"total_shards"`

	HotShards  int `json:"hot_shards"`
	WarmShards int `json:"warm_shards"`
	ColdShards int `json:"cold_shards"`

	// CompressionRatio is the raw-to-compressed dimension ratio of the
	// embedding pipeline. Binary16 rounding reduces precision, not size,
	// so it does not contribute here.
	CompressionRatio float64 `json:"compression_ratio"`

	// AvgSearchTimeMs is the mean wall time per Search call since Open.
	AvgSearchTimeMs float64 `json:"avg_search_time_ms"`

	// StorageSizeMB sums the persisted artifact sizes recorded in the
	// manifest.
	StorageSizeMB float64 `json:"storage_size_mb"`
}

// MetricsCollector receives per-operation measurements. Implement it to
// integrate with monitoring systems such as Prometheus.
type MetricsCollector interface {
	// RecordInsert is called after each AddDocument.
	RecordInsert(duration time.Duration, err error)

	// RecordBatchInsert is called after each AddDocumentsBatch. count is
	// the number of documents attempted, failed the number rejected.
	RecordBatchInsert(count, failed int, duration time.Duration)

	// RecordSearch is called after each search. k is the number of
	// results requested.
	RecordSearch(k int, duration time.Duration, err error)

	// RecordMigrate is called after each shard migration.
	RecordMigrate(duration time.Duration, err error)
}

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordInsert(time.Duration, error)         {}
func (NoopMetricsCollector) RecordBatchInsert(int, int, time.Duration) {}
func (NoopMetricsCollector) RecordSearch(int, time.Duration, error)    {}
func (NoopMetricsCollector) RecordMigrate(time.Duration, error)        {}

// BasicMetricsCollector provides simple in-memory metrics collection.
// Useful for debugging and basic monitoring without external dependencies.
type BasicMetricsCollector struct {
	InsertCount       atomic.Int64
	InsertErrors      atomic.Int64
	InsertTotalNanos  atomic.Int64
	BatchInsertCount  atomic.Int64
	BatchInsertItems  atomic.Int64
	BatchInsertFailed atomic.Int64
	SearchCount       atomic.Int64
	SearchErrors      atomic.Int64
	SearchTotalNanos  atomic.Int64
	MigrateCount      atomic.Int64
	MigrateErrors     atomic.Int64
}

// RecordInsert implements MetricsCollector.
func (b *BasicMetricsCollector) RecordInsert(duration time.Duration, err error) {
	b.InsertCount.Add(1)
	b.InsertTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.InsertErrors.Add(1)
	}
}

// RecordBatchInsert implements MetricsCollector.
func (b *BasicMetricsCollector) RecordBatchInsert(count, failed int, duration time.Duration) {
	b.BatchInsertCount.Add(1)
	b.BatchInsertItems.Add(int64(count))
	b.BatchInsertFailed.Add(int64(failed))
}

// RecordSearch implements MetricsCollector.
func (b *BasicMetricsCollector) RecordSearch(k int, duration time.Duration, err error) {
	b.SearchCount.Add(1)
	b.SearchTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.SearchErrors.Add(1)
	}
}

// RecordMigrate implements MetricsCollector.
func (b *BasicMetricsCollector) RecordMigrate(duration time.Duration, err error) {
	b.MigrateCount.Add(1)
	if err != nil {
		b.MigrateErrors.Add(1)
	}
}
