package tiervec

import (
	"github.com/hupe1980/tiervec/blobstore"
	"github.com/hupe1980/tiervec/codec"
	"github.com/hupe1980/tiervec/index"
	"github.com/hupe1980/tiervec/resource"
)

type options struct {
	logger              *Logger
	codec               codec.Codec
	store               blobstore.BlobStore
	maxDocsPerShard     int
	compressedDimension int
	distanceType        index.DistanceType
	indexKind           index.Kind
	resource            resource.Config
	metricsCollector    MetricsCollector
}

// Option configures Open behavior.
type Option func(*options)

// WithLogger configures structured logging for all store components.
// If nil is passed, a default text logger is used.
func WithLogger(l *Logger) Option {
	return func(o *options) {
		if l == nil {
			l = NewLogger(nil)
		}
		o.logger = l
	}
}

// WithCodec configures the codec used for the manifest and serialized
// document tables. If nil is passed, codec.Default is used.
func WithCodec(c codec.Codec) Option {
	return func(o *options) {
		if c == nil {
			c = codec.Default
		}
		o.codec = c
	}
}

// WithBlobStore overrides the default local-filesystem backend. The root
// path passed to Open is ignored when a blob store is supplied; use this to
// run on object storage (see the blobstore/s3 and blobstore/minio packages).
func WithBlobStore(bs blobstore.BlobStore) Option {
	return func(o *options) {
		o.store = bs
	}
}

// WithMaxDocsPerShard bounds the building shard. When the bound is reached
// the shard is finalized and a new one created. Defaults to 10000.
func WithMaxDocsPerShard(n int) Option {
	return func(o *options) {
		o.maxDocsPerShard = n
	}
}

// WithCompressedDimension sets the dimension embeddings are reduced to
// before indexing. Must not exceed the raw dimension. Defaults to the raw
// dimension (no reduction; values are still rounded to float16 precision).
func WithCompressedDimension(dim int) Option {
	return func(o *options) {
		o.compressedDimension = dim
	}
}

// WithDistanceType selects the scoring function. Defaults to cosine
// similarity.
func WithDistanceType(dt index.DistanceType) Option {
	return func(o *options) {
		o.distanceType = dt
	}
}

// WithIndexKind selects the index implementation used for new shards.
// Defaults to the scalar-quantized flat index.
func WithIndexKind(k index.Kind) Option {
	return func(o *options) {
		o.indexKind = k
	}
}

// WithResourceConfig bounds memory, search/persist concurrency and
// persistence IO throughput. The zero value means unlimited memory and IO
// with GOMAXPROCS search workers and one persist worker.
func WithResourceConfig(cfg resource.Config) Option {
	return func(o *options) {
		o.resource = cfg
	}
}

// WithMetricsCollector configures a metrics collector for monitoring
// operations. Pass nil to disable metrics collection.
//
// Example with BasicMetricsCollector:
//
//	metrics := &tiervec.BasicMetricsCollector{}
//	store, err := tiervec.Open(ctx, dir, 128,
//	    tiervec.WithMetricsCollector(metrics))
func WithMetricsCollector(mc MetricsCollector) Option {
	return func(o *options) {
		if mc == nil {
			mc = NoopMetricsCollector{}
		}
		o.metricsCollector = mc
	}
}

func applyOptions(optFns []Option) options {
	o := options{
		codec:            codec.Default,
		indexKind:        index.KindScalarQuantized,
		metricsCollector: NoopMetricsCollector{},
	}
	for _, fn := range optFns {
		fn(&o)
	}
	if o.logger == nil {
		o.logger = NewLogger(nil)
	}
	return o
}
