package tiervec

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hupe1980/tiervec/blobstore"
	"github.com/hupe1980/tiervec/engine"
	"github.com/hupe1980/tiervec/index"
	"github.com/hupe1980/tiervec/manifest"
	"github.com/hupe1980/tiervec/model"
	"github.com/hupe1980/tiervec/persistence"
	"github.com/hupe1980/tiervec/quantization"
	"github.com/hupe1980/tiervec/resource"
	"github.com/hupe1980/tiervec/shard"
)

// Document is one stored record.
type Document = model.VectorDocument

// SearchResult is one scored hit. Higher scores are better.
type SearchResult = model.SearchResult

// Tier is the storage class of a shard.
type Tier = model.Tier

// Storage tiers. New shards are hot; finalized shards migrate to warm and
// cold. Cold shards are excluded from search unless requested explicitly.
const (
	TierHot  = model.TierHot
	TierWarm = model.TierWarm
	TierCold = model.TierCold
)

// Store is a persistent tiered vector store. All methods are safe for
// concurrent use.
type Store struct {
	rawDim int

	rc    *resource.Controller
	pm    *persistence.Manager
	mgr   *shard.Manager
	coord *engine.Coordinator
	comp  quantization.Codec

	logger  *Logger
	metrics MetricsCollector

	mu     sync.Mutex
	closed bool
}

// Open opens (or creates) a store rooted at the given directory. dimension
// is the raw embedding dimension callers will supply.
//
// The shard manifest is loaded and every hot shard's artifacts are read
// back eagerly; shards whose artifacts are damaged are dropped from the
// manifest with a warning. A manifest that cannot be decoded fails Open
// with ErrCorruptManifest.
func Open(ctx context.Context, root string, dimension int, optFns ...Option) (*Store, error) {
	o := applyOptions(optFns)

	if dimension <= 0 {
		return nil, &ErrInvalidDimension{Dimension: dimension}
	}
	compressedDim := o.compressedDimension
	if compressedDim == 0 {
		compressedDim = dimension
	}
	if compressedDim < 0 || compressedDim > dimension {
		return nil, &ErrInvalidDimension{Dimension: compressedDim}
	}

	comp, err := quantization.NewMeanPool(dimension, compressedDim)
	if err != nil {
		return nil, fmt.Errorf("compression codec: %w", err)
	}

	bs := o.store
	if bs == nil {
		bs = blobstore.NewLocalStore(root)
	}

	rc := resource.NewController(o.resource)
	pm := persistence.NewManager(bs, rc, o.logger.Logger)
	ms := manifest.NewStore(bs, o.codec)

	mgr := shard.NewManager(shard.Config{
		MaxDocsPerShard: o.maxDocsPerShard,
		RawDimension:    dimension,
		Dimension:       compressedDim,
		Distance:        o.distanceType,
		Kind:            o.indexKind,
	}, pm, ms, o.logger.Logger)

	if err := mgr.Open(ctx); err != nil {
		return nil, err
	}

	o.logger.Info("store opened",
		"dimension", dimension,
		"compressed_dimension", compressedDim,
		"distance", o.distanceType.String(),
		"shards", len(mgr.Shards()),
	)

	return &Store{
		rawDim:  dimension,
		rc:      rc,
		pm:      pm,
		mgr:     mgr,
		coord:   engine.NewCoordinator(mgr, rc, comp, o.logger.Logger),
		comp:    comp,
		logger:  o.logger,
		metrics: o.metricsCollector,
	}, nil
}

// AddDocument compresses the document's embedding and appends it to the
// building shard, rotating to a new shard when the capacity bound is hit.
func (s *Store) AddDocument(ctx context.Context, doc Document) error {
	start := time.Now()
	err := s.addDocument(ctx, doc)
	s.metrics.RecordInsert(time.Since(start), err)

	return err
}

func (s *Store) addDocument(ctx context.Context, doc Document) error {
	if err := s.checkOpen(); err != nil {
		return err
	}

	if len(doc.Embedding) != s.rawDim {
		return &index.ErrDimensionMismatch{Expected: s.rawDim, Actual: len(doc.Embedding)}
	}

	compressed, err := s.comp.Compress(doc.Embedding)
	if err != nil {
		return fmt.Errorf("compress embedding: %w", err)
	}
	doc.Embedding = compressed

	if doc.Timestamp.IsZero() {
		doc.Timestamp = time.Now()
	}

	// A handle from Current can fill up under a concurrent writer; the
	// shard rejects the overflow and the next Current rotates.
	for {
		sh, err := s.mgr.Current(ctx)
		if err != nil {
			return err
		}
		if err := sh.Add(doc); !errors.Is(err, shard.ErrShardFull) {
			return err
		}
	}
}

// AddDocumentsBatch adds documents one at a time and returns the number
// that succeeded. A failing document is skipped; its error is joined into
// the returned error while the rest of the batch continues.
func (s *Store) AddDocumentsBatch(ctx context.Context, docs []Document) (int, error) {
	start := time.Now()

	var (
		added int
		errs  []error
	)

	for _, doc := range docs {
		if err := s.addDocument(ctx, doc); err != nil {
			if errors.Is(err, ErrStoreClosed) || ctx.Err() != nil {
				errs = append(errs, err)

				break
			}

			s.logger.Warn("document rejected", "id", doc.ID, "error", err)
			errs = append(errs, fmt.Errorf("document %q: %w", doc.ID, err))

			continue
		}

		added++
	}

	s.metrics.RecordBatchInsert(len(docs), len(docs)-added, time.Since(start))

	return added, errors.Join(errs...)
}

// SearchOptions tune a single search.
type SearchOptions = engine.SearchOptions

// SearchSimilar returns the k most similar documents across all eligible
// shards, sorted by score descending. The query is compressed with the same
// codec as stored embeddings. By default the hot and warm tiers are
// searched; name the cold tier in opts to include it.
func (s *Store) SearchSimilar(ctx context.Context, query []float32, k int, optFns ...func(o *SearchOptions)) ([]SearchResult, error) {
	start := time.Now()
	results, err := s.searchSimilar(ctx, query, k, optFns...)
	s.metrics.RecordSearch(k, time.Since(start), err)

	return results, err
}

func (s *Store) searchSimilar(ctx context.Context, query []float32, k int, optFns ...func(o *SearchOptions)) ([]SearchResult, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	if len(query) != s.rawDim {
		return nil, &index.ErrDimensionMismatch{Expected: s.rawDim, Actual: len(query)}
	}

	opts := SearchOptions{}
	for _, fn := range optFns {
		fn(&opts)
	}

	return s.coord.Search(ctx, query, k, opts)
}

// MigrateShard moves a finalized shard's artifacts to the given tier and
// records the move in the manifest. Migrating to the current tier is a
// no-op; the building shard cannot be migrated.
func (s *Store) MigrateShard(ctx context.Context, shardID string, tier Tier) error {
	start := time.Now()
	err := s.migrateShard(ctx, shardID, tier)
	s.metrics.RecordMigrate(time.Since(start), err)

	return err
}

func (s *Store) migrateShard(ctx context.Context, shardID string, tier Tier) error {
	if err := s.checkOpen(); err != nil {
		return err
	}

	return s.mgr.Migrate(ctx, shardID, tier)
}

// RemoveShard deletes a finalized shard's artifacts and drops it from the
// manifest. The building shard cannot be removed.
func (s *Store) RemoveShard(ctx context.Context, shardID string) error {
	if err := s.checkOpen(); err != nil {
		return err
	}

	return s.mgr.Remove(ctx, shardID)
}

// EvictIdleShards releases the in-memory state of finalized shards that
// have not been searched for maxIdle. Evicted shards are reloaded from
// their artifacts transparently on the next search. Returns the number of
// shards evicted.
func (s *Store) EvictIdleShards(maxIdle time.Duration) int {
	if err := s.checkOpen(); err != nil {
		return 0
	}

	return s.mgr.EvictIdle(maxIdle)
}

// FinalizeActive finalizes the building shard regardless of how full it is.
// The next AddDocument starts a fresh shard.
func (s *Store) FinalizeActive(ctx context.Context) error {
	if err := s.checkOpen(); err != nil {
		return err
	}

	return s.mgr.FinalizeActive(ctx)
}

// Flush persists the building shard's current contents without finalizing
// it, so an unclean shutdown loses at most the documents added since the
// last flush.
func (s *Store) Flush(ctx context.Context) error {
	if err := s.checkOpen(); err != nil {
		return err
	}

	return s.mgr.Flush(ctx)
}

// Shards returns a snapshot of the shard topology.
func (s *Store) Shards() []manifest.ShardInfo {
	return s.mgr.Shards()
}

// Metrics returns an aggregate snapshot of store state.
func (s *Store) Metrics() Metrics {
	byTier := s.mgr.CountByTier()
	total := 0
	for _, n := range byTier {
		total += n
	}

	_, avg := s.coord.Stats()

	return Metrics{
		TotalDocuments:   s.mgr.TotalDocs(),
		TotalShards:      total,
		HotShards:        byTier[model.TierHot],
		WarmShards:       byTier[model.TierWarm],
		ColdShards:       byTier[model.TierCold],
		CompressionRatio: s.comp.Ratio(),
		AvgSearchTimeMs:  float64(avg.Nanoseconds()) / 1e6,
		StorageSizeMB:    float64(s.mgr.StorageBytes()) / (1024 * 1024),
	}
}

// Close flushes the building shard and the manifest and shuts the store
// down. Close is idempotent.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	ctx := context.Background()

	err := s.mgr.Close(ctx)
	if cerr := s.pm.Close(); err == nil {
		err = cerr
	}

	s.logger.Info("store closed")

	return err
}

func (s *Store) checkOpen() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}

	return nil
}
