// Package engine coordinates fan-out searches across shards.
//
// A query is compressed once, probed against every eligible shard
// concurrently with a per-shard overfetch, and the per-shard hits are merged
// into a single ranking. A failing shard contributes zero hits; partial
// results beat no results.
package engine

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hupe1980/tiervec/index"
	"github.com/hupe1980/tiervec/manifest"
	"github.com/hupe1980/tiervec/metadata"
	"github.com/hupe1980/tiervec/model"
	"github.com/hupe1980/tiervec/quantization"
	"github.com/hupe1980/tiervec/resource"
	"github.com/hupe1980/tiervec/shard"
)

// OverfetchFactor is how many candidates each shard returns per requested
// result. Per-shard rankings disagree, so merging needs slack.
const OverfetchFactor = 2

// DefaultTiers are searched when the caller does not name any.
var DefaultTiers = []model.Tier{model.TierHot, model.TierWarm}

// SearchOptions tune a single fan-out search.
type SearchOptions struct {
	// Tiers restricts the search. Empty means DefaultTiers; the cold tier
	// is only probed when named explicitly.
	Tiers []model.Tier

	// Filter restricts results by metadata. Nil matches everything.
	Filter *metadata.FilterSet
}

// Coordinator fans searches out across the shard topology.
type Coordinator struct {
	mgr    *shard.Manager
	rc     *resource.Controller
	comp   quantization.Codec
	logger *slog.Logger

	searches    atomic.Int64
	searchNanos atomic.Int64
}

// NewCoordinator creates a search coordinator. rc and logger may be nil.
func NewCoordinator(mgr *shard.Manager, rc *resource.Controller, comp quantization.Codec, logger *slog.Logger) *Coordinator {
	if rc == nil {
		rc = resource.NewController(resource.Config{})
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		mgr:    mgr,
		rc:     rc,
		comp:   comp,
		logger: logger,
	}
}

// Search returns the k best-scoring documents across all eligible shards,
// sorted by score descending. Ties are broken in favor of the most recently
// created shard: creation time, unlike last-update time, does not change
// when a shard migrates between tiers, so tie order is stable across
// migrations. Shards that fail to load or probe are logged and skipped.
//
// Cancelling ctx abandons the wait and returns; outstanding shard probes
// finish in the background and are discarded.
func (c *Coordinator) Search(ctx context.Context, query []float32, k int, opts SearchOptions) ([]model.SearchResult, error) {
	if k <= 0 {
		return nil, index.ErrInvalidK
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	start := time.Now()

	q, err := c.comp.Compress(query)
	if err != nil {
		return nil, err
	}

	tiers := opts.Tiers
	if len(tiers) == 0 {
		tiers = DefaultTiers
	}

	infos := c.mgr.Eligible(tiers)
	if len(infos) == 0 {
		c.observe(start)
		return []model.SearchResult{}, nil
	}

	overfetch := k * OverfetchFactor
	perShard := make([][]model.SearchResult, len(infos))

	var wg sync.WaitGroup
	for i, info := range infos {
		wg.Add(1)
		go func(i int, info manifest.ShardInfo) {
			defer wg.Done()
			_ = c.rc.RunSearch(ctx, func() error {
				perShard[i] = c.probeShard(ctx, info, q, overfetch, opts.Filter)
				return nil
			})
		}(i, info)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	merged := c.merge(infos, perShard, k)
	c.observe(start)
	return merged, nil
}

// probeShard runs one shard probe. Any failure yields zero hits.
func (c *Coordinator) probeShard(ctx context.Context, info manifest.ShardInfo, q []float32, k int, filter *metadata.FilterSet) []model.SearchResult {
	sh, err := c.mgr.Get(ctx, info.ID)
	if err != nil {
		c.logger.Warn("shard unavailable during search", "shard", info.ID, "error", err)
		return nil
	}

	results, err := sh.Search(q, k, filter)
	if err != nil {
		c.logger.Warn("shard probe failed", "shard", info.ID, "error", err)
		return nil
	}
	return results
}

// merge flattens per-shard hits into one ranking: score descending, then
// newer shard first, then document ID for stability.
func (c *Coordinator) merge(infos []manifest.ShardInfo, perShard [][]model.SearchResult, k int) []model.SearchResult {
	createdAt := make(map[string]time.Time, len(infos))
	for _, info := range infos {
		createdAt[info.ID] = info.CreatedAt
	}

	total := 0
	for _, r := range perShard {
		total += len(r)
	}
	merged := make([]model.SearchResult, 0, total)
	for _, r := range perShard {
		merged = append(merged, r...)
	}

	slices.SortFunc(merged, func(a, b model.SearchResult) int {
		switch {
		case a.Score > b.Score:
			return -1
		case a.Score < b.Score:
			return 1
		}
		at, bt := createdAt[a.ShardID], createdAt[b.ShardID]
		switch {
		case at.After(bt):
			return -1
		case bt.After(at):
			return 1
		}
		switch {
		case a.Document.ID < b.Document.ID:
			return -1
		case a.Document.ID > b.Document.ID:
			return 1
		}
		return 0
	})

	if len(merged) > k {
		merged = merged[:k]
	}
	return merged
}

func (c *Coordinator) observe(start time.Time) {
	c.searches.Add(1)
	c.searchNanos.Add(int64(time.Since(start)))
}

// Stats returns the number of searches served and their mean latency.
func (c *Coordinator) Stats() (count int64, avg time.Duration) {
	count = c.searches.Load()
	if count == 0 {
		return 0, 0
	}
	return count, time.Duration(c.searchNanos.Load() / count)
}
