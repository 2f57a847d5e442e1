package engine

import (
	"context"
	"testing"
	"time"

	"github.com/hupe1980/tiervec/blobstore"
	"github.com/hupe1980/tiervec/index"
	"github.com/hupe1980/tiervec/manifest"
	"github.com/hupe1980/tiervec/metadata"
	"github.com/hupe1980/tiervec/model"
	"github.com/hupe1980/tiervec/persistence"
	"github.com/hupe1980/tiervec/quantization"
	"github.com/hupe1980/tiervec/resource"
	"github.com/hupe1980/tiervec/shard"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testEnv struct {
	mgr   *shard.Manager
	coord *Coordinator
	store blobstore.BlobStore
}

func newTestEnv(t *testing.T, maxDocs int) *testEnv {
	t.Helper()

	store := blobstore.NewLocalStore(t.TempDir())
	pm := persistence.NewManager(store, nil, nil)
	ms := manifest.NewStore(store, nil)

	mgr := shard.NewManager(shard.Config{
		MaxDocsPerShard: maxDocs,
		RawDimension:    4,
		Dimension:       4,
		Kind:            index.KindFlat,
	}, pm, ms, nil)
	require.NoError(t, mgr.Open(context.Background()))

	comp, err := quantization.NewMeanPool(4, 4)
	require.NoError(t, err)

	return &testEnv{
		mgr:   mgr,
		coord: NewCoordinator(mgr, resource.NewController(resource.Config{}), comp, nil),
		store: store,
	}
}

func (e *testEnv) add(t *testing.T, id string, embedding []float32, meta metadata.Document) {
	t.Helper()

	sh, err := e.mgr.Current(context.Background())
	require.NoError(t, err)
	require.NoError(t, sh.Add(model.VectorDocument{
		ID:        id,
		Summary:   id,
		Embedding: embedding,
		Metadata:  meta,
		Timestamp: time.Now().UTC(),
	}))
}

func TestCoordinator_SearchRanking(t *testing.T) {
	env := newTestEnv(t, 10)
	ctx := context.Background()

	env.add(t, "a", []float32{1, 0, 0, 0}, nil)
	env.add(t, "b", []float32{0, 1, 0, 0}, nil)
	env.add(t, "c", []float32{0.5, 0.5, 0, 0}, nil)

	results, err := env.coord.Search(ctx, []float32{1, 0, 0, 0}, 2, SearchOptions{})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "a", results[0].Document.ID)
	assert.Equal(t, "c", results[1].Document.ID)
	assert.GreaterOrEqual(t, results[0].Score, results[1].Score)
}

func TestCoordinator_SearchAcrossShards(t *testing.T) {
	// Capacity 2 forces the corpus across two shards.
	env := newTestEnv(t, 2)
	ctx := context.Background()

	env.add(t, "a", []float32{1, 0, 0, 0}, nil)
	env.add(t, "b", []float32{0, 1, 0, 0}, nil)
	env.add(t, "c", []float32{0.9, 0.1, 0, 0}, nil)

	results, err := env.coord.Search(ctx, []float32{1, 0, 0, 0}, 2, SearchOptions{
		Tiers: []model.Tier{model.TierHot},
	})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "a", results[0].Document.ID)
	assert.Equal(t, "c", results[1].Document.ID)

	// Hits name the shard they came from.
	assert.NotEqual(t, results[0].ShardID, results[1].ShardID)
}

func TestCoordinator_TierEligibility(t *testing.T) {
	env := newTestEnv(t, 1)
	ctx := context.Background()

	env.add(t, "a", []float32{1, 0, 0, 0}, nil)
	env.add(t, "b", []float32{0, 1, 0, 0}, nil) // rotates, finalizing shard 1

	var finalizedID string
	for _, info := range env.mgr.Shards() {
		if info.State == model.StateFinalized {
			finalizedID = info.ID
		}
	}
	require.NoError(t, env.mgr.Migrate(ctx, finalizedID, model.TierWarm))

	t.Run("HotOnly", func(t *testing.T) {
		results, err := env.coord.Search(ctx, []float32{1, 0, 0, 0}, 10, SearchOptions{
			Tiers: []model.Tier{model.TierHot},
		})
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, "b", results[0].Document.ID)
	})

	t.Run("DefaultIncludesWarm", func(t *testing.T) {
		results, err := env.coord.Search(ctx, []float32{1, 0, 0, 0}, 10, SearchOptions{})
		require.NoError(t, err)
		assert.Len(t, results, 2)
		assert.Equal(t, "a", results[0].Document.ID)
	})

	t.Run("ColdExcludedByDefault", func(t *testing.T) {
		require.NoError(t, env.mgr.Migrate(ctx, finalizedID, model.TierCold))

		results, err := env.coord.Search(ctx, []float32{1, 0, 0, 0}, 10, SearchOptions{})
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, "b", results[0].Document.ID)

		// Explicitly naming the cold tier brings it back.
		results, err = env.coord.Search(ctx, []float32{1, 0, 0, 0}, 10, SearchOptions{
			Tiers: []model.Tier{model.TierHot, model.TierWarm, model.TierCold},
		})
		require.NoError(t, err)
		assert.Len(t, results, 2)
	})
}

func TestCoordinator_FailingShardYieldsZeroHits(t *testing.T) {
	env := newTestEnv(t, 1)
	ctx := context.Background()

	env.add(t, "a", []float32{1, 0, 0, 0}, nil)
	env.add(t, "b", []float32{0, 1, 0, 0}, nil)

	var finalizedID string
	for _, info := range env.mgr.Shards() {
		if info.State == model.StateFinalized {
			finalizedID = info.ID
		}
	}

	// Evict the shard and corrupt its artifact so the reload fails.
	env.mgr.EvictIdle(-time.Second)
	name := persistence.ArtifactName(model.TierHot, finalizedID, persistence.FileIndex)
	require.NoError(t, env.store.Put(ctx, name, []byte("garbage")))

	results, err := env.coord.Search(ctx, []float32{1, 0, 0, 0}, 10, SearchOptions{})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "b", results[0].Document.ID)
}

func TestCoordinator_TieBreakPrefersNewerShard(t *testing.T) {
	env := newTestEnv(t, 1)
	ctx := context.Background()

	// Identical embeddings in two shards: scores tie exactly.
	env.add(t, "older", []float32{0, 1, 0, 0}, nil)
	env.add(t, "newer", []float32{0, 1, 0, 0}, nil)

	results, err := env.coord.Search(ctx, []float32{0, 1, 0, 0}, 2, SearchOptions{})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "newer", results[0].Document.ID)
	assert.Equal(t, "older", results[1].Document.ID)
	assert.Equal(t, results[0].Score, results[1].Score)
}

func TestCoordinator_Filter(t *testing.T) {
	env := newTestEnv(t, 2)
	ctx := context.Background()

	env.add(t, "a", []float32{1, 0, 0, 0}, metadata.Document{"lang": metadata.String("go")})
	env.add(t, "b", []float32{0.9, 0.1, 0, 0}, metadata.Document{"lang": metadata.String("rust")})
	env.add(t, "c", []float32{0.8, 0.2, 0, 0}, metadata.Document{"lang": metadata.String("go")})

	results, err := env.coord.Search(ctx, []float32{1, 0, 0, 0}, 10, SearchOptions{
		Filter: metadata.NewFilterSet(metadata.Eq("lang", "go")),
	})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "a", results[0].Document.ID)
	assert.Equal(t, "c", results[1].Document.ID)
}

func TestCoordinator_InvalidK(t *testing.T) {
	env := newTestEnv(t, 10)

	_, err := env.coord.Search(context.Background(), []float32{1, 0, 0, 0}, 0, SearchOptions{})
	assert.ErrorIs(t, err, index.ErrInvalidK)
}

func TestCoordinator_EmptyStore(t *testing.T) {
	env := newTestEnv(t, 10)

	results, err := env.coord.Search(context.Background(), []float32{1, 0, 0, 0}, 5, SearchOptions{})
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestCoordinator_CanceledContext(t *testing.T) {
	env := newTestEnv(t, 10)
	env.add(t, "a", []float32{1, 0, 0, 0}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := env.coord.Search(ctx, []float32{1, 0, 0, 0}, 1, SearchOptions{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCoordinator_Stats(t *testing.T) {
	env := newTestEnv(t, 10)
	env.add(t, "a", []float32{1, 0, 0, 0}, nil)

	count, _ := env.coord.Stats()
	assert.Zero(t, count)

	_, err := env.coord.Search(context.Background(), []float32{1, 0, 0, 0}, 1, SearchOptions{})
	require.NoError(t, err)

	count, avg := env.coord.Stats()
	assert.Equal(t, int64(1), count)
	assert.GreaterOrEqual(t, avg, time.Duration(0))
}
