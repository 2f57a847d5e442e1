package manifest

import (
	"context"
	"testing"
	"time"

	"github.com/hupe1980/tiervec/blobstore"
	"github.com/hupe1980/tiervec/model"
	"github.com/hupe1980/tiervec/persistence"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func shardInfo(id string, tier model.Tier, state model.ShardState) ShardInfo {
	now := time.Now().UTC()
	return ShardInfo{
		ID:        id,
		Tier:      tier,
		State:     state,
		DocCount:  10,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestManifest_UpsertFindRemove(t *testing.T) {
	m := New(768, 256, "cosine")

	m.Upsert(shardInfo("hot_2025_Q1_001", model.TierHot, model.StateFinalized))
	m.Upsert(shardInfo("hot_2025_Q1_002", model.TierHot, model.StateBuilding))

	info, ok := m.Find("hot_2025_Q1_001")
	require.True(t, ok)
	assert.Equal(t, model.StateFinalized, info.State)

	// Upsert replaces in place
	info.DocCount = 99
	m.Upsert(info)
	got, _ := m.Find("hot_2025_Q1_001")
	assert.Equal(t, 99, got.DocCount)
	assert.Len(t, m.Shards, 2)

	assert.True(t, m.Remove("hot_2025_Q1_001"))
	assert.False(t, m.Remove("hot_2025_Q1_001"))
	_, ok = m.Find("hot_2025_Q1_001")
	assert.False(t, ok)
}

func TestManifest_RemoveClearsActive(t *testing.T) {
	m := New(4, 4, "cosine")
	m.Upsert(shardInfo("s1", model.TierHot, model.StateBuilding))
	m.ActiveShard = "s1"

	m.Remove("s1")
	assert.Empty(t, m.ActiveShard)
}

func TestManifest_ByTier(t *testing.T) {
	m := New(4, 4, "cosine")

	old := shardInfo("old", model.TierWarm, model.StateFinalized)
	old.CreatedAt = time.Now().Add(-time.Hour)
	m.Upsert(old)
	m.Upsert(shardInfo("new", model.TierWarm, model.StateFinalized))
	m.Upsert(shardInfo("hot", model.TierHot, model.StateBuilding))

	warm := m.ByTier(model.TierWarm)
	require.Len(t, warm, 2)
	assert.Equal(t, "new", warm[0].ID) // newest first

	counts := m.CountByTier()
	assert.Equal(t, 1, counts[model.TierHot])
	assert.Equal(t, 2, counts[model.TierWarm])
	assert.Equal(t, 30, m.TotalDocs())
}

func TestManifest_Validate(t *testing.T) {
	t.Run("Valid", func(t *testing.T) {
		m := New(4, 4, "cosine")
		m.Upsert(shardInfo("s1", model.TierHot, model.StateBuilding))
		m.ActiveShard = "s1"
		assert.NoError(t, m.Validate())
	})

	t.Run("TwoBuildingShards", func(t *testing.T) {
		m := New(4, 4, "cosine")
		m.Upsert(shardInfo("s1", model.TierHot, model.StateBuilding))
		m.Upsert(shardInfo("s2", model.TierHot, model.StateBuilding))
		assert.ErrorIs(t, m.Validate(), ErrCorrupt)
	})

	t.Run("BuildingOutsideHot", func(t *testing.T) {
		m := New(4, 4, "cosine")
		m.Upsert(shardInfo("s1", model.TierWarm, model.StateBuilding))
		assert.ErrorIs(t, m.Validate(), ErrCorrupt)
	})

	t.Run("DuplicateID", func(t *testing.T) {
		m := New(4, 4, "cosine")
		m.Shards = append(m.Shards,
			shardInfo("s1", model.TierHot, model.StateFinalized),
			shardInfo("s1", model.TierHot, model.StateFinalized),
		)
		assert.ErrorIs(t, m.Validate(), ErrCorrupt)
	})

	t.Run("DanglingActiveShard", func(t *testing.T) {
		m := New(4, 4, "cosine")
		m.ActiveShard = "ghost"
		assert.ErrorIs(t, m.Validate(), ErrCorrupt)
	})

	t.Run("WrongVersion", func(t *testing.T) {
		m := New(4, 4, "cosine")
		m.Version = 42
		assert.ErrorIs(t, m.Validate(), ErrCorrupt)
	})
}

func TestStore_SaveLoad(t *testing.T) {
	ctx := context.Background()
	bs := blobstore.NewLocalStore(t.TempDir())
	store := NewStore(bs, nil)

	// Missing manifest: fresh start
	m, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Nil(t, m)

	m = New(768, 256, "cosine")
	m.Upsert(shardInfo("hot_2025_Q1_001", model.TierHot, model.StateBuilding))
	m.ActiveShard = "hot_2025_Q1_001"
	require.NoError(t, store.Save(ctx, m))
	assert.Equal(t, uint64(1), m.Revision)

	got, err := store.Load(ctx)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, m.Dimension, got.Dimension)
	assert.Equal(t, m.ActiveShard, got.ActiveShard)
	require.Len(t, got.Shards, 1)
	assert.Equal(t, "hot_2025_Q1_001", got.Shards[0].ID)

	// Every save bumps the revision
	require.NoError(t, store.Save(ctx, m))
	assert.Equal(t, uint64(2), m.Revision)
}

func TestStore_LoadCorrupt(t *testing.T) {
	ctx := context.Background()
	bs := blobstore.NewLocalStore(t.TempDir())
	require.NoError(t, bs.Put(ctx, persistence.ManifestName, []byte("{not json")))

	store := NewStore(bs, nil)
	_, err := store.Load(ctx)
	assert.ErrorIs(t, err, ErrCorrupt)
}
