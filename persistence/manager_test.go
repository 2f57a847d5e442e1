package persistence

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/hupe1980/tiervec/blobstore"
	"github.com/hupe1980/tiervec/model"
	"github.com/hupe1980/tiervec/resource"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T) (*Manager, blobstore.BlobStore) {
	t.Helper()

	store := blobstore.NewLocalStore(t.TempDir())
	m := NewManager(store, resource.NewController(resource.Config{PersistWorkers: 2}), nil)
	t.Cleanup(func() { _ = m.Close() })

	return m, store
}

func testArtifacts() Artifacts {
	return Artifacts{
		Index:     bytes.Repeat([]byte{0x01, 0x02, 0x03, 0x04}, 256),
		Metadata:  bytes.Repeat([]byte("meta"), 128),
		Summaries: []byte(`[{"id":"doc-1","summary":"hello"}]`),
	}
}

func TestManager_WriteReadShard(t *testing.T) {
	m, store := newTestManager(t)
	ctx := context.Background()
	art := testArtifacts()

	require.NoError(t, m.WriteShard(ctx, model.TierHot, "hot_2025_Q1_001", art))

	// Artifacts land under the tier directory.
	names, err := store.List(ctx, "hot_index/hot_2025_Q1_001")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{
		"hot_index/hot_2025_Q1_001/index.bin",
		"hot_index/hot_2025_Q1_001/metadata.bin",
		"hot_index/hot_2025_Q1_001/summaries.json",
	}, names)

	got, err := m.ReadShard(ctx, model.TierHot, "hot_2025_Q1_001")
	require.NoError(t, err)
	assert.Equal(t, art.Index, got.Index)
	assert.Equal(t, art.Metadata, got.Metadata)
	assert.Equal(t, art.Summaries, got.Summaries)
}

func TestManager_SummariesArePlainJSON(t *testing.T) {
	m, store := newTestManager(t)
	ctx := context.Background()

	require.NoError(t, m.WriteShard(ctx, model.TierHot, "s1", testArtifacts()))

	// summaries.json must stay readable with any JSON tool, no envelope.
	blob, err := store.Open(ctx, "hot_index/s1/summaries.json")
	require.NoError(t, err)
	raw, err := blobstore.ReadAll(ctx, blob)
	require.NoError(t, err)

	var summaries []map[string]any
	require.NoError(t, json.Unmarshal(raw, &summaries))
	require.NoError(t, blob.Close())
	require.Len(t, summaries, 1)
	assert.Equal(t, "doc-1", summaries[0]["id"])
}

func TestManager_ReadMissingShard(t *testing.T) {
	m, _ := newTestManager(t)

	_, err := m.ReadShard(context.Background(), model.TierHot, "nope")
	assert.ErrorIs(t, err, blobstore.ErrNotFound)
}

func TestManager_DeleteShard(t *testing.T) {
	m, store := newTestManager(t)
	ctx := context.Background()

	require.NoError(t, m.WriteShard(ctx, model.TierWarm, "s1", testArtifacts()))
	require.NoError(t, m.DeleteShard(ctx, model.TierWarm, "s1"))

	names, err := store.List(ctx, "warm_index")
	require.NoError(t, err)
	assert.Empty(t, names)

	// Deleting again is a no-op.
	require.NoError(t, m.DeleteShard(ctx, model.TierWarm, "s1"))
}

func TestManager_MoveShard(t *testing.T) {
	m, store := newTestManager(t)
	ctx := context.Background()
	art := testArtifacts()

	require.NoError(t, m.WriteShard(ctx, model.TierHot, "s1", art))
	require.NoError(t, m.MoveShard(ctx, "s1", model.TierHot, model.TierWarm))

	// Source is gone, target readable.
	names, err := store.List(ctx, "hot_index")
	require.NoError(t, err)
	assert.Empty(t, names)

	got, err := m.ReadShard(ctx, model.TierWarm, "s1")
	require.NoError(t, err)
	assert.Equal(t, art.Index, got.Index)

	// Target artifacts carry the warm-tier envelope.
	blob, err := store.Open(ctx, "warm_index/s1/index.bin")
	require.NoError(t, err)
	raw, err := blobstore.ReadAll(ctx, blob)
	require.NoError(t, err)
	assert.Equal(t, byte(CompressionZSTD), raw[0])
	require.NoError(t, blob.Close())
}

func TestManager_ShardSize(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	size, err := m.ShardSize(ctx, model.TierHot, "absent")
	require.NoError(t, err)
	assert.Zero(t, size)

	require.NoError(t, m.WriteShard(ctx, model.TierHot, "s1", testArtifacts()))

	size, err = m.ShardSize(ctx, model.TierHot, "s1")
	require.NoError(t, err)
	assert.Positive(t, size)
}

func TestManager_Closed(t *testing.T) {
	m, _ := newTestManager(t)
	require.NoError(t, m.Close())

	err := m.WriteShard(context.Background(), model.TierHot, "s1", testArtifacts())
	assert.ErrorIs(t, err, ErrManagerClosed)

	_, err = m.ReadShard(context.Background(), model.TierHot, "s1")
	assert.ErrorIs(t, err, ErrManagerClosed)
}
