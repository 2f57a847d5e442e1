package blobstore

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalStore_Lifecycle(t *testing.T) {
	ctx := context.Background()
	store := NewLocalStore(t.TempDir())

	name := "hot_index/shard-001/index.bin"
	data := []byte("serialized index payload")

	require.NoError(t, store.Put(ctx, name, data))

	// Nested directories were created and the blob is visible on disk.
	_, err := os.Stat(filepath.Join(store.Root(), "hot_index", "shard-001", "index.bin"))
	require.NoError(t, err)

	blob, err := store.Open(ctx, name)
	require.NoError(t, err)
	assert.Equal(t, int64(len(data)), blob.Size())

	got, err := ReadAll(ctx, blob)
	require.NoError(t, err)
	assert.Equal(t, data, got)
	require.NoError(t, blob.Close())

	// Overwrite is atomic and replaces the payload.
	require.NoError(t, store.Put(ctx, name, []byte("v2")))
	blob, err = store.Open(ctx, name)
	require.NoError(t, err)
	got, err = ReadAll(ctx, blob)
	require.NoError(t, err)
	assert.Equal(t, []byte("v2"), got)
	require.NoError(t, blob.Close())

	require.NoError(t, store.Delete(ctx, name))
	_, err = store.Open(ctx, name)
	assert.ErrorIs(t, err, ErrNotFound)

	// Empty shard directory was pruned.
	_, err = os.Stat(filepath.Join(store.Root(), "hot_index", "shard-001"))
	assert.True(t, os.IsNotExist(err))

	// Deleting again is not an error.
	assert.NoError(t, store.Delete(ctx, name))
}

func TestLocalStore_List(t *testing.T) {
	ctx := context.Background()
	store := NewLocalStore(t.TempDir())

	require.NoError(t, store.Put(ctx, "hot_index/s1/index.bin", []byte("a")))
	require.NoError(t, store.Put(ctx, "hot_index/s1/metadata.bin", []byte("b")))
	require.NoError(t, store.Put(ctx, "warm_index/s2/index.bin", []byte("c")))

	names, err := store.List(ctx, "hot_index/s1")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{
		"hot_index/s1/index.bin",
		"hot_index/s1/metadata.bin",
	}, names)

	names, err = store.List(ctx, "cold_archive")
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestLocalStore_ReadAt(t *testing.T) {
	ctx := context.Background()
	store := NewLocalStore(t.TempDir())

	require.NoError(t, store.Put(ctx, "blob.bin", []byte("0123456789")))

	blob, err := store.Open(ctx, "blob.bin")
	require.NoError(t, err)
	defer blob.Close()

	buf := make([]byte, 4)
	n, err := blob.ReadAt(ctx, buf, 3)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, []byte("3456"), buf)
}
