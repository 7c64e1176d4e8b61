package badger

import (
	"context"
	"testing"

	"github.com/poiesic/versegrounding/core"
	"github.com/poiesic/versegrounding/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testChunks(n int) []*core.Chunk {
	chunks := make([]*core.Chunk, n)
	for i := range chunks {
		key := core.ChunkKey("Isaiah", 40, i+28, i+28, core.StrategyContext, "WEB")
		chunks[i] = &core.Chunk{Id: core.IDFromContent(key), Key: key}
	}
	return chunks
}

func testVectors(chunks []*core.Chunk) map[core.ID][]float32 {
	vectors := make(map[core.ID][]float32, len(chunks))
	for i, c := range chunks {
		vectors[c.Id] = []float32{0.25, float32(i), -1}
	}
	return vectors
}

func TestCacheStore_LoadMissing(t *testing.T) {
	store, err := NewMemoryCacheStore()
	require.NoError(t, err)
	defer store.Close()

	_, err = store.Load(context.Background(), storage.Metadata{}, nil)
	assert.ErrorIs(t, err, storage.ErrCacheMiss)
}

func TestCacheStore_PersistThenLoad(t *testing.T) {
	ctx := context.Background()
	store, err := NewMemoryCacheStore()
	require.NoError(t, err)
	defer store.Close()

	chunks := testChunks(5)
	vectors := testVectors(chunks)
	meta := storage.Metadata{ModelID: "embeddinggemma", Strategy: core.StrategyContext, ChunkCount: len(chunks)}

	require.NoError(t, store.Persist(ctx, meta, vectors))

	loaded, err := store.Load(ctx, meta, chunks)
	require.NoError(t, err)
	assert.Equal(t, vectors, loaded)

	stale := meta
	stale.ChunkCount = 6
	_, err = store.Load(ctx, stale, chunks)
	assert.ErrorIs(t, err, storage.ErrCacheStale)
}

func TestCacheStore_NamedCachesAreIndependent(t *testing.T) {
	ctx := context.Background()
	backend, err := OpenBackend("", true)
	require.NoError(t, err)
	defer backend.Close()

	kjv := NewCacheStore(backend, WithCacheName("kjv"))
	web := NewCacheStore(backend, WithCacheName("web"))

	chunks := testChunks(2)
	meta := storage.Metadata{ModelID: "m", Strategy: core.StrategyContext, ChunkCount: 2}
	require.NoError(t, kjv.Persist(ctx, meta, testVectors(chunks)))

	_, err = web.Load(ctx, meta, chunks)
	assert.ErrorIs(t, err, storage.ErrCacheMiss)

	// Shared backend stays open after closing a non-owning store.
	require.NoError(t, kjv.Close())
	assert.False(t, backend.IsClosed())
}

func TestCacheStore_Clear(t *testing.T) {
	ctx := context.Background()
	store, err := NewMemoryCacheStore()
	require.NoError(t, err)
	defer store.Close()

	chunks := testChunks(1)
	meta := storage.Metadata{ModelID: "m", Strategy: core.StrategyContext, ChunkCount: 1}
	require.NoError(t, store.Persist(ctx, meta, testVectors(chunks)))
	require.NoError(t, store.Clear(ctx))

	_, err = store.Load(ctx, meta, chunks)
	assert.ErrorIs(t, err, storage.ErrCacheMiss)

	require.NoError(t, store.Clear(ctx))
}

func TestCacheStore_Closed(t *testing.T) {
	store, err := NewMemoryCacheStore()
	require.NoError(t, err)
	require.NoError(t, store.Close())

	_, err = store.Load(context.Background(), storage.Metadata{}, nil)
	assert.ErrorIs(t, err, storage.ErrStorageClosed)
	assert.NoError(t, store.Close())
}

func TestCacheStore_OnDisk(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	chunks := testChunks(3)
	vectors := testVectors(chunks)
	meta := storage.Metadata{ModelID: "m", Strategy: core.StrategyContext, ChunkCount: 3}

	store, err := OpenCacheStore(dir, false)
	require.NoError(t, err)
	require.NoError(t, store.Persist(ctx, meta, vectors))
	require.NoError(t, store.Close())

	reopened, err := OpenCacheStore(dir, false)
	require.NoError(t, err)
	defer reopened.Close()

	loaded, err := reopened.Load(ctx, meta, chunks)
	require.NoError(t, err)
	assert.Equal(t, vectors, loaded)
}
