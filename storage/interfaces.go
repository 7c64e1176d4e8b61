package storage

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/poiesic/versegrounding/core"
)

// Metadata identifies the configuration a set of embeddings was produced
// under. A persisted cache is only usable when all three fields match.
type Metadata struct {
	ModelID    string
	Strategy   core.Strategy
	ChunkCount int
}

// CacheEntry pairs a chunk ID with its embedding vector.
type CacheEntry struct {
	ChunkId core.ID
	Vector  []float32
}

// CacheRecord is the persisted snapshot of an embedding cache.
// Records are loaded and written whole, never merged.
type CacheRecord struct {
	CreatedAt  time.Time
	ModelID    string
	Strategy   core.Strategy
	ChunkCount int
	Entries    []CacheEntry
}

// NewCacheRecord builds a record from meta and vectors. Entries are sorted
// by chunk ID so identical input always encodes identically.
func NewCacheRecord(meta Metadata, vectors map[core.ID][]float32, createdAt time.Time) *CacheRecord {
	entries := make([]CacheEntry, 0, len(vectors))
	for id, v := range vectors {
		entries = append(entries, CacheEntry{ChunkId: id, Vector: v})
	}
	slices.SortFunc(entries, func(a, b CacheEntry) int {
		switch {
		case a.ChunkId < b.ChunkId:
			return -1
		case a.ChunkId > b.ChunkId:
			return 1
		}
		return 0
	})
	return &CacheRecord{
		CreatedAt:  createdAt.UTC(),
		ModelID:    meta.ModelID,
		Strategy:   meta.Strategy,
		ChunkCount: meta.ChunkCount,
		Entries:    entries,
	}
}

// Matches returns ErrCacheStale when the record was produced under a
// different model, strategy or chunk count than meta.
func (r *CacheRecord) Matches(meta Metadata) error {
	if r.ModelID != meta.ModelID {
		return fmt.Errorf("%w: model %q, want %q", ErrCacheStale, r.ModelID, meta.ModelID)
	}
	if r.Strategy != meta.Strategy {
		return fmt.Errorf("%w: strategy %q, want %q", ErrCacheStale, r.Strategy, meta.Strategy)
	}
	if r.ChunkCount != meta.ChunkCount {
		return fmt.Errorf("%w: chunk count %d, want %d", ErrCacheStale, r.ChunkCount, meta.ChunkCount)
	}
	return nil
}

// Accept validates record against meta and returns the vectors whose chunk
// ID exists in chunks. Entries for unknown chunks are dropped.
func Accept(record *CacheRecord, meta Metadata, chunks []*core.Chunk) (map[core.ID][]float32, error) {
	if record == nil {
		return nil, ErrCacheMiss
	}
	if err := record.Matches(meta); err != nil {
		return nil, err
	}

	known := make(map[core.ID]struct{}, len(chunks))
	for _, c := range chunks {
		known[c.Id] = struct{}{}
	}

	vectors := make(map[core.ID][]float32, len(record.Entries))
	for _, e := range record.Entries {
		if _, ok := known[e.ChunkId]; !ok || len(e.Vector) == 0 {
			continue
		}
		vectors[e.ChunkId] = e.Vector
	}
	return vectors, nil
}

// Store persists and reloads chunk embeddings between runs.
// Implementations must serialize access so only one writer is active.
type Store interface {
	// Load reads the persisted record and returns the vectors usable for
	// chunks under meta. Returns ErrCacheMiss when nothing is stored,
	// ErrCacheStale on a metadata mismatch and ErrSerializationFailed when
	// the stored record cannot be decoded.
	Load(ctx context.Context, meta Metadata, chunks []*core.Chunk) (map[core.ID][]float32, error)

	// Persist replaces the stored record with vectors under meta. A failed
	// write must leave the previous record intact.
	Persist(ctx context.Context, meta Metadata, vectors map[core.ID][]float32) error

	// Clear deletes the stored record. Clearing an empty store is not an error.
	Clear(ctx context.Context) error

	// Close releases resources held by the store.
	Close() error
}
