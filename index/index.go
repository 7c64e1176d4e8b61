// Package index holds the in-memory vector index used for semantic search.
//
// An Index is built once from chunks and their embeddings and is read-only
// afterwards, so concurrent searches need no locking.
package index

import (
	"slices"

	"github.com/poiesic/versegrounding/core"
)

// Entry pairs a chunk with its embedding vector.
type Entry struct {
	Chunk  *core.Chunk
	Vector []float32
}

// Match is a chunk scored against a query vector.
type Match struct {
	Chunk *core.Chunk
	Score float64
}

// Index is an immutable set of indexed vectors in chunk order.
type Index struct {
	entries []Entry
	byID    map[core.ID]int
}

// Build creates an index over chunks that have a vector in vectors.
// Entries follow chunk order, which fixes tie-breaking for searches.
// Chunks without a vector are skipped.
func Build(chunks []*core.Chunk, vectors map[core.ID][]float32) *Index {
	idx := &Index{
		entries: make([]Entry, 0, len(vectors)),
		byID:    make(map[core.ID]int, len(vectors)),
	}
	for _, c := range chunks {
		v, ok := vectors[c.Id]
		if !ok || len(v) == 0 {
			continue
		}
		if _, dup := idx.byID[c.Id]; dup {
			continue
		}
		idx.byID[c.Id] = len(idx.entries)
		idx.entries = append(idx.entries, Entry{Chunk: c, Vector: v})
	}
	return idx
}

// Empty returns an index with no entries.
func Empty() *Index {
	return &Index{byID: map[core.ID]int{}}
}

// Len returns the number of indexed vectors.
func (idx *Index) Len() int {
	return len(idx.entries)
}

// vector returns the vector stored for id.
func (idx *Index) vector(id core.ID) ([]float32, bool) {
	i, ok := idx.byID[id]
	if !ok {
		return nil, false
	}
	return idx.entries[i].Vector, true
}

// Search ranks every entry by cosine similarity to query and returns up to
// topK matches scoring at least minScore, highest first. Equal scores keep
// index order.
func (idx *Index) Search(query []float32, topK int, minScore float64) []Match {
	if topK <= 0 || len(query) == 0 {
		return nil
	}

	var matches []Match
	for _, e := range idx.entries {
		score := Cosine(query, e.Vector)
		if score >= minScore {
			matches = append(matches, Match{Chunk: e.Chunk, Score: score})
		}
	}

	slices.SortStableFunc(matches, func(a, b Match) int {
		if a.Score > b.Score {
			return -1
		}
		if a.Score < b.Score {
			return 1
		}
		return 0
	})

	if len(matches) > topK {
		matches = matches[:topK]
	}
	return matches
}
