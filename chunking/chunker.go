// Package chunking splits a passage corpus into retrievable chunks.
//
// Every strategy is a pure function of its input: the same passages in the
// same order always yield chunks with the same identities in the same order.
// Chunk identities are the cache keys for persisted embeddings, so any
// change here invalidates existing caches.
package chunking

import (
	"strconv"
	"strings"

	"github.com/poiesic/versegrounding/core"
)

// DefaultGroupSize is the number of passages merged by the grouped strategy.
const DefaultGroupSize = 3

// Chunker converts passages into chunks according to a strategy.
type Chunker struct {
	groupSize int
}

// Option configures a Chunker.
type Option func(*Chunker)

// WithGroupSize sets the number of passages per chunk for the grouped strategy.
// Values below 1 fall back to DefaultGroupSize.
func WithGroupSize(size int) Option {
	return func(c *Chunker) {
		if size < 1 {
			size = DefaultGroupSize
		}
		c.groupSize = size
	}
}

// New creates a Chunker.
func New(opts ...Option) *Chunker {
	c := &Chunker{groupSize: DefaultGroupSize}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Chunk splits passages according to strategy. Unknown strategies are
// treated as StrategySingle.
func (c *Chunker) Chunk(passages []core.Passage, strategy core.Strategy) []*core.Chunk {
	var chunks []*core.Chunk
	switch strategy {
	case core.StrategyContext:
		chunks = contextChunks(passages)
	case core.StrategyGrouped:
		chunks = groupedChunks(passages, c.groupSize)
	default:
		chunks = singleChunks(passages)
	}
	return dedupe(chunks)
}

func singleChunks(passages []core.Passage) []*core.Chunk {
	chunks := make([]*core.Chunk, 0, len(passages))
	for i := range passages {
		chunks = append(chunks, newPassageChunk(&passages[i], core.StrategySingle))
	}
	return chunks
}

func contextChunks(passages []core.Passage) []*core.Chunk {
	chunks := make([]*core.Chunk, 0, len(passages))
	for i := range passages {
		chunk := newPassageChunk(&passages[i], core.StrategyContext)
		if i > 0 && sameSection(&passages[i-1], &passages[i]) {
			chunk.PrevContext = passages[i-1].Text
		}
		if i+1 < len(passages) && sameSection(&passages[i], &passages[i+1]) {
			chunk.NextContext = passages[i+1].Text
		}
		chunks = append(chunks, chunk)
	}
	return chunks
}

func groupedChunks(passages []core.Passage, size int) []*core.Chunk {
	var chunks []*core.Chunk
	for start := 0; start < len(passages); {
		end := start + 1
		for end < len(passages) && end-start < size && sameSection(&passages[start], &passages[end]) {
			end++
		}
		chunks = append(chunks, newGroupChunk(passages[start:end]))
		start = end
	}
	return chunks
}

func newPassageChunk(p *core.Passage, strategy core.Strategy) *core.Chunk {
	ref := p.Reference()
	key := core.ChunkKey(p.Book, p.Chapter, p.Verse, p.Verse, strategy, p.Translation)
	return &core.Chunk{
		Id:          core.IDFromContent(key),
		Key:         key,
		Text:        ref + ": " + p.Text,
		Reference:   ref,
		Book:        p.Book,
		Chapter:     p.Chapter,
		VerseStart:  p.Verse,
		VerseEnd:    p.Verse,
		Translation: p.Translation,
		Strategy:    strategy,
	}
}

// newGroupChunk merges a run of passages from one section, tagging each
// sub-passage with its verse number.
func newGroupChunk(group []core.Passage) *core.Chunk {
	first, last := &group[0], &group[len(group)-1]

	ref := first.Reference()
	if last.Verse != first.Verse {
		ref += "-" + strconv.Itoa(last.Verse)
	}

	var sb strings.Builder
	sb.WriteString(ref)
	sb.WriteString(":")
	for i := range group {
		sb.WriteString(" [")
		sb.WriteString(strconv.Itoa(group[i].Verse))
		sb.WriteString("] ")
		sb.WriteString(group[i].Text)
	}

	key := core.ChunkKey(first.Book, first.Chapter, first.Verse, last.Verse, core.StrategyGrouped, first.Translation)
	return &core.Chunk{
		Id:          core.IDFromContent(key),
		Key:         key,
		Text:        sb.String(),
		Reference:   ref,
		Book:        first.Book,
		Chapter:     first.Chapter,
		VerseStart:  first.Verse,
		VerseEnd:    last.Verse,
		Translation: first.Translation,
		Strategy:    core.StrategyGrouped,
	}
}

func sameSection(a, b *core.Passage) bool {
	return a.Book == b.Book && a.Chapter == b.Chapter && a.Translation == b.Translation
}

// dedupe drops chunks whose identity was already produced, keeping the first.
func dedupe(chunks []*core.Chunk) []*core.Chunk {
	seen := make(map[core.ID]struct{}, len(chunks))
	out := chunks[:0]
	for _, c := range chunks {
		if _, ok := seen[c.Id]; ok {
			continue
		}
		seen[c.Id] = struct{}{}
		out = append(out, c)
	}
	return out
}
