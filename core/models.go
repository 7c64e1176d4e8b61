package core

import (
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-crypt/x/blake2b"
)

// ID is a unique identifier for chunks.
// It is derived from a chunk's canonical key with content-based hashing.
type ID uint64

// IDFromContent generates a deterministic ID from text content using BLAKE2b hashing.
// This ensures that identical content produces identical IDs.
func IDFromContent(text string) ID {
	h, _ := blake2b.New(8, nil) // 8 bytes = 64 bits
	h.Write([]byte(text))
	sum := h.Sum(nil)
	return ID(binary.LittleEndian.Uint64(sum))
}

// Passage is an atomic unit of source text, typically one verse.
// Passages are owned by the corpus source and never modified by the engine.
type Passage struct {
	Book        string
	Chapter     int
	Verse       int
	Testament   string // "OT", "NT" or any part tag used by the corpus
	Translation string
	Text        string
}

// Reference returns the human readable label "Book C:V".
func (p *Passage) Reference() string {
	return p.Book + " " + strconv.Itoa(p.Chapter) + ":" + strconv.Itoa(p.Verse)
}

// Strategy identifies how passages are grouped into chunks.
type Strategy string

const (
	// StrategySingle produces one chunk per passage.
	StrategySingle Strategy = "single"
	// StrategyContext produces one chunk per passage carrying its neighbours as context.
	StrategyContext Strategy = "context"
	// StrategyGrouped merges consecutive passages of a chapter into one chunk.
	StrategyGrouped Strategy = "grouped"
)

// ParseStrategy converts a configuration string into a Strategy.
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(strings.ToLower(strings.TrimSpace(s))) {
	case StrategySingle, "":
		return StrategySingle, nil
	case StrategyContext:
		return StrategyContext, nil
	case StrategyGrouped:
		return StrategyGrouped, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidStrategy, s)
}

// Chunk is a retrievable unit derived from one or more passages.
// Chunks are immutable once created by the chunker.
type Chunk struct {
	Id          ID
	Key         string // Canonical identity: book|chapter|start-end|strategy|translation
	Text        string // Indexed text, reference included
	Reference   string
	Book        string
	Chapter     int
	VerseStart  int
	VerseEnd    int
	Translation string
	Strategy    Strategy
	PrevContext string // Preceding passage text (context strategy only)
	NextContext string // Following passage text (context strategy only)
}

// ChunkKey builds the canonical identity string for a chunk.
func ChunkKey(book string, chapter, verseStart, verseEnd int, strategy Strategy, translation string) string {
	var sb strings.Builder
	sb.WriteString(book)
	sb.WriteByte('|')
	sb.WriteString(strconv.Itoa(chapter))
	sb.WriteByte('|')
	sb.WriteString(strconv.Itoa(verseStart))
	sb.WriteByte('-')
	sb.WriteString(strconv.Itoa(verseEnd))
	sb.WriteByte('|')
	sb.WriteString(string(strategy))
	sb.WriteByte('|')
	sb.WriteString(translation)
	return sb.String()
}

// Strictness controls score leniency and whether lexical fallback may run.
type Strictness int

const (
	// StrictnessBalanced lowers the minimum score slightly and allows fallback.
	StrictnessBalanced Strictness = iota
	// StrictnessStrict uses the minimum score unchanged and never falls back.
	StrictnessStrict
	// StrictnessRelaxed lowers the minimum score further and allows fallback.
	StrictnessRelaxed
)

// String returns the lowercase name of the strictness level.
func (s Strictness) String() string {
	switch s {
	case StrictnessStrict:
		return "strict"
	case StrictnessRelaxed:
		return "relaxed"
	default:
		return "balanced"
	}
}

// ParseStrictness converts a configuration string into a Strictness.
func ParseStrictness(s string) (Strictness, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "balanced", "":
		return StrictnessBalanced, nil
	case "strict":
		return StrictnessStrict, nil
	case "relaxed":
		return StrictnessRelaxed, nil
	}
	return StrictnessBalanced, fmt.Errorf("%w: %q", ErrInvalidStrictness, s)
}

// MatchSource records which search phase produced a result.
type MatchSource int

const (
	MatchSemantic MatchSource = iota + 1
	MatchLexical
)

func (m MatchSource) String() string {
	if m == MatchLexical {
		return "lexical"
	}
	return "semantic"
}

// SearchResult represents a retrieved chunk with its relevance score.
type SearchResult struct {
	Chunk  *Chunk
	Score  float64
	Source MatchSource
}

// SearchStats describes the most recent search.
type SearchStats struct {
	Query             string
	SemanticHits      int
	LexicalHits       int
	TotalResults      int
	TopScore          float64
	LowestScore       float64
	Elapsed           time.Duration
	Strictness        Strictness
	EffectiveMinScore float64
	FallbackUsed      bool
	SemanticAvailable bool
}
