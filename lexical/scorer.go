// Package lexical implements keyword overlap scoring used when semantic
// search is unavailable or returns too few results.
package lexical

import (
	"slices"
	"strings"

	"github.com/poiesic/versegrounding/core"
)

const (
	// DefaultBoostBonus is added per matched boost term.
	DefaultBoostBonus = 0.1
	// DefaultWholeWordBonus is added per keyword matched as a whole word.
	DefaultWholeWordBonus = 0.05
)

// Match is a chunk scored against a keyword set.
type Match struct {
	Chunk *core.Chunk
	Score float64
}

// Scorer scores chunk text against query keywords.
type Scorer struct {
	boostBonus     float64
	wholeWordBonus float64
}

// Option configures a Scorer.
type Option func(*Scorer)

// WithBoostBonus sets the bonus added per matched boost term.
func WithBoostBonus(bonus float64) Option {
	return func(s *Scorer) {
		s.boostBonus = bonus
	}
}

// WithWholeWordBonus sets the bonus added per whole-word match.
func WithWholeWordBonus(bonus float64) Option {
	return func(s *Scorer) {
		s.wholeWordBonus = bonus
	}
}

// NewScorer creates a Scorer with default bonuses.
func NewScorer(opts ...Option) *Scorer {
	s := &Scorer{
		boostBonus:     DefaultBoostBonus,
		wholeWordBonus: DefaultWholeWordBonus,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Score rates text against keywords in [0, 1]. The base score is the share
// of keywords found as substrings; boost terms and whole-word matches add
// bonuses. Returns 0 when keywords is empty.
func (s *Scorer) Score(text string, keywords []string) float64 {
	if len(keywords) == 0 {
		return 0
	}

	lower := strings.ToLower(text)
	words := make(map[string]bool)
	for _, w := range tokenize(lower) {
		words[w] = true
	}

	var matched int
	var bonus float64
	for _, kw := range keywords {
		if !strings.Contains(lower, kw) {
			continue
		}
		matched++
		if boostTerms[kw] {
			bonus += s.boostBonus
		}
		if words[kw] {
			bonus += s.wholeWordBonus
		}
	}

	if matched == 0 {
		return 0
	}
	score := float64(matched)/float64(len(keywords)) + bonus
	if score > 1 {
		return 1
	}
	return score
}

// Search scores every chunk and returns up to limit matches scoring at
// least minScore, highest first. Equal scores keep chunk order.
func (s *Scorer) Search(chunks []*core.Chunk, keywords []string, minScore float64, limit int) []Match {
	if len(keywords) == 0 || limit <= 0 {
		return nil
	}

	var matches []Match
	for _, c := range chunks {
		score := s.Score(c.Text, keywords)
		if score > 0 && score >= minScore {
			matches = append(matches, Match{Chunk: c, Score: score})
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

	if len(matches) > limit {
		matches = matches[:limit]
	}
	return matches
}
