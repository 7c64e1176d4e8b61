package search

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"time"

	"github.com/poiesic/versegrounding/ai"
	"github.com/poiesic/versegrounding/core"
	"github.com/poiesic/versegrounding/index"
	"github.com/poiesic/versegrounding/lexical"
)

// DefaultQueryTimeout bounds the query embedding call.
const DefaultQueryTimeout = 5 * time.Second

// Request describes one retrieval.
type Request struct {
	Query      string
	Limit      int
	MinScore   float64
	Strictness core.Strictness
}

// Searcher retrieves chunks by semantic similarity with a lexical fallback.
// It holds a read-only snapshot of the chunk set and vector index.
type Searcher struct {
	chunks       []*core.Chunk
	index        *index.Index
	embedder     ai.Embedder
	scorer       *lexical.Scorer
	policy       Policy
	queryTimeout time.Duration
	monitor      SearchMonitor
	logger       *slog.Logger
}

// Option configures a Searcher.
type Option func(*Searcher) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Searcher) error {
		if logger == nil {
			logger = slog.Default()
		}
		s.logger = logger
		return nil
	}
}

// WithPolicy replaces the strictness margins.
func WithPolicy(policy Policy) Option {
	return func(s *Searcher) error {
		if err := policy.Validate(); err != nil {
			return err
		}
		s.policy = policy
		return nil
	}
}

// WithQueryTimeout bounds the query embedding call.
// Default is DefaultQueryTimeout. Zero disables the bound.
func WithQueryTimeout(d time.Duration) Option {
	return func(s *Searcher) error {
		if d < 0 {
			return ErrInvalidTimeout
		}
		s.queryTimeout = d
		return nil
	}
}

// WithScorer replaces the lexical scorer.
func WithScorer(scorer *lexical.Scorer) Option {
	return func(s *Searcher) error {
		if scorer != nil {
			s.scorer = scorer
		}
		return nil
	}
}

// WithMonitor sets the monitor used when Retrieve is called.
func WithMonitor(monitor SearchMonitor) Option {
	return func(s *Searcher) error {
		s.monitor = monitor
		return nil
	}
}

// NewSearcher creates a searcher over chunks. A nil embedder or nil index
// disables the semantic phase; lexical search still covers every chunk.
func NewSearcher(chunks []*core.Chunk, idx *index.Index, embedder ai.Embedder, opts ...Option) (*Searcher, error) {
	if idx == nil {
		idx = index.Empty()
	}
	s := &Searcher{
		chunks:       chunks,
		index:        idx,
		embedder:     embedder,
		scorer:       lexical.NewScorer(),
		policy:       DefaultPolicy(),
		queryTimeout: DefaultQueryTimeout,
		logger:       slog.Default(),
	}

	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	s.logger = s.logger.With("component", "searcher")

	return s, nil
}

// SemanticAvailable reports whether the semantic phase can run.
func (s *Searcher) SemanticAvailable() bool {
	return s.embedder != nil && s.index.Len() > 0
}

// Policy returns the strictness policy in use.
func (s *Searcher) Policy() Policy {
	return s.policy
}

// Retrieve ranks chunks for req. It returns at most req.Limit results in
// descending score order and the statistics of the search. The only error
// is the context's; provider failures degrade to lexical results.
func (s *Searcher) Retrieve(ctx context.Context, req Request) ([]*core.SearchResult, *core.SearchStats, error) {
	return s.RetrieveWithMonitor(ctx, req, s.monitor)
}

// RetrieveWithMonitor is Retrieve with a per-call monitor.
// The monitor receives callbacks at each stage of the search process.
func (s *Searcher) RetrieveWithMonitor(ctx context.Context, req Request, monitor SearchMonitor) ([]*core.SearchResult, *core.SearchStats, error) {
	start := time.Now()
	if monitor == nil {
		monitor = &noopMonitor{}
	}
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	monitor.Start(req.Query, req.Strictness)

	effective := s.policy.EffectiveMinScore(req.MinScore, req.Strictness)
	stats := &core.SearchStats{
		Query:             req.Query,
		Strictness:        req.Strictness,
		EffectiveMinScore: effective,
		SemanticAvailable: s.SemanticAvailable(),
	}
	if req.Limit <= 0 {
		stats.Elapsed = time.Since(start)
		monitor.Finish(nil, stats)
		return []*core.SearchResult{}, stats, nil
	}
	candidates := 2 * req.Limit

	// 1. Semantic phase
	var semantic []index.Match
	semanticRan := false
	if stats.SemanticAvailable {
		matches, err := s.semanticSearch(ctx, req.Query, candidates, effective)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, nil, ctxErr
		}
		monitor.AfterSemanticSearch(matches, err)
		if err != nil {
			s.logger.Warn("query embedding failed, using lexical search for this query",
				"query", req.Query, "err", err)
		} else {
			semantic = matches
			semanticRan = true
		}
	}

	// 2. Lexical phase
	var lexicalMatches []lexical.Match
	if s.policy.AllowsFallback(req.Strictness) && (!semanticRan || len(semantic) < req.Limit) {
		keywords := lexical.ExtractKeywords(req.Query)
		lexicalMatches = s.scorer.Search(s.chunks, keywords, effective, candidates)
		stats.FallbackUsed = true
		monitor.AfterLexicalSearch(keywords, lexicalMatches)
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
	}

	// 3. Merge, rank and truncate
	results := merge(semantic, lexicalMatches)
	if len(results) > req.Limit {
		results = results[:req.Limit]
	}

	stats.SemanticHits = len(semantic)
	stats.LexicalHits = len(lexicalMatches)
	stats.TotalResults = len(results)
	if len(results) > 0 {
		stats.TopScore = results[0].Score
		stats.LowestScore = results[len(results)-1].Score
	}
	stats.Elapsed = time.Since(start)

	s.logger.Debug("search complete",
		"query", req.Query,
		"strictness", req.Strictness,
		"semantic", stats.SemanticHits,
		"lexical", stats.LexicalHits,
		"results", stats.TotalResults,
		"fallback", stats.FallbackUsed,
		"elapsed", stats.Elapsed)
	monitor.Finish(results, stats)

	return results, stats, nil
}

// semanticSearch embeds the query under the query timeout and ranks the index.
func (s *Searcher) semanticSearch(ctx context.Context, query string, topK int, minScore float64) ([]index.Match, error) {
	embedCtx := ctx
	if s.queryTimeout > 0 {
		var cancel context.CancelFunc
		embedCtx, cancel = context.WithTimeout(ctx, s.queryTimeout)
		defer cancel()
	}

	vector, err := s.embedQuery(embedCtx, query)
	if err != nil {
		return nil, err
	}
	return s.index.Search(vector, topK, minScore), nil
}

// embedQuery runs the embedder call but stops waiting as soon as ctx is done,
// even if the embedder ignores cancellation.
func (s *Searcher) embedQuery(ctx context.Context, query string) ([]float32, error) {
	type result struct {
		vector []float32
		err    error
	}
	done := make(chan result, 1)
	go func() {
		v, err := s.embedder.EmbedText(ctx, query)
		done <- result{v, err}
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-done:
		if r.err == nil && len(r.vector) == 0 {
			return nil, errEmptyQueryVector
		}
		return r.vector, r.err
	}
}

var errEmptyQueryVector = errors.New("embedder returned an empty query vector")

// merge combines semantic and lexical candidates, dropping lexical matches
// for chunks already found semantically, and sorts by descending score.
// Equal scores keep semantic results ahead of lexical ones.
func merge(semantic []index.Match, lexicalMatches []lexical.Match) []*core.SearchResult {
	results := make([]*core.SearchResult, 0, len(semantic)+len(lexicalMatches))
	seen := make(map[core.ID]bool, len(semantic))

	for _, m := range semantic {
		seen[m.Chunk.Id] = true
		results = append(results, &core.SearchResult{Chunk: m.Chunk, Score: m.Score, Source: core.MatchSemantic})
	}
	for _, m := range lexicalMatches {
		if seen[m.Chunk.Id] {
			continue
		}
		seen[m.Chunk.Id] = true
		results = append(results, &core.SearchResult{Chunk: m.Chunk, Score: m.Score, Source: core.MatchLexical})
	}

	slices.SortStableFunc(results, func(a, b *core.SearchResult) int {
		if a.Score > b.Score {
			return -1
		}
		if a.Score < b.Score {
			return 1
		}
		return 0
	})
	return results
}
