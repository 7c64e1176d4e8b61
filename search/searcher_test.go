package search

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/poiesic/versegrounding/ai/mock"
	"github.com/poiesic/versegrounding/chunking"
	"github.com/poiesic/versegrounding/core"
	"github.com/poiesic/versegrounding/index"
	"github.com/poiesic/versegrounding/lexical"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testPassages = []core.Passage{
	{Book: "John", Chapter: 3, Verse: 16, Testament: "NT", Translation: "KJV",
		Text: "For God so loved the world, that he gave his only begotten Son"},
	{Book: "1 John", Chapter: 4, Verse: 8, Testament: "NT", Translation: "KJV",
		Text: "He that loveth not knoweth not God; for God is love."},
	{Book: "Genesis", Chapter: 1, Verse: 1, Testament: "OT", Translation: "KJV",
		Text: "In the beginning God created the heaven and the earth."},
	{Book: "Psalms", Chapter: 23, Verse: 1, Testament: "OT", Translation: "KJV",
		Text: "The LORD is my shepherd; I shall not want."},
}

var testVocabulary = []string{"love", "god", "beginning", "world"}

// newTestSearcher indexes the test passages with bag-of-words vectors and
// returns a searcher whose query embeddings go through embedder.
func newTestSearcher(t *testing.T, passages []core.Passage, embedder *mock.MockEmbedder, opts ...Option) *Searcher {
	t.Helper()
	chunks := chunking.New().Chunk(passages, core.StrategySingle)

	var idx *index.Index
	if embedder != nil {
		bag := mock.BagOfWords(testVocabulary...)
		vectors := make(map[core.ID][]float32, len(chunks))
		for _, c := range chunks {
			v, err := bag(context.Background(), c.Text)
			require.NoError(t, err)
			vectors[c.Id] = v
		}
		idx = index.Build(chunks, vectors)
		s, err := NewSearcher(chunks, idx, embedder, opts...)
		require.NoError(t, err)
		return s
	}

	s, err := NewSearcher(chunks, nil, nil, opts...)
	require.NoError(t, err)
	return s
}

func bagEmbedder() *mock.MockEmbedder {
	return mock.NewMockEmbedder().WithEmbedTextFunc(mock.BagOfWords(testVocabulary...))
}

func references(results []*core.SearchResult) []string {
	refs := make([]string, len(results))
	for i, r := range results {
		refs[i] = r.Chunk.Reference
	}
	return refs
}

func assertWellFormed(t *testing.T, results []*core.SearchResult, limit int) {
	t.Helper()
	assert.LessOrEqual(t, len(results), limit)
	seen := make(map[core.ID]bool)
	for i, r := range results {
		assert.False(t, seen[r.Chunk.Id], "duplicate chunk %s", r.Chunk.Reference)
		seen[r.Chunk.Id] = true
		if i > 0 {
			assert.GreaterOrEqual(t, results[i-1].Score, r.Score)
		}
	}
}

func TestNewSearcher(t *testing.T) {
	t.Run("invalid policy", func(t *testing.T) {
		p := DefaultPolicy()
		p.BalancedFloor = 2
		_, err := NewSearcher(nil, nil, nil, WithPolicy(p))
		assert.ErrorIs(t, err, ErrInvalidPolicy)
	})

	t.Run("negative timeout", func(t *testing.T) {
		_, err := NewSearcher(nil, nil, nil, WithQueryTimeout(-time.Second))
		assert.ErrorIs(t, err, ErrInvalidTimeout)
	})

	t.Run("semantic availability", func(t *testing.T) {
		assert.False(t, newTestSearcher(t, testPassages, nil).SemanticAvailable())
		assert.True(t, newTestSearcher(t, testPassages, bagEmbedder()).SemanticAvailable())
	})
}

func TestRetrieve_SemanticOnly(t *testing.T) {
	s := newTestSearcher(t, testPassages, bagEmbedder())

	results, stats, err := s.Retrieve(context.Background(), Request{
		Query: "God is love", Limit: 2, MinScore: 0.3, Strictness: core.StrictnessBalanced,
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"1 John 4:8", "John 3:16"}, references(results))
	for _, r := range results {
		assert.Equal(t, core.MatchSemantic, r.Source)
	}
	assert.Equal(t, 3, stats.SemanticHits)
	assert.False(t, stats.FallbackUsed)
	assert.True(t, stats.SemanticAvailable)
	assert.Equal(t, 2, stats.TotalResults)
	assert.InDelta(t, 0.9487, stats.TopScore, 1e-3)
	assert.InDelta(t, 0.5, stats.LowestScore, 1e-6)
	assert.InDelta(t, 0.3, stats.EffectiveMinScore, 1e-9)
}

func TestRetrieve_MergeSkipsLexicalDuplicates(t *testing.T) {
	s := newTestSearcher(t, testPassages, bagEmbedder())

	results, stats, err := s.Retrieve(context.Background(), Request{
		Query: "shepherd god", Limit: 5, MinScore: 0.3, Strictness: core.StrictnessBalanced,
	})
	require.NoError(t, err)
	assertWellFormed(t, results, 5)

	assert.Equal(t, []string{"1 John 4:8", "John 3:16", "Genesis 1:1", "Psalms 23:1"}, references(results))
	assert.Equal(t, core.MatchLexical, results[3].Source)
	for _, r := range results[:3] {
		assert.Equal(t, core.MatchSemantic, r.Source)
	}
	assert.True(t, stats.FallbackUsed)
	assert.Equal(t, 3, stats.SemanticHits)
	assert.Equal(t, 4, stats.LexicalHits)
	assert.Equal(t, 4, stats.TotalResults)
}

func TestRetrieve_ProviderUnavailableUsesLexical(t *testing.T) {
	s := newTestSearcher(t, testPassages[:3], nil)

	results, stats, err := s.Retrieve(context.Background(), Request{
		Query: "love", Limit: 5, MinScore: 0.3, Strictness: core.StrictnessBalanced,
	})
	require.NoError(t, err)

	require.Len(t, results, 2)
	for _, r := range results {
		assert.Equal(t, core.MatchLexical, r.Source)
		assert.Contains(t, strings.ToLower(r.Chunk.Text), "love")
	}
	assert.Zero(t, stats.SemanticHits)
	assert.True(t, stats.FallbackUsed)
	assert.False(t, stats.SemanticAvailable)
}

func TestRetrieve_StopWordQuery(t *testing.T) {
	s := newTestSearcher(t, testPassages, nil)

	assert.Empty(t, lexical.ExtractKeywords("the a of"))

	results, stats, err := s.Retrieve(context.Background(), Request{
		Query: "the a of", Limit: 5, MinScore: 0.3, Strictness: core.StrictnessRelaxed,
	})
	require.NoError(t, err)
	assert.Empty(t, results)
	assert.Zero(t, stats.LexicalHits)
}

func TestRetrieve_StrictNeverFallsBack(t *testing.T) {
	s := newTestSearcher(t, testPassages, bagEmbedder())
	req := Request{Query: "shepherd", Limit: 5, MinScore: 0.3, Strictness: core.StrictnessStrict}

	results, stats, err := s.Retrieve(context.Background(), req)
	require.NoError(t, err)
	assert.Empty(t, results)
	assert.False(t, stats.FallbackUsed)
	assert.Zero(t, stats.LexicalHits)

	req.Strictness = core.StrictnessBalanced
	results, stats, err = s.Retrieve(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, []string{"Psalms 23:1"}, references(results))
	assert.True(t, stats.FallbackUsed)
}

func TestRetrieve_StrictWithoutProvider(t *testing.T) {
	s := newTestSearcher(t, testPassages, nil)

	results, stats, err := s.Retrieve(context.Background(), Request{
		Query: "love", Limit: 5, MinScore: 0.3, Strictness: core.StrictnessStrict,
	})
	require.NoError(t, err)
	assert.Empty(t, results)
	assert.False(t, stats.FallbackUsed)
}

func TestRetrieve_QueryTimeoutFallsBackForThatQueryOnly(t *testing.T) {
	var stall atomic.Bool
	bag := mock.BagOfWords(testVocabulary...)
	embedder := mock.NewMockEmbedder().WithEmbedTextFunc(func(ctx context.Context, text string) ([]float32, error) {
		if stall.Load() {
			<-ctx.Done()
			return nil, ctx.Err()
		}
		return bag(ctx, text)
	})
	s := newTestSearcher(t, testPassages, embedder, WithQueryTimeout(20*time.Millisecond))
	req := Request{Query: "god", Limit: 3, MinScore: 0.3, Strictness: core.StrictnessBalanced}

	stall.Store(true)
	results, stats, err := s.Retrieve(context.Background(), req)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	for _, r := range results {
		assert.Equal(t, core.MatchLexical, r.Source)
	}
	assert.True(t, stats.FallbackUsed)
	assert.Zero(t, stats.SemanticHits)
	assert.True(t, stats.SemanticAvailable)

	stall.Store(false)
	results, stats, err = s.Retrieve(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, results, 3)
	for _, r := range results {
		assert.Equal(t, core.MatchSemantic, r.Source)
	}
	assert.Equal(t, 3, stats.SemanticHits)
	assert.False(t, stats.FallbackUsed)
}

func TestRetrieve_EmbedderIgnoringContextIsBounded(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	embedder := mock.NewMockEmbedder().WithEmbedTextFunc(func(ctx context.Context, text string) ([]float32, error) {
		<-release
		return nil, nil
	})
	s := newTestSearcher(t, testPassages, embedder, WithQueryTimeout(10*time.Millisecond))

	start := time.Now()
	results, stats, err := s.Retrieve(context.Background(), Request{
		Query: "love", Limit: 3, MinScore: 0.3, Strictness: core.StrictnessBalanced,
	})
	require.NoError(t, err)
	assert.Less(t, time.Since(start), time.Second)
	assert.NotEmpty(t, results)
	assert.True(t, stats.FallbackUsed)
}

func TestRetrieve_Cancelled(t *testing.T) {
	embedder := mock.NewMockEmbedder().WithEmbedTextFunc(func(ctx context.Context, text string) ([]float32, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	s := newTestSearcher(t, testPassages, embedder, WithQueryTimeout(time.Minute))

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	results, stats, err := s.Retrieve(ctx, Request{
		Query: "love", Limit: 3, MinScore: 0.3, Strictness: core.StrictnessBalanced,
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, results)
	assert.Nil(t, stats)
}

func TestRetrieve_AlreadyCancelled(t *testing.T) {
	s := newTestSearcher(t, testPassages, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results, _, err := s.Retrieve(ctx, Request{Query: "love", Limit: 3})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, results)
}

func TestRetrieve_NothingAvailable(t *testing.T) {
	s, err := NewSearcher(nil, nil, nil)
	require.NoError(t, err)

	results, stats, err := s.Retrieve(context.Background(), Request{
		Query: "love", Limit: 5, MinScore: 0.3,
	})
	require.NoError(t, err)
	assert.Empty(t, results)
	assert.Zero(t, stats.TotalResults)
}

func TestRetrieve_NonPositiveLimit(t *testing.T) {
	s := newTestSearcher(t, testPassages, bagEmbedder())

	results, stats, err := s.Retrieve(context.Background(), Request{Query: "love", Limit: 0})
	require.NoError(t, err)
	assert.Empty(t, results)
	assert.Zero(t, stats.TotalResults)
}

func TestRetrieve_LimitAndOrdering(t *testing.T) {
	s := newTestSearcher(t, testPassages, bagEmbedder())
	queries := []string{"love", "god", "the beginning", "shepherd god love world", "earth heaven"}
	strictness := []core.Strictness{core.StrictnessStrict, core.StrictnessBalanced, core.StrictnessRelaxed}

	for _, q := range queries {
		for _, st := range strictness {
			for limit := 1; limit <= 5; limit++ {
				results, stats, err := s.Retrieve(context.Background(), Request{
					Query: q, Limit: limit, MinScore: 0.3, Strictness: st,
				})
				require.NoError(t, err)
				assertWellFormed(t, results, limit)
				assert.Equal(t, len(results), stats.TotalResults)
				if st == core.StrictnessStrict {
					assert.False(t, stats.FallbackUsed)
				}
			}
		}
	}
}

func TestRetrieve_ConcurrentCallers(t *testing.T) {
	s := newTestSearcher(t, testPassages, bagEmbedder())

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results, _, err := s.Retrieve(context.Background(), Request{
				Query: "God is love", Limit: 2, MinScore: 0.3,
			})
			assert.NoError(t, err)
			assert.Len(t, results, 2)
		}()
	}
	wg.Wait()
}

type recordingMonitor struct {
	mu       sync.Mutex
	events   []string
	keywords []string
	stats    *core.SearchStats
}

func (m *recordingMonitor) Start(query string, _ core.Strictness) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, "start:"+query)
}

func (m *recordingMonitor) AfterSemanticSearch(_ []index.Match, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err != nil {
		m.events = append(m.events, "semantic-error")
		return
	}
	m.events = append(m.events, "semantic")
}

func (m *recordingMonitor) AfterLexicalSearch(keywords []string, _ []lexical.Match) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, "lexical")
	m.keywords = keywords
}

func (m *recordingMonitor) Finish(_ []*core.SearchResult, stats *core.SearchStats) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, "finish")
	m.stats = stats
}

func TestRetrieveWithMonitor(t *testing.T) {
	s := newTestSearcher(t, testPassages, bagEmbedder())
	monitor := &recordingMonitor{}

	_, stats, err := s.RetrieveWithMonitor(context.Background(), Request{
		Query: "shepherd god", Limit: 5, MinScore: 0.3,
	}, monitor)
	require.NoError(t, err)

	assert.Equal(t, []string{"start:shepherd god", "semantic", "lexical", "finish"}, monitor.events)
	assert.Equal(t, []string{"shepherd", "god"}, monitor.keywords)
	assert.Same(t, stats, monitor.stats)
}

func TestRetrieve_UsesConfiguredMonitor(t *testing.T) {
	monitor := &recordingMonitor{}
	s := newTestSearcher(t, testPassages, nil, WithMonitor(monitor))

	_, _, err := s.Retrieve(context.Background(), Request{Query: "love", Limit: 1})
	require.NoError(t, err)
	assert.Equal(t, []string{"start:love", "lexical", "finish"}, monitor.events)
}
