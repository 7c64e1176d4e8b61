package metrics

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/poiesic/versegrounding/chunking"
	"github.com/poiesic/versegrounding/core"
	"github.com/poiesic/versegrounding/index"
	"github.com/poiesic/versegrounding/lexical"
	"github.com/poiesic/versegrounding/search"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestMonitor(t *testing.T) (*Monitor, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	return NewMonitor(reg), reg
}

func TestMonitor_Finish(t *testing.T) {
	m, _ := newTestMonitor(t)

	m.Finish(make([]*core.SearchResult, 3), &core.SearchStats{
		Strictness:   core.StrictnessRelaxed,
		FallbackUsed: true,
		Elapsed:      10 * time.Millisecond,
	})
	m.Finish(nil, &core.SearchStats{Strictness: core.StrictnessStrict})

	assert.Equal(t, 1.0, testutil.ToFloat64(m.searchesTotal.WithLabelValues("relaxed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.searchesTotal.WithLabelValues("strict")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.fallbacksTotal.WithLabelValues("relaxed")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.fallbacksTotal.WithLabelValues("strict")))
}

func TestMonitor_PhaseHits(t *testing.T) {
	m, _ := newTestMonitor(t)

	m.AfterSemanticSearch(make([]index.Match, 4), nil)
	m.AfterSemanticSearch(nil, errors.New("timeout"))
	m.AfterLexicalSearch([]string{"love"}, make([]lexical.Match, 2))

	assert.Equal(t, 4.0, testutil.ToFloat64(m.hitsTotal.WithLabelValues("semantic")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.hitsTotal.WithLabelValues("lexical")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.queryEmbeddingFailuresTotal))
}

func TestMonitor_ObserveIndex(t *testing.T) {
	m, _ := newTestMonitor(t)

	m.ObserveIndex(31102, 31000, true)
	assert.Equal(t, 31102.0, testutil.ToFloat64(m.indexedChunks))
	assert.Equal(t, 31000.0, testutil.ToFloat64(m.indexedVectors))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.semanticAvailable))

	m.ObserveIndex(10, 0, false)
	assert.Equal(t, 0.0, testutil.ToFloat64(m.semanticAvailable))
}

func TestMonitor_WithSearcher(t *testing.T) {
	m, reg := newTestMonitor(t)
	chunks := chunking.New().Chunk([]core.Passage{
		{Book: "1 John", Chapter: 4, Verse: 8, Translation: "KJV", Text: "God is love."},
	}, core.StrategySingle)

	s, err := search.NewSearcher(chunks, nil, nil, search.WithMonitor(m))
	require.NoError(t, err)

	_, _, err = s.Retrieve(context.Background(), search.Request{Query: "love", Limit: 3, MinScore: 0.3})
	require.NoError(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.searchesTotal.WithLabelValues("balanced")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.hitsTotal.WithLabelValues("lexical")))

	count, err := testutil.GatherAndCount(reg, "versegrounding_search_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestMonitor_EndpointExposesMetrics(t *testing.T) {
	m, reg := newTestMonitor(t)
	m.ObserveIndex(3, 3, true)

	srv := httptest.NewServer(promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	t.Cleanup(srv.Close)

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, strings.HasPrefix(resp.Header.Get("Content-Type"), "text/plain"))
}
