// Package metrics exports search activity as Prometheus metrics.
package metrics

import (
	"github.com/poiesic/versegrounding/core"
	"github.com/poiesic/versegrounding/index"
	"github.com/poiesic/versegrounding/lexical"
	"github.com/poiesic/versegrounding/search"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "versegrounding"

// Monitor implements search.SearchMonitor by updating Prometheus collectors.
// Collectors are safe for concurrent use, so one Monitor serves every
// caller of a searcher.
type Monitor struct {
	// searchesTotal counts completed searches by strictness.
	searchesTotal *prometheus.CounterVec

	// fallbacksTotal counts searches that ran the lexical phase.
	fallbacksTotal *prometheus.CounterVec

	// queryEmbeddingFailuresTotal counts query embeddings that failed or
	// timed out and were answered lexically.
	queryEmbeddingFailuresTotal prometheus.Counter

	// hitsTotal counts candidates produced per phase.
	hitsTotal *prometheus.CounterVec

	// durationSeconds records the wall time of each search.
	durationSeconds *prometheus.HistogramVec

	// results records how many results each search returned.
	results prometheus.Histogram

	// indexedChunks and indexedVectors describe the last initialization.
	indexedChunks  prometheus.Gauge
	indexedVectors prometheus.Gauge

	// semanticAvailable is 1 when semantic search is enabled.
	semanticAvailable prometheus.Gauge
}

var _ search.SearchMonitor = (*Monitor)(nil)

// NewMonitor registers the search metrics against reg. promauto.With(reg)
// keeps each registration inside the provided registry so tests can use a
// fresh one.
func NewMonitor(reg prometheus.Registerer) *Monitor {
	factory := promauto.With(reg)

	return &Monitor{
		searchesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "search",
			Name:      "requests_total",
			Help:      "Total number of completed searches, partitioned by strictness.",
		}, []string{"strictness"}),

		fallbacksTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "search",
			Name:      "fallbacks_total",
			Help:      "Searches that ran lexical fallback, partitioned by strictness.",
		}, []string{"strictness"}),

		queryEmbeddingFailuresTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "search",
			Name:      "query_embedding_failures_total",
			Help:      "Query embeddings that failed or timed out.",
		}),

		hitsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "search",
			Name:      "hits_total",
			Help:      "Candidates produced by each search phase.",
		}, []string{"phase"}),

		durationSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "search",
			Name:      "duration_seconds",
			Help:      "Wall-clock duration of searches.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}, []string{"strictness"}),

		results: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "search",
			Name:      "results",
			Help:      "Number of results returned per search.",
			Buckets:   []float64{0, 1, 2, 5, 10, 20, 50},
		}),

		indexedChunks: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "index",
			Name:      "chunks",
			Help:      "Chunks available to lexical search.",
		}),

		indexedVectors: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "index",
			Name:      "vectors",
			Help:      "Chunks with an embedding in the vector index.",
		}),

		semanticAvailable: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "index",
			Name:      "semantic_available",
			Help:      "1 when semantic search is enabled, 0 otherwise.",
		}),
	}
}

// ObserveIndex records the outcome of an engine initialization.
func (m *Monitor) ObserveIndex(chunks, vectors int, semanticAvailable bool) {
	m.indexedChunks.Set(float64(chunks))
	m.indexedVectors.Set(float64(vectors))
	if semanticAvailable {
		m.semanticAvailable.Set(1)
	} else {
		m.semanticAvailable.Set(0)
	}
}

func (m *Monitor) Start(_ string, _ core.Strictness) {}

func (m *Monitor) AfterSemanticSearch(matches []index.Match, err error) {
	if err != nil {
		m.queryEmbeddingFailuresTotal.Inc()
		return
	}
	m.hitsTotal.WithLabelValues(core.MatchSemantic.String()).Add(float64(len(matches)))
}

func (m *Monitor) AfterLexicalSearch(_ []string, matches []lexical.Match) {
	m.hitsTotal.WithLabelValues(core.MatchLexical.String()).Add(float64(len(matches)))
}

func (m *Monitor) Finish(results []*core.SearchResult, stats *core.SearchStats) {
	strictness := stats.Strictness.String()
	m.searchesTotal.WithLabelValues(strictness).Inc()
	if stats.FallbackUsed {
		m.fallbacksTotal.WithLabelValues(strictness).Inc()
	}
	m.durationSeconds.WithLabelValues(strictness).Observe(stats.Elapsed.Seconds())
	m.results.Observe(float64(len(results)))
}
