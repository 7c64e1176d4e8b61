// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package versegrounding

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/poiesic/versegrounding/ai"
	"github.com/poiesic/versegrounding/chunking"
	"github.com/poiesic/versegrounding/core"
	"github.com/poiesic/versegrounding/corpus"
	"github.com/poiesic/versegrounding/index"
	"github.com/poiesic/versegrounding/ingestion"
	"github.com/poiesic/versegrounding/search"
	"github.com/poiesic/versegrounding/storage"
	"golang.org/x/sync/singleflight"
)

// State is the lifecycle state of an Engine.
type State int32

const (
	StateUninitialized State = iota
	StateInitializing
	StateReady
)

func (s State) String() string {
	switch s {
	case StateInitializing:
		return "initializing"
	case StateReady:
		return "ready"
	default:
		return "uninitialized"
	}
}

// indexObserver is implemented by monitors that also track index size.
type indexObserver interface {
	ObserveIndex(chunks, vectors int, semanticAvailable bool)
}

// Engine is the retrieval facade. It is safe for concurrent use.
type Engine struct {
	source   corpus.Source
	embedder ai.Embedder
	store    storage.Store
	chunker  *chunking.Chunker
	strategy core.Strategy
	pipeline *ingestion.Pipeline
	monitor  search.SearchMonitor
	logger   *slog.Logger

	pipelineOpts []ingestion.Option
	searchOpts   []search.Option

	state               atomic.Int32
	semanticUnavailable atomic.Bool
	closed              atomic.Bool
	searcher            atomic.Pointer[search.Searcher]
	lastStats           atomic.Pointer[core.SearchStats]
	group               singleflight.Group
	persisting          sync.WaitGroup
}

// Option configures an Engine.
type Option func(*Engine) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) error {
		if logger == nil {
			logger = slog.Default()
		}
		e.logger = logger
		return nil
	}
}

// WithStrategy selects the chunking strategy.
// Default is core.StrategySingle.
func WithStrategy(strategy core.Strategy) Option {
	return func(e *Engine) error {
		parsed, err := core.ParseStrategy(string(strategy))
		if err != nil {
			return err
		}
		e.strategy = parsed
		return nil
	}
}

// WithGroupSize sets the number of passages per chunk for the grouped strategy.
func WithGroupSize(size int) Option {
	return func(e *Engine) error {
		e.chunker = chunking.New(chunking.WithGroupSize(size))
		return nil
	}
}

// WithPipelineOptions passes options through to the embedding pipeline.
func WithPipelineOptions(opts ...ingestion.Option) Option {
	return func(e *Engine) error {
		e.pipelineOpts = append(e.pipelineOpts, opts...)
		return nil
	}
}

// WithSearchOptions passes options through to each searcher the engine builds.
func WithSearchOptions(opts ...search.Option) Option {
	return func(e *Engine) error {
		e.searchOpts = append(e.searchOpts, opts...)
		return nil
	}
}

// WithQueryTimeout bounds the query embedding call.
func WithQueryTimeout(d time.Duration) Option {
	return WithSearchOptions(search.WithQueryTimeout(d))
}

// WithMonitor observes every search. A monitor that also has an
// ObserveIndex method is told the index size after each initialization.
func WithMonitor(monitor search.SearchMonitor) Option {
	return func(e *Engine) error {
		e.monitor = monitor
		return nil
	}
}

// New creates an engine. A nil embedder leaves semantic search unavailable
// and a nil store disables the persisted cache. The engine must be
// initialized before it answers queries.
func New(source corpus.Source, embedder ai.Embedder, store storage.Store, opts ...Option) (*Engine, error) {
	if source == nil {
		return nil, ErrSourceRequired
	}

	e := &Engine{
		source:   source,
		embedder: embedder,
		store:    store,
		chunker:  chunking.New(),
		strategy: core.StrategySingle,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(e); err != nil {
			return nil, err
		}
	}

	if embedder != nil {
		pipelineOpts := append([]ingestion.Option{ingestion.WithLogger(e.logger)}, e.pipelineOpts...)
		pipeline, err := ingestion.NewPipeline(embedder, pipelineOpts...)
		if err != nil {
			return nil, err
		}
		e.pipeline = pipeline
	}
	e.logger = e.logger.With("component", "engine")

	return e, nil
}

// State returns the current lifecycle state.
func (e *Engine) State() State {
	return State(e.state.Load())
}

// IsReady reports whether the engine answers queries.
func (e *Engine) IsReady() bool {
	return e.State() == StateReady
}

// SemanticAvailable reports whether queries can use vector search.
func (e *Engine) SemanticAvailable() bool {
	if !e.IsReady() || e.semanticUnavailable.Load() {
		return false
	}
	s := e.searcher.Load()
	return s != nil && s.SemanticAvailable()
}

// Initialize loads the corpus and builds the index. Calling it when the
// engine is already ready is a no-op, and concurrent callers share a single
// run. On error the engine returns to the uninitialized state.
func (e *Engine) Initialize(ctx context.Context) error {
	if e.closed.Load() {
		return ErrClosed
	}
	if e.IsReady() {
		return nil
	}
	_, err, _ := e.group.Do("initialize", func() (any, error) {
		if e.closed.Load() {
			return nil, ErrClosed
		}
		if e.IsReady() {
			return nil, nil
		}
		return nil, e.initialize(ctx)
	})
	if err == nil && !e.IsReady() && e.closed.Load() {
		return ErrClosed
	}
	return err
}

// Reinitialize discards the index and the sticky provider state and runs
// initialization again. A call made while an initialization is already in
// flight joins that run.
func (e *Engine) Reinitialize(ctx context.Context) error {
	if e.closed.Load() {
		return ErrClosed
	}
	_, err, _ := e.group.Do("initialize", func() (any, error) {
		if e.closed.Load() {
			return nil, ErrClosed
		}
		e.state.Store(int32(StateUninitialized))
		e.searcher.Store(nil)
		e.semanticUnavailable.Store(false)
		return nil, e.initialize(ctx)
	})
	if err == nil && !e.IsReady() && e.closed.Load() {
		return ErrClosed
	}
	return err
}

func (e *Engine) initialize(ctx context.Context) error {
	start := time.Now()
	e.state.Store(int32(StateInitializing))

	passages, err := e.source.LoadAllPassages(ctx)
	if err != nil {
		e.state.Store(int32(StateUninitialized))
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("%w: %w", ErrCorpusUnavailable, err)
	}

	chunks := e.chunker.Chunk(passages, e.strategy)
	e.logger.Info("corpus chunked", "passages", len(passages), "chunks", len(chunks), "strategy", e.strategy)

	vectors, err := e.loadVectors(ctx, chunks)
	if err != nil {
		e.state.Store(int32(StateUninitialized))
		return err
	}

	var embedder ai.Embedder
	if !e.semanticUnavailable.Load() {
		embedder = e.embedder
	}
	idx := index.Build(chunks, vectors)

	searchOpts := append([]search.Option{search.WithLogger(e.logger), search.WithMonitor(e.monitor)}, e.searchOpts...)
	searcher, err := search.NewSearcher(chunks, idx, embedder, searchOpts...)
	if err != nil {
		e.state.Store(int32(StateUninitialized))
		return err
	}

	if observer, ok := e.monitor.(indexObserver); ok {
		observer.ObserveIndex(len(chunks), idx.Len(), searcher.SemanticAvailable())
	}

	e.searcher.Store(searcher)
	e.state.Store(int32(StateReady))
	e.logger.Info("engine ready",
		"chunks", len(chunks),
		"vectors", idx.Len(),
		"semantic", searcher.SemanticAvailable(),
		"elapsed", time.Since(start))
	return nil
}

// loadVectors returns vectors for chunks from the cache and the embedding
// pipeline. Provider failures mark semantic search unavailable and yield no
// vectors; only cancellation is returned as an error.
func (e *Engine) loadVectors(ctx context.Context, chunks []*core.Chunk) (map[core.ID][]float32, error) {
	if e.pipeline == nil {
		e.logger.Warn("no embedding provider configured, semantic search unavailable")
		e.semanticUnavailable.Store(true)
		return nil, nil
	}

	meta := storage.Metadata{
		ModelID:    e.embedder.ModelID(),
		Strategy:   e.strategy,
		ChunkCount: len(chunks),
	}

	var (
		cached   map[core.ID][]float32
		cacheErr error = storage.ErrCacheMiss
	)
	if e.store != nil {
		cached, cacheErr = e.store.Load(ctx, meta, chunks)
		switch {
		case cacheErr == nil:
			e.logger.Info("embedding cache loaded", "vectors", len(cached))
		case errors.Is(cacheErr, storage.ErrCacheMiss):
			e.logger.Info("no embedding cache found")
		default:
			e.logger.Warn("embedding cache discarded", "err", cacheErr)
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	report, err := e.pipeline.Run(ctx, chunks, cached)
	if err != nil {
		return nil, err
	}
	if !report.Available {
		e.semanticUnavailable.Store(true)
		return nil, nil
	}

	if e.store != nil && !e.closed.Load() && (report.Embedded > 0 || cacheErr != nil) {
		e.persist(ctx, meta, report.Vectors)
	}
	return report.Vectors, nil
}

// persist writes vectors to the store in the background. Failures are
// logged; the in-memory index stays valid either way.
func (e *Engine) persist(ctx context.Context, meta storage.Metadata, vectors map[core.ID][]float32) {
	ctx = context.WithoutCancel(ctx)
	e.persisting.Add(1)
	go func() {
		defer e.persisting.Done()
		if err := e.store.Persist(ctx, meta, vectors); err != nil {
			e.logger.Error("error persisting embedding cache", "err", err)
			return
		}
		e.logger.Debug("embedding cache persisted", "vectors", len(vectors))
	}()
}

// RetrieveRelevant returns at most limit chunks relevant to query, best
// first. It returns ErrNotReady before initialization completes and the
// context's error if ctx is cancelled; every other failure degrades to
// fewer or lexical-only results.
func (e *Engine) RetrieveRelevant(ctx context.Context, query string, limit int, minScore float64, strictness core.Strictness) ([]*core.SearchResult, error) {
	searcher := e.searcher.Load()
	if !e.IsReady() || searcher == nil {
		return nil, ErrNotReady
	}

	results, stats, err := searcher.Retrieve(ctx, search.Request{
		Query:      query,
		Limit:      limit,
		MinScore:   minScore,
		Strictness: strictness,
	})
	if err != nil {
		return nil, err
	}
	e.lastStats.Store(stats)
	return results, nil
}

// LastSearchStatistics returns a copy of the statistics of the most recent
// search, or nil before any search. Concurrent searches overwrite each
// other; the value is for diagnostics only.
func (e *Engine) LastSearchStatistics() *core.SearchStats {
	stats := e.lastStats.Load()
	if stats == nil {
		return nil
	}
	cp := *stats
	return &cp
}

// ClearCache deletes the persisted embedding cache after any pending write
// completes. The in-memory index is unaffected until the next initialization.
func (e *Engine) ClearCache(ctx context.Context) error {
	if e.store == nil {
		return nil
	}
	e.persisting.Wait()
	return e.store.Clear(ctx)
}

// Close waits for an initialization in flight and for background cache
// writes, then releases the pipeline and store.
func (e *Engine) Close() error {
	if e.closed.Swap(true) {
		return nil
	}
	// Joins a running initialization, or runs a no-op when there is none.
	e.group.Do("initialize", func() (any, error) { return nil, nil })
	e.persisting.Wait()

	if e.pipeline != nil {
		e.pipeline.Release()
	}
	if e.store != nil {
		if err := e.store.Close(); err != nil {
			e.logger.Error("error closing cache store", "err", err)
			return err
		}
	}
	return nil
}
