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


package ingestion

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"slices"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/poiesic/versegrounding/ai"
	"github.com/poiesic/versegrounding/core"
	"github.com/poiesic/versegrounding/index"
	"golang.org/x/time/rate"
)

// Outcome classifies the result of asking the provider for one embedding.
type Outcome int

const (
	// OutcomeEmbedded means a usable vector was returned.
	OutcomeEmbedded Outcome = iota + 1
	// OutcomeFailed means this call failed; other calls may still succeed.
	OutcomeFailed
	// OutcomeUnavailable means the provider is considered down for the
	// lifetime of the engine.
	OutcomeUnavailable
)

func (o Outcome) String() string {
	switch o {
	case OutcomeEmbedded:
		return "embedded"
	case OutcomeFailed:
		return "failed"
	case OutcomeUnavailable:
		return "unavailable"
	default:
		return fmt.Sprintf("Outcome(%d)", int(o))
	}
}

// Report summarizes a Pipeline run.
type Report struct {
	// Vectors holds cached plus newly generated vectors keyed by chunk id.
	Vectors map[core.ID][]float32
	// Cached is the number of vectors taken from the cache.
	Cached int
	// Embedded is the number of vectors generated during the run.
	Embedded int
	// Failed is the number of chunks dropped after a failed call.
	Failed int
	// Available is false when the availability check failed.
	Available bool
	// Elapsed is the wall time of the run.
	Elapsed time.Duration
}

// Pipeline generates embeddings for chunks on a bounded worker pool.
type Pipeline struct {
	embedder      ai.Embedder
	pool          *ants.Pool
	limiter       *rate.Limiter
	callTimeout   time.Duration
	retryAttempts int
	retryDelay    time.Duration
	batchSize     int
	normalize     bool
	progress      Progress
	logger        *slog.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline) error

// DefaultBatchSize is the default number of chunks per provider call.
const DefaultBatchSize = 16

// DefaultPoolSize is the default number of concurrent embedding calls.
func DefaultPoolSize() int {
	return 2 * runtime.NumCPU()
}

// WithPoolSize sets the maximum number of in-flight embedding calls.
// Default is 2 * runtime.NumCPU(), with a minimum of 1.
func WithPoolSize(size int) Option {
	return func(p *Pipeline) error {
		if size < 1 {
			size = 1
		}

		pool, err := ants.NewPool(size)
		if err != nil {
			return err
		}
		if p.pool != nil {
			p.pool.Release()
		}
		p.pool = pool
		return nil
	}
}

// WithRateLimit caps embedding calls at perSecond with the given burst.
// A non-positive rate disables limiting.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(p *Pipeline) error {
		if perSecond <= 0 {
			p.limiter = nil
			return nil
		}
		if burst < 1 {
			burst = 1
		}
		p.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
		return nil
	}
}

// WithCallTimeout bounds each embedding call. Zero disables the bound.
func WithCallTimeout(d time.Duration) Option {
	return func(p *Pipeline) error {
		if d < 0 {
			d = 0
		}
		p.callTimeout = d
		return nil
	}
}

// WithRetry retries failed per-chunk calls with exponential backoff.
// The availability check is never retried.
func WithRetry(maxAttempts int, baseDelay time.Duration) Option {
	return func(p *Pipeline) error {
		if maxAttempts <= 0 {
			return ErrInvalidMaxAttempts
		}
		p.retryAttempts = maxAttempts
		p.retryDelay = baseDelay
		return nil
	}
}

// WithBatchSize sets how many chunks are sent to the provider in one call.
// Default is DefaultBatchSize. A batch that fails as a whole is retried one
// chunk at a time.
func WithBatchSize(size int) Option {
	return func(p *Pipeline) error {
		if size < 1 {
			size = 1
		}
		p.batchSize = size
		return nil
	}
}

// WithNormalization controls whether vectors are scaled to unit length.
// Default is true.
func WithNormalization(enabled bool) Option {
	return func(p *Pipeline) error {
		p.normalize = enabled
		return nil
	}
}

// WithProgress reports progress of each run to progress.
func WithProgress(progress Progress) Option {
	return func(p *Pipeline) error {
		p.progress = progress
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) error {
		if logger == nil {
			logger = slog.Default()
		}
		p.logger = logger
		return nil
	}
}

// NewPipeline creates a new embedding pipeline.
func NewPipeline(embedder ai.Embedder, opts ...Option) (*Pipeline, error) {
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}

	pool, err := ants.NewPool(DefaultPoolSize())
	if err != nil {
		return nil, err
	}

	p := &Pipeline{
		embedder:      embedder,
		pool:          pool,
		callTimeout:   30 * time.Second,
		retryAttempts: 1,
		batchSize:     DefaultBatchSize,
		normalize:     true,
		logger:        slog.Default(),
	}

	for _, opt := range opts {
		if optErr := opt(p); optErr != nil {
			p.Release()
			return nil, optErr
		}
	}
	p.logger = p.logger.With("component", "ingestion")

	return p, nil
}

// Run embeds every chunk that has no entry in cached and returns the
// combined vectors. Provider failures never fail the run: they are reported
// through Report.Failed and Report.Available. The only error returned is the
// context's, in which case no report is produced.
func (p *Pipeline) Run(ctx context.Context, chunks []*core.Chunk, cached map[core.ID][]float32) (*Report, error) {
	start := time.Now()
	report := &Report{
		Vectors:   make(map[core.ID][]float32, len(chunks)),
		Available: true,
	}

	pending := make([]*core.Chunk, 0, len(chunks))
	for _, c := range chunks {
		if v, ok := cached[c.Id]; ok && len(v) > 0 {
			report.Vectors[c.Id] = v
			report.Cached++
			continue
		}
		pending = append(pending, c)
	}

	if len(chunks) == 0 {
		report.Elapsed = time.Since(start)
		return report, nil
	}

	// The availability check is always made, even on a full cache hit, so a dead provider
	// is detected before queries try to use it.
	first := chunks[0]
	if len(pending) > 0 {
		first = pending[0]
	}
	firstVector, outcome := p.checkAvailability(ctx, first)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if outcome == OutcomeUnavailable {
		p.logger.Warn("embedding provider unavailable, semantic search disabled",
			"model", p.embedder.ModelID())
		report.Available = false
		report.Elapsed = time.Since(start)
		return report, nil
	}
	dim := len(firstVector)
	if len(pending) > 0 {
		report.Vectors[first.Id] = firstVector
		report.Embedded++
		pending = pending[1:]
	}

	if len(pending) > 0 {
		if err := p.embedAll(ctx, pending, dim, report); err != nil {
			return nil, err
		}
	}

	report.Elapsed = time.Since(start)
	p.logger.Info("embedding run complete",
		"chunks", len(chunks),
		"cached", report.Cached,
		"embedded", report.Embedded,
		"failed", report.Failed,
		"elapsed", report.Elapsed)
	return report, nil
}

// embedAll fans pending chunks out to the worker pool in batches and waits
// for them.
func (p *Pipeline) embedAll(ctx context.Context, pending []*core.Chunk, dim int, report *Report) error {
	if p.progress != nil {
		p.progress.Start(len(pending))
		defer p.progress.Finish()
	}

	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	record := func(c *core.Chunk, v []float32, outcome Outcome) {
		mu.Lock()
		defer mu.Unlock()
		if outcome == OutcomeEmbedded {
			report.Vectors[c.Id] = v
			report.Embedded++
		} else {
			report.Failed++
		}
		if p.progress != nil {
			p.progress.Increment(1)
		}
	}

	for batch := range slices.Chunk(pending, p.batchSize) {
		wg.Add(1)
		err := p.pool.Submit(func() {
			defer wg.Done()
			p.embedBatch(ctx, batch, dim, record)
		})
		if err != nil {
			wg.Done()
			p.logger.Error("error submitting embedding task", "chunks", len(batch), "err", err)
			for _, c := range batch {
				record(c, nil, OutcomeFailed)
			}
		}
	}
	wg.Wait()

	return ctx.Err()
}

// embedBatch embeds batch with one provider call. When that call fails each
// chunk is embedded on its own so one bad chunk cannot sink its neighbours.
func (p *Pipeline) embedBatch(ctx context.Context, batch []*core.Chunk, dim int, record func(*core.Chunk, []float32, Outcome)) {
	if ctx.Err() != nil {
		for _, c := range batch {
			record(c, nil, OutcomeFailed)
		}
		return
	}

	if len(batch) > 1 {
		vectors, err := p.callBatch(ctx, batch)
		if err == nil {
			for i, c := range batch {
				v, prepErr := p.prepare(vectors[i], dim)
				if prepErr != nil {
					p.logger.Warn("dropping chunk embedding", "chunk", c.Reference, "err", prepErr)
					record(c, nil, OutcomeFailed)
					continue
				}
				record(c, v, OutcomeEmbedded)
			}
			return
		}
		if ctx.Err() != nil {
			for _, c := range batch {
				record(c, nil, OutcomeFailed)
			}
			return
		}
		p.logger.Debug("batch embedding failed, embedding chunks one at a time",
			"chunks", len(batch), "err", err)
	}

	for _, c := range batch {
		v, outcome := p.embed(ctx, c, dim)
		record(c, v, outcome)
	}
}

// checkAvailability makes a single embedding call with no retry. Any failure reports the
// provider as unavailable.
func (p *Pipeline) checkAvailability(ctx context.Context, chunk *core.Chunk) ([]float32, Outcome) {
	v, err := p.call(ctx, chunk.Text, 0)
	if err != nil {
		p.logger.Debug("embedding availability check failed", "chunk", chunk.Reference, "err", err)
		return nil, OutcomeUnavailable
	}
	return v, OutcomeEmbedded
}

// embed generates one vector of length dim, retrying per the pipeline's
// retry policy. Failures are logged and reported as OutcomeFailed.
func (p *Pipeline) embed(ctx context.Context, chunk *core.Chunk, dim int) ([]float32, Outcome) {
	var v []float32
	err := p.retry(ctx, chunk, func() error {
		var callErr error
		v, callErr = p.call(ctx, chunk.Text, dim)
		return callErr
	})
	if err != nil {
		p.logger.Warn("embedding failed, chunk limited to lexical search", "chunk", chunk.Reference, "err", err)
		return nil, OutcomeFailed
	}
	return v, OutcomeEmbedded
}

// wait blocks until the rate limiter admits n calls' worth of texts.
func (p *Pipeline) wait(ctx context.Context, n int) error {
	if p.limiter == nil {
		return nil
	}
	for range n {
		if err := p.limiter.Wait(ctx); err != nil {
			return err
		}
	}
	return nil
}

// bounded returns ctx limited by the per-call timeout.
func (p *Pipeline) bounded(ctx context.Context) (context.Context, context.CancelFunc) {
	if p.callTimeout > 0 {
		return context.WithTimeout(ctx, p.callTimeout)
	}
	return ctx, func() {}
}

// call waits for the rate limiter and makes one bounded provider call.
// A dim of zero accepts any vector length.
func (p *Pipeline) call(ctx context.Context, text string, dim int) ([]float32, error) {
	if err := p.wait(ctx, 1); err != nil {
		return nil, err
	}
	callCtx, cancel := p.bounded(ctx)
	defer cancel()

	v, err := p.embedder.EmbedText(callCtx, text)
	if err != nil {
		return nil, err
	}
	return p.prepare(v, dim)
}

// callBatch embeds every chunk of batch in one bounded provider call.
func (p *Pipeline) callBatch(ctx context.Context, batch []*core.Chunk) ([][]float32, error) {
	if err := p.wait(ctx, len(batch)); err != nil {
		return nil, err
	}
	callCtx, cancel := p.bounded(ctx)
	defer cancel()

	texts := make([]string, len(batch))
	for i, c := range batch {
		texts[i] = c.Text
	}
	vectors, err := p.embedder.EmbedTexts(callCtx, texts)
	if err != nil {
		return nil, err
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("%w: got %d vectors for %d texts", ErrBatchMismatch, len(vectors), len(texts))
	}
	return vectors, nil
}

// prepare checks v against the expected dimension and normalizes it.
func (p *Pipeline) prepare(v []float32, dim int) ([]float32, error) {
	if len(v) == 0 {
		return nil, ErrEmptyVector
	}
	if dim > 0 && len(v) != dim {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(v), dim)
	}
	if p.normalize {
		v = index.NormalizeVector(v)
	}
	return v, nil
}

// Release releases the worker pool.
// The pipeline should not be used after calling Release.
func (p *Pipeline) Release() {
	if p.pool != nil {
		p.pool.Release()
	}
}
