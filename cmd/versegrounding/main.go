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


package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/poiesic/versegrounding"
	"github.com/poiesic/versegrounding/ai"
	"github.com/poiesic/versegrounding/ai/goopenai"
	"github.com/poiesic/versegrounding/ai/openai"
	"github.com/poiesic/versegrounding/config"
	"github.com/poiesic/versegrounding/core"
	"github.com/poiesic/versegrounding/corpus"
	"github.com/poiesic/versegrounding/ingestion"
	"github.com/poiesic/versegrounding/metrics"
	"github.com/poiesic/versegrounding/search"
	"github.com/poiesic/versegrounding/storage"
	"github.com/poiesic/versegrounding/storage/badger"
	"github.com/poiesic/versegrounding/storage/file"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli/v2"
)

func main() {
	_ = godotenv.Load()

	if err := newApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "versegrounding",
		Usage: "Retrieve corpus passages relevant to a query",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
				Value:   "info",
			},
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to YAML configuration file",
				Value:   "versegrounding.yaml",
			},
			&cli.StringFlag{
				Name:  "corpus",
				Usage: "Path to the corpus JSON file (overrides config)",
			},
			&cli.StringFlag{
				Name:  "cache",
				Usage: "Path to the embedding cache (overrides config)",
			},
			&cli.StringFlag{
				Name:  "strategy",
				Usage: "Chunking strategy: single, context or grouped (overrides config)",
			},
		},
		Before: setupLogger,
		Commands: []*cli.Command{
			{
				Name:   "index",
				Usage:  "Build or refresh the embedding cache",
				Action: indexCommand,
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "report-interval",
						Usage: "Report progress every N chunks",
						Value: 100,
					},
				},
			},
			{
				Name:      "search",
				Usage:     "Retrieve passages relevant to a query",
				ArgsUsage: "<query>",
				Action:    searchCommand,
				Flags:     searchFlags(),
			},
			{
				Name:   "interactive",
				Usage:  "Answer queries read from standard input",
				Action: interactiveCommand,
				Flags: append(searchFlags(),
					&cli.StringFlag{
						Name:  "metrics-addr",
						Usage: "Serve Prometheus metrics on this address (e.g. :9090)",
					},
				),
			},
			{
				Name:   "clear-cache",
				Usage:  "Delete the persisted embedding cache",
				Action: clearCacheCommand,
			},
		},
	}
}

func searchFlags() []cli.Flag {
	return []cli.Flag{
		&cli.IntFlag{
			Name:    "limit",
			Aliases: []string{"n"},
			Usage:   "Maximum number of results (defaults to config)",
		},
		&cli.Float64Flag{
			Name:  "min-score",
			Usage: "Minimum relevance score (defaults to config)",
			Value: -1,
		},
		&cli.StringFlag{
			Name:  "strictness",
			Usage: "strict, balanced or relaxed (defaults to config)",
		},
		&cli.BoolFlag{
			Name:  "stats",
			Usage: "Print search statistics",
		},
	}
}

// loadConfig reads the config file and applies global flag overrides.
func loadConfig(c *cli.Context) (*config.AppConfig, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if v := c.String("corpus"); v != "" {
		cfg.Corpus.Path = v
	}
	if v := c.String("cache"); v != "" {
		cfg.Cache.Path = v
	}
	if v := c.String("strategy"); v != "" {
		cfg.Corpus.Strategy = v
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if cfg.Corpus.Path == "" {
		return nil, errors.New("corpus path is required (--corpus or corpus.path)")
	}
	return cfg, nil
}

// newEmbedder builds the configured embedder. Construction failures are
// logged and leave semantic search unavailable.
func newEmbedder(cfg *config.AppConfig) ai.Embedder {
	if !cfg.EmbeddingEnabled() {
		return nil
	}

	aiConfig := cfg.AIConfig()
	var (
		embedder ai.Embedder
		err      error
	)
	switch aiConfig.Backend {
	case ai.BackendOpenAI:
		embedder, err = goopenai.NewEmbedder(aiConfig)
	default:
		embedder, err = openai.NewEmbedder(aiConfig)
	}
	if err != nil {
		slog.Warn("embedding provider unavailable", "backend", aiConfig.Backend, "err", err)
		return nil
	}
	return embedder
}

func newStore(cfg *config.AppConfig) (storage.Store, error) {
	switch cfg.Cache.Type {
	case config.CacheBadger:
		store, err := badger.OpenCacheStore(cfg.Cache.Path, false)
		if err != nil {
			return nil, err
		}
		return store, nil
	case config.CacheFile:
		store, err := file.NewStore(cfg.Cache.Path)
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, nil
	}
}

func newEngine(cfg *config.AppConfig, opts ...versegrounding.Option) (*versegrounding.Engine, error) {
	store, err := newStore(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open cache: %w", err)
	}

	source := corpus.NewJSONFile(cfg.Corpus.Path, corpus.WithTranslation(cfg.Corpus.Translation))
	pipelineOpts := []ingestion.Option{
		ingestion.WithRateLimit(cfg.Ingestion.RatePerSecond, 1),
	}
	if cfg.Ingestion.Concurrency > 0 {
		pipelineOpts = append(pipelineOpts, ingestion.WithPoolSize(cfg.Ingestion.Concurrency))
	}
	if cfg.Ingestion.RetryAttempts > 0 {
		pipelineOpts = append(pipelineOpts, ingestion.WithRetry(cfg.Ingestion.RetryAttempts, time.Second))
	}
	if d := cfg.CallTimeout(); d > 0 {
		pipelineOpts = append(pipelineOpts, ingestion.WithCallTimeout(d))
	}

	policy := search.Policy{
		BalancedMargin: cfg.Search.BalancedMargin,
		BalancedFloor:  cfg.Search.BalancedFloor,
		RelaxedMargin:  cfg.Search.RelaxedMargin,
		RelaxedFloor:   cfg.Search.RelaxedFloor,
	}

	engineOpts := []versegrounding.Option{
		versegrounding.WithStrategy(cfg.Strategy()),
		versegrounding.WithGroupSize(cfg.Corpus.GroupSize),
		versegrounding.WithPipelineOptions(pipelineOpts...),
		versegrounding.WithSearchOptions(search.WithPolicy(policy)),
		versegrounding.WithQueryTimeout(cfg.QueryTimeout()),
	}
	engine, err := versegrounding.New(source, newEmbedder(cfg), store, append(engineOpts, opts...)...)
	if err != nil {
		if store != nil {
			store.Close()
		}
		return nil, err
	}
	return engine, nil
}

// request resolves per-query settings from flags, falling back to config.
type request struct {
	limit      int
	minScore   float64
	strictness core.Strictness
	stats      bool
}

func resolveRequest(c *cli.Context, cfg *config.AppConfig) (request, error) {
	req := request{
		limit:      cfg.Search.Limit,
		minScore:   cfg.Search.MinScore,
		strictness: cfg.Strictness(),
		stats:      c.Bool("stats"),
	}
	if n := c.Int("limit"); n > 0 {
		req.limit = n
	}
	if s := c.Float64("min-score"); s >= 0 {
		req.minScore = s
	}
	if v := c.String("strictness"); v != "" {
		strictness, err := core.ParseStrictness(v)
		if err != nil {
			return req, err
		}
		req.strictness = strictness
	}
	return req, nil
}

func indexCommand(c *cli.Context) error {
	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt)
	defer stop()

	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	tracker := ingestion.NewProgressTracker(c.App.ErrWriter, c.Int("report-interval"))
	engine, err := newEngine(cfg, versegrounding.WithPipelineOptions(ingestion.WithProgress(tracker)))
	if err != nil {
		return err
	}
	defer engine.Close()

	fmt.Fprintf(c.App.ErrWriter, "Corpus: %s\n", cfg.Corpus.Path)
	fmt.Fprintf(c.App.ErrWriter, "Strategy: %s\n", cfg.Strategy())
	fmt.Fprintf(c.App.ErrWriter, "Embedding model: %s\n", cfg.Embedder.Model)
	fmt.Fprintln(c.App.ErrWriter)

	if err := engine.Initialize(ctx); err != nil {
		return fmt.Errorf("indexing failed: %w", err)
	}
	if !engine.SemanticAvailable() {
		fmt.Fprintln(c.App.Writer, "Embedding provider unavailable: only lexical search is possible")
		return nil
	}
	fmt.Fprintln(c.App.Writer, "Index ready")
	return nil
}

func searchCommand(c *cli.Context) error {
	query := strings.TrimSpace(strings.Join(c.Args().Slice(), " "))
	if query == "" {
		return errors.New("query is required")
	}

	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	req, err := resolveRequest(c, cfg)
	if err != nil {
		return err
	}

	engine, err := newEngine(cfg)
	if err != nil {
		return err
	}
	defer engine.Close()

	if err := engine.Initialize(c.Context); err != nil {
		return err
	}
	return runQuery(c.Context, c.App.Writer, engine, query, req)
}

func interactiveCommand(c *cli.Context) error {
	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt)
	defer stop()

	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	req, err := resolveRequest(c, cfg)
	if err != nil {
		return err
	}

	var opts []versegrounding.Option
	if addr := c.String("metrics-addr"); addr != "" {
		reg := prometheus.NewRegistry()
		opts = append(opts, versegrounding.WithMonitor(metrics.NewMonitor(reg)))
		srv := &http.Server{
			Addr:              addr,
			Handler:           promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("metrics server failed", "err", err)
			}
		}()
		defer srv.Close()
		slog.Info("serving metrics", "addr", addr)
	}

	engine, err := newEngine(cfg, opts...)
	if err != nil {
		return err
	}
	defer engine.Close()

	if err := engine.Initialize(ctx); err != nil {
		return err
	}

	reader := c.App.Reader
	if reader == nil {
		reader = os.Stdin
	}
	scanner := bufio.NewScanner(reader)
	for {
		fmt.Fprint(c.App.ErrWriter, "> ")
		if !scanner.Scan() {
			break
		}
		query := strings.TrimSpace(scanner.Text())
		switch query {
		case "":
			continue
		case ":quit", ":q":
			return nil
		}
		if err := runQuery(ctx, c.App.Writer, engine, query, req); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
	}
	return scanner.Err()
}

func clearCacheCommand(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	store, err := newStore(cfg)
	if err != nil {
		return fmt.Errorf("failed to open cache: %w", err)
	}
	if store == nil {
		fmt.Fprintln(c.App.Writer, "No cache configured")
		return nil
	}
	defer store.Close()

	if err := store.Clear(c.Context); err != nil {
		return fmt.Errorf("failed to clear cache: %w", err)
	}
	fmt.Fprintf(c.App.Writer, "Cleared cache at %s\n", cfg.Cache.Path)
	return nil
}

func runQuery(ctx context.Context, w io.Writer, engine *versegrounding.Engine, query string, req request) error {
	results, err := engine.RetrieveRelevant(ctx, query, req.limit, req.minScore, req.strictness)
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "Found %d hits\n", len(results))
	for i, hit := range results {
		fmt.Fprintf(w, "%d: %s [%0.3f %s]\n   %s\n", i+1, hit.Chunk.Reference, hit.Score, hit.Source, hit.Chunk.Text)
	}

	if req.stats {
		if stats := engine.LastSearchStatistics(); stats != nil {
			fmt.Fprintf(w, "semantic=%d lexical=%d fallback=%t threshold=%.2f elapsed=%s\n",
				stats.SemanticHits, stats.LexicalHits, stats.FallbackUsed, stats.EffectiveMinScore, stats.Elapsed)
		}
	}
	return nil
}

func setupLogger(c *cli.Context) error {
	// Get log level from flag and normalize to lowercase
	levelStr := strings.ToLower(c.String("log-level"))

	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return fmt.Errorf("invalid log level %q: must be one of debug, info, warn, error", levelStr)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	return nil
}
