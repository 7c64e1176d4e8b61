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


// Package config loads the command-line tool's YAML configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/poiesic/versegrounding/ai"
	"github.com/poiesic/versegrounding/core"
	"gopkg.in/yaml.v3"
)

// Environment variables that override file settings.
const (
	EnvEmbeddingBackend = "VERSEGROUNDING_EMBEDDING_BACKEND"
	EnvEmbeddingHost    = "VERSEGROUNDING_EMBEDDING_HOST"
	EnvEmbeddingModel   = "VERSEGROUNDING_EMBEDDING_MODEL"
	EnvCorpusPath       = "VERSEGROUNDING_CORPUS"
	EnvCachePath        = "VERSEGROUNDING_CACHE_PATH"
	EnvConcurrency      = "VERSEGROUNDING_EMBED_CONCURRENCY"
	DefaultAPIKeyEnv    = "OPENAI_API_KEY"
)

// Cache backends.
const (
	CacheFile   = "file"
	CacheBadger = "badger"
	CacheNone   = "none"
)

// BackendNone disables the embedding provider entirely.
const BackendNone = "none"

// CorpusConfig describes where passages come from and how they are chunked.
type CorpusConfig struct {
	Path        string `yaml:"path"`
	Translation string `yaml:"translation"`
	Strategy    string `yaml:"strategy"`
	GroupSize   int    `yaml:"group_size"`
}

// EmbedderConfig selects and configures the embedding provider.
type EmbedderConfig struct {
	Backend     string `yaml:"backend"`
	Host        string `yaml:"host"`
	Model       string `yaml:"model"`
	APIKeyEnv   string `yaml:"api_key_env"`
	TimeoutSecs int    `yaml:"timeout_secs"`

	// APIKey is read from the variable named by APIKeyEnv, never from the file.
	APIKey string `yaml:"-"`
}

// IngestionConfig bounds embedding generation during indexing.
type IngestionConfig struct {
	Concurrency     int     `yaml:"concurrency"`
	RatePerSecond   float64 `yaml:"rate_per_second"`
	RetryAttempts   int     `yaml:"retry_attempts"`
	CallTimeoutSecs int     `yaml:"call_timeout_secs"`
}

// CacheConfig selects where embeddings are persisted.
type CacheConfig struct {
	Type string `yaml:"type"`
	Path string `yaml:"path"`
}

// SearchConfig holds query defaults and strictness margins.
type SearchConfig struct {
	Limit          int     `yaml:"limit"`
	MinScore       float64 `yaml:"min_score"`
	Strictness     string  `yaml:"strictness"`
	QueryTimeoutMs int     `yaml:"query_timeout_ms"`
	BalancedMargin float64 `yaml:"balanced_margin"`
	BalancedFloor  float64 `yaml:"balanced_floor"`
	RelaxedMargin  float64 `yaml:"relaxed_margin"`
	RelaxedFloor   float64 `yaml:"relaxed_floor"`
}

// AppConfig is the root configuration structure.
type AppConfig struct {
	Corpus    CorpusConfig    `yaml:"corpus"`
	Embedder  EmbedderConfig  `yaml:"embedder"`
	Ingestion IngestionConfig `yaml:"ingestion"`
	Cache     CacheConfig     `yaml:"cache"`
	Search    SearchConfig    `yaml:"search"`
}

// Load reads a config from path, fills unset values with defaults and then
// applies environment overrides. A missing file, or an empty path, yields
// the defaults.
func Load(path string) (*AppConfig, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parsing %s: %w", path, err)
			}
		case errors.Is(err, os.ErrNotExist):
		default:
			return nil, err
		}
	}
	applyDefaults(cfg)
	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the config to the given path, creating directories as needed.
func Save(path string, cfg *AppConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// Default returns the built-in configuration.
func Default() *AppConfig {
	return &AppConfig{
		Corpus: CorpusConfig{
			Strategy:  string(core.StrategySingle),
			GroupSize: 3,
		},
		Embedder: EmbedderConfig{
			Backend:     string(ai.BackendCompatible),
			Host:        "http://localhost:11434/v1",
			Model:       "embeddinggemma",
			APIKeyEnv:   DefaultAPIKeyEnv,
			TimeoutSecs: 30,
		},
		Cache: CacheConfig{
			Type: CacheFile,
			Path: "embeddings.cache",
		},
		Search: SearchConfig{
			Limit:          5,
			MinScore:       0.3,
			Strictness:     core.StrictnessBalanced.String(),
			QueryTimeoutMs: 5000,
			BalancedMargin: 0.1,
			BalancedFloor:  0.5,
			RelaxedMargin:  0.2,
			RelaxedFloor:   0.3,
		},
	}
}

// applyDefaults fills zero values left by a partial file.
func applyDefaults(cfg *AppConfig) {
	def := Default()
	if cfg.Corpus.Strategy == "" {
		cfg.Corpus.Strategy = def.Corpus.Strategy
	}
	if cfg.Corpus.GroupSize == 0 {
		cfg.Corpus.GroupSize = def.Corpus.GroupSize
	}
	if cfg.Embedder.Backend == "" {
		cfg.Embedder.Backend = def.Embedder.Backend
	}
	if cfg.Embedder.APIKeyEnv == "" {
		cfg.Embedder.APIKeyEnv = def.Embedder.APIKeyEnv
	}
	if cfg.Embedder.TimeoutSecs == 0 {
		cfg.Embedder.TimeoutSecs = def.Embedder.TimeoutSecs
	}
	if cfg.Cache.Type == "" {
		cfg.Cache.Type = def.Cache.Type
	}
	if cfg.Search.Limit == 0 {
		cfg.Search.Limit = def.Search.Limit
	}
	if cfg.Search.Strictness == "" {
		cfg.Search.Strictness = def.Search.Strictness
	}
	if cfg.Search.QueryTimeoutMs == 0 {
		cfg.Search.QueryTimeoutMs = def.Search.QueryTimeoutMs
	}
}

func applyEnv(cfg *AppConfig) error {
	if v := os.Getenv(EnvEmbeddingBackend); v != "" {
		cfg.Embedder.Backend = v
	}
	if v := os.Getenv(EnvEmbeddingHost); v != "" {
		cfg.Embedder.Host = v
	}
	if v := os.Getenv(EnvEmbeddingModel); v != "" {
		cfg.Embedder.Model = v
	}
	if v := os.Getenv(EnvCorpusPath); v != "" {
		cfg.Corpus.Path = v
	}
	if v := os.Getenv(EnvCachePath); v != "" {
		cfg.Cache.Path = v
	}
	if v := os.Getenv(EnvConcurrency); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvConcurrency, err)
		}
		cfg.Ingestion.Concurrency = n
	}
	cfg.Embedder.APIKey = os.Getenv(cfg.Embedder.APIKeyEnv)
	return nil
}

// Validate checks enumerated values and ranges.
func (c *AppConfig) Validate() error {
	if _, err := core.ParseStrategy(c.Corpus.Strategy); err != nil {
		return fmt.Errorf("corpus.strategy: %w", err)
	}
	if _, err := core.ParseStrictness(c.Search.Strictness); err != nil {
		return fmt.Errorf("search.strictness: %w", err)
	}
	switch c.Cache.Type {
	case CacheFile, CacheBadger:
		if c.Cache.Path == "" {
			return errors.New("cache.path is required")
		}
	case CacheNone:
	default:
		return fmt.Errorf("cache.type must be %q, %q or %q", CacheFile, CacheBadger, CacheNone)
	}
	if c.Embedder.Backend != BackendNone {
		if err := c.AIConfig().Validate(); err != nil {
			return err
		}
	}
	if c.Ingestion.Concurrency < 0 || c.Ingestion.RetryAttempts < 0 || c.Ingestion.RatePerSecond < 0 {
		return errors.New("ingestion settings must not be negative")
	}
	if c.Search.MinScore < 0 || c.Search.MinScore > 1 {
		return errors.New("search.min_score must be between 0 and 1")
	}
	return nil
}

// EmbeddingEnabled reports whether an embedding provider is configured.
func (c *AppConfig) EmbeddingEnabled() bool {
	return c.Embedder.Backend != BackendNone
}

// AIConfig converts the embedder section into an ai.Config.
func (c *AppConfig) AIConfig() *ai.Config {
	return ai.NewConfig(
		ai.WithBackend(ai.Backend(c.Embedder.Backend)),
		ai.WithEmbeddingHost(c.Embedder.Host),
		ai.WithEmbeddingModel(c.Embedder.Model),
		ai.WithAPIKey(c.Embedder.APIKey),
		ai.WithTimeout(time.Duration(c.Embedder.TimeoutSecs)*time.Second),
	)
}

// Strategy returns the parsed chunking strategy.
func (c *AppConfig) Strategy() core.Strategy {
	s, _ := core.ParseStrategy(c.Corpus.Strategy)
	return s
}

// Strictness returns the parsed default strictness.
func (c *AppConfig) Strictness() core.Strictness {
	s, _ := core.ParseStrictness(c.Search.Strictness)
	return s
}

// QueryTimeout returns the query embedding bound.
func (c *AppConfig) QueryTimeout() time.Duration {
	return time.Duration(c.Search.QueryTimeoutMs) * time.Millisecond
}

// CallTimeout returns the per-chunk embedding bound, or zero for the
// pipeline default.
func (c *AppConfig) CallTimeout() time.Duration {
	return time.Duration(c.Ingestion.CallTimeoutSecs) * time.Second
}
