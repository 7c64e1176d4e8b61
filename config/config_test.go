package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/poiesic/versegrounding/ai"
	"github.com/poiesic/versegrounding/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, name := range []string{EnvEmbeddingBackend, EnvEmbeddingHost, EnvEmbeddingModel,
		EnvCorpusPath, EnvCachePath, EnvConcurrency, DefaultAPIKeyEnv} {
		t.Setenv(name, "")
	}
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_MissingFileReturnsDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)

	assert.Equal(t, Default().Search, cfg.Search)
	assert.Equal(t, core.StrategySingle, cfg.Strategy())
	assert.Equal(t, core.StrictnessBalanced, cfg.Strictness())
	assert.Equal(t, 5*time.Second, cfg.QueryTimeout())
	assert.True(t, cfg.EmbeddingEnabled())
}

func TestLoad_EmptyPath(t *testing.T) {
	clearEnv(t)
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, CacheFile, cfg.Cache.Type)
}

func TestLoad_PartialFileKeepsDefaults(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
corpus:
  path: kjv.json
  strategy: grouped
  group_size: 4
search:
  strictness: strict
  min_score: 0.6
cache:
  type: badger
  path: /tmp/cache
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "kjv.json", cfg.Corpus.Path)
	assert.Equal(t, core.StrategyGrouped, cfg.Strategy())
	assert.Equal(t, 4, cfg.Corpus.GroupSize)
	assert.Equal(t, core.StrictnessStrict, cfg.Strictness())
	assert.InDelta(t, 0.6, cfg.Search.MinScore, 1e-9)
	assert.Equal(t, 5, cfg.Search.Limit)
	assert.Equal(t, CacheBadger, cfg.Cache.Type)
	assert.Equal(t, "embeddinggemma", cfg.Embedder.Model)
}

func TestLoad_EnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvEmbeddingHost, "http://embed:8080")
	t.Setenv(EnvEmbeddingModel, "nomic-embed-text")
	t.Setenv(EnvCorpusPath, "/data/web.json")
	t.Setenv(EnvCachePath, "/data/web.cache")
	t.Setenv(EnvConcurrency, "3")
	t.Setenv(DefaultAPIKeyEnv, "secret")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "http://embed:8080", cfg.Embedder.Host)
	assert.Equal(t, "nomic-embed-text", cfg.Embedder.Model)
	assert.Equal(t, "/data/web.json", cfg.Corpus.Path)
	assert.Equal(t, "/data/web.cache", cfg.Cache.Path)
	assert.Equal(t, 3, cfg.Ingestion.Concurrency)
	assert.Equal(t, "secret", cfg.Embedder.APIKey)

	aiCfg := cfg.AIConfig()
	assert.Equal(t, ai.BackendCompatible, aiCfg.Backend)
	assert.Equal(t, "secret", aiCfg.APIKey)
	assert.Equal(t, 30*time.Second, aiCfg.Timeout)
}

func TestLoad_CustomAPIKeyEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("MY_EMBED_KEY", "k")
	path := writeConfig(t, "embedder:\n  backend: openai\n  model: text-embedding-3-small\n  api_key_env: MY_EMBED_KEY\n")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "k", cfg.Embedder.APIKey)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
		env  map[string]string
	}{
		{name: "bad yaml", body: "corpus: [unterminated"},
		{name: "bad strategy", body: "corpus:\n  strategy: paragraphs\n"},
		{name: "bad strictness", body: "search:\n  strictness: lenient\n"},
		{name: "bad cache type", body: "cache:\n  type: redis\n"},
		{name: "min score out of range", body: "search:\n  min_score: 1.5\n"},
		{name: "openai without key", body: "embedder:\n  backend: openai\n"},
		{name: "bad concurrency env", env: map[string]string{EnvConcurrency: "many"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			path := ""
			if tt.body != "" {
				path = writeConfig(t, tt.body)
			}
			_, err := Load(path)
			assert.Error(t, err)
		})
	}
}

func TestLoad_DisabledEmbedder(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvEmbeddingBackend, BackendNone)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.False(t, cfg.EmbeddingEnabled())
}

func TestSaveThenLoad(t *testing.T) {
	clearEnv(t)
	cfg := Default()
	cfg.Corpus.Path = "asv.json"
	cfg.Search.Strictness = "relaxed"
	cfg.Embedder.APIKey = "never-written"

	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	require.NoError(t, Save(path, cfg))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "never-written")

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "asv.json", loaded.Corpus.Path)
	assert.Equal(t, core.StrictnessRelaxed, loaded.Strictness())
}
