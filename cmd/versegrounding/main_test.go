package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/poiesic/versegrounding/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"
)

const testCorpus = `{
  "translation": "KJV",
  "books": [
    {"name": "Psalms", "testament": "OT", "chapters": [
      {"chapter": 23, "verses": [
        {"verse_num": 1, "text": "The LORD is my shepherd; I shall not want."},
        {"verse_num": 2, "text": "He maketh me to lie down in green pastures: he leadeth me beside the still waters."}
      ]}
    ]},
    {"name": "John", "testament": "NT", "chapters": [
      {"chapter": 3, "verses": [
        {"verse_num": 16, "text": "For God so loved the world, that he gave his only begotten Son"}
      ]}
    ]}
  ]
}`

// writeFixture writes a corpus and a lexical-only config and returns the
// config path.
func writeFixture(t *testing.T, cacheType string) (string, string) {
	t.Helper()
	for _, name := range []string{config.EnvEmbeddingBackend, config.EnvEmbeddingHost, config.EnvEmbeddingModel,
		config.EnvCorpusPath, config.EnvCachePath, config.EnvConcurrency} {
		t.Setenv(name, "")
	}

	dir := t.TempDir()
	corpusPath := filepath.Join(dir, "kjv.json")
	require.NoError(t, os.WriteFile(corpusPath, []byte(testCorpus), 0o644))

	cfg := config.Default()
	cfg.Corpus.Path = corpusPath
	cfg.Embedder.Backend = config.BackendNone
	cfg.Cache.Type = cacheType
	cfg.Cache.Path = filepath.Join(dir, "cache")
	configPath := filepath.Join(dir, "versegrounding.yaml")
	require.NoError(t, config.Save(configPath, cfg))
	return configPath, cfg.Cache.Path
}

func runApp(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	app := newApp()
	var out, errOut bytes.Buffer
	app.Writer = &out
	app.ErrWriter = &errOut
	app.Reader = strings.NewReader(stdin)
	err := app.Run(append([]string{"versegrounding"}, args...))
	return out.String(), err
}

func findFlag[T cli.Flag](flags []cli.Flag, name string) T {
	var zero T
	for _, flag := range flags {
		if f, ok := flag.(T); ok && len(flag.Names()) > 0 && flag.Names()[0] == name {
			return f
		}
	}
	return zero
}

func TestAppFlags(t *testing.T) {
	app := newApp()

	t.Run("log-level defaults to info", func(t *testing.T) {
		f := findFlag[*cli.StringFlag](app.Flags, "log-level")
		require.NotNil(t, f)
		assert.Equal(t, "info", f.Value)
	})

	t.Run("commands are registered", func(t *testing.T) {
		var names []string
		for _, cmd := range app.Commands {
			names = append(names, cmd.Name)
		}
		assert.Equal(t, []string{"index", "search", "interactive", "clear-cache"}, names)
	})

	t.Run("interactive accepts metrics address", func(t *testing.T) {
		f := findFlag[*cli.StringFlag](app.Command("interactive").Flags, "metrics-addr")
		require.NotNil(t, f)
		assert.Empty(t, f.Value)
	})

	t.Run("report-interval has default value of 100", func(t *testing.T) {
		f := findFlag[*cli.IntFlag](app.Command("index").Flags, "report-interval")
		require.NotNil(t, f)
		assert.Equal(t, 100, f.Value)
	})
}

func TestInvalidLogLevel(t *testing.T) {
	_, err := runApp(t, "", "--log-level", "verbose", "clear-cache")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid log level")
}

func TestSearchCommand(t *testing.T) {
	configPath, _ := writeFixture(t, config.CacheNone)

	t.Run("lexical results", func(t *testing.T) {
		out, err := runApp(t, "", "--config", configPath, "search", "--stats", "shepherd")
		require.NoError(t, err)
		assert.Contains(t, out, "Found 1 hits")
		assert.Contains(t, out, "Psalms 23:1")
		assert.Contains(t, out, "fallback=true")
	})

	t.Run("query is required", func(t *testing.T) {
		_, err := runApp(t, "", "--config", configPath, "search")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "query is required")
	})

	t.Run("invalid strictness", func(t *testing.T) {
		_, err := runApp(t, "", "--config", configPath, "search", "--strictness", "lenient", "love")
		assert.Error(t, err)
	})

	t.Run("missing corpus", func(t *testing.T) {
		_, err := runApp(t, "", "--config", configPath, "--corpus", filepath.Join(t.TempDir(), "none.json"), "search", "love")
		assert.Error(t, err)
	})
}

func TestInteractiveCommand(t *testing.T) {
	configPath, _ := writeFixture(t, config.CacheNone)

	out, err := runApp(t, "shepherd\n\nwaters\n:quit\nnever asked\n", "--config", configPath, "interactive", "--limit", "1")
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(out, "Found 1 hits"))
	assert.Contains(t, out, "Psalms 23:2")
	assert.NotContains(t, out, "never asked")
}

func TestIndexAndClearCache(t *testing.T) {
	configPath, cachePath := writeFixture(t, config.CacheBadger)

	out, err := runApp(t, "", "--config", configPath, "index")
	require.NoError(t, err)
	assert.Contains(t, out, "only lexical search")

	out, err = runApp(t, "", "--config", configPath, "clear-cache")
	require.NoError(t, err)
	assert.Contains(t, out, cachePath)
}

func TestClearCacheWithoutStore(t *testing.T) {
	configPath, _ := writeFixture(t, config.CacheNone)

	out, err := runApp(t, "", "--config", configPath, "clear-cache")
	require.NoError(t, err)
	assert.Contains(t, out, "No cache configured")
}
