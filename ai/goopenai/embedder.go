// Package goopenai implements ai.Embedder for the hosted OpenAI API using
// the go-openai client.
package goopenai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/poiesic/versegrounding/ai"
	openai "github.com/sashabaranov/go-openai"
)

var (
	// ErrEmptyEmbedding is returned when the API answers without a vector.
	ErrEmptyEmbedding = errors.New("no embedding data returned from API")
	// ErrEmptyText is returned for blank input, which the API rejects.
	ErrEmptyText = errors.New("cannot embed empty text")
)

// Embedder uses the OpenAI embeddings endpoint.
type Embedder struct {
	client *openai.Client
	model  string
	logger *slog.Logger
}

var _ ai.Embedder = (*Embedder)(nil)

// NewEmbedder creates an embedder from config. The API key is required.
func NewEmbedder(config *ai.Config) (ai.Embedder, error) {
	if config.Backend == "" {
		config.Backend = ai.BackendOpenAI
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	clientConfig := openai.DefaultConfig(config.APIKey)
	clientConfig.BaseURL = config.EmbeddingHost
	clientConfig.HTTPClient = &http.Client{Timeout: config.Timeout}

	return &Embedder{
		client: openai.NewClientWithConfig(clientConfig),
		model:  config.EmbeddingModel,
		logger: slog.Default().With("component", "goopenai-embedder", "model", config.EmbeddingModel),
	}, nil
}

// ModelID returns the configured embedding model name.
func (e *Embedder) ModelID() string {
	return e.model
}

// EmbedText generates an embedding for a single text.
func (e *Embedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.EmbedTexts(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedTexts generates embeddings for texts in one request. Results follow
// the input order regardless of the order the API lists them in.
func (e *Embedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	for _, text := range texts {
		if len(text) == 0 {
			return nil, ErrEmptyText
		}
	}
	e.logger.Debug("generating embeddings for texts", "count", len(texts))

	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Model: openai.EmbeddingModel(e.model),
		Input: texts,
	})
	if err != nil {
		return nil, fmt.Errorf("OpenAI API error: %w", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, ErrEmptyEmbedding
	}

	vectors := make([][]float32, len(texts))
	for _, data := range resp.Data {
		if data.Index < 0 || data.Index >= len(texts) || len(data.Embedding) == 0 {
			return nil, ErrEmptyEmbedding
		}
		v := make([]float32, len(data.Embedding))
		for i := range data.Embedding {
			v[i] = float32(data.Embedding[i])
		}
		vectors[data.Index] = v
	}
	for _, v := range vectors {
		if v == nil {
			return nil, ErrEmptyEmbedding
		}
	}
	return vectors, nil
}
