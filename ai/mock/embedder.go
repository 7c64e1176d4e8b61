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


package mock

import (
	"context"
	"errors"
	"hash/fnv"
	"math"
	"strings"
	"sync"
	"sync/atomic"
)

// ErrUnavailable is the error returned by an embedder made unavailable with
// SetUnavailable.
var ErrUnavailable = errors.New("mock embedder: provider unavailable")

// DefaultDimension is the vector size of the default deterministic embedding.
const DefaultDimension = 384

// MockEmbedder is a test double for ai.Embedder.
// It allows custom behavior injection via function fields and is safe for
// concurrent use.
type MockEmbedder struct {
	mu             sync.RWMutex
	embedTextFunc  func(ctx context.Context, text string) ([]float32, error)
	embedTextsFunc func(ctx context.Context, texts []string) ([][]float32, error)
	modelID        string

	callCount atomic.Int64
}

// NewMockEmbedder creates a mock embedder with default deterministic behavior.
// Note: Returns concrete type to allow test assertions.
func NewMockEmbedder() *MockEmbedder {
	return &MockEmbedder{modelID: "mock-embedding"}
}

// WithEmbedTextFunc replaces the single-text behavior.
func (m *MockEmbedder) WithEmbedTextFunc(fn func(ctx context.Context, text string) ([]float32, error)) *MockEmbedder {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.embedTextFunc = fn
	return m
}

// WithEmbedTextsFunc replaces the batch behavior.
func (m *MockEmbedder) WithEmbedTextsFunc(fn func(ctx context.Context, texts []string) ([][]float32, error)) *MockEmbedder {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.embedTextsFunc = fn
	return m
}

// WithModelID sets the value returned by ModelID.
func (m *MockEmbedder) WithModelID(id string) *MockEmbedder {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.modelID = id
	return m
}

// SetUnavailable makes every call fail with ErrUnavailable.
func (m *MockEmbedder) SetUnavailable() *MockEmbedder {
	fail := func(ctx context.Context, text string) ([]float32, error) {
		return nil, ErrUnavailable
	}
	failBatch := func(ctx context.Context, texts []string) ([][]float32, error) {
		return nil, ErrUnavailable
	}
	return m.WithEmbedTextFunc(fail).WithEmbedTextsFunc(failBatch)
}

// ModelID returns the configured model identifier.
func (m *MockEmbedder) ModelID() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.modelID
}

// EmbedText generates a deterministic embedding based on text hash.
func (m *MockEmbedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	m.callCount.Add(1)

	m.mu.RLock()
	fn := m.embedTextFunc
	m.mu.RUnlock()
	if fn != nil {
		return fn(ctx, text)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return generateDeterministicVector(text, DefaultDimension), nil
}

// EmbedTexts generates deterministic embeddings for multiple texts.
// Without a batch func it delegates to the single-text behavior.
func (m *MockEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	m.mu.RLock()
	fn := m.embedTextsFunc
	single := m.embedTextFunc
	m.mu.RUnlock()
	if fn != nil {
		m.callCount.Add(1)
		return fn(ctx, texts)
	}

	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		if single != nil {
			m.callCount.Add(1)
			v, err := single(ctx, text)
			if err != nil {
				return nil, err
			}
			vectors[i] = v
			continue
		}
		v, err := m.EmbedText(ctx, text)
		if err != nil {
			return nil, err
		}
		vectors[i] = v
	}
	return vectors, nil
}

// CallCount returns the number of embedding calls made.
func (m *MockEmbedder) CallCount() int {
	return int(m.callCount.Load())
}

// Reset clears the call count and custom behavior.
func (m *MockEmbedder) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callCount.Store(0)
	m.embedTextFunc = nil
	m.embedTextsFunc = nil
}

// BagOfWords returns an EmbedText func mapping text onto one dimension per
// vocabulary word, counting occurrences. Texts sharing vocabulary words are
// similar; texts with none produce a zero vector.
func BagOfWords(vocabulary ...string) func(ctx context.Context, text string) ([]float32, error) {
	positions := make(map[string]int, len(vocabulary))
	for i, word := range vocabulary {
		positions[strings.ToLower(word)] = i
	}
	return func(ctx context.Context, text string) ([]float32, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		v := make([]float32, len(vocabulary))
		for _, word := range strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
			return !(r >= 'a' && r <= 'z')
		}) {
			if i, ok := positions[word]; ok {
				v[i]++
			}
		}
		return v, nil
	}
}

// generateDeterministicVector creates a deterministic unit vector from text.
// It uses FNV hash to ensure the same text always produces the same vector.
func generateDeterministicVector(text string, dim int) []float32 {
	h := fnv.New32a()
	h.Write([]byte(text))
	seed := h.Sum32()

	vector := make([]float32, dim)
	for i := 0; i < dim; i++ {
		seed = seed*1664525 + 1013904223 // LCG constants
		vector[i] = float32(seed%1000) / 1000.0
	}

	var sumSquares float64
	for _, v := range vector {
		sumSquares += float64(v) * float64(v)
	}
	if sumSquares > 0 {
		norm := float32(1.0 / math.Sqrt(sumSquares))
		for i := range vector {
			vector[i] *= norm
		}
	}

	return vector
}
