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


// Package ai defines the embedding provider abstraction used by the engine.
//
// The engine never talks to a model server directly. It depends on the
// Embedder interface, and callers pick an implementation:
//
//   - ai/openai: any OpenAI-compatible server via langchaingo (Ollama, vLLM, LocalAI)
//   - ai/goopenai: the hosted OpenAI API via go-openai
//   - ai/mock: deterministic test double
//
// # Constructor Return Type Pattern
//
// Production constructors (openai.NewEmbedder, goopenai.NewEmbedder) return
// the ai.Embedder interface. The mock constructor returns the concrete
// *mock.MockEmbedder so tests can inject failures and read call counts.
//
//	embedder, err := openai.NewEmbedder(ai.NewConfig(
//	    ai.WithEmbeddingHost("http://localhost:11434"),
//	))
//
// # Failure Model
//
// Embedders report failures as plain errors. Deciding what a failure means
// (drop one chunk, or give up on semantic search entirely) is left to the
// ingestion pipeline.
package ai
