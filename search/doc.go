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


// Package search provides hybrid semantic and lexical passage retrieval.
//
// The Searcher runs up to two phases per query:
//   - Semantic search: embed the query and rank the vector index by cosine similarity
//   - Lexical fallback: keyword overlap scoring over every chunk
//
// Strictness decides the effective minimum score for both phases and whether
// the lexical phase may run. Candidates from both phases are merged, lexical
// duplicates of semantic hits are dropped, and the result is ranked by score
// and truncated to the requested limit.
//
// A Searcher is immutable after construction and safe for concurrent use.
package search
