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


// Package versegrounding retrieves passages from a fixed corpus that are
// relevant to a natural-language query.
//
// An Engine loads passages from a corpus.Source, splits them into chunks,
// embeds the chunks through an ai.Embedder (reusing a persisted cache when
// it is still valid) and answers queries with a semantic search backed by
// a lexical keyword fallback.
//
// Basic usage:
//
//	engine, err := versegrounding.New(corpus.NewJSONFile("kjv.json"), embedder, store)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer engine.Close()
//
//	if err := engine.Initialize(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	results, err := engine.RetrieveRelevant(ctx, "love your neighbour", 5, 0.3, core.StrictnessBalanced)
//
// A provider that cannot be reached on the first embedding call disables
// semantic search until Reinitialize is called; queries continue to be
// answered from the lexical scorer.
package versegrounding
