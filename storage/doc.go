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


// Package storage provides the embedding cache abstraction for versegrounding.
//
// This package defines the Store interface, the persisted CacheRecord and
// its binary encoding. A cache record is an immutable snapshot: it carries
// the embedding model ID, the chunking strategy and the chunk count it was
// produced under, and is discarded wholesale when any of them changes.
//
// # Backends
//
//   - storage/file: a single file replaced atomically on every write
//   - storage/badger: a BadgerDB key written in one transaction
//
// Both backends serialize access so only one writer is ever active.
//
// # Usage
//
//	store, err := file.NewStore("/var/cache/versegrounding/embeddings.bin")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer store.Close()
//
//	vectors, err := store.Load(ctx, meta, chunks)
//	if errors.Is(err, storage.ErrCacheStale) {
//	    // regenerate
//	}
//
// # Context Support
//
// All store methods accept context.Context and return early when it is
// already cancelled. Pass context.Background() for operations without
// specific timeout requirements.
package storage
