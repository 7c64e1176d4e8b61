// Package ingestion generates embeddings for corpus chunks.
//
// The Pipeline embeds every chunk that has no cached vector. The first call
// checks availability: if the provider cannot answer it, the pipeline reports
// the provider as unavailable and makes no further calls. Remaining chunks
// are sent in batches on a bounded worker pool, optionally rate limited. A
// batch that fails is retried chunk by chunk, and a chunk whose embedding
// still fails is dropped and logged while its siblings continue.
package ingestion
