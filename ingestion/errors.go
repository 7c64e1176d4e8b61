package ingestion

import "errors"

var (
	// ErrEmbedderRequired is returned when an embedder is not provided.
	ErrEmbedderRequired = errors.New("embedder required")

	// ErrInvalidMaxAttempts is returned when maxAttempts is <= 0.
	ErrInvalidMaxAttempts = errors.New("maxAttempts must be greater than 0")

	// ErrEmptyVector is returned when the embedder answers with no values.
	ErrEmptyVector = errors.New("embedder returned an empty vector")

	// ErrDimensionMismatch is returned when a vector's length differs from
	// the one established by the first call.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")

	// ErrBatchMismatch is returned when a batch call answers with a different
	// number of vectors than texts sent.
	ErrBatchMismatch = errors.New("embedding batch size mismatch")
)
