// Package mock provides a test double for the ai.Embedder interface.
//
// The mock lets tests run without an embedding server and with controlled,
// deterministic behavior.
//
// # Usage in Tests
//
//	// Deterministic hash-based vectors
//	embedder := mock.NewMockEmbedder()
//
//	// Vectors whose similarity follows shared words
//	embedder := mock.NewMockEmbedder().
//	    WithEmbedTextFunc(mock.BagOfWords("love", "faith", "hope"))
//
//	// Provider that never answers
//	embedder := mock.NewMockEmbedder().SetUnavailable()
//
//	// Check call counts
//	count := embedder.CallCount()
package mock
