// Package embedding defines the embedding provider contract and an
// Ollama-compatible HTTP implementation with circuit breaking, rate limiting
// and a query-embedding cache.
package embedding

import "context"

// Embedder maps text to fixed-dimension vectors. Implementations are opaque
// to the retrieval core; the only contract is the dimension staying constant
// for the provider's lifetime.
type Embedder interface {
	// Embed returns the vector for a single text.
	Embed(ctx context.Context, text string) ([]float64, error)

	// EmbedBatch returns one vector per input text, in order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float64, error)

	// Dimensions reports the fixed vector dimension.
	Dimensions() int
}
