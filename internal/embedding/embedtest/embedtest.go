// Package embedtest provides a deterministic in-process Embedder for tests.
// Vectors are derived from word hashes, so texts sharing words land near each
// other in vector space and results are reproducible across runs.
package embedtest

import (
	"context"
	"hash/fnv"
	"strings"

	"github.com/agentrecall/recall/internal/embedding"
)

// Embedder is a deterministic, dependency-free embedding provider.
type Embedder struct {
	dims int
}

var _ embedding.Embedder = (*Embedder)(nil)

// New creates a test embedder with the given dimension (384 when <= 0).
func New(dims int) *Embedder {
	if dims <= 0 {
		dims = 384
	}
	return &Embedder{dims: dims}
}

// Dimensions reports the fixed vector dimension.
func (e *Embedder) Dimensions() int {
	return e.dims
}

// Embed hashes each lowercased word into a dimension bucket and normalizes
// the result. Shared words produce overlapping buckets, so lexical overlap
// translates into cosine similarity.
func (e *Embedder) Embed(_ context.Context, text string) ([]float64, error) {
	v := make([]float64, e.dims)
	for _, word := range strings.Fields(strings.ToLower(text)) {
		h := fnv.New32a()
		h.Write([]byte(word))
		v[int(h.Sum32())%e.dims] += 1
	}
	embedding.Normalize(v)
	return v, nil
}

// EmbedBatch embeds each text independently.
func (e *Embedder) EmbedBatch(ctx context.Context, texts []string) ([][]float64, error) {
	out := make([][]float64, len(texts))
	for i, t := range texts {
		v, err := e.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}
