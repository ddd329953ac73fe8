package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
)

const (
	defaultBaseURL    = "http://localhost:11434"
	defaultModel      = "all-minilm"
	defaultDimensions = 384
	defaultTimeout    = 30 * time.Second

	// cacheSize bounds the embedding cache. Only search queries benefit from
	// it (stored content is embedded once), so a small cache suffices.
	cacheSize = 512

	// requestsPerSecond throttles calls to the embedding endpoint so a burst
	// of recall queries cannot saturate a locally hosted model.
	requestsPerSecond = 20
)

// OllamaConfig configures the Ollama embedding client.
type OllamaConfig struct {
	BaseURL    string        // default http://localhost:11434
	Model      string        // default all-minilm
	Dimensions int           // default 384
	Timeout    time.Duration // per-request timeout, default 30s
}

// OllamaEmbedder talks to an Ollama-compatible /api/embed endpoint. All calls
// go through a circuit breaker so a wedged model server fails fast instead of
// stalling every memory operation, and a token-bucket limiter smooths bursts.
// Returned vectors are normalized to unit length.
type OllamaEmbedder struct {
	baseURL string
	model   string
	dims    int
	client  *http.Client
	breaker *gobreaker.CircuitBreaker
	limiter *rate.Limiter
	cache   *lru.Cache[string, []float64]
}

var _ Embedder = (*OllamaEmbedder)(nil)

// NewOllamaEmbedder creates the client. Zero-value config fields fall back to
// defaults.
func NewOllamaEmbedder(cfg OllamaConfig) (*OllamaEmbedder, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	if cfg.Dimensions <= 0 {
		cfg.Dimensions = defaultDimensions
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}

	cache, err := lru.New[string, []float64](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("embedding: create cache: %w", err)
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "ollama-embed",
		MaxRequests: 2,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
	})

	return &OllamaEmbedder{
		baseURL: cfg.BaseURL,
		model:   cfg.Model,
		dims:    cfg.Dimensions,
		client:  &http.Client{Timeout: cfg.Timeout},
		breaker: breaker,
		limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), requestsPerSecond),
		cache:   cache,
	}, nil
}

// Dimensions reports the configured vector dimension.
func (o *OllamaEmbedder) Dimensions() int {
	return o.dims
}

// Embed returns the unit-normalized vector for a single text, served from the
// cache when the same text was embedded before.
func (o *OllamaEmbedder) Embed(ctx context.Context, text string) ([]float64, error) {
	if v, ok := o.cache.Get(text); ok {
		return v, nil
	}
	vectors, err := o.request(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("embedding: expected 1 vector, got %d", len(vectors))
	}
	o.cache.Add(text, vectors[0])
	return vectors[0], nil
}

// EmbedBatch embeds all texts in one provider call.
func (o *OllamaEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float64, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	vectors, err := o.request(ctx, texts)
	if err != nil {
		return nil, err
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("embedding: expected %d vectors, got %d", len(texts), len(vectors))
	}
	return vectors, nil
}

type embedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embedResponse struct {
	Embeddings [][]float64 `json:"embeddings"`
}

func (o *OllamaEmbedder) request(ctx context.Context, texts []string) ([][]float64, error) {
	if err := o.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("embedding: rate limit wait: %w", err)
	}

	body, err := json.Marshal(embedRequest{Model: o.model, Input: texts})
	if err != nil {
		return nil, fmt.Errorf("embedding: marshal request: %w", err)
	}

	result, err := o.breaker.Execute(func() (interface{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/api/embed", bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := o.client.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			payload, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			return nil, fmt.Errorf("status %d: %s", resp.StatusCode, payload)
		}

		var parsed embedResponse
		if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
			return nil, fmt.Errorf("decode response: %w", err)
		}
		return parsed.Embeddings, nil
	})
	if err != nil {
		return nil, fmt.Errorf("embedding: %s: %w", o.model, err)
	}

	vectors := result.([][]float64)
	for i, v := range vectors {
		if len(v) != o.dims {
			return nil, fmt.Errorf("embedding: vector %d has dimension %d, want %d", i, len(v), o.dims)
		}
		Normalize(v)
	}
	return vectors, nil
}

// Normalize scales v to unit length in place. Zero vectors are left as-is.
func Normalize(v []float64) {
	var norm float64
	for _, f := range v {
		norm += f * f
	}
	if norm == 0 {
		return
	}
	norm = math.Sqrt(norm)
	for i := range v {
		v[i] /= norm
	}
}
