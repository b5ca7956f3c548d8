package embed

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"regexp"
	"strings"
	"sync"
)

// StaticDimensions is the vector length of the static embedder.
const StaticDimensions = 384

// Weights for vector generation.
const (
	tokenWeight = 0.7
	ngramWeight = 0.3
	ngramSize   = 3
)

// tokenRegex matches alphanumeric sequences.
var tokenRegex = regexp.MustCompile(`[a-zA-Z0-9]+`)

// StaticEmbedder generates embeddings using a hash-based approach.
// It works without external dependencies (no network, no model download)
// and is deterministic, which makes it the offline fallback and the
// embedder used throughout the tests. Semantic quality is reduced.
type StaticEmbedder struct {
	mu     sync.RWMutex
	closed bool
}

// Verify interface implementation at compile time.
var _ Embedder = (*StaticEmbedder)(nil)

// NewStaticEmbedder creates a new static embedder.
func NewStaticEmbedder() *StaticEmbedder {
	return &StaticEmbedder{}
}

// EmbedBatch generates embeddings for multiple texts.
func (e *StaticEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		vec, err := e.embed(text)
		if err != nil {
			return nil, err
		}
		vectors[i] = vec
	}
	return vectors, nil
}

// EmbedQuery generates an embedding for a single query.
func (e *StaticEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}
	return e.embed(text)
}

func (e *StaticEmbedder) embed(text string) ([]float32, error) {
	e.mu.RLock()
	closed := e.closed
	e.mu.RUnlock()
	if closed {
		return nil, fmt.Errorf("embedder is closed")
	}

	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return make([]float32, StaticDimensions), nil
	}
	return normalizeVector(e.generateVector(trimmed)), nil
}

// generateVector creates a hash-based vector: tokens carry most of the
// weight, character trigrams provide fuzziness for near-matches.
func (e *StaticEmbedder) generateVector(text string) []float32 {
	vector := make([]float32, StaticDimensions)

	for _, token := range tokenRegex.FindAllString(strings.ToLower(text), -1) {
		vector[hashToIndex(token, StaticDimensions)] += tokenWeight
	}

	normalized := strings.ToLower(text)
	for i := 0; i+ngramSize <= len(normalized); i++ {
		vector[hashToIndex(normalized[i:i+ngramSize], StaticDimensions)] += ngramWeight
	}

	return vector
}

// Dimensions returns the vector length.
func (e *StaticEmbedder) Dimensions() int { return StaticDimensions }

// ModelName identifies this embedder in cache keys and logs.
func (e *StaticEmbedder) ModelName() string { return "static:fnv-384" }

// Close marks the embedder closed. Idempotent.
func (e *StaticEmbedder) Close() error {
	e.mu.Lock()
	e.closed = true
	e.mu.Unlock()
	return nil
}

func hashToIndex(s string, dims int) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(s))
	return int(h.Sum32() % uint32(dims))
}

// normalizeVector scales the vector to unit length so that L2 distance
// behaves like cosine distance.
func normalizeVector(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return v
	}
	norm := float32(math.Sqrt(sum))
	for i := range v {
		v[i] /= norm
	}
	return v
}
