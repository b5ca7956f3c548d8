// Package embed provides embedding providers behind a common Embedder
// interface. The provider is selected at startup from a "provider:model"
// selector; credential discovery is provider-specific.
package embed

import (
	"context"
	"time"
)

// Common embedding constants.
const (
	// DefaultBatchSize is the default number of texts per provider call.
	DefaultBatchSize = 64

	// MaxBatchSize caps batches to prevent memory exhaustion on the
	// provider side.
	MaxBatchSize = 512

	// DefaultTimeout is the per-request timeout for remote providers.
	DefaultTimeout = 60 * time.Second

	// DefaultMaxRetries is the number of attempts for transient provider
	// failures.
	DefaultMaxRetries = 3
)

// Embedder produces fixed-length vectors for text.
// Implementations must be safe for concurrent use.
type Embedder interface {
	// EmbedBatch embeds documents. The result has one vector per input,
	// in order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// EmbedQuery embeds a single search query. Providers with asymmetric
	// document/query models apply the query variant here.
	EmbedQuery(ctx context.Context, text string) ([]float32, error)

	// Dimensions returns the provider's native vector length.
	Dimensions() int

	// ModelName returns the provider-qualified model identifier.
	ModelName() string

	// Close releases provider resources.
	Close() error
}
