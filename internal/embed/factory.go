package embed

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// FactoryConfig carries the provider selection and endpoints.
type FactoryConfig struct {
	// Selector is the "provider:model" string, e.g. "ollama:nomic-embed-text".
	Selector string

	OllamaHost    string
	OpenAIBaseURL string
}

// NewEmbedder builds the embedder named by cfg.Selector. The returned
// embedder always knows its dimension: remote providers are probed once
// at startup. Query caching is applied to every provider.
func NewEmbedder(ctx context.Context, cfg FactoryConfig) (Embedder, error) {
	provider, model := splitSelector(cfg.Selector)

	var (
		embedder Embedder
		err      error
	)

	switch provider {
	case "ollama", "":
		embedder, err = NewOllamaEmbedder(ctx, OllamaConfig{
			Host:  cfg.OllamaHost,
			Model: model,
		})

	case "openai":
		embedder = NewOpenAIEmbedder(OpenAIConfig{
			BaseURL: cfg.OpenAIBaseURL,
			Model:   model,
		})

	case "static":
		embedder = NewStaticEmbedder()

	default:
		return nil, fmt.Errorf("unknown embedding provider %q", provider)
	}
	if err != nil {
		return nil, err
	}

	// Providers that only learn their dimension from a response get a
	// probe call, so dimension validation can happen before any writes.
	if embedder.Dimensions() == 0 {
		if _, err := embedder.EmbedQuery(ctx, "dimension probe"); err != nil {
			_ = embedder.Close()
			return nil, fmt.Errorf("probe %s: %w", embedder.ModelName(), err)
		}
	}

	slog.Info("embedder ready",
		slog.String("model", embedder.ModelName()),
		slog.Int("dimensions", embedder.Dimensions()))

	return NewCachedEmbedder(embedder, DefaultQueryCacheSize), nil
}

// splitSelector splits "provider:model"; a bare provider keeps the
// provider default model.
func splitSelector(s string) (provider, model string) {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, ':'); i >= 0 {
		return strings.ToLower(s[:i]), s[i+1:]
	}
	return strings.ToLower(s), ""
}
