package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/sethvargo/go-retry"
)

// Ollama defaults.
const (
	DefaultOllamaHost  = "http://localhost:11434"
	DefaultOllamaModel = "nomic-embed-text"

	// ollamaConnectTimeout bounds the startup health check.
	ollamaConnectTimeout = 10 * time.Second
)

// OllamaConfig configures the Ollama embedder.
type OllamaConfig struct {
	Host    string
	Model   string
	Timeout time.Duration

	// SkipHealthCheck disables the startup connectivity probe and
	// dimension autodetection (used by tests with httptest servers that
	// handle it themselves).
	SkipHealthCheck bool
}

// OllamaEmbedder generates embeddings using Ollama's HTTP API.
type OllamaEmbedder struct {
	client *http.Client
	config OllamaConfig

	mu     sync.RWMutex
	dims   int
	closed bool
}

// Verify interface implementation at compile time.
var _ Embedder = (*OllamaEmbedder)(nil)

// NewOllamaEmbedder creates an Ollama embedder and probes the endpoint to
// autodetect the model's dimension.
func NewOllamaEmbedder(ctx context.Context, cfg OllamaConfig) (*OllamaEmbedder, error) {
	if cfg.Host == "" {
		cfg.Host = DefaultOllamaHost
	}
	if cfg.Model == "" {
		cfg.Model = DefaultOllamaModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	e := &OllamaEmbedder{
		// Timeout is applied per request via context so long batch calls
		// are not cut off by a static client deadline.
		client: &http.Client{},
		config: cfg,
	}

	if !cfg.SkipHealthCheck {
		checkCtx, cancel := context.WithTimeout(ctx, ollamaConnectTimeout)
		defer cancel()

		vecs, err := e.callEmbed(checkCtx, []string{"dimension probe"})
		if err != nil {
			return nil, fmt.Errorf("connect to ollama at %s: %w", cfg.Host, err)
		}
		if len(vecs) == 0 || len(vecs[0]) == 0 {
			return nil, fmt.Errorf("ollama returned an empty probe embedding")
		}
		e.dims = len(vecs[0])
	}

	return e, nil
}

type ollamaEmbedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type ollamaEmbedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
	Error      string      `json:"error,omitempty"`
}

// EmbedBatch embeds texts via POST /api/embed, retrying transient failures.
func (e *OllamaEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if err := e.checkOpen(); err != nil {
		return nil, err
	}
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	var vecs [][]float32
	backoff := retry.WithMaxRetries(DefaultMaxRetries, retry.NewExponential(500*time.Millisecond))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		var err error
		vecs, err = e.callEmbed(ctx, texts)
		if err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(vecs) != len(texts) {
		return nil, fmt.Errorf("ollama returned %d embeddings for %d inputs", len(vecs), len(texts))
	}
	e.observeDims(vecs)
	return vecs, nil
}

// EmbedQuery embeds a single query string.
func (e *OllamaEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (e *OllamaEmbedder) callEmbed(ctx context.Context, texts []string) ([][]float32, error) {
	body, err := json.Marshal(ollamaEmbedRequest{Model: e.config.Model, Input: texts})
	if err != nil {
		return nil, err
	}

	reqCtx, cancel := context.WithTimeout(ctx, e.config.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, e.config.Host+"/api/embed", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ollama embed: status %d: %s", resp.StatusCode, truncate(string(data), 200))
	}

	var out ollamaEmbedResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("ollama embed: decode response: %w", err)
	}
	if out.Error != "" {
		return nil, fmt.Errorf("ollama embed: %s", out.Error)
	}
	return out.Embeddings, nil
}

// observeDims records the dimension from the first successful call when
// the health check was skipped.
func (e *OllamaEmbedder) observeDims(vecs [][]float32) {
	e.mu.Lock()
	if e.dims == 0 && len(vecs) > 0 {
		e.dims = len(vecs[0])
	}
	e.mu.Unlock()
}

// Dimensions returns the autodetected vector length.
func (e *OllamaEmbedder) Dimensions() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.dims
}

// ModelName returns the provider-qualified model identifier.
func (e *OllamaEmbedder) ModelName() string { return "ollama:" + e.config.Model }

// Close releases idle connections. Idempotent.
func (e *OllamaEmbedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true
	e.client.CloseIdleConnections()
	return nil
}

func (e *OllamaEmbedder) checkOpen() error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return fmt.Errorf("embedder is closed")
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
