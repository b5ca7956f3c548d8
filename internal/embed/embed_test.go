package embed

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStaticEmbedder_Deterministic(t *testing.T) {
	e := NewStaticEmbedder()
	defer e.Close()

	a, err := e.EmbedQuery(context.Background(), "hybrid search with rrf")
	require.NoError(t, err)
	b, err := e.EmbedQuery(context.Background(), "hybrid search with rrf")
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.Len(t, a, StaticDimensions)
}

func TestStaticEmbedder_UnitNorm(t *testing.T) {
	e := NewStaticEmbedder()
	defer e.Close()

	vec, err := e.EmbedQuery(context.Background(), "normalize this")
	require.NoError(t, err)

	var sum float64
	for _, x := range vec {
		sum += float64(x) * float64(x)
	}
	assert.InDelta(t, 1.0, math.Sqrt(sum), 1e-5)
}

func TestStaticEmbedder_EmptyTextIsZeroVector(t *testing.T) {
	e := NewStaticEmbedder()
	defer e.Close()

	vec, err := e.EmbedQuery(context.Background(), "   ")
	require.NoError(t, err)
	for _, x := range vec {
		require.Zero(t, x)
	}
}

func TestStaticEmbedder_BatchMatchesSingle(t *testing.T) {
	e := NewStaticEmbedder()
	defer e.Close()

	batch, err := e.EmbedBatch(context.Background(), []string{"alpha", "beta"})
	require.NoError(t, err)
	require.Len(t, batch, 2)

	single, err := e.EmbedQuery(context.Background(), "alpha")
	require.NoError(t, err)
	assert.Equal(t, single, batch[0])
}

func TestStaticEmbedder_ClosedReturnsError(t *testing.T) {
	e := NewStaticEmbedder()
	require.NoError(t, e.Close())

	_, err := e.EmbedQuery(context.Background(), "anything")
	assert.Error(t, err)
}

func TestOllamaEmbedder_EmbedBatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/embed", r.URL.Path)

		var req ollamaEmbedRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		out := ollamaEmbedResponse{Embeddings: make([][]float32, len(req.Input))}
		for i := range req.Input {
			out.Embeddings[i] = []float32{1, 2, 3, 4}
		}
		_ = json.NewEncoder(w).Encode(out)
	}))
	defer srv.Close()

	e, err := NewOllamaEmbedder(context.Background(), OllamaConfig{Host: srv.URL, Model: "test-model"})
	require.NoError(t, err)
	defer e.Close()

	// Health check probe already detected dimensions.
	assert.Equal(t, 4, e.Dimensions())
	assert.Equal(t, "ollama:test-model", e.ModelName())

	vecs, err := e.EmbedBatch(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	require.Len(t, vecs, 2)
	assert.Equal(t, []float32{1, 2, 3, 4}, vecs[1])
}

func TestOpenAIEmbedder_OrdersByIndex(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/embeddings", r.URL.Path)

		// Respond out of order; the client must reorder by index.
		_, _ = w.Write([]byte(`{"data":[
			{"index":1,"embedding":[2,2]},
			{"index":0,"embedding":[1,1]}
		]}`))
	}))
	defer srv.Close()

	e := NewOpenAIEmbedder(OpenAIConfig{BaseURL: srv.URL, Model: "test"})
	defer e.Close()

	vecs, err := e.EmbedBatch(context.Background(), []string{"first", "second"})
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 1}, vecs[0])
	assert.Equal(t, []float32{2, 2}, vecs[1])
	assert.Equal(t, 2, e.Dimensions())
}

func TestCachedEmbedder_SkipsRepeatQueries(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte(`{"embeddings":[[1,0,0]]}`))
	}))
	defer srv.Close()

	inner, err := NewOllamaEmbedder(context.Background(), OllamaConfig{Host: srv.URL, Model: "m", SkipHealthCheck: true})
	require.NoError(t, err)
	cached := NewCachedEmbedder(inner, 8)
	defer cached.Close()

	_, err = cached.EmbedQuery(context.Background(), "same query")
	require.NoError(t, err)
	_, err = cached.EmbedQuery(context.Background(), "same query")
	require.NoError(t, err)

	assert.Equal(t, int64(1), calls.Load())
}

func TestNewEmbedder_StaticSelector(t *testing.T) {
	e, err := NewEmbedder(context.Background(), FactoryConfig{Selector: "static:"})
	require.NoError(t, err)
	defer e.Close()

	assert.Equal(t, StaticDimensions, e.Dimensions())
}

func TestNewEmbedder_UnknownProvider(t *testing.T) {
	_, err := NewEmbedder(context.Background(), FactoryConfig{Selector: "bogus:model"})
	assert.Error(t, err)
}
