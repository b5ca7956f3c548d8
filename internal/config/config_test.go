package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)

	assert.Equal(t, 6280, cfg.Server.Port)
	assert.Equal(t, 3, cfg.Pipeline.Concurrency)
	assert.Equal(t, "ollama:nomic-embed-text", cfg.Embeddings.Model)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "docdex.yaml")
	body := `
server:
  port: 9000
embeddings:
  model: "openai:text-embedding-3-small"
scraper:
  maxPages: 50
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, 50, cfg.Scraper.MaxPages)
	// Untouched keys keep their defaults.
	assert.Equal(t, 3, cfg.Scraper.MaxDepth)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	t.Setenv("DOCDEX_EMBEDDING_MODEL", "static:")
	t.Setenv("DOCDEX_PORT", "7001")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "static:", cfg.Embeddings.Model)
	assert.Equal(t, 7001, cfg.Server.Port)
}

func TestValidate_RejectsUnknownProvider(t *testing.T) {
	cfg := Default()
	cfg.Embeddings.Model = "duckdb:whatever"

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "embedding provider")
}

func TestEmbeddingProviderModel_SplitsSelector(t *testing.T) {
	tests := []struct {
		selector string
		provider string
		model    string
	}{
		{"ollama:nomic-embed-text", "ollama", "nomic-embed-text"},
		{"openai:text-embedding-3-small", "openai", "text-embedding-3-small"},
		{"static:", "static", ""},
		{"static", "static", ""},
		{"OLLAMA:Upper", "ollama", "Upper"},
	}

	for _, tt := range tests {
		cfg := Default()
		cfg.Embeddings.Model = tt.selector
		provider, model := cfg.EmbeddingProviderModel()
		assert.Equal(t, tt.provider, provider, tt.selector)
		assert.Equal(t, tt.model, model, tt.selector)
	}
}
