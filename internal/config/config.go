// Package config loads the Docdex configuration from YAML with
// environment-variable overrides (DOCDEX_*).
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// ServerConfig configures the HTTP API listener.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// DatabaseConfig configures the embedded store.
type DatabaseConfig struct {
	// Path is the directory holding the SQLite database and its lock file.
	Path string `yaml:"path"`
}

// EmbeddingsConfig configures the embedding provider.
type EmbeddingsConfig struct {
	// Model selects the embedder as "provider:model", e.g. "ollama:nomic-embed-text".
	// Supported providers: ollama, openai, static.
	Model string `yaml:"model"`

	// BatchSize is the number of texts embedded per provider call.
	BatchSize int `yaml:"batchSize"`

	// OllamaHost is the Ollama API endpoint (default: http://localhost:11434).
	OllamaHost string `yaml:"ollamaHost"`

	// OpenAIBaseURL overrides the OpenAI-compatible endpoint.
	// The API key is discovered from OPENAI_API_KEY.
	OpenAIBaseURL string `yaml:"openaiBaseURL"`
}

// ScraperConfig carries crawl defaults applied when a scrape request
// leaves an option unset.
type ScraperConfig struct {
	MaxPages       int    `yaml:"maxPages"`
	MaxDepth       int    `yaml:"maxDepth"`
	MaxConcurrency int    `yaml:"maxConcurrency"`
	UserAgent      string `yaml:"userAgent"`

	// RespectRobots enables robots.txt checks in the web strategy.
	RespectRobots bool `yaml:"respectRobots"`

	// BrowserURL is the DevTools endpoint used by the playwright scrape
	// mode. Empty launches a local browser.
	BrowserURL string `yaml:"browserURL"`
}

// PipelineConfig configures the job manager.
type PipelineConfig struct {
	// Concurrency is the maximum number of jobs running at once.
	Concurrency int `yaml:"concurrency"`
}

// LoggingConfig configures slog output.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	File   string `yaml:"file"`
	Format string `yaml:"format"`
}

// Config is the complete Docdex configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Embeddings EmbeddingsConfig `yaml:"embeddings"`
	Scraper    ScraperConfig    `yaml:"scraper"`
	Pipeline   PipelineConfig   `yaml:"pipeline"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Server:   ServerConfig{Host: "127.0.0.1", Port: 6280},
		Database: DatabaseConfig{Path: defaultDataDir()},
		Embeddings: EmbeddingsConfig{
			Model:      "ollama:nomic-embed-text",
			BatchSize:  64,
			OllamaHost: "http://localhost:11434",
		},
		Scraper: ScraperConfig{
			MaxPages:       1000,
			MaxDepth:       3,
			MaxConcurrency: 3,
			UserAgent:      "docdex/1.0",
		},
		Pipeline: PipelineConfig{Concurrency: 3},
		Logging:  LoggingConfig{Level: "info", Format: "json"},
	}
}

// Load reads the config file at path (if it exists), applies environment
// overrides, and validates the result. A missing file is not an error:
// defaults plus environment apply.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		case os.IsNotExist(err):
			// fall through to defaults
		default:
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overlays DOCDEX_* environment variables.
func (c *Config) applyEnv() {
	if v := os.Getenv("DOCDEX_HOST"); v != "" {
		c.Server.Host = v
	}
	if v := os.Getenv("DOCDEX_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			c.Server.Port = p
		}
	}
	if v := os.Getenv("DOCDEX_DATA_DIR"); v != "" {
		c.Database.Path = v
	}
	if v := os.Getenv("DOCDEX_EMBEDDING_MODEL"); v != "" {
		c.Embeddings.Model = v
	}
	if v := os.Getenv("DOCDEX_OLLAMA_HOST"); v != "" {
		c.Embeddings.OllamaHost = v
	}
	if v := os.Getenv("OPENAI_BASE_URL"); v != "" && c.Embeddings.OpenAIBaseURL == "" {
		c.Embeddings.OpenAIBaseURL = v
	}
	if v := os.Getenv("DOCDEX_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("DOCDEX_CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Pipeline.Concurrency = n
		}
	}
}

// Validate rejects configurations the service cannot start with.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", c.Server.Port)
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database.path must not be empty")
	}
	provider, _ := c.EmbeddingProviderModel()
	switch provider {
	case "ollama", "openai", "static":
	default:
		return fmt.Errorf("unknown embedding provider %q (want ollama, openai or static)", provider)
	}
	if c.Pipeline.Concurrency <= 0 {
		return fmt.Errorf("pipeline.concurrency must be positive")
	}
	if c.Scraper.MaxConcurrency <= 0 {
		return fmt.Errorf("scraper.maxConcurrency must be positive")
	}
	return nil
}

// EmbeddingProviderModel splits the "provider:model" selector. A selector
// without a colon is treated as a bare provider with its default model.
func (c *Config) EmbeddingProviderModel() (provider, model string) {
	s := strings.TrimSpace(c.Embeddings.Model)
	if i := strings.IndexByte(s, ':'); i >= 0 {
		return strings.ToLower(s[:i]), s[i+1:]
	}
	return strings.ToLower(s), ""
}

func defaultDataDir() string {
	if home, err := os.UserHomeDir(); err == nil {
		return home + "/.docdex"
	}
	return ".docdex"
}
