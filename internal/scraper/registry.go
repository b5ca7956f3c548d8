package scraper

import (
	"log/slog"
	"time"

	"github.com/docdex/docdex/internal/errors"
	"github.com/docdex/docdex/internal/fetcher"
	"github.com/docdex/docdex/internal/processor"
)

// Registry holds the strategy set in priority order: specialized
// strategies first, the generic web crawler last.
type Registry struct {
	strategies []Strategy

	githubMarkdown *GitHubMarkdownStrategy
	browser        *WebStrategy
}

// RegistryConfig wires the registry's collaborators.
type RegistryConfig struct {
	UserAgent  string
	BrowserURL string
	Logger     *slog.Logger
}

// NewRegistry builds the default strategy set.
func NewRegistry(cfg RegistryConfig) (*Registry, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	httpFetcher, err := fetcher.NewHTTPFetcher(fetcher.HTTPConfig{
		UserAgent: cfg.UserAgent,
		Logger:    cfg.Logger,
	})
	if err != nil {
		return nil, err
	}
	fileFetcher := fetcher.NewFileFetcher()
	githubFetcher := fetcher.NewGitHubFetcher(httpFetcher)
	browserFetcher := fetcher.NewBrowserFetcher(cfg.BrowserURL, 60*time.Second)

	procs := processor.NewRegistry()

	browserStrategy := NewWebStrategy(browserFetcher, procs, cfg.UserAgent, cfg.Logger)
	browserStrategy.name = "browser"

	r := &Registry{
		strategies: []Strategy{
			NewLocalFileStrategy(fileFetcher, procs, cfg.Logger),
			NewNPMStrategy(httpFetcher, procs, cfg.UserAgent, cfg.Logger),
			NewPyPIStrategy(httpFetcher, procs, cfg.UserAgent, cfg.Logger),
			NewGitHubHTMLStrategy(httpFetcher, procs, cfg.UserAgent, cfg.Logger),
			NewWebStrategy(httpFetcher, procs, cfg.UserAgent, cfg.Logger),
		},
		githubMarkdown: NewGitHubMarkdownStrategy(githubFetcher, cfg.Logger),
		browser:        browserStrategy,
	}
	return r, nil
}

// Select picks the strategy for a URL. Explicit scrape modes override
// the first-match walk.
func (r *Registry) Select(url, mode string) (Strategy, error) {
	switch mode {
	case ModeGitHubMarkdown:
		if !r.githubMarkdown.CanHandle(url) {
			return nil, errors.Newf(errors.CodeInvalidOptions,
				"scrapeMode %q requires a GitHub repository URL, got %s", mode, url)
		}
		return r.githubMarkdown, nil
	case ModePlaywright:
		if !r.browser.CanHandle(url) {
			return nil, errors.Newf(errors.CodeInvalidOptions,
				"scrapeMode %q requires an http(s) URL, got %s", mode, url)
		}
		return r.browser, nil
	}

	for _, s := range r.strategies {
		if s.CanHandle(url) {
			return s, nil
		}
	}
	return nil, errors.Newf(errors.CodeInvalidURL, "no strategy can handle %s", url)
}
