// Package scraper crawls documentation sources breadth-first and emits
// processed pages through progress callbacks. Strategies adapt the
// shared crawl to specific sources (web, npm, PyPI, GitHub, local files).
package scraper

import (
	"context"
	"strings"

	"github.com/Masterminds/semver/v3"

	"github.com/docdex/docdex/internal/errors"
	"github.com/docdex/docdex/internal/urlutil"
)

// Crawl defaults.
const (
	DefaultMaxPages       = 1000
	DefaultMaxDepth       = 3
	DefaultMaxConcurrency = 3
)

// Scrape modes.
const (
	ModeAuto           = "auto"
	ModeFetch          = "fetch"
	ModePlaywright     = "playwright"
	ModeGitHubMarkdown = "github-markdown"
)

// Options configures one scrape job.
type Options struct {
	URL     string
	Library string
	Version string

	MaxPages       int
	MaxDepth       int
	MaxConcurrency int

	Scope           urlutil.Scope
	IncludePatterns []string
	ExcludePatterns []string
	ScrapeMode      string
	FollowRedirects bool
	IgnoreErrors    bool
	RespectRobots   bool
	Headers         map[string]string
}

// DefaultOptions returns Options with every default applied; callers
// overwrite what they need.
func DefaultOptions() Options {
	return Options{
		MaxPages:        DefaultMaxPages,
		MaxDepth:        DefaultMaxDepth,
		MaxConcurrency:  DefaultMaxConcurrency,
		Scope:           urlutil.ScopeSubpages,
		ScrapeMode:      ModeAuto,
		FollowRedirects: true,
		IgnoreErrors:    true,
	}
}

// Validate checks option invariants before a job is accepted.
func (o *Options) Validate() error {
	if strings.TrimSpace(o.URL) == "" {
		return errors.Newf(errors.CodeInvalidURL, "url is required")
	}
	if _, err := urlutil.Validate(o.URL); err != nil {
		return err
	}
	if strings.TrimSpace(o.Library) == "" {
		return errors.Newf(errors.CodeInvalidOptions, "library is required")
	}
	// Version must be absent or semver-coerceable ("1", "1.2", "1.2.3",
	// prerelease/build suffixes included); anything else would index
	// chunks under a label best-version resolution can never match.
	if v := strings.TrimSpace(o.Version); v != "" {
		if _, err := semver.NewVersion(v); err != nil {
			return errors.Newf(errors.CodeInvalidVersion, "version %q is not semver-coerceable", o.Version)
		}
	}
	if o.MaxPages <= 0 || o.MaxDepth < 0 || o.MaxConcurrency <= 0 {
		return errors.Newf(errors.CodeInvalidOptions,
			"maxPages (%d) and maxConcurrency (%d) must be positive, maxDepth (%d) non-negative",
			o.MaxPages, o.MaxConcurrency, o.MaxDepth)
	}
	if !urlutil.ValidScope(o.Scope) {
		return errors.Newf(errors.CodeInvalidOptions, "unknown scope %q", o.Scope)
	}
	switch o.ScrapeMode {
	case ModeAuto, ModeFetch, ModePlaywright, ModeGitHubMarkdown:
	default:
		return errors.Newf(errors.CodeInvalidOptions, "unknown scrapeMode %q", o.ScrapeMode)
	}
	return nil
}

// PageDocument is one processed page ready for splitting.
type PageDocument struct {
	Content string
	Format  string
	Title   string
	URL     string
	Extra   map[string]string
}

// Progress is delivered after every processed page.
type Progress struct {
	PagesScraped int
	MaxPages     int
	CurrentURL   string
	Depth        int
	MaxDepth     int

	// Document is nil for pages that produced no indexable content.
	Document *PageDocument
}

// ProgressFunc receives crawl progress. Calls are serialized per crawl.
type ProgressFunc func(Progress)

// Strategy scrapes one class of URLs. Cancellation arrives through ctx.
type Strategy interface {
	Name() string
	CanHandle(url string) bool
	Scrape(ctx context.Context, opts Options, onProgress ProgressFunc) error
}
