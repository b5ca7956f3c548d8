package scraper

import (
	"context"
	"log/slog"

	"github.com/docdex/docdex/internal/errors"
	"github.com/docdex/docdex/internal/fetcher"
	"github.com/docdex/docdex/internal/processor"
	"github.com/docdex/docdex/internal/urlutil"
)

// followFunc lets specialized strategies veto discovered links beyond
// the scope check.
type followFunc func(baseURL, link string) bool

// WebStrategy is the general breadth-first website crawler. The
// specialized npm/PyPI/GitHub strategies are this strategy with
// different normalization and follow rules.
type WebStrategy struct {
	name       string
	fetcher    fetcher.Fetcher
	processors *processor.Registry
	norm       urlutil.NormalizeOptions
	follow     followFunc
	canHandle  func(url string) bool
	userAgent  string
	logger     *slog.Logger
}

// Verify interface implementation at compile time.
var _ Strategy = (*WebStrategy)(nil)

// NewWebStrategy creates the generic web strategy.
func NewWebStrategy(f fetcher.Fetcher, procs *processor.Registry, userAgent string, logger *slog.Logger) *WebStrategy {
	if logger == nil {
		logger = slog.Default()
	}
	return &WebStrategy{
		name:       "web",
		fetcher:    f,
		processors: procs,
		norm:       urlutil.DefaultNormalizeOptions(),
		userAgent:  userAgent,
		logger:     logger,
	}
}

// Name identifies the strategy in logs and job listings.
func (s *WebStrategy) Name() string { return s.name }

// CanHandle accepts whatever the underlying fetcher accepts, unless a
// specialized constructor narrowed it.
func (s *WebStrategy) CanHandle(url string) bool {
	if s.canHandle != nil {
		return s.canHandle(url)
	}
	return s.fetcher.CanFetch(url)
}

// Scrape crawls from opts.URL, processing each page and following
// in-scope links.
func (s *WebStrategy) Scrape(ctx context.Context, opts Options, onProgress ProgressFunc) error {
	filter, err := newPatternFilter(opts.IncludePatterns, opts.ExcludePatterns)
	if err != nil {
		return err
	}

	var robots *robotsGate
	if opts.RespectRobots {
		robots = newRobotsGate(s.fetcher, s.userAgent, s.logger)
	}

	process := func(ctx context.Context, item crawlItem) (itemResult, error) {
		return s.processItem(ctx, item, opts, filter, robots)
	}
	return crawl(ctx, opts, s.norm, process, onProgress, s.logger)
}

// processItem fetches one page, converts it and filters its links.
func (s *WebStrategy) processItem(ctx context.Context, item crawlItem, opts Options, filter *patternFilter, robots *robotsGate) (itemResult, error) {
	if robots != nil && !robots.Allowed(ctx, item.url) {
		s.logger.Debug("blocked by robots.txt", slog.String("url", item.url))
		return itemResult{}, nil
	}

	raw, err := s.fetcher.Fetch(ctx, item.url, fetcher.Options{
		Headers:         opts.Headers,
		FollowRedirects: opts.FollowRedirects,
	})
	if err != nil {
		return itemResult{}, err
	}

	pipeline := s.processors.ForMIME(raw.MimeType)
	if pipeline == nil {
		s.logger.Warn("unsupported content type, skipping",
			slog.String("url", item.url),
			slog.String("mime", raw.MimeType))
		return itemResult{}, nil
	}

	processed, err := pipeline.Process(ctx, raw)
	if err != nil {
		return itemResult{}, errors.New(errors.CodeProcessingError, "process "+item.url, err)
	}
	for _, msg := range processed.Errors {
		s.logger.Warn("extraction issue", slog.String("url", item.url), slog.String("issue", msg))
	}

	links := s.filterLinks(opts, processed.Links, filter)

	if processed.Markdown == "" {
		s.logger.Warn("page produced no content", slog.String("url", item.url))
		return itemResult{links: links}, nil
	}

	title := processed.Metadata.Title
	if title == "" {
		title = "Untitled"
	}
	return itemResult{
		document: &PageDocument{
			Content: processed.Markdown,
			Format:  processed.Format,
			Title:   title,
			URL:     processed.Metadata.URL,
			Extra:   processed.Metadata.Extra,
		},
		links: links,
	}, nil
}

// filterLinks keeps links inside the crawl scope that pass the pattern
// filter and the strategy's follow rule.
func (s *WebStrategy) filterLinks(opts Options, links []string, filter *patternFilter) []string {
	var kept []string
	for _, link := range links {
		if !urlutil.InScope(opts.URL, link, opts.Scope) {
			continue
		}
		if !filter.Match(link) {
			continue
		}
		if s.follow != nil && !s.follow(opts.URL, link) {
			continue
		}
		kept = append(kept, link)
	}
	return kept
}
