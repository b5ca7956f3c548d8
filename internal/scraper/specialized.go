package scraper

import (
	"context"
	"log/slog"
	"net/url"
	"regexp"
	"strings"

	"github.com/docdex/docdex/internal/fetcher"
	"github.com/docdex/docdex/internal/processor"
)

// NewNPMStrategy crawls npmjs.com package pages. Navigation state lives
// in query parameters there ("?activeTab=readme"), so normalization
// strips queries to keep the visited set tight.
func NewNPMStrategy(f fetcher.Fetcher, procs *processor.Registry, userAgent string, logger *slog.Logger) *WebStrategy {
	s := NewWebStrategy(f, procs, userAgent, logger)
	s.name = "npm"
	s.norm.StripQuery = true
	s.canHandle = func(u string) bool { return s.fetcher.CanFetch(u) && hostIs(u, "npmjs.com") }
	return s
}

// NewPyPIStrategy crawls pypi.org project pages; same query handling as
// npm.
func NewPyPIStrategy(f fetcher.Fetcher, procs *processor.Registry, userAgent string, logger *slog.Logger) *WebStrategy {
	s := NewWebStrategy(f, procs, userAgent, logger)
	s.name = "pypi"
	s.norm.StripQuery = true
	s.canHandle = func(u string) bool { return s.fetcher.CanFetch(u) && hostIs(u, "pypi.org") }
	return s
}

// githubBlobMarkdownRe matches /<owner>/<repo>/blob/<ref>/….md paths.
var githubBlobMarkdownRe = regexp.MustCompile(`^/[^/]+/[^/]+/blob/.+\.(?i:md|markdown|mdx)$`)

// NewGitHubHTMLStrategy crawls a repository's web UI: the repo root,
// its wiki and markdown files under /blob/. Everything else on
// github.com (issues, PRs, other repos) is ignored.
func NewGitHubHTMLStrategy(f fetcher.Fetcher, procs *processor.Registry, userAgent string, logger *slog.Logger) *WebStrategy {
	s := NewWebStrategy(f, procs, userAgent, logger)
	s.name = "github"
	s.norm.StripQuery = true
	s.canHandle = func(u string) bool {
		_, _, ok := fetcher.ParseRepo(u)
		return s.fetcher.CanFetch(u) && ok
	}
	s.follow = githubFollow
	return s
}

func githubFollow(baseURL, link string) bool {
	owner, repo, ok := fetcher.ParseRepo(baseURL)
	if !ok {
		return false
	}
	u, err := url.Parse(link)
	if err != nil || !strings.EqualFold(strings.TrimPrefix(u.Hostname(), "www."), "github.com") {
		return false
	}

	prefix := "/" + owner + "/" + repo
	path := strings.TrimSuffix(u.Path, "/")
	switch {
	case path == prefix:
		return true
	case strings.HasPrefix(path, prefix+"/wiki"):
		return true
	case strings.HasPrefix(path, prefix+"/blob/") && githubBlobMarkdownRe.MatchString(path):
		return true
	default:
		return false
	}
}

func hostIs(rawURL, domain string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	host := strings.ToLower(u.Hostname())
	return host == domain || strings.HasSuffix(host, "."+domain)
}

// GitHubMarkdownStrategy fetches a repository's Markdown corpus in one
// shot through the GitHub fetcher. It never follows links; the fetcher
// already returns the whole concatenation.
type GitHubMarkdownStrategy struct {
	fetcher *fetcher.GitHubFetcher
	logger  *slog.Logger
}

// Verify interface implementation at compile time.
var _ Strategy = (*GitHubMarkdownStrategy)(nil)

// NewGitHubMarkdownStrategy creates the single-shot GitHub strategy.
func NewGitHubMarkdownStrategy(f *fetcher.GitHubFetcher, logger *slog.Logger) *GitHubMarkdownStrategy {
	if logger == nil {
		logger = slog.Default()
	}
	return &GitHubMarkdownStrategy{fetcher: f, logger: logger}
}

// Name identifies the strategy.
func (s *GitHubMarkdownStrategy) Name() string { return "github-markdown" }

// CanHandle accepts GitHub repository URLs.
func (s *GitHubMarkdownStrategy) CanHandle(url string) bool { return s.fetcher.CanFetch(url) }

// Scrape fetches the concatenated Markdown once and reports a single
// page of progress.
func (s *GitHubMarkdownStrategy) Scrape(ctx context.Context, opts Options, onProgress ProgressFunc) error {
	raw, err := s.fetcher.Fetch(ctx, opts.URL, fetcher.Options{
		Headers:         opts.Headers,
		FollowRedirects: true,
	})
	if err != nil {
		if opts.IgnoreErrors {
			s.logger.Warn("github markdown fetch failed",
				slog.String("url", opts.URL),
				slog.String("error", err.Error()))
			return nil
		}
		return err
	}

	owner, repo, _ := fetcher.ParseRepo(opts.URL)
	if onProgress != nil {
		onProgress(Progress{
			PagesScraped: 1,
			MaxPages:     opts.MaxPages,
			CurrentURL:   opts.URL,
			MaxDepth:     opts.MaxDepth,
			Document: &PageDocument{
				Content: string(raw.Bytes),
				Format:  processor.FormatMarkdown,
				Title:   owner + "/" + repo,
				URL:     opts.URL,
			},
		})
	}
	return nil
}
