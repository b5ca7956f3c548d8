package scraper

import (
	"context"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/docdex/docdex/internal/fetcher"
	"github.com/docdex/docdex/internal/processor"
	"github.com/docdex/docdex/internal/urlutil"
)

// LocalFileStrategy indexes documentation trees on disk. Directories
// expand into links for their entries; files flow through the file
// fetcher and the processor registry. Binary files are skipped.
type LocalFileStrategy struct {
	fetcher    *fetcher.FileFetcher
	processors *processor.Registry
	logger     *slog.Logger
}

// Verify interface implementation at compile time.
var _ Strategy = (*LocalFileStrategy)(nil)

// NewLocalFileStrategy creates the local filesystem strategy.
func NewLocalFileStrategy(f *fetcher.FileFetcher, procs *processor.Registry, logger *slog.Logger) *LocalFileStrategy {
	if logger == nil {
		logger = slog.Default()
	}
	return &LocalFileStrategy{fetcher: f, processors: procs, logger: logger}
}

// Name identifies the strategy.
func (s *LocalFileStrategy) Name() string { return "local-file" }

// CanHandle accepts file URLs.
func (s *LocalFileStrategy) CanHandle(url string) bool { return s.fetcher.CanFetch(url) }

// Scrape walks the directory tree breadth-first.
func (s *LocalFileStrategy) Scrape(ctx context.Context, opts Options, onProgress ProgressFunc) error {
	filter, err := newPatternFilter(opts.IncludePatterns, opts.ExcludePatterns)
	if err != nil {
		return err
	}

	// Filesystem paths are case-sensitive; keep them verbatim.
	norm := urlutil.NormalizeOptions{StripFragment: true, StripTrailingSlash: true}

	process := func(ctx context.Context, item crawlItem) (itemResult, error) {
		return s.processItem(ctx, item, filter)
	}
	return crawl(ctx, opts, norm, process, onProgress, s.logger)
}

func (s *LocalFileStrategy) processItem(ctx context.Context, item crawlItem, filter *patternFilter) (itemResult, error) {
	path, err := fetcher.FilePath(item.url)
	if err != nil {
		return itemResult{}, err
	}

	info, err := os.Stat(path)
	if err != nil {
		return itemResult{}, err
	}

	if info.IsDir() {
		return s.listDirectory(path, filter)
	}

	if !filter.Match(filepath.ToSlash(path)) {
		return itemResult{}, nil
	}

	raw, err := s.fetcher.Fetch(ctx, item.url, fetcher.Options{})
	if err != nil {
		return itemResult{}, err
	}

	pipeline := s.processors.ForMIME(raw.MimeType)
	if pipeline == nil {
		s.logger.Debug("skipping binary file",
			slog.String("path", path),
			slog.String("mime", raw.MimeType))
		return itemResult{}, nil
	}

	processed, err := pipeline.Process(ctx, raw)
	if err != nil {
		return itemResult{}, err
	}
	if processed.Markdown == "" {
		return itemResult{}, nil
	}

	title := processed.Metadata.Title
	if title == "" {
		title = "Untitled"
	}
	return itemResult{document: &PageDocument{
		Content: processed.Markdown,
		Format:  processed.Format,
		Title:   title,
		URL:     item.url,
		Extra:   processed.Metadata.Extra,
	}}, nil
}

// listDirectory returns the directory's entries as file:// links.
// Dotfiles stay out; the pattern filter prunes directories early so
// excluded subtrees are never descended into.
func (s *LocalFileStrategy) listDirectory(dir string, filter *patternFilter) (itemResult, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return itemResult{}, err
	}

	var links []string
	for _, entry := range entries {
		if strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		full := filepath.Join(dir, entry.Name())
		slash := filepath.ToSlash(full)
		if entry.IsDir() {
			// Directories only need to dodge excludes; include patterns
			// apply to files so "*.md" still descends into subtrees.
			if filter.Excluded(slash + "/") {
				continue
			}
		} else if !filter.Match(slash) {
			continue
		}
		links = append(links, fileURL(slash))
	}
	return itemResult{links: links}, nil
}

// fileURL builds a file:// URL with each path segment percent-encoded.
func fileURL(slashPath string) string {
	u := url.URL{Scheme: "file", Path: slashPath}
	return u.String()
}
