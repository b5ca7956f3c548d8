package scraper

import (
	"context"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/docdex/docdex/internal/urlutil"
)

// crawlItem is one queued URL with its discovery depth.
type crawlItem struct {
	url   string
	depth int
}

// itemResult is what processing one page yields: an optional document
// and the absolute links discovered on it.
type itemResult struct {
	document *PageDocument
	links    []string
}

// processFunc processes one crawl item. Strategies plug their per-page
// behavior in here; the crawl loop stays shared.
type processFunc func(ctx context.Context, item crawlItem) (itemResult, error)

// crawl runs the breadth-first bounded crawl. Pages are processed in
// batches of up to maxConcurrency; the visited set is updated after
// each batch, so a link discovered twice within one batch queues once.
// Progress callbacks fire between batches and are never concurrent.
func crawl(ctx context.Context, opts Options, norm urlutil.NormalizeOptions, process processFunc, onProgress ProgressFunc, logger *slog.Logger) error {
	visited := map[string]struct{}{
		urlutil.Normalize(opts.URL, norm): {},
	}
	queue := []crawlItem{{url: opts.URL, depth: 0}}
	pageCount := 0

	for len(queue) > 0 && pageCount < opts.MaxPages {
		if err := ctx.Err(); err != nil {
			return err
		}

		batchSize := min(opts.MaxConcurrency, opts.MaxPages-pageCount, len(queue))
		batch := queue[:batchSize]
		queue = queue[batchSize:]

		results := make([]itemResult, len(batch))
		var (
			g, gctx = errgroup.WithContext(ctx)
			mu      sync.Mutex
		)
		for i, item := range batch {
			g.Go(func() error {
				if item.depth > opts.MaxDepth {
					return nil
				}
				res, err := process(gctx, item)
				if err != nil {
					if !opts.IgnoreErrors {
						return err
					}
					logger.Warn("page failed, continuing",
						slog.String("url", item.url),
						slog.String("error", err.Error()))
					return nil
				}
				mu.Lock()
				results[i] = res
				mu.Unlock()
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}

		// Emit progress serially, in batch order.
		for i, res := range results {
			if res.document == nil {
				continue
			}
			pageCount++
			if onProgress != nil {
				onProgress(Progress{
					PagesScraped: pageCount,
					MaxPages:     opts.MaxPages,
					CurrentURL:   batch[i].url,
					Depth:        batch[i].depth,
					MaxDepth:     opts.MaxDepth,
					Document:     res.document,
				})
			}
		}

		// Frontier update: dedup across the whole crawl after the batch.
		for i, res := range results {
			for _, link := range res.links {
				normalized := urlutil.Normalize(link, norm)
				if _, seen := visited[normalized]; seen {
					continue
				}
				visited[normalized] = struct{}{}
				queue = append(queue, crawlItem{url: link, depth: batch[i].depth + 1})
			}
		}
	}
	return nil
}
