package pipeline

import (
	"context"
	"log/slog"

	"github.com/docdex/docdex/internal/processor"
	"github.com/docdex/docdex/internal/scraper"
	"github.com/docdex/docdex/internal/splitter"
	"github.com/docdex/docdex/internal/store"
)

// worker runs exactly one job: strategy selection, crawl, split, store.
type worker struct {
	registry *scraper.Registry
	store    *store.Store
	markdown *splitter.MarkdownSplitter
	json     *splitter.JSONSplitter
	logger   *slog.Logger
}

func newWorker(registry *scraper.Registry, st *store.Store, logger *slog.Logger) *worker {
	return &worker{
		registry: registry,
		store:    st,
		markdown: splitter.NewMarkdownSplitter(0),
		json:     splitter.NewJSONSplitter(0),
		logger:   logger,
	}
}

// run drives the job's crawl. The returned error is the job's failure
// cause; ctx cancellation surfaces as context.Canceled.
func (w *worker) run(ctx context.Context, job *Job) error {
	strategy, err := w.registry.Select(job.Options.URL, job.Options.ScrapeMode)
	if err != nil {
		return err
	}

	w.logger.Info("job started",
		slog.String("job_id", job.ID),
		slog.String("strategy", strategy.Name()),
		slog.String("library", job.Library),
		slog.String("version", job.Version),
		slog.String("url", job.Options.URL))

	// add_documents failures inside the progress callback cannot return
	// through the scraper; they land here and cancel the crawl when the
	// job does not ignore errors.
	var storeErr error
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	onProgress := func(p scraper.Progress) {
		added := 0
		if p.Document != nil {
			docs := w.split(p.Document, job)
			if len(docs) > 0 {
				if err := w.store.AddDocuments(runCtx, job.Library, job.Version, docs); err != nil {
					w.logger.Error("storing documents failed",
						slog.String("job_id", job.ID),
						slog.String("url", p.CurrentURL),
						slog.String("error", err.Error()))
					if !job.Options.IgnoreErrors {
						storeErr = err
						cancel()
						return
					}
				} else {
					added = len(docs)
				}
			}
		}
		job.updateProgress(p, added)
	}

	if err := strategy.Scrape(runCtx, job.Options, onProgress); err != nil {
		if storeErr != nil {
			return storeErr
		}
		return err
	}
	return storeErr
}

// split turns a scraped page into store documents, choosing the JSON
// splitter when the processor tagged the page as JSON.
func (w *worker) split(doc *scraper.PageDocument, job *Job) []store.Document {
	var chunks []splitter.ContentChunk
	if doc.Format == processor.FormatJSON {
		chunks = w.json.Split([]byte(doc.Content))
	} else {
		chunks = w.markdown.Split(doc.Content)
	}

	docs := make([]store.Document, 0, len(chunks))
	for _, chunk := range chunks {
		docs = append(docs, store.Document{
			Content: chunk.Content,
			Metadata: store.Metadata{
				Title: doc.Title,
				URL:   doc.URL,
				Path:  chunk.Section.Path,
				Level: chunk.Section.Level,
				Extra: doc.Extra,
			},
		})
	}
	return docs
}
