// Package processor turns raw fetched bytes into Markdown plus link and
// title metadata. A pipeline is selected by MIME type; binary content
// has no pipeline and is skipped by the caller.
package processor

import (
	"context"
	"strings"

	"github.com/docdex/docdex/internal/fetcher"
)

// Content formats, used by the worker to pick a splitter.
const (
	FormatMarkdown = "markdown"
	FormatJSON     = "json"
)

// Metadata is what a pipeline learns about the page.
type Metadata struct {
	Title    string
	URL      string
	PathHint string

	// Extra carries pipeline-specific fields stored verbatim on chunks.
	Extra map[string]string
}

// ProcessedContent is the pipeline output for one page.
type ProcessedContent struct {
	// Markdown is the page content. For the JSON pipeline it is the raw
	// JSON document and Format says so.
	Markdown string
	Format   string
	Metadata Metadata

	// Links are absolute URLs found on the page.
	Links []string

	// Errors collects non-fatal extraction problems.
	Errors []string
}

// Pipeline converts one MIME family to Markdown.
type Pipeline interface {
	CanProcess(mimeType string) bool
	Process(ctx context.Context, raw *fetcher.RawContent) (*ProcessedContent, error)
}

// Registry selects the first pipeline claiming a MIME type.
type Registry struct {
	pipelines []Pipeline
}

// NewRegistry builds the default pipeline set. Order matters: the
// plain-text pipeline claims all of text/* and must come last.
func NewRegistry() *Registry {
	return &Registry{pipelines: []Pipeline{
		NewHTMLPipeline(),
		NewMarkdownPipeline(),
		NewJSONPipeline(),
		NewTextPipeline(),
	}}
}

// ForMIME returns the pipeline for the MIME type, or nil when the
// content cannot be processed (binary formats).
func (r *Registry) ForMIME(mimeType string) Pipeline {
	mimeType = normalizeMIME(mimeType)
	for _, p := range r.pipelines {
		if p.CanProcess(mimeType) {
			return p
		}
	}
	return nil
}

func normalizeMIME(mimeType string) string {
	mimeType = strings.ToLower(strings.TrimSpace(mimeType))
	if i := strings.IndexByte(mimeType, ';'); i >= 0 {
		mimeType = strings.TrimSpace(mimeType[:i])
	}
	return mimeType
}
