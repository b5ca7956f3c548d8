package processor

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"path"
	"regexp"
	"strings"

	"github.com/docdex/docdex/internal/fetcher"
)

// firstHeadingRe pulls the page title out of Markdown.
var firstHeadingRe = regexp.MustCompile(`(?m)^#{1,6}\s+(.+?)\s*$`)

// MarkdownPipeline passes Markdown through, deriving a title from the
// first heading.
type MarkdownPipeline struct{}

// Verify interface implementation at compile time.
var _ Pipeline = (*MarkdownPipeline)(nil)

// NewMarkdownPipeline creates the Markdown pipeline.
func NewMarkdownPipeline() *MarkdownPipeline { return &MarkdownPipeline{} }

// CanProcess accepts Markdown MIME types.
func (p *MarkdownPipeline) CanProcess(mimeType string) bool {
	return mimeType == "text/markdown" || mimeType == "text/x-markdown"
}

// Process returns the Markdown unchanged.
func (p *MarkdownPipeline) Process(ctx context.Context, raw *fetcher.RawContent) (*ProcessedContent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	markdown := strings.TrimSpace(string(raw.Bytes))

	title := ""
	if m := firstHeadingRe.FindStringSubmatch(markdown); m != nil {
		title = m[1]
	}
	if title == "" {
		title = titleFromURL(raw.SourceURL)
	}

	return &ProcessedContent{
		Markdown: markdown,
		Format:   FormatMarkdown,
		Metadata: Metadata{Title: title, URL: raw.SourceURL},
	}, nil
}

// JSONPipeline passes JSON documents through for structure-aware
// splitting. Invalid JSON is recorded but still emitted, so a partially
// broken API index remains searchable.
type JSONPipeline struct{}

// Verify interface implementation at compile time.
var _ Pipeline = (*JSONPipeline)(nil)

// NewJSONPipeline creates the JSON pipeline.
func NewJSONPipeline() *JSONPipeline { return &JSONPipeline{} }

// CanProcess accepts JSON MIME types.
func (p *JSONPipeline) CanProcess(mimeType string) bool {
	return mimeType == "application/json" || strings.HasSuffix(mimeType, "+json")
}

// Process validates the payload and tags it for the JSON splitter.
func (p *JSONPipeline) Process(ctx context.Context, raw *fetcher.RawContent) (*ProcessedContent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out := &ProcessedContent{
		Markdown: strings.TrimSpace(string(raw.Bytes)),
		Format:   FormatJSON,
		Metadata: Metadata{Title: titleFromURL(raw.SourceURL), URL: raw.SourceURL},
	}
	if !json.Valid(raw.Bytes) {
		out.Errors = append(out.Errors, fmt.Sprintf("invalid json at %s", raw.SourceURL))
	}
	return out, nil
}

// TextPipeline handles any other text/* content as preformatted text.
type TextPipeline struct{}

// Verify interface implementation at compile time.
var _ Pipeline = (*TextPipeline)(nil)

// NewTextPipeline creates the plain-text pipeline.
func NewTextPipeline() *TextPipeline { return &TextPipeline{} }

// CanProcess accepts any text MIME type. Must be registered last.
func (p *TextPipeline) CanProcess(mimeType string) bool {
	return strings.HasPrefix(mimeType, "text/")
}

// Process wraps the text unchanged.
func (p *TextPipeline) Process(ctx context.Context, raw *fetcher.RawContent) (*ProcessedContent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &ProcessedContent{
		Markdown: strings.TrimSpace(string(raw.Bytes)),
		Format:   FormatMarkdown,
		Metadata: Metadata{Title: titleFromURL(raw.SourceURL), URL: raw.SourceURL},
	}, nil
}

// titleFromURL derives a fallback title from the URL's last path segment.
func titleFromURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	segment := path.Base(u.Path)
	if segment == "/" || segment == "." || segment == "" {
		return u.Hostname()
	}
	return strings.TrimSuffix(segment, path.Ext(segment))
}
