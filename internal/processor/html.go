package processor

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	htmlmd "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/JohannesKaufmann/html-to-markdown/plugin"
	"github.com/PuerkitoBio/goquery"
	"github.com/microcosm-cc/bluemonday"

	"github.com/docdex/docdex/internal/errors"
	"github.com/docdex/docdex/internal/fetcher"
)

// stripSelectors matches page chrome that pollutes documentation text:
// navigation, footers, banners, ads, cookie walls.
var stripSelectors = []string{
	"script", "style", "noscript", "iframe", "svg",
	"nav", "footer", "aside",
	"[role=banner]", "[role=navigation]", "[role=contentinfo]",
	"[aria-hidden=true]",
	".advertisement", ".ads", ".ad-container",
	".cookie-banner", ".cookie-consent", "#cookie-banner",
	".sidebar", ".breadcrumb", ".breadcrumbs",
	".edit-this-page", ".skip-link",
}

// HTMLPipeline converts HTML pages to Markdown: parse, sanitize, strip
// chrome, convert, collect links.
type HTMLPipeline struct {
	policy *bluemonday.Policy
}

// Verify interface implementation at compile time.
var _ Pipeline = (*HTMLPipeline)(nil)

// NewHTMLPipeline creates the HTML pipeline. The sanitizer keeps class
// attributes so the converter can recover code fence languages from
// "language-*" and "highlight-source-*" markers.
func NewHTMLPipeline() *HTMLPipeline {
	policy := bluemonday.UGCPolicy()
	policy.AllowAttrs("class").OnElements("code", "pre", "div", "span")
	policy.AllowTables()
	return &HTMLPipeline{policy: policy}
}

// CanProcess accepts HTML MIME types.
func (p *HTMLPipeline) CanProcess(mimeType string) bool {
	return mimeType == "text/html" || mimeType == "application/xhtml+xml"
}

// Process runs the HTML contract. Link collection happens after the
// strip-set removal, so chrome links (nav, footer) never enter the
// crawl frontier.
func (p *HTMLPipeline) Process(ctx context.Context, raw *fetcher.RawContent) (*ProcessedContent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	base, err := url.Parse(raw.SourceURL)
	if err != nil {
		return nil, errors.New(errors.CodeProcessingError, fmt.Sprintf("parse source url %s", raw.SourceURL), err)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(raw.Bytes)))
	if err != nil {
		return nil, errors.New(errors.CodeProcessingError, fmt.Sprintf("parse html of %s", raw.SourceURL), err)
	}

	out := &ProcessedContent{
		Format: FormatMarkdown,
		Metadata: Metadata{
			Title: strings.TrimSpace(doc.Find("title").First().Text()),
			URL:   raw.SourceURL,
		},
	}

	for _, sel := range stripSelectors {
		doc.Find(sel).Remove()
	}

	out.Links = collectLinks(doc, base)

	body := doc.Find("body")
	html, err := body.Html()
	if err != nil || strings.TrimSpace(html) == "" {
		// Fragment input may have no body element.
		if html, err = doc.Html(); err != nil {
			return nil, errors.New(errors.CodeProcessingError, fmt.Sprintf("serialize html of %s", raw.SourceURL), err)
		}
	}

	sanitized := p.policy.Sanitize(html)

	converter := htmlmd.NewConverter(base.Hostname(), true, nil)
	converter.Use(plugin.GitHubFlavored())

	markdown, err := converter.ConvertString(sanitized)
	if err != nil {
		out.Errors = append(out.Errors, fmt.Sprintf("markdown conversion: %v", err))
		markdown = strings.TrimSpace(doc.Text())
	}
	out.Markdown = strings.TrimSpace(markdown)

	return out, nil
}

// collectLinks gathers href values from the remaining anchors, resolved
// against the document URL. Fragments and non-http schemes are dropped.
func collectLinks(doc *goquery.Document, base *url.URL) []string {
	var links []string
	seen := make(map[string]struct{})

	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		href := strings.TrimSpace(sel.AttrOr("href", ""))
		if href == "" || strings.HasPrefix(href, "#") {
			return
		}
		linkURL, err := url.Parse(href)
		if err != nil {
			return
		}
		if !linkURL.IsAbs() {
			linkURL = base.ResolveReference(linkURL)
		}
		if linkURL.Scheme != "http" && linkURL.Scheme != "https" {
			return
		}
		linkURL.Fragment = ""
		link := linkURL.String()
		if _, dup := seen[link]; dup {
			return
		}
		seen[link] = struct{}{}
		links = append(links, link)
	})
	return links
}
