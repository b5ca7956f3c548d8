package fetcher

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
)

// BrowserFetcher renders JS-heavy pages in a real browser before
// returning their HTML. Used by the "playwright" scrape mode for sites
// whose content only exists after script execution.
type BrowserFetcher struct {
	// ControlURL points at a running browser's devtools endpoint. Empty
	// lets rod launch a managed browser.
	ControlURL string
	Timeout    time.Duration
}

// Verify interface implementation at compile time.
var _ Fetcher = (*BrowserFetcher)(nil)

// NewBrowserFetcher creates a browser fetcher.
func NewBrowserFetcher(controlURL string, timeout time.Duration) *BrowserFetcher {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &BrowserFetcher{ControlURL: controlURL, Timeout: timeout}
}

// CanFetch accepts http and https URLs.
func (f *BrowserFetcher) CanFetch(url string) bool {
	return strings.HasPrefix(url, "http://") || strings.HasPrefix(url, "https://")
}

// Fetch navigates to the URL, waits for the load event and returns the
// rendered DOM as text/html.
func (f *BrowserFetcher) Fetch(ctx context.Context, url string, _ Options) (*RawContent, error) {
	browser := rod.New().Context(ctx).Timeout(f.Timeout)
	if f.ControlURL != "" {
		browser = browser.ControlURL(f.ControlURL)
	}
	if err := browser.Connect(); err != nil {
		return nil, err
	}
	defer func() {
		if err := browser.Close(); err != nil {
			slog.Warn("closing browser failed", slog.String("error", err.Error()))
		}
	}()

	page, err := browser.Page(proto.TargetCreateTarget{URL: url})
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := page.Close(); err != nil {
			slog.Warn("closing page failed", slog.String("error", err.Error()))
		}
	}()

	if err := page.WaitLoad(); err != nil {
		return nil, err
	}

	html, err := page.HTML()
	if err != nil {
		return nil, err
	}

	return &RawContent{
		Bytes:     []byte(html),
		MimeType:  "text/html",
		Charset:   "utf-8",
		SourceURL: url,
	}, nil
}
