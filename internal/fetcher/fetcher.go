// Package fetcher retrieves raw bytes from HTTP, file and GitHub
// sources. Fetchers never follow links or parse content; that is the
// processor's job.
package fetcher

import (
	"context"
	"time"
)

// RawContent is the unparsed result of a single fetch.
type RawContent struct {
	Bytes     []byte
	MimeType  string
	Charset   string
	SourceURL string
}

// Options tunes a single fetch. The zero value is usable.
type Options struct {
	Headers         map[string]string
	FollowRedirects bool
	Timeout         time.Duration
}

// Fetcher retrieves the raw content behind a URL.
type Fetcher interface {
	// CanFetch reports whether this fetcher understands the URL.
	CanFetch(url string) bool

	// Fetch retrieves the URL's content. Cancellation arrives through ctx.
	Fetch(ctx context.Context, url string, opts Options) (*RawContent, error)
}

// DefaultTimeout bounds a single fetch when the caller sets none.
const DefaultTimeout = 30 * time.Second
