package fetcher

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/docdex/docdex/internal/errors"
)

// Retry policy for 4xx responses. Documentation hosts rate-limit
// aggressively, so even 403/404 get a bounded retry before giving up.
const (
	DefaultMaxRetries = 6               // total attempts
	DefaultBaseDelay  = 1 * time.Second // doubles per attempt
)

// HTTPConfig configures the HTTP fetcher.
type HTTPConfig struct {
	UserAgent  string
	MaxRetries int
	BaseDelay  time.Duration
	Logger     *slog.Logger
}

// HTTPFetcher fetches http(s) URLs with bounded retries on 4xx.
type HTTPFetcher struct {
	config HTTPConfig
	client *http.Client
}

// Verify interface implementation at compile time.
var _ Fetcher = (*HTTPFetcher)(nil)

// NewHTTPFetcher creates an HTTP fetcher. Retry knobs must be positive.
func NewHTTPFetcher(cfg HTTPConfig) (*HTTPFetcher, error) {
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	if cfg.BaseDelay == 0 {
		cfg.BaseDelay = DefaultBaseDelay
	}
	if cfg.MaxRetries < 0 || cfg.BaseDelay < 0 {
		return nil, errors.Newf(errors.CodeInvalidOptions,
			"maxRetries (%d) and baseDelay (%s) must be positive", cfg.MaxRetries, cfg.BaseDelay)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &HTTPFetcher{config: cfg, client: &http.Client{}}, nil
}

// CanFetch accepts http and https URLs.
func (f *HTTPFetcher) CanFetch(url string) bool {
	return strings.HasPrefix(url, "http://") || strings.HasPrefix(url, "https://")
}

// Fetch GETs the URL. 4xx responses are retried with exponential
// backoff; 5xx and transport errors fail immediately.
func (f *HTTPFetcher) Fetch(ctx context.Context, url string, opts Options) (*RawContent, error) {
	var content *RawContent

	backoff := retry.WithMaxRetries(uint64(f.config.MaxRetries-1), retry.NewExponential(f.config.BaseDelay))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		var err error
		content, err = f.fetchOnce(ctx, url, opts)
		if err != nil && errors.IsRetryable(err) {
			f.config.Logger.Debug("retrying fetch",
				slog.String("url", url),
				slog.String("error", err.Error()))
			return retry.RetryableError(err)
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return content, nil
}

func (f *HTTPFetcher) fetchOnce(ctx context.Context, url string, opts Options) (*RawContent, error) {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errors.New(errors.CodeInvalidURL, fmt.Sprintf("build request for %s", url), err)
	}
	if f.config.UserAgent != "" {
		req.Header.Set("User-Agent", f.config.UserAgent)
	}
	for k, v := range opts.Headers {
		req.Header.Set(k, v)
	}

	client := f.client
	if !opts.FollowRedirects {
		client = &http.Client{
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		}
	}

	resp, err := client.Do(req)
	if err != nil {
		// Transport failures classify with 5xx: not worth a retry here.
		return nil, errors.New(errors.CodeScrape5xx, fmt.Sprintf("fetch %s", url), err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return nil, errors.Newf(errors.CodeScrape4xx, "fetch %s: status %d", url, resp.StatusCode)
	case resp.StatusCode >= 500:
		return nil, errors.Newf(errors.CodeScrape5xx, "fetch %s: status %d", url, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.New(errors.CodeScrape5xx, fmt.Sprintf("read body of %s", url), err)
	}

	mimeType, charset := splitContentType(resp.Header.Get("Content-Type"))
	if mimeType == "" {
		mimeType = http.DetectContentType(body)
		mimeType, _ = splitContentType(mimeType)
	}

	// Redirects may have moved us; report where the bytes came from.
	sourceURL := url
	if resp.Request != nil && resp.Request.URL != nil {
		sourceURL = resp.Request.URL.String()
	}

	return &RawContent{
		Bytes:     body,
		MimeType:  mimeType,
		Charset:   charset,
		SourceURL: sourceURL,
	}, nil
}

// splitContentType extracts the media type and charset parameter.
func splitContentType(header string) (mimeType, charset string) {
	if header == "" {
		return "", ""
	}
	mt, params, err := mime.ParseMediaType(header)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(strings.SplitN(header, ";", 2)[0])), ""
	}
	return mt, params["charset"]
}
