package scraper

import (
	"context"
	"log/slog"
	"net/url"
	"sync"

	"github.com/temoto/robotstxt"

	"github.com/docdex/docdex/internal/fetcher"
)

// robotsGate checks robots.txt before fetching, one cached policy per
// host. A missing or unreadable robots.txt allows everything.
type robotsGate struct {
	fetcher   fetcher.Fetcher
	userAgent string
	logger    *slog.Logger

	mu    sync.Mutex
	hosts map[string]*robotstxt.RobotsData
}

func newRobotsGate(f fetcher.Fetcher, userAgent string, logger *slog.Logger) *robotsGate {
	return &robotsGate{
		fetcher:   f,
		userAgent: userAgent,
		logger:    logger,
		hosts:     make(map[string]*robotstxt.RobotsData),
	}
}

// Allowed reports whether the URL may be fetched.
func (g *robotsGate) Allowed(ctx context.Context, rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return true
	}

	data := g.policyFor(ctx, u)
	if data == nil {
		return true
	}
	return data.TestAgent(u.Path, g.userAgent)
}

func (g *robotsGate) policyFor(ctx context.Context, u *url.URL) *robotstxt.RobotsData {
	key := u.Scheme + "://" + u.Host

	g.mu.Lock()
	data, ok := g.hosts[key]
	g.mu.Unlock()
	if ok {
		return data
	}

	raw, err := g.fetcher.Fetch(ctx, key+"/robots.txt", fetcher.Options{FollowRedirects: true})
	if err == nil {
		if parsed, perr := robotstxt.FromBytes(raw.Bytes); perr == nil {
			data = parsed
		}
	}
	if data == nil {
		g.logger.Debug("no usable robots.txt", slog.String("host", u.Host))
	}

	// Cache negatives too so each host is probed once per crawl.
	g.mu.Lock()
	g.hosts[key] = data
	g.mu.Unlock()
	return data
}
