package urlutil

import (
	"net/url"
	"strings"
)

// Scope restricts which discovered links a crawl may follow.
type Scope string

const (
	// ScopeSubpages keeps URLs under the starting page's directory.
	ScopeSubpages Scope = "subpages"
	// ScopeHostname keeps URLs on the same host.
	ScopeHostname Scope = "hostname"
	// ScopeDomain keeps URLs on the same registrable domain
	// (last two host labels).
	ScopeDomain Scope = "domain"
)

// ValidScope reports whether s names a known scope.
func ValidScope(s Scope) bool {
	switch s {
	case ScopeSubpages, ScopeHostname, ScopeDomain:
		return true
	}
	return false
}

// InScope reports whether target may be followed from base under the
// given scope. Different schemes always fail.
func InScope(base, target string, scope Scope) bool {
	bu, err := url.Parse(base)
	if err != nil {
		return false
	}
	tu, err := url.Parse(target)
	if err != nil {
		return false
	}
	if bu.Scheme != tu.Scheme {
		return false
	}

	switch scope {
	case ScopeHostname:
		return sameHost(bu, tu)
	case ScopeDomain:
		return sameDomain(bu, tu)
	default: // subpages
		if !sameHost(bu, tu) {
			return false
		}
		return strings.HasPrefix(tu.Path, parentDir(bu.Path))
	}
}

// parentDir returns p when it already ends with "/", otherwise the
// directory portion of p with a trailing "/".
func parentDir(p string) string {
	if p == "" {
		return "/"
	}
	if strings.HasSuffix(p, "/") {
		return p
	}
	i := strings.LastIndexByte(p, '/')
	if i < 0 {
		return "/"
	}
	return p[:i+1]
}

func sameHost(a, b *url.URL) bool {
	return strings.EqualFold(a.Hostname(), b.Hostname())
}

// sameDomain compares the last two labels of each hostname, so
// docs.example.com and api.example.com share a domain.
func sameDomain(a, b *url.URL) bool {
	return registrableDomain(a.Hostname()) == registrableDomain(b.Hostname())
}

func registrableDomain(host string) string {
	host = strings.ToLower(host)
	labels := strings.Split(host, ".")
	if len(labels) <= 2 {
		return host
	}
	return strings.Join(labels[len(labels)-2:], ".")
}
