// Package urlutil provides URL normalization, scope checks, and validation
// used by the scraper and the document store.
package urlutil

import (
	"net/url"
	"strings"
)

// NormalizeOptions controls URL canonicalization.
type NormalizeOptions struct {
	// LowercaseHostPath lowercases the host and path components.
	LowercaseHostPath bool
	// StripFragment removes the #fragment.
	StripFragment bool
	// StripTrailingSlash removes a trailing slash except on "/" itself.
	StripTrailingSlash bool
	// StripQuery removes the query string. Off by default; the NPM, PyPI
	// and GitHub strategies enable it because those sites encode
	// navigation state in query parameters.
	StripQuery bool
	// CollapseIndex collapses an index.{html,htm,asp,php,jsp} suffix to
	// its directory.
	CollapseIndex bool
}

// DefaultNormalizeOptions matches the canonical crawl behavior.
func DefaultNormalizeOptions() NormalizeOptions {
	return NormalizeOptions{
		LowercaseHostPath:  true,
		StripFragment:      true,
		StripTrailingSlash: true,
		StripQuery:         false,
		CollapseIndex:      true,
	}
}

// indexSuffixes are filenames collapsed to their directory. Only the last
// path segment is considered; "index" tokens inside other segments stay.
var indexSuffixes = []string{"index.html", "index.htm", "index.asp", "index.php", "index.jsp"}

// Normalize canonicalizes a URL string. Normalization is best-effort:
// malformed input is returned unchanged, never an error.
func Normalize(raw string, opts NormalizeOptions) string {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" {
		return raw
	}

	if opts.LowercaseHostPath {
		u.Host = strings.ToLower(u.Host)
		u.Path = strings.ToLower(u.Path)
	}
	if opts.StripFragment {
		u.Fragment = ""
	}
	if opts.StripQuery {
		u.RawQuery = ""
	}
	if opts.CollapseIndex {
		u.Path = collapseIndex(u.Path)
	}
	if opts.StripTrailingSlash && len(u.Path) > 1 && strings.HasSuffix(u.Path, "/") {
		u.Path = strings.TrimRight(u.Path, "/")
		if u.Path == "" {
			u.Path = "/"
		}
	}

	return u.String()
}

// NormalizeDefault applies DefaultNormalizeOptions.
func NormalizeDefault(raw string) string {
	return Normalize(raw, DefaultNormalizeOptions())
}

// collapseIndex turns "/docs/index.html" into "/docs/". Case-insensitive
// so it also applies when lowercasing is disabled.
func collapseIndex(p string) string {
	slash := strings.LastIndexByte(p, '/')
	if slash < 0 {
		return p
	}
	last := strings.ToLower(p[slash+1:])
	for _, suffix := range indexSuffixes {
		if last == suffix {
			return p[:slash+1]
		}
	}
	return p
}
