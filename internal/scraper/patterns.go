package scraper

import (
	"regexp"
	"strings"

	"github.com/docdex/docdex/internal/errors"
)

// patternFilter evaluates includePatterns/excludePatterns against URLs
// or paths. A pattern wrapped in slashes ("/…/") is a regular
// expression; anything else is a glob where "*" matches within a path
// segment, "?" matches one character and "**" crosses segments.
// Exclude always wins over include.
type patternFilter struct {
	include []*regexp.Regexp
	exclude []*regexp.Regexp
}

func newPatternFilter(include, exclude []string) (*patternFilter, error) {
	f := &patternFilter{}
	for _, p := range include {
		re, err := compilePattern(p)
		if err != nil {
			return nil, err
		}
		f.include = append(f.include, re)
	}
	for _, p := range exclude {
		re, err := compilePattern(p)
		if err != nil {
			return nil, err
		}
		f.exclude = append(f.exclude, re)
	}
	return f, nil
}

// Excluded reports whether s hits an exclude pattern. Used to prune
// directories without requiring them to match an include pattern.
func (f *patternFilter) Excluded(s string) bool {
	for _, re := range f.exclude {
		if re.MatchString(s) {
			return true
		}
	}
	return false
}

// Match reports whether s passes the filter. With no include patterns
// everything not excluded passes.
func (f *patternFilter) Match(s string) bool {
	for _, re := range f.exclude {
		if re.MatchString(s) {
			return false
		}
	}
	if len(f.include) == 0 {
		return true
	}
	for _, re := range f.include {
		if re.MatchString(s) {
			return true
		}
	}
	return false
}

func compilePattern(pattern string) (*regexp.Regexp, error) {
	if len(pattern) >= 2 && strings.HasPrefix(pattern, "/") && strings.HasSuffix(pattern, "/") {
		re, err := regexp.Compile(pattern[1 : len(pattern)-1])
		if err != nil {
			return nil, errors.New(errors.CodeInvalidOptions, "invalid regex pattern "+pattern, err)
		}
		return re, nil
	}
	re, err := regexp.Compile(globToRegexp(pattern))
	if err != nil {
		return nil, errors.New(errors.CodeInvalidOptions, "invalid glob pattern "+pattern, err)
	}
	return re, nil
}

// globToRegexp translates the glob dialect to an anchored regexp.
// Globs match against the whole string when anchored with "/" or a
// scheme, otherwise anywhere (so "*.md" matches any markdown path).
func globToRegexp(glob string) string {
	var b strings.Builder
	b.WriteString("(?s)")
	anchored := strings.HasPrefix(glob, "/") || strings.Contains(glob, "://")
	if anchored {
		b.WriteString("^")
	}

	for i := 0; i < len(glob); i++ {
		switch c := glob[i]; c {
		case '*':
			if i+1 < len(glob) && glob[i+1] == '*' {
				b.WriteString(".*")
				i++
			} else {
				b.WriteString("[^/]*")
			}
		case '?':
			b.WriteString("[^/]")
		default:
			b.WriteString(regexp.QuoteMeta(string(c)))
		}
	}
	b.WriteString("$")
	return b.String()
}
