package urlutil

import (
	"net/url"

	"github.com/docdex/docdex/internal/errors"
)

// Validate parses raw and checks that it carries a scheme Docdex can
// fetch (http, https or file). It returns the parsed URL.
func Validate(raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, errors.Wrap(errors.CodeInvalidURL, err)
	}
	switch u.Scheme {
	case "http", "https":
		if u.Host == "" {
			return nil, errors.Newf(errors.CodeInvalidURL, "missing host in %q", raw)
		}
	case "file":
		if u.Path == "" && u.Opaque == "" {
			return nil, errors.Newf(errors.CodeInvalidURL, "missing path in %q", raw)
		}
	default:
		return nil, errors.Newf(errors.CodeInvalidURL, "unsupported scheme %q in %q", u.Scheme, raw)
	}
	return u, nil
}
