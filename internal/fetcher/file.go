package fetcher

import (
	"context"
	"fmt"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/docdex/docdex/internal/errors"
)

// FileFetcher reads file:// URLs from the local filesystem.
type FileFetcher struct{}

// Verify interface implementation at compile time.
var _ Fetcher = (*FileFetcher)(nil)

// NewFileFetcher creates a file fetcher.
func NewFileFetcher() *FileFetcher { return &FileFetcher{} }

// CanFetch accepts file URLs.
func (f *FileFetcher) CanFetch(rawURL string) bool {
	return strings.HasPrefix(rawURL, "file://")
}

// FilePath converts a file:// URL to a filesystem path, percent-decoding
// each component ("%20" and friends appear in URLs built from listings).
func FilePath(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", errors.New(errors.CodeInvalidURL, fmt.Sprintf("parse %s", rawURL), err)
	}
	if u.Scheme != "file" {
		return "", errors.Newf(errors.CodeInvalidURL, "%s is not a file URL", rawURL)
	}

	// url.Parse decodes Path already; RawPath holds the original when
	// the decoded form is ambiguous. Decode explicitly to be safe.
	path := u.Path
	if u.RawPath != "" {
		if decoded, err := url.PathUnescape(u.RawPath); err == nil {
			path = decoded
		}
	}
	if u.Host != "" {
		// file://host/path is rare; treat host as the first component.
		path = "/" + u.Host + path
	}
	return filepath.FromSlash(path), nil
}

// Fetch reads the file and sniffs its MIME type from the extension,
// falling back to content sniffing.
func (f *FileFetcher) Fetch(ctx context.Context, rawURL string, _ Options) (*RawContent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	path, err := FilePath(rawURL)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	mimeType := mimeTypeForPath(path)
	if mimeType == "" {
		mimeType, _ = splitContentType(http.DetectContentType(data))
	}

	return &RawContent{
		Bytes:     data,
		MimeType:  mimeType,
		SourceURL: rawURL,
	}, nil
}

// mimeTypeForPath maps common documentation extensions. Markdown is
// special-cased because mime.TypeByExtension often misses it.
func mimeTypeForPath(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".md", ".markdown", ".mdx":
		return "text/markdown"
	case ".txt", ".text", ".rst":
		return "text/plain"
	case ".json":
		return "application/json"
	default:
		mt, _ := splitContentType(mime.TypeByExtension(filepath.Ext(path)))
		return mt
	}
}
