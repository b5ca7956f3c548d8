package fetcher

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"regexp"
	"sort"
	"strings"

	"github.com/docdex/docdex/internal/errors"
)

// githubRepoRe matches github.com/<owner>/<repo> with an optional
// trailing path.
var githubRepoRe = regexp.MustCompile(`^https?://(?:www\.)?github\.com/([^/]+)/([^/]+?)(?:\.git)?(?:/.*)?$`)

// maxRepoFileSize skips pathological single files inside an archive.
const maxRepoFileSize = 4 << 20

// GitHubFetcher downloads a repository's tarball and concatenates its
// Markdown files into one text/markdown payload. It piggybacks on the
// HTTP fetcher for transport so retry behavior stays uniform.
type GitHubFetcher struct {
	http *HTTPFetcher
}

// Verify interface implementation at compile time.
var _ Fetcher = (*GitHubFetcher)(nil)

// NewGitHubFetcher creates a GitHub markdown fetcher.
func NewGitHubFetcher(http *HTTPFetcher) *GitHubFetcher {
	return &GitHubFetcher{http: http}
}

// ParseRepo extracts (owner, repo) from a GitHub URL.
func ParseRepo(url string) (owner, repo string, ok bool) {
	m := githubRepoRe.FindStringSubmatch(url)
	if m == nil {
		return "", "", false
	}
	return m[1], m[2], true
}

// CanFetch accepts github.com repository URLs.
func (f *GitHubFetcher) CanFetch(url string) bool {
	_, _, ok := ParseRepo(url)
	return ok
}

// Fetch downloads the repository archive for the default branch and
// returns every .md/.markdown/.mdx file concatenated in path order,
// each preceded by a heading naming the file.
func (f *GitHubFetcher) Fetch(ctx context.Context, url string, opts Options) (*RawContent, error) {
	owner, repo, ok := ParseRepo(url)
	if !ok {
		return nil, errors.Newf(errors.CodeInvalidURL, "%s is not a GitHub repository URL", url)
	}

	// HEAD resolves to the default branch without an API call.
	tarballURL := fmt.Sprintf("https://codeload.github.com/%s/%s/tar.gz/HEAD", owner, repo)
	archive, err := f.http.Fetch(ctx, tarballURL, opts)
	if err != nil {
		return nil, fmt.Errorf("download %s/%s: %w", owner, repo, err)
	}

	files, err := extractMarkdown(archive.Bytes)
	if err != nil {
		return nil, fmt.Errorf("extract %s/%s: %w", owner, repo, err)
	}
	if len(files) == 0 {
		return nil, errors.Newf(errors.CodeProcessingError, "repository %s/%s contains no markdown files", owner, repo)
	}

	paths := make([]string, 0, len(files))
	for path := range files {
		paths = append(paths, path)
	}
	sort.Strings(paths)

	var b strings.Builder
	for _, path := range paths {
		b.WriteString("# ")
		b.WriteString(path)
		b.WriteString("\n\n")
		b.Write(files[path])
		b.WriteString("\n\n")
	}

	return &RawContent{
		Bytes:     []byte(b.String()),
		MimeType:  "text/markdown",
		SourceURL: url,
	}, nil
}

// extractMarkdown pulls markdown files out of a gzipped tarball, keyed
// by repo-relative path (the archive's top-level directory is dropped).
func extractMarkdown(archive []byte) (map[string][]byte, error) {
	gz, err := gzip.NewReader(bytes.NewReader(archive))
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}
	defer gz.Close()

	files := make(map[string][]byte)
	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read archive: %w", err)
		}
		if hdr.Typeflag != tar.TypeReg || hdr.Size > maxRepoFileSize {
			continue
		}
		if !isMarkdownPath(hdr.Name) {
			continue
		}

		data, err := io.ReadAll(io.LimitReader(tr, maxRepoFileSize))
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", hdr.Name, err)
		}

		// Strip "<repo>-<ref>/" prefix.
		path := hdr.Name
		if i := strings.IndexByte(path, '/'); i >= 0 {
			path = path[i+1:]
		}
		files[path] = data
	}
	return files, nil
}

func isMarkdownPath(path string) bool {
	lower := strings.ToLower(path)
	return strings.HasSuffix(lower, ".md") ||
		strings.HasSuffix(lower, ".markdown") ||
		strings.HasSuffix(lower, ".mdx")
}
