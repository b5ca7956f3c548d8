package server

import (
	"github.com/docdex/docdex/internal/pipeline"
	"github.com/docdex/docdex/internal/retriever"
	"github.com/docdex/docdex/internal/store"
)

// ScrapeRequest is the POST /api/jobs/scrape body. Bool fields are
// pointers so that an absent field keeps its default-true value.
type ScrapeRequest struct {
	URL     string `json:"url"`
	Library string `json:"library"`
	Version string `json:"version,omitempty"`

	MaxPages       *int `json:"maxPages,omitempty"`
	MaxDepth       *int `json:"maxDepth,omitempty"`
	MaxConcurrency *int `json:"maxConcurrency,omitempty"`

	Scope           string            `json:"scope,omitempty"`
	IncludePatterns []string          `json:"includePatterns,omitempty"`
	ExcludePatterns []string          `json:"excludePatterns,omitempty"`
	ScrapeMode      string            `json:"scrapeMode,omitempty"`
	FollowRedirects *bool             `json:"followRedirects,omitempty"`
	IgnoreErrors    *bool             `json:"ignoreErrors,omitempty"`
	RespectRobots   *bool             `json:"respectRobots,omitempty"`
	Headers         map[string]string `json:"headers,omitempty"`
}

// ErrorResponse is the error envelope shared by every endpoint.
type ErrorResponse struct {
	Success     bool     `json:"success"`
	Code        string   `json:"code,omitempty"`
	Error       string   `json:"error"`
	Suggestions []string `json:"suggestions,omitempty"`
}

// EnqueueResponse answers POST /api/jobs/scrape.
type EnqueueResponse struct {
	Success bool   `json:"success"`
	JobID   string `json:"jobId"`
}

// JobListResponse answers GET /api/jobs.
type JobListResponse struct {
	Success bool                `json:"success"`
	Jobs    []pipeline.Snapshot `json:"jobs"`
}

// JobResponse answers GET /api/jobs/:id.
type JobResponse struct {
	Success bool              `json:"success"`
	Job     pipeline.Snapshot `json:"job"`
}

// CancelResponse answers DELETE /api/jobs/:id.
type CancelResponse struct {
	Success bool   `json:"success"`
	JobID   string `json:"jobId"`
	Status  string `json:"status"`
}

// LibrarySummary is one library with its indexed versions.
type LibrarySummary struct {
	Name     string                `json:"name"`
	Versions []store.VersionDetail `json:"versions"`
}

// LibraryListResponse answers GET /api/libraries.
type LibraryListResponse struct {
	Success   bool             `json:"success"`
	Libraries []LibrarySummary `json:"libraries"`
}

// LibraryResponse answers GET /api/libraries/:name.
type LibraryResponse struct {
	Success bool           `json:"success"`
	Library LibrarySummary `json:"library"`
}

// SearchResponse answers GET /api/search. Version is the resolved
// version when exactMatch was off.
type SearchResponse struct {
	Success bool                     `json:"success"`
	Library string                   `json:"library"`
	Version string                   `json:"version"`
	Results []retriever.SearchResult `json:"results"`
}

// DeleteVersionResponse answers DELETE /api/libraries/:name/versions/:version.
type DeleteVersionResponse struct {
	Success bool   `json:"success"`
	Library string `json:"library"`
	Version string `json:"version"`
	Deleted int    `json:"deleted"`
}
