package server

import (
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/docdex/docdex/internal/errors"
	"github.com/docdex/docdex/internal/scraper"
	"github.com/docdex/docdex/internal/urlutil"
)

// defaultSearchLimit caps search responses when the caller does not set
// a limit.
const defaultSearchLimit = 5

// handleEnqueue accepts a scrape request and queues a job.
func (s *Server) handleEnqueue(c *fiber.Ctx) error {
	var req ScrapeRequest
	if err := c.BodyParser(&req); err != nil {
		return s.badRequest(c, errors.CodeInvalidOptions, "request body is not valid JSON")
	}

	opts := scraper.DefaultOptions()
	opts.URL = req.URL
	opts.Library = req.Library
	opts.Version = req.Version
	if req.MaxPages != nil {
		opts.MaxPages = *req.MaxPages
	}
	if req.MaxDepth != nil {
		opts.MaxDepth = *req.MaxDepth
	}
	if req.MaxConcurrency != nil {
		opts.MaxConcurrency = *req.MaxConcurrency
	}
	if req.Scope != "" {
		opts.Scope = urlutil.Scope(req.Scope)
	}
	if len(req.IncludePatterns) > 0 {
		opts.IncludePatterns = req.IncludePatterns
	}
	if len(req.ExcludePatterns) > 0 {
		opts.ExcludePatterns = req.ExcludePatterns
	}
	if req.ScrapeMode != "" {
		opts.ScrapeMode = req.ScrapeMode
	}
	if req.FollowRedirects != nil {
		opts.FollowRedirects = *req.FollowRedirects
	}
	if req.IgnoreErrors != nil {
		opts.IgnoreErrors = *req.IgnoreErrors
	}
	if req.RespectRobots != nil {
		opts.RespectRobots = *req.RespectRobots
	}
	if len(req.Headers) > 0 {
		opts.Headers = req.Headers
	}

	job, err := s.manager.Enqueue(opts)
	if err != nil {
		return s.fail(c, err)
	}
	return c.Status(fiber.StatusAccepted).JSON(EnqueueResponse{Success: true, JobID: job.ID})
}

func (s *Server) handleListJobs(c *fiber.Ctx) error {
	jobs := s.manager.ListJobs()
	return c.JSON(JobListResponse{Success: true, Jobs: jobs})
}

func (s *Server) handleGetJob(c *fiber.Ctx) error {
	job, err := s.manager.GetJob(c.Params("id"))
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(JobResponse{Success: true, Job: job.Snapshot()})
}

func (s *Server) handleCancelJob(c *fiber.Ctx) error {
	id := c.Params("id")
	if err := s.manager.CancelJob(id); err != nil {
		return s.fail(c, err)
	}
	job, err := s.manager.GetJob(id)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(CancelResponse{Success: true, JobID: id, Status: string(job.Status())})
}

func (s *Server) handleListLibraries(c *fiber.Ctx) error {
	byName, err := s.store.QueryLibraryVersions(c.Context())
	if err != nil {
		return s.fail(c, err)
	}

	libraries := make([]LibrarySummary, 0, len(byName))
	for name, versions := range byName {
		libraries = append(libraries, LibrarySummary{Name: name, Versions: versions})
	}
	sort.Slice(libraries, func(i, j int) bool { return libraries[i].Name < libraries[j].Name })
	return c.JSON(LibraryListResponse{Success: true, Libraries: libraries})
}

func (s *Server) handleGetLibrary(c *fiber.Ctx) error {
	name := strings.ToLower(pathParam(c, "name"))

	byName, err := s.store.QueryLibraryVersions(c.Context())
	if err != nil {
		return s.fail(c, err)
	}
	versions, ok := byName[name]
	if !ok {
		return s.fail(c, errors.Newf(errors.CodeVersionNotFound,
			"library %q has no indexed versions", name))
	}
	return c.JSON(LibraryResponse{Success: true, Library: LibrarySummary{Name: name, Versions: versions}})
}

func (s *Server) handleDeleteVersion(c *fiber.Ctx) error {
	name := strings.ToLower(pathParam(c, "name"))
	version := strings.ToLower(pathParam(c, "version"))

	deleted, err := s.store.DeleteDocuments(c.Context(), name, version)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(DeleteVersionResponse{
		Success: true,
		Library: name,
		Version: version,
		Deleted: deleted,
	})
}

// handleSearch answers GET /api/search. With exactMatch off (the
// default) the version parameter is resolved to the best indexed
// version first.
func (s *Server) handleSearch(c *fiber.Ctx) error {
	library := strings.ToLower(strings.TrimSpace(c.Query("library")))
	if library == "" {
		return s.badRequest(c, errors.CodeInvalidOptions, "library query parameter is required")
	}
	query := c.Query("query")
	if strings.TrimSpace(query) == "" {
		return s.badRequest(c, errors.CodeInvalidOptions, "query parameter is required")
	}

	limit := defaultSearchLimit
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return s.badRequest(c, errors.CodeInvalidOptions, "limit must be a positive integer")
		}
		limit = n
	}

	exactMatch := false
	if v := c.Query("exactMatch"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return s.badRequest(c, errors.CodeInvalidOptions, "exactMatch must be true or false")
		}
		exactMatch = b
	}

	version := strings.ToLower(strings.TrimSpace(c.Query("version")))
	if !exactMatch {
		resolved, err := s.store.FindBestVersion(c.Context(), library, version)
		if err != nil {
			return s.fail(c, err)
		}
		version = resolved
	}

	results, err := s.retriever.Search(c.Context(), library, version, query, limit)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(SearchResponse{
		Success: true,
		Library: library,
		Version: version,
		Results: results,
	})
}

// pathParam returns a percent-decoded route parameter.
func pathParam(c *fiber.Ctx, name string) string {
	raw := c.Params(name)
	if decoded, err := url.PathUnescape(raw); err == nil {
		return decoded
	}
	return raw
}
