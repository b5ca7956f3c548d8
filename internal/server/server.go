// Package server exposes the Docdex HTTP API: job submission, job
// inspection, library listing, search and version deletion.
package server

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/docdex/docdex/internal/errors"
	"github.com/docdex/docdex/internal/pipeline"
	"github.com/docdex/docdex/internal/retriever"
	"github.com/docdex/docdex/internal/store"
)

// Config wires the server's collaborators.
type Config struct {
	Manager   *pipeline.Manager
	Store     *store.Store
	Retriever *retriever.Retriever
	Logger    *slog.Logger
}

// Server is the Docdex HTTP API.
type Server struct {
	app       *fiber.App
	manager   *pipeline.Manager
	store     *store.Store
	retriever *retriever.Retriever
	logger    *slog.Logger
}

// New builds the fiber app with all routes registered.
func New(cfg Config) *Server {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	s := &Server{
		app: fiber.New(fiber.Config{
			AppName:               "docdex",
			DisableStartupMessage: true,
		}),
		manager:   cfg.Manager,
		store:     cfg.Store,
		retriever: cfg.Retriever,
		logger:    cfg.Logger,
	}

	s.app.Use(s.requestLogger)

	s.app.Get("/healthz", s.handleHealth)

	api := s.app.Group("/api")
	api.Post("/jobs/scrape", s.handleEnqueue)
	api.Get("/jobs", s.handleListJobs)
	api.Get("/jobs/:id", s.handleGetJob)
	api.Delete("/jobs/:id", s.handleCancelJob)
	api.Get("/libraries", s.handleListLibraries)
	api.Get("/libraries/:name", s.handleGetLibrary)
	api.Delete("/libraries/:name/versions/:version", s.handleDeleteVersion)
	api.Get("/search", s.handleSearch)

	return s
}

// requestLogger assigns a request id and logs one line per request.
func (s *Server) requestLogger(c *fiber.Ctx) error {
	start := time.Now()

	reqID := c.Get("X-Request-Id")
	if reqID == "" {
		reqID = uuid.NewString()
	}
	c.Locals("request_id", reqID)
	c.Set("X-Request-Id", reqID)

	err := c.Next()

	s.logger.Info("request",
		slog.String("request_id", reqID),
		slog.String("method", c.Method()),
		slog.String("path", c.Path()),
		slog.Int("status", c.Response().StatusCode()),
		slog.Int64("latency_ms", time.Since(start).Milliseconds()))
	return err
}

func (s *Server) handleHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}

// Listen serves the API on host:port until Shutdown.
func (s *Server) Listen(host string, port int) error {
	return s.app.Listen(fmt.Sprintf("%s:%d", host, port))
}

// Shutdown drains in-flight requests and stops the listener.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}

// Test dispatches a request against the app without a listener.
func (s *Server) Test(req *http.Request) (*http.Response, error) {
	return s.app.Test(req, -1)
}

// statusForCode maps error codes to HTTP status codes.
func statusForCode(code string) int {
	switch code {
	case errors.CodeInvalidURL, errors.CodeInvalidVersion, errors.CodeInvalidOptions, errors.CodeEmptyURL:
		return fiber.StatusBadRequest
	case errors.CodeJobNotFound, errors.CodeVersionNotFound:
		return fiber.StatusNotFound
	case errors.CodeBusy:
		return fiber.StatusConflict
	default:
		return fiber.StatusInternalServerError
	}
}

// fail renders err in the shared error envelope.
func (s *Server) fail(c *fiber.Ctx, err error) error {
	resp := ErrorResponse{Error: err.Error()}
	status := fiber.StatusInternalServerError
	if e, ok := err.(*errors.Error); ok {
		resp.Code = e.Code
		resp.Suggestions = e.Suggestions
		status = statusForCode(e.Code)
	}
	return c.Status(status).JSON(resp)
}

// badRequest renders a 400 with the given code and message.
func (s *Server) badRequest(c *fiber.Ctx, code, message string) error {
	return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Code: code, Error: message})
}
