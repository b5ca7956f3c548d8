package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/docdex/docdex/internal/config"
	"github.com/docdex/docdex/internal/embed"
	"github.com/docdex/docdex/internal/logging"
	"github.com/docdex/docdex/internal/pipeline"
	"github.com/docdex/docdex/internal/retriever"
	"github.com/docdex/docdex/internal/scraper"
	"github.com/docdex/docdex/internal/server"
	"github.com/docdex/docdex/internal/store"
)

// shutdownTimeout bounds how long running jobs get to wind down after a
// termination signal.
const shutdownTimeout = 15 * time.Second

// newServeCmd creates the serve command.
func newServeCmd(configPath *string) *cobra.Command {
	var host string
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the docdex HTTP API",
		Long: `Start the HTTP API that accepts scrape jobs and answers search
requests against the indexed documentation.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			if host != "" {
				cfg.Server.Host = host
			}
			if port != 0 {
				cfg.Server.Port = port
			}
			return runServe(cmd.Context(), cfg)
		},
	}

	cmd.Flags().StringVar(&host, "host", "", "Listen host (overrides config)")
	cmd.Flags().IntVar(&port, "port", 0, "Listen port (overrides config)")

	return cmd
}

func runServe(ctx context.Context, cfg *config.Config) error {
	logger, cleanup, err := logging.Setup(logging.Config{
		Level:    cfg.Logging.Level,
		FilePath: cfg.Logging.File,
		Format:   cfg.Logging.Format,
	})
	if err != nil {
		return err
	}
	defer cleanup()
	slog.SetDefault(logger)

	embedder, err := embed.NewEmbedder(ctx, embed.FactoryConfig{
		Selector:      cfg.Embeddings.Model,
		OllamaHost:    cfg.Embeddings.OllamaHost,
		OpenAIBaseURL: cfg.Embeddings.OpenAIBaseURL,
	})
	if err != nil {
		return fmt.Errorf("initialize embedder: %w", err)
	}

	st, err := store.New(ctx, store.Config{
		Path:           filepath.Join(cfg.Database.Path, "docdex.db"),
		Embedder:       embedder,
		EmbedBatchSize: cfg.Embeddings.BatchSize,
		Logger:         logger,
	})
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	registry, err := scraper.NewRegistry(scraper.RegistryConfig{
		UserAgent:  cfg.Scraper.UserAgent,
		BrowserURL: cfg.Scraper.BrowserURL,
		Logger:     logger,
	})
	if err != nil {
		return fmt.Errorf("build scraper registry: %w", err)
	}

	manager := pipeline.NewManager(pipeline.ManagerConfig{
		Registry:    registry,
		Store:       st,
		Concurrency: cfg.Pipeline.Concurrency,
		Logger:      logger,
	})
	manager.Start()

	srv := server.New(server.Config{
		Manager:   manager,
		Store:     st,
		Retriever: retriever.New(st, logger),
		Logger:    logger,
	})

	errCh := make(chan error, 1)
	go func() {
		logger.Info("docdex listening",
			slog.String("host", cfg.Server.Host),
			slog.Int("port", cfg.Server.Port))
		errCh <- srv.Listen(cfg.Server.Host, cfg.Server.Port)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		logger.Info("shutting down", slog.String("signal", sig.String()))
	case <-ctx.Done():
		logger.Info("shutting down", slog.String("reason", "context cancelled"))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(); err != nil {
		logger.Error("server shutdown failed", slog.String("error", err.Error()))
	}
	if err := manager.Stop(shutdownCtx); err != nil {
		logger.Error("pipeline shutdown incomplete", slog.String("error", err.Error()))
	}
	return nil
}
