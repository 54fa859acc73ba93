// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/starford/quill/internal/api"
	"github.com/starford/quill/internal/codec"
	"github.com/starford/quill/internal/index"
	"github.com/starford/quill/internal/ingest"
	"github.com/starford/quill/internal/library"
	"github.com/starford/quill/internal/mcpserver"
	"github.com/starford/quill/internal/models"
	"github.com/starford/quill/internal/notify"
	"github.com/starford/quill/internal/sse"
	"github.com/starford/quill/internal/storage"
)

// core is the part of the application shared by the HTTP and MCP modes.
type core struct {
	db       *index.DB
	hub      *notify.Hub
	lib      *library.Service
	pipeline *ingest.Pipeline
	blobRoot string
}

func newCore(cfg *Config, logger *slog.Logger) (*core, error) {
	blobRoot := filepath.Join(cfg.Library.Path, storage.BlobDir)
	if err := os.MkdirAll(blobRoot, 0o755); err != nil {
		return nil, fmt.Errorf("create library dir: %w", err)
	}

	store, err := storage.NewFS(cfg.Library.Path)
	if err != nil {
		return nil, fmt.Errorf("init storage: %w", err)
	}

	db, err := index.Open(cfg.SQLite.Path)
	if err != nil {
		return nil, fmt.Errorf("init index: %w", err)
	}

	report, err := index.Sync(db, store, logger)
	if err != nil {
		logger.Warn("initial sync failed", slog.String("error", err.Error()))
	} else {
		logger.Info("initial sync complete",
			slog.Int("checked", report.Checked),
			slog.Int("dropped_rows", report.DroppedRows),
			slog.Int("orphan_blobs", report.OrphanBlobs))
	}

	hub := notify.NewHub(logger)
	lib := library.NewService(store, db,
		library.WithHub(hub),
		library.WithLogger(logger))
	conv := codec.New(codec.WithDefaultMIMEType(cfg.Ingest.DefaultMIMEType))

	return &core{
		db:       db,
		hub:      hub,
		lib:      lib,
		pipeline: ingest.NewPipeline(conv, logger),
		blobRoot: blobRoot,
	}, nil
}

// watch keeps the index in step with blobs removed behind the library's back.
func (c *core) watch(ctx context.Context, logger *slog.Logger) error {
	return index.Watch(ctx, c.db, c.blobRoot, logger, func(_ string, meta models.RecordMeta) {
		c.hub.Publish(notify.Event{Kind: notify.KindDeleted, Category: meta.Category, ID: meta.ID})
	})
}

func newLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
	}))
}

// Run starts the HTTP application with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app := &application{}

	for _, opt := range opts {
		opt(app)
	}

	if app.config == nil {
		return fmt.Errorf("config is required")
	}

	cfg := app.config

	// Initialize structured JSON logger.
	logger := newLogger(os.Stdout, cfg.App.LogLevel)
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("library_path", cfg.Library.Path),
		slog.String("sqlite_path", cfg.SQLite.Path),
		slog.String("log_level", cfg.App.LogLevel.String()))

	c, err := newCore(cfg, logger)
	if err != nil {
		return err
	}
	defer c.db.Close()

	// SSE broker fed by the change hub.
	broker := sse.NewBroker(2 * time.Second)
	defer broker.Close()
	detach := broker.Attach(c.hub)
	defer detach()

	uploads, err := api.NewUploadPolicy(cfg.Ingest.Accept, cfg.Ingest.MaxUploadBytes)
	if err != nil {
		return fmt.Errorf("init upload policy: %w", err)
	}
	handler := api.NewHandler(c.lib, c.pipeline, uploads)
	apiRouter := api.NewRouter(handler, cfg.Auth.AuthEnabled(), cfg.Auth.Token, broker)

	// Build chi router.
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check endpoints (unauthenticated).
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/health/ready", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	// Prometheus metrics (unauthenticated, like the health checks).
	r.Handle("/metrics", promhttp.Handler())

	// Mount API routes under /api.
	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:    cfg.App.HTTP.Address(),
		Handler: r,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	g, gCtx := errgroup.WithContext(ctx)

	// Start blob watcher; removals are published on the hub.
	g.Go(func() error {
		if err := c.watch(gCtx, logger); err != nil {
			logger.Warn("watcher unavailable", slog.String("error", err.Error()))
		}
		return nil
	})

	// Start HTTP server.
	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	// Handle shutdown signals.
	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

		select {
		case sig := <-quit:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		case <-gCtx.Done():
			logger.Info("Context cancelled, initiating shutdown")
		}

		logger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}

		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

// RunMCP serves the library over MCP on stdin/stdout. Logs go to stderr
// because stdout carries the protocol.
func RunMCP(ctx context.Context, opts ...Option) error {
	app := &application{}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return fmt.Errorf("config is required")
	}
	cfg := app.config

	logger := newLogger(os.Stderr, cfg.App.LogLevel)
	slog.SetDefault(logger)

	c, err := newCore(cfg, logger)
	if err != nil {
		return err
	}
	defer c.db.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := c.watch(gCtx, logger); err != nil {
			logger.Warn("watcher unavailable", slog.String("error", err.Error()))
		}
		return nil
	})

	srv := mcpserver.New(c.lib, c.pipeline)
	logger.Info("MCP server starting on stdio")
	err = srv.ServeStdio(ctx)

	// ServeStdio returns once stdin closes; stop the watcher with it.
	cancel()
	return errors.Join(err, g.Wait())
}
