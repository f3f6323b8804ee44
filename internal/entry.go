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
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/starford/waypoint/internal/api"
	"github.com/starford/waypoint/internal/apperr"
	"github.com/starford/waypoint/internal/history"
	"github.com/starford/waypoint/internal/indexer"
	"github.com/starford/waypoint/internal/mcpserver"
	"github.com/starford/waypoint/internal/sources"
	"github.com/starford/waypoint/internal/sources/bib"
	"github.com/starford/waypoint/internal/sources/joplin"
	"github.com/starford/waypoint/internal/sources/orgroam"
	"github.com/starford/waypoint/internal/sse"
	"github.com/starford/waypoint/internal/store"
	"github.com/starford/waypoint/internal/watcher"
)

// BuildSources returns the enabled sources in a fixed order: org-roam,
// bibliography, Joplin.
func BuildSources(cfg *Config, logger *slog.Logger) []sources.Source {
	var srcs []sources.Source
	if c := cfg.Sources.OrgRoam; c.Enabled {
		srcs = append(srcs, orgroam.New(orgroam.Options{
			Ignored:      cfg.Index.Ignored,
			Follow:       cfg.Index.Follow,
			Workers:      cfg.Index.Workers,
			EditorScheme: cfg.Index.EditorScheme,
			Logger:       logger,
		}, c.Paths...))
	}
	if c := cfg.Sources.Bib; c.Enabled {
		srcs = append(srcs, bib.New(bib.Options{
			LocatorSchema: c.LocatorSchema,
			Logger:        logger,
		}, c.Paths...))
	}
	if c := cfg.Sources.Joplin; c.Enabled {
		srcs = append(srcs, joplin.New(joplin.Options{
			LocatorSchema: c.LocatorSchema,
			HTTPOnly:      c.HTTPOnly,
			Logger:        logger,
		}, c.DatabasePaths()...))
	}
	return srcs
}

type runtime struct {
	cfg     *Config
	logger  *slog.Logger
	db      *store.DB
	srcs    []sources.Source
	version string
}

func setup(opts []Option) (*runtime, error) {
	app := &application{logOutput: os.Stdout, version: "dev"}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return nil, fmt.Errorf("config is required")
	}
	cfg := app.config

	logger := newLogger(app.logOutput, cfg.App.LogLevel)
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("sqlite_path", cfg.SQLite.Path),
		slog.Int("workers", cfg.Index.Workers),
		slog.String("log_level", cfg.App.LogLevel.String()))

	srcs := BuildSources(cfg, logger)
	if len(srcs) == 0 {
		logger.Warn("no sources enabled")
	}

	db, err := store.Open(cfg.SQLite.Path)
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}
	return &runtime{cfg: cfg, logger: logger, db: db, srcs: srcs, version: app.version}, nil
}

func newLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}))
}

// RunIndex performs a single indexing pass over every enabled source.
func RunIndex(ctx context.Context, opts ...Option) (indexer.Summary, error) {
	rt, err := setup(opts)
	if err != nil {
		return indexer.Summary{}, err
	}
	defer rt.db.Close()

	return indexer.Run(ctx, rt.db, rt.srcs, rt.logger)
}

// RunMCP serves the visit history over MCP on stdin/stdout.
func RunMCP(ctx context.Context, opts ...Option) error {
	rt, err := setup(append(opts, WithLogOutput(os.Stderr)))
	if err != nil {
		return err
	}
	defer rt.db.Close()

	svc := history.NewService(rt.db, nil)
	return mcpserver.New(svc, rt.version).ServeStdio(ctx)
}

// Run starts the HTTP API, the SSE broker and, when enabled, the watcher.
func Run(ctx context.Context, opts ...Option) error {
	rt, err := setup(opts)
	if err != nil {
		return err
	}
	defer rt.db.Close()
	cfg, logger := rt.cfg, rt.logger

	broker := sse.NewBroker(2 * time.Second)
	defer broker.Close()

	svc := history.NewService(rt.db, func(ctx context.Context) (indexer.Summary, error) {
		sum, err := indexer.Run(ctx, rt.db, rt.srcs, logger)
		broker.PublishRun(sum)
		return sum, err
	})
	apiRouter := api.NewRouter(svc, cfg.Auth.AuthEnabled(), cfg.Auth.Token, broker)

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
	r.Get("/health/ready", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if _, err := rt.db.Stats(req.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"unavailable"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:    cfg.App.HTTP.Address(),
		Handler: r,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	g, gCtx := errgroup.WithContext(ctx)

	reindex := func(ctx context.Context, reason string) {
		if _, err := svc.Reindex(ctx); err != nil {
			switch {
			case errors.Is(err, apperr.ErrBusy):
				logger.Debug("reindex skipped, already running", slog.String("reason", reason))
			case errors.Is(err, context.Canceled):
				// Shutting down.
			default:
				logger.Warn("reindex failed", slog.String("reason", reason), slog.String("error", err.Error()))
			}
		}
	}

	if cfg.Index.OnStart {
		g.Go(func() error {
			reindex(gCtx, "startup")
			return nil
		})
	}

	if cfg.Watch.Enabled {
		g.Go(func() error {
			return watcher.Watch(gCtx, watcher.Options{
				Roots:    cfg.WatchRoots(),
				Ignore:   cfg.Index.Ignored,
				Debounce: cfg.Watch.Debounce,
				Logger:   logger,
			}, func(ctx context.Context, changed []string) {
				logger.Info("watcher: files changed", slog.Int("count", len(changed)))
				reindex(ctx, "watch")
			})
		})
	}

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
		defer signal.Stop(quit)

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
		return context.Canceled
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}
