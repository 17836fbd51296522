// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/starford/mdxengine/internal/api"
	"github.com/starford/mdxengine/internal/cache"
	"github.com/starford/mdxengine/internal/mcpserver"
	"github.com/starford/mdxengine/internal/render"
	"github.com/starford/mdxengine/internal/sandbox"
	"github.com/starford/mdxengine/internal/sse"
	"github.com/starford/mdxengine/internal/storage"
	"github.com/starford/mdxengine/internal/watcher"
)

// Run starts the HTTP server, and the content watcher when a documents
// directory is configured.
func Run(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	cfg := app.config
	logger := app.logger

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("documents", cfg.Content.Documents),
		slog.String("output", cfg.Content.Output),
		slog.String("cache_path", cfg.Cache.Path),
		slog.Int("pool_size", cfg.Engine.PoolSize),
		slog.String("log_level", cfg.App.LogLevel.String()))

	db, err := openCache(cfg)
	if err != nil {
		return err
	}
	if db != nil {
		defer db.Close()
	}

	engine, err := newEngine(ctx, cfg, db, logger)
	if err != nil {
		return err
	}
	defer engine.Close()

	broker := sse.NewBroker(2 * time.Second)
	defer broker.Close()

	var builder *watcher.Builder
	if cfg.Content.Enabled() {
		builder, err = newBuilder(cfg, engine, db, logger, broker.PublishDocumentEvent)
		if err != nil {
			return err
		}
	}

	apiRouter := api.NewRouter(engine, cfg.Auth.AuthEnabled(), cfg.Auth.Token, broker)
	health := api.NewHandler(engine)

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
	r.Get("/health/ready", health.Ready)

	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:    cfg.App.HTTP.Address(),
		Handler: r,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	g, gCtx := errgroup.WithContext(ctx)

	if builder != nil {
		g.Go(func() error {
			if !cfg.Content.Watch {
				_, err := builder.Sync(gCtx)
				if err != nil {
					logger.Warn("initial sync failed", slog.String("error", err.Error()))
				}
				return nil
			}
			if err := watcher.Watch(gCtx, builder, logger); err != nil {
				logger.Error("watcher failed", slog.String("error", err.Error()))
			}
			return nil
		})
	}

	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

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

		return errShutdown
	})

	if err := g.Wait(); err != nil && !errors.Is(err, errShutdown) {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

// errShutdown cancels the group once the server has been shut down, so
// the watcher stops with it.
var errShutdown = errors.New("shutdown")

// Build renders the configured content directory once and writes the sync
// report as JSON to the application output.
func Build(ctx context.Context, opts ...Option) (*watcher.Report, error) {
	app, err := newApplication(opts)
	if err != nil {
		return nil, err
	}
	cfg := app.config
	if !cfg.Content.Enabled() {
		return nil, fmt.Errorf("content.documents is required")
	}

	db, err := openCache(cfg)
	if err != nil {
		return nil, err
	}
	if db != nil {
		defer db.Close()
	}
	engine, err := newEngine(ctx, cfg, db, app.logger)
	if err != nil {
		return nil, err
	}
	defer engine.Close()

	builder, err := newBuilder(cfg, engine, db, app.logger, nil)
	if err != nil {
		return nil, err
	}
	report, err := builder.Sync(ctx)
	if err != nil {
		return nil, err
	}
	if app.out != nil {
		enc := json.NewEncoder(app.out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(report); err != nil {
			return report, err
		}
	}
	return report, nil
}

// ServeMCP runs the MCP server on stdio until the client disconnects.
func ServeMCP(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	cfg := app.config

	db, err := openCache(cfg)
	if err != nil {
		return err
	}
	if db != nil {
		defer db.Close()
	}
	engine, err := newEngine(ctx, cfg, db, app.logger)
	if err != nil {
		return err
	}
	defer engine.Close()

	var srvOpts []mcpserver.Option
	if cfg.Content.Enabled() {
		builder, err := newBuilder(cfg, engine, db, app.logger, nil)
		if err != nil {
			return err
		}
		srvOpts = append(srvOpts, mcpserver.WithSite(builder))
	}

	app.logger.Info("MCP server starting on stdio")
	return mcpserver.New(engine, srvOpts...).ServeStdio()
}

func newApplication(opts []Option) (*application, error) {
	app := &application{logOutput: os.Stdout, out: os.Stdout}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return nil, fmt.Errorf("config is required")
	}

	// Initialize structured JSON logger.
	app.logger = slog.New(slog.NewJSONHandler(app.logOutput, &slog.HandlerOptions{
		Level: app.config.App.LogLevel,
	}))
	slog.SetDefault(app.logger)
	return app, nil
}

func openCache(cfg *Config) (*cache.DB, error) {
	if cfg.Cache.Path == "" {
		return nil, nil
	}
	db, err := cache.Open(cfg.Cache.Path)
	if err != nil {
		return nil, fmt.Errorf("init cache: %w", err)
	}
	return db, nil
}

func newEngine(ctx context.Context, cfg *Config, db *cache.DB, logger *slog.Logger) (*render.Engine, error) {
	poolOpts := []sandbox.PoolOption{
		sandbox.WithAcquireTimeout(cfg.Engine.AcquireTimeout),
		sandbox.WithExecTimeout(cfg.Engine.ExecTimeout),
		sandbox.WithLogger(logger),
	}
	if cfg.Engine.MaxCallStack > 0 {
		poolOpts = append(poolOpts, sandbox.WithMaxCallStackSize(cfg.Engine.MaxCallStack))
	}

	opts := []render.Option{
		render.WithPool(sandbox.NewPool(cfg.Engine.PoolSize, poolOpts...)),
		render.WithRetryPolicy(cfg.Engine.Retry.Policy()),
		render.WithWarmCache(cfg.Cache.Warm),
		render.WithLimits(cfg.Limits),
		render.WithLogger(logger),
	}
	if cfg.Engine.MaxDepth > 0 {
		opts = append(opts, render.WithMaxDepth(cfg.Engine.MaxDepth))
	}
	if db != nil && cfg.Cache.Warm {
		opts = append(opts, render.WithTransformStore(db))
	}
	engine := render.New(opts...)

	if cfg.Engine.WarmContexts > 0 {
		if err := engine.Warm(ctx, cfg.Engine.WarmContexts); err != nil {
			engine.Close()
			return nil, fmt.Errorf("warm pool: %w", err)
		}
	}
	return engine, nil
}

func newBuilder(cfg *Config, engine *render.Engine, db *cache.DB, logger *slog.Logger, cb watcher.EventCallback) (*watcher.Builder, error) {
	if err := os.MkdirAll(cfg.Content.Documents, 0o755); err != nil {
		return nil, fmt.Errorf("create documents dir: %w", err)
	}
	docs, err := storage.NewFS(cfg.Content.Documents)
	if err != nil {
		return nil, fmt.Errorf("init documents: %w", err)
	}
	if err := os.MkdirAll(cfg.Content.Output, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	out, err := storage.NewFS(cfg.Content.Output)
	if err != nil {
		return nil, fmt.Errorf("init output: %w", err)
	}

	opts := []watcher.Option{
		watcher.WithSettings(cfg.Content.Settings),
		watcher.WithLogger(logger),
	}
	if cfg.Content.Components != "" {
		comps, err := storage.NewFS(cfg.Content.Components, storage.WithExtensions(storage.ComponentExtensions...))
		if err != nil {
			return nil, fmt.Errorf("init components: %w", err)
		}
		opts = append(opts, watcher.WithComponents(comps))
	}
	if cfg.Content.UtilsFile != "" {
		opts = append(opts, watcher.WithUtilsFile(cfg.Content.UtilsFile))
	}
	if db != nil {
		opts = append(opts, watcher.WithState(db))
	}
	if cb != nil {
		opts = append(opts, watcher.WithCallback(cb))
	}
	return watcher.NewBuilder(engine, docs, out, opts...), nil
}
