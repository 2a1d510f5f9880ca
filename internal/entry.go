// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"encoding/json"
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

	"github.com/starford/ansuz/internal/api"
	"github.com/starford/ansuz/internal/indexer"
	"github.com/starford/ansuz/internal/mcpserver"
	"github.com/starford/ansuz/internal/metrics"
	"github.com/starford/ansuz/internal/parser"
	"github.com/starford/ansuz/internal/persist"
	"github.com/starford/ansuz/internal/snapshot"
	"github.com/starford/ansuz/internal/sse"
	"github.com/starford/ansuz/internal/tools"
	"github.com/starford/ansuz/internal/watch"
)

// services is the set of components shared by every command.
type services struct {
	store   *snapshot.Store
	indexer *indexer.Indexer
	tools   *tools.Dispatcher
}

func newApplication(opts []Option) (*application, error) {
	app := &application{version: "dev", out: os.Stdout}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return nil, fmt.Errorf("config is required")
	}
	return app, nil
}

func newLogger(cfg *Config, w io.Writer) *slog.Logger {
	logger := slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
	slog.SetDefault(logger)
	return logger
}

// newServices opens persistence, loads stored snapshots and builds the
// indexer and tool dispatcher on top of the store.
func newServices(ctx context.Context, cfg *Config, logger *slog.Logger, storeOpts ...snapshot.Option) (*services, error) {
	p, err := persist.Open(persist.Config{
		Driver:     cfg.Persistence.Driver,
		Path:       cfg.Persistence.Path,
		SyncWrites: cfg.Persistence.SyncWrites,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("init persistence: %w", err)
	}
	if p != nil {
		storeOpts = append(storeOpts, snapshot.WithPersister(p))
	}

	store := snapshot.New(logger, storeOpts...)
	n, err := store.Load(ctx)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("load snapshots: %w", err)
	}
	if n > 0 {
		logger.Info("Snapshots restored", slog.Int("count", n), slog.String("driver", cfg.Persistence.Driver))
	}

	ix := indexer.New(store, parser.NewRegistry(), logger,
		indexer.WithMaxFileBytes(cfg.Index.MaxFileBytes),
		indexer.WithBatchSize(cfg.Index.BatchSize),
		indexer.WithWorkers(cfg.Index.Workers),
		indexer.WithRespectVCSIgnore(cfg.Index.RespectVCSIgnore),
		indexer.WithExtraExcludeDirs(cfg.Index.ExtraExcludeDirs),
	)

	d, err := tools.NewDispatcher(store, ix, logger, cfg.Query.CacheSize)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("init tools: %w", err)
	}

	return &services{store: store, indexer: ix, tools: d}, nil
}

func (s *services) Close(logger *slog.Logger) {
	if err := s.store.Close(); err != nil {
		logger.Error("close store failed", slog.String("error", err.Error()))
	}
}

// Run starts the HTTP API and, when configured, the repository watcher.
func Run(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	cfg := app.config

	logger := newLogger(cfg, os.Stdout)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("persistence_driver", cfg.Persistence.Driver),
		slog.String("persistence_path", cfg.Persistence.Path),
		slog.Bool("watch_enabled", cfg.Watch.Enabled),
		slog.String("log_level", cfg.App.LogLevel.String()))

	// SSE broker receives every snapshot mutation from the store.
	broker := sse.NewBroker(2 * time.Second)
	defer broker.Close()

	svc, err := newServices(ctx, cfg, logger, snapshot.WithEventFunc(broker.PublishSnapshotEvent))
	if err != nil {
		return err
	}
	defer svc.Close(logger)

	var watcher *watch.Watcher
	if cfg.Watch.Enabled {
		watcher, err = prepareWatcher(ctx, cfg, svc, logger)
		if err != nil {
			return err
		}
	}

	apiRouter := api.NewRouter(svc.store, svc.indexer, svc.tools, cfg.Auth.AuthEnabled(), cfg.Auth.Token, broker)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check and metrics endpoints (unauthenticated).
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/health/ready", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = fmt.Fprintf(w, `{"status":"ok","snapshots":%d}`, len(svc.store.List("")))
	})
	r.Handle("/metrics", metrics.Handler())

	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:              cfg.App.HTTP.Address(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	runCtx, stop := context.WithCancel(ctx)
	defer stop()
	g, gCtx := errgroup.WithContext(runCtx)

	if watcher != nil {
		g.Go(func() error {
			return watcher.Run(gCtx)
		})
	}

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
		defer signal.Stop(quit)

		select {
		case sig := <-quit:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		case <-gCtx.Done():
			logger.Info("Context cancelled, initiating shutdown")
		}

		logger.Info("Shutting down server...")
		stop()

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

// prepareWatcher makes sure the watched root has a snapshot to apply deltas
// to, building one if none was restored.
func prepareWatcher(ctx context.Context, cfg *Config, svc *services, logger *slog.Logger) (*watch.Watcher, error) {
	w, err := watch.New(cfg.Watch.Root, svc.store, svc.indexer, logger,
		watch.WithDebounce(cfg.Watch.Debounce),
		watch.WithExcludeDirs(cfg.Index.ExtraExcludeDirs...),
	)
	if err != nil {
		return nil, err
	}
	if snap, err := svc.store.FindLatestByRoot(w.Root()); err == nil {
		logger.Info("Watching existing snapshot", slog.String("snapshot_id", snap.ID), slog.String("root", w.Root()))
		return w, nil
	}

	res := svc.indexer.BuildIndex(ctx, indexer.Request{RootPath: w.Root()})
	if res.Error != "" {
		return nil, fmt.Errorf("initial index of %s: %s", w.Root(), res.Error)
	}
	logger.Info("Initial index built",
		slog.String("snapshot_id", res.SnapshotID),
		slog.Int("files", res.FileCount),
		slog.Int("dependencies", res.DependencyCount),
		slog.Int64("took_ms", res.TookMs))
	return w, nil
}

// RunMCP serves the tools over MCP on stdin/stdout. Logs go to stderr so
// they never interleave with protocol messages.
func RunMCP(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	logger := newLogger(app.config, os.Stderr)

	svc, err := newServices(ctx, app.config, logger)
	if err != nil {
		return err
	}
	defer svc.Close(logger)

	logger.Info("MCP server starting", slog.String("version", app.version))
	if err := mcpserver.New(svc.tools, app.version).ServeStdio(); err != nil {
		return fmt.Errorf("mcp server: %w", err)
	}
	return nil
}

// RunIndex builds one snapshot of root and prints the indexing result as
// JSON. The snapshot is persisted when a persistence driver is configured.
func RunIndex(ctx context.Context, root string, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	logger := newLogger(app.config, os.Stderr)

	svc, err := newServices(ctx, app.config, logger)
	if err != nil {
		return err
	}
	defer svc.Close(logger)

	res := svc.indexer.BuildIndex(ctx, indexer.Request{RootPath: root})

	enc := json.NewEncoder(app.out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(res); err != nil {
		return fmt.Errorf("write result: %w", err)
	}
	if res.Error != "" {
		return fmt.Errorf("index %s: %s", root, res.Error)
	}
	return nil
}
