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
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/starford/bookzettel/internal/analysis"
	"github.com/starford/bookzettel/internal/api"
	"github.com/starford/bookzettel/internal/engine"
	"github.com/starford/bookzettel/internal/index"
	"github.com/starford/bookzettel/internal/mcpserver"
	"github.com/starford/bookzettel/internal/moc"
	"github.com/starford/bookzettel/internal/models"
	"github.com/starford/bookzettel/internal/normalize"
	"github.com/starford/bookzettel/internal/noteservice"
	"github.com/starford/bookzettel/internal/notestore"
	"github.com/starford/bookzettel/internal/sse"
	"github.com/starford/bookzettel/internal/storage"
)

// mocDelay coalesces bursts of watcher events into one map of content rebuild.
const mocDelay = time.Second

// NewLogger returns the structured JSON logger used by every command.
func NewLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}))
}

// App is the wired application over one output directory.
type App struct {
	cfg     *Config
	logger  *slog.Logger
	version string

	store   *notestore.Store
	db      *index.DB
	catalog *index.Catalog
	engine  *engine.Engine
	service *noteservice.Service

	// analyzerErr explains why Generate cannot run when no analyzer was built.
	analyzerErr error
}

// New wires storage, catalog, engine and service from the configuration.
// The caller must Close the returned App.
func New(opts ...Option) (*App, error) {
	app := &application{}

	for _, opt := range opts {
		opt(app)
	}

	if app.config == nil {
		return nil, fmt.Errorf("config is required")
	}

	cfg := app.config

	logger := app.logger
	if logger == nil {
		logger = NewLogger(os.Stdout, cfg.App.LogLevel)
	}
	slog.SetDefault(logger)

	logger.Debug("Configuration loaded",
		slog.String("vault_path", cfg.Vault.Path),
		slog.String("sqlite_path", cfg.SQLite.Path),
		slog.String("provider", cfg.Analysis.Provider),
		slog.String("log_level", cfg.App.LogLevel.String()))

	base, err := cfg.RunContext("")
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(cfg.Vault.Path, 0o755); err != nil {
		return nil, fmt.Errorf("create vault dir: %w", err)
	}

	fs, err := storage.NewFS(cfg.Vault.Path, cfg.Vault.Ext())
	if err != nil {
		return nil, fmt.Errorf("init storage: %w", err)
	}
	store := notestore.New(fs, cfg.Vault.Ext())

	db, err := index.Open(cfg.SQLite.Path)
	if err != nil {
		return nil, fmt.Errorf("init index: %w", err)
	}

	n := normalize.New(cfg.Vault.Acronyms...)
	catalog := index.NewCatalog(db, store, n, logger)

	a := &App{
		cfg:     cfg,
		logger:  logger,
		version: app.version,
		store:   store,
		db:      db,
		catalog: catalog,
	}

	engineOpts := []engine.Option{
		engine.WithIndexer(catalog),
		engine.WithLogger(logger),
		engine.WithAggregator(moc.New(store, n, moc.WithName(cfg.Vault.MOCName))),
	}
	analyzer := app.analyzer
	if analyzer == nil {
		analyzer, a.analyzerErr = a.buildAnalyzer()
	}
	if analyzer != nil {
		engineOpts = append(engineOpts, engine.WithAnalyzer(analyzer))
	}

	a.engine = engine.New(store, n, engineOpts...)
	a.service = noteservice.NewService(a.engine, catalog, base)
	return a, nil
}

func (a *App) buildAnalyzer() (analysis.Analyzer, error) {
	backend, err := analysis.NewBackend(a.cfg.Analysis.BackendConfig())
	if err != nil {
		return nil, err
	}
	return analysis.NewService(backend,
		analysis.WithBookTitle(a.cfg.Book.Title),
		analysis.WithRetry(a.cfg.Analysis.MaxAttempts, a.cfg.Analysis.BaseDelay),
		analysis.WithLogger(a.logger),
	), nil
}

// Close releases the catalog database.
func (a *App) Close() error {
	return a.db.Close()
}

// Service returns the note service shared by the HTTP and MCP surfaces.
func (a *App) Service() *noteservice.Service { return a.service }

// Generate extracts pages start..end of src, analyzes them and compiles the
// resulting concepts into notes for chapter.
func (a *App) Generate(ctx context.Context, src string, start, end int, chapter string, opts engine.Options) (*models.RunSummary, error) {
	if a.analyzerErr != nil {
		return nil, fmt.Errorf("analysis backend: %w", a.analyzerErr)
	}
	rc, err := a.cfg.RunContext(chapter)
	if err != nil {
		return nil, err
	}
	return a.engine.Generate(ctx, engine.GenerateRequest{
		Source:  src,
		Start:   start,
		End:     end,
		Context: rc,
		Options: opts,
	})
}

// Compile writes records as notes for chapter.
func (a *App) Compile(ctx context.Context, records []models.ConceptRecord, chapter string, opts engine.Options) (*models.RunSummary, error) {
	return a.service.Compile(ctx, noteservice.CompileRequest{
		Records:           records,
		Chapter:           chapter,
		Overwrite:         opts.Overwrite,
		BuildMOC:          opts.BuildMOC,
		BuildChapterIndex: opts.BuildChapterIndex,
	})
}

// Rebuild regenerates the map of content, and the chapter index when chapter is set.
func (a *App) Rebuild(ctx context.Context, chapter string) (*models.RunSummary, error) {
	return a.service.Rebuild(ctx, chapter)
}

// Dangling syncs the catalog with the output directory and lists links whose
// target has no note.
func (a *App) Dangling(ctx context.Context) ([]index.DanglingLink, error) {
	if err := a.catalog.Sync(ctx); err != nil {
		return nil, fmt.Errorf("sync catalog: %w", err)
	}
	return a.service.Dangling(ctx)
}

// ServeMCP syncs the catalog and serves the MCP tools on stdin/stdout.
func (a *App) ServeMCP(ctx context.Context) error {
	if err := a.catalog.Sync(ctx); err != nil {
		a.logger.Warn("initial sync failed", slog.String("error", err.Error()))
	}
	return mcpserver.New(a.service, a.version).ServeStdio()
}

// isIndexNote reports whether id names a generated index note, whose changes
// must not trigger another rebuild.
func (a *App) isIndexNote(id string) bool {
	if strings.HasPrefix(id, "index-") {
		return true
	}
	name, err := a.engine.MOCName(a.service.BaseContext())
	return err == nil && id == name
}

// Serve runs the HTTP API and the output directory watcher until ctx is done
// or a shutdown signal arrives.
func (a *App) Serve(ctx context.Context) error {
	cfg := a.cfg
	logger := a.logger

	// Run initial sync.
	if err := a.catalog.Sync(ctx); err != nil {
		logger.Warn("initial sync failed", slog.String("error", err.Error()))
	}

	// SSE broker.
	broker := sse.NewBroker(2 * time.Second)
	defer broker.Close()
	a.service.OnRun(broker.PublishRun)

	apiRouter := api.NewRouter(a.service, cfg.Auth.AuthEnabled(), cfg.Auth.Token, broker)

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

	// Mount API routes under /api.
	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:    cfg.App.HTTP.Address(),
		Handler: r,
	}

	logger.Info("Server starting...",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("vault_path", cfg.Vault.Path))

	g, gCtx := errgroup.WithContext(ctx)

	dirty := make(chan struct{}, 1)

	// Start file watcher with SSE callback.
	g.Go(func() error {
		return a.catalog.Watch(gCtx, func(kind, id string) {
			broker.PublishNoteEvent(kind, id)
			if a.isIndexNote(id) {
				return
			}
			select {
			case dirty <- struct{}{}:
			default:
			}
		})
	})

	// Keep the map of content in step with hand edits.
	if cfg.Book.Title != "" || cfg.Vault.MOCName != "" {
		g.Go(func() error {
			a.mocLoop(gCtx, dirty, broker)
			return nil
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

// errShutdown cancels the group context so the watcher stops with the server.
var errShutdown = errors.New("shutdown")

// mocLoop rebuilds the map of content once the watcher has been quiet for mocDelay.
func (a *App) mocLoop(ctx context.Context, dirty <-chan struct{}, broker *sse.Broker) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-dirty:
		}

		timer := time.NewTimer(mocDelay)
	settle:
		for {
			select {
			case <-ctx.Done():
				timer.Stop()
				return
			case <-dirty:
				timer.Reset(mocDelay)
			case <-timer.C:
				break settle
			}
		}

		summary, err := a.service.Rebuild(ctx, "")
		if err != nil {
			a.logger.Warn("moc: rebuild failed", slog.String("error", err.Error()))
			continue
		}
		a.logger.Info("moc: rebuilt", slog.String("path", summary.IndexPath))
		broker.Publish(sse.Event{Type: sse.TypeMOCUpdated, Data: map[string]string{"path": summary.IndexPath}})
	}
}

// Run starts the HTTP server with the given options and blocks until shutdown.
func Run(ctx context.Context, opts ...Option) error {
	a, err := New(opts...)
	if err != nil {
		return err
	}
	defer a.Close()
	return a.Serve(ctx)
}
