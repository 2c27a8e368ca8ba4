// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/starford/scimark/internal/api"
	"github.com/starford/scimark/internal/bibliography"
	"github.com/starford/scimark/internal/book"
	"github.com/starford/scimark/internal/fragment"
	"github.com/starford/scimark/internal/manifest"
	"github.com/starford/scimark/internal/mcpserver"
	"github.com/starford/scimark/internal/preprocessor"
	"github.com/starford/scimark/internal/render"
	"github.com/starford/scimark/internal/service"
	"github.com/starford/scimark/internal/sse"
	"github.com/starford/scimark/internal/storage"
	"github.com/starford/scimark/internal/watch"
	pkgconfig "github.com/starford/scimark/pkg/config"
)

// NewLogger returns the structured JSON logger on stderr and installs it as
// the default. Stdout belongs to the preprocessor protocol.
func NewLogger(level slog.Level) *slog.Logger {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)
	return logger
}

// Supports reports whether the preprocessor runs for the named renderer.
func Supports(renderer string) bool {
	return preprocessor.Supports(renderer)
}

func newApplication(opts []Option) (*application, error) {
	app := &application{}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return nil, fmt.Errorf("config is required")
	}
	if app.logger == nil {
		app.logger = NewLogger(app.config.App.LogLevel)
	}
	if app.stdin == nil {
		app.stdin = os.Stdin
	}
	if app.stdout == nil {
		app.stdout = os.Stdout
	}
	if app.runner == nil {
		app.runner = &render.ExecRunner{Timeout: app.config.Scientific.ToolTimeout}
	}
	if app.version == "" {
		app.version = "dev"
	}
	return app, nil
}

// stack is the rendering core shared by every command.
type stack struct {
	engine *preprocessor.Engine
	cache  *fragment.Cache
	db     *manifest.DB
}

func (s *stack) Close() {
	if s.db != nil {
		_ = s.db.Close()
	}
}

// assemble wires backends, the fragment cache, the manifest and the engine
// for one resolved preprocessor configuration.
func (a *application) assemble(sci ScientificConfig) (*stack, error) {
	backends := render.NewBackends(a.runner, render.Tools{
		Latex:   sci.Tools.Latex,
		Dvisvgm: sci.Tools.Dvisvgm,
		Gnuplot: sci.Tools.Gnuplot,
	})

	st := &stack{}
	cacheOpts := []fragment.Option{
		fragment.WithVerify(sci.VerifyChecksums),
		fragment.WithLogger(a.logger),
	}
	engineOpts := []preprocessor.Option{preprocessor.WithLogger(a.logger)}

	if dsn := a.config.Manifest.DSN(sci.FragmentPath); dsn != "" {
		if err := os.MkdirAll(filepath.Dir(dsn), 0o755); err != nil {
			return nil, fmt.Errorf("create manifest dir: %w", err)
		}
		db, err := manifest.Open(dsn)
		if err != nil {
			return nil, fmt.Errorf("init manifest: %w", err)
		}
		st.db = db
		cacheOpts = append(cacheOpts, fragment.WithLedger(db))
		engineOpts = append(engineOpts, preprocessor.WithLabelStore(db))
	}

	cache, err := fragment.New(sci.FragmentPath, backends, cacheOpts...)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("init fragment cache: %w", err)
	}
	st.cache = cache

	if sci.PublishDir != "" {
		publisher, err := storage.EnsureFS(sci.PublishDir)
		if err != nil {
			st.Close()
			return nil, fmt.Errorf("init publish dir: %w", err)
		}
		engineOpts = append(engineOpts, preprocessor.WithPublisher(publisher))
	}
	if sci.Bibliography != "" {
		engineOpts = append(engineOpts, preprocessor.WithBibliography(&bibliography.Converter{
			Runner:  a.runner,
			ToolDir: sci.Bib2xhtml,
		}))
	}

	st.engine = preprocessor.New(cache, preprocessor.Config{
		Assets:       sci.Assets,
		BlockZoom:    sci.BlockZoom,
		InlineZoom:   sci.InlineZoom,
		Policy:       sci.Policy(),
		Bibliography: sci.Bibliography,
	}, engineOpts...)
	return st, nil
}

// Preprocess runs one mdbook preprocessor invocation: it reads the
// [context, book] pair from stdin and writes the rewritten book to stdout.
func Preprocess(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}

	pctx, b, err := book.DecodeInput(app.stdin)
	if err != nil {
		return err
	}

	sci := app.config.Scientific
	if err := pkgconfig.Decode(pctx.PreprocessorConfig(preprocessor.Name), &sci); err != nil {
		return fmt.Errorf("preprocessor config: %w", err)
	}
	sci = sci.Resolve(pctx.Root)

	st, err := app.assemble(sci)
	if err != nil {
		return err
	}
	defer st.Close()

	res, err := st.engine.Run(ctx, b)
	if err != nil {
		return err
	}
	app.logger.Info("book preprocessed",
		slog.String("run_id", res.RunID),
		slog.String("renderer", pctx.Renderer),
		slog.Int("chapters", res.Chapters),
		slog.Int("fragments", len(res.Used)),
		slog.Duration("duration", res.Duration))

	return book.Encode(app.stdout, res.Book)
}

// project is a standalone book with its service.
type project struct {
	*stack
	root    string
	out     string
	sci     ScientificConfig
	sources storage.Provider
	svc     *service.Service
}

func (a *application) openProject(notifier service.Notifier) (*project, error) {
	cfg := a.config
	root, err := filepath.Abs(cfg.Book.Root)
	if err != nil {
		return nil, fmt.Errorf("resolve book root: %w", err)
	}
	out := anchor(root, cfg.Book.Out)

	// Markup points at assets/<file> relative to the chapters.
	sci := cfg.Scientific.Resolve(root)
	sci.PublishDir = filepath.Join(out, "assets")

	st, err := a.assemble(sci)
	if err != nil {
		return nil, err
	}

	src, err := storage.NewFS(root)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("init book root: %w", err)
	}
	dst, err := storage.EnsureFS(out)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("init output dir: %w", err)
	}

	var sources storage.Provider
	if sci.Assets != "" {
		fs, err := storage.EnsureFS(sci.Assets)
		if err != nil {
			st.Close()
			return nil, fmt.Errorf("init assets dir: %w", err)
		}
		sources = fs
	}

	svcOpts := []service.Option{
		service.WithBookFile(cfg.Book.Manifest),
		service.WithLogger(a.logger),
	}
	if st.db != nil {
		svcOpts = append(svcOpts, service.WithManifest(st.db))
	}
	if notifier != nil {
		svcOpts = append(svcOpts, service.WithNotifier(notifier))
	}
	svc, err := service.New(st.engine, st.cache, src, dst, svcOpts...)
	if err != nil {
		st.Close()
		return nil, err
	}

	return &project{stack: st, root: root, out: out, sci: sci, sources: sources, svc: svc}, nil
}

// Build renders the standalone book described by the book section of the
// configuration into its output directory.
func Build(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	p, err := app.openProject(nil)
	if err != nil {
		return err
	}
	defer p.Close()

	st, err := p.svc.Build(ctx)
	if err != nil {
		return err
	}
	app.logger.Info("book built",
		slog.String("run_id", st.RunID),
		slog.String("out", p.out),
		slog.Int("chapters", st.Chapters),
		slog.Int("fragments", st.Fragments),
		slog.Int("references", st.References),
		slog.Int64("duration_ms", st.DurationMS))
	return nil
}

// Run starts the preview server: it builds the book, rebuilds on every
// source change and serves the HTTP API with live events.
func Run(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	cfg := app.config
	logger := app.logger

	broker := sse.NewBroker(2 * time.Second)
	defer broker.Close()

	p, err := app.openProject(broker)
	if err != nil {
		return err
	}
	defer p.Close()

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("book_root", p.root),
		slog.String("fragment_path", p.sci.FragmentPath),
		slog.String("out", p.out),
		slog.String("log_level", cfg.App.LogLevel.String()))

	if n, err := p.svc.Prune(ctx); err != nil {
		logger.Warn("manifest prune failed", slog.String("error", err.Error()))
	} else if n > 0 {
		logger.Info("manifest pruned", slog.Int("removed", n))
	}

	if _, err := p.svc.Build(ctx); err != nil {
		logger.Warn("initial build failed", slog.String("error", err.Error()))
	}

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
		status := http.StatusOK
		if p.svc.Last().State == service.StateFailed {
			status = http.StatusServiceUnavailable
		}
		w.WriteHeader(status)
		_, _ = fmt.Fprintf(w, `{"status":%q}`, p.svc.Last().State)
	})

	r.Mount("/api", api.NewRouter(p.svc, cfg.Auth.AuthEnabled(), cfg.Auth.Token, broker, p.sources))
	r.Mount("/assets", api.NewAssetRouter(p.svc))

	httpServer := &http.Server{
		Addr:              cfg.App.HTTP.Address(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gCtx := errgroup.WithContext(ctx)

	// Rebuild on source changes.
	g.Go(func() error {
		return watch.Watch(gCtx, watch.Options{
			Root:   p.root,
			Ignore: []string{p.out, p.sci.FragmentPath, p.sci.PublishDir},
		}, logger, func(paths []string) {
			broker.PublishSourceChange(paths)
			if _, err := p.svc.Build(gCtx); err != nil {
				logger.Warn("rebuild failed", slog.String("error", err.Error()))
			}
		})
	})

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

// ServeMCP exposes the standalone book to MCP clients over stdio.
func ServeMCP(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	p, err := app.openProject(nil)
	if err != nil {
		return err
	}
	defer p.Close()

	app.logger.Info("MCP server starting", slog.String("book_root", p.root))
	return mcpserver.New(p.svc, p.sources, app.version).Listen(ctx, app.stdin, app.stdout, app.logger)
}
