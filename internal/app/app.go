// Package app wires all renoquote subsystems into a running server.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run serves HTTP until the context is cancelled, and Shutdown
// tears everything down in order.
//
// For testing, inject doubles via functional options (WithCatalogStore,
// WithQuoteRepository, etc.). When an option is not provided, New creates
// real implementations from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/renoquote/internal/api"
	"github.com/MrWong99/renoquote/internal/confidence"
	"github.com/MrWong99/renoquote/internal/config"
	"github.com/MrWong99/renoquote/internal/feedback"
	"github.com/MrWong99/renoquote/internal/feedback/natspub"
	"github.com/MrWong99/renoquote/internal/health"
	"github.com/MrWong99/renoquote/internal/observe"
	"github.com/MrWong99/renoquote/internal/quote"
	"github.com/MrWong99/renoquote/internal/search"
	"github.com/MrWong99/renoquote/internal/store/postgres"
	"github.com/MrWong99/renoquote/pkg/catalog"
	"github.com/MrWong99/renoquote/pkg/catalog/qdrant"
	"github.com/MrWong99/renoquote/pkg/provider/embeddings"
)

// shutdownGrace bounds how long in-flight requests may take once Run's
// context is cancelled.
const shutdownGrace = 10 * time.Second

// Providers holds one interface value per provider slot. Nil means the
// provider is not configured. Populated by the CLI via the config registry.
type Providers struct {
	Embeddings embeddings.Provider
}

// pinger is implemented by backends that can report their reachability.
type pinger interface {
	Ping(ctx context.Context) error
}

// App owns all subsystem lifetimes of the pricing server.
type App struct {
	cfg       *config.Config
	providers *Providers

	// Subsystems, initialised in New and torn down in Shutdown.
	catalog   catalog.Store
	pgStores  map[string]*postgres.Store
	quotes    quote.Repository
	fbRepo    feedback.Repository
	publisher feedback.Publisher
	metrics   *observe.Metrics
	searcher  *search.Searcher
	assembler *quote.Assembler
	recorder  *feedback.Recorder
	checkers  []health.Checker
	handler   http.Handler
	level     *slog.LevelVar

	server         *http.Server
	metricsServer  *http.Server
	metricsHandler http.Handler

	// closers are called in order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithCatalogStore injects a catalog store instead of creating one from
// config. Seed files are still imported when the store implements
// [catalog.Writer].
func WithCatalogStore(s catalog.Store) Option {
	return func(a *App) { a.catalog = s }
}

// WithQuoteRepository injects a quote repository.
func WithQuoteRepository(r quote.Repository) Option {
	return func(a *App) { a.quotes = r }
}

// WithFeedbackRepository injects a feedback repository.
func WithFeedbackRepository(r feedback.Repository) Option {
	return func(a *App) { a.fbRepo = r }
}

// WithPublisher injects the feedback event publisher instead of connecting
// to NATS.
func WithPublisher(p feedback.Publisher) Option {
	return func(a *App) { a.publisher = p }
}

// WithMetrics sets the metrics sink. Default: [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithTelemetry records metrics through tel and serves its Prometheus
// registry on observability.metrics_addr.
func WithTelemetry(tel *observe.Telemetry) Option {
	return func(a *App) {
		a.metrics = tel.Metrics
		a.metricsHandler = tel.Handler()
	}
}

// WithLevelVar lets [App.Reload] change the log level of a handler built on
// lv.
func WithLevelVar(lv *slog.LevelVar) Option {
	return func(a *App) { a.level = lv }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring all subsystems together. The providers struct
// comes from the CLI (populated via the config registry). Use Option
// functions to inject test doubles for any subsystem.
//
// New performs all initialisation synchronously: backend connections and
// migrations, seed catalog import, and construction of the search, quote and
// feedback services. It does not start listening; see [App.Run].
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if providers == nil {
		providers = &Providers{}
	}
	a := &App{
		cfg:       cfg,
		providers: providers,
	}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	// If any step fails, release what earlier steps opened.
	ok := false
	defer func() {
		if !ok {
			a.runClosers()
		}
	}()

	// ── 1. Embeddings ────────────────────────────────────────────────────
	if err := a.initEmbeddings(); err != nil {
		return nil, fmt.Errorf("app: init embeddings: %w", err)
	}

	// ── 2. Catalog ───────────────────────────────────────────────────────
	if err := a.initCatalog(ctx); err != nil {
		return nil, fmt.Errorf("app: init catalog: %w", err)
	}

	// ── 3. Quote and feedback storage ────────────────────────────────────
	if err := a.initStorage(ctx); err != nil {
		return nil, fmt.Errorf("app: init storage: %w", err)
	}

	// ── 4. Feedback events ───────────────────────────────────────────────
	if err := a.initEvents(); err != nil {
		return nil, fmt.Errorf("app: init events: %w", err)
	}

	// ── 5. Search, quotes, feedback ──────────────────────────────────────
	if err := a.initServices(); err != nil {
		return nil, fmt.Errorf("app: init services: %w", err)
	}

	// ── 6. HTTP ──────────────────────────────────────────────────────────
	a.initHTTP()

	ok = true
	return a, nil
}

// ─── Init helpers ────────────────────────────────────────────────────────────

// initEmbeddings checks the provider against the catalog's vector size.
func (a *App) initEmbeddings() error {
	p := a.providers.Embeddings
	if p == nil {
		slog.Warn("no embeddings provider configured, searches start at the fuzzy tier")
		return nil
	}
	if err := embeddings.CheckDimensions(p, a.cfg.Catalog.EmbeddingDimensions); err != nil {
		return err
	}
	if pg, ok := p.(pinger); ok {
		a.checkers = append(a.checkers, health.Checker{Name: "embeddings", Check: pg.Ping, Optional: true})
	}
	return nil
}

// initCatalog opens the configured catalog backend and imports seed files.
func (a *App) initCatalog(ctx context.Context) error {
	cc := a.cfg.Catalog
	if a.catalog == nil {
		switch cc.Backend {
		case config.CatalogPostgres:
			pg, err := a.openPostgres(ctx, cc.PostgresDSN)
			if err != nil {
				return err
			}
			a.catalog = pg.Catalog()

		case config.CatalogQdrant:
			qs, err := qdrant.New(cc.QdrantAddr, cc.QdrantCollection, cc.EmbeddingDimensions)
			if err != nil {
				return err
			}
			a.closers = append(a.closers, qs.Close)
			if err := qs.EnsureCollection(ctx); err != nil {
				return err
			}
			a.checkers = append(a.checkers, health.Checker{Name: "catalog", Check: qs.Ping})
			a.catalog = qs

		default:
			ms := catalog.NewMemStore(cc.EmbeddingDimensions)
			a.checkers = append(a.checkers, health.Checker{Name: "catalog", Check: func(context.Context) error {
				if ms.Len() == 0 {
					return errors.New("catalog is empty")
				}
				return nil
			}})
			a.catalog = ms
		}
	}

	if len(cc.Files) == 0 {
		return nil
	}
	w, ok := a.catalog.(catalog.Writer)
	if !ok {
		return fmt.Errorf("catalog backend %T does not accept imports", a.catalog)
	}
	var embed catalog.EmbedFunc
	if p := a.providers.Embeddings; p != nil {
		embed = p.EmbedBatch
	}
	for _, path := range cc.Files {
		cf, err := catalog.LoadFile(path)
		if err != nil {
			return err
		}
		n, err := catalog.Import(ctx, w, cf, embed)
		if err != nil {
			return err
		}
		slog.Info("imported catalog", "path", path, "name", cf.Catalog.Name, "count", n)
	}
	return nil
}

// openPostgres returns the Postgres store for dsn, connecting on first use.
// Catalog and storage share one pool when their DSNs match.
func (a *App) openPostgres(ctx context.Context, dsn string) (*postgres.Store, error) {
	if pg, ok := a.pgStores[dsn]; ok {
		return pg, nil
	}
	pg, err := postgres.NewStore(ctx, dsn, a.cfg.Catalog.EmbeddingDimensions)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, func() error {
		pg.Close()
		return nil
	})
	name := "postgres"
	if len(a.pgStores) > 0 {
		name = fmt.Sprintf("postgres-%d", len(a.pgStores)+1)
	}
	a.checkers = append(a.checkers, health.Checker{Name: name, Check: pg.Ping})
	if a.pgStores == nil {
		a.pgStores = make(map[string]*postgres.Store)
	}
	a.pgStores[dsn] = pg
	return pg, nil
}

// initStorage sets up the quote and feedback repositories.
func (a *App) initStorage(ctx context.Context) error {
	sc := a.cfg.Storage

	if a.quotes == nil {
		switch sc.Quotes {
		case config.StorePostgres:
			pg, err := a.openPostgres(ctx, sc.PostgresDSN)
			if err != nil {
				return err
			}
			a.quotes = pg.Quotes()
		default:
			a.quotes = quote.NewMemRepository()
		}
	}

	if a.fbRepo == nil {
		switch sc.Feedback {
		case config.StorePostgres:
			pg, err := a.openPostgres(ctx, sc.PostgresDSN)
			if err != nil {
				return err
			}
			a.fbRepo = pg.Feedback()
		case config.StoreFile:
			a.fbRepo = feedback.NewFileStore(sc.FeedbackFile)
		default:
			a.fbRepo = feedback.NewMemStore()
		}
	}
	return nil
}

// initEvents connects the NATS publisher when an URL is configured.
func (a *App) initEvents() error {
	if a.publisher != nil {
		return nil
	}
	ec := a.cfg.Events
	if ec.NATSURL == "" {
		a.publisher = feedback.NopPublisher{}
		return nil
	}
	p, err := natspub.Connect(ec.NATSURL, ec.FeedbackSubject)
	if err != nil {
		return err
	}
	a.closers = append(a.closers, p.Close)
	a.publisher = p
	slog.Info("publishing feedback events", "url", ec.NATSURL, "subject", p.Subject())
	return nil
}

// initServices builds the searcher, the quote assembler and the feedback
// recorder.
func (a *App) initServices() error {
	scorer, err := confidence.NewScorer(a.cfg.ScorerOptions())
	if err != nil {
		return err
	}

	searchOpts := []search.Option{search.WithMetrics(a.metrics)}
	if p := a.providers.Embeddings; p != nil {
		searchOpts = append(searchOpts, search.WithEmbedder(p))
	}
	a.searcher, err = search.New(a.catalog, scorer, a.cfg.SearchOptions(), searchOpts...)
	if err != nil {
		return err
	}

	pc := a.cfg.Pricing
	a.assembler, err = quote.NewAssembler(a.searcher, a.quotes, a.cfg.PricingRules(),
		quote.WithQuantities(a.cfg.Quantities()),
		quote.WithMetrics(a.metrics),
		quote.WithConcurrency(pc.MaxConcurrentSearches),
		quote.WithCandidatesPerNeed(pc.CandidatesPerNeed),
	)
	if err != nil {
		return err
	}

	a.recorder, err = feedback.NewRecorder(a.quotes, a.fbRepo,
		feedback.WithPublisher(a.publisher),
		feedback.WithMetrics(a.metrics),
	)
	return err
}

// initHTTP builds the API handler and the servers Run starts.
func (a *App) initHTTP() {
	mux := http.NewServeMux()
	api.New(a.searcher, a.assembler, a.quotes, a.recorder).Register(mux)
	health.New(a.checkers...).Register(mux)
	a.handler = observe.Middleware(a.metrics)(mux)

	a.server = &http.Server{
		Addr:              a.cfg.Server.ListenAddr,
		Handler:           a.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	if addr := a.cfg.Observability.MetricsAddr; addr != "" {
		mm := http.NewServeMux()
		h := a.metricsHandler
		if h == nil {
			h = promhttp.Handler()
		}
		mm.Handle("GET /metrics", h)
		a.metricsServer = &http.Server{
			Addr:              addr,
			Handler:           mm,
			ReadHeaderTimeout: 10 * time.Second,
		}
	}
}

// ─── Accessors ───────────────────────────────────────────────────────────────

// Handler returns the instrumented HTTP handler serving the API and health
// routes.
func (a *App) Handler() http.Handler { return a.handler }

// Searcher returns the material searcher.
func (a *App) Searcher() *search.Searcher { return a.searcher }

// Assembler returns the quote assembler.
func (a *App) Assembler() *quote.Assembler { return a.assembler }

// Recorder returns the feedback recorder.
func (a *App) Recorder() *feedback.Recorder { return a.recorder }

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run serves HTTP and blocks until ctx is cancelled or a server fails. On
// cancellation the servers are shut down gracefully and Run returns
// context.Canceled (or the underlying cause).
func (a *App) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("api listening", "addr", a.server.Addr, "tls", a.cfg.Server.TLS != nil)
		var err error
		if tls := a.cfg.Server.TLS; tls != nil {
			err = a.server.ListenAndServeTLS(tls.CertFile, tls.KeyFile)
		} else {
			err = a.server.ListenAndServe()
		}
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("app: api server: %w", err)
	})

	if a.metricsServer != nil {
		g.Go(func() error {
			slog.Info("metrics listening", "addr", a.metricsServer.Addr)
			if err := a.metricsServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("app: metrics server: %w", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownGrace)
		defer cancel()
		var errs []error
		if err := a.server.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, err)
		}
		if a.metricsServer != nil {
			if err := a.metricsServer.Shutdown(shutdownCtx); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

// ─── Reload ──────────────────────────────────────────────────────────────────

// Reload applies the parts of a changed config that can take effect without
// a restart. It is meant as the callback of a [config.Watcher]. Only the log
// level is live; other changed sections are logged.
func (a *App) Reload(old, new *config.Config) {
	d := config.Diff(old, new)
	if d.LogLevelChanged {
		if a.level != nil {
			a.level.Set(d.NewLogLevel.Slog())
		}
		slog.Info("log level changed", "level", d.NewLogLevel)
	}
	if len(d.RestartRequired) > 0 {
		slog.Warn("config changed in sections that need a restart", "sections", d.RestartRequired)
	}
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown tears down all subsystems in init order. It respects the context
// deadline: if ctx expires before all closers finish, remaining closers are
// skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))

		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}

		slog.Info("shutdown complete")
	})
	return shutdownErr
}

// runClosers releases resources after a failed New.
func (a *App) runClosers() {
	for _, closer := range a.closers {
		if err := closer(); err != nil {
			slog.Warn("closer error", "err", err)
		}
	}
	a.closers = nil
}
