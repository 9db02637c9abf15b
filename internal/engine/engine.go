// Package engine is the composition root wiring C1-C12 into one running
// process: no DI container, no package-level singletons, every component
// constructed explicitly here and handed its collaborators directly.
package engine

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"github.com/cordal/cordal/internal/cache"
	"github.com/cordal/cordal/internal/config"
	"github.com/cordal/cordal/internal/dispatch"
	"github.com/cordal/cordal/internal/events"
	"github.com/cordal/cordal/internal/health"
	"github.com/cordal/cordal/internal/invalidation"
	"github.com/cordal/cordal/internal/logging"
	"github.com/cordal/cordal/internal/management"
	"github.com/cordal/cordal/internal/migration"
	"github.com/cordal/cordal/internal/pool"
	"github.com/cordal/cordal/internal/procconfig"
	"github.com/cordal/cordal/internal/query"
	"github.com/cordal/cordal/internal/stats"
)

const (
	managementRateLimitPerMinute = 100
	managementRateLimitBurst     = 20
)

// Engine holds every live component for the process' lifetime.
type Engine struct {
	Registry   *config.Registry
	Pools      *pool.Registry
	CacheMgr   *cache.Manager
	Bus        *events.Bus
	Invalidate *invalidation.Engine
	Executor   *query.Executor
	Dispatcher *dispatch.Dispatcher
	Monitor    *health.Monitor
	Stats      *stats.Collector
	Migration  *migration.Service
	Store      config.Store
	Management *management.Handlers

	// LastReport is the validation report from the reload Build ran at
	// startup, kept around so a validate-only process can report it and
	// exit without guessing at a second reload's outcome.
	LastReport *config.ValidationReport

	Router *mux.Router
	logger *slog.Logger
}

// Build constructs every component named in cfg and wires the narrow
// interfaces each one needs from the others, then runs the first
// registry reload so Engine is immediately servable.
func Build(ctx context.Context, cfg *procconfig.Config, logger *slog.Logger) (*Engine, error) {
	if logger == nil {
		logger = slog.Default()
	}
	reg := prometheus.NewRegistry()

	var store config.Store
	if cfg.Store.DSN != "" {
		storeDB, err := openStoreDB(cfg.Store.Driver, cfg.Store.DSN)
		if err != nil {
			return nil, fmt.Errorf("open store database: %w", err)
		}
		if err := migration.EnsureSchema(storeDB, cfg.Store.Driver); err != nil {
			return nil, fmt.Errorf("ensure store schema: %w", err)
		}
		dialect := "postgres"
		if cfg.Store.Driver != "postgres" {
			dialect = "sqlite"
		}
		store = config.NewSQLStore(storeDB, dialect)
	}

	loader, err := buildLoader(cfg, store)
	if err != nil {
		return nil, err
	}

	registry := config.NewRegistry(loader, config.Policy{
		RunOnStartup: cfg.Validation.RunOnStartup,
		ValidateOnly: cfg.Validation.ValidateOnly,
	}, logger)
	report, err := registry.Reload(ctx)
	if err != nil {
		return nil, fmt.Errorf("initial configuration reload: %w", err)
	}

	pools := pool.NewRegistry(logger)

	cacheMetrics := cache.NewMetrics(reg)
	cacheMgr := cache.NewManager(nil, logger, cacheMetrics)
	seedCaches(cacheMgr, registry, cfg)

	eventMetrics := events.NewMetrics(reg)
	bus := events.NewBus(logger, eventMetrics)
	bus.Start(ctx)

	invalidateEngine := invalidation.NewEngine(bus, cacheMgr, logger)
	registerInvalidationRules(invalidateEngine, registry)

	statsMetrics := stats.NewMetrics(reg)
	collector := stats.NewCollector(statsMetrics)

	queryMetrics := query.NewMetrics(reg)
	executor := query.NewExecutor(pools, cacheMgr, queryMetrics, logger).WithStats(collector)
	pools = pools.WithStats(collector)

	dispatcher := dispatch.NewDispatcher(registry, executor, collector, logger)

	monitor := health.NewMonitor(pools, registry, logger)

	var migrationSvc *migration.Service
	if fsLoader, ok := loader.(*config.FilesystemLoader); ok && store != nil {
		migrationSvc = migration.NewService(fsLoader, store, busPublisher{bus}, logger)
	}

	mgmt := management.NewHandlers(registry, store, migrationSvc, monitor, dispatcher, logger)

	router := mux.NewRouter()
	router.Use(logging.HTTPMiddleware(logger))
	mgmt.Register(router, management.RateLimitMiddleware(managementRateLimitPerMinute, managementRateLimitBurst))
	router.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	router.PathPrefix("/api/").Handler(dispatcher)

	return &Engine{
		Registry:   registry,
		Pools:      pools,
		CacheMgr:   cacheMgr,
		Bus:        bus,
		Invalidate: invalidateEngine,
		Executor:   executor,
		Dispatcher: dispatcher,
		Monitor:    monitor,
		Stats:      collector,
		Migration:  migrationSvc,
		Store:      store,
		Management: mgmt,
		LastReport: report,
		Router:     router,
		logger:     logger,
	}, nil
}

// Shutdown stops every background component cleanly.
func (e *Engine) Shutdown(ctx context.Context) error {
	if err := e.Bus.Stop(ctx); err != nil {
		e.logger.Warn("event bus stop did not complete cleanly", "error", err)
	}
	e.Pools.Shutdown()
	return nil
}

type busPublisher struct {
	bus *events.Bus
}

func (b busPublisher) PublishSync(ctx context.Context, event events.Event) {
	b.bus.PublishSync(ctx, event)
}

func buildLoader(cfg *procconfig.Config, store config.Store) (config.Loader, error) {
	switch cfg.Config.Source {
	case procconfig.SourceStore:
		if store == nil {
			return nil, fmt.Errorf("config.source=store requires store.dsn to be set")
		}
		return config.NewStoreLoader(store), nil
	default:
		return config.NewFilesystemLoader(
			cfg.Config.Directories,
			cfg.Config.Patterns.Databases,
			cfg.Config.Patterns.Queries,
			cfg.Config.Patterns.Endpoints,
		), nil
	}
}

func openStoreDB(driver, dsn string) (*sql.DB, error) {
	driverName := "pgx"
	if driver != "postgres" {
		driverName = "sqlite"
	}
	return sql.Open(driverName, dsn)
}

// registerInvalidationRules walks every cache-enabled query's declared
// InvalidationRules and registers one invalidation.Rule per entry against
// the shared "query_results" cache.
func registerInvalidationRules(engine *invalidation.Engine, registry *config.Registry) {
	for _, q := range registry.AllQueries() {
		if !q.Cache.Enabled {
			continue
		}
		for _, ir := range q.Cache.InvalidationRules {
			engine.Register(invalidation.Rule{
				CacheName: "query_results",
				EventType: ir.EventType,
				Patterns:  ir.Patterns,
				Condition: ir.Condition,
				Delay:     time.Duration(ir.DelayMS) * time.Millisecond,
				Async:     ir.Async,
			})
		}
	}
}

// seedCaches pre-registers the shared "query_results" and "count_results"
// caches that every cache-enabled query uses, so the first request is a
// cache hit path rather than a cold EnsureCache call racing the request.
// EnsureCache keeps the first registration, so the size and TTL come from
// the first cache-enabled query in iteration order.
func seedCaches(mgr *cache.Manager, registry *config.Registry, cfg *procconfig.Config) {
	for _, q := range registry.AllQueries() {
		if !q.Cache.Enabled {
			continue
		}
		ttl := time.Duration(q.Cache.TTLSeconds) * time.Second
		if ttl <= 0 {
			ttl = time.Duration(cfg.Cache.TTLSeconds) * time.Second
		}
		maxSize := q.Cache.MaxSize
		if maxSize <= 0 {
			maxSize = cfg.Cache.MaxSize
		}
		mgr.EnsureCache("query_results", maxSize, ttl)
		mgr.EnsureCache("count_results", maxSize, ttl)
	}
}
