// Package pool is the C4 pool registry: lazily-created, per-database
// connection pools, acquired with guaranteed release on every exit path
// including panic, generalized from the teacher's single-driver
// pgxpool.Pool wrapper (internal/database/postgres/pool.go) into a
// multi-driver registry keyed by database name.
package pool

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // registers "pgx" database/sql driver
	_ "modernc.org/sqlite"             // registers "sqlite" database/sql driver

	"github.com/cordal/cordal/internal/config"
)

// StatsRecorder is C11's database-family observation surface, kept narrow
// here so this package does not import internal/stats.
type StatsRecorder interface {
	RecordDatabase(name string, elapsed time.Duration, success bool)
}

// ErrUnknownDatabase is returned by Registry.Acquire for a database name
// that has no matching descriptor in the current configuration generation.
type ErrUnknownDatabase struct {
	Name string
}

func (e *ErrUnknownDatabase) Error() string {
	return fmt.Sprintf("unknown database: %s", e.Name)
}

// Pool wraps one database's *sql.DB with the tuning knobs carried over from
// the Database descriptor's pool settings.
type Pool struct {
	DB     *sql.DB
	Driver string
}

// Acquire obtains a single connection from the pool; the returned
// release func must be called exactly once, including on the error path,
// mirroring the source material's `defer conn.Release()` discipline.
func (p *Pool) Acquire(ctx context.Context) (*sql.Conn, func(), error) {
	conn, err := p.DB.Conn(ctx)
	if err != nil {
		return nil, func() {}, err
	}
	return conn, func() { _ = conn.Close() }, nil
}

func (p *Pool) Close() error {
	return p.DB.Close()
}

// Registry lazily builds one Pool per Database descriptor name the first
// time it is acquired, and guarantees every Pool it ever built is closed on
// Shutdown.
type Registry struct {
	mu     sync.Mutex
	pools  map[string]*Pool
	logger *slog.Logger
	stats  StatsRecorder
}

func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{pools: make(map[string]*Pool), logger: logger}
}

// WithStats attaches a C11 stats recorder and returns the same Registry,
// so composition-root wiring can chain it onto NewRegistry's result.
func (r *Registry) WithStats(stats StatsRecorder) *Registry {
	r.stats = stats
	return r
}

// Get returns the Pool for descriptor db, building it on first use.
func (r *Registry) Get(db config.Database) (*Pool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if p, ok := r.pools[db.Name]; ok {
		return p, nil
	}

	p, err := open(db)
	if err != nil {
		return nil, err
	}
	r.pools[db.Name] = p
	r.logger.Info("opened pool", "database", db.Name, "driver", db.Driver)
	return p, nil
}

func open(db config.Database) (*Pool, error) {
	driverName, err := sqlDriverName(db.Driver)
	if err != nil {
		return nil, err
	}

	conn, err := sql.Open(driverName, db.ResolvedURL())
	if err != nil {
		return nil, fmt.Errorf("open %s pool: %w", db.Name, err)
	}

	maxConns := db.PoolMaxConns
	if maxConns <= 0 {
		maxConns = 10
	}
	conn.SetMaxOpenConns(maxConns)
	if db.PoolMinConns > 0 {
		conn.SetMaxIdleConns(db.PoolMinConns)
	}
	if db.PoolMaxConnLifeSec > 0 {
		conn.SetConnMaxLifetime(time.Duration(db.PoolMaxConnLifeSec) * time.Second)
	}
	if db.PoolMaxIdleSec > 0 {
		conn.SetConnMaxIdleTime(time.Duration(db.PoolMaxIdleSec) * time.Second)
	}

	return &Pool{DB: conn, Driver: db.Driver}, nil
}

func sqlDriverName(driver string) (string, error) {
	switch driver {
	case "postgres":
		return "pgx", nil
	case "sqlite":
		return "sqlite", nil
	default:
		return "", fmt.Errorf("unsupported driver: %s", driver)
	}
}

// Acquire is the one-shot convenience path: look up (or open) the named
// database's pool and acquire a connection from it in one call.
func (r *Registry) Acquire(ctx context.Context, reg *config.Registry, databaseName string) (*sql.Conn, func(), error) {
	start := time.Now()
	db, ok := reg.LookupDatabase(databaseName)
	if !ok {
		r.recordStats(databaseName, start, false)
		return nil, func() {}, &ErrUnknownDatabase{Name: databaseName}
	}
	p, err := r.Get(db)
	if err != nil {
		r.recordStats(databaseName, start, false)
		return nil, func() {}, err
	}
	conn, release, err := p.Acquire(ctx)
	r.recordStats(databaseName, start, err == nil)
	return conn, release, err
}

func (r *Registry) recordStats(databaseName string, start time.Time, success bool) {
	if r.stats == nil {
		return
	}
	r.stats.RecordDatabase(databaseName, time.Since(start), success)
}

// Shutdown closes every pool this registry ever opened.
func (r *Registry) Shutdown() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for name, p := range r.pools {
		if err := p.Close(); err != nil {
			r.logger.Warn("error closing pool", "database", name, "error", err)
		}
	}
	r.pools = make(map[string]*Pool)
}
