package query

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/cordal/cordal/internal/apierrors"
	"github.com/cordal/cordal/internal/cache"
	"github.com/cordal/cordal/internal/config"
	"github.com/cordal/cordal/internal/pool"
)

const (
	cacheNameQueryResults = "query_results"
	cacheNameCountResults = "count_results"
)

// StatsRecorder is C11's query-family observation surface, kept narrow
// here so this package does not import internal/stats; the composition
// root wires the concrete collector in.
type StatsRecorder interface {
	RecordQuery(name, database string, elapsed time.Duration, rows int, success bool)
}

// Executor runs Query descriptors against their database's pool, fronted
// by the C5 cache, per spec.md §4.7's execute/executeCount algorithm.
type Executor struct {
	pools   *pool.Registry
	cacheMu *cache.Manager
	metrics *Metrics
	stats   StatsRecorder
	logger  *slog.Logger
}

func NewExecutor(pools *pool.Registry, cacheMgr *cache.Manager, metrics *Metrics, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{pools: pools, cacheMu: cacheMgr, metrics: metrics, logger: logger}
}

// WithStats attaches a C11 stats recorder and returns the same Executor,
// so composition-root wiring can chain it onto NewExecutor's result.
func (e *Executor) WithStats(stats StatsRecorder) *Executor {
	e.stats = stats
	return e
}

// Execute runs a row-returning query and returns its materialized rows,
// consulting and populating the cache when q.Cache.Enabled.
func (e *Executor) Execute(ctx context.Context, reg *config.Registry, q config.Query, boundParams map[string]any) ([]Row, error) {
	start := time.Now()

	if q.Cache.Enabled {
		key := cache.BuildKey(q.Name, q.Cache.KeyPattern, boundParams)
		if rows, ok := cache.Get[[]Row](ctx, e.cacheMu, cacheNameQueryResults, key); ok {
			e.observe(q.Name, "hit", start)
			e.recordStats(q, time.Since(start), len(rows), true)
			return rows, nil
		}
	}

	rows, err := e.runQuery(ctx, reg, q, boundParams)
	if err != nil {
		e.recordError(q.Name)
		e.recordStats(q, time.Since(start), 0, false)
		return nil, apierrors.ExecError(q.Name, err)
	}

	if q.Cache.Enabled {
		key := cache.BuildKey(q.Name, q.Cache.KeyPattern, boundParams)
		ttl := time.Duration(q.Cache.TTLSeconds) * time.Second
		if err := e.cacheMu.Put(ctx, cacheNameQueryResults, key, ttl, rows); err != nil {
			e.logger.Warn("failed to populate query result cache", "query", q.Name, "error", err)
		}
	}
	e.observe(q.Name, "miss", start)
	e.recordStats(q, time.Since(start), len(rows), true)
	return rows, nil
}

// ExecuteCount runs a count query and returns its single scalar result.
func (e *Executor) ExecuteCount(ctx context.Context, reg *config.Registry, q config.Query, boundParams map[string]any) (int64, error) {
	start := time.Now()

	if q.Cache.Enabled {
		key := cache.BuildKey(q.Name, q.Cache.KeyPattern, boundParams)
		if count, ok := cache.Get[int64](ctx, e.cacheMu, cacheNameCountResults, key); ok {
			e.observe(q.Name, "hit", start)
			e.recordStats(q, time.Since(start), 0, true)
			return count, nil
		}
	}

	conn, release, err := e.pools.Acquire(ctx, reg, q.Database)
	if err != nil {
		e.recordError(q.Name)
		e.recordStats(q, time.Since(start), 0, false)
		return 0, apierrors.ExecError(q.Name, err)
	}
	defer release()

	args, err := BindArgs(q.Params, boundParams)
	if err != nil {
		e.recordError(q.Name)
		e.recordStats(q, time.Since(start), 0, false)
		return 0, apierrors.ExecError(q.Name, err)
	}

	var count int64
	row := conn.QueryRowContext(ctx, q.SQL, args...)
	if err := row.Scan(&count); err != nil {
		if err == sql.ErrNoRows {
			count = 0
		} else {
			e.recordError(q.Name)
			e.recordStats(q, time.Since(start), 0, false)
			return 0, apierrors.ExecError(q.Name, err)
		}
	}

	if q.Cache.Enabled {
		key := cache.BuildKey(q.Name, q.Cache.KeyPattern, boundParams)
		ttl := time.Duration(q.Cache.TTLSeconds) * time.Second
		if err := e.cacheMu.Put(ctx, cacheNameCountResults, key, ttl, count); err != nil {
			e.logger.Warn("failed to populate count result cache", "query", q.Name, "error", err)
		}
	}
	e.observe(q.Name, "miss", start)
	e.recordStats(q, time.Since(start), 0, true)
	return count, nil
}

func (e *Executor) runQuery(ctx context.Context, reg *config.Registry, q config.Query, boundParams map[string]any) ([]Row, error) {
	conn, release, err := e.pools.Acquire(ctx, reg, q.Database)
	if err != nil {
		return nil, err
	}
	defer release()

	args, err := BindArgs(q.Params, boundParams)
	if err != nil {
		return nil, err
	}

	sqlRows, err := conn.QueryContext(ctx, q.SQL, args...)
	if err != nil {
		return nil, err
	}
	defer sqlRows.Close()

	columns, err := sqlRows.Columns()
	if err != nil {
		return nil, err
	}

	var out []Row
	for sqlRows.Next() {
		scanTargets := make([]any, len(columns))
		scanPtrs := make([]any, len(columns))
		for i := range scanTargets {
			scanPtrs[i] = &scanTargets[i]
		}
		if err := sqlRows.Scan(scanPtrs...); err != nil {
			return nil, err
		}
		values := make(map[string]any, len(columns))
		for i, col := range columns {
			values[col] = normalizeScanned(scanTargets[i])
		}
		out = append(out, NewRow(columns, values))
	}
	if err := sqlRows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// normalizeScanned converts database/sql's generic scan targets (notably
// []byte for TEXT/VARCHAR columns under several drivers) into JSON- and
// cache-friendly Go values.
func normalizeScanned(v any) any {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}

func (e *Executor) observe(queryName, outcome string, start time.Time) {
	if e.metrics == nil {
		return
	}
	e.metrics.Executions.WithLabelValues(queryName, outcome).Inc()
	e.metrics.Duration.WithLabelValues(queryName, outcome).Observe(time.Since(start).Seconds())
}

func (e *Executor) recordError(queryName string) {
	if e.metrics == nil {
		return
	}
	e.metrics.Errors.WithLabelValues(queryName).Inc()
}

func (e *Executor) recordStats(q config.Query, elapsed time.Duration, rows int, success bool) {
	if e.stats == nil {
		return
	}
	e.stats.RecordQuery(q.Name, q.Database, elapsed, rows, success)
}
