package health

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/cordal/cordal/internal/config"
	"github.com/cordal/cordal/internal/pool"
)

const (
	cacheTTL          = 30 * time.Second
	acquireBudget     = 5 * time.Second
	validationTimeout = 3 * time.Second
	maxGoroutines     = 2000
	readinessMemPct   = 95.0
	livenessMemPct    = 98.0
)

// Monitor is the C10 health monitor. It wraps one pool.HealthChecker per
// database behind a circuit breaker, grounded on
// internal/database/postgres/health.go's DefaultHealthChecker and
// CircuitBreakerHealthChecker, and caches each database's result for
// cacheTTL so repeated /ready and /live polling does not re-probe every
// database on every call.
type Monitor struct {
	pools    *pool.Registry
	registry *config.Registry
	logger   *slog.Logger

	mu       sync.Mutex
	cached   map[string]Status
	checkers map[string]*pool.CircuitBreakerChecker
}

func NewMonitor(pools *pool.Registry, registry *config.Registry, logger *slog.Logger) *Monitor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Monitor{
		pools:    pools,
		registry: registry,
		logger:   logger,
		cached:   make(map[string]Status),
		checkers: make(map[string]*pool.CircuitBreakerChecker),
	}
}

// Check returns dbName's cached status if it is younger than cacheTTL,
// otherwise runs a fresh probe (bounded by acquireBudget) and caches the
// result, per spec.md §4.9.
func (m *Monitor) Check(ctx context.Context, dbName string) (Status, error) {
	m.mu.Lock()
	if cached, ok := m.cached[dbName]; ok && time.Since(cached.CheckedAt) < cacheTTL {
		m.mu.Unlock()
		return cached, nil
	}
	m.mu.Unlock()

	db, ok := m.registry.LookupDatabase(dbName)
	if !ok {
		return Status{}, fmt.Errorf("unknown database %q", dbName)
	}

	checker, err := m.checkerFor(db)
	if err != nil {
		status := Status{Database: dbName, State: StateDown, Message: err.Error(), CheckedAt: time.Now()}
		m.store(dbName, status)
		return status, nil
	}

	probeCtx, cancel := context.WithTimeout(ctx, acquireBudget)
	defer cancel()

	start := time.Now()
	probeErr := checker.CheckHealth(probeCtx)
	elapsed := time.Since(start)

	status := Status{Database: dbName, CheckedAt: time.Now(), Elapsed: elapsed}
	if probeErr != nil {
		status.State = StateDown
		status.Message = probeErr.Error()
		m.logger.Warn("database health probe failed", "database", dbName, "error", probeErr)
	} else {
		status.State = StateUp
	}
	m.store(dbName, status)
	return status, nil
}

func (m *Monitor) checkerFor(db config.Database) (*pool.CircuitBreakerChecker, error) {
	m.mu.Lock()
	if c, ok := m.checkers[db.Name]; ok {
		m.mu.Unlock()
		return c, nil
	}
	m.mu.Unlock()

	p, err := m.pools.Get(db)
	if err != nil {
		return nil, err
	}
	checker := pool.NewCircuitBreakerChecker(pool.NewHealthChecker(p), 3, 30*time.Second)

	m.mu.Lock()
	m.checkers[db.Name] = checker
	m.mu.Unlock()
	return checker, nil
}

func (m *Monitor) store(dbName string, status Status) {
	m.mu.Lock()
	m.cached[dbName] = status
	m.mu.Unlock()
}

// Overall derives the system-wide health: DOWN if no database is
// configured, DEGRADED if any configured database is DOWN, UP otherwise.
func (m *Monitor) Overall(ctx context.Context) Overall {
	databases := m.registry.AllDatabases()
	if len(databases) == 0 {
		return Overall{State: OverallDown, Databases: map[string]Status{}}
	}

	statuses := make(map[string]Status, len(databases))
	anyDown := false
	for _, db := range databases {
		status, err := m.Check(ctx, db.Name)
		if err != nil {
			status = Status{Database: db.Name, State: StateDown, Message: err.Error(), CheckedAt: time.Now()}
		}
		statuses[db.Name] = status
		if status.State == StateDown {
			anyDown = true
		}
	}

	state := OverallUp
	if anyDown {
		state = OverallDegraded
	}
	return Overall{State: state, Databases: statuses}
}

// Readiness combines a non-empty configuration, every database UP, and
// current memory usage at or below readinessMemPct.
func (m *Monitor) Readiness(ctx context.Context) Readiness {
	var reasons []string

	databases := m.registry.AllDatabases()
	if len(databases) == 0 {
		reasons = append(reasons, "no databases configured")
	}

	overall := m.Overall(ctx)
	for name, status := range overall.Databases {
		if status.State != StateUp {
			reasons = append(reasons, fmt.Sprintf("database %q is %s", name, status.State))
		}
	}

	if pct := memoryUsagePercent(); pct > readinessMemPct {
		reasons = append(reasons, fmt.Sprintf("memory usage %.1f%% exceeds %.1f%%", pct, readinessMemPct))
	}

	return Readiness{Ready: len(reasons) == 0, Reasons: reasons}
}

// Liveness combines current memory usage and active goroutine count,
// standing in for the source material's "active thread-equivalent count".
func (m *Monitor) Liveness(ctx context.Context) Liveness {
	var reasons []string

	if pct := memoryUsagePercent(); pct > livenessMemPct {
		reasons = append(reasons, fmt.Sprintf("memory usage %.1f%% exceeds %.1f%%", pct, livenessMemPct))
	}
	if n := runtime.NumGoroutine(); n > maxGoroutines {
		reasons = append(reasons, fmt.Sprintf("goroutine count %d exceeds %d", n, maxGoroutines))
	}

	return Liveness{Alive: len(reasons) == 0, Reasons: reasons}
}

// memoryUsagePercent approximates heap pressure as allocated-vs-reserved
// bytes, the same runtime.MemStats fields the source material samples for
// its performance gauges (pkg/history/performance/profiler.go), since Go
// has no direct equivalent of a host-level used-memory percentage.
func memoryUsagePercent() float64 {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	if m.Sys == 0 {
		return 0
	}
	return float64(m.Alloc) / float64(m.Sys) * 100
}
