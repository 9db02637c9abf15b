package pool

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cordal/cordal/internal/config"
)

func sqliteDB(name string) config.Database {
	return config.Database{
		Name:   name,
		Driver: "sqlite",
		URL:    "file:" + name + "?mode=memory&cache=shared",
	}
}

func TestRegistryGetOpensAndCachesPool(t *testing.T) {
	r := NewRegistry(nil)
	defer r.Shutdown()

	db := sqliteDB("one")
	p1, err := r.Get(db)
	require.NoError(t, err)
	require.NotNil(t, p1)

	p2, err := r.Get(db)
	require.NoError(t, err)
	assert.Same(t, p1, p2)
}

func TestRegistryAcquireReleasesConnection(t *testing.T) {
	r := NewRegistry(nil)
	defer r.Shutdown()

	p, err := r.Get(sqliteDB("two"))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	conn, release, err := p.Acquire(ctx)
	require.NoError(t, err)
	require.NotNil(t, conn)

	var one int
	require.NoError(t, conn.QueryRowContext(ctx, "SELECT 1").Scan(&one))
	assert.Equal(t, 1, one)

	release()
}

func TestRegistryAcquireUnknownDatabase(t *testing.T) {
	r := NewRegistry(nil)
	defer r.Shutdown()

	reg := config.NewRegistry(&emptyLoader{}, config.Policy{ValidateOnly: true}, nil)
	_, _, err := r.Acquire(context.Background(), reg, "missing")
	require.Error(t, err)

	var unknown *ErrUnknownDatabase
	assert.ErrorAs(t, err, &unknown)
	assert.Equal(t, "missing", unknown.Name)
}

func TestSqlDriverNameRejectsUnsupported(t *testing.T) {
	_, err := sqlDriverName("oracle")
	assert.Error(t, err)
}

func TestSqlDriverNameMapsKnownDrivers(t *testing.T) {
	name, err := sqlDriverName("postgres")
	require.NoError(t, err)
	assert.Equal(t, "pgx", name)

	name, err = sqlDriverName("sqlite")
	require.NoError(t, err)
	assert.Equal(t, "sqlite", name)
}

func TestDefaultHealthCheckerReportsHealthy(t *testing.T) {
	r := NewRegistry(nil)
	defer r.Shutdown()

	p, err := r.Get(sqliteDB("three"))
	require.NoError(t, err)

	hc := NewHealthChecker(p)
	require.NoError(t, hc.CheckHealth(context.Background()))
	assert.True(t, hc.IsHealthy())
	assert.WithinDuration(t, time.Now(), hc.LastCheckTime(), time.Second)
}

// failingChecker always fails, used to drive the circuit breaker open.
type failingChecker struct {
	calls int
}

func (f *failingChecker) CheckHealth(ctx context.Context) error {
	f.calls++
	return assertErr
}
func (f *failingChecker) IsHealthy() bool        { return false }
func (f *failingChecker) LastCheckTime() time.Time { return time.Now() }

var assertErr = &healthProbeError{}

type healthProbeError struct{}

func (e *healthProbeError) Error() string { return "probe failed" }

func TestCircuitBreakerOpensAfterMaxFailures(t *testing.T) {
	inner := &failingChecker{}
	cb := NewCircuitBreakerChecker(inner, 2, time.Minute)

	require.Error(t, cb.CheckHealth(context.Background()))
	assert.Equal(t, StateClosed, cb.State())

	require.Error(t, cb.CheckHealth(context.Background()))
	assert.Equal(t, StateOpen, cb.State())

	err := cb.CheckHealth(context.Background())
	require.ErrorIs(t, err, ErrCircuitBreakerOpen)
	assert.Equal(t, 2, inner.calls)
}

func TestCircuitBreakerHalfOpensAfterResetTimeout(t *testing.T) {
	inner := &failingChecker{}
	cb := NewCircuitBreakerChecker(inner, 1, time.Millisecond)

	require.Error(t, cb.CheckHealth(context.Background()))
	assert.Equal(t, StateOpen, cb.State())

	time.Sleep(5 * time.Millisecond)
	err := cb.CheckHealth(context.Background())
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrCircuitBreakerOpen)
}

type recordedCall struct {
	name    string
	success bool
}

type fakeStatsRecorder struct {
	calls []recordedCall
}

func (f *fakeStatsRecorder) RecordDatabase(name string, _ time.Duration, success bool) {
	f.calls = append(f.calls, recordedCall{name: name, success: success})
}

func TestRegistryAcquireRecordsStatsOnSuccessAndFailure(t *testing.T) {
	r := NewRegistry(nil)
	defer r.Shutdown()
	stats := &fakeStatsRecorder{}
	r.WithStats(stats)

	loader := &singleDBLoader{db: sqliteDB("four")}
	reg := config.NewRegistry(loader, config.Policy{RunOnStartup: true}, nil)
	_, err := reg.Reload(context.Background())
	require.NoError(t, err)

	_, release, err := r.Acquire(context.Background(), reg, "four")
	require.NoError(t, err)
	release()

	_, _, err = r.Acquire(context.Background(), reg, "missing")
	require.Error(t, err)

	require.Len(t, stats.calls, 2)
	assert.True(t, stats.calls[0].success)
	assert.False(t, stats.calls[1].success)
}

type singleDBLoader struct {
	db config.Database
}

func (s *singleDBLoader) LoadDatabases(ctx context.Context) ([]config.Database, []*config.LoadError, error) {
	return []config.Database{s.db}, nil, nil
}
func (s *singleDBLoader) LoadQueries(ctx context.Context) ([]config.Query, error) {
	return nil, nil
}
func (s *singleDBLoader) LoadEndpoints(ctx context.Context) ([]config.Endpoint, error) {
	return nil, nil
}

// emptyLoader satisfies config.Loader with no descriptors. It never
// publishes a generation (zero databases is fatal), which is enough for
// tests that only need Acquire to fail against an unknown database name.
type emptyLoader struct{}

func (emptyLoader) LoadDatabases(ctx context.Context) ([]config.Database, []*config.LoadError, error) {
	return nil, nil, nil
}
func (emptyLoader) LoadQueries(ctx context.Context) ([]config.Query, error) { return nil, nil }
func (emptyLoader) LoadEndpoints(ctx context.Context) ([]config.Endpoint, error) { return nil, nil }
