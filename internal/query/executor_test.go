package query

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cordal/cordal/internal/cache"
	"github.com/cordal/cordal/internal/config"
	"github.com/cordal/cordal/internal/pool"
)

func setupRegistry(t *testing.T, dbName string) (*config.Registry, *pool.Registry) {
	t.Helper()
	db := config.Database{Name: dbName, Driver: "sqlite", URL: "file:" + dbName + "?mode=memory&cache=shared"}
	loader := &staticLoader{databases: []config.Database{db}}
	reg := config.NewRegistry(loader, config.Policy{RunOnStartup: true}, nil)
	_, err := reg.Reload(context.Background())
	require.NoError(t, err)

	pools := pool.NewRegistry(nil)
	p, err := pools.Get(db)
	require.NoError(t, err)

	_, err = p.DB.Exec(`CREATE TABLE users (id INTEGER PRIMARY KEY, name TEXT)`)
	require.NoError(t, err)
	_, err = p.DB.Exec(`INSERT INTO users (id, name) VALUES (1, 'ada'), (2, 'grace')`)
	require.NoError(t, err)

	return reg, pools
}

type staticLoader struct {
	databases []config.Database
}

func (s *staticLoader) LoadDatabases(ctx context.Context) ([]config.Database, []*config.LoadError, error) {
	return s.databases, nil, nil
}
func (s *staticLoader) LoadQueries(ctx context.Context) ([]config.Query, error) {
	return nil, nil
}
func (s *staticLoader) LoadEndpoints(ctx context.Context) ([]config.Endpoint, error) {
	return nil, nil
}

func TestExecutorRunsQueryAndMaterializesRows(t *testing.T) {
	reg, pools := setupRegistry(t, "db1")
	defer pools.Shutdown()

	mgr := cache.NewManager(nil, nil, nil)
	exec := NewExecutor(pools, mgr, nil, nil)

	q := config.Query{Name: "listUsers", Database: "db1", SQL: "SELECT id, name FROM users ORDER BY id"}
	rows, err := exec.Execute(context.Background(), reg, q, nil)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, []string{"id", "name"}, rows[0].Columns())
	assert.Equal(t, "ada", rows[0].String("name"))
}

func TestExecutorCachesRepeatedExecution(t *testing.T) {
	reg, pools := setupRegistry(t, "db2")
	defer pools.Shutdown()

	mgr := cache.NewManager(nil, nil, nil)
	exec := NewExecutor(pools, mgr, nil, nil)

	q := config.Query{
		Name: "listUsers", Database: "db2", SQL: "SELECT id, name FROM users ORDER BY id",
		Cache: config.CacheSpec{Enabled: true, Strategy: config.CacheStrategyLRU, TTLSeconds: 60, MaxSize: 10},
	}
	mgr.EnsureCache(cacheNameQueryResults, 10, time.Minute)

	first, err := exec.Execute(context.Background(), reg, q, nil)
	require.NoError(t, err)

	second, err := exec.Execute(context.Background(), reg, q, nil)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestExecuteCountScansScalar(t *testing.T) {
	reg, pools := setupRegistry(t, "db3")
	defer pools.Shutdown()

	mgr := cache.NewManager(nil, nil, nil)
	exec := NewExecutor(pools, mgr, nil, nil)

	q := config.Query{Name: "countUsers", Database: "db3", SQL: "SELECT COUNT(*) FROM users"}
	count, err := exec.ExecuteCount(context.Background(), reg, q, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
}

type recordedQuery struct {
	name, database string
	rows           int
	success        bool
}

type fakeStatsRecorder struct {
	calls []recordedQuery
}

func (f *fakeStatsRecorder) RecordQuery(name, database string, _ time.Duration, rows int, success bool) {
	f.calls = append(f.calls, recordedQuery{name: name, database: database, rows: rows, success: success})
}

func TestExecutorRecordsQueryStats(t *testing.T) {
	reg, pools := setupRegistry(t, "db5")
	defer pools.Shutdown()

	mgr := cache.NewManager(nil, nil, nil)
	stats := &fakeStatsRecorder{}
	exec := NewExecutor(pools, mgr, nil, nil).WithStats(stats)

	q := config.Query{Name: "listUsers", Database: "db5", SQL: "SELECT id, name FROM users ORDER BY id"}
	_, err := exec.Execute(context.Background(), reg, q, nil)
	require.NoError(t, err)

	require.Len(t, stats.calls, 1)
	assert.Equal(t, "listUsers", stats.calls[0].name)
	assert.Equal(t, "db5", stats.calls[0].database)
	assert.Equal(t, 2, stats.calls[0].rows)
	assert.True(t, stats.calls[0].success)
}

func TestExecuteWrapsSQLFailureAsExecError(t *testing.T) {
	reg, pools := setupRegistry(t, "db4")
	defer pools.Shutdown()

	mgr := cache.NewManager(nil, nil, nil)
	exec := NewExecutor(pools, mgr, nil, nil)

	q := config.Query{Name: "broken", Database: "db4", SQL: "SELECT * FROM no_such_table"}
	_, err := exec.Execute(context.Background(), reg, q, nil)
	require.Error(t, err)
}
