package migration

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"

	_ "modernc.org/sqlite"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cordal/cordal/internal/config"
)

func newTestStore(t *testing.T) config.Store {
	t.Helper()
	db, err := sql.Open("sqlite", "file:"+t.Name()+"?mode=memory&cache=shared")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, EnsureSchema(db, "sqlite3"))
	return config.NewSQLStore(db, "sqlite")
}

func writeYAML(t *testing.T, dir, name, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
}

func newTestFSLoader(t *testing.T) (*config.FilesystemLoader, string) {
	t.Helper()
	dir := t.TempDir()
	return config.NewFilesystemLoader([]string{dir}, "*.databases.yml", "*.queries.yml", "*.endpoints.yml"), dir
}

const databaseYAML = `
name: orders_db
driver: sqlite
url: "file:orders?mode=memory"
`

const queryYAML = `
name: listOrders
database: orders_db
sql: "SELECT id FROM orders"
`

const endpointYAML = `
path: /api/orders
method: GET
query: listOrders
response:
  type: LIST
`

func TestMigrateFSToStoreCreatesRecords(t *testing.T) {
	fs, dir := newTestFSLoader(t)
	writeYAML(t, dir, "a.databases.yml", databaseYAML)
	writeYAML(t, dir, "a.queries.yml", queryYAML)
	writeYAML(t, dir, "a.endpoints.yml", endpointYAML)

	store := newTestStore(t)
	svc := NewService(fs, store, nil, nil)

	results, err := svc.MigrateFSToStore(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, results["databases"].Created)
	assert.Equal(t, 0, results["databases"].Updated)
	assert.Equal(t, 1, results["queries"].Created)
	assert.Equal(t, 1, results["endpoints"].Created)

	rec, err := store.Get(context.Background(), "databases", "orders_db")
	require.NoError(t, err)
	require.NotNil(t, rec)
}

func TestMigrateFSToStoreReportsUpdateOnSecondRun(t *testing.T) {
	fs, dir := newTestFSLoader(t)
	writeYAML(t, dir, "a.databases.yml", databaseYAML)

	store := newTestStore(t)
	svc := NewService(fs, store, nil, nil)

	_, err := svc.MigrateFSToStore(context.Background())
	require.NoError(t, err)

	writeYAML(t, dir, "a.databases.yml", databaseYAML+"\ndescription: changed\n")
	results, err := svc.MigrateFSToStore(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 0, results["databases"].Created)
	assert.Equal(t, 1, results["databases"].Updated)
}

func TestExportStoreToFSRoundTrips(t *testing.T) {
	fs, dir := newTestFSLoader(t)
	writeYAML(t, dir, "a.databases.yml", databaseYAML)

	store := newTestStore(t)
	svc := NewService(fs, store, nil, nil)
	_, err := svc.MigrateFSToStore(context.Background())
	require.NoError(t, err)

	dbsYAML, _, _, err := svc.ExportStoreToFS(context.Background())
	require.NoError(t, err)
	assert.Contains(t, dbsYAML, "orders_db")
}

func TestCompareBucketsNamesByPresence(t *testing.T) {
	fs, dir := newTestFSLoader(t)
	writeYAML(t, dir, "a.databases.yml", databaseYAML)

	store := newTestStore(t)
	require.NoError(t, store.Put(context.Background(), "databases", "legacy_db", "name: legacy_db\n"))

	svc := NewService(fs, store, nil, nil)
	results, err := svc.Compare(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"orders_db"}, results["databases"].OnlyInFilesystem)
	assert.Equal(t, []string{"legacy_db"}, results["databases"].OnlyInStore)
	assert.Empty(t, results["databases"].InBoth)
}

func TestSyncFSWinsCopiesOnlyInFSAndDeletesOnlyInStore(t *testing.T) {
	fs, dir := newTestFSLoader(t)
	writeYAML(t, dir, "a.databases.yml", databaseYAML)

	store := newTestStore(t)
	require.NoError(t, store.Put(context.Background(), "databases", "legacy_db", "name: legacy_db\n"))

	svc := NewService(fs, store, nil, nil)
	results, err := svc.Sync(context.Background(), StrategyFSWins)
	require.NoError(t, err)

	assert.Equal(t, 2, results["databases"].Successful)
	assert.Empty(t, results["databases"].ManualReviewItems)

	rec, err := store.Get(context.Background(), "databases", "orders_db")
	require.NoError(t, err)
	require.NotNil(t, rec)

	rec, err = store.Get(context.Background(), "databases", "legacy_db")
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestSyncStoreWinsNeverMutatesFilesystemSide(t *testing.T) {
	fs, dir := newTestFSLoader(t)
	writeYAML(t, dir, "a.databases.yml", databaseYAML)

	store := newTestStore(t)
	require.NoError(t, store.Put(context.Background(), "databases", "legacy_db", "name: legacy_db\n"))

	svc := NewService(fs, store, nil, nil)
	results, err := svc.Sync(context.Background(), StrategyStoreWins)
	require.NoError(t, err)

	// legacy_db (onlyInStore) resolves to a no-op COPY_STORE_TO_FS, still
	// counted successful; orders_db (onlyInFS) still copies to the store
	// since the store has no competing copy.
	assert.Equal(t, 2, results["databases"].Successful)

	rec, err := store.Get(context.Background(), "databases", "legacy_db")
	require.NoError(t, err)
	require.NotNil(t, rec, "store-wins must not delete the store's own record")

	_, err = os.ReadFile(filepath.Join(dir, "a.databases.yml"))
	require.NoError(t, err, "filesystem file must be left untouched")
}

func TestSyncManualReviewFlagsEveryDivergence(t *testing.T) {
	fs, dir := newTestFSLoader(t)
	writeYAML(t, dir, "a.databases.yml", databaseYAML)

	store := newTestStore(t)
	require.NoError(t, store.Put(context.Background(), "databases", "legacy_db", "name: legacy_db\n"))

	svc := NewService(fs, store, nil, nil)
	results, err := svc.Sync(context.Background(), StrategyManualReview)
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"orders_db", "legacy_db"}, results["databases"].ManualReviewItems)
	assert.Equal(t, 0, results["databases"].Successful)
}

func TestSyncSkipsIdenticalRecordsOnBothSides(t *testing.T) {
	fs, dir := newTestFSLoader(t)
	writeYAML(t, dir, "a.databases.yml", databaseYAML)

	store := newTestStore(t)
	svc := NewService(fs, store, nil, nil)
	_, err := svc.MigrateFSToStore(context.Background())
	require.NoError(t, err)

	results, err := svc.Sync(context.Background(), StrategyManualReview)
	require.NoError(t, err)
	assert.Empty(t, results["databases"].ManualReviewItems)
	assert.Equal(t, 0, results["databases"].Successful)
}
