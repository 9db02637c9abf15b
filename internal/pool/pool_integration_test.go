//go:build integration

package pool

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/cordal/cordal/internal/config"
)

// TestRegistryAcquireAgainstRealPostgres exercises the pgx-backed pool path
// against a real Postgres instance, mirroring the pack's pattern of running
// database tests against a disposable container rather than a mock driver.
// Run with `-tags integration`; skipped otherwise.
func TestRegistryAcquireAgainstRealPostgres(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	container, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("cordal"),
		postgres.WithUsername("cordal"),
		postgres.WithPassword("cordal"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	r := NewRegistry(nil)
	defer r.Shutdown()

	db := config.Database{
		Name:         "it_pg",
		Driver:       "postgres",
		URL:          dsn,
		PoolMaxConns: 5,
	}

	p, err := r.Get(db)
	require.NoError(t, err)

	conn, release, err := p.Acquire(ctx)
	require.NoError(t, err)
	defer release()

	var one int
	require.NoError(t, conn.QueryRowContext(ctx, "SELECT 1").Scan(&one))
	require.Equal(t, 1, one)
}
