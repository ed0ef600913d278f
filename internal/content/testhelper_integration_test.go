//go:build integration

package content

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/golang-migrate/migrate/v4"
	pgxmigrate "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/spencerjireh/portfoliobridge/internal/eventbus"
)

// newTestRepository spins up a throwaway Postgres container, applies the
// content migrations, and returns a PGRepository against it. Mirrors the
// teacher test pack's container-per-test approach for database-backed
// suites, simplified to one container per test since this package's suite
// is small.
func newTestRepository(t *testing.T) *PGRepository {
	t.Helper()
	ctx := context.Background()

	container, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("portfoliobridge_test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		postgres.BasicWaitStrategies(),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	applyMigrations(t, connStr)

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	require.Eventually(t, func() bool {
		return pool.Ping(ctx) == nil
	}, 10*time.Second, 100*time.Millisecond)

	return NewPGRepository(pool, eventbus.New())
}

func applyMigrations(t *testing.T, connStr string) {
	t.Helper()

	db, err := sql.Open("pgx", connStr)
	require.NoError(t, err)
	defer db.Close()

	driver, err := pgxmigrate.WithInstance(db, &pgxmigrate.Config{})
	require.NoError(t, err)

	m, err := migrate.NewWithDatabaseInstance("file://../db/migrations", "pgx", driver)
	require.NoError(t, err)

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		require.NoError(t, err)
	}
}
