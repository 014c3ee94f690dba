// Package pgtest opens a migrated database for integration tests. Tests are
// skipped unless TEST_POSTGRES_DSN is set.
package pgtest

import (
	"context"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"

	"github.com/ariefcatur/go-order-settlement/internal/postgres"
)

var seq atomic.Int64

func Open(t testing.TB) *pgxpool.Pool {
	t.Helper()
	dsn := os.Getenv("TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("TEST_POSTGRES_DSN not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := postgres.Connect(ctx, dsn)
	require.NoError(t, err)
	require.NoError(t, postgres.Migrate(ctx, pool))
	t.Cleanup(pool.Close)
	return pool
}

// ID returns an id unlikely to collide with rows left by earlier runs.
func ID() int64 {
	return time.Now().UnixMicro()*10 + seq.Add(1)%10
}
