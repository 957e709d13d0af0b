package testutil

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/refpoll/backend/pkg/database"
)

// Environment variables that enable integration tests.
const (
	EnvDatabaseURL = "TEST_DATABASE_URL"
	EnvRedisAddr   = "TEST_REDIS_ADDR"
)

// Postgres connects to TEST_DATABASE_URL, runs migrations and empties all
// tables. The test is skipped when the variable is unset.
func Postgres(t *testing.T) *pgxpool.Pool {
	t.Helper()
	dsn := os.Getenv(EnvDatabaseURL)
	if dsn == "" {
		t.Skipf("%s not set", EnvDatabaseURL)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := database.NewPostgresPool(ctx, dsn, database.PoolOptions{MaxConns: 20}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	require.NoError(t, database.Migrate(ctx, pool))
	_, err = pool.Exec(ctx, `TRUNCATE ballot_selections, ballots, poll_options, polls, users CASCADE`)
	require.NoError(t, err)
	return pool
}

// CreateUser inserts an organizer row and returns its id.
func CreateUser(t *testing.T, pool *pgxpool.Pool) uuid.UUID {
	t.Helper()
	var id uuid.UUID
	err := pool.QueryRow(context.Background(),
		`INSERT INTO users (email, password_hash) VALUES ($1, 'x') RETURNING id`,
		uuid.NewString()+"@example.com").Scan(&id)
	require.NoError(t, err)
	return id
}

// Redis connects to TEST_REDIS_ADDR and flushes the selected database.
// The test is skipped when the variable is unset.
func Redis(t *testing.T) *goredis.Client {
	t.Helper()
	addr := os.Getenv(EnvRedisAddr)
	if addr == "" {
		t.Skipf("%s not set", EnvRedisAddr)
	}
	rdb := goredis.NewClient(&goredis.Options{Addr: addr, DB: 15})
	t.Cleanup(func() { _ = rdb.Close() })
	require.NoError(t, rdb.FlushDB(context.Background()).Err())
	return rdb
}
