package cache

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/landrecords/rag-engine/internal/config"
	"github.com/landrecords/rag-engine/internal/storage"
)

func skipUnlessIntegration(t *testing.T) {
	t.Helper()
	if os.Getenv("RAG_INTEGRATION") != "1" {
		t.Skip("set RAG_INTEGRATION=1 to run container-backed tests")
	}
}

func exerciseBackend(t *testing.T, b Backend) {
	t.Helper()
	ctx := context.Background()
	now := time.Now()

	_, err := b.Load(ctx, "missing")
	assert.ErrorIs(t, err, ErrCacheMiss)

	require.NoError(t, b.Save(ctx, "stale", Entry{RawText: "old", CreatedAt: now.Add(-48 * time.Hour)}))
	require.NoError(t, b.Save(ctx, "fresh", Entry{RawText: "new", CreatedAt: now}))
	require.NoError(t, b.Save(ctx, "fresh", Entry{RawText: "newer", CreatedAt: now}))

	got, err := b.Load(ctx, "fresh")
	require.NoError(t, err)
	assert.Equal(t, "newer", got.RawText)

	removed, err := b.DeleteOlderThan(ctx, now.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	_, err = b.Load(ctx, "stale")
	assert.ErrorIs(t, err, ErrCacheMiss)

	removed, err = b.DeleteOlderThan(ctx, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
}

func TestRedisBackend_Integration(t *testing.T) {
	skipUnlessIntegration(t)
	ctx := context.Background()

	container, err := tcredis.Run(ctx,
		"redis:7.4-alpine",
		testcontainers.WithWaitStrategy(
			wait.ForLog("Ready to accept connections").
				WithStartupTimeout(30*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("Failed to terminate redis container: %v", err)
		}
	})

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "6379")
	require.NoError(t, err)

	b, err := NewRedisBackend(RedisConfig{
		Addr:     fmt.Sprintf("%s:%s", host, port.Port()),
		PoolSize: 4,
		Prefix:   "test:",
		TTL:      time.Hour,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })

	exerciseBackend(t, b)
}

func TestSQLBackend_PostgresIntegration(t *testing.T) {
	skipUnlessIntegration(t)
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("rag"),
		tcpostgres.WithUsername("rag"),
		tcpostgres.WithPassword("rag"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("Failed to terminate postgres container: %v", err)
		}
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	db, err := storage.Open(ctx, config.DatabaseConfig{
		Driver:   "postgres",
		Postgres: config.PostgresConfig{DSN: dsn, MaxOpenConns: 4, MaxIdleConns: 2, ConnMaxLifetime: time.Minute},
	})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	exerciseBackend(t, NewSQLBackend(db))
}
