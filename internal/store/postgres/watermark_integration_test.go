//go:build integration

package postgres

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/wolfeidau/sandboxd/internal/store"
)

func setupPostgresContainer(t *testing.T, ctx context.Context) (*WatermarkStore, func()) {
	req := testcontainers.ContainerRequest{
		Image:        "postgres:18-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "test",
			"POSTGRES_PASSWORD": "test",
			"POSTGRES_DB":       "testdb",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").WithOccurrence(2),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)

	host, err := container.Host(ctx)
	require.NoError(t, err)

	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)

	connString := fmt.Sprintf("postgres://test:test@%s:%s/testdb?sslmode=disable", host, port.Port())

	s, err := NewWatermarkStore(ctx, &PoolConfig{ConnString: connString})
	require.NoError(t, err)

	cleanup := func() {
		s.Close()
		_ = container.Terminate(ctx)
	}

	return s, cleanup
}

func TestIntegration_WatermarkLifecycle(t *testing.T) {
	ctx := context.Background()
	s, cleanup := setupPostgresContainer(t, ctx)
	defer cleanup()

	t.Run("unset watermark", func(t *testing.T) {
		_, err := s.Get(ctx)
		require.ErrorIs(t, err, store.ErrWatermarkNotSet)
	})

	t.Run("set and get", func(t *testing.T) {
		ts := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
		require.NoError(t, s.Set(ctx, ts))

		got, err := s.Get(ctx)
		require.NoError(t, err)
		require.True(t, got.Equal(ts), "got %v want %v", got, ts)
	})

	t.Run("upsert overwrites", func(t *testing.T) {
		ts := time.Date(2026, 8, 31, 6, 30, 0, 0, time.UTC)
		require.NoError(t, s.Set(ctx, ts))

		got, err := s.Get(ctx)
		require.NoError(t, err)
		require.True(t, got.Equal(ts), "got %v want %v", got, ts)
	})

	t.Run("migrations idempotent", func(t *testing.T) {
		require.NoError(t, runMigrations(ctx, s.pool))
	})
}
