package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wolfeidau/sandboxd/internal/store"
)

// watermarkName keys the single row this daemon owns.
const watermarkName = "sandbox"

// WatermarkStore implements store.WatermarkStore backed by PostgreSQL, so a
// restarted daemon resumes from where the previous process stopped instead of
// rescanning the full directory.
type WatermarkStore struct {
	pool *pgxpool.Pool
}

// NewWatermarkStore creates a PostgreSQL-backed watermark store and runs any
// pending migrations.
func NewWatermarkStore(ctx context.Context, poolCfg *PoolConfig) (*WatermarkStore, error) {
	pool, err := NewPool(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}

	if err := runMigrations(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &WatermarkStore{pool: pool}, nil
}

// Close releases the underlying connection pool.
func (s *WatermarkStore) Close() {
	s.pool.Close()
}

// Get returns the stored watermark, or store.ErrWatermarkNotSet when no row
// exists yet.
func (s *WatermarkStore) Get(ctx context.Context) (time.Time, error) {
	var ts time.Time
	err := s.pool.QueryRow(ctx, `
		SELECT last_user_date FROM watermarks WHERE name = $1
	`, watermarkName).Scan(&ts)
	if errors.Is(err, pgx.ErrNoRows) {
		return time.Time{}, store.ErrWatermarkNotSet
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to read watermark: %w", mapPostgresError(err))
	}

	return ts, nil
}

// Set upserts the watermark row.
func (s *WatermarkStore) Set(ctx context.Context, ts time.Time) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO watermarks (name, last_user_date, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (name) DO UPDATE
		SET last_user_date = EXCLUDED.last_user_date, updated_at = now()
	`, watermarkName, ts)
	if err != nil {
		return fmt.Errorf("failed to store watermark: %w", mapPostgresError(err))
	}

	return nil
}
