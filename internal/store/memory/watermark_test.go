package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/wolfeidau/sandboxd/internal/store"
)

func TestWatermarkStore(t *testing.T) {
	s := NewWatermarkStore()
	ctx := context.Background()

	_, err := s.Get(ctx)
	require.ErrorIs(t, err, store.ErrWatermarkNotSet)

	first := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	require.NoError(t, s.Set(ctx, first))

	got, err := s.Get(ctx)
	require.NoError(t, err)
	require.Equal(t, first, got)

	second := first.Add(time.Hour)
	require.NoError(t, s.Set(ctx, second))

	got, err = s.Get(ctx)
	require.NoError(t, err)
	require.Equal(t, second, got)
}
