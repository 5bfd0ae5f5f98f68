package memory

import (
	"context"
	"sync"
	"time"

	"github.com/wolfeidau/sandboxd/internal/store"
)

// WatermarkStore implements store.WatermarkStore in process memory. The
// watermark is lost on restart, so a restarted daemon rescans the full
// directory; that is harmless because reconciliation is idempotent.
type WatermarkStore struct {
	mu  sync.RWMutex
	ts  time.Time
	set bool
}

// NewWatermarkStore creates an empty in-memory watermark store.
func NewWatermarkStore() *WatermarkStore {
	return &WatermarkStore{}
}

// Get returns the stored watermark, or store.ErrWatermarkNotSet.
func (s *WatermarkStore) Get(ctx context.Context) (time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.set {
		return time.Time{}, store.ErrWatermarkNotSet
	}
	return s.ts, nil
}

// Set replaces the watermark.
func (s *WatermarkStore) Set(ctx context.Context, ts time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.ts = ts
	s.set = true
	return nil
}
