// Package store defines watermark persistence. The watermark is the highest
// user creation timestamp already processed; it is the only durable state the
// daemon keeps.
package store

import (
	"context"
	"errors"
	"time"
)

// ErrWatermarkNotSet is returned by Get before the first Set. Callers treat
// it as "scan the full directory".
var ErrWatermarkNotSet = errors.New("watermark not set")

// WatermarkStore persists the poller's watermark between iterations. The
// poller is the only writer, so implementations need no cross-process
// coordination.
type WatermarkStore interface {
	// Get returns the stored watermark, or ErrWatermarkNotSet.
	Get(ctx context.Context) (time.Time, error)

	// Set replaces the watermark. Values only move forward; the poller never
	// calls Set with an older timestamp.
	Set(ctx context.Context, ts time.Time) error
}
