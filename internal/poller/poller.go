// Package poller drives the reconciliation loop: list newly created directory
// users, feed each to the reconciler, advance the watermark.
package poller

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/wolfeidau/sandboxd/internal/platform"
	"github.com/wolfeidau/sandboxd/internal/provision"
	"github.com/wolfeidau/sandboxd/internal/store"
	"github.com/wolfeidau/sandboxd/internal/telemetry"
)

// Reconciler is the per-user provisioning entry point consumed by the poller.
type Reconciler interface {
	Reconcile(ctx context.Context, user platform.User) (provision.Outcome, error)
}

// Poller periodically scans the directory newest-first and reconciles every
// user created after the watermark. Processing is strictly sequential; there
// is deliberately no fan-out, which keeps idempotent ordering and quota
// monotonicity trivial to reason about at directory-scale volumes.
type Poller struct {
	client     platform.Client
	reconciler Reconciler
	watermarks store.WatermarkStore
	interval   time.Duration
}

// New constructs a poller.
func New(client platform.Client, reconciler Reconciler, watermarks store.WatermarkStore, interval time.Duration) *Poller {
	return &Poller{
		client:     client,
		reconciler: reconciler,
		watermarks: watermarks,
		interval:   interval,
	}
}

// Run loops until the context is cancelled. A failed iteration (directory or
// auth failure) is logged and retried on the next sleep cycle; it never
// crashes the loop.
func (p *Poller) Run(ctx context.Context) error {
	log.Info().Dur("interval", p.interval).Msg("Poller starting")

	for {
		started := time.Now()
		telemetry.GetMetrics().PollsTotal.Add(ctx, 1)

		if err := p.RunOnce(ctx); err != nil {
			telemetry.GetMetrics().PollErrorsTotal.Add(ctx, 1)
			log.Error().Err(err).Msg("Poll iteration failed, will retry next cycle")
		}

		telemetry.GetMetrics().PollDuration.Record(ctx, float64(time.Since(started).Milliseconds()))

		select {
		case <-ctx.Done():
			log.Info().Msg("Poller stopping")
			return ctx.Err()
		case <-time.After(p.interval):
		}
	}
}

// RunOnce performs a single poll iteration: fetch the full user listing,
// reconcile everything newer than the watermark, then advance the watermark
// to the maximum created_at observed. The watermark advances past skipped and
// failed users too; a failed user is re-driven with the provision command
// rather than blocking the scan window.
func (p *Poller) RunOnce(ctx context.Context) error {
	since, err := p.watermarks.Get(ctx)
	if errors.Is(err, store.ErrWatermarkNotSet) {
		// First pass (or restart with the memory store): scan the entire
		// directory. Harmless due to idempotent reconciliation, just noisy.
		since = time.Time{}
	} else if err != nil {
		return fmt.Errorf("failed to load watermark: %w", err)
	}

	users, err := p.listAllUsers(ctx)
	if err != nil {
		return fmt.Errorf("failed to list users: %w", err)
	}

	log.Debug().Int("total", len(users)).Time("watermark", since).Msg("Scanning directory")

	maxSeen := since
	scanned := 0
	for _, user := range users {
		// The listing is newest-first, so everything at or before the
		// watermark recorded at the start of this iteration is already done.
		if !user.CreatedAt.After(since) {
			break
		}

		scanned++
		if user.CreatedAt.After(maxSeen) {
			maxSeen = user.CreatedAt
		}

		outcome, err := p.reconciler.Reconcile(ctx, user)
		if err != nil {
			// Isolated: this user failed, the pass continues.
			log.Error().Err(err).Str("username", user.Username).Msg("Reconciliation failed")
			continue
		}

		log.Debug().
			Str("username", user.Username).
			Stringer("outcome", outcome).
			Msg("Reconciled user")
	}

	telemetry.GetMetrics().UsersScannedTotal.Add(ctx, int64(scanned))

	if maxSeen.After(since) {
		if err := p.watermarks.Set(ctx, maxSeen); err != nil {
			return fmt.Errorf("failed to advance watermark: %w", err)
		}
		log.Info().Int("scanned", scanned).Time("watermark", maxSeen).Msg("Advanced watermark")
	}

	return nil
}

// listAllUsers exhausts the directory's descending pagination.
func (p *Poller) listAllUsers(ctx context.Context) ([]platform.User, error) {
	var users []platform.User
	for page := 1; ; page++ {
		batch, more, err := p.client.ListUsersDesc(ctx, page)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch user page %d: %w", page, err)
		}
		users = append(users, batch...)
		if !more {
			return users, nil
		}
	}
}
