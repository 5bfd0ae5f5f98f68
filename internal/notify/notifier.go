// Package notify provides the best-effort alerting side channel. Notifiers
// never return errors to callers; delivery failures are logged and swallowed
// so alerting can never block or abort reconciliation.
package notify

import "context"

// Notifier delivers a short human-readable message. Fire and forget.
type Notifier interface {
	Notify(ctx context.Context, text string)
}

// Noop discards all notifications. Used when no hook is configured.
type Noop struct{}

func (Noop) Notify(ctx context.Context, text string) {}
