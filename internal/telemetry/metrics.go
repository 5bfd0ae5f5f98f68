package telemetry

import (
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const (
	meterName = "github.com/wolfeidau/sandboxd"
)

// Metrics holds all the OpenTelemetry metric instruments
type Metrics struct {
	// Poller metrics
	PollsTotal        metric.Int64Counter
	PollErrorsTotal   metric.Int64Counter
	UsersScannedTotal metric.Int64Counter
	PollDuration      metric.Float64Histogram

	// Reconciler metrics
	SandboxesProvisionedTotal metric.Int64Counter
	TenanciesCreatedTotal     metric.Int64Counter
	QuotaScaleUpsTotal        metric.Int64Counter
	ReconcileSkipsTotal       metric.Int64Counter
	ReconcileFailuresTotal    metric.Int64Counter

	// Notifier metrics
	NotificationsSentTotal metric.Int64Counter
	NotifyFailuresTotal    metric.Int64Counter
}

var (
	once    sync.Once
	metrics *Metrics
)

// GetMetrics returns the singleton Metrics instance, initializing it if necessary
func GetMetrics() *Metrics {
	once.Do(func() {
		metrics = initMetrics()
	})
	return metrics
}

// initMetrics creates and registers all metric instruments
func initMetrics() *Metrics {
	meter := otel.GetMeterProvider().Meter(meterName)

	m := &Metrics{}

	m.PollsTotal, _ = meter.Int64Counter(
		"sandboxd.polls.total",
		metric.WithDescription("Total number of directory poll iterations"),
		metric.WithUnit("{poll}"),
	)

	m.PollErrorsTotal, _ = meter.Int64Counter(
		"sandboxd.polls.errors.total",
		metric.WithDescription("Total number of poll iterations aborted by directory or auth failures"),
		metric.WithUnit("{error}"),
	)

	m.UsersScannedTotal, _ = meter.Int64Counter(
		"sandboxd.users.scanned.total",
		metric.WithDescription("Total number of new directory users scanned"),
		metric.WithUnit("{user}"),
	)

	m.PollDuration, _ = meter.Float64Histogram(
		"sandboxd.polls.duration",
		metric.WithDescription("Duration of directory poll iterations"),
		metric.WithUnit("ms"),
	)

	m.SandboxesProvisionedTotal, _ = meter.Int64Counter(
		"sandboxd.sandboxes.provisioned.total",
		metric.WithDescription("Total number of sandbox spaces provisioned"),
		metric.WithUnit("{sandbox}"),
	)

	m.TenanciesCreatedTotal, _ = meter.Int64Counter(
		"sandboxd.tenancies.created.total",
		metric.WithDescription("Total number of sandbox organizations created"),
		metric.WithUnit("{organization}"),
	)

	m.QuotaScaleUpsTotal, _ = meter.Int64Counter(
		"sandboxd.quotas.scale_ups.total",
		metric.WithDescription("Total number of organization quota scale-ups applied"),
		metric.WithUnit("{update}"),
	)

	m.ReconcileSkipsTotal, _ = meter.Int64Counter(
		"sandboxd.reconcile.skips.total",
		metric.WithDescription("Total number of users skipped (disallowed or already provisioned)"),
		metric.WithUnit("{user}"),
	)

	m.ReconcileFailuresTotal, _ = meter.Int64Counter(
		"sandboxd.reconcile.failures.total",
		metric.WithDescription("Total number of per-user reconciliations that failed"),
		metric.WithUnit("{error}"),
	)

	m.NotificationsSentTotal, _ = meter.Int64Counter(
		"sandboxd.notifications.sent.total",
		metric.WithDescription("Total number of notifications delivered"),
		metric.WithUnit("{notification}"),
	)

	m.NotifyFailuresTotal, _ = meter.Int64Counter(
		"sandboxd.notifications.failures.total",
		metric.WithDescription("Total number of notification delivery failures (swallowed)"),
		metric.WithUnit("{error}"),
	)

	return m
}
