package commands

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/wolfeidau/sandboxd/internal/logger"
	"github.com/wolfeidau/sandboxd/internal/poller"
	"github.com/wolfeidau/sandboxd/internal/provision"
	"github.com/wolfeidau/sandboxd/internal/store"
	memorystore "github.com/wolfeidau/sandboxd/internal/store/memory"
	"github.com/wolfeidau/sandboxd/internal/store/postgres"
	"github.com/wolfeidau/sandboxd/internal/telemetry"
)

type MonitorCmd struct {
	PlatformFlags
	ClassifierFlags
	NotifierFlags

	Interval     time.Duration `help:"Sleep between directory polls" env:"POLL_INTERVAL" default:"60s"`
	EgressGroups []string      `help:"Named egress security groups applied to new spaces" default:"public-egress,trusted-local-egress"`
	DBConnString string        `help:"Optional Postgres URL; persists the watermark across restarts" env:"DATABASE_URL"`
}

func (m *MonitorCmd) Run(ctx context.Context, globals *Globals) error {
	log.Logger = logger.Setup(globals.Debug)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdown, err := telemetry.InitTelemetry(ctx, "sandboxd", globals.Version)
	if err != nil {
		log.Warn().Err(err).Msg("Telemetry disabled")
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := shutdown(shutdownCtx); err != nil {
				log.Warn().Err(err).Msg("Telemetry shutdown failed")
			}
		}()
	}

	log.Info().Str("version", globals.Version).Str("api", m.API).Msg("Monitor starting")

	classifier, err := m.newClassifier()
	if err != nil {
		return err
	}

	client, err := m.newPlatformClient(ctx)
	if err != nil {
		return err
	}

	notifier, err := m.newNotifier()
	if err != nil {
		return err
	}

	watermarks, cleanup, err := m.newWatermarkStore(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	reconciler := provision.NewReconciler(client, classifier, notifier, m.EgressGroups)

	err = poller.New(client, reconciler, watermarks, m.Interval).Run(ctx)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (m *MonitorCmd) newWatermarkStore(ctx context.Context) (store.WatermarkStore, func(), error) {
	if m.DBConnString == "" {
		log.Info().Msg("Using in-memory watermark, a restart rescans the full directory")
		return memorystore.NewWatermarkStore(), func() {}, nil
	}

	pg, err := postgres.NewWatermarkStore(ctx, &postgres.PoolConfig{ConnString: m.DBConnString})
	if err != nil {
		return nil, nil, err
	}
	return pg, pg.Close, nil
}
