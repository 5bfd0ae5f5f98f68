package commands

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/wolfeidau/sandboxd/internal/logger"
	"github.com/wolfeidau/sandboxd/internal/provision"
)

// ProvisionCmd re-drives reconciliation for one user. This is the operator
// tool for users whose reconciliation failed after the watermark moved past
// them: monitor won't revisit them, this will.
type ProvisionCmd struct {
	PlatformFlags
	ClassifierFlags
	NotifierFlags

	Username     string   `arg:"" help:"Directory username (email) to reconcile"`
	EgressGroups []string `help:"Named egress security groups applied to new spaces" default:"public-egress,trusted-local-egress"`
}

func (p *ProvisionCmd) Run(ctx context.Context, globals *Globals) error {
	log.Logger = logger.Setup(globals.Debug)

	classifier, err := p.newClassifier()
	if err != nil {
		return err
	}

	client, err := p.newPlatformClient(ctx)
	if err != nil {
		return err
	}

	notifier, err := p.newNotifier()
	if err != nil {
		return err
	}

	user, err := client.GetUserByUsername(ctx, p.Username)
	if err != nil {
		return fmt.Errorf("failed to look up user %s: %w", p.Username, err)
	}

	reconciler := provision.NewReconciler(client, classifier, notifier, p.EgressGroups)

	outcome, err := reconciler.Reconcile(ctx, *user)
	if err != nil {
		return err
	}

	log.Info().Str("username", p.Username).Stringer("outcome", outcome).Msg("Reconciliation complete")
	return nil
}
