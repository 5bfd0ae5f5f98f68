// Package provision contains the provisioning reconciler: the idempotent
// state machine that converges remote platform state to one sandbox per
// allowed directory user.
//
// The reconciler holds no state of its own. Every decision re-reads current
// remote state, because remote state changes across passes, across process
// restarts and via other actors. Name-based existence checks are the
// idempotency keys; that check-then-act is racy if two reconciler processes
// run against the same platform, so single-instance operation is assumed.
package provision

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/wolfeidau/sandboxd/internal/identity"
	"github.com/wolfeidau/sandboxd/internal/notify"
	"github.com/wolfeidau/sandboxd/internal/platform"
	"github.com/wolfeidau/sandboxd/internal/telemetry"
)

const (
	// orgNamePrefix prefixes the tenancy key to form the deterministic
	// organization name, e.g. "sandbox-state".
	orgNamePrefix = "sandbox-"

	// spaceQuotaName is the fixed name of the per-tenancy quota shared by all
	// sandbox spaces in one organization.
	spaceQuotaName = "sandbox_quota"
)

// DefaultEgressGroups are the named egress policies applied to every newly
// created sandbox space. They are applied once and never removed.
var DefaultEgressGroups = []string{"public-egress", "trusted-local-egress"}

// Outcome reports where a reconciliation ended.
type Outcome int

const (
	// OutcomeSkipped means no provisioning was needed: the identity is
	// disallowed or the sandbox already exists.
	OutcomeSkipped Outcome = iota
	// OutcomeProvisioned means a sandbox space was created this pass.
	OutcomeProvisioned
)

func (o Outcome) String() string {
	if o == OutcomeProvisioned {
		return "provisioned"
	}
	return "skipped"
}

// Reconciler provisions sandbox tenancy for directory users. All fields are
// set at construction; the reconciler is safe to reuse across passes.
type Reconciler struct {
	client       platform.Client
	classifier   *identity.Classifier
	notifier     notify.Notifier
	egressGroups []string
}

// NewReconciler constructs a reconciler. A nil notifier disables
// notifications; empty egressGroups fall back to DefaultEgressGroups.
func NewReconciler(client platform.Client, classifier *identity.Classifier, notifier notify.Notifier, egressGroups []string) *Reconciler {
	if notifier == nil {
		notifier = notify.Noop{}
	}
	if len(egressGroups) == 0 {
		egressGroups = DefaultEgressGroups
	}
	return &Reconciler{
		client:       client,
		classifier:   classifier,
		notifier:     notifier,
		egressGroups: egressGroups,
	}
}

// Reconcile drives one user through the provisioning sequence. Every step is
// safe to repeat: a failure part way through leaves already-created resources
// in place, and the next invocation detects them by name and skips ahead. No
// step is ever rolled back.
//
// An error aborts this user only; the caller retries by invoking Reconcile
// again on a later pass.
func (r *Reconciler) Reconcile(ctx context.Context, user platform.User) (Outcome, error) {
	cls := r.classifier.Classify(user.Username)
	if !cls.Allowed {
		log.Debug().Str("username", user.Username).Msg("User not on allow-list, skipping")
		telemetry.GetMetrics().ReconcileSkipsTotal.Add(ctx, 1)
		return OutcomeSkipped, nil
	}

	orgName := orgNamePrefix + cls.TenancyKey

	org, isNewOrg, err := r.ensureOrganization(ctx, orgName)
	if err != nil {
		telemetry.GetMetrics().ReconcileFailuresTotal.Add(ctx, 1)
		return OutcomeSkipped, fmt.Errorf("failed to ensure organization %s: %w", orgName, err)
	}

	// A brand-new org cannot contain the space yet, so the listing is only
	// needed for pre-existing orgs. The space count also feeds quota scaling.
	var spaces []platform.Space
	if !isNewOrg {
		spaces, err = r.client.ListSpaces(ctx, org.GUID)
		if err != nil {
			telemetry.GetMetrics().ReconcileFailuresTotal.Add(ctx, 1)
			return OutcomeSkipped, fmt.Errorf("failed to list spaces in %s: %w", orgName, err)
		}

		if spaceExists(spaces, cls.WorkspaceKey) {
			log.Info().
				Str("username", user.Username).
				Str("org", orgName).
				Str("space", cls.WorkspaceKey).
				Msg("Sandbox space already exists, skipping")
			telemetry.GetMetrics().ReconcileSkipsTotal.Add(ctx, 1)
			return OutcomeSkipped, nil
		}
	}

	log.Info().
		Str("username", user.Username).
		Str("org", orgName).
		Str("space", cls.WorkspaceKey).
		Bool("new_org", isNewOrg).
		Msg("Setting up new sandbox user")

	if err := r.provisionSpace(ctx, user, org, cls.WorkspaceKey); err != nil {
		telemetry.GetMetrics().ReconcileFailuresTotal.Add(ctx, 1)
		return OutcomeSkipped, fmt.Errorf("failed to provision sandbox for %s: %w", user.Username, err)
	}

	// Brand-new orgs start with baseline limits that already cover one space.
	if !isNewOrg {
		if err := r.scaleOrgQuota(ctx, org, len(spaces)+1); err != nil {
			telemetry.GetMetrics().ReconcileFailuresTotal.Add(ctx, 1)
			return OutcomeSkipped, fmt.Errorf("failed to scale quota for %s: %w", orgName, err)
		}
	}

	telemetry.GetMetrics().SandboxesProvisionedTotal.Add(ctx, 1)
	r.notifier.Notify(ctx, fmt.Sprintf("Setting up new sandbox user %s in %s", user.Username, orgName))

	return OutcomeProvisioned, nil
}

// ensureOrganization looks up the org by its deterministic name, creating it
// (and its quota) when absent. Returns whether this call created the org.
func (r *Reconciler) ensureOrganization(ctx context.Context, orgName string) (*platform.Organization, bool, error) {
	org, err := r.client.GetOrganizationByName(ctx, orgName)
	if err == nil {
		return org, false, nil
	}
	if !platform.IsNotFound(err) {
		return nil, false, err
	}

	// The quota may already exist if a previous run failed between quota and
	// org creation; reuse it.
	quota, err := r.client.GetOrganizationQuotaByName(ctx, orgName)
	if platform.IsNotFound(err) {
		log.Info().Str("quota", orgName).Msg("Creating org quota")
		quota, err = r.client.CreateOrganizationQuota(ctx, orgName, BaselineLimits())
	}
	if err != nil {
		return nil, false, err
	}

	log.Info().Str("org", orgName).Str("quota_guid", quota.GUID).Msg("Creating org")
	org, err = r.client.CreateOrganization(ctx, orgName, quota.GUID)
	if err != nil {
		return nil, false, err
	}

	telemetry.GetMetrics().TenanciesCreatedTotal.Add(ctx, 1)
	r.notifier.Notify(ctx, fmt.Sprintf("Created new sandbox org %s", orgName))

	return org, true, nil
}

// provisionSpace runs the space-creation sequence: org role, shared space
// quota, the space itself, quota binding, space roles, egress groups. The
// order matters only in that the space must exist before anything binds to
// it; each individual step tolerates re-application.
func (r *Reconciler) provisionSpace(ctx context.Context, user platform.User, org *platform.Organization, spaceName string) error {
	if err := r.client.AssignRole(ctx, platform.RoleOrgUser, user.GUID, org.GUID); err != nil {
		return fmt.Errorf("failed to add user to org: %w", err)
	}

	spaceQuota, err := r.client.GetSpaceQuotaByName(ctx, org.GUID, spaceQuotaName)
	if platform.IsNotFound(err) {
		log.Info().Str("org", org.Name).Msg("Creating shared space quota")
		spaceQuota, err = r.client.CreateSpaceQuota(ctx, spaceQuotaName, org.GUID, BaselineLimits())
	}
	if err != nil {
		return fmt.Errorf("failed to ensure space quota: %w", err)
	}

	log.Info().Str("space", spaceName).Str("org", org.Name).Msg("Creating space")
	space, err := r.client.CreateSpace(ctx, spaceName, org.GUID)
	if err != nil {
		return fmt.Errorf("failed to create space: %w", err)
	}

	if err := r.client.BindSpaceQuota(ctx, spaceQuota.GUID, space.GUID); err != nil {
		return fmt.Errorf("failed to bind space quota: %w", err)
	}

	// The sandbox user fills both space roles.
	for _, kind := range []platform.RoleKind{platform.RoleSpaceDeveloper, platform.RoleSpaceManager} {
		if err := r.client.AssignRole(ctx, kind, user.GUID, space.GUID); err != nil {
			return fmt.Errorf("failed to assign %s: %w", kind, err)
		}
	}

	for _, group := range r.egressGroups {
		if err := r.client.BindSecurityGroup(ctx, group, space.GUID); err != nil {
			return fmt.Errorf("failed to bind security group %s: %w", group, err)
		}
	}

	return nil
}

// scaleOrgQuota raises the org quota to cover spaceCount spaces. Limits never
// shrink; when current limits already cover the demand the update is still
// applied with identical values, which the platform treats as a no-op.
func (r *Reconciler) scaleOrgQuota(ctx context.Context, org *platform.Organization, spaceCount int) error {
	quota, err := r.client.GetOrganizationQuota(ctx, org.QuotaGUID)
	if err != nil {
		return fmt.Errorf("failed to fetch org quota: %w", err)
	}

	next := NextLimits(quota.Limits, spaceCount)

	log.Info().
		Str("org", org.Name).
		Int("spaces", spaceCount).
		Int("memory_limit", next.MemoryLimit).
		Int("route_limit", next.RouteLimit).
		Int("service_limit", next.ServiceLimit).
		Msg("Setting new org quota limits")

	if _, err := r.client.UpdateOrganizationQuota(ctx, quota.GUID, next); err != nil {
		return fmt.Errorf("failed to update org quota: %w", err)
	}

	telemetry.GetMetrics().QuotaScaleUpsTotal.Add(ctx, 1)
	return nil
}

func spaceExists(spaces []platform.Space, name string) bool {
	for _, space := range spaces {
		if space.Name == name {
			return true
		}
	}
	return false
}
