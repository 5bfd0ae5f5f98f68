// Package platform defines the contract the provisioner consumes to read and
// mutate remote platform state. Implementations live in subpackages:
// cloudfoundry talks to a real cloud controller, memory is a fake for tests.
package platform

import (
	"context"
	"time"
)

// User is a directory record. Immutable; "new" users are identified solely by
// CreatedAt ordering.
type User struct {
	GUID      string
	Username  string
	CreatedAt time.Time
}

// Organization is a tenancy unit. The name is derived deterministically from
// the identity's domain classification, which makes it the natural idempotency
// key for creation.
type Organization struct {
	GUID      string
	Name      string
	QuotaGUID string
}

// Space is a user-scoped workspace within an organization. Names are unique
// within an organization.
type Space struct {
	GUID             string
	Name             string
	OrganizationGUID string
	QuotaGUID        string
}

// QuotaLimits is a set of capacity ceilings. Values only ever increase once a
// quota exists.
type QuotaLimits struct {
	MemoryLimit  int
	RouteLimit   int
	ServiceLimit int
}

// Quota is a named capacity quota, bound to either an organization or shared
// by the spaces of one organization.
type Quota struct {
	GUID   string
	Name   string
	Limits QuotaLimits
}

// RoleKind is the closed set of role bindings the provisioner applies. Keeping
// role application as a tagged operation keeps the retry path uniform: every
// kind is idempotent to re-apply.
type RoleKind string

const (
	RoleOrgUser        RoleKind = "organization_user"
	RoleSpaceDeveloper RoleKind = "space_developer"
	RoleSpaceManager   RoleKind = "space_manager"
)

// Client performs read/create/update operations against the remote platform.
// Every operation returns either a structured record or an error tagged with
// a kind (see errors.go). The platform offers no transactions and only
// eventual read-after-write consistency; callers must treat every call as
// independently retryable.
type Client interface {
	// ListUsersDesc returns one page of directory users ordered by descending
	// creation time, and whether more pages remain. Pages start at 1.
	ListUsersDesc(ctx context.Context, page int) ([]User, bool, error)

	// GetUserByUsername looks up a single user by exact username.
	GetUserByUsername(ctx context.Context, username string) (*User, error)

	// GetOrganizationByName returns the organization with exactly that name.
	// Zero matches is a NotFound error; more than one is an AmbiguousMatch
	// error, never a silent pick.
	GetOrganizationByName(ctx context.Context, name string) (*Organization, error)

	// CreateOrganization creates an organization bound to an existing quota.
	CreateOrganization(ctx context.Context, name, quotaGUID string) (*Organization, error)

	// ListSpaces returns all spaces in an organization.
	ListSpaces(ctx context.Context, orgGUID string) ([]Space, error)

	// CreateSpace creates a space in an organization.
	CreateSpace(ctx context.Context, name, orgGUID string) (*Space, error)

	// GetOrganizationQuota fetches an organization quota by GUID.
	GetOrganizationQuota(ctx context.Context, guid string) (*Quota, error)

	// GetOrganizationQuotaByName looks up an organization quota by exact name,
	// with the same zero/many semantics as GetOrganizationByName.
	GetOrganizationQuotaByName(ctx context.Context, name string) (*Quota, error)

	// CreateOrganizationQuota creates a new organization quota.
	CreateOrganizationQuota(ctx context.Context, name string, limits QuotaLimits) (*Quota, error)

	// UpdateOrganizationQuota replaces the limits on an existing quota.
	UpdateOrganizationQuota(ctx context.Context, guid string, limits QuotaLimits) (*Quota, error)

	// GetSpaceQuotaByName looks up a space quota scoped to one organization.
	GetSpaceQuotaByName(ctx context.Context, orgGUID, name string) (*Quota, error)

	// CreateSpaceQuota creates a space quota scoped to one organization.
	CreateSpaceQuota(ctx context.Context, name, orgGUID string, limits QuotaLimits) (*Quota, error)

	// BindSpaceQuota applies a space quota to a space.
	BindSpaceQuota(ctx context.Context, quotaGUID, spaceGUID string) error

	// AssignRole grants a role to a user on an organization or space scope.
	// Re-assigning an existing role is success, not an error.
	AssignRole(ctx context.Context, kind RoleKind, userGUID, scopeGUID string) error

	// BindSecurityGroup associates a named egress policy with a space.
	// Already-bound groups are success, not an error.
	BindSecurityGroup(ctx context.Context, name, spaceGUID string) error
}
