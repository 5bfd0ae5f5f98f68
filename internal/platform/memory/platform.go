// Package memory implements platform.Client against in-process state.
// This implementation is for testing only - data is lost on restart.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/wolfeidau/sandboxd/internal/platform"
)

var _ platform.Client = (*Platform)(nil)

type roleBinding struct {
	kind      platform.RoleKind
	userGUID  string
	scopeGUID string
}

// Platform is an in-memory stand-in for the remote platform. Beyond the
// platform.Client contract it records every call and supports one-shot error
// injection per operation, which is how tests simulate partial failure.
type Platform struct {
	mu sync.Mutex

	// PageSize controls user list pagination. Default 50.
	PageSize int

	users         []platform.User
	orgs          map[string]*platform.Organization     // by name
	orgQuotas     map[string]*platform.Quota            // by name
	quotasByGUID  map[string]*platform.Quota
	spaces        map[string][]platform.Space           // by org GUID
	spaceQuotas   map[string]map[string]*platform.Quota // org GUID -> name
	quotaBindings map[string][]string                   // quota GUID -> space GUIDs
	roles         map[roleBinding]bool
	groups        map[string]string   // name -> GUID
	groupBindings map[string][]string // group GUID -> space GUIDs

	calls    []string
	failures map[string]error
}

// NewPlatform creates an empty in-memory platform.
func NewPlatform() *Platform {
	return &Platform{
		PageSize:      50,
		orgs:          make(map[string]*platform.Organization),
		orgQuotas:     make(map[string]*platform.Quota),
		quotasByGUID:  make(map[string]*platform.Quota),
		spaces:        make(map[string][]platform.Space),
		spaceQuotas:   make(map[string]map[string]*platform.Quota),
		quotaBindings: make(map[string][]string),
		roles:         make(map[roleBinding]bool),
		groups:        make(map[string]string),
		groupBindings: make(map[string][]string),
		failures:      make(map[string]error),
	}
}

// AddUser registers a directory user and returns it.
func (p *Platform) AddUser(user platform.User) platform.User {
	p.mu.Lock()
	defer p.mu.Unlock()

	if user.GUID == "" {
		user.GUID = uuid.NewString()
	}
	p.users = append(p.users, user)
	return user
}

// AddSecurityGroup registers a named security group.
func (p *Platform) AddSecurityGroup(name string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.groups[name] = uuid.NewString()
}

// FailOnce arranges for the next call of the named operation to return err.
// Operation names match the method names ("CreateSpace", "AssignRole", ...).
func (p *Platform) FailOnce(op string, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.failures[op] = err
}

// Calls returns the operations invoked so far, in order.
func (p *Platform) Calls() []string {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]string, len(p.calls))
	copy(out, p.calls)
	return out
}

// ResetCalls clears the call log.
func (p *Platform) ResetCalls() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.calls = nil
}

// record logs the call and consumes any injected failure. Callers must hold
// the mutex.
func (p *Platform) record(op string) error {
	p.calls = append(p.calls, op)
	if err, ok := p.failures[op]; ok {
		delete(p.failures, op)
		return err
	}
	return nil
}

func (p *Platform) ListUsersDesc(ctx context.Context, page int) ([]platform.User, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.record("ListUsersDesc"); err != nil {
		return nil, false, err
	}

	sorted := make([]platform.User, len(p.users))
	copy(sorted, p.users)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].CreatedAt.After(sorted[j].CreatedAt)
	})

	start := (page - 1) * p.PageSize
	if start >= len(sorted) {
		return nil, false, nil
	}
	end := min(start+p.PageSize, len(sorted))

	return sorted[start:end], end < len(sorted), nil
}

func (p *Platform) GetUserByUsername(ctx context.Context, username string) (*platform.User, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.record("GetUserByUsername"); err != nil {
		return nil, err
	}

	for _, user := range p.users {
		if user.Username == username {
			clone := user
			return &clone, nil
		}
	}
	return nil, platform.NewError(platform.KindNotFound, "get_user", fmt.Sprintf("no match for name %q", username))
}

func (p *Platform) GetOrganizationByName(ctx context.Context, name string) (*platform.Organization, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.record("GetOrganizationByName"); err != nil {
		return nil, err
	}

	org, ok := p.orgs[name]
	if !ok {
		return nil, platform.NewError(platform.KindNotFound, "get_organization", fmt.Sprintf("no match for name %q", name))
	}
	clone := *org
	return &clone, nil
}

func (p *Platform) CreateOrganization(ctx context.Context, name, quotaGUID string) (*platform.Organization, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.record("CreateOrganization"); err != nil {
		return nil, err
	}

	if _, exists := p.orgs[name]; exists {
		return nil, platform.NewError(platform.KindConflict, "create_organization", fmt.Sprintf("organization %q already exists", name))
	}

	org := &platform.Organization{
		GUID:      uuid.NewString(),
		Name:      name,
		QuotaGUID: quotaGUID,
	}
	p.orgs[name] = org

	clone := *org
	return &clone, nil
}

func (p *Platform) ListSpaces(ctx context.Context, orgGUID string) ([]platform.Space, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.record("ListSpaces"); err != nil {
		return nil, err
	}

	out := make([]platform.Space, len(p.spaces[orgGUID]))
	copy(out, p.spaces[orgGUID])
	return out, nil
}

func (p *Platform) CreateSpace(ctx context.Context, name, orgGUID string) (*platform.Space, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.record("CreateSpace"); err != nil {
		return nil, err
	}

	for _, space := range p.spaces[orgGUID] {
		if space.Name == name {
			return nil, platform.NewError(platform.KindConflict, "create_space", fmt.Sprintf("space %q already exists", name))
		}
	}

	space := platform.Space{
		GUID:             uuid.NewString(),
		Name:             name,
		OrganizationGUID: orgGUID,
	}
	p.spaces[orgGUID] = append(p.spaces[orgGUID], space)

	clone := space
	return &clone, nil
}

func (p *Platform) GetOrganizationQuota(ctx context.Context, guid string) (*platform.Quota, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.record("GetOrganizationQuota"); err != nil {
		return nil, err
	}

	quota, ok := p.quotasByGUID[guid]
	if !ok {
		return nil, platform.NewError(platform.KindNotFound, "get_org_quota", fmt.Sprintf("no quota with guid %q", guid))
	}
	clone := *quota
	return &clone, nil
}

func (p *Platform) GetOrganizationQuotaByName(ctx context.Context, name string) (*platform.Quota, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.record("GetOrganizationQuotaByName"); err != nil {
		return nil, err
	}

	quota, ok := p.orgQuotas[name]
	if !ok {
		return nil, platform.NewError(platform.KindNotFound, "get_org_quota", fmt.Sprintf("no match for name %q", name))
	}
	clone := *quota
	return &clone, nil
}

func (p *Platform) CreateOrganizationQuota(ctx context.Context, name string, limits platform.QuotaLimits) (*platform.Quota, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.record("CreateOrganizationQuota"); err != nil {
		return nil, err
	}

	if _, exists := p.orgQuotas[name]; exists {
		return nil, platform.NewError(platform.KindConflict, "create_org_quota", fmt.Sprintf("quota %q already exists", name))
	}

	quota := &platform.Quota{
		GUID:   uuid.NewString(),
		Name:   name,
		Limits: limits,
	}
	p.orgQuotas[name] = quota
	p.quotasByGUID[quota.GUID] = quota

	clone := *quota
	return &clone, nil
}

func (p *Platform) UpdateOrganizationQuota(ctx context.Context, guid string, limits platform.QuotaLimits) (*platform.Quota, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.record("UpdateOrganizationQuota"); err != nil {
		return nil, err
	}

	quota, ok := p.quotasByGUID[guid]
	if !ok {
		return nil, platform.NewError(platform.KindNotFound, "update_org_quota", fmt.Sprintf("no quota with guid %q", guid))
	}

	quota.Limits = limits
	clone := *quota
	return &clone, nil
}

func (p *Platform) GetSpaceQuotaByName(ctx context.Context, orgGUID, name string) (*platform.Quota, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.record("GetSpaceQuotaByName"); err != nil {
		return nil, err
	}

	quota, ok := p.spaceQuotas[orgGUID][name]
	if !ok {
		return nil, platform.NewError(platform.KindNotFound, "get_space_quota", fmt.Sprintf("no match for name %q", name))
	}
	clone := *quota
	return &clone, nil
}

func (p *Platform) CreateSpaceQuota(ctx context.Context, name, orgGUID string, limits platform.QuotaLimits) (*platform.Quota, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.record("CreateSpaceQuota"); err != nil {
		return nil, err
	}

	if _, exists := p.spaceQuotas[orgGUID][name]; exists {
		return nil, platform.NewError(platform.KindConflict, "create_space_quota", fmt.Sprintf("quota %q already exists", name))
	}

	quota := &platform.Quota{
		GUID:   uuid.NewString(),
		Name:   name,
		Limits: limits,
	}
	if p.spaceQuotas[orgGUID] == nil {
		p.spaceQuotas[orgGUID] = make(map[string]*platform.Quota)
	}
	p.spaceQuotas[orgGUID][name] = quota
	p.quotasByGUID[quota.GUID] = quota

	clone := *quota
	return &clone, nil
}

func (p *Platform) BindSpaceQuota(ctx context.Context, quotaGUID, spaceGUID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.record("BindSpaceQuota"); err != nil {
		return err
	}

	if _, ok := p.quotasByGUID[quotaGUID]; !ok {
		return platform.NewError(platform.KindNotFound, "bind_space_quota", fmt.Sprintf("no quota with guid %q", quotaGUID))
	}

	p.quotaBindings[quotaGUID] = append(p.quotaBindings[quotaGUID], spaceGUID)
	return nil
}

func (p *Platform) AssignRole(ctx context.Context, kind platform.RoleKind, userGUID, scopeGUID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.record("AssignRole"); err != nil {
		return err
	}

	// Re-assigning an existing role is success, like the real platform after
	// duplicate-role mapping.
	p.roles[roleBinding{kind: kind, userGUID: userGUID, scopeGUID: scopeGUID}] = true
	return nil
}

func (p *Platform) BindSecurityGroup(ctx context.Context, name, spaceGUID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.record("BindSecurityGroup"); err != nil {
		return err
	}

	guid, ok := p.groups[name]
	if !ok {
		return platform.NewError(platform.KindNotFound, "get_security_group", fmt.Sprintf("no match for name %q", name))
	}

	for _, bound := range p.groupBindings[guid] {
		if bound == spaceGUID {
			return nil
		}
	}
	p.groupBindings[guid] = append(p.groupBindings[guid], spaceGUID)
	return nil
}

// Inspection helpers for tests.

// Organization returns the stored org by name, or nil.
func (p *Platform) Organization(name string) *platform.Organization {
	p.mu.Lock()
	defer p.mu.Unlock()

	org, ok := p.orgs[name]
	if !ok {
		return nil
	}
	clone := *org
	return &clone
}

// Spaces returns the spaces of an org by org name.
func (p *Platform) Spaces(orgName string) []platform.Space {
	p.mu.Lock()
	defer p.mu.Unlock()

	org, ok := p.orgs[orgName]
	if !ok {
		return nil
	}
	out := make([]platform.Space, len(p.spaces[org.GUID]))
	copy(out, p.spaces[org.GUID])
	return out
}

// OrgQuota returns the org quota by name, or nil.
func (p *Platform) OrgQuota(name string) *platform.Quota {
	p.mu.Lock()
	defer p.mu.Unlock()

	quota, ok := p.orgQuotas[name]
	if !ok {
		return nil
	}
	clone := *quota
	return &clone
}

// SpaceQuota returns a space quota by org name and quota name, or nil.
func (p *Platform) SpaceQuota(orgName, name string) *platform.Quota {
	p.mu.Lock()
	defer p.mu.Unlock()

	org, ok := p.orgs[orgName]
	if !ok {
		return nil
	}
	quota, ok := p.spaceQuotas[org.GUID][name]
	if !ok {
		return nil
	}
	clone := *quota
	return &clone
}

// RoleCount returns how many distinct role bindings exist for a user.
func (p *Platform) RoleCount(userGUID string) int {
	p.mu.Lock()
	defer p.mu.Unlock()

	count := 0
	for binding := range p.roles {
		if binding.userGUID == userGUID {
			count++
		}
	}
	return count
}

// HasRole reports whether a binding exists.
func (p *Platform) HasRole(kind platform.RoleKind, userGUID, scopeGUID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.roles[roleBinding{kind: kind, userGUID: userGUID, scopeGUID: scopeGUID}]
}

// BoundGroups returns the names of security groups bound to a space.
func (p *Platform) BoundGroups(spaceGUID string) []string {
	p.mu.Lock()
	defer p.mu.Unlock()

	var names []string
	for name, guid := range p.groups {
		for _, bound := range p.groupBindings[guid] {
			if bound == spaceGUID {
				names = append(names, name)
			}
		}
	}
	sort.Strings(names)
	return names
}
