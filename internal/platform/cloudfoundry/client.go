// Package cloudfoundry implements platform.Client against a cloud
// controller's v3-style REST API, authenticating with UAA client credentials.
package cloudfoundry

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/wolfeidau/sandboxd/internal/platform"
)

// AdminScope is the UAA scope the client credential must carry to manage
// orgs, spaces, quotas and roles.
const AdminScope = "cloud_controller.admin"

const defaultPageSize = 100

var _ platform.Client = (*Client)(nil)

// Config holds client configuration.
type Config struct {
	// APIURL is the cloud controller base URL, e.g. https://api.cloud.gov.
	APIURL string

	// UAAURL is the token endpoint base; the token URL is UAAURL + "/oauth/token".
	UAAURL string

	ClientID     string
	ClientSecret string

	// PageSize for list requests. Default 100.
	PageSize int

	// Timeout for individual HTTP requests. Default 30s. Per-call deadlines
	// beyond this belong to the caller's context.
	Timeout time.Duration

	// MaxRetries bounds the transparent retry of read operations that fail
	// with a transient error. Default 3. Writes are never retried here; the
	// reconciler's re-entrant idempotency covers them on the next pass.
	MaxRetries uint
}

// Client talks to the cloud controller. Safe for concurrent use; the daemon
// uses it from a single goroutine regardless.
type Client struct {
	base       string
	httpClient *http.Client
	tokens     oauth2.TokenSource
	pageSize   int
	maxRetries uint
}

// New builds a client. Token acquisition and refresh is handled by the
// oauth2 client-credentials flow; no request is made until the first call.
func New(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.APIURL == "" || cfg.UAAURL == "" {
		return nil, fmt.Errorf("API URL and UAA URL are required")
	}
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, fmt.Errorf("client ID and client secret are required")
	}
	if cfg.PageSize == 0 {
		cfg.PageSize = defaultPageSize
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}

	conf := &clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     strings.TrimSuffix(cfg.UAAURL, "/") + "/oauth/token",
		Scopes:       []string{AdminScope},
	}

	tokens := conf.TokenSource(ctx)
	httpClient := oauth2.NewClient(ctx, tokens)
	httpClient.Timeout = cfg.Timeout

	return &Client{
		base:       strings.TrimSuffix(cfg.APIURL, "/"),
		httpClient: httpClient,
		tokens:     tokens,
		pageSize:   cfg.PageSize,
		maxRetries: cfg.MaxRetries,
	}, nil
}

// Preflight acquires a token and verifies it carries AdminScope, so a
// mis-provisioned credential fails at startup instead of on the first write.
// The token is parsed without signature verification; the client is the
// audience of its own token, not a validator of it.
func (c *Client) Preflight(ctx context.Context) error {
	token, err := c.tokens.Token()
	if err != nil {
		return platform.WrapError(platform.KindAuth, "preflight", err)
	}

	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token.AccessToken, claims); err != nil {
		return platform.WrapError(platform.KindAuth, "preflight", fmt.Errorf("failed to parse access token: %w", err))
	}

	scopes, _ := claims["scope"].([]any)
	for _, s := range scopes {
		if s == AdminScope {
			clientID, _ := claims["client_id"].(string)
			log.Info().Str("client_id", clientID).Msg("Platform credential verified")
			return nil
		}
	}

	return platform.NewError(platform.KindAuth, "preflight",
		fmt.Sprintf("access token is missing the %s scope", AdminScope))
}

// ListUsersDesc returns one page of users ordered by descending creation time.
func (c *Client) ListUsersDesc(ctx context.Context, page int) ([]platform.User, bool, error) {
	query := url.Values{
		"order_by": {"-created_at"},
		"per_page": {strconv.Itoa(c.pageSize)},
		"page":     {strconv.Itoa(page)},
	}

	var resp userListResponse
	if err := c.get(ctx, "list_users", "/v3/users?"+query.Encode(), &resp); err != nil {
		return nil, false, err
	}

	users := make([]platform.User, 0, len(resp.Resources))
	for _, r := range resp.Resources {
		users = append(users, r.toUser())
	}

	return users, page < resp.Pagination.TotalPages, nil
}

// GetUserByUsername looks up a user by exact username.
func (c *Client) GetUserByUsername(ctx context.Context, username string) (*platform.User, error) {
	query := url.Values{"usernames": {username}}

	var resp userListResponse
	if err := c.get(ctx, "get_user", "/v3/users?"+query.Encode(), &resp); err != nil {
		return nil, err
	}

	r, err := exactlyOne("get_user", username, resp.Resources)
	if err != nil {
		return nil, err
	}

	user := r.toUser()
	return &user, nil
}

// GetOrganizationByName looks up an organization by exact name.
func (c *Client) GetOrganizationByName(ctx context.Context, name string) (*platform.Organization, error) {
	query := url.Values{"names": {name}}

	var resp orgListResponse
	if err := c.get(ctx, "get_organization", "/v3/organizations?"+query.Encode(), &resp); err != nil {
		return nil, err
	}

	r, err := exactlyOne("get_organization", name, resp.Resources)
	if err != nil {
		return nil, err
	}

	org := r.toOrganization()
	return &org, nil
}

// CreateOrganization creates an organization bound to an existing quota.
func (c *Client) CreateOrganization(ctx context.Context, name, quotaGUID string) (*platform.Organization, error) {
	req := createOrgRequest{
		Name: name,
		Relationships: orgRelationships{
			Quota: relationship{Data: &relationshipData{GUID: quotaGUID}},
		},
	}

	var resp orgResource
	if err := c.post(ctx, "create_organization", "/v3/organizations", req, &resp); err != nil {
		return nil, err
	}

	org := resp.toOrganization()
	return &org, nil
}

// ListSpaces returns every space in an organization, exhausting pagination.
func (c *Client) ListSpaces(ctx context.Context, orgGUID string) ([]platform.Space, error) {
	var spaces []platform.Space
	for page := 1; ; page++ {
		query := url.Values{
			"organization_guids": {orgGUID},
			"per_page":           {strconv.Itoa(c.pageSize)},
			"page":               {strconv.Itoa(page)},
		}

		var resp spaceListResponse
		if err := c.get(ctx, "list_spaces", "/v3/spaces?"+query.Encode(), &resp); err != nil {
			return nil, err
		}

		for _, r := range resp.Resources {
			spaces = append(spaces, r.toSpace())
		}

		if page >= resp.Pagination.TotalPages {
			return spaces, nil
		}
	}
}

// CreateSpace creates a space in an organization.
func (c *Client) CreateSpace(ctx context.Context, name, orgGUID string) (*platform.Space, error) {
	req := createSpaceRequest{
		Name: name,
		Relationships: spaceRelationships{
			Organization: relationship{Data: &relationshipData{GUID: orgGUID}},
		},
	}

	var resp spaceResource
	if err := c.post(ctx, "create_space", "/v3/spaces", req, &resp); err != nil {
		return nil, err
	}

	space := resp.toSpace()
	return &space, nil
}

// GetOrganizationQuota fetches an organization quota by GUID.
func (c *Client) GetOrganizationQuota(ctx context.Context, guid string) (*platform.Quota, error) {
	var resp quotaResource
	if err := c.get(ctx, "get_org_quota", "/v3/organization_quotas/"+guid, &resp); err != nil {
		return nil, err
	}

	quota := resp.toQuota()
	return &quota, nil
}

// GetOrganizationQuotaByName looks up an organization quota by exact name.
func (c *Client) GetOrganizationQuotaByName(ctx context.Context, name string) (*platform.Quota, error) {
	query := url.Values{"names": {name}}

	var resp quotaListResponse
	if err := c.get(ctx, "get_org_quota", "/v3/organization_quotas?"+query.Encode(), &resp); err != nil {
		return nil, err
	}

	r, err := exactlyOne("get_org_quota", name, resp.Resources)
	if err != nil {
		return nil, err
	}

	quota := r.toQuota()
	return &quota, nil
}

// CreateOrganizationQuota creates an organization quota. Paid services stay
// off for new sandbox tenancies.
func (c *Client) CreateOrganizationQuota(ctx context.Context, name string, limits platform.QuotaLimits) (*platform.Quota, error) {
	req := quotaRequestFromLimits(name, limits, false)

	var resp quotaResource
	if err := c.post(ctx, "create_org_quota", "/v3/organization_quotas", req, &resp); err != nil {
		return nil, err
	}

	quota := resp.toQuota()
	return &quota, nil
}

// UpdateOrganizationQuota replaces the limits on an existing quota. Scaled
// tenancies are allowed paid services.
func (c *Client) UpdateOrganizationQuota(ctx context.Context, guid string, limits platform.QuotaLimits) (*platform.Quota, error) {
	req := quotaRequestFromLimits("", limits, true)

	var resp quotaResource
	if err := c.patch(ctx, "update_org_quota", "/v3/organization_quotas/"+guid, req, &resp); err != nil {
		return nil, err
	}

	quota := resp.toQuota()
	return &quota, nil
}

// GetSpaceQuotaByName looks up a space quota scoped to one organization.
func (c *Client) GetSpaceQuotaByName(ctx context.Context, orgGUID, name string) (*platform.Quota, error) {
	query := url.Values{
		"names":              {name},
		"organization_guids": {orgGUID},
	}

	var resp quotaListResponse
	if err := c.get(ctx, "get_space_quota", "/v3/space_quotas?"+query.Encode(), &resp); err != nil {
		return nil, err
	}

	r, err := exactlyOne("get_space_quota", name, resp.Resources)
	if err != nil {
		return nil, err
	}

	quota := r.toQuota()
	return &quota, nil
}

// CreateSpaceQuota creates a space quota scoped to one organization.
func (c *Client) CreateSpaceQuota(ctx context.Context, name, orgGUID string, limits platform.QuotaLimits) (*platform.Quota, error) {
	req := quotaRequestFromLimits(name, limits, false)
	req.Relationships = &quotaRelationships{
		Organization: relationship{Data: &relationshipData{GUID: orgGUID}},
	}

	var resp quotaResource
	if err := c.post(ctx, "create_space_quota", "/v3/space_quotas", req, &resp); err != nil {
		return nil, err
	}

	quota := resp.toQuota()
	return &quota, nil
}

// BindSpaceQuota applies a space quota to a space.
func (c *Client) BindSpaceQuota(ctx context.Context, quotaGUID, spaceGUID string) error {
	req := toManyRelationship{Data: []relationshipData{{GUID: spaceGUID}}}
	return c.post(ctx, "bind_space_quota", "/v3/space_quotas/"+quotaGUID+"/relationships/spaces", req, nil)
}

// AssignRole grants a role to a user on an organization or space. The
// platform rejects a duplicate role with a validation error; that response is
// success here, which is what makes role application safe to re-drive.
func (c *Client) AssignRole(ctx context.Context, kind platform.RoleKind, userGUID, scopeGUID string) error {
	req := createRoleRequest{
		Type: string(kind),
		Relationships: roleRelationships{
			User: relationship{Data: &relationshipData{GUID: userGUID}},
		},
	}

	scope := relationship{Data: &relationshipData{GUID: scopeGUID}}
	if kind == platform.RoleOrgUser {
		req.Relationships.Organization = &scope
	} else {
		req.Relationships.Space = &scope
	}

	err := c.post(ctx, "assign_role", "/v3/roles", req, nil)
	if isAlreadyPresent(err) {
		log.Debug().
			Str("role", string(kind)).
			Str("user_guid", userGUID).
			Msg("Role already assigned")
		return nil
	}

	return err
}

// BindSecurityGroup associates a named egress security group with a space.
func (c *Client) BindSecurityGroup(ctx context.Context, name, spaceGUID string) error {
	query := url.Values{"names": {name}}

	var resp securityGroupListResponse
	if err := c.get(ctx, "get_security_group", "/v3/security_groups?"+query.Encode(), &resp); err != nil {
		return err
	}

	group, err := exactlyOne("get_security_group", name, resp.Resources)
	if err != nil {
		return err
	}

	req := toManyRelationship{Data: []relationshipData{{GUID: spaceGUID}}}
	err = c.post(ctx, "bind_security_group", "/v3/security_groups/"+group.GUID+"/relationships/running_spaces", req, nil)
	if isAlreadyPresent(err) {
		log.Debug().Str("group", name).Str("space_guid", spaceGUID).Msg("Security group already bound")
		return nil
	}

	return err
}

// exactlyOne enforces the lookup-by-name contract: zero matches is NotFound,
// more than one is AmbiguousMatch.
func exactlyOne[T any](op, name string, resources []T) (T, error) {
	var zero T
	switch len(resources) {
	case 0:
		return zero, platform.NewError(platform.KindNotFound, op, fmt.Sprintf("no match for name %q", name))
	case 1:
		return resources[0], nil
	default:
		return zero, platform.NewError(platform.KindAmbiguousMatch, op,
			fmt.Sprintf("%d entities match name %q", len(resources), name))
	}
}

// isAlreadyPresent reports whether a write was rejected only because the
// association it describes already exists.
func isAlreadyPresent(err error) bool {
	if err == nil {
		return false
	}
	kind := platform.KindOf(err)
	if kind != platform.KindValidation && kind != platform.KindConflict {
		return false
	}
	var pe *platform.Error
	if !errors.As(err, &pe) {
		return false
	}
	detail := strings.ToLower(pe.Message)
	return strings.Contains(detail, "already")
}

// get performs a read with bounded retry on transient failures.
func (c *Client) get(ctx context.Context, op, path string, out any) error {
	operation := func() (struct{}, error) {
		err := c.do(ctx, op, http.MethodGet, path, nil, out)
		if err != nil && !platform.IsTransient(err) {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	}

	_, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(c.maxRetries),
	)
	return err
}

func (c *Client) post(ctx context.Context, op, path string, body, out any) error {
	return c.do(ctx, op, http.MethodPost, path, body, out)
}

func (c *Client) patch(ctx context.Context, op, path string, body, out any) error {
	return c.do(ctx, op, http.MethodPatch, path, body, out)
}

// do performs one HTTP round trip and maps the response onto the tagged
// error kinds.
func (c *Client) do(ctx context.Context, op, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return platform.WrapError(platform.KindValidation, op, fmt.Errorf("failed to encode request: %w", err))
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, reader)
	if err != nil {
		return platform.WrapError(platform.KindValidation, op, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return platform.WrapError(platform.KindTransient, op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return c.mapResponseError(op, resp)
	}

	if out == nil {
		// Drain so the connection can be reused.
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return platform.WrapError(platform.KindTransient, op, fmt.Errorf("failed to decode response: %w", err))
	}

	return nil
}

func (c *Client) mapResponseError(op string, resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))

	detail := strings.TrimSpace(string(raw))
	var parsed apiErrorResponse
	if err := json.Unmarshal(raw, &parsed); err == nil && len(parsed.Errors) > 0 {
		detail = parsed.Errors[0].Detail
		if detail == "" {
			detail = parsed.Errors[0].Title
		}
	}

	kind := platform.KindUnknown
	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		kind = platform.KindAuth
	case resp.StatusCode == http.StatusNotFound:
		kind = platform.KindNotFound
	case resp.StatusCode == http.StatusConflict:
		kind = platform.KindConflict
	case resp.StatusCode == http.StatusUnprocessableEntity:
		kind = platform.KindValidation
	case resp.StatusCode >= 500:
		kind = platform.KindTransient
	}

	return &platform.Error{
		Kind:    kind,
		Op:      op,
		Message: fmt.Sprintf("%s (status %d)", detail, resp.StatusCode),
	}
}
