package cloudfoundry

import (
	"time"

	"github.com/wolfeidau/sandboxd/internal/platform"
)

// Wire types for the cloud controller's v3-style JSON API. Every remote
// response is decoded into one of these at this boundary; nothing outside
// this package sees untyped JSON.

type pagination struct {
	TotalResults int   `json:"total_results"`
	TotalPages   int   `json:"total_pages"`
	Next         *href `json:"next"`
}

type href struct {
	HREF string `json:"href"`
}

type relationship struct {
	Data *relationshipData `json:"data"`
}

type relationshipData struct {
	GUID string `json:"guid"`
}

type toManyRelationship struct {
	Data []relationshipData `json:"data"`
}

type userResource struct {
	GUID      string    `json:"guid"`
	Username  string    `json:"username"`
	CreatedAt time.Time `json:"created_at"`
}

type userListResponse struct {
	Pagination pagination     `json:"pagination"`
	Resources  []userResource `json:"resources"`
}

func (u userResource) toUser() platform.User {
	return platform.User{
		GUID:      u.GUID,
		Username:  u.Username,
		CreatedAt: u.CreatedAt,
	}
}

type orgRelationships struct {
	Quota relationship `json:"quota"`
}

type orgResource struct {
	GUID          string           `json:"guid"`
	Name          string           `json:"name"`
	Relationships orgRelationships `json:"relationships"`
}

type orgListResponse struct {
	Pagination pagination    `json:"pagination"`
	Resources  []orgResource `json:"resources"`
}

func (o orgResource) toOrganization() platform.Organization {
	org := platform.Organization{
		GUID: o.GUID,
		Name: o.Name,
	}
	if o.Relationships.Quota.Data != nil {
		org.QuotaGUID = o.Relationships.Quota.Data.GUID
	}
	return org
}

type createOrgRequest struct {
	Name          string           `json:"name"`
	Relationships orgRelationships `json:"relationships"`
}

type spaceRelationships struct {
	Organization relationship `json:"organization"`
	Quota        relationship `json:"quota,omitempty"`
}

type spaceResource struct {
	GUID          string             `json:"guid"`
	Name          string             `json:"name"`
	Relationships spaceRelationships `json:"relationships"`
}

type spaceListResponse struct {
	Pagination pagination      `json:"pagination"`
	Resources  []spaceResource `json:"resources"`
}

func (s spaceResource) toSpace() platform.Space {
	space := platform.Space{
		GUID: s.GUID,
		Name: s.Name,
	}
	if s.Relationships.Organization.Data != nil {
		space.OrganizationGUID = s.Relationships.Organization.Data.GUID
	}
	if s.Relationships.Quota.Data != nil {
		space.QuotaGUID = s.Relationships.Quota.Data.GUID
	}
	return space
}

type createSpaceRequest struct {
	Name          string             `json:"name"`
	Relationships spaceRelationships `json:"relationships"`
}

type quotaApps struct {
	TotalMemoryInMB *int `json:"total_memory_in_mb"`
}

type quotaServices struct {
	TotalServiceInstances *int  `json:"total_service_instances"`
	PaidServicesAllowed   *bool `json:"paid_services_allowed,omitempty"`
}

type quotaRoutes struct {
	TotalRoutes *int `json:"total_routes"`
}

type quotaResource struct {
	GUID     string        `json:"guid"`
	Name     string        `json:"name"`
	Apps     quotaApps     `json:"apps"`
	Services quotaServices `json:"services"`
	Routes   quotaRoutes   `json:"routes"`
}

type quotaListResponse struct {
	Pagination pagination      `json:"pagination"`
	Resources  []quotaResource `json:"resources"`
}

func (q quotaResource) toQuota() platform.Quota {
	quota := platform.Quota{
		GUID: q.GUID,
		Name: q.Name,
	}
	if q.Apps.TotalMemoryInMB != nil {
		quota.Limits.MemoryLimit = *q.Apps.TotalMemoryInMB
	}
	if q.Services.TotalServiceInstances != nil {
		quota.Limits.ServiceLimit = *q.Services.TotalServiceInstances
	}
	if q.Routes.TotalRoutes != nil {
		quota.Limits.RouteLimit = *q.Routes.TotalRoutes
	}
	return quota
}

type quotaRequest struct {
	Name          string              `json:"name,omitempty"`
	Apps          quotaApps           `json:"apps"`
	Services      quotaServices       `json:"services"`
	Routes        quotaRoutes         `json:"routes"`
	Relationships *quotaRelationships `json:"relationships,omitempty"`
}

type quotaRelationships struct {
	Organization relationship `json:"organization"`
}

func quotaRequestFromLimits(name string, limits platform.QuotaLimits, paidServices bool) quotaRequest {
	memory := limits.MemoryLimit
	services := limits.ServiceLimit
	routes := limits.RouteLimit
	return quotaRequest{
		Name:     name,
		Apps:     quotaApps{TotalMemoryInMB: &memory},
		Services: quotaServices{TotalServiceInstances: &services, PaidServicesAllowed: &paidServices},
		Routes:   quotaRoutes{TotalRoutes: &routes},
	}
}

type roleRelationships struct {
	User         relationship  `json:"user"`
	Organization *relationship `json:"organization,omitempty"`
	Space        *relationship `json:"space,omitempty"`
}

type createRoleRequest struct {
	Type          string            `json:"type"`
	Relationships roleRelationships `json:"relationships"`
}

type securityGroupResource struct {
	GUID string `json:"guid"`
	Name string `json:"name"`
}

type securityGroupListResponse struct {
	Pagination pagination              `json:"pagination"`
	Resources  []securityGroupResource `json:"resources"`
}

// apiError is one element of the cloud controller's error response body.
type apiError struct {
	Code   int    `json:"code"`
	Title  string `json:"title"`
	Detail string `json:"detail"`
}

type apiErrorResponse struct {
	Errors []apiError `json:"errors"`
}
