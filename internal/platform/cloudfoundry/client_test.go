package cloudfoundry

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"github.com/wolfeidau/sandboxd/internal/platform"
)

// newTestClient stands up a server that issues tokens at /oauth/token and
// hands every other request to next.
func newTestClient(t *testing.T, scopes []string, next http.HandlerFunc) *Client {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/token", func(w http.ResponseWriter, r *http.Request) {
		token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
			"client_id": "sandboxd-client",
			"scope":     scopes,
			"exp":       time.Now().Add(time.Hour).Unix(),
		})
		signed, err := token.SignedString([]byte("test-secret"))
		require.NoError(t, err)

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token": signed,
			"token_type":   "bearer",
			"expires_in":   3600,
		})
	})
	if next != nil {
		mux.HandleFunc("/", next)
	}

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	client, err := New(context.Background(), Config{
		APIURL:       server.URL,
		UAAURL:       server.URL,
		ClientID:     "sandboxd-client",
		ClientSecret: "secret",
		PageSize:     2,
	})
	require.NoError(t, err)

	return client
}

func writeJSON(t *testing.T, w http.ResponseWriter, status int, body string) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, err := w.Write([]byte(body))
	require.NoError(t, err)
}

func TestPreflight(t *testing.T) {
	client := newTestClient(t, []string{"uaa.resource", AdminScope}, nil)
	require.NoError(t, client.Preflight(context.Background()))
}

func TestPreflight_MissingAdminScope(t *testing.T) {
	client := newTestClient(t, []string{"uaa.resource"}, nil)

	err := client.Preflight(context.Background())
	require.Error(t, err)
	require.True(t, platform.IsAuth(err))
	require.Contains(t, err.Error(), AdminScope)
}

func TestListUsersDesc(t *testing.T) {
	client := newTestClient(t, []string{AdminScope}, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v3/users", r.URL.Path)
		require.Equal(t, "-created_at", r.URL.Query().Get("order_by"))
		require.Equal(t, "2", r.URL.Query().Get("per_page"))

		switch r.URL.Query().Get("page") {
		case "1":
			writeJSON(t, w, http.StatusOK, `{
				"pagination": {"total_results": 3, "total_pages": 2},
				"resources": [
					{"guid": "u-3", "username": "carol@test.gov", "created_at": "2026-08-30T03:00:00Z"},
					{"guid": "u-2", "username": "bob@test.gov", "created_at": "2026-08-30T02:00:00Z"}
				]
			}`)
		case "2":
			writeJSON(t, w, http.StatusOK, `{
				"pagination": {"total_results": 3, "total_pages": 2},
				"resources": [
					{"guid": "u-1", "username": "alice@test.gov", "created_at": "2026-08-30T01:00:00Z"}
				]
			}`)
		default:
			t.Fatalf("unexpected page %q", r.URL.Query().Get("page"))
		}
	})

	ctx := context.Background()

	page1, more, err := client.ListUsersDesc(ctx, 1)
	require.NoError(t, err)
	require.True(t, more)
	require.Len(t, page1, 2)
	require.Equal(t, "carol@test.gov", page1[0].Username)
	require.Equal(t, time.Date(2026, 8, 30, 3, 0, 0, 0, time.UTC), page1[0].CreatedAt)

	page2, more, err := client.ListUsersDesc(ctx, 2)
	require.NoError(t, err)
	require.False(t, more)
	require.Len(t, page2, 1)
	require.Equal(t, "alice@test.gov", page2[0].Username)
}

func TestGetOrganizationByName(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		wantGUID string
		checkErr func(error) bool
	}{
		{
			name: "single match",
			body: `{
				"pagination": {"total_results": 1, "total_pages": 1},
				"resources": [{
					"guid": "org-1", "name": "sandbox-state",
					"relationships": {"quota": {"data": {"guid": "quota-1"}}}
				}]
			}`,
			wantGUID: "org-1",
		},
		{
			name:     "no match",
			body:     `{"pagination": {"total_results": 0, "total_pages": 1}, "resources": []}`,
			checkErr: platform.IsNotFound,
		},
		{
			name: "ambiguous",
			body: `{
				"pagination": {"total_results": 2, "total_pages": 1},
				"resources": [
					{"guid": "org-1", "name": "sandbox-state", "relationships": {"quota": {"data": null}}},
					{"guid": "org-2", "name": "sandbox-state", "relationships": {"quota": {"data": null}}}
				]
			}`,
			checkErr: platform.IsAmbiguousMatch,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			client := newTestClient(t, []string{AdminScope}, func(w http.ResponseWriter, r *http.Request) {
				require.Equal(t, "/v3/organizations", r.URL.Path)
				require.Equal(t, "sandbox-state", r.URL.Query().Get("names"))
				writeJSON(t, w, http.StatusOK, tc.body)
			})

			org, err := client.GetOrganizationByName(context.Background(), "sandbox-state")
			if tc.checkErr != nil {
				require.Error(t, err)
				require.True(t, tc.checkErr(err))
				return
			}

			require.NoError(t, err)
			require.Equal(t, tc.wantGUID, org.GUID)
			require.Equal(t, "quota-1", org.QuotaGUID)
		})
	}
}

func TestCreateOrganization(t *testing.T) {
	client := newTestClient(t, []string{AdminScope}, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/v3/organizations", r.URL.Path)

		var req createOrgRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, "sandbox-state", req.Name)
		require.Equal(t, "quota-1", req.Relationships.Quota.Data.GUID)

		writeJSON(t, w, http.StatusCreated, `{
			"guid": "org-1", "name": "sandbox-state",
			"relationships": {"quota": {"data": {"guid": "quota-1"}}}
		}`)
	})

	org, err := client.CreateOrganization(context.Background(), "sandbox-state", "quota-1")
	require.NoError(t, err)
	require.Equal(t, "org-1", org.GUID)
	require.Equal(t, "quota-1", org.QuotaGUID)
}

func TestCreateOrganizationQuota_Payload(t *testing.T) {
	client := newTestClient(t, []string{AdminScope}, func(w http.ResponseWriter, r *http.Request) {
		var req quotaRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, "sandbox-state", req.Name)
		require.Equal(t, 1024, *req.Apps.TotalMemoryInMB)
		require.Equal(t, 10, *req.Services.TotalServiceInstances)
		require.Equal(t, 10, *req.Routes.TotalRoutes)
		require.False(t, *req.Services.PaidServicesAllowed)

		writeJSON(t, w, http.StatusCreated, `{
			"guid": "quota-1", "name": "sandbox-state",
			"apps": {"total_memory_in_mb": 1024},
			"services": {"total_service_instances": 10},
			"routes": {"total_routes": 10}
		}`)
	})

	quota, err := client.CreateOrganizationQuota(context.Background(), "sandbox-state",
		platform.QuotaLimits{MemoryLimit: 1024, RouteLimit: 10, ServiceLimit: 10})
	require.NoError(t, err)
	require.Equal(t, "quota-1", quota.GUID)
	require.Equal(t, platform.QuotaLimits{MemoryLimit: 1024, RouteLimit: 10, ServiceLimit: 10}, quota.Limits)
}

func TestUpdateOrganizationQuota_AllowsPaidServices(t *testing.T) {
	client := newTestClient(t, []string{AdminScope}, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPatch, r.Method)
		require.Equal(t, "/v3/organization_quotas/quota-1", r.URL.Path)

		var req quotaRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.True(t, *req.Services.PaidServicesAllowed)
		require.Equal(t, 2048, *req.Apps.TotalMemoryInMB)

		writeJSON(t, w, http.StatusOK, `{
			"guid": "quota-1", "name": "sandbox-state",
			"apps": {"total_memory_in_mb": 2048},
			"services": {"total_service_instances": 20},
			"routes": {"total_routes": 20}
		}`)
	})

	quota, err := client.UpdateOrganizationQuota(context.Background(), "quota-1",
		platform.QuotaLimits{MemoryLimit: 2048, RouteLimit: 20, ServiceLimit: 20})
	require.NoError(t, err)
	require.Equal(t, 2048, quota.Limits.MemoryLimit)
}

func TestAssignRole_DuplicateIsSuccess(t *testing.T) {
	client := newTestClient(t, []string{AdminScope}, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v3/roles", r.URL.Path)
		writeJSON(t, w, http.StatusUnprocessableEntity, `{
			"errors": [{"code": 10008, "title": "CF-UnprocessableEntity",
				"detail": "User 'alice' already has 'space_developer' role"}]
		}`)
	})

	err := client.AssignRole(context.Background(), platform.RoleSpaceDeveloper, "u-1", "space-1")
	require.NoError(t, err)
}

func TestAssignRole_OtherValidationErrorSurfaced(t *testing.T) {
	client := newTestClient(t, []string{AdminScope}, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, http.StatusUnprocessableEntity, `{
			"errors": [{"code": 10008, "title": "CF-UnprocessableEntity",
				"detail": "Invalid role type 'space_wizard'"}]
		}`)
	})

	err := client.AssignRole(context.Background(), platform.RoleKind("space_wizard"), "u-1", "space-1")
	require.Error(t, err)
	require.Equal(t, platform.KindValidation, platform.KindOf(err))
	require.Contains(t, err.Error(), "space_wizard")
}

func TestAssignRole_ScopeRelationship(t *testing.T) {
	var captured createRoleRequest
	client := newTestClient(t, []string{AdminScope}, func(w http.ResponseWriter, r *http.Request) {
		var req createRoleRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		captured = req
		writeJSON(t, w, http.StatusCreated, `{"guid": "role-1"}`)
	})

	require.NoError(t, client.AssignRole(context.Background(), platform.RoleOrgUser, "u-1", "org-1"))
	require.NotNil(t, captured.Relationships.Organization)
	require.Nil(t, captured.Relationships.Space)
	require.Equal(t, "org-1", captured.Relationships.Organization.Data.GUID)

	require.NoError(t, client.AssignRole(context.Background(), platform.RoleSpaceManager, "u-1", "space-1"))
	require.NotNil(t, captured.Relationships.Space)
	require.Nil(t, captured.Relationships.Organization)
	require.Equal(t, "space-1", captured.Relationships.Space.Data.GUID)
}

func TestBindSecurityGroup(t *testing.T) {
	client := newTestClient(t, []string{AdminScope}, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/v3/security_groups":
			require.Equal(t, "public-egress", r.URL.Query().Get("names"))
			writeJSON(t, w, http.StatusOK, `{
				"pagination": {"total_results": 1, "total_pages": 1},
				"resources": [{"guid": "sg-1", "name": "public-egress"}]
			}`)
		case r.Method == http.MethodPost && r.URL.Path == "/v3/security_groups/sg-1/relationships/running_spaces":
			var req toManyRelationship
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			require.Equal(t, "space-1", req.Data[0].GUID)
			writeJSON(t, w, http.StatusOK, `{"data": [{"guid": "space-1"}]}`)
		default:
			t.Fatalf("unexpected request %s %s", r.Method, r.URL.Path)
		}
	})

	require.NoError(t, client.BindSecurityGroup(context.Background(), "public-egress", "space-1"))
}

func TestGet_RetriesTransientFailure(t *testing.T) {
	var attempts atomic.Int32
	client := newTestClient(t, []string{AdminScope}, func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) == 1 {
			writeJSON(t, w, http.StatusBadGateway, `{"errors": [{"title": "CF-BadGateway", "detail": "upstream blip"}]}`)
			return
		}
		writeJSON(t, w, http.StatusOK, `{
			"pagination": {"total_results": 0, "total_pages": 1},
			"resources": []
		}`)
	})

	users, more, err := client.ListUsersDesc(context.Background(), 1)
	require.NoError(t, err)
	require.False(t, more)
	require.Empty(t, users)
	require.Equal(t, int32(2), attempts.Load())
}

func TestGet_DoesNotRetryPermanentFailure(t *testing.T) {
	var attempts atomic.Int32
	client := newTestClient(t, []string{AdminScope}, func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		writeJSON(t, w, http.StatusForbidden, `{"errors": [{"title": "CF-NotAuthorized", "detail": "You are not authorized"}]}`)
	})

	_, _, err := client.ListUsersDesc(context.Background(), 1)
	require.Error(t, err)
	require.True(t, platform.IsAuth(err))
	require.Equal(t, int32(1), attempts.Load())
}

func TestErrorKindMapping(t *testing.T) {
	tests := []struct {
		status int
		want   platform.ErrorKind
	}{
		{http.StatusUnauthorized, platform.KindAuth},
		{http.StatusForbidden, platform.KindAuth},
		{http.StatusNotFound, platform.KindNotFound},
		{http.StatusConflict, platform.KindConflict},
		{http.StatusUnprocessableEntity, platform.KindValidation},
		{http.StatusInternalServerError, platform.KindTransient},
		{http.StatusBadRequest, platform.KindUnknown},
	}

	for _, tc := range tests {
		t.Run(fmt.Sprintf("status_%d", tc.status), func(t *testing.T) {
			client := newTestClient(t, []string{AdminScope}, func(w http.ResponseWriter, r *http.Request) {
				writeJSON(t, w, tc.status, `{"errors": [{"title": "CF-Error", "detail": "nope"}]}`)
			})

			_, err := client.CreateSpace(context.Background(), "alice", "org-1")
			require.Error(t, err)
			require.Equal(t, tc.want, platform.KindOf(err))
			require.Contains(t, err.Error(), fmt.Sprintf("status %d", tc.status))
		})
	}
}

func TestNew_RequiresConfiguration(t *testing.T) {
	_, err := New(context.Background(), Config{UAAURL: "https://uaa.test"})
	require.Error(t, err)

	_, err = New(context.Background(), Config{APIURL: "https://api.test", UAAURL: "https://uaa.test", ClientID: "id"})
	require.Error(t, err)
}
