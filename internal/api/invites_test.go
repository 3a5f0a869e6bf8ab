package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/brightstay/brightstay-invites/internal/directory"
	"github.com/brightstay/brightstay-invites/internal/identity"
	"github.com/brightstay/brightstay-invites/internal/invites"
	"github.com/brightstay/brightstay-invites/internal/store"
	_ "github.com/brightstay/brightstay-invites/internal/store/json"
	"github.com/brightstay/brightstay-invites/internal/store/testutil"
)

var (
	testHost    = &identity.User{ID: "host-1", Role: identity.RoleHost, TenantID: "tenant-1", Status: identity.UserActive}
	testCleaner = &identity.User{ID: "cln-1", Role: identity.RoleCleaner, TenantID: "tenant-1", Status: identity.UserActive}
)

// inviteTestEnv routes requests through a real service and store. The
// acting user is swapped per request instead of running session auth.
type inviteTestEnv struct {
	router *chi.Mux
	user   *identity.User
}

func newInviteTestEnv(t *testing.T) *inviteTestEnv {
	t.Helper()

	d := testutil.NewTestDriver(t, "json")
	engineStore, ok := d.(invites.Store)
	if !ok {
		t.Fatal("json driver does not implement the invitation store surface")
	}

	registry := directory.NewMemoryRegistry()
	registry.AddTenant(&directory.Tenant{ID: "tenant-1", Name: "Tenant One"})
	registry.AddResource(&directory.Resource{ID: "team-1", Kind: store.KindTeam, TenantID: "tenant-1", Name: "Housekeeping"})
	registry.AddResource(&directory.Resource{ID: "prop-1", Kind: store.KindProperty, TenantID: "tenant-1", Name: "Seaside Flat"})

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := invites.NewService(engineStore, registry, logger)

	env := &inviteTestEnv{}
	handler := NewInviteHandler(svc, func(ctx context.Context) *identity.User {
		return env.user
	})

	r := chi.NewRouter()
	r.Route("/api/invites", func(r chi.Router) {
		r.Post("/", handler.Issue)
		r.Get("/", handler.List)
		r.Get("/{invite}", handler.Inspect)
		r.Post("/{invite}/claim", handler.Claim)
		r.Post("/{invite}/revoke", handler.Revoke)
	})
	r.Get("/api/grants", handler.ListGrants)
	env.router = r
	return env
}

func (env *inviteTestEnv) do(t *testing.T, user *identity.User, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	env.user = user
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	return rec
}

func (env *inviteTestEnv) issue(t *testing.T, body map[string]any) InvitationView {
	t.Helper()

	rec := env.do(t, testHost, http.MethodPost, "/api/invites", body)
	if rec.Code != http.StatusCreated {
		t.Fatalf("issue: status = %d: %s", rec.Code, rec.Body.String())
	}
	var view InvitationView
	if err := json.Unmarshal(rec.Body.Bytes(), &view); err != nil {
		t.Fatalf("decode issue response: %v", err)
	}
	return view
}

func decodeReason(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()

	var env ErrorEnvelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode error envelope: %v", err)
	}
	return env.Error.ReasonCode
}

func TestIssueValidation(t *testing.T) {
	env := newInviteTestEnv(t)

	tests := []struct {
		name       string
		user       *identity.User
		body       map[string]any
		wantStatus int
		wantReason string
	}{
		{"no session", nil, map[string]any{"kind": "team", "team_id": "team-1"}, http.StatusUnauthorized, ReasonUnauthenticated},
		{"bad kind", testHost, map[string]any{"kind": "castle", "team_id": "team-1"}, http.StatusBadRequest, ReasonInvalidField},
		{"missing resource id", testHost, map[string]any{"kind": "team"}, http.StatusBadRequest, ReasonMissingField},
		{"mismatched id field", testHost, map[string]any{"kind": "team", "property_id": "prop-1"}, http.StatusBadRequest, ReasonMissingField},
		{"unknown resource", testHost, map[string]any{"kind": "team", "team_id": "team-404"}, http.StatusNotFound, ReasonNotFound},
		{"bad property role", testHost, map[string]any{"kind": "property", "property_id": "prop-1", "role": "owner"}, http.StatusBadRequest, ReasonInvalidField},
		{"cleaner cannot issue", testCleaner, map[string]any{"kind": "team", "team_id": "team-1"}, http.StatusForbidden, ReasonForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, tt.user, http.MethodPost, "/api/invites", tt.body)
			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d: %s", rec.Code, tt.wantStatus, rec.Body.String())
			}
			if reason := decodeReason(t, rec); reason != tt.wantReason {
				t.Errorf("reason = %s, want %s", reason, tt.wantReason)
			}
		})
	}
}

func TestIssueReturnsToken(t *testing.T) {
	env := newInviteTestEnv(t)

	view := env.issue(t, map[string]any{"kind": "team", "team_id": "team-1", "prefill_name": "Ana"})
	if view.Token == "" {
		t.Error("issue response has no token")
	}
	if view.Status != "pending" || view.Kind != store.KindTeam || view.PrefillName != "Ana" {
		t.Errorf("view = %+v", view)
	}
}

func TestInspectShape(t *testing.T) {
	env := newInviteTestEnv(t)
	view := env.issue(t, map[string]any{"kind": "property", "property_id": "prop-1", "role": "cleaner", "message": "welcome"})

	rec := env.do(t, nil, http.MethodGet, "/api/invites/"+view.Token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("inspect: status = %d", rec.Code)
	}

	var resp map[string]any
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp["resource_name"] != "Seaside Flat" || resp["role"] != "cleaner" || resp["message"] != "welcome" {
		t.Errorf("inspect body = %v", resp)
	}
	for _, hidden := range []string{"token", "id", "resource_id"} {
		if _, ok := resp[hidden]; ok {
			t.Errorf("inspect response leaks %q", hidden)
		}
	}
}

func TestInspectUnknownToken(t *testing.T) {
	env := newInviteTestEnv(t)

	rec := env.do(t, nil, http.MethodGet, "/api/invites/missing", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestClaimStatusMapping(t *testing.T) {
	env := newInviteTestEnv(t)

	// Claimed by the cleaner, then re-attempted by the host.
	view := env.issue(t, map[string]any{"kind": "team", "team_id": "team-1"})
	if rec := env.do(t, testCleaner, http.MethodPost, "/api/invites/"+view.Token+"/claim", nil); rec.Code != http.StatusOK {
		t.Fatalf("claim: status = %d: %s", rec.Code, rec.Body.String())
	}

	rec := env.do(t, testHost, http.MethodPost, "/api/invites/"+view.Token+"/claim", nil)
	if rec.Code != http.StatusConflict {
		t.Errorf("claim by other: status = %d, want 409", rec.Code)
	}
	if reason := decodeReason(t, rec); reason != ReasonAlreadyClaimedByOther {
		t.Errorf("reason = %s", reason)
	}

	// Revoked invitations are gone.
	view = env.issue(t, map[string]any{"kind": "team", "team_id": "team-1"})
	if rec := env.do(t, testHost, http.MethodPost, "/api/invites/"+view.ID+"/revoke", nil); rec.Code != http.StatusOK {
		t.Fatalf("revoke: status = %d: %s", rec.Code, rec.Body.String())
	}
	rec = env.do(t, testCleaner, http.MethodPost, "/api/invites/"+view.Token+"/claim", nil)
	if rec.Code != http.StatusGone {
		t.Errorf("claim revoked: status = %d, want 410", rec.Code)
	}
	if reason := decodeReason(t, rec); reason != ReasonRevoked {
		t.Errorf("reason = %s", reason)
	}

	// A property invitation for a cleaner cannot be redeemed by a host.
	view = env.issue(t, map[string]any{"kind": "property", "property_id": "prop-1", "role": "cleaner"})
	rec = env.do(t, testHost, http.MethodPost, "/api/invites/"+view.Token+"/claim", nil)
	if rec.Code != http.StatusForbidden {
		t.Errorf("role mismatch: status = %d, want 403", rec.Code)
	}
	if reason := decodeReason(t, rec); reason != ReasonRoleMismatch {
		t.Errorf("reason = %s", reason)
	}

	rec = env.do(t, testCleaner, http.MethodPost, "/api/invites/missing/claim", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown token: status = %d, want 404", rec.Code)
	}
}

func TestClaimIdempotentReplay(t *testing.T) {
	env := newInviteTestEnv(t)
	view := env.issue(t, map[string]any{"kind": "team", "team_id": "team-1"})

	for i := 0; i < 2; i++ {
		rec := env.do(t, testCleaner, http.MethodPost, "/api/invites/"+view.Token+"/claim", nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("claim %d: status = %d: %s", i+1, rec.Code, rec.Body.String())
		}
	}

	rec := env.do(t, testCleaner, http.MethodPost, "/api/invites/"+view.Token+"/claim", nil)
	var resp ClaimResponse
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.Outcome != string(invites.OutcomeAlreadyClaimedBySelf) {
		t.Errorf("replay outcome = %s", resp.Outcome)
	}
}

func TestRevokeStatusMapping(t *testing.T) {
	env := newInviteTestEnv(t)
	view := env.issue(t, map[string]any{"kind": "team", "team_id": "team-1"})

	// Repeat revocation stays 200.
	for i := 0; i < 2; i++ {
		rec := env.do(t, testHost, http.MethodPost, "/api/invites/"+view.ID+"/revoke", nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("revoke %d: status = %d: %s", i+1, rec.Code, rec.Body.String())
		}
	}

	rec := env.do(t, testHost, http.MethodPost, "/api/invites/no-such-id/revoke", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown id: status = %d, want 404", rec.Code)
	}

	rec = env.do(t, testCleaner, http.MethodPost, "/api/invites/"+view.ID+"/revoke", nil)
	if rec.Code != http.StatusForbidden {
		t.Errorf("cleaner revoke: status = %d, want 403", rec.Code)
	}
}

func TestListAndGrants(t *testing.T) {
	env := newInviteTestEnv(t)
	view := env.issue(t, map[string]any{"kind": "team", "team_id": "team-1"})
	env.do(t, testCleaner, http.MethodPost, "/api/invites/"+view.Token+"/claim", nil)

	rec := env.do(t, testHost, http.MethodGet, "/api/invites?kind=team&resource=team-1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list: status = %d: %s", rec.Code, rec.Body.String())
	}
	var listed struct {
		Invitations []InvitationView `json:"invitations"`
	}
	json.Unmarshal(rec.Body.Bytes(), &listed)
	if len(listed.Invitations) != 1 || listed.Invitations[0].Status != "claimed" {
		t.Errorf("invitations = %+v", listed.Invitations)
	}

	rec = env.do(t, testHost, http.MethodGet, "/api/grants?kind=team&resource=team-1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("grants: status = %d: %s", rec.Code, rec.Body.String())
	}
	var grants struct {
		Grants []GrantView `json:"grants"`
	}
	json.Unmarshal(rec.Body.Bytes(), &grants)
	if len(grants.Grants) != 1 || grants.Grants[0].UserID != "cln-1" {
		t.Errorf("grants = %+v", grants.Grants)
	}

	// Missing query parameters are a client error.
	rec = env.do(t, testHost, http.MethodGet, "/api/invites?kind=team", nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("missing resource param: status = %d, want 400", rec.Code)
	}

	// The cleaner may not browse the roster.
	rec = env.do(t, testCleaner, http.MethodGet, "/api/invites?kind=team&resource=team-1", nil)
	if rec.Code != http.StatusForbidden {
		t.Errorf("cleaner list: status = %d, want 403", rec.Code)
	}
}
