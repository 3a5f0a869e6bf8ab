package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/brightstay/brightstay-invites/internal/identity"
	"github.com/brightstay/brightstay-invites/internal/invites"
	"github.com/brightstay/brightstay-invites/internal/store"
)

// CurrentUserFunc resolves the authenticated user from the request context.
// The session middleware installs it; handlers stay decoupled from the
// middleware package.
type CurrentUserFunc func(ctx context.Context) *identity.User

// InviteHandler exposes the invitation engine over HTTP. The engine returns
// typed outcomes; this layer owns the mapping to status codes.
type InviteHandler struct {
	svc         *invites.Service
	currentUser CurrentUserFunc
}

// NewInviteHandler creates the invitation handler.
func NewInviteHandler(svc *invites.Service, currentUser CurrentUserFunc) *InviteHandler {
	return &InviteHandler{svc: svc, currentUser: currentUser}
}

// InvitationView is the serialized shape of an invitation.
type InvitationView struct {
	ID          string     `json:"id"`
	Token       string     `json:"token,omitempty"`
	Kind        store.Kind `json:"kind"`
	Status      string     `json:"status"`
	ResourceID  string     `json:"resource_id"`
	Role        string     `json:"role,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	ExpiresAt   time.Time  `json:"expires_at"`
	ClaimedAt   *time.Time `json:"claimed_at,omitempty"`
	PrefillName string     `json:"prefill_name,omitempty"`
	Message     string     `json:"message,omitempty"`
}

func invitationView(inv *store.Invitation, includeToken bool) InvitationView {
	v := InvitationView{
		ID:          inv.ID,
		Kind:        inv.Kind,
		Status:      string(inv.Status),
		ResourceID:  inv.ResourceID,
		Role:        inv.Role,
		CreatedAt:   inv.CreatedAt,
		ExpiresAt:   inv.ExpiresAt,
		ClaimedAt:   inv.ClaimedAt,
		PrefillName: inv.PrefillName,
		Message:     inv.Message,
	}
	if includeToken {
		v.Token = inv.Token
	}
	return v
}

// GrantView is the serialized shape of an access grant.
type GrantView struct {
	ID         string     `json:"id"`
	Kind       store.Kind `json:"kind"`
	ResourceID string     `json:"resource_id"`
	UserID     string     `json:"user_id"`
	Role       string     `json:"role"`
	Status     string     `json:"status"`
}

func grantView(g *store.AccessGrant) *GrantView {
	if g == nil {
		return nil
	}
	return &GrantView{
		ID:         g.ID,
		Kind:       g.Kind,
		ResourceID: g.ResourceID,
		UserID:     g.UserID,
		Role:       g.Role,
		Status:     string(g.Status),
	}
}

// IssueRequest is the request body for POST /api/invites.
type IssueRequest struct {
	Kind          string `json:"kind"`
	TeamID        string `json:"team_id,omitempty"`
	PropertyID    string `json:"property_id,omitempty"`
	WorkGroupID   string `json:"work_group_id,omitempty"`
	Role          string `json:"role,omitempty"`
	ExpiresInDays int    `json:"expires_in_days,omitempty"`
	PrefillName   string `json:"prefill_name,omitempty"`
	Message       string `json:"message,omitempty"`
}

// resourceID picks the id field matching the kind.
func (req *IssueRequest) resourceID() string {
	switch store.Kind(req.Kind) {
	case store.KindTeam:
		return req.TeamID
	case store.KindProperty:
		return req.PropertyID
	case store.KindWorkGroup:
		return req.WorkGroupID
	}
	return ""
}

// Issue handles POST /api/invites.
func (h *InviteHandler) Issue(w http.ResponseWriter, r *http.Request) {
	user := h.currentUser(r.Context())
	if user == nil {
		WriteUnauthorized(w, ReasonUnauthenticated, "authentication required")
		return
	}

	var req IssueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteBadRequest(w, ReasonBadRequest, "invalid JSON body")
		return
	}

	kind := store.Kind(req.Kind)
	if !store.ValidKind(kind) {
		WriteBadRequest(w, ReasonInvalidField, "kind must be team, property, or work_group")
		return
	}

	resourceID := req.resourceID()
	if resourceID == "" {
		WriteBadRequest(w, ReasonMissingField, "resource id required for kind "+req.Kind)
		return
	}

	inv, err := h.svc.Issue(r.Context(), invites.IssueRequest{
		Kind:          kind,
		ResourceID:    resourceID,
		Role:          req.Role,
		ExpiresInDays: req.ExpiresInDays,
		PrefillName:   req.PrefillName,
		Message:       req.Message,
	}, user)
	if err != nil {
		switch {
		case errors.Is(err, invites.ErrInvalidRole):
			WriteBadRequest(w, ReasonInvalidField, "role is not valid for this invitation kind")
		case errors.Is(err, invites.ErrResourceMissing):
			WriteNotFound(w, "resource not found")
		case errors.Is(err, invites.ErrIssuerForbidden):
			WriteForbidden(w, ReasonForbidden, "you may not issue invitations for this resource")
		case errors.Is(err, invites.ErrTokenGeneration):
			WriteError(w, http.StatusInternalServerError, ReasonTokenGenerationFailed, "could not generate a unique token")
		default:
			WriteInternalError(w, "failed to issue invitation")
		}
		return
	}

	WriteJSON(w, http.StatusCreated, invitationView(inv, true))
}

// InspectResponse is the public view of an invitation.
type InspectResponse struct {
	Status       string     `json:"status"`
	Kind         store.Kind `json:"kind"`
	ResourceName string     `json:"resource_name,omitempty"`
	Role         string     `json:"role,omitempty"`
	ExpiresAt    time.Time  `json:"expires_at"`
	PrefillName  string     `json:"prefill_name,omitempty"`
	Message      string     `json:"message,omitempty"`
}

// Inspect handles GET /api/invites/{invite}. Public: no principal data and
// no token echo, just what a landing page needs to render.
func (h *InviteHandler) Inspect(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "invite")

	inv, resource, err := h.svc.Inspect(r.Context(), token)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			WriteNotFound(w, "invitation not found")
			return
		}
		WriteInternalError(w, "failed to load invitation")
		return
	}

	resp := InspectResponse{
		Status:      string(inv.Status),
		Kind:        inv.Kind,
		Role:        inv.Role,
		ExpiresAt:   inv.ExpiresAt,
		PrefillName: inv.PrefillName,
		Message:     inv.Message,
	}
	if resource != nil {
		resp.ResourceName = resource.Name
	}

	WriteJSON(w, http.StatusOK, resp)
}

// ClaimResponse is the response for a claim attempt that reached a
// success outcome.
type ClaimResponse struct {
	Outcome    string         `json:"outcome"`
	Invitation InvitationView `json:"invitation"`
	Grant      *GrantView     `json:"grant,omitempty"`
}

// Claim handles POST /api/invites/{invite}/claim.
func (h *InviteHandler) Claim(w http.ResponseWriter, r *http.Request) {
	user := h.currentUser(r.Context())
	if user == nil {
		WriteUnauthorized(w, ReasonUnauthenticated, "authentication required")
		return
	}

	token := chi.URLParam(r, "invite")

	result, err := h.svc.Claim(r.Context(), token, user)
	if err != nil {
		WriteInternalError(w, "failed to claim invitation")
		return
	}

	if result.Outcome.Success() {
		WriteJSON(w, http.StatusOK, ClaimResponse{
			Outcome:    string(result.Outcome),
			Invitation: invitationView(result.Invitation, false),
			Grant:      grantView(result.Grant),
		})
		return
	}

	status, reason, message := claimRejection(result.Outcome)
	WriteError(w, status, reason, message)
}

// claimRejection maps a rejection outcome to its HTTP shape. The specific
// reason matters to the caller: it decides between "request a new invite"
// and "log in with a different account".
func claimRejection(o invites.Outcome) (int, string, string) {
	switch o {
	case invites.OutcomeNotFound:
		return http.StatusNotFound, ReasonNotFound, "invitation not found"
	case invites.OutcomeExpired:
		return http.StatusGone, ReasonExpired, "invitation has expired"
	case invites.OutcomeRevoked:
		return http.StatusGone, ReasonRevoked, "invitation was revoked"
	case invites.OutcomeAlreadyClaimedByOther:
		return http.StatusConflict, ReasonAlreadyClaimedByOther, "invitation was already claimed by another user"
	case invites.OutcomeAccessConflict:
		return http.StatusConflict, ReasonAccessConflict, "you already hold a different role for this resource"
	case invites.OutcomeRoleMismatch:
		return http.StatusForbidden, ReasonRoleMismatch, "your account type cannot redeem this invitation"
	case invites.OutcomeTenantMismatch:
		return http.StatusForbidden, ReasonTenantMismatch, "this invitation is not redeemable by your account"
	}
	return http.StatusInternalServerError, ReasonInternalError, "unexpected claim outcome"
}

// Revoke handles POST /api/invites/{invite}/revoke, where the path
// segment is the invitation id, not the token.
func (h *InviteHandler) Revoke(w http.ResponseWriter, r *http.Request) {
	user := h.currentUser(r.Context())
	if user == nil {
		WriteUnauthorized(w, ReasonUnauthenticated, "authentication required")
		return
	}

	id := chi.URLParam(r, "invite")

	outcome, err := h.svc.Revoke(r.Context(), id, user)
	if err != nil {
		WriteInternalError(w, "failed to revoke invitation")
		return
	}

	switch outcome {
	case invites.RevokeOK:
		WriteJSON(w, http.StatusOK, map[string]string{"status": "revoked"})
	case invites.RevokeNotFound:
		WriteNotFound(w, "invitation not found")
	case invites.RevokeForbidden:
		WriteForbidden(w, ReasonForbidden, "you may not revoke this invitation")
	case invites.RevokeClaimed:
		WriteError(w, http.StatusConflict, ReasonAlreadyClaimedByOther, "invitation was already claimed")
	case invites.RevokeExpired:
		WriteError(w, http.StatusGone, ReasonExpired, "invitation has already expired")
	default:
		WriteInternalError(w, "unexpected revoke outcome")
	}
}

// List handles GET /api/invites?kind=...&resource=...
func (h *InviteHandler) List(w http.ResponseWriter, r *http.Request) {
	user := h.currentUser(r.Context())
	if user == nil {
		WriteUnauthorized(w, ReasonUnauthenticated, "authentication required")
		return
	}

	kind := store.Kind(r.URL.Query().Get("kind"))
	resourceID := r.URL.Query().Get("resource")
	if !store.ValidKind(kind) || resourceID == "" {
		WriteBadRequest(w, ReasonMissingField, "kind and resource query parameters required")
		return
	}

	invs, err := h.svc.List(r.Context(), kind, resourceID, user)
	if err != nil {
		writeListError(w, err)
		return
	}

	views := make([]InvitationView, 0, len(invs))
	for _, inv := range invs {
		views = append(views, invitationView(inv, true))
	}

	WriteJSON(w, http.StatusOK, map[string]any{"invitations": views})
}

// ListGrants handles GET /api/grants?kind=...&resource=...
func (h *InviteHandler) ListGrants(w http.ResponseWriter, r *http.Request) {
	user := h.currentUser(r.Context())
	if user == nil {
		WriteUnauthorized(w, ReasonUnauthenticated, "authentication required")
		return
	}

	kind := store.Kind(r.URL.Query().Get("kind"))
	resourceID := r.URL.Query().Get("resource")
	if !store.ValidKind(kind) || resourceID == "" {
		WriteBadRequest(w, ReasonMissingField, "kind and resource query parameters required")
		return
	}

	grants, err := h.svc.Grants(r.Context(), kind, resourceID, user)
	if err != nil {
		writeListError(w, err)
		return
	}

	views := make([]*GrantView, 0, len(grants))
	for _, g := range grants {
		views = append(views, grantView(g))
	}

	WriteJSON(w, http.StatusOK, map[string]any{"grants": views})
}

func writeListError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, invites.ErrResourceMissing):
		WriteNotFound(w, "resource not found")
	case errors.Is(err, invites.ErrIssuerForbidden):
		WriteForbidden(w, ReasonForbidden, "you may not view this resource")
	default:
		WriteInternalError(w, "failed to list")
	}
}
