// Package invites implements the invitation claiming engine: issuing,
// inspecting, claiming, and revoking single-use time-bounded invitations,
// with idempotent provisioning of the access they promise.
package invites

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/brightstay/brightstay-invites/internal/directory"
	"github.com/brightstay/brightstay-invites/internal/identity"
	"github.com/brightstay/brightstay-invites/internal/store"
)

// Errors surfaced by Issue and List. Claim and Revoke report through typed
// outcomes instead; see outcome.go.
var (
	ErrUnknownKind     = errors.New("unknown invitation kind")
	ErrInvalidRole     = errors.New("invalid role for invitation kind")
	ErrResourceMissing = errors.New("resource not found")
	ErrIssuerForbidden = errors.New("issuer may not invite for this resource")
	ErrClaimContention = errors.New("claim did not settle within the retry budget")
)

// Expiry bounds for expires_in_days.
const (
	minExpiresDays     = 1
	maxExpiresDays     = 30
	defaultExpiresDays = 7
)

// maxClaimPasses bounds the read-evaluate-write loop under contention.
// Losing the conditional write normally settles on the very next read;
// the bound only guards against pathological interleavings.
const maxClaimPasses = 3

// Store is the persistence surface the engine needs.
type Store interface {
	store.InvitationStore
	store.AccessStore
}

// Service composes the token generator, status resolver, claim orchestrator
// and access provisioner behind issue/inspect/claim/revoke calls.
type Service struct {
	store    Store
	registry directory.Registry
	log      *slog.Logger
	variants map[store.Kind]Variant

	// Overridable for tests.
	now      func() time.Time
	newToken func() (string, error)
}

// NewService creates the engine over the given store and directory.
func NewService(s Store, registry directory.Registry, log *slog.Logger) *Service {
	return &Service{
		store:    s,
		registry: registry,
		log:      log.With("component", "invites"),
		variants: defaultVariants(),
		now:      time.Now,
		newToken: generateToken,
	}
}

// IssueRequest describes a new invitation.
type IssueRequest struct {
	Kind          store.Kind
	ResourceID    string
	Role          string // property invitations only; others derive it
	ExpiresInDays int    // clamped to [1, 30]; 0 means the 7-day default
	PrefillName   string
	Message       string
}

// Issue creates a pending invitation for the resource. The issuer must be
// allowed to invite and must belong to the tenant that owns the resource.
// Token collisions are retried up to the budget; exhausting it returns
// ErrTokenGeneration.
func (s *Service) Issue(ctx context.Context, req IssueRequest, issuer *identity.User) (*store.Invitation, error) {
	variant, ok := s.variants[req.Kind]
	if !ok {
		return nil, ErrUnknownKind
	}

	role, ok := variant.ValidateIssue(req.Role)
	if !ok {
		return nil, ErrInvalidRole
	}

	resource, err := s.registry.GetResource(ctx, req.Kind, req.ResourceID)
	if err != nil {
		if errors.Is(err, directory.ErrResourceNotFound) {
			return nil, ErrResourceMissing
		}
		return nil, fmt.Errorf("resolve resource: %w", err)
	}

	if !issuer.CanIssueInvites() {
		return nil, ErrIssuerForbidden
	}
	if !issuer.IsAdmin() && issuer.TenantID != resource.TenantID {
		return nil, ErrIssuerForbidden
	}

	days := req.ExpiresInDays
	if days == 0 {
		days = defaultExpiresDays
	}
	if days < minExpiresDays {
		days = minExpiresDays
	}
	if days > maxExpiresDays {
		days = maxExpiresDays
	}

	now := s.now()
	inv := &store.Invitation{
		ID:              uuid.NewString(),
		Kind:            req.Kind,
		Status:          store.StatusPending,
		ResourceID:      req.ResourceID,
		Role:            role,
		IssuingTenantID: resource.TenantID,
		CreatedByUserID: issuer.ID,
		CreatedAt:       now,
		ExpiresAt:       now.Add(time.Duration(days) * 24 * time.Hour),
		PrefillName:     req.PrefillName,
		Message:         req.Message,
	}

	for attempt := 1; attempt <= maxTokenAttempts; attempt++ {
		token, err := s.newToken()
		if err != nil {
			return nil, fmt.Errorf("generate token: %w", err)
		}
		inv.Token = token

		err = s.store.CreateInvitation(ctx, inv)
		if err == nil {
			s.log.Info("invitation issued",
				"invitation_id", inv.ID,
				"kind", inv.Kind,
				"resource_id", inv.ResourceID,
				"expires_at", inv.ExpiresAt)
			return inv, nil
		}
		if !errors.Is(err, store.ErrAlreadyExists) {
			return nil, fmt.Errorf("create invitation: %w", err)
		}
		s.log.Warn("invitation token collision, regenerating", "attempt", attempt)
	}

	return nil, ErrTokenGeneration
}

// Inspect returns the invitation for display with its effective status,
// plus the target resource when it still resolves. The only write is the
// best-effort persistence of an observed expiry.
func (s *Service) Inspect(ctx context.Context, token string) (*store.Invitation, *directory.Resource, error) {
	inv, err := s.store.GetInvitationByToken(ctx, token)
	if err != nil {
		return nil, nil, err
	}

	s.settleExpiry(ctx, inv)

	resource, err := s.registry.GetResource(ctx, inv.Kind, inv.ResourceID)
	if err != nil {
		// Display-only; the invitation is still inspectable.
		resource = nil
	}

	return inv, resource, nil
}

// settleExpiry folds lazy expiry into inv.Status and persists the
// transition best-effort when it is first observed. Safe to race: the
// store-side guard makes the write a no-op for non-pending rows.
func (s *Service) settleExpiry(ctx context.Context, inv *store.Invitation) {
	eff := inv.EffectiveStatus(s.now())
	if eff == store.StatusExpired && inv.Status == store.StatusPending {
		if _, err := s.store.MarkExpired(ctx, inv.ID); err != nil {
			s.log.Warn("failed to persist expiry", "invitation_id", inv.ID, "error", err)
		}
	}
	inv.Status = eff
}

// Claim redeems the invitation for the principal. The state transition is a
// conditional write guarded by the stored status; losing it triggers a
// re-read and re-evaluation rather than an assumed failure reason.
func (s *Service) Claim(ctx context.Context, token string, principal *identity.User) (*ClaimResult, error) {
	for pass := 0; pass < maxClaimPasses; pass++ {
		inv, err := s.store.GetInvitationByToken(ctx, token)
		if errors.Is(err, store.ErrNotFound) {
			return &ClaimResult{Outcome: OutcomeNotFound}, nil
		}
		if err != nil {
			return nil, fmt.Errorf("load invitation: %w", err)
		}

		variant := s.variants[inv.Kind]
		if variant == nil {
			return nil, fmt.Errorf("%w: %s", ErrUnknownKind, inv.Kind)
		}

		switch inv.EffectiveStatus(s.now()) {
		case store.StatusExpired:
			s.settleExpiry(ctx, inv)
			return &ClaimResult{Outcome: OutcomeExpired, Invitation: inv}, nil

		case store.StatusRevoked:
			return &ClaimResult{Outcome: OutcomeRevoked, Invitation: inv}, nil

		case store.StatusClaimed:
			if inv.ClaimedByUserID != principal.ID {
				return &ClaimResult{Outcome: OutcomeAlreadyClaimedByOther, Invitation: inv}, nil
			}
			// Idempotent self-reclaim: re-run provisioning so a crash
			// between the claim write and the grant still converges.
			grant, err := s.store.EnsureGrant(ctx, variant.NewGrant(inv, principal))
			if errors.Is(err, store.ErrRoleConflict) {
				return &ClaimResult{Outcome: OutcomeAccessConflict, Invitation: inv}, nil
			}
			if err != nil {
				return nil, fmt.Errorf("re-provision access: %w", err)
			}
			return &ClaimResult{Outcome: OutcomeAlreadyClaimedBySelf, Invitation: inv, Grant: grant}, nil
		}

		// Still pending: validate eligibility before touching state.
		if out := s.validateTenant(ctx, inv); out != "" {
			return &ClaimResult{Outcome: out, Invitation: inv}, nil
		}
		if out := variant.Validate(inv, principal); out != "" {
			return &ClaimResult{Outcome: out, Invitation: inv}, nil
		}

		var grant *store.AccessGrant
		claimedAt := s.now()
		claimed, err := s.store.ClaimInvitation(ctx, token, principal.ID, claimedAt,
			func(ctx context.Context, access store.AccessStore) error {
				g, err := access.EnsureGrant(ctx, variant.NewGrant(inv, principal))
				if err != nil {
					return err
				}
				grant = g
				return nil
			})
		if errors.Is(err, store.ErrRoleConflict) {
			// The whole transaction rolled back; the invitation is still
			// pending and redeemable by a compatible principal.
			return &ClaimResult{Outcome: OutcomeAccessConflict, Invitation: inv}, nil
		}
		if err != nil {
			return nil, fmt.Errorf("claim invitation: %w", err)
		}

		if claimed {
			inv.Status = store.StatusClaimed
			inv.ClaimedByUserID = principal.ID
			inv.ClaimedAt = &claimedAt
			s.log.Info("invitation claimed",
				"invitation_id", inv.ID,
				"kind", inv.Kind,
				"resource_id", inv.ResourceID)
			return &ClaimResult{Outcome: OutcomeClaimed, Invitation: inv, Grant: grant}, nil
		}

		// Zero rows matched: a competing writer got there first, but it
		// may have claimed, expired, or revoked the row. Re-read and
		// re-evaluate instead of assuming.
	}

	return nil, ErrClaimContention
}

// validateTenant re-checks resource ownership and tenant standing at claim
// time; both can change between issue and claim.
func (s *Service) validateTenant(ctx context.Context, inv *store.Invitation) Outcome {
	resource, err := s.registry.GetResource(ctx, inv.Kind, inv.ResourceID)
	if err != nil || resource.TenantID != inv.IssuingTenantID {
		return OutcomeTenantMismatch
	}

	tenant, err := s.registry.GetTenant(ctx, resource.TenantID)
	if err != nil || tenant.Status != directory.TenantActive {
		return OutcomeTenantMismatch
	}

	return ""
}

// Revoke cancels a pending invitation. Revoking an already-revoked
// invitation is an idempotent success; a claimed one cannot be un-claimed.
func (s *Service) Revoke(ctx context.Context, id string, actor *identity.User) (RevokeOutcome, error) {
	inv, err := s.store.GetInvitation(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return RevokeNotFound, nil
	}
	if err != nil {
		return "", fmt.Errorf("load invitation: %w", err)
	}

	if !actor.CanIssueInvites() {
		return RevokeForbidden, nil
	}
	if !actor.IsAdmin() && actor.TenantID != inv.IssuingTenantID {
		return RevokeForbidden, nil
	}

	// A lazily expired row still says pending in the store; it must settle
	// as expired, not flip to revoked.
	if inv.EffectiveStatus(s.now()) == store.StatusExpired {
		s.settleExpiry(ctx, inv)
		return RevokeExpired, nil
	}

	ok, err := s.store.RevokeInvitation(ctx, id)
	if err != nil {
		return "", fmt.Errorf("revoke invitation: %w", err)
	}
	if ok {
		s.log.Info("invitation revoked", "invitation_id", id)
		return RevokeOK, nil
	}

	// The guard matched nothing; report the terminal state we find.
	inv, err = s.store.GetInvitation(ctx, id)
	if err != nil {
		return "", fmt.Errorf("reload invitation: %w", err)
	}
	switch inv.EffectiveStatus(s.now()) {
	case store.StatusRevoked:
		return RevokeOK, nil
	case store.StatusClaimed:
		return RevokeClaimed, nil
	default:
		return RevokeExpired, nil
	}
}

// List returns the invitations issued for a resource, newest first, with
// effective statuses. Listings include live tokens, so only invite-capable
// members of the owning tenant (or an admin) may list.
func (s *Service) List(ctx context.Context, kind store.Kind, resourceID string, actor *identity.User) ([]*store.Invitation, error) {
	resource, err := s.registry.GetResource(ctx, kind, resourceID)
	if err != nil {
		if errors.Is(err, directory.ErrResourceNotFound) {
			return nil, ErrResourceMissing
		}
		return nil, fmt.Errorf("resolve resource: %w", err)
	}

	if !actor.CanIssueInvites() {
		return nil, ErrIssuerForbidden
	}
	if !actor.IsAdmin() && actor.TenantID != resource.TenantID {
		return nil, ErrIssuerForbidden
	}

	invs, err := s.store.ListInvitations(ctx, kind, resourceID)
	if err != nil {
		return nil, fmt.Errorf("list invitations: %w", err)
	}

	now := s.now()
	for _, inv := range invs {
		inv.Status = inv.EffectiveStatus(now)
	}
	return invs, nil
}

// Grants returns the access grants provisioned for a resource.
func (s *Service) Grants(ctx context.Context, kind store.Kind, resourceID string, actor *identity.User) ([]*store.AccessGrant, error) {
	resource, err := s.registry.GetResource(ctx, kind, resourceID)
	if err != nil {
		if errors.Is(err, directory.ErrResourceNotFound) {
			return nil, ErrResourceMissing
		}
		return nil, fmt.Errorf("resolve resource: %w", err)
	}

	if !actor.CanIssueInvites() {
		return nil, ErrIssuerForbidden
	}
	if !actor.IsAdmin() && actor.TenantID != resource.TenantID {
		return nil, ErrIssuerForbidden
	}

	return s.store.ListGrants(ctx, kind, resourceID)
}
