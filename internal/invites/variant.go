package invites

import (
	"github.com/brightstay/brightstay-invites/internal/identity"
	"github.com/brightstay/brightstay-invites/internal/store"
)

// Grant roles provisioned by the three invitation kinds.
const (
	GrantRoleMember  = "member"
	GrantRoleManager = "manager"
	GrantRoleCleaner = "cleaner"
)

// Variant is the per-kind strategy plugged into the claim state machine.
// The machine itself is written once; variants only differ in who may
// redeem and what grant a successful claim provisions.
type Variant interface {
	Kind() store.Kind

	// ValidateIssue checks the requested role at issue time and returns
	// the role the invitation should carry.
	ValidateIssue(requestedRole string) (string, bool)

	// Validate checks principal compatibility for a claim. Returns the
	// rejection outcome, or "" when the principal may redeem.
	Validate(inv *store.Invitation, principal *identity.User) Outcome

	// NewGrant builds the access grant a successful claim provisions.
	NewGrant(inv *store.Invitation, principal *identity.User) *store.AccessGrant
}

func newGrant(inv *store.Invitation, userID, role string) *store.AccessGrant {
	return &store.AccessGrant{
		Kind:       inv.Kind,
		ResourceID: inv.ResourceID,
		UserID:     userID,
		Role:       role,
		Status:     store.GrantActive,
	}
}

// teamVariant: any active principal may join a team as a member.
type teamVariant struct{}

func (teamVariant) Kind() store.Kind { return store.KindTeam }

func (teamVariant) ValidateIssue(requestedRole string) (string, bool) {
	if requestedRole != "" && requestedRole != GrantRoleMember {
		return "", false
	}
	return GrantRoleMember, true
}

func (teamVariant) Validate(inv *store.Invitation, principal *identity.User) Outcome {
	if !principal.IsActive() {
		return OutcomeRoleMismatch
	}
	return ""
}

func (teamVariant) NewGrant(inv *store.Invitation, principal *identity.User) *store.AccessGrant {
	return newGrant(inv, principal.ID, GrantRoleMember)
}

// propertyVariant: the invitation carries a requested role (manager or
// cleaner) and only a principal already holding that role may redeem it.
type propertyVariant struct{}

func (propertyVariant) Kind() store.Kind { return store.KindProperty }

func (propertyVariant) ValidateIssue(requestedRole string) (string, bool) {
	switch requestedRole {
	case GrantRoleManager, GrantRoleCleaner:
		return requestedRole, true
	}
	return "", false
}

func (propertyVariant) Validate(inv *store.Invitation, principal *identity.User) Outcome {
	if !principal.IsActive() || principal.Role != inv.Role {
		return OutcomeRoleMismatch
	}
	return ""
}

func (propertyVariant) NewGrant(inv *store.Invitation, principal *identity.User) *store.AccessGrant {
	return newGrant(inv, principal.ID, inv.Role)
}

// workGroupVariant: only cleaners belonging to the issuing tenant may
// become work-group executors.
type workGroupVariant struct{}

func (workGroupVariant) Kind() store.Kind { return store.KindWorkGroup }

func (workGroupVariant) ValidateIssue(requestedRole string) (string, bool) {
	if requestedRole != "" && requestedRole != GrantRoleCleaner {
		return "", false
	}
	return GrantRoleCleaner, true
}

func (workGroupVariant) Validate(inv *store.Invitation, principal *identity.User) Outcome {
	if !principal.IsActive() || principal.Role != identity.RoleCleaner {
		return OutcomeRoleMismatch
	}
	if principal.TenantID != inv.IssuingTenantID {
		return OutcomeTenantMismatch
	}
	return ""
}

func (workGroupVariant) NewGrant(inv *store.Invitation, principal *identity.User) *store.AccessGrant {
	return newGrant(inv, principal.ID, GrantRoleCleaner)
}

func defaultVariants() map[store.Kind]Variant {
	return map[store.Kind]Variant{
		store.KindTeam:      teamVariant{},
		store.KindProperty:  propertyVariant{},
		store.KindWorkGroup: workGroupVariant{},
	}
}
