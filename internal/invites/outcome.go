package invites

import "github.com/brightstay/brightstay-invites/internal/store"

// Outcome classifies the result of a claim attempt. Every rejection is a
// typed value so callers can tell the user exactly what happened; the
// engine never collapses them into a generic error.
type Outcome string

const (
	OutcomeClaimed               Outcome = "claimed"
	OutcomeAlreadyClaimedBySelf  Outcome = "already_claimed_by_self"
	OutcomeNotFound              Outcome = "not_found"
	OutcomeExpired               Outcome = "expired"
	OutcomeRevoked               Outcome = "revoked"
	OutcomeAlreadyClaimedByOther Outcome = "already_claimed_by_other"
	OutcomeRoleMismatch          Outcome = "role_mismatch"
	OutcomeTenantMismatch        Outcome = "tenant_mismatch"
	OutcomeAccessConflict        Outcome = "access_conflict"
)

// Success reports whether the outcome grants (or re-confirms) access.
func (o Outcome) Success() bool {
	return o == OutcomeClaimed || o == OutcomeAlreadyClaimedBySelf
}

// ClaimResult is the full result of a claim attempt. Invitation and Grant
// are set only when the outcome carries them (Invitation on everything but
// NotFound, Grant on success).
type ClaimResult struct {
	Outcome    Outcome
	Invitation *store.Invitation
	Grant      *store.AccessGrant
}

// RevokeOutcome classifies the result of a revoke attempt.
type RevokeOutcome string

const (
	RevokeOK        RevokeOutcome = "revoked"  // revoked now, or already revoked
	RevokeNotFound  RevokeOutcome = "not_found"
	RevokeClaimed   RevokeOutcome = "claimed"  // cannot un-claim via revoke
	RevokeExpired   RevokeOutcome = "expired"
	RevokeForbidden RevokeOutcome = "forbidden" // actor is not the issuing tenant
)
