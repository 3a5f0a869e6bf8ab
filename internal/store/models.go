package store

import "time"

// Kind identifies what an invitation grants access to.
type Kind string

const (
	KindTeam      Kind = "team"
	KindProperty  Kind = "property"
	KindWorkGroup Kind = "work_group"
)

// ValidKind reports whether k is a known invitation kind.
func ValidKind(k Kind) bool {
	switch k {
	case KindTeam, KindProperty, KindWorkGroup:
		return true
	}
	return false
}

// Status is the persisted lifecycle state of an invitation.
type Status string

const (
	StatusPending Status = "pending"
	StatusClaimed Status = "claimed"
	StatusExpired Status = "expired"
	StatusRevoked Status = "revoked"
)

// Terminal reports whether the status can never change again.
// Only pending is non-terminal.
func (s Status) Terminal() bool {
	return s != StatusPending
}

// Invitation is one issued invite. All three kinds share this row shape;
// Kind discriminates and Role carries the requested role for property
// invitations.
type Invitation struct {
	ID              string     `json:"id" gorm:"primaryKey;size:40"`
	Token           string     `json:"token" gorm:"uniqueIndex;size:64"`
	Kind            Kind       `json:"kind" gorm:"index:idx_invitations_resource;size:20"`
	Status          Status     `json:"status" gorm:"size:16"`
	ResourceID      string     `json:"resource_id" gorm:"index:idx_invitations_resource;size:40"`
	Role            string     `json:"role,omitempty" gorm:"size:20"`
	IssuingTenantID string     `json:"issuing_tenant_id" gorm:"size:40"`
	CreatedByUserID string     `json:"created_by_user_id" gorm:"size:40"`
	CreatedAt       time.Time  `json:"created_at"`
	ExpiresAt       time.Time  `json:"expires_at"`
	ClaimedByUserID string     `json:"claimed_by_user_id,omitempty" gorm:"size:40"`
	ClaimedAt       *time.Time `json:"claimed_at,omitempty"`
	PrefillName     string     `json:"prefill_name,omitempty" gorm:"size:120"`
	Message         string     `json:"message,omitempty" gorm:"size:500"`
}

// EffectiveStatus computes the status as of now, incorporating lazy expiry:
// a pending row past its deadline reads as expired even before any writer
// has persisted the transition. Pure; every read path must go through it.
func (inv *Invitation) EffectiveStatus(now time.Time) Status {
	if inv.Status == StatusPending && now.After(inv.ExpiresAt) {
		return StatusExpired
	}
	return inv.Status
}

// GrantStatus is the lifecycle state of an access grant.
type GrantStatus string

const (
	GrantActive   GrantStatus = "active"
	GrantInactive GrantStatus = "inactive"
	GrantRemoved  GrantStatus = "removed"
)

// AccessGrant links a principal to a resource with a role. Uniqueness is
// enforced on (kind, resource, user); re-provisioning reactivates the
// existing row instead of creating a second one.
type AccessGrant struct {
	ID         string      `json:"id" gorm:"primaryKey;size:40"`
	Kind       Kind        `json:"kind" gorm:"uniqueIndex:idx_grants_scope;size:20"`
	ResourceID string      `json:"resource_id" gorm:"uniqueIndex:idx_grants_scope;size:40"`
	UserID     string      `json:"user_id" gorm:"uniqueIndex:idx_grants_scope;size:40"`
	Role       string      `json:"role" gorm:"size:20"`
	Status     GrantStatus `json:"status" gorm:"size:16"`
	CreatedAt  time.Time   `json:"created_at"`
	UpdatedAt  time.Time   `json:"updated_at"`
}
