// Package store provides persistence primitives and driver abstractions
// for invitations and access grants.
package store

import (
	"context"
	"errors"
	"time"
)

// Common errors for store operations.
var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrRoleConflict  = errors.New("existing grant holds a different role")
	ErrClosed        = errors.New("store closed")
)

// Driver defines the interface for a persistence backend.
// Implementations must be safe for concurrent use.
type Driver interface {
	// Init initializes the driver (create tables, load data, etc).
	Init(ctx context.Context) error

	// Close releases resources held by the driver.
	Close() error

	// Name returns the driver name (json, sqlite).
	Name() string
}

// InvitationStore defines operations for invitation persistence.
//
// Every status transition out of pending is expressed as a conditional
// write guarded by the stored status, and reported through the returned
// bool: callers branch on "did my write match a pending row" instead of
// reading first and writing second.
type InvitationStore interface {
	// CreateInvitation persists a new invitation. Returns ErrAlreadyExists
	// if the token is already taken by another invitation of any kind.
	CreateInvitation(ctx context.Context, inv *Invitation) error

	// GetInvitation retrieves an invitation by id.
	GetInvitation(ctx context.Context, id string) (*Invitation, error)

	// GetInvitationByToken retrieves an invitation by its unique token.
	GetInvitationByToken(ctx context.Context, token string) (*Invitation, error)

	// ListInvitations returns the invitations issued for a resource,
	// newest first.
	ListInvitations(ctx context.Context, kind Kind, resourceID string) ([]*Invitation, error)

	// MarkExpired transitions pending -> expired for the given invitation.
	// Returns false when the stored status is no longer pending.
	MarkExpired(ctx context.Context, id string) (bool, error)

	// RevokeInvitation transitions pending -> revoked for the given
	// invitation. Returns false when the stored status is no longer pending.
	RevokeInvitation(ctx context.Context, id string) (bool, error)

	// ClaimInvitation transitions pending -> claimed for the invitation with
	// the given token, setting claimed_by_user_id and claimed_at, guarded by
	// the stored status still being pending at write time. When the guard
	// matches, provision is invoked inside the same transactional scope; a
	// provision error rolls the claim back and is returned verbatim.
	// Returns false (and no error) when the guard matched zero rows.
	ClaimInvitation(ctx context.Context, token, userID string, claimedAt time.Time, provision func(ctx context.Context, access AccessStore) error) (bool, error)
}

// AccessStore defines operations for access grant persistence.
type AccessStore interface {
	// EnsureGrant idempotently creates or reactivates the grant identified
	// by (kind, resource, user). An existing row with a different role is
	// never touched; ErrRoleConflict is returned instead. The upsert is a
	// single conditional operation keyed by the grant uniqueness
	// constraint, not an exists-check followed by an insert.
	EnsureGrant(ctx context.Context, grant *AccessGrant) (*AccessGrant, error)

	// GetGrant retrieves the grant for (kind, resource, user).
	GetGrant(ctx context.Context, kind Kind, resourceID, userID string) (*AccessGrant, error)

	// ListGrants returns all grants for a resource.
	ListGrants(ctx context.Context, kind Kind, resourceID string) ([]*AccessGrant, error)
}
