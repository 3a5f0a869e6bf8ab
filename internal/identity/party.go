// Package identity provides user management, authentication, and session handling.
package identity

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	ErrUserNotFound    = errors.New("user not found")
	ErrUserExists      = errors.New("user already exists")
	ErrInvalidPassword = errors.New("invalid password")
	ErrSessionExpired  = errors.New("session expired")
	ErrSessionNotFound = errors.New("session not found")
	ErrAdminProtected  = errors.New("admin cannot be deleted or demoted")
)

// Role constants for user roles.
const (
	RoleAdmin   = "admin"   // platform operator
	RoleHost    = "host"    // owns properties and teams
	RoleManager = "manager" // manages properties on behalf of a host
	RoleCleaner = "cleaner" // works cleaning assignments
)

// ValidRole reports whether role is a known user role.
func ValidRole(role string) bool {
	switch role {
	case RoleAdmin, RoleHost, RoleManager, RoleCleaner:
		return true
	}
	return false
}

// User statuses. Suspended users cannot log in or claim invitations.
const (
	UserActive    = "active"
	UserSuspended = "suspended"
)

// User represents a principal in the system.
type User struct {
	ID           string    `json:"id"` // UUIDv7
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	DisplayName  string    `json:"display_name"`
	PasswordHash string    `json:"-"` // bcrypt hash, never serialized
	Role         string    `json:"role"`
	TenantID     string    `json:"tenant_id"` // owning tenant, empty for admins
	Status       string    `json:"status"`
	CreatedAt    time.Time `json:"created_at"`
}

// IsAdmin returns true if the user is a platform admin.
func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// IsActive returns true if the user may authenticate and claim invitations.
func (u *User) IsActive() bool {
	return u.Status == UserActive
}

// CanIssueInvites returns true for roles allowed to create invitations.
func (u *User) CanIssueInvites() bool {
	return u.Role == RoleAdmin || u.Role == RoleHost || u.Role == RoleManager
}

// PartyRepo provides user storage operations.
type PartyRepo interface {
	// Create creates a new user. Returns ErrUserExists if username is taken.
	Create(ctx context.Context, user *User) error

	// Get retrieves a user by ID. Returns ErrUserNotFound if not found.
	Get(ctx context.Context, id string) (*User, error)

	// GetByUsername retrieves a user by username. Returns ErrUserNotFound if not found.
	GetByUsername(ctx context.Context, username string) (*User, error)

	// Update updates an existing user.
	Update(ctx context.Context, user *User) error

	// Delete removes a user by ID.
	Delete(ctx context.Context, id string) error

	// List returns all users, optionally filtered by tenant.
	List(ctx context.Context, tenantID string) ([]*User, error)
}

// NewUserID generates a time-ordered unique identifier (UUIDv7).
func NewUserID() string {
	id, err := uuid.NewV7()
	if err != nil {
		// Only possible if the entropy source fails entirely.
		return uuid.NewString()
	}
	return id.String()
}

// MemoryPartyRepo is an in-memory implementation of PartyRepo.
type MemoryPartyRepo struct {
	mu         sync.RWMutex
	users      map[string]*User  // by ID
	byUsername map[string]string // username -> ID
}

// NewMemoryPartyRepo creates a new in-memory party repository.
func NewMemoryPartyRepo() *MemoryPartyRepo {
	return &MemoryPartyRepo{
		users:      make(map[string]*User),
		byUsername: make(map[string]string),
	}
}

func (r *MemoryPartyRepo) Create(ctx context.Context, user *User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byUsername[user.Username]; exists {
		return ErrUserExists
	}

	if user.ID == "" {
		user.ID = NewUserID()
	}
	if user.Status == "" {
		user.Status = UserActive
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now()
	}

	// Store a copy
	u := *user
	r.users[user.ID] = &u
	r.byUsername[user.Username] = user.ID

	return nil
}

func (r *MemoryPartyRepo) Get(ctx context.Context, id string) (*User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	user, ok := r.users[id]
	if !ok {
		return nil, ErrUserNotFound
	}

	// Return a copy
	u := *user
	return &u, nil
}

func (r *MemoryPartyRepo) GetByUsername(ctx context.Context, username string) (*User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byUsername[username]
	if !ok {
		return nil, ErrUserNotFound
	}

	user := r.users[id]
	u := *user
	return &u, nil
}

func (r *MemoryPartyRepo) Update(ctx context.Context, user *User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.users[user.ID]
	if !ok {
		return ErrUserNotFound
	}

	// Admins cannot be demoted through the repo.
	if existing.Role == RoleAdmin && user.Role != RoleAdmin {
		return ErrAdminProtected
	}

	// If username changed, update the index
	if existing.Username != user.Username {
		delete(r.byUsername, existing.Username)
		r.byUsername[user.Username] = user.ID
	}

	u := *user
	r.users[user.ID] = &u
	return nil
}

func (r *MemoryPartyRepo) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, ok := r.users[id]
	if !ok {
		return ErrUserNotFound
	}

	if user.Role == RoleAdmin {
		return ErrAdminProtected
	}

	delete(r.byUsername, user.Username)
	delete(r.users, id)
	return nil
}

func (r *MemoryPartyRepo) List(ctx context.Context, tenantID string) ([]*User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []*User
	for _, user := range r.users {
		if tenantID == "" || user.TenantID == tenantID {
			u := *user
			result = append(result, &u)
		}
	}
	return result, nil
}
