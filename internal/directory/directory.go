// Package directory tracks tenants and the resources invitations point at:
// teams, properties, and work groups. The invitation engine consults it to
// verify that a resource exists, who owns it, and that the owning tenant is
// still in good standing.
package directory

import (
	"context"
	"errors"
	"sync"

	"github.com/brightstay/brightstay-invites/internal/store"
)

var (
	ErrResourceNotFound = errors.New("resource not found")
	ErrTenantNotFound   = errors.New("tenant not found")
)

// Tenant statuses.
const (
	TenantActive    = "active"
	TenantSuspended = "suspended"
)

// Tenant is a host account that owns resources.
type Tenant struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Status string `json:"status"`
}

// Resource is anything an invitation can target. Kind discriminates.
type Resource struct {
	ID       string     `json:"id"`
	Kind     store.Kind `json:"kind"`
	TenantID string     `json:"tenant_id"`
	Name     string     `json:"name"`
}

// Registry resolves resources and tenant standing.
type Registry interface {
	// GetResource returns the resource of the given kind.
	// Returns ErrResourceNotFound if it does not exist.
	GetResource(ctx context.Context, kind store.Kind, resourceID string) (*Resource, error)

	// GetTenant returns the tenant. Returns ErrTenantNotFound if it does
	// not exist.
	GetTenant(ctx context.Context, tenantID string) (*Tenant, error)
}

// resourceKey scopes resource ids per kind.
type resourceKey struct {
	kind store.Kind
	id   string
}

// MemoryRegistry is an in-memory Registry implementation.
type MemoryRegistry struct {
	mu        sync.RWMutex
	tenants   map[string]*Tenant
	resources map[resourceKey]*Resource
}

// NewMemoryRegistry creates an empty registry.
func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{
		tenants:   make(map[string]*Tenant),
		resources: make(map[resourceKey]*Resource),
	}
}

// AddTenant registers a tenant. An empty status defaults to active.
func (r *MemoryRegistry) AddTenant(t *Tenant) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cp := *t
	if cp.Status == "" {
		cp.Status = TenantActive
	}
	r.tenants[cp.ID] = &cp
}

// AddResource registers a resource.
func (r *MemoryRegistry) AddResource(res *Resource) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cp := *res
	r.resources[resourceKey{kind: cp.Kind, id: cp.ID}] = &cp
}

func (r *MemoryRegistry) GetResource(ctx context.Context, kind store.Kind, resourceID string) (*Resource, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	res, ok := r.resources[resourceKey{kind: kind, id: resourceID}]
	if !ok {
		return nil, ErrResourceNotFound
	}

	cp := *res
	return &cp, nil
}

func (r *MemoryRegistry) GetTenant(ctx context.Context, tenantID string) (*Tenant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.tenants[tenantID]
	if !ok {
		return nil, ErrTenantNotFound
	}

	cp := *t
	return &cp, nil
}
