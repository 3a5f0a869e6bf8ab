// Package json implements a JSON file-based persistence driver.
// It uses atomic writes (temp file + fsync + rename) and in-process locking.
// Suitable for development and single-process deployments without cgo.
package json

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/brightstay/brightstay-invites/internal/store"
)

func init() {
	store.Register("json", NewDriver)
}

const (
	invitationsFile = "invitations.json"
	grantsFile      = "access_grants.json"
)

// Driver implements store.Driver, store.InvitationStore and
// store.AccessStore backed by JSON files. All mutations happen under one
// write lock, which is what makes the guarded status transitions atomic
// for this driver.
type Driver struct {
	dataDir string
	mu      sync.RWMutex
	closed  bool

	invitations map[string]*store.Invitation // keyed by id
	grants      map[string]*store.AccessGrant

	tokenIndex map[string]string // token -> invitation id
}

// NewDriver creates a new JSON driver instance.
func NewDriver(cfg *store.DriverConfig) (store.Driver, error) {
	if cfg.DataDir == "" {
		return nil, fmt.Errorf("data_dir is required for json driver")
	}

	return &Driver{
		dataDir:     cfg.DataDir,
		invitations: make(map[string]*store.Invitation),
		grants:      make(map[string]*store.AccessGrant),
		tokenIndex:  make(map[string]string),
	}, nil
}

// Name returns the driver name.
func (d *Driver) Name() string {
	return "json"
}

// Init loads data from JSON files.
func (d *Driver) Init(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := os.MkdirAll(d.dataDir, 0700); err != nil {
		return fmt.Errorf("failed to create data dir: %w", err)
	}

	if err := d.loadFile(invitationsFile, &d.invitations); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to load invitations: %w", err)
	}
	if err := d.loadFile(grantsFile, &d.grants); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to load access grants: %w", err)
	}

	d.rebuildIndexes()

	return nil
}

// Close releases resources.
func (d *Driver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}

// loadFile loads a JSON file into the target map.
func (d *Driver) loadFile(filename string, target interface{}) error {
	path := filepath.Join(d.dataDir, filename)
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, target)
}

// saveFile atomically writes data to a JSON file.
// Pattern: write to temp file, fsync, rename.
func (d *Driver) saveFile(filename string, data interface{}) error {
	path := filepath.Join(d.dataDir, filename)
	tempPath := path + ".tmp"

	jsonData, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal data: %w", err)
	}

	f, err := os.OpenFile(tempPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}

	if _, err := f.Write(jsonData); err != nil {
		f.Close()
		os.Remove(tempPath)
		return fmt.Errorf("failed to write temp file: %w", err)
	}

	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tempPath)
		return fmt.Errorf("failed to sync temp file: %w", err)
	}

	if err := f.Close(); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	return nil
}

// rebuildIndexes rebuilds secondary indexes from primary data.
func (d *Driver) rebuildIndexes() {
	d.tokenIndex = make(map[string]string)
	for id, inv := range d.invitations {
		d.tokenIndex[inv.Token] = id
	}
}

// grantKey creates the uniqueness key for access grants.
func grantKey(kind store.Kind, resourceID, userID string) string {
	return string(kind) + "\x00" + resourceID + "\x00" + userID
}

// InvitationStore implementation

// CreateInvitation creates a new invitation, enforcing token uniqueness.
func (d *Driver) CreateInvitation(ctx context.Context, inv *store.Invitation) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return store.ErrClosed
	}

	if _, exists := d.tokenIndex[inv.Token]; exists {
		return store.ErrAlreadyExists
	}

	cp := *inv
	d.invitations[inv.ID] = &cp
	d.tokenIndex[inv.Token] = inv.ID

	return d.saveFile(invitationsFile, d.invitations)
}

// GetInvitation retrieves an invitation by id.
func (d *Driver) GetInvitation(ctx context.Context, id string) (*store.Invitation, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		return nil, store.ErrClosed
	}

	inv, ok := d.invitations[id]
	if !ok {
		return nil, store.ErrNotFound
	}

	cp := *inv
	return &cp, nil
}

// GetInvitationByToken retrieves an invitation by token.
func (d *Driver) GetInvitationByToken(ctx context.Context, token string) (*store.Invitation, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		return nil, store.ErrClosed
	}

	id, ok := d.tokenIndex[token]
	if !ok {
		return nil, store.ErrNotFound
	}

	cp := *d.invitations[id]
	return &cp, nil
}

// ListInvitations returns invitations for a resource, newest first.
func (d *Driver) ListInvitations(ctx context.Context, kind store.Kind, resourceID string) ([]*store.Invitation, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		return nil, store.ErrClosed
	}

	result := make([]*store.Invitation, 0)
	for _, inv := range d.invitations {
		if inv.Kind == kind && inv.ResourceID == resourceID {
			cp := *inv
			result = append(result, &cp)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})

	return result, nil
}

// MarkExpired transitions pending -> expired under the write lock.
func (d *Driver) MarkExpired(ctx context.Context, id string) (bool, error) {
	return d.transition(id, store.StatusExpired)
}

// RevokeInvitation transitions pending -> revoked under the write lock.
func (d *Driver) RevokeInvitation(ctx context.Context, id string) (bool, error) {
	return d.transition(id, store.StatusRevoked)
}

// transition applies a guarded pending -> to transition.
func (d *Driver) transition(id string, to store.Status) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return false, store.ErrClosed
	}

	inv, ok := d.invitations[id]
	if !ok || inv.Status != store.StatusPending {
		return false, nil
	}

	updated := *inv
	updated.Status = to
	d.invitations[id] = &updated

	if err := d.saveFile(invitationsFile, d.invitations); err != nil {
		d.invitations[id] = inv
		return false, err
	}
	return true, nil
}

// ClaimInvitation applies the guarded pending -> claimed transition and the
// provisioning callback atomically: both are staged under the write lock
// and nothing is committed unless provision succeeds.
func (d *Driver) ClaimInvitation(ctx context.Context, token, userID string, claimedAt time.Time, provision func(ctx context.Context, access store.AccessStore) error) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return false, store.ErrClosed
	}

	id, ok := d.tokenIndex[token]
	if !ok {
		return false, nil
	}

	inv := d.invitations[id]
	if inv.Status != store.StatusPending {
		return false, nil
	}

	updated := *inv
	updated.Status = store.StatusClaimed
	updated.ClaimedByUserID = userID
	at := claimedAt
	updated.ClaimedAt = &at

	tx := &stagedAccess{driver: d, staged: make(map[string]*store.AccessGrant)}
	if provision != nil {
		if err := provision(ctx, tx); err != nil {
			return false, err
		}
	}

	d.invitations[id] = &updated
	for key, grant := range tx.staged {
		d.grants[key] = grant
	}

	if err := d.saveFile(invitationsFile, d.invitations); err != nil {
		return false, err
	}
	if len(tx.staged) > 0 {
		if err := d.saveFile(grantsFile, d.grants); err != nil {
			return false, err
		}
	}

	return true, nil
}

// AccessStore implementation

// EnsureGrant idempotently creates or reactivates a grant.
func (d *Driver) EnsureGrant(ctx context.Context, grant *store.AccessGrant) (*store.AccessGrant, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil, store.ErrClosed
	}

	result, err := ensureGrant(d.grants, nil, grant)
	if err != nil {
		return nil, err
	}

	d.grants[grantKey(result.Kind, result.ResourceID, result.UserID)] = result

	if err := d.saveFile(grantsFile, d.grants); err != nil {
		return nil, err
	}

	cp := *result
	return &cp, nil
}

// GetGrant retrieves the grant for (kind, resource, user).
func (d *Driver) GetGrant(ctx context.Context, kind store.Kind, resourceID, userID string) (*store.AccessGrant, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		return nil, store.ErrClosed
	}

	grant, ok := d.grants[grantKey(kind, resourceID, userID)]
	if !ok {
		return nil, store.ErrNotFound
	}

	cp := *grant
	return &cp, nil
}

// ListGrants returns all grants for a resource.
func (d *Driver) ListGrants(ctx context.Context, kind store.Kind, resourceID string) ([]*store.AccessGrant, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		return nil, store.ErrClosed
	}

	result := make([]*store.AccessGrant, 0)
	for _, grant := range d.grants {
		if grant.Kind == kind && grant.ResourceID == resourceID {
			cp := *grant
			result = append(result, &cp)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})

	return result, nil
}

// stagedAccess is the AccessStore view handed to the provisioning callback
// during ClaimInvitation. Writes are staged and only merged into the driver
// maps when the whole claim commits. The driver lock is already held.
type stagedAccess struct {
	driver *Driver
	staged map[string]*store.AccessGrant
}

func (a *stagedAccess) EnsureGrant(ctx context.Context, grant *store.AccessGrant) (*store.AccessGrant, error) {
	result, err := ensureGrant(a.driver.grants, a.staged, grant)
	if err != nil {
		return nil, err
	}

	a.staged[grantKey(result.Kind, result.ResourceID, result.UserID)] = result

	cp := *result
	return &cp, nil
}

func (a *stagedAccess) GetGrant(ctx context.Context, kind store.Kind, resourceID, userID string) (*store.AccessGrant, error) {
	key := grantKey(kind, resourceID, userID)
	if grant, ok := a.staged[key]; ok {
		cp := *grant
		return &cp, nil
	}
	if grant, ok := a.driver.grants[key]; ok {
		cp := *grant
		return &cp, nil
	}
	return nil, store.ErrNotFound
}

func (a *stagedAccess) ListGrants(ctx context.Context, kind store.Kind, resourceID string) ([]*store.AccessGrant, error) {
	result := make([]*store.AccessGrant, 0)
	seen := make(map[string]bool)
	for key, grant := range a.staged {
		if grant.Kind == kind && grant.ResourceID == resourceID {
			cp := *grant
			result = append(result, &cp)
			seen[key] = true
		}
	}
	for key, grant := range a.driver.grants {
		if !seen[key] && grant.Kind == kind && grant.ResourceID == resourceID {
			cp := *grant
			result = append(result, &cp)
		}
	}
	return result, nil
}

// ensureGrant computes the surviving grant row for an upsert against the
// committed map plus any staged overlay. Returns ErrRoleConflict when an
// existing row holds a different role.
func ensureGrant(committed, staged map[string]*store.AccessGrant, grant *store.AccessGrant) (*store.AccessGrant, error) {
	key := grantKey(grant.Kind, grant.ResourceID, grant.UserID)

	existing := committed[key]
	if staged != nil {
		if g, ok := staged[key]; ok {
			existing = g
		}
	}

	now := time.Now()

	if existing != nil {
		if existing.Role != grant.Role {
			return nil, store.ErrRoleConflict
		}
		updated := *existing
		updated.Status = store.GrantActive
		updated.UpdatedAt = now
		return &updated, nil
	}

	created := *grant
	if created.ID == "" {
		created.ID = uuid.NewString()
	}
	if created.Status == "" {
		created.Status = store.GrantActive
	}
	created.CreatedAt = now
	created.UpdatedAt = now
	return &created, nil
}
