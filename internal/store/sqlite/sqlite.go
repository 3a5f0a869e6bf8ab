// Package sqlite implements a SQLite-based persistence driver using GORM.
package sqlite

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/brightstay/brightstay-invites/internal/store"
)

func init() {
	store.Register("sqlite", NewDriver)
}

// Driver implements store.Driver, store.InvitationStore and
// store.AccessStore using SQLite via GORM.
type Driver struct {
	dataDir string
	db      *gorm.DB
}

// NewDriver creates a new SQLite driver instance.
func NewDriver(cfg *store.DriverConfig) (store.Driver, error) {
	if cfg.DataDir == "" {
		return nil, fmt.Errorf("data_dir is required for sqlite driver")
	}

	return &Driver{
		dataDir: cfg.DataDir,
	}, nil
}

// Name returns the driver name.
func (d *Driver) Name() string {
	return "sqlite"
}

// Init initializes the SQLite database and runs AutoMigrate.
func (d *Driver) Init(ctx context.Context) error {
	dbPath := filepath.Join(d.dataDir, "invites.db")

	// _busy_timeout keeps concurrent claim transactions queued instead of
	// failing immediately with SQLITE_BUSY.
	db, err := gorm.Open(sqlite.Open(dbPath+"?_busy_timeout=5000"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	d.db = db

	if err := db.AutoMigrate(
		&store.Invitation{},
		&store.AccessGrant{},
	); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}

	return nil
}

// Close closes the database connection.
func (d *Driver) Close() error {
	if d.db == nil {
		return nil
	}
	sqlDB, err := d.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// InvitationStore implementation

// CreateInvitation creates a new invitation. A unique-index violation on
// token maps to store.ErrAlreadyExists so the caller can regenerate.
func (d *Driver) CreateInvitation(ctx context.Context, inv *store.Invitation) error {
	result := d.db.WithContext(ctx).Create(inv)
	if result.Error != nil {
		if isUniqueViolation(result.Error) {
			return store.ErrAlreadyExists
		}
		return result.Error
	}
	return nil
}

// GetInvitation retrieves an invitation by id.
func (d *Driver) GetInvitation(ctx context.Context, id string) (*store.Invitation, error) {
	var inv store.Invitation
	result := d.db.WithContext(ctx).First(&inv, "id = ?", id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, store.ErrNotFound
		}
		return nil, result.Error
	}
	return &inv, nil
}

// GetInvitationByToken retrieves an invitation by token.
func (d *Driver) GetInvitationByToken(ctx context.Context, token string) (*store.Invitation, error) {
	var inv store.Invitation
	result := d.db.WithContext(ctx).First(&inv, "token = ?", token)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, store.ErrNotFound
		}
		return nil, result.Error
	}
	return &inv, nil
}

// ListInvitations returns invitations for a resource, newest first.
func (d *Driver) ListInvitations(ctx context.Context, kind store.Kind, resourceID string) ([]*store.Invitation, error) {
	var invs []*store.Invitation
	result := d.db.WithContext(ctx).
		Where("kind = ? AND resource_id = ?", kind, resourceID).
		Order("created_at DESC").
		Find(&invs)
	if result.Error != nil {
		return nil, result.Error
	}
	return invs, nil
}

// MarkExpired transitions pending -> expired, guarded by the stored status.
func (d *Driver) MarkExpired(ctx context.Context, id string) (bool, error) {
	result := d.db.WithContext(ctx).
		Model(&store.Invitation{}).
		Where("id = ? AND status = ?", id, store.StatusPending).
		Update("status", store.StatusExpired)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// RevokeInvitation transitions pending -> revoked, guarded by the stored
// status.
func (d *Driver) RevokeInvitation(ctx context.Context, id string) (bool, error) {
	result := d.db.WithContext(ctx).
		Model(&store.Invitation{}).
		Where("id = ? AND status = ?", id, store.StatusPending).
		Update("status", store.StatusRevoked)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// ClaimInvitation performs the guarded pending -> claimed update and runs
// provision inside the same transaction. The update is a single conditional
// write; losing the race shows up as zero affected rows, never as a stale
// read followed by a blind write.
func (d *Driver) ClaimInvitation(ctx context.Context, token, userID string, claimedAt time.Time, provision func(ctx context.Context, access store.AccessStore) error) (bool, error) {
	claimed := false

	err := d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&store.Invitation{}).
			Where("token = ? AND status = ?", token, store.StatusPending).
			Updates(map[string]any{
				"status":             store.StatusClaimed,
				"claimed_by_user_id": userID,
				"claimed_at":         claimedAt,
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			// Lost the race; commit nothing and let the caller re-evaluate.
			return nil
		}

		claimed = true
		if provision != nil {
			return provision(ctx, &txAccess{db: tx})
		}
		return nil
	})
	if err != nil {
		return false, err
	}
	return claimed, nil
}

// AccessStore implementation

// EnsureGrant upserts the grant via INSERT ... ON CONFLICT keyed by the
// (kind, resource, user) unique index. The DO UPDATE branch only applies
// when the stored role matches, so a role conflict surfaces as zero
// affected rows.
func (d *Driver) EnsureGrant(ctx context.Context, grant *store.AccessGrant) (*store.AccessGrant, error) {
	return ensureGrant(d.db.WithContext(ctx), grant)
}

// GetGrant retrieves the grant for (kind, resource, user).
func (d *Driver) GetGrant(ctx context.Context, kind store.Kind, resourceID, userID string) (*store.AccessGrant, error) {
	return getGrant(d.db.WithContext(ctx), kind, resourceID, userID)
}

// ListGrants returns all grants for a resource.
func (d *Driver) ListGrants(ctx context.Context, kind store.Kind, resourceID string) ([]*store.AccessGrant, error) {
	var grants []*store.AccessGrant
	result := d.db.WithContext(ctx).
		Where("kind = ? AND resource_id = ?", kind, resourceID).
		Order("created_at").
		Find(&grants)
	if result.Error != nil {
		return nil, result.Error
	}
	return grants, nil
}

// txAccess is the AccessStore view of an open claim transaction.
type txAccess struct {
	db *gorm.DB
}

func (a *txAccess) EnsureGrant(ctx context.Context, grant *store.AccessGrant) (*store.AccessGrant, error) {
	return ensureGrant(a.db, grant)
}

func (a *txAccess) GetGrant(ctx context.Context, kind store.Kind, resourceID, userID string) (*store.AccessGrant, error) {
	return getGrant(a.db, kind, resourceID, userID)
}

func (a *txAccess) ListGrants(ctx context.Context, kind store.Kind, resourceID string) ([]*store.AccessGrant, error) {
	var grants []*store.AccessGrant
	result := a.db.Where("kind = ? AND resource_id = ?", kind, resourceID).Find(&grants)
	if result.Error != nil {
		return nil, result.Error
	}
	return grants, nil
}

func ensureGrant(db *gorm.DB, grant *store.AccessGrant) (*store.AccessGrant, error) {
	now := time.Now()
	if grant.ID == "" {
		grant.ID = uuid.NewString()
	}
	if grant.CreatedAt.IsZero() {
		grant.CreatedAt = now
	}
	grant.UpdatedAt = now
	if grant.Status == "" {
		grant.Status = store.GrantActive
	}

	result := db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "kind"}, {Name: "resource_id"}, {Name: "user_id"}},
		DoUpdates: clause.Assignments(map[string]any{
			"status":     store.GrantActive,
			"updated_at": now,
		}),
		Where: clause.Where{Exprs: []clause.Expression{
			clause.Eq{
				Column: clause.Column{Table: "access_grants", Name: "role"},
				Value:  grant.Role,
			},
		}},
	}).Create(grant)
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, store.ErrRoleConflict
	}

	// Re-read so the caller sees the surviving row (the conflict branch
	// keeps the original id and created_at).
	return getGrant(db, grant.Kind, grant.ResourceID, grant.UserID)
}

func getGrant(db *gorm.DB, kind store.Kind, resourceID, userID string) (*store.AccessGrant, error) {
	var grant store.AccessGrant
	result := db.First(&grant, "kind = ? AND resource_id = ? AND user_id = ?", kind, resourceID, userID)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, store.ErrNotFound
		}
		return nil, result.Error
	}
	return &grant, nil
}

// isUniqueViolation reports whether err is a unique-constraint failure.
// GORM exposes ErrDuplicatedKey for translated dialects; the sqlite driver
// also surfaces the raw constraint message.
func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
