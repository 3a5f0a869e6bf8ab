package json

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/brightstay/brightstay-invites/internal/store"
)

// The shared driver suite lives in the store package; this file covers the
// behavior unique to the json driver: durability across restarts.
func TestReloadAfterRestart(t *testing.T) {
	ctx := context.Background()
	dataDir := t.TempDir()

	cfg := &store.DriverConfig{Driver: "json", DataDir: dataDir}

	d1, err := NewDriver(cfg)
	if err != nil {
		t.Fatalf("NewDriver: %v", err)
	}
	drv1 := d1.(*Driver)
	if err := drv1.Init(ctx); err != nil {
		t.Fatalf("Init: %v", err)
	}

	inv := &store.Invitation{
		ID:              uuid.NewString(),
		Token:           "tok-reload",
		Kind:            store.KindWorkGroup,
		Status:          store.StatusPending,
		ResourceID:      "wg-1",
		IssuingTenantID: "tenant-1",
		CreatedByUserID: "host-1",
		CreatedAt:       time.Now().UTC(),
		ExpiresAt:       time.Now().UTC().Add(24 * time.Hour),
	}
	if err := drv1.CreateInvitation(ctx, inv); err != nil {
		t.Fatalf("CreateInvitation: %v", err)
	}
	if _, err := drv1.EnsureGrant(ctx, &store.AccessGrant{
		Kind:       store.KindWorkGroup,
		ResourceID: "wg-1",
		UserID:     "user-1",
		Role:       "cleaner",
	}); err != nil {
		t.Fatalf("EnsureGrant: %v", err)
	}
	if err := drv1.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	// Fresh driver over the same data dir sees everything, including the
	// rebuilt token index.
	d2, err := NewDriver(cfg)
	if err != nil {
		t.Fatalf("NewDriver: %v", err)
	}
	drv2 := d2.(*Driver)
	if err := drv2.Init(ctx); err != nil {
		t.Fatalf("Init after restart: %v", err)
	}
	defer drv2.Close()

	got, err := drv2.GetInvitationByToken(ctx, "tok-reload")
	if err != nil {
		t.Fatalf("GetInvitationByToken after restart: %v", err)
	}
	if got.ID != inv.ID || got.Status != store.StatusPending {
		t.Errorf("reloaded invitation mismatch: %+v", got)
	}

	grant, err := drv2.GetGrant(ctx, store.KindWorkGroup, "wg-1", "user-1")
	if err != nil {
		t.Fatalf("GetGrant after restart: %v", err)
	}
	if grant.Role != "cleaner" || grant.Status != store.GrantActive {
		t.Errorf("reloaded grant mismatch: %+v", grant)
	}
}
