package directory

import (
	"context"
	"errors"
	"testing"

	"github.com/brightstay/brightstay-invites/internal/store"
)

func TestRegistryLookups(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryRegistry()

	r.AddTenant(&Tenant{ID: "t1", Name: "Host Co"})
	r.AddResource(&Resource{ID: "team-1", Kind: store.KindTeam, TenantID: "t1", Name: "Team One"})

	tenant, err := r.GetTenant(ctx, "t1")
	if err != nil {
		t.Fatalf("GetTenant: %v", err)
	}
	if tenant.Status != TenantActive {
		t.Errorf("default tenant status = %s, want active", tenant.Status)
	}

	res, err := r.GetResource(ctx, store.KindTeam, "team-1")
	if err != nil {
		t.Fatalf("GetResource: %v", err)
	}
	if res.TenantID != "t1" {
		t.Errorf("resource tenant = %s", res.TenantID)
	}

	// Resource ids are scoped per kind.
	if _, err := r.GetResource(ctx, store.KindProperty, "team-1"); !errors.Is(err, ErrResourceNotFound) {
		t.Errorf("cross-kind lookup: got %v, want ErrResourceNotFound", err)
	}

	if _, err := r.GetTenant(ctx, "ghost"); !errors.Is(err, ErrTenantNotFound) {
		t.Errorf("unknown tenant: got %v, want ErrTenantNotFound", err)
	}
}

func TestSeedDev(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryRegistry()
	SeedDev(r)

	for _, tc := range []struct {
		kind store.Kind
		id   string
	}{
		{store.KindTeam, "team-dev"},
		{store.KindProperty, "prop-dev"},
		{store.KindWorkGroup, "wg-dev"},
	} {
		if _, err := r.GetResource(ctx, tc.kind, tc.id); err != nil {
			t.Errorf("seeded resource %s/%s missing: %v", tc.kind, tc.id, err)
		}
	}

	frozen, err := r.GetTenant(ctx, "tenant-frozen")
	if err != nil {
		t.Fatalf("GetTenant: %v", err)
	}
	if frozen.Status != TenantSuspended {
		t.Errorf("frozen tenant status = %s", frozen.Status)
	}
}
