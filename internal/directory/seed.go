package directory

import "github.com/brightstay/brightstay-invites/internal/store"

// SeedDev populates the registry with a small fixture set for development
// mode: one active tenant with a team, a property, and a work group, plus a
// suspended tenant to exercise the standing checks.
func SeedDev(r *MemoryRegistry) {
	r.AddTenant(&Tenant{ID: "tenant-dev", Name: "Dev Host Co", Status: TenantActive})
	r.AddTenant(&Tenant{ID: "tenant-frozen", Name: "Frozen Host Co", Status: TenantSuspended})

	r.AddResource(&Resource{ID: "team-dev", Kind: store.KindTeam, TenantID: "tenant-dev", Name: "Dev Cleaning Team"})
	r.AddResource(&Resource{ID: "prop-dev", Kind: store.KindProperty, TenantID: "tenant-dev", Name: "Seaside Apartment"})
	r.AddResource(&Resource{ID: "wg-dev", Kind: store.KindWorkGroup, TenantID: "tenant-dev", Name: "Weekend Crew"})

	r.AddResource(&Resource{ID: "team-frozen", Kind: store.KindTeam, TenantID: "tenant-frozen", Name: "Frozen Team"})
}
