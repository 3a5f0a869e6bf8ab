// Package testutil provides helpers for store driver tests.
package testutil

import (
	"context"
	"testing"

	"github.com/brightstay/brightstay-invites/internal/store"
)

// NewTestDriver creates an initialized driver backed by a per-test temp
// directory. The driver is closed automatically when the test finishes.
func NewTestDriver(t *testing.T, name string) store.Driver {
	t.Helper()

	d, err := store.New(&store.DriverConfig{
		Driver:  name,
		DataDir: t.TempDir(),
	})
	if err != nil {
		t.Fatalf("failed to create %s driver: %v", name, err)
	}

	if err := d.Init(context.Background()); err != nil {
		t.Fatalf("failed to init %s driver: %v", name, err)
	}

	t.Cleanup(func() {
		if err := d.Close(); err != nil {
			t.Errorf("failed to close %s driver: %v", name, err)
		}
	})

	return d
}
