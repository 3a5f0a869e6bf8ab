package valkey

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"github.com/brightstay/brightstay-invites/internal/cache"
)

func newTestCache(t *testing.T) *Cache {
	t.Helper()

	mr := miniredis.RunT(t)

	c, err := New(&options{Addr: mr.Addr()})
	if err != nil {
		t.Fatalf("failed to connect to test server: %v", err)
	}
	t.Cleanup(func() { c.Close() })

	return c
}

func TestSetGetDelete(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(t)

	if _, err := c.Get(ctx, "missing"); !errors.Is(err, cache.ErrNotFound) {
		t.Errorf("missing key: got %v, want ErrNotFound", err)
	}

	if err := c.Set(ctx, "k", []byte("v"), time.Minute); err != nil {
		t.Fatalf("Set: %v", err)
	}

	got, err := c.Get(ctx, "k")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(got) != "v" {
		t.Errorf("Get = %q", got)
	}

	ok, err := c.Exists(ctx, "k")
	if err != nil || !ok {
		t.Errorf("Exists = %v, %v", ok, err)
	}

	if err := c.Delete(ctx, "k"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if ok, _ := c.Exists(ctx, "k"); ok {
		t.Error("key exists after delete")
	}
}

func TestBinaryValues(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(t)

	value := []byte{0x00, 0xff, 0x10, 0x00}
	if err := c.Set(ctx, "bin", value, time.Minute); err != nil {
		t.Fatalf("Set: %v", err)
	}

	got, err := c.Get(ctx, "bin")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(got) != string(value) {
		t.Errorf("binary round trip mismatch: %v", got)
	}
}

func TestCounter(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(t)

	for want := int64(1); want <= 3; want++ {
		n, err := c.Increment(ctx, "ctr", 1, time.Minute)
		if err != nil {
			t.Fatalf("Increment: %v", err)
		}
		if n != want {
			t.Errorf("Increment = %d, want %d", n, want)
		}
	}

	n, err := c.GetCount(ctx, "ctr")
	if err != nil || n != 3 {
		t.Errorf("GetCount = %d, %v", n, err)
	}

	if err := c.Reset(ctx, "ctr"); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if n, _ := c.GetCount(ctx, "ctr"); n != 0 {
		t.Errorf("GetCount after reset = %d", n)
	}
}

func TestCounterWindowExpires(t *testing.T) {
	ctx := context.Background()

	mr := miniredis.RunT(t)
	c, err := New(&options{Addr: mr.Addr()})
	if err != nil {
		t.Fatalf("failed to connect to test server: %v", err)
	}
	defer c.Close()

	if _, err := c.Increment(ctx, "ctr", 5, time.Second); err != nil {
		t.Fatalf("Increment: %v", err)
	}

	mr.FastForward(2 * time.Second)

	n, err := c.Increment(ctx, "ctr", 1, time.Minute)
	if err != nil {
		t.Fatalf("Increment after expiry: %v", err)
	}
	if n != 1 {
		t.Errorf("Increment after expiry = %d, want 1", n)
	}
}
