package tenantauth

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MrEthical07/tenantauth/identity"
)

func countingLookup(calls *atomic.Int32, delay time.Duration) tenantLookup {
	return func(_ context.Context, code string) (identity.Tenant, error) {
		calls.Add(1)
		if delay > 0 {
			time.Sleep(delay)
		}
		if code != "demo" {
			return identity.Tenant{}, identity.ErrNotFound
		}
		return identity.Tenant{ID: "t-demo", Code: code, Active: true}, nil
	}
}

func TestTenantCacheHitsAndNormalizes(t *testing.T) {
	var calls atomic.Int32
	c := newTenantCache(countingLookup(&calls, 0), 8, time.Minute)

	for _, code := range []string{"demo", " DEMO ", "Demo"} {
		got, err := c.Resolve(context.Background(), code)
		if err != nil {
			t.Fatalf("resolve %q: %v", code, err)
		}
		if got.ID != "t-demo" {
			t.Fatalf("unexpected tenant %+v", got)
		}
	}
	if calls.Load() != 1 {
		t.Fatalf("expected one store lookup, got %d", calls.Load())
	}

	c.Invalidate("DEMO")
	if _, err := c.Resolve(context.Background(), "demo"); err != nil {
		t.Fatalf("resolve after invalidate: %v", err)
	}
	if calls.Load() != 2 {
		t.Fatalf("expected a lookup after invalidate, got %d", calls.Load())
	}
}

func TestTenantCacheDoesNotCacheMisses(t *testing.T) {
	var calls atomic.Int32
	c := newTenantCache(countingLookup(&calls, 0), 8, time.Minute)

	for i := 0; i < 2; i++ {
		if _, err := c.Resolve(context.Background(), "missing"); !errors.Is(err, identity.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	}
	if calls.Load() != 2 {
		t.Fatalf("misses must not be cached, got %d lookups", calls.Load())
	}
	if _, err := c.Resolve(context.Background(), "  "); !errors.Is(err, identity.ErrNotFound) {
		t.Fatalf("blank code: expected ErrNotFound, got %v", err)
	}
	if calls.Load() != 2 {
		t.Fatal("blank code must not reach the store")
	}
}

func TestTenantCacheCoalescesConcurrentMisses(t *testing.T) {
	var calls atomic.Int32
	c := newTenantCache(countingLookup(&calls, 50*time.Millisecond), 8, time.Minute)

	const n = 10
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			if _, err := c.Resolve(context.Background(), "demo"); err != nil {
				t.Errorf("resolve: %v", err)
			}
		}()
	}
	wg.Wait()

	if calls.Load() != 1 {
		t.Fatalf("expected concurrent misses to share one lookup, got %d", calls.Load())
	}
}

func TestTenantCacheDisabled(t *testing.T) {
	var calls atomic.Int32
	c := newTenantCache(countingLookup(&calls, 0), 0, 0)
	for i := 0; i < 3; i++ {
		if _, err := c.Resolve(context.Background(), "demo"); err != nil {
			t.Fatalf("resolve: %v", err)
		}
	}
	if calls.Load() != 3 {
		t.Fatalf("expected every resolve to hit the store, got %d", calls.Load())
	}
}
