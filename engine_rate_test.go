package tenantauth

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestAllowIPBudget(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	for i := 0; i < 100; i++ {
		d, err := env.engine.AllowIP(ctx, "10.0.0.1")
		if err != nil {
			t.Fatalf("request %d: %v", i+1, err)
		}
		if d.Remaining != 99-i {
			t.Fatalf("request %d: expected remaining %d, got %d", i+1, 99-i, d.Remaining)
		}
	}

	d, err := env.engine.AllowIP(ctx, "10.0.0.1")
	if !errors.Is(err, ErrRateLimitExceeded) {
		t.Fatalf("expected ErrRateLimitExceeded on request 101, got %v", err)
	}
	if d.Allowed || d.Limit != 100 || d.Remaining != 0 {
		t.Fatalf("unexpected decision: %+v", d)
	}
	if d.ResetAfter <= 0 || d.ResetAfter > time.Minute {
		t.Fatalf("reset after out of range: %s", d.ResetAfter)
	}

	// Other addresses keep their own budget.
	if _, err := env.engine.AllowIP(ctx, "10.0.0.2"); err != nil {
		t.Fatalf("other ip: %v", err)
	}
	if got := env.engine.MetricsSnapshot().Counters[MetricRateLimitHit]; got != 1 {
		t.Fatalf("expected one rate limit hit, got %d", got)
	}
}

func TestAllowUserFallsBackToIP(t *testing.T) {
	env := newTestEnv(t, func(cfg *Config, _ *Builder) {
		cfg.RateLimit.IPLimit = 2
		cfg.RateLimit.UserLimit = 3
	})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := env.engine.AllowUser(ctx, "t1", "u1", "10.0.0.1"); err != nil {
			t.Fatalf("user request %d: %v", i+1, err)
		}
	}
	if _, err := env.engine.AllowUser(ctx, "t1", "u1", "10.0.0.1"); !errors.Is(err, ErrRateLimitExceeded) {
		t.Fatalf("expected user budget exhausted, got %v", err)
	}

	// Anonymous requests count against the IP, which is still untouched.
	d, err := env.engine.AllowUser(ctx, "", "", "10.0.0.1")
	if err != nil {
		t.Fatalf("anonymous request: %v", err)
	}
	if d.Limit != 2 {
		t.Fatalf("expected IP limit 2, got %d", d.Limit)
	}
}

func TestRateLimitDisabled(t *testing.T) {
	env := newTestEnv(t, func(cfg *Config, _ *Builder) {
		cfg.RateLimit.Enabled = false
	})
	for i := 0; i < 200; i++ {
		d, err := env.engine.AllowIP(context.Background(), "10.0.0.1")
		if err != nil || !d.Allowed {
			t.Fatalf("request %d rejected with rate limiting disabled: %v", i+1, err)
		}
	}
}

func TestRateLimitBackendDown(t *testing.T) {
	env := newTestEnv(t, nil)
	env.mr.Close()

	if _, err := env.engine.AllowIP(context.Background(), "10.0.0.1"); !errors.Is(err, ErrPersistence) {
		t.Fatalf("expected ErrPersistence, got %v", err)
	}
}
