package tenantauth

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/MrEthical07/tenantauth/identity/memstore"
)

func newAuditEnv(t *testing.T, mutate func(*Config)) (*testEnv, *ChannelSink) {
	t.Helper()
	sink := NewChannelSink(64)
	env := newTestEnv(t, func(cfg *Config, b *Builder) {
		cfg.Audit.Enabled = true
		cfg.Audit.BufferSize = 64
		cfg.Audit.DropIfFull = false
		if mutate != nil {
			mutate(cfg)
		}
		b.WithAuditSink(sink)
	})
	return env, sink
}

func nextEvent(t *testing.T, sink *ChannelSink) AuditEvent {
	t.Helper()
	select {
	case e := <-sink.Events():
		return e
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for audit event")
		return AuditEvent{}
	}
}

func TestAuditLoginSuccessCarriesClient(t *testing.T) {
	env, sink := newAuditEnv(t, nil)
	ctx := WithUserAgent(WithClientIP(context.Background(), "203.0.113.7"), "test-agent/1.0")

	res, err := env.engine.Login(ctx, memstore.DemoTenantCode, memstore.DemoAdminEmail, memstore.DemoAdminPassword)
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	e := nextEvent(t, sink)
	if e.EventType != auditEventLoginSuccess || !e.Success {
		t.Fatalf("unexpected event: %+v", e)
	}
	if e.UserID != res.User.ID || e.TenantID != res.User.TenantID {
		t.Fatalf("event identity mismatch: %+v", e)
	}
	if e.IP != "203.0.113.7" || e.UserAgent != "test-agent/1.0" {
		t.Fatalf("client metadata missing: %+v", e)
	}
	if e.SessionID == "" {
		t.Fatal("login event must carry the session id")
	}
}

func TestAuditLoginFailureReason(t *testing.T) {
	env, sink := newAuditEnv(t, nil)
	ctx := context.Background()

	_, _ = env.engine.Login(ctx, memstore.DemoTenantCode, "ghost@demo.com", "whatever1")
	e := nextEvent(t, sink)
	if e.EventType != auditEventLoginFailure || e.Success {
		t.Fatalf("unexpected event: %+v", e)
	}
	if e.Error != string(auditErrInvalidCredentials) {
		t.Fatalf("expected invalid credentials code, got %q", e.Error)
	}
	if e.Metadata["reason"] != "user_not_found" {
		t.Fatalf("expected user_not_found reason, got %q", e.Metadata["reason"])
	}

	_, _ = env.engine.Login(ctx, "nope", memstore.DemoAdminEmail, memstore.DemoAdminPassword)
	e = nextEvent(t, sink)
	if e.Error != string(auditErrTenantNotFound) {
		t.Fatalf("expected tenant_not_found, got %q", e.Error)
	}
}

func TestAuditLockoutAndReuse(t *testing.T) {
	env, sink := newAuditEnv(t, func(cfg *Config) { cfg.Lockout.Threshold = 1 })
	ctx := context.Background()

	_, _ = env.engine.Login(ctx, memstore.DemoTenantCode, memstore.DemoUserEmail, "wrong-pass")
	if e := nextEvent(t, sink); e.EventType != auditEventAccountLocked {
		t.Fatalf("expected account_locked first, got %q", e.EventType)
	}
	if e := nextEvent(t, sink); e.EventType != auditEventLoginFailure {
		t.Fatalf("expected login_failure, got %q", e.EventType)
	}

	res := env.loginAdmin(t)
	_ = nextEvent(t, sink)
	if _, err := env.engine.Refresh(ctx, res.RefreshToken); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	_ = nextEvent(t, sink)
	if _, err := env.engine.Refresh(ctx, res.RefreshToken); !errors.Is(err, ErrReusedToken) {
		t.Fatalf("expected reuse, got %v", err)
	}
	e := nextEvent(t, sink)
	if e.EventType != auditEventRefreshReuseDetected || e.Error != string(auditErrRefreshReuse) {
		t.Fatalf("unexpected reuse event: %+v", e)
	}
}

func TestAuditDisabledEmitsNothing(t *testing.T) {
	sink := NewChannelSink(4)
	env := newTestEnv(t, func(_ *Config, b *Builder) {
		b.WithAuditSink(sink)
	})
	env.loginAdmin(t)

	select {
	case e := <-sink.Events():
		t.Fatalf("unexpected audit event with audit disabled: %+v", e)
	case <-time.After(50 * time.Millisecond):
	}
	if env.engine.AuditDropped() != 0 {
		t.Fatal("disabled audit must not count drops")
	}
}

func TestAuditErrorCodeMapping(t *testing.T) {
	tests := []struct {
		err  error
		want AuditErrorCode
	}{
		{nil, ""},
		{ErrInvalidCredentials, auditErrInvalidCredentials},
		{fmt.Errorf("%w: redis down", ErrPersistence), auditErrUnavailable},
		{ErrReusedToken, auditErrRefreshReuse},
		{fmt.Errorf("%w: x", ErrCrossTenantRole), auditErrCrossTenantRole},
		{errors.New("boom"), auditErrInternal},
	}
	for _, tt := range tests {
		if got := auditErrorCode(tt.err); got != tt.want {
			t.Fatalf("auditErrorCode(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}
