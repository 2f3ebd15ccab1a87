package tenantauth

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/MrEthical07/tenantauth/identity/memstore"
	"github.com/MrEthical07/tenantauth/password"
)

const testSecret = "0123456789abcdef0123456789abcdef"

type testEnv struct {
	engine *Engine
	store  *memstore.Store
	demo   memstore.Demo
	mr     *miniredis.Miniredis
	rdb    *redis.Client
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.JWT.PrivateKey = []byte(testSecret)
	cfg.JWT.KeyID = "k1"
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	return cfg
}

func quietLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func newTestEnv(t testing.TB, mutate func(*Config, *Builder)) *testEnv {
	t.Helper()
	ctx := context.Background()

	cfg := testConfig()
	b := New().WithLogger(quietLogger())
	if mutate != nil {
		mutate(&cfg, b)
	}

	hasher, err := password.NewArgon2(password.Config{Memory: 8 * 1024, Time: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32})
	if err != nil {
		t.Fatalf("hasher: %v", err)
	}
	store := memstore.New()
	demo, err := memstore.SeedDemo(ctx, store, hasher.Hash)
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	engine, err := b.WithConfig(cfg).WithRedis(rdb).WithIdentityStore(store).Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	t.Cleanup(func() {
		engine.Close()
		_ = rdb.Close()
		mr.Close()
	})

	return &testEnv{engine: engine, store: store, demo: demo, mr: mr, rdb: rdb}
}

func (env *testEnv) loginAdmin(t testing.TB) *AuthResult {
	t.Helper()
	res, err := env.engine.Login(context.Background(), memstore.DemoTenantCode, memstore.DemoAdminEmail, memstore.DemoAdminPassword)
	if err != nil {
		t.Fatalf("admin login: %v", err)
	}
	return res
}

func TestDemoScenario(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	res := env.loginAdmin(t)
	if res.TokenType != TokenTypeBearer {
		t.Fatalf("expected Bearer token type, got %q", res.TokenType)
	}
	if res.ExpiresIn != int64((15 * time.Minute).Seconds()) {
		t.Fatalf("expected expires_in 900, got %d", res.ExpiresIn)
	}
	if res.User.TenantID != env.demo.Tenant.ID || res.User.ID != env.demo.Admin.ID {
		t.Fatalf("unexpected user view: %+v", res.User)
	}
	if len(res.User.Roles) != 1 || res.User.Roles[0] != "admin" {
		t.Fatalf("expected admin role, got %v", res.User.Roles)
	}
	if len(res.User.Permissions) != 22 {
		t.Fatalf("expected 22 admin permissions, got %d", len(res.User.Permissions))
	}

	claims, err := env.engine.Validate(ctx, res.AccessToken)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if !claims.Has("users.create") {
		t.Fatal("admin should hold users.create")
	}
	if claims.Has("system.settings") {
		t.Fatal("admin must not hold system.settings")
	}

	refreshed, err := env.engine.Refresh(ctx, res.RefreshToken)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if refreshed.RefreshToken == res.RefreshToken {
		t.Fatal("refresh must rotate the refresh token")
	}

	if _, err := env.engine.Refresh(ctx, res.RefreshToken); !errors.Is(err, ErrReusedToken) {
		t.Fatalf("expected ErrReusedToken on replay, got %v", err)
	}
	// Reuse revokes the whole chain, including the successor.
	if _, err := env.engine.Refresh(ctx, refreshed.RefreshToken); !errors.Is(err, ErrReusedToken) {
		t.Fatalf("successor must be revoked after reuse detection, got %v", err)
	}

	// Both replays count as reuse.
	m := env.engine.MetricsSnapshot()
	if m.Counters[MetricLoginSuccess] != 1 || m.Counters[MetricRefreshSuccess] != 1 || m.Counters[MetricRefreshReuseDetected] != 2 {
		t.Fatalf("unexpected counters: %+v", m.Counters)
	}
}

func TestDemoUserPermissions(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	res, err := env.engine.Login(ctx, "DEMO", "User@Demo.com", memstore.DemoUserPassword)
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	want := []string{"orders.read", "products.read"}
	if len(res.User.Permissions) != len(want) {
		t.Fatalf("expected %v, got %v", want, res.User.Permissions)
	}
	for i := range want {
		if res.User.Permissions[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, res.User.Permissions)
		}
	}

	if _, err := env.engine.Authorize(ctx, res.AccessToken, "products.read"); err != nil {
		t.Fatalf("authorize products.read: %v", err)
	}
	if _, err := env.engine.Authorize(ctx, res.AccessToken, "users.create"); !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("expected ErrPermissionDenied, got %v", err)
	}
	if _, err := env.engine.Authorize(ctx, res.AccessToken, "nothing.here"); !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("expected unknown code to be denied, got %v", err)
	}
	if got := env.engine.MetricsSnapshot().Counters[MetricPermissionDenied]; got != 2 {
		t.Fatalf("expected 2 permission denials, got %d", got)
	}
}

func TestLoginFailures(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	tests := []struct {
		name     string
		tenant   string
		email    string
		password string
		want     error
	}{
		{"unknown tenant", "nope", memstore.DemoAdminEmail, memstore.DemoAdminPassword, ErrTenantNotFound},
		{"empty tenant", "", memstore.DemoAdminEmail, memstore.DemoAdminPassword, ErrTenantNotFound},
		{"unknown user", memstore.DemoTenantCode, "ghost@demo.com", "whatever1", ErrInvalidCredentials},
		{"wrong password", memstore.DemoTenantCode, memstore.DemoUserEmail, "wrong-pass", ErrInvalidCredentials},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := env.engine.Login(ctx, tt.tenant, tt.email, tt.password)
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
			if res != nil {
				t.Fatal("expected nil result on failure")
			}
		})
	}
}

func TestLoginDisabledUser(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	if err := env.store.SetUserActive(ctx, env.demo.Tenant.ID, env.demo.User.ID, false); err != nil {
		t.Fatalf("disable: %v", err)
	}
	if _, err := env.engine.Login(ctx, memstore.DemoTenantCode, memstore.DemoUserEmail, memstore.DemoUserPassword); !errors.Is(err, ErrAccountDisabled) {
		t.Fatalf("expected ErrAccountDisabled, got %v", err)
	}
	// A wrong password still reads as invalid credentials.
	if _, err := env.engine.Login(ctx, memstore.DemoTenantCode, memstore.DemoUserEmail, "wrong-pass"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestRefreshDisabledUserRevokesChain(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	res, err := env.engine.Login(ctx, memstore.DemoTenantCode, memstore.DemoUserEmail, memstore.DemoUserPassword)
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if err := env.store.SetUserActive(ctx, env.demo.Tenant.ID, env.demo.User.ID, false); err != nil {
		t.Fatalf("disable: %v", err)
	}
	if _, err := env.engine.Refresh(ctx, res.RefreshToken); !errors.Is(err, ErrAccountDisabled) {
		t.Fatalf("expected ErrAccountDisabled, got %v", err)
	}

	if err := env.store.SetUserActive(ctx, env.demo.Tenant.ID, env.demo.User.ID, true); err != nil {
		t.Fatalf("enable: %v", err)
	}
	if _, err := env.engine.Refresh(ctx, res.RefreshToken); err == nil {
		t.Fatal("chain must stay revoked after the user is re-enabled")
	}
}

func TestRefreshInactiveTenantRevokesChain(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	res := env.loginAdmin(t)

	if err := env.store.SetTenantActive(ctx, env.demo.Tenant.ID, false); err != nil {
		t.Fatalf("disable tenant: %v", err)
	}
	if _, err := env.engine.Refresh(ctx, res.RefreshToken); !errors.Is(err, ErrTenantNotFound) {
		t.Fatalf("expected ErrTenantNotFound, got %v", err)
	}

	if err := env.store.SetTenantActive(ctx, env.demo.Tenant.ID, true); err != nil {
		t.Fatalf("enable tenant: %v", err)
	}
	if _, err := env.engine.Refresh(ctx, res.RefreshToken); err == nil {
		t.Fatal("chain must stay revoked after the tenant is re-enabled")
	}
}

func TestRefreshPicksUpPermissionChanges(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	res, err := env.engine.Login(ctx, memstore.DemoTenantCode, memstore.DemoUserEmail, memstore.DemoUserPassword)
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if err := env.store.RevokePermission(ctx, env.demo.UserRole.ID, "orders.read"); err != nil {
		t.Fatalf("revoke: %v", err)
	}

	// The access token keeps its snapshot.
	claims, err := env.engine.Validate(ctx, res.AccessToken)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if !claims.Has("orders.read") {
		t.Fatal("snapshot should still carry orders.read")
	}

	live, err := env.engine.ValidateLive(ctx, res.AccessToken)
	if err != nil {
		t.Fatalf("validate live: %v", err)
	}
	if live.Has("orders.read") {
		t.Fatal("live validation must drop orders.read")
	}

	next, err := env.engine.Refresh(ctx, res.RefreshToken)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if len(next.User.Permissions) != 1 || next.User.Permissions[0] != "products.read" {
		t.Fatalf("expected only products.read after refresh, got %v", next.User.Permissions)
	}
}

func TestValidateRejectsBadTokens(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	res := env.loginAdmin(t)

	if _, err := env.engine.Validate(ctx, "not-a-token"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
	if _, err := env.engine.Validate(ctx, res.RefreshToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("refresh token must not validate as access token, got %v", err)
	}
	if _, err := env.engine.Refresh(ctx, res.AccessToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("access token must not refresh, got %v", err)
	}
}

func TestValidateExpiredToken(t *testing.T) {
	now := time.Now()
	env := newTestEnv(t, func(_ *Config, b *Builder) {
		b.WithClock(func() time.Time { return now })
	})
	res := env.loginAdmin(t)

	now = now.Add(16 * time.Minute)
	if _, err := env.engine.Validate(context.Background(), res.AccessToken); !errors.Is(err, ErrExpiredToken) {
		t.Fatalf("expected ErrExpiredToken, got %v", err)
	}
}

func TestLogout(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	res := env.loginAdmin(t)

	if err := env.engine.Logout(ctx, res.RefreshToken); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if _, err := env.engine.Refresh(ctx, res.RefreshToken); err == nil {
		t.Fatal("refresh after logout must fail")
	}
	// Logging out twice is not an error.
	if err := env.engine.Logout(ctx, res.RefreshToken); err != nil {
		t.Fatalf("second logout: %v", err)
	}
	if err := env.engine.Logout(ctx, "garbage"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestLogoutAll(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	first := env.loginAdmin(t)
	second := env.loginAdmin(t)

	if err := env.engine.LogoutAll(ctx, env.demo.Tenant.ID, env.demo.Admin.ID); err != nil {
		t.Fatalf("logout all: %v", err)
	}
	for _, rt := range []string{first.RefreshToken, second.RefreshToken} {
		if _, err := env.engine.Refresh(ctx, rt); err == nil {
			t.Fatal("refresh after logout all must fail")
		}
	}
}

func TestRehashOnLogin(t *testing.T) {
	env := newTestEnv(t, func(cfg *Config, _ *Builder) {
		cfg.Password.Time = 2
	})
	ctx := context.Background()

	before := env.demo.Admin.PasswordHash
	env.loginAdmin(t)

	u, err := env.store.UserByID(ctx, env.demo.Tenant.ID, env.demo.Admin.ID)
	if err != nil {
		t.Fatalf("load user: %v", err)
	}
	if u.PasswordHash == before {
		t.Fatal("expected hash to be upgraded")
	}
	if got := env.engine.MetricsSnapshot().Counters[MetricPasswordRehash]; got != 1 {
		t.Fatalf("expected one rehash, got %d", got)
	}

	// The upgraded hash still verifies.
	env.loginAdmin(t)
	if got := env.engine.MetricsSnapshot().Counters[MetricPasswordRehash]; got != 1 {
		t.Fatalf("expected no second rehash, got %d", got)
	}
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, nil)
	if err := env.engine.Health(context.Background()); err != nil {
		t.Fatalf("health: %v", err)
	}
	env.mr.Close()
	if err := env.engine.Health(context.Background()); !errors.Is(err, ErrPersistence) {
		t.Fatalf("expected ErrPersistence, got %v", err)
	}
}

func TestNilEngineNotReady(t *testing.T) {
	var e *Engine
	if _, err := e.Login(context.Background(), "demo", "a@b.c", "x"); !errors.Is(err, ErrEngineNotReady) {
		t.Fatalf("expected ErrEngineNotReady, got %v", err)
	}
	if _, err := e.Validate(context.Background(), "x"); !errors.Is(err, ErrEngineNotReady) {
		t.Fatalf("expected ErrEngineNotReady, got %v", err)
	}
}
