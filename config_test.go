package tenantauth

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/MrEthical07/tenantauth/lockout"
)

func TestDefaultConfigNeedsKey(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err == nil {
		t.Fatal("default config without a key must not validate")
	}
	cfg.JWT.PrivateKey = []byte(testSecret)
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config with key: %v", err)
	}
}

func TestConfigValidateRejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"short secret", func(c *Config) { c.JWT.PrivateKey = []byte("short") }, "at least 32 bytes"},
		{"unknown method", func(c *Config) { c.JWT.SigningMethod = "none" }, "unsupported"},
		{"ed25519 without key", func(c *Config) { c.JWT.SigningMethod = "ed25519"; c.JWT.PrivateKey = nil }, "requires PrivateKey"},
		{"same previous kid", func(c *Config) { c.JWT.PreviousKeyID = "k1"; c.JWT.PreviousPublicKey = []byte(testSecret) }, "PreviousKeyID"},
		{"zero access ttl", func(c *Config) { c.JWT.AccessTTL = 0 }, "AccessTTL"},
		{"refresh shorter than access", func(c *Config) { c.JWT.RefreshTTL = time.Minute }, "RefreshTTL must be >="},
		{"leeway too large", func(c *Config) { c.JWT.Leeway = 5 * time.Minute }, "Leeway"},
		{"weak argon memory", func(c *Config) { c.Password.Memory = 1024 }, "Memory"},
		{"min above max", func(c *Config) { c.Password.MinLength = 100; c.Password.MaxLength = 10 }, "MinLength"},
		{"lockout threshold", func(c *Config) { c.Lockout.Threshold = 0 }, "threshold"},
		{"lockout policy", func(c *Config) { c.Lockout.FailurePolicy = "maybe" }, "policy"},
		{"rate limit", func(c *Config) { c.RateLimit.IPLimit = 0 }, "RateLimit"},
		{"tenant cache ttl", func(c *Config) { c.Tenant.CacheTTL = 0 }, "CacheTTL"},
		{"audit buffer", func(c *Config) { c.Audit.Enabled = true; c.Audit.BufferSize = 0 }, "BufferSize"},
		{"log format", func(c *Config) { c.Logging.Format = "xml" }, "Format"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}

func TestConfigDisabledFeaturesSkipChecks(t *testing.T) {
	cfg := testConfig()
	cfg.Lockout = lockout.Config{Enabled: false}
	cfg.RateLimit = RateLimitConfig{Enabled: false}
	cfg.Tenant.CacheSize = 0
	cfg.Tenant.CacheTTL = 0
	if err := cfg.Validate(); err != nil {
		t.Fatalf("disabled features should not be validated: %v", err)
	}
}

func TestBuilderValidatesConfig(t *testing.T) {
	if _, err := New().WithIdentityStore(nil).Build(); err == nil {
		t.Fatal("build without key must fail")
	}

	b := New().WithConfig(testConfig()).WithLogger(quietLogger())
	if _, err := b.Build(); err == nil || !strings.Contains(err.Error(), "identity store") {
		t.Fatalf("expected identity store error, got %v", err)
	}
}

func TestBuilderSingleUse(t *testing.T) {
	env := newTestEnv(t, nil)
	b := New().WithConfig(testConfig()).WithLogger(quietLogger()).WithRedis(env.rdb).WithIdentityStore(env.store)
	if _, err := b.Build(); err != nil {
		t.Fatalf("first build: %v", err)
	}
	if _, err := b.Build(); err == nil {
		t.Fatal("second build must fail")
	}
}

func TestLoadConfigYAMLAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yamlDoc := `
jwt:
  issuer: acme-auth
  access_ttl: 5m
  secret: ` + testSecret + `
lockout:
  enabled: true
  threshold: 7
  duration: 30m
  failure_policy: retryable
rate_limit:
  enabled: true
  ip_limit: 50
  ip_window: 30s
  user_limit: 60
  user_window: 1m
logging:
  format: json
database:
  state_backend: Postgres
http:
  trust_proxy: true
`
	if err := os.WriteFile(path, []byte(yamlDoc), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv("TENANTAUTH_RATE_LIMIT_IP_LIMIT", "75")
	t.Setenv("TENANTAUTH_JWT_KEY_ID", "env-kid")
	t.Setenv("TENANTAUTH_HTTP_LIVE_VALIDATION", "true")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.JWT.Issuer != "acme-auth" || cfg.JWT.AccessTTL != 5*time.Minute {
		t.Fatalf("yaml jwt values not applied: %+v", cfg.JWT)
	}
	if string(cfg.JWT.PrivateKey) != testSecret {
		t.Fatal("secret must be resolved into PrivateKey")
	}
	if cfg.JWT.KeyID != "env-kid" {
		t.Fatalf("env override of key id not applied: %q", cfg.JWT.KeyID)
	}
	if cfg.JWT.RefreshTTL != 7*24*time.Hour {
		t.Fatalf("unset values keep defaults, got refresh ttl %s", cfg.JWT.RefreshTTL)
	}
	if cfg.Lockout.Threshold != 7 || cfg.Lockout.FailurePolicy != lockout.Retryable {
		t.Fatalf("lockout values not applied: %+v", cfg.Lockout)
	}
	if cfg.RateLimit.IPLimit != 75 || cfg.RateLimit.IPWindow != 30*time.Second {
		t.Fatalf("rate limit values not applied: %+v", cfg.RateLimit)
	}
	if cfg.Logging.Format != "json" {
		t.Fatalf("expected json logging, got %q", cfg.Logging.Format)
	}
	if cfg.Database.StateBackend != "postgres" {
		t.Fatalf("state backend must be normalized, got %q", cfg.Database.StateBackend)
	}
	if !cfg.HTTP.TrustProxy || !cfg.HTTP.LiveValidation {
		t.Fatalf("http values not applied: %+v", cfg.HTTP)
	}
}

func TestLoadConfigEnvOnly(t *testing.T) {
	t.Setenv("TENANTAUTH_JWT_SECRET", testSecret)
	t.Setenv("TENANTAUTH_LOCKOUT_ENABLED", "false")
	t.Setenv("TENANTAUTH_JWT_ACCESS_TTL", "10m")

	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Lockout.Enabled {
		t.Fatal("lockout should be disabled from env")
	}
	if cfg.JWT.AccessTTL != 10*time.Minute {
		t.Fatalf("expected 10m access ttl, got %s", cfg.JWT.AccessTTL)
	}
}

func TestLoadConfigErrors(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}

	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("jwt: [unclosed"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := LoadConfig(path); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestCloneConfigCopiesKeys(t *testing.T) {
	cfg := testConfig()
	clone := cloneConfig(cfg)
	clone.JWT.PrivateKey[0] = 'X'
	if cfg.JWT.PrivateKey[0] == 'X' {
		t.Fatal("cloneConfig must deep copy key material")
	}
}
