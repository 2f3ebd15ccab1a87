package tenantauth

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/MrEthical07/tenantauth/lockout"
	"github.com/MrEthical07/tenantauth/password"
	"gopkg.in/yaml.v3"
)

// Config is the complete engine and daemon configuration. Build copies it;
// later mutation of the caller's value has no effect on a built Engine.
type Config struct {
	JWT       JWTConfig       `yaml:"jwt"`
	Session   SessionConfig   `yaml:"session"`
	Password  PasswordConfig  `yaml:"password"`
	Lockout   lockout.Config  `yaml:"lockout"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Tenant    TenantConfig    `yaml:"tenant"`
	Audit     AuditConfig     `yaml:"audit"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Redis     RedisConfig     `yaml:"redis"`
	Database  DatabaseConfig  `yaml:"database"`
	Logging   LoggingConfig   `yaml:"logging"`
	HTTP      HTTPConfig      `yaml:"http"`
}

/*
====================================
JWT CONFIG
====================================
*/

// JWTConfig selects the signing key and token lifetimes.
//
// For hs256, PrivateKey holds the shared secret. For ed25519 and rs256 it
// holds the private key (raw or PEM) and PublicKey is optional. Previous*
// registers the verification key of a retired signer during rotation.
type JWTConfig struct {
	Issuer        string        `yaml:"issuer"`
	Audience      string        `yaml:"audience"`
	AccessTTL     time.Duration `yaml:"access_ttl"`
	RefreshTTL    time.Duration `yaml:"refresh_ttl"`
	Leeway        time.Duration `yaml:"leeway"`
	SigningMethod string        `yaml:"signing_method"` // "hs256" (default), "ed25519", "rs256"
	KeyID         string        `yaml:"key_id"`

	// Secret and the *File fields are resolved into key bytes by LoadConfig.
	Secret         string `yaml:"secret"`
	PrivateKeyFile string `yaml:"private_key_file"`
	PublicKeyFile  string `yaml:"public_key_file"`

	PrivateKey []byte `yaml:"-"`
	PublicKey  []byte `yaml:"-"`

	PreviousKeyID     string `yaml:"previous_key_id"`
	PreviousPublicKey []byte `yaml:"-"`
}

/*
====================================
SESSION CONFIG
====================================
*/

// SessionConfig controls the Redis session namespace. Use a hash tagged
// prefix such as "{ta}" with Redis Cluster.
type SessionConfig struct {
	RedisPrefix string `yaml:"redis_prefix"`
}

/*
====================================
PASSWORD CONFIG
====================================
*/

// PasswordConfig holds argon2id costs and the length policy.
type PasswordConfig struct {
	Memory      uint32 `yaml:"memory"`
	Time        uint32 `yaml:"time"`
	Parallelism uint8  `yaml:"parallelism"`
	SaltLength  uint32 `yaml:"salt_length"`
	KeyLength   uint32 `yaml:"key_length"`
	MinLength   int    `yaml:"min_length"`
	MaxLength   int    `yaml:"max_length"`
	// UpgradeOnLogin rehashes a stored hash with current costs after a
	// successful login. The update is best effort.
	UpgradeOnLogin bool `yaml:"upgrade_on_login"`
}

func (c PasswordConfig) argon2() password.Config {
	return password.Config{
		Memory:      c.Memory,
		Time:        c.Time,
		Parallelism: c.Parallelism,
		SaltLength:  c.SaltLength,
		KeyLength:   c.KeyLength,
		MinLength:   c.MinLength,
		MaxLength:   c.MaxLength,
	}
}

/*
====================================
RATE LIMIT CONFIG
====================================
*/

// RateLimitConfig defines the two fixed window limiters.
type RateLimitConfig struct {
	Enabled     bool          `yaml:"enabled"`
	RedisPrefix string        `yaml:"redis_prefix"`
	IPLimit     int           `yaml:"ip_limit"`
	IPWindow    time.Duration `yaml:"ip_window"`
	UserLimit   int           `yaml:"user_limit"`
	UserWindow  time.Duration `yaml:"user_window"`
}

/*
====================================
TENANT CONFIG
====================================
*/

// TenantConfig sizes the tenant code cache. CacheSize 0 disables it.
type TenantConfig struct {
	CacheSize int           `yaml:"cache_size"`
	CacheTTL  time.Duration `yaml:"cache_ttl"`
}

/*
====================================
AUDIT CONFIG
====================================
*/

// AuditConfig controls asynchronous audit delivery.
type AuditConfig struct {
	Enabled    bool `yaml:"enabled"`
	BufferSize int  `yaml:"buffer_size"`
	DropIfFull bool `yaml:"drop_if_full"`
}

/*
====================================
INFRASTRUCTURE CONFIG
====================================
*/

// RedisConfig is used by cmd/authd to dial Redis.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// DatabaseConfig is used by cmd/authd to open Postgres.
type DatabaseConfig struct {
	DSN             string        `yaml:"dsn"`
	MaxConnections  int           `yaml:"max_connections"`
	MinConnections  int           `yaml:"min_connections"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	AutoMigrate     bool          `yaml:"auto_migrate"`
	SeedDemo        bool          `yaml:"seed_demo"`
	// StateBackend holds lockout counters and sessions: "redis" (default)
	// or "postgres".
	StateBackend string `yaml:"state_backend"`
}

// LoggingConfig selects the logrus level and formatter.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "text" or "json"
}

// HTTPConfig is used by cmd/authd for the listener.
type HTTPConfig struct {
	Addr            string        `yaml:"addr"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	// TrustProxy takes the client IP from X-Forwarded-For.
	TrustProxy bool `yaml:"trust_proxy"`
	// LiveValidation re-resolves permissions on authenticated routes.
	LiveValidation bool `yaml:"live_validation"`
}

/*
====================================
DEFAULT CONFIG
====================================
*/

// DefaultConfig returns development defaults. The JWT key must still be
// provided before Validate passes.
func DefaultConfig() Config {
	pw := password.DefaultConfig()
	return Config{
		JWT: JWTConfig{
			Issuer:        "tenantauth",
			AccessTTL:     15 * time.Minute,
			RefreshTTL:    7 * 24 * time.Hour,
			Leeway:        30 * time.Second,
			SigningMethod: "hs256",
		},
		Session: SessionConfig{
			RedisPrefix: "ta",
		},
		Password: PasswordConfig{
			Memory:         pw.Memory,
			Time:           pw.Time,
			Parallelism:    pw.Parallelism,
			SaltLength:     pw.SaltLength,
			KeyLength:      pw.KeyLength,
			MinLength:      pw.MinLength,
			MaxLength:      pw.MaxLength,
			UpgradeOnLogin: true,
		},
		Lockout: lockout.DefaultConfig(),
		RateLimit: RateLimitConfig{
			Enabled:     true,
			RedisPrefix: "ta:rl",
			IPLimit:     100,
			IPWindow:    time.Minute,
			UserLimit:   200,
			UserWindow:  time.Minute,
		},
		Tenant: TenantConfig{
			CacheSize: 1024,
			CacheTTL:  time.Minute,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 true,
			EnableLatencyHistograms: true,
		},
		Redis: RedisConfig{
			Addr: "localhost:6379",
		},
		Database: DatabaseConfig{
			MaxConnections:  25,
			MinConnections:  5,
			ConnMaxLifetime: 30 * time.Minute,
			StateBackend:    "redis",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		HTTP: HTTPConfig{
			Addr:            ":8080",
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    10 * time.Second,
			ShutdownTimeout: 15 * time.Second,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.JWT.PrivateKey = cloneBytes(cfg.JWT.PrivateKey)
	out.JWT.PublicKey = cloneBytes(cfg.JWT.PublicKey)
	out.JWT.PreviousPublicKey = cloneBytes(cfg.JWT.PreviousPublicKey)
	return out
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

/*
====================================
VALIDATION
====================================
*/

// Validate checks every section and returns the first problem found.
func (c *Config) Validate() error {
	if err := c.validateKeys(); err != nil {
		return err
	}
	return c.validateSettings()
}

// validateKeys checks JWT key material. Builders given an explicit signer
// skip it.
func (c *Config) validateKeys() error {
	switch c.JWT.SigningMethod {
	case "hs256":
		if len(c.JWT.PrivateKey) < 32 {
			return errors.New("hs256 requires a PrivateKey of at least 32 bytes")
		}
	case "ed25519", "rs256":
		if len(c.JWT.PrivateKey) == 0 {
			return fmt.Errorf("%s requires PrivateKey", c.JWT.SigningMethod)
		}
	default:
		return errors.New("unsupported JWT signing method")
	}
	if len(c.JWT.PreviousPublicKey) > 0 && c.JWT.PreviousKeyID == c.JWT.KeyID {
		return errors.New("JWT PreviousKeyID must differ from KeyID")
	}
	return nil
}

func (c *Config) validateSettings() error {
	// JWT
	if c.JWT.AccessTTL <= 0 {
		return errors.New("JWT AccessTTL must be > 0")
	}
	if c.JWT.RefreshTTL <= 0 {
		return errors.New("JWT RefreshTTL must be > 0")
	}
	if c.JWT.RefreshTTL < c.JWT.AccessTTL {
		return errors.New("JWT RefreshTTL must be >= AccessTTL")
	}
	if c.JWT.Leeway < 0 || c.JWT.Leeway > 2*time.Minute {
		return errors.New("JWT Leeway must be between 0 and 2m")
	}

	// Password
	if c.Password.Memory < 8*1024 {
		return errors.New("Password Memory must be >= 8192 KB")
	}
	if c.Password.Time < 1 {
		return errors.New("Password Time must be >= 1")
	}
	if c.Password.Parallelism < 1 {
		return errors.New("Password Parallelism must be >= 1")
	}
	if c.Password.SaltLength < 16 {
		return errors.New("Password SaltLength must be >= 16")
	}
	if c.Password.KeyLength < 16 {
		return errors.New("Password KeyLength must be >= 16")
	}
	if c.Password.MinLength < 0 || c.Password.MaxLength < 0 {
		return errors.New("Password length limits must be >= 0")
	}
	if c.Password.MaxLength > 0 && c.Password.MinLength > c.Password.MaxLength {
		return errors.New("Password MinLength must be <= MaxLength")
	}

	// Lockout
	if err := c.Lockout.Validate(); err != nil {
		return err
	}

	// Rate limit
	if c.RateLimit.Enabled {
		if c.RateLimit.IPLimit < 1 || c.RateLimit.UserLimit < 1 {
			return errors.New("RateLimit limits must be >= 1")
		}
		if c.RateLimit.IPWindow < time.Millisecond || c.RateLimit.UserWindow < time.Millisecond {
			return errors.New("RateLimit windows must be >= 1ms")
		}
	}

	// Tenant cache
	if c.Tenant.CacheSize < 0 {
		return errors.New("Tenant CacheSize must be >= 0")
	}
	if c.Tenant.CacheSize > 0 && c.Tenant.CacheTTL <= 0 {
		return errors.New("Tenant CacheTTL must be > 0 when the cache is enabled")
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0")
	}

	// Logging
	switch c.Logging.Format {
	case "", "text", "json":
	default:
		return errors.New("Logging Format must be 'text' or 'json'")
	}

	return nil
}

/*
====================================
LOADING
====================================
*/

// LoadConfig reads path (YAML) over DefaultConfig, applies TENANTAUTH_*
// environment overrides, resolves key material and validates the result.
// An empty path skips the file.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnv(&cfg)

	if err := resolveKeys(&cfg.JWT); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	cfg.JWT.Issuer = getEnv("TENANTAUTH_JWT_ISSUER", cfg.JWT.Issuer)
	cfg.JWT.Audience = getEnv("TENANTAUTH_JWT_AUDIENCE", cfg.JWT.Audience)
	cfg.JWT.AccessTTL = getEnvDuration("TENANTAUTH_JWT_ACCESS_TTL", cfg.JWT.AccessTTL)
	cfg.JWT.RefreshTTL = getEnvDuration("TENANTAUTH_JWT_REFRESH_TTL", cfg.JWT.RefreshTTL)
	cfg.JWT.SigningMethod = strings.ToLower(getEnv("TENANTAUTH_JWT_SIGNING_METHOD", cfg.JWT.SigningMethod))
	cfg.JWT.KeyID = getEnv("TENANTAUTH_JWT_KEY_ID", cfg.JWT.KeyID)
	cfg.JWT.Secret = getEnv("TENANTAUTH_JWT_SECRET", cfg.JWT.Secret)
	cfg.JWT.PrivateKeyFile = getEnv("TENANTAUTH_JWT_PRIVATE_KEY_FILE", cfg.JWT.PrivateKeyFile)
	cfg.JWT.PublicKeyFile = getEnv("TENANTAUTH_JWT_PUBLIC_KEY_FILE", cfg.JWT.PublicKeyFile)

	cfg.Session.RedisPrefix = getEnv("TENANTAUTH_SESSION_REDIS_PREFIX", cfg.Session.RedisPrefix)

	cfg.Lockout.Enabled = getEnvBool("TENANTAUTH_LOCKOUT_ENABLED", cfg.Lockout.Enabled)
	cfg.Lockout.Threshold = getEnvInt("TENANTAUTH_LOCKOUT_THRESHOLD", cfg.Lockout.Threshold)
	cfg.Lockout.Duration = getEnvDuration("TENANTAUTH_LOCKOUT_DURATION", cfg.Lockout.Duration)
	cfg.Lockout.FailurePolicy = lockout.Policy(getEnv("TENANTAUTH_LOCKOUT_FAILURE_POLICY", string(cfg.Lockout.FailurePolicy)))

	cfg.RateLimit.Enabled = getEnvBool("TENANTAUTH_RATE_LIMIT_ENABLED", cfg.RateLimit.Enabled)
	cfg.RateLimit.IPLimit = getEnvInt("TENANTAUTH_RATE_LIMIT_IP_LIMIT", cfg.RateLimit.IPLimit)
	cfg.RateLimit.IPWindow = getEnvDuration("TENANTAUTH_RATE_LIMIT_IP_WINDOW", cfg.RateLimit.IPWindow)
	cfg.RateLimit.UserLimit = getEnvInt("TENANTAUTH_RATE_LIMIT_USER_LIMIT", cfg.RateLimit.UserLimit)
	cfg.RateLimit.UserWindow = getEnvDuration("TENANTAUTH_RATE_LIMIT_USER_WINDOW", cfg.RateLimit.UserWindow)

	cfg.Audit.Enabled = getEnvBool("TENANTAUTH_AUDIT_ENABLED", cfg.Audit.Enabled)
	cfg.Metrics.Enabled = getEnvBool("TENANTAUTH_METRICS_ENABLED", cfg.Metrics.Enabled)

	cfg.Redis.Addr = getEnv("TENANTAUTH_REDIS_ADDR", cfg.Redis.Addr)
	cfg.Redis.Password = getEnv("TENANTAUTH_REDIS_PASSWORD", cfg.Redis.Password)
	cfg.Redis.DB = getEnvInt("TENANTAUTH_REDIS_DB", cfg.Redis.DB)

	cfg.Database.DSN = getEnv("TENANTAUTH_DATABASE_DSN", cfg.Database.DSN)
	cfg.Database.AutoMigrate = getEnvBool("TENANTAUTH_DATABASE_AUTO_MIGRATE", cfg.Database.AutoMigrate)
	cfg.Database.SeedDemo = getEnvBool("TENANTAUTH_DATABASE_SEED_DEMO", cfg.Database.SeedDemo)
	cfg.Database.StateBackend = strings.ToLower(getEnv("TENANTAUTH_DATABASE_STATE_BACKEND", cfg.Database.StateBackend))

	cfg.Logging.Level = getEnv("TENANTAUTH_LOG_LEVEL", cfg.Logging.Level)
	cfg.Logging.Format = getEnv("TENANTAUTH_LOG_FORMAT", cfg.Logging.Format)

	cfg.HTTP.Addr = getEnv("TENANTAUTH_HTTP_ADDR", cfg.HTTP.Addr)
	cfg.HTTP.TrustProxy = getEnvBool("TENANTAUTH_HTTP_TRUST_PROXY", cfg.HTTP.TrustProxy)
	cfg.HTTP.LiveValidation = getEnvBool("TENANTAUTH_HTTP_LIVE_VALIDATION", cfg.HTTP.LiveValidation)
}

func resolveKeys(j *JWTConfig) error {
	if j.Secret != "" && len(j.PrivateKey) == 0 {
		j.PrivateKey = []byte(j.Secret)
	}
	if j.PrivateKeyFile != "" {
		data, err := os.ReadFile(j.PrivateKeyFile)
		if err != nil {
			return fmt.Errorf("read JWT private key: %w", err)
		}
		j.PrivateKey = data
	}
	if j.PublicKeyFile != "" {
		data, err := os.ReadFile(j.PublicKeyFile)
		if err != nil {
			return fmt.Errorf("read JWT public key: %w", err)
		}
		j.PublicKey = data
	}
	return nil
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
