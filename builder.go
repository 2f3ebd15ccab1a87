package tenantauth

import (
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/tenantauth/identity"
	"github.com/MrEthical07/tenantauth/internal"
	internalaudit "github.com/MrEthical07/tenantauth/internal/audit"
	"github.com/MrEthical07/tenantauth/internal/flows"
	"github.com/MrEthical07/tenantauth/internal/rate"
	"github.com/MrEthical07/tenantauth/jwt"
	"github.com/MrEthical07/tenantauth/lockout"
	"github.com/MrEthical07/tenantauth/password"
	"github.com/MrEthical07/tenantauth/permission"
	"github.com/MrEthical07/tenantauth/session"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// Builder assembles an [Engine]. Configure it during initialization and
// call Build once.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	identity     identity.Store
	lockoutStore lockout.Store
	sessionStore session.Store

	signer    jwt.Signer
	verifiers []jwt.Verifier

	logger    logrus.FieldLogger
	auditSink AuditSink
	catalog   *permission.Catalog
	now       func() time.Time

	built bool
}

// New returns a builder seeded with [DefaultConfig].
func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
	}
}

// WithConfig replaces the whole configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis sets the client backing sessions, lockout state and rate
// limits. Cluster clients need a hash tagged Session.RedisPrefix such as
// "{ta}".
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithIdentityStore sets the tenant, user and role store. It is required.
func (b *Builder) WithIdentityStore(store identity.Store) *Builder {
	b.identity = store
	return b
}

// WithLockoutStore overrides the Redis lockout store.
func (b *Builder) WithLockoutStore(store lockout.Store) *Builder {
	b.lockoutStore = store
	return b
}

// WithSessionStore overrides the Redis session store.
func (b *Builder) WithSessionStore(store session.Store) *Builder {
	b.sessionStore = store
	return b
}

// WithSigner supplies signing keys directly. JWT key settings in the
// configuration are then ignored.
func (b *Builder) WithSigner(signer jwt.Signer, verifiers ...jwt.Verifier) *Builder {
	b.signer = signer
	b.verifiers = verifiers
	return b
}

// WithLogger sets the engine logger. By default one is built from
// Config.Logging.
func (b *Builder) WithLogger(log logrus.FieldLogger) *Builder {
	b.logger = log
	return b
}

// WithAuditSink sets where audit events go. Audit.Enabled must still be set.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithCatalog replaces the default permission catalog.
func (b *Builder) WithCatalog(catalog *permission.Catalog) *Builder {
	b.catalog = catalog
	return b
}

// WithClock overrides time for lockout and token issuance. Tests only.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

// WithMetricsEnabled toggles engine counters.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithLatencyHistograms toggles the validate latency histogram.
func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and wires the engine. A builder can
// only be built once.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if b.signer == nil {
		if err := cfg.validateKeys(); err != nil {
			return nil, err
		}
	}
	if err := cfg.validateSettings(); err != nil {
		return nil, err
	}

	if b.identity == nil {
		return nil, errors.New("identity store required")
	}
	if b.redis == nil {
		if b.sessionStore == nil || b.lockoutStore == nil {
			return nil, errors.New("redis client required")
		}
		if cfg.RateLimit.Enabled {
			return nil, errors.New("rate limiting requires redis client")
		}
	}

	now := b.now
	if now == nil {
		now = time.Now
	}

	log := b.logger
	if log == nil {
		l, err := NewLogger(cfg.Logging)
		if err != nil {
			return nil, err
		}
		log = l
	}

	// -------- PASSWORDS --------
	hasher, err := password.NewArgon2(cfg.Password.argon2())
	if err != nil {
		return nil, err
	}

	// -------- TOKENS --------
	signer, verifiers := b.signer, b.verifiers
	if signer == nil {
		signer, verifiers, err = signerFromConfig(cfg.JWT)
		if err != nil {
			return nil, err
		}
	}
	tokens, err := jwt.NewManager(jwt.Config{
		Signer:     signer,
		Verifiers:  verifiers,
		Issuer:     cfg.JWT.Issuer,
		Audience:   cfg.JWT.Audience,
		AccessTTL:  cfg.JWT.AccessTTL,
		RefreshTTL: cfg.JWT.RefreshTTL,
		Leeway:     cfg.JWT.Leeway,
		Now:        now,
	})
	if err != nil {
		return nil, err
	}

	// -------- SESSIONS + LOCKOUT --------
	sessions := b.sessionStore
	if sessions == nil {
		sessions = session.NewRedisStore(b.redis, cfg.Session.RedisPrefix)
	}
	lockStore := b.lockoutStore
	if lockStore == nil {
		lockStore = lockout.NewRedisStore(b.redis, cfg.Session.RedisPrefix)
	}
	tracker, err := lockout.NewTracker(lockStore, cfg.Lockout)
	if err != nil {
		return nil, err
	}
	tracker = tracker.WithClock(now)

	engine := &Engine{
		config:   cfg,
		log:      log,
		tokens:   tokens,
		hasher:   hasher,
		lockout:  tracker,
		sessions: sessions,
		redis:    b.redis,
		metrics:  NewMetrics(cfg.Metrics),
	}

	// -------- RATE LIMITS --------
	if cfg.RateLimit.Enabled {
		engine.ipLimiter, err = rate.New(b.redis, cfg.RateLimit.RedisPrefix, rate.Config{
			Limit:  cfg.RateLimit.IPLimit,
			Window: cfg.RateLimit.IPWindow,
		})
		if err != nil {
			return nil, err
		}
		engine.userLimiter, err = rate.New(b.redis, cfg.RateLimit.RedisPrefix, rate.Config{
			Limit:  cfg.RateLimit.UserLimit,
			Window: cfg.RateLimit.UserWindow,
		})
		if err != nil {
			return nil, err
		}
	}

	// -------- PERMISSIONS --------
	engine.catalog = b.catalog
	if engine.catalog == nil {
		engine.catalog = permission.DefaultCatalog()
	}
	resolver := permission.NewResolver(b.identity)
	engine.tenants = newTenantCache(b.identity.TenantByCode, cfg.Tenant.CacheSize, cfg.Tenant.CacheTTL)

	// -------- AUDIT --------
	sink := b.auditSink
	if sink == nil && cfg.Audit.Enabled {
		sink = NewLogrusSink(log)
	}
	engine.audit = internalaudit.NewDispatcher(internalaudit.Config{
		Enabled:    cfg.Audit.Enabled,
		BufferSize: cfg.Audit.BufferSize,
		DropIfFull: cfg.Audit.DropIfFull,
	}, sink)

	engine.flows = flows.New(flows.Deps{
		ResolveTenant:  engine.tenants.Resolve,
		Users:          b.identity,
		Lockout:        tracker,
		Hasher:         hasher,
		Resolver:       resolver,
		Tokens:         tokens,
		Sessions:       sessions,
		NewID:          internal.NewID,
		Now:            now,
		UpgradeOnLogin: cfg.Password.UpgradeOnLogin,
		Warn: func(msg string, fields map[string]any) {
			log.WithFields(logrus.Fields(fields)).Warn(msg)
		},
	})

	b.built = true
	return engine, nil
}

func signerFromConfig(c JWTConfig) (jwt.Signer, []jwt.Verifier, error) {
	var (
		signer   jwt.Signer
		previous jwt.Verifier
		err      error
	)
	switch c.SigningMethod {
	case "hs256":
		signer, err = jwt.NewHS256Signer(c.PrivateKey, c.KeyID)
		if err == nil && len(c.PreviousPublicKey) > 0 {
			// Symmetric keys verify with the same secret.
			previous, err = jwt.NewHS256Signer(c.PreviousPublicKey, c.PreviousKeyID)
		}
	case "ed25519":
		signer, err = jwt.NewEd25519Signer(c.PrivateKey, c.KeyID)
		if err == nil && len(c.PreviousPublicKey) > 0 {
			previous, err = jwt.NewEd25519Verifier(c.PreviousPublicKey, c.PreviousKeyID)
		}
	case "rs256":
		signer, err = jwt.NewRS256Signer(c.PrivateKey, c.KeyID)
		if err == nil && len(c.PreviousPublicKey) > 0 {
			previous, err = jwt.NewRS256Verifier(c.PreviousPublicKey, c.PreviousKeyID)
		}
	default:
		return nil, nil, fmt.Errorf("unsupported JWT signing method %q", c.SigningMethod)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("JWT key: %w", err)
	}
	if previous == nil {
		return signer, nil, nil
	}
	return signer, []jwt.Verifier{previous}, nil
}

// NewLogger builds a logrus logger from cfg. Format is "text" or "json".
func NewLogger(cfg LoggingConfig) (*logrus.Logger, error) {
	log := logrus.New()
	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("logging level: %w", err)
	}
	log.SetLevel(level)
	if cfg.Format == "json" {
		log.SetFormatter(&logrus.JSONFormatter{})
	} else {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return log, nil
}
