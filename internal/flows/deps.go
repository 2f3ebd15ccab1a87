package flows

import (
	"context"
	"time"

	"github.com/MrEthical07/tenantauth/identity"
	"github.com/MrEthical07/tenantauth/jwt"
	"github.com/MrEthical07/tenantauth/lockout"
	"github.com/MrEthical07/tenantauth/permission"
	"github.com/MrEthical07/tenantauth/session"
)

// Users is the subset of identity.Store used by flows.
type Users interface {
	TenantByID(ctx context.Context, id string) (identity.Tenant, error)
	UserByEmail(ctx context.Context, tenantID, email string) (identity.User, error)
	UserByID(ctx context.Context, tenantID, userID string) (identity.User, error)
	UpdatePasswordHash(ctx context.Context, tenantID, userID, hash string) error
}

// LockoutTracker is satisfied by *lockout.Tracker.
type LockoutTracker interface {
	IsLocked(ctx context.Context, tenantID, userID string) (bool, error)
	RecordFailure(ctx context.Context, tenantID, userID string) (lockout.State, error)
	RecordSuccess(ctx context.Context, tenantID, userID string) error
	Policy() lockout.Policy
}

// Hasher is satisfied by *password.Argon2.
type Hasher interface {
	Hash(plain string) (string, error)
	Verify(plain, encoded string) (bool, error)
	VerifyDummy(plain string)
	NeedsUpgrade(encoded string) (bool, error)
}

// Resolver is satisfied by *permission.Resolver.
type Resolver interface {
	Resolve(ctx context.Context, tenantID, userID string) (permission.Resolution, error)
}

// Tokens is satisfied by *jwt.Manager.
type Tokens interface {
	IssueAccess(id jwt.Identity) (string, *jwt.AccessClaims, error)
	IssueRefresh(uid, tid, sid string) (string, *jwt.RefreshClaims, error)
	ParseAccess(token string) (*jwt.AccessClaims, error)
	ParseRefresh(token string) (*jwt.RefreshClaims, error)
	ParseRefreshIgnoringExpiry(token string) (*jwt.RefreshClaims, error)
	AccessTTL() time.Duration
}

// Deps is built once by the Engine and shared by every flow.
type Deps struct {
	ResolveTenant func(ctx context.Context, code string) (identity.Tenant, error)
	Users         Users
	Lockout       LockoutTracker
	Hasher        Hasher
	Resolver      Resolver
	Tokens        Tokens
	Sessions      session.Store
	NewID         func() string
	Now           func() time.Time
	// UpgradeOnLogin rehashes outdated password hashes after a successful
	// login. Failures only warn.
	UpgradeOnLogin bool
	// Warn reports degraded but non-fatal paths.
	Warn func(msg string, fields map[string]any)
}

// Service runs flows over one immutable Deps.
type Service struct {
	deps Deps
}

// New returns a flow service. Optional hooks are defaulted.
func New(deps Deps) Service {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Warn == nil {
		deps.Warn = func(string, map[string]any) {}
	}
	return Service{deps: deps}
}

// Initialized reports whether every required dependency is wired.
func (s Service) Initialized() bool {
	d := s.deps
	return d.ResolveTenant != nil && d.Users != nil && d.Lockout != nil &&
		d.Hasher != nil && d.Resolver != nil && d.Tokens != nil &&
		d.Sessions != nil && d.NewID != nil
}
