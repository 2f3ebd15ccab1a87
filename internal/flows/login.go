package flows

import (
	"context"
	"errors"

	"github.com/MrEthical07/tenantauth/identity"
	"github.com/MrEthical07/tenantauth/lockout"
	"github.com/MrEthical07/tenantauth/permission"
)

// LoginFailureKind classifies login failures for root-level mapping.
type LoginFailureKind int

const (
	LoginFailureNone LoginFailureKind = iota
	LoginFailureTenantNotFound
	LoginFailureTenantLookup
	LoginFailureUnknownUser
	LoginFailureUserLookup
	LoginFailureLocked
	LoginFailureLockoutUnavailable
	LoginFailurePassword
	LoginFailureDisabled
	LoginFailureResolve
	LoginFailureIssue
)

// LoginRequest is the login input.
type LoginRequest struct {
	TenantCode string
	Email      string
	Password   string
	Client     ClientInfo
}

// LoginResult carries issued tokens or classified failure metadata.
type LoginResult struct {
	Failure  LoginFailureKind
	Err      error
	TenantID string
	UserID   string
	// LockTriggered is set when this attempt reached the lockout threshold.
	LockTriggered bool
	// Rehashed is set when the stored hash was upgraded to current costs.
	Rehashed bool

	User       identity.User
	Resolution permission.Resolution
	Issued     Issued
}

// Login runs Unauthenticated → LockoutCheck → CredentialCheck →
// PermissionResolved → TokensIssued.
func (s Service) Login(ctx context.Context, req LoginRequest) LoginResult {
	d := s.deps

	tenant, err := d.ResolveTenant(ctx, req.TenantCode)
	if err != nil {
		if errors.Is(err, identity.ErrNotFound) {
			return LoginResult{Failure: LoginFailureTenantNotFound, Err: err}
		}
		return LoginResult{Failure: LoginFailureTenantLookup, Err: err}
	}
	if !tenant.Active {
		return LoginResult{Failure: LoginFailureTenantNotFound, Err: identity.ErrNotFound, TenantID: tenant.ID}
	}

	user, err := d.Users.UserByEmail(ctx, tenant.ID, identity.NormalizeEmail(req.Email))
	if err != nil {
		if errors.Is(err, identity.ErrNotFound) {
			d.Hasher.VerifyDummy(req.Password)
			return LoginResult{Failure: LoginFailureUnknownUser, Err: err, TenantID: tenant.ID}
		}
		return LoginResult{Failure: LoginFailureUserLookup, Err: err, TenantID: tenant.ID}
	}
	out := LoginResult{TenantID: tenant.ID, UserID: user.ID}

	locked, err := d.Lockout.IsLocked(ctx, tenant.ID, user.ID)
	if err != nil && !locked {
		out.Failure, out.Err = LoginFailureLockoutUnavailable, err
		return out
	}
	if locked {
		out.Failure, out.Err = LoginFailureLocked, err
		return out
	}

	ok, verifyErr := d.Hasher.Verify(req.Password, user.PasswordHash)
	if verifyErr != nil {
		d.Warn("password verification error", map[string]any{"tenant_id": tenant.ID, "user_id": user.ID, "error": verifyErr.Error()})
	}
	if !ok {
		state, err := d.Lockout.RecordFailure(ctx, tenant.ID, user.ID)
		if err != nil {
			if d.Lockout.Policy() == lockout.FailClosed {
				out.Failure, out.Err = LoginFailureLocked, err
				return out
			}
			out.Failure, out.Err = LoginFailureLockoutUnavailable, err
			return out
		}
		out.LockTriggered = state.Locked(d.Now())
		out.Failure, out.Err = LoginFailurePassword, verifyErr
		return out
	}

	if !user.Active {
		out.Failure = LoginFailureDisabled
		return out
	}

	if err := d.Lockout.RecordSuccess(ctx, tenant.ID, user.ID); err != nil {
		d.Warn("lockout reset failed", map[string]any{"tenant_id": tenant.ID, "user_id": user.ID, "error": err.Error()})
	}

	if d.UpgradeOnLogin {
		out.Rehashed = s.upgradeHash(ctx, user, req.Password)
	}

	res, err := d.Resolver.Resolve(ctx, tenant.ID, user.ID)
	if err != nil {
		out.Failure, out.Err = LoginFailureResolve, err
		return out
	}

	issued, err := s.startSession(ctx, user, res, req.Client)
	if err != nil {
		out.Failure, out.Err = LoginFailureIssue, err
		return out
	}

	out.User = user
	out.Resolution = res
	out.Issued = issued
	return out
}

func (s Service) upgradeHash(ctx context.Context, user identity.User, plain string) bool {
	d := s.deps
	needs, err := d.Hasher.NeedsUpgrade(user.PasswordHash)
	if err != nil || !needs {
		return false
	}
	hash, err := d.Hasher.Hash(plain)
	if err != nil {
		d.Warn("password rehash failed", map[string]any{"tenant_id": user.TenantID, "user_id": user.ID, "error": err.Error()})
		return false
	}
	if err := d.Users.UpdatePasswordHash(ctx, user.TenantID, user.ID, hash); err != nil {
		d.Warn("password rehash update failed", map[string]any{"tenant_id": user.TenantID, "user_id": user.ID, "error": err.Error()})
		return false
	}
	return true
}
