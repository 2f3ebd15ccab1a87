package flows

import (
	"context"
	"errors"

	"github.com/MrEthical07/tenantauth/identity"
	"github.com/MrEthical07/tenantauth/jwt"
	"github.com/MrEthical07/tenantauth/permission"
	"github.com/MrEthical07/tenantauth/session"
)

// RefreshFailureKind classifies refresh flow failures for root-level mapping.
type RefreshFailureKind int

const (
	RefreshFailureNone RefreshFailureKind = iota
	RefreshFailureInvalid
	RefreshFailureExpired
	RefreshFailureSessionNotFound
	RefreshFailureMismatch
	RefreshFailureReuse
	RefreshFailureSessionStore
	RefreshFailureUserNotFound
	RefreshFailureUserLookup
	RefreshFailureDisabled
	RefreshFailureTenantInactive
	RefreshFailureResolve
	RefreshFailureIssue
)

// RefreshResult carries either the issued token pair or failure metadata.
type RefreshResult struct {
	Failure   RefreshFailureKind
	Err       error
	TenantID  string
	UserID    string
	SessionID string
	ChainID   string

	User       identity.User
	Resolution permission.Resolution
	Issued     Issued
}

// Refresh verifies a refresh token, rotates its session and issues a new
// pair with freshly resolved permissions.
func (s Service) Refresh(ctx context.Context, refreshToken string, client ClientInfo) RefreshResult {
	d := s.deps

	claims, err := d.Tokens.ParseRefresh(refreshToken)
	if err != nil {
		if errors.Is(err, jwt.ErrExpired) {
			return RefreshResult{Failure: RefreshFailureExpired, Err: err}
		}
		return RefreshResult{Failure: RefreshFailureInvalid, Err: err}
	}
	out := RefreshResult{TenantID: claims.TID, UserID: claims.UID, SessionID: claims.SID}
	owner := identity.User{ID: claims.UID, TenantID: claims.TID}

	nextToken, next, err := s.mintRefresh(owner, d.NewID(), client)
	if err != nil {
		out.Failure, out.Err = RefreshFailureIssue, err
		return out
	}

	rotated, err := d.Sessions.Redeem(ctx, claims.SID, session.Fingerprint(refreshToken), next)
	if err != nil {
		out.Err = err
		switch {
		case errors.Is(err, session.ErrReused):
			out.Failure = RefreshFailureReuse
		case errors.Is(err, session.ErrNotFound):
			out.Failure = RefreshFailureSessionNotFound
		case errors.Is(err, session.ErrFingerprintMismatch):
			out.Failure = RefreshFailureMismatch
		case errors.Is(err, session.ErrExpired):
			out.Failure = RefreshFailureExpired
		default:
			out.Failure = RefreshFailureSessionStore
		}
		return out
	}
	out.ChainID = rotated.ChainID

	tenant, err := d.Users.TenantByID(ctx, claims.TID)
	if err != nil && !errors.Is(err, identity.ErrNotFound) {
		s.revokeSession(ctx, rotated.ID)
		out.Failure, out.Err = RefreshFailureUserLookup, err
		return out
	}
	if err != nil || !tenant.Active {
		s.revokeChain(ctx, rotated.ChainID)
		out.Failure = RefreshFailureTenantInactive
		return out
	}

	user, err := d.Users.UserByID(ctx, claims.TID, claims.UID)
	if err != nil {
		if errors.Is(err, identity.ErrNotFound) {
			s.revokeChain(ctx, rotated.ChainID)
			out.Failure, out.Err = RefreshFailureUserNotFound, err
			return out
		}
		s.revokeSession(ctx, rotated.ID)
		out.Failure, out.Err = RefreshFailureUserLookup, err
		return out
	}
	if !user.Active {
		s.revokeChain(ctx, rotated.ChainID)
		out.Failure = RefreshFailureDisabled
		return out
	}

	res, err := d.Resolver.Resolve(ctx, user.TenantID, user.ID)
	if err != nil {
		s.revokeSession(ctx, rotated.ID)
		out.Failure, out.Err = RefreshFailureResolve, err
		return out
	}

	access, accessClaims, err := s.mintAccess(user, res)
	if err != nil {
		s.revokeSession(ctx, rotated.ID)
		out.Failure, out.Err = RefreshFailureIssue, err
		return out
	}

	out.User = user
	out.Resolution = res
	out.Issued = Issued{
		AccessToken:  access,
		RefreshToken: nextToken,
		Access:       accessClaims,
		SessionID:    rotated.ID,
		ChainID:      rotated.ChainID,
		ExpiresIn:    d.Tokens.AccessTTL(),
	}
	return out
}

func (s Service) revokeChain(ctx context.Context, chainID string) {
	if _, err := s.deps.Sessions.RevokeChain(ctx, chainID); err != nil {
		s.deps.Warn("session chain revocation failed", map[string]any{"chain_id": chainID, "error": err.Error()})
	}
}

func (s Service) revokeSession(ctx context.Context, sid string) {
	if err := s.deps.Sessions.Revoke(ctx, sid); err != nil && !errors.Is(err, session.ErrNotFound) {
		s.deps.Warn("session revocation failed", map[string]any{"session_id": sid, "error": err.Error()})
	}
}
