package flows

import (
	"context"
	"errors"

	"github.com/MrEthical07/tenantauth/session"
)

// LogoutFailureKind classifies logout failures.
type LogoutFailureKind int

const (
	LogoutFailureNone LogoutFailureKind = iota
	LogoutFailureInvalid
	LogoutFailureSessionStore
)

// LogoutResult describes a logout outcome. AlreadyEnded is set when the
// session was missing; that is still a successful logout.
type LogoutResult struct {
	Failure      LogoutFailureKind
	Err          error
	TenantID     string
	UserID       string
	SessionID    string
	AlreadyEnded bool
}

// Logout revokes the session behind refreshToken. Expired tokens are
// accepted as long as the signature verifies.
func (s Service) Logout(ctx context.Context, refreshToken string) LogoutResult {
	claims, err := s.deps.Tokens.ParseRefreshIgnoringExpiry(refreshToken)
	if err != nil {
		return LogoutResult{Failure: LogoutFailureInvalid, Err: err}
	}
	out := LogoutResult{TenantID: claims.TID, UserID: claims.UID, SessionID: claims.SID}

	if err := s.deps.Sessions.Revoke(ctx, claims.SID); err != nil {
		if errors.Is(err, session.ErrNotFound) {
			out.AlreadyEnded = true
			return out
		}
		out.Failure, out.Err = LogoutFailureSessionStore, err
	}
	return out
}

// LogoutAll revokes every session of the user and returns how many were
// still active.
func (s Service) LogoutAll(ctx context.Context, tenantID, userID string) (int, error) {
	return s.deps.Sessions.RevokeAll(ctx, tenantID, userID)
}
