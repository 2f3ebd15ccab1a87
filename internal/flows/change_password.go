package flows

import (
	"context"
	"errors"

	"github.com/MrEthical07/tenantauth/identity"
	"github.com/MrEthical07/tenantauth/password"
)

// ChangePasswordFailureKind classifies password change failures.
type ChangePasswordFailureKind int

const (
	ChangePasswordFailureNone ChangePasswordFailureKind = iota
	ChangePasswordFailureUserNotFound
	ChangePasswordFailureUserLookup
	ChangePasswordFailureInvalidCurrent
	ChangePasswordFailureReuse
	ChangePasswordFailurePolicy
	ChangePasswordFailureHash
	ChangePasswordFailurePersist
	ChangePasswordFailureRevoke
)

// ChangePasswordRequest is the password change input.
type ChangePasswordRequest struct {
	TenantID string
	UserID   string
	Current  string
	Next     string
}

// ChangePasswordResult describes the outcome. Revoked is the number of
// sessions ended after the new hash was stored.
type ChangePasswordResult struct {
	Failure ChangePasswordFailureKind
	Err     error
	Revoked int
}

// ChangePassword verifies the current password, stores a hash of the new
// one and revokes every session of the user.
func (s Service) ChangePassword(ctx context.Context, req ChangePasswordRequest) ChangePasswordResult {
	d := s.deps

	user, err := d.Users.UserByID(ctx, req.TenantID, req.UserID)
	if err != nil {
		if errors.Is(err, identity.ErrNotFound) {
			return ChangePasswordResult{Failure: ChangePasswordFailureUserNotFound, Err: err}
		}
		return ChangePasswordResult{Failure: ChangePasswordFailureUserLookup, Err: err}
	}

	ok, err := d.Hasher.Verify(req.Current, user.PasswordHash)
	if err != nil || !ok {
		return ChangePasswordResult{Failure: ChangePasswordFailureInvalidCurrent, Err: err}
	}
	if req.Next == req.Current {
		return ChangePasswordResult{Failure: ChangePasswordFailureReuse}
	}

	hash, err := d.Hasher.Hash(req.Next)
	if err != nil {
		if errors.Is(err, password.ErrTooShort) || errors.Is(err, password.ErrTooLong) {
			return ChangePasswordResult{Failure: ChangePasswordFailurePolicy, Err: err}
		}
		return ChangePasswordResult{Failure: ChangePasswordFailureHash, Err: err}
	}

	if err := d.Users.UpdatePasswordHash(ctx, req.TenantID, req.UserID, hash); err != nil {
		return ChangePasswordResult{Failure: ChangePasswordFailurePersist, Err: err}
	}

	n, err := d.Sessions.RevokeAll(ctx, req.TenantID, req.UserID)
	if err != nil {
		return ChangePasswordResult{Failure: ChangePasswordFailureRevoke, Err: err}
	}
	return ChangePasswordResult{Revoked: n}
}
