package tenantauth

import "errors"

var (
	// ErrInvalidCredentials is returned for an unknown user or a wrong
	// password. The two cases are indistinguishable to the caller.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrAccountLocked is returned while a lockout is in force, and under the
	// fail closed policy when the lockout backend cannot be reached.
	ErrAccountLocked = errors.New("account locked")
	// ErrAccountDisabled is returned for an inactive user.
	ErrAccountDisabled = errors.New("account disabled")
	// ErrInvalidToken covers bad signatures, wrong token types, unknown or
	// mismatched sessions.
	ErrInvalidToken = errors.New("invalid token")
	// ErrExpiredToken is returned for a correctly signed token past its exp.
	ErrExpiredToken = errors.New("token expired")
	// ErrReusedToken is returned when an already rotated refresh token is
	// presented again. The whole session chain is revoked first.
	ErrReusedToken = errors.New("refresh token reused")
	// ErrTenantNotFound is returned for unknown or inactive tenant codes.
	ErrTenantNotFound = errors.New("tenant not found")
	// ErrRateLimitExceeded is returned when a limiter rejects a request.
	ErrRateLimitExceeded = errors.New("rate limit exceeded")
	// ErrPersistence wraps backend failures (Redis, database).
	ErrPersistence = errors.New("persistence failure")
	// ErrPasswordPolicy is returned when a new password violates the length
	// policy.
	ErrPasswordPolicy = errors.New("password policy violation")
	// ErrPasswordReuse is returned when the new password equals the current one.
	ErrPasswordReuse = errors.New("new password must be different from current password")
	// ErrPermissionDenied is returned by Authorize when the permission is missing.
	ErrPermissionDenied = errors.New("permission denied")
	// ErrCrossTenantRole is returned when a user is linked to a role owned by
	// another tenant.
	ErrCrossTenantRole = errors.New("role belongs to another tenant")
	// ErrEngineNotReady is returned by a nil or partially built Engine.
	ErrEngineNotReady = errors.New("engine not initialized")
	// ErrUserNotFound is returned by operations addressing a user by id.
	ErrUserNotFound = errors.New("user not found")
)
