package session

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when no record exists for the session id.
	ErrNotFound = errors.New("session not found")
	// ErrExpired is returned when redeeming a record past its expiry.
	ErrExpired = errors.New("session expired")
	// ErrReused is returned when a revoked or rotated record is redeemed.
	// The store has already revoked the whole chain when it is returned.
	ErrReused = errors.New("session reused")
	// ErrFingerprintMismatch is returned when the presented token does not
	// match the stored fingerprint or owner.
	ErrFingerprintMismatch = errors.New("session fingerprint mismatch")
	// ErrUnavailable wraps backend failures.
	ErrUnavailable = errors.New("session store unavailable")
)

// Record is one refresh-token session.
type Record struct {
	ID          string
	ChainID     string
	UserID      string
	TenantID    string
	Fingerprint string
	IssuedAt    time.Time
	ExpiresAt   time.Time
	Revoked     bool
	ReplacedBy  string
	IP          string
	UserAgent   string
}

// Active reports whether the record can still be redeemed at now.
func (r Record) Active(now time.Time) bool {
	return !r.Revoked && now.Before(r.ExpiresAt)
}

// Store is the persistence contract for sessions. Implementations must make
// Redeem a single atomic check-and-update.
type Store interface {
	// Create stores a new record. rec.ChainID must be set; the first record
	// of a login uses a fresh chain id.
	Create(ctx context.Context, rec Record) error
	// Redeem rotates record sid into next. fingerprint, userID and tenantID
	// must match the stored record. On success the stored successor is
	// returned with its ChainID filled in.
	Redeem(ctx context.Context, sid, fingerprint string, next Record) (Record, error)
	// Revoke marks one record revoked. Revoking a revoked record is a no-op.
	Revoke(ctx context.Context, sid string) error
	// RevokeChain revokes every record of a chain and returns how many
	// records changed state.
	RevokeChain(ctx context.Context, chainID string) (int, error)
	// RevokeAll revokes every session of a user.
	RevokeAll(ctx context.Context, tenantID, userID string) (int, error)
	// Get loads a record.
	Get(ctx context.Context, sid string) (Record, error)
}

// Fingerprint returns the hex SHA-256 of a refresh token.
func Fingerprint(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
