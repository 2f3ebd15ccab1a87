package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/tenantauth/identity"
	"github.com/MrEthical07/tenantauth/lockout"
)

var _ lockout.Store = (*LockoutStore)(nil)

// LockoutStore keeps lockout counters on the users row. A counter expires
// one lock duration after the last failure, or after the lock ends.
type LockoutStore struct {
	db  *sql.DB
	now func() time.Time
}

// recordFailureSQL updates the row in one statement; every expression sees
// the row as it was before the update.
//
//	$3 now, $4 threshold, $5 now+lockFor, $6 now+2*lockFor
const recordFailureSQL = `
	update users set
		failed_login_attempts = case
			when locked_until > $3 then failed_login_attempts
			else least((case when lockout_expires_at > $3 then failed_login_attempts else 0 end) + 1, $4)
		end,
		locked_until = case
			when locked_until > $3 then locked_until
			when (case when lockout_expires_at > $3 then failed_login_attempts else 0 end) + 1 >= $4 then $5
			else locked_until
		end,
		lockout_expires_at = case
			when locked_until > $3 then lockout_expires_at
			when (case when lockout_expires_at > $3 then failed_login_attempts else 0 end) + 1 >= $4 then $6
			else $5
		end
	where tenant_id = $1 and id = $2
	returning failed_login_attempts, locked_until
`

// RecordFailure implements lockout.Store.
func (s *LockoutStore) RecordFailure(ctx context.Context, tenantID, userID string, threshold int, lockFor time.Duration, now time.Time) (lockout.State, error) {
	now = now.UTC()
	var (
		st    lockout.State
		until sql.NullTime
	)
	err := s.db.QueryRowContext(ctx, recordFailureSQL,
		tenantID, userID, now, threshold, now.Add(lockFor), now.Add(2*lockFor),
	).Scan(&st.FailedCount, &until)
	if errors.Is(err, sql.ErrNoRows) {
		return lockout.State{}, fmt.Errorf("%w: user %s", identity.ErrNotFound, userID)
	}
	if err != nil {
		return lockout.State{}, fmt.Errorf("%w: %v", lockout.ErrUnavailable, err)
	}
	if until.Valid {
		st.LockedUntil = until.Time
	}
	return st, nil
}

// Reset implements lockout.Store.
func (s *LockoutStore) Reset(ctx context.Context, tenantID, userID string) error {
	_, err := s.db.ExecContext(ctx, `
		update users set failed_login_attempts = 0, locked_until = null, lockout_expires_at = null
		where tenant_id = $1 and id = $2
	`, tenantID, userID)
	if err != nil {
		return fmt.Errorf("%w: %v", lockout.ErrUnavailable, err)
	}
	return nil
}

// Load implements lockout.Store. Expired counters load as the zero State.
func (s *LockoutStore) Load(ctx context.Context, tenantID, userID string) (lockout.State, error) {
	var (
		st             lockout.State
		until, expires sql.NullTime
	)
	err := s.db.QueryRowContext(ctx, `
		select failed_login_attempts, locked_until, lockout_expires_at
		from users where tenant_id = $1 and id = $2
	`, tenantID, userID).Scan(&st.FailedCount, &until, &expires)
	if errors.Is(err, sql.ErrNoRows) {
		return lockout.State{}, nil
	}
	if err != nil {
		return lockout.State{}, fmt.Errorf("%w: %v", lockout.ErrUnavailable, err)
	}
	if !expires.Valid || !expires.Time.After(s.now()) {
		return lockout.State{}, nil
	}
	if until.Valid {
		st.LockedUntil = until.Time
	}
	return st, nil
}
