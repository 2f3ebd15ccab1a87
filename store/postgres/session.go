package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/tenantauth/session"
)

var _ session.Store = (*SessionStore)(nil)

// SessionStore keeps refresh sessions in the sessions table. Redeem locks
// the presented row with SELECT ... FOR UPDATE, so concurrent redemptions
// of one token serialize and exactly one rotates.
type SessionStore struct {
	db  *sql.DB
	now func() time.Time
}

func unavailable(err error) error {
	return fmt.Errorf("%w: %v", session.ErrUnavailable, err)
}

const insertSessionSQL = `
	insert into sessions (id, chain_id, tenant_id, user_id, fingerprint, issued_at, expires_at, ip, user_agent)
	values ($1, $2, $3, $4, $5, $6, $7, $8, $9)
`

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertSession(ctx context.Context, db execer, rec session.Record) error {
	_, err := db.ExecContext(ctx, insertSessionSQL,
		rec.ID, rec.ChainID, rec.TenantID, rec.UserID, rec.Fingerprint,
		rec.IssuedAt.UTC(), rec.ExpiresAt.UTC(), rec.IP, rec.UserAgent,
	)
	return err
}

// Create implements session.Store.
func (s *SessionStore) Create(ctx context.Context, rec session.Record) error {
	if rec.ID == "" || rec.ChainID == "" {
		return errors.New("session id and chain id are required")
	}
	if err := insertSession(ctx, s.db, rec); err != nil {
		return unavailable(err)
	}
	return nil
}

// Redeem implements session.Store.
func (s *SessionStore) Redeem(ctx context.Context, sid, fingerprint string, next session.Record) (session.Record, error) {
	now := next.IssuedAt
	if now.IsZero() {
		now = s.now()
		next.IssuedAt = now
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return session.Record{}, unavailable(err)
	}
	defer func() { _ = tx.Rollback() }()

	var (
		cur     session.Record
		expires time.Time
	)
	err = tx.QueryRowContext(ctx, `
		select user_id, tenant_id, fingerprint, expires_at, revoked, chain_id
		from sessions where id = $1
		for update
	`, sid).Scan(&cur.UserID, &cur.TenantID, &cur.Fingerprint, &expires, &cur.Revoked, &cur.ChainID)
	if errors.Is(err, sql.ErrNoRows) {
		return session.Record{}, session.ErrNotFound
	}
	if err != nil {
		return session.Record{}, unavailable(err)
	}

	if cur.Fingerprint != fingerprint || cur.UserID != next.UserID || cur.TenantID != next.TenantID {
		return session.Record{}, session.ErrFingerprintMismatch
	}
	if cur.Revoked {
		if _, err := tx.ExecContext(ctx, `
			update sessions set revoked = true
			where chain_id = $1 and revoked = false
		`, cur.ChainID); err != nil {
			return session.Record{}, unavailable(err)
		}
		if err := tx.Commit(); err != nil {
			return session.Record{}, unavailable(err)
		}
		return session.Record{}, session.ErrReused
	}
	if !expires.After(now) {
		return session.Record{}, session.ErrExpired
	}

	next.ChainID = cur.ChainID
	res, err := tx.ExecContext(ctx, `
		update sessions set revoked = true, replaced_by = $2
		where id = $1 and revoked = false
	`, sid, next.ID)
	if err != nil {
		return session.Record{}, unavailable(err)
	}
	if n, err := res.RowsAffected(); err != nil || n != 1 {
		return session.Record{}, session.ErrReused
	}
	if err := insertSession(ctx, tx, next); err != nil {
		return session.Record{}, unavailable(err)
	}
	if err := tx.Commit(); err != nil {
		return session.Record{}, unavailable(err)
	}
	return next, nil
}

// Revoke implements session.Store.
func (s *SessionStore) Revoke(ctx context.Context, sid string) error {
	res, err := s.db.ExecContext(ctx, `update sessions set revoked = true where id = $1`, sid)
	if err != nil {
		return unavailable(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return unavailable(err)
	}
	if n == 0 {
		return session.ErrNotFound
	}
	return nil
}

// RevokeChain implements session.Store.
func (s *SessionStore) RevokeChain(ctx context.Context, chainID string) (int, error) {
	res, err := s.db.ExecContext(ctx, `
		update sessions set revoked = true
		where chain_id = $1 and revoked = false
	`, chainID)
	if err != nil {
		return 0, unavailable(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, unavailable(err)
	}
	return int(n), nil
}

// RevokeAll implements session.Store. Sessions already past expiry are not
// counted.
func (s *SessionStore) RevokeAll(ctx context.Context, tenantID, userID string) (int, error) {
	res, err := s.db.ExecContext(ctx, `
		update sessions set revoked = true
		where tenant_id = $1 and user_id = $2 and revoked = false and expires_at > $3
	`, tenantID, userID, s.now().UTC())
	if err != nil {
		return 0, unavailable(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, unavailable(err)
	}
	return int(n), nil
}

// Get implements session.Store.
func (s *SessionStore) Get(ctx context.Context, sid string) (session.Record, error) {
	rec := session.Record{ID: sid}
	err := s.db.QueryRowContext(ctx, `
		select chain_id, tenant_id, user_id, fingerprint, issued_at, expires_at, revoked, replaced_by, ip, user_agent
		from sessions where id = $1
	`, sid).Scan(&rec.ChainID, &rec.TenantID, &rec.UserID, &rec.Fingerprint, &rec.IssuedAt, &rec.ExpiresAt,
		&rec.Revoked, &rec.ReplacedBy, &rec.IP, &rec.UserAgent)
	if errors.Is(err, sql.ErrNoRows) {
		return session.Record{}, session.ErrNotFound
	}
	if err != nil {
		return session.Record{}, unavailable(err)
	}
	return rec, nil
}

// PurgeExpired deletes sessions that expired before cutoff and returns how
// many were removed. Reuse detection only needs rows until they expire.
func (s *SessionStore) PurgeExpired(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `delete from sessions where expires_at < $1`, cutoff.UTC())
	if err != nil {
		return 0, unavailable(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, unavailable(err)
	}
	return int(n), nil
}
