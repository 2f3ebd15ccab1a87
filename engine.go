package tenantauth

import (
	"context"
	"errors"
	"fmt"
	"time"

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

// Engine is the authentication orchestrator. Build one with [New] and
// [Builder.Build]; it is immutable and safe for concurrent use afterwards.
type Engine struct {
	config      Config
	log         logrus.FieldLogger
	flows       flows.Service
	tokens      *jwt.Manager
	hasher      *password.Argon2
	lockout     *lockout.Tracker
	sessions    session.Store
	tenants     *tenantCache
	catalog     *permission.Catalog
	ipLimiter   *rate.Limiter
	userLimiter *rate.Limiter
	redis       redis.UniversalClient
	audit       *internalaudit.Dispatcher
	metrics     *Metrics
}

// Close drains pending audit events. The Redis client and stores belong to
// the caller and are left open.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped returns how many audit events were discarded because the
// buffer was full.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot copies the engine counters.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

// Catalog returns the permission catalog the engine checks codes against.
func (e *Engine) Catalog() *permission.Catalog {
	if e == nil {
		return nil
	}
	return e.catalog
}

// Health pings Redis when the engine owns a client.
func (e *Engine) Health(ctx context.Context) error {
	if e == nil || !e.flows.Initialized() {
		return ErrEngineNotReady
	}
	if e.redis == nil {
		return nil
	}
	if err := e.redis.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	return nil
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) ready() bool {
	return e != nil && e.flows.Initialized()
}

func clientInfo(ctx context.Context) flows.ClientInfo {
	return flows.ClientInfo{IP: clientIPFromContext(ctx), UserAgent: userAgentFromContext(ctx)}
}

/*
====================================
LOGIN
====================================
*/

// Login authenticates email and password inside the tenant identified by
// tenantCode and opens a new session.
//
// Unknown users and wrong passwords both yield [ErrInvalidCredentials].
// A locked user gets [ErrAccountLocked] whatever the password. The attempt
// that reaches the lockout threshold still reports ErrInvalidCredentials;
// the next one sees the lock.
func (e *Engine) Login(ctx context.Context, tenantCode, email, password string) (*AuthResult, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}

	res := e.flows.Login(ctx, flows.LoginRequest{
		TenantCode: tenantCode,
		Email:      email,
		Password:   password,
		Client:     clientInfo(ctx),
	})
	if res.Failure != flows.LoginFailureNone {
		return nil, e.loginFailure(ctx, res, tenantCode, email)
	}

	if res.Rehashed {
		e.metricInc(MetricPasswordRehash)
		e.emitAudit(ctx, auditEventPasswordRehash, true, res.UserID, res.TenantID, "", nil, nil)
	}
	e.metricInc(MetricSessionCreated)
	e.metricInc(MetricLoginSuccess)
	e.emitAudit(ctx, auditEventLoginSuccess, true, res.UserID, res.TenantID, res.Issued.SessionID, nil, func() map[string]string {
		return map[string]string{"tenant_code": tenantCode}
	})

	return authResult(res.Issued, res.User.Email, res.Resolution), nil
}

func (e *Engine) loginFailure(ctx context.Context, res flows.LoginResult, tenantCode, email string) error {
	var (
		err    error
		reason string
	)
	switch res.Failure {
	case flows.LoginFailureTenantNotFound:
		e.metricInc(MetricTenantNotFound)
		err, reason = ErrTenantNotFound, "tenant_not_found"
	case flows.LoginFailureUnknownUser:
		err, reason = ErrInvalidCredentials, "user_not_found"
	case flows.LoginFailurePassword:
		err, reason = ErrInvalidCredentials, "password_mismatch"
		if res.LockTriggered {
			e.metricInc(MetricLockoutTriggered)
			e.emitAudit(ctx, auditEventAccountLocked, true, res.UserID, res.TenantID, "", nil, func() map[string]string {
				return map[string]string{"threshold": fmt.Sprint(e.config.Lockout.Threshold)}
			})
		}
	case flows.LoginFailureLocked:
		e.metricInc(MetricLoginLocked)
		err, reason = ErrAccountLocked, "account_locked"
		if res.Err != nil {
			// Fail closed: the lockout backend could not be read or written.
			e.metricInc(MetricLockoutUnavailable)
			e.log.WithFields(logrus.Fields{"tenant_id": res.TenantID, "user_id": res.UserID, "error": res.Err}).Warn("lockout backend unavailable, failing closed")
			reason = "lockout_unavailable"
		}
	case flows.LoginFailureLockoutUnavailable:
		e.metricInc(MetricLockoutUnavailable)
		err, reason = persistence(res.Err), "lockout_unavailable"
	case flows.LoginFailureDisabled:
		e.metricInc(MetricAccountDisabled)
		err, reason = ErrAccountDisabled, "account_disabled"
	case flows.LoginFailureResolve:
		err, reason = e.resolveError(ctx, res.TenantID, res.UserID, res.Err), "permission_resolution"
	case flows.LoginFailureIssue:
		err, reason = issueError(res.Err), "issue_failed"
	default: // tenant and user lookup failures
		err, reason = persistence(res.Err), "lookup_failed"
	}

	if errors.Is(err, ErrPersistence) {
		e.metricInc(MetricPersistenceFailure)
	}
	e.metricInc(MetricLoginFailure)
	e.emitAudit(ctx, auditEventLoginFailure, false, res.UserID, res.TenantID, "", err, func() map[string]string {
		return map[string]string{
			"tenant_code": tenantCode,
			"identifier":  email,
			"reason":      reason,
		}
	})
	return err
}

/*
====================================
REFRESH
====================================
*/

// Refresh redeems refreshToken exactly once and returns a new pair with
// freshly resolved permissions. Presenting an already rotated token revokes
// the whole session chain and returns [ErrReusedToken].
func (e *Engine) Refresh(ctx context.Context, refreshToken string) (*AuthResult, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}

	res := e.flows.Refresh(ctx, refreshToken, clientInfo(ctx))
	if res.Failure != flows.RefreshFailureNone {
		return nil, e.refreshFailure(ctx, res)
	}

	e.metricInc(MetricRefreshSuccess)
	e.emitAudit(ctx, auditEventRefreshSuccess, true, res.UserID, res.TenantID, res.Issued.SessionID, nil, func() map[string]string {
		return map[string]string{"previous_session_id": res.SessionID}
	})
	return authResult(res.Issued, res.User.Email, res.Resolution), nil
}

func (e *Engine) refreshFailure(ctx context.Context, res flows.RefreshResult) error {
	var (
		err    error
		reason string
		event  = auditEventRefreshInvalid
	)
	switch res.Failure {
	case flows.RefreshFailureReuse:
		e.metricInc(MetricRefreshReuseDetected)
		e.metricInc(MetricSessionRevoked)
		event = auditEventRefreshReuseDetected
		err, reason = ErrReusedToken, "reuse_detected"
		e.log.WithFields(logrus.Fields{"tenant_id": res.TenantID, "user_id": res.UserID, "session_id": res.SessionID}).Warn("refresh token reuse detected, session chain revoked")
	case flows.RefreshFailureExpired:
		err, reason = ErrExpiredToken, "expired"
	case flows.RefreshFailureInvalid:
		err, reason = ErrInvalidToken, "invalid"
	case flows.RefreshFailureSessionNotFound:
		err, reason = ErrInvalidToken, "session_not_found"
	case flows.RefreshFailureMismatch:
		err, reason = ErrInvalidToken, "fingerprint_mismatch"
	case flows.RefreshFailureUserNotFound:
		e.metricInc(MetricSessionRevoked)
		err, reason = ErrInvalidToken, "user_not_found"
	case flows.RefreshFailureDisabled:
		e.metricInc(MetricAccountDisabled)
		e.metricInc(MetricSessionRevoked)
		err, reason = ErrAccountDisabled, "account_disabled"
	case flows.RefreshFailureTenantInactive:
		e.metricInc(MetricTenantNotFound)
		e.metricInc(MetricSessionRevoked)
		err, reason = ErrTenantNotFound, "tenant_inactive"
	case flows.RefreshFailureResolve:
		err, reason = e.resolveError(ctx, res.TenantID, res.UserID, res.Err), "permission_resolution"
	case flows.RefreshFailureIssue:
		err, reason = issueError(res.Err), "issue_failed"
	default: // session store and user lookup failures
		err, reason = persistence(res.Err), "backend_failure"
	}

	if errors.Is(err, ErrPersistence) {
		e.metricInc(MetricPersistenceFailure)
	}
	e.metricInc(MetricRefreshFailure)
	e.emitAudit(ctx, event, false, res.UserID, res.TenantID, res.SessionID, err, func() map[string]string {
		return map[string]string{"reason": reason}
	})
	return err
}

/*
====================================
LOGOUT
====================================
*/

// Logout revokes the session behind refreshToken. Expired tokens with a
// valid signature are accepted; a session that is already gone counts as
// logged out.
func (e *Engine) Logout(ctx context.Context, refreshToken string) error {
	if !e.ready() {
		return ErrEngineNotReady
	}

	res := e.flows.Logout(ctx, refreshToken)
	switch res.Failure {
	case flows.LogoutFailureInvalid:
		e.emitAudit(ctx, auditEventLogoutSession, false, "", "", "", ErrInvalidToken, nil)
		return ErrInvalidToken
	case flows.LogoutFailureSessionStore:
		err := persistence(res.Err)
		e.metricInc(MetricPersistenceFailure)
		e.emitAudit(ctx, auditEventLogoutSession, false, res.UserID, res.TenantID, res.SessionID, err, nil)
		return err
	}

	e.metricInc(MetricLogout)
	if !res.AlreadyEnded {
		e.metricInc(MetricSessionRevoked)
	}
	e.emitAudit(ctx, auditEventLogoutSession, true, res.UserID, res.TenantID, res.SessionID, nil, func() map[string]string {
		if res.AlreadyEnded {
			return map[string]string{"already_ended": "true"}
		}
		return nil
	})
	return nil
}

// LogoutAll revokes every session of the user.
func (e *Engine) LogoutAll(ctx context.Context, tenantID, userID string) error {
	if !e.ready() {
		return ErrEngineNotReady
	}

	n, err := e.flows.LogoutAll(ctx, tenantID, userID)
	if err != nil {
		err = persistence(err)
		e.metricInc(MetricPersistenceFailure)
		e.emitAudit(ctx, auditEventLogoutAll, false, userID, tenantID, "", err, nil)
		return err
	}

	e.metricInc(MetricLogoutAll)
	e.emitAudit(ctx, auditEventLogoutAll, true, userID, tenantID, "", nil, func() map[string]string {
		return map[string]string{"revoked": fmt.Sprint(n)}
	})
	return nil
}

/*
====================================
MAPPING
====================================
*/

func authResult(issued flows.Issued, email string, res permission.Resolution) *AuthResult {
	return &AuthResult{
		AccessToken:  issued.AccessToken,
		RefreshToken: issued.RefreshToken,
		TokenType:    TokenTypeBearer,
		ExpiresIn:    int64(issued.ExpiresIn / time.Second),
		User: PublicUser{
			ID:          issued.Access.UID,
			TenantID:    issued.Access.TID,
			Email:       email,
			Roles:       nonNil(res.Roles),
			Permissions: res.Permissions.Sorted(),
		},
	}
}

func claimsFrom(ac *jwt.AccessClaims) *Claims {
	c := &Claims{
		UserID:      ac.UID,
		TenantID:    ac.TID,
		Email:       ac.Email,
		Roles:       nonNil(ac.Roles),
		Permissions: nonNil(ac.Perms),
		TokenID:     ac.ID,
	}
	if ac.IssuedAt != nil {
		c.IssuedAt = ac.IssuedAt.Time
	}
	if ac.ExpiresAt != nil {
		c.ExpiresAt = ac.ExpiresAt.Time
	}
	return c
}

// resolveError maps a permission resolution failure. A cross tenant link is
// a data integrity problem and is logged and audited separately.
func (e *Engine) resolveError(ctx context.Context, tenantID, userID string, err error) error {
	if errors.Is(err, permission.ErrCrossTenantRole) {
		e.metricInc(MetricCrossTenantRole)
		e.log.WithFields(logrus.Fields{"tenant_id": tenantID, "user_id": userID, "error": err}).Error("user linked to a role of another tenant")
		e.emitAudit(ctx, auditEventCrossTenantRole, false, userID, tenantID, "", ErrCrossTenantRole, nil)
		return fmt.Errorf("%w: %v", ErrCrossTenantRole, err)
	}
	return persistence(err)
}

func issueError(err error) error {
	if errors.Is(err, session.ErrUnavailable) {
		return persistence(err)
	}
	return fmt.Errorf("issue tokens: %w", err)
}

func persistence(err error) error {
	if err == nil {
		return ErrPersistence
	}
	return fmt.Errorf("%w: %v", ErrPersistence, err)
}

func nonNil(in []string) []string {
	if in == nil {
		return []string{}
	}
	return in
}
