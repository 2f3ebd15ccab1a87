package tenantauth

import (
	"context"
	"fmt"

	"github.com/MrEthical07/tenantauth/internal/flows"
	"github.com/sirupsen/logrus"
)

// ChangePassword replaces the user's password after verifying current.
// Every session of the user is revoked once the new hash is stored, so
// outstanding refresh tokens stop working.
func (e *Engine) ChangePassword(ctx context.Context, tenantID, userID, current, next string) error {
	if !e.ready() {
		return ErrEngineNotReady
	}

	res := e.flows.ChangePassword(ctx, flows.ChangePasswordRequest{
		TenantID: tenantID,
		UserID:   userID,
		Current:  current,
		Next:     next,
	})

	switch res.Failure {
	case flows.ChangePasswordFailureNone:
		e.metricInc(MetricPasswordChangeSuccess)
		e.emitAudit(ctx, auditEventPasswordChangeSuccess, true, userID, tenantID, "", nil, func() map[string]string {
			return map[string]string{"sessions_revoked": fmt.Sprint(res.Revoked)}
		})
		return nil
	case flows.ChangePasswordFailureInvalidCurrent:
		e.metricInc(MetricPasswordChangeInvalidOld)
		e.emitAudit(ctx, auditEventPasswordChangeInvalidOld, false, userID, tenantID, "", ErrInvalidCredentials, nil)
		return ErrInvalidCredentials
	case flows.ChangePasswordFailureReuse:
		e.metricInc(MetricPasswordChangeReuseRejected)
		e.emitAudit(ctx, auditEventPasswordChangeReuse, false, userID, tenantID, "", ErrPasswordReuse, nil)
		return ErrPasswordReuse
	}

	var err error
	switch res.Failure {
	case flows.ChangePasswordFailureUserNotFound:
		err = ErrUserNotFound
	case flows.ChangePasswordFailurePolicy:
		err = fmt.Errorf("%w: %v", ErrPasswordPolicy, res.Err)
	case flows.ChangePasswordFailureHash:
		err = fmt.Errorf("hash password: %w", res.Err)
	case flows.ChangePasswordFailureRevoke:
		// The new hash is already stored; only the session sweep failed.
		e.log.WithFields(logrus.Fields{"tenant_id": tenantID, "user_id": userID, "error": res.Err}).Error("password changed but session revocation failed")
		e.metricInc(MetricPersistenceFailure)
		err = persistence(res.Err)
	default:
		e.metricInc(MetricPersistenceFailure)
		err = persistence(res.Err)
	}
	e.emitAudit(ctx, auditEventPasswordChangeFailure, false, userID, tenantID, "", err, nil)
	return err
}

// HashPassword hashes plain with the engine's configured Argon2id
// parameters. Provisioning code uses it to seed users.
func (e *Engine) HashPassword(plain string) (string, error) {
	if !e.ready() {
		return "", ErrEngineNotReady
	}
	return e.hasher.Hash(plain)
}
