package tenantauth

import (
	"context"
	"time"

	"github.com/MrEthical07/tenantauth/internal/flows"
	"github.com/sirupsen/logrus"
)

// Validate verifies accessToken and returns its claims. It performs no
// store lookups: roles and permissions are the snapshot taken at issuance.
func (e *Engine) Validate(ctx context.Context, accessToken string) (*Claims, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}

	start := time.Now()
	res := e.flows.Validate(accessToken)
	if e.metrics.LatencyEnabled() {
		e.metrics.Observe(MetricValidateLatency, time.Since(start))
	}

	if res.Failure != flows.ValidateFailureNone {
		e.metricInc(MetricValidateFailure)
		return nil, e.validateError(ctx, res)
	}
	e.metricInc(MetricValidateSuccess)
	return claimsFrom(res.Claims), nil
}

// ValidateLive verifies accessToken, then reloads the user and resolves
// permissions again. The returned claims carry the current roles and
// permissions instead of the snapshot.
func (e *Engine) ValidateLive(ctx context.Context, accessToken string) (*Claims, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}

	res := e.flows.ValidateLive(ctx, accessToken)
	if res.Failure != flows.ValidateFailureNone {
		e.metricInc(MetricValidateFailure)
		return nil, e.validateError(ctx, res)
	}

	e.metricInc(MetricValidateSuccess)
	c := claimsFrom(res.Claims)
	c.Roles = nonNil(res.Live.Roles)
	c.Permissions = res.Live.Permissions.Sorted()
	return c, nil
}

func (e *Engine) validateError(ctx context.Context, res flows.ValidateResult) error {
	switch res.Failure {
	case flows.ValidateFailureExpired:
		return ErrExpiredToken
	case flows.ValidateFailureInvalid, flows.ValidateFailureUserNotFound:
		return ErrInvalidToken
	case flows.ValidateFailureDisabled:
		e.metricInc(MetricAccountDisabled)
		return ErrAccountDisabled
	case flows.ValidateFailureResolve:
		return e.resolveError(ctx, res.Claims.TID, res.Claims.UID, res.Err)
	default:
		e.metricInc(MetricPersistenceFailure)
		return persistence(res.Err)
	}
}

// CheckPermission reports whether claims grant code. Codes missing from
// the catalog are never granted.
func (e *Engine) CheckPermission(claims *Claims, code string) bool {
	if e == nil || e.catalog == nil || !e.catalog.Known(code) {
		return false
	}
	return CheckPermission(claims, code)
}

// Authorize validates accessToken and requires the permission code. A code
// the catalog does not know is logged and denied.
func (e *Engine) Authorize(ctx context.Context, accessToken, code string) (*Claims, error) {
	claims, err := e.Validate(ctx, accessToken)
	if err != nil {
		return nil, err
	}
	if e.catalog != nil && !e.catalog.Known(code) {
		e.log.WithFields(logrus.Fields{"permission": code}).Warn("authorization requested for permission missing from catalog")
	}
	if !e.CheckPermission(claims, code) {
		e.metricInc(MetricPermissionDenied)
		e.emitAudit(ctx, auditEventPermissionDenied, false, claims.UserID, claims.TenantID, "", ErrPermissionDenied, func() map[string]string {
			return map[string]string{"permission": code}
		})
		return claims, ErrPermissionDenied
	}
	return claims, nil
}
