package tenantauth

import (
	"github.com/MrEthical07/tenantauth/internal/security"
	"github.com/MrEthical07/tenantauth/lockout"
)

// SecurityReport summarises the engine's security posture. cmd/authd logs
// it at startup.
type SecurityReport = security.Report

// SecurityReport derives the posture report from the engine configuration.
// It never exposes key material.
func (e *Engine) SecurityReport() SecurityReport {
	if e == nil {
		return SecurityReport{}
	}

	c := e.config
	catalogSize := 0
	if e.catalog != nil {
		catalogSize = e.catalog.Count()
	}
	return security.BuildReport(security.ReportInput{
		SigningAlgorithm: e.signingAlgorithm(),
		PreviousKeyID:    c.JWT.PreviousKeyID,
		AccessTTL:        c.JWT.AccessTTL,
		RefreshTTL:       c.JWT.RefreshTTL,
		Password: security.PasswordReport{
			Memory:      c.Password.Memory,
			Time:        c.Password.Time,
			Parallelism: c.Password.Parallelism,
			SaltLength:  c.Password.SaltLength,
			KeyLength:   c.Password.KeyLength,
			MinLength:   c.Password.MinLength,
		},
		UpgradeOnLogin:    c.Password.UpgradeOnLogin,
		LockoutEnabled:    c.Lockout.Enabled,
		LockoutThreshold:  c.Lockout.Threshold,
		LockoutDuration:   c.Lockout.Duration,
		LockoutFailClosed: c.Lockout.FailurePolicy == lockout.FailClosed,
		RateLimitEnabled:  c.RateLimit.Enabled,
		IPLimit:           c.RateLimit.IPLimit,
		UserLimit:         c.RateLimit.UserLimit,
		AuditEnabled:      c.Audit.Enabled,
		MetricsEnabled:    c.Metrics.Enabled,
		PermissionCodes:   catalogSize,
	})
}

func (e *Engine) signingAlgorithm() string {
	if e.tokens != nil {
		return e.tokens.SigningAlgorithm()
	}
	return e.config.JWT.SigningMethod
}
