package security

import (
	"fmt"
	"strings"
	"time"
)

// PasswordReport mirrors the argon2id cost parameters in force.
type PasswordReport struct {
	Memory      uint32
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
	MinLength   int
}

// Report summarises the security posture of a built engine.
type Report struct {
	SigningAlgorithm   string
	KeyRotationActive  bool
	AccessTTL          time.Duration
	RefreshTTL         time.Duration
	Argon2             PasswordReport
	RehashOnLogin      bool
	LockoutActive      bool
	LockoutThreshold   int
	LockoutDuration    time.Duration
	LockoutFailClosed  bool
	RateLimitingActive bool
	IPLimit            int
	UserLimit          int
	AuditActive        bool
	MetricsActive      bool
	PermissionCodes    int
	Warnings           []string
}

// ReportInput is the raw configuration a report is derived from.
type ReportInput struct {
	SigningAlgorithm  string
	PreviousKeyID     string
	AccessTTL         time.Duration
	RefreshTTL        time.Duration
	Password          PasswordReport
	UpgradeOnLogin    bool
	LockoutEnabled    bool
	LockoutThreshold  int
	LockoutDuration   time.Duration
	LockoutFailClosed bool
	RateLimitEnabled  bool
	IPLimit           int
	UserLimit         int
	AuditEnabled      bool
	MetricsEnabled    bool
	PermissionCodes   int
}

// Recommended floors. Reports flag settings below them as warnings.
const (
	minArgonMemoryKiB = 19 * 1024
	maxAccessTTL      = time.Hour
)

// BuildReport derives a Report and its warnings from input.
func BuildReport(input ReportInput) Report {
	r := Report{
		SigningAlgorithm:   input.SigningAlgorithm,
		KeyRotationActive:  input.PreviousKeyID != "",
		AccessTTL:          input.AccessTTL,
		RefreshTTL:         input.RefreshTTL,
		Argon2:             input.Password,
		RehashOnLogin:      input.UpgradeOnLogin,
		LockoutActive:      input.LockoutEnabled && input.LockoutThreshold > 0,
		LockoutThreshold:   input.LockoutThreshold,
		LockoutDuration:    input.LockoutDuration,
		LockoutFailClosed:  input.LockoutFailClosed,
		RateLimitingActive: input.RateLimitEnabled,
		IPLimit:            input.IPLimit,
		UserLimit:          input.UserLimit,
		AuditActive:        input.AuditEnabled,
		MetricsActive:      input.MetricsEnabled,
		PermissionCodes:    input.PermissionCodes,
	}

	if strings.EqualFold(input.SigningAlgorithm, "hs256") {
		r.Warnings = append(r.Warnings, "hs256 shares the signing secret with every verifier")
	}
	if input.AccessTTL > maxAccessTTL {
		r.Warnings = append(r.Warnings, fmt.Sprintf("access TTL %s exceeds %s", input.AccessTTL, maxAccessTTL))
	}
	if input.Password.Memory < minArgonMemoryKiB {
		r.Warnings = append(r.Warnings, fmt.Sprintf("argon2 memory %d KiB is below %d KiB", input.Password.Memory, minArgonMemoryKiB))
	}
	if !r.LockoutActive {
		r.Warnings = append(r.Warnings, "account lockout disabled")
	} else if !input.LockoutFailClosed {
		r.Warnings = append(r.Warnings, "lockout fails open when its backend is unavailable")
	}
	if !input.RateLimitEnabled {
		r.Warnings = append(r.Warnings, "rate limiting disabled")
	}
	return r
}
