package internaldefs

import (
	"github.com/MrEthical07/tenantauth"
)

// CounterDef names one engine counter for export.
type CounterDef struct {
	ID   tenantauth.MetricID
	Name string
	Help string
}

// HistogramDef names one engine histogram for export.
type HistogramDef struct {
	ID   tenantauth.MetricID
	Name string
	Help string
}

// CounterDefs lists every exported counter in a stable order.
var CounterDefs = []CounterDef{
	{ID: tenantauth.MetricLoginSuccess, Name: "tenantauth_login_success_total", Help: "Successful login attempts."},
	{ID: tenantauth.MetricLoginFailure, Name: "tenantauth_login_failure_total", Help: "Failed login attempts."},
	{ID: tenantauth.MetricLoginLocked, Name: "tenantauth_login_locked_total", Help: "Login attempts rejected because the account was locked."},
	{ID: tenantauth.MetricLockoutTriggered, Name: "tenantauth_lockout_triggered_total", Help: "Failures that reached the lockout threshold."},
	{ID: tenantauth.MetricLockoutUnavailable, Name: "tenantauth_lockout_unavailable_total", Help: "Lockout backend errors."},
	{ID: tenantauth.MetricTenantNotFound, Name: "tenantauth_tenant_not_found_total", Help: "Logins naming an unknown or inactive tenant."},
	{ID: tenantauth.MetricRefreshSuccess, Name: "tenantauth_refresh_success_total", Help: "Successful refresh operations."},
	{ID: tenantauth.MetricRefreshFailure, Name: "tenantauth_refresh_failure_total", Help: "Failed refresh operations."},
	{ID: tenantauth.MetricRefreshReuseDetected, Name: "tenantauth_refresh_reuse_detected_total", Help: "Detected refresh token reuses."},
	{ID: tenantauth.MetricValidateSuccess, Name: "tenantauth_validate_success_total", Help: "Accepted access tokens."},
	{ID: tenantauth.MetricValidateFailure, Name: "tenantauth_validate_failure_total", Help: "Rejected access tokens."},
	{ID: tenantauth.MetricPermissionDenied, Name: "tenantauth_permission_denied_total", Help: "Authorization checks that denied access."},
	{ID: tenantauth.MetricCrossTenantRole, Name: "tenantauth_cross_tenant_role_total", Help: "Users found linked to another tenant's role."},
	{ID: tenantauth.MetricRateLimitHit, Name: "tenantauth_rate_limit_hit_total", Help: "Rate-limit checks that denied requests."},
	{ID: tenantauth.MetricSessionCreated, Name: "tenantauth_session_created_total", Help: "Created sessions."},
	{ID: tenantauth.MetricSessionRevoked, Name: "tenantauth_session_revoked_total", Help: "Revoked sessions and session chains."},
	{ID: tenantauth.MetricLogout, Name: "tenantauth_logout_total", Help: "Single-session logout operations."},
	{ID: tenantauth.MetricLogoutAll, Name: "tenantauth_logout_all_total", Help: "Logout-all operations."},
	{ID: tenantauth.MetricPasswordChangeSuccess, Name: "tenantauth_password_change_success_total", Help: "Successful password changes."},
	{ID: tenantauth.MetricPasswordChangeInvalidOld, Name: "tenantauth_password_change_invalid_old_total", Help: "Password change attempts with invalid old password."},
	{ID: tenantauth.MetricPasswordChangeReuseRejected, Name: "tenantauth_password_change_reuse_rejected_total", Help: "Password change attempts rejected for reuse."},
	{ID: tenantauth.MetricPasswordRehash, Name: "tenantauth_password_rehash_total", Help: "Password hashes upgraded at login."},
	{ID: tenantauth.MetricAccountDisabled, Name: "tenantauth_account_disabled_total", Help: "Requests rejected for a disabled account."},
	{ID: tenantauth.MetricPersistenceFailure, Name: "tenantauth_persistence_failure_total", Help: "Backend failures surfaced to callers."},
}

// HistogramDefs lists every exported histogram.
var HistogramDefs = []HistogramDef{
	{ID: tenantauth.MetricValidateLatency, Name: "tenantauth_validate_latency_seconds", Help: "Validate latency histogram."},
}

// AuditDroppedName is the counter for audit events lost to backpressure.
const AuditDroppedName = "tenantauth_audit_dropped_total"

// AuditDroppedHelp describes AuditDroppedName.
const AuditDroppedHelp = "Dropped audit events due to dispatcher backpressure."

// HistogramUpperBounds are the finite bucket bounds in seconds. The last
// engine bucket is +Inf.
var HistogramUpperBounds = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5}

// HistogramBoundSuffix names each bucket, +Inf included, for exporters
// without native histograms.
var HistogramBoundSuffix = []string{
	"0_005",
	"0_01",
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"inf",
}

// NormalizeBuckets copies raw into a fixed size array. Missing buckets are
// zero.
func NormalizeBuckets(raw []uint64) [tenantauth.HistogramBucketCount]uint64 {
	var out [tenantauth.HistogramBucketCount]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets turns per bucket counts into running totals.
func CumulativeBuckets(raw [tenantauth.HistogramBucketCount]uint64) [tenantauth.HistogramBucketCount]uint64 {
	var out [tenantauth.HistogramBucketCount]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
