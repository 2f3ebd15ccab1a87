package middleware

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/MrEthical07/tenantauth"
)

// ErrorBody is the JSON error envelope written by every handler.
type ErrorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// StatusFor maps an engine error to its HTTP status.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, tenantauth.ErrInvalidCredentials),
		errors.Is(err, tenantauth.ErrInvalidToken),
		errors.Is(err, tenantauth.ErrExpiredToken),
		errors.Is(err, tenantauth.ErrReusedToken):
		return http.StatusUnauthorized
	case errors.Is(err, tenantauth.ErrAccountLocked):
		return http.StatusLocked
	case errors.Is(err, tenantauth.ErrAccountDisabled),
		errors.Is(err, tenantauth.ErrPermissionDenied),
		errors.Is(err, tenantauth.ErrCrossTenantRole):
		return http.StatusForbidden
	case errors.Is(err, tenantauth.ErrTenantNotFound),
		errors.Is(err, tenantauth.ErrUserNotFound):
		return http.StatusNotFound
	case errors.Is(err, tenantauth.ErrRateLimitExceeded):
		return http.StatusTooManyRequests
	case errors.Is(err, tenantauth.ErrPasswordPolicy),
		errors.Is(err, tenantauth.ErrPasswordReuse):
		return http.StatusBadRequest
	case errors.Is(err, tenantauth.ErrPersistence),
		errors.Is(err, tenantauth.ErrEngineNotReady):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// CodeFor returns the stable error code string for err.
func CodeFor(err error) string {
	switch {
	case errors.Is(err, tenantauth.ErrInvalidCredentials):
		return "invalid_credentials"
	case errors.Is(err, tenantauth.ErrExpiredToken):
		return "token_expired"
	case errors.Is(err, tenantauth.ErrReusedToken):
		return "token_reused"
	case errors.Is(err, tenantauth.ErrInvalidToken):
		return "invalid_token"
	case errors.Is(err, tenantauth.ErrAccountLocked):
		return "account_locked"
	case errors.Is(err, tenantauth.ErrAccountDisabled):
		return "account_disabled"
	case errors.Is(err, tenantauth.ErrPermissionDenied):
		return "permission_denied"
	case errors.Is(err, tenantauth.ErrCrossTenantRole):
		return "cross_tenant_role"
	case errors.Is(err, tenantauth.ErrTenantNotFound):
		return "tenant_not_found"
	case errors.Is(err, tenantauth.ErrUserNotFound):
		return "user_not_found"
	case errors.Is(err, tenantauth.ErrRateLimitExceeded):
		return "rate_limit_exceeded"
	case errors.Is(err, tenantauth.ErrPasswordPolicy):
		return "password_policy"
	case errors.Is(err, tenantauth.ErrPasswordReuse):
		return "password_reuse"
	case errors.Is(err, tenantauth.ErrPersistence), errors.Is(err, tenantauth.ErrEngineNotReady):
		return "unavailable"
	default:
		return "internal_error"
	}
}

// WriteError writes err as an ErrorBody. Backend details never reach the
// client: 5xx responses carry a generic message.
func WriteError(w http.ResponseWriter, err error) {
	status := StatusFor(err)
	msg := err.Error()
	if status >= http.StatusInternalServerError {
		msg = http.StatusText(status)
	}
	WriteJSON(w, status, ErrorBody{Error: CodeFor(err), Message: msg})
}

// WriteJSON writes v with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
