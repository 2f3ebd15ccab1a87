package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/MrEthical07/tenantauth"
	"github.com/MrEthical07/tenantauth/middleware"
)

var errBadRequest = errors.New("invalid request body")

// LoginRequest is the body of POST /auth/login.
type LoginRequest struct {
	TenantCode string `json:"tenant_code"`
	Email      string `json:"email"`
	Password   string `json:"password"`
}

// RefreshRequest is the body of POST /auth/refresh and /auth/logout.
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// ChangePasswordRequest is the body of PUT /auth/change-password.
type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

// ValidateRequest is the body of the token validation routes.
type ValidateRequest struct {
	Token               string   `json:"token"`
	RequiredPermissions []string `json:"required_permissions,omitempty"`
}

// ValidateResponse reports a token check. Invalid tokens are not an HTTP
// error; Valid is false and Error names the reason.
type ValidateResponse struct {
	Valid       bool       `json:"valid"`
	UserID      string     `json:"user_id,omitempty"`
	TenantID    string     `json:"tenant_id,omitempty"`
	Email       string     `json:"email,omitempty"`
	Roles       []string   `json:"roles"`
	Permissions []string   `json:"permissions"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	Error       string     `json:"error,omitempty"`
}

type messageResponse struct {
	Message string `json:"message"`
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		middleware.WriteJSON(w, http.StatusBadRequest, middleware.ErrorBody{Error: "invalid_request", Message: errBadRequest.Error()})
		return false
	}
	return true
}

func badRequest(w http.ResponseWriter, format string, args ...any) {
	middleware.WriteJSON(w, http.StatusBadRequest, middleware.ErrorBody{Error: "invalid_request", Message: fmt.Sprintf(format, args...)})
}

func (h *Handlers) fail(w http.ResponseWriter, r *http.Request, err error) {
	if middleware.StatusFor(err) >= http.StatusInternalServerError {
		h.log.WithFields(logrus.Fields{"path": r.URL.Path, "error": err}).Error("request failed")
	}
	middleware.WriteError(w, err)
}

func (h *Handlers) login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !decode(w, r, &req) {
		return
	}
	if req.TenantCode == "" || req.Email == "" || req.Password == "" {
		badRequest(w, "tenant_code, email and password are required")
		return
	}

	res, err := h.engine.Login(r.Context(), req.TenantCode, req.Email, req.Password)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, res)
}

func (h *Handlers) refresh(w http.ResponseWriter, r *http.Request) {
	var req RefreshRequest
	if !decode(w, r, &req) {
		return
	}
	if req.RefreshToken == "" {
		badRequest(w, "refresh_token is required")
		return
	}

	res, err := h.engine.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, res)
}

func (h *Handlers) logout(w http.ResponseWriter, r *http.Request) {
	var req RefreshRequest
	if !decode(w, r, &req) {
		return
	}
	if req.RefreshToken == "" {
		badRequest(w, "refresh_token is required")
		return
	}

	if err := h.engine.Logout(r.Context(), req.RefreshToken); err != nil {
		h.fail(w, r, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, messageResponse{Message: "logged out"})
}

func (h *Handlers) logoutAll(w http.ResponseWriter, r *http.Request) {
	claims, _ := middleware.ClaimsFromContext(r.Context())
	if err := h.engine.LogoutAll(r.Context(), claims.TenantID, claims.UserID); err != nil {
		h.fail(w, r, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, messageResponse{Message: "all sessions revoked"})
}

func (h *Handlers) me(w http.ResponseWriter, r *http.Request) {
	claims, _ := middleware.ClaimsFromContext(r.Context())
	middleware.WriteJSON(w, http.StatusOK, tenantauth.PublicUser{
		ID:          claims.UserID,
		TenantID:    claims.TenantID,
		Email:       claims.Email,
		Roles:       claims.Roles,
		Permissions: claims.Permissions,
	})
}

func (h *Handlers) changePassword(w http.ResponseWriter, r *http.Request) {
	var req ChangePasswordRequest
	if !decode(w, r, &req) {
		return
	}
	if req.CurrentPassword == "" || req.NewPassword == "" {
		badRequest(w, "current_password and new_password are required")
		return
	}

	claims, _ := middleware.ClaimsFromContext(r.Context())
	if err := h.engine.ChangePassword(r.Context(), claims.TenantID, claims.UserID, req.CurrentPassword, req.NewPassword); err != nil {
		h.fail(w, r, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, messageResponse{Message: "password changed"})
}

func (h *Handlers) validate(w http.ResponseWriter, r *http.Request) {
	var req ValidateRequest
	if !decode(w, r, &req) {
		return
	}
	middleware.WriteJSON(w, http.StatusOK, h.check(r, req))
}

// validateInternal is the service-to-service check. All required
// permissions must be granted for Valid to be true.
func (h *Handlers) validateInternal(w http.ResponseWriter, r *http.Request) {
	var req ValidateRequest
	if !decode(w, r, &req) {
		return
	}
	resp := h.check(r, req)
	if !resp.Valid && resp.Error != middleware.CodeFor(tenantauth.ErrPermissionDenied) {
		if middleware.ChargeFailedAuth(w, r, h.engine) {
			return
		}
	}
	if !resp.Valid {
		resp.UserID, resp.TenantID, resp.Email, resp.ExpiresAt = "", "", "", nil
		resp.Roles, resp.Permissions = []string{}, []string{}
	}
	middleware.WriteJSON(w, http.StatusOK, resp)
}

func (h *Handlers) check(r *http.Request, req ValidateRequest) ValidateResponse {
	invalid := func(err error) ValidateResponse {
		return ValidateResponse{Roles: []string{}, Permissions: []string{}, Error: middleware.CodeFor(err)}
	}
	if req.Token == "" {
		return invalid(tenantauth.ErrInvalidToken)
	}

	claims, err := h.engine.Validate(r.Context(), req.Token)
	if err != nil {
		return invalid(err)
	}
	expires := claims.ExpiresAt
	resp := ValidateResponse{
		Valid:       true,
		UserID:      claims.UserID,
		TenantID:    claims.TenantID,
		Email:       claims.Email,
		Roles:       claims.Roles,
		Permissions: claims.Permissions,
		ExpiresAt:   &expires,
	}
	for _, code := range req.RequiredPermissions {
		if !h.engine.CheckPermission(claims, code) {
			resp.Valid = false
			resp.Error = middleware.CodeFor(tenantauth.ErrPermissionDenied)
			break
		}
	}
	return resp
}

func (h *Handlers) health(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.Health(r.Context()); err != nil {
		h.log.WithError(err).Warn("health check failed")
		middleware.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
