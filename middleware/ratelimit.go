package middleware

import (
	"errors"
	"math"
	"net/http"
	"strconv"

	"github.com/MrEthical07/tenantauth"
)

// RateLimitIP counts every request against the per IP budget. Place it
// after ClientContext when running behind a proxy.
func RateLimitIP(engine *tenantauth.Engine, trustProxy bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			d, err := engine.AllowIP(r.Context(), ClientIP(r, trustProxy))
			if !writeDecision(w, d, err) {
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RateLimitUser counts the request against the authenticated user's budget.
// Requests without claims fall back to the IP budget.
func RateLimitUser(engine *tenantauth.Engine, trustProxy bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var tenantID, userID string
			if claims, ok := ClaimsFromContext(r.Context()); ok {
				tenantID, userID = claims.TenantID, claims.UserID
			}
			d, err := engine.AllowUser(r.Context(), tenantID, userID, ClientIP(r, trustProxy))
			if !writeDecision(w, d, err) {
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ChargeFailedAuth counts a rejected credential against the caller's IP
// budget. Once the budget is spent it writes 429 and returns true; the
// caller must then stop. Limiter backend errors are not reported here so
// the original rejection stands.
func ChargeFailedAuth(w http.ResponseWriter, r *http.Request, engine *tenantauth.Engine) bool {
	if engine == nil {
		return false
	}
	d, err := engine.AllowIP(r.Context(), requestIP(r))
	if !errors.Is(err, tenantauth.ErrRateLimitExceeded) {
		return false
	}
	writeDecision(w, d, err)
	return true
}

// requestIP prefers the address stored by ClientContext.
func requestIP(r *http.Request) string {
	if ip := tenantauth.ClientIPFromContext(r.Context()); ip != "" {
		return ip
	}
	return ClientIP(r, false)
}

// writeDecision sets the rate headers and reports whether the request may
// continue.
func writeDecision(w http.ResponseWriter, d tenantauth.RateDecision, err error) bool {
	if d.Limit > 0 {
		reset := resetSeconds(d)
		h := w.Header()
		h.Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
		h.Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
		h.Set("X-RateLimit-Reset", strconv.Itoa(reset))
		if errors.Is(err, tenantauth.ErrRateLimitExceeded) {
			h.Set("Retry-After", strconv.Itoa(reset))
		}
	}
	if err != nil {
		WriteError(w, err)
		return false
	}
	return true
}

func resetSeconds(d tenantauth.RateDecision) int {
	if d.ResetAfter <= 0 {
		return 0
	}
	return int(math.Ceil(d.ResetAfter.Seconds()))
}
