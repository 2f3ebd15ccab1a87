package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/MrEthical07/tenantauth"
)

type claimsContextKey struct{}

// ClaimsFromContext returns the claims injected by [Authenticate].
func ClaimsFromContext(ctx context.Context) (*tenantauth.Claims, bool) {
	claims, ok := ctx.Value(claimsContextKey{}).(*tenantauth.Claims)
	return claims, ok && claims != nil
}

// WithClaims stores claims on ctx. It is exported for handler tests.
func WithClaims(ctx context.Context, claims *tenantauth.Claims) context.Context {
	return context.WithValue(ctx, claimsContextKey{}, claims)
}

// Authenticate verifies the bearer token with Engine.Validate. Permissions
// come from the token snapshot.
func Authenticate(engine *tenantauth.Engine) func(http.Handler) http.Handler {
	return guard(engine, func(e *tenantauth.Engine, ctx context.Context, token string) (*tenantauth.Claims, error) {
		return e.Validate(ctx, token)
	})
}

// AuthenticateLive is Authenticate with permissions re-resolved from the
// identity store on every request.
func AuthenticateLive(engine *tenantauth.Engine) func(http.Handler) http.Handler {
	return guard(engine, func(e *tenantauth.Engine, ctx context.Context, token string) (*tenantauth.Claims, error) {
		return e.ValidateLive(ctx, token)
	})
}

type validateFunc func(*tenantauth.Engine, context.Context, string) (*tenantauth.Claims, error)

func guard(engine *tenantauth.Engine, validate validateFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if engine == nil {
				WriteError(w, tenantauth.ErrEngineNotReady)
				return
			}

			token, ok := BearerToken(r.Header.Get("Authorization"))
			if !ok {
				if ChargeFailedAuth(w, r, engine) {
					return
				}
				w.Header().Set("WWW-Authenticate", `Bearer realm="tenantauth"`)
				WriteError(w, tenantauth.ErrInvalidToken)
				return
			}

			claims, err := validate(engine, r.Context(), token)
			if err != nil {
				if isTokenFailure(err) {
					if ChargeFailedAuth(w, r, engine) {
						return
					}
					w.Header().Set("WWW-Authenticate", `Bearer realm="tenantauth", error="invalid_token"`)
				}
				WriteError(w, err)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
		})
	}
}

func isTokenFailure(err error) bool {
	return errors.Is(err, tenantauth.ErrInvalidToken) || errors.Is(err, tenantauth.ErrExpiredToken)
}

// RequirePermission must run after Authenticate. Requests without claims
// get 401; claims lacking code get 403.
func RequirePermission(engine *tenantauth.Engine, code string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := ClaimsFromContext(r.Context())
			if !ok {
				WriteError(w, tenantauth.ErrInvalidToken)
				return
			}
			if !engine.CheckPermission(claims, code) {
				WriteError(w, tenantauth.ErrPermissionDenied)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// BearerToken extracts the token from an Authorization header value. The
// scheme is matched case-insensitively.
func BearerToken(value string) (string, bool) {
	scheme, token, found := strings.Cut(strings.TrimSpace(value), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return "", false
	}
	return token, true
}
