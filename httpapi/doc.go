// Package httpapi serves the tenantauth engine over JSON/HTTP with a
// gorilla/mux router.
//
// Routes:
//
//	POST /auth/login               {tenant_code, email, password}
//	POST /auth/refresh             {refresh_token}
//	POST /auth/logout              {refresh_token}
//	POST /auth/logout-all          bearer
//	POST /auth/validate            {token}
//	GET  /auth/me                  bearer
//	PUT  /auth/change-password     bearer, {current_password, new_password}
//	POST /internal/validate-token  {token, required_permissions}
//	GET  /health
//	GET  /metrics                  when Options.Metrics is set
//
// Public routes spend the per IP budget. Bearer routes spend the per user
// budget; requests that fail authentication, and failed lookups on
// /internal/validate-token, spend the per IP budget instead.
//
// Engine errors are translated by [middleware.StatusFor].
package httpapi
