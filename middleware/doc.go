// Package middleware adapts a tenantauth.Engine to net/http.
//
// # Handlers
//
//   - [ClientContext] records the caller IP and User-Agent on the request
//     context so sessions and audit events carry them.
//   - [Authenticate] and [AuthenticateLive] verify the bearer access token
//     and inject [tenantauth.Claims]. Rejected tokens are charged to the
//     caller's IP budget ([ChargeFailedAuth]), so guessing gets 429.
//   - [RequirePermission] rejects requests whose claims lack a code.
//   - [RateLimitIP] and [RateLimitUser] apply the engine limiters and write
//     X-RateLimit-* headers.
//
// # What this package must NOT do
//
//   - Parse or create JWTs directly (delegates to Engine).
//   - Access Redis (Engine handles I/O).
//   - Decide authorization beyond what Engine reports.
package middleware
