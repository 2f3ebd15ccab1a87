// Package tenantauth is a multi-tenant authentication and authorization
// engine: password login with account lockout, JWT access tokens carrying a
// role and permission snapshot, rotating refresh tokens with reuse detection,
// and per-IP / per-user fixed window rate limits.
//
// Engine methods are safe to call from multiple goroutines after
// initialization through [Builder.Build].
//
// # Architecture boundaries
//
// tenantauth is the public surface. It exposes [Engine], [Builder], [Config]
// and value types ([AuthResult], [Claims], [MetricsSnapshot]). Flow
// orchestration, rate limiting, metrics storage and audit dispatch live
// under internal/. Persistence is reached only through the identity,
// lockout and session Store interfaces, so Redis, Postgres and in-memory
// backends are interchangeable.
//
// # What this package must NOT do
//
//   - Expose Redis clients or store internals in its public API.
//   - Log or audit passwords, refresh tokens or password hashes.
//   - Treat a persistence failure as success.
//   - Import any sub-package that re-imports tenantauth.
//
// # Performance contract
//
// Validate is the hot path. It never touches a store. ValidateLive,
// Refresh and Login perform store round trips and are expected to be
// rate limited by the caller through AllowIP / AllowUser.
package tenantauth
