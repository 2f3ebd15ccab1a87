// Package flows contains the orchestrators behind every Engine operation.
//
// Each flow (Login, Refresh, Validate, Logout, ChangePassword) takes the
// shared [Deps] and returns a result carrying a failure kind instead of a
// root error. The Engine maps failure kinds to sentinel errors, metrics and
// audit events, so flows can be tested with fake dependencies only.
//
// # Architecture boundaries
//
// Flows coordinate the identity store, lockout tracker, password hasher,
// permission resolver, token manager and session store. They do NOT own any
// of these resources; ownership stays with the Engine.
//
// # What this package must NOT do
//
//   - Hold mutable state between calls.
//   - Import tenantauth (to avoid import cycles).
//   - Emit metrics or audit events directly.
package flows
