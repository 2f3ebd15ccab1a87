// Package permission resolves a user's effective permission codes inside a
// tenant and provides the pure checks used at request time.
//
// # Resolution
//
// [Resolver.Resolve] walks user → role → permission through a [Source] and
// returns a deduplicated [Set]. A role linked to the user from another
// tenant aborts resolution with [ErrCrossTenantRole]; it is a data
// integrity failure and never filtered silently.
//
// # Codes
//
// Permission codes have the form resource.action. [Catalog] validates codes
// at registration time and is frozen before use. A granted code ending in
// ".*" matches every action of that resource in [Check].
//
// # Architecture boundaries
//
// The package performs no I/O of its own. All lookups go through [Source],
// which the identity stores satisfy.
//
// # What this package must NOT do
//
//   - Import tenantauth, jwt or session.
//   - Cache results beyond a single request context.
package permission
