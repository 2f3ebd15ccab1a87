// Package rate provides the Redis-backed fixed-window limiter that gates
// every inbound request.
//
// # Window semantics
//
// One Lua script per check: INCR, PEXPIRE on the first hit of a window, and
// PTTL, all in one round trip. Counts are never decremented; a window resets
// when its key expires. Key prefixes:
//   - {prefix}:ip:   — per client address
//   - {prefix}:user: — per tenant and user
//
// # What this package must NOT do
//
//   - Retry on behalf of the caller.
//   - Be imported outside the tenantauth module.
package rate
