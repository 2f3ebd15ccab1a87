// Package internal holds helpers private to tenantauth.
//
// # Sub-packages
//
//   - audit — async event dispatch (Dispatcher + Sink implementations)
//   - flows — flow orchestrators for every Engine operation
//   - metrics — lock-free counters and latency histograms
//   - rate — Redis-backed fixed-window limiter
//   - security — configuration posture report
//
// # What this package must NOT do
//
//   - Export types that appear in the public tenantauth API.
//   - Be imported by any package outside the module.
package internal
