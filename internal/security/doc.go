// Package security derives a security posture report from engine
// configuration: signing algorithm, token lifetimes, password hashing cost,
// lockout and rate limit settings, plus warnings for weak choices.
//
// # What this package must NOT do
//
//   - Read key material or secrets. Only algorithm names and key ids are
//     reported.
//   - Reach any backend. Reports are pure functions of configuration.
package security
