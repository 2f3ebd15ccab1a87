// Package session persists refresh-token sessions and performs atomic
// rotation with reuse detection.
//
// # Model
//
// A login creates one [Record] and starts a chain. Every refresh redeems the
// current record and creates its successor in the same chain; the redeemed
// record is marked revoked with ReplacedBy pointing at the successor. Both
// changes become visible together. Presenting a record that is already
// revoked is reuse: the whole chain is revoked and [ErrReused] returned.
//
// Only the SHA-256 [Fingerprint] of a refresh token is stored.
//
// # Architecture boundaries
//
// This package owns the [Store] contract and the Redis implementation. The
// relational implementation lives in store/postgres. It does NOT parse
// tokens or decide what a failure means to the caller.
//
// # What this package must NOT do
//
//   - Import tenantauth, jwt, or permission.
//   - Store raw refresh tokens.
package session
