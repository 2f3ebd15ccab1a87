// Package jwt issues and verifies access and refresh tokens.
//
// Signing is a capability ([Signer]); the [Manager] signs with one key and
// verifies against every registered [Verifier] by kid, which is how keys
// rotate. Access tokens carry a snapshot of roles and permissions. Refresh
// tokens carry only user, tenant and session ids.
//
// Every failure is reported as either [ErrExpired] or [ErrInvalid].
package jwt
