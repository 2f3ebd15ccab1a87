// Package password implements password hashing and verification with Argon2id.
//
// # Output format
//
// Hashes are encoded in PHC string format:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// [Argon2.NeedsUpgrade] reports hashes produced with weaker parameters so the
// caller can re-hash after a successful login. [Argon2.VerifyDummy] spends the
// same work as a real verification for lookups that found no user.
//
// # Architecture boundaries
//
// This package owns hashing, verification, and the length policy. Reuse
// checks and persistence belong to the Engine.
//
// # What this package must NOT do
//
//   - Store or retrieve passwords.
//   - Import any other tenantauth package.
//   - Log plaintext passwords.
package password
