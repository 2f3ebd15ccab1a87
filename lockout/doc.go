// Package lockout tracks consecutive failed logins per user and locks the
// account for a fixed duration once a threshold is reached.
//
// The [Store] performs the increment atomically; the [Tracker] applies the
// threshold, duration and the failure policy for backend errors.
//
// # Failure policy
//
// [FailClosed] reports a backend error as a lock so a login can never
// succeed because a failure went uncounted. [Retryable] surfaces the error
// so the caller can answer with a retryable failure.
//
// # What this package must NOT do
//
//   - Verify passwords or look up users.
//   - Import tenantauth or any sibling package.
package lockout
