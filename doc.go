// Package auth provides stateful bearer-token session management (JWT
// issuance, rotation, revocation) plus two-phase email verification for
// registrations and password changes.
//
// Sessions:
//   - SessionManager is the entry point. Login, Refresh, UserData, and Logout
//     operate on a single live session per identity, keyed by a digest of the
//     claims identity so a rotated token still resolves to the same entry.
//   - Refresh and UserData rotate the token: the presented token is revoked
//     and a replacement issued. A token redeemed twice fails the second time.
//
// Registration and verification:
//   - Register caches the payload under an unguessable activation id and
//     queues a verification email through a background Dispatcher; no user
//     row exists until Activate redeems the id, at most once.
//   - Verification also issues purpose-scoped tokens (registration, password
//     change) whose successful validation gates ChangePassword for a short
//     window.
//
// Rate limiting:
//   - Login and Register consume from injected token buckets. An empty bucket
//     rejects immediately with a rate-limit error rather than queueing.
package auth
