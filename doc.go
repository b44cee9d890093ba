// Package hackauth is the identity and session subsystem of the hackathon
// platform API: registration, password and OAuth login, rotating refresh
// tokens bound to Redis-backed sessions, and short-lived verification codes
// for email verification, password reset, two-factor login and account
// disable.
//
// The package is designed for concurrent server workloads: Engine methods are
// safe to call from multiple goroutines after initialization through
// [Builder.Build].
//
// # Architecture boundaries
//
// hackauth is the public surface. It exposes [Engine], [Builder], [Config] and
// value types (LoginResult, Tokens, Principal, SessionInfo). Components live
// in sub-packages: credential (password accounts), token and session (token
// issuance and refresh rotation), oauth (federation), fingerprint (request
// tagging), middleware (request guards). Redis stores, limiters, audit and
// metrics plumbing live under internal/.
//
// # What this package must NOT do
//
//   - Expose Redis clients, code-store keys or token hashes in its public API.
//   - Log passwords, verification codes or tokens.
//   - Report a backend outage as a credential failure; those surface as
//     ErrUnavailable.
//
// # Performance contract
//
// ValidateAccessToken is the hot path. It verifies signature and expiry only
// and never calls Redis. Refresh is one Lua round-trip after the session and
// account reads.
package hackauth
