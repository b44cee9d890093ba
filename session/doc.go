// Package session stores refresh-token sessions in Redis.
//
// Each session is a HASH at {prefix}sess:{id} holding the account id, the
// timestamps, the client fingerprint and the SHA-256 digest of the current
// refresh token. A SET at {prefix}acct:{accountID} indexes the sessions of an
// account for listing and logout-all.
//
// Refresh rotation is a single Lua compare-and-swap: of any number of
// concurrent refreshes presenting the same token exactly one succeeds. A
// presented digest that does not match the stored one deletes the session,
// which revokes the whole token family when a stolen token is replayed.
package session
