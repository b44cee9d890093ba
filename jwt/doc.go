// Package jwt issues and verifies short-lived access tokens. Tokens carry the
// account id, username, email, role and session id; verification is purely
// cryptographic and never touches storage.
package jwt
