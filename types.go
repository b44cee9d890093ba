package hackauth

import (
	"github.com/hackforge/hackauth/account"
	"github.com/hackforge/hackauth/credential"
	"github.com/hackforge/hackauth/session"
	"github.com/hackforge/hackauth/token"
)

// Tokens is an issued access/refresh pair bound to one session.
type Tokens = token.Issued

// Principal is the identity carried by a valid access token.
type Principal = token.Principal

// SessionInfo is the client-facing view of a live session.
type SessionInfo = session.Info

// RegisterInput carries a registration request. Username is optional.
type RegisterInput = credential.RegisterInput

// LoginResult is returned by password and OAuth logins.
//
// When the account has two-factor login enabled, Tokens is nil,
// TwoFactorRequired is set and Challenge identifies the pending login; the
// caller completes it with [Engine.ConfirmLoginTwoFactor].
type LoginResult struct {
	Tokens            *Tokens
	Account           account.Public
	TwoFactorRequired bool
	Challenge         string
	// Created and Linked report what an OAuth login did with the external
	// identity. Both are false for password logins.
	Created bool
	Linked  bool
}
