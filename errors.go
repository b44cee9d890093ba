package hackauth

import "github.com/hackforge/hackauth/autherr"

// Error categories. Every error returned by the Engine that is not a
// programming error matches exactly one of these with errors.Is.
var (
	ErrValidation  = autherr.ErrValidation
	ErrConflict    = autherr.ErrConflict
	ErrAuth        = autherr.ErrAuth
	ErrNotFound    = autherr.ErrNotFound
	ErrUnavailable = autherr.ErrUnavailable
)

var (
	// ErrInvalidInput is returned for malformed registration or request input.
	ErrInvalidInput = autherr.ErrInvalidInput
	// ErrPasswordPolicy is returned when a new password is shorter than 8 or
	// longer than 128 bytes.
	ErrPasswordPolicy = autherr.ErrPasswordPolicy
	// ErrUnknownProvider is returned for an OAuth provider that is not
	// configured.
	ErrUnknownProvider = autherr.ErrUnknownProvider

	ErrEmailExists    = autherr.ErrEmailExists
	ErrUsernameExists = autherr.ErrUsernameExists

	// ErrInvalidCredentials covers unknown accounts, wrong passwords and
	// banned or disabled accounts alike.
	ErrInvalidCredentials  = autherr.ErrInvalidCredentials
	ErrInvalidSession      = autherr.ErrInvalidSession
	ErrInvalidRefreshToken = autherr.ErrInvalidRefreshToken
	ErrInvalidAccessToken  = autherr.ErrInvalidAccessToken
	// ErrInvalidCode covers absent, expired and mismatched verification codes.
	ErrInvalidCode       = autherr.ErrInvalidCode
	ErrTooManyAttempts   = autherr.ErrTooManyAttempts
	ErrInvalidOAuthState = autherr.ErrInvalidOAuthState
	ErrPasswordRequired  = autherr.ErrPasswordRequired

	ErrAccountNotFound = autherr.ErrAccountNotFound
	ErrSessionNotFound = autherr.ErrSessionNotFound
)

// ErrEngineNotReady is returned by methods called on a nil or unbuilt Engine.
var ErrEngineNotReady = autherr.New(autherr.ErrUnavailable, "engine not initialized")
