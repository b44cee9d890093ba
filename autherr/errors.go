// Package autherr defines the error taxonomy shared by every hackauth
// component.
//
// Each error belongs to exactly one category sentinel. Callers branch on the
// category with errors.Is(err, autherr.ErrAuth) and on a specific failure with
// errors.Is(err, autherr.ErrInvalidCredentials).
package autherr

import (
	"errors"
	"fmt"
)

// Category sentinels.
var (
	ErrValidation  = errors.New("validation failed")
	ErrConflict    = errors.New("conflict")
	ErrAuth        = errors.New("unauthenticated")
	ErrNotFound    = errors.New("not found")
	ErrUnavailable = errors.New("backend unavailable")
)

// Error is a specific failure that unwraps to its category.
type Error struct {
	kind error
	msg  string
}

// New returns an error in category kind with message msg.
func New(kind error, msg string) *Error {
	return &Error{kind: kind, msg: msg}
}

func (e *Error) Error() string { return e.msg }

func (e *Error) Unwrap() error { return e.kind }

// Kind returns the category sentinel.
func (e *Error) Kind() error { return e.kind }

// Validation
var (
	ErrInvalidInput    = New(ErrValidation, "invalid input")
	ErrPasswordPolicy  = New(ErrValidation, "password does not meet policy")
	ErrCodeMismatch    = New(ErrValidation, "code mismatch")
	ErrUnknownProvider = New(ErrValidation, "unknown identity provider")
)

// Conflict
var (
	ErrEmailExists    = New(ErrConflict, "email exists")
	ErrUsernameExists = New(ErrConflict, "username exists")
	ErrIdentityLinked = New(ErrConflict, "identity already linked")
)

// Auth
var (
	ErrInvalidCredentials  = New(ErrAuth, "invalid credentials")
	ErrInvalidSession      = New(ErrAuth, "invalid session")
	ErrInvalidRefreshToken = New(ErrAuth, "invalid refresh token")
	ErrInvalidAccessToken  = New(ErrAuth, "invalid access token")
	ErrInvalidCode         = New(ErrAuth, "invalid code")
	ErrTooManyAttempts     = New(ErrAuth, "too many attempts")
	ErrInvalidOAuthState   = New(ErrAuth, "invalid oauth state")
	ErrPasswordRequired    = New(ErrAuth, "account has no password")
)

// NotFound
var (
	ErrAccountNotFound = New(ErrNotFound, "account not found")
	ErrSessionNotFound = New(ErrNotFound, "session not found")
	ErrCodeNotFound    = New(ErrNotFound, "code not found")
)

// Unavailable wraps a backend failure during op. The result matches
// ErrUnavailable and keeps cause in its message.
func Unavailable(op string, cause error) error {
	return fmt.Errorf("%w: %s: %v", ErrUnavailable, op, cause)
}

// KindOf returns the category sentinel of err, or nil when err is outside the
// taxonomy.
func KindOf(err error) error {
	for _, kind := range []error{ErrValidation, ErrConflict, ErrAuth, ErrNotFound, ErrUnavailable} {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return nil
}

// Retryable reports whether err is a transient backend failure.
func Retryable(err error) bool {
	return errors.Is(err, ErrUnavailable)
}
