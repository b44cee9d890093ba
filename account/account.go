// Package account holds the account model and the persistence contract the
// auth subsystem needs from its data store.
package account

import (
	"context"
	"strings"
	"time"
)

// Role is the coarse authorization role carried in access tokens.
type Role string

const (
	RoleAdmin Role = "ADMIN"
	RoleUser  Role = "USER"
)

// Identity links an account to an external identity provider.
type Identity struct {
	Provider   string
	ExternalID string
	LinkedAt   time.Time
}

// Account is a registered platform user. Accounts are never hard-deleted.
type Account struct {
	ID               string
	Email            string
	Username         string
	Name             string
	PasswordHash     string
	Role             Role
	AvatarURL        string
	Identities       []Identity
	EmailVerified    bool
	TwoFactorEnabled bool
	Banned           bool
	Disabled         bool
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Active reports whether the account may authenticate.
func (a *Account) Active() bool {
	return a != nil && !a.Banned && !a.Disabled
}

// HasPassword reports whether the account can use password login.
func (a *Account) HasPassword() bool {
	return a != nil && a.PasswordHash != ""
}

// Public is the projection of an account safe to return to clients.
type Public struct {
	ID               string    `json:"id"`
	Username         string    `json:"username"`
	Name             string    `json:"name"`
	Email            string    `json:"email"`
	Role             Role      `json:"role"`
	AvatarURL        string    `json:"avatarUrl,omitempty"`
	EmailVerified    bool      `json:"emailVerified"`
	TwoFactorEnabled bool      `json:"twoFactorEnabled"`
	CreatedAt        time.Time `json:"createdAt"`
}

// Public returns the client-facing projection.
func (a *Account) Public() Public {
	return Public{
		ID:               a.ID,
		Username:         a.Username,
		Name:             a.Name,
		Email:            a.Email,
		Role:             a.Role,
		AvatarURL:        a.AvatarURL,
		EmailVerified:    a.EmailVerified,
		TwoFactorEnabled: a.TwoFactorEnabled,
		CreatedAt:        a.CreatedAt,
	}
}

// NormalizeEmail trims and lower-cases an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// NormalizeUsername trims and lower-cases a username.
func NormalizeUsername(username string) string {
	return strings.ToLower(strings.TrimSpace(username))
}

// UsernameFromEmail derives a username from the local part of email.
func UsernameFromEmail(email string) string {
	local, _, _ := strings.Cut(NormalizeEmail(email), "@")
	return local
}

// Store is the persistence contract. Lookups return autherr.ErrAccountNotFound
// when nothing matches; Create returns autherr.ErrEmailExists or
// autherr.ErrUsernameExists on a uniqueness violation. Backend failures match
// autherr.ErrUnavailable.
type Store interface {
	FindByID(ctx context.Context, id string) (*Account, error)
	FindByEmail(ctx context.Context, email string) (*Account, error)
	FindByUsername(ctx context.Context, username string) (*Account, error)
	FindByIdentity(ctx context.Context, provider, externalID string) (*Account, error)
	Count(ctx context.Context) (int64, error)
	Create(ctx context.Context, acct *Account) error
	LinkIdentity(ctx context.Context, accountID string, identity Identity) error
	UpdatePasswordHash(ctx context.Context, accountID, hash string) error
	MarkEmailVerified(ctx context.Context, accountID string) error
	SetTwoFactor(ctx context.Context, accountID string, enabled bool) error
	SetDisabled(ctx context.Context, accountID string, disabled bool) error
}
