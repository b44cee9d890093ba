package oauth

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/sirupsen/logrus"

	"github.com/hackforge/hackauth/account"
	"github.com/hackforge/hackauth/autherr"
)

// ErrEmailRequired is returned when a provider profile carries no email.
var ErrEmailRequired = autherr.New(autherr.ErrValidation, "identity provider returned no email")

const (
	minUsernameLen   = 3
	maxUsernameLen   = 32
	usernameSuffix   = 4
	maxUsernameTries = 8
)

var usernameStrip = regexp.MustCompile(`[^a-z0-9_.-]+`)

// Result describes how a profile was resolved.
type Result struct {
	Account *account.Account
	Created bool
	Linked  bool
}

// Federation resolves external profiles to local accounts.
type Federation struct {
	accounts account.Store
	registry *Registry
	logger   logrus.FieldLogger
	now      func() time.Time
}

// NewFederation builds a [Federation]. logger may be nil.
func NewFederation(accounts account.Store, registry *Registry, logger logrus.FieldLogger) *Federation {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Federation{accounts: accounts, registry: registry, logger: logger, now: time.Now}
}

// ValidateExternalProfile returns the account linked to p, linking or
// creating one when needed.
//
// An existing account with p's email is linked only when the provider is
// trusted for email and reports the address as verified; otherwise the
// call fails with autherr.ErrEmailExists. Banned or disabled accounts fail
// with autherr.ErrInvalidCredentials.
func (f *Federation) ValidateExternalProfile(ctx context.Context, p Profile) (*Result, error) {
	p.Provider = strings.ToLower(strings.TrimSpace(p.Provider))
	p.ExternalID = strings.TrimSpace(p.ExternalID)
	p.Email = account.NormalizeEmail(p.Email)
	if p.Provider == "" || p.ExternalID == "" {
		return nil, autherr.ErrInvalidInput
	}

	acct, err := f.accounts.FindByIdentity(ctx, p.Provider, p.ExternalID)
	switch {
	case err == nil:
		return f.active(&Result{Account: acct})
	case !errors.Is(err, autherr.ErrAccountNotFound):
		return nil, err
	}

	if p.Email == "" {
		return nil, ErrEmailRequired
	}
	trusted := f.registry != nil && f.registry.TrustsEmail(p.Provider) && p.EmailVerified

	existing, err := f.accounts.FindByEmail(ctx, p.Email)
	switch {
	case err == nil:
		if !trusted {
			return nil, autherr.ErrEmailExists
		}
		if err := f.accounts.LinkIdentity(ctx, existing.ID, f.identity(p)); err != nil {
			return nil, err
		}
		if !existing.EmailVerified {
			if err := f.accounts.MarkEmailVerified(ctx, existing.ID); err != nil {
				return nil, err
			}
			existing.EmailVerified = true
		}
		f.logger.WithFields(logrus.Fields{"account_id": existing.ID, "provider": p.Provider}).Info("identity linked")
		return f.active(&Result{Account: existing, Linked: true})
	case !errors.Is(err, autherr.ErrAccountNotFound):
		return nil, err
	}

	return f.create(ctx, p, trusted)
}

func (f *Federation) create(ctx context.Context, p Profile, trusted bool) (*Result, error) {
	base := usernameBase(p)
	now := f.now().UTC()
	name := strings.TrimSpace(p.DisplayName)
	if name == "" {
		name = base
	}

	for attempt := 0; attempt < maxUsernameTries; attempt++ {
		username := base
		if attempt > 0 {
			suffix, err := gonanoid.Generate("0123456789", usernameSuffix)
			if err != nil {
				return nil, err
			}
			username = truncate(base, maxUsernameLen-usernameSuffix) + suffix
		}
		if _, err := f.accounts.FindByUsername(ctx, username); err == nil {
			continue
		} else if !errors.Is(err, autherr.ErrAccountNotFound) {
			return nil, err
		}

		acct := &account.Account{
			ID:            uuid.NewString(),
			Email:         p.Email,
			Username:      username,
			Name:          name,
			Role:          account.RoleUser,
			AvatarURL:     p.AvatarURL,
			Identities:    []account.Identity{f.identity(p)},
			EmailVerified: trusted,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		err := f.accounts.Create(ctx, acct)
		switch {
		case err == nil:
			f.logger.WithFields(logrus.Fields{"account_id": acct.ID, "provider": p.Provider}).Info("account created from identity provider")
			return &Result{Account: acct, Created: true}, nil
		case errors.Is(err, autherr.ErrUsernameExists):
			continue
		case errors.Is(err, autherr.ErrIdentityLinked):
			// Lost a race with a concurrent login for the same identity.
			winner, findErr := f.accounts.FindByIdentity(ctx, p.Provider, p.ExternalID)
			if findErr != nil {
				return nil, findErr
			}
			return f.active(&Result{Account: winner})
		default:
			return nil, err
		}
	}
	return nil, autherr.ErrUsernameExists
}

func (f *Federation) identity(p Profile) account.Identity {
	return account.Identity{Provider: p.Provider, ExternalID: p.ExternalID, LinkedAt: f.now().UTC()}
}

func (f *Federation) active(r *Result) (*Result, error) {
	if !r.Account.Active() {
		return nil, autherr.ErrInvalidCredentials
	}
	return r, nil
}

// usernameBase derives a username from the email local part, falling back to
// the provider login and then the display name.
func usernameBase(p Profile) string {
	candidates := []string{account.UsernameFromEmail(p.Email), p.Login, p.DisplayName}
	for _, c := range candidates {
		c = usernameStrip.ReplaceAllString(strings.ToLower(strings.TrimSpace(c)), "")
		c = strings.TrimLeft(c, "_.-")
		if len(c) >= minUsernameLen {
			return truncate(c, maxUsernameLen)
		}
	}
	return p.Provider + "user"
}

func truncate(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s
}
