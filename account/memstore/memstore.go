// Package memstore is an in-memory account.Store used by tests, the load
// generator and single-node development servers.
package memstore

import (
	"context"
	"sync"
	"time"

	"github.com/hackforge/hackauth/account"
	"github.com/hackforge/hackauth/autherr"
)

// Store keeps accounts in maps guarded by a mutex. Returned accounts are
// copies.
type Store struct {
	mu         sync.RWMutex
	byID       map[string]*account.Account
	byEmail    map[string]string
	byUsername map[string]string
	byIdentity map[string]string
	now        func() time.Time
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		byID:       make(map[string]*account.Account),
		byEmail:    make(map[string]string),
		byUsername: make(map[string]string),
		byIdentity: make(map[string]string),
		now:        time.Now,
	}
}

func identityKey(provider, externalID string) string {
	return provider + "\x00" + externalID
}

func (s *Store) FindByID(_ context.Context, id string) (*account.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lookup(id)
}

func (s *Store) FindByEmail(_ context.Context, email string) (*account.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lookup(s.byEmail[account.NormalizeEmail(email)])
}

func (s *Store) FindByUsername(_ context.Context, username string) (*account.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lookup(s.byUsername[account.NormalizeUsername(username)])
}

func (s *Store) FindByIdentity(_ context.Context, provider, externalID string) (*account.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lookup(s.byIdentity[identityKey(provider, externalID)])
}

func (s *Store) Count(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.byID)), nil
}

func (s *Store) Create(_ context.Context, acct *account.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byEmail[acct.Email]; ok {
		return autherr.ErrEmailExists
	}
	if _, ok := s.byUsername[acct.Username]; ok {
		return autherr.ErrUsernameExists
	}
	for _, id := range acct.Identities {
		if _, ok := s.byIdentity[identityKey(id.Provider, id.ExternalID)]; ok {
			return autherr.ErrIdentityLinked
		}
	}

	stored := clone(acct)
	s.byID[stored.ID] = stored
	s.byEmail[stored.Email] = stored.ID
	s.byUsername[stored.Username] = stored.ID
	for _, id := range stored.Identities {
		s.byIdentity[identityKey(id.Provider, id.ExternalID)] = stored.ID
	}
	return nil
}

func (s *Store) LinkIdentity(_ context.Context, accountID string, identity account.Identity) error {
	return s.update(accountID, func(a *account.Account) error {
		key := identityKey(identity.Provider, identity.ExternalID)
		if owner, ok := s.byIdentity[key]; ok {
			if owner == accountID {
				return nil
			}
			return autherr.ErrIdentityLinked
		}
		a.Identities = append(a.Identities, identity)
		s.byIdentity[key] = accountID
		return nil
	})
}

func (s *Store) UpdatePasswordHash(_ context.Context, accountID, hash string) error {
	return s.update(accountID, func(a *account.Account) error {
		a.PasswordHash = hash
		return nil
	})
}

func (s *Store) MarkEmailVerified(_ context.Context, accountID string) error {
	return s.update(accountID, func(a *account.Account) error {
		a.EmailVerified = true
		return nil
	})
}

func (s *Store) SetTwoFactor(_ context.Context, accountID string, enabled bool) error {
	return s.update(accountID, func(a *account.Account) error {
		a.TwoFactorEnabled = enabled
		return nil
	})
}

func (s *Store) SetDisabled(_ context.Context, accountID string, disabled bool) error {
	return s.update(accountID, func(a *account.Account) error {
		a.Disabled = disabled
		return nil
	})
}

// SetBanned flags an account as banned. Banning is an administrative action
// outside the auth flows, exposed here for tests and tooling.
func (s *Store) SetBanned(accountID string, banned bool) error {
	return s.update(accountID, func(a *account.Account) error {
		a.Banned = banned
		return nil
	})
}

func (s *Store) lookup(id string) (*account.Account, error) {
	acct, ok := s.byID[id]
	if !ok || id == "" {
		return nil, autherr.ErrAccountNotFound
	}
	return clone(acct), nil
}

func (s *Store) update(id string, fn func(*account.Account) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	acct, ok := s.byID[id]
	if !ok {
		return autherr.ErrAccountNotFound
	}
	if err := fn(acct); err != nil {
		return err
	}
	acct.UpdatedAt = s.now()
	return nil
}

func clone(a *account.Account) *account.Account {
	c := *a
	c.Identities = append([]account.Identity(nil), a.Identities...)
	return &c
}

var _ account.Store = (*Store)(nil)
