// Package credential registers accounts and verifies passwords.
package credential

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/hackforge/hackauth/account"
	"github.com/hackforge/hackauth/autherr"
	"github.com/hackforge/hackauth/password"
)

const (
	MinPasswordBytes = 8
	MaxPasswordBytes = 128
)

var usernamePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_.-]{2,31}$`)

// RegisterInput is the data needed to create a password account. Username is
// optional and defaults to the email local-part.
type RegisterInput struct {
	Name     string `validate:"required,max=100"`
	Email    string `validate:"required,email,max=254"`
	Password string `validate:"required"`
	Username string `validate:"omitempty,username"`
}

// Service implements registration and password verification.
type Service struct {
	accounts  account.Store
	hasher    password.Hasher
	validate  *validator.Validate
	logger    logrus.FieldLogger
	now       func() time.Time
	dummyHash string
}

// Option customizes a [Service].
type Option func(*Service)

// WithLogger sets the logger used for best-effort rehash failures.
func WithLogger(logger logrus.FieldLogger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewService builds a [Service]. It hashes a throwaway password once so
// lookups of unknown accounts can spend the same work as real ones.
func NewService(accounts account.Store, hasher password.Hasher, opts ...Option) (*Service, error) {
	dummy, err := hasher.Hash("hackauth-dummy-password")
	if err != nil {
		return nil, err
	}
	validate := validator.New()
	if err := validate.RegisterValidation("username", func(fl validator.FieldLevel) bool {
		return usernamePattern.MatchString(fl.Field().String())
	}); err != nil {
		return nil, err
	}
	s := &Service{
		accounts:  accounts,
		hasher:    hasher,
		validate:  validate,
		logger:    logrus.StandardLogger(),
		now:       time.Now,
		dummyHash: dummy,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// CheckPasswordPolicy reports autherr.ErrPasswordPolicy for passwords outside
// 8..128 bytes.
func CheckPasswordPolicy(pw string) error {
	if len(pw) < MinPasswordBytes || len(pw) > MaxPasswordBytes {
		return autherr.ErrPasswordPolicy
	}
	return nil
}

// Register creates a password account. The first account ever created is
// an administrator.
//
// Two concurrent first registrations may both observe an empty store and
// both become ADMIN; the store's uniqueness constraints still hold.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*account.Account, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = account.NormalizeEmail(in.Email)
	in.Username = account.NormalizeUsername(in.Username)
	if err := s.validate.StructCtx(ctx, in); err != nil {
		return nil, autherr.ErrInvalidInput
	}
	if err := CheckPasswordPolicy(in.Password); err != nil {
		return nil, err
	}
	if in.Username == "" {
		in.Username = account.UsernameFromEmail(in.Email)
	}

	if _, err := s.accounts.FindByEmail(ctx, in.Email); err == nil {
		return nil, autherr.ErrEmailExists
	} else if !errors.Is(err, autherr.ErrAccountNotFound) {
		return nil, err
	}
	if _, err := s.accounts.FindByUsername(ctx, in.Username); err == nil {
		return nil, autherr.ErrUsernameExists
	} else if !errors.Is(err, autherr.ErrAccountNotFound) {
		return nil, err
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, err
	}

	count, err := s.accounts.Count(ctx)
	if err != nil {
		return nil, err
	}
	role := account.RoleUser
	if count == 0 {
		role = account.RoleAdmin
	}

	now := s.now().UTC()
	acct := &account.Account{
		ID:           uuid.NewString(),
		Email:        in.Email,
		Username:     in.Username,
		Name:         in.Name,
		PasswordHash: hash,
		Role:         role,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.accounts.Create(ctx, acct); err != nil {
		return nil, err
	}
	return acct, nil
}

// VerifyCredentials resolves identifier (email when it contains '@',
// username otherwise, falling back to the other lookup) and checks pw.
// Every failure that is not a backend error is autherr.ErrInvalidCredentials.
func (s *Service) VerifyCredentials(ctx context.Context, identifier, pw string) (*account.Account, error) {
	acct, err := s.lookup(ctx, identifier)
	if err != nil {
		if errors.Is(err, autherr.ErrAccountNotFound) {
			_, _ = s.hasher.Verify(pw, s.dummyHash)
			return nil, autherr.ErrInvalidCredentials
		}
		return nil, err
	}
	if !acct.HasPassword() {
		_, _ = s.hasher.Verify(pw, s.dummyHash)
		return nil, autherr.ErrInvalidCredentials
	}

	ok, err := s.hasher.Verify(pw, acct.PasswordHash)
	if err != nil || !ok {
		return nil, autherr.ErrInvalidCredentials
	}
	if !acct.Active() {
		return nil, autherr.ErrInvalidCredentials
	}

	s.maybeUpgrade(ctx, acct, pw)
	return acct, nil
}

func (s *Service) lookup(ctx context.Context, identifier string) (*account.Account, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return nil, autherr.ErrAccountNotFound
	}
	byEmail := func() (*account.Account, error) {
		return s.accounts.FindByEmail(ctx, account.NormalizeEmail(identifier))
	}
	byUsername := func() (*account.Account, error) {
		return s.accounts.FindByUsername(ctx, account.NormalizeUsername(identifier))
	}
	first, second := byUsername, byEmail
	if strings.Contains(identifier, "@") {
		first, second = byEmail, byUsername
	}
	acct, err := first()
	if errors.Is(err, autherr.ErrAccountNotFound) {
		return second()
	}
	return acct, err
}

func (s *Service) maybeUpgrade(ctx context.Context, acct *account.Account, pw string) {
	needs, err := s.hasher.NeedsUpgrade(acct.PasswordHash)
	if err != nil || !needs {
		return
	}
	hash, err := s.hasher.Hash(pw)
	if err != nil {
		s.logger.WithError(err).Warn("password rehash failed")
		return
	}
	if err := s.accounts.UpdatePasswordHash(ctx, acct.ID, hash); err != nil {
		s.logger.WithError(err).WithField("account_id", acct.ID).Warn("password rehash update failed")
		return
	}
	acct.PasswordHash = hash
}

// SetPassword replaces the password of accountID without checking the old
// one. Used by password reset.
func (s *Service) SetPassword(ctx context.Context, accountID, newPassword string) error {
	if err := CheckPasswordPolicy(newPassword); err != nil {
		return err
	}
	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return err
	}
	return s.accounts.UpdatePasswordHash(ctx, accountID, hash)
}

// ChangePassword replaces the password of accountID after checking
// oldPassword. OAuth-only accounts fail with autherr.ErrPasswordRequired.
func (s *Service) ChangePassword(ctx context.Context, accountID, oldPassword, newPassword string) error {
	if err := s.CheckPassword(ctx, accountID, oldPassword); err != nil {
		return err
	}
	return s.SetPassword(ctx, accountID, newPassword)
}

// CheckPassword verifies pw against the stored hash of accountID.
func (s *Service) CheckPassword(ctx context.Context, accountID, pw string) error {
	acct, err := s.accounts.FindByID(ctx, accountID)
	if err != nil {
		return err
	}
	if !acct.HasPassword() {
		return autherr.ErrPasswordRequired
	}
	ok, err := s.hasher.Verify(pw, acct.PasswordHash)
	if err != nil || !ok {
		return autherr.ErrInvalidCredentials
	}
	return nil
}
