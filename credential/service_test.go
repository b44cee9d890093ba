package credential

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/hackforge/hackauth/account"
	"github.com/hackforge/hackauth/account/memstore"
	"github.com/hackforge/hackauth/autherr"
	"github.com/hackforge/hackauth/password"
)

func newTestService(t *testing.T) (*Service, *memstore.Store) {
	t.Helper()
	hasher, err := password.NewChain(password.Config{
		Memory:      8 * 1024,
		Time:        1,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   32,
	})
	require.NoError(t, err)
	store := memstore.New()
	svc, err := NewService(store, hasher)
	require.NoError(t, err)
	return svc, store
}

func register(t *testing.T, svc *Service, email, username string) *account.Account {
	t.Helper()
	acct, err := svc.Register(context.Background(), RegisterInput{
		Name:     "Ada Lovelace",
		Email:    email,
		Password: "correct horse",
		Username: username,
	})
	require.NoError(t, err)
	return acct
}

func TestRegisterFirstAccountIsAdmin(t *testing.T) {
	svc, _ := newTestService(t)

	first := register(t, svc, "Ada@Example.com ", "")
	second := register(t, svc, "grace@example.com", "Grace_H")

	assert.Equal(t, account.RoleAdmin, first.Role)
	assert.Equal(t, account.RoleUser, second.Role)
	assert.Equal(t, "ada@example.com", first.Email)
	assert.Equal(t, "ada", first.Username)
	assert.Equal(t, "grace_h", second.Username)
	assert.NotEmpty(t, first.ID)
	assert.True(t, strings.HasPrefix(first.PasswordHash, "$argon2id$"))
	assert.NotContains(t, first.PasswordHash, "correct horse")
}

func TestRegisterConflicts(t *testing.T) {
	svc, _ := newTestService(t)
	register(t, svc, "ada@example.com", "ada")

	_, err := svc.Register(context.Background(), RegisterInput{Name: "A", Email: "ADA@example.com", Password: "password1"})
	assert.ErrorIs(t, err, autherr.ErrEmailExists)
	assert.ErrorIs(t, err, autherr.ErrConflict)

	_, err = svc.Register(context.Background(), RegisterInput{Name: "A", Email: "other@example.com", Password: "password1", Username: "ADA"})
	assert.ErrorIs(t, err, autherr.ErrUsernameExists)

	// Derived username collides too.
	_, err = svc.Register(context.Background(), RegisterInput{Name: "A", Email: "ada@elsewhere.org", Password: "password1"})
	assert.ErrorIs(t, err, autherr.ErrUsernameExists)
}

func TestRegisterValidation(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	cases := []struct {
		name string
		in   RegisterInput
		want error
	}{
		{"missing name", RegisterInput{Email: "a@example.com", Password: "password1"}, autherr.ErrInvalidInput},
		{"bad email", RegisterInput{Name: "A", Email: "not-an-email", Password: "password1"}, autherr.ErrInvalidInput},
		{"bad username", RegisterInput{Name: "A", Email: "a@example.com", Password: "password1", Username: "a b"}, autherr.ErrInvalidInput},
		{"short password", RegisterInput{Name: "A", Email: "a@example.com", Password: "short"}, autherr.ErrPasswordPolicy},
		{"long password", RegisterInput{Name: "A", Email: "a@example.com", Password: strings.Repeat("x", 129)}, autherr.ErrPasswordPolicy},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Register(ctx, tc.in)
			assert.ErrorIs(t, err, tc.want)
			assert.ErrorIs(t, err, autherr.ErrValidation)
		})
	}
}

func TestVerifyCredentials(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()
	acct := register(t, svc, "ada@example.com", "ada")

	got, err := svc.VerifyCredentials(ctx, "ADA@example.com", "correct horse")
	require.NoError(t, err)
	assert.Equal(t, acct.ID, got.ID)

	got, err = svc.VerifyCredentials(ctx, "Ada", "correct horse")
	require.NoError(t, err)
	assert.Equal(t, acct.ID, got.ID)

	for _, tc := range []struct{ id, pw string }{
		{"ada@example.com", "wrong horse"},
		{"nobody@example.com", "correct horse"},
		{"nobody", "correct horse"},
		{"", "correct horse"},
	} {
		_, err := svc.VerifyCredentials(ctx, tc.id, tc.pw)
		assert.ErrorIs(t, err, autherr.ErrInvalidCredentials, "identifier %q", tc.id)
	}

	require.NoError(t, store.SetBanned(acct.ID, true))
	_, err = svc.VerifyCredentials(ctx, "ada", "correct horse")
	assert.ErrorIs(t, err, autherr.ErrInvalidCredentials)
}

func TestVerifyCredentialsRejectsOneCharacterChanges(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()
	const pw = "correct horse"
	acct := register(t, svc, "ada@example.com", "ada")

	stored, err := store.FindByID(ctx, acct.ID)
	require.NoError(t, err)
	assert.NotEqual(t, pw, stored.PasswordHash)
	assert.NotContains(t, stored.PasswordHash, pw)

	variants := []string{pw[1:], pw[:len(pw)-1], pw + "!", strings.ToUpper(pw[:1]) + pw[1:]}
	for i := range pw {
		b := []byte(pw)
		b[i]++
		variants = append(variants, string(b))
	}
	for _, v := range variants {
		_, err := svc.VerifyCredentials(ctx, "ada", v)
		assert.ErrorIs(t, err, autherr.ErrInvalidCredentials, "variant %q", v)
	}

	_, err = svc.VerifyCredentials(ctx, "ada", pw)
	assert.NoError(t, err)
}

func TestVerifyCredentialsOAuthOnlyAccount(t *testing.T) {
	svc, store := newTestService(t)
	require.NoError(t, store.Create(context.Background(), &account.Account{
		ID: "oauth-1", Email: "gh@example.com", Username: "gh", Role: account.RoleUser,
	}))

	_, err := svc.VerifyCredentials(context.Background(), "gh@example.com", "anything-at-all")
	assert.ErrorIs(t, err, autherr.ErrInvalidCredentials)
}

func TestVerifyCredentialsUpgradesLegacyHash(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	legacy, err := bcrypt.GenerateFromPassword([]byte("correct horse"), bcrypt.MinCost)
	require.NoError(t, err)
	require.NoError(t, store.Create(ctx, &account.Account{
		ID: "legacy-1", Email: "old@example.com", Username: "old", Role: account.RoleUser,
		PasswordHash: string(legacy),
	}))

	_, err = svc.VerifyCredentials(ctx, "old", "correct horse")
	require.NoError(t, err)

	stored, err := store.FindByID(ctx, "legacy-1")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(stored.PasswordHash, "$argon2id$"), "hash should be upgraded")

	_, err = svc.VerifyCredentials(ctx, "old", "correct horse")
	assert.NoError(t, err)
}

func TestChangeAndSetPassword(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	acct := register(t, svc, "ada@example.com", "ada")

	assert.ErrorIs(t, svc.ChangePassword(ctx, acct.ID, "wrong", "new password"), autherr.ErrInvalidCredentials)
	assert.ErrorIs(t, svc.ChangePassword(ctx, acct.ID, "correct horse", "short"), autherr.ErrPasswordPolicy)
	require.NoError(t, svc.ChangePassword(ctx, acct.ID, "correct horse", "new password"))

	_, err := svc.VerifyCredentials(ctx, "ada", "new password")
	require.NoError(t, err)

	require.NoError(t, svc.SetPassword(ctx, acct.ID, "reset password"))
	_, err = svc.VerifyCredentials(ctx, "ada", "new password")
	assert.ErrorIs(t, err, autherr.ErrInvalidCredentials)
	_, err = svc.VerifyCredentials(ctx, "ada", "reset password")
	assert.NoError(t, err)
}
