package autherr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSpecificErrorsMatchTheirCategory(t *testing.T) {
	cases := []struct {
		err  error
		kind error
	}{
		{ErrEmailExists, ErrConflict},
		{ErrUsernameExists, ErrConflict},
		{ErrInvalidCredentials, ErrAuth},
		{ErrInvalidRefreshToken, ErrAuth},
		{ErrCodeMismatch, ErrValidation},
		{ErrCodeNotFound, ErrNotFound},
	}
	for _, tc := range cases {
		assert.ErrorIs(t, tc.err, tc.kind, tc.err.Error())
		assert.Equal(t, tc.kind, KindOf(tc.err))
	}
	assert.False(t, errors.Is(ErrEmailExists, ErrAuth))
}

func TestWrappedErrorsKeepIdentity(t *testing.T) {
	wrapped := fmt.Errorf("register: %w", ErrEmailExists)
	assert.ErrorIs(t, wrapped, ErrEmailExists)
	assert.ErrorIs(t, wrapped, ErrConflict)
}

func TestUnavailable(t *testing.T) {
	err := Unavailable("session.rotate", errors.New("dial tcp: refused"))
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.True(t, Retryable(err))
	assert.Contains(t, err.Error(), "session.rotate")
	assert.False(t, Retryable(ErrInvalidCredentials))
	assert.Nil(t, KindOf(errors.New("other")))
}
