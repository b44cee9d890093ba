package hackauth

import (
	"context"
	"errors"
	"strings"

	"github.com/hackforge/hackauth/account"
	"github.com/hackforge/hackauth/autherr"
	"github.com/hackforge/hackauth/internal"
	"github.com/hackforge/hackauth/internal/stores"
	"github.com/hackforge/hackauth/notify"
)

const (
	numericCodeDigits = 6
	opaqueCodeLength  = 32
)

// codeKinds maps a purpose to the notification that carries its code.
var codeKinds = map[stores.Purpose]notify.Kind{
	stores.PurposeEmailVerification: notify.KindEmailVerification,
	stores.PurposeTwoFactor:         notify.KindTwoFactor,
	stores.PurposeTwoFactorLogin:    notify.KindTwoFactor,
	stores.PurposeAccountDisable:    notify.KindAccountDisable,
	stores.PurposePasswordReset:     notify.KindPasswordReset,
}

func newCode(purpose stores.Purpose) (string, error) {
	switch purpose {
	case stores.PurposePasswordReset, stores.PurposeOAuthState:
		return internal.NewOpaqueCode(opaqueCodeLength)
	default:
		return internal.NewNumericCode(numericCodeDigits)
	}
}

// issueCode stores a fresh code for (purpose, subject), replacing any earlier
// one, and resets the guess budget. Issuance is throttled per throttleKey,
// which is the subject except for codes keyed by a random id.
func (e *Engine) issueCode(ctx context.Context, purpose stores.Purpose, throttleKey, subject, payload string) (string, error) {
	if err := e.attempts.CheckRequest(ctx, purpose, throttleKey); err != nil {
		return "", err
	}
	code, err := newCode(purpose)
	if err != nil {
		return "", err
	}
	if err := e.codes.Put(ctx, purpose, subject, code, payload, purpose.DefaultTTL()); err != nil {
		return "", err
	}
	if err := e.attempts.ResetConfirm(ctx, purpose, subject); err != nil {
		return "", err
	}
	return code, nil
}

// sendCode issues a code and mails it to acct in the background.
func (e *Engine) sendCode(ctx context.Context, purpose stores.Purpose, throttleKey, subject, payload string, acct *account.Account) error {
	code, err := e.issueCode(ctx, purpose, throttleKey, subject, payload)
	if err != nil {
		return err
	}
	return e.notifier.Notify(ctx, notify.Message{
		Kind:   codeKinds[purpose],
		To:     acct.Email,
		Name:   acct.Name,
		Code:   code,
		Expiry: purpose.DefaultTTL(),
	})
}

// consumeCode spends one guess on (purpose, subject) and returns the stored
// payload on a match. Absent, expired and mismatched codes all fail with
// ErrInvalidCode. Exhausting the guess budget burns the code.
func (e *Engine) consumeCode(ctx context.Context, purpose stores.Purpose, subject, code string) (string, error) {
	subject = strings.TrimSpace(subject)
	code = strings.TrimSpace(code)
	if subject == "" || code == "" {
		return "", autherr.ErrInvalidCode
	}

	if err := e.attempts.CheckConfirm(ctx, purpose, subject); err != nil {
		if errors.Is(err, autherr.ErrTooManyAttempts) {
			if delErr := e.codes.Delete(ctx, purpose, subject); delErr != nil {
				e.logger.WithError(delErr).WithField("purpose", purpose).Warn("code not burned after attempts exceeded")
			}
			e.metricInc(MetricCodeAttemptsExceeded)
			e.emitAudit(ctx, auditEventCodeAttemptsExceeded, false, "", "", err, func() map[string]string {
				return map[string]string{"purpose": string(purpose)}
			})
		}
		return "", err
	}

	payload, err := e.codes.Consume(ctx, purpose, subject, code)
	if err != nil {
		if errors.Is(err, autherr.ErrCodeNotFound) || errors.Is(err, autherr.ErrCodeMismatch) {
			return "", autherr.ErrInvalidCode
		}
		return "", err
	}
	if err := e.attempts.ResetConfirm(ctx, purpose, subject); err != nil {
		e.logger.WithError(err).WithField("purpose", purpose).Warn("attempt counter not cleared")
	}
	return payload, nil
}

// activeAccount loads accountID and rejects banned or disabled accounts with
// ErrInvalidCredentials.
func (e *Engine) activeAccount(ctx context.Context, accountID string) (*account.Account, error) {
	acct, err := e.accounts.FindByID(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if !acct.Active() {
		return nil, autherr.ErrInvalidCredentials
	}
	return acct, nil
}
