package hackauth

import (
	"context"
	"errors"
	"strconv"

	"github.com/hackforge/hackauth/account"
	"github.com/hackforge/hackauth/autherr"
	"github.com/hackforge/hackauth/internal/stores"
)

// RequestPasswordReset mails a reset code when email belongs to an active
// account. OAuth-only accounts gain a password this way. It reports success
// whether or not the account exists; only backend failures are returned.
func (e *Engine) RequestPasswordReset(ctx context.Context, email string) error {
	if e == nil || e.accounts == nil {
		return ErrEngineNotReady
	}
	email = account.NormalizeEmail(email)
	e.metricInc(MetricPasswordResetRequest)
	if email == "" {
		return nil
	}

	acct, err := e.accounts.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, autherr.ErrAccountNotFound) {
			e.emitAudit(ctx, auditEventPasswordResetRequest, false, "", "", err, nil)
			return nil
		}
		return err
	}
	if !acct.Active() {
		e.emitAudit(ctx, auditEventPasswordResetRequest, false, acct.ID, "", autherr.ErrInvalidCredentials, nil)
		return nil
	}

	err = e.sendCode(ctx, stores.PurposePasswordReset, email, email, acct.ID, acct)
	e.emitAudit(ctx, auditEventPasswordResetRequest, err == nil, acct.ID, "", err, nil)
	switch {
	case err == nil, errors.Is(err, autherr.ErrTooManyAttempts):
		return nil
	default:
		return err
	}
}

// ConfirmPasswordReset sets newPassword when code matches the reset code sent
// to email, then revokes every session of the account.
func (e *Engine) ConfirmPasswordReset(ctx context.Context, email, code, newPassword string) error {
	if e == nil || e.credentials == nil {
		return ErrEngineNotReady
	}
	if err := CheckPasswordPolicy(newPassword); err != nil {
		return err
	}
	email = account.NormalizeEmail(email)

	accountID, err := e.consumeCode(ctx, stores.PurposePasswordReset, email, code)
	if err != nil {
		e.metricInc(MetricPasswordResetFailure)
		e.emitAudit(ctx, auditEventPasswordResetConfirm, false, "", "", err, nil)
		return err
	}
	if err := e.credentials.SetPassword(ctx, accountID, newPassword); err != nil {
		e.emitAudit(ctx, auditEventPasswordResetConfirm, false, accountID, "", err, nil)
		return err
	}

	revoked, err := e.tokens.RevokeAllForAccount(ctx, accountID)
	if err != nil {
		e.emitAudit(ctx, auditEventPasswordResetConfirm, false, accountID, "", err, nil)
		return err
	}
	if err := e.rateLimiter.ResetLogin(ctx, email); err != nil {
		e.logger.WithError(err).WithField("account_id", accountID).Warn("login throttle reset failed")
	}

	e.metricInc(MetricPasswordResetSuccess)
	e.emitAudit(ctx, auditEventPasswordResetConfirm, true, accountID, "", nil, func() map[string]string {
		return map[string]string{"sessions_revoked": strconv.Itoa(revoked)}
	})
	return nil
}
