package hackauth

import (
	"context"

	"github.com/hackforge/hackauth/account"
	"github.com/hackforge/hackauth/internal/stores"
)

// RequestEmailVerification mails a six-digit code to the account's address.
// An already verified account is a no-op.
func (e *Engine) RequestEmailVerification(ctx context.Context, accountID string) error {
	if e == nil || e.accounts == nil {
		return ErrEngineNotReady
	}
	acct, err := e.activeAccount(ctx, accountID)
	if err != nil {
		return err
	}
	if acct.EmailVerified {
		return nil
	}
	return e.sendEmailVerification(ctx, acct)
}

func (e *Engine) sendEmailVerification(ctx context.Context, acct *account.Account) error {
	err := e.sendCode(ctx, stores.PurposeEmailVerification, acct.ID, acct.ID, "", acct)
	if err == nil {
		e.metricInc(MetricEmailVerificationRequest)
	}
	e.emitAudit(ctx, auditEventEmailVerificationRequest, err == nil, acct.ID, "", err, nil)
	return err
}

// ConfirmEmailVerification marks the account's email verified when code
// matches the last one sent. A code works once.
func (e *Engine) ConfirmEmailVerification(ctx context.Context, accountID, code string) error {
	if e == nil || e.accounts == nil {
		return ErrEngineNotReady
	}
	if _, err := e.consumeCode(ctx, stores.PurposeEmailVerification, accountID, code); err != nil {
		e.metricInc(MetricEmailVerificationFailure)
		e.emitAudit(ctx, auditEventEmailVerificationConfirm, false, accountID, "", err, nil)
		return err
	}
	if err := e.accounts.MarkEmailVerified(ctx, accountID); err != nil {
		e.emitAudit(ctx, auditEventEmailVerificationConfirm, false, accountID, "", err, nil)
		return err
	}
	e.metricInc(MetricEmailVerificationSuccess)
	e.emitAudit(ctx, auditEventEmailVerificationConfirm, true, accountID, "", nil, nil)
	return nil
}
