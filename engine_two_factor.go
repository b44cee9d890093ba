package hackauth

import (
	"context"

	"github.com/hackforge/hackauth/account"
	"github.com/hackforge/hackauth/autherr"
	"github.com/hackforge/hackauth/internal"
	"github.com/hackforge/hackauth/internal/stores"
)

// A login challenge is keyed by a random challenge id with the account id as
// payload, and its issuance is throttled per account. Enable confirmations
// use a separate purpose keyed by the account id, so neither code can stand
// in for the other.

func (e *Engine) startTwoFactorLogin(ctx context.Context, acct *account.Account) (*LoginResult, error) {
	challenge, err := internal.NewOpaqueCode(opaqueCodeLength)
	if err != nil {
		return nil, err
	}
	if err := e.sendCode(ctx, stores.PurposeTwoFactorLogin, acct.ID, challenge, acct.ID, acct); err != nil {
		e.emitAudit(ctx, auditEventTwoFactorChallenge, false, acct.ID, "", err, nil)
		return nil, err
	}
	e.metricInc(MetricLoginTwoFactorChallenge)
	e.emitAudit(ctx, auditEventTwoFactorChallenge, true, acct.ID, "", nil, nil)
	return &LoginResult{
		Account:           acct.Public(),
		TwoFactorRequired: true,
		Challenge:         challenge,
	}, nil
}

// ConfirmLoginTwoFactor completes a login that returned a challenge. The
// session is opened only when code matches and the account is still active.
func (e *Engine) ConfirmLoginTwoFactor(ctx context.Context, challenge, code string) (*LoginResult, error) {
	if e == nil || e.tokens == nil {
		return nil, ErrEngineNotReady
	}
	accountID, err := e.consumeCode(ctx, stores.PurposeTwoFactorLogin, challenge, code)
	if err != nil {
		e.metricInc(MetricTwoFactorFailure)
		e.emitAudit(ctx, auditEventTwoFactorFailure, false, "", "", err, nil)
		return nil, err
	}
	acct, err := e.activeAccount(ctx, accountID)
	if err != nil {
		e.metricInc(MetricTwoFactorFailure)
		e.emitAudit(ctx, auditEventTwoFactorFailure, false, accountID, "", err, nil)
		return nil, err
	}

	result, err := e.openSession(ctx, acct)
	if err != nil {
		return nil, err
	}
	e.metricInc(MetricTwoFactorSuccess)
	e.metricInc(MetricLoginSuccess)
	e.emitAudit(ctx, auditEventTwoFactorSuccess, true, acct.ID, result.Tokens.SessionID, nil, nil)
	return result, nil
}

// RequestTwoFactorEnable mails a confirmation code. Two-factor login is
// switched on only by [Engine.ConfirmTwoFactorEnable].
func (e *Engine) RequestTwoFactorEnable(ctx context.Context, accountID string) error {
	if e == nil || e.accounts == nil {
		return ErrEngineNotReady
	}
	acct, err := e.activeAccount(ctx, accountID)
	if err != nil {
		return err
	}
	if acct.TwoFactorEnabled {
		return nil
	}
	err = e.sendCode(ctx, stores.PurposeTwoFactor, acct.ID, acct.ID, acct.ID, acct)
	e.emitAudit(ctx, auditEventTwoFactorEnableRequest, err == nil, acct.ID, "", err, nil)
	return err
}

// ConfirmTwoFactorEnable switches on two-factor login when code matches.
func (e *Engine) ConfirmTwoFactorEnable(ctx context.Context, accountID, code string) error {
	if e == nil || e.accounts == nil {
		return ErrEngineNotReady
	}
	if _, err := e.consumeCode(ctx, stores.PurposeTwoFactor, accountID, code); err != nil {
		e.metricInc(MetricTwoFactorFailure)
		e.emitAudit(ctx, auditEventTwoFactorEnabled, false, accountID, "", err, nil)
		return err
	}
	if err := e.accounts.SetTwoFactor(ctx, accountID, true); err != nil {
		return err
	}
	e.emitAudit(ctx, auditEventTwoFactorEnabled, true, accountID, "", nil, nil)
	return nil
}

// DisableTwoFactor switches off two-factor login after checking the account
// password. Accounts without a password fail with ErrPasswordRequired.
func (e *Engine) DisableTwoFactor(ctx context.Context, accountID, password string) error {
	if e == nil || e.credentials == nil {
		return ErrEngineNotReady
	}
	if password == "" {
		return autherr.ErrInvalidCredentials
	}
	if err := e.credentials.CheckPassword(ctx, accountID, password); err != nil {
		e.emitAudit(ctx, auditEventTwoFactorDisabled, false, accountID, "", err, nil)
		return err
	}
	if err := e.accounts.SetTwoFactor(ctx, accountID, false); err != nil {
		return err
	}
	e.emitAudit(ctx, auditEventTwoFactorDisabled, true, accountID, "", nil, nil)
	return nil
}
