package hackauth

import (
	"context"
	"strconv"

	"github.com/hackforge/hackauth/internal/stores"
)

// RequestAccountDisable mails a code the owner must echo back to disable the
// account.
func (e *Engine) RequestAccountDisable(ctx context.Context, accountID string) error {
	if e == nil || e.accounts == nil {
		return ErrEngineNotReady
	}
	acct, err := e.activeAccount(ctx, accountID)
	if err != nil {
		return err
	}
	err = e.sendCode(ctx, stores.PurposeAccountDisable, acct.ID, acct.ID, "", acct)
	e.emitAudit(ctx, auditEventAccountDisableRequest, err == nil, acct.ID, "", err, nil)
	return err
}

// ConfirmAccountDisable disables the account when code matches and revokes
// every one of its sessions. Disabled accounts can no longer log in or
// refresh; access tokens already issued expire on their own.
func (e *Engine) ConfirmAccountDisable(ctx context.Context, accountID, code string) error {
	if e == nil || e.accounts == nil {
		return ErrEngineNotReady
	}
	if _, err := e.consumeCode(ctx, stores.PurposeAccountDisable, accountID, code); err != nil {
		e.emitAudit(ctx, auditEventAccountDisabled, false, accountID, "", err, nil)
		return err
	}
	if err := e.accounts.SetDisabled(ctx, accountID, true); err != nil {
		e.emitAudit(ctx, auditEventAccountDisabled, false, accountID, "", err, nil)
		return err
	}
	revoked, err := e.tokens.RevokeAllForAccount(ctx, accountID)
	if err != nil {
		e.emitAudit(ctx, auditEventAccountDisabled, false, accountID, "", err, nil)
		return err
	}

	e.metricInc(MetricAccountDisabled)
	e.emitAudit(ctx, auditEventAccountDisabled, true, accountID, "", nil, func() map[string]string {
		return map[string]string{"sessions_revoked": strconv.Itoa(revoked)}
	})
	return nil
}
