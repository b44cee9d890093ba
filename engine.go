package hackauth

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/hackforge/hackauth/account"
	"github.com/hackforge/hackauth/autherr"
	"github.com/hackforge/hackauth/credential"
	internalaudit "github.com/hackforge/hackauth/internal/audit"
	"github.com/hackforge/hackauth/internal/limiters"
	internalmetrics "github.com/hackforge/hackauth/internal/metrics"
	"github.com/hackforge/hackauth/internal/rate"
	"github.com/hackforge/hackauth/internal/stores"
	"github.com/hackforge/hackauth/notify"
	"github.com/hackforge/hackauth/oauth"
	"github.com/hackforge/hackauth/token"
)

// Engine composes credentials, tokens, verification codes and federation
// into the account flows the HTTP layer calls.
//
// An Engine is built once with [Builder.Build] and is safe for concurrent use.
type Engine struct {
	config      Config
	accounts    account.Store
	credentials *credential.Service
	tokens      *token.Service
	codes       *stores.CodeStore
	attempts    *limiters.AttemptLimiter
	rateLimiter *rate.Limiter
	federation  *oauth.Federation
	providers   *oauth.Registry
	notifier    *notify.Async
	audit       *internalaudit.Dispatcher
	metrics     *internalmetrics.Metrics
	logger      logrus.FieldLogger
}

// Close waits for in-flight notifications and flushes the audit dispatcher.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	e.Flush()
	if e.audit != nil {
		e.audit.Close()
	}
}

// Flush blocks until every queued notification has been handed to the mail
// provider.
func (e *Engine) Flush() {
	if e != nil && e.notifier != nil {
		e.notifier.Wait()
	}
}

// AuditDropped reports how many audit events were dropped because the buffer
// was full.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// RefreshTTL is the session lifetime, used for cookie Max-Age.
func (e *Engine) RefreshTTL() time.Duration {
	return e.config.Session.RefreshTTL()
}

// Register creates a password account. The first account ever registered is
// an administrator. When configured, a verification code is mailed in the
// background; failing to issue it does not fail the registration.
func (e *Engine) Register(ctx context.Context, in RegisterInput) (account.Public, error) {
	if e == nil || e.credentials == nil {
		return account.Public{}, ErrEngineNotReady
	}

	acct, err := e.credentials.Register(ctx, in)
	if err != nil {
		if errors.Is(err, autherr.ErrConflict) {
			e.metricInc(MetricRegisterConflict)
		}
		e.emitAudit(ctx, auditEventRegisterFailure, false, "", "", err, nil)
		return account.Public{}, err
	}

	e.metricInc(MetricRegisterSuccess)
	e.emitAudit(ctx, auditEventRegisterSuccess, true, acct.ID, "", nil, func() map[string]string {
		return map[string]string{"role": string(acct.Role)}
	})

	if e.config.EmailVerification.SendOnRegister {
		if err := e.sendEmailVerification(ctx, acct); err != nil {
			e.logger.WithError(err).WithField("account_id", acct.ID).Warn("verification code not issued on register")
		}
	}
	return acct.Public(), nil
}

// Login checks identifier (email or username) and password. Accounts with
// two-factor login enabled get a mailed code and a challenge instead of
// tokens.
//
// Unknown accounts, wrong passwords and banned or disabled accounts all fail
// with ErrInvalidCredentials. Repeated failures per identifier or per client
// IP fail with ErrTooManyAttempts until the cooldown passes.
func (e *Engine) Login(ctx context.Context, identifier, password string) (*LoginResult, error) {
	if e == nil || e.credentials == nil {
		return nil, ErrEngineNotReady
	}
	identifier = strings.TrimSpace(identifier)
	if identifier == "" || password == "" {
		return nil, autherr.ErrInvalidCredentials
	}
	ip := clientIPFromContext(ctx)

	if err := e.rateLimiter.CheckLogin(ctx, identifier, ip); err != nil {
		if errors.Is(err, autherr.ErrTooManyAttempts) {
			e.metricInc(MetricLoginRateLimited)
			e.emitAudit(ctx, auditEventLoginRateLimited, false, "", "", err, func() map[string]string {
				return map[string]string{"identifier": identifier}
			})
		}
		return nil, err
	}

	acct, err := e.credentials.VerifyCredentials(ctx, identifier, password)
	if err != nil {
		if errors.Is(err, autherr.ErrInvalidCredentials) {
			e.metricInc(MetricLoginFailure)
			if incErr := e.rateLimiter.IncrementLogin(ctx, identifier, ip); incErr != nil && !errors.Is(incErr, autherr.ErrTooManyAttempts) {
				e.logger.WithError(incErr).Warn("login failure not counted")
			}
		}
		e.emitAudit(ctx, auditEventLoginFailure, false, "", "", err, func() map[string]string {
			return map[string]string{"identifier": identifier}
		})
		return nil, err
	}

	if err := e.rateLimiter.ResetLogin(ctx, identifier); err != nil {
		e.logger.WithError(err).WithField("account_id", acct.ID).Warn("login throttle reset failed")
	}

	if acct.TwoFactorEnabled {
		return e.startTwoFactorLogin(ctx, acct)
	}

	result, err := e.openSession(ctx, acct)
	if err != nil {
		e.emitAudit(ctx, auditEventLoginFailure, false, acct.ID, "", err, nil)
		return nil, err
	}
	e.metricInc(MetricLoginSuccess)
	e.emitAudit(ctx, auditEventLoginSuccess, true, acct.ID, result.Tokens.SessionID, nil, nil)
	return result, nil
}

// openSession issues a session for acct using the request fingerprint.
func (e *Engine) openSession(ctx context.Context, acct *account.Account) (*LoginResult, error) {
	issued, err := e.tokens.IssueSession(ctx, acct, FingerprintFromContext(ctx))
	if err != nil {
		return nil, err
	}
	e.metricInc(MetricSessionCreated)
	return &LoginResult{Tokens: issued, Account: acct.Public()}, nil
}

// Refresh exchanges refreshToken for a new pair bound to the same session.
// The presented token becomes unusable; presenting it again revokes the
// session.
func (e *Engine) Refresh(ctx context.Context, refreshToken, sessionID string) (*Tokens, error) {
	res, err := e.RefreshSession(ctx, refreshToken, sessionID)
	if err != nil {
		return nil, err
	}
	return res.Tokens, nil
}

// RefreshSession is [Engine.Refresh] returning the owning account with the
// rotated pair. Nothing fallible runs after the rotation, so a caller that
// receives an error still holds a usable refresh token unless the error is
// a credential failure.
func (e *Engine) RefreshSession(ctx context.Context, refreshToken, sessionID string) (*LoginResult, error) {
	if e == nil || e.tokens == nil {
		return nil, ErrEngineNotReady
	}
	start := time.Now()
	defer e.observeSince(MetricRefreshLatency, start)

	if sessionID != "" {
		if err := e.rateLimiter.CheckRefresh(ctx, sessionID); err != nil {
			if errors.Is(err, autherr.ErrTooManyAttempts) {
				e.emitAudit(ctx, auditEventRefreshRateLimited, false, "", sessionID, err, nil)
			}
			e.metricInc(MetricRefreshFailure)
			return nil, err
		}
	}

	issued, acct, err := e.tokens.Refresh(ctx, refreshToken, sessionID)
	if err != nil {
		e.metricInc(MetricRefreshFailure)
		if !errors.Is(err, autherr.ErrInvalidRefreshToken) {
			e.emitAudit(ctx, auditEventRefreshInvalid, false, "", sessionID, err, nil)
		}
		return nil, err
	}

	e.metricInc(MetricRefreshSuccess)
	e.emitAudit(ctx, auditEventRefreshSuccess, true, acct.ID, issued.SessionID, nil, nil)
	return &LoginResult{Tokens: issued, Account: acct.Public()}, nil
}

// Logout ends sessionID. Logging out of an unknown session succeeds.
func (e *Engine) Logout(ctx context.Context, sessionID string) error {
	if e == nil || e.tokens == nil {
		return ErrEngineNotReady
	}
	if err := e.tokens.RevokeSession(ctx, sessionID); err != nil {
		e.emitAudit(ctx, auditEventLogoutSession, false, "", sessionID, err, nil)
		return err
	}
	e.metricInc(MetricLogout)
	e.emitAudit(ctx, auditEventLogoutSession, true, "", sessionID, nil, nil)
	return nil
}

// LogoutAll ends every session of accountID and reports how many were live.
func (e *Engine) LogoutAll(ctx context.Context, accountID string) (int, error) {
	if e == nil || e.tokens == nil {
		return 0, ErrEngineNotReady
	}
	n, err := e.tokens.RevokeAllForAccount(ctx, accountID)
	if err != nil {
		e.emitAudit(ctx, auditEventLogoutAll, false, accountID, "", err, nil)
		return 0, err
	}
	e.metricInc(MetricLogoutAll)
	e.emitAudit(ctx, auditEventLogoutAll, true, accountID, "", nil, func() map[string]string {
		return map[string]string{"sessions": strconv.Itoa(n)}
	})
	return n, nil
}

// ValidateAccessToken verifies an access token's signature and expiry. It
// never touches Redis; a revoked session's access tokens stay valid until they
// expire.
func (e *Engine) ValidateAccessToken(tokenStr string) (*Principal, error) {
	if e == nil || e.tokens == nil {
		return nil, ErrEngineNotReady
	}
	start := time.Now()
	p, err := e.tokens.ValidateAccessToken(tokenStr)
	e.observeSince(MetricValidateLatency, start)
	if err != nil {
		e.metricInc(MetricValidateFailure)
		return nil, err
	}
	return p, nil
}

// Validate lets the Engine act as the request guard's validator.
func (e *Engine) Validate(_ context.Context, credential string) (*Principal, error) {
	return e.ValidateAccessToken(credential)
}

// ValidateSession verifies the access token and that its session is still
// live. Revoked sessions fail with ErrInvalidSession; backend failures stay
// ErrUnavailable.
func (e *Engine) ValidateSession(ctx context.Context, credential string) (*Principal, error) {
	if e == nil || e.tokens == nil {
		return nil, ErrEngineNotReady
	}
	start := time.Now()
	p, err := e.tokens.ValidateSession(ctx, credential)
	e.observeSince(MetricValidateLatency, start)
	if err != nil {
		e.metricInc(MetricValidateFailure)
		return nil, err
	}
	return p, nil
}

// Account returns the public projection of accountID.
func (e *Engine) Account(ctx context.Context, accountID string) (account.Public, error) {
	if e == nil || e.accounts == nil {
		return account.Public{}, ErrEngineNotReady
	}
	acct, err := e.accounts.FindByID(ctx, accountID)
	if err != nil {
		return account.Public{}, err
	}
	return acct.Public(), nil
}

// ListSessions returns the live sessions of accountID, newest first, marking
// currentSessionID as the caller's own.
func (e *Engine) ListSessions(ctx context.Context, accountID, currentSessionID string) ([]SessionInfo, error) {
	if e == nil || e.tokens == nil {
		return nil, ErrEngineNotReady
	}
	return e.tokens.ListSessions(ctx, accountID, currentSessionID)
}

// RevokeSession ends one session of accountID. A session that does not exist
// or belongs to another account fails with ErrSessionNotFound.
func (e *Engine) RevokeSession(ctx context.Context, accountID, sessionID string) error {
	if e == nil || e.tokens == nil {
		return ErrEngineNotReady
	}
	if err := e.tokens.RevokeAccountSession(ctx, accountID, sessionID); err != nil {
		e.emitAudit(ctx, auditEventSessionRevoked, false, accountID, sessionID, err, nil)
		return err
	}
	e.metricInc(MetricSessionRevoked)
	e.emitAudit(ctx, auditEventSessionRevoked, true, accountID, sessionID, nil, nil)
	return nil
}

// ChangePassword replaces the password of accountID after checking the
// current one. Existing sessions stay valid.
func (e *Engine) ChangePassword(ctx context.Context, accountID, oldPassword, newPassword string) error {
	if e == nil || e.credentials == nil {
		return ErrEngineNotReady
	}
	err := e.credentials.ChangePassword(ctx, accountID, oldPassword, newPassword)
	e.emitAudit(ctx, auditEventPasswordChange, err == nil, accountID, "", err, nil)
	return err
}
