package hackauth

import (
	"context"
	"errors"
	"time"

	"github.com/hackforge/hackauth/autherr"
	"github.com/hackforge/hackauth/session"
)

const (
	auditEventRegisterSuccess          = "register_success"
	auditEventRegisterFailure          = "register_failure"
	auditEventLoginSuccess             = "login_success"
	auditEventLoginFailure             = "login_failure"
	auditEventLoginRateLimited         = "login_rate_limited"
	auditEventTwoFactorChallenge       = "two_factor_challenge"
	auditEventTwoFactorSuccess         = "two_factor_success"
	auditEventTwoFactorFailure         = "two_factor_failure"
	auditEventRefreshSuccess           = "refresh_success"
	auditEventRefreshInvalid           = "refresh_invalid"
	auditEventRefreshRateLimited       = "refresh_rate_limited"
	auditEventRefreshReuseDetected     = "refresh_reuse_detected"
	auditEventLogoutSession            = "logout_session"
	auditEventLogoutAll                = "logout_all"
	auditEventSessionRevoked           = "session_revoked"
	auditEventEmailVerificationRequest = "email_verification_request"
	auditEventEmailVerificationConfirm = "email_verification_confirm"
	auditEventPasswordResetRequest     = "password_reset_request"
	auditEventPasswordResetConfirm     = "password_reset_confirm"
	auditEventPasswordChange           = "password_change"
	auditEventTwoFactorEnableRequest   = "two_factor_enable_request"
	auditEventTwoFactorEnabled         = "two_factor_enabled"
	auditEventTwoFactorDisabled        = "two_factor_disabled"
	auditEventAccountDisableRequest    = "account_disable_request"
	auditEventAccountDisabled          = "account_disabled"
	auditEventOAuthLoginSuccess        = "oauth_login_success"
	auditEventOAuthLoginFailure        = "oauth_login_failure"
	auditEventCodeAttemptsExceeded     = "code_attempts_exceeded"
)

// AuditErrorCode is the stable, non-sensitive error label carried by audit
// events.
type AuditErrorCode string

const (
	auditErrInvalidInput       AuditErrorCode = "invalid_input"
	auditErrPasswordPolicy     AuditErrorCode = "password_policy"
	auditErrDuplicate          AuditErrorCode = "duplicate"
	auditErrInvalidCredentials AuditErrorCode = "invalid_credentials"
	auditErrInvalidSession     AuditErrorCode = "invalid_session"
	auditErrRefreshReuse       AuditErrorCode = "refresh_reuse"
	auditErrInvalidToken       AuditErrorCode = "invalid_token"
	auditErrInvalidCode        AuditErrorCode = "invalid_code"
	auditErrRateLimited        AuditErrorCode = "rate_limited"
	auditErrInvalidOAuthState  AuditErrorCode = "invalid_oauth_state"
	auditErrPasswordRequired   AuditErrorCode = "password_required"
	auditErrNotFound           AuditErrorCode = "not_found"
	auditErrUnauthorized       AuditErrorCode = "unauthorized"
	auditErrUnavailable        AuditErrorCode = "backend_unavailable"
	auditErrInternal           AuditErrorCode = "internal_error"
)

// emitAudit stamps the request fingerprint from ctx onto the event. The
// metadata builder only runs when auditing is enabled.
func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	accountID string,
	sessionID string,
	err error,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	fp := FingerprintFromContext(ctx)
	event := AuditEvent{
		Timestamp: time.Now().UTC(),
		EventType: eventType,
		AccountID: accountID,
		SessionID: sessionID,
		IP:        fp.IPAddress,
		UserAgent: fp.UserAgent,
		Device:    fp.DeviceType,
		Success:   success,
		Metadata:  metadata,
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	e.audit.Emit(ctx, event)
}

// onRefreshReuse runs after the token service revoked a session whose refresh
// token did not match. The event carries the fingerprint captured when the
// session was created, next to the fingerprint of the presenting request.
func (e *Engine) onRefreshReuse(ctx context.Context, snapshot *session.Session, replayed bool) {
	e.metricInc(MetricRefreshReuseDetected)

	var accountID, sessionID string
	if snapshot != nil {
		accountID = snapshot.AccountID
		sessionID = snapshot.ID
	}
	e.emitAudit(ctx, auditEventRefreshReuseDetected, false, accountID, sessionID, autherr.ErrInvalidRefreshToken, func() map[string]string {
		meta := map[string]string{
			"replayed": boolString(replayed),
		}
		if snapshot != nil {
			meta["session_ip"] = snapshot.Fingerprint.IPAddress
			meta["session_user_agent"] = snapshot.Fingerprint.UserAgent
			meta["session_device"] = snapshot.Fingerprint.DeviceType
			meta["session_browser"] = snapshot.Fingerprint.Browser
			meta["session_os"] = snapshot.Fingerprint.OS
			meta["session_created_at"] = snapshot.CreatedAt.UTC().Format(time.RFC3339)
		}
		return meta
	})
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, autherr.ErrPasswordPolicy):
		return auditErrPasswordPolicy
	case errors.Is(err, autherr.ErrEmailExists),
		errors.Is(err, autherr.ErrUsernameExists),
		errors.Is(err, autherr.ErrIdentityLinked):
		return auditErrDuplicate
	case errors.Is(err, autherr.ErrInvalidCredentials):
		return auditErrInvalidCredentials
	case errors.Is(err, autherr.ErrInvalidSession):
		return auditErrInvalidSession
	case errors.Is(err, autherr.ErrInvalidRefreshToken):
		return auditErrRefreshReuse
	case errors.Is(err, autherr.ErrInvalidAccessToken):
		return auditErrInvalidToken
	case errors.Is(err, autherr.ErrInvalidCode),
		errors.Is(err, autherr.ErrCodeMismatch),
		errors.Is(err, autherr.ErrCodeNotFound):
		return auditErrInvalidCode
	case errors.Is(err, autherr.ErrTooManyAttempts):
		return auditErrRateLimited
	case errors.Is(err, autherr.ErrInvalidOAuthState):
		return auditErrInvalidOAuthState
	case errors.Is(err, autherr.ErrPasswordRequired):
		return auditErrPasswordRequired
	case errors.Is(err, autherr.ErrValidation):
		return auditErrInvalidInput
	case errors.Is(err, autherr.ErrNotFound):
		return auditErrNotFound
	case errors.Is(err, autherr.ErrAuth):
		return auditErrUnauthorized
	case errors.Is(err, autherr.ErrUnavailable):
		return auditErrUnavailable
	default:
		return auditErrInternal
	}
}

func boolString(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
