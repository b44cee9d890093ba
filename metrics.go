package hackauth

import (
	"time"

	internalmetrics "github.com/hackforge/hackauth/internal/metrics"
)

// MetricID names one engine counter or latency histogram.
type MetricID = internalmetrics.ID

// MetricsSnapshot is a point-in-time copy of all engine metrics.
type MetricsSnapshot = internalmetrics.Snapshot

const (
	MetricRegisterSuccess          = internalmetrics.RegisterSuccess
	MetricRegisterConflict         = internalmetrics.RegisterConflict
	MetricLoginSuccess             = internalmetrics.LoginSuccess
	MetricLoginFailure             = internalmetrics.LoginFailure
	MetricLoginRateLimited         = internalmetrics.LoginRateLimited
	MetricLoginTwoFactorChallenge  = internalmetrics.LoginTwoFactorChallenge
	MetricTwoFactorSuccess         = internalmetrics.TwoFactorSuccess
	MetricTwoFactorFailure         = internalmetrics.TwoFactorFailure
	MetricRefreshSuccess           = internalmetrics.RefreshSuccess
	MetricRefreshFailure           = internalmetrics.RefreshFailure
	MetricRefreshReuseDetected     = internalmetrics.RefreshReuseDetected
	MetricSessionCreated           = internalmetrics.SessionCreated
	MetricSessionRevoked           = internalmetrics.SessionRevoked
	MetricLogout                   = internalmetrics.Logout
	MetricLogoutAll                = internalmetrics.LogoutAll
	MetricEmailVerificationRequest = internalmetrics.EmailVerificationRequest
	MetricEmailVerificationSuccess = internalmetrics.EmailVerificationSuccess
	MetricEmailVerificationFailure = internalmetrics.EmailVerificationFailure
	MetricPasswordResetRequest     = internalmetrics.PasswordResetRequest
	MetricPasswordResetSuccess     = internalmetrics.PasswordResetSuccess
	MetricPasswordResetFailure     = internalmetrics.PasswordResetFailure
	MetricCodeAttemptsExceeded     = internalmetrics.CodeAttemptsExceeded
	MetricAccountDisabled          = internalmetrics.AccountDisabled
	MetricOAuthLoginSuccess        = internalmetrics.OAuthLoginSuccess
	MetricOAuthLoginFailure        = internalmetrics.OAuthLoginFailure
	MetricOAuthAccountCreated      = internalmetrics.OAuthAccountCreated
	MetricOAuthAccountLinked       = internalmetrics.OAuthAccountLinked
	MetricValidateFailure          = internalmetrics.ValidateFailure
	MetricValidateLatency          = internalmetrics.ValidateLatency
	MetricRefreshLatency           = internalmetrics.RefreshLatency
)

// MetricsSnapshot returns the current counters. A disabled collector yields
// empty maps.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) observeSince(id MetricID, start time.Time) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Observe(id, time.Since(start))
}
