package metrics

// Def binds an ID to its exported name and help text.
type Def struct {
	ID   ID
	Name string
	Help string
}

var CounterDefs = []Def{
	{ID: RegisterSuccess, Name: "hackauth_register_success_total", Help: "Accounts registered with a password."},
	{ID: RegisterConflict, Name: "hackauth_register_conflict_total", Help: "Registrations rejected for a duplicate email or username."},
	{ID: LoginSuccess, Name: "hackauth_login_success_total", Help: "Successful password logins."},
	{ID: LoginFailure, Name: "hackauth_login_failure_total", Help: "Failed password logins."},
	{ID: LoginRateLimited, Name: "hackauth_login_rate_limited_total", Help: "Login attempts rejected by the rate limiter."},
	{ID: LoginTwoFactorChallenge, Name: "hackauth_login_2fa_challenge_total", Help: "Logins that required a second factor."},
	{ID: TwoFactorSuccess, Name: "hackauth_2fa_success_total", Help: "Accepted second-factor codes."},
	{ID: TwoFactorFailure, Name: "hackauth_2fa_failure_total", Help: "Rejected second-factor codes."},
	{ID: RefreshSuccess, Name: "hackauth_refresh_success_total", Help: "Successful refresh-token rotations."},
	{ID: RefreshFailure, Name: "hackauth_refresh_failure_total", Help: "Failed refresh attempts."},
	{ID: RefreshReuseDetected, Name: "hackauth_refresh_reuse_detected_total", Help: "Sessions revoked after refresh-token reuse."},
	{ID: SessionCreated, Name: "hackauth_session_created_total", Help: "Sessions created."},
	{ID: SessionRevoked, Name: "hackauth_session_revoked_total", Help: "Sessions revoked explicitly."},
	{ID: Logout, Name: "hackauth_logout_total", Help: "Single-session logouts."},
	{ID: LogoutAll, Name: "hackauth_logout_all_total", Help: "Logouts revoking every session of an account."},
	{ID: EmailVerificationRequest, Name: "hackauth_email_verification_request_total", Help: "Email verification codes issued."},
	{ID: EmailVerificationSuccess, Name: "hackauth_email_verification_success_total", Help: "Email addresses verified."},
	{ID: EmailVerificationFailure, Name: "hackauth_email_verification_failure_total", Help: "Rejected email verification codes."},
	{ID: PasswordResetRequest, Name: "hackauth_password_reset_request_total", Help: "Password reset requests."},
	{ID: PasswordResetSuccess, Name: "hackauth_password_reset_success_total", Help: "Completed password resets."},
	{ID: PasswordResetFailure, Name: "hackauth_password_reset_failure_total", Help: "Rejected password reset confirmations."},
	{ID: CodeAttemptsExceeded, Name: "hackauth_code_attempts_exceeded_total", Help: "Verification codes burned after too many attempts."},
	{ID: AccountDisabled, Name: "hackauth_account_disabled_total", Help: "Accounts disabled by their owner."},
	{ID: OAuthLoginSuccess, Name: "hackauth_oauth_login_success_total", Help: "Successful federated logins."},
	{ID: OAuthLoginFailure, Name: "hackauth_oauth_login_failure_total", Help: "Failed federated logins."},
	{ID: OAuthAccountCreated, Name: "hackauth_oauth_account_created_total", Help: "Accounts created from a federated identity."},
	{ID: OAuthAccountLinked, Name: "hackauth_oauth_account_linked_total", Help: "Federated identities linked to an existing account."},
	{ID: ValidateFailure, Name: "hackauth_validate_failure_total", Help: "Rejected access tokens."},
}

var HistogramDefs = []Def{
	{ID: ValidateLatency, Name: "hackauth_validate_latency_seconds", Help: "Access-token validation latency."},
	{ID: RefreshLatency, Name: "hackauth_refresh_latency_seconds", Help: "Refresh rotation latency."},
}

// HistogramBounds are the upper bounds, in seconds, of each bucket.
var HistogramBounds = [BucketCount]string{"0.005", "0.01", "0.025", "0.05", "0.1", "0.25", "0.5", "+Inf"}

// HistogramBoundSuffix renders each bound as a metric-name-safe suffix.
var HistogramBoundSuffix = [BucketCount]string{"0_005", "0_01", "0_025", "0_05", "0_1", "0_25", "0_5", "inf"}

// Cumulative converts raw non-cumulative buckets into cumulative counts.
// Short input is zero-padded.
func Cumulative(raw []uint64) [BucketCount]uint64 {
	var out [BucketCount]uint64
	var running uint64
	for i := 0; i < BucketCount; i++ {
		if i < len(raw) {
			running += raw[i]
		}
		out[i] = running
	}
	return out
}
