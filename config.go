package hackauth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/redis/go-redis/v9"

	"github.com/hackforge/hackauth/credential"
	"github.com/hackforge/hackauth/jwt"
	"github.com/hackforge/hackauth/notify"
)

// Config holds every Engine setting. Start from [DefaultConfig] (or
// [LoadConfigFromEnv]) and override fields; Build validates the result.
type Config struct {
	JWT               JWTConfig
	Session           SessionConfig
	Redis             RedisConfig
	Password          PasswordConfig
	Security          SecurityConfig
	EmailVerification EmailVerificationConfig
	Audit             AuditConfig
	Metrics           MetricsConfig
	Mail              notify.Config
	OAuth             OAuthConfig
}

/*
====================================
JWT CONFIG
====================================
*/

// JWTConfig configures access-token signing. For HS256 Secret is the shared
// key; for Ed25519 PrivateKey and PublicKey hold PEM or raw keys.
type JWTConfig struct {
	AccessTTL     time.Duration `env:"JWT_ACCESS_TTL"`
	SigningMethod string        `env:"JWT_SIGNING_METHOD"`
	Secret        string        `env:"JWT_SECRET"`
	PrivateKey    string        `env:"JWT_PRIVATE_KEY"`
	PublicKey     string        `env:"JWT_PUBLIC_KEY"`
	Issuer        string        `env:"JWT_ISSUER"`
	Audience      string        `env:"JWT_AUDIENCE"`
	KeyID         string        `env:"JWT_KEY_ID"`
	Leeway        time.Duration `env:"JWT_LEEWAY"`
}

func (c JWTConfig) managerConfig() jwt.Config {
	cfg := jwt.Config{
		AccessTTL:     c.AccessTTL,
		SigningMethod: jwt.SigningMethod(strings.ToLower(strings.TrimSpace(c.SigningMethod))),
		Issuer:        c.Issuer,
		Audience:      c.Audience,
		Leeway:        c.Leeway,
		KeyID:         c.KeyID,
	}
	if cfg.SigningMethod == jwt.MethodEd25519 {
		if c.PrivateKey != "" {
			cfg.PrivateKey = []byte(c.PrivateKey)
		}
		if c.PublicKey != "" {
			cfg.PublicKey = []byte(c.PublicKey)
		}
		return cfg
	}
	cfg.PrivateKey = []byte(c.Secret)
	return cfg
}

/*
====================================
SESSION CONFIG
====================================
*/

// SessionConfig configures the refresh token and session lifetime. The
// lifetime is in seconds because it doubles as the cookie Max-Age.
type SessionConfig struct {
	RefreshTTLSeconds int `env:"REFRESH_TOKEN_TTL"`
}

// RefreshTTL is the session lifetime as a duration.
func (c SessionConfig) RefreshTTL() time.Duration {
	return time.Duration(c.RefreshTTLSeconds) * time.Second
}

/*
====================================
REDIS CONFIG
====================================
*/

// RedisConfig locates the cache and bounds every call made to it.
type RedisConfig struct {
	URL              string        `env:"REDIS_URL"`
	OperationTimeout time.Duration `env:"REDIS_OP_TIMEOUT"`
	KeyPrefix        string        `env:"REDIS_KEY_PREFIX"`
}

// Options parses URL and applies OperationTimeout as the dial, read and
// write timeout of the client.
func (c RedisConfig) Options() (*redis.Options, error) {
	opts, err := redis.ParseURL(c.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	if c.OperationTimeout > 0 {
		opts.DialTimeout = c.OperationTimeout
		opts.ReadTimeout = c.OperationTimeout
		opts.WriteTimeout = c.OperationTimeout
		opts.ContextTimeoutEnabled = true
	}
	return opts, nil
}

/*
====================================
PASSWORD CONFIG
====================================
*/

// PasswordConfig holds the Argon2id parameters. Memory is in KiB. Hashes
// made with weaker parameters are upgraded on the next successful login.
type PasswordConfig struct {
	Memory      uint32 `env:"PASSWORD_ARGON2_MEMORY_KB"`
	Time        uint32 `env:"PASSWORD_ARGON2_TIME"`
	Parallelism uint8  `env:"PASSWORD_ARGON2_PARALLELISM"`
	SaltLength  uint32
	KeyLength   uint32
}

/*
====================================
SECURITY CONFIG
====================================
*/

// SecurityConfig bounds login, refresh and verification-code attempts.
type SecurityConfig struct {
	EnableIPThrottle      bool          `env:"LOGIN_IP_THROTTLE"`
	MaxLoginAttempts      int           `env:"LOGIN_MAX_ATTEMPTS"`
	LoginCooldownDuration time.Duration `env:"LOGIN_COOLDOWN"`

	EnableRefreshThrottle   bool          `env:"REFRESH_THROTTLE"`
	MaxRefreshAttempts      int           `env:"REFRESH_MAX_ATTEMPTS"`
	RefreshCooldownDuration time.Duration `env:"REFRESH_COOLDOWN"`

	// MaxCodeAttempts is the number of guesses allowed per verification code.
	MaxCodeAttempts int `env:"CODE_MAX_ATTEMPTS"`
	// MaxCodeRequests codes may be issued per subject and purpose within
	// CodeRequestWindow.
	MaxCodeRequests   int           `env:"CODE_MAX_REQUESTS"`
	CodeRequestWindow time.Duration `env:"CODE_REQUEST_WINDOW"`
}

// EmailVerificationConfig controls the verification email sent on
// registration.
type EmailVerificationConfig struct {
	SendOnRegister bool `env:"EMAIL_VERIFICATION_ON_REGISTER"`
}

// AuditConfig controls the asynchronous audit dispatcher.
type AuditConfig struct {
	Enabled     bool          `env:"AUDIT_ENABLED"`
	BufferSize  int           `env:"AUDIT_BUFFER_SIZE"`
	DropIfFull  bool          `env:"AUDIT_DROP_IF_FULL"`
	SinkTimeout time.Duration `env:"AUDIT_SINK_TIMEOUT"`
}

// MetricsConfig toggles the in-process counters.
type MetricsConfig struct {
	Enabled                 bool `env:"METRICS_ENABLED"`
	EnableLatencyHistograms bool `env:"METRICS_LATENCY_HISTOGRAMS"`
}

/*
====================================
OAUTH CONFIG
====================================
*/

// OAuthProviderConfig holds one identity provider's client credentials. The
// provider is registered only when ClientID is set. TrustEmail allows an
// external login to be linked to an existing account by verified email.
type OAuthProviderConfig struct {
	ClientID     string `env:"CLIENT_ID"`
	ClientSecret string `env:"CLIENT_SECRET"`
	TrustEmail   bool   `env:"TRUST_EMAIL"`
}

// Enabled reports whether the provider has credentials.
func (c OAuthProviderConfig) Enabled() bool {
	return strings.TrimSpace(c.ClientID) != ""
}

// OAuthConfig configures the shipped providers. RedirectBase is the public
// URL of the API prefix; callbacks land on
// {RedirectBase}/auth/oauth/{provider}/callback.
type OAuthConfig struct {
	RedirectBase string              `env:"OAUTH_REDIRECT_BASE"`
	GitHub       OAuthProviderConfig `envPrefix:"GITHUB_"`
	Google       OAuthProviderConfig `envPrefix:"GOOGLE_"`
}

// CallbackURL returns the redirect URL registered for provider.
func (c OAuthConfig) CallbackURL(provider string) string {
	return strings.TrimRight(c.RedirectBase, "/") + "/auth/oauth/" + provider + "/callback"
}

/*
====================================
DEFAULT CONFIG
====================================
*/

// DefaultConfig returns production defaults. JWT.Secret is empty and must be
// supplied.
func DefaultConfig() Config {
	return Config{
		JWT: JWTConfig{
			AccessTTL:     15 * time.Minute,
			SigningMethod: string(jwt.MethodHS256),
			Issuer:        "hackauth",
		},
		Session: SessionConfig{
			RefreshTTLSeconds: 604800,
		},
		Redis: RedisConfig{
			URL:              "redis://localhost:6379/0",
			OperationTimeout: 2 * time.Second,
			KeyPrefix:        "hackauth:",
		},
		Password: PasswordConfig{
			Memory:      64 * 1024,
			Time:        3,
			Parallelism: 2,
			SaltLength:  16,
			KeyLength:   32,
		},
		Security: SecurityConfig{
			EnableIPThrottle:        true,
			MaxLoginAttempts:        10,
			LoginCooldownDuration:   15 * time.Minute,
			EnableRefreshThrottle:   true,
			MaxRefreshAttempts:      60,
			RefreshCooldownDuration: time.Minute,
			MaxCodeAttempts:         5,
			MaxCodeRequests:         5,
			CodeRequestWindow:       15 * time.Minute,
		},
		EmailVerification: EmailVerificationConfig{
			SendOnRegister: true,
		},
		Audit: AuditConfig{
			Enabled:     true,
			BufferSize:  1024,
			DropIfFull:  true,
			SinkTimeout: 5 * time.Second,
		},
		Metrics: MetricsConfig{
			Enabled:                 true,
			EnableLatencyHistograms: true,
		},
		Mail: notify.Config{
			Provider: "log",
			Timeout:  10 * time.Second,
		},
		OAuth: OAuthConfig{
			RedirectBase: "http://localhost:8080/api",
			GitHub:       OAuthProviderConfig{TrustEmail: true},
			Google:       OAuthProviderConfig{TrustEmail: true},
		},
	}
}

// LoadConfigFromEnv overlays environment variables on [DefaultConfig].
// Variables that are unset keep their default.
func LoadConfigFromEnv() (Config, error) {
	cfg := DefaultConfig()
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

// Validate reports the first setting that cannot work.
func (c *Config) Validate() error {
	if c.JWT.AccessTTL <= 0 {
		return errors.New("JWT AccessTTL must be > 0")
	}
	switch jwt.SigningMethod(strings.ToLower(strings.TrimSpace(c.JWT.SigningMethod))) {
	case jwt.MethodHS256, "":
		if len(c.JWT.Secret) < 32 {
			return errors.New("JWT Secret must be at least 32 bytes")
		}
	case jwt.MethodEd25519:
		if c.JWT.PrivateKey == "" {
			return errors.New("JWT PrivateKey is required for ed25519")
		}
	default:
		return fmt.Errorf("JWT SigningMethod %q is not supported", c.JWT.SigningMethod)
	}

	if c.Session.RefreshTTLSeconds <= 0 {
		return errors.New("Session RefreshTTLSeconds must be > 0")
	}
	if c.Session.RefreshTTL() <= c.JWT.AccessTTL {
		return errors.New("Session refresh lifetime must exceed JWT AccessTTL")
	}

	if c.Redis.OperationTimeout <= 0 {
		return errors.New("Redis OperationTimeout must be > 0")
	}

	if c.Password.Memory == 0 || c.Password.Time == 0 || c.Password.Parallelism == 0 {
		return errors.New("Password argon2 parameters must be > 0")
	}

	if c.Security.MaxLoginAttempts <= 0 {
		return errors.New("Security MaxLoginAttempts must be > 0")
	}
	if c.Security.LoginCooldownDuration <= 0 {
		return errors.New("Security LoginCooldownDuration must be > 0")
	}
	if c.Security.EnableRefreshThrottle {
		if c.Security.MaxRefreshAttempts <= 0 {
			return errors.New("Security MaxRefreshAttempts must be > 0 when refresh throttle is enabled")
		}
		if c.Security.RefreshCooldownDuration <= 0 {
			return errors.New("Security RefreshCooldownDuration must be > 0 when refresh throttle is enabled")
		}
	}
	if c.Security.MaxCodeAttempts <= 0 {
		return errors.New("Security MaxCodeAttempts must be > 0")
	}
	if c.Security.MaxCodeRequests > 0 && c.Security.CodeRequestWindow <= 0 {
		return errors.New("Security CodeRequestWindow must be > 0 when MaxCodeRequests is set")
	}

	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when audit is enabled")
	}

	if (c.OAuth.GitHub.Enabled() && c.OAuth.GitHub.ClientSecret == "") ||
		(c.OAuth.Google.Enabled() && c.OAuth.Google.ClientSecret == "") {
		return errors.New("OAuth ClientSecret is required when ClientID is set")
	}
	if (c.OAuth.GitHub.Enabled() || c.OAuth.Google.Enabled()) && c.OAuth.RedirectBase == "" {
		return errors.New("OAuth RedirectBase is required when a provider is configured")
	}
	return nil
}

// CheckPasswordPolicy reports ErrPasswordPolicy for a password outside
// 8..128 bytes.
func CheckPasswordPolicy(pw string) error {
	return credential.CheckPasswordPolicy(pw)
}
