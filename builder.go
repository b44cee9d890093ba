package hackauth

import (
	"errors"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/hackforge/hackauth/account"
	"github.com/hackforge/hackauth/credential"
	internalaudit "github.com/hackforge/hackauth/internal/audit"
	"github.com/hackforge/hackauth/internal/limiters"
	internalmetrics "github.com/hackforge/hackauth/internal/metrics"
	"github.com/hackforge/hackauth/internal/rate"
	"github.com/hackforge/hackauth/internal/stores"
	"github.com/hackforge/hackauth/jwt"
	"github.com/hackforge/hackauth/notify"
	"github.com/hackforge/hackauth/oauth"
	"github.com/hackforge/hackauth/password"
	"github.com/hackforge/hackauth/session"
	"github.com/hackforge/hackauth/token"
)

type extraProvider struct {
	provider   oauth.Provider
	trustEmail bool
}

// Builder assembles an [Engine]. Configure it during initialization, call
// Build once and discard it.
type Builder struct {
	config   Config
	redis    redis.UniversalClient
	accounts account.Store
	notifier notify.Notifier
	sink     AuditSink
	logger   logrus.FieldLogger
	hasher   password.Hasher

	providers []extraProvider

	built bool
}

// New returns a Builder holding [DefaultConfig].
func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
	}
}

// WithConfig replaces the whole configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cfg
	return b
}

// WithRedis sets the client used for sessions, codes and rate limits.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithAccountStore sets the account persistence collaborator.
func (b *Builder) WithAccountStore(store account.Store) *Builder {
	b.accounts = store
	return b
}

// WithNotifier overrides the notifier built from Config.Mail. Deliveries are
// still made asynchronously.
func (b *Builder) WithNotifier(n notify.Notifier) *Builder {
	b.notifier = n
	return b
}

// WithAuditSink sets where audit events go when Config.Audit is enabled. The
// default logs them through the engine logger.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.sink = sink
	return b
}

// WithLogger sets the logger for the engine and its services.
func (b *Builder) WithLogger(logger logrus.FieldLogger) *Builder {
	b.logger = logger
	return b
}

// WithPasswordHasher overrides the Argon2id hasher built from Config.Password.
func (b *Builder) WithPasswordHasher(h password.Hasher) *Builder {
	b.hasher = h
	return b
}

// WithOAuthProvider registers an identity provider in addition to the ones
// enabled in Config.OAuth.
func (b *Builder) WithOAuthProvider(p oauth.Provider, trustEmail bool) *Builder {
	b.providers = append(b.providers, extraProvider{provider: p, trustEmail: trustEmail})
	return b
}

// Build validates the configuration and wires every service.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}
	if b.redis == nil {
		return nil, errors.New("redis client required")
	}
	if b.accounts == nil {
		return nil, errors.New("account store required")
	}

	cfg := b.config
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := b.logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	prefix := cfg.Redis.KeyPrefix

	// -------- PASSWORDS --------
	hasher := b.hasher
	if hasher == nil {
		chain, err := password.NewChain(password.Config{
			Memory:      cfg.Password.Memory,
			Time:        cfg.Password.Time,
			Parallelism: cfg.Password.Parallelism,
			SaltLength:  cfg.Password.SaltLength,
			KeyLength:   cfg.Password.KeyLength,
		})
		if err != nil {
			return nil, err
		}
		hasher = chain
	}
	credentials, err := credential.NewService(b.accounts, hasher, credential.WithLogger(logger))
	if err != nil {
		return nil, err
	}

	// -------- TOKENS --------
	jm, err := jwt.NewManager(cfg.JWT.managerConfig())
	if err != nil {
		return nil, err
	}

	engine := &Engine{
		config:      cfg,
		accounts:    b.accounts,
		credentials: credentials,
		codes:       stores.NewCodeStore(b.redis, prefix),
		attempts: limiters.NewAttemptLimiter(b.redis, prefix, limiters.AttemptConfig{
			MaxConfirmAttempts: cfg.Security.MaxCodeAttempts,
			MaxRequests:        cfg.Security.MaxCodeRequests,
			RequestWindow:      cfg.Security.CodeRequestWindow,
		}),
		rateLimiter: rate.New(b.redis, prefix, rate.Config{
			EnableIPThrottle:        cfg.Security.EnableIPThrottle,
			EnableRefreshThrottle:   cfg.Security.EnableRefreshThrottle,
			MaxLoginAttempts:        cfg.Security.MaxLoginAttempts,
			LoginCooldownDuration:   cfg.Security.LoginCooldownDuration,
			MaxRefreshAttempts:      cfg.Security.MaxRefreshAttempts,
			RefreshCooldownDuration: cfg.Security.RefreshCooldownDuration,
		}),
		metrics: internalmetrics.New(internalmetrics.Config{
			Enabled:                 cfg.Metrics.Enabled,
			EnableLatencyHistograms: cfg.Metrics.EnableLatencyHistograms,
		}),
		logger: logger,
	}

	engine.tokens = token.NewService(
		jm,
		session.NewStore(b.redis, prefix),
		b.accounts,
		cfg.Session.RefreshTTL(),
		token.WithLogger(logger),
		token.WithReuseHook(engine.onRefreshReuse),
	)

	// -------- AUDIT --------
	sink := b.sink
	if sink == nil {
		sink = internalaudit.NewLogrusSink(logger)
	}
	engine.audit = internalaudit.NewDispatcher(internalaudit.Config{
		Enabled:     cfg.Audit.Enabled,
		BufferSize:  cfg.Audit.BufferSize,
		DropIfFull:  cfg.Audit.DropIfFull,
		SinkTimeout: cfg.Audit.SinkTimeout,
	}, sink)

	// -------- NOTIFICATIONS --------
	notifier := b.notifier
	if notifier == nil {
		notifier, err = notify.New(cfg.Mail, logger)
		if err != nil {
			engine.Close()
			return nil, err
		}
	}
	engine.notifier = notify.NewAsync(notifier, cfg.Mail.Timeout, logger)

	// -------- OAUTH --------
	registry := oauth.NewRegistry()
	if cfg.OAuth.GitHub.Enabled() {
		gh, err := oauth.NewGitHub(oauth.GitHubConfig{
			ClientID:     cfg.OAuth.GitHub.ClientID,
			ClientSecret: cfg.OAuth.GitHub.ClientSecret,
			RedirectURL:  cfg.OAuth.CallbackURL("github"),
		})
		if err != nil {
			engine.Close()
			return nil, err
		}
		registry.Register(gh, cfg.OAuth.GitHub.TrustEmail)
	}
	if cfg.OAuth.Google.Enabled() {
		registry.Register(oauth.NewGoogle(oauth.GoogleConfig{
			ClientID:     cfg.OAuth.Google.ClientID,
			ClientSecret: cfg.OAuth.Google.ClientSecret,
			RedirectURL:  cfg.OAuth.CallbackURL("google"),
		}), cfg.OAuth.Google.TrustEmail)
	}
	for _, p := range b.providers {
		registry.Register(p.provider, p.trustEmail)
	}
	engine.providers = registry
	engine.federation = oauth.NewFederation(b.accounts, registry, logger)

	b.built = true

	return engine, nil
}
