package rate

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hackforge/hackauth/autherr"
)

// Config holds rate limiter tuning parameters.
type Config struct {
	EnableIPThrottle        bool
	EnableRefreshThrottle   bool
	MaxLoginAttempts        int
	LoginCooldownDuration   time.Duration
	MaxRefreshAttempts      int
	RefreshCooldownDuration time.Duration
}

// DefaultConfig allows ten failed logins per identifier (and per IP) every
// fifteen minutes and sixty refreshes per session per minute.
func DefaultConfig() Config {
	return Config{
		EnableIPThrottle:        true,
		EnableRefreshThrottle:   true,
		MaxLoginAttempts:        10,
		LoginCooldownDuration:   15 * time.Minute,
		MaxRefreshAttempts:      60,
		RefreshCooldownDuration: time.Minute,
	}
}

// Limiter enforces per-identifier and per-IP limits on failed logins and a
// per-session limit on refreshes, using Redis counters.
type Limiter struct {
	redis  redis.UniversalClient
	prefix string
	config Config
}

// New creates a rate [Limiter] backed by the given Redis client.
func New(redisClient redis.UniversalClient, prefix string, cfg Config) *Limiter {
	return &Limiter{
		redis:  redisClient,
		prefix: prefix,
		config: cfg,
	}
}

// CheckLogin reports autherr.ErrTooManyAttempts when the identifier or the
// IP has exhausted its failed-login budget. It does not count an attempt.
func (l *Limiter) CheckLogin(ctx context.Context, identifier, ip string) error {
	if l == nil {
		return nil
	}
	if err := l.checkCounter(ctx, l.loginKey(identifier), l.config.MaxLoginAttempts); err != nil {
		return err
	}
	if l.config.EnableIPThrottle && ip != "" {
		if err := l.checkCounter(ctx, l.loginIPKey(ip), l.config.MaxLoginAttempts); err != nil {
			return err
		}
	}
	return nil
}

// IncrementLogin records a failed login for the identifier and IP.
func (l *Limiter) IncrementLogin(ctx context.Context, identifier, ip string) error {
	if l == nil {
		return nil
	}
	if _, err := l.incrementWithTTL(ctx, l.loginKey(identifier), l.config.LoginCooldownDuration); err != nil {
		return err
	}
	if l.config.EnableIPThrottle && ip != "" {
		if _, err := l.incrementWithTTL(ctx, l.loginIPKey(ip), l.config.LoginCooldownDuration); err != nil {
			return err
		}
	}
	return nil
}

// ResetLogin clears the identifier's failed-login counter after a successful
// login. The IP counter is left alone so one good account cannot launder a
// spraying IP.
func (l *Limiter) ResetLogin(ctx context.Context, identifier string) error {
	if l == nil {
		return nil
	}
	if err := l.redis.Del(ctx, l.loginKey(identifier)).Err(); err != nil {
		return autherr.Unavailable("rate reset", err)
	}
	return nil
}

// CheckRefresh counts one refresh for the session and rejects the call when
// the per-session budget is exhausted.
func (l *Limiter) CheckRefresh(ctx context.Context, sessionID string) error {
	if l == nil || !l.config.EnableRefreshThrottle {
		return nil
	}

	count, err := l.incrementWithTTL(ctx, l.refreshKey(sessionID), l.config.RefreshCooldownDuration)
	if err != nil {
		return err
	}
	if count > int64(l.config.MaxRefreshAttempts) {
		return autherr.ErrTooManyAttempts
	}
	return nil
}

func (l *Limiter) checkCounter(ctx context.Context, key string, maxAttempts int) error {
	count, err := l.redis.Get(ctx, key).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return autherr.Unavailable("rate check", err)
	}
	if count >= int64(maxAttempts) {
		return autherr.ErrTooManyAttempts
	}
	return nil
}

func (l *Limiter) incrementWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	count, err := l.redis.Incr(ctx, key).Result()
	if err != nil {
		return 0, autherr.Unavailable("rate increment", err)
	}

	// Fixed window: TTL only on the first hit.
	if count == 1 {
		if err := l.redis.Expire(ctx, key, ttl).Err(); err != nil {
			return 0, autherr.Unavailable("rate increment", err)
		}
	}
	return count, nil
}

func (l *Limiter) loginKey(identifier string) string {
	return l.prefix + "rl:login:" + strings.ToLower(strings.TrimSpace(identifier))
}

func (l *Limiter) loginIPKey(ip string) string {
	return l.prefix + "rl:login-ip:" + ip
}

func (l *Limiter) refreshKey(sessionID string) string {
	return l.prefix + "rl:refresh:" + sessionID
}
