package limiters

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hackforge/hackauth/autherr"
	"github.com/hackforge/hackauth/internal/stores"
)

// AttemptConfig bounds code guesses and code issuance.
type AttemptConfig struct {
	// MaxConfirmAttempts is the number of guesses allowed per code lifetime.
	MaxConfirmAttempts int
	// MaxRequests is the number of codes that may be issued per subject
	// within RequestWindow.
	MaxRequests   int
	RequestWindow time.Duration
}

// DefaultAttemptConfig allows five guesses per code and five codes per
// subject every fifteen minutes.
func DefaultAttemptConfig() AttemptConfig {
	return AttemptConfig{
		MaxConfirmAttempts: 5,
		MaxRequests:        5,
		RequestWindow:      15 * time.Minute,
	}
}

// AttemptLimiter throttles verification-code guesses and issuance with Redis
// fixed-window counters. A nil *AttemptLimiter allows everything.
type AttemptLimiter struct {
	redis  redis.UniversalClient
	prefix string
	config AttemptConfig
}

func NewAttemptLimiter(redisClient redis.UniversalClient, prefix string, cfg AttemptConfig) *AttemptLimiter {
	return &AttemptLimiter{redis: redisClient, prefix: prefix, config: cfg}
}

// CheckConfirm counts one guess for (purpose, subject). The window matches
// the purpose's code lifetime, so the budget resets with every new code.
func (l *AttemptLimiter) CheckConfirm(ctx context.Context, purpose stores.Purpose, subject string) error {
	if l == nil || l.config.MaxConfirmAttempts <= 0 {
		return nil
	}
	return l.enforceFixedWindow(ctx, l.confirmKey(purpose, subject), purpose.DefaultTTL(), l.config.MaxConfirmAttempts)
}

// ResetConfirm clears the guess counter, called when a new code is issued or
// a code is accepted.
func (l *AttemptLimiter) ResetConfirm(ctx context.Context, purpose stores.Purpose, subject string) error {
	if l == nil {
		return nil
	}
	if err := l.redis.Del(ctx, l.confirmKey(purpose, subject)).Err(); err != nil {
		return autherr.Unavailable("attempt limiter reset", err)
	}
	return nil
}

// CheckRequest counts one code issuance for (purpose, subject).
func (l *AttemptLimiter) CheckRequest(ctx context.Context, purpose stores.Purpose, subject string) error {
	if l == nil || l.config.MaxRequests <= 0 {
		return nil
	}
	return l.enforceFixedWindow(ctx, l.requestKey(purpose, subject), l.config.RequestWindow, l.config.MaxRequests)
}

func (l *AttemptLimiter) enforceFixedWindow(ctx context.Context, key string, window time.Duration, max int) error {
	count, err := l.redis.Incr(ctx, key).Result()
	if err != nil {
		return autherr.Unavailable("attempt limiter", err)
	}

	if count == 1 {
		if err := l.redis.Expire(ctx, key, window).Err(); err != nil {
			return autherr.Unavailable("attempt limiter", err)
		}
	}

	if count > int64(max) {
		return autherr.ErrTooManyAttempts
	}
	return nil
}

func (l *AttemptLimiter) confirmKey(purpose stores.Purpose, subject string) string {
	return l.prefix + "attempts:" + purpose.Prefix() + subject
}

func (l *AttemptLimiter) requestKey(purpose stores.Purpose, subject string) string {
	return l.prefix + "requests:" + purpose.Prefix() + subject
}
