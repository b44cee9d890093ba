package limiters

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/hackforge/hackauth/autherr"
	"github.com/hackforge/hackauth/internal/stores"
)

func newTestLimiter(t *testing.T, cfg AttemptConfig) (*AttemptLimiter, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewAttemptLimiter(rdb, "hackauth:", cfg), mr
}

func TestCheckConfirmAllowsBudgetThenRejects(t *testing.T) {
	ctx := context.Background()
	l, _ := newTestLimiter(t, DefaultAttemptConfig())

	for i := 0; i < 5; i++ {
		if err := l.CheckConfirm(ctx, stores.PurposeTwoFactor, "acc-1"); err != nil {
			t.Fatalf("attempt %d: unexpected error %v", i+1, err)
		}
	}
	err := l.CheckConfirm(ctx, stores.PurposeTwoFactor, "acc-1")
	if !errors.Is(err, autherr.ErrTooManyAttempts) {
		t.Fatalf("expected too many attempts, got %v", err)
	}

	if err := l.CheckConfirm(ctx, stores.PurposeTwoFactor, "acc-2"); err != nil {
		t.Fatalf("other subjects must not be affected: %v", err)
	}
}

func TestConfirmWindowFollowsPurposeTTL(t *testing.T) {
	ctx := context.Background()
	l, mr := newTestLimiter(t, DefaultAttemptConfig())

	if err := l.CheckConfirm(ctx, stores.PurposePasswordReset, "a@example.com"); err != nil {
		t.Fatalf("unexpected error %v", err)
	}
	if ttl := mr.TTL("hackauth:attempts:reset:a@example.com"); ttl != 15*time.Minute {
		t.Fatalf("unexpected window %v", ttl)
	}
}

func TestResetConfirmClearsCounter(t *testing.T) {
	ctx := context.Background()
	l, _ := newTestLimiter(t, AttemptConfig{MaxConfirmAttempts: 1})

	if err := l.CheckConfirm(ctx, stores.PurposeEmailVerification, "acc-1"); err != nil {
		t.Fatalf("unexpected error %v", err)
	}
	if err := l.CheckConfirm(ctx, stores.PurposeEmailVerification, "acc-1"); err == nil {
		t.Fatal("expected second attempt to be rejected")
	}
	if err := l.ResetConfirm(ctx, stores.PurposeEmailVerification, "acc-1"); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if err := l.CheckConfirm(ctx, stores.PurposeEmailVerification, "acc-1"); err != nil {
		t.Fatalf("expected fresh budget after reset: %v", err)
	}
}

func TestCheckRequestWindow(t *testing.T) {
	ctx := context.Background()
	l, mr := newTestLimiter(t, AttemptConfig{MaxRequests: 2, RequestWindow: time.Minute})

	for i := 0; i < 2; i++ {
		if err := l.CheckRequest(ctx, stores.PurposeEmailVerification, "acc-1"); err != nil {
			t.Fatalf("request %d: %v", i+1, err)
		}
	}
	if err := l.CheckRequest(ctx, stores.PurposeEmailVerification, "acc-1"); !errors.Is(err, autherr.ErrTooManyAttempts) {
		t.Fatalf("expected too many attempts, got %v", err)
	}

	mr.FastForward(time.Minute + time.Second)
	if err := l.CheckRequest(ctx, stores.PurposeEmailVerification, "acc-1"); err != nil {
		t.Fatalf("expected new window to allow requests: %v", err)
	}
}

func TestNilLimiterAllows(t *testing.T) {
	var l *AttemptLimiter
	if err := l.CheckConfirm(context.Background(), stores.PurposeTwoFactor, "x"); err != nil {
		t.Fatalf("nil limiter must allow: %v", err)
	}
	if err := l.CheckRequest(context.Background(), stores.PurposeTwoFactor, "x"); err != nil {
		t.Fatalf("nil limiter must allow: %v", err)
	}
}
