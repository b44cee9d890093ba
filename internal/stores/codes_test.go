package stores

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/hackforge/hackauth/autherr"
)

func newTestCodeStore(t *testing.T) (*CodeStore, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewCodeStore(rdb, "hackauth:"), mr
}

func TestPurposeDefaults(t *testing.T) {
	cases := map[Purpose]time.Duration{
		PurposeEmailVerification: 5 * time.Minute,
		PurposeTwoFactor:         5 * time.Minute,
		PurposeTwoFactorLogin:    5 * time.Minute,
		PurposeAccountDisable:    5 * time.Minute,
		PurposePasswordReset:     15 * time.Minute,
		PurposeOAuthState:        10 * time.Minute,
	}
	for p, want := range cases {
		if got := p.DefaultTTL(); got != want {
			t.Fatalf("%s: ttl %v want %v", p, got, want)
		}
	}
}

func TestPutStoresDigestUnderPurposeKey(t *testing.T) {
	ctx := context.Background()
	s, mr := newTestCodeStore(t)

	if err := s.Put(ctx, PurposeEmailVerification, "acc-1", "123456", "", 0); err != nil {
		t.Fatalf("put: %v", err)
	}

	key := "hackauth:verify:acc-1"
	if !mr.Exists(key) {
		t.Fatalf("expected key %s", key)
	}
	if got := mr.HGet(key, fieldCodeHash); got == "123456" || got == "" {
		t.Fatalf("code must be stored as a digest, got %q", got)
	}
	if ttl := mr.TTL(key); ttl != 5*time.Minute {
		t.Fatalf("unexpected ttl %v", ttl)
	}
}

func TestConsumeIsSingleUse(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestCodeStore(t)

	if err := s.Put(ctx, PurposePasswordReset, "a@example.com", "code-1", "acc-1", 0); err != nil {
		t.Fatalf("put: %v", err)
	}

	payload, err := s.Consume(ctx, PurposePasswordReset, "a@example.com", "code-1")
	if err != nil {
		t.Fatalf("consume: %v", err)
	}
	if payload != "acc-1" {
		t.Fatalf("unexpected payload %q", payload)
	}

	if _, err := s.Consume(ctx, PurposePasswordReset, "a@example.com", "code-1"); !errors.Is(err, autherr.ErrCodeNotFound) {
		t.Fatalf("expected not found on second consume, got %v", err)
	}
}

func TestConsumeMismatchKeepsEntryAndTTL(t *testing.T) {
	ctx := context.Background()
	s, mr := newTestCodeStore(t)

	if err := s.Put(ctx, PurposeTwoFactor, "acc-1", "111111", "", 0); err != nil {
		t.Fatalf("put: %v", err)
	}
	mr.FastForward(2 * time.Minute)
	before := mr.TTL("hackauth:2fa:acc-1")

	_, err := s.Consume(ctx, PurposeTwoFactor, "acc-1", "222222")
	if !errors.Is(err, autherr.ErrCodeMismatch) || !errors.Is(err, autherr.ErrValidation) {
		t.Fatalf("expected code mismatch validation error, got %v", err)
	}
	if after := mr.TTL("hackauth:2fa:acc-1"); after != before {
		t.Fatalf("mismatch changed ttl: before %v after %v", before, after)
	}

	if _, err := s.Consume(ctx, PurposeTwoFactor, "acc-1", "111111"); err != nil {
		t.Fatalf("expected correct code to still work: %v", err)
	}
}

func TestConsumeAfterTTL(t *testing.T) {
	ctx := context.Background()
	s, mr := newTestCodeStore(t)

	if err := s.Put(ctx, PurposeAccountDisable, "acc-1", "654321", "", 0); err != nil {
		t.Fatalf("put: %v", err)
	}
	mr.FastForward(5*time.Minute + time.Second)

	if _, err := s.Consume(ctx, PurposeAccountDisable, "acc-1", "654321"); !errors.Is(err, autherr.ErrCodeNotFound) {
		t.Fatalf("expected expired code to be not found, got %v", err)
	}
}

func TestPutOverwritesAndResetsTTL(t *testing.T) {
	ctx := context.Background()
	s, mr := newTestCodeStore(t)

	if err := s.Put(ctx, PurposeEmailVerification, "acc-1", "000001", "", 0); err != nil {
		t.Fatalf("put: %v", err)
	}
	mr.FastForward(4 * time.Minute)
	if err := s.Put(ctx, PurposeEmailVerification, "acc-1", "000002", "", 0); err != nil {
		t.Fatalf("put: %v", err)
	}
	if ttl := mr.TTL("hackauth:verify:acc-1"); ttl != 5*time.Minute {
		t.Fatalf("expected fresh ttl, got %v", ttl)
	}
	if _, err := s.Consume(ctx, PurposeEmailVerification, "acc-1", "000001"); !errors.Is(err, autherr.ErrCodeMismatch) {
		t.Fatalf("expected old code to mismatch, got %v", err)
	}
	if _, err := s.Consume(ctx, PurposeEmailVerification, "acc-1", "000002"); err != nil {
		t.Fatalf("expected new code to match: %v", err)
	}
}

func TestPurposesAreIsolated(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestCodeStore(t)

	if err := s.Put(ctx, PurposeEmailVerification, "acc-1", "123123", "", 0); err != nil {
		t.Fatalf("put: %v", err)
	}
	if _, err := s.Consume(ctx, PurposeAccountDisable, "acc-1", "123123"); !errors.Is(err, autherr.ErrCodeNotFound) {
		t.Fatalf("expected cross-purpose consume to miss, got %v", err)
	}
}

func TestConcurrentConsumeSingleWinner(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestCodeStore(t)

	if err := s.Put(ctx, PurposeTwoFactor, "challenge", "777777", "acc-1", 0); err != nil {
		t.Fatalf("put: %v", err)
	}

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.Consume(ctx, PurposeTwoFactor, "challenge", "777777"); err == nil {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	if wins.Load() != 1 {
		t.Fatalf("expected exactly one winner, got %d", wins.Load())
	}
}

func TestUnavailableBackend(t *testing.T) {
	ctx := context.Background()
	s, mr := newTestCodeStore(t)
	mr.Close()

	if err := s.Put(ctx, PurposeTwoFactor, "acc-1", "123456", "", 0); !errors.Is(err, autherr.ErrUnavailable) {
		t.Fatalf("expected unavailable, got %v", err)
	}
	if _, err := s.Consume(ctx, PurposeTwoFactor, "acc-1", "123456"); !errors.Is(err, autherr.ErrUnavailable) {
		t.Fatalf("expected unavailable, got %v", err)
	}
}
