package hackauth

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/hackforge/hackauth/account/memstore"
	"github.com/hackforge/hackauth/fingerprint"
	"github.com/hackforge/hackauth/notify"
	"github.com/hackforge/hackauth/password"
)

const testSecret = "0123456789abcdef0123456789abcdef"

type recordingNotifier struct {
	mu       sync.Mutex
	messages []notify.Message
}

func (r *recordingNotifier) Notify(_ context.Context, msg notify.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, msg)
	return nil
}

func (r *recordingNotifier) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.messages)
}

// lastCode waits for pending deliveries and returns the newest code of kind.
func (r *recordingNotifier) lastCode(t *testing.T, e *Engine, kind notify.Kind) string {
	t.Helper()
	e.notifier.Wait()
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.messages) - 1; i >= 0; i-- {
		if r.messages[i].Kind == kind {
			return r.messages[i].Code
		}
	}
	t.Fatalf("no %s notification sent", kind)
	return ""
}

type testEngine struct {
	*Engine
	mr       *miniredis.Miniredis
	rdb      *redis.Client
	accounts *memstore.Store
	mail     *recordingNotifier
	audit    *chanSink
}

type chanSink struct {
	events chan AuditEvent
}

func (c *chanSink) Emit(_ context.Context, e AuditEvent) {
	c.events <- e
}

// waitFor drains audit events until one of eventType arrives.
func (c *chanSink) waitFor(t *testing.T, eventType string) AuditEvent {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case e := <-c.events:
			if e.EventType == eventType {
				return e
			}
		case <-deadline:
			t.Fatalf("audit event %q not emitted", eventType)
			return AuditEvent{}
		}
	}
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.JWT.Secret = testSecret
	cfg.Audit.BufferSize = 256
	cfg.Audit.DropIfFull = false
	return cfg
}

func newTestEngine(t *testing.T, mutate func(*Config), extra ...func(*Builder)) *testEngine {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	cfg := testConfig()
	if mutate != nil {
		mutate(&cfg)
	}

	hasher, err := password.NewArgon2(password.Config{Memory: 8192, Time: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32})
	if err != nil {
		t.Fatalf("hasher: %v", err)
	}

	accounts := memstore.New()
	mail := &recordingNotifier{}
	sink := &chanSink{events: make(chan AuditEvent, 1024)}

	b := New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithAccountStore(accounts).
		WithNotifier(mail).
		WithAuditSink(sink).
		WithPasswordHasher(hasher)
	for _, fn := range extra {
		fn(b)
	}
	engine, err := b.Build()
	if err != nil {
		t.Fatalf("build engine: %v", err)
	}
	t.Cleanup(engine.Close)

	return &testEngine{Engine: engine, mr: mr, rdb: rdb, accounts: accounts, mail: mail, audit: sink}
}

func fingerprintCtx(ip, ua string) context.Context {
	h := http.Header{}
	h.Set("User-Agent", ua)
	return WithFingerprint(context.Background(), fingerprint.Extract(h, "", ip+":51234"))
}

const chromeWindowsUA = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

func (te *testEngine) register(t *testing.T, email, username, pw string) string {
	t.Helper()
	pub, err := te.Register(context.Background(), RegisterInput{Name: "Test User", Email: email, Username: username, Password: pw})
	if err != nil {
		t.Fatalf("register %s: %v", email, err)
	}
	return pub.ID
}

func (te *testEngine) login(t *testing.T, identifier, pw string) *Tokens {
	t.Helper()
	res, err := te.Login(fingerprintCtx("203.0.113.5", chromeWindowsUA), identifier, pw)
	if err != nil {
		t.Fatalf("login %s: %v", identifier, err)
	}
	if res.Tokens == nil {
		t.Fatalf("login %s: expected tokens, got challenge", identifier)
	}
	return res.Tokens
}

func TestBuildRequiresCollaborators(t *testing.T) {
	if _, err := New().WithConfig(testConfig()).Build(); err == nil {
		t.Fatal("expected error without redis")
	}

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	if _, err := New().WithConfig(testConfig()).WithRedis(rdb).Build(); err == nil {
		t.Fatal("expected error without account store")
	}

	cfg := testConfig()
	cfg.JWT.Secret = "short"
	if _, err := New().WithConfig(cfg).WithRedis(rdb).WithAccountStore(memstore.New()).Build(); err == nil {
		t.Fatal("expected error for short secret")
	}

	b := New().WithConfig(testConfig()).WithRedis(rdb).WithAccountStore(memstore.New())
	engine, err := b.Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	defer engine.Close()
	if _, err := b.Build(); err == nil {
		t.Fatal("expected error on second Build")
	}
}

func TestFirstRegisteredAccountIsAdmin(t *testing.T) {
	te := newTestEngine(t, nil)
	ctx := context.Background()

	for i, email := range []string{"first@example.com", "second@example.com", "third@example.com"} {
		pub, err := te.Register(ctx, RegisterInput{Name: "N", Email: email, Password: "correct-horse-1"})
		if err != nil {
			t.Fatalf("register %s: %v", email, err)
		}
		want := "USER"
		if i == 0 {
			want = "ADMIN"
		}
		if string(pub.Role) != want {
			t.Fatalf("account %d role = %s, want %s", i, pub.Role, want)
		}
	}
}

func TestRegisterDuplicateEmailConflicts(t *testing.T) {
	te := newTestEngine(t, nil)
	te.register(t, "ada@example.com", "ada", "correct-horse-1")

	_, err := te.Register(context.Background(), RegisterInput{Name: "Other", Email: " ADA@example.com ", Username: "someone-else", Password: "correct-horse-2"})
	if !errors.Is(err, ErrEmailExists) || !errors.Is(err, ErrConflict) {
		t.Fatalf("expected email conflict, got %v", err)
	}
	if got := te.MetricsSnapshot().Counters[MetricRegisterConflict]; got != 1 {
		t.Fatalf("conflict counter = %d, want 1", got)
	}
}

func TestLoginIssuesSessionWithFingerprint(t *testing.T) {
	te := newTestEngine(t, nil)
	id := te.register(t, "ada@example.com", "ada", "correct-horse-1")

	tokens := te.login(t, "ADA", "correct-horse-1")

	p, err := te.ValidateAccessToken(tokens.AccessToken)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if p.AccountID != id || p.SessionID != tokens.SessionID || p.Username != "ada" {
		t.Fatalf("unexpected principal %+v", p)
	}

	sessions, err := te.ListSessions(context.Background(), id, tokens.SessionID)
	if err != nil {
		t.Fatalf("list sessions: %v", err)
	}
	if len(sessions) != 1 || !sessions[0].Current {
		t.Fatalf("unexpected sessions %+v", sessions)
	}
	if sessions[0].IPAddress != "203.0.113.5" || sessions[0].Browser != "Chrome" || sessions[0].OS != "Windows" {
		t.Fatalf("fingerprint not captured: %+v", sessions[0])
	}

	te.audit.waitFor(t, auditEventLoginSuccess)
}

func TestLoginFailuresAreUniformAndThrottled(t *testing.T) {
	te := newTestEngine(t, func(cfg *Config) {
		cfg.Security.MaxLoginAttempts = 3
	})
	te.register(t, "ada@example.com", "ada", "correct-horse-1")
	ctx := fingerprintCtx("198.51.100.7", "")

	if _, err := te.Login(context.Background(), "nobody@example.com", "correct-horse-1"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("unknown account: %v", err)
	}
	for i := 0; i < 3; i++ {
		if _, err := te.Login(ctx, "ada", "wrong-password"); !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("attempt %d: %v", i, err)
		}
	}
	if _, err := te.Login(ctx, "ada", "correct-horse-1"); !errors.Is(err, ErrTooManyAttempts) {
		t.Fatalf("expected throttle, got %v", err)
	}
	if got := te.MetricsSnapshot().Counters[MetricLoginRateLimited]; got == 0 {
		t.Fatal("rate limit counter not incremented")
	}
}

func TestBannedAccountCannotLogin(t *testing.T) {
	te := newTestEngine(t, nil)
	id := te.register(t, "ada@example.com", "ada", "correct-horse-1")
	tokens := te.login(t, "ada", "correct-horse-1")

	if err := te.accounts.SetBanned(id, true); err != nil {
		t.Fatalf("ban: %v", err)
	}
	if _, err := te.Login(context.Background(), "ada", "correct-horse-1"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("banned login: %v", err)
	}
	if _, err := te.Refresh(context.Background(), tokens.RefreshToken, tokens.SessionID); !errors.Is(err, ErrInvalidSession) {
		t.Fatalf("banned refresh: %v", err)
	}
}

func TestRefreshRotatesOnceAndReuseRevokes(t *testing.T) {
	te := newTestEngine(t, nil)
	te.register(t, "ada@example.com", "ada", "correct-horse-1")
	first := te.login(t, "ada", "correct-horse-1")
	ctx := context.Background()

	second, err := te.Refresh(ctx, first.RefreshToken, first.SessionID)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if second.SessionID != first.SessionID {
		t.Fatal("session id changed on refresh")
	}
	if second.RefreshToken == first.RefreshToken {
		t.Fatal("refresh token not rotated")
	}

	if _, err := te.Refresh(ctx, first.RefreshToken, first.SessionID); !errors.Is(err, ErrInvalidRefreshToken) {
		t.Fatalf("replay: expected invalid refresh token, got %v", err)
	}
	if _, err := te.Refresh(ctx, second.RefreshToken, second.SessionID); !errors.Is(err, ErrInvalidSession) {
		t.Fatalf("after reuse: expected invalid session, got %v", err)
	}

	ev := te.audit.waitFor(t, auditEventRefreshReuseDetected)
	if ev.Metadata["replayed"] != "true" || ev.Metadata["session_ip"] != "203.0.113.5" {
		t.Fatalf("unexpected reuse event %+v", ev)
	}
	if got := te.MetricsSnapshot().Counters[MetricRefreshReuseDetected]; got != 1 {
		t.Fatalf("reuse counter = %d, want 1", got)
	}
}

func TestRefreshConcurrencySingleWinner(t *testing.T) {
	te := newTestEngine(t, nil)
	te.register(t, "ada@example.com", "ada", "correct-horse-1")
	tokens := te.login(t, "ada", "correct-horse-1")

	const n = 16
	var wg sync.WaitGroup
	wg.Add(n)

	results := make(chan error, n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			_, err := te.Refresh(context.Background(), tokens.RefreshToken, tokens.SessionID)
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	success := 0
	fail := 0
	for err := range results {
		if err == nil {
			success++
			continue
		}
		if errors.Is(err, ErrInvalidRefreshToken) || errors.Is(err, ErrInvalidSession) {
			fail++
			continue
		}
		t.Fatalf("unexpected refresh error: %v", err)
	}

	if success != 1 {
		t.Fatalf("expected exactly one refresh success, got %d", success)
	}
	if fail != n-1 {
		t.Fatalf("expected %d refresh failures, got %d", n-1, fail)
	}
}

func TestLogoutAndLogoutAll(t *testing.T) {
	te := newTestEngine(t, nil)
	id := te.register(t, "ada@example.com", "ada", "correct-horse-1")
	a := te.login(t, "ada", "correct-horse-1")
	b := te.login(t, "ada", "correct-horse-1")
	c := te.login(t, "ada", "correct-horse-1")
	ctx := context.Background()

	if err := te.Logout(ctx, a.SessionID); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if err := te.Logout(ctx, a.SessionID); err != nil {
		t.Fatalf("second logout should succeed: %v", err)
	}
	if _, err := te.Refresh(ctx, a.RefreshToken, a.SessionID); !errors.Is(err, ErrInvalidSession) {
		t.Fatalf("refresh after logout: %v", err)
	}

	n, err := te.LogoutAll(ctx, id)
	if err != nil {
		t.Fatalf("logout all: %v", err)
	}
	if n != 2 {
		t.Fatalf("revoked %d sessions, want 2", n)
	}
	for _, tok := range []*Tokens{b, c} {
		if _, err := te.Refresh(ctx, tok.RefreshToken, tok.SessionID); !errors.Is(err, ErrInvalidSession) {
			t.Fatalf("refresh after logout all: %v", err)
		}
	}
}

func TestRevokeSessionChecksOwner(t *testing.T) {
	te := newTestEngine(t, nil)
	ada := te.register(t, "ada@example.com", "ada", "correct-horse-1")
	bob := te.register(t, "bob@example.com", "bob", "correct-horse-2")
	tokens := te.login(t, "ada", "correct-horse-1")
	ctx := context.Background()

	if err := te.RevokeSession(ctx, bob, tokens.SessionID); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("foreign revoke: %v", err)
	}
	if err := te.RevokeSession(ctx, ada, tokens.SessionID); err != nil {
		t.Fatalf("own revoke: %v", err)
	}
	sessions, err := te.ListSessions(ctx, ada, "")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(sessions) != 0 {
		t.Fatalf("expected no sessions, got %d", len(sessions))
	}
}

func TestValidateRejectsGarbage(t *testing.T) {
	te := newTestEngine(t, nil)
	for _, tok := range []string{"", "not-a-jwt", "a.b.c"} {
		if _, err := te.ValidateAccessToken(tok); !errors.Is(err, ErrInvalidAccessToken) {
			t.Fatalf("token %q: %v", tok, err)
		}
	}
	if got := te.MetricsSnapshot().Counters[MetricValidateFailure]; got != 3 {
		t.Fatalf("validate failure counter = %d, want 3", got)
	}
}

func TestBackendOutageIsNotACredentialFailure(t *testing.T) {
	te := newTestEngine(t, nil)
	te.register(t, "ada@example.com", "ada", "correct-horse-1")
	tokens := te.login(t, "ada", "correct-horse-1")
	te.mr.Close()

	_, err := te.Login(context.Background(), "ada", "correct-horse-1")
	if !errors.Is(err, ErrUnavailable) || errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("login during outage: %v", err)
	}
	_, err = te.Refresh(context.Background(), tokens.RefreshToken, tokens.SessionID)
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("refresh during outage: %v", err)
	}
	if _, err := te.ValidateAccessToken(tokens.AccessToken); err != nil {
		t.Fatalf("validation must not need redis: %v", err)
	}
}

func TestNilEngineIsNotReady(t *testing.T) {
	var e *Engine
	if _, err := e.Login(context.Background(), "a", "b"); !errors.Is(err, ErrEngineNotReady) {
		t.Fatalf("expected not ready, got %v", err)
	}
	if got := e.MetricsSnapshot(); len(got.Counters) != 0 {
		t.Fatal("nil engine snapshot should be empty")
	}
	e.Close()
}
