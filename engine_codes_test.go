package hackauth

import (
	"context"
	"errors"
	"testing"

	"github.com/hackforge/hackauth/notify"
)

func TestEmailVerificationCodeWorksOnce(t *testing.T) {
	te := newTestEngine(t, nil)
	id := te.register(t, "ada@example.com", "ada", "correct-horse-1")
	ctx := context.Background()

	code := te.mail.lastCode(t, te.Engine, notify.KindEmailVerification)
	if len(code) != numericCodeDigits {
		t.Fatalf("code %q is not %d digits", code, numericCodeDigits)
	}

	if err := te.ConfirmEmailVerification(ctx, id, "000000x"); !errors.Is(err, ErrInvalidCode) {
		t.Fatalf("wrong code: %v", err)
	}
	if err := te.ConfirmEmailVerification(ctx, id, code); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if err := te.ConfirmEmailVerification(ctx, id, code); !errors.Is(err, ErrInvalidCode) {
		t.Fatalf("reused code: %v", err)
	}

	pub, err := te.Account(ctx, id)
	if err != nil {
		t.Fatalf("account: %v", err)
	}
	if !pub.EmailVerified {
		t.Fatal("email not marked verified")
	}

	sent := te.mail.count()
	if err := te.RequestEmailVerification(ctx, id); err != nil {
		t.Fatalf("request on verified account: %v", err)
	}
	te.notifier.Wait()
	if te.mail.count() != sent {
		t.Fatal("verified account should not get another code")
	}
}

func TestRegisterWithoutVerificationMail(t *testing.T) {
	te := newTestEngine(t, func(cfg *Config) {
		cfg.EmailVerification.SendOnRegister = false
	})
	te.register(t, "ada@example.com", "ada", "correct-horse-1")
	te.notifier.Wait()
	if n := te.mail.count(); n != 0 {
		t.Fatalf("sent %d messages, want 0", n)
	}
}

func TestNewCodeReplacesOldOne(t *testing.T) {
	te := newTestEngine(t, nil)
	id := te.register(t, "ada@example.com", "ada", "correct-horse-1")
	ctx := context.Background()

	first := te.mail.lastCode(t, te.Engine, notify.KindEmailVerification)
	if err := te.RequestEmailVerification(ctx, id); err != nil {
		t.Fatalf("request: %v", err)
	}
	second := te.mail.lastCode(t, te.Engine, notify.KindEmailVerification)
	if first == second {
		t.Skip("codes collided")
	}
	if err := te.ConfirmEmailVerification(ctx, id, first); !errors.Is(err, ErrInvalidCode) {
		t.Fatalf("superseded code: %v", err)
	}
	if err := te.ConfirmEmailVerification(ctx, id, second); err != nil {
		t.Fatalf("current code: %v", err)
	}
}

func TestCodeRequestsAreThrottled(t *testing.T) {
	te := newTestEngine(t, func(cfg *Config) {
		cfg.Security.MaxCodeRequests = 2
	})
	id := te.register(t, "ada@example.com", "ada", "correct-horse-1")
	ctx := context.Background()

	if err := te.RequestEmailVerification(ctx, id); err != nil {
		t.Fatalf("second request: %v", err)
	}
	if err := te.RequestEmailVerification(ctx, id); !errors.Is(err, ErrTooManyAttempts) {
		t.Fatalf("third request: %v", err)
	}
}

func TestCodeAttemptsExceededBurnsCode(t *testing.T) {
	te := newTestEngine(t, func(cfg *Config) {
		cfg.Security.MaxCodeAttempts = 3
	})
	id := te.register(t, "ada@example.com", "ada", "correct-horse-1")
	ctx := context.Background()
	code := te.mail.lastCode(t, te.Engine, notify.KindEmailVerification)

	for i := 0; i < 3; i++ {
		if err := te.ConfirmEmailVerification(ctx, id, "wrong"); !errors.Is(err, ErrInvalidCode) {
			t.Fatalf("guess %d: %v", i, err)
		}
	}
	if err := te.ConfirmEmailVerification(ctx, id, code); !errors.Is(err, ErrTooManyAttempts) {
		t.Fatalf("expected attempts exceeded, got %v", err)
	}
	te.audit.waitFor(t, auditEventCodeAttemptsExceeded)

	if err := te.RequestEmailVerification(ctx, id); err != nil {
		t.Fatalf("new request: %v", err)
	}
	if err := te.ConfirmEmailVerification(ctx, id, code); !errors.Is(err, ErrInvalidCode) {
		t.Fatalf("burned code accepted: %v", err)
	}
	fresh := te.mail.lastCode(t, te.Engine, notify.KindEmailVerification)
	if err := te.ConfirmEmailVerification(ctx, id, fresh); err != nil {
		t.Fatalf("fresh code: %v", err)
	}
}

func TestPasswordResetFlow(t *testing.T) {
	te := newTestEngine(t, nil)
	te.register(t, "ada@example.com", "ada", "correct-horse-1")
	a := te.login(t, "ada", "correct-horse-1")
	ctx := context.Background()

	if err := te.RequestPasswordReset(ctx, " Ada@Example.com "); err != nil {
		t.Fatalf("request: %v", err)
	}
	code := te.mail.lastCode(t, te.Engine, notify.KindPasswordReset)
	if len(code) != opaqueCodeLength {
		t.Fatalf("reset code length = %d", len(code))
	}

	if err := te.ConfirmPasswordReset(ctx, "ada@example.com", code, "short"); !errors.Is(err, ErrPasswordPolicy) {
		t.Fatalf("weak password: %v", err)
	}
	if err := te.ConfirmPasswordReset(ctx, "ada@example.com", code, "brand-new-secret-9"); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if err := te.ConfirmPasswordReset(ctx, "ada@example.com", code, "another-secret-9"); !errors.Is(err, ErrInvalidCode) {
		t.Fatalf("reused reset code: %v", err)
	}

	if _, err := te.Refresh(ctx, a.RefreshToken, a.SessionID); !errors.Is(err, ErrInvalidSession) {
		t.Fatalf("old session survived reset: %v", err)
	}
	if _, err := te.Login(ctx, "ada", "correct-horse-1"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("old password still works: %v", err)
	}
	te.login(t, "ada", "brand-new-secret-9")
}

func TestPasswordResetDoesNotRevealAccounts(t *testing.T) {
	te := newTestEngine(t, func(cfg *Config) {
		cfg.EmailVerification.SendOnRegister = false
	})
	if err := te.RequestPasswordReset(context.Background(), "nobody@example.com"); err != nil {
		t.Fatalf("unknown email: %v", err)
	}
	if err := te.RequestPasswordReset(context.Background(), ""); err != nil {
		t.Fatalf("empty email: %v", err)
	}
	te.notifier.Wait()
	if n := te.mail.count(); n != 0 {
		t.Fatalf("sent %d messages for unknown accounts", n)
	}
}

func TestTwoFactorLifecycle(t *testing.T) {
	te := newTestEngine(t, nil)
	id := te.register(t, "ada@example.com", "ada", "correct-horse-1")
	ctx := fingerprintCtx("203.0.113.5", chromeWindowsUA)

	if err := te.RequestTwoFactorEnable(ctx, id); err != nil {
		t.Fatalf("request enable: %v", err)
	}
	enableCode := te.mail.lastCode(t, te.Engine, notify.KindTwoFactor)
	if err := te.ConfirmTwoFactorEnable(ctx, id, enableCode); err != nil {
		t.Fatalf("confirm enable: %v", err)
	}

	res, err := te.Login(ctx, "ada", "correct-horse-1")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if !res.TwoFactorRequired || res.Tokens != nil || res.Challenge == "" {
		t.Fatalf("expected challenge, got %+v", res)
	}
	loginCode := te.mail.lastCode(t, te.Engine, notify.KindTwoFactor)

	if _, err := te.ConfirmLoginTwoFactor(ctx, res.Challenge, "nope"); !errors.Is(err, ErrInvalidCode) {
		t.Fatalf("wrong 2fa code: %v", err)
	}
	if _, err := te.ConfirmLoginTwoFactor(ctx, id, loginCode); !errors.Is(err, ErrInvalidCode) {
		t.Fatalf("challenge must not be the account id: %v", err)
	}
	done, err := te.ConfirmLoginTwoFactor(ctx, res.Challenge, loginCode)
	if err != nil {
		t.Fatalf("confirm login: %v", err)
	}
	if done.Tokens == nil || done.Account.ID != id {
		t.Fatalf("unexpected result %+v", done)
	}
	if _, err := te.ConfirmLoginTwoFactor(ctx, res.Challenge, loginCode); !errors.Is(err, ErrInvalidCode) {
		t.Fatalf("challenge reused: %v", err)
	}

	if err := te.DisableTwoFactor(ctx, id, "wrong-password"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("disable with wrong password: %v", err)
	}
	if err := te.DisableTwoFactor(ctx, id, "correct-horse-1"); err != nil {
		t.Fatalf("disable: %v", err)
	}
	te.login(t, "ada", "correct-horse-1")
}

func TestTwoFactorEnableCodeCannotCompleteLogin(t *testing.T) {
	te := newTestEngine(t, nil)
	id := te.register(t, "ada@example.com", "ada", "correct-horse-1")
	ctx := context.Background()

	if err := te.RequestTwoFactorEnable(ctx, id); err != nil {
		t.Fatalf("request enable: %v", err)
	}
	enableCode := te.mail.lastCode(t, te.Engine, notify.KindTwoFactor)

	res, err := te.ConfirmLoginTwoFactor(ctx, id, enableCode)
	if !errors.Is(err, ErrInvalidCode) || res != nil {
		t.Fatalf("enable code opened a session: res=%+v err=%v", res, err)
	}
	if err := te.ConfirmTwoFactorEnable(ctx, id, enableCode); err != nil {
		t.Fatalf("enable code must still confirm: %v", err)
	}
}

func TestTwoFactorLoginChallengesAreThrottledPerAccount(t *testing.T) {
	te := newTestEngine(t, func(cfg *Config) {
		cfg.Security.MaxCodeRequests = 2
	})
	id := te.register(t, "ada@example.com", "ada", "correct-horse-1")
	ctx := context.Background()

	if err := te.RequestTwoFactorEnable(ctx, id); err != nil {
		t.Fatalf("request enable: %v", err)
	}
	if err := te.ConfirmTwoFactorEnable(ctx, id, te.mail.lastCode(t, te.Engine, notify.KindTwoFactor)); err != nil {
		t.Fatalf("confirm enable: %v", err)
	}

	for i := 0; i < 2; i++ {
		res, err := te.Login(ctx, "ada", "correct-horse-1")
		if err != nil || !res.TwoFactorRequired {
			t.Fatalf("login %d: res=%+v err=%v", i, res, err)
		}
	}
	te.Flush()
	sent := te.mail.count()

	if _, err := te.Login(ctx, "ada", "correct-horse-1"); !errors.Is(err, ErrTooManyAttempts) {
		t.Fatalf("third challenge: %v", err)
	}
	te.Flush()
	if got := te.mail.count(); got != sent {
		t.Fatalf("throttled login still mailed a code: %d -> %d", sent, got)
	}
}

func TestAccountDisableRevokesSessions(t *testing.T) {
	te := newTestEngine(t, nil)
	id := te.register(t, "ada@example.com", "ada", "correct-horse-1")
	tokens := te.login(t, "ada", "correct-horse-1")
	ctx := context.Background()

	if err := te.RequestAccountDisable(ctx, id); err != nil {
		t.Fatalf("request disable: %v", err)
	}
	code := te.mail.lastCode(t, te.Engine, notify.KindAccountDisable)
	if err := te.ConfirmAccountDisable(ctx, id, "bogus"); !errors.Is(err, ErrInvalidCode) {
		t.Fatalf("wrong code: %v", err)
	}
	if err := te.ConfirmAccountDisable(ctx, id, code); err != nil {
		t.Fatalf("confirm disable: %v", err)
	}

	if _, err := te.Refresh(ctx, tokens.RefreshToken, tokens.SessionID); !errors.Is(err, ErrInvalidSession) {
		t.Fatalf("refresh after disable: %v", err)
	}
	if _, err := te.Login(ctx, "ada", "correct-horse-1"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("login after disable: %v", err)
	}
	if err := te.RequestAccountDisable(ctx, id); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("request on disabled account: %v", err)
	}
	te.audit.waitFor(t, auditEventAccountDisabled)
}

func TestChangePasswordRequiresCurrent(t *testing.T) {
	te := newTestEngine(t, nil)
	id := te.register(t, "ada@example.com", "ada", "correct-horse-1")
	ctx := context.Background()

	if err := te.ChangePassword(ctx, id, "wrong", "brand-new-secret-9"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("wrong current password: %v", err)
	}
	if err := te.ChangePassword(ctx, id, "correct-horse-1", "brand-new-secret-9"); err != nil {
		t.Fatalf("change: %v", err)
	}
	te.login(t, "ada", "brand-new-secret-9")
}
