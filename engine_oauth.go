package hackauth

import (
	"context"
	"errors"
	"strings"

	"github.com/hackforge/hackauth/autherr"
	"github.com/hackforge/hackauth/internal"
	"github.com/hackforge/hackauth/internal/stores"
)

// OAuthStart is a pending provider round trip. URL carries State to the
// provider; Binding must stay with the browser that started the flow (an
// HttpOnly cookie) and be presented again to [Engine.OAuthLogin].
type OAuthStart struct {
	URL     string
	State   string
	Binding string
}

// OAuthProviders lists the configured identity providers.
func (e *Engine) OAuthProviders() []string {
	if e == nil || e.providers == nil {
		return nil
	}
	return e.providers.Names()
}

// OAuthBegin starts a provider login. The state is stored for ten minutes
// with the provider name and the digest of a fresh browser binding, and is
// accepted once by [Engine.OAuthLogin] together with that binding.
func (e *Engine) OAuthBegin(ctx context.Context, provider string) (*OAuthStart, error) {
	if e == nil || e.providers == nil {
		return nil, ErrEngineNotReady
	}
	p, err := e.providers.Lookup(provider)
	if err != nil {
		return nil, err
	}
	state, err := newCode(stores.PurposeOAuthState)
	if err != nil {
		return nil, err
	}
	binding, err := newCode(stores.PurposeOAuthState)
	if err != nil {
		return nil, err
	}
	payload := p.Name() + oauthStateSep + internal.HashToken(binding)
	if err := e.codes.Put(ctx, stores.PurposeOAuthState, state, state, payload, stores.PurposeOAuthState.DefaultTTL()); err != nil {
		return nil, err
	}
	return &OAuthStart{URL: p.AuthCodeURL(state), State: state, Binding: binding}, nil
}

const oauthStateSep = "|"

// OAuthLogin completes the provider callback: it checks that state was
// issued for provider to the browser holding binding, exchanges code for the
// external profile, resolves it to an account (existing link, trusted
// email match or a new account) and opens a session. Accounts with
// two-factor login enabled get a challenge instead of tokens.
func (e *Engine) OAuthLogin(ctx context.Context, provider, code, state, binding string) (*LoginResult, error) {
	if e == nil || e.federation == nil {
		return nil, ErrEngineNotReady
	}
	result, err := e.oauthLogin(ctx, provider, code, state, binding)
	if err != nil {
		e.metricInc(MetricOAuthLoginFailure)
		e.emitAudit(ctx, auditEventOAuthLoginFailure, false, "", "", err, func() map[string]string {
			return map[string]string{"provider": strings.ToLower(provider)}
		})
		return nil, err
	}
	return result, nil
}

func (e *Engine) oauthLogin(ctx context.Context, provider, code, state, binding string) (*LoginResult, error) {
	p, err := e.providers.Lookup(provider)
	if err != nil {
		return nil, err
	}
	state = strings.TrimSpace(state)
	if state == "" {
		return nil, autherr.ErrInvalidOAuthState
	}
	payload, err := e.codes.Consume(ctx, stores.PurposeOAuthState, state, state)
	if err != nil {
		if errors.Is(err, autherr.ErrCodeNotFound) || errors.Is(err, autherr.ErrCodeMismatch) {
			return nil, autherr.ErrInvalidOAuthState
		}
		return nil, err
	}
	issuedFor, bindingHash, ok := strings.Cut(payload, oauthStateSep)
	if !ok || !strings.EqualFold(issuedFor, p.Name()) {
		return nil, autherr.ErrInvalidOAuthState
	}
	binding = strings.TrimSpace(binding)
	if binding == "" || !internal.EqualHashes(bindingHash, internal.HashToken(binding)) {
		return nil, autherr.ErrInvalidOAuthState
	}
	if strings.TrimSpace(code) == "" {
		return nil, autherr.ErrInvalidCredentials
	}

	profile, err := p.Exchange(ctx, code)
	if err != nil {
		e.logger.WithError(err).WithField("provider", p.Name()).Warn("oauth exchange failed")
		if errors.Is(err, autherr.ErrUnavailable) {
			return nil, err
		}
		return nil, autherr.ErrInvalidCredentials
	}
	profile.Provider = p.Name()

	resolved, err := e.federation.ValidateExternalProfile(ctx, *profile)
	if err != nil {
		return nil, err
	}
	acct := resolved.Account
	switch {
	case resolved.Created:
		e.metricInc(MetricOAuthAccountCreated)
	case resolved.Linked:
		e.metricInc(MetricOAuthAccountLinked)
	}

	var result *LoginResult
	if acct.TwoFactorEnabled {
		result, err = e.startTwoFactorLogin(ctx, acct)
	} else {
		result, err = e.openSession(ctx, acct)
	}
	if err != nil {
		return nil, err
	}
	result.Created = resolved.Created
	result.Linked = resolved.Linked

	e.metricInc(MetricOAuthLoginSuccess)
	e.emitAudit(ctx, auditEventOAuthLoginSuccess, true, acct.ID, sessionIDOf(result), nil, func() map[string]string {
		return map[string]string{
			"provider": p.Name(),
			"created":  boolString(resolved.Created),
			"linked":   boolString(resolved.Linked),
		}
	})
	return result, nil
}

func sessionIDOf(r *LoginResult) string {
	if r == nil || r.Tokens == nil {
		return ""
	}
	return r.Tokens.SessionID
}
