package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/hackforge/hackauth/autherr"
	"github.com/hackforge/hackauth/token"
)

// Validator turns a bearer credential into a principal.
// *token.Service implements it.
type Validator interface {
	Validate(ctx context.Context, credential string) (*token.Principal, error)
}

// SessionValidator also confirms that the token's session is still live.
// *token.Service implements it.
type SessionValidator interface {
	ValidateSession(ctx context.Context, credential string) (*token.Principal, error)
}

// AuthState is the guard's verdict for a request: either [Authenticated] or
// [Anonymous]. No other implementations exist.
type AuthState interface {
	authState()
}

// Authenticated carries the principal of a request with a valid token.
type Authenticated struct {
	Principal *token.Principal
}

// Anonymous marks a request without a valid token on an optional route.
type Anonymous struct{}

func (Authenticated) authState() {}
func (Anonymous) authState()     {}

type authStateContextKey struct{}

// WithState stores state in ctx.
func WithState(ctx context.Context, state AuthState) context.Context {
	return context.WithValue(ctx, authStateContextKey{}, state)
}

// StateFromContext returns the guard verdict stored in ctx, or [Anonymous]
// when no guard ran.
func StateFromContext(ctx context.Context) AuthState {
	if state, ok := ctx.Value(authStateContextKey{}).(AuthState); ok && state != nil {
		return state
	}
	return Anonymous{}
}

// PrincipalFromContext returns the authenticated principal, if any.
func PrincipalFromContext(ctx context.Context) (*token.Principal, bool) {
	if a, ok := StateFromContext(ctx).(Authenticated); ok {
		return a.Principal, true
	}
	return nil, false
}

// Require rejects requests without a valid bearer token with 401 before the
// wrapped handler runs.
func Require(v Validator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			state := resolve(r.Context(), v, r.Header.Get("Authorization"))
			if _, ok := state.(Authenticated); !ok {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithState(r.Context(), state)))
		})
	}
}

// RequireStrict is [Require] with a session lookup on every request, so a
// logged-out or revoked session is rejected at once. A backend failure
// answers 503 instead of 401.
func RequireStrict(v SessionValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			state, err := resolveStrict(r.Context(), v, r.Header.Get("Authorization"))
			if err != nil {
				http.Error(w, "service temporarily unavailable", http.StatusServiceUnavailable)
				return
			}
			if _, ok := state.(Authenticated); !ok {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithState(r.Context(), state)))
		})
	}
}

// Optional always calls the wrapped handler, with [Anonymous] state when the
// token is missing or invalid.
func Optional(v Validator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			state := resolve(r.Context(), v, r.Header.Get("Authorization"))
			next.ServeHTTP(w, r.WithContext(WithState(r.Context(), state)))
		})
	}
}

func resolve(ctx context.Context, v Validator, header string) AuthState {
	if v == nil {
		return Anonymous{}
	}
	credential, ok := bearerToken(header)
	if !ok {
		return Anonymous{}
	}
	p, err := v.Validate(ctx, credential)
	if err != nil || p == nil {
		return Anonymous{}
	}
	return Authenticated{Principal: p}
}

// resolveStrict returns an error only for backend failures; every credential
// failure is [Anonymous].
func resolveStrict(ctx context.Context, v SessionValidator, header string) (AuthState, error) {
	if v == nil {
		return Anonymous{}, nil
	}
	credential, ok := bearerToken(header)
	if !ok {
		return Anonymous{}, nil
	}
	p, err := v.ValidateSession(ctx, credential)
	switch {
	case err == nil && p != nil:
		return Authenticated{Principal: p}, nil
	case errors.Is(err, autherr.ErrUnavailable):
		return nil, err
	default:
		return Anonymous{}, nil
	}
}

func bearerToken(value string) (string, bool) {
	const bearer = "bearer "
	if len(value) < len(bearer) || !strings.EqualFold(value[:len(bearer)], bearer) {
		return "", false
	}

	token := strings.TrimSpace(value[len(bearer):])
	if token == "" {
		return "", false
	}

	return token, true
}
