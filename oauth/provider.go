// Package oauth federates external identity-provider profiles onto local
// accounts.
package oauth

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/hackforge/hackauth/autherr"
)

// Profile is the identity an external provider vouches for.
type Profile struct {
	Provider      string
	ExternalID    string
	Email         string
	EmailVerified bool
	DisplayName   string
	AvatarURL     string
	Login         string
}

// Provider runs the authorization-code flow against one identity provider.
type Provider interface {
	Name() string
	AuthCodeURL(state string) string
	Exchange(ctx context.Context, code string) (*Profile, error)
}

type registration struct {
	provider   Provider
	trustEmail bool
}

// Registry maps provider names to providers and records which providers are
// trusted to assert email ownership.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]registration
}

func NewRegistry() *Registry {
	return &Registry{providers: make(map[string]registration)}
}

// Register adds p under p.Name(), replacing any provider of the same name.
// trustEmail allows a verified provider email to link onto an existing
// account with that email.
func (r *Registry) Register(p Provider, trustEmail bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[strings.ToLower(p.Name())] = registration{provider: p, trustEmail: trustEmail}
}

// Lookup returns the provider registered under name, or
// autherr.ErrUnknownProvider.
func (r *Registry) Lookup(name string) (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reg, ok := r.providers[strings.ToLower(name)]
	if !ok {
		return nil, autherr.ErrUnknownProvider
	}
	return reg.provider, nil
}

// TrustsEmail reports whether name is registered with email trust.
func (r *Registry) TrustsEmail(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.providers[strings.ToLower(name)].trustEmail
}

// Names lists registered provider names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.providers))
	for name := range r.providers {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
