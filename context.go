package hackauth

import (
	"context"

	"github.com/hackforge/hackauth/fingerprint"
)

type fingerprintContextKey struct{}

// WithFingerprint attaches the caller's request fingerprint to ctx. The Engine
// snapshots it into new sessions, login throttling (by IP) and audit events.
//
// The HTTP adapter calls this once per request with [fingerprint.FromRequest].
func WithFingerprint(ctx context.Context, fp fingerprint.Fingerprint) context.Context {
	return context.WithValue(ctx, fingerprintContextKey{}, fp)
}

// FingerprintFromContext returns the fingerprint attached with
// [WithFingerprint], or the zero value.
func FingerprintFromContext(ctx context.Context) fingerprint.Fingerprint {
	if ctx == nil {
		return fingerprint.Fingerprint{}
	}
	fp, _ := ctx.Value(fingerprintContextKey{}).(fingerprint.Fingerprint)
	return fp
}

func clientIPFromContext(ctx context.Context) string {
	return FingerprintFromContext(ctx).IPAddress
}
