// Package stores keeps ephemeral verification codes in Redis.
//
// Each entry lives under {prefix}{purpose}:{subject} as a hash holding the
// code digest and an optional payload, with a purpose-specific TTL. Consume
// is a single Lua script: a code matches at most once, and a wrong guess
// neither consumes the entry nor extends its lifetime. Attempt throttling is
// the caller's job (see internal/limiters).
package stores
