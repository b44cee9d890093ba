// Package internal holds private helpers: random identifiers, opaque refresh
// tokens and their digests, and verification-code generation.
//
// Sub-packages: audit (async event dispatch), limiters (attempt throttling),
// metrics (counters and histograms), rate (login throttling), stores
// (ephemeral verification codes).
package internal
