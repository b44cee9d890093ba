// Package limiters throttles verification-code guesses and issuance.
//
// Counters are Redis fixed windows (INCR, EXPIRE on first hit). Exceeding a
// budget yields autherr.ErrTooManyAttempts; deciding what happens next, such
// as burning the code, is left to the caller.
package limiters
