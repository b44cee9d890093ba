// Package rate throttles failed logins and refresh bursts.
//
// Fixed-window counters: INCR plus EXPIRE on the first hit. Keys live under
// the configured prefix:
//   - rl:login:{identifier}
//   - rl:login-ip:{ip}
//   - rl:refresh:{sessionID}
package rate
