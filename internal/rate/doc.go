// Package rate throttles refresh attempts per principal.
//
// # Window semantics
//
// Fixed-window counters: the first hit in a window starts the cooldown, and
// attempts beyond MaxAttempts fail with ErrRateLimited until it elapses.
// The Redis limiter uses INCR + conditional EXPIRE under the key prefix
// "rr:"; the memory limiter keeps the same counters in a map.
package rate
