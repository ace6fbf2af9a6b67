package rate

import "errors"

var (
	// ErrRateLimited is returned once a principal exceeds its refresh budget.
	ErrRateLimited = errors.New("rate limited")
	// ErrRedisUnavailable wraps Redis failures from the counter store.
	ErrRedisUnavailable = errors.New("redis unavailable")
)
