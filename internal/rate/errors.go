package rate

import "errors"

var (
	// ErrRateLimited is returned when a key is over its window budget.
	ErrRateLimited = errors.New("rate limited")
	// ErrRedisUnavailable wraps backend failures. Callers must not treat it
	// as an allowed request.
	ErrRedisUnavailable = errors.New("redis unavailable")
)
