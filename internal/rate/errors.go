package rate

import "errors"

var (
	// ErrRateLimited reports an exhausted attempt budget.
	ErrRateLimited = errors.New("rate limited")
	// ErrRedisUnavailable reports a failed counter read or write.
	ErrRedisUnavailable = errors.New("redis unavailable")
)
