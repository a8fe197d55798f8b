// Package ratelimit builds the fixed-window request limiter keyed by
// client address.
//
// A key's window opens with its first request and lasts for the configured
// length. Every request in the window increments the counter; once the
// counter passes the maximum the request is refused. When the window
// expires the counter starts again from zero. Counting is done by
// ulule/limiter, in process memory or in Redis.
package ratelimit

import (
	"errors"
	"time"

	"github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"
)

// Prefix namespaces the counter keys.
const Prefix = "students-api:ratelimit"

// New returns a limiter admitting limit requests per window.
func New(store limiter.Store, limit int, window time.Duration) (*limiter.Limiter, error) {
	if store == nil {
		return nil, errors.New("ratelimit: nil store")
	}
	if limit <= 0 || window <= 0 {
		return nil, errors.New("ratelimit: limit and window must be positive")
	}

	rate := limiter.Rate{Period: window, Limit: int64(limit)}
	return limiter.New(store, rate), nil
}

// NewMemoryStore keeps counters in process memory. It is the default store
// for a single replica; expired windows are dropped by a background sweep.
func NewMemoryStore() limiter.Store {
	return memory.NewStoreWithOptions(limiter.StoreOptions{
		Prefix:          Prefix,
		CleanUpInterval: limiter.DefaultCleanUpInterval,
	})
}
