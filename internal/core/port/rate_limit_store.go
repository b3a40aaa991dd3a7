package port

import (
	"context"
	"time"
)

// RateLimitDecision reports the outcome of a rate limit check.
type RateLimitDecision struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

// RateLimitStore implements a sliding-window rate limit over a shared backend.
type RateLimitStore interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (RateLimitDecision, error)
}
