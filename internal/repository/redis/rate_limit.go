package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/stagepass/marketplace/internal/core/port"
)

// RateLimitRepository implements a sliding-window rate limit over Redis
// sorted sets. Each attempt is a member scored by its nanosecond timestamp.
type RateLimitRepository struct {
	client *redis.Client
	prefix string
}

// NewRateLimitRepository constructs a repository using the provided Redis client.
func NewRateLimitRepository(client *redis.Client, prefix string) *RateLimitRepository {
	return &RateLimitRepository{client: client, prefix: prefix}
}

// Allow records the attempt and reports whether it fits inside the window.
// Denied attempts are still recorded so that hammering extends the lockout.
func (r *RateLimitRepository) Allow(ctx context.Context, key string, limit int, window time.Duration) (port.RateLimitDecision, error) {
	if limit <= 0 {
		return port.RateLimitDecision{}, errors.New("limit must be positive")
	}
	if window <= 0 {
		return port.RateLimitDecision{}, errors.New("window must be positive")
	}

	now := time.Now()
	fullKey := r.key(key)
	threshold := fmt.Sprintf("%d", now.Add(-window).UnixNano())

	pipe := r.client.TxPipeline()
	pipe.ZRemRangeByScore(ctx, fullKey, "-inf", threshold)
	countCmd := pipe.ZCard(ctx, fullKey)
	pipe.ZAdd(ctx, fullKey, redis.Z{Score: float64(now.UnixNano()), Member: now.UnixNano()})
	pipe.Expire(ctx, fullKey, window)

	if _, err := pipe.Exec(ctx); err != nil {
		return port.RateLimitDecision{}, fmt.Errorf("redis rate limit pipeline: %w", err)
	}

	count := int(countCmd.Val())
	if count < limit {
		return port.RateLimitDecision{
			Allowed:   true,
			Remaining: limit - count - 1,
		}, nil
	}

	retryAfter, err := r.retryAfter(ctx, fullKey, window, now)
	if err != nil {
		return port.RateLimitDecision{}, err
	}

	return port.RateLimitDecision{
		Allowed:    false,
		Remaining:  0,
		RetryAfter: retryAfter,
	}, nil
}

// retryAfter derives how long until the oldest in-window attempt ages out.
func (r *RateLimitRepository) retryAfter(ctx context.Context, fullKey string, window time.Duration, now time.Time) (time.Duration, error) {
	values, err := r.client.ZRangeByScore(ctx, fullKey, &redis.ZRangeBy{
		Min:    fmt.Sprintf("%d", now.Add(-window).UnixNano()),
		Max:    fmt.Sprintf("%d", now.UnixNano()),
		Offset: 0,
		Count:  1,
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("redis zrangebyscore: %w", err)
	}

	if len(values) == 0 {
		return window, nil
	}

	ts, err := strconv.ParseInt(values[0], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse attempt timestamp: %w", err)
	}

	oldest := time.Unix(0, ts)
	retryAfter := oldest.Add(window).Sub(now)
	if retryAfter < 0 {
		retryAfter = 0
	}

	return retryAfter, nil
}

func (r *RateLimitRepository) key(identifier string) string {
	if r.prefix == "" {
		return identifier
	}
	return fmt.Sprintf("%s:%s", r.prefix, identifier)
}

var _ port.RateLimitStore = (*RateLimitRepository)(nil)
