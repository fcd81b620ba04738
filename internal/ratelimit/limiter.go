package ratelimit

import "context"

// RateLimiter controls publish throughput per routing key.
type RateLimiter interface {
	Allow(ctx context.Context, key string) (bool, error)
	Wait(ctx context.Context, key string) error
}
