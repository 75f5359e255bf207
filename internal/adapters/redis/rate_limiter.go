package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/tensrai/dashboard-api/internal/ports"
)

// fixedWindowScript increments the window counter and starts the window on the first hit.
// It returns the current count and the remaining window in milliseconds.
var fixedWindowScript = redis.NewScript(`
local current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
local ttl = redis.call("PTTL", KEYS[1])
return {current, ttl}
`)

// RateLimiter is a fixed-window request counter shared by every API instance.
type RateLimiter struct {
	client redis.UniversalClient
	prefix string
	now    func() time.Time
}

// NewRateLimiter creates a Redis-backed rate limiter. Keys are stored under prefix + "rl:".
func NewRateLimiter(client redis.UniversalClient, prefix string) *RateLimiter {
	return &RateLimiter{client: client, prefix: prefix + "rl:", now: time.Now}
}

var _ ports.RateLimiter = (*RateLimiter)(nil)

// Allow counts one hit against key and reports whether it is within limit for the current window.
func (l *RateLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (ports.RateDecision, error) {
	if limit <= 0 {
		limit = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	if key == "" {
		return ports.RateDecision{}, errors.New("rate limit key cannot be empty")
	}

	res, err := fixedWindowScript.Run(ctx, l.client, []string{l.prefix + key}, window.Milliseconds()).Result()
	if err != nil {
		return ports.RateDecision{}, fmt.Errorf("rate limit script: %w", err)
	}
	vals, ok := res.([]any)
	if !ok || len(vals) < 2 {
		return ports.RateDecision{}, fmt.Errorf("rate limit script: unexpected reply %T", res)
	}

	count, _ := vals[0].(int64)
	ttlMs, _ := vals[1].(int64)
	if ttlMs < 0 {
		ttlMs = window.Milliseconds()
	}

	return ports.RateDecision{
		Allowed:   count <= int64(limit),
		Count:     count,
		Limit:     limit,
		Remaining: max(0, limit-int(count)),
		ResetAt:   l.now().UTC().Add(time.Duration(ttlMs) * time.Millisecond),
	}, nil
}
