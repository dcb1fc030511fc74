package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/cassiomorais/marketplace/internal/rules"
	"github.com/redis/go-redis/v9"
)

// Fixed-window counter. Returns the count after increment and the window's
// remaining lifetime in milliseconds.
var fixedWindowScript = redis.NewScript(`
	local count = redis.call("incr", KEYS[1])
	if count == 1 then
		redis.call("pexpire", KEYS[1], ARGV[1])
	end
	local ttl = redis.call("pttl", KEYS[1])
	if ttl < 0 then
		redis.call("pexpire", KEYS[1], ARGV[1])
		ttl = tonumber(ARGV[1])
	end
	return {count, ttl}
`)

// RateLimiter is a fixed-window limiter shared by every API instance. It
// satisfies the service layer's RateLimiter port with the same semantics as
// rules.MemoryLimiter.
type RateLimiter struct {
	client redis.Cmdable
	prefix string
}

func NewRateLimiter(client redis.Cmdable) *RateLimiter {
	return &RateLimiter{client: client, prefix: "ratelimit:"}
}

func (l *RateLimiter) Allow(ctx context.Context, key string, limit rules.Limit) (rules.Decision, error) {
	if limit.Max <= 0 {
		return rules.Decision{Allowed: true}, nil
	}

	res, err := fixedWindowScript.Run(ctx, l.client, []string{l.prefix + key}, limit.Window.Milliseconds()).Int64Slice()
	if err != nil {
		return rules.Decision{}, fmt.Errorf("rate limit %s: %w", key, err)
	}
	if len(res) != 2 {
		return rules.Decision{}, fmt.Errorf("rate limit %s: unexpected script reply %v", key, res)
	}

	count, ttl := int(res[0]), time.Duration(res[1])*time.Millisecond
	return rules.Decision{
		Allowed:   count <= limit.Max,
		Remaining: max(limit.Max-count, 0),
		ResetAt:   time.Now().Add(ttl),
	}, nil
}
