package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dermascan/dermascan/internal/model"
)

// rateLimitIPPrefix is the Redis key prefix for per-client analyze limits.
const rateLimitIPPrefix = "ratelimit:analyze:ip:"

// tokenBucketScript is a Lua script implementing the token bucket algorithm.
// Refill and consumption happen atomically. Time is in milliseconds so that
// sub-second refill at low per-minute rates is not lost to rounding.
var tokenBucketScript = redis.NewScript(`
	local key = KEYS[1]
	local rate = tonumber(ARGV[1])      -- tokens per millisecond
	local burst = tonumber(ARGV[2])     -- max tokens (bucket capacity)
	local now = tonumber(ARGV[3])       -- current time in ms
	local ttl = tonumber(ARGV[4])       -- TTL in seconds

	local data = redis.call('HMGET', key, 'tokens', 'last_update')
	local tokens = tonumber(data[1]) or burst
	local last_update = tonumber(data[2]) or now

	local elapsed = math.max(0, now - last_update)
	tokens = math.min(burst, tokens + (elapsed * rate))

	local allowed = 0
	local retry_after = 0

	if tokens >= 1 then
		tokens = tokens - 1
		allowed = 1
	else
		retry_after = math.ceil((1 - tokens) / rate)
	end

	redis.call('HSET', key, 'tokens', tostring(tokens), 'last_update', now)
	redis.call('EXPIRE', key, ttl)

	return {allowed, retry_after, math.floor(tokens)}
`)

// CheckIPRateLimit consumes one token from the client's bucket.
// The IP is hashed so raw addresses are never stored.
//
// On Redis failure the request is allowed and the error is returned
// alongside the result so the caller can log it.
func (c *Cache) CheckIPRateLimit(ctx context.Context, ip string, ratePerMinute, burst int) (*model.RateLimitResult, error) {
	if ratePerMinute <= 0 || burst <= 0 {
		return &model.RateLimitResult{Allowed: true, Remaining: int64(burst), Limit: int64(burst)}, nil
	}

	key := rateLimitIPPrefix + hashIP(ip)
	ratePerMs := float64(ratePerMinute) / float64(time.Minute/time.Millisecond)

	return c.checkRateLimit(ctx, key, ratePerMs, burst, bucketTTL(ratePerMinute, burst))
}

// checkRateLimit is the common rate limit implementation.
func (c *Cache) checkRateLimit(ctx context.Context, key string, ratePerMs float64, burst, ttl int) (*model.RateLimitResult, error) {
	now := time.Now()

	result, err := tokenBucketScript.Run(ctx, c.client,
		[]string{key},
		ratePerMs, burst, now.UnixMilli(), ttl,
	).Int64Slice()

	if err != nil {
		// Fail open on Redis errors - allow the request
		return &model.RateLimitResult{
			Allowed:   true,
			Remaining: int64(burst),
			Limit:     int64(burst),
			ResetAt:   now.Add(time.Minute),
		}, fmt.Errorf("rate limit check: %w", err)
	}

	allowed := result[0] == 1
	retryAfter := time.Duration(result[1]) * time.Millisecond
	remaining := result[2]

	return &model.RateLimitResult{
		Allowed:    allowed,
		Remaining:  remaining,
		Limit:      int64(burst),
		ResetAt:    now.Add(time.Duration(float64(time.Millisecond) / ratePerMs)),
		RetryAfter: retryAfter,
	}, nil
}

// bucketTTL keeps a key alive long enough to refill a full bucket.
func bucketTTL(ratePerMinute, burst int) int {
	refill := float64(burst) * 60 / float64(ratePerMinute)
	return int(math.Ceil(refill)) + 60
}

// hashIP creates a truncated SHA256 hash of an IP address.
// This provides privacy while maintaining uniqueness.
func hashIP(ip string) string {
	hash := sha256.Sum256([]byte(ip))
	return hex.EncodeToString(hash[:8]) // 16 hex chars
}
