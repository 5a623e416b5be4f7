package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// loginIPPrefix is the Redis key prefix for per-client login buckets.
	loginIPPrefix = "ratelimit:login:ip:"
	// loginAccountPrefix is the Redis key prefix for per-account login buckets.
	loginAccountPrefix = "ratelimit:login:account:"
	// loginIPTTL is the TTL for per-client buckets.
	loginIPTTL = 10 * time.Minute
	// loginAccountTTL is the TTL for per-account buckets.
	loginAccountTTL = time.Hour
)

// RateLimitResult contains the result of a rate limit check.
type RateLimitResult struct {
	Allowed    bool
	Remaining  int64
	ResetAt    time.Time
	RetryAfter time.Duration
}

// tokenBucketScript is a Lua script implementing the token bucket algorithm.
// Refill and consumption happen in one atomic step.
var tokenBucketScript = redis.NewScript(`
	local key = KEYS[1]
	local rate = tonumber(ARGV[1])      -- tokens per second
	local burst = tonumber(ARGV[2])     -- bucket capacity
	local now = tonumber(ARGV[3])       -- current time in seconds
	local ttl = tonumber(ARGV[4])       -- TTL in seconds

	local data = redis.call('HMGET', key, 'tokens', 'last_update')
	local tokens = tonumber(data[1]) or burst
	local last_update = tonumber(data[2]) or now

	local elapsed = now - last_update
	tokens = math.min(burst, tokens + (elapsed * rate))

	local allowed = 0
	local retry_after = 0

	if tokens >= 1 then
		tokens = tokens - 1
		allowed = 1
	else
		retry_after = math.ceil((1 - tokens) / rate)
	end

	redis.call('HMSET', key, 'tokens', tokens, 'last_update', now)
	redis.call('EXPIRE', key, ttl)

	return {allowed, retry_after, math.floor(tokens)}
`)

// CheckLoginRateLimit consumes one login attempt from the bucket of a client IP.
// IPs are hashed so raw addresses never reach Redis.
func (c *Cache) CheckLoginRateLimit(ctx context.Context, ip string, ratePerSecond float64, burst int) (*RateLimitResult, error) {
	key := loginIPPrefix + hashKey(ip)
	return c.checkRateLimit(ctx, key, ratePerSecond, burst, loginIPTTL)
}

// CheckAccountLoginRateLimit consumes one attempt from the bucket of a
// normalized email. It slows password guessing spread over many clients.
// The bucket exists whether or not the account does.
func (c *Cache) CheckAccountLoginRateLimit(ctx context.Context, email string, perMinute, burst int) (*RateLimitResult, error) {
	key := loginAccountPrefix + hashKey(email)
	return c.checkRateLimit(ctx, key, float64(perMinute)/60.0, burst, loginAccountTTL)
}

// checkRateLimit runs the token bucket. On Redis errors it fails open: the
// result allows the request and the error is returned for logging.
func (c *Cache) checkRateLimit(ctx context.Context, key string, rate float64, burst int, ttl time.Duration) (*RateLimitResult, error) {
	if rate <= 0 || burst <= 0 {
		return allowAll(burst), nil
	}

	now := time.Now().Unix()

	result, err := tokenBucketScript.Run(ctx, c.client,
		[]string{key},
		rate, burst, now, int(ttl.Seconds()),
	).Int64Slice()
	if err != nil {
		return allowAll(burst), fmt.Errorf("rate limit script: %w", err)
	}

	return &RateLimitResult{
		Allowed:    result[0] == 1,
		Remaining:  result[2],
		ResetAt:    time.Now().Add(time.Duration(float64(time.Second) / rate)),
		RetryAfter: time.Duration(result[1]) * time.Second,
	}, nil
}

func allowAll(burst int) *RateLimitResult {
	return &RateLimitResult{
		Allowed:   true,
		Remaining: int64(burst),
		ResetAt:   time.Now().Add(time.Minute),
	}
}

// hashKey creates a truncated SHA256 hash of a throttling key.
func hashKey(s string) string {
	hash := sha256.Sum256([]byte(s))
	return hex.EncodeToString(hash[:8]) // 16 hex chars
}
