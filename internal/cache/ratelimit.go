package cache

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"math"
	"time"

	"github.com/redis/go-redis/v9"
)

// Rate limit scopes. Each scope has its own buckets.
const (
	ScopeMessage = "message"
	ScopeAuth    = "auth"
)

// RateLimitResult is the outcome of taking one token.
type RateLimitResult struct {
	Allowed    bool
	Remaining  int64
	ResetAt    time.Time // when the bucket is full again
	RetryAfter time.Duration
}

// takeTokenScript refills the bucket for the elapsed milliseconds and takes
// one token if available. Returns {allowed, retry_after_ms, remaining}.
var takeTokenScript = redis.NewScript(`
local rate_ms = tonumber(ARGV[1])
local burst   = tonumber(ARGV[2])
local now_ms  = tonumber(ARGV[3])

local state  = redis.call('HMGET', KEYS[1], 'tokens', 'at')
local tokens = tonumber(state[1]) or burst
local at     = tonumber(state[2]) or now_ms
if now_ms > at then
  tokens = math.min(burst, tokens + (now_ms - at) * rate_ms)
end

local allowed, retry_ms = 0, 0
if tokens >= 1 then
  tokens = tokens - 1
  allowed = 1
else
  retry_ms = math.ceil((1 - tokens) / rate_ms)
end

redis.call('HSET', KEYS[1], 'tokens', tokens, 'at', now_ms)
redis.call('PEXPIRE', KEYS[1], math.ceil(burst / rate_ms) + 1000)
return {allowed, retry_ms, math.floor(tokens)}
`)

// CheckUserRateLimit takes a token from the user's bucket in scope.
func (c *Cache) CheckUserRateLimit(ctx context.Context, scope, userID string, ratePerMinute, burst int) (*RateLimitResult, error) {
	return c.takeToken(ctx, rateLimitKey(scope, "user", userID), ratePerMinute, burst)
}

// CheckIPRateLimit takes a token from the client address's bucket in scope.
// Addresses are stored hashed.
func (c *Cache) CheckIPRateLimit(ctx context.Context, scope, ip string, ratePerMinute, burst int) (*RateLimitResult, error) {
	return c.takeToken(ctx, rateLimitKey(scope, "ip", subjectHash(ip)), ratePerMinute, burst)
}

func (c *Cache) takeToken(ctx context.Context, bucket string, ratePerMinute, burst int) (*RateLimitResult, error) {
	now := time.Now()
	if ratePerMinute <= 0 {
		return &RateLimitResult{Allowed: true, Remaining: int64(burst), ResetAt: now}, nil
	}
	if burst < 1 {
		burst = 1
	}
	ratePerMs := float64(ratePerMinute) / float64(time.Minute/time.Millisecond)

	res, err := takeTokenScript.Run(ctx, c.client, []string{bucket}, ratePerMs, burst, now.UnixMilli()).Int64Slice()
	if err != nil {
		return nil, fmt.Errorf("rate limit %s: %w", bucket, err)
	}
	if len(res) != 3 {
		return nil, fmt.Errorf("rate limit %s: unexpected reply %v", bucket, res)
	}

	remaining := res[2]
	refillMs := math.Ceil(float64(int64(burst)-remaining) / ratePerMs)
	return &RateLimitResult{
		Allowed:    res[0] == 1,
		Remaining:  remaining,
		ResetAt:    now.Add(time.Duration(refillMs) * time.Millisecond),
		RetryAfter: time.Duration(res[1]) * time.Millisecond,
	}, nil
}

func rateLimitKey(scope, kind, subject string) string {
	return key("ratelimit", scope, kind, subject)
}

// subjectHash shortens and anonymises a client address.
func subjectHash(s string) string {
	sum := sha256.Sum256([]byte(s))
	return base64.RawURLEncoding.EncodeToString(sum[:12])
}
