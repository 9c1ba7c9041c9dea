package redis

import (
	"context"
	"fmt"
	"strconv"

	"github.com/jonboulle/clockwork"
	goredis "github.com/redis/go-redis/v9"
	"github.com/twx0504/sportz-websockets/internal/admission"
)

// tokenBucketScript refills the bucket for the elapsed time, then takes one
// token if available. The key expires once a full refill would have
// happened anyway.
// ARGV: [1]=now_ms, [2]=capacity, [3]=tokens_per_second
var tokenBucketScript = goredis.NewScript(`
local now = tonumber(ARGV[1])
local capacity = tonumber(ARGV[2])
local rate = tonumber(ARGV[3])

local tokens = tonumber(redis.call('HGET', KEYS[1], 'tokens'))
local last = tonumber(redis.call('HGET', KEYS[1], 'last_refill'))
if tokens == nil or last == nil then
  tokens = capacity
  last = now
end

local elapsed = math.max(0, now - last) / 1000.0
tokens = math.min(capacity, tokens + elapsed * rate)

local allowed = 0
if tokens >= 1 then
  tokens = tokens - 1
  allowed = 1
end

redis.call('HSET', KEYS[1], 'tokens', tostring(tokens), 'last_refill', tostring(now))
redis.call('PEXPIRE', KEYS[1], math.ceil(capacity / rate * 1000) + 1000)
return allowed
`)

// RateLimitPolicy is a per-IP token bucket shared by every instance through
// Redis. Redis failures are returned as errors so the gate reports them as
// policy errors instead of denials.
type RateLimitPolicy struct {
	rdb       *goredis.Client
	clock     clockwork.Clock
	capacity  int
	perSecond float64
}

func NewRateLimitPolicy(rdb *goredis.Client, clock clockwork.Clock, perSecond float64, capacity int) *RateLimitPolicy {
	return &RateLimitPolicy{
		rdb:       rdb,
		clock:     clock,
		capacity:  capacity,
		perSecond: perSecond,
	}
}

func (p *RateLimitPolicy) Evaluate(ctx context.Context, req admission.Request) (admission.Decision, error) {
	allowed, err := p.take(ctx, req.RemoteIP)
	if err != nil {
		return admission.Decision{}, err
	}
	if !allowed {
		return admission.Deny(admission.ReasonRateLimited), nil
	}
	return admission.Allow(), nil
}

func (p *RateLimitPolicy) take(ctx context.Context, ip string) (bool, error) {
	result, err := tokenBucketScript.Run(ctx, p.rdb, []string{rateLimitKey(ip)},
		strconv.FormatInt(p.clock.Now().UnixMilli(), 10),
		strconv.Itoa(p.capacity),
		strconv.FormatFloat(p.perSecond, 'f', -1, 64),
	).Int()
	if err != nil {
		return false, fmt.Errorf("rate limit check failed: %w", err)
	}
	return result == 1, nil
}

const rateLimitKeyPrefix = "rate_limit:ws:"

func rateLimitKey(ip string) string {
	return rateLimitKeyPrefix + ip
}

const resetScanCount = 100

// ResetRateLimits deletes the token buckets of ip, or of every IP when ip is
// empty, and returns how many buckets matched. With dryRun nothing is
// deleted.
func ResetRateLimits(ctx context.Context, rdb *goredis.Client, ip string, dryRun bool) (int, error) {
	pattern := rateLimitKeyPrefix + "*"
	if ip != "" {
		pattern = rateLimitKey(ip)
	}

	var (
		cursor  uint64
		matched int
	)
	for {
		keys, next, err := rdb.Scan(ctx, cursor, pattern, resetScanCount).Result()
		if err != nil {
			return matched, fmt.Errorf("scan failed: %w", err)
		}

		matched += len(keys)
		if !dryRun && len(keys) > 0 {
			if err := rdb.Del(ctx, keys...).Err(); err != nil {
				return matched, fmt.Errorf("failed to delete rate limit keys: %w", err)
			}
		}

		cursor = next
		if cursor == 0 {
			return matched, nil
		}
	}
}

var _ admission.Policy = (*RateLimitPolicy)(nil)
