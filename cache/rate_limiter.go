package cache

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"
)

// RateLimiter decides whether one more request for key may proceed.
type RateLimiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// tokenBucketScript refills the bucket from elapsed milliseconds, then takes
// one token if available. Both keys expire once the bucket would be full again.
var tokenBucketScript = redis.NewScript(`
local tokens_key = KEYS[1] .. ":tokens"
local ts_key = KEYS[1] .. ":ts"
local now = tonumber(ARGV[1])
local rate = tonumber(ARGV[2])
local burst = tonumber(ARGV[3])
local ttl = tonumber(ARGV[4])

local tokens = tonumber(redis.call("get", tokens_key) or burst)
local last = tonumber(redis.call("get", ts_key) or now)

local elapsed = math.max(0, now - last)
tokens = math.min(burst, tokens + elapsed * rate / 1000)

local allowed = 0
if tokens >= 1 then
	tokens = tokens - 1
	allowed = 1
end

redis.call("setex", tokens_key, ttl, tostring(tokens))
redis.call("setex", ts_key, ttl, tostring(now))
return allowed
`)

// TokenBucketRateLimiter is a token bucket shared by every replica through Redis.
type TokenBucketRateLimiter struct {
	redisClient redis.Scripter
	prefix      string
	rate        int // tokens per second
	burst       int // bucket capacity
	clock       clockwork.Clock
}

func NewTokenBucketRateLimiter(client redis.Scripter, prefix string, ratePerSec, burst int, clock clockwork.Clock) *TokenBucketRateLimiter {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &TokenBucketRateLimiter{
		redisClient: client,
		prefix:      "rate_limit:" + prefix,
		rate:        ratePerSec,
		burst:       burst,
		clock:       clock,
	}
}

func (l *TokenBucketRateLimiter) Allow(ctx context.Context, key string) (bool, error) {
	if l.redisClient == nil {
		return false, ErrRedisNotAvailable
	}

	ttl := int(math.Ceil(float64(l.burst)/float64(l.rate))) + 1
	now := l.clock.Now().UnixMilli()
	result, err := tokenBucketScript.Run(ctx, l.redisClient, []string{l.prefix + ":" + key}, now, l.rate, l.burst, ttl).Int64()
	if err != nil {
		return false, err
	}
	return result == 1, nil
}

// LocalRateLimiter keeps one x/time/rate limiter per key in process memory.
// Limiters idle for longer than idleTTL are dropped on the next sweep.
type LocalRateLimiter struct {
	rate    rate.Limit
	burst   int
	clock   clockwork.Clock
	idleTTL time.Duration

	mu        sync.Mutex
	limiters  map[string]*localEntry
	lastSweep time.Time
}

type localEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func NewLocalRateLimiter(ratePerSec, burst int, clock clockwork.Clock) *LocalRateLimiter {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &LocalRateLimiter{
		rate:      rate.Limit(ratePerSec),
		burst:     burst,
		clock:     clock,
		idleTTL:   10 * time.Minute,
		limiters:  make(map[string]*localEntry),
		lastSweep: clock.Now(),
	}
}

func (l *LocalRateLimiter) Allow(_ context.Context, key string) (bool, error) {
	now := l.clock.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	if now.Sub(l.lastSweep) > l.idleTTL {
		for k, e := range l.limiters {
			if now.Sub(e.lastSeen) > l.idleTTL {
				delete(l.limiters, k)
			}
		}
		l.lastSweep = now
	}

	e, ok := l.limiters[key]
	if !ok {
		e = &localEntry{limiter: rate.NewLimiter(l.rate, l.burst)}
		l.limiters[key] = e
	}
	e.lastSeen = now
	return e.limiter.AllowN(now, 1), nil
}

// NewRateLimiter returns a Redis-backed limiter when client is non-nil and an
// in-process one otherwise.
func NewRateLimiter(client *redis.Client, prefix string, ratePerSec, burst int) RateLimiter {
	if client == nil {
		return NewLocalRateLimiter(ratePerSec, burst, nil)
	}
	return NewTokenBucketRateLimiter(client, prefix, ratePerSec, burst, nil)
}
