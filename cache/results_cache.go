package cache

import (
	"context"
	"encoding/json"
	"math/rand"
	"time"

	"polling-backend/models"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

const (
	// DefaultResultsTTL bounds how long an unused tally stays cached.
	DefaultResultsTTL = 30 * time.Second
	jitterFactor      = 0.2
	// versionTTL keeps a poll's invalidation counter well past any
	// in-flight tally.
	versionTTL = 24 * time.Hour
)

// setIfCurrentScript stores a tally only if no invalidation happened since
// the caller read the version.
// KEYS[1] results key, KEYS[2] version key
// ARGV[1] payload, ARGV[2] expected version, ARGV[3] ttl in ms
var setIfCurrentScript = redis.NewScript(`
local current = tonumber(redis.call('GET', KEYS[2]) or '0')
if current ~= tonumber(ARGV[2]) then
    return 0
end
redis.call('SET', KEYS[1], ARGV[1], 'PX', ARGV[3])
return 1
`)

// invalidateScript bumps the version and drops the cached tally atomically.
// KEYS[1] results key, KEYS[2] version key
// ARGV[1] version ttl in ms
var invalidateScript = redis.NewScript(`
local v = redis.call('INCR', KEYS[2])
redis.call('PEXPIRE', KEYS[2], ARGV[1])
redis.call('DEL', KEYS[1])
return v
`)

// ResultsCache stores computed poll tallies. A tally may only be stored
// under the version read before it was computed, so a slow reader can't
// put back a tally that a later vote already invalidated.
type ResultsCache interface {
	Get(ctx context.Context, pollID uuid.UUID) (*models.PollResults, error)
	Version(ctx context.Context, pollID uuid.UUID) (int64, error)
	Set(ctx context.Context, results *models.PollResults, version int64) error
	Invalidate(ctx context.Context, pollID uuid.UUID) error
}

// RedisResultsCache keeps tallies as JSON strings under poll:<id>:results
// and the invalidation counter under poll:<id>:version.
type RedisResultsCache struct {
	client RedisClient
	ttl    time.Duration
}

func NewRedisResultsCache(client RedisClient, ttl time.Duration) *RedisResultsCache {
	if ttl <= 0 {
		ttl = DefaultResultsTTL
	}
	return &RedisResultsCache{client: client, ttl: ttl}
}

func resultsKey(pollID uuid.UUID) string {
	return "poll:" + pollID.String() + ":results"
}

func versionKey(pollID uuid.UUID) string {
	return "poll:" + pollID.String() + ":version"
}

// Get returns ErrCacheMiss when nothing is cached for pollID.
func (c *RedisResultsCache) Get(ctx context.Context, pollID uuid.UUID) (*models.PollResults, error) {
	data, err := c.client.Get(ctx, resultsKey(pollID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, errors.Wrap(err, "get cached results")
	}
	var results models.PollResults
	if err := json.Unmarshal(data, &results); err != nil {
		return nil, errors.Wrap(err, "decode cached results")
	}
	return &results, nil
}

// Version returns the number of invalidations seen for pollID.
func (c *RedisResultsCache) Version(ctx context.Context, pollID uuid.UUID) (int64, error) {
	v, err := c.client.Get(ctx, versionKey(pollID)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return v, errors.Wrap(err, "get results version")
}

// Set caches results with a jittered TTL so entries written together don't
// expire together. It silently skips the write when version is stale.
func (c *RedisResultsCache) Set(ctx context.Context, results *models.PollResults, version int64) error {
	data, err := json.Marshal(results)
	if err != nil {
		return errors.Wrap(err, "encode results")
	}
	ttl := time.Duration(float64(c.ttl) * (1 + jitterFactor*(0.5-rand.Float64())))
	keys := []string{resultsKey(results.PollID), versionKey(results.PollID)}
	err = setIfCurrentScript.Run(ctx, c.client, keys, data, version, ttl.Milliseconds()).Err()
	return errors.Wrap(err, "set cached results")
}

func (c *RedisResultsCache) Invalidate(ctx context.Context, pollID uuid.UUID) error {
	keys := []string{resultsKey(pollID), versionKey(pollID)}
	err := invalidateScript.Run(ctx, c.client, keys, versionTTL.Milliseconds()).Err()
	return errors.Wrap(err, "invalidate cached results")
}

// NoopResultsCache never stores anything.
type NoopResultsCache struct{}

func (NoopResultsCache) Get(context.Context, uuid.UUID) (*models.PollResults, error) {
	return nil, ErrCacheMiss
}

func (NoopResultsCache) Version(context.Context, uuid.UUID) (int64, error) { return 0, nil }

func (NoopResultsCache) Set(context.Context, *models.PollResults, int64) error { return nil }

func (NoopResultsCache) Invalidate(context.Context, uuid.UUID) error { return nil }

// NewResultsCache returns a Redis cache when client is non-nil and a no-op otherwise.
func NewResultsCache(client *redis.Client) ResultsCache {
	if client == nil {
		return NoopResultsCache{}
	}
	return NewRedisResultsCache(client, DefaultResultsTTL)
}
