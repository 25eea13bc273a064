package cache

import (
	"context"

	"github.com/redis/go-redis/v9"
)

// RedisClient is the subset of *redis.Client used by ResultsCache: plain
// reads plus the scripts that keep writes ordered against invalidations.
type RedisClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	redis.Scripter
}
