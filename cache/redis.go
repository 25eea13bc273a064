package cache

import (
	"context"
	"time"

	"polling-backend/config"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// NewRedisClient connects to the Redis server named in cfg. It returns
// (nil, nil) when no address is configured; callers then fall back to
// in-process implementations.
func NewRedisClient(ctx context.Context, cfg *config.Config, log *logrus.Logger) (*redis.Client, error) {
	if cfg.RedisAddr == "" {
		log.Info("redis not configured, using in-process cache and rate limiting")
		return nil, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.RedisAddr,
		Password:     cfg.RedisPassword,
		DB:           cfg.RedisDB,
		DialTimeout:  3 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.Wrapf(err, "ping redis at %s", cfg.RedisAddr)
	}

	log.WithField("addr", cfg.RedisAddr).Info("redis connected")
	return client, nil
}

// CloseRedis closes client if it is non-nil.
func CloseRedis(client *redis.Client, log *logrus.Logger) {
	if client == nil {
		return
	}
	if err := client.Close(); err != nil {
		log.WithError(err).Warn("closing redis")
		return
	}
	log.Info("redis connection closed")
}
