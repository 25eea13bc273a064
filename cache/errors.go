package cache

import "errors"

var (
	// ErrRedisNotAvailable is returned by Redis-backed components built without a client.
	ErrRedisNotAvailable = errors.New("redis not available")

	// ErrLockNotAcquired is returned when a distributed lock is held elsewhere.
	ErrLockNotAcquired = errors.New("distributed lock not acquired")

	// ErrCacheMiss is returned by ResultsCache.Get when the key is absent.
	ErrCacheMiss = errors.New("cache miss")
)
