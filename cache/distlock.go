package cache

import (
	"context"
	"time"

	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// DistributedLockService serializes work across replicas with redsync.
type DistributedLockService struct {
	rs  *redsync.Redsync
	log *logrus.Logger
}

func NewDistributedLockService(client *redis.Client, log *logrus.Logger) *DistributedLockService {
	return &DistributedLockService{
		rs:  redsync.New(goredis.NewPool(client)),
		log: log,
	}
}

// WithLock runs action while holding the named lock. The lock is retried for
// a short while before ErrLockNotAcquired is returned.
func (s *DistributedLockService) WithLock(ctx context.Context, name string, expiry time.Duration, action func() error) error {
	mutex := s.rs.NewMutex(name,
		redsync.WithExpiry(expiry),
		redsync.WithTries(32),
		redsync.WithRetryDelay(250*time.Millisecond),
		redsync.WithDriftFactor(0.01),
	)

	if err := mutex.LockContext(ctx); err != nil {
		return errors.Wrapf(ErrLockNotAcquired, "lock %s: %v", name, err)
	}

	defer func() {
		if _, err := mutex.UnlockContext(context.Background()); err != nil {
			s.log.WithError(err).WithField("lock", name).Warn("releasing distributed lock")
		}
	}()

	return action()
}
