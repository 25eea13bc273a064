// Package mq fans vote events out to interested listeners, across replicas
// through Redis pub/sub or within one process otherwise.
package mq

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// VoteEvent is emitted after a vote commits.
type VoteEvent struct {
	PollID   uuid.UUID `json:"poll_id"`
	UserID   uuid.UUID `json:"user_id"`
	Position int       `json:"choice_id"`
	Created  bool      `json:"created"`
	At       time.Time `json:"at"`
}

// Handler receives events in the order the broker delivers them.
type Handler func(VoteEvent)

// Broker publishes vote events and delivers them to subscribers.
type Broker interface {
	Publish(ctx context.Context, event VoteEvent) error
	// Subscribe calls handler for every event until ctx is done.
	Subscribe(ctx context.Context, handler Handler) error
	Close() error
}

// NewBroker returns a Redis pub/sub broker when client is non-nil and an
// in-process broker otherwise.
func NewBroker(client *redis.Client, log *logrus.Logger) Broker {
	if client == nil {
		return NewLocalBroker(log)
	}
	return NewRedisBroker(client, log)
}
