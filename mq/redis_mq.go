package mq

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// VoteChannel is the Redis pub/sub channel carrying vote events.
const VoteChannel = "poll_votes"

// RedisBroker delivers events to every replica subscribed to VoteChannel.
// Delivery is at-most-once.
type RedisBroker struct {
	client *redis.Client
	log    *logrus.Logger
}

func NewRedisBroker(client *redis.Client, log *logrus.Logger) *RedisBroker {
	return &RedisBroker{client: client, log: log}
}

func (b *RedisBroker) Publish(ctx context.Context, event VoteEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return errors.Wrap(err, "encode vote event")
	}
	return errors.Wrap(b.client.Publish(ctx, VoteChannel, data).Err(), "publish vote event")
}

func (b *RedisBroker) Subscribe(ctx context.Context, handler Handler) error {
	sub := b.client.Subscribe(ctx, VoteChannel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return errors.Wrap(err, "subscribe to vote events")
	}

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var event VoteEvent
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				b.log.WithError(err).Warn("dropping malformed vote event")
				continue
			}
			handler(event)
		}
	}
}

// Close is a no-op; the Redis client is owned by the caller.
func (b *RedisBroker) Close() error {
	return nil
}
