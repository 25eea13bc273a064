package mq

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"
)

const localBuffer = 64

// LocalBroker fans events out to subscribers in the same process. A
// subscriber that falls more than localBuffer events behind loses events.
type LocalBroker struct {
	log *logrus.Logger

	mu     sync.RWMutex
	subs   map[chan VoteEvent]struct{}
	closed bool
}

func NewLocalBroker(log *logrus.Logger) *LocalBroker {
	return &LocalBroker{log: log, subs: make(map[chan VoteEvent]struct{})}
}

func (b *LocalBroker) Publish(_ context.Context, event VoteEvent) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for ch := range b.subs {
		select {
		case ch <- event:
		default:
			b.log.WithField("poll_id", event.PollID).Warn("vote event subscriber is full, dropping event")
		}
	}
	return nil
}

func (b *LocalBroker) Subscribe(ctx context.Context, handler Handler) error {
	ch := make(chan VoteEvent, localBuffer)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.subs[ch] = struct{}{}
	b.mu.Unlock()

	defer func() {
		b.mu.Lock()
		if _, ok := b.subs[ch]; ok {
			delete(b.subs, ch)
			close(ch)
		}
		b.mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-ch:
			if !ok {
				return nil
			}
			handler(event)
		}
	}
}

// Close ends every running Subscribe call.
func (b *LocalBroker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.closed = true
	for ch := range b.subs {
		delete(b.subs, ch)
		close(ch)
	}
	return nil
}

// subscribers reports the number of active subscriptions.
func (b *LocalBroker) subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
