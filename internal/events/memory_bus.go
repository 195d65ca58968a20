// SPDX-License-Identifier: MIT

package events

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/ManuGH/camwatch/internal/log"
	"github.com/ManuGH/camwatch/internal/metrics"
)

// MemoryBus is the in-process pub/sub. Delivery is at-least-once per
// subscriber while the publish context remains active; a subscriber
// that stops draining causes the publisher to give up when its context
// expires rather than block forever. Shutdown tears publishers and
// subscribers down concurrently, so Close is idempotent and a publish
// racing a Close skips the closing subscriber instead of panicking.
type MemoryBus struct {
	mu   sync.RWMutex
	subs map[string][]*memSub
}

const subscriberBuffer = 64

const dropLogEvery = 100

var dropCount atomic.Uint64

func NewMemoryBus() *MemoryBus {
	return &MemoryBus{subs: make(map[string][]*memSub)}
}

func publishDropReason(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	default:
		return "context_done"
	}
}

func (b *MemoryBus) Publish(ctx context.Context, topic string, msg Message) error {
	if ctx == nil {
		return fmt.Errorf("publish context is nil")
	}
	b.mu.RLock()
	subs := append([]*memSub(nil), b.subs[topic]...)
	b.mu.RUnlock()
	for _, sub := range subs {
		if err := sub.send(ctx, msg); err != nil {
			reason := publishDropReason(err)
			metrics.IncBusDrop(topic, reason)
			count := dropCount.Add(1)
			if count%dropLogEvery == 0 {
				logger := log.L()
				logger.Warn().
					Str("topic", topic).
					Str(log.FieldReason, reason).
					Uint64("dropped", count).
					Msg("event bus failed to publish due to context cancellation")
			}
			return fmt.Errorf("publish topic %q: %w", topic, err)
		}
	}
	return nil
}

func (b *MemoryBus) Subscribe(ctx context.Context, topic string) (Subscriber, error) {
	sub := &memSub{b: b, topic: topic, ch: make(chan Message, subscriberBuffer)}

	b.mu.Lock()
	b.subs[topic] = append(b.subs[topic], sub)
	b.mu.Unlock()

	return sub, nil
}

// SubscriberCount reports the live subscriptions on a topic (for testing).
func (b *MemoryBus) SubscriberCount(topic string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[topic])
}

func (b *MemoryBus) remove(s *memSub) {
	b.mu.Lock()
	defer b.mu.Unlock()

	lst := b.subs[s.topic]
	out := lst[:0]
	for _, c := range lst {
		if c != s {
			out = append(out, c)
		}
	}
	if len(out) == 0 {
		delete(b.subs, s.topic)
	} else {
		b.subs[s.topic] = out
	}
}

type memSub struct {
	b     *MemoryBus
	topic string

	mu     sync.Mutex
	ch     chan Message
	closed bool
}

// send delivers one message. The lock is held across the channel send
// so Close can never close the channel under a blocked sender; sends
// to an already closed subscription are silently skipped.
func (s *memSub) send(ctx context.Context, msg Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	select {
	case s.ch <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *memSub) C() <-chan Message {
	return s.ch
}

func (s *memSub) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.ch)
	s.mu.Unlock()

	s.b.remove(s)
	return nil
}

var _ Bus = (*MemoryBus)(nil)
