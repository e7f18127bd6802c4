// Package events implements a small in-process publish/subscribe bus used to
// fan out tree-cache and executor signals (NODE_UPSERTED, BATCH_FAILED, and
// the like) to interested listeners — the CLI's live status view, the diff
// view, and tests that assert on side effects — without coupling publishers
// to any particular subscriber.
package events

import (
	"log/slog"
	"sync"
)

// Name identifies a signal type. Spec-defined names live in names.go.
type Name string

// subscriberQueueLen bounds how many unconsumed events a single subscriber
// channel holds before the bus starts dropping for that subscriber.
const subscriberQueueLen = 64

// Bus is a process-wide signal dispatcher. The zero value is not usable;
// construct with New.
type Bus struct {
	mu     sync.RWMutex
	subs   map[Name][]*subscription
	logger *slog.Logger
}

type subscription struct {
	ch     chan any
	closed bool
}

// New returns a ready-to-use Bus. A nil logger defaults to slog.Default().
func New(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}

	return &Bus{
		subs:   make(map[Name][]*subscription),
		logger: logger,
	}
}

// Subscribe returns a channel that receives every payload published under
// name from this point forward. The returned channel is never closed by the
// bus during normal operation; call Unsubscribe to stop delivery and release
// it.
func (b *Bus) Subscribe(name Name) <-chan any {
	sub := &subscription{ch: make(chan any, subscriberQueueLen)}

	b.mu.Lock()
	b.subs[name] = append(b.subs[name], sub)
	b.mu.Unlock()

	return sub.ch
}

// Unsubscribe stops delivery to a channel previously returned by Subscribe
// and closes it. Safe to call more than once.
func (b *Bus) Unsubscribe(name Name, ch <-chan any) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.subs[name]
	for i, sub := range subs {
		if sub.ch == ch {
			if !sub.closed {
				sub.closed = true
				close(sub.ch)
			}

			b.subs[name] = append(subs[:i], subs[i+1:]...)

			return
		}
	}
}

// Publish delivers payload to every current subscriber of name. Delivery is
// non-blocking: a subscriber whose queue is full has this event dropped for
// it, and the drop is logged at debug level rather than stalling the
// publisher.
func (b *Bus) Publish(name Name, payload any) {
	b.mu.RLock()
	subs := append([]*subscription(nil), b.subs[name]...)
	b.mu.RUnlock()

	for _, sub := range subs {
		select {
		case sub.ch <- payload:
		default:
			b.logger.Debug("dropping event for slow subscriber",
				slog.String("event", string(name)),
			)
		}
	}
}
