// Package logging builds the zap logger and the in-memory log feed the
// presentation layer consumes.
package logging

import (
	"sync"

	"go.uber.org/zap/zapcore"

	"github.com/quietloop/repackmon/internal/domain"
)

// DefaultFeedCapacity bounds the in-memory event ring.
const DefaultFeedCapacity = 256

// Feed is an append-only, bounded feed of log events. The background loop
// publishes through a zap hook; consumers read snapshots or subscribe to
// a channel. Publishing never blocks: the loop must not stall on a slow
// consumer.
type Feed struct {
	mu     sync.Mutex
	events []domain.LogEvent
	cap    int
	subs   []chan domain.LogEvent
}

// NewFeed creates a feed with the default capacity.
func NewFeed() *Feed {
	return NewFeedWithCapacity(DefaultFeedCapacity)
}

// NewFeedWithCapacity creates a feed retaining at most capacity events.
func NewFeedWithCapacity(capacity int) *Feed {
	if capacity <= 0 {
		capacity = DefaultFeedCapacity
	}
	return &Feed{cap: capacity}
}

// Publish appends an event and fans it out to subscribers, dropping for
// any subscriber whose channel is full.
func (f *Feed) Publish(event domain.LogEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.events = append(f.events, event)
	if len(f.events) > f.cap {
		f.events = f.events[len(f.events)-f.cap:]
	}

	for _, ch := range f.subs {
		select {
		case ch <- event:
		default:
		}
	}
}

// Recent returns up to limit of the newest events, oldest first.
func (f *Feed) Recent(limit int) []domain.LogEvent {
	f.mu.Lock()
	defer f.mu.Unlock()

	if limit <= 0 || limit > len(f.events) {
		limit = len(f.events)
	}
	out := make([]domain.LogEvent, limit)
	copy(out, f.events[len(f.events)-limit:])
	return out
}

// Subscribe returns a channel receiving future events. The channel is
// buffered; events are dropped rather than blocking the publisher.
func (f *Feed) Subscribe() <-chan domain.LogEvent {
	ch := make(chan domain.LogEvent, 64)
	f.mu.Lock()
	f.subs = append(f.subs, ch)
	f.mu.Unlock()
	return ch
}

// Hook adapts the feed for zap.Hooks: every log entry written by the core
// becomes a feed event.
func (f *Feed) Hook(entry zapcore.Entry) error {
	f.Publish(domain.LogEvent{
		Time:    entry.Time,
		Level:   entry.Level.String(),
		Message: entry.Message,
	})
	return nil
}
