package logging

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/quietloop/repackmon/internal/domain"
)

func TestFeed_RecentReturnsNewestOldestFirst(t *testing.T) {
	feed := NewFeed()
	for i := 0; i < 3; i++ {
		feed.Publish(domain.LogEvent{Message: fmt.Sprintf("msg-%d", i)})
	}

	events := feed.Recent(2)

	require.Len(t, events, 2)
	assert.Equal(t, "msg-1", events[0].Message)
	assert.Equal(t, "msg-2", events[1].Message)
}

func TestFeed_BoundedCapacityDropsOldest(t *testing.T) {
	feed := NewFeedWithCapacity(3)
	for i := 0; i < 10; i++ {
		feed.Publish(domain.LogEvent{Message: fmt.Sprintf("msg-%d", i)})
	}

	events := feed.Recent(0)

	require.Len(t, events, 3)
	assert.Equal(t, "msg-7", events[0].Message)
	assert.Equal(t, "msg-9", events[2].Message)
}

func TestFeed_SubscribeReceivesEvents(t *testing.T) {
	feed := NewFeed()
	ch := feed.Subscribe()

	feed.Publish(domain.LogEvent{Message: "hello"})

	select {
	case ev := <-ch:
		assert.Equal(t, "hello", ev.Message)
	case <-time.After(time.Second):
		t.Fatal("expected event on subscriber channel")
	}
}

func TestFeed_PublishNeverBlocksOnFullSubscriber(t *testing.T) {
	feed := NewFeed()
	feed.Subscribe() // never drained

	done := make(chan struct{})
	go func() {
		for i := 0; i < 200; i++ {
			feed.Publish(domain.LogEvent{Message: "spam"})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on a slow subscriber")
	}
}

func TestFeed_HookCapturesZapEntries(t *testing.T) {
	feed := NewFeed()

	// Invoke the hook directly, matching what zap does per entry.
	err := feed.Hook(zapcore.Entry{
		Time:    time.Unix(1700000000, 0),
		Level:   zapcore.WarnLevel,
		Message: "tool timed out",
	})
	require.NoError(t, err)

	events := feed.Recent(0)
	require.Len(t, events, 1)
	assert.Equal(t, "warn", events[0].Level)
	assert.Equal(t, "tool timed out", events[0].Message)
}
