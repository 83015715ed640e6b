package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"homesvc.app/client/internal/core/domain"
)

func receive(t *testing.T, ch <-chan domain.SessionSnapshot) domain.SessionSnapshot {
	t.Helper()
	select {
	case snapshot, ok := <-ch:
		require.True(t, ok, "channel closed")
		return snapshot
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for snapshot")
		return domain.SessionSnapshot{}
	}
}

func TestSessionBroadcaster_SlowSubscriberKeepsOrder(t *testing.T) {
	b := NewSessionBroadcaster()
	defer b.Close()

	ch, cancel := b.Subscribe(context.Background(), domain.SessionSnapshot{Reason: "initial"})
	defer cancel()

	// Nobody is reading yet; Publish must not block.
	reasons := []string{"a", "b", "c", "d"}
	for _, reason := range reasons {
		b.Publish(domain.SessionSnapshot{Reason: reason})
	}

	assert.Equal(t, "initial", receive(t, ch).Reason)
	for _, reason := range reasons {
		assert.Equal(t, reason, receive(t, ch).Reason)
	}
}

func TestSessionBroadcaster_CancelClosesChannel(t *testing.T) {
	b := NewSessionBroadcaster()
	defer b.Close()

	ctx, stop := context.WithCancel(context.Background())
	ch, _ := b.Subscribe(ctx, domain.SessionSnapshot{})
	receive(t, ch)
	require.Equal(t, 1, b.Subscribers())

	stop()
	assert.Eventually(t, func() bool {
		select {
		case _, ok := <-ch:
			return !ok
		default:
			return false
		}
	}, time.Second, 5*time.Millisecond)
	assert.Eventually(t, func() bool { return b.Subscribers() == 0 }, time.Second, 5*time.Millisecond)
}

func TestSessionBroadcaster_Close(t *testing.T) {
	b := NewSessionBroadcaster()
	ch, _ := b.Subscribe(context.Background(), domain.SessionSnapshot{})
	receive(t, ch)

	b.Close()
	assert.Eventually(t, func() bool {
		_, ok := <-ch
		return !ok
	}, time.Second, 5*time.Millisecond)

	late, _ := b.Subscribe(context.Background(), domain.SessionSnapshot{})
	_, ok := <-late
	assert.False(t, ok)
}
