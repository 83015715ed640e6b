package services

import (
	"context"
	"sync"

	"homesvc.app/client/internal/core/domain"
)

// SessionBroadcaster fans session snapshots out to subscribers.
// Publish never blocks: each subscriber has its own queue drained by a pump
// goroutine, so a slow reader delays only itself and sees every snapshot in order.
type SessionBroadcaster struct {
	mu     sync.Mutex
	subs   map[*subscriber]struct{}
	closed bool
}

type subscriber struct {
	out    chan domain.SessionSnapshot
	mu     sync.Mutex
	queue  []domain.SessionSnapshot
	wake   chan struct{}
	done   chan struct{}
	closed sync.Once
}

func NewSessionBroadcaster() *SessionBroadcaster {
	return &SessionBroadcaster{subs: make(map[*subscriber]struct{})}
}

// Subscribe registers a subscriber whose first value is initial
func (b *SessionBroadcaster) Subscribe(ctx context.Context, initial domain.SessionSnapshot) (<-chan domain.SessionSnapshot, func()) {
	sub := &subscriber{
		out:   make(chan domain.SessionSnapshot),
		queue: []domain.SessionSnapshot{initial},
		wake:  make(chan struct{}, 1),
		done:  make(chan struct{}),
	}
	sub.wake <- struct{}{}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(sub.out)
		return sub.out, func() {}
	}
	b.subs[sub] = struct{}{}
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		delete(b.subs, sub)
		b.mu.Unlock()
		sub.stop()
	}

	go sub.pump(ctx)
	go func() {
		select {
		case <-ctx.Done():
			cancel()
		case <-sub.done:
		}
	}()

	return sub.out, cancel
}

// Publish queues snapshot for every subscriber
func (b *SessionBroadcaster) Publish(snapshot domain.SessionSnapshot) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for sub := range b.subs {
		sub.enqueue(snapshot)
	}
}

// Subscribers returns the number of active subscriptions
func (b *SessionBroadcaster) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Close ends every subscription; later Subscribe calls get a closed channel
func (b *SessionBroadcaster) Close() {
	b.mu.Lock()
	subs := b.subs
	b.subs = make(map[*subscriber]struct{})
	b.closed = true
	b.mu.Unlock()

	for sub := range subs {
		sub.stop()
	}
}

func (s *subscriber) enqueue(snapshot domain.SessionSnapshot) {
	s.mu.Lock()
	s.queue = append(s.queue, snapshot)
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *subscriber) stop() {
	s.closed.Do(func() { close(s.done) })
}

func (s *subscriber) pump(ctx context.Context) {
	defer close(s.out)
	for {
		select {
		case <-s.done:
			return
		case <-s.wake:
		}

		for {
			s.mu.Lock()
			if len(s.queue) == 0 {
				s.mu.Unlock()
				break
			}
			next := s.queue[0]
			s.queue = s.queue[1:]
			s.mu.Unlock()

			select {
			case s.out <- next:
			case <-s.done:
				return
			case <-ctx.Done():
				return
			}
		}
	}
}
