package orchestrator

import (
	"sync"

	"solana-wallet-tracker/internal/domain"
)

// DefaultSubscriberBuffer is the channel capacity of a subscription.
const DefaultSubscriberBuffer = 64

// Broadcaster fans progress events out to any number of subscribers.
// A subscriber that falls behind loses events rather than blocking the cycle;
// Last always holds the newest event.
type Broadcaster struct {
	mu     sync.Mutex
	subs   map[chan domain.Progress]struct{}
	last   domain.Progress
	closed bool
}

// NewBroadcaster creates a Broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subs: make(map[chan domain.Progress]struct{})}
}

// Subscribe returns a channel receiving every subsequent event, starting with
// the current one, and a func that ends the subscription.
func (b *Broadcaster) Subscribe(buffer int) (<-chan domain.Progress, func()) {
	if buffer <= 0 {
		buffer = DefaultSubscriberBuffer
	}
	ch := make(chan domain.Progress, buffer)

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(ch)
		return ch, func() {}
	}
	ch <- b.last
	b.subs[ch] = struct{}{}

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if _, ok := b.subs[ch]; ok {
				delete(b.subs, ch)
				close(ch)
			}
		})
	}
}

// Publish records p as the latest event and delivers it to every subscriber.
func (b *Broadcaster) Publish(p domain.Progress) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.last = p
	for ch := range b.subs {
		select {
		case ch <- p:
		default:
		}
	}
}

// Last returns the newest event.
func (b *Broadcaster) Last() domain.Progress {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.last
}

// Close ends every subscription.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for ch := range b.subs {
		close(ch)
	}
	b.subs = nil
}
