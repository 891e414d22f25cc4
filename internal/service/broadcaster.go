package service

import (
	"sync"

	"github.com/usagebar/usagebar/internal/core"
)

// subscriberBuffer bounds per-subscriber delivery. A consumer that falls
// this far behind starts losing the oldest values; it still sees the rest in
// order and always converges on the latest state.
const subscriberBuffer = 16

// StateBroadcaster holds the current state and fans out every publication to
// all attached subscribers.
type StateBroadcaster struct {
	mu      sync.Mutex
	current core.State
	subs    map[int64]chan core.State
	nextID  int64
}

func NewStateBroadcaster(initial core.State) *StateBroadcaster {
	return &StateBroadcaster{
		current: initial,
		subs:    make(map[int64]chan core.State),
	}
}

func (b *StateBroadcaster) Current() core.State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.current
}

// Subscribe attaches a consumer. The channel's first value is the state
// current at attach time, followed by every later publication in order. The
// returned cancel detaches and closes the channel; it is idempotent and safe
// to call while a publish is running.
func (b *StateBroadcaster) Subscribe() (<-chan core.State, func()) {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	ch := make(chan core.State, subscriberBuffer)
	ch <- b.current
	b.subs[id] = ch
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if sub, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(sub)
		}
	}
	return ch, cancel
}

// Publish makes state the current value and delivers it to every subscriber
// without ever blocking on one.
func (b *StateBroadcaster) Publish(state core.State) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.current = state
	for _, ch := range b.subs {
		deliver(ch, state)
	}
}

// deliver drops the oldest buffered value when the channel is full. All
// sends and the close in cancel happen under b.mu, so they cannot race.
func deliver(ch chan core.State, state core.State) {
	for {
		select {
		case ch <- state:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}
