// Package stream provides a multicast, replay-last broadcast channel. Each
// keyed state machine owns one broadcaster; dashboards and observer machines
// subscribe to it. A new subscriber immediately receives the last published
// value, so nobody ever observes an undefined state between "subscribe" and
// "next transition".
package stream

import "sync"

// subscriberBuffer is the per-subscriber channel capacity. Publishing never
// blocks: a subscriber that falls more than subscriberBuffer frames behind
// loses intermediate frames, not the connection.
const subscriberBuffer = 16

// Broadcaster fans out values of type T to any number of subscribers.
type Broadcaster[T any] struct {
	mu      sync.RWMutex
	subs    map[*Subscription[T]]struct{}
	last    T
	hasLast bool
	closed  bool
}

// Subscription is one receiver attached to a Broadcaster.
type Subscription[T any] struct {
	ch   chan T
	b    *Broadcaster[T]
	once sync.Once
}

// NewBroadcaster creates an empty broadcaster with no replay value yet.
func NewBroadcaster[T any]() *Broadcaster[T] {
	return &Broadcaster[T]{subs: make(map[*Subscription[T]]struct{})}
}

// Publish stores v as the replay value and delivers it to every subscriber.
// Delivery is non-blocking; publishing on a closed broadcaster is a no-op.
func (b *Broadcaster[T]) Publish(v T) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.last = v
	b.hasLast = true

	for sub := range b.subs {
		select {
		case sub.ch <- v:
		default:
			// Subscriber buffer full; skip to avoid blocking the machine.
		}
	}
}

// Subscribe attaches a new receiver. If a value has been published before,
// it is already waiting on the returned channel. Subscribing to a closed
// broadcaster yields a subscription whose channel replays the last value
// (if any) and is then closed.
func (b *Broadcaster[T]) Subscribe() *Subscription[T] {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub := &Subscription[T]{ch: make(chan T, subscriberBuffer), b: b}
	if b.hasLast {
		sub.ch <- b.last
	}
	if b.closed {
		close(sub.ch)
		return sub
	}
	b.subs[sub] = struct{}{}
	return sub
}

// Close detaches all subscribers and closes their channels. Idempotent.
func (b *Broadcaster[T]) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for sub := range b.subs {
		close(sub.ch)
	}
	b.subs = make(map[*Subscription[T]]struct{})
}

// Last returns the most recently published value, if any.
func (b *Broadcaster[T]) Last() (T, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.last, b.hasLast
}

// SubscriberCount returns the number of attached subscriptions.
func (b *Broadcaster[T]) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// C is the receive side of the subscription. It is closed when either the
// subscription or the broadcaster is closed.
func (s *Subscription[T]) C() <-chan T {
	return s.ch
}

// Close detaches the subscription from its broadcaster. Idempotent and safe
// to call concurrently with Publish.
func (s *Subscription[T]) Close() {
	s.once.Do(func() {
		s.b.mu.Lock()
		defer s.b.mu.Unlock()
		if _, ok := s.b.subs[s]; ok {
			delete(s.b.subs, s)
			close(s.ch)
		}
	})
}
