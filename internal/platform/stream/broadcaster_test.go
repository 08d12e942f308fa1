package stream

import (
	"sync"
	"testing"
	"time"
)

func recvOne(t *testing.T, ch <-chan int) int {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for value")
		return 0
	}
}

func TestSubscribeReplaysLastValue(t *testing.T) {
	b := NewBroadcaster[int]()
	b.Publish(1)
	b.Publish(2)

	sub := b.Subscribe()
	defer sub.Close()

	if got := recvOne(t, sub.C()); got != 2 {
		t.Errorf("expected replay of last value 2, got %d", got)
	}
}

func TestSubscribeBeforeFirstPublish(t *testing.T) {
	b := NewBroadcaster[int]()
	sub := b.Subscribe()
	defer sub.Close()

	select {
	case v := <-sub.C():
		t.Fatalf("expected no value before first publish, got %d", v)
	default:
	}

	b.Publish(7)
	if got := recvOne(t, sub.C()); got != 7 {
		t.Errorf("expected 7, got %d", got)
	}
}

func TestMulticast(t *testing.T) {
	b := NewBroadcaster[int]()
	a := b.Subscribe()
	c := b.Subscribe()
	defer a.Close()
	defer c.Close()

	b.Publish(42)

	if got := recvOne(t, a.C()); got != 42 {
		t.Errorf("subscriber a: expected 42, got %d", got)
	}
	if got := recvOne(t, c.C()); got != 42 {
		t.Errorf("subscriber c: expected 42, got %d", got)
	}
}

func TestSlowSubscriberDoesNotBlockPublish(t *testing.T) {
	b := NewBroadcaster[int]()
	sub := b.Subscribe()
	defer sub.Close()

	done := make(chan struct{})
	go func() {
		for i := 0; i < subscriberBuffer*3; i++ {
			b.Publish(i)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on a slow subscriber")
	}

	if last, ok := b.Last(); !ok || last != subscriberBuffer*3-1 {
		t.Errorf("expected last %d, got %d (ok=%v)", subscriberBuffer*3-1, last, ok)
	}
}

func TestCloseBroadcaster(t *testing.T) {
	b := NewBroadcaster[int]()
	b.Publish(5)
	sub := b.Subscribe()

	b.Close()
	b.Close() // idempotent

	// Drain: the replayed 5, then the channel must be closed.
	if got := recvOne(t, sub.C()); got != 5 {
		t.Errorf("expected replayed 5, got %d", got)
	}
	if _, open := <-sub.C(); open {
		t.Error("expected channel closed after broadcaster Close")
	}

	b.Publish(6) // no-op after close

	late := b.Subscribe()
	if got := recvOne(t, late.C()); got != 5 {
		t.Errorf("late subscriber: expected replay 5, got %d", got)
	}
	if _, open := <-late.C(); open {
		t.Error("late subscription channel should be closed")
	}
}

func TestSubscriptionCloseIsIdempotent(t *testing.T) {
	b := NewBroadcaster[int]()
	sub := b.Subscribe()
	sub.Close()
	sub.Close()

	if n := b.SubscriberCount(); n != 0 {
		t.Errorf("expected 0 subscribers, got %d", n)
	}
	b.Publish(1) // must not panic on detached subscriber
}

func TestConcurrentPublishSubscribe(t *testing.T) {
	b := NewBroadcaster[int]()
	var wg sync.WaitGroup

	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				b.Publish(n*100 + j)
			}
		}(i)
		go func() {
			defer wg.Done()
			sub := b.Subscribe()
			for j := 0; j < 10; j++ {
				select {
				case <-sub.C():
				case <-time.After(100 * time.Millisecond):
				}
			}
			sub.Close()
		}()
	}
	wg.Wait()
}
