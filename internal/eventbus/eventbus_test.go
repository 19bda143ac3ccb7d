package eventbus

import (
	"sync"
	"testing"
	"time"
)

func TestEmitDeliversToSubscriber(t *testing.T) {
	b := New()
	var mu sync.Mutex
	var got []any

	b.Subscribe("TICKER_UPDATE", func(event string, payload any) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, payload)
	})

	b.Emit("TICKER_UPDATE", 1)
	b.Emit("TICKER_UPDATE", 2)

	deadline := time.Now().Add(time.Second)
	for {
		mu.Lock()
		n := len(got)
		mu.Unlock()
		if n == 2 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("expected 2 deliveries, got %d", n)
		}
		time.Sleep(time.Millisecond)
	}
}

func TestAllChannelReceivesEverything(t *testing.T) {
	b := New()
	ch := make(chan string, 8)
	b.Subscribe(All, func(event string, payload any) { ch <- event })

	b.Emit("LOGGER", "a")
	b.Emit("TASK_FINISHED", "b")

	seen := map[string]bool{}
	for i := 0; i < 2; i++ {
		select {
		case e := <-ch:
			seen[e] = true
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for ALL delivery")
		}
	}
	if !seen["LOGGER"] || !seen["TASK_FINISHED"] {
		t.Fatalf("missing expected events: %v", seen)
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	b := New()
	var count int
	var mu sync.Mutex
	sub := b.Subscribe("X", func(event string, payload any) {
		mu.Lock()
		count++
		mu.Unlock()
	})
	b.Unsubscribe(sub)
	b.Emit("X", nil)
	time.Sleep(20 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	if count != 0 {
		t.Fatalf("expected no delivery after unsubscribe, got %d", count)
	}
}

func TestListenerPanicDoesNotAffectSiblings(t *testing.T) {
	b := New()
	done := make(chan struct{}, 1)
	b.Subscribe("Y", func(event string, payload any) { panic("boom") })
	b.Subscribe("Y", func(event string, payload any) { done <- struct{}{} })
	b.Emit("Y", nil)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sibling listener was not invoked after panic")
	}
}
