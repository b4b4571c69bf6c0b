package events

import (
	"testing"
	"time"
)

func TestPublishReachesSubscribers(t *testing.T) {
	h := NewHub()
	a := h.Subscribe()
	b := h.Subscribe()
	defer h.Unsubscribe(a)
	defer h.Unsubscribe(b)

	h.Publish(ReadingProduced, ReadingProducedEvent{Source: "simulated", Min: 0, Max: 10, Reading: 4.2, Ts: 1})

	for _, ch := range []chan Event{a, b} {
		select {
		case ev := <-ch:
			if ev.Name != ReadingProduced {
				t.Fatalf("event name = %q", ev.Name)
			}
			p, err := DecodeAs[ReadingProducedEvent](ev)
			if err != nil {
				t.Fatalf("DecodeAs: %v", err)
			}
			if p.Reading != 4.2 || p.Source != "simulated" {
				t.Fatalf("payload = %+v", p)
			}
		case <-time.After(time.Second):
			t.Fatalf("subscriber did not receive event")
		}
	}
}

func TestPublishDropsForSlowSubscriber(t *testing.T) {
	h := NewHub()
	ch := h.Subscribe()
	defer h.Unsubscribe(ch)

	for i := 0; i < subscriberBuffer*2; i++ {
		h.Publish(ReadingRejected, ReadingRejectedEvent{Kind: "NotANumber"})
	}
	if got := len(ch); got != subscriberBuffer {
		t.Fatalf("buffered events = %d, want %d", got, subscriberBuffer)
	}
}

func TestUnsubscribeAndClose(t *testing.T) {
	h := NewHub()
	a := h.Subscribe()
	b := h.Subscribe()
	if h.Subscribers() != 2 {
		t.Fatalf("subscribers = %d, want 2", h.Subscribers())
	}

	h.Unsubscribe(a)
	h.Unsubscribe(a) // second call is a no-op
	if _, ok := <-a; ok {
		t.Fatalf("unsubscribed channel should be closed")
	}

	h.Close()
	if _, ok := <-b; ok {
		t.Fatalf("channel should be closed by Close")
	}
	if h.Subscribers() != 0 {
		t.Fatalf("subscribers after Close = %d", h.Subscribers())
	}
}

func TestNilHub(t *testing.T) {
	var h *Hub
	h.Publish(ReadingProduced, nil)
	h.Close()
	if h.Subscribers() != 0 {
		t.Fatalf("nil hub should report no subscribers")
	}
}

func TestDecodeAsEmpty(t *testing.T) {
	p, err := DecodeAs[ReadingRejectedEvent](Event{Name: ReadingRejected})
	if err != nil || p.Kind != "" {
		t.Fatalf("DecodeAs(empty) = %+v, %v", p, err)
	}
}
