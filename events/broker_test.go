package events

import (
	"encoding/json"
	"testing"
)

func TestPublishReachesSubscribers(t *testing.T) {
	b := NewBroker()

	ch1, cancel1 := b.Subscribe(4)
	defer cancel1()
	ch2, cancel2 := b.Subscribe(4)
	defer cancel2()

	b.Publish(TypeState, "ttyUSB0", map[string]any{"phase": "awaiting_completion"})

	for _, ch := range []chan string{ch1, ch2} {
		var msg Message
		if err := json.Unmarshal([]byte(<-ch), &msg); err != nil {
			t.Fatal(err)
		}
		if msg.Type != TypeState || msg.Modem != "ttyUSB0" || msg.Time.IsZero() {
			t.Errorf("msg = %+v", msg)
		}
	}
}

func TestBroadcastSkipsFullSubscriber(t *testing.T) {
	b := NewBroker()

	slow, cancel := b.Subscribe(1)
	defer cancel()

	b.Broadcast("first")
	b.Broadcast("second")

	if got := <-slow; got != "first" {
		t.Errorf("got %q", got)
	}
	select {
	case extra := <-slow:
		t.Errorf("unexpected %q", extra)
	default:
	}
}

func TestUnsubscribe(t *testing.T) {
	b := NewBroker()

	ch, cancel := b.Subscribe(0)
	if cap(ch) != 100 {
		t.Errorf("default buffer = %d", cap(ch))
	}
	if b.Count() != 1 {
		t.Fatalf("count = %d", b.Count())
	}

	cancel()
	cancel()

	if _, ok := <-ch; ok {
		t.Error("channel not closed")
	}
	if b.Count() != 0 {
		t.Errorf("count = %d", b.Count())
	}

	b.Broadcast("after cancel")
}
