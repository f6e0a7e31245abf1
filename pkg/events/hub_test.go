package events

import "testing"

func TestPublishDelivers(t *testing.T) {
	h := NewEventHub()
	a := h.Subscribe()
	b := h.Subscribe()

	h.Publish(ProvisioningState, ProvisioningStateEvent{From: "startup", To: "connecting_to_saved", Ts: 1})

	for _, ch := range []chan Event{a, b} {
		ev := <-ch
		if ev.Name != ProvisioningState {
			t.Fatalf("unexpected event name %q", ev.Name)
		}
		p, err := DecodeAs[ProvisioningStateEvent](ev)
		if err != nil {
			t.Fatalf("DecodeAs failed: %v", err)
		}
		if p.From != "startup" || p.To != "connecting_to_saved" || p.Ts != 1 {
			t.Fatalf("unexpected payload %+v", p)
		}
	}
}

func TestSlowSubscriberDropsEvents(t *testing.T) {
	h := NewEventHub()
	ch := h.Subscribe()

	for i := 0; i < subscriberBuffer+5; i++ {
		h.Publish(Motion, MotionEvent{Motion: true, ChangedCells: i})
	}
	if len(ch) != subscriberBuffer {
		t.Fatalf("expected a full buffer of %d, got %d", subscriberBuffer, len(ch))
	}

	first, err := DecodeAs[MotionEvent](<-ch)
	if err != nil {
		t.Fatal(err)
	}
	if first.ChangedCells != 0 {
		t.Fatalf("the oldest buffered event should be kept, got %+v", first)
	}
}

func TestUnsubscribe(t *testing.T) {
	h := NewEventHub()
	ch := h.Subscribe()
	h.Unsubscribe(ch)
	h.Unsubscribe(ch)

	if _, ok := <-ch; ok {
		t.Fatalf("channel should be closed")
	}
	if h.Subscribers() != 0 {
		t.Fatalf("expected no subscribers")
	}
	h.Publish(Motion, MotionEvent{})
}

func TestNilHubAndBadPayload(t *testing.T) {
	var nilHub *EventHub
	nilHub.Publish(Motion, MotionEvent{})

	h := NewEventHub()
	ch := h.Subscribe()
	h.Publish(Motion, make(chan int))
	if len(ch) != 0 {
		t.Fatalf("an unmarshalable payload must not be delivered")
	}
}

func TestDecodeAsEmpty(t *testing.T) {
	v, err := DecodeAs[MotionEvent](Event{Name: Motion})
	if err != nil || v != (MotionEvent{}) {
		t.Fatalf("expected zero value, got %+v %v", v, err)
	}
}
