package presence

import (
	"testing"
	"time"
)

func TestBrokerDeliversPerUser(t *testing.T) {
	broker := NewBroker()

	aliceCh, cancelAlice := broker.Subscribe("alice")
	defer cancelAlice()
	bobCh, cancelBob := broker.Subscribe("bob")
	defer cancelBob()

	broker.Publish(Event{Type: EventSessionStarted, UserID: "alice", PlaceID: "cafe-1", At: time.Now()})

	select {
	case evt := <-aliceCh:
		if evt.Type != EventSessionStarted || evt.PlaceID != "cafe-1" {
			t.Fatalf("unexpected event: %+v", evt)
		}
	default:
		t.Fatal("expected alice to receive the event")
	}

	select {
	case evt := <-bobCh:
		t.Fatalf("bob must not receive alice's event: %+v", evt)
	default:
	}
}

func TestBrokerCancelClosesChannel(t *testing.T) {
	broker := NewBroker()

	ch, cancel := broker.Subscribe("alice")
	if got := broker.SubscriberCount("alice"); got != 1 {
		t.Fatalf("expected 1 subscriber, got %d", got)
	}

	cancel()
	cancel() // safe to call twice

	if got := broker.SubscriberCount("alice"); got != 0 {
		t.Fatalf("expected 0 subscribers after cancel, got %d", got)
	}

	if _, open := <-ch; open {
		t.Fatal("expected channel to be closed")
	}

	// Publishing after cancel must not panic or block.
	broker.Publish(Event{Type: EventSessionCleared, UserID: "alice", At: time.Now()})
}

func TestBrokerDropsWhenSubscriberLags(t *testing.T) {
	broker := NewBroker()

	ch, cancel := broker.Subscribe("alice")
	defer cancel()

	total := subscriberBuffer + 5
	for i := 0; i < total; i++ {
		broker.Publish(Event{Type: EventAvailabilityChanged, UserID: "alice", At: time.Now()})
	}

	received := 0
	for {
		select {
		case <-ch:
			received++
			continue
		default:
		}
		break
	}

	if received != subscriberBuffer {
		t.Fatalf("expected %d buffered events, got %d", subscriberBuffer, received)
	}
}

func TestBrokerMultipleSubscriptionsSameUser(t *testing.T) {
	broker := NewBroker()

	first, cancelFirst := broker.Subscribe("alice")
	defer cancelFirst()
	second, cancelSecond := broker.Subscribe("alice")
	defer cancelSecond()

	broker.Publish(Event{Type: EventSessionExpired, UserID: "alice", At: time.Now()})

	for i, ch := range []<-chan Event{first, second} {
		select {
		case evt := <-ch:
			if evt.Type != EventSessionExpired {
				t.Fatalf("subscription %d: unexpected event %+v", i, evt)
			}
		default:
			t.Fatalf("subscription %d: expected an event", i)
		}
	}
}
