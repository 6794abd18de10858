package stream

import (
	"testing"
	"time"

	"github.com/jerrsapps1/opssync/internal/model"
)

func recvEvent(t *testing.T, sub *Subscription) model.AssignmentEvent {
	t.Helper()
	select {
	case ev, ok := <-sub.Events():
		if !ok {
			t.Fatal("subscription channel closed unexpectedly")
		}
		return ev
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
	return model.AssignmentEvent{}
}

func expectNoEvent(t *testing.T, sub *Subscription) {
	t.Helper()
	select {
	case ev, ok := <-sub.Events():
		if ok {
			t.Fatalf("unexpected event seq=%d kind=%s", ev.Seq, ev.Kind)
		}
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHub_PublishFansOutInOrder(t *testing.T) {
	hub := NewHub(NewLog(100))

	a := hub.Subscribe(0, false)
	defer a.Close()
	b := hub.Subscribe(0, false)
	defer b.Close()

	for range 3 {
		hub.Publish(assignEvent("emp-1"))
	}

	for _, sub := range []*Subscription{a, b} {
		for want := uint64(1); want <= 3; want++ {
			ev := recvEvent(t, sub)
			if ev.Seq != want {
				t.Fatalf("got seq %d, want %d", ev.Seq, want)
			}
		}
	}
}

func TestHub_SubscribeWithCursorReplaysExactGap(t *testing.T) {
	hub := NewHub(NewLog(100))

	for range 60 {
		hub.Publish(assignEvent("emp-1"))
	}

	sub := hub.Subscribe(40, true)
	defer sub.Close()

	// Replay 41..60, then live events continue seamlessly.
	for want := uint64(41); want <= 60; want++ {
		ev := recvEvent(t, sub)
		if ev.Seq != want {
			t.Fatalf("replay: got seq %d, want %d", ev.Seq, want)
		}
	}

	hub.Publish(assignEvent("emp-2"))
	ev := recvEvent(t, sub)
	if ev.Seq != 61 {
		t.Fatalf("live after replay: got seq %d, want 61", ev.Seq)
	}
}

func TestHub_StaleCursorGetsSingleResync(t *testing.T) {
	hub := NewHub(NewLog(5))

	for range 20 {
		hub.Publish(assignEvent("emp-1"))
	}

	sub := hub.Subscribe(1, true)
	defer sub.Close()

	ev := recvEvent(t, sub)
	if ev.Kind != model.EventResyncRequired {
		t.Fatalf("expected resync.required first, got %s", ev.Kind)
	}
	if ev.Seq != 20 {
		t.Fatalf("resync event should carry current seq 20, got %d", ev.Seq)
	}

	// Exactly one resync, then live events only.
	hub.Publish(assignEvent("emp-2"))
	next := recvEvent(t, sub)
	if next.Kind != model.EventAssignmentUpdated || next.Seq != 21 {
		t.Fatalf("expected live seq 21 after resync, got kind=%s seq=%d", next.Kind, next.Seq)
	}
}

func TestHub_NoCursorNoReplay(t *testing.T) {
	hub := NewHub(NewLog(100))
	for range 5 {
		hub.Publish(assignEvent("emp-1"))
	}

	sub := hub.Subscribe(0, false)
	defer sub.Close()

	hub.Publish(assignEvent("emp-2"))
	ev := recvEvent(t, sub)
	if ev.Seq != 6 {
		t.Fatalf("fresh subscription should only see live events, got seq %d", ev.Seq)
	}
}

func TestHub_SlowSubscriberClosed(t *testing.T) {
	hub := NewHub(NewLog(2000))

	sub := hub.Subscribe(0, false)

	// Never read from the channel; overflow must close the subscription
	// rather than block the publisher.
	for range subscriptionBuffer + 10 {
		hub.Publish(assignEvent("emp-1"))
	}

	if got := sub.State(); got != StateClosed {
		t.Fatalf("expected closed subscription, got %s", got)
	}
	if hub.Subscribers() != 0 {
		t.Fatalf("expected 0 subscribers, got %d", hub.Subscribers())
	}
}

func TestHub_CloseUnregisters(t *testing.T) {
	hub := NewHub(NewLog(100))
	sub := hub.Subscribe(0, false)
	sub.Close()
	sub.Close() // idempotent

	if hub.Subscribers() != 0 {
		t.Fatalf("expected 0 subscribers, got %d", hub.Subscribers())
	}
	hub.Publish(assignEvent("emp-1"))
	expectNoEvent(t, sub)
}

func TestHub_LastDeliveredTracksCursor(t *testing.T) {
	hub := NewHub(NewLog(100))
	sub := hub.Subscribe(0, false)
	defer sub.Close()

	hub.Publish(assignEvent("emp-1"))
	hub.Publish(assignEvent("emp-2"))

	if got := sub.LastDelivered(); got != 2 {
		t.Fatalf("LastDelivered = %d, want 2", got)
	}
}

func TestHub_DrainClosesAllSubscriptions(t *testing.T) {
	hub := NewHub(NewLog(100))
	a := hub.Subscribe(0, false)
	b := hub.Subscribe(0, false)

	hub.Drain()

	for _, sub := range []*Subscription{a, b} {
		if _, ok := <-sub.Events(); ok {
			t.Fatal("expected closed channel after drain")
		}
	}

	// New subscriptions are refused while draining.
	c := hub.Subscribe(0, false)
	if c.State() != StateClosed {
		t.Fatalf("expected new subscription to be closed, got %s", c.State())
	}
}
