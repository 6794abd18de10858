package stream

import (
	"sync"

	"github.com/jerrsapps1/opssync/internal/model"
)

// subscriptionBuffer is the headroom each subscription's delivery channel has
// beyond any replayed backlog. A subscriber that falls further behind than
// this is closed rather than blocking the publisher.
const subscriptionBuffer = 64

// SubState is the lifecycle state of a subscription.
type SubState int

const (
	StateConnecting SubState = iota
	StateLive
	StateDraining
	StateClosed
)

// String returns a short name for the state.
func (s SubState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateLive:
		return "live"
	case StateDraining:
		return "draining"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

// Subscription is one live consumer of the event stream. Events arrive on
// Events() in global sequence order; resync.required control events are
// synthesized into the same channel when the resume cursor is too stale.
type Subscription struct {
	hub *Hub
	ch  chan model.AssignmentEvent

	mu            sync.Mutex
	state         SubState
	lastDelivered uint64
}

// Events returns the delivery channel. It is closed when the subscription
// transitions to Closed or the hub drains.
func (s *Subscription) Events() <-chan model.AssignmentEvent {
	return s.ch
}

// State returns the subscription's current lifecycle state.
func (s *Subscription) State() SubState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// LastDelivered returns the sequence number of the last event pushed to this
// subscription's channel.
func (s *Subscription) LastDelivered() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastDelivered
}

// Close unregisters the subscription. Safe to call more than once.
func (s *Subscription) Close() {
	s.hub.unsubscribe(s)
}

// deliver pushes an event without blocking. A full channel means the
// consumer is dead or hopelessly behind; the subscription is closed and no
// redelivery is attempted.
func (s *Subscription) deliver(ev model.AssignmentEvent) (ok bool) {
	s.mu.Lock()
	if s.state != StateLive {
		s.mu.Unlock()
		return false
	}
	select {
	case s.ch <- ev:
		s.lastDelivered = ev.Seq
		s.mu.Unlock()
		return true
	default:
		s.state = StateClosed
		s.mu.Unlock()
		return false
	}
}

// Hub fans sequenced events out to all live subscriptions. All event
// publication goes through Publish, which appends to the log and delivers to
// every subscription under one lock so per-subscription order always matches
// the global sequence order.
type Hub struct {
	log *Log

	mu       sync.Mutex
	subs     map[*Subscription]struct{}
	draining bool
}

// NewHub creates a hub publishing through the given log.
func NewHub(log *Log) *Hub {
	return &Hub{
		log:  log,
		subs: make(map[*Subscription]struct{}),
	}
}

// Log returns the underlying sequencer log.
func (h *Hub) Log() *Log {
	return h.log
}

// Publish sequences ev and delivers it to every live subscription. It
// returns the stamped event (sequence number and timestamp assigned).
func (h *Hub) Publish(ev model.AssignmentEvent) model.AssignmentEvent {
	h.mu.Lock()
	defer h.mu.Unlock()

	stamped := h.log.Append(ev)
	if h.draining {
		return stamped
	}
	for s := range h.subs {
		if !s.deliver(stamped) && s.State() == StateClosed {
			delete(h.subs, s)
			close(s.ch)
		}
	}
	return stamped
}

// Subscribe registers a new subscription. When hasCursor is true, events
// after `since` are replayed into the channel before any live event; if the
// cursor predates the retained window, a single resync.required control
// event is queued instead and live delivery resumes from the current
// sequence. The subscription is Live on return.
func (h *Hub) Subscribe(since uint64, hasCursor bool) *Subscription {
	h.mu.Lock()
	defer h.mu.Unlock()

	var backlog []model.AssignmentEvent
	if hasCursor {
		replayed, err := h.log.ReplaySince(since)
		if err != nil {
			// Cursor too stale: tell the client to re-fetch full state
			// out-of-band, then stream live from the current sequence.
			backlog = []model.AssignmentEvent{{
				Seq:  h.log.LastSeq(),
				Kind: model.EventResyncRequired,
			}}
		} else {
			backlog = replayed
		}
	}

	s := &Subscription{
		hub:   h,
		ch:    make(chan model.AssignmentEvent, len(backlog)+subscriptionBuffer),
		state: StateConnecting,
	}
	for _, ev := range backlog {
		s.ch <- ev
		s.lastDelivered = ev.Seq
	}
	s.state = StateLive

	if h.draining {
		s.state = StateClosed
		close(s.ch)
		return s
	}
	h.subs[s] = struct{}{}
	return s
}

// unsubscribe removes s from the hub and closes its channel.
func (h *Hub) unsubscribe(s *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subs[s]; !ok {
		return
	}
	delete(h.subs, s)

	s.mu.Lock()
	s.state = StateClosed
	s.mu.Unlock()
	close(s.ch)
}

// Drain stops live delivery and closes every subscription's channel after
// buffered events are flagged as the tail. New subscriptions are refused.
// Used during graceful server shutdown.
func (h *Hub) Drain() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.draining {
		return
	}
	h.draining = true
	for s := range h.subs {
		s.mu.Lock()
		s.state = StateDraining
		s.mu.Unlock()
		close(s.ch)
		delete(h.subs, s)
	}
}

// Subscribers returns the number of currently registered subscriptions.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}
