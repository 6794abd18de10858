// Package stream implements the assignment event bridge: a sequencer log
// that totally orders events with a bounded replay buffer, and a hub that
// fans events out to live subscriptions with resume-cursor replay.
package stream

import (
	"sync"
	"time"

	"github.com/jerrsapps1/opssync/internal/model"
)

// DefaultLogCapacity is the number of recent events retained for replay.
const DefaultLogCapacity = 1000

// Log assigns gapless, strictly increasing sequence numbers and retains the
// most recent events in a ring buffer for reconnection replay.
//
// A single mutex covers both sequence assignment and ring insertion, so an
// event becomes visible to ReplaySince in the same indivisible step that
// numbers it. Two subscribers can never observe different orderings.
type Log struct {
	mu      sync.Mutex
	ring    []model.AssignmentEvent
	pos     int    // next write position (wraps around)
	length  int    // number of valid entries (up to capacity)
	lastSeq uint64 // highest sequence assigned so far; 0 = none
}

// NewLog creates a log retaining up to capacity events. A capacity of zero
// or less falls back to DefaultLogCapacity.
func NewLog(capacity int) *Log {
	if capacity <= 0 {
		capacity = DefaultLogCapacity
	}
	return &Log{ring: make([]model.AssignmentEvent, capacity)}
}

// Append assigns the next sequence number to ev, stamps its timestamp if
// unset, inserts it into the ring buffer, and returns the stamped event.
// Eviction is oldest-first.
func (l *Log) Append(ev model.AssignmentEvent) model.AssignmentEvent {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.lastSeq++
	ev.Seq = l.lastSeq
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}

	l.ring[l.pos] = ev
	l.pos = (l.pos + 1) % len(l.ring)
	if l.length < len(l.ring) {
		l.length++
	}
	return ev
}

// ReplaySince returns retained events with sequence > seq, in order.
// It returns model.ErrGapTooLarge when events newer than seq have already
// been evicted, in which case the caller must force a full resync.
func (l *Log) ReplaySince(seq uint64) ([]model.AssignmentEvent, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.replaySinceLocked(seq)
}

func (l *Log) replaySinceLocked(seq uint64) ([]model.AssignmentEvent, error) {
	if seq >= l.lastSeq {
		// Nothing newer than the cursor; the cursor may even be ahead of us
		// (e.g. after a server restart), which live delivery will correct.
		return nil, nil
	}

	oldest := l.lastSeq - uint64(l.length) + 1
	if seq+1 < oldest {
		return nil, model.ErrGapTooLarge
	}

	n := int(l.lastSeq - seq)
	out := make([]model.AssignmentEvent, 0, n)
	start := l.pos - l.length
	if start < 0 {
		start += len(l.ring)
	}
	for i := range l.length {
		ev := l.ring[(start+i)%len(l.ring)]
		if ev.Seq > seq {
			out = append(out, ev)
		}
	}
	return out, nil
}

// LastSeq returns the highest sequence number assigned so far (0 if none).
func (l *Log) LastSeq() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lastSeq
}
