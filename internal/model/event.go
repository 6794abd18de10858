package model

import "time"

// EventKind identifies what happened to an entity. The same values are used
// as the SSE `event:` field and (prefixed) as NATS subjects.
type EventKind string

const (
	EventAssignmentUpdated EventKind = "assignment.updated"
	EventEntityArchived    EventKind = "entity.archived"
	EventEntityRestored    EventKind = "entity.restored"
	EventEntityRemoved     EventKind = "entity.removed"

	// EventResyncRequired is a control event: the subscriber's cursor is too
	// stale for incremental replay and it must re-fetch full state out-of-band.
	// It is synthesized per-subscription and never enters the event log.
	EventResyncRequired EventKind = "resync.required"
)

// String returns the string representation of the event kind.
func (k EventKind) String() string {
	return string(k)
}

// AssignmentEvent is one entry in the totally-ordered event log. Immutable
// once sequenced; Seq is gapless and strictly increasing across all entities.
type AssignmentEvent struct {
	Seq        uint64     `json:"seq"`
	Kind       EventKind  `json:"kind"`
	EntityKind EntityKind `json:"entityKind"`
	EntityID   string     `json:"entityId"`
	NewValue   Assignment `json:"newValue"`
	Timestamp  time.Time  `json:"timestamp"`
}
