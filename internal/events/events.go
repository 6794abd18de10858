package events

import (
	"context"

	"github.com/jerrsapps1/opssync/internal/model"
)

// Event subjects. Assignment events fan out on per-kind subjects so other
// server instances and CLI watchers can filter with NATS wildcards
// ("opssync.>", "opssync.assignment.*", ...).
const (
	TopicPrefix = "opssync."

	TopicAssignmentUpdated = "opssync.assignment.updated"
	TopicEntityCreated     = "opssync.entity.created"
	TopicEntityArchived    = "opssync.entity.archived"
	TopicEntityRestored    = "opssync.entity.restored"
	TopicEntityRemoved     = "opssync.entity.removed"

	// TopicAll matches every opssync subject.
	TopicAll = "opssync.>"
)

// TopicFor maps a sequenced event kind to its NATS subject.
func TopicFor(kind model.EventKind) string {
	return TopicPrefix + string(kind)
}

// Publisher is the interface for emitting events to the bus.
type Publisher interface {
	Publish(ctx context.Context, topic string, event any) error
	Close() error
}
