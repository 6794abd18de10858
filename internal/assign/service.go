// Package assign implements the assignment mutation service: the only path
// by which an entity's owner may change. It enforces one-owner-at-a-time via
// the store's compare-and-swap and emits exactly one sequenced event per
// successful mutation.
package assign

import (
	"context"
	"fmt"
	"hash/fnv"
	"log/slog"
	"sync"
	"time"

	"github.com/jerrsapps1/opssync/internal/events"
	"github.com/jerrsapps1/opssync/internal/idgen"
	"github.com/jerrsapps1/opssync/internal/model"
	"github.com/jerrsapps1/opssync/internal/store"
	"github.com/jerrsapps1/opssync/internal/stream"
)

// lockStripes is the number of per-entity mutation locks. Collisions only
// cost unrelated entities a shared queue, never correctness.
const lockStripes = 64

// Service validates and applies entity mutations, sequencing an event for
// each successful change and fanning it out to the bus.
//
// Mutations on the same entity are serialized through a striped lock so that
// store commit order and event sequence order always agree: without it, a
// writer could commit first but sequence second, leaving every subscriber
// converged on the losing value while the store holds the winner.
type Service struct {
	store     store.Store
	hub       *stream.Hub
	publisher events.Publisher
	logger    *slog.Logger

	locks [lockStripes]sync.Mutex
}

// NewService returns a mutation service writing through the given store and
// emitting events via the hub (SSE subscribers) and publisher (NATS bus).
func NewService(st store.Store, hub *stream.Hub, pub events.Publisher, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: st, hub: hub, publisher: pub, logger: logger}
}

// Assign moves the entity to a new owner: a project ID, the repair sentinel,
// or empty to unassign. Concurrent calls on the same entity serialize through
// the store's version check; the loser gets *model.ConflictError with the
// winner's value. No event is emitted on failure.
func (s *Service) Assign(ctx context.Context, kind model.EntityKind, id string, value model.Assignment) (*model.Entity, model.AssignmentEvent, error) {
	mu := s.lockEntity(kind, id)
	mu.Lock()
	defer mu.Unlock()

	current, err := s.store.GetEntity(ctx, kind, id)
	if err != nil {
		return nil, model.AssignmentEvent{}, err
	}

	updated, err := s.store.CompareAndSwapAssignment(ctx, kind, id, current.Version, value)
	if err != nil {
		return nil, model.AssignmentEvent{}, err
	}

	ev := s.emit(ctx, model.EventAssignmentUpdated, updated, updated.Assignment)
	return updated, ev, nil
}

// Create registers a new trackable entity. Creation is announced on the bus
// but is not part of the sequenced assignment stream; clients pick new
// entities up on their next roster fetch.
func (s *Service) Create(ctx context.Context, kind model.EntityKind, name string) (*model.Entity, error) {
	id, err := idgen.GenerateFor(kind)
	if err != nil {
		return nil, fmt.Errorf("generating entity id: %w", err)
	}

	now := time.Now().UTC()
	e := &model.Entity{
		ID:        id,
		Kind:      kind,
		Name:      name,
		Status:    model.StatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.CreateEntity(ctx, e); err != nil {
		return nil, fmt.Errorf("creating entity: %w", err)
	}

	if err := s.publisher.Publish(ctx, events.TopicEntityCreated, e); err != nil {
		s.logger.Warn("failed to publish entity.created", "entity_id", e.ID, "error", err)
	}
	return e, nil
}

// Archive takes the entity off the board. Its assignment is cleared in the
// same store write, and the emitted event carries the cleared value so
// client caches drop it from any project column.
func (s *Service) Archive(ctx context.Context, kind model.EntityKind, id string) (*model.Entity, model.AssignmentEvent, error) {
	mu := s.lockEntity(kind, id)
	mu.Lock()
	defer mu.Unlock()

	updated, err := s.store.SetStatus(ctx, kind, id, model.StatusArchived)
	if err != nil {
		return nil, model.AssignmentEvent{}, err
	}
	ev := s.emit(ctx, model.EventEntityArchived, updated, updated.Assignment)
	return updated, ev, nil
}

// Restore returns an archived entity to the active roster, unassigned.
func (s *Service) Restore(ctx context.Context, kind model.EntityKind, id string) (*model.Entity, model.AssignmentEvent, error) {
	mu := s.lockEntity(kind, id)
	mu.Lock()
	defer mu.Unlock()

	updated, err := s.store.SetStatus(ctx, kind, id, model.StatusActive)
	if err != nil {
		return nil, model.AssignmentEvent{}, err
	}
	ev := s.emit(ctx, model.EventEntityRestored, updated, updated.Assignment)
	return updated, ev, nil
}

// Remove deletes the entity. The event carries its last assignment value so
// caches can clear the right project column without a refetch.
func (s *Service) Remove(ctx context.Context, kind model.EntityKind, id string) (*model.Entity, model.AssignmentEvent, error) {
	mu := s.lockEntity(kind, id)
	mu.Lock()
	defer mu.Unlock()

	removed, err := s.store.DeleteEntity(ctx, kind, id)
	if err != nil {
		return nil, model.AssignmentEvent{}, err
	}
	ev := s.emit(ctx, model.EventEntityRemoved, removed, removed.Assignment)
	return removed, ev, nil
}

// lockEntity returns the stripe lock covering (kind, id).
func (s *Service) lockEntity(kind model.EntityKind, id string) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(kind))
	h.Write([]byte{0})
	h.Write([]byte(id))
	return &s.locks[h.Sum32()%lockStripes]
}

// emit sequences the event through the hub and mirrors it to the bus.
// Bus publication is best-effort; failures are logged, never propagated.
func (s *Service) emit(ctx context.Context, kind model.EventKind, e *model.Entity, value model.Assignment) model.AssignmentEvent {
	ev := s.hub.Publish(model.AssignmentEvent{
		Kind:       kind,
		EntityKind: e.Kind,
		EntityID:   e.ID,
		NewValue:   value,
	})
	if err := s.publisher.Publish(ctx, events.TopicFor(kind), ev); err != nil {
		s.logger.Warn("failed to publish event",
			"topic", events.TopicFor(kind), "entity_id", e.ID, "error", err)
	}
	return ev
}
