// Package store defines the entity persistence contract. All assignment
// writes go through CompareAndSwapAssignment; no other path mutates an
// entity's owner.
package store

import (
	"context"

	"github.com/jerrsapps1/opssync/internal/model"
)

// Store is the Entity Store contract.
type Store interface {
	// CreateEntity inserts a new entity record.
	CreateEntity(ctx context.Context, e *model.Entity) error

	// GetEntity returns the entity or model.ErrNotFound.
	GetEntity(ctx context.Context, kind model.EntityKind, id string) (*model.Entity, error)

	// ListEntities returns matching entities and the total count before
	// limit/offset.
	ListEntities(ctx context.Context, filter model.EntityFilter) ([]*model.Entity, int, error)

	// CompareAndSwapAssignment sets the entity's assignment iff its version
	// still equals expectedVersion, bumping the version. On a lost race it
	// returns *model.ConflictError carrying the now-current value; on a
	// missing entity it returns model.ErrNotFound.
	CompareAndSwapAssignment(ctx context.Context, kind model.EntityKind, id string, expectedVersion int64, value model.Assignment) (*model.Entity, error)

	// SetStatus archives or restores an entity, returning the updated record.
	// Archiving clears the assignment in the same write, so an archived
	// entity that still carries an owner can only come from an out-of-band
	// write (the conflict detector reports those).
	SetStatus(ctx context.Context, kind model.EntityKind, id string, status model.Status) (*model.Entity, error)

	// DeleteEntity removes the record, returning its final state so callers
	// can emit an event carrying the last assignment value.
	DeleteEntity(ctx context.Context, kind model.EntityKind, id string) (*model.Entity, error)

	// Lifecycle
	Close() error
}
