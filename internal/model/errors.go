package model

import (
	"errors"
	"fmt"
)

// ErrNotFound indicates the entity no longer exists. Clients should drop it
// from their caches.
var ErrNotFound = errors.New("entity not found")

// ErrGapTooLarge indicates a replay cursor older than the retained event
// window. The subscriber must perform a full resync instead of incremental
// replay.
var ErrGapTooLarge = errors.New("cursor predates retained events")

// ConflictError reports a lost compare-and-swap race. Current carries the
// authoritative assignment so the caller can re-render from truth instead of
// retrying blindly.
type ConflictError struct {
	EntityKind EntityKind
	EntityID   string
	Current    Assignment
	Version    int64
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("assignment conflict on %s %s: current value %q at version %d",
		e.EntityKind, e.EntityID, e.Current, e.Version)
}

// IsConflict reports whether err is a ConflictError and returns it.
func IsConflict(err error) (*ConflictError, bool) {
	var ce *ConflictError
	if errors.As(err, &ce) {
		return ce, true
	}
	return nil, false
}
