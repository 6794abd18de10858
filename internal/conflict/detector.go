// Package conflict implements the diagnostic exclusivity scan. Because
// assignment is a single scalar per entity, this subsystem's own writes
// cannot violate the one-owner invariant; the detector catches damage from
// out-of-band writes (bulk imports, manual data fixes) that bypass the
// mutation service. It reports and never repairs.
package conflict

import (
	"context"
	"fmt"

	"github.com/jerrsapps1/opssync/internal/model"
	"github.com/jerrsapps1/opssync/internal/store"
)

// Finding reason strings.
const (
	ReasonDuplicateRosterEntry  = "duplicate roster entry"
	ReasonArchivedStillAssigned = "archived entity still assigned"
)

// Finding is one entity whose recorded state looks inconsistent.
type Finding struct {
	EntityKind model.EntityKind `json:"entityKind"`
	EntityID   string           `json:"entityId"`
	Assignment model.Assignment `json:"assignment"`
	Reason     string           `json:"reason"`
}

// Detector scans the store for exclusivity violations.
type Detector struct {
	store store.Store
}

// NewDetector returns a detector reading from the given store.
func NewDetector(st store.Store) *Detector {
	return &Detector{store: st}
}

// FindConflicts walks the full roster in one pass and reports entities whose
// recorded state violates "at most one active owner at a time". Best-effort:
// it sees a snapshot of the roster, not storage-level races in flight.
func (d *Detector) FindConflicts(ctx context.Context) ([]Finding, error) {
	entities, _, err := d.store.ListEntities(ctx, model.EntityFilter{})
	if err != nil {
		return nil, fmt.Errorf("listing entities: %w", err)
	}

	findings := []Finding{}
	seen := make(map[string]bool, len(entities))
	for _, e := range entities {
		k := string(e.Kind) + "/" + e.ID
		if seen[k] {
			findings = append(findings, Finding{
				EntityKind: e.Kind,
				EntityID:   e.ID,
				Assignment: e.Assignment,
				Reason:     ReasonDuplicateRosterEntry,
			})
			continue
		}
		seen[k] = true

		// The mutation service clears assignment when archiving, so an
		// archived entity with an owner means something wrote around it.
		if e.Status == model.StatusArchived && e.Assignment.IsAssigned() {
			findings = append(findings, Finding{
				EntityKind: e.Kind,
				EntityID:   e.ID,
				Assignment: e.Assignment,
				Reason:     ReasonArchivedStillAssigned,
			})
		}
	}
	return findings, nil
}
