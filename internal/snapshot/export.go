package snapshot

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/jerrsapps1/opssync/internal/model"
	"github.com/jerrsapps1/opssync/internal/store"
)

// header is the first JSONL record written by ExportJSONL.
type header struct {
	Version     string    `json:"version"`
	Type        string    `json:"type"`
	Timestamp   time.Time `json:"timestamp"`
	EntityCount int       `json:"entity_count"`
}

// record wraps a single JSONL line with a type discriminator.
type record struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// ExportJSONL writes the full entity roster from the store as JSONL to w.
// Entities are sorted by kind then ID so consecutive snapshots diff cleanly.
func ExportJSONL(ctx context.Context, s store.Store, w io.Writer) error {
	entities, _, err := s.ListEntities(ctx, model.EntityFilter{})
	if err != nil {
		return fmt.Errorf("list entities: %w", err)
	}

	sort.Slice(entities, func(i, j int) bool {
		if entities[i].Kind != entities[j].Kind {
			return entities[i].Kind < entities[j].Kind
		}
		return entities[i].ID < entities[j].ID
	})

	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)

	if err := enc.Encode(header{
		Version:     "1",
		Type:        "header",
		Timestamp:   time.Now().UTC(),
		EntityCount: len(entities),
	}); err != nil {
		return fmt.Errorf("encode header: %w", err)
	}

	for _, e := range entities {
		if err := enc.Encode(record{Type: "entity", Data: e}); err != nil {
			return fmt.Errorf("encode entity %s: %w", e.ID, err)
		}
	}

	return nil
}
