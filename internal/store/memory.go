package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jerrsapps1/opssync/internal/model"
)

// MemoryStore is an in-process Store used for tests and single-node dev mode.
type MemoryStore struct {
	mu       sync.RWMutex
	entities map[string]*model.Entity // key: kind + "/" + id
}

// Compile-time check that MemoryStore implements Store.
var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entities: make(map[string]*model.Entity)}
}

func key(kind model.EntityKind, id string) string {
	return string(kind) + "/" + id
}

func (s *MemoryStore) CreateEntity(_ context.Context, e *model.Entity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *e
	if cp.Version == 0 {
		cp.Version = 1
	}
	s.entities[key(e.Kind, e.ID)] = &cp
	e.Version = cp.Version
	return nil
}

func (s *MemoryStore) GetEntity(_ context.Context, kind model.EntityKind, id string) (*model.Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entities[key(kind, id)]
	if !ok {
		return nil, model.ErrNotFound
	}
	cp := *e
	return &cp, nil
}

func (s *MemoryStore) ListEntities(_ context.Context, filter model.EntityFilter) ([]*model.Entity, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*model.Entity
	for _, e := range s.entities {
		if !matchFilter(e, filter) {
			continue
		}
		cp := *e
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Kind != out[j].Kind {
			return out[i].Kind < out[j].Kind
		}
		return out[i].ID < out[j].ID
	})

	total := len(out)
	if filter.Offset > 0 {
		if filter.Offset >= len(out) {
			out = nil
		} else {
			out = out[filter.Offset:]
		}
	}
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, total, nil
}

func matchFilter(e *model.Entity, f model.EntityFilter) bool {
	if len(f.Kind) > 0 {
		found := false
		for _, k := range f.Kind {
			if e.Kind == k {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if len(f.Status) > 0 {
		found := false
		for _, st := range f.Status {
			if e.Status == st {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.Assignment != nil && e.Assignment != *f.Assignment {
		return false
	}
	if f.Search != "" {
		q := strings.ToLower(f.Search)
		if !strings.Contains(strings.ToLower(e.Name), q) && !strings.Contains(strings.ToLower(e.ID), q) {
			return false
		}
	}
	return true
}

func (s *MemoryStore) CompareAndSwapAssignment(_ context.Context, kind model.EntityKind, id string, expectedVersion int64, value model.Assignment) (*model.Entity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entities[key(kind, id)]
	if !ok {
		return nil, model.ErrNotFound
	}
	if e.Version != expectedVersion {
		return nil, &model.ConflictError{
			EntityKind: kind,
			EntityID:   id,
			Current:    e.Assignment,
			Version:    e.Version,
		}
	}
	e.Assignment = value
	e.Version++
	e.UpdatedAt = time.Now().UTC()
	cp := *e
	return &cp, nil
}

func (s *MemoryStore) SetStatus(_ context.Context, kind model.EntityKind, id string, status model.Status) (*model.Entity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entities[key(kind, id)]
	if !ok {
		return nil, model.ErrNotFound
	}
	e.Status = status
	if status == model.StatusArchived {
		e.Assignment = ""
	}
	e.Version++
	e.UpdatedAt = time.Now().UTC()
	cp := *e
	return &cp, nil
}

func (s *MemoryStore) DeleteEntity(_ context.Context, kind model.EntityKind, id string) (*model.Entity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := key(kind, id)
	e, ok := s.entities[k]
	if !ok {
		return nil, model.ErrNotFound
	}
	delete(s.entities, k)
	return e, nil
}

// Close is a no-op for the in-memory store.
func (s *MemoryStore) Close() error { return nil }
