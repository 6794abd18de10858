package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/jerrsapps1/opssync/internal/model"
)

// pathEntity extracts and validates the {kind}/{id} path segments.
func pathEntity(r *http.Request) (model.EntityKind, string, error) {
	kind := model.EntityKind(r.PathValue("kind"))
	if !kind.IsValid() {
		return "", "", inputError("kind must be employee or equipment")
	}
	id := r.PathValue("id")
	if id == "" {
		return "", "", inputError("id is required")
	}
	return kind, id, nil
}

// handleCreateEntity handles POST /v1/entities.
func (s *Server) handleCreateEntity(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Kind model.EntityKind `json:"kind"`
		Name string           `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if !in.Kind.IsValid() {
		writeError(w, http.StatusBadRequest, "kind must be employee or equipment")
		return
	}
	if in.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}

	entity, err := s.service.Create(r.Context(), in.Kind, in.Name)
	if err != nil {
		s.logger.Error("create entity failed", "kind", in.Kind, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create entity")
		return
	}
	writeJSON(w, http.StatusCreated, entity)
}

// handleListEntities handles GET /v1/entities. This is also the full-state
// fetch clients perform after a resync.required control event.
func (s *Server) handleListEntities(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := model.EntityFilter{
		Search: q.Get("search"),
	}
	if v := q.Get("kind"); v != "" {
		for _, k := range strings.Split(v, ",") {
			filter.Kind = append(filter.Kind, model.EntityKind(k))
		}
	}
	if v := q.Get("status"); v != "" {
		for _, st := range strings.Split(v, ",") {
			filter.Status = append(filter.Status, model.Status(st))
		}
	}
	if q.Has("assignment") {
		a := model.Assignment(q.Get("assignment"))
		filter.Assignment = &a
	}
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			filter.Limit = n
		}
	}
	if v := q.Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			filter.Offset = n
		}
	}

	// asOf lets the client open its stream with a cursor consistent with
	// this snapshot. It is read before the list: a mutation landing during
	// the read is then replayed on resume, which the client applies
	// idempotently, whereas a cursor past the snapshot would skip it for good.
	asOf := s.hub.Log().LastSeq()

	entities, total, err := s.store.ListEntities(r.Context(), filter)
	if err != nil {
		s.logger.Error("list entities failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list entities")
		return
	}
	if entities == nil {
		entities = []*model.Entity{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"entities": entities,
		"total":    total,
		"asOf":     asOf,
	})
}

// handleGetEntity handles GET /v1/entities/{kind}/{id}.
func (s *Server) handleGetEntity(w http.ResponseWriter, r *http.Request) {
	kind, id, err := pathEntity(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	entity, err := s.store.GetEntity(r.Context(), kind, id)
	if errors.Is(err, model.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, mutationFailure{ErrorKind: errKindNotFound, Error: "entity not found"})
		return
	}
	if err != nil {
		s.logger.Error("get entity failed", "kind", kind, "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get entity")
		return
	}
	writeJSON(w, http.StatusOK, entity)
}

// handleAssign handles PATCH /v1/entities/{kind}/{id}/assignment.
// Body: { "projectId": "prj-..." | "repair" | null }.
func (s *Server) handleAssign(w http.ResponseWriter, r *http.Request) {
	kind, id, err := pathEntity(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var in struct {
		ProjectID model.Assignment `json:"projectId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	entity, _, err := s.service.Assign(r.Context(), kind, id, in.ProjectID)
	if err != nil {
		s.writeMutationError(w, kind, id, err)
		return
	}
	writeJSON(w, http.StatusOK, entity)
}

// handleArchiveEntity handles POST /v1/entities/{kind}/{id}/archive.
func (s *Server) handleArchiveEntity(w http.ResponseWriter, r *http.Request) {
	kind, id, err := pathEntity(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	entity, _, err := s.service.Archive(r.Context(), kind, id)
	if err != nil {
		s.writeMutationError(w, kind, id, err)
		return
	}
	writeJSON(w, http.StatusOK, entity)
}

// handleRestoreEntity handles POST /v1/entities/{kind}/{id}/restore.
func (s *Server) handleRestoreEntity(w http.ResponseWriter, r *http.Request) {
	kind, id, err := pathEntity(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	entity, _, err := s.service.Restore(r.Context(), kind, id)
	if err != nil {
		s.writeMutationError(w, kind, id, err)
		return
	}
	writeJSON(w, http.StatusOK, entity)
}

// handleRemoveEntity handles DELETE /v1/entities/{kind}/{id}.
func (s *Server) handleRemoveEntity(w http.ResponseWriter, r *http.Request) {
	kind, id, err := pathEntity(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if _, _, err := s.service.Remove(r.Context(), kind, id); err != nil {
		s.writeMutationError(w, kind, id, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleConflicts handles GET /v1/conflicts (read-only diagnostic).
func (s *Server) handleConflicts(w http.ResponseWriter, r *http.Request) {
	findings, err := s.detector.FindConflicts(r.Context())
	if err != nil {
		s.logger.Error("conflict scan failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to scan for conflicts")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"conflicts": findings})
}

// writeMutationError maps mutation-service errors to the wire taxonomy.
func (s *Server) writeMutationError(w http.ResponseWriter, kind model.EntityKind, id string, err error) {
	if errors.Is(err, model.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, mutationFailure{
			ErrorKind: errKindNotFound,
			Error:     "entity not found",
		})
		return
	}
	if ce, ok := model.IsConflict(err); ok {
		current := ce.Current
		writeJSON(w, http.StatusConflict, mutationFailure{
			ErrorKind:    errKindConflict,
			Error:        ce.Error(),
			CurrentValue: &current,
			Version:      ce.Version,
		})
		return
	}
	var ie inputError
	if errors.As(err, &ie) {
		writeError(w, http.StatusBadRequest, ie.Error())
		return
	}
	s.logger.Error("mutation failed", "kind", kind, "id", id, "error", err)
	writeError(w, http.StatusInternalServerError, "mutation failed")
}
