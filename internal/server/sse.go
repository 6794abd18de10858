package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/jerrsapps1/opssync/internal/model"
)

// streamEventData is the `data:` payload for entity events.
type streamEventData struct {
	EntityKind model.EntityKind `json:"entityKind"`
	EntityID   string           `json:"entityId"`
	NewValue   model.Assignment `json:"newValue"`
	Timestamp  time.Time        `json:"timestamp"`
}

// resyncData is the `data:` payload for resync.required control events. Seq
// is the sequence the client should resume from after its full-state fetch.
type resyncData struct {
	Seq uint64 `json:"seq"`
}

// handleStream handles GET /v1/stream (SSE endpoint).
//
// The resume cursor is taken from the `since` query parameter or, on browser
// auto-reconnect, the Last-Event-ID header. With a cursor, missed events are
// replayed in order before live delivery; a cursor older than the replay
// window gets a single resync.required control event instead.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	var (
		since     uint64
		hasCursor bool
	)
	if v := r.URL.Query().Get("since"); v != "" {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "since must be a sequence number")
			return
		}
		since, hasCursor = n, true
	} else if v := r.Header.Get("Last-Event-ID"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			since, hasCursor = n, true
		}
	}

	sub := s.hub.Subscribe(since, hasCursor)
	defer sub.Close()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering.
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ctx := r.Context()
	heartbeat := time.NewTicker(s.heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, open := <-sub.Events():
			if !open {
				// Hub drained or the subscription overflowed; the client
				// reconnects with its cursor and replays the difference.
				return
			}
			if err := writeStreamEvent(w, ev); err != nil {
				return
			}
			flusher.Flush()
		case <-heartbeat.C:
			// Comment line keeps idle connections alive and lets clients
			// detect dead ones.
			if _, err := fmt.Fprint(w, ":heartbeat\n\n"); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

// writeStreamEvent writes a single event in SSE wire format.
func writeStreamEvent(w http.ResponseWriter, ev model.AssignmentEvent) error {
	var payload any
	if ev.Kind == model.EventResyncRequired {
		payload = resyncData{Seq: ev.Seq}
	} else {
		payload = streamEventData{
			EntityKind: ev.EntityKind,
			EntityID:   ev.EntityID,
			NewValue:   ev.NewValue,
			Timestamp:  ev.Timestamp,
		}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "id:%d\nevent:%s\ndata:%s\n\n", ev.Seq, ev.Kind, data)
	return err
}
