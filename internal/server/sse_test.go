package server

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/jerrsapps1/opssync/internal/model"
)

// sseEvent is one parsed server-sent event.
type sseEvent struct {
	id    string
	event string
	data  string
}

// readSSE reads n events from an open stream response, ignoring heartbeats.
func readSSE(t *testing.T, r *bufio.Reader, n int) []sseEvent {
	t.Helper()
	var out []sseEvent
	var cur sseEvent
	for len(out) < n {
		line, err := r.ReadString('\n')
		if err != nil {
			t.Fatalf("read stream after %d events: %v", len(out), err)
		}
		line = strings.TrimRight(line, "\n")
		switch {
		case line == "":
			if cur.event != "" || cur.data != "" {
				out = append(out, cur)
			}
			cur = sseEvent{}
		case strings.HasPrefix(line, ":"):
			// heartbeat comment
		case strings.HasPrefix(line, "id:"):
			cur.id = strings.TrimPrefix(line, "id:")
		case strings.HasPrefix(line, "event:"):
			cur.event = strings.TrimPrefix(line, "event:")
		case strings.HasPrefix(line, "data:"):
			cur.data = strings.TrimPrefix(line, "data:")
		}
	}
	return out
}

func openStream(t *testing.T, ts *testServer, path string, header map[string]string) (*bufio.Reader, func()) {
	t.Helper()
	srv := httptest.NewServer(ts.handler)

	ctx, cancel := context.WithCancel(context.Background())
	req, err := http.NewRequestWithContext(ctx, "GET", srv.URL+path, nil)
	if err != nil {
		cancel()
		srv.Close()
		t.Fatalf("build request: %v", err)
	}
	for k, v := range header {
		req.Header.Set(k, v)
	}
	resp, err := srv.Client().Do(req)
	if err != nil {
		cancel()
		srv.Close()
		t.Fatalf("open stream: %v", err)
	}
	if resp.StatusCode != 200 {
		cancel()
		srv.Close()
		t.Fatalf("stream status = %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q", ct)
	}
	cleanup := func() {
		cancel()
		resp.Body.Close()
		srv.Close()
	}
	return bufio.NewReader(resp.Body), cleanup
}

func publishN(ts *testServer, n int) {
	for i := 0; i < n; i++ {
		ts.hub.Publish(model.AssignmentEvent{
			Kind:       model.EventAssignmentUpdated,
			EntityKind: model.KindEmployee,
			EntityID:   "emp-1",
			NewValue:   "site-7",
		})
	}
}

func TestStream_ReplaySince(t *testing.T) {
	ts := newTestServer(t, nil, "")
	publishN(ts, 5)

	r, cleanup := openStream(t, ts, "/v1/stream?since=2", nil)
	defer cleanup()

	got := readSSE(t, r, 3)
	wantIDs := []string{"3", "4", "5"}
	for i, ev := range got {
		if ev.id != wantIDs[i] {
			t.Fatalf("event ids = %v, want %v", got, wantIDs)
		}
		if ev.event != string(model.EventAssignmentUpdated) {
			t.Errorf("event type = %q", ev.event)
		}
		var data streamEventData
		if err := json.Unmarshal([]byte(ev.data), &data); err != nil {
			t.Fatalf("unmarshal data: %v", err)
		}
		if data.EntityID != "emp-1" || data.NewValue != "site-7" {
			t.Errorf("data = %+v", data)
		}
	}
}

func TestStream_LastEventIDHeader(t *testing.T) {
	ts := newTestServer(t, nil, "")
	publishN(ts, 3)

	r, cleanup := openStream(t, ts, "/v1/stream", map[string]string{"Last-Event-ID": "1"})
	defer cleanup()

	got := readSSE(t, r, 2)
	if got[0].id != "2" || got[1].id != "3" {
		t.Fatalf("event ids = %v, want [2 3]", got)
	}
}

func TestStream_StaleCursorGetsResync(t *testing.T) {
	ts := newTestServer(t, nil, "")
	// Capacity 100; push the oldest retained seq past the cursor.
	publishN(ts, 150)

	r, cleanup := openStream(t, ts, "/v1/stream?since=10", nil)
	defer cleanup()

	got := readSSE(t, r, 1)
	if got[0].event != string(model.EventResyncRequired) {
		t.Fatalf("event = %+v, want resync.required", got[0])
	}
	var data resyncData
	if err := json.Unmarshal([]byte(got[0].data), &data); err != nil {
		t.Fatalf("unmarshal resync data: %v", err)
	}
	if data.Seq != 150 {
		t.Errorf("resync seq = %d, want 150", data.Seq)
	}
}

func TestStream_BadCursor(t *testing.T) {
	ts := newTestServer(t, nil, "")

	w := ts.do(t, "GET", "/v1/stream?since=banana", nil)
	if w.Code != 400 {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestStream_Heartbeat(t *testing.T) {
	ts := newTestServer(t, nil, "") // 50ms heartbeat from newTestServer

	r, cleanup := openStream(t, ts, "/v1/stream", nil)
	defer cleanup()

	deadline := time.After(2 * time.Second)
	lineCh := make(chan string, 1)
	go func() {
		line, err := r.ReadString('\n')
		if err == nil {
			lineCh <- line
		}
	}()
	select {
	case line := <-lineCh:
		if !strings.HasPrefix(line, ":heartbeat") {
			t.Fatalf("first idle line = %q, want heartbeat comment", line)
		}
	case <-deadline:
		t.Fatal("no heartbeat within 2s")
	}
}

func TestWriteStreamEvent_WireFormat(t *testing.T) {
	w := httptest.NewRecorder()
	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	err := writeStreamEvent(w, model.AssignmentEvent{
		Seq:        42,
		Kind:       model.EventAssignmentUpdated,
		EntityKind: model.KindEquipment,
		EntityID:   "eq-1",
		NewValue:   "repair",
		Timestamp:  ts,
	})
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	got := w.Body.String()
	if !strings.HasPrefix(got, "id:42\nevent:assignment.updated\ndata:") {
		t.Errorf("frame = %q", got)
	}
	if !strings.HasSuffix(got, "\n\n") {
		t.Errorf("frame must end with a blank line, got %q", got)
	}
	if !strings.Contains(got, `"newValue":"repair"`) {
		t.Errorf("data payload = %q", got)
	}
}
