package client

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/jerrsapps1/opssync/internal/model"
)

// ErrStreamDisconnected is the transient condition between a dropped stream
// and the next successful reconnect. It is recovered locally with backoff
// and never surfaced as a hard failure.
var ErrStreamDisconnected = errors.New("stream disconnected")

// ErrStreamUnauthorized means the server rejected the stream credentials.
// Retrying with the same token cannot succeed, so Run returns it instead of
// backing off.
var ErrStreamUnauthorized = errors.New("stream authorization rejected")

// Default reconnect backoff window.
const (
	DefaultBackoffFloor   = 1 * time.Second
	DefaultBackoffCeiling = 15 * time.Second
)

// ConnState is the stream connection's lifecycle state.
type ConnState int

const (
	ConnConnecting ConnState = iota
	ConnLive
	ConnBackoff
	ConnClosed
)

// String returns a short name for the state.
func (s ConnState) String() string {
	switch s {
	case ConnConnecting:
		return "connecting"
	case ConnLive:
		return "live"
	case ConnBackoff:
		return "backoff"
	case ConnClosed:
		return "closed"
	}
	return "unknown"
}

// Clock abstracts time for the backoff loop so tests run without real timers.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

type realClock struct{}

func (realClock) Now() time.Time                         { return time.Now() }
func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// StreamOptions tunes a StreamClient. Zero values use defaults.
type StreamOptions struct {
	BackoffFloor   time.Duration
	BackoffCeiling time.Duration
	Clock          Clock
	HTTPClient     *http.Client

	// OnStateChange is invoked on every connection state transition, e.g.
	// to drive a "reconnecting" indicator. Optional.
	OnStateChange func(ConnState)
}

// StreamClient consumes the server's SSE stream with resumable reconnection.
// Connection handling is an explicit state machine
// (connecting/live/backoff/closed) with the backoff duration as a field, not
// ad hoc state captured in timer closures.
type StreamClient struct {
	url        string
	token      string
	httpClient *http.Client
	clock      Clock
	floor      time.Duration
	ceiling    time.Duration
	onState    func(ConnState)

	mu        sync.Mutex
	state     ConnState
	backoff   time.Duration // next reconnect delay
	lastSeq   uint64
	hasCursor bool
}

// NewStreamClient creates a stream client for baseURL (e.g.
// "http://localhost:8080"). It does not connect until Run is called.
func NewStreamClient(baseURL, token string, opts StreamOptions) *StreamClient {
	if opts.BackoffFloor <= 0 {
		opts.BackoffFloor = DefaultBackoffFloor
	}
	if opts.BackoffCeiling <= 0 {
		opts.BackoffCeiling = DefaultBackoffCeiling
	}
	if opts.Clock == nil {
		opts.Clock = realClock{}
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{}
	}
	return &StreamClient{
		url:        strings.TrimRight(baseURL, "/") + "/v1/stream",
		token:      token,
		httpClient: opts.HTTPClient,
		clock:      opts.Clock,
		floor:      opts.BackoffFloor,
		ceiling:    opts.BackoffCeiling,
		onState:    opts.OnStateChange,
		backoff:    opts.BackoffFloor,
	}
}

// SetCursor seeds the resume cursor, typically from a roster snapshot's AsOf
// sequence so the stream picks up exactly where the snapshot left off.
func (c *StreamClient) SetCursor(seq uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastSeq = seq
	c.hasCursor = true
}

// LastSeq returns the last sequence number processed.
func (c *StreamClient) LastSeq() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastSeq
}

// State returns the current connection state.
func (c *StreamClient) State() ConnState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *StreamClient) setState(s ConnState) {
	c.mu.Lock()
	changed := c.state != s
	c.state = s
	cb := c.onState
	c.mu.Unlock()
	if changed && cb != nil {
		cb(s)
	}
}

// Run connects and dispatches events to handler until ctx is canceled.
// Every reconnect attempt supplies the last-seen sequence; a successful
// connect resets the backoff to the floor, a failed one doubles it up to
// the ceiling.
func (c *StreamClient) Run(ctx context.Context, handler func(model.AssignmentEvent)) error {
	for {
		if err := ctx.Err(); err != nil {
			c.setState(ConnClosed)
			return err
		}

		c.setState(ConnConnecting)
		err := c.consume(ctx, handler)
		if ctx.Err() != nil {
			c.setState(ConnClosed)
			return ctx.Err()
		}
		// Rejected credentials are not a connection problem; looping on
		// them would just hide a misconfigured token behind backoff.
		if errors.Is(err, ErrStreamUnauthorized) {
			c.setState(ConnClosed)
			return err
		}

		c.mu.Lock()
		delay := c.backoff
		c.backoff = min(c.backoff*2, c.ceiling)
		c.mu.Unlock()

		// Everything else is transient from the client's point of view;
		// retry under the same policy regardless of cause.
		c.setState(ConnBackoff)

		select {
		case <-ctx.Done():
			c.setState(ConnClosed)
			return ctx.Err()
		case <-c.clock.After(delay):
		}
	}
}

// consume opens one stream connection and reads events until it breaks.
func (c *StreamClient) consume(ctx context.Context, handler func(model.AssignmentEvent)) error {
	url := c.url
	c.mu.Lock()
	if c.hasCursor {
		url += "?since=" + strconv.FormatUint(c.lastSeq, 10)
	}
	c.mu.Unlock()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "text/event-stream")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return fmt.Errorf("stream returned HTTP %d: %w", resp.StatusCode, ErrStreamUnauthorized)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("stream returned HTTP %d", resp.StatusCode)
	}

	// Connected: reset the backoff to the floor.
	c.setState(ConnLive)
	c.mu.Lock()
	c.backoff = c.floor
	c.mu.Unlock()

	var id, event, data string
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			if ev, ok := parseStreamEvent(id, event, data); ok {
				c.mu.Lock()
				c.lastSeq = ev.Seq
				c.hasCursor = true
				c.mu.Unlock()
				handler(ev)
			}
			id, event, data = "", "", ""
		case strings.HasPrefix(line, ":"):
			// Heartbeat comment; any read activity proves liveness.
		case strings.HasPrefix(line, "id:"):
			id = strings.TrimPrefix(line, "id:")
		case strings.HasPrefix(line, "event:"):
			event = strings.TrimPrefix(line, "event:")
		case strings.HasPrefix(line, "data:"):
			data = strings.TrimPrefix(line, "data:")
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	return ErrStreamDisconnected
}

// parseStreamEvent reconstructs an AssignmentEvent from SSE fields.
func parseStreamEvent(id, event, data string) (model.AssignmentEvent, bool) {
	if event == "" {
		return model.AssignmentEvent{}, false
	}
	kind := model.EventKind(strings.TrimSpace(event))

	if kind == model.EventResyncRequired {
		var rd struct {
			Seq uint64 `json:"seq"`
		}
		if err := json.Unmarshal([]byte(data), &rd); err != nil {
			return model.AssignmentEvent{}, false
		}
		return model.AssignmentEvent{Seq: rd.Seq, Kind: kind}, true
	}

	seq, err := strconv.ParseUint(strings.TrimSpace(id), 10, 64)
	if err != nil {
		return model.AssignmentEvent{}, false
	}
	var payload struct {
		EntityKind model.EntityKind `json:"entityKind"`
		EntityID   string           `json:"entityId"`
		NewValue   model.Assignment `json:"newValue"`
		Timestamp  time.Time        `json:"timestamp"`
	}
	if err := json.Unmarshal([]byte(data), &payload); err != nil {
		return model.AssignmentEvent{}, false
	}
	return model.AssignmentEvent{
		Seq:        seq,
		Kind:       kind,
		EntityKind: payload.EntityKind,
		EntityID:   payload.EntityID,
		NewValue:   payload.NewValue,
		Timestamp:  payload.Timestamp,
	}, true
}
