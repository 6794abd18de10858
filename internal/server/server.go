// Package server exposes the assignment bridge over HTTP: JSON mutation and
// roster endpoints plus the SSE event stream.
package server

import (
	"log/slog"
	"time"

	"github.com/jerrsapps1/opssync/internal/assign"
	"github.com/jerrsapps1/opssync/internal/conflict"
	"github.com/jerrsapps1/opssync/internal/store"
	"github.com/jerrsapps1/opssync/internal/stream"
)

// defaultHeartbeatInterval is how often heartbeat comments are written to an
// idle stream so clients can detect a dead connection.
const defaultHeartbeatInterval = 15 * time.Second

// Server wires the mutation service, conflict detector, and stream hub to
// their HTTP surfaces.
type Server struct {
	store    store.Store
	service  *assign.Service
	detector *conflict.Detector
	hub      *stream.Hub
	logger   *slog.Logger

	heartbeatInterval time.Duration
}

// New returns a Server. A zero heartbeatInterval falls back to the default.
func New(st store.Store, svc *assign.Service, det *conflict.Detector, hub *stream.Hub, logger *slog.Logger, heartbeatInterval time.Duration) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if heartbeatInterval <= 0 {
		heartbeatInterval = defaultHeartbeatInterval
	}
	return &Server{
		store:             st,
		service:           svc,
		detector:          det,
		hub:               hub,
		logger:            logger,
		heartbeatInterval: heartbeatInterval,
	}
}

// Hub returns the stream hub, exposed for graceful shutdown (Drain).
func (s *Server) Hub() *stream.Hub {
	return s.hub
}

// inputError indicates invalid user input. The HTTP layer maps this to 400.
type inputError string

func (e inputError) Error() string { return string(e) }
