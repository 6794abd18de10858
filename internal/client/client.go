// Package client provides the HTTP/JSON API client for the opssync service
// and a resumable SSE stream client with reconnect backoff.
package client

import (
	"context"

	"github.com/jerrsapps1/opssync/internal/conflict"
	"github.com/jerrsapps1/opssync/internal/model"
)

// Client is the interface CLI commands and the reconciler use to talk to the
// server. Implemented by HTTPClient.
type Client interface {
	// Entities
	CreateEntity(ctx context.Context, kind model.EntityKind, name string) (*model.Entity, error)
	GetEntity(ctx context.Context, kind model.EntityKind, id string) (*model.Entity, error)
	ListEntities(ctx context.Context, req *ListEntitiesRequest) (*ListEntitiesResponse, error)
	AssignEntity(ctx context.Context, kind model.EntityKind, id string, projectID model.Assignment) (*model.Entity, error)
	ArchiveEntity(ctx context.Context, kind model.EntityKind, id string) (*model.Entity, error)
	RestoreEntity(ctx context.Context, kind model.EntityKind, id string) (*model.Entity, error)
	RemoveEntity(ctx context.Context, kind model.EntityKind, id string) error

	// Diagnostics
	FindConflicts(ctx context.Context) ([]conflict.Finding, error)
	Health(ctx context.Context) (string, error)

	// Lifecycle
	Close() error
}

// ListEntitiesRequest holds roster query parameters.
type ListEntitiesRequest struct {
	Kind       []model.EntityKind
	Status     []model.Status
	Assignment *model.Assignment
	Search     string
	Limit      int
	Offset     int
}

// ListEntitiesResponse is a roster snapshot. AsOf is the stream sequence the
// snapshot is consistent with; pass it as the stream resume cursor.
type ListEntitiesResponse struct {
	Entities []*model.Entity `json:"entities"`
	Total    int             `json:"total"`
	AsOf     uint64          `json:"asOf"`
}
