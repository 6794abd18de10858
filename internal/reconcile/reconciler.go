// Package reconcile keeps a client's view of entity assignments consistent
// with the server. A drag is rendered optimistically and then reconciled
// against the authoritative event stream: confirmed when the matching event
// arrives, rolled back on a lost race, or superseded when someone else's
// move lands first.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jerrsapps1/opssync/internal/client"
	"github.com/jerrsapps1/opssync/internal/model"
)

// DefaultPendingTimeout bounds how long an optimistic value may go
// unconfirmed before the reconciler re-fetches truth directly.
const DefaultPendingTimeout = 10 * time.Second

// ErrMutationPending is returned when a drag starts while the entity already
// has an unresolved optimistic mutation. At most one mutation per entity may
// be in flight per client.
var ErrMutationPending = errors.New("a mutation for this entity is already pending")

// API is the subset of the service client the reconciler needs.
type API interface {
	AssignEntity(ctx context.Context, kind model.EntityKind, id string, projectID model.Assignment) (*model.Entity, error)
	GetEntity(ctx context.Context, kind model.EntityKind, id string) (*model.Entity, error)
	ListEntities(ctx context.Context, req *client.ListEntitiesRequest) (*client.ListEntitiesResponse, error)
}

// Clock abstracts time for pending-record deadlines.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// pendingRecord tracks one unconfirmed optimistic mutation.
type pendingRecord struct {
	value      model.Assignment // optimistic value being shown
	againstSeq uint64           // stream position when the drag started
	deadline   time.Time
	superseded bool // a foreign event won; ignore the mutation's own result
}

// Options configures a Reconciler. Zero values use defaults.
type Options struct {
	Notifier       Notifier
	Clock          Clock
	Logger         *slog.Logger
	PendingTimeout time.Duration
}

// Reconciler applies optimistic local mutations and reconciles them against
// authoritative stream events.
type Reconciler struct {
	api      API
	cache    *Cache
	notifier Notifier
	clock    Clock
	logger   *slog.Logger
	timeout  time.Duration

	mu      sync.Mutex
	pending map[Key]*pendingRecord
	lastSeq uint64
}

// New creates a Reconciler over an empty cache.
func New(api API, opts Options) *Reconciler {
	if opts.Notifier == nil {
		opts.Notifier = NopNotifier{}
	}
	if opts.Clock == nil {
		opts.Clock = systemClock{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.PendingTimeout <= 0 {
		opts.PendingTimeout = DefaultPendingTimeout
	}
	return &Reconciler{
		api:      api,
		cache:    NewCache(),
		notifier: opts.Notifier,
		clock:    opts.Clock,
		logger:   opts.Logger,
		timeout:  opts.PendingTimeout,
		pending:  make(map[Key]*pendingRecord),
	}
}

// Cache exposes the reconciler's entity view for rendering.
func (r *Reconciler) Cache() *Cache {
	return r.cache
}

// LastSeq returns the stream cursor: the last sequence applied to the cache.
func (r *Reconciler) LastSeq() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastSeq
}

// Drag applies a user-initiated move of the entity to target. The cache is
// updated immediately (optimistic render), then the mutation service is
// called; a Conflict or NotFound rolls the render back to authoritative
// truth. A successful call leaves the optimistic value in place until the
// matching stream event confirms it.
func (r *Reconciler) Drag(ctx context.Context, kind model.EntityKind, id string, target model.Assignment) error {
	k := Key{Kind: kind, ID: id}

	r.mu.Lock()
	if _, exists := r.pending[k]; exists {
		r.mu.Unlock()
		return ErrMutationPending
	}
	rec := &pendingRecord{
		value:      target,
		againstSeq: r.lastSeq,
		deadline:   r.clock.Now().Add(r.timeout),
	}
	r.pending[k] = rec
	r.mu.Unlock()

	r.cache.setAssignment(k, target)

	updated, err := r.api.AssignEntity(ctx, kind, id, target)

	// The superseded check and the confirming upsert must be one atomic
	// step: a foreign event landing between them would be overwritten by
	// our stale result and stay wrong until the pending timeout.
	r.mu.Lock()
	superseded := rec.superseded
	if err == nil && !superseded {
		r.cache.upsert(updated)
		r.mu.Unlock()
		return nil
	}
	delete(r.pending, k)
	r.mu.Unlock()

	if superseded {
		// Another user's move already won; the event's value stays rendered
		// even if our own call eventually succeeded with stale data.
		return nil
	}

	switch {
	case errors.Is(err, model.ErrNotFound):
		r.cache.remove(k)
		r.notifier.Notify(fmt.Sprintf("%s no longer exists; removed from board", id))
		return err
	default:
		if ce, ok := model.IsConflict(err); ok {
			r.cache.setAssignment(k, ce.Current)
			r.notifier.Notify(fmt.Sprintf("%s was moved by another user; showing current assignment", id))
			return err
		}
		// Transport-level failure: roll back by re-fetching truth.
		r.refetch(ctx, k)
		r.notifier.Notify(fmt.Sprintf("could not move %s; restored server state", id))
		return err
	}
}

// ApplyEvent reconciles one authoritative stream event against the cache.
// Events at or below the current cursor are duplicates and are ignored, so
// application is idempotent.
func (r *Reconciler) ApplyEvent(ctx context.Context, ev model.AssignmentEvent) {
	if ev.Kind == model.EventResyncRequired {
		if err := r.Resync(ctx); err != nil {
			r.logger.Warn("full resync failed", "error", err)
		}
		return
	}

	r.mu.Lock()
	if ev.Seq <= r.lastSeq {
		r.mu.Unlock()
		return
	}
	r.lastSeq = ev.Seq
	r.mu.Unlock()

	k := Key{Kind: ev.EntityKind, ID: ev.EntityID}
	switch ev.Kind {
	case model.EventAssignmentUpdated:
		r.applyAssignment(k, ev)
	case model.EventEntityArchived:
		r.resolvePending(k)
		r.cache.setStatus(k, model.StatusArchived)
	case model.EventEntityRestored:
		r.resolvePending(k)
		if _, ok := r.cache.Get(ev.EntityKind, ev.EntityID); ok {
			r.cache.setStatus(k, model.StatusActive)
		} else {
			r.refetch(ctx, k)
		}
	case model.EventEntityRemoved:
		r.resolvePending(k)
		r.cache.remove(k)
	}
}

func (r *Reconciler) applyAssignment(k Key, ev model.AssignmentEvent) {
	r.mu.Lock()
	rec := r.pending[k]
	switch {
	case rec == nil:
		// No local mutation in flight; just adopt the event.
	case rec.value == ev.NewValue:
		// Confirmation of our own optimistic move.
		delete(r.pending, k)
	default:
		// Someone else moved the entity first: the incoming event wins and
		// our in-flight mutation result must not overwrite it.
		rec.superseded = true
		r.mu.Unlock()
		r.cache.setAssignment(k, ev.NewValue)
		r.notifier.Notify(fmt.Sprintf("%s was reassigned by another user", k.ID))
		return
	}
	r.mu.Unlock()
	r.cache.setAssignment(k, ev.NewValue)
}

// resolvePending discards any optimistic record for k; lifecycle events are
// authoritative for the whole entity.
func (r *Reconciler) resolvePending(k Key) {
	r.mu.Lock()
	delete(r.pending, k)
	r.mu.Unlock()
}

// Resync replaces the whole cache from a roster snapshot. Any optimistic
// records are discarded; the snapshot is truth.
func (r *Reconciler) Resync(ctx context.Context) error {
	resp, err := r.api.ListEntities(ctx, &client.ListEntitiesRequest{})
	if err != nil {
		return fmt.Errorf("fetching roster snapshot: %w", err)
	}
	r.cache.Replace(resp.Entities)

	r.mu.Lock()
	r.pending = make(map[Key]*pendingRecord)
	if resp.AsOf > r.lastSeq {
		r.lastSeq = resp.AsOf
	}
	r.mu.Unlock()
	return nil
}

// ExpireStale resolves optimistic records whose deadline has passed without
// a confirming event or error: the entity's truth is re-fetched so the
// render never stays in an indefinite "maybe" state. Call it periodically.
func (r *Reconciler) ExpireStale(ctx context.Context) {
	now := r.clock.Now()

	r.mu.Lock()
	var expired []Key
	for k, rec := range r.pending {
		if now.After(rec.deadline) {
			expired = append(expired, k)
			delete(r.pending, k)
		}
	}
	r.mu.Unlock()

	for _, k := range expired {
		r.refetch(ctx, k)
		r.notifier.Notify(fmt.Sprintf("%s took too long to confirm; restored server state", k.ID))
	}
}

// refetch replaces the cached entry with the store's current truth.
func (r *Reconciler) refetch(ctx context.Context, k Key) {
	e, err := r.api.GetEntity(ctx, k.Kind, k.ID)
	if errors.Is(err, model.ErrNotFound) {
		r.cache.remove(k)
		return
	}
	if err != nil {
		r.logger.Warn("failed to re-fetch entity", "kind", k.Kind, "id", k.ID, "error", err)
		return
	}
	r.cache.upsert(e)
}
