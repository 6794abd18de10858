package reconcile

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jerrsapps1/opssync/internal/client"
	"github.com/jerrsapps1/opssync/internal/model"
)

// fakeAPI is a scriptable stand-in for the server.
type fakeAPI struct {
	mu sync.Mutex

	assignResult *model.Entity
	assignErr    error
	assignCalls  int

	entities map[Key]*model.Entity
	asOf     uint64
	listErr  error
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{entities: make(map[Key]*model.Entity)}
}

func (a *fakeAPI) put(e *model.Entity) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entities[Key{Kind: e.Kind, ID: e.ID}] = e
}

func (a *fakeAPI) AssignEntity(_ context.Context, kind model.EntityKind, id string, _ model.Assignment) (*model.Entity, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.assignCalls++
	return a.assignResult, a.assignErr
}

func (a *fakeAPI) GetEntity(_ context.Context, kind model.EntityKind, id string) (*model.Entity, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	e, ok := a.entities[Key{Kind: kind, ID: id}]
	if !ok {
		return nil, model.ErrNotFound
	}
	cp := *e
	return &cp, nil
}

func (a *fakeAPI) ListEntities(context.Context, *client.ListEntitiesRequest) (*client.ListEntitiesResponse, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.listErr != nil {
		return nil, a.listErr
	}
	var out []*model.Entity
	for _, e := range a.entities {
		cp := *e
		out = append(out, &cp)
	}
	return &client.ListEntitiesResponse{Entities: out, Total: len(out), AsOf: a.asOf}, nil
}

// captureNotifier records user-facing messages.
type captureNotifier struct {
	mu       sync.Mutex
	messages []string
}

func (n *captureNotifier) Notify(msg string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.messages = append(n.messages, msg)
}

func (n *captureNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.messages)
}

// stoppedClock is an adjustable test clock.
type stoppedClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *stoppedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *stoppedClock) advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func entity(kind model.EntityKind, id string, assignment model.Assignment, version int64) *model.Entity {
	return &model.Entity{ID: id, Kind: kind, Name: id, Assignment: assignment, Status: model.StatusActive, Version: version}
}

func newTestReconciler(api API) (*Reconciler, *captureNotifier, *stoppedClock) {
	n := &captureNotifier{}
	c := &stoppedClock{t: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	r := New(api, Options{Notifier: n, Clock: c})
	return r, n, c
}

func TestDrag_OptimisticThenConfirmed(t *testing.T) {
	api := newFakeAPI()
	api.put(entity(model.KindEquipment, "eq-1", "", 1))
	api.assignResult = entity(model.KindEquipment, "eq-1", "site-9", 2)
	r, _, _ := newTestReconciler(api)
	ctx := context.Background()
	if err := r.Resync(ctx); err != nil {
		t.Fatalf("resync: %v", err)
	}

	if err := r.Drag(ctx, model.KindEquipment, "eq-1", "site-9"); err != nil {
		t.Fatalf("drag: %v", err)
	}
	e, _ := r.Cache().Get(model.KindEquipment, "eq-1")
	if e.Assignment != "site-9" || e.Version != 2 {
		t.Errorf("cached entity: %+v", e)
	}

	// The confirming event arrives and clears the pending record.
	r.ApplyEvent(ctx, model.AssignmentEvent{Seq: 1, Kind: model.EventAssignmentUpdated, EntityKind: model.KindEquipment, EntityID: "eq-1", NewValue: "site-9"})

	// A second drag on the same entity must be allowed again.
	if err := r.Drag(ctx, model.KindEquipment, "eq-1", "site-4"); err != nil {
		t.Fatalf("second drag: %v", err)
	}
}

func TestDrag_SecondDragWhilePending(t *testing.T) {
	api := newFakeAPI()
	api.put(entity(model.KindEmployee, "emp-1", "", 1))
	ctx := context.Background()

	// Block the first drag inside AssignEntity so its record stays pending.
	started := make(chan struct{})
	release := make(chan struct{})
	blockingAPI := &blockingAssign{fakeAPI: api, started: started, release: release}
	r, _, _ := newTestReconciler(blockingAPI)
	if err := r.Resync(ctx); err != nil {
		t.Fatal(err)
	}

	done := make(chan error, 1)
	go func() {
		done <- r.Drag(ctx, model.KindEmployee, "emp-1", "site-7")
	}()
	<-started

	if err := r.Drag(ctx, model.KindEmployee, "emp-1", "site-9"); !errors.Is(err, ErrMutationPending) {
		t.Fatalf("second drag error = %v, want ErrMutationPending", err)
	}

	close(release)
	if err := <-done; err != nil {
		t.Fatalf("first drag: %v", err)
	}
}

// blockingAssign parks AssignEntity until released.
type blockingAssign struct {
	*fakeAPI
	started chan struct{}
	release chan struct{}
	once    sync.Once
}

func (b *blockingAssign) AssignEntity(ctx context.Context, kind model.EntityKind, id string, v model.Assignment) (*model.Entity, error) {
	b.once.Do(func() { close(b.started) })
	<-b.release
	return entity(kind, id, v, 2), nil
}

func TestDrag_ConflictRollsBackToAuthoritative(t *testing.T) {
	api := newFakeAPI()
	api.put(entity(model.KindEquipment, "eq-1", "", 1))
	api.assignErr = &model.ConflictError{EntityKind: model.KindEquipment, EntityID: "eq-1", Current: "site-4", Version: 3}
	r, notifier, _ := newTestReconciler(api)
	ctx := context.Background()
	if err := r.Resync(ctx); err != nil {
		t.Fatal(err)
	}

	err := r.Drag(ctx, model.KindEquipment, "eq-1", "site-9")
	if _, ok := model.IsConflict(err); !ok {
		t.Fatalf("drag error = %v, want ConflictError", err)
	}

	// The render shows the winner's value, not ours and not the stale one.
	e, _ := r.Cache().Get(model.KindEquipment, "eq-1")
	if e.Assignment != "site-4" {
		t.Errorf("assignment = %q, want site-4", e.Assignment)
	}
	if notifier.count() != 1 {
		t.Errorf("notifications = %d, want exactly 1", notifier.count())
	}
}

func TestDrag_NotFoundRemovesEntity(t *testing.T) {
	api := newFakeAPI()
	api.put(entity(model.KindEmployee, "emp-1", "", 1))
	r, notifier, _ := newTestReconciler(api)
	ctx := context.Background()
	if err := r.Resync(ctx); err != nil {
		t.Fatal(err)
	}
	api.assignErr = model.ErrNotFound

	err := r.Drag(ctx, model.KindEmployee, "emp-1", "site-7")
	if !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("drag error = %v, want ErrNotFound", err)
	}
	if _, ok := r.Cache().Get(model.KindEmployee, "emp-1"); ok {
		t.Error("entity still cached after NotFound")
	}
	if notifier.count() != 1 {
		t.Errorf("notifications = %d, want 1", notifier.count())
	}
}

func TestDrag_TransportErrorRefetchesTruth(t *testing.T) {
	api := newFakeAPI()
	api.put(entity(model.KindEmployee, "emp-1", "site-orig", 1))
	api.assignErr = errors.New("connection refused")
	r, notifier, _ := newTestReconciler(api)
	ctx := context.Background()
	if err := r.Resync(ctx); err != nil {
		t.Fatal(err)
	}

	if err := r.Drag(ctx, model.KindEmployee, "emp-1", "site-7"); err == nil {
		t.Fatal("expected transport error")
	}
	e, _ := r.Cache().Get(model.KindEmployee, "emp-1")
	if e.Assignment != "site-orig" {
		t.Errorf("assignment = %q, want rollback to site-orig", e.Assignment)
	}
	if notifier.count() != 1 {
		t.Errorf("notifications = %d, want 1", notifier.count())
	}
}

func TestApplyEvent_ForeignEventSupersedesPendingDrag(t *testing.T) {
	api := newFakeAPI()
	api.put(entity(model.KindEquipment, "eq-1", "", 1))

	started := make(chan struct{})
	release := make(chan struct{})
	blockingAPI := &blockingAssign{fakeAPI: api, started: started, release: release}
	r, notifier, _ := newTestReconciler(blockingAPI)
	ctx := context.Background()
	if err := r.Resync(ctx); err != nil {
		t.Fatal(err)
	}

	done := make(chan error, 1)
	go func() {
		done <- r.Drag(ctx, model.KindEquipment, "eq-1", "site-mine")
	}()
	<-started

	// Another user's event arrives while our call is in flight: it wins.
	r.ApplyEvent(ctx, model.AssignmentEvent{Seq: 1, Kind: model.EventAssignmentUpdated, EntityKind: model.KindEquipment, EntityID: "eq-1", NewValue: "site-theirs"})

	close(release)
	if err := <-done; err != nil {
		t.Fatalf("drag: %v", err)
	}

	e, _ := r.Cache().Get(model.KindEquipment, "eq-1")
	if e.Assignment != "site-theirs" {
		t.Errorf("assignment = %q, want the foreign event's site-theirs", e.Assignment)
	}
	if notifier.count() != 1 {
		t.Errorf("notifications = %d, want 1 (reassigned by another user)", notifier.count())
	}
}

func TestApplyEvent_DuplicateSeqIsIdempotent(t *testing.T) {
	api := newFakeAPI()
	api.put(entity(model.KindEmployee, "emp-1", "", 1))
	r, _, _ := newTestReconciler(api)
	ctx := context.Background()
	if err := r.Resync(ctx); err != nil {
		t.Fatal(err)
	}

	ev := model.AssignmentEvent{Seq: 1, Kind: model.EventAssignmentUpdated, EntityKind: model.KindEmployee, EntityID: "emp-1", NewValue: "site-7"}
	r.ApplyEvent(ctx, ev)

	later := model.AssignmentEvent{Seq: 2, Kind: model.EventAssignmentUpdated, EntityKind: model.KindEmployee, EntityID: "emp-1", NewValue: "site-9"}
	r.ApplyEvent(ctx, later)

	// Replay of the older event must not regress the cache.
	r.ApplyEvent(ctx, ev)
	e, _ := r.Cache().Get(model.KindEmployee, "emp-1")
	if e.Assignment != "site-9" {
		t.Errorf("assignment = %q, replayed event regressed state", e.Assignment)
	}
	if r.LastSeq() != 2 {
		t.Errorf("LastSeq = %d, want 2", r.LastSeq())
	}
}

func TestApplyEvent_LifecycleEvents(t *testing.T) {
	api := newFakeAPI()
	api.put(entity(model.KindEquipment, "eq-1", "site-7", 2))
	r, _, _ := newTestReconciler(api)
	ctx := context.Background()
	if err := r.Resync(ctx); err != nil {
		t.Fatal(err)
	}

	r.ApplyEvent(ctx, model.AssignmentEvent{Seq: 1, Kind: model.EventEntityArchived, EntityKind: model.KindEquipment, EntityID: "eq-1"})
	e, _ := r.Cache().Get(model.KindEquipment, "eq-1")
	if e.Status != model.StatusArchived || e.Assignment != "" {
		t.Errorf("after archive: %+v", e)
	}

	r.ApplyEvent(ctx, model.AssignmentEvent{Seq: 2, Kind: model.EventEntityRestored, EntityKind: model.KindEquipment, EntityID: "eq-1"})
	e, _ = r.Cache().Get(model.KindEquipment, "eq-1")
	if e.Status != model.StatusActive {
		t.Errorf("after restore: %+v", e)
	}

	r.ApplyEvent(ctx, model.AssignmentEvent{Seq: 3, Kind: model.EventEntityRemoved, EntityKind: model.KindEquipment, EntityID: "eq-1"})
	if _, ok := r.Cache().Get(model.KindEquipment, "eq-1"); ok {
		t.Error("entity still cached after removal event")
	}
}

func TestApplyEvent_ResyncRequired(t *testing.T) {
	api := newFakeAPI()
	api.put(entity(model.KindEmployee, "emp-1", "site-7", 2))
	api.asOf = 150
	r, _, _ := newTestReconciler(api)
	ctx := context.Background()

	r.ApplyEvent(ctx, model.AssignmentEvent{Seq: 150, Kind: model.EventResyncRequired})
	if r.Cache().Len() != 1 {
		t.Errorf("cache size = %d after resync", r.Cache().Len())
	}
	if r.LastSeq() != 150 {
		t.Errorf("LastSeq = %d, want snapshot's asOf 150", r.LastSeq())
	}
}

func TestExpireStale_RestoresTruthAfterTimeout(t *testing.T) {
	api := newFakeAPI()
	api.put(entity(model.KindEmployee, "emp-1", "site-orig", 1))

	started := make(chan struct{})
	release := make(chan struct{})
	blockingAPI := &blockingAssign{fakeAPI: api, started: started, release: release}
	r, notifier, clk := newTestReconciler(blockingAPI)
	ctx := context.Background()
	if err := r.Resync(ctx); err != nil {
		t.Fatal(err)
	}

	done := make(chan error, 1)
	go func() {
		done <- r.Drag(ctx, model.KindEmployee, "emp-1", "site-7")
	}()
	<-started

	// Before the deadline nothing expires.
	r.ExpireStale(ctx)
	if notifier.count() != 0 {
		t.Fatalf("premature expiry: %d notifications", notifier.count())
	}

	clk.advance(DefaultPendingTimeout + time.Second)
	r.ExpireStale(ctx)
	if notifier.count() != 1 {
		t.Fatalf("notifications = %d, want 1 after timeout", notifier.count())
	}
	e, _ := r.Cache().Get(model.KindEmployee, "emp-1")
	if e.Assignment != "site-orig" {
		t.Errorf("assignment = %q, want server truth site-orig", e.Assignment)
	}

	close(release)
	<-done
}

// signalingAPI flags when AssignEntity is about to return, so a test can
// race event application against the drag's post-processing.
type signalingAPI struct {
	*fakeAPI
	returning chan struct{}
}

func (a *signalingAPI) AssignEntity(ctx context.Context, kind model.EntityKind, id string, v model.Assignment) (*model.Entity, error) {
	e, err := a.fakeAPI.AssignEntity(ctx, kind, id, v)
	select {
	case a.returning <- struct{}{}:
	default:
	}
	return e, err
}

// A foreign event that lands while the drag's own (stale) success result is
// being processed must win: whichever side runs first, the cache has to end
// on the event's value, never re-render the local one.
func TestDrag_ForeignEventRacingConfirmationWins(t *testing.T) {
	ctx := context.Background()
	for range 200 {
		api := newFakeAPI()
		api.assignResult = &model.Entity{
			ID: "emp-1", Kind: model.KindEmployee,
			Assignment: "site-mine", Status: model.StatusActive, Version: 2,
		}
		sig := &signalingAPI{fakeAPI: api, returning: make(chan struct{}, 1)}
		rec := New(sig, Options{})
		rec.Cache().Replace([]*model.Entity{{
			ID: "emp-1", Kind: model.KindEmployee,
			Assignment: "site-orig", Status: model.StatusActive, Version: 1,
		}})

		done := make(chan error, 1)
		go func() {
			done <- rec.Drag(ctx, model.KindEmployee, "emp-1", "site-mine")
		}()
		<-sig.returning
		rec.ApplyEvent(ctx, model.AssignmentEvent{
			Seq: 1, Kind: model.EventAssignmentUpdated,
			EntityKind: model.KindEmployee, EntityID: "emp-1",
			NewValue: "site-theirs",
		})
		if err := <-done; err != nil {
			t.Fatalf("drag: %v", err)
		}

		e, ok := rec.Cache().Get(model.KindEmployee, "emp-1")
		if !ok {
			t.Fatal("entity missing from cache")
		}
		if e.Assignment != "site-theirs" {
			t.Fatalf("cache = %q after racing foreign event, want site-theirs", e.Assignment)
		}
	}
}
