// Package projections provides fixtures for testing student record
// projections, both in isolation and behind a ProjectionManager.
package projections

import (
	"context"
	"reflect"
	"testing"
	"time"

	academic "github.com/songifi/LMS-Backend-sub004"
	"github.com/songifi/LMS-Backend-sub004/adapters/memory"
	"github.com/songifi/LMS-Backend-sub004/testing/testutil"
)

// TB is an alias for testing.TB to enable easier mocking in tests.
type TB = testing.TB

// ViewProjection is a projection whose views can be listed, such as the
// built-in grades, enrollments and degree progress projections.
type ViewProjection[V any] interface {
	academic.Projection
	State(ctx context.Context) ([]V, error)
	ForStudent(ctx context.Context, studentID string) ([]V, error)
}

// ProjectionTestFixture applies events straight to one projection.
type ProjectionTestFixture[V any] struct {
	t          TB
	ctx        context.Context
	projection ViewProjection[V]
	events     []academic.DomainEvent
}

// TestProjection creates a new projection test fixture.
func TestProjection[V any](t TB, projection ViewProjection[V]) *ProjectionTestFixture[V] {
	t.Helper()
	return &ProjectionTestFixture[V]{
		t:          t,
		ctx:        context.Background(),
		projection: projection,
	}
}

// WithContext sets a custom context.
func (f *ProjectionTestFixture[V]) WithContext(ctx context.Context) *ProjectionTestFixture[V] {
	f.ctx = ctx
	return f
}

// GivenEvents applies committed events to the projection in order.
func (f *ProjectionTestFixture[V]) GivenEvents(events ...academic.DomainEvent) *ProjectionTestFixture[V] {
	f.t.Helper()

	for _, event := range events {
		if err := f.projection.HandleEvent(f.ctx, event); err != nil {
			f.t.Fatalf("Failed to apply %s v%d of %s: %v", event.EventType(), event.Version, event.AggregateID, err)
		}
		f.events = append(f.events, event)
	}
	return f
}

// GivenHistory applies every event of a history.
func (f *ProjectionTestFixture[V]) GivenHistory(h *testutil.History) *ProjectionTestFixture[V] {
	f.t.Helper()
	return f.GivenEvents(h.Events()...)
}

// ThenStudentViews asserts the views of one student, in listing order.
func (f *ProjectionTestFixture[V]) ThenStudentViews(studentID string, expected ...V) *ProjectionTestFixture[V] {
	f.t.Helper()

	actual := f.forStudent(studentID)
	if len(actual) != len(expected) {
		f.t.Fatalf("Expected %d views for %s, got %d.\nExpected: %+v\nActual: %+v",
			len(expected), studentID, len(actual), expected, actual)
	}

	for i := range expected {
		if !reflect.DeepEqual(actual[i], expected[i]) {
			f.t.Errorf("View %d of %s mismatch:\nExpected: %+v\nActual: %+v", i, studentID, expected[i], actual[i])
		}
	}
	return f
}

// ThenStudentMatches runs check against the views of one student.
func (f *ProjectionTestFixture[V]) ThenStudentMatches(studentID string, check func(t TB, views []V)) *ProjectionTestFixture[V] {
	f.t.Helper()
	check(f.t, f.forStudent(studentID))
	return f
}

// ThenViewCount asserts the total number of views.
func (f *ProjectionTestFixture[V]) ThenViewCount(expected int) *ProjectionTestFixture[V] {
	f.t.Helper()

	if all := f.state(); len(all) != expected {
		f.t.Errorf("Expected %d views, got %d", expected, len(all))
	}
	return f
}

// ThenIdempotent applies every given event a second time and asserts the
// views did not change.
func (f *ProjectionTestFixture[V]) ThenIdempotent() *ProjectionTestFixture[V] {
	f.t.Helper()

	before := f.state()
	for _, event := range f.events {
		if err := f.projection.HandleEvent(f.ctx, event); err != nil {
			f.t.Fatalf("Failed to reapply %s v%d: %v", event.EventType(), event.Version, err)
		}
	}

	if after := f.state(); !reflect.DeepEqual(before, after) {
		f.t.Errorf("Reapplying events changed the views:\nBefore: %+v\nAfter: %+v", before, after)
	}
	return f
}

// ThenRebuildsIdentically resets the projection, replays every given event
// and asserts the views come out the same.
func (f *ProjectionTestFixture[V]) ThenRebuildsIdentically() *ProjectionTestFixture[V] {
	f.t.Helper()

	before := f.state()
	if err := f.projection.Reset(f.ctx); err != nil {
		f.t.Fatalf("Failed to reset projection %s: %v", f.projection.Name(), err)
	}
	if reset := f.state(); len(reset) != 0 {
		f.t.Fatalf("Expected no views after reset, got %d", len(reset))
	}
	for _, event := range f.events {
		if err := f.projection.HandleEvent(f.ctx, event); err != nil {
			f.t.Fatalf("Failed to replay %s v%d: %v", event.EventType(), event.Version, err)
		}
	}

	if after := f.state(); !reflect.DeepEqual(before, after) {
		f.t.Errorf("Rebuilt views differ:\nBefore: %+v\nAfter: %+v", before, after)
	}
	return f
}

// Events returns the applied events.
func (f *ProjectionTestFixture[V]) Events() []academic.DomainEvent {
	return f.events
}

func (f *ProjectionTestFixture[V]) forStudent(studentID string) []V {
	f.t.Helper()
	views, err := f.projection.ForStudent(f.ctx, studentID)
	if err != nil {
		f.t.Fatalf("Failed to list views of %s: %v", studentID, err)
	}
	return views
}

func (f *ProjectionTestFixture[V]) state() []V {
	f.t.Helper()
	views, err := f.projection.State(f.ctx)
	if err != nil {
		f.t.Fatalf("Failed to list views: %v", err)
	}
	return views
}

// ManagerTestFixture runs projections behind a ProjectionManager over an
// in-memory event store.
type ManagerTestFixture struct {
	t       TB
	ctx     context.Context
	store   *academic.EventStore
	manager *academic.ProjectionManager
	last    []academic.RebuildProgress
}

// TestManager creates a manager fixture for the given projections.
func TestManager(t TB, projections ...academic.Projection) *ManagerTestFixture {
	t.Helper()
	store := academic.NewEventStore(memory.NewAdapter())
	return &ManagerTestFixture{
		t:       t,
		ctx:     context.Background(),
		store:   store,
		manager: academic.NewProjectionManager(store, projections, academic.WithRebuildBatchSize(2)),
	}
}

// WithContext sets a custom context.
func (f *ManagerTestFixture) WithContext(ctx context.Context) *ManagerTestFixture {
	f.ctx = ctx
	return f
}

// AppendHistory commits the events of a history and dispatches them to
// the projections, as the repository does after a save.
func (f *ManagerTestFixture) AppendHistory(h *testutil.History) *ManagerTestFixture {
	f.t.Helper()

	committed, err := f.store.AppendEvents(f.ctx, h.Events(), 0)
	if err != nil {
		f.t.Fatalf("Failed to append history of %s: %v", h.StudentID(), err)
	}
	for _, err := range f.manager.Dispatch(f.ctx, committed) {
		f.t.Errorf("Projection failed during dispatch: %v", err)
	}
	return f
}

// AppendOnly commits the events of a history without dispatching them, so
// the projections fall behind the log until rebuilt.
func (f *ManagerTestFixture) AppendOnly(h *testutil.History) *ManagerTestFixture {
	f.t.Helper()

	if _, err := f.store.AppendEvents(f.ctx, h.Events(), 0); err != nil {
		f.t.Fatalf("Failed to append history of %s: %v", h.StudentID(), err)
	}
	return f
}

// Rebuild rebuilds a projection, recording every progress report.
func (f *ManagerTestFixture) Rebuild(name string) *ManagerTestFixture {
	f.t.Helper()

	f.last = nil
	err := f.manager.RebuildProjection(f.ctx, name, academic.RebuildOptions{
		ProgressEvery: 1,
		ProgressCallback: func(p academic.RebuildProgress) {
			f.last = append(f.last, p)
		},
	})
	if err != nil {
		f.t.Fatalf("Failed to rebuild %s: %v", name, err)
	}
	return f
}

// ThenState asserts the state of a projection.
func (f *ManagerTestFixture) ThenState(name string, expected academic.ProjectionState) *ManagerTestFixture {
	f.t.Helper()

	status, err := f.manager.GetStatus(name)
	if err != nil {
		f.t.Fatalf("Failed to get status of %s: %v", name, err)
	}
	if status.State != expected {
		f.t.Errorf("Expected %s to be %s, got %s (%s)", name, expected, status.State, status.Error)
	}
	return f
}

// ThenCaughtUp asserts a projection has processed the log up to its last position.
func (f *ManagerTestFixture) ThenCaughtUp(name string) *ManagerTestFixture {
	f.t.Helper()

	last, err := f.store.GetLastPosition(f.ctx)
	if err != nil {
		f.t.Fatalf("Failed to read last position: %v", err)
	}
	status, err := f.manager.GetStatus(name)
	if err != nil {
		f.t.Fatalf("Failed to get status of %s: %v", name, err)
	}
	if status.LastPosition != last {
		f.t.Errorf("Expected %s at position %d, got %d", name, last, status.LastPosition)
	}
	return f
}

// WaitForState polls until a projection reaches state or the timeout passes.
func (f *ManagerTestFixture) WaitForState(name string, state academic.ProjectionState, timeout time.Duration) *ManagerTestFixture {
	f.t.Helper()

	deadline := time.Now().Add(timeout)
	for {
		status, err := f.manager.GetStatus(name)
		if err != nil {
			f.t.Fatalf("Failed to get status of %s: %v", name, err)
		}
		if status.State == state {
			return f
		}
		if time.Now().After(deadline) {
			f.t.Fatalf("Projection %s did not reach %s within %v, state is %s", name, state, timeout, status.State)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// Progress returns the progress reports of the last Rebuild.
func (f *ManagerTestFixture) Progress() []academic.RebuildProgress {
	return f.last
}

// Manager returns the manager under test.
func (f *ManagerTestFixture) Manager() *academic.ProjectionManager {
	return f.manager
}

// Store returns the event store under test.
func (f *ManagerTestFixture) Store() *academic.EventStore {
	return f.store
}
