package academic

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"
)

// ProjectionManager fans committed events out to a fixed, ordered list of
// projections and rebuilds them from the global log.
//
// Each projection is isolated: an error or panic in one is logged, recorded
// in its status and returned to the caller, but never stops the others.
// Dispatch to a projection is serialized with its rebuild; events already
// replayed by a rebuild are skipped when they arrive live.
type ProjectionManager struct {
	store       *EventStore
	projections []*managedProjection
	logger      Logger
	metrics     ProjectionMetrics
	batchSize   int
	clock       func() time.Time
}

type managedProjection struct {
	projection Projection

	// mu serializes HandleEvent and rebuilds.
	mu sync.Mutex

	stateMu         sync.RWMutex
	state           ProjectionState
	lastPosition    uint64
	replayedThrough uint64
	eventsProcessed uint64
	eventsFailed    uint64
	lastProcessedAt time.Time
	lastErr         string
}

// ProjectionManagerOption configures a ProjectionManager.
type ProjectionManagerOption func(*ProjectionManager)

// WithProjectionLogger sets the logger for the manager.
func WithProjectionLogger(logger Logger) ProjectionManagerOption {
	return func(m *ProjectionManager) {
		m.logger = logger
	}
}

// WithProjectionMetrics sets the metrics collector for the manager.
func WithProjectionMetrics(metrics ProjectionMetrics) ProjectionManagerOption {
	return func(m *ProjectionManager) {
		m.metrics = metrics
	}
}

// WithRebuildBatchSize sets how many events a rebuild reads per batch.
func WithRebuildBatchSize(size int) ProjectionManagerOption {
	return func(m *ProjectionManager) {
		if size > 0 {
			m.batchSize = size
		}
	}
}

// NewProjectionManager creates a manager over the given projections.
// Dispatch visits projections in the order given. Projection names must be
// unique; a duplicate name panics since it is a wiring mistake.
func NewProjectionManager(store *EventStore, projections []Projection, opts ...ProjectionManagerOption) *ProjectionManager {
	m := &ProjectionManager{
		store:     store,
		logger:    &noopLogger{},
		metrics:   &noopProjectionMetrics{},
		batchSize: 1000,
		clock:     time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}

	seen := make(map[string]bool, len(projections))
	for _, p := range projections {
		if p == nil {
			panic("academic: nil projection")
		}
		if seen[p.Name()] {
			panic(fmt.Sprintf("academic: duplicate projection %q", p.Name()))
		}
		seen[p.Name()] = true
		m.projections = append(m.projections, &managedProjection{
			projection: p,
			state:      ProjectionStateReady,
		})
	}
	return m
}

// Names returns the registered projection names in dispatch order.
func (m *ProjectionManager) Names() []string {
	names := make([]string, len(m.projections))
	for i, mp := range m.projections {
		names[i] = mp.projection.Name()
	}
	return names
}

// Projection returns the projection registered under name.
func (m *ProjectionManager) Projection(name string) (Projection, error) {
	mp, err := m.find(name)
	if err != nil {
		return nil, err
	}
	return mp.projection, nil
}

// Dispatch applies a committed batch to every projection, event by event in
// version order. It returns one ProjectionError per failed application; the
// batch is always offered to every projection.
func (m *ProjectionManager) Dispatch(ctx context.Context, events []DomainEvent) []error {
	var errs []error
	for _, event := range events {
		for _, mp := range m.projections {
			if err := m.dispatchOne(ctx, mp, event); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errs
}

func (m *ProjectionManager) dispatchOne(ctx context.Context, mp *managedProjection, event DomainEvent) error {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	mp.stateMu.RLock()
	skip := event.GlobalPosition != 0 && event.GlobalPosition <= mp.replayedThrough
	mp.stateMu.RUnlock()
	if skip {
		return nil
	}

	start := m.clock()
	err := m.apply(ctx, mp.projection, event)
	m.metrics.RecordEventProcessed(mp.projection.Name(), string(event.EventType()), time.Since(start), err == nil)

	if err != nil {
		perr := &ProjectionError{
			Projection: mp.projection.Name(),
			StudentID:  event.AggregateID,
			Version:    event.Version,
			EventType:  event.EventType(),
			Err:        err,
		}
		m.logger.Error("projection failed to apply event",
			"projection", perr.Projection,
			"studentId", perr.StudentID,
			"version", perr.Version,
			"eventType", string(perr.EventType),
			"error", err)
		mp.fail(err)
		return perr
	}

	mp.succeed(event, m.clock())
	return nil
}

// apply calls HandleEvent and converts a panic into an error.
func (m *ProjectionManager) apply(ctx context.Context, p Projection, event DomainEvent) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = NewPanicError(p.Name(), r, string(debug.Stack()))
		}
	}()
	return p.HandleEvent(ctx, event)
}

// RebuildProjection resets the named projection and replays the entire log
// into it in global order. Live dispatch to the projection waits until the
// rebuild finishes. A cancelled or failed rebuild leaves the projection
// faulted; running the rebuild again recovers it.
func (m *ProjectionManager) RebuildProjection(ctx context.Context, name string, opts ...RebuildOptions) error {
	mp, err := m.find(name)
	if err != nil {
		return err
	}
	options := DefaultRebuildOptions()
	if len(opts) > 0 {
		options = opts[0]
	}
	return m.rebuild(ctx, mp, options)
}

// RebuildAll rebuilds every projection in registration order. A failed
// rebuild does not stop the remaining ones; all failures are returned joined.
func (m *ProjectionManager) RebuildAll(ctx context.Context, opts ...RebuildOptions) error {
	options := DefaultRebuildOptions()
	if len(opts) > 0 {
		options = opts[0]
	}

	var errs []error
	for _, mp := range m.projections {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		if err := m.rebuild(ctx, mp, options); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m *ProjectionManager) rebuild(ctx context.Context, mp *managedProjection, options RebuildOptions) error {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	name := mp.projection.Name()
	startedAt := m.clock()
	mp.setState(ProjectionStateRebuilding)
	m.logger.Info("starting projection rebuild", "projection", name)

	fail := func(err error, processed uint64) error {
		mp.fail(err)
		m.metrics.RecordRebuild(name, processed, time.Since(startedAt), false)
		m.logger.Error("projection rebuild failed", "projection", name, "events", processed, "error", err)
		return fmt.Errorf("academic: rebuild %q: %w", name, err)
	}

	if err := mp.projection.Reset(ctx); err != nil {
		return fail(err, 0)
	}

	total, err := m.store.GetLastPosition(ctx)
	if err != nil {
		return fail(err, 0)
	}

	progressEvery := options.ProgressEvery
	if progressEvery == 0 {
		progressEvery = DefaultRebuildOptions().ProgressEvery
	}
	progress := RebuildProgress{
		ProjectionName: name,
		TotalEvents:    total,
		StartedAt:      startedAt,
	}
	report := func(completed bool) {
		if options.ProgressCallback == nil {
			return
		}
		progress.Duration = time.Since(startedAt)
		progress.Completed = completed
		options.ProgressCallback(progress)
	}

	err = m.store.ReadAll(ctx, 0, m.batchSize, func(event DomainEvent) error {
		if err := m.apply(ctx, mp.projection, event); err != nil {
			return &ProjectionError{
				Projection: name,
				StudentID:  event.AggregateID,
				Version:    event.Version,
				EventType:  event.EventType(),
				Err:        err,
			}
		}
		progress.ProcessedEvents++
		progress.CurrentPosition = event.GlobalPosition
		if progress.ProcessedEvents%progressEvery == 0 {
			report(false)
		}
		return nil
	})
	if err != nil {
		return fail(err, progress.ProcessedEvents)
	}

	mp.stateMu.Lock()
	mp.state = ProjectionStateReady
	mp.replayedThrough = progress.CurrentPosition
	mp.lastPosition = progress.CurrentPosition
	mp.eventsProcessed = progress.ProcessedEvents
	mp.eventsFailed = 0
	mp.lastProcessedAt = m.clock()
	mp.lastErr = ""
	mp.stateMu.Unlock()

	report(true)
	m.metrics.RecordRebuild(name, progress.ProcessedEvents, time.Since(startedAt), true)
	m.logger.Info("projection rebuild completed",
		"projection", name,
		"events", progress.ProcessedEvents,
		"duration", time.Since(startedAt))
	return nil
}

// GetStatus returns the status of a projection by name.
func (m *ProjectionManager) GetStatus(name string) (*ProjectionStatus, error) {
	mp, err := m.find(name)
	if err != nil {
		return nil, err
	}
	return mp.status(), nil
}

// GetAllStatuses returns the status of all registered projections in order.
func (m *ProjectionManager) GetAllStatuses() []*ProjectionStatus {
	statuses := make([]*ProjectionStatus, len(m.projections))
	for i, mp := range m.projections {
		statuses[i] = mp.status()
	}
	return statuses
}

func (m *ProjectionManager) find(name string) (*managedProjection, error) {
	for _, mp := range m.projections {
		if mp.projection.Name() == name {
			return mp, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrProjectionNotFound, name)
}

func (mp *managedProjection) status() *ProjectionStatus {
	mp.stateMu.RLock()
	defer mp.stateMu.RUnlock()
	return &ProjectionStatus{
		Name:            mp.projection.Name(),
		State:           mp.state,
		LastPosition:    mp.lastPosition,
		EventsProcessed: mp.eventsProcessed,
		EventsFailed:    mp.eventsFailed,
		LastProcessedAt: mp.lastProcessedAt,
		Error:           mp.lastErr,
	}
}

func (mp *managedProjection) setState(state ProjectionState) {
	mp.stateMu.Lock()
	defer mp.stateMu.Unlock()
	mp.state = state
}

func (mp *managedProjection) fail(err error) {
	mp.stateMu.Lock()
	defer mp.stateMu.Unlock()
	mp.state = ProjectionStateFaulted
	mp.eventsFailed++
	mp.lastErr = err.Error()
}

func (mp *managedProjection) succeed(event DomainEvent, at time.Time) {
	mp.stateMu.Lock()
	defer mp.stateMu.Unlock()
	mp.eventsProcessed++
	if event.GlobalPosition > mp.lastPosition {
		mp.lastPosition = event.GlobalPosition
	}
	mp.lastProcessedAt = at
}
