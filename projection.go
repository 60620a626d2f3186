package academic

import (
	"context"
	"fmt"
	"time"
)

// Projection is a derived, rebuildable read model fed by committed events.
//
// HandleEvent must be idempotent for keyed upserts: applying the same event
// twice leaves the same committed effect. Reset discards all derived state.
type Projection interface {
	// Name returns the unique identifier for this projection.
	Name() string

	// HandleEvent applies one committed event.
	HandleEvent(ctx context.Context, event DomainEvent) error

	// Reset clears the read model.
	Reset(ctx context.Context) error
}

// ProjectionState represents the current state of a projection.
type ProjectionState string

const (
	// ProjectionStateReady indicates the projection is applying live events.
	ProjectionStateReady ProjectionState = "ready"

	// ProjectionStateRebuilding indicates the projection is being rebuilt.
	ProjectionStateRebuilding ProjectionState = "rebuilding"

	// ProjectionStateFaulted indicates the projection failed an event or a
	// rebuild and may be behind the log until it is rebuilt.
	ProjectionStateFaulted ProjectionState = "faulted"
)

// ProjectionStatus provides detailed information about a projection's current state.
type ProjectionStatus struct {
	// Name is the projection name.
	Name string

	// State is the current state of the projection.
	State ProjectionState

	// LastPosition is the global position of the last processed event.
	LastPosition uint64

	// EventsProcessed is the total number of events processed.
	EventsProcessed uint64

	// EventsFailed is the total number of events the projection failed to apply.
	EventsFailed uint64

	// LastProcessedAt is when the last event was processed.
	LastProcessedAt time.Time

	// Error contains the last error message if the projection is faulted.
	Error string
}

// ProjectionError reports a projection that failed to apply an event.
type ProjectionError struct {
	Projection string
	StudentID  string
	Version    int64
	EventType  EventType
	Err        error
}

// Error returns the error message.
func (e *ProjectionError) Error() string {
	return fmt.Sprintf("academic: projection %q failed on %s v%d of %q: %v",
		e.Projection, e.EventType, e.Version, e.StudentID, e.Err)
}

// Unwrap returns the underlying error.
func (e *ProjectionError) Unwrap() error {
	return e.Err
}

// ProjectionMetrics collects metrics about projection processing.
type ProjectionMetrics interface {
	// RecordEventProcessed records that an event was applied by a projection.
	RecordEventProcessed(projectionName, eventType string, duration time.Duration, success bool)

	// RecordRebuild records a completed or failed rebuild.
	RecordRebuild(projectionName string, events uint64, duration time.Duration, success bool)
}

// noopProjectionMetrics is a no-op implementation of ProjectionMetrics.
type noopProjectionMetrics struct{}

func (m *noopProjectionMetrics) RecordEventProcessed(projectionName, eventType string, duration time.Duration, success bool) {
}

func (m *noopProjectionMetrics) RecordRebuild(projectionName string, events uint64, duration time.Duration, success bool) {
}

// RebuildProgress tracks the progress of a projection rebuild.
type RebuildProgress struct {
	// ProjectionName is the name of the projection being rebuilt.
	ProjectionName string

	// TotalEvents is the size of the log when the rebuild started.
	TotalEvents uint64

	// ProcessedEvents is the number of events replayed so far.
	ProcessedEvents uint64

	// CurrentPosition is the global position of the last replayed event.
	CurrentPosition uint64

	// StartedAt is when the rebuild started.
	StartedAt time.Time

	// Duration is the elapsed time.
	Duration time.Duration

	// Completed indicates if the rebuild is complete.
	Completed bool
}

// Percent returns the completed fraction in [0, 1].
func (p RebuildProgress) Percent() float64 {
	if p.Completed {
		return 1
	}
	if p.TotalEvents == 0 {
		return 0
	}
	pct := float64(p.ProcessedEvents) / float64(p.TotalEvents)
	if pct > 1 {
		return 1
	}
	return pct
}

// ProgressCallback is called periodically during rebuild with progress updates.
type ProgressCallback func(progress RebuildProgress)

// RebuildOptions configures a projection rebuild.
type RebuildOptions struct {
	// ProgressCallback is called every ProgressEvery events and on completion.
	ProgressCallback ProgressCallback

	// ProgressEvery is the number of events between progress callbacks.
	// Default: 100
	ProgressEvery uint64
}

// DefaultRebuildOptions returns the default rebuild options.
func DefaultRebuildOptions() RebuildOptions {
	return RebuildOptions{
		ProgressEvery: 100,
	}
}
