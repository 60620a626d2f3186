// Package academic implements an event-sourced student academic record.
//
// A student's grades, enrollments and degree progress are captured as an
// append-only, versioned stream of domain events. The current state is
// rebuilt by folding those events, periodic snapshots bound the replay cost,
// and committed events are projected into queryable read models.
//
// # Quick Start
//
//	adapter := memory.NewAdapter()
//	store := academic.NewEventStore(adapter)
//	snapshots := academic.NewSnapshotStore(adapter)
//
//	projections := academic.NewProjectionManager(store, []academic.Projection{
//	    academic.NewGradesProjection(academic.NewMemoryReadModelStore[academic.GradeView]()),
//	})
//
//	repo := academic.NewRepository(store, snapshots,
//	    academic.WithProjectionManager(projections),
//	    academic.WithSnapshotCadence(10),
//	)
//	service := academic.NewRecordService(repo)
//
//	_, err := service.RecordGrade(ctx, academic.RecordGrade{
//	    StudentID: "s-42", CourseID: "CS101", Grade: "B+", Points: 3.3,
//	    Semester: "Fall2024", RecordedBy: "registrar",
//	})
//
//	view, err := service.GetStudentRecordAtVersion(ctx, "s-42", 1)
//
// # Optimistic Concurrency
//
// Every save appends with the version the record had when it was loaded.
// A concurrent writer that got there first causes ErrVersionConflict; the
// caller reloads and retries. Nothing is retried inside this package.
//
// # Derived State
//
// Snapshots, projections and publishers are derived from the event log. A
// failure in any of them is logged and reported in the SaveResult but never
// undoes a successful append; projections are recovered with
// ProjectionManager.RebuildProjection.
package academic

import (
	"github.com/songifi/LMS-Backend-sub004/adapters"
)

// AggregateType is the stream category of every student record.
const AggregateType = "StudentRecord"

// Version constants for optimistic concurrency control.
// These are re-exported from the adapters package for convenience.
const (
	AnyVersion   = adapters.AnyVersion
	NoStream     = adapters.NoStream
	StreamExists = adapters.StreamExists
)

// DefaultSnapshotCadence is the number of committed versions between snapshots.
const DefaultSnapshotCadence = 10

// Version returns the library version string.
func Version() string {
	return "0.3.0"
}

// BuildStreamID returns the stream ID of a student's record.
// This follows the convention: "StudentRecord-{studentID}"
func BuildStreamID(studentID string) string {
	return AggregateType + "-" + studentID
}

// Logger is the logging interface used throughout the package.
// Args are alternating key/value pairs.
type Logger interface {
	Debug(msg string, args ...interface{})
	Info(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
	Error(msg string, args ...interface{})
}

// noopLogger is a no-op logger implementation.
type noopLogger struct{}

func (l *noopLogger) Debug(msg string, args ...interface{}) {}
func (l *noopLogger) Info(msg string, args ...interface{})  {}
func (l *noopLogger) Warn(msg string, args ...interface{})  {}
func (l *noopLogger) Error(msg string, args ...interface{}) {}
