package academic

// test_helpers_test.go contains shared test doubles and fixtures for the
// academic package tests.

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/songifi/LMS-Backend-sub004/adapters"
	"github.com/songifi/LMS-Backend-sub004/adapters/memory"
)

var (
	testEpoch     = time.Date(2024, 9, 1, 8, 0, 0, 0, time.UTC)
	errInjected   = errors.New("injected failure")
	errProjection = errors.New("projection exploded")
)

// =============================================================================
// Shared Test Logger
// =============================================================================

// testLogger records messages per level.
type testLogger struct {
	mu        sync.Mutex
	debugLogs []string
	infoLogs  []string
	warnLogs  []string
	errorLogs []string
}

func newTestLogger() *testLogger {
	return &testLogger{}
}

func (l *testLogger) Debug(msg string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.debugLogs = append(l.debugLogs, msg)
}

func (l *testLogger) Info(msg string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.infoLogs = append(l.infoLogs, msg)
}

func (l *testLogger) Warn(msg string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.warnLogs = append(l.warnLogs, msg)
}

func (l *testLogger) Error(msg string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.errorLogs = append(l.errorLogs, msg)
}

func (l *testLogger) warnings() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.warnLogs...)
}

func (l *testLogger) errors() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.errorLogs...)
}

// =============================================================================
// Clock
// =============================================================================

// stepClock returns a clock that advances one hour per call, starting at testEpoch.
func stepClock() func() time.Time {
	var mu sync.Mutex
	current := testEpoch
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		now := current
		current = current.Add(time.Hour)
		return now
	}
}

// =============================================================================
// Projections
// =============================================================================

// recordingProjection records the events it sees.
type recordingProjection struct {
	name string

	mu     sync.Mutex
	events []DomainEvent
	resets int
}

func newRecordingProjection(name string) *recordingProjection {
	return &recordingProjection{name: name}
}

func (p *recordingProjection) Name() string { return p.name }

func (p *recordingProjection) HandleEvent(_ context.Context, event DomainEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *recordingProjection) Reset(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = nil
	p.resets++
	return nil
}

func (p *recordingProjection) seen() []DomainEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]DomainEvent(nil), p.events...)
}

// failingProjection fails every event.
type failingProjection struct {
	name string
}

func (p *failingProjection) Name() string { return p.name }

func (p *failingProjection) HandleEvent(context.Context, DomainEvent) error {
	return errProjection
}

func (p *failingProjection) Reset(context.Context) error { return nil }

// panickingProjection panics on every event.
type panickingProjection struct {
	name string
}

func (p *panickingProjection) Name() string { return p.name }

func (p *panickingProjection) HandleEvent(context.Context, DomainEvent) error {
	panic("boom")
}

func (p *panickingProjection) Reset(context.Context) error { return nil }

// =============================================================================
// Adapters
// =============================================================================

// failingSnapshotAdapter fails every snapshot write.
type failingSnapshotAdapter struct {
	*memory.MemoryAdapter
}

func (a *failingSnapshotAdapter) SaveSnapshot(context.Context, adapters.SnapshotRecord) error {
	return errInjected
}

// brokenSnapshotAdapter fails every snapshot read.
type brokenSnapshotAdapter struct {
	*memory.MemoryAdapter
}

func (a *brokenSnapshotAdapter) LoadSnapshot(context.Context, string) (*adapters.SnapshotRecord, error) {
	return nil, errInjected
}

// failingAppendAdapter fails every append.
type failingAppendAdapter struct {
	*memory.MemoryAdapter
}

func (a *failingAppendAdapter) Append(context.Context, string, []adapters.EventRecord, int64) ([]adapters.StoredEvent, error) {
	return nil, errInjected
}

// =============================================================================
// Publishers
// =============================================================================

type recordingPublisher struct {
	mu      sync.Mutex
	batches [][]DomainEvent
	err     error
}

func (p *recordingPublisher) Name() string { return "recording" }

func (p *recordingPublisher) Publish(_ context.Context, events []DomainEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.batches = append(p.batches, events)
	return p.err
}

// =============================================================================
// Fixtures
// =============================================================================

// testEnv wires a full stack over the memory adapter.
type testEnv struct {
	adapter     *memory.MemoryAdapter
	store       *EventStore
	snapshots   *SnapshotStore
	grades      *GradesProjection
	enrollments *EnrollmentsProjection
	progress    *DegreeProgressProjection
	manager     *ProjectionManager
	repo        *Repository
	service     *RecordService
	logger      *testLogger
}

func newTestEnv(opts ...RepositoryOption) *testEnv {
	env := &testEnv{
		adapter: memory.NewAdapter(memory.WithClock(stepClock())),
		logger:  newTestLogger(),
	}
	env.store = NewEventStore(env.adapter, WithLogger(env.logger))
	env.snapshots = NewSnapshotStore(env.adapter)
	env.grades = NewGradesProjection(NewMemoryReadModelStore[GradeView]())
	env.enrollments = NewEnrollmentsProjection(NewMemoryReadModelStore[EnrollmentView]())
	env.progress = NewDegreeProgressProjection(NewMemoryReadModelStore[DegreeProgressView]())
	env.manager = NewProjectionManager(env.store,
		[]Projection{env.grades, env.enrollments, env.progress},
		WithProjectionLogger(env.logger))

	repoOpts := append([]RepositoryOption{
		WithProjectionManager(env.manager),
		WithRepositoryLogger(env.logger),
	}, opts...)
	env.repo = NewRepository(env.store, env.snapshots, repoOpts...)
	env.service = NewRecordService(env.repo, WithServiceLogger(env.logger))
	return env
}

func recordGradeCmd(studentID, courseID, grade string, points float64) RecordGrade {
	return RecordGrade{
		StudentID:  studentID,
		CourseID:   courseID,
		Grade:      grade,
		Points:     points,
		Semester:   "Fall2024",
		RecordedBy: "registrar",
	}
}

// gradeEvents builds n committed-shaped GradeRecorded events for a student.
func gradeEvents(studentID string, n int) []DomainEvent {
	events := make([]DomainEvent, n)
	for i := range events {
		events[i] = DomainEvent{
			AggregateID:   studentID,
			AggregateType: AggregateType,
			Version:       int64(i + 1),
			Timestamp:     testEpoch.Add(time.Duration(i) * time.Hour),
			Payload: GradeRecorded{
				CourseID:   courseID(i),
				Grade:      "A",
				Points:     4,
				Semester:   "Fall2024",
				RecordedBy: "registrar",
			},
		}
	}
	return events
}

func courseID(i int) string {
	return fmt.Sprintf("C%03d", i+1)
}
