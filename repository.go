package academic

import (
	"context"
	"time"

	"github.com/songifi/LMS-Backend-sub004/adapters"
)

// Repository loads and saves StudentRecords.
//
// Loads start from the nearest eligible snapshot and replay only the newer
// events. Saves append the uncommitted batch with optimistic concurrency and
// then update derived state: projections, publishers and snapshots. Derived
// state failures are reported in the SaveResult and never fail the save.
type Repository struct {
	store       *EventStore
	snapshots   *SnapshotStore
	projections *ProjectionManager
	publishers  []EventPublisher
	cadence     int64
	logger      Logger
}

// RepositoryOption configures a Repository.
type RepositoryOption func(*Repository)

// WithProjectionManager forwards committed events to the manager's projections.
func WithProjectionManager(m *ProjectionManager) RepositoryOption {
	return func(r *Repository) {
		r.projections = m
	}
}

// WithPublishers forwards committed events to the given publishers, in order.
func WithPublishers(publishers ...EventPublisher) RepositoryOption {
	return func(r *Repository) {
		r.publishers = append(r.publishers, publishers...)
	}
}

// WithSnapshotCadence sets the number of committed versions between snapshots.
// Zero or a negative value disables snapshotting.
func WithSnapshotCadence(n int) RepositoryOption {
	return func(r *Repository) {
		r.cadence = int64(n)
	}
}

// WithRepositoryLogger sets the logger for the repository.
func WithRepositoryLogger(l Logger) RepositoryOption {
	return func(r *Repository) {
		r.logger = l
	}
}

// NewRepository creates a repository. snapshots may be nil, in which case
// every load is a full replay and no snapshots are written.
func NewRepository(store *EventStore, snapshots *SnapshotStore, opts ...RepositoryOption) *Repository {
	r := &Repository{
		store:     store,
		snapshots: snapshots,
		cadence:   DefaultSnapshotCadence,
		logger:    &noopLogger{},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Store returns the underlying event store.
func (r *Repository) Store() *EventStore {
	return r.store
}

// Projections returns the projection manager, or nil.
func (r *Repository) Projections() *ProjectionManager {
	return r.projections
}

// SaveResult describes a successful save.
type SaveResult struct {
	// Events are the committed events with store-assigned fields.
	Events []DomainEvent

	// Version is the record version after the save.
	Version int64

	// SnapshotWritten reports whether a snapshot was stored.
	SnapshotWritten bool

	// SnapshotErr is the snapshot write failure, if any.
	SnapshotErr error

	// ProjectionErrs are the per projection and event failures.
	ProjectionErrs []error

	// PublishErrs are the publisher failures.
	PublishErrs []error
}

// Degraded reports whether any derived write failed.
func (s *SaveResult) Degraded() bool {
	return s.SnapshotErr != nil || len(s.ProjectionErrs) > 0 || len(s.PublishErrs) > 0
}

// Load returns the current record of a student. A student without history
// yields an empty record at version 0, ready for its first command.
func (r *Repository) Load(ctx context.Context, studentID string) (*StudentRecord, error) {
	if studentID == "" {
		return nil, adapters.ErrEmptyStreamID
	}
	var snap *Snapshot
	if r.snapshots != nil {
		snap = r.trySnapshot(studentID, func() (*Snapshot, error) {
			return r.snapshots.GetLatestSnapshot(ctx, studentID)
		})
	}
	return r.hydrate(ctx, studentID, snap, adapters.Range{})
}

// LoadAtVersion reconstructs the record as it was at version. The result is
// read-only. A version outside the stream fails with ErrNotFound.
func (r *Repository) LoadAtVersion(ctx context.Context, studentID string, version int64) (*StudentRecord, error) {
	if studentID == "" {
		return nil, adapters.ErrEmptyStreamID
	}
	notFound := &RecordNotFoundError{StudentID: studentID, Version: version}
	if version < 1 {
		return nil, notFound
	}

	var snap *Snapshot
	if r.snapshots != nil {
		snap = r.trySnapshot(studentID, func() (*Snapshot, error) {
			return r.snapshots.GetSnapshotByVersion(ctx, studentID, version)
		})
	}

	record, err := r.hydrate(ctx, studentID, snap, adapters.Range{MaxVersion: version})
	if err != nil {
		return nil, err
	}
	if record.Version() != version {
		return nil, notFound
	}
	record.markReadOnly()
	return record, nil
}

// LoadAtDate reconstructs the record from the events recorded at or before
// date. The result is read-only. A date before the first event fails with
// ErrNotFound.
func (r *Repository) LoadAtDate(ctx context.Context, studentID string, date time.Time) (*StudentRecord, error) {
	if studentID == "" {
		return nil, adapters.ErrEmptyStreamID
	}

	var snap *Snapshot
	if r.snapshots != nil {
		snap = r.trySnapshot(studentID, func() (*Snapshot, error) {
			return r.snapshots.GetSnapshotByDate(ctx, studentID, date)
		})
	}

	record, err := r.hydrate(ctx, studentID, snap, adapters.Range{Until: date})
	if err != nil {
		return nil, err
	}
	if record.Version() == 0 {
		return nil, &RecordNotFoundError{StudentID: studentID, At: date}
	}
	record.markReadOnly()
	return record, nil
}

// trySnapshot runs a snapshot lookup. Lookup failures fall back to a full
// replay since snapshots are never required for a correct load.
func (r *Repository) trySnapshot(studentID string, lookup func() (*Snapshot, error)) *Snapshot {
	snap, err := lookup()
	if err != nil {
		r.logger.Warn("snapshot lookup failed, replaying full history",
			"studentId", studentID,
			"error", err)
		return nil
	}
	return snap
}

func (r *Repository) hydrate(ctx context.Context, studentID string, snap *Snapshot, bounds adapters.Range) (*StudentRecord, error) {
	record := NewStudentRecord(studentID)
	if snap != nil {
		if err := record.RestoreSnapshot(snap.State); err != nil {
			r.logger.Warn("snapshot rejected, replaying full history",
				"studentId", studentID,
				"version", snap.Version,
				"error", err)
			record = NewStudentRecord(studentID)
		} else {
			bounds.AfterVersion = snap.Version
		}
	}

	events, err := r.store.LoadEvents(ctx, studentID, bounds)
	if err != nil {
		return nil, err
	}
	if err := record.LoadFromHistory(events); err != nil {
		return nil, err
	}
	return record, nil
}

// Save persists the record's uncommitted events.
//
// The append is the only step that can fail the save: a stale record fails
// with ErrVersionConflict and must be reloaded by the caller. Once the
// append succeeds the uncommitted events are cleared and projections,
// publishers and the snapshot are updated in that order, each failure being
// logged and returned in the SaveResult. Saving a record with nothing
// uncommitted is a no-op.
func (r *Repository) Save(ctx context.Context, record *StudentRecord) (*SaveResult, error) {
	if record == nil {
		return nil, NewInvalidOperationError("Save", "record is nil")
	}
	if record.ReadOnly() {
		return nil, ErrReadOnlyRecord
	}

	pending := record.UncommittedEvents()
	if len(pending) == 0 {
		return &SaveResult{Version: record.Version()}, nil
	}

	previous := record.OriginalVersion()
	committed, err := r.store.AppendEvents(ctx, pending, previous)
	if err != nil {
		return nil, err
	}
	record.ClearUncommittedEvents()

	result := &SaveResult{
		Events:  committed,
		Version: record.Version(),
	}
	studentID := record.AggregateID()

	if r.projections != nil {
		result.ProjectionErrs = r.projections.Dispatch(ctx, committed)
	}

	for _, p := range r.publishers {
		if err := p.Publish(ctx, committed); err != nil {
			r.logger.Warn("failed to publish events",
				"publisher", p.Name(),
				"studentId", studentID,
				"version", result.Version,
				"error", err)
			result.PublishErrs = append(result.PublishErrs, err)
		}
	}

	if r.snapshotDue(previous, result.Version) {
		snapshot := Snapshot{
			StudentID:     studentID,
			AggregateType: AggregateType,
			Version:       result.Version,
			Timestamp:     committed[len(committed)-1].Timestamp,
			State:         record.State(),
		}
		if err := r.snapshots.SaveSnapshot(ctx, snapshot); err != nil {
			r.logger.Warn("failed to save snapshot",
				"studentId", studentID,
				"version", result.Version,
				"error", err)
			result.SnapshotErr = err
		} else {
			result.SnapshotWritten = true
		}
	}

	return result, nil
}

// snapshotDue reports whether the save crossed a multiple of the cadence.
func (r *Repository) snapshotDue(previous, current int64) bool {
	if r.snapshots == nil || r.cadence <= 0 {
		return false
	}
	return current/r.cadence > previous/r.cadence
}
