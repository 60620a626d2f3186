package academic

import (
	"context"
	"time"

	"github.com/songifi/LMS-Backend-sub004/adapters"
)

// Snapshot is a materialized RecordState at a version.
type Snapshot struct {
	StudentID     string
	AggregateType string
	// Version is the last event version folded into State.
	Version int64
	// Timestamp is the recorded time of the event at Version.
	Timestamp time.Time
	State     RecordState
}

// SnapshotStore persists snapshots through a SnapshotAdapter.
// Snapshots only accelerate loads; a missing snapshot never prevents a
// correct reconstruction.
type SnapshotStore struct {
	adapter    adapters.SnapshotAdapter
	serializer Serializer
}

// SnapshotOption configures a SnapshotStore.
type SnapshotOption func(*SnapshotStore)

// WithSnapshotSerializer sets the serializer used for snapshot state.
func WithSnapshotSerializer(s Serializer) SnapshotOption {
	return func(ss *SnapshotStore) {
		ss.serializer = s
	}
}

// NewSnapshotStore creates a new SnapshotStore.
func NewSnapshotStore(adapter adapters.SnapshotAdapter, opts ...SnapshotOption) *SnapshotStore {
	ss := &SnapshotStore{
		adapter:    adapter,
		serializer: NewJSONSerializer(),
	}
	for _, opt := range opts {
		opt(ss)
	}
	return ss
}

// SaveSnapshot stores a snapshot.
func (s *SnapshotStore) SaveSnapshot(ctx context.Context, snapshot Snapshot) error {
	if snapshot.StudentID == "" {
		return adapters.ErrEmptyStreamID
	}
	if snapshot.Version < 1 || snapshot.State.Version != snapshot.Version {
		return NewStoreError("save snapshot", adapters.ErrInvalidVersion)
	}

	data, err := s.serializer.Marshal(snapshot.State)
	if err != nil {
		return NewStoreError("encode snapshot", err)
	}

	err = s.adapter.SaveSnapshot(ctx, adapters.SnapshotRecord{
		StreamID:  BuildStreamID(snapshot.StudentID),
		Version:   snapshot.Version,
		Timestamp: snapshot.Timestamp,
		Data:      data,
	})
	return wrapStoreError("save snapshot", err)
}

// GetLatestSnapshot returns the newest snapshot, or nil if there is none.
func (s *SnapshotStore) GetLatestSnapshot(ctx context.Context, studentID string) (*Snapshot, error) {
	rec, err := s.adapter.LoadSnapshot(ctx, BuildStreamID(studentID))
	return s.decode(studentID, rec, err)
}

// GetSnapshotByVersion returns the snapshot with the highest version less
// than or equal to version, or nil if none qualifies.
func (s *SnapshotStore) GetSnapshotByVersion(ctx context.Context, studentID string, version int64) (*Snapshot, error) {
	rec, err := s.adapter.LoadSnapshotAtVersion(ctx, BuildStreamID(studentID), version)
	return s.decode(studentID, rec, err)
}

// GetSnapshotByDate returns the snapshot with the latest timestamp not after
// date, or nil if none qualifies.
func (s *SnapshotStore) GetSnapshotByDate(ctx context.Context, studentID string, date time.Time) (*Snapshot, error) {
	rec, err := s.adapter.LoadSnapshotAtTime(ctx, BuildStreamID(studentID), date)
	return s.decode(studentID, rec, err)
}

// DeleteSnapshots removes every snapshot of a student.
func (s *SnapshotStore) DeleteSnapshots(ctx context.Context, studentID string) error {
	return wrapStoreError("delete snapshots", s.adapter.DeleteSnapshots(ctx, BuildStreamID(studentID)))
}

func (s *SnapshotStore) decode(studentID string, rec *adapters.SnapshotRecord, err error) (*Snapshot, error) {
	if err != nil {
		return nil, wrapStoreError("load snapshot", err)
	}
	if rec == nil {
		return nil, nil
	}

	var state RecordState
	if err := s.serializer.Unmarshal(rec.Data, &state); err != nil {
		return nil, NewStoreError("decode snapshot", err)
	}
	state = state.clone()
	state.Version = rec.Version

	return &Snapshot{
		StudentID:     studentID,
		AggregateType: AggregateType,
		Version:       rec.Version,
		Timestamp:     rec.Timestamp.UTC(),
		State:         state,
	}, nil
}
