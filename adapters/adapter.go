// Package adapters provides interfaces for event store backends.
package adapters

import (
	"context"
	"errors"
	"time"
)

// Sentinel errors for adapter implementations.
// Adapters should return these (or errors that match via errors.Is)
// to enable consistent error handling across different backends.
var (
	// ErrConcurrencyConflict is returned when optimistic concurrency check fails.
	ErrConcurrencyConflict = errors.New("academic: concurrency conflict")

	// ErrStreamNotFound is returned when a stream does not exist.
	ErrStreamNotFound = errors.New("academic: stream not found")

	// ErrEmptyStreamID is returned when an empty stream ID is provided.
	ErrEmptyStreamID = errors.New("academic: stream ID is required")

	// ErrNoEvents is returned when attempting to append zero events.
	ErrNoEvents = errors.New("academic: no events to append")

	// ErrInvalidVersion is returned when an invalid version is specified.
	ErrInvalidVersion = errors.New("academic: invalid version")

	// ErrAdapterClosed is returned when operations are attempted on a closed adapter.
	ErrAdapterClosed = errors.New("academic: adapter is closed")
)

// Metadata contains event context for tracing and auditing.
// These fields are preserved across serialization.
type Metadata struct {
	// CorrelationID links events produced by the same request.
	CorrelationID string `json:"correlationId,omitempty" msgpack:"correlationId,omitempty"`

	// CausationID identifies the command that caused this event.
	CausationID string `json:"causationId,omitempty" msgpack:"causationId,omitempty"`

	// UserID identifies the actor who triggered this event.
	UserID string `json:"userId,omitempty" msgpack:"userId,omitempty"`

	// Custom holds any additional metadata, such as the semester.
	Custom map[string]string `json:"custom,omitempty" msgpack:"custom,omitempty"`
}

// StoredEvent represents a persisted event with its storage metadata.
// This is returned when loading events from the store.
type StoredEvent struct {
	// ID is the unique event identifier.
	ID string

	// StreamID is the stream this event belongs to.
	StreamID string

	// Type is the event type identifier.
	Type string

	// Data is the serialized event payload.
	Data []byte

	// Metadata contains contextual information.
	Metadata Metadata

	// Version is the position within the stream (1-based).
	Version int64

	// GlobalPosition is the global ordering position across all streams.
	GlobalPosition uint64

	// Timestamp is when the event was recorded.
	Timestamp time.Time
}

// StreamInfo contains metadata about an event stream.
type StreamInfo struct {
	// StreamID is the stream identifier.
	StreamID string

	// Category is the aggregate type (first part of stream ID).
	Category string

	// Version is the current stream version.
	Version int64

	// EventCount is the number of events in the stream.
	EventCount int64

	// CreatedAt is when the first event was stored.
	CreatedAt time.Time

	// UpdatedAt is when the last event was stored.
	UpdatedAt time.Time
}

// EventRecord represents an event to be appended to a stream.
// This is the adapter-level representation of an event.
type EventRecord struct {
	// Type is the event type identifier.
	Type string

	// Data is the serialized event payload.
	Data []byte

	// Metadata contains optional contextual information.
	Metadata Metadata
}

// Range bounds a stream read.
// The zero value selects the whole stream.
type Range struct {
	// AfterVersion excludes events with a version less than or equal to it.
	AfterVersion int64

	// MaxVersion excludes events with a greater version. Zero means no ceiling.
	MaxVersion int64

	// Until excludes events recorded after it. The zero time means no ceiling.
	Until time.Time
}

// Contains reports whether an event with the given version and timestamp
// falls inside the range.
func (r Range) Contains(version int64, timestamp time.Time) bool {
	if version <= r.AfterVersion {
		return false
	}
	if r.MaxVersion > 0 && version > r.MaxVersion {
		return false
	}
	if !r.Until.IsZero() && timestamp.After(r.Until) {
		return false
	}
	return true
}

// EventStoreAdapter is the interface that database adapters must implement.
// It provides the low-level operations for persisting and retrieving events.
type EventStoreAdapter interface {
	// Append stores events to the specified stream with optimistic concurrency control.
	// expectedVersion specifies the expected current version of the stream:
	//   - AnyVersion (-1): Skip version check
	//   - NoStream (0): Stream must not exist
	//   - StreamExists (-2): Stream must exist
	//   - Any positive number: Stream must be at this exact version
	// The batch is visible atomically. Returns the stored events with their
	// assigned versions, positions and timestamps.
	Append(ctx context.Context, streamID string, events []EventRecord, expectedVersion int64) ([]StoredEvent, error)

	// Load retrieves the events of a stream inside the range, ordered by version.
	// A stream that does not exist yields an empty slice.
	Load(ctx context.Context, streamID string, r Range) ([]StoredEvent, error)

	// LoadFromPosition loads up to limit events with a global position greater
	// than fromPosition, ordered by global position.
	LoadFromPosition(ctx context.Context, fromPosition uint64, limit int) ([]StoredEvent, error)

	// GetStreamInfo returns metadata about a stream.
	// Returns ErrStreamNotFound if the stream does not exist.
	GetStreamInfo(ctx context.Context, streamID string) (*StreamInfo, error)

	// GetLastPosition returns the global position of the last stored event.
	// Returns 0 if no events exist.
	GetLastPosition(ctx context.Context) (uint64, error)

	// Initialize sets up the required database schema.
	// This should be called once during application startup.
	Initialize(ctx context.Context) error

	// Close releases any resources held by the adapter.
	Close() error
}

// SnapshotAdapter stores aggregate snapshots for faster loading.
// Every snapshot is kept so that temporal loads can pick the nearest one.
type SnapshotAdapter interface {
	// SaveSnapshot stores a snapshot. Saving the same stream and version
	// twice replaces the earlier record.
	SaveSnapshot(ctx context.Context, snapshot SnapshotRecord) error

	// LoadSnapshot retrieves the snapshot with the highest version for the stream.
	// Returns nil, nil if no snapshot exists.
	LoadSnapshot(ctx context.Context, streamID string) (*SnapshotRecord, error)

	// LoadSnapshotAtVersion retrieves the snapshot with the highest version
	// less than or equal to maxVersion. Returns nil, nil if none qualifies.
	LoadSnapshotAtVersion(ctx context.Context, streamID string, maxVersion int64) (*SnapshotRecord, error)

	// LoadSnapshotAtTime retrieves the snapshot with the latest timestamp
	// not after until. Returns nil, nil if none qualifies.
	LoadSnapshotAtTime(ctx context.Context, streamID string, until time.Time) (*SnapshotRecord, error)

	// DeleteSnapshots removes every snapshot of the stream.
	DeleteSnapshots(ctx context.Context, streamID string) error
}

// SnapshotRecord represents a stored aggregate snapshot.
type SnapshotRecord struct {
	// StreamID is the stream identifier.
	StreamID string

	// Version is the last event version folded into the snapshot.
	Version int64

	// Timestamp is the recorded time of the last folded event.
	Timestamp time.Time

	// Data is the serialized snapshot payload.
	Data []byte
}

// HealthChecker provides health check capability.
type HealthChecker interface {
	// Ping checks if the adapter is healthy.
	Ping(ctx context.Context) error
}

// Migrator provides database migration capability.
type Migrator interface {
	// Migrate runs pending migrations.
	Migrate(ctx context.Context) error

	// MigrationVersion returns the current schema version.
	MigrationVersion(ctx context.Context) (int, error)
}
