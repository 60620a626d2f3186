package academic

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/songifi/LMS-Backend-sub004/adapters"
)

// EventStore is the append-only log of student record events.
// It serializes payloads, enforces batch shape and delegates storage and
// optimistic concurrency to an adapter.
type EventStore struct {
	adapter    adapters.EventStoreAdapter
	serializer Serializer
	logger     Logger
}

// Option configures an EventStore.
type Option func(*EventStore)

// WithSerializer sets a custom serializer.
func WithSerializer(s Serializer) Option {
	return func(es *EventStore) {
		es.serializer = s
	}
}

// WithLogger sets a custom logger.
func WithLogger(l Logger) Option {
	return func(es *EventStore) {
		es.logger = l
	}
}

// NewEventStore creates a new EventStore with the given adapter and options.
func NewEventStore(adapter adapters.EventStoreAdapter, opts ...Option) *EventStore {
	es := &EventStore{
		adapter:    adapter,
		serializer: NewJSONSerializer(),
		logger:     &noopLogger{},
	}

	for _, opt := range opts {
		opt(es)
	}

	return es
}

// Serializer returns the event store's serializer.
func (s *EventStore) Serializer() Serializer {
	return s.serializer
}

// Adapter returns the underlying adapter.
func (s *EventStore) Adapter() adapters.EventStoreAdapter {
	return s.adapter
}

// AppendEvents appends a contiguous batch of one student's events.
//
// expectedVersion is the stream version the batch was built on; the batch
// must carry versions expectedVersion+1 onwards. A stale expectedVersion
// fails with ErrVersionConflict and nothing is written. The returned events
// carry the ID, global position and timestamp assigned by the store.
func (s *EventStore) AppendEvents(ctx context.Context, events []DomainEvent, expectedVersion int64) ([]DomainEvent, error) {
	if err := validateBatch(events, expectedVersion); err != nil {
		return nil, err
	}

	studentID := events[0].AggregateID
	records := make([]adapters.EventRecord, len(events))
	for i, event := range events {
		eventType, data, err := EncodeEvent(s.serializer, event.Payload)
		if err != nil {
			return nil, err
		}
		records[i] = adapters.EventRecord{
			Type:     eventType,
			Data:     data,
			Metadata: convertMetadataToAdapter(event.Metadata),
		}
	}

	stored, err := s.adapter.Append(ctx, BuildStreamID(studentID), records, expectedVersion)
	if err != nil {
		return nil, wrapStoreError("append events", err)
	}

	committed := make([]DomainEvent, len(stored))
	for i, st := range stored {
		committed[i] = events[i]
		committed[i].ID = st.ID
		committed[i].AggregateType = AggregateType
		committed[i].Version = st.Version
		committed[i].GlobalPosition = st.GlobalPosition
		committed[i].Timestamp = st.Timestamp.UTC()
	}

	s.logger.Debug("appended events",
		"studentId", studentID,
		"count", len(committed),
		"version", committed[len(committed)-1].Version)

	return committed, nil
}

// GetEventsByAggregate returns every event of a student ordered by version.
// A student without history yields an empty slice.
func (s *EventStore) GetEventsByAggregate(ctx context.Context, studentID string) ([]DomainEvent, error) {
	return s.LoadEvents(ctx, studentID, adapters.Range{})
}

// GetEventsByAggregateUpToVersion returns the events with a version less than
// or equal to version.
func (s *EventStore) GetEventsByAggregateUpToVersion(ctx context.Context, studentID string, version int64) ([]DomainEvent, error) {
	if version < 1 {
		return nil, nil
	}
	return s.LoadEvents(ctx, studentID, adapters.Range{MaxVersion: version})
}

// GetEventsByAggregateUpToDate returns the events recorded at or before date.
func (s *EventStore) GetEventsByAggregateUpToDate(ctx context.Context, studentID string, date time.Time) ([]DomainEvent, error) {
	return s.LoadEvents(ctx, studentID, adapters.Range{Until: date})
}

// LoadEvents returns the events of a student inside r, ordered by version.
func (s *EventStore) LoadEvents(ctx context.Context, studentID string, r adapters.Range) ([]DomainEvent, error) {
	if studentID == "" {
		return nil, adapters.ErrEmptyStreamID
	}

	stored, err := s.adapter.Load(ctx, BuildStreamID(studentID), r)
	if err != nil {
		return nil, wrapStoreError("load events", err)
	}

	events := make([]DomainEvent, len(stored))
	for i, st := range stored {
		event, err := s.decode(st)
		if err != nil {
			return nil, err
		}
		events[i] = event
	}
	return events, nil
}

// ReadAll streams the global log in append order, starting after
// fromPosition, calling fn for every event. Cancellation is checked between
// batches; an error from fn stops the read and is returned unchanged.
func (s *EventStore) ReadAll(ctx context.Context, fromPosition uint64, batchSize int, fn func(DomainEvent) error) error {
	batchSize = adapters.DefaultLimit(batchSize, adapters.DefaultBatchSize)
	position := fromPosition

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		batch, err := s.adapter.LoadFromPosition(ctx, position, batchSize)
		if err != nil {
			return wrapStoreError("read all", err)
		}

		for _, st := range batch {
			event, err := s.decode(st)
			if err != nil {
				return err
			}
			if err := fn(event); err != nil {
				return err
			}
			position = st.GlobalPosition
		}

		if len(batch) < batchSize {
			return nil
		}
	}
}

// GetAllEvents returns the whole log ordered by global position.
func (s *EventStore) GetAllEvents(ctx context.Context) ([]DomainEvent, error) {
	var events []DomainEvent
	err := s.ReadAll(ctx, 0, adapters.DefaultBatchSize, func(e DomainEvent) error {
		events = append(events, e)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return events, nil
}

// GetStreamInfo returns metadata about a student's stream.
// Returns ErrNotFound if the student has no history.
func (s *EventStore) GetStreamInfo(ctx context.Context, studentID string) (*StreamInfo, error) {
	if studentID == "" {
		return nil, adapters.ErrEmptyStreamID
	}

	info, err := s.adapter.GetStreamInfo(ctx, BuildStreamID(studentID))
	if err != nil {
		if isStreamNotFound(err) {
			return nil, NewRecordNotFoundError(studentID)
		}
		return nil, wrapStoreError("stream info", err)
	}

	return &StreamInfo{
		StreamID:   info.StreamID,
		Category:   info.Category,
		Version:    info.Version,
		EventCount: info.EventCount,
		CreatedAt:  info.CreatedAt,
		UpdatedAt:  info.UpdatedAt,
	}, nil
}

// GetLastPosition returns the global position of the last stored event.
func (s *EventStore) GetLastPosition(ctx context.Context) (uint64, error) {
	pos, err := s.adapter.GetLastPosition(ctx)
	if err != nil {
		return 0, wrapStoreError("last position", err)
	}
	return pos, nil
}

// Initialize sets up the required storage schema.
func (s *EventStore) Initialize(ctx context.Context) error {
	return s.adapter.Initialize(ctx)
}

// Close releases resources held by the event store.
func (s *EventStore) Close() error {
	return s.adapter.Close()
}

func (s *EventStore) decode(st adapters.StoredEvent) (DomainEvent, error) {
	payload, err := DecodeEvent(s.serializer, st.Type, st.Data)
	if err != nil {
		s.logger.Error("failed to decode event",
			"streamId", st.StreamID,
			"version", st.Version,
			"type", st.Type,
			"error", err)
		return DomainEvent{}, err
	}

	return DomainEvent{
		ID:             st.ID,
		AggregateID:    studentIDFromStream(st.StreamID),
		AggregateType:  AggregateType,
		Version:        st.Version,
		GlobalPosition: st.GlobalPosition,
		Timestamp:      st.Timestamp.UTC(),
		Payload:        payload,
		Metadata:       convertMetadataFromAdapter(st.Metadata),
	}, nil
}

// validateBatch checks that events form one student's contiguous batch.
func validateBatch(events []DomainEvent, expectedVersion int64) error {
	if len(events) == 0 {
		return fmt.Errorf("%w: batch is empty", ErrInvalidBatch)
	}

	first := events[0]
	if first.AggregateID == "" {
		return adapters.ErrEmptyStreamID
	}

	next := first.Version
	if expectedVersion >= 0 {
		next = expectedVersion + 1
	}

	for i, event := range events {
		if event.AggregateID != first.AggregateID {
			return fmt.Errorf("%w: event %d belongs to %q, batch is for %q",
				ErrInvalidBatch, i, event.AggregateID, first.AggregateID)
		}
		if event.AggregateType != "" && event.AggregateType != AggregateType {
			return fmt.Errorf("%w: event %d has aggregate type %q", ErrInvalidBatch, i, event.AggregateType)
		}
		if event.Version != next {
			return fmt.Errorf("%w: event %d has version %d, expected %d",
				ErrInvalidBatch, i, event.Version, next)
		}
		if event.Payload == nil {
			return fmt.Errorf("%w: event %d has no payload", ErrInvalidBatch, i)
		}
		next++
	}
	return nil
}

func studentIDFromStream(streamID string) string {
	return strings.TrimPrefix(streamID, AggregateType+"-")
}

func convertMetadataToAdapter(m Metadata) adapters.Metadata {
	return adapters.Metadata{
		CorrelationID: m.CorrelationID,
		CausationID:   m.CausationID,
		UserID:        m.UserID,
		Custom:        m.Custom,
	}
}

func convertMetadataFromAdapter(m adapters.Metadata) Metadata {
	return Metadata{
		CorrelationID: m.CorrelationID,
		CausationID:   m.CausationID,
		UserID:        m.UserID,
		Custom:        m.Custom,
	}
}

func isStreamNotFound(err error) bool {
	return errors.Is(err, adapters.ErrStreamNotFound)
}
