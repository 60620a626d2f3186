// Package memory provides an in-memory implementation of the event store adapter.
// This adapter is primarily intended for testing and development purposes.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/songifi/LMS-Backend-sub004/adapters"
)

// Version constants for optimistic concurrency control.
// These are re-exported from the adapters package for convenience.
const (
	AnyVersion   = adapters.AnyVersion
	NoStream     = adapters.NoStream
	StreamExists = adapters.StreamExists
)

// Ensure MemoryAdapter implements all required interfaces.
var (
	_ adapters.EventStoreAdapter = (*MemoryAdapter)(nil)
	_ adapters.SnapshotAdapter   = (*MemoryAdapter)(nil)
	_ adapters.HealthChecker     = (*MemoryAdapter)(nil)
)

// MemoryAdapter is an in-memory implementation of EventStoreAdapter and SnapshotAdapter.
// It is thread-safe and suitable for unit testing.
type MemoryAdapter struct {
	mu             sync.RWMutex
	streams        map[string]*streamData
	globalEvents   []adapters.StoredEvent
	globalPosition uint64
	snapshots      map[string][]adapters.SnapshotRecord
	closed         bool
	now            func() time.Time
}

type streamData struct {
	info   adapters.StreamInfo
	events []adapters.StoredEvent
}

// Option configures a MemoryAdapter.
type Option func(*MemoryAdapter)

// WithClock sets the function used to timestamp appended events.
func WithClock(now func() time.Time) Option {
	return func(a *MemoryAdapter) {
		if now != nil {
			a.now = now
		}
	}
}

// NewAdapter creates a new in-memory event store adapter.
func NewAdapter(opts ...Option) *MemoryAdapter {
	adapter := &MemoryAdapter{
		streams:      make(map[string]*streamData),
		globalEvents: make([]adapters.StoredEvent, 0),
		snapshots:    make(map[string][]adapters.SnapshotRecord),
		now:          time.Now,
	}

	for _, opt := range opts {
		opt(adapter)
	}

	return adapter
}

// Initialize is a no-op for the memory adapter.
func (a *MemoryAdapter) Initialize(ctx context.Context) error {
	return nil
}

// Append stores events to the specified stream with optimistic concurrency control.
func (a *MemoryAdapter) Append(ctx context.Context, streamID string, events []adapters.EventRecord, expectedVersion int64) ([]adapters.StoredEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return nil, adapters.ErrAdapterClosed
	}

	if streamID == "" {
		return nil, adapters.ErrEmptyStreamID
	}

	if len(events) == 0 {
		return nil, adapters.ErrNoEvents
	}

	stream, exists := a.streams[streamID]
	currentVersion := int64(0)
	if exists {
		currentVersion = stream.info.Version
	}

	if err := adapters.CheckVersion(streamID, expectedVersion, currentVersion, exists); err != nil {
		return nil, err
	}

	now := a.now().UTC()

	if !exists {
		stream = &streamData{
			info: adapters.StreamInfo{
				StreamID:  streamID,
				Category:  adapters.ExtractCategory(streamID),
				CreatedAt: now,
			},
		}
		a.streams[streamID] = stream
	}

	storedEvents := make([]adapters.StoredEvent, len(events))
	for i, event := range events {
		a.globalPosition++
		currentVersion++

		stored := adapters.StoredEvent{
			ID:             uuid.New().String(),
			StreamID:       streamID,
			Type:           event.Type,
			Data:           cloneBytes(event.Data),
			Metadata:       cloneMetadata(event.Metadata),
			Version:        currentVersion,
			GlobalPosition: a.globalPosition,
			Timestamp:      now,
		}

		stream.events = append(stream.events, stored)
		a.globalEvents = append(a.globalEvents, stored)
		storedEvents[i] = stored
	}

	stream.info.Version = currentVersion
	stream.info.EventCount = int64(len(stream.events))
	stream.info.UpdatedAt = now

	return storedEvents, nil
}

// Load retrieves the events of a stream that fall inside the range.
func (a *MemoryAdapter) Load(ctx context.Context, streamID string, r adapters.Range) ([]adapters.StoredEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	a.mu.RLock()
	defer a.mu.RUnlock()

	if a.closed {
		return nil, adapters.ErrAdapterClosed
	}

	if streamID == "" {
		return nil, adapters.ErrEmptyStreamID
	}

	stream, exists := a.streams[streamID]
	if !exists {
		return []adapters.StoredEvent{}, nil
	}

	events := make([]adapters.StoredEvent, 0, len(stream.events))
	for _, event := range stream.events {
		if r.Contains(event.Version, event.Timestamp) {
			events = append(events, event)
		}
	}

	return events, nil
}

// LoadFromPosition loads events with a global position greater than fromPosition.
func (a *MemoryAdapter) LoadFromPosition(ctx context.Context, fromPosition uint64, limit int) ([]adapters.StoredEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	a.mu.RLock()
	defer a.mu.RUnlock()

	if a.closed {
		return nil, adapters.ErrAdapterClosed
	}

	limit = adapters.DefaultLimit(limit, adapters.DefaultBatchSize)

	// Positions are dense and start at 1, so the slice index is position-1.
	if fromPosition >= uint64(len(a.globalEvents)) {
		return []adapters.StoredEvent{}, nil
	}
	end := int(fromPosition) + limit
	if end > len(a.globalEvents) {
		end = len(a.globalEvents)
	}

	events := make([]adapters.StoredEvent, end-int(fromPosition))
	copy(events, a.globalEvents[fromPosition:end])
	return events, nil
}

// GetStreamInfo returns metadata about a stream.
func (a *MemoryAdapter) GetStreamInfo(ctx context.Context, streamID string) (*adapters.StreamInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	a.mu.RLock()
	defer a.mu.RUnlock()

	if a.closed {
		return nil, adapters.ErrAdapterClosed
	}

	stream, exists := a.streams[streamID]
	if !exists {
		return nil, adapters.NewStreamNotFoundError(streamID)
	}

	info := stream.info
	return &info, nil
}

// GetLastPosition returns the global position of the last stored event.
func (a *MemoryAdapter) GetLastPosition(ctx context.Context) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	a.mu.RLock()
	defer a.mu.RUnlock()

	if a.closed {
		return 0, adapters.ErrAdapterClosed
	}

	return a.globalPosition, nil
}

// Close releases any resources held by the adapter.
func (a *MemoryAdapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.closed = true
	return nil
}

// SaveSnapshot stores a snapshot, replacing any earlier one at the same version.
func (a *MemoryAdapter) SaveSnapshot(ctx context.Context, snapshot adapters.SnapshotRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return adapters.ErrAdapterClosed
	}

	if snapshot.StreamID == "" {
		return adapters.ErrEmptyStreamID
	}

	snapshot.Data = cloneBytes(snapshot.Data)
	snapshot.Timestamp = snapshot.Timestamp.UTC()

	records := a.snapshots[snapshot.StreamID]
	i := sort.Search(len(records), func(i int) bool {
		return records[i].Version >= snapshot.Version
	})
	if i < len(records) && records[i].Version == snapshot.Version {
		records[i] = snapshot
	} else {
		records = append(records, adapters.SnapshotRecord{})
		copy(records[i+1:], records[i:])
		records[i] = snapshot
	}
	a.snapshots[snapshot.StreamID] = records

	return nil
}

// LoadSnapshot retrieves the snapshot with the highest version for the stream.
func (a *MemoryAdapter) LoadSnapshot(ctx context.Context, streamID string) (*adapters.SnapshotRecord, error) {
	return a.findSnapshot(ctx, streamID, func(adapters.SnapshotRecord) bool { return true })
}

// LoadSnapshotAtVersion retrieves the newest snapshot at or below maxVersion.
func (a *MemoryAdapter) LoadSnapshotAtVersion(ctx context.Context, streamID string, maxVersion int64) (*adapters.SnapshotRecord, error) {
	return a.findSnapshot(ctx, streamID, func(s adapters.SnapshotRecord) bool {
		return s.Version <= maxVersion
	})
}

// LoadSnapshotAtTime retrieves the newest snapshot taken at or before until.
func (a *MemoryAdapter) LoadSnapshotAtTime(ctx context.Context, streamID string, until time.Time) (*adapters.SnapshotRecord, error) {
	return a.findSnapshot(ctx, streamID, func(s adapters.SnapshotRecord) bool {
		return !s.Timestamp.After(until)
	})
}

// findSnapshot walks the version-ordered snapshots from newest to oldest and
// returns a copy of the first one accepted by match.
func (a *MemoryAdapter) findSnapshot(ctx context.Context, streamID string, match func(adapters.SnapshotRecord) bool) (*adapters.SnapshotRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	a.mu.RLock()
	defer a.mu.RUnlock()

	if a.closed {
		return nil, adapters.ErrAdapterClosed
	}

	records := a.snapshots[streamID]
	for i := len(records) - 1; i >= 0; i-- {
		if match(records[i]) {
			found := records[i]
			found.Data = cloneBytes(found.Data)
			return &found, nil
		}
	}

	return nil, nil
}

// DeleteSnapshots removes every snapshot of the stream.
func (a *MemoryAdapter) DeleteSnapshots(ctx context.Context, streamID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return adapters.ErrAdapterClosed
	}

	delete(a.snapshots, streamID)
	return nil
}

// Ping checks if the adapter is healthy.
func (a *MemoryAdapter) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	a.mu.RLock()
	defer a.mu.RUnlock()

	if a.closed {
		return adapters.ErrAdapterClosed
	}

	return nil
}

// Reset clears all data. Useful for testing.
func (a *MemoryAdapter) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.streams = make(map[string]*streamData)
	a.globalEvents = make([]adapters.StoredEvent, 0)
	a.globalPosition = 0
	a.snapshots = make(map[string][]adapters.SnapshotRecord)
}

// EventCount returns the total number of events stored.
func (a *MemoryAdapter) EventCount() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.globalEvents)
}

// StreamCount returns the number of streams.
func (a *MemoryAdapter) StreamCount() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.streams)
}

// SnapshotCount returns the number of snapshots kept for a stream.
func (a *MemoryAdapter) SnapshotCount(streamID string) int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.snapshots[streamID])
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

func cloneMetadata(m adapters.Metadata) adapters.Metadata {
	if m.Custom != nil {
		custom := make(map[string]string, len(m.Custom))
		for k, v := range m.Custom {
			custom[k] = v
		}
		m.Custom = custom
	}
	return m
}
