// Package adapters defines the storage contract for student record streams
// and the helpers shared by every backend.
package adapters

import (
	"fmt"
	"strings"
)

// Expected-version sentinels accepted by EventStoreAdapter.Append. Any value
// >= 1 is an exact stream version.
const (
	AnyVersion   int64 = -1
	NoStream     int64 = 0
	StreamExists int64 = -2
)

// DefaultBatchSize is the page size for global reads when the caller passes
// no limit.
const DefaultBatchSize = 1000

// DefaultLimit returns fallback when limit is not positive.
func DefaultLimit(limit, fallback int) int {
	if limit > 0 {
		return limit
	}
	return fallback
}

// ExtractCategory returns the part of a stream ID before its first hyphen,
// so "StudentRecord-s-42" belongs to "StudentRecord".
func ExtractCategory(streamID string) string {
	category, _, _ := strings.Cut(streamID, "-")
	return category
}

// ConcurrencyError reports an append whose expected version did not match
// the stream. It matches ErrConcurrencyConflict.
type ConcurrencyError struct {
	StreamID        string
	ExpectedVersion int64
	ActualVersion   int64
}

// NewConcurrencyError creates a ConcurrencyError.
func NewConcurrencyError(streamID string, expected, actual int64) *ConcurrencyError {
	return &ConcurrencyError{StreamID: streamID, ExpectedVersion: expected, ActualVersion: actual}
}

func (e *ConcurrencyError) Error() string {
	return fmt.Sprintf("academic: concurrency conflict on stream %q: expected version %d, got %d",
		e.StreamID, e.ExpectedVersion, e.ActualVersion)
}

// Is matches ErrConcurrencyConflict.
func (e *ConcurrencyError) Is(target error) bool {
	return target == ErrConcurrencyConflict
}

// StreamNotFoundError reports a StreamExists append to a student with no
// events. It matches ErrStreamNotFound.
type StreamNotFoundError struct {
	StreamID string
}

// NewStreamNotFoundError creates a StreamNotFoundError.
func NewStreamNotFoundError(streamID string) *StreamNotFoundError {
	return &StreamNotFoundError{StreamID: streamID}
}

func (e *StreamNotFoundError) Error() string {
	return fmt.Sprintf("academic: stream %q not found", e.StreamID)
}

// Is matches ErrStreamNotFound.
func (e *StreamNotFoundError) Is(target error) bool {
	return target == ErrStreamNotFound
}

// CheckVersion is the optimistic concurrency rule every backend applies
// inside its append transaction, with current read under the same lock.
func CheckVersion(streamID string, expected, current int64, exists bool) error {
	switch {
	case expected == AnyVersion:
		return nil
	case expected == StreamExists:
		if !exists {
			return NewStreamNotFoundError(streamID)
		}
		return nil
	case expected < 0:
		return ErrInvalidVersion
	case expected == NoStream && exists, expected != current:
		return NewConcurrencyError(streamID, expected, current)
	}
	return nil
}
