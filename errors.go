package academic

import (
	"errors"
	"fmt"
	"time"

	"github.com/songifi/LMS-Backend-sub004/adapters"
)

// Sentinel errors for common error conditions.
// Use errors.Is() to check for these errors.
var (
	// ErrNotFound indicates the requested record, version or date has no history.
	ErrNotFound = errors.New("academic: record not found")

	// ErrVersionConflict indicates an optimistic concurrency violation.
	// The caller must reload the record and retry.
	ErrVersionConflict = adapters.ErrConcurrencyConflict

	// ErrInvalidOperation indicates a command precondition was violated.
	ErrInvalidOperation = errors.New("academic: invalid operation")

	// ErrUnknownEventType indicates a stored event type this build cannot fold.
	ErrUnknownEventType = errors.New("academic: unknown event type")

	// ErrStore indicates an I/O or serialization failure in a store.
	ErrStore = errors.New("academic: store failure")

	// ErrValidationFailed indicates malformed command input.
	ErrValidationFailed = errors.New("academic: validation failed")

	// ErrProjectionNotFound indicates no projection is registered under a name.
	ErrProjectionNotFound = errors.New("academic: projection not found")

	// ErrReadOnlyRecord indicates an attempt to save a historical reconstruction.
	ErrReadOnlyRecord = errors.New("academic: record is read-only")

	// ErrHandlerPanicked indicates a command handler or projection panicked.
	ErrHandlerPanicked = errors.New("academic: handler panicked")

	// ErrHandlerNotFound indicates no handler is registered for a command type.
	ErrHandlerNotFound = errors.New("academic: handler not found")

	// ErrNilCommand indicates a nil command was dispatched.
	ErrNilCommand = errors.New("academic: nil command")

	// ErrCommandBusClosed indicates a dispatch on a closed command bus.
	ErrCommandBusClosed = errors.New("academic: command bus is closed")

	// ErrInvalidBatch indicates an append batch that is empty, spans several
	// records or carries non-contiguous versions.
	ErrInvalidBatch = errors.New("academic: invalid event batch")
)

// ConcurrencyError is the adapters error type, re-exported so callers can
// inspect expected and actual versions without importing adapters.
type ConcurrencyError = adapters.ConcurrencyError

// RecordNotFoundError describes which lookup found no history.
type RecordNotFoundError struct {
	StudentID string
	// Version is set for version lookups.
	Version int64
	// At is set for date lookups.
	At time.Time
}

// Error returns the error message.
func (e *RecordNotFoundError) Error() string {
	switch {
	case e.Version > 0:
		return fmt.Sprintf("academic: record %q has no version %d", e.StudentID, e.Version)
	case !e.At.IsZero():
		return fmt.Sprintf("academic: record %q has no history at %s", e.StudentID, e.At.Format(time.RFC3339))
	default:
		return fmt.Sprintf("academic: record %q not found", e.StudentID)
	}
}

// Is reports whether this error matches the target error.
func (e *RecordNotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// Unwrap returns the underlying error for errors.Unwrap().
func (e *RecordNotFoundError) Unwrap() error {
	return ErrNotFound
}

// NewRecordNotFoundError creates a new RecordNotFoundError.
func NewRecordNotFoundError(studentID string) *RecordNotFoundError {
	return &RecordNotFoundError{StudentID: studentID}
}

// InvalidOperationError reports a rejected command.
type InvalidOperationError struct {
	Operation string
	Reason    string
}

// Error returns the error message.
func (e *InvalidOperationError) Error() string {
	return fmt.Sprintf("academic: %s rejected: %s", e.Operation, e.Reason)
}

// Is reports whether this error matches the target error.
func (e *InvalidOperationError) Is(target error) bool {
	return target == ErrInvalidOperation
}

// Unwrap returns the underlying error for errors.Unwrap().
func (e *InvalidOperationError) Unwrap() error {
	return ErrInvalidOperation
}

// NewInvalidOperationError creates a new InvalidOperationError.
func NewInvalidOperationError(operation, reason string) *InvalidOperationError {
	return &InvalidOperationError{Operation: operation, Reason: reason}
}

// UnknownEventTypeError names the event type that could not be decoded.
type UnknownEventTypeError struct {
	EventType string
}

// Error returns the error message.
func (e *UnknownEventTypeError) Error() string {
	return fmt.Sprintf("academic: unknown event type %q", e.EventType)
}

// Is reports whether this error matches the target error.
func (e *UnknownEventTypeError) Is(target error) bool {
	return target == ErrUnknownEventType
}

// Unwrap returns the underlying error for errors.Unwrap().
func (e *UnknownEventTypeError) Unwrap() error {
	return ErrUnknownEventType
}

// NewUnknownEventTypeError creates a new UnknownEventTypeError.
func NewUnknownEventTypeError(eventType string) *UnknownEventTypeError {
	return &UnknownEventTypeError{EventType: eventType}
}

// StoreError wraps an I/O or serialization failure with the operation that hit it.
// Both ErrStore and the cause match with errors.Is.
type StoreError struct {
	Op  string
	Err error
}

// Error returns the error message.
func (e *StoreError) Error() string {
	return fmt.Sprintf("academic: %s: %v", e.Op, e.Err)
}

// Is reports whether this error matches the target error.
func (e *StoreError) Is(target error) bool {
	return target == ErrStore
}

// Unwrap returns the underlying cause for errors.Unwrap().
func (e *StoreError) Unwrap() error {
	return e.Err
}

// NewStoreError creates a new StoreError.
func NewStoreError(op string, err error) *StoreError {
	return &StoreError{Op: op, Err: err}
}

// wrapStoreError passes domain errors through and marks everything else as a
// store failure. Concurrency conflicts keep their identity.
func wrapStoreError(op string, err error) error {
	if err == nil {
		return nil
	}
	var storeErr *StoreError
	if errors.As(err, &storeErr) ||
		errors.Is(err, ErrVersionConflict) ||
		errors.Is(err, ErrUnknownEventType) ||
		errors.Is(err, ErrInvalidBatch) {
		return err
	}
	return NewStoreError(op, err)
}

// ValidationError provides detailed information about malformed command input.
type ValidationError struct {
	CommandType string
	Field       string
	Message     string
}

// Error returns the error message.
func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("academic: validation failed for %s.%s: %s", e.CommandType, e.Field, e.Message)
	}
	return fmt.Sprintf("academic: validation failed for %s: %s", e.CommandType, e.Message)
}

// Is reports whether this error matches the target error.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidationFailed
}

// Unwrap returns the underlying error for errors.Unwrap().
func (e *ValidationError) Unwrap() error {
	return ErrValidationFailed
}

// NewValidationError creates a new ValidationError.
func NewValidationError(cmdType, field, message string) *ValidationError {
	return &ValidationError{
		CommandType: cmdType,
		Field:       field,
		Message:     message,
	}
}

// HandlerNotFoundError provides detailed information about a missing handler.
type HandlerNotFoundError struct {
	CommandType string
}

// Error returns the error message.
func (e *HandlerNotFoundError) Error() string {
	return fmt.Sprintf("academic: no handler registered for command type %q", e.CommandType)
}

// Is reports whether this error matches the target error.
func (e *HandlerNotFoundError) Is(target error) bool {
	return target == ErrHandlerNotFound
}

// Unwrap returns the underlying error for errors.Unwrap().
func (e *HandlerNotFoundError) Unwrap() error {
	return ErrHandlerNotFound
}

// NewHandlerNotFoundError creates a new HandlerNotFoundError.
func NewHandlerNotFoundError(cmdType string) *HandlerNotFoundError {
	return &HandlerNotFoundError{CommandType: cmdType}
}

// PanicError provides detailed information about a recovered panic.
type PanicError struct {
	// Source is the command type or projection name that panicked.
	Source string
	Value  interface{}
	Stack  string
}

// Error returns the error message.
func (e *PanicError) Error() string {
	return fmt.Sprintf("academic: %s panicked: %v", e.Source, e.Value)
}

// Is reports whether this error matches the target error.
func (e *PanicError) Is(target error) bool {
	return target == ErrHandlerPanicked
}

// Unwrap returns the underlying error for errors.Unwrap().
func (e *PanicError) Unwrap() error {
	return ErrHandlerPanicked
}

// NewPanicError creates a new PanicError.
func NewPanicError(source string, value interface{}, stack string) *PanicError {
	return &PanicError{
		Source: source,
		Value:  value,
		Stack:  stack,
	}
}
