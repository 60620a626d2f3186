// Package msgpack provides a MessagePack serializer for student record events
// and snapshots.
//
// MessagePack is a binary serialization format that produces smaller payloads
// than JSON. Field names follow the json struct tags, so a payload encoded
// here carries the same keys as its JSON form.
//
// Basic usage:
//
//	store := academic.NewEventStore(adapter, academic.WithSerializer(msgpack.NewSerializer()))
package msgpack

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/songifi/LMS-Backend-sub004"
	"github.com/vmihailenco/msgpack/v5"
)

var _ academic.Serializer = (*Serializer)(nil)

// ErrEmptyData indicates an attempt to deserialize empty data.
var ErrEmptyData = errors.New("academic/msgpack: cannot deserialize empty data")

// Serializer is a MessagePack implementation of academic.Serializer.
type Serializer struct {
	structTag string
}

// SerializerOption configures a Serializer.
type SerializerOption func(*Serializer)

// WithStructTag sets the struct tag used for field names. Defaults to "json".
func WithStructTag(tag string) SerializerOption {
	return func(s *Serializer) {
		s.structTag = tag
	}
}

// NewSerializer creates a new MessagePack Serializer.
func NewSerializer(opts ...SerializerOption) *Serializer {
	s := &Serializer{structTag: "json"}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Name implements academic.Serializer.
func (s *Serializer) Name() string { return "msgpack" }

// Marshal converts v to MessagePack bytes.
func (s *Serializer) Marshal(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetCustomStructTag(s.structTag)
	if err := enc.Encode(v); err != nil {
		return nil, &SerializationError{Operation: "serialize", Type: fmt.Sprintf("%T", v), Err: err}
	}
	return buf.Bytes(), nil
}

// Unmarshal decodes MessagePack bytes into the value v points to.
func (s *Serializer) Unmarshal(data []byte, v interface{}) error {
	if len(data) == 0 {
		return &SerializationError{Operation: "deserialize", Type: fmt.Sprintf("%T", v), Err: ErrEmptyData}
	}
	dec := msgpack.NewDecoder(bytes.NewReader(data))
	dec.SetCustomStructTag(s.structTag)
	if err := dec.Decode(v); err != nil {
		return &SerializationError{Operation: "deserialize", Type: fmt.Sprintf("%T", v), Err: err}
	}
	return nil
}

// SerializationError represents a serialization or deserialization error.
type SerializationError struct {
	Type      string
	Operation string // "serialize" or "deserialize"
	Err       error
}

// Error implements the error interface.
func (e *SerializationError) Error() string {
	return fmt.Sprintf("academic/msgpack: failed to %s %s: %v", e.Operation, e.Type, e.Err)
}

// Unwrap returns the underlying error.
func (e *SerializationError) Unwrap() error {
	return e.Err
}
