// Package protobuf provides a Protocol Buffers serializer for student record
// events and snapshots.
//
// Payloads are framed as google.protobuf.Struct messages, so any consumer
// with the well-known types can read them without generated code:
//
//	store := academic.NewEventStore(adapter, academic.WithSerializer(protobuf.NewSerializer()))
//
// Numbers travel as doubles; every numeric field of the record model fits
// in one without loss.
package protobuf

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/songifi/LMS-Backend-sub004"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

var _ academic.Serializer = (*Serializer)(nil)

var (
	// ErrEmptyData indicates an attempt to deserialize empty data.
	ErrEmptyData = errors.New("academic/protobuf: cannot deserialize empty data")

	// ErrNotObject indicates a value that does not encode to a JSON object.
	ErrNotObject = errors.New("academic/protobuf: value must encode to an object")
)

// SerializationError provides detailed error information for serialization failures.
type SerializationError struct {
	// Type is the Go type that failed.
	Type string

	// Operation is either "serialize" or "deserialize".
	Operation string

	// Cause is the underlying error.
	Cause error
}

// Error returns the error message.
func (e *SerializationError) Error() string {
	return fmt.Sprintf("academic/protobuf: failed to %s %s: %v", e.Operation, e.Type, e.Cause)
}

// Unwrap returns the underlying error.
func (e *SerializationError) Unwrap() error {
	return e.Cause
}

// Serializer implements academic.Serializer using protobuf Struct messages.
type Serializer struct {
	marshal   proto.MarshalOptions
	unmarshal proto.UnmarshalOptions
}

// NewSerializer creates a new Protocol Buffers serializer.
// Output is deterministic so equal values produce equal bytes.
func NewSerializer() *Serializer {
	return &Serializer{
		marshal:   proto.MarshalOptions{Deterministic: true},
		unmarshal: proto.UnmarshalOptions{DiscardUnknown: true},
	}
}

// Name implements academic.Serializer.
func (s *Serializer) Name() string { return "protobuf" }

// Marshal converts v to a serialized google.protobuf.Struct.
func (s *Serializer) Marshal(v interface{}) ([]byte, error) {
	fail := func(err error) ([]byte, error) {
		return nil, &SerializationError{Type: fmt.Sprintf("%T", v), Operation: "serialize", Cause: err}
	}

	raw, err := json.Marshal(v)
	if err != nil {
		return fail(err)
	}
	var fields map[string]interface{}
	if err := json.Unmarshal(raw, &fields); err != nil || fields == nil {
		return fail(ErrNotObject)
	}
	msg, err := structpb.NewStruct(fields)
	if err != nil {
		return fail(err)
	}
	data, err := s.marshal.Marshal(msg)
	if err != nil {
		return fail(err)
	}
	return data, nil
}

// Unmarshal decodes a serialized google.protobuf.Struct into the value v points to.
func (s *Serializer) Unmarshal(data []byte, v interface{}) error {
	fail := func(err error) error {
		return &SerializationError{Type: fmt.Sprintf("%T", v), Operation: "deserialize", Cause: err}
	}

	if len(data) == 0 {
		return fail(ErrEmptyData)
	}
	var msg structpb.Struct
	if err := s.unmarshal.Unmarshal(data, &msg); err != nil {
		return fail(err)
	}
	raw, err := json.Marshal(msg.AsMap())
	if err != nil {
		return fail(err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fail(err)
	}
	return nil
}
