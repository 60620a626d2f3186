package academic

import (
	"encoding/json"
	"fmt"
)

// Serializer encodes event payloads and snapshot state for storage.
// Implementations must round-trip every exported field of the event
// payloads and RecordState.
type Serializer interface {
	// Name identifies the format, e.g. "json".
	Name() string

	// Marshal encodes v.
	Marshal(v interface{}) ([]byte, error)

	// Unmarshal decodes data into the value v points to.
	Unmarshal(data []byte, v interface{}) error
}

// JSONSerializer is the default Serializer implementation using JSON encoding.
type JSONSerializer struct{}

// NewJSONSerializer creates a new JSONSerializer.
func NewJSONSerializer() *JSONSerializer {
	return &JSONSerializer{}
}

// Name implements Serializer.
func (s *JSONSerializer) Name() string { return "json" }

// Marshal implements Serializer.
func (s *JSONSerializer) Marshal(v interface{}) ([]byte, error) {
	return json.Marshal(v)
}

// Unmarshal implements Serializer.
func (s *JSONSerializer) Unmarshal(data []byte, v interface{}) error {
	return json.Unmarshal(data, v)
}

// EncodeEvent serializes an event payload and returns its stored type name.
func EncodeEvent(s Serializer, event Event) (string, []byte, error) {
	if event == nil {
		return "", nil, NewStoreError("encode event", fmt.Errorf("event payload is nil"))
	}
	data, err := s.Marshal(event)
	if err != nil {
		return "", nil, NewStoreError(fmt.Sprintf("encode %s", event.EventType()), err)
	}
	return string(event.EventType()), data, nil
}

// DecodeEvent turns a stored type name and payload back into an Event.
// Unknown type names fail with UnknownEventTypeError; they are never skipped.
func DecodeEvent(s Serializer, eventType string, data []byte) (Event, error) {
	switch EventType(eventType) {
	case EventGradeRecorded:
		return decodeInto[GradeRecorded](s, eventType, data)
	case EventGradeModified:
		return decodeInto[GradeModified](s, eventType, data)
	case EventCourseEnrolled:
		return decodeInto[CourseEnrolled](s, eventType, data)
	case EventCourseDropped:
		return decodeInto[CourseDropped](s, eventType, data)
	case EventDegreeProgressUpdated:
		return decodeInto[DegreeProgressUpdated](s, eventType, data)
	default:
		return nil, NewUnknownEventTypeError(eventType)
	}
}

func decodeInto[T Event](s Serializer, eventType string, data []byte) (Event, error) {
	if len(data) == 0 {
		return nil, NewStoreError("decode "+eventType, fmt.Errorf("data cannot be empty"))
	}
	var payload T
	if err := s.Unmarshal(data, &payload); err != nil {
		return nil, NewStoreError("decode "+eventType, err)
	}
	return payload.normalize(), nil
}
