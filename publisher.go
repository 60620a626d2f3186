package academic

import (
	"context"
	"encoding/json"
	"time"
)

// EventPublisher forwards committed events to an external system.
// Publishing happens after the append and after projections; a failed
// publish is reported but never undoes the save.
type EventPublisher interface {
	// Name identifies the publisher in logs and SaveResult errors.
	Name() string

	// Publish delivers one aggregate's committed batch in version order.
	Publish(ctx context.Context, events []DomainEvent) error
}

// EventMessage is the wire form of a committed event used by publishers.
type EventMessage struct {
	ID             string            `json:"id"`
	StudentID      string            `json:"studentId"`
	AggregateType  string            `json:"aggregateType"`
	EventType      string            `json:"eventType"`
	Version        int64             `json:"version"`
	GlobalPosition uint64            `json:"globalPosition"`
	Timestamp      time.Time         `json:"timestamp"`
	Payload        json.RawMessage   `json:"payload"`
	Metadata       Metadata          `json:"metadata"`
	Headers        map[string]string `json:"-"`
}

// NewEventMessage builds the wire form of a committed event. The payload is
// always JSON so consumers need no knowledge of the store's serializer.
func NewEventMessage(event DomainEvent) (EventMessage, error) {
	eventType, payload, err := EncodeEvent(NewJSONSerializer(), event.Payload)
	if err != nil {
		return EventMessage{}, err
	}

	headers := map[string]string{
		"event-type": eventType,
		"student-id": event.AggregateID,
	}
	if event.Metadata.CorrelationID != "" {
		headers["correlation-id"] = event.Metadata.CorrelationID
	}

	return EventMessage{
		ID:             event.ID,
		StudentID:      event.AggregateID,
		AggregateType:  AggregateType,
		EventType:      eventType,
		Version:        event.Version,
		GlobalPosition: event.GlobalPosition,
		Timestamp:      event.Timestamp,
		Payload:        payload,
		Metadata:       event.Metadata,
		Headers:        headers,
	}, nil
}

// Body returns the JSON encoding of the message.
func (m EventMessage) Body() ([]byte, error) {
	return json.Marshal(m)
}
