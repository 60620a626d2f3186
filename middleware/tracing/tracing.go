// Package tracing provides OpenTelemetry tracing for the student record store.
//
// Basic usage with the command bus:
//
//	tp := sdktrace.NewTracerProvider(...)
//	otel.SetTracerProvider(tp)
//
//	tracer := tracing.NewTracer()
//	bus := academic.NewCommandBus()
//	bus.Use(tracing.CommandMiddleware(tracer))
//
// The same tracer can wrap the event store backend, projections and
// publishers so that a save shows up as one trace.
package tracing

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	academic "github.com/songifi/LMS-Backend-sub004"
	"github.com/songifi/LMS-Backend-sub004/adapters"
)

const (
	// TracerName is the instrumentation name.
	TracerName = "github.com/songifi/LMS-Backend-sub004"

	// DefaultServiceName is the default service name for spans.
	DefaultServiceName = "academic"
)

// Attribute keys.
const (
	AttrService         = attribute.Key("academic.service")
	AttrCommandType     = attribute.Key("academic.command.type")
	AttrStudentID       = attribute.Key("academic.student_id")
	AttrCorrelationID   = attribute.Key("academic.correlation_id")
	AttrVersion         = attribute.Key("academic.version")
	AttrStreamID        = attribute.Key("academic.stream_id")
	AttrExpectedVersion = attribute.Key("academic.expected_version")
	AttrEventCount      = attribute.Key("academic.events.count")
	AttrEventTypes      = attribute.Key("academic.events.types")
	AttrEventType       = attribute.Key("academic.event.type")
	AttrProjection      = attribute.Key("academic.projection")
	AttrPublisher       = attribute.Key("academic.publisher")
	AttrPosition        = attribute.Key("academic.position")
)

// Tracer wraps an OpenTelemetry tracer.
type Tracer struct {
	tracer      trace.Tracer
	serviceName string
}

// TracerOption configures a Tracer.
type TracerOption func(*Tracer)

// WithTracerProvider sets a custom TracerProvider.
func WithTracerProvider(tp trace.TracerProvider) TracerOption {
	return func(t *Tracer) {
		t.tracer = tp.Tracer(TracerName)
	}
}

// WithServiceName sets the service name for spans.
func WithServiceName(name string) TracerOption {
	return func(t *Tracer) {
		t.serviceName = name
	}
}

// NewTracer creates a new Tracer with the global TracerProvider.
func NewTracer(opts ...TracerOption) *Tracer {
	t := &Tracer{
		tracer:      otel.Tracer(TracerName),
		serviceName: DefaultServiceName,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// StartSpan starts a new span tagged with the service name.
func (t *Tracer) StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	ctx, span := t.tracer.Start(ctx, name, opts...)
	span.SetAttributes(AttrService.String(t.serviceName))
	return ctx, span
}

// Tracer returns the underlying OpenTelemetry tracer.
func (t *Tracer) Tracer() trace.Tracer {
	return t.tracer
}

// ServiceName returns the configured service name.
func (t *Tracer) ServiceName() string {
	return t.serviceName
}

// end records err on the span, if any, and sets the status.
func end(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return
	}
	span.SetStatus(codes.Ok, "")
}

// =============================================================================
// Commands
// =============================================================================

// CommandMiddleware creates middleware that traces command execution.
func CommandMiddleware(tracer *Tracer) academic.Middleware {
	return func(next academic.MiddlewareFunc) academic.MiddlewareFunc {
		return func(ctx context.Context, cmd academic.Command) (academic.CommandResult, error) {
			ctx, span := tracer.StartSpan(ctx, fmt.Sprintf("command.%s", cmd.CommandType()),
				trace.WithSpanKind(trace.SpanKindInternal),
			)
			defer span.End()

			span.SetAttributes(AttrCommandType.String(cmd.CommandType()))
			if rc, ok := cmd.(academic.RecordCommand); ok {
				span.SetAttributes(AttrStudentID.String(rc.AggregateID()))
			}
			if correlationID := academic.CorrelationIDFromContext(ctx); correlationID != "" {
				span.SetAttributes(AttrCorrelationID.String(correlationID))
			}

			result, err := next(ctx, cmd)

			switch {
			case err != nil:
				end(span, err)
			case result.IsError():
				end(span, result.Error)
			default:
				end(span, nil)
				span.SetAttributes(AttrVersion.Int64(result.Version))
			}

			return result, err
		}
	}
}

// =============================================================================
// Event Store
// =============================================================================

// EventStoreMiddleware wraps an EventStoreAdapter with tracing.
type EventStoreMiddleware struct {
	adapter adapters.EventStoreAdapter
	tracer  *Tracer
}

var _ adapters.EventStoreAdapter = (*EventStoreMiddleware)(nil)

// NewEventStoreMiddleware wraps an adapter with tracing.
func NewEventStoreMiddleware(adapter adapters.EventStoreAdapter, tracer *Tracer) *EventStoreMiddleware {
	return &EventStoreMiddleware{
		adapter: adapter,
		tracer:  tracer,
	}
}

func (m *EventStoreMiddleware) start(ctx context.Context, name string) (context.Context, trace.Span) {
	return m.tracer.StartSpan(ctx, name, trace.WithSpanKind(trace.SpanKindClient))
}

// Append stores events with tracing.
func (m *EventStoreMiddleware) Append(ctx context.Context, streamID string, events []adapters.EventRecord, expectedVersion int64) ([]adapters.StoredEvent, error) {
	ctx, span := m.start(ctx, "eventstore.append")
	defer span.End()

	eventTypes := make([]string, len(events))
	for i, e := range events {
		eventTypes[i] = e.Type
	}
	span.SetAttributes(
		AttrStreamID.String(streamID),
		AttrExpectedVersion.Int64(expectedVersion),
		AttrEventCount.Int(len(events)),
		AttrEventTypes.StringSlice(eventTypes),
	)

	stored, err := m.adapter.Append(ctx, streamID, events, expectedVersion)
	end(span, err)
	if err == nil && len(stored) > 0 {
		last := stored[len(stored)-1]
		span.SetAttributes(AttrVersion.Int64(last.Version), AttrPosition.Int64(int64(last.GlobalPosition)))
	}
	return stored, err
}

// Load retrieves events with tracing.
func (m *EventStoreMiddleware) Load(ctx context.Context, streamID string, r adapters.Range) ([]adapters.StoredEvent, error) {
	ctx, span := m.start(ctx, "eventstore.load")
	defer span.End()

	span.SetAttributes(
		AttrStreamID.String(streamID),
		attribute.Int64("academic.range.after_version", r.AfterVersion),
		attribute.Int64("academic.range.max_version", r.MaxVersion),
	)
	if !r.Until.IsZero() {
		span.SetAttributes(attribute.String("academic.range.until", r.Until.UTC().Format(time.RFC3339Nano)))
	}

	events, err := m.adapter.Load(ctx, streamID, r)
	end(span, err)
	if err == nil {
		span.SetAttributes(AttrEventCount.Int(len(events)))
	}
	return events, err
}

// LoadFromPosition reads the global log with tracing.
func (m *EventStoreMiddleware) LoadFromPosition(ctx context.Context, fromPosition uint64, limit int) ([]adapters.StoredEvent, error) {
	ctx, span := m.start(ctx, "eventstore.load_from_position")
	defer span.End()

	span.SetAttributes(
		AttrPosition.Int64(int64(fromPosition)),
		attribute.Int("academic.limit", limit),
	)

	events, err := m.adapter.LoadFromPosition(ctx, fromPosition, limit)
	end(span, err)
	if err == nil {
		span.SetAttributes(AttrEventCount.Int(len(events)))
	}
	return events, err
}

// GetStreamInfo returns stream metadata with tracing.
func (m *EventStoreMiddleware) GetStreamInfo(ctx context.Context, streamID string) (*adapters.StreamInfo, error) {
	ctx, span := m.start(ctx, "eventstore.get_stream_info")
	defer span.End()

	span.SetAttributes(AttrStreamID.String(streamID))

	info, err := m.adapter.GetStreamInfo(ctx, streamID)
	end(span, err)
	if err == nil {
		span.SetAttributes(AttrVersion.Int64(info.Version))
	}
	return info, err
}

// GetLastPosition returns the last global position with tracing.
func (m *EventStoreMiddleware) GetLastPosition(ctx context.Context) (uint64, error) {
	ctx, span := m.start(ctx, "eventstore.get_last_position")
	defer span.End()

	pos, err := m.adapter.GetLastPosition(ctx)
	end(span, err)
	if err == nil {
		span.SetAttributes(AttrPosition.Int64(int64(pos)))
	}
	return pos, err
}

// Initialize initializes the adapter with tracing.
func (m *EventStoreMiddleware) Initialize(ctx context.Context) error {
	ctx, span := m.start(ctx, "eventstore.initialize")
	defer span.End()

	err := m.adapter.Initialize(ctx)
	end(span, err)
	return err
}

// Close closes the adapter.
func (m *EventStoreMiddleware) Close() error {
	return m.adapter.Close()
}

// Ping forwards to the underlying adapter when it is an adapters.HealthChecker.
func (m *EventStoreMiddleware) Ping(ctx context.Context) error {
	if hc, ok := m.adapter.(adapters.HealthChecker); ok {
		return hc.Ping(ctx)
	}
	return nil
}

// =============================================================================
// Projections and publishers
// =============================================================================

// ProjectionMiddleware wraps a projection with tracing.
type ProjectionMiddleware struct {
	projection academic.Projection
	tracer     *Tracer
}

var _ academic.Projection = (*ProjectionMiddleware)(nil)

// NewProjectionMiddleware wraps a projection with tracing.
func NewProjectionMiddleware(projection academic.Projection, tracer *Tracer) *ProjectionMiddleware {
	return &ProjectionMiddleware{
		projection: projection,
		tracer:     tracer,
	}
}

// Name returns the wrapped projection's name.
func (m *ProjectionMiddleware) Name() string {
	return m.projection.Name()
}

// HandleEvent applies an event with tracing.
func (m *ProjectionMiddleware) HandleEvent(ctx context.Context, event academic.DomainEvent) error {
	ctx, span := m.tracer.StartSpan(ctx, fmt.Sprintf("projection.%s", m.projection.Name()),
		trace.WithSpanKind(trace.SpanKindConsumer),
	)
	defer span.End()

	span.SetAttributes(
		AttrProjection.String(m.projection.Name()),
		AttrEventType.String(string(event.EventType())),
		AttrStudentID.String(event.AggregateID),
		AttrVersion.Int64(event.Version),
		AttrPosition.Int64(int64(event.GlobalPosition)),
	)

	err := m.projection.HandleEvent(ctx, event)
	end(span, err)
	return err
}

// Reset clears the wrapped projection with tracing.
func (m *ProjectionMiddleware) Reset(ctx context.Context) error {
	ctx, span := m.tracer.StartSpan(ctx, fmt.Sprintf("projection.%s.reset", m.projection.Name()))
	defer span.End()

	span.SetAttributes(AttrProjection.String(m.projection.Name()))

	err := m.projection.Reset(ctx)
	end(span, err)
	return err
}

// Unwrap returns the wrapped projection.
func (m *ProjectionMiddleware) Unwrap() academic.Projection {
	return m.projection
}

// PublisherMiddleware wraps an event publisher with tracing.
type PublisherMiddleware struct {
	publisher academic.EventPublisher
	tracer    *Tracer
}

var _ academic.EventPublisher = (*PublisherMiddleware)(nil)

// NewPublisherMiddleware wraps a publisher with tracing.
func NewPublisherMiddleware(publisher academic.EventPublisher, tracer *Tracer) *PublisherMiddleware {
	return &PublisherMiddleware{
		publisher: publisher,
		tracer:    tracer,
	}
}

// Name returns the wrapped publisher's name.
func (m *PublisherMiddleware) Name() string {
	return m.publisher.Name()
}

// Publish forwards events with tracing.
func (m *PublisherMiddleware) Publish(ctx context.Context, events []academic.DomainEvent) error {
	ctx, span := m.tracer.StartSpan(ctx, fmt.Sprintf("publish.%s", m.publisher.Name()),
		trace.WithSpanKind(trace.SpanKindProducer),
	)
	defer span.End()

	span.SetAttributes(
		AttrPublisher.String(m.publisher.Name()),
		AttrEventCount.Int(len(events)),
	)
	if len(events) > 0 {
		span.SetAttributes(AttrStudentID.String(events[0].AggregateID))
	}

	err := m.publisher.Publish(ctx, events)
	end(span, err)
	return err
}

// =============================================================================
// Helpers
// =============================================================================

// SpanFromContext returns the current span from context.
func SpanFromContext(ctx context.Context) trace.Span {
	return trace.SpanFromContext(ctx)
}

// AddEvent adds an event to the current span.
func AddEvent(ctx context.Context, name string, opts ...trace.EventOption) {
	trace.SpanFromContext(ctx).AddEvent(name, opts...)
}

// SetError sets an error on the current span.
func SetError(ctx context.Context, err error) {
	end(trace.SpanFromContext(ctx), err)
}
