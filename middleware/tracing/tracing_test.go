package tracing

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"

	academic "github.com/songifi/LMS-Backend-sub004"
	"github.com/songifi/LMS-Backend-sub004/adapters"
	"github.com/songifi/LMS-Backend-sub004/adapters/memory"
)

var testTime = time.Date(2025, 1, 13, 9, 0, 0, 0, time.UTC)

func setupTestTracer(t *testing.T) (*Tracer, *tracetest.SpanRecorder) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	t.Cleanup(func() {
		_ = tp.Shutdown(context.Background())
	})
	return NewTracer(WithTracerProvider(tp), WithServiceName("registrar")), recorder
}

func attrs(span sdktrace.ReadOnlySpan) map[attribute.Key]attribute.Value {
	out := make(map[attribute.Key]attribute.Value)
	for _, kv := range span.Attributes() {
		out[kv.Key] = kv.Value
	}
	return out
}

func spanNamed(t *testing.T, recorder *tracetest.SpanRecorder, name string) sdktrace.ReadOnlySpan {
	t.Helper()
	for _, s := range recorder.Ended() {
		if s.Name() == name {
			return s
		}
	}
	require.Failf(t, "span not found", "no ended span named %q", name)
	return nil
}

// failingProjection rejects every event.
type failingProjection struct{ err error }

func (p *failingProjection) Name() string { return "failing" }
func (p *failingProjection) HandleEvent(ctx context.Context, event academic.DomainEvent) error {
	return p.err
}
func (p *failingProjection) Reset(ctx context.Context) error { return nil }

// stubPublisher records the span context it was called with.
type stubPublisher struct {
	err  error
	span trace.SpanContext
}

func (p *stubPublisher) Name() string { return "stub" }
func (p *stubPublisher) Publish(ctx context.Context, events []academic.DomainEvent) error {
	p.span = trace.SpanContextFromContext(ctx)
	return p.err
}

func TestNewTracer(t *testing.T) {
	tracer := NewTracer()
	assert.Equal(t, DefaultServiceName, tracer.ServiceName())
	assert.NotNil(t, tracer.Tracer())

	tracer = NewTracer(WithServiceName("registrar"))
	assert.Equal(t, "registrar", tracer.ServiceName())
}

func TestCommandMiddleware(t *testing.T) {
	ctx := context.Background()

	t.Run("successful command", func(t *testing.T) {
		tracer, recorder := setupTestTracer(t)
		bus := academic.NewCommandBus()
		bus.Use(academic.CorrelationIDMiddleware(func() string { return "corr-1" }), CommandMiddleware(tracer))
		bus.Register(academic.NewCommandHandlerFunc(academic.CommandRecordGrade, func(ctx context.Context, cmd academic.Command) (academic.CommandResult, error) {
			assert.True(t, trace.SpanContextFromContext(ctx).IsValid())
			return academic.CommandResult{Success: true, StudentID: "s-1", Version: 3}, nil
		}))

		_, err := bus.Dispatch(ctx, academic.RecordGrade{StudentID: "s-1", CourseID: "CS101", Grade: "A", Points: 4, Semester: "Fall2024", RecordedBy: "registrar"})
		require.NoError(t, err)

		span := spanNamed(t, recorder, "command.RecordGrade")
		a := attrs(span)
		assert.Equal(t, codes.Ok, span.Status().Code)
		assert.Equal(t, "registrar", a[AttrService].AsString())
		assert.Equal(t, "s-1", a[AttrStudentID].AsString())
		assert.Equal(t, "corr-1", a[AttrCorrelationID].AsString())
		assert.Equal(t, int64(3), a[AttrVersion].AsInt64())
	})

	t.Run("failed command", func(t *testing.T) {
		tracer, recorder := setupTestTracer(t)
		errRejected := academic.NewInvalidOperationError("drop course", "no active enrollment")
		bus := academic.NewCommandBus(academic.WithMiddleware(CommandMiddleware(tracer)))
		bus.Register(academic.NewCommandHandlerFunc(academic.CommandDropCourse, func(ctx context.Context, cmd academic.Command) (academic.CommandResult, error) {
			return academic.NewErrorResult(errRejected), errRejected
		}))

		_, err := bus.Dispatch(ctx, academic.DropCourse{StudentID: "s-1"})
		require.Error(t, err)

		span := spanNamed(t, recorder, "command.DropCourse")
		assert.Equal(t, codes.Error, span.Status().Code)
		assert.Contains(t, span.Status().Description, "no active enrollment")
		require.Len(t, span.Events(), 1)
		assert.Equal(t, "exception", span.Events()[0].Name)
	})
}

func TestEventStoreMiddleware(t *testing.T) {
	ctx := context.Background()
	tracer, recorder := setupTestTracer(t)
	adapter := memory.NewAdapter(memory.WithClock(func() time.Time { return testTime }))
	wrapped := NewEventStoreMiddleware(adapter, tracer)
	require.NoError(t, wrapped.Initialize(ctx))

	records := []adapters.EventRecord{
		{Type: "CourseEnrolled", Data: []byte(`{}`)},
		{Type: "GradeRecorded", Data: []byte(`{}`)},
	}

	t.Run("append", func(t *testing.T) {
		_, err := wrapped.Append(ctx, "StudentRecord-s-1", records, adapters.NoStream)
		require.NoError(t, err)

		span := spanNamed(t, recorder, "eventstore.append")
		a := attrs(span)
		assert.Equal(t, trace.SpanKindClient, span.SpanKind())
		assert.Equal(t, "StudentRecord-s-1", a[AttrStreamID].AsString())
		assert.Equal(t, []string{"CourseEnrolled", "GradeRecorded"}, a[AttrEventTypes].AsStringSlice())
		assert.Equal(t, int64(2), a[AttrVersion].AsInt64())
	})

	t.Run("conflict is recorded", func(t *testing.T) {
		_, err := wrapped.Append(ctx, "StudentRecord-s-1", records, adapters.NoStream)
		require.ErrorIs(t, err, adapters.ErrConcurrencyConflict)

		ended := recorder.Ended()
		last := ended[len(ended)-1]
		assert.Equal(t, "eventstore.append", last.Name())
		assert.Equal(t, codes.Error, last.Status().Code)
	})

	t.Run("load with range", func(t *testing.T) {
		events, err := wrapped.Load(ctx, "StudentRecord-s-1", adapters.Range{AfterVersion: 1, Until: testTime})
		require.NoError(t, err)
		assert.Len(t, events, 1)

		a := attrs(spanNamed(t, recorder, "eventstore.load"))
		assert.Equal(t, int64(1), a["academic.range.after_version"].AsInt64())
		assert.Equal(t, testTime.Format(time.RFC3339Nano), a["academic.range.until"].AsString())
		assert.Equal(t, int64(1), a[AttrEventCount].AsInt64())
	})

	t.Run("global reads", func(t *testing.T) {
		events, err := wrapped.LoadFromPosition(ctx, 0, 10)
		require.NoError(t, err)
		assert.Len(t, events, 2)

		pos, err := wrapped.GetLastPosition(ctx)
		require.NoError(t, err)
		assert.Equal(t, uint64(2), pos)

		info, err := wrapped.GetStreamInfo(ctx, "StudentRecord-s-1")
		require.NoError(t, err)
		assert.Equal(t, int64(2), info.Version)

		assert.Equal(t, int64(2), attrs(spanNamed(t, recorder, "eventstore.get_last_position"))[AttrPosition].AsInt64())
		assert.Equal(t, codes.Ok, spanNamed(t, recorder, "eventstore.get_stream_info").Status().Code)
	})

	require.NoError(t, wrapped.Ping(ctx))
	require.NoError(t, wrapped.Close())
}

func TestProjectionMiddleware(t *testing.T) {
	ctx := context.Background()
	tracer, recorder := setupTestTracer(t)

	event := academic.DomainEvent{
		AggregateID:    "s-1",
		AggregateType:  academic.AggregateType,
		Version:        4,
		GlobalPosition: 9,
		Timestamp:      testTime,
		Payload:        academic.GradeRecorded{CourseID: "CS101", Grade: "A", Points: 4, Semester: "Fall2024", RecordedBy: "registrar"},
	}

	t.Run("wraps a real projection", func(t *testing.T) {
		grades := academic.NewGradesProjection(academic.NewMemoryReadModelStore[academic.GradeView]())
		traced := NewProjectionMiddleware(grades, tracer)
		assert.Equal(t, academic.GradesProjectionName, traced.Name())
		assert.Same(t, grades, traced.Unwrap())

		require.NoError(t, traced.HandleEvent(ctx, event))
		views, err := grades.ForStudent(ctx, "s-1")
		require.NoError(t, err)
		assert.Len(t, views, 1)

		span := spanNamed(t, recorder, "projection.grades")
		a := attrs(span)
		assert.Equal(t, "GradeRecorded", a[AttrEventType].AsString())
		assert.Equal(t, int64(4), a[AttrVersion].AsInt64())
		assert.Equal(t, int64(9), a[AttrPosition].AsInt64())

		require.NoError(t, traced.Reset(ctx))
		spanNamed(t, recorder, "projection.grades.reset")
	})

	t.Run("records failures", func(t *testing.T) {
		errBoom := errors.New("boom")
		traced := NewProjectionMiddleware(&failingProjection{err: errBoom}, tracer)

		assert.ErrorIs(t, traced.HandleEvent(ctx, event), errBoom)
		assert.Equal(t, codes.Error, spanNamed(t, recorder, "projection.failing").Status().Code)
	})
}

func TestPublisherMiddleware(t *testing.T) {
	ctx := context.Background()
	tracer, recorder := setupTestTracer(t)

	pub := &stubPublisher{err: errors.New("broker down")}
	traced := NewPublisherMiddleware(pub, tracer)
	assert.Equal(t, "stub", traced.Name())

	err := traced.Publish(ctx, []academic.DomainEvent{{AggregateID: "s-1"}, {AggregateID: "s-1"}})
	require.Error(t, err)
	assert.True(t, pub.span.IsValid())

	span := spanNamed(t, recorder, "publish.stub")
	assert.Equal(t, trace.SpanKindProducer, span.SpanKind())
	assert.Equal(t, int64(2), attrs(span)[AttrEventCount].AsInt64())
	assert.Equal(t, codes.Error, span.Status().Code)
}

func TestSpanHelpers(t *testing.T) {
	tracer, recorder := setupTestTracer(t)

	ctx, span := tracer.StartSpan(context.Background(), "manual")
	assert.Equal(t, span, SpanFromContext(ctx))
	AddEvent(ctx, "checkpoint")
	SetError(ctx, errors.New("failed"))
	span.End()

	ended := spanNamed(t, recorder, "manual")
	assert.Equal(t, codes.Error, ended.Status().Code)
	names := make([]string, 0, len(ended.Events()))
	for _, e := range ended.Events() {
		names = append(names, e.Name)
	}
	assert.Contains(t, names, "checkpoint")
	assert.Contains(t, names, "exception")
}
