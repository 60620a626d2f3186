// Package metrics provides Prometheus metrics for the student record store.
//
// Basic usage:
//
//	m := metrics.New(metrics.WithMetricsServiceName("registrar"))
//	m.MustRegister()
//
//	// Command bus
//	bus.Use(m.CommandMiddleware())
//
//	// Event store backend
//	store := academic.NewEventStore(m.WrapEventStore(adapter))
//
//	// Projections
//	manager := academic.NewProjectionManager(store, projections, academic.WithProjectionMetrics(m))
//
// Collected metrics cover command execution, event store operations,
// projection dispatch and rebuilds, and errors by kind.
package metrics

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	academic "github.com/songifi/LMS-Backend-sub004"
	"github.com/songifi/LMS-Backend-sub004/adapters"
)

// Metric labels.
const (
	LabelCommandType    = "command_type"
	LabelEventType      = "event_type"
	LabelProjectionName = "projection_name"
	LabelOperation      = "operation"
	LabelStatus         = "status"
	LabelErrorType      = "error_type"
	LabelService        = "service"
)

// Status values.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Operation values.
const (
	OperationAppend           = "append"
	OperationLoad             = "load"
	OperationLoadFromPosition = "load_from_position"
	OperationGetStreamInfo    = "get_stream_info"
	OperationGetLastPosition  = "get_last_position"
)

// Metrics holds all Prometheus metrics.
type Metrics struct {
	namespace   string
	subsystem   string
	serviceName string

	// Command metrics
	commandsTotal    *prometheus.CounterVec
	commandDuration  *prometheus.HistogramVec
	commandsInFlight *prometheus.GaugeVec

	// Event store metrics
	eventStoreOperationsTotal   *prometheus.CounterVec
	eventStoreOperationDuration *prometheus.HistogramVec
	eventsAppendedTotal         *prometheus.CounterVec
	eventsLoadedTotal           *prometheus.CounterVec

	// Projection metrics
	projectionsProcessedTotal *prometheus.CounterVec
	projectionDuration        *prometheus.HistogramVec
	rebuildsTotal             *prometheus.CounterVec
	rebuildEventsTotal        *prometheus.CounterVec
	rebuildDuration           *prometheus.HistogramVec

	errorsTotal *prometheus.CounterVec
}

var (
	_ academic.MetricsCollector  = (*Metrics)(nil)
	_ academic.ProjectionMetrics = (*Metrics)(nil)
)

// MetricsOption configures Metrics.
type MetricsOption func(*Metrics)

// WithNamespace sets the Prometheus namespace.
func WithNamespace(namespace string) MetricsOption {
	return func(m *Metrics) {
		m.namespace = namespace
	}
}

// WithSubsystem sets the Prometheus subsystem.
func WithSubsystem(subsystem string) MetricsOption {
	return func(m *Metrics) {
		m.subsystem = subsystem
	}
}

// WithMetricsServiceName sets the service name label.
func WithMetricsServiceName(name string) MetricsOption {
	return func(m *Metrics) {
		m.serviceName = name
	}
}

// New creates a new Metrics instance.
func New(opts ...MetricsOption) *Metrics {
	m := &Metrics{
		namespace:   "academic",
		serviceName: "unknown",
	}

	for _, opt := range opts {
		opt(m)
	}

	m.initMetrics()
	return m
}

func (m *Metrics) counter(name, help string, labels ...string) *prometheus.CounterVec {
	return prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      name,
		Help:      help,
	}, append([]string{LabelService}, labels...))
}

func (m *Metrics) histogram(name, help string, labels ...string) *prometheus.HistogramVec {
	return prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      name,
		Help:      help,
		Buckets:   prometheus.DefBuckets,
	}, append([]string{LabelService}, labels...))
}

func (m *Metrics) initMetrics() {
	m.commandsTotal = m.counter("commands_total",
		"Total number of commands processed.", LabelCommandType, LabelStatus)
	m.commandDuration = m.histogram("command_duration_seconds",
		"Duration of command processing in seconds.", LabelCommandType)
	m.commandsInFlight = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "commands_in_flight",
		Help:      "Number of commands currently being processed.",
	}, []string{LabelService, LabelCommandType})

	m.eventStoreOperationsTotal = m.counter("eventstore_operations_total",
		"Total number of event store operations.", LabelOperation, LabelStatus)
	m.eventStoreOperationDuration = m.histogram("eventstore_operation_duration_seconds",
		"Duration of event store operations in seconds.", LabelOperation)
	m.eventsAppendedTotal = m.counter("events_appended_total",
		"Total number of events appended to student streams.", LabelEventType)
	m.eventsLoadedTotal = m.counter("events_loaded_total",
		"Total number of events read from the store.")

	m.projectionsProcessedTotal = m.counter("projections_processed_total",
		"Total number of events processed by projections.", LabelProjectionName, LabelEventType, LabelStatus)
	m.projectionDuration = m.histogram("projection_duration_seconds",
		"Duration of projection event processing in seconds.", LabelProjectionName)
	m.rebuildsTotal = m.counter("projection_rebuilds_total",
		"Total number of projection rebuilds.", LabelProjectionName, LabelStatus)
	m.rebuildEventsTotal = m.counter("projection_rebuild_events_total",
		"Total number of events replayed by projection rebuilds.", LabelProjectionName)
	m.rebuildDuration = m.histogram("projection_rebuild_duration_seconds",
		"Duration of projection rebuilds in seconds.", LabelProjectionName)

	m.errorsTotal = m.counter("errors_total",
		"Total number of errors by type.", LabelErrorType)
}

// Collectors returns all Prometheus collectors for registration.
func (m *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.commandsTotal,
		m.commandDuration,
		m.commandsInFlight,
		m.eventStoreOperationsTotal,
		m.eventStoreOperationDuration,
		m.eventsAppendedTotal,
		m.eventsLoadedTotal,
		m.projectionsProcessedTotal,
		m.projectionDuration,
		m.rebuildsTotal,
		m.rebuildEventsTotal,
		m.rebuildDuration,
		m.errorsTotal,
	}
}

// MustRegister registers all collectors with the default registry.
// Panics if registration fails.
func (m *Metrics) MustRegister() {
	prometheus.MustRegister(m.Collectors()...)
}

// Register registers all collectors with the given registry.
func (m *Metrics) Register(registry prometheus.Registerer) error {
	for _, collector := range m.Collectors() {
		if err := registry.Register(collector); err != nil {
			return err
		}
	}
	return nil
}

// =============================================================================
// Commands
// =============================================================================

// CommandMiddleware returns middleware that records command metrics,
// including the number of commands in flight.
func (m *Metrics) CommandMiddleware() academic.Middleware {
	return func(next academic.MiddlewareFunc) academic.MiddlewareFunc {
		return func(ctx context.Context, cmd academic.Command) (academic.CommandResult, error) {
			cmdType := cmd.CommandType()

			inFlight := m.commandsInFlight.WithLabelValues(m.serviceName, cmdType)
			inFlight.Inc()
			defer inFlight.Dec()

			start := time.Now()
			result, err := next(ctx, cmd)

			recordErr := err
			if recordErr == nil {
				recordErr = result.Error
			}
			m.RecordCommand(cmdType, time.Since(start), recordErr == nil, recordErr)

			return result, err
		}
	}
}

// RecordCommand implements academic.MetricsCollector.
func (m *Metrics) RecordCommand(cmdType string, duration time.Duration, success bool, err error) {
	m.commandDuration.WithLabelValues(m.serviceName, cmdType).Observe(duration.Seconds())

	status := StatusSuccess
	if !success {
		status = StatusError
		m.errorsTotal.WithLabelValues(m.serviceName, ErrorTypeName(err)).Inc()
	}
	m.commandsTotal.WithLabelValues(m.serviceName, cmdType, status).Inc()
}

// ErrorTypeName maps an error to a stable label value.
func ErrorTypeName(err error) string {
	if err == nil {
		return "none"
	}

	switch {
	case errors.Is(err, academic.ErrNotFound):
		return "not_found"
	case errors.Is(err, academic.ErrVersionConflict):
		return "version_conflict"
	case errors.Is(err, academic.ErrInvalidOperation):
		return "invalid_operation"
	case errors.Is(err, academic.ErrValidationFailed):
		return "validation_failed"
	case errors.Is(err, academic.ErrReadOnlyRecord):
		return "read_only_record"
	case errors.Is(err, academic.ErrHandlerNotFound):
		return "handler_not_found"
	case errors.Is(err, academic.ErrHandlerPanicked):
		return "handler_panicked"
	case errors.Is(err, academic.ErrNilCommand):
		return "nil_command"
	case errors.Is(err, academic.ErrUnknownEventType):
		return "unknown_event_type"
	case errors.Is(err, academic.ErrInvalidBatch):
		return "invalid_batch"
	case errors.Is(err, academic.ErrProjectionNotFound):
		return "projection_not_found"
	case errors.Is(err, academic.ErrStore):
		return "store"
	case errors.Is(err, adapters.ErrStreamNotFound):
		return "stream_not_found"
	case errors.Is(err, adapters.ErrAdapterClosed):
		return "adapter_closed"
	default:
		return "unknown"
	}
}

// =============================================================================
// Projections
// =============================================================================

// RecordEventProcessed implements academic.ProjectionMetrics.
func (m *Metrics) RecordEventProcessed(projectionName, eventType string, duration time.Duration, success bool) {
	m.projectionDuration.WithLabelValues(m.serviceName, projectionName).Observe(duration.Seconds())

	status := StatusSuccess
	if !success {
		status = StatusError
		m.errorsTotal.WithLabelValues(m.serviceName, "projection_error").Inc()
	}
	m.projectionsProcessedTotal.WithLabelValues(m.serviceName, projectionName, eventType, status).Inc()
}

// RecordRebuild implements academic.ProjectionMetrics.
func (m *Metrics) RecordRebuild(projectionName string, events uint64, duration time.Duration, success bool) {
	m.rebuildDuration.WithLabelValues(m.serviceName, projectionName).Observe(duration.Seconds())
	m.rebuildEventsTotal.WithLabelValues(m.serviceName, projectionName).Add(float64(events))

	status := StatusSuccess
	if !success {
		status = StatusError
		m.errorsTotal.WithLabelValues(m.serviceName, "rebuild_error").Inc()
	}
	m.rebuildsTotal.WithLabelValues(m.serviceName, projectionName, status).Inc()
}

// RecordError records a custom error.
func (m *Metrics) RecordError(errorType string) {
	m.errorsTotal.WithLabelValues(m.serviceName, errorType).Inc()
}

// =============================================================================
// Event Store
// =============================================================================

// EventStoreMiddleware wraps an EventStoreAdapter with metrics.
type EventStoreMiddleware struct {
	adapter adapters.EventStoreAdapter
	metrics *Metrics
}

var _ adapters.EventStoreAdapter = (*EventStoreMiddleware)(nil)

// WrapEventStore wraps an adapter with metrics collection.
func (m *Metrics) WrapEventStore(adapter adapters.EventStoreAdapter) *EventStoreMiddleware {
	return &EventStoreMiddleware{
		adapter: adapter,
		metrics: m,
	}
}

// observe records duration and outcome of one adapter call.
func (em *EventStoreMiddleware) observe(operation string, start time.Time, err error) {
	m := em.metrics
	m.eventStoreOperationDuration.WithLabelValues(m.serviceName, operation).Observe(time.Since(start).Seconds())

	status := StatusSuccess
	if err != nil {
		status = StatusError
		m.errorsTotal.WithLabelValues(m.serviceName, operation+"_error").Inc()
	}
	m.eventStoreOperationsTotal.WithLabelValues(m.serviceName, operation, status).Inc()
}

// Append stores events with metrics.
func (em *EventStoreMiddleware) Append(ctx context.Context, streamID string, events []adapters.EventRecord, expectedVersion int64) ([]adapters.StoredEvent, error) {
	start := time.Now()
	stored, err := em.adapter.Append(ctx, streamID, events, expectedVersion)
	em.observe(OperationAppend, start, err)

	if err == nil {
		for _, e := range events {
			em.metrics.eventsAppendedTotal.WithLabelValues(em.metrics.serviceName, e.Type).Inc()
		}
	}
	return stored, err
}

// Load retrieves events with metrics.
func (em *EventStoreMiddleware) Load(ctx context.Context, streamID string, r adapters.Range) ([]adapters.StoredEvent, error) {
	start := time.Now()
	events, err := em.adapter.Load(ctx, streamID, r)
	em.observe(OperationLoad, start, err)

	if err == nil {
		em.metrics.eventsLoadedTotal.WithLabelValues(em.metrics.serviceName).Add(float64(len(events)))
	}
	return events, err
}

// LoadFromPosition loads events from a global position with metrics.
func (em *EventStoreMiddleware) LoadFromPosition(ctx context.Context, fromPosition uint64, limit int) ([]adapters.StoredEvent, error) {
	start := time.Now()
	events, err := em.adapter.LoadFromPosition(ctx, fromPosition, limit)
	em.observe(OperationLoadFromPosition, start, err)

	if err == nil {
		em.metrics.eventsLoadedTotal.WithLabelValues(em.metrics.serviceName).Add(float64(len(events)))
	}
	return events, err
}

// GetStreamInfo returns stream metadata with metrics.
func (em *EventStoreMiddleware) GetStreamInfo(ctx context.Context, streamID string) (*adapters.StreamInfo, error) {
	start := time.Now()
	info, err := em.adapter.GetStreamInfo(ctx, streamID)

	// A missing stream is an answer, not a failure.
	observed := err
	if errors.Is(err, adapters.ErrStreamNotFound) {
		observed = nil
	}
	em.observe(OperationGetStreamInfo, start, observed)
	return info, err
}

// GetLastPosition returns the last global position with metrics.
func (em *EventStoreMiddleware) GetLastPosition(ctx context.Context) (uint64, error) {
	start := time.Now()
	pos, err := em.adapter.GetLastPosition(ctx)
	em.observe(OperationGetLastPosition, start, err)
	return pos, err
}

// Initialize initializes the underlying adapter.
func (em *EventStoreMiddleware) Initialize(ctx context.Context) error {
	return em.adapter.Initialize(ctx)
}

// Close closes the underlying adapter.
func (em *EventStoreMiddleware) Close() error {
	return em.adapter.Close()
}

// Ping forwards to the underlying adapter when it is an adapters.HealthChecker.
func (em *EventStoreMiddleware) Ping(ctx context.Context) error {
	if hc, ok := em.adapter.(adapters.HealthChecker); ok {
		return hc.Ping(ctx)
	}
	return nil
}

// =============================================================================
// Getters for testing
// =============================================================================

// CommandsTotal returns the commands counter.
func (m *Metrics) CommandsTotal() *prometheus.CounterVec { return m.commandsTotal }

// CommandsInFlight returns the in-flight commands gauge.
func (m *Metrics) CommandsInFlight() *prometheus.GaugeVec { return m.commandsInFlight }

// EventStoreOperationsTotal returns the event store operations counter.
func (m *Metrics) EventStoreOperationsTotal() *prometheus.CounterVec {
	return m.eventStoreOperationsTotal
}

// EventsAppendedTotal returns the events appended counter.
func (m *Metrics) EventsAppendedTotal() *prometheus.CounterVec { return m.eventsAppendedTotal }

// EventsLoadedTotal returns the events loaded counter.
func (m *Metrics) EventsLoadedTotal() *prometheus.CounterVec { return m.eventsLoadedTotal }

// ProjectionsProcessedTotal returns the projections processed counter.
func (m *Metrics) ProjectionsProcessedTotal() *prometheus.CounterVec {
	return m.projectionsProcessedTotal
}

// RebuildsTotal returns the rebuild counter.
func (m *Metrics) RebuildsTotal() *prometheus.CounterVec { return m.rebuildsTotal }

// RebuildEventsTotal returns the replayed events counter.
func (m *Metrics) RebuildEventsTotal() *prometheus.CounterVec { return m.rebuildEventsTotal }

// ErrorsTotal returns the errors counter.
func (m *Metrics) ErrorsTotal() *prometheus.CounterVec { return m.errorsTotal }
