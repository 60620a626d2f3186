package academic

import (
	"context"
	"encoding/json"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
)

// ValidationMiddleware validates commands before they reach the handler.
// If validation fails, the command is not dispatched.
func ValidationMiddleware() Middleware {
	return func(next MiddlewareFunc) MiddlewareFunc {
		return func(ctx context.Context, cmd Command) (CommandResult, error) {
			if err := cmd.Validate(); err != nil {
				return NewErrorResult(err), err
			}
			return next(ctx, cmd)
		}
	}
}

// RecoveryMiddleware recovers from panics in handlers and returns them as
// PanicErrors. The stack and a JSON rendering of the command are logged.
func RecoveryMiddleware(logger Logger) Middleware {
	if logger == nil {
		logger = &noopLogger{}
	}
	return func(next MiddlewareFunc) MiddlewareFunc {
		return func(ctx context.Context, cmd Command) (result CommandResult, err error) {
			defer func() {
				if r := recover(); r != nil {
					stack := string(debug.Stack())
					var commandData string
					if data, jsonErr := json.Marshal(cmd); jsonErr == nil {
						commandData = string(data)
					}
					logger.Error("command handler panicked",
						"type", cmd.CommandType(),
						"panic", r,
						"command", commandData,
						"stack", stack)
					panicErr := NewPanicError(cmd.CommandType(), r, stack)
					result = NewErrorResult(panicErr)
					err = panicErr
				}
			}()
			return next(ctx, cmd)
		}
	}
}

// LoggingMiddleware logs command execution.
type LoggingMiddleware struct {
	logger Logger
}

// NewLoggingMiddleware creates a new LoggingMiddleware.
func NewLoggingMiddleware(logger Logger) *LoggingMiddleware {
	return &LoggingMiddleware{logger: logger}
}

// Middleware returns the middleware function.
func (m *LoggingMiddleware) Middleware() Middleware {
	return func(next MiddlewareFunc) MiddlewareFunc {
		return func(ctx context.Context, cmd Command) (CommandResult, error) {
			start := time.Now()
			studentID := ""
			if rc, ok := cmd.(RecordCommand); ok {
				studentID = rc.AggregateID()
			}

			m.logger.Debug("dispatching command",
				"type", cmd.CommandType(),
				"studentId", studentID,
				"correlationId", CorrelationIDFromContext(ctx))

			result, err := next(ctx, cmd)
			duration := time.Since(start)

			switch {
			case err != nil:
				m.logger.Error("command failed",
					"type", cmd.CommandType(),
					"studentId", studentID,
					"duration", duration,
					"error", err)
			case result.Save != nil && result.Save.Degraded():
				m.logger.Warn("command committed with derived write failures",
					"type", cmd.CommandType(),
					"studentId", studentID,
					"version", result.Version,
					"duration", duration)
			default:
				m.logger.Info("command completed",
					"type", cmd.CommandType(),
					"studentId", studentID,
					"version", result.Version,
					"duration", duration)
			}

			return result, err
		}
	}
}

// MetricsCollector receives one observation per dispatched command.
type MetricsCollector interface {
	// RecordCommand records a command execution.
	RecordCommand(cmdType string, duration time.Duration, success bool, err error)
}

// MetricsMiddleware creates middleware that records metrics.
func MetricsMiddleware(collector MetricsCollector) Middleware {
	return func(next MiddlewareFunc) MiddlewareFunc {
		return func(ctx context.Context, cmd Command) (CommandResult, error) {
			start := time.Now()
			result, err := next(ctx, cmd)

			recordErr := err
			if recordErr == nil && result.Error != nil {
				recordErr = result.Error
			}
			collector.RecordCommand(cmd.CommandType(), time.Since(start), err == nil && result.IsSuccess(), recordErr)

			return result, err
		}
	}
}

type correlationIDKey struct{}

// CorrelationIDFromContext returns the correlation ID from context.
func CorrelationIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(correlationIDKey{}).(string); ok {
		return id
	}
	return ""
}

// WithCorrelationID returns a context with the correlation ID set.
func WithCorrelationID(ctx context.Context, correlationID string) context.Context {
	return context.WithValue(ctx, correlationIDKey{}, correlationID)
}

// CorrelationIDMiddleware ensures every command runs with a correlation ID.
// It keeps one already on the context, then tries the command's own, and
// finally calls generator. A nil generator produces random UUIDs.
func CorrelationIDMiddleware(generator func() string) Middleware {
	if generator == nil {
		generator = uuid.NewString
	}

	return func(next MiddlewareFunc) MiddlewareFunc {
		return func(ctx context.Context, cmd Command) (CommandResult, error) {
			if CorrelationIDFromContext(ctx) != "" {
				return next(ctx, cmd)
			}

			var correlationID string
			if base, ok := cmd.(interface{ GetCorrelationID() string }); ok {
				correlationID = base.GetCorrelationID()
			}
			if correlationID == "" {
				correlationID = generator()
			}

			return next(WithCorrelationID(ctx, correlationID), cmd)
		}
	}
}

type causationIDKey struct{}

// CausationIDFromContext returns the causation ID from context.
func CausationIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(causationIDKey{}).(string); ok {
		return id
	}
	return ""
}

// WithCausationID returns a context with the causation ID set.
func WithCausationID(ctx context.Context, causationID string) context.Context {
	return context.WithValue(ctx, causationIDKey{}, causationID)
}

// CausationIDMiddleware propagates the command's causation ID, falling back
// to its command ID, so events can be traced to the command that caused them.
func CausationIDMiddleware() Middleware {
	return func(next MiddlewareFunc) MiddlewareFunc {
		return func(ctx context.Context, cmd Command) (CommandResult, error) {
			if CausationIDFromContext(ctx) != "" {
				return next(ctx, cmd)
			}

			var causationID string
			if base, ok := cmd.(interface{ GetCausationID() string }); ok {
				causationID = base.GetCausationID()
			}
			if causationID == "" {
				if base, ok := cmd.(interface{ GetCommandID() string }); ok {
					causationID = base.GetCommandID()
				}
			}

			if causationID != "" {
				ctx = WithCausationID(ctx, causationID)
			}
			return next(ctx, cmd)
		}
	}
}
