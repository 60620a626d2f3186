// Package logging adapts github.com/sirupsen/logrus to academic.Logger.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	academic "github.com/songifi/LMS-Backend-sub004"
)

// Formats accepted by Options.Format.
const (
	FormatText = "text"
	FormatJSON = "json"
)

// Options configures New.
type Options struct {
	// Level is a logrus level name ("debug", "info", "warn", "error").
	// Empty means "info".
	Level string

	// Format is FormatText or FormatJSON. Empty means FormatText.
	Format string

	// Output receives the log lines. Nil means os.Stderr.
	Output io.Writer
}

// Logger implements academic.Logger over a logrus entry.
// Arguments after the message are key/value pairs and become logrus fields.
type Logger struct {
	entry *logrus.Entry
}

var _ academic.Logger = (*Logger)(nil)

// New creates a Logger with its own logrus instance.
func New(opts Options) (*Logger, error) {
	log := logrus.New()

	level := logrus.InfoLevel
	if opts.Level != "" {
		parsed, err := logrus.ParseLevel(opts.Level)
		if err != nil {
			return nil, fmt.Errorf("logging: %w", err)
		}
		level = parsed
	}
	log.SetLevel(level)

	switch strings.ToLower(opts.Format) {
	case "", FormatText:
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	case FormatJSON:
		log.SetFormatter(&logrus.JSONFormatter{})
	default:
		return nil, fmt.Errorf("logging: unknown format %q", opts.Format)
	}

	if opts.Output != nil {
		log.SetOutput(opts.Output)
	} else {
		log.SetOutput(os.Stderr)
	}

	return &Logger{entry: logrus.NewEntry(log)}, nil
}

// Wrap adapts an existing logrus logger or entry, such as logrus.StandardLogger().
func Wrap(log logrus.FieldLogger) *Logger {
	return &Logger{entry: log.WithFields(nil)}
}

// With returns a Logger that adds the key/value pairs to every line.
func (l *Logger) With(args ...interface{}) *Logger {
	return &Logger{entry: l.entry.WithFields(fields(args))}
}

// Debug implements academic.Logger.
func (l *Logger) Debug(msg string, args ...interface{}) {
	l.entry.WithFields(fields(args)).Debug(msg)
}

// Info implements academic.Logger.
func (l *Logger) Info(msg string, args ...interface{}) {
	l.entry.WithFields(fields(args)).Info(msg)
}

// Warn implements academic.Logger.
func (l *Logger) Warn(msg string, args ...interface{}) {
	l.entry.WithFields(fields(args)).Warn(msg)
}

// Error implements academic.Logger.
func (l *Logger) Error(msg string, args ...interface{}) {
	l.entry.WithFields(fields(args)).Error(msg)
}

// fields turns alternating key/value arguments into logrus fields.
// A trailing key without a value is kept under "!BADKEY".
func fields(args []interface{}) logrus.Fields {
	if len(args) == 0 {
		return nil
	}
	f := make(logrus.Fields, len(args)/2+1)
	for i := 0; i < len(args); i += 2 {
		key, ok := args[i].(string)
		if !ok {
			key = fmt.Sprint(args[i])
		}
		if i+1 >= len(args) {
			f["!BADKEY"] = key
			break
		}
		value := args[i+1]
		if err, ok := value.(error); ok {
			value = err.Error()
		}
		f[key] = value
	}
	return f
}
