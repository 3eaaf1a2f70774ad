// Package logger provides a structured, module-aware logging system built on log/slog.
//
// Components receive a Logger by injection and scope it with Module:
//
//	central, err := logger.NewCentralLogger(&settings.Logging)
//	if err != nil {
//	    return err
//	}
//	defer central.Close()
//
//	recordsLog := central.Module("records")
//	recordsLog.Info("patient registered",
//	    logger.Int64("patient_id", id),
//	    logger.String("national_id", nationalID)) // redacted on output
//
// Console output is human-readable text, file output is JSON. Levels can be
// set globally (default_level) or per module (module_levels). SQL statements
// issued through GORM are logged at trace level under the "datastore" module.
//
// Tests use NewSlogLogger with a buffer or io.Discard:
//
//	testLogger := logger.NewSlogLogger(io.Discard, logger.LogLevelError, time.UTC)
package logger

import (
	"context"
	"time"
	"unique"
)

// LogLevel represents log severity levels
type LogLevel string

const (
	LogLevelTrace LogLevel = "trace"
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// Field represents a structured log field.
// Keys are interned with unique.Make so repeated keys share one allocation.
type Field struct {
	Key   string
	Value any
}

func internKey(key string) string {
	return unique.Make(key).Value()
}

var (
	errorKey   = internKey("error")
	moduleKey  = internKey("module")
	traceIDKey = internKey("trace_id")
)

// Logger is the centralized logging interface for dependency injection
type Logger interface {
	// Module returns a logger scoped to a specific module
	Module(name string) Logger

	Trace(msg string, fields ...Field)
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)

	// With returns a logger that adds fields to every entry
	With(fields ...Field) Logger
	// WithContext returns a logger carrying the trace ID stored in ctx, if any
	WithContext(ctx context.Context) Logger

	// Log logs with an explicit level
	Log(level LogLevel, msg string, fields ...Field)

	// Flush ensures all buffered logs are written
	Flush() error
}

// String creates a string field.
func String(key, value string) Field {
	return Field{Key: internKey(key), Value: value}
}

// Int creates an integer field.
func Int(key string, value int) Field {
	return Field{Key: internKey(key), Value: value}
}

// Int64 creates a 64-bit integer field, used for surrogate IDs and byte counts.
func Int64(key string, value int64) Field {
	return Field{Key: internKey(key), Value: value}
}

// Uint64 creates an unsigned 64-bit integer field, used for disk statistics.
func Uint64(key string, value uint64) Field {
	return Field{Key: internKey(key), Value: value}
}

// Float64 creates a float field. Values are rounded to three decimals on output.
func Float64(key string, value float64) Field {
	return Field{Key: internKey(key), Value: value}
}

// Bool creates a boolean field.
func Bool(key string, value bool) Field {
	return Field{Key: internKey(key), Value: value}
}

// Error creates an error field. The key is always "error"; a nil error logs a nil value.
func Error(err error) Field {
	if err == nil {
		return Field{Key: errorKey, Value: nil}
	}
	return Field{Key: errorKey, Value: err.Error()}
}

// Duration creates a duration field rendered as a human-readable string ("1.5s").
func Duration(key string, value time.Duration) Field {
	return Field{Key: internKey(key), Value: value.String()}
}

// Time creates a time field.
func Time(key string, value time.Time) Field {
	return Field{Key: internKey(key), Value: value}
}

// Any creates a field with an arbitrary value.
// Prefer the typed constructors for simple values.
func Any(key string, value any) Field {
	return Field{Key: internKey(key), Value: value}
}
