package logger

import (
	"context"

	"go.uber.org/zap"
)

// Standard field names for structured logging.
// Use these constants instead of raw strings to keep keys consistent.
const (
	FieldRequestID = "request_id"
	FieldComponent = "component"

	FieldMethod = "method"
	FieldPath   = "path"
	FieldStatus = "status"

	FieldDurationMS = "duration_ms"

	FieldError = "error"

	FieldIdentifier = "identifier"
	FieldCount      = "count"
	FieldRows       = "rows"
	FieldEvicted    = "evicted"
	FieldTracked    = "tracked"
	FieldWatermark  = "watermark"
	FieldCycle      = "cycle"

	FieldDriver  = "driver"
	FieldFile    = "file"
	FieldAddress = "address"
)

type contextKey string

const (
	requestIDKey contextKey = "logger_request_id"
	componentKey contextKey = "logger_component"
)

// WithRequestID adds a request ID to the context for logging
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// RequestIDFromContext returns the request ID stored by WithRequestID, if any
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// WithComponent adds a component name to the context for logging
func WithComponent(ctx context.Context, component string) context.Context {
	return context.WithValue(ctx, componentKey, component)
}

// FieldsFromContext extracts logging fields from context as key-value pairs
func FieldsFromContext(ctx context.Context) []interface{} {
	var fields []interface{}

	if requestID, ok := ctx.Value(requestIDKey).(string); ok && requestID != "" {
		fields = append(fields, FieldRequestID, requestID)
	}
	if component, ok := ctx.Value(componentKey).(string); ok && component != "" {
		fields = append(fields, FieldComponent, component)
	}

	return fields
}

// LoggerFromContext returns the global logger with fields extracted from context
func LoggerFromContext(ctx context.Context) *zap.SugaredLogger {
	fields := FieldsFromContext(ctx)
	if len(fields) == 0 {
		return Logger
	}
	return Logger.With(fields...)
}

// ComponentLogger returns a named logger for a specific component.
// This is the preferred way to get a logger for dependency injection:
//
//	scheduler := syncer.New(ledger, store, cfg, watermark, logger.ComponentLogger("syncer"))
func ComponentLogger(name string) *zap.SugaredLogger {
	return Logger.Named(name)
}
