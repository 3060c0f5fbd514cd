package logger

import (
	"context"
)

// Entry carries numeric fields (duration_ms, count, progress, ...) that log
// pipelines aggregate. The message is still written through the ctx logger,
// so request and job fields are kept.
//
//	logger.With(logger.Fields{logger.FieldDurationMs: ms}).WithCount(n).Info(ctx, "Batch done")
type Entry struct {
	fields Fields
}

// With starts an Entry with fields.
func With(fields Fields) *Entry {
	e := &Entry{fields: make(Fields, len(fields))}
	for k, v := range fields {
		e.fields[k] = v
	}
	return e
}

// WithField adds one field.
func (e *Entry) WithField(key string, value interface{}) *Entry {
	merged := make(Fields, len(e.fields)+1)
	for k, v := range e.fields {
		merged[k] = v
	}
	merged[key] = value
	return &Entry{fields: merged}
}

// WithCount sets count.
func (e *Entry) WithCount(n int) *Entry { return e.WithField(FieldCount, n) }

// WithProgress sets progress.
func (e *Entry) WithProgress(percent int) *Entry { return e.WithField(FieldProgress, percent) }

// WithErrorCount sets error_count.
func (e *Entry) WithErrorCount(n int) *Entry { return e.WithField(FieldErrorCount, n) }

func (e *Entry) target(ctx context.Context) *Logger {
	return FromContext(ctx).WithFields(e.fields)
}

// Debug logs at debug level.
func (e *Entry) Debug(ctx context.Context, format string, args ...interface{}) {
	e.target(ctx).Debugf(format, args...)
}

// Info logs at info level.
func (e *Entry) Info(ctx context.Context, format string, args ...interface{}) {
	e.target(ctx).Infof(format, args...)
}

// Warn logs at warn level.
func (e *Entry) Warn(ctx context.Context, format string, args ...interface{}) {
	e.target(ctx).Warnf(format, args...)
}

// Error logs at error level.
func (e *Entry) Error(ctx context.Context, format string, args ...interface{}) {
	e.target(ctx).Errorf(format, args...)
}
