package logger

import (
	"context"
	"sync"
)

type ctxKey struct{}

var (
	defaultLogger   *Logger
	defaultLoggerMu sync.RWMutex
)

func init() {
	defaultLogger = New(nil)
}

// GetDefault returns the process-wide logger.
func GetDefault() *Logger {
	defaultLoggerMu.RLock()
	defer defaultLoggerMu.RUnlock()
	return defaultLogger
}

// SetDefaultLogger replaces the process-wide logger. Nil is ignored.
func SetDefaultLogger(l *Logger) {
	if l == nil {
		return
	}
	defaultLoggerMu.Lock()
	defaultLogger = l
	defaultLoggerMu.Unlock()
}

// WithContext returns ctx carrying l.
func (l *Logger) WithContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, ctxKey{}, l)
}

// FromContext returns the logger carried by ctx, or the default logger.
// Parameters:
//   - ctx: context to inspect, may be nil.
// Returns:
//   - *Logger: logger with the fields injected along the call chain.
func FromContext(ctx context.Context) *Logger {
	if ctx != nil {
		if l, ok := ctx.Value(ctxKey{}).(*Logger); ok {
			return l
		}
	}
	return GetDefault()
}

// WithField returns ctx with one more field on its logger.
func WithField(ctx context.Context, key string, value interface{}) context.Context {
	return FromContext(ctx).WithField(key, value).WithContext(ctx)
}

// WithFields returns ctx with fields added to its logger.
func WithFields(ctx context.Context, fields Fields) context.Context {
	return FromContext(ctx).WithFields(fields).WithContext(ctx)
}

// SetJob tags every line logged under ctx with the job id and type.
func SetJob(ctx context.Context, id, jobType string) context.Context {
	return WithFields(ctx, Fields{FieldJobID: id, FieldJobType: jobType})
}

// SetJobID tags ctx with a job id only.
func SetJobID(ctx context.Context, id string) context.Context {
	return WithField(ctx, FieldJobID, id)
}

// SetWorkerID tags ctx with the worker holding the lease.
func SetWorkerID(ctx context.Context, id string) context.Context {
	return WithField(ctx, FieldWorkerID, id)
}

// SetComponent tags ctx with a component name (api, worker, scheduler, ...).
func SetComponent(ctx context.Context, name string) context.Context {
	return WithField(ctx, FieldComponent, name)
}

// GetFieldString returns a string field previously injected into ctx.
func GetFieldString(ctx context.Context, key string) string {
	s, _ := FromContext(ctx).Data[key].(string)
	return s
}

// GetRequestID returns the request id injected by the HTTP middleware.
func GetRequestID(ctx context.Context) string {
	return GetFieldString(ctx, FieldRequestID)
}

// GetJobID returns the job id injected by SetJob or SetJobID.
func GetJobID(ctx context.Context) string {
	return GetFieldString(ctx, FieldJobID)
}
