package logging

import (
	"context"
	"log/slog"
)

const (
	// FieldComponent is the standardized structured logging key for component names.
	FieldComponent = "component"
	// FieldEventType classifies a log line for filtering (e.g. step_applied).
	FieldEventType = "event_type"
	// FieldErrorHint tells the operator what to check next.
	FieldErrorHint = "error_hint"
	// FieldImpact is the standardized key for user-facing consequence of a warning.
	FieldImpact = "impact"
	// FieldStep is the pipeline step name being applied (fetch, process, ...).
	FieldStep = "step"
	// FieldJobSHA is the short integrity code of the job being handled.
	FieldJobSHA = "job_sha"
	// FieldRequestID correlates log lines for a single HTTP request.
	FieldRequestID = "request_id"
)

type contextKey int

const (
	jobSHAKey contextKey = iota
	requestIDKey
)

// WithJobSHA stamps the job signature onto ctx for later log enrichment.
func WithJobSHA(ctx context.Context, sha string) context.Context {
	if sha == "" {
		return ctx
	}
	return context.WithValue(ctx, jobSHAKey, sha)
}

// WithRequestID stamps a request correlation id onto ctx.
func WithRequestID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, id)
}

// ContextFields extracts standardized slog attributes from the provided context.
func ContextFields(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}
	fields := make([]slog.Attr, 0, 2)
	if sha, ok := ctx.Value(jobSHAKey).(string); ok && sha != "" {
		fields = append(fields, slog.String(FieldJobSHA, sha))
	}
	if id, ok := ctx.Value(requestIDKey).(string); ok && id != "" {
		fields = append(fields, slog.String(FieldRequestID, id))
	}
	return fields
}

// WithContext returns a logger augmented with structured fields derived from the supplied context.
func WithContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	fields := ContextFields(ctx)
	if len(fields) == 0 {
		return logger
	}
	return logger.With(Args(fields...)...)
}
