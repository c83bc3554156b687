package tracing

import (
	"context"

	"github.com/rs/zerolog"
)

// PropagateToLogger adds tracing context to a zerolog logger
func PropagateToLogger(ctx context.Context, logger zerolog.Logger) zerolog.Logger {
	tc := FromContext(ctx)

	if tc.TraceID != "" {
		logger = logger.With().Str("trace_id", tc.TraceID).Logger()
	}
	if tc.TickID != "" {
		logger = logger.With().Str("tick_id", tc.TickID).Logger()
	}
	if tc.Trigger != "" {
		logger = logger.With().Str("trigger", tc.Trigger).Logger()
	}

	return logger
}

// LoggerFromContext creates a logger with tracing context from the given context
func LoggerFromContext(ctx context.Context, baseLogger zerolog.Logger) zerolog.Logger {
	return PropagateToLogger(ctx, baseLogger)
}

// MergeContext copies tracing values from source that target lacks.
func MergeContext(target, source context.Context) context.Context {
	tc := FromContext(source)

	if tc.TraceID != "" && GetTraceID(target) == "" {
		target = WithTraceID(target, tc.TraceID)
	}
	if tc.TickID != "" && GetTickID(target) == "" {
		target = WithTickID(target, tc.TickID)
	}
	if tc.Trigger != "" && GetTrigger(target) == "" {
		target = WithTrigger(target, tc.Trigger)
	}

	return target
}

// Detach returns a context that keeps ctx's values (tick ID, active span)
// but is not cancelled with it. Stages of a tick run on a detached context
// so a stop request lets the current stage finish.
func Detach(ctx context.Context) context.Context {
	return context.WithoutCancel(ctx)
}
