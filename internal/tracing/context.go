package tracing

import (
	"context"

	"github.com/google/uuid"
	gonanoid "github.com/matoous/go-nanoid/v2"
)

// ContextKey is the type for context keys
type ContextKey string

const (
	// TraceIDKey is the context key for trace ID
	TraceIDKey ContextKey = "trace_id"
	// TickIDKey is the context key for the capture tick ID
	TickIDKey ContextKey = "tick_id"
	// TriggerKey is the context key for what started the work
	// ("schedule", "oneshot", "retention", "cli").
	TriggerKey ContextKey = "trigger"
)

// TraceContext holds tracing information
type TraceContext struct {
	TraceID string
	TickID  string
	Trigger string
}

// NewTraceID generates a new trace ID
func NewTraceID() string {
	return uuid.New().String()
}

// NewTickID generates a short ID for one capture tick.
func NewTickID() string {
	id, err := gonanoid.New(12)
	if err != nil {
		return uuid.New().String()
	}
	return id
}

// WithTraceID adds a trace ID to the context
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, TraceIDKey, traceID)
}

// WithTickID adds a tick ID to the context
func WithTickID(ctx context.Context, tickID string) context.Context {
	return context.WithValue(ctx, TickIDKey, tickID)
}

// WithTrigger records what started the work carried by ctx.
func WithTrigger(ctx context.Context, trigger string) context.Context {
	return context.WithValue(ctx, TriggerKey, trigger)
}

// GetTraceID retrieves the trace ID from the context
func GetTraceID(ctx context.Context) string {
	if traceID, ok := ctx.Value(TraceIDKey).(string); ok {
		return traceID
	}
	return ""
}

// GetTickID retrieves the tick ID from the context
func GetTickID(ctx context.Context) string {
	if tickID, ok := ctx.Value(TickIDKey).(string); ok {
		return tickID
	}
	return ""
}

func GetTrigger(ctx context.Context) string {
	if trigger, ok := ctx.Value(TriggerKey).(string); ok {
		return trigger
	}
	return ""
}

// FromContext extracts all tracing information from the context
func FromContext(ctx context.Context) *TraceContext {
	return &TraceContext{
		TraceID: GetTraceID(ctx),
		TickID:  GetTickID(ctx),
		Trigger: GetTrigger(ctx),
	}
}

// NewContext creates a new context with tracing information
func NewContext(ctx context.Context, tc *TraceContext) context.Context {
	if tc.TraceID != "" {
		ctx = WithTraceID(ctx, tc.TraceID)
	}
	if tc.TickID != "" {
		ctx = WithTickID(ctx, tc.TickID)
	}
	if tc.Trigger != "" {
		ctx = WithTrigger(ctx, tc.Trigger)
	}
	return ctx
}

// NewTickContext starts a tick: fresh tick ID, the given trigger, and a
// trace ID inherited from ctx when present.
func NewTickContext(ctx context.Context, trigger string) context.Context {
	if GetTraceID(ctx) == "" {
		ctx = WithTraceID(ctx, NewTraceID())
	}
	ctx = WithTickID(ctx, NewTickID())
	return WithTrigger(ctx, trigger)
}
