package tracing

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestIDs(t *testing.T) {
	assert.NotEqual(t, NewTraceID(), NewTraceID())

	a, b := NewTickID(), NewTickID()
	assert.Len(t, a, 12)
	assert.NotEqual(t, a, b)
}

func TestContextValues(t *testing.T) {
	t.Run("empty context", func(t *testing.T) {
		tc := FromContext(context.Background())
		assert.Empty(t, tc.TraceID)
		assert.Empty(t, tc.TickID)
		assert.Empty(t, tc.Trigger)
	})

	t.Run("round trip", func(t *testing.T) {
		ctx := NewContext(context.Background(), &TraceContext{TraceID: "tr", TickID: "tk"})
		assert.Equal(t, "tr", GetTraceID(ctx))
		assert.Equal(t, "tk", GetTickID(ctx))
		assert.Empty(t, GetTrigger(ctx))
	})

	t.Run("tick context keeps parent trace", func(t *testing.T) {
		parent := WithTraceID(context.Background(), "parent")
		ctx := NewTickContext(parent, "oneshot")
		assert.Equal(t, "parent", GetTraceID(ctx))
		assert.NotEmpty(t, GetTickID(ctx))
		assert.Equal(t, "oneshot", GetTrigger(ctx))

		fresh := NewTickContext(context.Background(), "schedule")
		assert.NotEmpty(t, GetTraceID(fresh))
		assert.NotEqual(t, GetTickID(ctx), GetTickID(fresh))
	})
}

func TestLoggerFromContext(t *testing.T) {
	var buf bytes.Buffer
	base := zerolog.New(&buf)

	ctx := NewContext(context.Background(), &TraceContext{TickID: "tick-9", Trigger: "schedule"})
	logger := LoggerFromContext(ctx, base)
	logger.Info().Msg("hello")

	out := buf.String()
	assert.Contains(t, out, `"tick_id":"tick-9"`)
	assert.Contains(t, out, `"trigger":"schedule"`)
	assert.NotContains(t, out, "trace_id")
}

func TestMergeContextNoOverwrite(t *testing.T) {
	target := WithTickID(context.Background(), "mine")
	source := NewContext(context.Background(), &TraceContext{TraceID: "tr", TickID: "theirs"})

	merged := MergeContext(target, source)
	assert.Equal(t, "mine", GetTickID(merged))
	assert.Equal(t, "tr", GetTraceID(merged))
}

func TestDetach(t *testing.T) {
	ctx, cancel := context.WithCancel(WithTickID(context.Background(), "t1"))
	detached := Detach(ctx)
	cancel()

	require.Error(t, ctx.Err())
	assert.NoError(t, detached.Err())
	assert.Equal(t, "t1", GetTickID(detached))
}

func TestStartSpanSetsTraceID(t *testing.T) {
	require.NoError(t, InitOpenTelemetry("alexandria-test"))
	t.Cleanup(func() { _ = ShutdownOpenTelemetry(context.Background()) })

	ctx, span := StartSpan(context.Background(), "alexandria.test", "unit")
	defer span.End()

	assert.NotEmpty(t, GetTraceID(ctx))
	assert.Equal(t, span.SpanContext().TraceID().String(), GetTraceID(ctx))
}

func TestFail(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	_, span := tp.Tracer("alexandria.test").Start(context.Background(), "capture")
	Fail(span, errors.New("grim exited 1"), "capture failed")
	span.End()

	ended := rec.Ended()
	require.Len(t, ended, 1)
	assert.Equal(t, codes.Error, ended[0].Status().Code)
	assert.Equal(t, "capture failed", ended[0].Status().Description)
	require.Len(t, ended[0].Events(), 1)
	assert.Equal(t, "exception", ended[0].Events()[0].Name)
}
