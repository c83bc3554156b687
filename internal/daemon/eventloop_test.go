package daemon

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEventLoop(t *testing.T) {
	d, _ := createTestDaemon(t)
	t.Cleanup(func() { _ = d.Service().Close() })

	eventLoop := NewEventLoop(d)
	assert.Equal(t, d, eventLoop.daemon)
	assert.Equal(t, maintenanceInterval, eventLoop.interval)
}

func TestEventLoopRun(t *testing.T) {
	d, _ := createTestDaemon(t)
	t.Cleanup(func() { _ = d.Service().Close() })

	eventLoop := NewEventLoop(d)
	eventLoop.interval = 10 * time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	done := make(chan struct{})
	go func() {
		eventLoop.Run(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("event loop did not stop in time")
	}
}

func TestEventLoopSurvivesClosedStore(t *testing.T) {
	d, _ := createTestDaemon(t)
	require.NoError(t, d.Service().Close())

	assert.NotPanics(t, func() {
		NewEventLoop(d).processTasks(context.Background())
	})
}
