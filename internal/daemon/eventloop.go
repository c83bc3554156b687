package daemon

import (
	"context"
	"time"
)

const maintenanceInterval = 5 * time.Minute

// EventLoop runs periodic maintenance next to the scheduler
type EventLoop struct {
	daemon   *Daemon
	interval time.Duration
}

// NewEventLoop creates a new event loop
func NewEventLoop(d *Daemon) *EventLoop {
	return &EventLoop{
		daemon:   d,
		interval: maintenanceInterval,
	}
}

// Run refreshes store gauges once at start and then on every interval
// until ctx is cancelled.
func (e *EventLoop) Run(ctx context.Context) {
	e.daemon.logger.Info().Msg("Event loop started")

	e.processTasks(ctx)

	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			e.daemon.logger.Info().Msg("Event loop stopping")
			return

		case <-ticker.C:
			e.processTasks(ctx)
		}
	}
}

// processTasks refreshes the memory and byte gauges (Stats sets them) and
// logs scheduler health.
func (e *EventLoop) processTasks(ctx context.Context) {
	stats, err := e.daemon.service.Stats(ctx)
	if err != nil {
		if ctx.Err() == nil {
			e.daemon.logger.Warn().Err(err).Msg("Store stats refresh failed")
		}
		return
	}

	st := e.daemon.service.SchedulerStatus()
	e.daemon.logger.Debug().
		Int("memories", stats.Count).
		Int64("image_bytes", stats.TotalBytes).
		Int("ticks", st.Ticks).
		Time("next_tick", st.NextTick).
		Msg("Maintenance")
}
