// Package scheduler drives capture ticks and the retention sweep.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/harun/alexandria/internal/observability"
	"github.com/harun/alexandria/internal/tracing"
	"github.com/harun/alexandria/pkg/capture"
	"github.com/harun/alexandria/pkg/compositor"
	"github.com/harun/alexandria/pkg/privacy"
	"github.com/harun/alexandria/pkg/recognition"
	"github.com/harun/alexandria/pkg/store"
)

const minDelay = time.Second

// Config is the scheduler's configuration snapshot.
type Config struct {
	Interval        time.Duration
	Jitter          time.Duration
	CaptureOnStart  bool
	SkipWhenLocked  bool
	Selection       capture.Selection
	RetentionDays   int
	CleanupSchedule string // five-field cron expression; empty disables
	CleanupOnStart  bool
}

// MemoryStore is the part of the store the scheduler writes to.
type MemoryStore interface {
	Insert(ctx context.Context, nm store.NewMemory) (string, error)
	DeleteOlderThan(ctx context.Context, days int) (int, error)
}

// Deps are the collaborators of a scheduler.
type Deps struct {
	Compositor  compositor.Adapter
	Privacy     *privacy.Filter
	Capture     capture.Backend
	Outputs     capture.OutputLister
	Recognition *recognition.Pipeline
	Store       MemoryStore
	Locks       LockDetector
	Logger      zerolog.Logger
}

// Scheduler runs one capture tick at a time, either on its interval or on
// demand through Tick.
type Scheduler struct {
	cfg    Config
	deps   Deps
	logger zerolog.Logger

	// tickSlot holds a token while a tick runs.
	tickSlot chan struct{}

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
	cron    *cron.Cron
	status  Status
}

// New validates cfg and deps and returns a stopped scheduler.
func New(cfg Config, deps Deps) (*Scheduler, error) {
	if cfg.Interval <= 0 {
		return nil, fmt.Errorf("interval must be positive, got %s", cfg.Interval)
	}
	if cfg.Jitter < 0 || cfg.Jitter >= cfg.Interval {
		return nil, fmt.Errorf("jitter must be in [0, interval), got %s", cfg.Jitter)
	}
	if cfg.RetentionDays < 0 {
		return nil, fmt.Errorf("retention days must be >= 0, got %d", cfg.RetentionDays)
	}
	if cfg.CleanupSchedule != "" {
		if _, err := cronParser().Parse(cfg.CleanupSchedule); err != nil {
			return nil, fmt.Errorf("invalid cleanup schedule: %w", err)
		}
	}
	if deps.Privacy == nil {
		return nil, errors.New("privacy filter is required")
	}
	if deps.Capture == nil {
		return nil, errors.New("capture backend is required")
	}
	if deps.Recognition == nil {
		return nil, errors.New("recognition pipeline is required")
	}
	if deps.Store == nil {
		return nil, errors.New("memory store is required")
	}
	if deps.Compositor == nil {
		deps.Compositor = compositor.Noop{}
	}

	observability.EnsureRegistered()

	return &Scheduler{
		cfg:      cfg,
		deps:     deps,
		logger:   deps.Logger.With().Str("component", "scheduler").Logger(),
		tickSlot: make(chan struct{}, 1),
		status: Status{
			Interval: cfg.Interval,
			Outcomes: make(map[Outcome]int),
		},
	}, nil
}

func cronParser() cron.Parser {
	return cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
}

// Start launches the background loop and the retention job. The loop runs
// until Stop is called or ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return ErrAlreadyRunning
	}

	loopCtx, cancel := context.WithCancel(ctx)

	var c *cron.Cron
	if s.cfg.CleanupSchedule != "" {
		c = cron.New(cron.WithParser(cronParser()))
		if _, err := c.AddFunc(s.cfg.CleanupSchedule, func() {
			s.runRetention(loopCtx, "schedule")
		}); err != nil {
			cancel()
			return fmt.Errorf("schedule retention: %w", err)
		}
		c.Start()
	}

	s.running = true
	s.cancel = cancel
	s.cron = c
	s.done = make(chan struct{})
	s.status.Running = true
	s.status.StartedAt = time.Now()

	go s.loop(loopCtx, s.done)

	s.logger.Info().
		Dur("interval", s.cfg.Interval).
		Dur("jitter", s.cfg.Jitter).
		Str("cleanup_schedule", s.cfg.CleanupSchedule).
		Msg("Scheduler started")

	return nil
}

// Stop asks the loop to exit and waits for it. A tick in progress finishes
// its current stage and is then abandoned. Stop returns ctx.Err() if the
// wait outlives ctx.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return ErrNotRunning
	}
	s.running = false
	s.status.Running = false
	s.status.NextTick = time.Time{}
	cancel, done, c := s.cancel, s.done, s.cron
	s.mu.Unlock()

	cancel()

	var cronDone <-chan struct{}
	if c != nil {
		cronDone = c.Stop().Done()
	}

	for _, ch := range []<-chan struct{}{done, cronDone} {
		if ch == nil {
			continue
		}
		select {
		case <-ch:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	s.logger.Info().Msg("Scheduler stopped")
	return nil
}

// Tick runs one capture immediately, waiting for a running tick to finish
// first. Capture and storage failures are returned; a denied or skipped
// tick is not an error.
func (s *Scheduler) Tick(ctx context.Context) (TickResult, error) {
	res, ok := s.runTick(ctx, "oneshot")
	if !ok {
		return res, ctx.Err()
	}
	return res, res.Err
}

func (s *Scheduler) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	if s.cfg.CleanupOnStart {
		s.runRetention(ctx, "startup")
	}
	if s.cfg.CaptureOnStart && ctx.Err() == nil {
		s.runTick(ctx, "startup")
	}

	for {
		delay := s.nextDelay()
		s.setNextTick(time.Now().Add(delay))

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			s.runTick(ctx, "schedule")
		}
	}
}

// nextDelay is the interval shifted by a uniform jitter in [-j, +j].
func (s *Scheduler) nextDelay() time.Duration {
	d := s.cfg.Interval
	if j := int64(s.cfg.Jitter); j > 0 {
		d += time.Duration(rand.Int64N(2*j+1) - j)
	}
	if d < minDelay {
		d = minDelay
	}
	return d
}

func (s *Scheduler) setNextTick(t time.Time) {
	s.mu.Lock()
	s.status.NextTick = t
	s.mu.Unlock()
}

// runRetention deletes memories past the retention window. Failures are
// logged and recorded, never returned.
func (s *Scheduler) runRetention(ctx context.Context, trigger string) {
	if s.cfg.RetentionDays <= 0 {
		return
	}
	ctx = tracing.WithTrigger(ctx, trigger)
	logger := tracing.LoggerFromContext(ctx, s.logger)

	deleted, err := s.deps.Store.DeleteOlderThan(ctx, s.cfg.RetentionDays)
	observability.RecordCleanupAudit(ctx, trigger, s.cfg.RetentionDays, deleted, err)

	s.mu.Lock()
	s.status.LastCleanup = time.Now()
	s.status.LastCleanupDeleted = deleted
	if err != nil {
		s.status.LastError = err.Error()
		s.status.LastErrorAt = time.Now()
	}
	s.mu.Unlock()

	if err != nil {
		logger.Error().Err(err).Int("deleted", deleted).Msg("Retention sweep failed")
		return
	}
	logger.Info().Int("deleted", deleted).Int("days", s.cfg.RetentionDays).Msg("Retention sweep done")
}
