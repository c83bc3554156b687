package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/harun/alexandria/internal/observability"
	"github.com/harun/alexandria/internal/tracing"
	"github.com/harun/alexandria/pkg/capture"
	"github.com/harun/alexandria/pkg/compositor"
	"github.com/harun/alexandria/pkg/privacy"
	"github.com/harun/alexandria/pkg/recognition"
	"github.com/harun/alexandria/pkg/store"
)

const tracerName = "alexandria.scheduler"

// Outcome is how a tick ended.
type Outcome string

const (
	OutcomeStored        Outcome = "stored"
	OutcomeDenied        Outcome = "denied"
	OutcomeSkipped       Outcome = "skipped"
	OutcomeCaptureFailed Outcome = "capture_failed"
	OutcomeStorageFailed Outcome = "storage_failed"
	OutcomeAborted       Outcome = "aborted"
)

// TickResult describes one tick.
type TickResult struct {
	TickID    string        `json:"tick_id"`
	Trigger   string        `json:"trigger"`
	Outcome   Outcome       `json:"outcome"`
	MemoryID  string        `json:"memory_id,omitempty"`
	Rule      string        `json:"rule,omitempty"`
	Sensitive bool          `json:"sensitive,omitempty"`
	Degraded  bool          `json:"degraded,omitempty"` // recognition failed
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
	Err       error         `json:"-"`
}

// Status is a snapshot of the scheduler.
type Status struct {
	Running            bool            `json:"running"`
	StartedAt          time.Time       `json:"started_at"`
	Interval           time.Duration   `json:"interval"`
	NextTick           time.Time       `json:"next_tick"`
	TickInProgress     bool            `json:"tick_in_progress"`
	Ticks              int             `json:"ticks"`
	Outcomes           map[Outcome]int `json:"outcomes"`
	LastTick           *TickResult     `json:"last_tick,omitempty"`
	LastError          string          `json:"last_error,omitempty"`
	LastErrorAt        time.Time       `json:"last_error_at"`
	LastCleanup        time.Time       `json:"last_cleanup"`
	LastCleanupDeleted int             `json:"last_cleanup_deleted"`
}

// Status returns a copy of the current status.
func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.status
	st.Outcomes = make(map[Outcome]int, len(s.status.Outcomes))
	for k, v := range s.status.Outcomes {
		st.Outcomes[k] = v
	}
	if s.status.LastTick != nil {
		last := *s.status.LastTick
		st.LastTick = &last
	}
	return st
}

// runTick waits for the tick slot and runs a tick. It reports false when
// ctx ended before the slot was free.
func (s *Scheduler) runTick(ctx context.Context, trigger string) (TickResult, bool) {
	select {
	case s.tickSlot <- struct{}{}:
	case <-ctx.Done():
		return TickResult{Trigger: trigger, Outcome: OutcomeAborted, Err: ErrTickAborted}, false
	}
	defer func() { <-s.tickSlot }()

	s.mu.Lock()
	s.status.TickInProgress = true
	s.mu.Unlock()

	res := s.tick(ctx, trigger)

	s.mu.Lock()
	s.status.TickInProgress = false
	s.status.Ticks++
	s.status.Outcomes[res.Outcome]++
	last := res
	s.status.LastTick = &last
	if res.Err != nil {
		s.status.LastError = res.Err.Error()
		s.status.LastErrorAt = time.Now()
	}
	s.mu.Unlock()

	return res, true
}

// tick runs the stages in order. Stages run on a context detached from
// ctx, so cancelling ctx never interrupts a stage; it is checked between
// stages instead.
func (s *Scheduler) tick(ctx context.Context, trigger string) TickResult {
	ctx = tracing.NewTickContext(ctx, trigger)
	ctx, span := tracing.StartSpan(ctx, tracerName, "scheduler.tick",
		attribute.String("trigger", trigger),
		attribute.String("tick_id", tracing.GetTickID(ctx)),
	)
	defer span.End()

	logger := tracing.LoggerFromContext(ctx, s.logger)
	stageCtx := tracing.Detach(ctx)
	tickID := tracing.GetTickID(ctx)

	res := TickResult{TickID: tickID, Trigger: trigger, StartedAt: time.Now()}
	finish := func(outcome Outcome, err error) TickResult {
		res.Outcome = outcome
		res.Err = err
		res.Duration = time.Since(res.StartedAt)
		observability.RecordTick(string(outcome), res.Duration)
		span.SetAttributes(attribute.String("outcome", string(outcome)))
		if err != nil {
			tracing.Fail(span, err, string(outcome))
		}
		return res
	}
	abort := func(stage string) TickResult {
		logger.Info().Str("before", stage).Msg("Tick abandoned for shutdown")
		return finish(OutcomeAborted, ErrTickAborted)
	}

	if ctx.Err() != nil {
		return abort("lock_check")
	}

	if s.cfg.SkipWhenLocked && s.deps.Locks != nil {
		var locked bool
		_ = s.stage(stageCtx, "lock_check", func(ctx context.Context) error {
			locked = s.deps.Locks.Locked(ctx)
			return nil
		})
		if locked {
			logger.Debug().Msg("Screen locked, skipping capture")
			return finish(OutcomeSkipped, nil)
		}
	}

	if ctx.Err() != nil {
		return abort("window_context")
	}

	var wc *compositor.WindowContext
	_ = s.stage(stageCtx, "window_context", func(ctx context.Context) error {
		var err error
		wc, err = s.deps.Compositor.ResolveActiveWindow(ctx)
		if err != nil {
			observability.RecordContextUnavailable(string(s.deps.Compositor.Kind()))
			logger.Debug().Err(err).Str("compositor", string(s.deps.Compositor.Kind())).Msg("Window context unavailable")
			wc = nil
		}
		return err
	})

	verdict := s.deps.Privacy.Check(wc)
	observability.RecordPrivacyDecision("pre_capture", verdict.Decision.String())
	if verdict.Decision == privacy.Deny {
		res.Rule = verdict.Rule
		observability.RecordPrivacyAudit(ctx, tickID, "pre_capture", verdict.Decision.String(), verdict.Rule)
		logger.Info().Str("rule", verdict.Rule).Msg("Capture denied by privacy rule")
		return finish(OutcomeDenied, nil)
	}

	if ctx.Err() != nil {
		return abort("capture")
	}

	var (
		img        *capture.Image
		capturedAt time.Time
	)
	err := s.stage(stageCtx, "capture", func(ctx context.Context) error {
		target, err := capture.ResolveTarget(ctx, s.cfg.Selection, s.deps.Outputs)
		if err != nil {
			return &capture.Failure{Reason: capture.ReasonInvalid, Err: err}
		}
		capturedAt = time.Now().UTC()
		img, err = s.deps.Capture.Capture(ctx, target)
		return err
	})
	if err != nil {
		logger.Error().Err(err).Msg("Capture failed")
		return finish(OutcomeCaptureFailed, fmt.Errorf("tick %s: %w", tickID, err))
	}

	if ctx.Err() != nil {
		return abort("recognition")
	}

	var ext recognition.Extraction
	_ = s.stage(stageCtx, "recognition", func(ctx context.Context) error {
		ext = s.deps.Recognition.Extract(ctx, img.Data, wc)
		return ext.Err
	})
	if ext.Err != nil {
		res.Degraded = true
		observability.RecordRecognitionError()
		logger.Warn().Err(ext.Err).Msg("Recognition failed, storing without text")
	}

	sensitive := false
	if ext.Text != nil {
		content := s.deps.Privacy.CheckContent(*ext.Text)
		observability.RecordPrivacyDecision("content", content.Decision.String())
		if content.Decision != privacy.Allow {
			sensitive = true
			res.Rule = content.Rule
			observability.RecordPrivacyAudit(ctx, tickID, "content", content.Decision.String(), content.Rule)
			logger.Info().Str("rule", content.Rule).Msg("Sensitive content, discarding text and tags")
		}
	}
	res.Sensitive = sensitive

	if ctx.Err() != nil {
		return abort("store")
	}

	nm := store.NewMemory{
		CapturedAt:     capturedAt,
		Image:          img.Data,
		ImageFormat:    img.Format,
		ExtractedText:  ext.Text,
		OCRConfidence:  ext.Confidence,
		DominantColors: ext.Colors,
		Tags:           ext.Tags,
		Sensitive:      sensitive,
	}
	if ext.Layout != nil && !sensitive {
		if data, err := json.Marshal(ext.Layout); err != nil {
			logger.Warn().Err(err).Msg("Encoding text layout failed, storing without it")
		} else {
			nm.OCRData = data
		}
	}
	if sensitive {
		nm.ExtractedText = nil
		nm.OCRConfidence = nil
		nm.Tags = nil
	}
	if wc != nil {
		nm.WindowTitle = wc.Title
		nm.ApplicationID = wc.AppID
		nm.WindowClass = wc.Class
		nm.WorkspaceID = wc.Workspace
	}

	var id string
	err = s.stage(stageCtx, "store", func(ctx context.Context) error {
		var err error
		id, err = s.deps.Store.Insert(ctx, nm)
		return err
	})
	if err != nil {
		logger.Error().Err(err).Msg("Storing memory failed")
		return finish(OutcomeStorageFailed, fmt.Errorf("tick %s: %w", tickID, err))
	}

	res.MemoryID = id
	out := finish(OutcomeStored, nil)
	logger.Info().
		Str("memory_id", id).
		Bool("sensitive", sensitive).
		Bool("has_text", nm.ExtractedText != nil).
		Int("tags", len(nm.Tags)).
		Dur("duration", out.Duration).
		Msg("Memory stored")
	return out
}

// stage runs fn in its own span and records its duration.
func (s *Scheduler) stage(ctx context.Context, name string, fn func(context.Context) error) error {
	ctx, span := tracing.StartSpan(ctx, tracerName, "stage."+name)
	defer span.End()

	start := time.Now()
	err := fn(ctx)
	observability.RecordStage(name, time.Since(start), err == nil)
	if err != nil {
		tracing.Fail(span, err, name+" failed")
	}
	return err
}
