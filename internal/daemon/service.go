package daemon

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/harun/alexandria/internal/config"
	"github.com/harun/alexandria/internal/logger"
	"github.com/harun/alexandria/internal/observability"
	"github.com/harun/alexandria/internal/tracing"
	"github.com/harun/alexandria/pkg/capture"
	"github.com/harun/alexandria/pkg/compositor"
	"github.com/harun/alexandria/pkg/privacy"
	"github.com/harun/alexandria/pkg/recognition"
	"github.com/harun/alexandria/pkg/scheduler"
	"github.com/harun/alexandria/pkg/store"
	"github.com/harun/alexandria/pkg/toolrun"
)

// ErrNegativeDays is returned by Cleanup for a negative retention window.
var ErrNegativeDays = errors.New("days must be >= 0")

// Options overrides how a Service reaches the host. Zero values select the
// production implementations.
type Options struct {
	Runner toolrun.Runner
	Env    func(string) string
	Locks  scheduler.LockDetector
	// Watch starts the image reconciler. Only the long-running daemon
	// wants it; one-shot commands leave it off.
	Watch bool
}

// CleanupResult reports a manual cleanup. When Confirmed is false nothing
// was deleted and Matched is the number of memories that would go.
type CleanupResult struct {
	Days      int       `json:"days"`
	Cutoff    time.Time `json:"cutoff"`
	Matched   int       `json:"matched"`
	Deleted   int       `json:"deleted"`
	Confirmed bool      `json:"confirmed"`
}

// Service is the command surface shared by the daemon and the CLI. It owns
// every component of the capture pipeline.
type Service struct {
	config *config.Config
	logger zerolog.Logger

	compositor  compositor.Adapter
	privacy     *privacy.Filter
	capture     *capture.GrimBackend
	recognition *recognition.Pipeline
	store       *store.Store
	scheduler   *scheduler.Scheduler
}

// NewService builds the pipeline from cfg. The store is opened immediately;
// call Close when done.
func NewService(cfg *config.Config, log *logger.Logger, opts Options) (*Service, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if log == nil {
		log = logger.Nop()
	}
	if opts.Runner == nil {
		opts.Runner = toolrun.NewHostRunner()
	}
	if opts.Env == nil {
		opts.Env = os.Getenv
	}
	if opts.Locks == nil {
		opts.Locks = scheduler.NewProcLockDetector()
	}

	s := &Service{
		config: cfg,
		logger: log.Component("service"),
	}

	adapter, err := compositor.New(compositor.Kind(cfg.Compositor.Kind), compositor.Options{
		Timeout: cfg.Compositor.Timeout(),
		Runner:  opts.Runner,
		Env:     opts.Env,
		Logger:  log.Component("compositor"),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create compositor adapter: %w", err)
	}
	s.compositor = adapter

	filter, err := privacy.NewFilter(privacy.Rules{
		ExcludeWindows:    cfg.Capture.ExcludeWindows,
		RedactSensitive:   cfg.Privacy.RedactSensitive,
		SensitiveKeywords: cfg.Privacy.SensitiveKeywords,
		SensitivePatterns: cfg.Privacy.SensitivePatterns,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create privacy filter: %w", err)
	}
	s.privacy = filter

	s.capture = capture.NewGrimBackend(capture.GrimConfig{
		Binary:           cfg.Capture.Binary,
		Timeout:          cfg.Capture.Timeout(),
		CompressionLevel: cfg.Capture.CompressionLevel,
		IncludeCursor:    cfg.Capture.IncludeCursor,
	}, opts.Runner, log.Component("capture"))

	var engine recognition.Engine
	if cfg.OCR.Enabled {
		engine = recognition.NewTesseract(recognition.TesseractConfig{
			Binary:               cfg.OCR.Binary,
			PageSegmentationMode: cfg.OCR.PageSegmentationMode,
			Timeout:              cfg.OCR.Timeout(),
		}, opts.Runner)
	}
	pipeline, err := recognition.NewPipeline(recognition.Config{
		Enabled:        cfg.OCR.Enabled,
		Language:       cfg.OCR.Language,
		Threshold:      cfg.OCR.ConfidenceThreshold,
		Preprocess:     cfg.OCR.Preprocess,
		MaxKeywords:    cfg.OCR.MaxKeywords,
		MaxConcurrent:  1,
		DominantColors: cfg.OCR.DominantColors,
	}, engine, log.GetZerolog())
	if err != nil {
		return nil, fmt.Errorf("failed to create recognition pipeline: %w", err)
	}
	s.recognition = pipeline

	st, err := store.Open(store.Config{
		DataDir:             cfg.DataDir,
		DatabasePath:        cfg.Storage.DatabasePath,
		KeepSensitiveImages: cfg.Privacy.KeepSensitiveImages,
		Thumbnails:          cfg.Storage.Thumbnails,
		ThumbnailWidth:      cfg.Storage.ThumbnailWidth,
		SearchCacheBytes:    int64(cfg.Storage.SearchCacheMB) << 20,
		WatchImages:         opts.Watch && cfg.Storage.WatchImages,
		Logger:              log.Component("store"),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open memory store: %w", err)
	}
	s.store = st

	sched, err := scheduler.New(scheduler.Config{
		Interval:       cfg.Capture.Interval(),
		Jitter:         cfg.Capture.Jitter(),
		CaptureOnStart: cfg.Capture.CaptureOnStart,
		SkipWhenLocked: cfg.Capture.SkipWhenLocked,
		Selection: capture.Selection{
			Mode:   cfg.Capture.OutputSelection,
			Output: cfg.Capture.SpecificOutput,
			Region: cfg.Capture.Region,
		},
		RetentionDays:   cfg.Storage.RetentionDays,
		CleanupSchedule: cfg.Storage.CleanupSchedule,
		CleanupOnStart:  cfg.Storage.RetentionDays > 0,
	}, scheduler.Deps{
		Compositor:  adapter,
		Privacy:     filter,
		Capture:     s.capture,
		Outputs:     capture.NewWlrRandr(opts.Runner),
		Recognition: pipeline,
		Store:       st,
		Locks:       opts.Locks,
		Logger:      log.GetZerolog(),
	})
	if err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}
	s.scheduler = sched

	s.logger.Debug().
		Str("compositor", string(adapter.Kind())).
		Bool("ocr", pipeline.Enabled()).
		Str("data_dir", st.DataDir()).
		Msg("Service initialized")

	return s, nil
}

// TriggerOneShotTick runs a single capture tick now, waiting for any tick
// already in flight.
func (s *Service) TriggerOneShotTick(ctx context.Context) (scheduler.TickResult, error) {
	return s.scheduler.Tick(ctx)
}

// Search queries the memory store.
func (s *Service) Search(ctx context.Context, q store.Query, limit int) ([]store.Memory, error) {
	return s.store.Search(ctx, q, limit)
}

// Cleanup removes memories older than days. Without confirm it only counts
// what would be removed.
func (s *Service) Cleanup(ctx context.Context, days int, confirm bool) (CleanupResult, error) {
	if days < 0 {
		return CleanupResult{}, fmt.Errorf("cleanup: %w, got %d", ErrNegativeDays, days)
	}

	res := CleanupResult{
		Days:      days,
		Cutoff:    store.Cutoff(time.Now(), days),
		Confirmed: confirm,
	}

	log := tracing.LoggerFromContext(ctx, s.logger)

	if !confirm {
		n, err := s.store.CountOlderThan(ctx, days)
		if err != nil {
			return res, err
		}
		res.Matched = n
		log.Info().Int("days", days).Int("matched", n).Msg("Cleanup preview")
		return res, nil
	}

	deleted, err := s.store.DeleteOlderThan(ctx, days)
	res.Matched = deleted
	res.Deleted = deleted
	observability.RecordCleanupAudit(ctx, "manual", days, deleted, err)
	if err != nil {
		log.Error().Err(err).Int("deleted", deleted).Msg("Cleanup failed")
		return res, err
	}
	log.Info().Int("days", days).Int("deleted", deleted).Msg("Cleanup finished")
	return res, nil
}

// Stats summarises the memory store.
func (s *Service) Stats(ctx context.Context) (store.Stats, error) {
	return s.store.Stats(ctx)
}

// SchedulerStatus returns the scheduler snapshot.
func (s *Service) SchedulerStatus() scheduler.Status {
	return s.scheduler.Status()
}

// Config returns the configuration the service was built from.
func (s *Service) Config() *config.Config {
	return s.config
}

// Compositor reports which window context adapter was selected.
func (s *Service) Compositor() compositor.Kind {
	return s.compositor.Kind()
}

// Close releases the store.
func (s *Service) Close() error {
	return s.store.Close()
}
