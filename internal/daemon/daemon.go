package daemon

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/harun/alexandria/internal/config"
	"github.com/harun/alexandria/internal/logger"
	"github.com/harun/alexandria/internal/observability"
	"github.com/harun/alexandria/internal/tracing"
	"github.com/harun/alexandria/pkg/scheduler"
)

const shutdownTimeout = 30 * time.Second

// Daemon represents the long-running capture service
type Daemon struct {
	config *config.Config
	logger *logger.Logger

	service *Service

	// Internal
	eventLoop *EventLoop
	lifecycle *LifecycleManager
	metrics   *http.Server

	ctx    context.Context
	cancel context.CancelFunc
	group  *errgroup.Group

	startTime time.Time
	running   bool
	mu        sync.RWMutex

	tracingEnabled bool
}

// Status is the daemon status as shown by `alexandria status`.
type Status struct {
	Running    bool             `json:"running"`
	PID        int              `json:"pid,omitempty"`
	StartTime  time.Time        `json:"start_time"`
	Uptime     time.Duration    `json:"uptime"`
	Compositor string           `json:"compositor"`
	Scheduler  scheduler.Status `json:"scheduler"`
}

// New creates a new daemon instance
func New(cfg *config.Config, log *logger.Logger, opts Options) (*Daemon, error) {
	observability.EnsureRegistered()

	d := &Daemon{
		config: cfg,
		logger: log,
	}

	if err := tracing.InitOpenTelemetry("alexandria"); err != nil {
		log.Warn().Err(err).Msg("Failed to initialize tracing, continuing without distributed tracing")
	} else {
		d.tracingEnabled = true
	}

	if cfg.Logging.AuditFile != "" {
		if err := observability.InitAuditLogger(cfg.Logging.AuditFile); err != nil {
			log.Warn().Err(err).Msg("Failed to initialize audit logger, audit events are discarded")
		} else {
			log.Info().Str("path", cfg.Logging.AuditFile).Msg("Audit logger initialized")
		}
	}

	opts.Watch = true
	svc, err := NewService(cfg, log, opts)
	if err != nil {
		d.shutdownTracing()
		_ = observability.CloseAuditLogger()
		return nil, fmt.Errorf("failed to initialize service: %w", err)
	}
	d.service = svc

	if cfg.Metrics.Listen != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", observability.MetricsHandler())
		d.metrics = &http.Server{
			Addr:              cfg.Metrics.Listen,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
	}

	d.eventLoop = NewEventLoop(d)
	d.lifecycle = NewLifecycleManager(d)

	return d, nil
}

// Start starts the daemon service
func (d *Daemon) Start() error {
	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		return fmt.Errorf("daemon is already running")
	}
	d.running = true
	d.startTime = time.Now()
	d.ctx, d.cancel = context.WithCancel(context.Background())
	d.mu.Unlock()

	ctx := tracing.WithTraceID(d.ctx, tracing.NewTraceID())
	log := tracing.LoggerFromContext(ctx, d.logger.GetZerolog())
	log.Info().Msg("Starting Alexandria daemon")

	if err := d.lifecycle.Start(); err != nil {
		d.abortStart()
		return fmt.Errorf("failed to start lifecycle manager: %w", err)
	}

	var ln net.Listener
	if d.metrics != nil {
		var err error
		ln, err = net.Listen("tcp", d.metrics.Addr)
		if err != nil {
			_ = d.lifecycle.Stop()
			d.abortStart()
			return fmt.Errorf("failed to listen on %s: %w", d.metrics.Addr, err)
		}
	}

	if err := d.service.scheduler.Start(ctx); err != nil {
		if ln != nil {
			_ = ln.Close()
		}
		_ = d.lifecycle.Stop()
		d.abortStart()
		return fmt.Errorf("failed to start scheduler: %w", err)
	}

	g, gctx := errgroup.WithContext(d.ctx)
	g.Go(func() error {
		d.eventLoop.Run(gctx)
		return nil
	})
	if ln != nil {
		g.Go(func() error {
			log.Info().Str("listen", ln.Addr().String()).Msg("Metrics endpoint started")
			if err := d.metrics.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
	}
	d.group = g

	log.Info().
		Str("compositor", string(d.service.Compositor())).
		Dur("interval", d.config.Capture.Interval()).
		Msg("Daemon started")

	return nil
}

func (d *Daemon) abortStart() {
	d.mu.Lock()
	d.running = false
	d.cancel()
	d.mu.Unlock()
}

// Stop stops the daemon gracefully. The tick in flight finishes its current
// stage before the store is closed.
func (d *Daemon) Stop() error {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return fmt.Errorf("daemon is not running")
	}
	d.running = false
	d.mu.Unlock()

	log := d.logger.GetZerolog().With().Str("trace_id", tracing.NewTraceID()).Logger()
	log.Info().Msg("Stopping Alexandria daemon")

	stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := d.service.scheduler.Stop(stopCtx); err != nil {
		log.Error().Err(err).Msg("Failed to stop scheduler")
	}

	if d.metrics != nil {
		if err := d.metrics.Shutdown(stopCtx); err != nil {
			log.Error().Err(err).Msg("Failed to stop metrics endpoint")
		}
	}

	d.cancel()

	if d.group != nil {
		if err := d.group.Wait(); err != nil {
			log.Error().Err(err).Msg("Background task failed")
		}
	}

	if err := d.lifecycle.Stop(); err != nil {
		log.Error().Err(err).Msg("Failed to stop lifecycle manager")
	}

	if err := d.service.Close(); err != nil {
		log.Error().Err(err).Msg("Failed to close memory store")
	}

	d.shutdownTracing()

	if err := observability.CloseAuditLogger(); err != nil {
		log.Error().Err(err).Msg("Failed to close audit logger")
	}

	log.Info().Msg("Daemon stopped")

	return nil
}

func (d *Daemon) shutdownTracing() {
	if !d.tracingEnabled {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := tracing.ShutdownOpenTelemetry(ctx); err != nil {
		d.logger.Error().Err(err).Msg("Failed to shutdown tracing")
	}
	d.tracingEnabled = false
}

// Status returns the daemon status
func (d *Daemon) Status() Status {
	d.mu.RLock()
	defer d.mu.RUnlock()

	status := Status{
		Running:    d.running,
		Compositor: string(d.service.Compositor()),
		Scheduler:  d.service.SchedulerStatus(),
	}

	if d.running {
		status.PID = os.Getpid()
		status.Uptime = time.Since(d.startTime)
		status.StartTime = d.startTime
	}

	return status
}

// Wait blocks until SIGINT or SIGTERM, then stops the daemon.
func (d *Daemon) Wait() {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	sig := <-sigChan
	d.logger.Info().Str("signal", sig.String()).Msg("Received signal")

	if err := d.Stop(); err != nil {
		d.logger.Error().Err(err).Msg("Failed to stop daemon")
	}
}

// Service returns the command surface backed by this daemon.
func (d *Daemon) Service() *Service {
	return d.service
}

// GetConfig returns the daemon configuration
func (d *Daemon) GetConfig() *config.Config {
	return d.config
}

// GetLogger returns the daemon logger
func (d *Daemon) GetLogger() *logger.Logger {
	return d.logger
}
