package capture

import (
	"bytes"
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/harun/alexandria/pkg/toolrun"
	"github.com/rs/zerolog"
)

var pngSignature = []byte("\x89PNG\r\n\x1a\n")

// GrimConfig configures the grim backend
type GrimConfig struct {
	Binary           string
	Timeout          time.Duration
	CompressionLevel int // 0-9
	IncludeCursor    bool
}

// GrimBackend captures through grim, reading the PNG from stdout.
type GrimBackend struct {
	cfg    GrimConfig
	runner toolrun.Runner
	logger zerolog.Logger
}

// NewGrimBackend creates a grim backend
func NewGrimBackend(cfg GrimConfig, runner toolrun.Runner, logger zerolog.Logger) *GrimBackend {
	if cfg.Binary == "" {
		cfg.Binary = "grim"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &GrimBackend{
		cfg:    cfg,
		runner: runner,
		logger: logger.With().Str("component", "capture").Logger(),
	}
}

// Args returns the command line for target.
func (g *GrimBackend) Args(target Target) []string {
	args := []string{"-t", "png", "-l", strconv.Itoa(g.cfg.CompressionLevel)}
	if g.cfg.IncludeCursor {
		args = append(args, "-c")
	}

	switch target.Kind {
	case TargetOutput:
		args = append(args, "-o", target.Output)
	case TargetRegion:
		args = append(args, "-g", target.Region.String())
	}

	return append(args, "-")
}

// Capture implements Backend
func (g *GrimBackend) Capture(ctx context.Context, target Target) (*Image, error) {
	if target.Kind == TargetOutput && target.Output == "" {
		return nil, &Failure{Reason: ReasonInvalid, Err: errors.New("output target without a name")}
	}

	res, err := g.runner.Run(ctx, toolrun.Request{
		Command: g.cfg.Binary,
		Args:    g.Args(target),
		Timeout: g.cfg.Timeout,
	})
	if err != nil {
		f := &Failure{Reason: ReasonExit, Err: err, Stderr: string(res.Stderr)}
		switch {
		case errors.Is(err, toolrun.ErrTimeout):
			f.Reason = ReasonTimeout
		case errors.Is(err, toolrun.ErrNotFound):
			f.Reason = ReasonMissing
		}
		g.logger.Debug().Err(err).Str("reason", string(f.Reason)).Msg("Capture tool failed")
		return nil, f
	}

	if len(res.Stdout) == 0 {
		return nil, &Failure{Reason: ReasonEmpty, Stderr: string(res.Stderr)}
	}
	if !bytes.HasPrefix(res.Stdout, pngSignature) {
		return nil, &Failure{Reason: ReasonInvalid, Err: errors.New("output is not a PNG image")}
	}

	g.logger.Debug().
		Int("bytes", len(res.Stdout)).
		Dur("duration", res.Duration).
		Str("target", target.Kind.String()).
		Msg("Screen captured")

	return &Image{Data: res.Stdout, Format: "png"}, nil
}
