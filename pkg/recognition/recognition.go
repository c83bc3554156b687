// Package recognition extracts text and keyword tags from captures.
package recognition

import (
	"context"
	"fmt"
	"time"

	"github.com/harun/alexandria/pkg/compositor"
	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"
)

// Config configures the pipeline
type Config struct {
	Enabled     bool
	Language    string
	Threshold   float64 // minimum word confidence, 0-100
	Preprocess  bool
	MaxKeywords int
	// MaxConcurrent bounds simultaneous engine runs.
	MaxConcurrent int64
	// DominantColors is the number of colour clusters reported per
	// capture; 0 disables colour analysis.
	DominantColors int
}

// Extraction is the pipeline output for one capture. Text and Confidence
// are nil when absent. Err is set, wrapping ErrRecognitionFailed, when
// the engine failed and only context tags were produced.
type Extraction struct {
	Text       *string
	Confidence *float64
	// Layout is the line and paragraph structure of Text, nil with it.
	Layout *Layout
	Tags   []string
	// Colors are the dominant colours of the capture, most frequent first.
	Colors   []string
	Duration time.Duration
	Err      error
}

// Pipeline runs OCR and tagging.
type Pipeline struct {
	cfg    Config
	engine Engine
	tagger *Tagger
	sem    *semaphore.Weighted
	logger zerolog.Logger
}

// NewPipeline creates a pipeline. engine may be nil when OCR is disabled.
func NewPipeline(cfg Config, engine Engine, logger zerolog.Logger) (*Pipeline, error) {
	if cfg.Enabled && engine == nil {
		return nil, fmt.Errorf("recognition: OCR enabled without an engine")
	}
	if cfg.Threshold < 0 || cfg.Threshold > 100 {
		return nil, fmt.Errorf("recognition: threshold %v out of range", cfg.Threshold)
	}
	if cfg.Language == "" {
		cfg.Language = "eng"
	}
	if cfg.DominantColors < 0 {
		return nil, fmt.Errorf("recognition: dominant colors %d is negative", cfg.DominantColors)
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 1
	}

	return &Pipeline{
		cfg:    cfg,
		engine: engine,
		tagger: NewTagger(cfg.MaxKeywords),
		sem:    semaphore.NewWeighted(cfg.MaxConcurrent),
		logger: logger.With().Str("component", "recognition").Logger(),
	}, nil
}

// Enabled reports whether OCR runs at all.
func (p *Pipeline) Enabled() bool {
	return p.cfg.Enabled
}

// Extract recognises text in img and tags it with wc. It never fails: an
// engine error degrades the result to context tags and sets Err.
func (p *Pipeline) Extract(ctx context.Context, img []byte, wc *compositor.WindowContext) Extraction {
	start := time.Now()
	contextTags := p.tagger.ContextTags(wc)
	colors := p.dominantColors(img)

	if !p.cfg.Enabled {
		return Extraction{Tags: Union(contextTags), Colors: colors, Duration: time.Since(start)}
	}

	page, err := p.recognize(ctx, img)
	if err != nil {
		p.logger.Warn().Err(err).Msg("OCR failed, keeping context tags only")
		return Extraction{
			Tags:     Union(contextTags),
			Colors:   colors,
			Duration: time.Since(start),
			Err:      fmt.Errorf("%w: %w", ErrRecognitionFailed, err),
		}
	}

	out := Extraction{Colors: colors}
	text, confidence, ok := page.Threshold(p.cfg.Threshold)
	if ok {
		out.Confidence = &confidence
	}
	if text != "" {
		out.Text = &text
		out.Layout = page.Layout(p.cfg.Threshold)
	}

	out.Tags = Union(p.tagger.TextTags(text), contextTags)
	out.Duration = time.Since(start)

	p.logger.Debug().
		Int("words", len(page.Words)).
		Bool("has_text", out.Text != nil).
		Int("tags", len(out.Tags)).
		Dur("duration", out.Duration).
		Msg("Capture recognised")

	return out
}

func (p *Pipeline) recognize(ctx context.Context, img []byte) (*Page, error) {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer p.sem.Release(1)

	input, factor := img, 1
	if p.cfg.Preprocess {
		prepared, f, err := prepare(img)
		if err != nil {
			p.logger.Debug().Err(err).Msg("Preprocessing failed, using raw capture")
		} else {
			input, factor = prepared, f
		}
	}

	page, err := p.engine.Recognize(ctx, input, p.cfg.Language)
	if err != nil {
		return nil, err
	}
	if page == nil {
		return &Page{}, nil
	}
	page.scale(factor)
	return page, nil
}

func (p *Pipeline) dominantColors(img []byte) []string {
	if p.cfg.DominantColors == 0 {
		return nil
	}
	colors, err := DominantColors(img, p.cfg.DominantColors)
	if err != nil {
		p.logger.Debug().Err(err).Msg("Colour analysis skipped")
		return nil
	}
	return colors
}
