package recognition

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/harun/alexandria/pkg/toolrun"
)

// Word is one recognised word with its confidence in [0,100].
type Word struct {
	Text       string
	Confidence float64
	Block      int
	Paragraph  int
	Line       int
	Box        Box
}

// Page is the engine output for one image.
type Page struct {
	Words []Word
}

// Engine turns image bytes into words.
type Engine interface {
	Recognize(ctx context.Context, img []byte, lang string) (*Page, error)
}

// TesseractConfig configures the tesseract engine
type TesseractConfig struct {
	Binary               string
	PageSegmentationMode int
	Timeout              time.Duration
}

// Tesseract pipes images through the tesseract CLI and parses its TSV
// output.
type Tesseract struct {
	cfg    TesseractConfig
	runner toolrun.Runner
}

// NewTesseract creates a tesseract engine
func NewTesseract(cfg TesseractConfig, runner toolrun.Runner) *Tesseract {
	if cfg.Binary == "" {
		cfg.Binary = "tesseract"
	}
	if cfg.PageSegmentationMode == 0 {
		cfg.PageSegmentationMode = 6
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Tesseract{cfg: cfg, runner: runner}
}

// Recognize implements Engine
func (t *Tesseract) Recognize(ctx context.Context, img []byte, lang string) (*Page, error) {
	res, err := t.runner.Run(ctx, toolrun.Request{
		Command: t.cfg.Binary,
		Args: []string{
			"stdin", "stdout",
			"-l", lang,
			"--psm", strconv.Itoa(t.cfg.PageSegmentationMode),
			"tsv",
		},
		Stdin:   img,
		Timeout: t.cfg.Timeout,
		// keep tesseract single threaded; ticks are sequential anyway
		Env: []string{"OMP_THREAD_LIMIT=1"},
	})
	if err != nil {
		return nil, err
	}

	return ParseTSV(res.Stdout)
}

// tesseract TSV columns
const (
	colLevel = iota
	colPage
	colBlock
	colPar
	colLine
	colWord
	colLeft
	colTop
	colWidth
	colHeight
	colConf
	colText
	tsvColumns
)

// wordLevel is the TSV level of word rows.
const wordLevel = 5

// ParseTSV parses tesseract's TSV renderer output, keeping word rows with
// non-empty text.
func ParseTSV(data []byte) (*Page, error) {
	page := &Page{}
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)

	header := true
	for scanner.Scan() {
		line := scanner.Text()
		if header {
			header = false
			if !strings.HasPrefix(line, "level\t") {
				return nil, fmt.Errorf("%w: missing header", ErrMalformedOutput)
			}
			continue
		}
		if line == "" {
			continue
		}

		cols := strings.Split(line, "\t")
		if len(cols) < tsvColumns-1 {
			return nil, fmt.Errorf("%w: %d columns", ErrMalformedOutput, len(cols))
		}
		if level, _ := strconv.Atoi(cols[colLevel]); level != wordLevel {
			continue
		}
		if len(cols) < tsvColumns {
			continue
		}
		text := strings.TrimSpace(cols[colText])
		if text == "" {
			continue
		}

		conf, err := strconv.ParseFloat(cols[colConf], 64)
		if err != nil {
			return nil, fmt.Errorf("%w: confidence %q", ErrMalformedOutput, cols[colConf])
		}
		if conf < 0 {
			continue
		}

		block, _ := strconv.Atoi(cols[colBlock])
		par, _ := strconv.Atoi(cols[colPar])
		ln, _ := strconv.Atoi(cols[colLine])
		left, _ := strconv.Atoi(cols[colLeft])
		top, _ := strconv.Atoi(cols[colTop])
		width, _ := strconv.Atoi(cols[colWidth])
		height, _ := strconv.Atoi(cols[colHeight])

		page.Words = append(page.Words, Word{
			Text:       text,
			Confidence: conf,
			Block:      block,
			Paragraph:  par,
			Line:       ln,
			Box:        Box{Left: left, Top: top, Width: width, Height: height},
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedOutput, err)
	}
	if header {
		return nil, fmt.Errorf("%w: empty output", ErrMalformedOutput)
	}

	return page, nil
}

// Threshold keeps the words at or above threshold. It returns the joined
// text (one line per layout line) and the mean confidence of the kept
// words. When nothing qualifies, text is empty and the mean covers every
// recognised word; ok is false only when the page has no words at all.
func (p *Page) Threshold(threshold float64) (text string, confidence float64, ok bool) {
	if len(p.Words) == 0 {
		return "", 0, false
	}

	var b strings.Builder
	var sum float64
	kept := 0
	lastKey := [3]int{-1, -1, -1}
	for _, w := range p.Words {
		if w.Confidence < threshold {
			continue
		}
		key := [3]int{w.Block, w.Paragraph, w.Line}
		if kept > 0 {
			if key != lastKey {
				b.WriteByte('\n')
			} else {
				b.WriteByte(' ')
			}
		}
		b.WriteString(w.Text)
		lastKey = key
		sum += w.Confidence
		kept++
	}

	if kept > 0 {
		return b.String(), sum / float64(kept), true
	}

	for _, w := range p.Words {
		sum += w.Confidence
	}
	return "", sum / float64(len(p.Words)), true
}
