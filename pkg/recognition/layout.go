package recognition

import "strings"

// Box is a bounding box in capture pixels.
type Box struct {
	Left   int `json:"left"`
	Top    int `json:"top"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

func (b Box) union(o Box) Box {
	left, top := min(b.Left, o.Left), min(b.Top, o.Top)
	right := max(b.Left+b.Width, o.Left+o.Width)
	bottom := max(b.Top+b.Height, o.Top+o.Height)
	return Box{Left: left, Top: top, Width: right - left, Height: bottom - top}
}

// Region is a run of confident words: one layout line or one paragraph.
type Region struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
	Words      int     `json:"words"`
	Box        Box     `json:"bbox"`
}

// Layout is the structured form of the words kept by Threshold.
type Layout struct {
	Lines      []Region `json:"lines"`
	Paragraphs []Region `json:"paragraphs"`
	Words      int      `json:"total_words"`
}

// Layout groups the words at or above threshold into lines and paragraphs
// in reading order. It returns nil when no word qualifies.
func (p *Page) Layout(threshold float64) *Layout {
	var (
		out         Layout
		line, par   regionBuilder
		lineK, parK [3]int
		started     bool
	)

	for _, w := range p.Words {
		if w.Confidence < threshold {
			continue
		}
		lk := [3]int{w.Block, w.Paragraph, w.Line}
		pk := [3]int{w.Block, w.Paragraph, 0}
		if started && lk != lineK {
			out.Lines = append(out.Lines, line.region())
			line = regionBuilder{}
		}
		if started && pk != parK {
			out.Paragraphs = append(out.Paragraphs, par.region())
			par = regionBuilder{}
		}
		line.add(w)
		par.add(w)
		lineK, parK, started = lk, pk, true
		out.Words++
	}
	if !started {
		return nil
	}

	out.Lines = append(out.Lines, line.region())
	out.Paragraphs = append(out.Paragraphs, par.region())
	return &out
}

// scale divides word boxes by factor, undoing an upscale before OCR.
func (p *Page) scale(factor int) {
	if factor <= 1 {
		return
	}
	for i := range p.Words {
		b := &p.Words[i].Box
		b.Left /= factor
		b.Top /= factor
		b.Width /= factor
		b.Height /= factor
	}
}

type regionBuilder struct {
	words []string
	sum   float64
	box   Box
}

func (r *regionBuilder) add(w Word) {
	if len(r.words) == 0 {
		r.box = w.Box
	} else {
		r.box = r.box.union(w.Box)
	}
	r.words = append(r.words, w.Text)
	r.sum += w.Confidence
}

func (r *regionBuilder) region() Region {
	return Region{
		Text:       strings.Join(r.words, " "),
		Confidence: r.sum / float64(len(r.words)),
		Words:      len(r.words),
		Box:        r.box,
	}
}
