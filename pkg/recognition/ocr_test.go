package recognition

import (
	"context"
	"testing"
	"time"

	"github.com/harun/alexandria/pkg/toolrun"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleTSV = "level\tpage_num\tblock_num\tpar_num\tline_num\tword_num\tleft\ttop\twidth\theight\tconf\ttext\n" +
	"1\t1\t0\t0\t0\t0\t0\t0\t1920\t1080\t-1\t\n" +
	"4\t1\t1\t1\t1\t0\t10\t10\t300\t20\t-1\t\n" +
	"5\t1\t1\t1\t1\t1\t10\t10\t80\t20\t96.5\tWeekly\n" +
	"5\t1\t1\t1\t1\t2\t95\t10\t90\t20\t91.0\tmeeting\n" +
	"5\t1\t1\t1\t1\t3\t190\t10\t20\t20\t12.0\t~\n" +
	"5\t1\t1\t1\t2\t1\t10\t40\t60\t20\t88.5\tagenda\n" +
	"5\t1\t1\t1\t2\t2\t80\t40\t10\t20\t95.0\t \n"

func TestParseTSV(t *testing.T) {
	page, err := ParseTSV([]byte(sampleTSV))
	require.NoError(t, err)
	require.Len(t, page.Words, 4)

	assert.Equal(t, "Weekly", page.Words[0].Text)
	assert.Equal(t, 96.5, page.Words[0].Confidence)
	assert.Equal(t, 2, page.Words[3].Line)

	t.Run("missing header", func(t *testing.T) {
		_, err := ParseTSV([]byte("5\t1\t1\t1\t1\t1\t0\t0\t1\t1\t90\tword\n"))
		assert.ErrorIs(t, err, ErrMalformedOutput)
	})

	t.Run("empty output", func(t *testing.T) {
		_, err := ParseTSV(nil)
		assert.ErrorIs(t, err, ErrMalformedOutput)
	})

	t.Run("bad confidence", func(t *testing.T) {
		bad := "level\tx\n5\t1\t1\t1\t1\t1\t0\t0\t1\t1\thigh\tword\n"
		_, err := ParseTSV([]byte(bad))
		assert.ErrorIs(t, err, ErrMalformedOutput)
	})

	t.Run("header only", func(t *testing.T) {
		page, err := ParseTSV([]byte("level\tpage_num\n"))
		require.NoError(t, err)
		assert.Empty(t, page.Words)
	})
}

func TestPageThreshold(t *testing.T) {
	page, err := ParseTSV([]byte(sampleTSV))
	require.NoError(t, err)

	t.Run("keeps confident words by line", func(t *testing.T) {
		text, conf, ok := page.Threshold(60)
		require.True(t, ok)
		assert.Equal(t, "Weekly meeting\nagenda", text)
		assert.InDelta(t, (96.5+91.0+88.5)/3, conf, 0.001)
	})

	t.Run("nothing qualifies still reports confidence", func(t *testing.T) {
		text, conf, ok := page.Threshold(99)
		require.True(t, ok)
		assert.Empty(t, text)
		assert.InDelta(t, (96.5+91.0+12.0+88.5)/4, conf, 0.001)
	})

	t.Run("empty page", func(t *testing.T) {
		_, _, ok := (&Page{}).Threshold(60)
		assert.False(t, ok)
	})
}

type recordingRunner struct {
	req    toolrun.Request
	result toolrun.Result
	err    error
}

func (r *recordingRunner) Run(_ context.Context, req toolrun.Request) (toolrun.Result, error) {
	r.req = req
	return r.result, r.err
}

func TestTesseractRecognize(t *testing.T) {
	r := &recordingRunner{result: toolrun.Result{Stdout: []byte(sampleTSV)}}
	engine := NewTesseract(TesseractConfig{Timeout: 5 * time.Second}, r)

	page, err := engine.Recognize(context.Background(), []byte("png"), "eng+deu")
	require.NoError(t, err)
	assert.Len(t, page.Words, 4)

	assert.Equal(t, "tesseract", r.req.Command)
	assert.Equal(t, []string{"stdin", "stdout", "-l", "eng+deu", "--psm", "6", "tsv"}, r.req.Args)
	assert.Equal(t, []byte("png"), r.req.Stdin)
	assert.Equal(t, 5*time.Second, r.req.Timeout)

	t.Run("runner error propagates", func(t *testing.T) {
		r := &recordingRunner{err: toolrun.ErrTimeout}
		_, err := NewTesseract(TesseractConfig{}, r).Recognize(context.Background(), nil, "eng")
		assert.ErrorIs(t, err, toolrun.ErrTimeout)
	})
}

func TestPageLayout(t *testing.T) {
	page, err := ParseTSV([]byte(sampleTSV))
	require.NoError(t, err)
	assert.Equal(t, Box{Left: 95, Top: 10, Width: 90, Height: 20}, page.Words[1].Box)

	t.Run("groups confident words by line and paragraph", func(t *testing.T) {
		layout := page.Layout(60)
		require.NotNil(t, layout)
		assert.Equal(t, 3, layout.Words)

		require.Len(t, layout.Lines, 2)
		assert.Equal(t, "Weekly meeting", layout.Lines[0].Text)
		assert.Equal(t, 2, layout.Lines[0].Words)
		assert.Equal(t, Box{Left: 10, Top: 10, Width: 175, Height: 20}, layout.Lines[0].Box)
		assert.InDelta(t, (96.5+91.0)/2, layout.Lines[0].Confidence, 0.001)
		assert.Equal(t, "agenda", layout.Lines[1].Text)

		require.Len(t, layout.Paragraphs, 1)
		assert.Equal(t, "Weekly meeting agenda", layout.Paragraphs[0].Text)
		assert.Equal(t, Box{Left: 10, Top: 10, Width: 175, Height: 50}, layout.Paragraphs[0].Box)
	})

	t.Run("nothing qualifies", func(t *testing.T) {
		assert.Nil(t, page.Layout(99))
	})

	t.Run("new paragraph", func(t *testing.T) {
		p := &Page{Words: []Word{
			{Text: "Title", Confidence: 90, Block: 1, Paragraph: 1, Line: 1, Box: Box{Left: 0, Top: 0, Width: 50, Height: 10}},
			{Text: "Body", Confidence: 90, Block: 2, Paragraph: 1, Line: 1, Box: Box{Left: 0, Top: 40, Width: 40, Height: 10}},
		}}
		layout := p.Layout(60)
		require.NotNil(t, layout)
		assert.Len(t, layout.Lines, 2)
		require.Len(t, layout.Paragraphs, 2)
		assert.Equal(t, "Body", layout.Paragraphs[1].Text)
	})
}

func TestPageScale(t *testing.T) {
	p := &Page{Words: []Word{{Text: "x", Box: Box{Left: 30, Top: 60, Width: 90, Height: 30}}}}
	p.scale(3)
	assert.Equal(t, Box{Left: 10, Top: 20, Width: 30, Height: 10}, p.Words[0].Box)

	p.scale(1)
	assert.Equal(t, Box{Left: 10, Top: 20, Width: 30, Height: 10}, p.Words[0].Box)
}
