package recognition

import (
	"bytes"
	"fmt"
	"image"
	"image/png"

	// register decoders for captures that are not PNG
	_ "image/jpeg"

	"golang.org/x/image/draw"
)

// minOCRWidth is the width below which captures are upscaled; tesseract
// misses small UI text at native resolution.
const minOCRWidth = 1000

// Preprocess converts an encoded image to a contrast-stretched grayscale
// PNG, upscaling narrow captures.
func Preprocess(data []byte) ([]byte, error) {
	out, _, err := prepare(data)
	return out, err
}

// prepare is Preprocess that also reports the integer upscale factor.
func prepare(data []byte) ([]byte, int, error) {
	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, 0, fmt.Errorf("failed to decode image: %w", err)
	}

	bounds := src.Bounds()
	if bounds.Empty() {
		return nil, 0, fmt.Errorf("image has no pixels")
	}

	w, h := bounds.Dx(), bounds.Dy()
	factor := 1
	if w < minOCRWidth {
		factor = min((minOCRWidth+w-1)/w, 4)
		w, h = w*factor, h*factor
	}

	gray := image.NewGray(image.Rect(0, 0, w, h))
	if w == bounds.Dx() {
		draw.Draw(gray, gray.Bounds(), src, bounds.Min, draw.Src)
	} else {
		draw.CatmullRom.Scale(gray, gray.Bounds(), src, bounds, draw.Src, nil)
	}

	stretchContrast(gray)

	var buf bytes.Buffer
	enc := png.Encoder{CompressionLevel: png.BestSpeed}
	if err := enc.Encode(&buf, gray); err != nil {
		return nil, 0, fmt.Errorf("failed to encode image: %w", err)
	}
	return buf.Bytes(), factor, nil
}

// stretchContrast maps the 1st..99th luminance percentile onto 0..255.
func stretchContrast(img *image.Gray) {
	var hist [256]int
	for _, v := range img.Pix {
		hist[v]++
	}

	total := len(img.Pix)
	cut := total / 100
	lo, hi := 0, 255
	for acc := 0; lo < 255; lo++ {
		acc += hist[lo]
		if acc > cut {
			break
		}
	}
	for acc := 0; hi > 0; hi-- {
		acc += hist[hi]
		if acc > cut {
			break
		}
	}
	if hi <= lo {
		return
	}

	var lut [256]uint8
	span := hi - lo
	for i := range lut {
		switch {
		case i <= lo:
			lut[i] = 0
		case i >= hi:
			lut[i] = 255
		default:
			lut[i] = uint8((i - lo) * 255 / span)
		}
	}
	for i, v := range img.Pix {
		img.Pix[i] = lut[v]
	}
}
