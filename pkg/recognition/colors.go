package recognition

import (
	"bytes"
	"fmt"
	"image"
	"slices"
	"strings"

	"golang.org/x/image/draw"
)

const (
	// colorSampleSide bounds the longer side of the image clustered for
	// dominant colours.
	colorSampleSide = 64
	colorIterations = 10
)

type rgb [3]float64

// DominantColors clusters the pixels of an encoded image into at most k
// colours and returns them as #rrggbb, most frequent first. Seeds are the
// centres of the most populated 4-bit-per-channel buckets, so the result is
// deterministic.
func DominantColors(data []byte, k int) ([]string, error) {
	if k <= 0 {
		return nil, nil
	}
	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	pixels := samplePixels(src)
	if len(pixels) == 0 {
		return nil, fmt.Errorf("image has no opaque pixels")
	}

	centers := seedCenters(pixels, k)
	assign := make([]int, len(pixels))
	counts := make([]int, len(centers))
	for iter := 0; iter < colorIterations; iter++ {
		changed := iter == 0
		for i, px := range pixels {
			best := nearest(centers, px)
			if best != assign[i] {
				assign[i] = best
				changed = true
			}
		}

		sums := make([]rgb, len(centers))
		clear(counts)
		for i, px := range pixels {
			c := assign[i]
			counts[c]++
			for ch := range px {
				sums[c][ch] += px[ch]
			}
		}
		for c := range centers {
			if counts[c] == 0 {
				continue
			}
			for ch := range sums[c] {
				centers[c][ch] = sums[c][ch] / float64(counts[c])
			}
		}
		if !changed {
			break
		}
	}

	type cluster struct {
		hex   string
		count int
	}
	clusters := make([]cluster, 0, len(centers))
	for c, center := range centers {
		if counts[c] == 0 {
			continue
		}
		clusters = append(clusters, cluster{hex: hexColor(center), count: counts[c]})
	}
	slices.SortFunc(clusters, func(a, b cluster) int {
		if a.count != b.count {
			return b.count - a.count
		}
		return strings.Compare(a.hex, b.hex)
	})

	out := make([]string, 0, len(clusters))
	for _, c := range clusters {
		if !slices.Contains(out, c.hex) {
			out = append(out, c.hex)
		}
	}
	return out, nil
}

// samplePixels downsamples src with nearest-neighbour so no blended
// colours appear, then returns its opaque pixels.
func samplePixels(src image.Image) []rgb {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	if w == 0 || h == 0 {
		return nil
	}
	if longest := max(w, h); longest > colorSampleSide {
		w = max(1, w*colorSampleSide/longest)
		h = max(1, h*colorSampleSide/longest)
	}

	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.NearestNeighbor.Scale(dst, dst.Bounds(), src, b, draw.Src, nil)

	pixels := make([]rgb, 0, w*h)
	for i := 0; i+3 < len(dst.Pix); i += 4 {
		if dst.Pix[i+3] < 128 {
			continue
		}
		pixels = append(pixels, rgb{float64(dst.Pix[i]), float64(dst.Pix[i+1]), float64(dst.Pix[i+2])})
	}
	return pixels
}

func seedCenters(pixels []rgb, k int) []rgb {
	type bucket struct {
		key   int
		count int
		sum   rgb
	}
	byKey := map[int]*bucket{}
	for _, px := range pixels {
		key := int(px[0])>>4<<8 | int(px[1])>>4<<4 | int(px[2])>>4
		bk, ok := byKey[key]
		if !ok {
			bk = &bucket{key: key}
			byKey[key] = bk
		}
		bk.count++
		for ch := range px {
			bk.sum[ch] += px[ch]
		}
	}

	buckets := make([]*bucket, 0, len(byKey))
	for _, bk := range byKey {
		buckets = append(buckets, bk)
	}
	slices.SortFunc(buckets, func(a, b *bucket) int {
		if a.count != b.count {
			return b.count - a.count
		}
		return a.key - b.key
	})

	centers := make([]rgb, 0, min(k, len(buckets)))
	for _, bk := range buckets[:min(k, len(buckets))] {
		n := float64(bk.count)
		centers = append(centers, rgb{bk.sum[0] / n, bk.sum[1] / n, bk.sum[2] / n})
	}
	return centers
}

func nearest(centers []rgb, px rgb) int {
	best, bestDist := 0, -1.0
	for c, center := range centers {
		var d float64
		for ch := range px {
			diff := px[ch] - center[ch]
			d += diff * diff
		}
		if bestDist < 0 || d < bestDist {
			best, bestDist = c, d
		}
	}
	return best
}

func hexColor(c rgb) string {
	return fmt.Sprintf("#%02x%02x%02x", clampByte(c[0]), clampByte(c[1]), clampByte(c[2]))
}

func clampByte(v float64) uint8 {
	switch {
	case v <= 0:
		return 0
	case v >= 255:
		return 255
	default:
		return uint8(v + 0.5)
	}
}
