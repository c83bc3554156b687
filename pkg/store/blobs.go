package store

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/image/draw"
)

const (
	imagesDir     = "images"
	thumbnailsDir = "thumbnails"
)

// Sealer transforms blobs on their way to and from disk. It is the hook for
// encryption at rest; the store only ever sees sealed bytes on disk.
type Sealer interface {
	Seal(id string, plain []byte) ([]byte, error)
	Open(id string, sealed []byte) ([]byte, error)
}

// PlainSealer stores blobs unchanged.
type PlainSealer struct{}

func (PlainSealer) Seal(_ string, plain []byte) ([]byte, error)  { return plain, nil }
func (PlainSealer) Open(_ string, sealed []byte) ([]byte, error) { return sealed, nil }

func imageRelPath(id, format string) string {
	return filepath.Join(imagesDir, id+"."+imageExt(format))
}

func thumbnailRelPath(id string) string {
	return filepath.Join(thumbnailsDir, id+".jpg")
}

func imageExt(format string) string {
	format = strings.ToLower(format)
	if format == "" {
		return "png"
	}
	for _, r := range format {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') {
			return "png"
		}
	}
	return format
}

// writeBlob writes data to rel under root via a temp file and rename so
// that a visible file is always complete. Returns the bytes written.
func writeBlob(root, rel string, data []byte) (int64, error) {
	path := filepath.Join(root, rel)
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return 0, fmt.Errorf("create %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return 0, fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return 0, fmt.Errorf("write %s: %w", rel, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return 0, fmt.Errorf("sync %s: %w", rel, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return 0, fmt.Errorf("close %s: %w", rel, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return 0, fmt.Errorf("rename %s: %w", rel, err)
	}
	return int64(len(data)), nil
}

// removeBlobs deletes files relative to root, ignoring ones already gone.
func removeBlobs(root string, rels ...string) error {
	var firstErr error
	for _, rel := range rels {
		if rel == "" {
			continue
		}
		if err := os.Remove(filepath.Join(root, rel)); err != nil && !os.IsNotExist(err) && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// imageSize reads dimensions from the image header without decoding pixels.
func imageSize(data []byte) (int, int, bool) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return 0, 0, false
	}
	return cfg.Width, cfg.Height, true
}

// thumbnail scales the image to width pixels wide and encodes it as JPEG.
// Images already narrower than width keep their size.
func thumbnail(data []byte, width int) ([]byte, error) {
	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}

	b := src.Bounds()
	if b.Dx() == 0 || b.Dy() == 0 {
		return nil, fmt.Errorf("empty image")
	}

	w, h := b.Dx(), b.Dy()
	if width > 0 && w > width {
		h = h * width / w
		w = width
		if h < 1 {
			h = 1
		}
	}

	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), src, b, draw.Src, nil)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: 75}); err != nil {
		return nil, fmt.Errorf("encode thumbnail: %w", err)
	}
	return buf.Bytes(), nil
}
