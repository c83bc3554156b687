// Package capture grabs screen pixels through an external screenshot tool.
package capture

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// TargetKind selects what part of the screen is captured
type TargetKind int

const (
	// TargetAll captures every output
	TargetAll TargetKind = iota
	// TargetOutput captures a single named output
	TargetOutput
	// TargetRegion captures a rectangle in layout coordinates
	TargetRegion
)

func (k TargetKind) String() string {
	switch k {
	case TargetAll:
		return "all"
	case TargetOutput:
		return "output"
	case TargetRegion:
		return "region"
	default:
		return "unknown"
	}
}

// Region is a rectangle in compositor layout coordinates.
type Region struct {
	X, Y          int
	Width, Height int
}

// String renders the region in the "x,y wxh" form the capture tool expects.
func (r Region) String() string {
	return fmt.Sprintf("%d,%d %dx%d", r.X, r.Y, r.Width, r.Height)
}

// ParseRegion parses "x,y wxh".
func ParseRegion(s string) (Region, error) {
	pos, size, ok := strings.Cut(strings.TrimSpace(s), " ")
	if !ok {
		return Region{}, fmt.Errorf("invalid region %q", s)
	}
	xs, ys, ok1 := strings.Cut(pos, ",")
	ws, hs, ok2 := strings.Cut(size, "x")
	if !ok1 || !ok2 {
		return Region{}, fmt.Errorf("invalid region %q", s)
	}

	var r Region
	var err error
	if r.X, err = strconv.Atoi(xs); err != nil {
		return Region{}, fmt.Errorf("invalid region x: %w", err)
	}
	if r.Y, err = strconv.Atoi(ys); err != nil {
		return Region{}, fmt.Errorf("invalid region y: %w", err)
	}
	if r.Width, err = strconv.Atoi(ws); err != nil || r.Width <= 0 {
		return Region{}, fmt.Errorf("invalid region width in %q", s)
	}
	if r.Height, err = strconv.Atoi(hs); err != nil || r.Height <= 0 {
		return Region{}, fmt.Errorf("invalid region height in %q", s)
	}
	return r, nil
}

// Target describes what to capture
type Target struct {
	Kind   TargetKind
	Output string
	Region Region
}

// Image is an encoded screenshot held in memory. Nothing is written to
// disk by this package.
type Image struct {
	Data   []byte
	Format string // png
}

// Backend captures a target.
type Backend interface {
	Capture(ctx context.Context, target Target) (*Image, error)
}

// Reason classifies a capture failure
type Reason string

const (
	// ReasonTimeout means the capture tool ran past its deadline and was killed.
	ReasonTimeout Reason = "timeout"
	// ReasonExit means the capture tool exited non-zero.
	ReasonExit Reason = "exit"
	// ReasonEmpty means the tool succeeded but wrote no image bytes.
	ReasonEmpty Reason = "empty"
	// ReasonMissing means the capture tool is not installed or not on PATH.
	ReasonMissing Reason = "missing"
	// ReasonInvalid means the request or the tool output was unusable, such
	// as an output target without a name or bytes that are not a PNG.
	ReasonInvalid Reason = "invalid"
)

// ErrCaptureFailed matches every *Failure via errors.Is.
var ErrCaptureFailed = errors.New("capture failed")

// Failure is returned when no image could be produced
type Failure struct {
	Reason Reason
	Stderr string
	Err    error
}

func (f *Failure) Error() string {
	msg := fmt.Sprintf("capture failed (%s)", f.Reason)
	if f.Err != nil {
		msg += ": " + f.Err.Error()
	}
	return msg
}

// Is makes errors.Is(err, ErrCaptureFailed) hold for any Failure.
func (f *Failure) Is(target error) bool {
	return target == ErrCaptureFailed
}

func (f *Failure) Unwrap() error {
	return f.Err
}
