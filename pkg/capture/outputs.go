package capture

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/harun/alexandria/pkg/toolrun"
)

// Output is a display as reported by wlr-randr.
type Output struct {
	Name    string `json:"name"`
	Enabled bool   `json:"enabled"`
}

// OutputLister enumerates connected outputs.
type OutputLister interface {
	Outputs(ctx context.Context) ([]Output, error)
}

// WlrRandr lists outputs through `wlr-randr --json`.
type WlrRandr struct {
	runner toolrun.Runner
}

// NewWlrRandr creates an output lister
func NewWlrRandr(runner toolrun.Runner) *WlrRandr {
	return &WlrRandr{runner: runner}
}

// Outputs implements OutputLister
func (w *WlrRandr) Outputs(ctx context.Context) ([]Output, error) {
	res, err := w.runner.Run(ctx, toolrun.Request{
		Command: "wlr-randr",
		Args:    []string{"--json"},
		Timeout: 2 * time.Second,
	})
	if err != nil {
		return nil, err
	}

	var outputs []Output
	if err := json.Unmarshal(res.Stdout, &outputs); err != nil {
		return nil, fmt.Errorf("failed to parse wlr-randr output: %w", err)
	}
	return outputs, nil
}

// Selection is the configured output choice
type Selection struct {
	Mode   string // all, primary, specific
	Output string
	Region string
}

// ResolveTarget turns a selection into a concrete target. "primary" picks
// the first enabled output and degrades to all outputs when listing fails.
func ResolveTarget(ctx context.Context, sel Selection, lister OutputLister) (Target, error) {
	switch sel.Mode {
	case "", "all":
		return Target{Kind: TargetAll}, nil
	case "specific":
		if sel.Region != "" {
			r, err := ParseRegion(sel.Region)
			if err != nil {
				return Target{}, err
			}
			return Target{Kind: TargetRegion, Region: r}, nil
		}
		return Target{Kind: TargetOutput, Output: sel.Output}, nil
	case "primary":
		if lister == nil {
			return Target{Kind: TargetAll}, nil
		}
		outputs, err := lister.Outputs(ctx)
		if err != nil {
			return Target{Kind: TargetAll}, nil
		}
		for _, o := range outputs {
			if o.Enabled {
				return Target{Kind: TargetOutput, Output: o.Name}, nil
			}
		}
		return Target{Kind: TargetAll}, nil
	default:
		return Target{}, fmt.Errorf("unknown output selection %q", sel.Mode)
	}
}
