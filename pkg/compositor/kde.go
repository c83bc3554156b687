package compositor

import (
	"context"
	"fmt"
	"strings"

	"github.com/harun/alexandria/pkg/toolrun"
)

const kdotool = "kdotool"

// KDE resolves the active window through KWin's scripting interface,
// driven by kdotool.
type KDE struct {
	runner toolrun.Runner
}

// NewKDE creates a KDE adapter
func NewKDE(runner toolrun.Runner) *KDE {
	return &KDE{runner: runner}
}

// Kind implements Adapter
func (k *KDE) Kind() Kind {
	return KindKDE
}

// ResolveActiveWindow implements Adapter
func (k *KDE) ResolveActiveWindow(ctx context.Context) (*WindowContext, error) {
	id, err := k.run(ctx, "getactivewindow")
	if err != nil {
		return nil, err
	}
	if id == "" {
		return &WindowContext{}, nil
	}

	wc := &WindowContext{IsFocused: true}
	if title, err := k.run(ctx, "getwindowname", id); err == nil {
		wc.Title = &title
	}
	if class, err := k.run(ctx, "getwindowclassname", id); err == nil {
		wc.AppID = optional(class)
		wc.Class = wc.AppID
	}
	if desktop, err := k.run(ctx, "get_desktop"); err == nil {
		wc.Workspace = optional(desktop)
	}

	return wc, nil
}

func (k *KDE) run(ctx context.Context, args ...string) (string, error) {
	res, err := k.runner.Run(ctx, toolrun.Request{Command: kdotool, Args: args})
	if err != nil {
		return "", fmt.Errorf("kdotool %s: %w", args[0], err)
	}
	return strings.TrimSpace(string(res.Stdout)), nil
}
