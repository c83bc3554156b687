// Package compositor resolves the active window and workspace from the
// running Wayland compositor.
package compositor

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/harun/alexandria/pkg/toolrun"
	"github.com/rs/zerolog"
)

// DefaultTimeout bounds a single active-window query.
const DefaultTimeout = 2 * time.Second

// Kind names a compositor adapter variant
type Kind string

const (
	KindAuto     Kind = "auto"
	KindSway     Kind = "sway"
	KindHyprland Kind = "hyprland"
	KindGnome    Kind = "gnome"
	KindKDE      Kind = "kde"
	KindNone     Kind = "none"
)

// Rect is a window's position and size in layout coordinates.
type Rect struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Area returns the rectangle's pixel area.
func (r Rect) Area() int {
	return r.Width * r.Height
}

// WindowContext describes the focused window at capture time. A nil
// field means the adapter could not resolve it; an empty string is a
// resolved empty value.
type WindowContext struct {
	Title *string
	AppID *string
	// Class is the window class as the compositor reports it (the X11
	// WM_CLASS for XWayland clients). It often equals AppID.
	Class     *string
	Workspace *string
	Geometry  *Rect
	IsFocused bool
}

// Empty reports whether nothing at all was resolved.
func (w *WindowContext) Empty() bool {
	return w == nil || (w.Title == nil && w.AppID == nil && w.Class == nil && w.Workspace == nil && w.Geometry == nil)
}

// Adapter resolves the active window for one compositor.
type Adapter interface {
	Kind() Kind
	ResolveActiveWindow(ctx context.Context) (*WindowContext, error)
}

// Options configures adapter construction
type Options struct {
	Timeout time.Duration
	Runner  toolrun.Runner
	// Env looks up environment variables, os.Getenv in production.
	Env    func(string) string
	Logger zerolog.Logger
}

// Detect picks the adapter variant from the session environment.
func Detect(env func(string) string) Kind {
	if env("SWAYSOCK") != "" {
		return KindSway
	}
	if env("HYPRLAND_INSTANCE_SIGNATURE") != "" {
		return KindHyprland
	}

	desktop := strings.ToLower(env("XDG_CURRENT_DESKTOP"))
	switch {
	case strings.Contains(desktop, "gnome"):
		return KindGnome
	case strings.Contains(desktop, "kde"), strings.Contains(desktop, "plasma"):
		return KindKDE
	case strings.Contains(desktop, "sway"):
		return KindSway
	case strings.Contains(desktop, "hyprland"):
		return KindHyprland
	}

	return KindNone
}

// New builds the adapter for kind, resolving KindAuto through Detect. The
// result is wrapped so every query honours opts.Timeout.
func New(kind Kind, opts Options) (Adapter, error) {
	if opts.Env == nil {
		return nil, fmt.Errorf("compositor: Env lookup is required")
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if kind == KindAuto || kind == "" {
		kind = Detect(opts.Env)
	}

	var inner Adapter
	switch kind {
	case KindSway:
		inner = NewSway(opts.Env("SWAYSOCK"))
	case KindHyprland:
		inner = NewHyprland(HyprlandSocketPath(opts.Env))
	case KindGnome:
		inner = NewGnome(nil)
	case KindKDE:
		if opts.Runner == nil {
			return nil, fmt.Errorf("compositor: kde adapter needs a tool runner")
		}
		inner = NewKDE(opts.Runner)
	case KindNone:
		inner = Noop{}
	default:
		return nil, fmt.Errorf("compositor: unknown kind %q", kind)
	}

	opts.Logger.Debug().Str("compositor", string(kind)).Msg("Compositor adapter selected")

	return WithTimeout(inner, opts.Timeout), nil
}

// WithTimeout wraps an adapter so that a slow or hung compositor yields
// ErrContextUnavailable after d instead of stalling the caller.
func WithTimeout(a Adapter, d time.Duration) Adapter {
	return &guarded{inner: a, timeout: d}
}

type guarded struct {
	inner   Adapter
	timeout time.Duration
}

func (g *guarded) Kind() Kind {
	return g.inner.Kind()
}

func (g *guarded) ResolveActiveWindow(ctx context.Context) (*WindowContext, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	type outcome struct {
		wc  *WindowContext
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		wc, err := g.inner.ResolveActiveWindow(ctx)
		done <- outcome{wc, err}
	}()

	select {
	case out := <-done:
		if out.err != nil {
			return nil, unavailable(g.inner.Kind(), out.err)
		}
		if out.wc == nil {
			return &WindowContext{}, nil
		}
		return out.wc, nil
	case <-ctx.Done():
		return nil, unavailable(g.inner.Kind(), ctx.Err())
	}
}

// optional returns nil for blank strings.
func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
