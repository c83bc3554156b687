package compositor

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/godbus/dbus/v5"
)

// GNOME Shell no longer allows arbitrary Eval, so window data comes from
// the window-calls extension's D-Bus interface.
const (
	gnomeBusName    = "org.gnome.Shell"
	gnomeObjectPath = "/org/gnome/Shell/Extensions/Windows"
	gnomeInterface  = "org.gnome.Shell.Extensions.Windows"
)

// WindowsBus is the subset of the extension interface the adapter uses.
type WindowsBus interface {
	List(ctx context.Context) (string, error)
	Title(ctx context.Context, id uint32) (string, error)
}

// Gnome queries GNOME Shell over the session bus.
type Gnome struct {
	bus WindowsBus
}

// NewGnome creates the adapter. A nil bus uses the session bus.
func NewGnome(bus WindowsBus) *Gnome {
	if bus == nil {
		bus = sessionWindowsBus{}
	}
	return &Gnome{bus: bus}
}

// Kind implements Adapter
func (g *Gnome) Kind() Kind {
	return KindGnome
}

type gnomeWindow struct {
	ID      uint32 `json:"id"`
	WMClass string `json:"wm_class"`
	Focus   bool   `json:"focus"`
	X       int    `json:"x"`
	Y       int    `json:"y"`
	Width   int    `json:"width"`
	Height  int    `json:"height"`
}

// ResolveActiveWindow lists windows and picks the focused one. The
// extension does not expose workspace names, so Workspace stays absent.
func (g *Gnome) ResolveActiveWindow(ctx context.Context) (*WindowContext, error) {
	payload, err := g.bus.List(ctx)
	if err != nil {
		return nil, err
	}

	var windows []gnomeWindow
	if err := json.Unmarshal([]byte(payload), &windows); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	for _, w := range windows {
		if !w.Focus {
			continue
		}

		wc := &WindowContext{
			AppID:     optional(w.WMClass),
			Class:     optional(w.WMClass),
			IsFocused: true,
		}
		if w.Width > 0 && w.Height > 0 {
			wc.Geometry = &Rect{X: w.X, Y: w.Y, Width: w.Width, Height: w.Height}
		}
		if title, err := g.bus.Title(ctx, w.ID); err == nil {
			wc.Title = &title
		}
		return wc, nil
	}

	return &WindowContext{}, nil
}

type sessionWindowsBus struct{}

func (sessionWindowsBus) call(ctx context.Context, method string, args ...any) (string, error) {
	conn, err := dbus.ConnectSessionBus(dbus.WithContext(ctx))
	if err != nil {
		return "", fmt.Errorf("failed to connect to session bus: %w", err)
	}
	defer conn.Close()

	var out string
	obj := conn.Object(gnomeBusName, gnomeObjectPath)
	if err := obj.CallWithContext(ctx, gnomeInterface+"."+method, 0, args...).Store(&out); err != nil {
		return "", fmt.Errorf("%s.%s failed: %w", gnomeInterface, method, err)
	}
	return out, nil
}

func (b sessionWindowsBus) List(ctx context.Context) (string, error) {
	return b.call(ctx, "List")
}

func (b sessionWindowsBus) Title(ctx context.Context, id uint32) (string, error) {
	return b.call(ctx, "GetTitle", id)
}
