package compositor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
)

// replies larger than this are treated as malformed
const hyprMaxReply = 64 << 20

// Hyprland queries the hyprland request socket.
type Hyprland struct {
	socket string
}

// NewHyprland creates an adapter for the request socket at path.
func NewHyprland(socket string) *Hyprland {
	return &Hyprland{socket: socket}
}

// HyprlandSocketPath locates the request socket for the running instance.
// Newer releases keep it under $XDG_RUNTIME_DIR/hypr, older ones under /tmp/hypr.
func HyprlandSocketPath(env func(string) string) string {
	sig := env("HYPRLAND_INSTANCE_SIGNATURE")
	if sig == "" {
		return ""
	}

	if runtime := env("XDG_RUNTIME_DIR"); runtime != "" {
		path := filepath.Join(runtime, "hypr", sig, ".socket.sock")
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return filepath.Join(os.TempDir(), "hypr", sig, ".socket.sock")
}

// Kind implements Adapter
func (h *Hyprland) Kind() Kind {
	return KindHyprland
}

type hyprWindow struct {
	Address   string `json:"address"`
	Title     string `json:"title"`
	Class     string `json:"class"`
	Initial   string `json:"initialClass"`
	At        []int  `json:"at"`
	Size      []int  `json:"size"`
	Workspace struct {
		Name string `json:"name"`
	} `json:"workspace"`
}

type hyprWorkspace struct {
	Name string `json:"name"`
}

// ResolveActiveWindow asks for the active window, falling back to the
// active workspace when nothing is focused.
func (h *Hyprland) ResolveActiveWindow(ctx context.Context) (*WindowContext, error) {
	payload, err := h.request(ctx, "j/activewindow")
	if err != nil {
		return nil, err
	}

	var win hyprWindow
	if err := json.Unmarshal(payload, &win); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	if win.Address == "" {
		wc := &WindowContext{}
		if payload, err := h.request(ctx, "j/activeworkspace"); err == nil {
			var ws hyprWorkspace
			if json.Unmarshal(payload, &ws) == nil {
				wc.Workspace = optional(ws.Name)
			}
		}
		return wc, nil
	}

	title := win.Title
	wc := &WindowContext{
		Title:     &title,
		AppID:     optional(win.Class),
		Class:     optional(win.Initial),
		Workspace: optional(win.Workspace.Name),
		IsFocused: true,
	}
	if wc.Class == nil {
		wc.Class = wc.AppID
	}
	if len(win.At) == 2 && len(win.Size) == 2 && win.Size[0] > 0 && win.Size[1] > 0 {
		wc.Geometry = &Rect{X: win.At[0], Y: win.At[1], Width: win.Size[0], Height: win.Size[1]}
	}

	return wc, nil
}

func (h *Hyprland) request(ctx context.Context, command string) ([]byte, error) {
	if h.socket == "" {
		return nil, fmt.Errorf("hyprland socket path is empty")
	}

	var d net.Dialer
	conn, err := d.DialContext(ctx, "unix", h.socket)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to hyprland: %w", err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	if _, err := conn.Write([]byte(command)); err != nil {
		return nil, fmt.Errorf("failed to send hyprland request: %w", err)
	}

	// The compositor closes the connection after replying.
	payload, err := io.ReadAll(io.LimitReader(conn, hyprMaxReply))
	if err != nil {
		return nil, fmt.Errorf("failed to read hyprland reply: %w", err)
	}

	payload = bytes.TrimSpace(payload)
	if len(payload) == 0 || payload[0] != '{' {
		return nil, fmt.Errorf("%w: %q", ErrMalformedResponse, truncate(payload, 64))
	}

	return payload, nil
}

func truncate(b []byte, n int) []byte {
	if len(b) > n {
		return b[:n]
	}
	return b
}
