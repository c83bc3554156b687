package compositor

import (
	"context"
	"fmt"

	sway "github.com/joshuarubin/go-sway"
)

// Sway queries the sway IPC socket.
type Sway struct {
	socket string
}

// NewSway creates an adapter talking to the socket at path (usually $SWAYSOCK).
func NewSway(socket string) *Sway {
	return &Sway{socket: socket}
}

// Kind implements Adapter
func (s *Sway) Kind() Kind {
	return KindSway
}

// ResolveActiveWindow walks the layout tree for the focused container and
// the workspace that holds it.
func (s *Sway) ResolveActiveWindow(ctx context.Context) (*WindowContext, error) {
	if s.socket == "" {
		return nil, fmt.Errorf("sway socket path is empty")
	}

	// the client closes its connection once ctx is done
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	client, err := sway.New(ctx, sway.WithSocketPath(s.socket))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to sway: %w", err)
	}

	root, err := client.GetTree(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: get_tree: %v", ErrMalformedResponse, err)
	}
	if root == nil {
		return nil, fmt.Errorf("%w: empty tree", ErrMalformedResponse)
	}

	node, workspace := findFocused(root, "")
	if node == nil {
		return &WindowContext{}, nil
	}

	wc := &WindowContext{}
	if workspace != "" {
		wc.Workspace = &workspace
	}

	switch string(node.Type) {
	case "workspace":
		// empty workspace has focus, no window
		wc.Workspace = optional(node.Name)
		return wc, nil
	case "con", "floating_con":
	default:
		return wc, nil
	}

	title := node.Name
	wc.IsFocused = true
	wc.Title = &title
	if node.WindowProperties != nil {
		wc.Class = optional(node.WindowProperties.Class)
	}
	switch {
	case node.AppID != nil && *node.AppID != "":
		appID := *node.AppID
		wc.AppID = &appID
	default:
		wc.AppID = wc.Class
	}
	if node.Rect.Width > 0 && node.Rect.Height > 0 {
		wc.Geometry = &Rect{
			X:      int(node.Rect.X),
			Y:      int(node.Rect.Y),
			Width:  int(node.Rect.Width),
			Height: int(node.Rect.Height),
		}
	}

	return wc, nil
}

func findFocused(n *sway.Node, workspace string) (*sway.Node, string) {
	if string(n.Type) == "workspace" && n.Name != "" {
		workspace = n.Name
	}
	if n.Focused {
		return n, workspace
	}
	for _, child := range n.Nodes {
		if found, ws := findFocused(child, workspace); found != nil {
			return found, ws
		}
	}
	for _, child := range n.FloatingNodes {
		if found, ws := findFocused(child, workspace); found != nil {
			return found, ws
		}
	}
	return nil, ""
}
