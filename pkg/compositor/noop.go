package compositor

import "context"

// Noop is the fallback adapter for unknown compositors. It always
// succeeds with an empty context.
type Noop struct{}

// Kind implements Adapter
func (Noop) Kind() Kind {
	return KindNone
}

// ResolveActiveWindow implements Adapter
func (Noop) ResolveActiveWindow(context.Context) (*WindowContext, error) {
	return &WindowContext{}, nil
}
