package logging

import (
	"context"
	"log/slog"
	"sync"
)

// ContextProvider is a function that returns dynamic context attributes.
type ContextProvider func() []slog.Attr

// ContextHandler wraps another handler and injects dynamic context attributes.
type ContextHandler struct {
	inner    slog.Handler
	provider ContextProvider
}

// NewContextHandler creates a handler that adds dynamic context to each record.
func NewContextHandler(inner slog.Handler, provider ContextProvider) *ContextHandler {
	return &ContextHandler{
		inner:    inner,
		provider: provider,
	}
}

// Enabled delegates to the inner handler.
func (h *ContextHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

// Handle adds dynamic context attributes and delegates to the inner handler.
func (h *ContextHandler) Handle(ctx context.Context, r slog.Record) error {
	if h.provider != nil {
		r.AddAttrs(h.provider()...)
	}
	return h.inner.Handle(ctx, r)
}

// WithAttrs returns a new ContextHandler with the given attributes.
func (h *ContextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &ContextHandler{
		inner:    h.inner.WithAttrs(attrs),
		provider: h.provider,
	}
}

// WithGroup returns a new ContextHandler with the given group.
func (h *ContextHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	return &ContextHandler{
		inner:    h.inner.WithGroup(name),
		provider: h.provider,
	}
}

// RunContext tracks the session and step of the running simulation so
// that every log line can carry them.
type RunContext struct {
	mu      sync.RWMutex
	session string
	step    int
}

// SetSession records the current session id.
func (c *RunContext) SetSession(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.session = id
}

// SetStep records the current step.
func (c *RunContext) SetStep(step int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.step = step
}

// Attrs is a ContextProvider. Unset values are omitted.
func (c *RunContext) Attrs() []slog.Attr {
	c.mu.RLock()
	defer c.mu.RUnlock()

	attrs := make([]slog.Attr, 0, 2)
	if c.session != "" {
		attrs = append(attrs, slog.String("session", c.session))
	}
	if c.step > 0 {
		attrs = append(attrs, slog.Int("step", c.step))
	}
	return attrs
}
