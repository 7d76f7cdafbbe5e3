package utils

import (
	"context"
	"log/slog"
	"sync"
)

// FanoutHandler forwards records to every attached handler. Handlers can be
// attached after construction, so a file sink whose location depends on
// parsed flags can join the console sink late.
type FanoutHandler struct {
	mu       sync.RWMutex
	handlers []slog.Handler
}

func NewFanoutHandler(handlers ...slog.Handler) *FanoutHandler {
	return &FanoutHandler{handlers: handlers}
}

// Attach adds a handler. Records logged from other goroutines during the
// call go to either the old or the new set.
func (h *FanoutHandler) Attach(handler slog.Handler) {
	h.mu.Lock()
	h.handlers = append(h.handlers, handler)
	h.mu.Unlock()
}

func (h *FanoutHandler) snapshot() []slog.Handler {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.handlers
}

func (h *FanoutHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, handler := range h.snapshot() {
		if handler.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (h *FanoutHandler) Handle(ctx context.Context, r slog.Record) error {
	var firstErr error
	for _, handler := range h.snapshot() {
		if !handler.Enabled(ctx, r.Level) {
			continue
		}
		if err := handler.Handle(ctx, r.Clone()); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (h *FanoutHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	current := h.snapshot()
	next := make([]slog.Handler, len(current))
	for i, handler := range current {
		next[i] = handler.WithAttrs(attrs)
	}
	return NewFanoutHandler(next...)
}

func (h *FanoutHandler) WithGroup(name string) slog.Handler {
	current := h.snapshot()
	next := make([]slog.Handler, len(current))
	for i, handler := range current {
		next[i] = handler.WithGroup(name)
	}
	return NewFanoutHandler(next...)
}
