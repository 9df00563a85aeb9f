package logging

import (
	"context"
	"log/slog"
	"sync"
)

// componentSet is the set of enabled components; nil enables all.
type componentSet struct {
	mu      sync.RWMutex
	allowed map[string]bool
}

func (s *componentSet) set(components []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(components) == 0 {
		s.allowed = nil
		return
	}
	s.allowed = make(map[string]bool, len(components))
	for _, c := range components {
		s.allowed[c] = true
	}
}

func (s *componentSet) enabled(component string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.allowed == nil || s.allowed[component]
}

// componentHandler drops records of components excluded by the filter.
// The filter is consulted per record so Initialize can change it later.
type componentHandler struct {
	inner     slog.Handler
	component string
}

func (h *componentHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return filter.enabled(h.component) && h.inner.Enabled(ctx, level)
}

func (h *componentHandler) Handle(ctx context.Context, r slog.Record) error {
	if !filter.enabled(h.component) {
		return nil
	}
	return h.inner.Handle(ctx, r)
}

func (h *componentHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &componentHandler{inner: h.inner.WithAttrs(attrs), component: h.component}
}

func (h *componentHandler) WithGroup(name string) slog.Handler {
	return &componentHandler{inner: h.inner.WithGroup(name), component: h.component}
}

// fanout sends each record to every handler enabled at its level. Used when
// console and file levels differ.
type fanout []slog.Handler

func (f fanout) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range f {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (f fanout) Handle(ctx context.Context, r slog.Record) error {
	for _, h := range f {
		if !h.Enabled(ctx, r.Level) {
			continue
		}
		if err := h.Handle(ctx, r.Clone()); err != nil {
			return err
		}
	}
	return nil
}

func (f fanout) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := make(fanout, len(f))
	for i, h := range f {
		out[i] = h.WithAttrs(attrs)
	}
	return out
}

func (f fanout) WithGroup(name string) slog.Handler {
	out := make(fanout, len(f))
	for i, h := range f {
		out[i] = h.WithGroup(name)
	}
	return out
}
