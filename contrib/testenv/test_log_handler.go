package testenv

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
)

// TestLogHandler is a slog.Handler that prints the message index (starting
// from 0), level and message, without the timestamp, so that log output can
// be asserted in examples. Handlers derived with WithAttrs or WithGroup share
// the index and may be used from several goroutines.
type TestLogHandler struct {
	counter             *logCounter
	attrs               []slog.Attr
	groups              []string
	ignoreErrorPrefixes []string
	ignoreDebug         bool
}

type logCounter struct {
	mu    sync.Mutex
	index int
}

func NewTestLogHandler() *TestLogHandler {
	return &TestLogHandler{counter: &logCounter{}}
}

// NewTestLogHandlerWithOptions creates a TestLogHandler with custom options
func NewTestLogHandlerWithOptions(opts ...TestLogHandlerOption) *TestLogHandler {
	h := NewTestLogHandler()
	for _, opt := range opts {
		opt(h)
	}
	return h
}

type TestLogHandlerOption func(*TestLogHandler)

// WithIgnoreErrorPrefixes drops ERROR records whose message has one of prefixes.
func WithIgnoreErrorPrefixes(prefixes ...string) TestLogHandlerOption {
	return func(h *TestLogHandler) {
		h.ignoreErrorPrefixes = append(h.ignoreErrorPrefixes, prefixes...)
	}
}

// WithIgnoreDebug drops DEBUG records.
func WithIgnoreDebug() TestLogHandlerOption {
	return func(h *TestLogHandler) {
		h.ignoreDebug = true
	}
}

//nolint:gocritic
func (h *TestLogHandler) Handle(_ context.Context, r slog.Record) error {
	if r.Level == slog.LevelDebug && h.ignoreDebug {
		return nil
	}
	if r.Level == slog.LevelError {
		for _, prefix := range h.ignoreErrorPrefixes {
			if strings.HasPrefix(r.Message, prefix) {
				return nil
			}
		}
	}

	attrs := h.attrsToString(&r)

	h.counter.mu.Lock()
	defer h.counter.mu.Unlock()
	if attrs != "" {
		fmt.Printf("[%d] %s: %s %s\n", h.counter.index, r.Level, r.Message, attrs)
	} else {
		fmt.Printf("[%d] %s: %s\n", h.counter.index, r.Level, r.Message)
	}
	h.counter.index++
	return nil
}

func (h *TestLogHandler) attrsToString(r *slog.Record) string {
	parts := make([]string, 0, len(h.attrs)+r.NumAttrs())
	for _, attr := range h.attrs {
		parts = append(parts, formatAttr(attr, ""))
	}

	prefix := h.groupPrefix()
	r.Attrs(func(a slog.Attr) bool {
		parts = append(parts, formatAttr(a, prefix))
		return true
	})
	return strings.Join(parts, ", ")
}

func (h *TestLogHandler) groupPrefix() string {
	if len(h.groups) == 0 {
		return ""
	}
	return strings.Join(h.groups, ".") + "."
}

func formatAttr(a slog.Attr, prefix string) string {
	if a.Value.Kind() == slog.KindGroup {
		groupPrefix := prefix + a.Key + "."
		parts := make([]string, 0, len(a.Value.Group()))
		for _, ga := range a.Value.Group() {
			parts = append(parts, formatAttr(ga, groupPrefix))
		}
		return strings.Join(parts, ", ")
	}
	return fmt.Sprintf("%s%s=%v", prefix, a.Key, a.Value)
}

func (h *TestLogHandler) Enabled(_ context.Context, _ slog.Level) bool {
	return true
}

func (h *TestLogHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	prefix := h.groupPrefix()
	newAttrs := make([]slog.Attr, 0, len(attrs))
	for _, attr := range attrs {
		newAttrs = append(newAttrs, slog.Attr{Key: prefix + attr.Key, Value: attr.Value})
	}

	c := *h
	c.attrs = append(h.attrs[:len(h.attrs):len(h.attrs)], newAttrs...)
	return &c
}

func (h *TestLogHandler) WithGroup(name string) slog.Handler {
	// An empty name returns the receiver as per slog documentation.
	if name == "" {
		return h
	}
	c := *h
	c.groups = append(h.groups[:len(h.groups):len(h.groups)], name)
	return &c
}
