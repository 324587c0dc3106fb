// Package logging provides a slog handler that mirrors WARN and ERROR
// records into the event store as system events (events with no user), so
// operational problems are durable alongside the notifications themselves.
package logging

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// systemEventType is the event type title under which mirrored log records
// are stored.
const systemEventType = "system-log"

// EventRecorder persists a system event. Implemented by service.EventService.
type EventRecorder interface {
	RecordSystemEvent(ctx context.Context, typeTitle, text string) error
}

// StoreHandler is a slog.Handler that wraps another handler and also writes
// records at or above a threshold level to the event store.
type StoreHandler struct {
	inner    slog.Handler
	recorder EventRecorder
	level    slog.Level
}

// NewStoreHandler creates a StoreHandler that mirrors WARN and above.
func NewStoreHandler(inner slog.Handler, recorder EventRecorder) *StoreHandler {
	return &StoreHandler{
		inner:    inner,
		recorder: recorder,
		level:    slog.LevelWarn,
	}
}

// Enabled implements slog.Handler.
func (h *StoreHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

// Handle implements slog.Handler.
func (h *StoreHandler) Handle(ctx context.Context, r slog.Record) error {
	if err := h.inner.Handle(ctx, r); err != nil {
		return err
	}

	if r.Level >= h.level && h.recorder != nil {
		// Background context so the record survives request cancellation.
		_ = h.recorder.RecordSystemEvent(context.Background(), systemEventType, formatRecord(r))
	}

	return nil
}

// WithAttrs implements slog.Handler.
func (h *StoreHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &StoreHandler{inner: h.inner.WithAttrs(attrs), recorder: h.recorder, level: h.level}
}

// WithGroup implements slog.Handler.
func (h *StoreHandler) WithGroup(name string) slog.Handler {
	return &StoreHandler{inner: h.inner.WithGroup(name), recorder: h.recorder, level: h.level}
}

// formatRecord flattens a log record into the short annotation stored on
// the event.
func formatRecord(r slog.Record) string {
	var sb strings.Builder
	sb.WriteString(r.Level.String())
	sb.WriteString(": ")
	sb.WriteString(r.Message)
	r.Attrs(func(a slog.Attr) bool {
		sb.WriteString(fmt.Sprintf(" %s=%v", a.Key, a.Value.Any()))
		return true
	})
	return sb.String()
}

// ParseLevel converts a config log level string into a slog.Level.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
