// Package logging bridges log/slog's call sites used throughout this
// module onto a zerolog sink.
package logging

import (
	"context"
	"io"
	"log/slog"

	"github.com/rs/zerolog"
)

// handler is a minimal slog.Handler backed by a zerolog.Logger.
type handler struct {
	zl    zerolog.Logger
	attrs []slog.Attr
}

// New builds a *slog.Logger that writes through zerolog to w at level.
func New(w io.Writer, level slog.Level) *slog.Logger {
	zl := zerolog.New(w).With().Timestamp().Logger().Level(toZerologLevel(level))
	return slog.New(&handler{zl: zl})
}

func toZerologLevel(l slog.Level) zerolog.Level {
	switch {
	case l >= slog.LevelError:
		return zerolog.ErrorLevel
	case l >= slog.LevelWarn:
		return zerolog.WarnLevel
	case l >= slog.LevelInfo:
		return zerolog.InfoLevel
	default:
		return zerolog.DebugLevel
	}
}

func (h *handler) Enabled(_ context.Context, level slog.Level) bool {
	return h.zl.GetLevel() <= toZerologLevel(level)
}

func (h *handler) Handle(_ context.Context, r slog.Record) error {
	ev := h.event(r.Level)
	for _, a := range h.attrs {
		ev = ev.Interface(a.Key, a.Value.Any())
	}
	r.Attrs(func(a slog.Attr) bool {
		ev = ev.Interface(a.Key, a.Value.Any())
		return true
	})
	ev.Msg(r.Message)
	return nil
}

func (h *handler) event(level slog.Level) *zerolog.Event {
	switch toZerologLevel(level) {
	case zerolog.ErrorLevel:
		return h.zl.Error()
	case zerolog.WarnLevel:
		return h.zl.Warn()
	case zerolog.InfoLevel:
		return h.zl.Info()
	default:
		return h.zl.Debug()
	}
}

func (h *handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	merged := make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	merged = append(merged, h.attrs...)
	merged = append(merged, attrs...)
	return &handler{zl: h.zl, attrs: merged}
}

func (h *handler) WithGroup(string) slog.Handler {
	// Groups have no zerolog equivalent worth the nesting; attrs stay flat.
	return h
}
