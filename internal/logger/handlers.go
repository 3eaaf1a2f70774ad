package logger

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"
)

// levelName renders slog levels including the custom trace level
func levelName(level slog.Level) string {
	if level <= traceLevelValue {
		return "TRACE"
	}
	return level.String()
}

// newTextHandler builds the console handler: no timestamps, TRACE label for the custom level
func newTextHandler(w io.Writer, level slog.Level, _ *time.Location) slog.Handler {
	return slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if len(groups) > 0 {
				return a
			}
			switch a.Key {
			case slog.TimeKey:
				return slog.Attr{}
			case slog.LevelKey:
				if lvl, ok := a.Value.Any().(slog.Level); ok {
					return slog.String(slog.LevelKey, levelName(lvl))
				}
			}
			return a
		},
	})
}

// newJSONHandler builds the file handler with RFC3339 timestamps in the configured zone
func newJSONHandler(w io.Writer, level slog.Level, tz *time.Location) slog.Handler {
	return slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if len(groups) > 0 {
				return a
			}
			switch a.Key {
			case slog.TimeKey:
				if t, ok := a.Value.Any().(time.Time); ok && tz != nil {
					return slog.String(slog.TimeKey, t.In(tz).Format(time.RFC3339))
				}
			case slog.LevelKey:
				if lvl, ok := a.Value.Any().(slog.Level); ok {
					return slog.String(slog.LevelKey, levelName(lvl))
				}
			}
			return a
		},
	})
}

func combineHandlers(handlers []slog.Handler) slog.Handler {
	if len(handlers) == 1 {
		return handlers[0]
	}
	return &fanoutHandler{handlers: handlers}
}

// fanoutHandler writes each record to every enabled handler
type fanoutHandler struct {
	handlers []slog.Handler
}

func (h *fanoutHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, handler := range h.handlers {
		if handler.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

//nolint:gocritic // slog.Handler interface requires record by value
func (h *fanoutHandler) Handle(ctx context.Context, record slog.Record) error {
	var errs []error
	for _, handler := range h.handlers {
		if !handler.Enabled(ctx, record.Level) {
			continue
		}
		if err := handler.Handle(ctx, record.Clone()); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (h *fanoutHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := make([]slog.Handler, len(h.handlers))
	for i, handler := range h.handlers {
		next[i] = handler.WithAttrs(attrs)
	}
	return &fanoutHandler{handlers: next}
}

func (h *fanoutHandler) WithGroup(name string) slog.Handler {
	next := make([]slog.Handler, len(h.handlers))
	for i, handler := range h.handlers {
		next[i] = handler.WithGroup(name)
	}
	return &fanoutHandler{handlers: next}
}
