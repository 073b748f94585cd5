// Package logging provides the slog-based logger used across conduit.
//
// Third-party library logs (anything whose call site is outside this
// module) below warn are only surfaced at debug level; their warn and error
// records, and conduit's own logs, pass through at the configured level. This mirrors the noise-control a
// library embedded in a host application needs: the host cares about the
// host's logs, not every dependency's chatter, unless it is debugging.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"runtime"
	"strings"
)

const modulePrefix = "github.com/kadirpekel/conduit"

// ParseLevel converts a string log level to slog.Level. Unknown values fall
// back to warn rather than erroring, since log-level misconfiguration should
// never be fatal.
func ParseLevel(levelStr string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(levelStr)) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelWarn
	}
}

type filteringHandler struct {
	handler  slog.Handler
	minLevel slog.Level
}

func (h *filteringHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return level >= h.minLevel
}

func (h *filteringHandler) Handle(ctx context.Context, record slog.Record) error {
	if h.minLevel <= slog.LevelDebug {
		return h.handler.Handle(ctx, record)
	}
	if h.isOwnPackage(record.PC) || record.Level >= slog.LevelWarn {
		return h.handler.Handle(ctx, record)
	}
	return nil
}

func (h *filteringHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &filteringHandler{handler: h.handler.WithAttrs(attrs), minLevel: h.minLevel}
}

func (h *filteringHandler) WithGroup(name string) slog.Handler {
	return &filteringHandler{handler: h.handler.WithGroup(name), minLevel: h.minLevel}
}

func (h *filteringHandler) isOwnPackage(pc uintptr) bool {
	if pc == 0 {
		return true
	}
	frames := runtime.CallersFrames([]uintptr{pc})
	frame, _ := frames.Next()
	return strings.HasPrefix(frame.Function, modulePrefix)
}

// New builds a slog.Logger writing JSON records to w at the given level,
// filtering third-party noise below warn unless the level is debug.
func New(w io.Writer, level slog.Level) *slog.Logger {
	if w == nil {
		w = os.Stderr
	}
	base := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level, AddSource: level == slog.LevelDebug})
	return slog.New(&filteringHandler{handler: base, minLevel: level})
}

// WithFields returns a child logger carrying the given structured fields,
// a convenience wrapper over slog's native With for conduit's common keys.
func WithFields(l *slog.Logger, kv ...any) *slog.Logger {
	return l.With(kv...)
}
