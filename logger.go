package rdp

import (
	"context"
	"log/slog"
)

// levelTrace is a log level below slog.LevelDebug used for per-packet
// tracing, matching the teacher's internal.LevelTrace.
const levelTrace = slog.LevelDebug - 2

// logger is embedded by Socket and Conn to provide cheap, optional
// diagnostic logging. Logging never influences control flow: every
// protocol-violation or stale-packet drop described in spec.md §7 is
// silent to the caller regardless of whether a logger is attached.
type logger struct {
	log *slog.Logger
	id  string // xid tag identifying the owning socket, attached to every line
}

func (l *logger) enabled(lvl slog.Level) bool {
	return l.log != nil && l.log.Handler().Enabled(context.Background(), lvl)
}

func (l *logger) logAttrs(lvl slog.Level, msg string, attrs ...slog.Attr) {
	if l.log == nil {
		return
	}
	if l.id != "" {
		attrs = append(attrs, slog.String("sock", l.id))
	}
	l.log.LogAttrs(context.Background(), lvl, msg, attrs...)
}

func (l *logger) debug(msg string, attrs ...slog.Attr) {
	if l.enabled(slog.LevelDebug) {
		l.logAttrs(slog.LevelDebug, msg, attrs...)
	}
}

func (l *logger) trace(msg string, attrs ...slog.Attr) {
	if l.enabled(levelTrace) {
		l.logAttrs(levelTrace, msg, attrs...)
	}
}

func (l *logger) logerr(msg string, attrs ...slog.Attr) {
	l.logAttrs(slog.LevelError, msg, attrs...)
}
