// Package logging wraps log/slog with the verbosity threshold and
// correlation id used throughout a sync run.
//
// Every message carries a verbosity level in addition to its severity:
//
//	0 - never emitted
//	1 - high level (one line per sync / unit outcome)
//	2 - mid level (per step of a unit)
//	3 - low level (payloads, resolved values)
//
// A message is emitted when 0 < level <= threshold. All lines carry the
// configured indicator and the correlation id of the sync they belong to, so
// one invocation can be grepped out of a busy log.
package logging

import (
	"context"
	"io"
	"log/slog"
	"strings"

	"github.com/google/uuid"
)

// Level is the verbosity of a message.
type Level int

const (
	LevelNone Level = 0
	LevelHigh Level = 1
	LevelMid  Level = 2
	LevelLow  Level = 3
)

// Logger is safe for concurrent use. With* methods return copies.
type Logger struct {
	base          *slog.Logger
	threshold     Level
	indicator     string
	correlationID string
	scope         string
}

// New creates a Logger writing through handler.
func New(handler slog.Handler, threshold Level, indicator string) *Logger {
	if threshold < LevelNone {
		threshold = LevelNone
	}
	if threshold > LevelLow {
		threshold = LevelLow
	}
	return &Logger{
		base:      slog.New(handler),
		threshold: threshold,
		indicator: indicator,
	}
}

// NewText creates a Logger with a text handler on w. format "json" selects
// the JSON handler instead.
func NewText(w io.Writer, format string, threshold Level, indicator string) *Logger {
	opts := &slog.HandlerOptions{Level: slog.LevelDebug}
	var handler slog.Handler
	if strings.EqualFold(format, "json") {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return New(handler, threshold, indicator)
}

// Discard returns a Logger that drops everything.
func Discard() *Logger {
	return New(slog.NewTextHandler(io.Discard, nil), LevelNone, "")
}

// WithCorrelation returns a copy bound to id. An empty id generates one.
func (l *Logger) WithCorrelation(id string) *Logger {
	if id == "" {
		id = NewCorrelationID()
	}
	c := *l
	c.correlationID = id
	return &c
}

// Scope returns a copy tagged with a per-call scope, e.g. "hubspot/sandbox".
func (l *Logger) Scope(scope string) *Logger {
	c := *l
	if c.scope != "" {
		c.scope = c.scope + "/" + scope
	} else {
		c.scope = scope
	}
	return &c
}

// CorrelationID returns the bound correlation id, possibly empty.
func (l *Logger) CorrelationID() string {
	return l.correlationID
}

// Threshold returns the configured verbosity threshold.
func (l *Logger) Threshold() Level {
	return l.threshold
}

// Enabled reports whether a message at level would be emitted.
func (l *Logger) Enabled(level Level) bool {
	return level > LevelNone && level <= l.threshold
}

// Log emits msg with the given severity if level passes the threshold.
func (l *Logger) Log(ctx context.Context, severity slog.Level, level Level, msg string, args ...any) {
	if !l.Enabled(level) {
		return
	}
	attrs := make([]any, 0, len(args)+6)
	if l.indicator != "" {
		attrs = append(attrs, "indicator", l.indicator)
	}
	if l.correlationID != "" {
		attrs = append(attrs, "correlation_id", l.correlationID)
	}
	if l.scope != "" {
		attrs = append(attrs, "scope", l.scope)
	}
	attrs = append(attrs, args...)
	l.base.Log(ctx, severity, msg, attrs...)
}

func (l *Logger) Debug(level Level, msg string, args ...any) {
	l.Log(context.Background(), slog.LevelDebug, level, msg, args...)
}

func (l *Logger) Info(level Level, msg string, args ...any) {
	l.Log(context.Background(), slog.LevelInfo, level, msg, args...)
}

func (l *Logger) Warn(level Level, msg string, args ...any) {
	l.Log(context.Background(), slog.LevelWarn, level, msg, args...)
}

func (l *Logger) Error(level Level, msg string, args ...any) {
	l.Log(context.Background(), slog.LevelError, level, msg, args...)
}

// NewCorrelationID returns a short id suitable for grepping.
func NewCorrelationID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}
