package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"sort"
	"strings"
)

// Level is the minimum severity a Logger emits.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

// Fields are structured key/value pairs attached to a log entry.
type Fields map[string]interface{}

// WithField builds a single-entry Fields value.
func WithField(key string, value interface{}) Fields {
	return Fields{key: value}
}

// WithFields copies the given map into a Fields value.
func WithFields(fields map[string]interface{}) Fields {
	f := make(Fields, len(fields))
	for k, v := range fields {
		f[k] = v
	}
	return f
}

// Logger writes structured JSON log lines.
type Logger struct {
	level Level
	sl    *slog.Logger
}

// New creates a logger writing to stderr at the given level.
func New(level Level) *Logger {
	return NewWithWriter(os.Stderr, level)
}

// NewWithWriter creates a logger writing to w.
func NewWithWriter(w io.Writer, level Level) *Logger {
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level.slogLevel(),
	})
	return &Logger{level: level, sl: slog.New(handler)}
}

// ParseLevel maps a config string to a Level, defaulting to info.
func ParseLevel(s string) Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

// With returns a child logger that always includes fields.
func (l *Logger) With(fields Fields) *Logger {
	if l == nil {
		return nil
	}
	return &Logger{level: l.level, sl: l.sl.With(toArgs(fields)...)}
}

func (l *Logger) Debug(msg string, fields ...Fields) {
	l.log(LevelDebug, msg, fields)
}

func (l *Logger) Info(msg string, fields ...Fields) {
	l.log(LevelInfo, msg, fields)
}

func (l *Logger) Warn(msg string, fields ...Fields) {
	l.log(LevelWarn, msg, fields)
}

func (l *Logger) Error(msg string, fields ...Fields) {
	l.log(LevelError, msg, fields)
}

func (l *Logger) log(level Level, msg string, fields []Fields) {
	if l == nil || level < l.level {
		return
	}

	merged := make(Fields)
	for _, f := range fields {
		for k, v := range f {
			merged[k] = v
		}
	}

	l.sl.Log(context.Background(), level.slogLevel(), msg, toArgs(merged)...)
}

func (lv Level) slogLevel() slog.Level {
	switch lv {
	case LevelDebug:
		return slog.LevelDebug
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// toArgs flattens fields in key order so output is stable.
func toArgs(fields Fields) []interface{} {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	args := make([]interface{}, 0, len(keys)*2)
	for _, k := range keys {
		args = append(args, k, fields[k])
	}
	return args
}
