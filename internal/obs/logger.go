package obs

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"strings"
)

type Level int

const (
	Debug Level = iota
	Info
	Warn
	Error
)

func (l Level) String() string {
	switch l {
	case Debug:
		return "DEBUG"
	case Info:
		return "INFO"
	case Warn:
		return "WARN"
	case Error:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel maps a level name (case-insensitive) to a Level.
func ParseLevel(s string) (Level, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return Debug, nil
	case "", "INFO":
		return Info, nil
	case "WARN", "WARNING":
		return Warn, nil
	case "ERROR":
		return Error, nil
	}
	return Info, fmt.Errorf("obs: unknown log level %q", s)
}

// Slog converts the level to its log/slog counterpart.
func (l Level) Slog() slog.Level {
	switch l {
	case Debug:
		return slog.LevelDebug
	case Warn:
		return slog.LevelWarn
	case Error:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Logger is a minimal logging interface for observability.
type Logger interface {
	Logf(level Level, format string, args ...interface{})
}

// NopLogger discards all logs.
type NopLogger struct{}

func (NopLogger) Logf(level Level, format string, args ...interface{}) {}

// StdLogger adapts the standard library logger.
type StdLogger struct {
	L    *log.Logger
	Min  Level
	Pref string // optional prefix per log line
}

func (s StdLogger) Logf(level Level, format string, args ...interface{}) {
	if s.L == nil {
		return
	}
	if level < s.Min {
		return
	}
	if s.Pref != "" {
		s.L.Printf("%s[%s] "+format, append([]interface{}{s.Pref, level.String()}, args...)...)
	} else {
		s.L.Printf("[%s] "+format, append([]interface{}{level.String()}, args...)...)
	}
}

// SlogLogger bridges to a structured slog.Logger. The formatted message
// becomes the record message; Attrs are attached to every record.
type SlogLogger struct {
	L     *slog.Logger
	Attrs []slog.Attr
}

func (s SlogLogger) Logf(level Level, format string, args ...interface{}) {
	l := s.L
	if l == nil {
		l = slog.Default()
	}
	lv := level.Slog()
	ctx := context.Background()
	if !l.Enabled(ctx, lv) {
		return
	}
	l.LogAttrs(ctx, lv, fmt.Sprintf(format, args...), s.Attrs...)
}

// With derives a logger tagged with a component or connection prefix.
func With(l Logger, prefix string) Logger {
	switch v := l.(type) {
	case nil:
		return NopLogger{}
	case NopLogger:
		return v
	case SlogLogger:
		attrs := append(append([]slog.Attr(nil), v.Attrs...), slog.String("scope", prefix))
		return SlogLogger{L: v.L, Attrs: attrs}
	case StdLogger:
		v.Pref += prefix + " "
		return v
	default:
		return prefixed{l: l, prefix: prefix}
	}
}

type prefixed struct {
	l      Logger
	prefix string
}

func (p prefixed) Logf(level Level, format string, args ...interface{}) {
	p.l.Logf(level, "%s "+format, append([]interface{}{p.prefix}, args...)...)
}
