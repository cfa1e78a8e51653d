package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Rotation limits for the log file.
const (
	MaxSizeMB  = 1
	MaxBackups = 5
)

// TimeFormat is the timestamp layout written on every line.
const TimeFormat = "2006-01-02 15:04:05.000"

// Config selects where and how much to log.
type Config struct {
	File    string    // rotating log file; empty logs to Console only
	Level   string    // debug, info, warn, error
	Console io.Writer // live stream; nil means os.Stdout
}

// Setup builds the application logger. The returned close func flushes and
// closes the log file; it is safe to call when File is empty.
func Setup(cfg Config) (*slog.Logger, func() error, error) {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, nil, err
	}

	console := cfg.Console
	if console == nil {
		console = os.Stdout
	}

	var (
		w       = console
		closeFn = func() error { return nil }
	)
	if cfg.File != "" {
		rotator := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    MaxSizeMB,
			MaxBackups: MaxBackups,
			LocalTime:  true,
		}
		w = io.MultiWriter(rotator, console)
		closeFn = rotator.Close
	}

	return New(w, level), closeFn, nil
}

// New returns a text logger writing to w with the pipeline's fixed line
// layout: time, level, logger name, message, then attributes.
func New(w io.Writer, level slog.Level) *slog.Logger {
	h := slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if len(groups) == 0 && a.Key == slog.TimeKey && a.Value.Kind() == slog.KindTime {
				a.Value = slog.StringValue(a.Value.Time().Format(TimeFormat))
			}
			return a
		},
	})
	return slog.New(h).With(slog.String("logger", "timelapse"))
}

// Discard returns a logger that drops everything. Used in tests and before
// the real logger exists.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// Component returns a child logger tagged with a component name.
func Component(l *slog.Logger, name string) *slog.Logger {
	if l == nil {
		l = Discard()
	}
	return l.With(slog.String("component", name))
}

// ParseLevel maps a level name to a slog.Level. Empty means info.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
}

// Since is a small helper for duration attributes.
func Since(start time.Time) slog.Attr {
	return slog.Duration("elapsed", time.Since(start).Round(time.Millisecond))
}
