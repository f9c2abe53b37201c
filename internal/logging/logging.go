// Package logging builds the slog logger of a component from its settings.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/glimte/unitbus/config"
)

// ParseLevel converts a level name; an empty name is info
func ParseLevel(name string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", name)
	}
}

// Logger is a slog.Logger whose level can change at runtime
type Logger struct {
	*slog.Logger
	level *slog.LevelVar
}

// New creates a logger writing to w
func New(settings config.LoggingSettings, w io.Writer) (*Logger, error) {
	level, err := ParseLevel(settings.Level)
	if err != nil {
		return nil, err
	}

	lv := new(slog.LevelVar)
	lv.Set(level)
	opts := &slog.HandlerOptions{Level: lv}

	var handler slog.Handler
	switch settings.Format {
	case "", "json":
		handler = slog.NewJSONHandler(w, opts)
	case "text":
		handler = slog.NewTextHandler(w, opts)
	default:
		return nil, fmt.Errorf("unknown log format %q", settings.Format)
	}

	return &Logger{Logger: slog.New(handler), level: lv}, nil
}

// Level returns the current level
func (l *Logger) Level() slog.Level {
	return l.level.Level()
}

// SetLevel changes the level of the logger and of every logger derived from it
func (l *Logger) SetLevel(name string) error {
	level, err := ParseLevel(name)
	if err != nil {
		return err
	}
	if level != l.level.Level() {
		l.Info("log level changed", "level", level.String())
		l.level.Set(level)
	}
	return nil
}

// Follow keeps the level in sync with the logging.level setting of the holder
func (l *Logger) Follow(holder *config.Holder) {
	holder.OnChange(func(cfg *config.Config) {
		if err := l.SetLevel(cfg.String(config.LoggingLevel)); err != nil {
			l.Warn("ignoring log level", "error", err)
		}
	})
}
