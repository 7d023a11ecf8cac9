// Package logging builds the slog loggers used across dqcheck.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// ParseLevel maps debug, info, warn/warning and error to slog levels.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
}

// New returns a text logger on stderr, or a daily file logger mirrored to
// stderr when dir is set.
func New(level, dir string) (*slog.Logger, error) {
	return newLogger(level, dir, os.Stderr)
}

func newLogger(level, dir string, console io.Writer) (*slog.Logger, error) {
	lvl, err := ParseLevel(level)
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: lvl}

	if dir == "" {
		return slog.New(slog.NewTextHandler(console, opts)), nil
	}

	handler, err := NewDailyFileHandler(dir, console, opts)
	if err != nil {
		return nil, err
	}
	return slog.New(handler), nil
}
