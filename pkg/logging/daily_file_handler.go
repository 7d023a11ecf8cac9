package logging

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

const filePrefix = "dqcheck-"

// dailyFile is an io.Writer that reopens dqcheck-YYYY-MM-DD.log when the
// date changes.
type dailyFile struct {
	mu      sync.Mutex
	dir     string
	name    string
	file    *os.File
	nowFunc func() time.Time
}

func (d *dailyFile) Write(p []byte) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.rotateLocked(); err != nil {
		return 0, err
	}
	return d.file.Write(p)
}

func (d *dailyFile) rotateLocked() error {
	name := filePrefix + d.nowFunc().Format("2006-01-02") + ".log"
	if name == d.name && d.file != nil {
		return nil
	}
	if d.file != nil {
		_ = d.file.Close()
	}

	f, err := os.OpenFile(filepath.Join(d.dir, name), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		d.file = nil
		return fmt.Errorf("failed to open log file: %w", err)
	}
	d.file, d.name = f, name
	return nil
}

func (d *dailyFile) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.file == nil {
		return nil
	}
	err := d.file.Close()
	d.file = nil
	return err
}

// DailyFileHandler writes records to a per-day log file and mirrors them to
// a console writer.
type DailyFileHandler struct {
	out     *dailyFile
	file    slog.Handler
	console slog.Handler
}

func NewDailyFileHandler(dir string, console io.Writer, opts *slog.HandlerOptions) (*DailyFileHandler, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	if console == nil {
		console = os.Stderr
	}

	out := &dailyFile{dir: dir, nowFunc: time.Now}
	out.mu.Lock()
	err := out.rotateLocked()
	out.mu.Unlock()
	if err != nil {
		return nil, err
	}

	return &DailyFileHandler{
		out:     out,
		file:    slog.NewTextHandler(out, opts),
		console: slog.NewTextHandler(console, opts),
	}, nil
}

func (h *DailyFileHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.console.Enabled(ctx, level)
}

// Handle falls back to the console alone when the file cannot be written.
func (h *DailyFileHandler) Handle(ctx context.Context, r slog.Record) error {
	fileErr := h.file.Handle(ctx, r.Clone())
	return errors.Join(fileErr, h.console.Handle(ctx, r))
}

func (h *DailyFileHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &DailyFileHandler{out: h.out, file: h.file.WithAttrs(attrs), console: h.console.WithAttrs(attrs)}
}

func (h *DailyFileHandler) WithGroup(name string) slog.Handler {
	return &DailyFileHandler{out: h.out, file: h.file.WithGroup(name), console: h.console.WithGroup(name)}
}

func (h *DailyFileHandler) Close() error {
	return h.out.Close()
}
