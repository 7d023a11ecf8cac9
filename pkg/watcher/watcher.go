// Package watcher reports new or changed documents in a directory.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/gofrs/flock"
)

var ErrLocked = errors.New("another watcher holds the lock")

type WatcherConfig struct {
	Extensions []string
	// Debounce is how long a file must stay quiet before it is reported.
	Debounce time.Duration
	Logger   *slog.Logger
}

type Watcher struct {
	config  WatcherConfig
	watcher *fsnotify.Watcher
}

func NewWithConfig(config WatcherConfig) (*Watcher, error) {
	if len(config.Extensions) == 0 {
		config.Extensions = []string{".pdf", ".txt", ".md"}
	}
	if config.Debounce <= 0 {
		config.Debounce = time.Second
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	return &Watcher{config: config, watcher: w}, nil
}

// Watch emits a path once writes to it have settled. Removals and renames
// are ignored. The channel closes when ctx is done or the watcher stops.
func (w *Watcher) Watch(ctx context.Context, dir string) (<-chan string, error) {
	if err := w.watcher.Add(dir); err != nil {
		return nil, fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	out := make(chan string, 100)
	go func() {
		defer close(out)

		pending := make(map[string]time.Time)
		ticker := time.NewTicker(w.config.Debounce / 2)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-w.watcher.Events:
				if !ok {
					return
				}
				if !w.isWatchedExtension(event.Name) {
					continue
				}
				if event.Op&(fsnotify.Create|fsnotify.Write) != 0 {
					pending[event.Name] = time.Now()
				}
			case err, ok := <-w.watcher.Errors:
				if !ok {
					return
				}
				w.config.Logger.Warn("Watcher error", slog.String("error", err.Error()))
			case now := <-ticker.C:
				for path, last := range pending {
					if now.Sub(last) < w.config.Debounce {
						continue
					}
					delete(pending, path)
					select {
					case out <- path:
					case <-ctx.Done():
						return
					}
				}
			}
		}
	}()

	return out, nil
}

func (w *Watcher) Close() error {
	return w.watcher.Close()
}

func (w *Watcher) isWatchedExtension(path string) bool {
	return slices.Contains(w.config.Extensions, strings.ToLower(filepath.Ext(path)))
}

// Lock takes a non-blocking exclusive file lock so that only one watcher
// runs per directory.
func Lock(path string) (*flock.Flock, error) {
	lock := flock.New(path)
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire lock %s: %w", path, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrLocked, path)
	}
	return lock, nil
}
