package routing

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher re-applies chain overrides when the routing config file changes.
// Edits are debounced so editors that write in several bursts trigger one
// reload. A malformed file keeps the previous table in place.
type Watcher struct {
	manager  *Manager
	path     string
	debounce time.Duration
	watcher  *fsnotify.Watcher
	logger   *slog.Logger
}

// NewWatcher creates a watcher for the given routing config file. The
// file's directory is watched rather than the file itself so atomic
// rename-into-place saves are seen.
func NewWatcher(manager *Manager, path string, logger *slog.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &Watcher{
		manager:  manager,
		path:     filepath.Clean(path),
		debounce: 250 * time.Millisecond,
		watcher:  fsw,
		logger:   logger,
	}, nil
}

// Start begins watching. Blocks until ctx is cancelled.
func (w *Watcher) Start(ctx context.Context) error {
	if err := w.watcher.Add(filepath.Dir(w.path)); err != nil {
		return err
	}

	w.logger.Info("routing config watcher started", "path", w.path)

	var timer *time.Timer
	var timerC <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
				timerC = timer.C
			} else {
				timer.Reset(w.debounce)
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("routing config watcher error", "error", err)

		case <-timerC:
			timer = nil
			timerC = nil
			if err := w.manager.ApplyOverridesFile(w.path); err != nil {
				w.logger.Warn("routing config reload failed, keeping previous chains",
					"path", w.path,
					"error", err)
			}
		}
	}
}

// Stop closes the underlying filesystem watcher.
func (w *Watcher) Stop() error {
	return w.watcher.Close()
}
