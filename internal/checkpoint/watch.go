// internal/checkpoint/watch.go
package checkpoint

import (
	"log/slog"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// IndexWatcher reloads the store's in-memory index when another process
// rewrites index.json. Events are debounced so the atomic temp-write/rename
// pair collapses into a single reload, and writes the store itself just made
// are recognized by timestamp and skipped.
type IndexWatcher struct {
	store    *Store
	debounce time.Duration
	watcher  *fsnotify.Watcher
	done     chan struct{}
	closed   bool
	mu       sync.Mutex
	timer    *time.Timer
	timerMu  sync.Mutex
}

// WatchIndex starts watching the store directory for external index rewrites.
// Close the returned watcher when the store is no longer in use.
func (s *Store) WatchIndex(debounce time.Duration) (*IndexWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, &StorageError{Op: "create watcher", Path: s.dir, Err: err}
	}
	if err := watcher.Add(s.dir); err != nil {
		watcher.Close()
		return nil, &StorageError{Op: "watch store dir", Path: s.dir, Err: err}
	}

	w := &IndexWatcher{
		store:    s,
		debounce: debounce,
		watcher:  watcher,
		done:     make(chan struct{}),
	}
	go w.watch()
	return w, nil
}

// Close stops the watcher.
func (w *IndexWatcher) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true
	close(w.done)

	w.timerMu.Lock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timerMu.Unlock()

	return w.watcher.Close()
}

func (w *IndexWatcher) watch() {
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.store.logger.Warn("index watcher error", slog.String("error", err.Error()))

		case <-w.done:
			return
		}
	}
}

func (w *IndexWatcher) handleEvent(event fsnotify.Event) {
	if event.Name != w.store.indexPath {
		return
	}
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
		return
	}

	w.timerMu.Lock()
	defer w.timerMu.Unlock()

	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.reload)
}

// reload replaces the in-memory index with the on-disk one, unless the store
// wrote the index itself within the debounce window.
func (w *IndexWatcher) reload() {
	w.store.mu.Lock()
	defer w.store.mu.Unlock()

	if time.Since(w.store.indexSavedAt) < w.debounce*2 {
		return
	}

	checkpoints, err := loadIndex(w.store.indexPath)
	if err != nil {
		w.store.logger.Warn("failed to reload index", slog.String("error", err.Error()))
		return
	}

	w.store.checkpoints = checkpoints
	w.store.logger.Debug("reloaded index from disk", slog.Int("checkpoints", len(checkpoints)))
}
