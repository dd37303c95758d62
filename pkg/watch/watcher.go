// Package watch observes the definition folders and coalesces bursts of
// file changes into single redeploy batches.
package watch

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/odvcencio/herald/pkg/logging"
)

const defaultDebounce = 750 * time.Millisecond

// BatchHandler receives the set of changed record paths once input settles.
type BatchHandler func(paths []string)

// Watcher tracks definition-file changes under a set of folders.
type Watcher struct {
	fsw      *fsnotify.Watcher
	debounce time.Duration
	log      *logging.Logger

	mu      sync.Mutex
	timer   *time.Timer
	pending map[string]struct{}
	handler BatchHandler
}

// New creates a watcher over the given folders. Folders that do not exist
// are skipped with a warning.
func New(dirs []string, debounce time.Duration, log *logging.Logger) (*Watcher, error) {
	if debounce <= 0 {
		debounce = defaultDebounce
	}
	if log == nil {
		log = logging.NewDiscard()
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	for _, dir := range dirs {
		if err := fsw.Add(dir); err != nil {
			log.Warn(logging.CategoryWatch, "watch_failed", "not watching folder", map[string]any{
				"dir":   dir,
				"error": err.Error(),
			})
		}
	}

	return &Watcher{
		fsw:      fsw,
		debounce: debounce,
		log:      log,
	}, nil
}

// Run blocks delivering debounced change batches until the context ends.
func (w *Watcher) Run(ctx context.Context, handler BatchHandler) error {
	w.mu.Lock()
	w.handler = handler
	w.mu.Unlock()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			w.handleEvent(ev)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.log.Warn(logging.CategoryWatch, "watch_error", "watcher reported an error", map[string]any{
				"error": err.Error(),
			})
		}
	}
}

func (w *Watcher) handleEvent(ev fsnotify.Event) {
	if !strings.HasSuffix(ev.Name, ".json") {
		return
	}
	if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
		return
	}
	w.enqueue(ev.Name)
}

// enqueue records a changed path and (re)arms the debounce timer. A new
// change before the timer fires cancels the pending flush.
func (w *Watcher) enqueue(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.pending == nil {
		w.pending = make(map[string]struct{})
	}
	w.pending[path] = struct{}{}

	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.flush)
}

func (w *Watcher) flush() {
	w.mu.Lock()
	paths := make([]string, 0, len(w.pending))
	for p := range w.pending {
		paths = append(paths, p)
	}
	w.pending = nil
	handler := w.handler
	w.mu.Unlock()

	if handler == nil || len(paths) == 0 {
		return
	}
	sort.Strings(paths)
	handler(paths)
}

// Close stops the watcher and any pending flush.
func (w *Watcher) Close() error {
	w.mu.Lock()
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
	w.mu.Unlock()
	return w.fsw.Close()
}
