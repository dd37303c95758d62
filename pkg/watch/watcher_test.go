package watch

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func eventFor(name string) fsnotify.Event {
	return fsnotify.Event{Name: name, Op: fsnotify.Write}
}

type recorder struct {
	mu      sync.Mutex
	batches [][]string
	ch      chan []string
}

func newRecorder() *recorder {
	return &recorder{ch: make(chan []string, 8)}
}

func (r *recorder) handle(paths []string) {
	r.mu.Lock()
	r.batches = append(r.batches, paths)
	r.mu.Unlock()
	r.ch <- paths
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.batches)
}

func (r *recorder) wait(t *testing.T) []string {
	t.Helper()
	select {
	case batch := <-r.ch:
		return batch
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for a change batch")
		return nil
	}
}

func TestDebounceCoalescesBursts(t *testing.T) {
	w, err := New(nil, 50*time.Millisecond, nil)
	require.NoError(t, err)
	defer w.Close()

	rec := newRecorder()
	w.mu.Lock()
	w.handler = rec.handle
	w.mu.Unlock()

	w.enqueue("/defs/commands/ping.json")
	w.enqueue("/defs/commands/roll.json")
	w.enqueue("/defs/commands/ping.json")

	batch := rec.wait(t)
	assert.Equal(t, []string{"/defs/commands/ping.json", "/defs/commands/roll.json"}, batch)
	assert.Equal(t, 1, rec.count(), "burst collapses into one batch")
}

func TestDebounceResetsOnNewChange(t *testing.T) {
	w, err := New(nil, 80*time.Millisecond, nil)
	require.NoError(t, err)
	defer w.Close()

	rec := newRecorder()
	w.mu.Lock()
	w.handler = rec.handle
	w.mu.Unlock()

	w.enqueue("/defs/commands/a.json")
	time.Sleep(40 * time.Millisecond)
	assert.Equal(t, 0, rec.count(), "flush not due yet")
	w.enqueue("/defs/commands/b.json")

	batch := rec.wait(t)
	assert.Len(t, batch, 2)
	assert.Equal(t, 1, rec.count())
}

func TestIgnoresNonJSONEvents(t *testing.T) {
	w, err := New(nil, 20*time.Millisecond, nil)
	require.NoError(t, err)
	defer w.Close()

	rec := newRecorder()
	w.mu.Lock()
	w.handler = rec.handle
	w.mu.Unlock()

	w.handleEvent(eventFor("/defs/commands/notes.txt"))
	w.handleEvent(eventFor("/defs/commands/.ping.json.herald.tmp"))

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 0, rec.count())
}

func TestWatchesRealWrites(t *testing.T) {
	dir := t.TempDir()

	w, err := New([]string{dir}, 50*time.Millisecond, nil)
	require.NoError(t, err)
	defer w.Close()

	rec := newRecorder()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = w.Run(ctx, rec.handle) }()

	// Give the watcher goroutine a moment to start draining events.
	time.Sleep(50 * time.Millisecond)

	path := filepath.Join(dir, "ping.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"name":"ping","type":1}`), 0o644))

	batch := rec.wait(t)
	assert.Contains(t, batch, path)
}

func TestMissingFolderIsSkipped(t *testing.T) {
	w, err := New([]string{filepath.Join(t.TempDir(), "does-not-exist")}, 0, nil)
	require.NoError(t, err)
	assert.NoError(t, w.Close())
}
