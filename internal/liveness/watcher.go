package liveness

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// OutputWatcher tracks last-output times for agent output files using
// fsnotify, so the supervisor does not have to re-stat every file on every
// poll tick. The watcher is advisory: LastOutput falls back to a stat when
// no event has been seen for a path.
type OutputWatcher struct {
	watcher *fsnotify.Watcher
	seen    map[string]time.Time
	mu      sync.RWMutex
	done    chan struct{}
}

// NewOutputWatcher starts watching the given output directory.
func NewOutputWatcher(dir string) (*OutputWatcher, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if err := fw.Add(dir); err != nil {
		fw.Close()
		return nil, fmt.Errorf("watch output directory: %w", err)
	}

	w := &OutputWatcher{
		watcher: fw,
		seen:    make(map[string]time.Time),
		done:    make(chan struct{}),
	}
	go w.loop()
	return w, nil
}

func (w *OutputWatcher) loop() {
	for {
		select {
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				w.mu.Lock()
				w.seen[filepath.Clean(ev.Name)] = time.Now()
				w.mu.Unlock()
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Printf("[liveness] watch error: %v", err)
		case <-w.done:
			return
		}
	}
}

// LastOutput returns the most recent output time for the given path. When no
// event has been observed it falls back to the file's modification time; a
// missing file returns a zero time.
func (w *OutputWatcher) LastOutput(path string) time.Time {
	path = filepath.Clean(path)

	w.mu.RLock()
	t, ok := w.seen[path]
	w.mu.RUnlock()
	if ok {
		return t
	}

	info, err := os.Stat(path)
	if err != nil {
		return time.Time{}
	}
	return info.ModTime()
}

// Close stops the watcher.
func (w *OutputWatcher) Close() error {
	close(w.done)
	return w.watcher.Close()
}
