// Package reload detects configuration file changes for hot reload.
package reload

import (
	"os"
	"sync"
	"time"
)

type fileState struct {
	modTime time.Time
	size    int64
}

// Watcher tracks a single configuration file and detects modifications by
// comparing stat snapshots.
type Watcher struct {
	mu    sync.Mutex
	path  string
	state fileState
}

// NewWatcher snapshots the file at path. A missing file is not an error; the
// first successful stat after it appears counts as a change.
func NewWatcher(path string) *Watcher {
	w := &Watcher{path: path}
	if info, err := os.Stat(path); err == nil && !info.IsDir() {
		w.state = fileState{modTime: info.ModTime(), size: info.Size()}
	}
	return w
}

// Changed reports whether the file differs from the last snapshot and, if
// so, re-snapshots it.
func (w *Watcher) Changed() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	info, err := os.Stat(w.path)
	if err != nil || info.IsDir() {
		return false
	}
	current := fileState{modTime: info.ModTime(), size: info.Size()}
	if current.modTime.After(w.state.modTime) || current.size != w.state.size {
		w.state = current
		return true
	}
	return false
}
