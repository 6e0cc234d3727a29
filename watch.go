package bindings

import (
	"strings"
	"sync"
)

type (
	// Watcher reports progress of a value while the function runs.
	Watcher interface {
		Status() string
	}

	// Watchable is a value provider that can be watched.
	Watchable interface {
		Watcher() Watcher
	}

	// WatchLog accumulates the watchers of one invocation.
	WatchLog struct {
		lock    sync.Mutex
		entries []watchEntry
	}

	watchEntry struct {
		name    string
		watcher Watcher
	}
)

// Add appends a named watcher.
func (w *WatchLog) Add(name string, watcher Watcher) {
	if watcher == nil {
		return
	}
	w.lock.Lock()
	defer w.lock.Unlock()
	w.entries = append(w.entries, watchEntry{name, watcher})
}

// Len returns the number of watchers.
func (w *WatchLog) Len() int {
	w.lock.Lock()
	defer w.lock.Unlock()
	return len(w.entries)
}

// Status concatenates the status of every watcher in the
// order added, one per line.  Empty statuses are omitted.
func (w *WatchLog) Status() string {
	w.lock.Lock()
	entries := make([]watchEntry, len(w.entries))
	copy(entries, w.entries)
	w.lock.Unlock()

	var b strings.Builder
	for _, e := range entries {
		status := e.watcher.Status()
		if status == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(e.name)
		b.WriteString(": ")
		b.WriteString(status)
	}
	return b.String()
}
