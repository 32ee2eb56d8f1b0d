// Package signal lets an operator reach a running driver through the
// filesystem. The CLI drops a file into .gantry/signals/ and the driver
// notices it at the next cycle boundary, either through fsnotify or a
// direct stat check.
package signal

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Signal names the recognized signal files.
type Signal string

const (
	// Checkpoint asks the driver to stop cleanly at the next cycle
	// boundary, leaving the session resumable.
	Checkpoint Signal = "checkpoint"
	// Stop asks the driver to stop and is also honored by wrappers that
	// do not checkpoint.
	Stop Signal = "stop"
)

// SignalsDir returns the signals directory for a project.
func SignalsDir(projectRoot string) string {
	return filepath.Join(projectRoot, ".gantry", "signals")
}

// Request writes a signal file. It needs no Watcher, so the CLI can
// signal a driver running in another process.
func Request(projectRoot string, sig Signal) error {
	dir := SignalsDir(projectRoot)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	path := filepath.Join(dir, string(sig))
	return os.WriteFile(path, []byte(time.Now().Format(time.RFC3339)), 0644)
}

// Watcher observes the signals directory for a running driver.
type Watcher struct {
	dir string

	mu         sync.RWMutex
	checkpoint bool
	stop       bool

	watcher *fsnotify.Watcher
	done    chan struct{}
}

// NewWatcher creates a watcher over the project's signals directory.
// If the fsnotify watcher cannot start, the Watcher still works through
// stat checks on every query.
func NewWatcher(projectRoot string) (*Watcher, error) {
	dir := SignalsDir(projectRoot)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	w := &Watcher{
		dir:  dir,
		done: make(chan struct{}),
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		// Continue without watcher - stat fallback covers it
		return w, nil
	}
	if err := fsw.Add(dir); err != nil {
		fsw.Close()
		return w, nil
	}
	w.watcher = fsw
	go w.watch()

	return w, nil
}

// watch monitors the signals directory for checkpoint/stop files.
func (w *Watcher) watch() {
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&fsnotify.Create == 0 && event.Op&fsnotify.Write == 0 {
				continue
			}
			w.mu.Lock()
			switch Signal(filepath.Base(event.Name)) {
			case Checkpoint:
				w.checkpoint = true
			case Stop:
				w.stop = true
			}
			w.mu.Unlock()
		case <-w.watcher.Errors:
			// Ignore errors, keep watching
		}
	}
}

// CheckpointRequested returns true once a checkpoint signal has arrived.
func (w *Watcher) CheckpointRequested() bool {
	return w.signaled(Checkpoint, &w.checkpoint)
}

// StopRequested returns true once a stop signal has arrived.
func (w *Watcher) StopRequested() bool {
	return w.signaled(Stop, &w.stop)
}

// ShouldHalt reports whether any signal asks the driver to stop. This is
// the poll the driver runs each cycle.
func (w *Watcher) ShouldHalt() bool {
	return w.CheckpointRequested() || w.StopRequested()
}

// signaled checks flag state, confirming against the file directly in
// case the watcher missed the event.
func (w *Watcher) signaled(sig Signal, flag *bool) bool {
	if _, err := os.Stat(filepath.Join(w.dir, string(sig))); err == nil {
		w.mu.Lock()
		*flag = true
		w.mu.Unlock()
	}

	w.mu.RLock()
	defer w.mu.RUnlock()
	return *flag
}

// Clear removes all signal files and resets state, so an honored
// checkpoint does not instantly stop the next run.
func (w *Watcher) Clear() {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.checkpoint = false
	w.stop = false

	os.Remove(filepath.Join(w.dir, string(Checkpoint)))
	os.Remove(filepath.Join(w.dir, string(Stop)))
}

// Close shuts down the watcher.
func (w *Watcher) Close() {
	close(w.done)
	if w.watcher != nil {
		w.watcher.Close()
	}
}
