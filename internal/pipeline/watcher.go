package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher triggers a pipeline run whenever the raw dataset file changes on
// disk. Bursts of events are collapsed into one run per debounce window.
type Watcher struct {
	path     string
	debounce time.Duration
	trigger  func(context.Context) error
	onResult func(error)
}

// NewWatcher watches path, the on-disk location of the raw dataset.
func NewWatcher(path string, debounce time.Duration, trigger func(context.Context) error) *Watcher {
	return &Watcher{path: filepath.Clean(path), debounce: debounce, trigger: trigger}
}

// OnResult registers a callback receiving the outcome of every triggered run.
func (w *Watcher) OnResult(fn func(error)) { w.onResult = fn }

// relevant reports whether ev touches the watched file. Blob stores replace
// files by renaming a temp file into place, which surfaces as Create.
func (w *Watcher) relevant(ev fsnotify.Event) bool {
	if filepath.Clean(ev.Name) != w.path {
		return false
	}
	return ev.Has(fsnotify.Create) || ev.Has(fsnotify.Write)
}

// Watch blocks until ctx is cancelled or the underlying watcher fails.
func (w *Watcher) Watch(ctx context.Context) error {
	dir := filepath.Dir(w.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer func() { _ = fw.Close() }()
	if err := fw.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}

	timer := time.NewTimer(w.debounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if w.relevant(ev) {
				timer.Reset(w.debounce)
			}
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			return fmt.Errorf("watch %s: %w", dir, err)
		case <-timer.C:
			err := w.trigger(ctx)
			if w.onResult != nil {
				w.onResult(err)
			}
		}
	}
}
