package template

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// debouncer coalesces bursts of filesystem events into one callback.
type debouncer struct {
	mu    sync.Mutex
	timer *time.Timer
	delay time.Duration
	fn    func()
}

func newDebouncer(delay time.Duration, fn func()) *debouncer {
	return &debouncer{delay: delay, fn: fn}
}

func (d *debouncer) Trigger() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.delay, d.fn)
}

func (d *debouncer) Cancel() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}

// Watcher invalidates an engine's caches when template files change on
// disk, so long-running processes pick up edits without a restart.
type Watcher struct {
	engine    *Engine
	watcher   *fsnotify.Watcher
	debouncer *debouncer
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

// NewWatcher watches the engine's template directories, including their
// partials subdirectories. Directories that do not exist yet are
// skipped.
func NewWatcher(e *Engine) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		engine:  e,
		watcher: fsw,
	}
	w.debouncer = newDebouncer(500*time.Millisecond, e.Invalidate)

	for _, dir := range e.searchDirs() {
		for _, d := range []string{dir, filepath.Join(dir, "partials")} {
			if _, err := os.Stat(d); err != nil {
				continue
			}
			if err := fsw.Add(d); err != nil {
				_ = fsw.Close()
				return nil, err
			}
		}
		entries, err := os.ReadDir(dir)
		if err != nil {
			continue
		}
		for _, entry := range entries {
			if entry.IsDir() && entry.Name() != "partials" {
				_ = fsw.Add(filepath.Join(dir, entry.Name()))
			}
		}
	}
	return w, nil
}

// Start begins processing events until the context is canceled or Close
// is called.
func (w *Watcher) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	w.cancel = cancel

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		for {
			select {
			case event, ok := <-w.watcher.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) != 0 {
					if event.Op&fsnotify.Create != 0 {
						if stat, err := os.Stat(event.Name); err == nil && stat.IsDir() {
							_ = w.watcher.Add(event.Name)
						}
					}
					w.debouncer.Trigger()
				}
			case _, ok := <-w.watcher.Errors:
				if !ok {
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Close stops the watcher and releases resources.
func (w *Watcher) Close() error {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
	w.debouncer.Cancel()
	return w.watcher.Close()
}
