// Package watcher reports changes made to the database files by other
// processes, so live queries can re-run.
package watcher

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher monitors a directory with fsnotify and emits one Event per burst
// of changes, after the burst has been quiet for SettleDelay.
type Watcher struct {
	logger  *slog.Logger
	opts    Options
	watcher *fsnotify.Watcher

	mu      sync.Mutex
	timer   *time.Timer
	paths   []string
	removed bool

	events   chan Event
	errors   chan error
	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once

	// closeMu guards sends from timer callbacks against channel close.
	closeMu sync.RWMutex
	closed  bool
}

// New creates a watcher. Call Watch, then Start.
func New(logger *slog.Logger, opts Options) (*Watcher, error) {
	opts.setDefaults()

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	return &Watcher{
		logger:  logger,
		opts:    opts,
		watcher: fw,
		events:  make(chan Event, 16),
		errors:  make(chan error, 10),
		done:    make(chan struct{}),
	}, nil
}

// Watch adds a directory, or the parent directory of a file.
func (w *Watcher) Watch(path string) error {
	path = filepath.Clean(path)

	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("failed to stat path: %w", err)
	}
	if !info.IsDir() {
		path = filepath.Dir(path)
	}

	if err := w.watcher.Add(path); err != nil {
		return fmt.Errorf("failed to add watch: %w", err)
	}
	w.logger.Debug("added watch", "path", path)
	return nil
}

// Start processes events until ctx is cancelled or Stop is called.
func (w *Watcher) Start(ctx context.Context) error {
	w.wg.Add(1)
	defer w.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-w.done:
			return nil
		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			w.handle(event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			select {
			case w.errors <- err:
			default:
				w.logger.Warn("watcher error dropped", "error", err)
			}
		}
	}
}

// Events returns the channel of settled bursts.
func (w *Watcher) Events() <-chan Event {
	return w.events
}

// Errors returns the channel for receiving errors.
func (w *Watcher) Errors() <-chan error {
	return w.errors
}

// Stop releases resources. Events and Errors are closed once Start has
// returned.
func (w *Watcher) Stop() error {
	var err error
	w.stopOnce.Do(func() {
		close(w.done)

		w.mu.Lock()
		if w.timer != nil {
			w.timer.Stop()
		}
		w.mu.Unlock()

		err = w.watcher.Close()
		w.wg.Wait()

		w.closeMu.Lock()
		w.closed = true
		close(w.events)
		close(w.errors)
		w.closeMu.Unlock()
	})
	return err
}

func (w *Watcher) handle(event fsnotify.Event) {
	if w.opts.shouldIgnore(event.Name) {
		return
	}
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if !slices.Contains(w.paths, event.Name) {
		w.paths = append(w.paths, event.Name)
	}
	if event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
		w.removed = true
	}

	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.opts.SettleDelay, w.flush)
}

func (w *Watcher) flush() {
	w.mu.Lock()
	paths := w.paths
	removed := w.removed
	w.paths = nil
	w.removed = false
	w.timer = nil
	w.mu.Unlock()

	if len(paths) == 0 {
		return
	}

	typ := EventModified
	if removed {
		typ = EventRemoved
	}

	w.closeMu.RLock()
	defer w.closeMu.RUnlock()
	if w.closed {
		return
	}
	select {
	case w.events <- Event{Type: typ, Paths: paths, At: time.Now()}:
	case <-w.done:
	}
}
