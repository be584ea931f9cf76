// Package watch provides an opt-in file watcher for policy authoring: it
// watches a policy file (and its directory, for editors that replace files
// atomically) and invokes a reload callback a short debounce interval after
// the last detected change, instead of on every individual write.
//
// Grounded on mercator-hq-jupiter's pkg/policy/manager/watcher.go
// (FileWatcher/Debouncer pair), narrowed to the single-file case the
// command-line policy watcher needs. Unlike the grounding file, this
// package does no logging of its own: reload-callback errors are returned
// to the caller rather than logged here, leaving logging to whichever
// command invokes Watch.
package watch

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Config configures a PolicyWatcher.
type Config struct {
	// Path is the policy file to watch.
	Path string

	// DebounceInterval is how long to wait after the last detected change
	// before invoking the reload callback.
	DebounceInterval time.Duration
}

// DefaultConfig returns the default watcher configuration.
func DefaultConfig(path string) Config {
	return Config{Path: path, DebounceInterval: 150 * time.Millisecond}
}

// PolicyWatcher watches a policy file for changes and triggers a debounced
// reload callback, so a policy author sees policy_hash and allow/deny-glob
// validity updates shortly after each save rather than being flooded with
// one reload per write.
type PolicyWatcher struct {
	watcher  *fsnotify.Watcher
	cfg      Config
	debounce *Debouncer

	mu      sync.RWMutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// New creates a PolicyWatcher for the given configuration.
func New(cfg Config) (*PolicyWatcher, error) {
	if cfg.DebounceInterval <= 0 {
		cfg.DebounceInterval = 150 * time.Millisecond
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("watch: create fsnotify watcher: %w", err)
	}
	return &PolicyWatcher{
		watcher:  w,
		cfg:      cfg,
		debounce: NewDebouncer(cfg.DebounceInterval),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}, nil
}

// Watch blocks, watching the configured path until ctx is cancelled or Stop
// is called, invoking onReload (with any error it returns) after each
// debounced batch of changes.
func (w *PolicyWatcher) Watch(ctx context.Context, onReload func() error) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("watch: already running")
	}
	w.running = true
	w.mu.Unlock()

	defer func() {
		w.mu.Lock()
		w.running = false
		w.mu.Unlock()
		close(w.doneCh)
	}()

	dir := filepath.Dir(w.cfg.Path)
	if err := w.watcher.Add(dir); err != nil {
		return fmt.Errorf("watch: add %s: %w", dir, err)
	}

	target := filepath.Clean(w.cfg.Path)

	for {
		select {
		case <-ctx.Done():
			return nil

		case <-w.stopCh:
			return nil

		case event, ok := <-w.watcher.Events:
			if !ok {
				return fmt.Errorf("watch: events channel closed")
			}
			if !w.shouldProcess(event, target) {
				continue
			}
			w.debounce.Trigger(func() {
				_ = onReload()
			})

		case _, ok := <-w.watcher.Errors:
			if !ok {
				return fmt.Errorf("watch: errors channel closed")
			}
			// Keep watching; a single fsnotify error shouldn't kill the loop.
		}
	}
}

// Stop stops the watcher and releases its fsnotify handle.
func (w *PolicyWatcher) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	w.mu.Unlock()

	close(w.stopCh)
	<-w.doneCh
	w.debounce.Stop()
	return w.watcher.Close()
}

func (w *PolicyWatcher) shouldProcess(event fsnotify.Event, target string) bool {
	if event.Op&fsnotify.Chmod == fsnotify.Chmod {
		return false
	}
	if filepath.Clean(event.Name) != target {
		return false
	}
	if strings.HasPrefix(filepath.Base(event.Name), ".") {
		return false
	}
	return true
}

// Debouncer collapses a burst of triggers into a single callback invocation
// after the configured interval has passed with no further triggers.
type Debouncer struct {
	interval time.Duration
	mu       sync.Mutex
	timer    *time.Timer
	callback func()
	stopCh   chan struct{}
}

// NewDebouncer creates a Debouncer with the given quiet-period interval.
func NewDebouncer(interval time.Duration) *Debouncer {
	return &Debouncer{interval: interval, stopCh: make(chan struct{})}
}

// Trigger records callback as the pending action and resets the quiet-period
// timer; only the most recently triggered callback fires.
func (d *Debouncer) Trigger(callback func()) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.callback = callback
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.interval, func() {
		select {
		case <-d.stopCh:
			return
		default:
			d.mu.Lock()
			cb := d.callback
			d.mu.Unlock()
			if cb != nil {
				cb()
			}
		}
	})
}

// Stop cancels any pending callback and prevents further triggers.
func (d *Debouncer) Stop() {
	close(d.stopCh)
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.callback = nil
}
