package watcher

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/locus-dev/locus/internal/scanner"
)

// Watcher produces debounced filesystem events for a repository tree using
// platform-native monitoring. Directories are watched recursively; new
// directories are added as they appear.
type Watcher struct {
	root    string
	scanner *scanner.Scanner
	opts    Options

	fsw       *fsnotify.Watcher
	debouncer *Debouncer
	rescan    chan struct{}
	errors    chan error

	mu      sync.Mutex
	stopped bool
	cancel  context.CancelFunc
}

// New creates a watcher for root. The scanner supplies exclusion rules so
// excluded subtrees are never watched.
func New(root string, sc *scanner.Scanner, opts Options) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}

	opts = opts.WithDefaults()
	return &Watcher{
		root:      root,
		scanner:   sc,
		opts:      opts,
		fsw:       fsw,
		debouncer: NewDebouncer(opts.DebounceWindow),
		rescan:    make(chan struct{}, 1),
		errors:    make(chan error, 16),
	}, nil
}

// Start begins watching. It returns after the initial directory
// registration; events flow until Stop or context cancellation.
func (w *Watcher) Start(ctx context.Context) error {
	if err := w.addRecursive(w.root); err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	w.mu.Lock()
	w.cancel = cancel
	w.mu.Unlock()

	go w.loop(runCtx)
	if w.opts.FullScanInterval > 0 {
		go w.rescanLoop(runCtx)
	}
	return nil
}

// Events returns the channel of debounced event batches.
func (w *Watcher) Events() <-chan []Event {
	return w.debouncer.Output()
}

// Rescan returns the channel signaling periodic full scans.
func (w *Watcher) Rescan() <-chan struct{} {
	return w.rescan
}

// Errors returns the channel of non-fatal watcher errors.
func (w *Watcher) Errors() <-chan error {
	return w.errors
}

// Stop stops the watcher. Safe to call multiple times.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.stopped {
		return nil
	}
	w.stopped = true
	if w.cancel != nil {
		w.cancel()
	}
	err := w.fsw.Close()
	w.debouncer.Stop()
	return err
}

// addRecursive registers a directory and its non-excluded descendants.
func (w *Watcher) addRecursive(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || !d.IsDir() {
			return nil
		}

		rel, relErr := filepath.Rel(w.root, path)
		if relErr != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)
		if rel != "." && w.scanner.IsExcluded(rel+"/") {
			return filepath.SkipDir
		}

		if addErr := w.fsw.Add(path); addErr != nil {
			slog.Warn("failed to watch directory",
				slog.String("path", path),
				slog.String("error", addErr.Error()),
			)
		}
		return nil
	})
}

// loop translates fsnotify events into debounced engine events.
func (w *Watcher) loop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return

		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handle(ev)

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			select {
			case w.errors <- err:
			default:
			}
		}
	}
}

// handle converts one fsnotify event.
func (w *Watcher) handle(ev fsnotify.Event) {
	rel, err := filepath.Rel(w.root, ev.Name)
	if err != nil {
		return
	}
	rel = filepath.ToSlash(rel)
	if w.scanner.IsExcluded(rel) {
		return
	}

	now := time.Now()

	switch {
	case ev.Op.Has(fsnotify.Create):
		// A created directory needs watching; its contents arrive as
		// separate events.
		if isDir(ev.Name) {
			_ = w.addRecursive(ev.Name)
			return
		}
		w.debouncer.Add(Event{Path: rel, Operation: OpCreate, Timestamp: now})

	case ev.Op.Has(fsnotify.Write):
		w.debouncer.Add(Event{Path: rel, Operation: OpModify, Timestamp: now})

	case ev.Op.Has(fsnotify.Remove):
		w.debouncer.Add(Event{Path: rel, Operation: OpDelete, Timestamp: now})

	case ev.Op.Has(fsnotify.Rename):
		// fsnotify reports the old path; the new path arrives as a
		// Create. Deleting the old path keeps state consistent and the
		// periodic scan covers a missed Create.
		w.debouncer.Add(Event{Path: rel, Operation: OpDelete, Timestamp: now})
	}
}

// rescanLoop signals a periodic full scan for missed-event recovery.
func (w *Watcher) rescanLoop(ctx context.Context) {
	ticker := time.NewTicker(w.opts.FullScanInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			select {
			case w.rescan <- struct{}{}:
			default:
			}
		}
	}
}

// isDir stats a path, false on error.
func isDir(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.IsDir()
}
