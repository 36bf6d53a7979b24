package watcher

import (
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is the quiet period applied per path before a change is
// acted on.
const DefaultDebounce = 300 * time.Millisecond

// Reconciler receives debounced, extension-filtered change notifications.
// The registry store implements it.
type Reconciler interface {
	// FileChanged means the path exists (created or modified).
	FileChanged(path string)
	// FileRemoved means the path no longer exists.
	FileRemoved(path string)
}

// Watcher observes a directory tree recursively. Events for files whose
// extension is not in the allow-list are dropped, which also hides the
// temp files the registry creates during atomic writes.
type Watcher struct {
	root       string
	extensions map[string]bool
	debounce   time.Duration
	reconciler Reconciler
	logger     *slog.Logger

	fw       *fsnotify.Watcher
	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	mu     sync.Mutex
	timers map[string]*time.Timer
}

// New builds a watcher for root. The extension list is the registry's
// allow-list (entries with or without a leading dot). A non-positive
// debounce gets DefaultDebounce. A nil logger gets slog.Default().
func New(root string, extensions []string, debounce time.Duration, rec Reconciler, logger *slog.Logger) *Watcher {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	if logger == nil {
		logger = slog.Default()
	}
	exts := make(map[string]bool, len(extensions))
	for _, ext := range extensions {
		exts[strings.ToLower(strings.TrimPrefix(ext, "."))] = true
	}
	return &Watcher{
		root:       root,
		extensions: exts,
		debounce:   debounce,
		reconciler: rec,
		logger:     logger,
		done:       make(chan struct{}),
		timers:     make(map[string]*time.Timer),
	}
}

// Start registers the directory tree with fsnotify and launches the event
// loop. New subdirectories are watched as they appear.
func (w *Watcher) Start() error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating filesystem watcher: %w", err)
	}
	w.fw = fw

	if err := w.watchTree(w.root); err != nil {
		fw.Close()
		return err
	}

	w.wg.Add(1)
	go w.loop()
	return nil
}

// Stop shuts the watcher down and cancels pending debounce timers. It is
// safe to call more than once. Timer callbacks already in flight may still
// deliver one notification.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.done)
		if w.fw != nil {
			w.fw.Close()
		}
		w.wg.Wait()

		w.mu.Lock()
		for path, t := range w.timers {
			t.Stop()
			delete(w.timers, path)
		}
		w.mu.Unlock()
	})
}

func (w *Watcher) loop() {
	defer w.wg.Done()
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.fw.Events:
			if !ok {
				return
			}
			w.handle(event)
		case err, ok := <-w.fw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("filesystem watcher error", "error", err)
		}
	}
}

func (w *Watcher) handle(event fsnotify.Event) {
	if event.Op == fsnotify.Chmod {
		return
	}

	// A new directory needs a watch of its own, and any files already in
	// it were created before the watch existed.
	if event.Has(fsnotify.Create) {
		if fi, err := os.Stat(event.Name); err == nil && fi.IsDir() {
			if err := w.watchTree(event.Name); err != nil {
				w.logger.Warn("could not watch new directory", "path", event.Name, "error", err)
			}
			w.scheduleExisting(event.Name)
			return
		}
	}

	if !w.recognized(event.Name) {
		return
	}
	w.schedule(event.Name)
}

// schedule arms (or resets) the debounce timer for a path. When the timer
// fires, the path's current state on disk decides between a change and a
// removal, which collapses editor rename dances into one reconciliation.
func (w *Watcher) schedule(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if t, ok := w.timers[path]; ok {
		t.Reset(w.debounce)
		return
	}
	w.timers[path] = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		delete(w.timers, path)
		w.mu.Unlock()

		select {
		case <-w.done:
			return
		default:
		}

		if _, err := os.Stat(path); err == nil {
			w.reconciler.FileChanged(path)
		} else {
			w.reconciler.FileRemoved(path)
		}
	})
}

// scheduleExisting debounces every recognized file already under dir.
func (w *Watcher) scheduleExisting(dir string) {
	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() && w.recognized(path) {
			w.schedule(path)
		}
		return nil
	})
}

// watchTree adds dir and all its subdirectories to the fsnotify watch set.
func (w *Watcher) watchTree(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if err := w.fw.Add(path); err != nil {
				return fmt.Errorf("watching %s: %w", path, err)
			}
		}
		return nil
	})
}

func (w *Watcher) recognized(path string) bool {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
	return ext != "" && w.extensions[ext]
}
