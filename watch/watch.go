// Package watch rebuilds the route table when files under the functions or
// assets roots are added or removed.
package watch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caffeineduck/fnhost/resource"
	"github.com/caffeineduck/fnhost/route"
	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is how long the watcher waits for the file system to go
// quiet before rescanning.
const DefaultDebounce = 250 * time.Millisecond

// Op is the kind of change that triggered a rescan.
type Op int

const (
	Add Op = iota
	Remove
)

func (o Op) String() string {
	switch o {
	case Add:
		return "add"
	case Remove:
		return "remove"
	default:
		return fmt.Sprintf("op(%d)", int(o))
	}
}

// Event is a file added to or removed from a watched root.
type Event struct {
	Op   Op
	Path string
}

// Watcher rescans the project on changes and publishes each new table to
// the store. A failed rescan keeps the previous table.
type Watcher struct {
	store    *route.Store
	opts     resource.Options
	debounce time.Duration
	onReload func(*route.Table)
	onError  func(error)
	onEvent  func(Event)
	log      *slog.Logger

	ready   chan struct{}
	watched map[string]bool
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithDebounce sets the quiet period before a rescan.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// OnReload is called with every table the watcher publishes.
func OnReload(fn func(*route.Table)) Option {
	return func(w *Watcher) { w.onReload = fn }
}

// OnError is called when a rescan fails or the file system watcher reports
// an error.
func OnError(fn func(error)) Option {
	return func(w *Watcher) { w.onError = fn }
}

// OnEvent is called for every relevant change before it is debounced.
func OnEvent(fn func(Event)) Option {
	return func(w *Watcher) { w.onEvent = fn }
}

func WithLogger(log *slog.Logger) Option {
	return func(w *Watcher) {
		if log != nil {
			w.log = log
		}
	}
}

func New(store *route.Store, opts resource.Options, options ...Option) *Watcher {
	w := &Watcher{
		store:    store,
		opts:     opts,
		debounce: DefaultDebounce,
		log:      slog.Default(),
		ready:    make(chan struct{}),
		watched:  make(map[string]bool),
	}
	for _, opt := range options {
		opt(w)
	}
	return w
}

// Ready is closed once Run watches the project.
func (w *Watcher) Ready() <-chan struct{} {
	return w.ready
}

// Reload rescans the project and publishes the result.
func (w *Watcher) Reload() (*route.Table, error) {
	resources, err := resource.Discover(w.opts)
	if err != nil {
		return nil, err
	}
	t, err := w.store.Rebuild(resources)
	if err != nil {
		return nil, err
	}
	w.log.Info("routes reloaded", "generation", t.Generation(), "routes", t.Len())
	if w.onReload != nil {
		w.onReload(t)
	}
	return t, nil
}

// Run watches until ctx is done.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create file watcher: %w", err)
	}
	defer fw.Close()

	base, err := filepath.Abs(w.opts.BaseDir)
	if err != nil {
		return fmt.Errorf("resolve base dir: %w", err)
	}
	if err := w.add(fw, base); err != nil {
		return err
	}
	if err := w.addRoots(fw); err != nil {
		return err
	}
	close(w.ready)

	timer := time.NewTimer(w.debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			e, relevant := w.translate(fw, base, ev)
			if !relevant {
				continue
			}
			w.log.Debug("file change", "op", e.Op, "path", e.Path)
			if w.onEvent != nil {
				w.onEvent(e)
			}
			timer.Reset(w.debounce)

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.fail(fmt.Errorf("file watcher: %w", err))

		case <-timer.C:
			if _, err := w.Reload(); err != nil {
				w.fail(err)
			}
			if err := w.addRoots(fw); err != nil {
				w.fail(err)
			}
		}
	}
}

func (w *Watcher) fail(err error) {
	w.log.Error("live reload failed, keeping current routes", "error", err)
	if w.onError != nil {
		w.onError(err)
	}
}

// translate maps a raw notification to an Event. Writes and chmods are not
// relevant: runners pick up content changes themselves. Below the base dir
// only the functions and assets roots matter.
func (w *Watcher) translate(fw *fsnotify.Watcher, base string, ev fsnotify.Event) (Event, bool) {
	if resource.SkipName(filepath.Base(ev.Name)) {
		return Event{}, false
	}
	atBase := filepath.Dir(ev.Name) == base

	switch {
	case ev.Has(fsnotify.Create):
		info, err := os.Stat(ev.Name)
		isDir := err == nil && info.IsDir()
		if atBase && (!isDir || !w.isRoot(ev.Name)) {
			return Event{}, false
		}
		if isDir {
			if err := w.addTree(fw, ev.Name); err != nil {
				w.fail(err)
			}
		}
		return Event{Op: Add, Path: ev.Name}, true

	case ev.Has(fsnotify.Remove), ev.Has(fsnotify.Rename):
		wasDir := w.forget(fw, ev.Name)
		if atBase && !wasDir {
			return Event{}, false
		}
		return Event{Op: Remove, Path: ev.Name}, true
	}
	return Event{}, false
}

// isRoot reports whether dir is the current functions or assets root.
func (w *Watcher) isRoot(dir string) bool {
	roots, err := resource.FindRoots(w.opts)
	if err != nil {
		return false
	}
	return dir == roots.Functions || dir == roots.Assets
}

// forget drops dir and every directory below it from the watch set and
// reports whether dir itself was watched.
func (w *Watcher) forget(fw *fsnotify.Watcher, dir string) bool {
	wasDir := w.watched[dir]
	prefix := dir + string(filepath.Separator)
	for p := range w.watched {
		if p != dir && !strings.HasPrefix(p, prefix) {
			continue
		}
		// The watch may already be gone with the directory.
		_ = fw.Remove(p)
		delete(w.watched, p)
	}
	return wasDir
}

// addRoots watches the current functions and assets roots recursively.
func (w *Watcher) addRoots(fw *fsnotify.Watcher) error {
	roots, err := resource.FindRoots(w.opts)
	if err != nil {
		return err
	}
	for _, root := range []string{roots.Functions, roots.Assets} {
		if root == "" {
			continue
		}
		if err := w.addTree(fw, root); err != nil {
			return err
		}
	}
	return nil
}

func (w *Watcher) addTree(fw *fsnotify.Watcher, root string) error {
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if p != root && resource.SkipName(d.Name()) {
			return filepath.SkipDir
		}
		return w.add(fw, p)
	})
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

func (w *Watcher) add(fw *fsnotify.Watcher, dir string) error {
	if w.watched[dir] {
		return nil
	}
	if err := fw.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}
	w.watched[dir] = true
	return nil
}
