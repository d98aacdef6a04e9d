// Package watcher publishes root.refresh when files under a project root are
// created, removed or renamed.
package watcher

import (
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/opencode-ai/workbench/internal/event"
	"github.com/opencode-ai/workbench/internal/logging"
	"github.com/opencode-ai/workbench/internal/tree"
)

// DefaultDebounce collapses bursts of changes into one refresh.
const DefaultDebounce = 200 * time.Millisecond

// Options configures a watcher.
type Options struct {
	// Ignore uses tree ignore pattern syntax. Ignored directories are not
	// watched and changes to ignored paths are dropped.
	Ignore   []string
	Debounce time.Duration
}

// Watcher watches a project root on the OS filesystem. fsnotify is not
// recursive, so every directory below the root is added individually and
// directories created later are added as they appear.
type Watcher struct {
	watcher  *fsnotify.Watcher
	root     string
	bus      *event.Bus
	matcher  *tree.Matcher
	debounce time.Duration

	stopCh  chan struct{}
	doneCh  chan struct{}
	started bool
	mu      sync.Mutex
	timer   *time.Timer
}

// New creates a watcher for root publishing to bus.
func New(root string, bus *event.Bus, opts Options) (*Watcher, error) {
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	if bus == nil {
		bus = event.Default()
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		watcher:  fw,
		root:     filepath.Clean(root),
		bus:      bus,
		matcher:  tree.NewMatcher(root, tree.Options{Ignore: opts.Ignore}.Patterns()),
		debounce: opts.Debounce,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
	if err := w.addTree(w.root); err != nil {
		fw.Close()
		return nil, err
	}

	logging.Debug().Str("root", w.root).Int("dirs", len(fw.WatchList())).Msg("Project watcher initialized")
	return w, nil
}

func (w *Watcher) addTree(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == dir {
				return err
			}
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != w.root && w.matcher.Match(path, true) {
			return filepath.SkipDir
		}
		return w.watcher.Add(path)
	})
}

// Start begins delivering events.
func (w *Watcher) Start() {
	w.mu.Lock()
	if w.started {
		w.mu.Unlock()
		return
	}
	w.started = true
	w.mu.Unlock()
	go w.run()
}

func (w *Watcher) run() {
	defer close(w.doneCh)

	for {
		select {
		case <-w.stopCh:
			return
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handle(ev)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			logging.Error().Err(err).Msg("Project watcher error")
		}
	}
}

func (w *Watcher) handle(ev fsnotify.Event) {
	if ev.Op&(fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
		return
	}
	if w.matcher.Match(ev.Name, false) {
		return
	}
	if ev.Op&fsnotify.Create != 0 {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			if w.matcher.Match(ev.Name, true) {
				return
			}
			_ = w.addTree(ev.Name)
		}
	}
	w.schedule()
}

func (w *Watcher) schedule() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Reset(w.debounce)
		return
	}
	w.timer = time.AfterFunc(w.debounce, w.fire)
}

func (w *Watcher) fire() {
	select {
	case <-w.stopCh:
		return
	default:
	}
	logging.Debug().Str("root", w.root).Msg("Project tree changed")
	w.bus.Publish(event.Event{
		Type: event.RootRefresh,
		Data: event.RefreshRootData{Root: w.root},
	})
}

// Root returns the watched root.
func (w *Watcher) Root() string {
	return w.root
}

// Stop stops the watcher. It is safe to call more than once.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	started := w.started
	select {
	case <-w.stopCh:
		w.mu.Unlock()
		return nil
	default:
		close(w.stopCh)
	}
	if w.timer != nil {
		w.timer.Stop()
	}
	w.mu.Unlock()

	if started {
		<-w.doneCh
	}
	return w.watcher.Close()
}
