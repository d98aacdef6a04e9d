package session

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"golang.org/x/sync/singleflight"

	"github.com/opencode-ai/workbench/internal/analysis"
	"github.com/opencode-ai/workbench/internal/bootstrap"
	"github.com/opencode-ai/workbench/internal/config"
	"github.com/opencode-ai/workbench/internal/editor"
	"github.com/opencode-ai/workbench/internal/event"
	"github.com/opencode-ai/workbench/internal/logging"
	"github.com/opencode-ai/workbench/internal/prefs"
	"github.com/opencode-ai/workbench/internal/state"
	"github.com/opencode-ai/workbench/internal/tree"
	"github.com/opencode-ai/workbench/internal/watcher"
)

// ProjectState is the bootstrap progress shown to the user.
type ProjectState struct {
	Initialized     bool    `json:"initialized"`
	ProjectPath     *string `json:"projectPath,omitempty"`
	ProjectName     *string `json:"projectName,omitempty"`
	ShowProgressBar bool    `json:"showProgressBar"`
}

// EditorListState is the ordered list of open editors.
type EditorListState struct {
	Editors []*editor.Session `json:"editors"`
}

// Options configures a Coordinator.
type Options struct {
	// App is the shared analysis environment. Required; never disposed here.
	App *analysis.AppEnvironment
	// Bus defaults to the process-wide bus.
	Bus *event.Bus
	// Prefs remembers open files per project. Optional.
	Prefs       prefs.Store
	Config      *config.Config
	ProjectPath string
}

// Coordinator owns the state of one editing session.
type Coordinator struct {
	opts Options
	fs   afero.Fs
	log  zerolog.Logger
	root string

	ctx    context.Context
	cancel context.CancelFunc

	// taskMu guards closed against tasks.Add so no task starts after Close
	// began waiting.
	taskMu sync.Mutex
	tasks  sync.WaitGroup
	closed atomic.Bool

	// mu serialises registry insertion and the publication of the editor
	// list and active editor.
	mu       sync.Mutex
	registry *editor.Registry
	opens    singleflight.Group

	project *state.Value[ProjectState]
	editors *state.Value[EditorListState]
	active  *state.Value[*editor.Session]
	tree    *state.Value[*tree.Node]

	pipeline    *bootstrap.Pipeline
	unsubscribe []func()
	closeOnce   sync.Once
	closeErr    error

	watchMu sync.Mutex
	watcher *watcher.Watcher

	rememberMu sync.Mutex

	// treeGen numbers tree rebuilds; treeMu guards treeShown, the newest
	// generation published.
	treeGen   atomic.Uint64
	treeMu    sync.Mutex
	treeShown uint64

	restored     chan struct{}
	restoredOnce sync.Once
}

// New creates a coordinator, subscribes it to the bus and starts the
// bootstrap in the background. Bootstrap failures are reported through
// Status, not returned here.
func New(ctx context.Context, opts Options) (*Coordinator, error) {
	if opts.App == nil {
		return nil, fmt.Errorf("%w: application environment is required", ErrConfiguration)
	}
	if opts.Bus == nil {
		opts.Bus = event.Default()
	}
	if opts.Config == nil {
		opts.Config = config.Default()
	}

	ctx, cancel := context.WithCancel(ctx)
	c := &Coordinator{
		opts:     opts,
		fs:       opts.App.Fs(),
		log:      logging.Component("session").With().Str("project", opts.ProjectPath).Logger(),
		root:     editor.NormalizePath(opts.ProjectPath),
		ctx:      ctx,
		cancel:   cancel,
		registry: editor.NewRegistry(),
		project:  state.NewValue(ProjectState{ShowProgressBar: true}),
		editors:  state.NewValue(EditorListState{Editors: []*editor.Session{}}),
		active:   state.NewValue[*editor.Session](nil),
		tree:     state.NewValue[*tree.Node](nil),
		restored: make(chan struct{}),
	}

	c.unsubscribe = []func(){
		opts.Bus.Subscribe(event.FileOpen, c.onOpenFile),
		opts.Bus.Subscribe(event.RootRefresh, c.onRefreshRoot),
	}

	c.pipeline = bootstrap.New(bootstrap.Options{
		App:         opts.App,
		Bus:         opts.Bus,
		Prefs:       opts.Prefs,
		Config:      opts.Config,
		ProjectPath: opts.ProjectPath,
		OnReady:     c.onReady,
	})
	c.spawn("bootstrap", func(ctx context.Context) {
		if _, err := c.pipeline.Run(ctx); err != nil {
			c.markRestored()
		}
	})

	return c, nil
}

// ProjectState returns the observable project state.
func (c *Coordinator) ProjectState() *state.Value[ProjectState] { return c.project }

// Editors returns the observable editor list.
func (c *Coordinator) Editors() *state.Value[EditorListState] { return c.editors }

// ActiveEditor returns the observable active editor.
func (c *Coordinator) ActiveEditor() *state.Value[*editor.Session] { return c.active }

// Tree returns the observable file tree.
func (c *Coordinator) Tree() *state.Value[*tree.Node] { return c.tree }

// Status returns the observable bootstrap status.
func (c *Coordinator) Status() *state.Value[bootstrap.Status] { return c.pipeline.Status() }

// Environment returns the project analysis environment, or nil before the
// bootstrap created it.
func (c *Coordinator) Environment() *analysis.ProjectEnvironment { return c.pipeline.Environment() }

// spawn runs fn as a task bound to the session. Tasks are not started once
// Close has begun.
func (c *Coordinator) spawn(name string, fn func(ctx context.Context)) bool {
	if !c.track() {
		return false
	}
	go func() {
		defer c.tasks.Done()
		defer func() {
			if r := recover(); r != nil {
				c.log.Error().Str("task", name).Interface("panic", r).Msg("Session task panicked")
			}
		}()
		fn(c.ctx)
	}()
	return true
}

// track registers a background task with Close. It reports false once Close
// has begun; otherwise the caller must call c.tasks.Done.
func (c *Coordinator) track() bool {
	c.taskMu.Lock()
	defer c.taskMu.Unlock()
	if c.closed.Load() {
		return false
	}
	c.tasks.Add(1)
	return true
}

func (c *Coordinator) onReady(ctx context.Context, r *bootstrap.Result) error {
	root, name := r.Project.Root, r.Project.Name
	c.project.Update(func(s ProjectState) ProjectState {
		if s.Initialized {
			return s
		}
		return ProjectState{Initialized: true, ProjectPath: &root, ProjectName: &name}
	})
	c.log.Info().Str("root", root).Int("remembered", len(r.Remembered)).Msg("Project ready")
	c.opts.Bus.Publish(event.Event{
		Type: event.ProjectReady,
		Data: event.ProjectReadyData{Path: root, Name: name},
	})

	if c.opts.Config.ShouldWatch() {
		c.startWatcher(root)
	}

	var paths []string
	if c.opts.Config.ShouldRestoreOpenFiles() {
		paths = append(paths, r.Remembered...)
	}
	if r.DefaultFile != "" {
		paths = append(paths, r.DefaultFile)
	}
	if len(paths) == 0 {
		c.markRestored()
		return nil
	}
	started := c.spawn("initial-open", func(ctx context.Context) {
		defer c.markRestored()
		for _, p := range paths {
			if _, err := c.OpenFile(ctx, p); err != nil {
				c.log.Warn().Err(err).Str("path", p).Msg("Failed to open file")
			}
		}
	})
	if !started {
		c.markRestored()
	}
	return nil
}

// Restored is closed once the remembered and default files have been opened,
// or once the session can no longer open them.
func (c *Coordinator) Restored() <-chan struct{} { return c.restored }

func (c *Coordinator) markRestored() {
	c.restoredOnce.Do(func() { close(c.restored) })
}

func (c *Coordinator) startWatcher(root string) {
	w, err := watcher.New(root, c.opts.Bus, watcher.Options{Ignore: c.opts.Config.TreeIgnore})
	if err != nil {
		c.log.Warn().Err(err).Msg("Project watcher disabled")
		return
	}

	c.watchMu.Lock()
	defer c.watchMu.Unlock()
	if c.closed.Load() {
		_ = w.Stop()
		return
	}
	c.watcher = w
	w.Start()
}

func (c *Coordinator) onOpenFile(e event.Event) {
	var path string
	switch d := e.Data.(type) {
	case event.OpenFileData:
		path = d.Path
	case *event.OpenFileData:
		path = d.Path
	default:
		c.log.Warn().Str("type", fmt.Sprintf("%T", e.Data)).Msg("Ignoring file.open event with unexpected data")
		return
	}
	c.spawn("open-file", func(ctx context.Context) {
		if _, err := c.OpenFile(ctx, path); err != nil && !errors.Is(err, ErrClosed) {
			c.log.Warn().Err(err).Str("path", path).Msg("Failed to open file")
		}
	})
}

func (c *Coordinator) onRefreshRoot(e event.Event) {
	var root string
	switch d := e.Data.(type) {
	case event.RefreshRootData:
		root = d.Root
	case *event.RefreshRootData:
		root = d.Root
	default:
		return
	}
	if !c.owns(root) {
		return
	}
	c.spawn("refresh-root", func(ctx context.Context) {
		if err := c.SetRoot(ctx, root); err != nil && !errors.Is(err, ErrClosed) {
			c.log.Warn().Err(err).Str("root", root).Msg("Failed to rebuild tree")
		}
	})
}

// owns reports whether path is the session root or lies below it. Sessions
// sharing a bus only rebuild for their own project.
func (c *Coordinator) owns(path string) bool {
	roots := []string{c.root}
	if p := c.project.Get().ProjectPath; p != nil && *p != c.root {
		roots = append(roots, *p)
	}
	path = editor.NormalizePath(path)
	for _, root := range roots {
		rel, err := filepath.Rel(root, path)
		if err != nil {
			continue
		}
		if rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))) {
			return true
		}
	}
	return false
}

// OpenFile opens path, or focuses it if it is already open. A path that does
// not exist is skipped: the result is (nil, nil) and no state changes.
func (c *Coordinator) OpenFile(ctx context.Context, path string) (*editor.Session, error) {
	if c.closed.Load() {
		return nil, ErrClosed
	}
	key := editor.NormalizePath(path)

	if s := c.focusExisting(key); s != nil {
		return s, nil
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// The load is shared by every caller of key, so it runs on the session
	// context. Each caller stops waiting on its own ctx.
	ch := c.opens.DoChan(key, func() (any, error) {
		if !c.track() {
			return nil, ErrClosed
		}
		defer c.tasks.Done()
		return c.open(c.ctx, key)
	})
	var res singleflight.Result
	select {
	case res = <-ch:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if res.Err != nil {
		return nil, res.Err
	}
	s, _ := res.Val.(*editor.Session)
	if s == nil {
		return nil, nil
	}
	// Callers that shared the load still make the editor active.
	c.mu.Lock()
	if c.active.Get() != s {
		c.activateLocked(s)
	}
	c.mu.Unlock()
	return s, nil
}

func (c *Coordinator) focusExisting(key string) *editor.Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.registry.Find(key)
	if !ok {
		return nil
	}
	c.activateLocked(s)
	return s
}

func (c *Coordinator) open(ctx context.Context, path string) (*editor.Session, error) {
	if c.closed.Load() {
		return nil, ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	info, err := c.fs.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			c.log.Debug().Str("path", path).Err(ErrResourceUnavailable).Msg("File to open does not exist")
			return nil, nil
		}
		return nil, fmt.Errorf("%w: %w", ErrIO, err)
	}
	if info.IsDir() {
		c.log.Debug().Str("path", path).Msg("Ignoring open of a directory")
		return nil, nil
	}

	fileType := c.opts.App.FileTypes().ByPath(path)
	text := ""
	if !fileType.Binary {
		loaded, err := analysis.LoadText(c.fs, path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, nil
			}
			return nil, fmt.Errorf("%w: %w", ErrIO, err)
		}
		text = loaded.Content
	}
	s := editor.NewSession(path, text, fileType)

	c.mu.Lock()
	if c.closed.Load() {
		c.mu.Unlock()
		return nil, ErrClosed
	}
	if err := ctx.Err(); err != nil {
		c.mu.Unlock()
		return nil, err
	}
	if existing, ok := c.registry.Find(path); ok {
		c.activateLocked(existing)
		c.mu.Unlock()
		return existing, nil
	}
	if err := c.registry.Insert(s); err != nil {
		c.mu.Unlock()
		return nil, err
	}
	c.editors.Set(EditorListState{Editors: c.registry.List()})
	c.activateLocked(s)
	c.mu.Unlock()

	c.log.Debug().Str("path", path).Str("type", fileType.Name).Msg("Opened file")
	c.opts.Bus.Publish(event.Event{
		Type: event.EditorOpened,
		Data: event.EditorData{ID: s.ID, Path: s.Path},
	})
	c.remember(ctx)
	return s, nil
}

// activateLocked publishes s as the active editor. Caller holds c.mu and s
// is already in the published editor list.
func (c *Coordinator) activateLocked(s *editor.Session) {
	c.active.Set(s)
	c.opts.Bus.Publish(event.Event{
		Type: event.EditorActivated,
		Data: event.EditorData{ID: s.ID, Path: s.Path},
	})
}

func (c *Coordinator) remember(ctx context.Context) {
	if c.opts.Prefs == nil {
		return
	}
	c.rememberMu.Lock()
	defer c.rememberMu.Unlock()

	list := c.registry.List()
	paths := make([]string, 0, len(list))
	for _, s := range list {
		paths = append(paths, s.Path)
	}
	if err := c.opts.Prefs.PutStringSet(ctx, c.root, paths); err != nil {
		c.log.Warn().Err(err).Msg("Failed to remember open files")
	}
}

// SelectTab makes the editor at index active. index must satisfy
// 0 <= index < number of open editors.
func (c *Coordinator) SelectTab(index int) error {
	if c.closed.Load() {
		return ErrClosed
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	list := c.editors.Get().Editors
	if index < 0 || index >= len(list) {
		return &InvariantError{Op: "select tab", Index: index, Len: len(list)}
	}
	c.activateLocked(list[index])
	return nil
}

// SetRoot rebuilds the file tree from the directory at path. When rebuilds
// overlap, the one started last wins; an older build finishing later is
// dropped.
func (c *Coordinator) SetRoot(ctx context.Context, path string) error {
	if c.closed.Load() {
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	root := filepath.Clean(path)
	gen := c.treeGen.Add(1)

	if env := c.pipeline.Environment(); env != nil && !env.Disposed() {
		analysis.NotifyTreeChanging(env, root)
	}

	node, err := tree.Build(c.fs, root, tree.Options{Ignore: c.opts.Config.TreeIgnore})
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: %w", ErrResourceUnavailable, err)
		}
		return fmt.Errorf("%w: %w", ErrIO, err)
	}

	c.treeMu.Lock()
	defer c.treeMu.Unlock()
	if gen < c.treeShown {
		c.log.Debug().Str("root", root).Msg("Dropping stale tree rebuild")
		return nil
	}
	c.treeShown = gen
	c.tree.Set(node)
	return nil
}

// Close tears the session down: bus subscriptions are released, background
// tasks are cancelled and awaited, the watcher is stopped and the project
// environment disposed. It is safe to call more than once and before the
// bootstrap finished.
func (c *Coordinator) Close() error {
	c.closeOnce.Do(func() {
		c.taskMu.Lock()
		c.closed.Store(true)
		c.taskMu.Unlock()

		for _, unsub := range c.unsubscribe {
			unsub()
		}
		c.unsubscribe = nil

		c.cancel()
		c.tasks.Wait()
		c.pipeline.Wait()
		c.markRestored()

		c.watchMu.Lock()
		if c.watcher != nil {
			c.closeErr = c.watcher.Stop()
			c.watcher = nil
		}
		c.watchMu.Unlock()

		if env := c.pipeline.Environment(); env != nil {
			env.Dispose()
		}
		c.log.Debug().Msg("Session closed")
	})
	return c.closeErr
}
