package session

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opencode-ai/workbench/internal/analysis"
	"github.com/opencode-ai/workbench/internal/bootstrap"
	"github.com/opencode-ai/workbench/internal/config"
	"github.com/opencode-ai/workbench/internal/editor"
	"github.com/opencode-ai/workbench/internal/event"
	"github.com/opencode-ai/workbench/internal/prefs"
)

const (
	projectRoot = "/work/demo"
	mainJava    = "/work/demo/app/src/main/java/com/example/Main.java"
	utilJava    = "/work/demo/app/src/main/java/com/example/Util.java"
	buildGradle = "/work/demo/build.gradle"
)

type harness struct {
	fs    afero.Fs
	bus   *event.Bus
	prefs *prefs.MemoryStore
	cfg   *config.Config
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	fs := afero.NewMemMapFs()
	for path, content := range map[string]string{
		mainJava:    "package com.example;\n\nclass Main {}\n",
		utilJava:    "package com.example;\r\n\r\nclass Util {}\r\n",
		buildGradle: "plugins {}\n",
	} {
		require.NoError(t, afero.WriteFile(fs, path, []byte(content), 0644))
	}
	bus := event.NewBus()
	t.Cleanup(func() { _ = bus.Close() })
	return &harness{fs: fs, bus: bus, prefs: prefs.NewMemoryStore(), cfg: config.Default()}
}

func (h *harness) start(t *testing.T, projectPath string) *Coordinator {
	t.Helper()
	c, err := New(context.Background(), Options{
		App:         analysis.NewAppEnvironment(h.fs),
		Bus:         h.bus,
		Prefs:       h.prefs,
		Config:      h.cfg,
		ProjectPath: projectPath,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func waitReady(t *testing.T, c *Coordinator) {
	t.Helper()
	require.Eventually(t, func() bool {
		return c.Status().Get().Stage.Terminal()
	}, 5*time.Second, 5*time.Millisecond)
	require.Equal(t, bootstrap.Ready, c.Status().Get().Stage, "bootstrap error: %v", c.Status().Get().Err)
}

func waitRestored(t *testing.T, c *Coordinator) {
	t.Helper()
	select {
	case <-c.Restored():
	case <-time.After(2 * time.Second):
		t.Fatal("initial files were not restored")
	}
}

func paths(c *Coordinator) []string {
	var out []string
	for _, s := range c.Editors().Get().Editors {
		out = append(out, s.Path)
	}
	return out
}

func TestBootstrapPublishesReadyState(t *testing.T) {
	h := newHarness(t)
	c := h.start(t, projectRoot)
	waitReady(t, c)

	ps := c.ProjectState().Get()
	require.True(t, ps.Initialized)
	assert.False(t, ps.ShowProgressBar)
	require.NotNil(t, ps.ProjectPath)
	require.NotNil(t, ps.ProjectName)
	assert.Equal(t, projectRoot, *ps.ProjectPath)
	assert.Equal(t, "demo", *ps.ProjectName)

	env := c.Environment()
	require.NotNil(t, env)
	_, ok := analysis.FindClass(env, "com.example.Main")
	assert.True(t, ok)

	require.Eventually(t, func() bool {
		return c.Tree().Get() != nil
	}, 2*time.Second, 5*time.Millisecond)
	assert.NotNil(t, c.Tree().Get().Find(mainJava))
}

// blockingPrefs holds GetStringSet until release is closed.
type blockingPrefs struct {
	*prefs.MemoryStore
	release chan struct{}
}

func (b *blockingPrefs) GetStringSet(ctx context.Context, key string) ([]string, error) {
	select {
	case <-b.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return b.MemoryStore.GetStringSet(ctx, key)
}

func TestProjectStateWaitsForBootstrap(t *testing.T) {
	h := newHarness(t)
	store := &blockingPrefs{MemoryStore: h.prefs, release: make(chan struct{})}
	c, err := New(context.Background(), Options{
		App:         analysis.NewAppEnvironment(h.fs),
		Bus:         h.bus,
		Prefs:       store,
		Config:      h.cfg,
		ProjectPath: projectRoot,
	})
	require.NoError(t, err)
	defer c.Close()

	ch, cancel := c.ProjectState().Watch()
	defer cancel()
	first := <-ch
	assert.False(t, first.Initialized)
	assert.True(t, first.ShowProgressBar)

	require.Eventually(t, func() bool {
		return c.Status().Get().Stage == bootstrap.ClasspathSeeded
	}, 2*time.Second, 5*time.Millisecond)
	assert.False(t, c.ProjectState().Get().Initialized)

	close(store.release)
	select {
	case ps := <-ch:
		assert.True(t, ps.Initialized)
	case <-time.After(2 * time.Second):
		t.Fatal("project state never became ready")
	}
	waitReady(t, c)
	assert.NotEmpty(t, c.Environment().FileManager().Entries())
}

func TestCloseWhileBootstrapBlocked(t *testing.T) {
	h := newHarness(t)
	store := &blockingPrefs{MemoryStore: h.prefs, release: make(chan struct{})}
	c, err := New(context.Background(), Options{
		App:         analysis.NewAppEnvironment(h.fs),
		Bus:         h.bus,
		Prefs:       store,
		Config:      h.cfg,
		ProjectPath: projectRoot,
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return c.Status().Get().Stage == bootstrap.ClasspathSeeded
	}, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, c.Close())
	status := c.Status().Get()
	assert.Equal(t, bootstrap.Failed, status.Stage)
	assert.ErrorIs(t, status.Err, context.Canceled)
	assert.False(t, c.ProjectState().Get().Initialized)
	assert.True(t, c.Environment().Disposed())
}

func TestDefaultFileOpenedAfterReady(t *testing.T) {
	h := newHarness(t)
	h.cfg.DefaultFile = "app/src/main/java/com/example/Main.java"
	c := h.start(t, projectRoot)

	waitReady(t, c)
	require.Eventually(t, func() bool {
		active := c.ActiveEditor().Get()
		return active != nil && active.Path == mainJava
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{mainJava}, paths(c))
}

func TestRememberedFilesReopened(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.prefs.PutStringSet(context.Background(), projectRoot, []string{buildGradle, "/work/demo/gone.txt"}))
	h.cfg.DefaultFile = mainJava
	c := h.start(t, projectRoot)

	waitReady(t, c)
	waitRestored(t, c)
	assert.Equal(t, []string{buildGradle, mainJava}, paths(c))
	assert.Equal(t, mainJava, c.ActiveEditor().Get().Path)
}

func TestRestoreDisabled(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.prefs.PutStringSet(context.Background(), projectRoot, []string{buildGradle}))
	restore := false
	h.cfg.RestoreOpenFiles = &restore
	c := h.start(t, projectRoot)

	waitReady(t, c)
	waitRestored(t, c)
	assert.Empty(t, c.Editors().Get().Editors)
}

func TestOpenFileIsIdempotent(t *testing.T) {
	h := newHarness(t)
	c := h.start(t, projectRoot)

	first, err := c.OpenFile(context.Background(), mainJava)
	require.NoError(t, err)
	require.NotNil(t, first)
	assert.Equal(t, analysis.Java.Name, first.FileType.Name)
	assert.Equal(t, "package com.example;\n\nclass Main {}\n", first.Content.Text())
	assert.False(t, first.Loading)

	_, err = c.OpenFile(context.Background(), utilJava)
	require.NoError(t, err)

	again, err := c.OpenFile(context.Background(), "/work/demo/app/src/main/java/com/example/../example/Main.java")
	require.NoError(t, err)
	assert.Same(t, first, again)
	assert.Same(t, first, c.ActiveEditor().Get())
	assert.Equal(t, []string{mainJava, utilJava}, paths(c))
}

func TestOpenFileNormalisesLineSeparators(t *testing.T) {
	h := newHarness(t)
	c := h.start(t, projectRoot)

	s, err := c.OpenFile(context.Background(), utilJava)
	require.NoError(t, err)
	assert.Equal(t, "package com.example;\n\nclass Util {}\n", s.Content.Text())
}

func TestOpenMissingFileChangesNothing(t *testing.T) {
	h := newHarness(t)
	c := h.start(t, projectRoot)

	_, err := c.OpenFile(context.Background(), mainJava)
	require.NoError(t, err)
	before := c.Editors().Get()
	activeBefore := c.ActiveEditor().Get()

	s, err := c.OpenFile(context.Background(), "/work/demo/Missing.java")
	assert.NoError(t, err)
	assert.Nil(t, s)
	assert.Equal(t, before, c.Editors().Get())
	assert.Same(t, activeBefore, c.ActiveEditor().Get())
}

func TestConcurrentOpenSamePath(t *testing.T) {
	h := newHarness(t)
	c := h.start(t, projectRoot)

	var wg sync.WaitGroup
	results := make([]*editor.Session, 32)
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s, err := c.OpenFile(context.Background(), mainJava)
			assert.NoError(t, err)
			results[i] = s
		}()
	}
	wg.Wait()

	assert.Equal(t, []string{mainJava}, paths(c))
	for _, s := range results {
		assert.Same(t, results[0], s)
	}
	assert.Same(t, results[0], c.ActiveEditor().Get())
}

func TestActiveEditorAlwaysListed(t *testing.T) {
	h := newHarness(t)
	var files []string
	for i := 0; i < 20; i++ {
		p := fmt.Sprintf("/work/demo/src/F%02d.java", i)
		require.NoError(t, afero.WriteFile(h.fs, p, []byte("class F {}"), 0644))
		files = append(files, p)
	}
	c := h.start(t, projectRoot)

	stop := make(chan struct{})
	violations := make(chan string, 1)
	var checker sync.WaitGroup
	checker.Add(1)
	go func() {
		defer checker.Done()
		for {
			select {
			case <-stop:
				return
			default:
			}
			active := c.ActiveEditor().Get()
			if active == nil {
				continue
			}
			listed := false
			for _, s := range c.Editors().Get().Editors {
				if s == active {
					listed = true
					break
				}
			}
			if !listed {
				select {
				case violations <- active.Path:
				default:
				}
			}
		}
	}()

	var wg sync.WaitGroup
	for _, p := range files {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.OpenFile(context.Background(), p)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	close(stop)
	checker.Wait()

	select {
	case p := <-violations:
		t.Fatalf("active editor %s was not in the editor list", p)
	default:
	}
	assert.Len(t, c.Editors().Get().Editors, len(files))
}

func TestOpenFileRemembersPaths(t *testing.T) {
	h := newHarness(t)
	c := h.start(t, projectRoot)

	_, err := c.OpenFile(context.Background(), buildGradle)
	require.NoError(t, err)
	_, err = c.OpenFile(context.Background(), mainJava)
	require.NoError(t, err)

	got, err := h.prefs.GetStringSet(context.Background(), projectRoot)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{buildGradle, mainJava}, got)
}

func TestSelectTab(t *testing.T) {
	h := newHarness(t)
	c := h.start(t, projectRoot)

	err := c.SelectTab(0)
	var inv *InvariantError
	require.True(t, errors.As(err, &inv))
	assert.ErrorIs(t, err, ErrInvariant)
	assert.Equal(t, 0, inv.Len)

	a, err := c.OpenFile(context.Background(), mainJava)
	require.NoError(t, err)
	b, err := c.OpenFile(context.Background(), utilJava)
	require.NoError(t, err)
	assert.Same(t, b, c.ActiveEditor().Get())

	require.NoError(t, c.SelectTab(0))
	assert.Same(t, a, c.ActiveEditor().Get())
	require.NoError(t, c.SelectTab(1))
	assert.Same(t, b, c.ActiveEditor().Get())

	assert.ErrorIs(t, c.SelectTab(2), ErrInvariant)
	assert.ErrorIs(t, c.SelectTab(-1), ErrInvariant)
	assert.Same(t, b, c.ActiveEditor().Get())
}

func TestSetRoot(t *testing.T) {
	h := newHarness(t)
	c := h.start(t, projectRoot)
	waitReady(t, c)
	require.Eventually(t, func() bool {
		return c.Tree().Get() != nil
	}, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, c.SetRoot(context.Background(), "/work/demo/app"))
	root := c.Tree().Get()
	require.NotNil(t, root)
	assert.Equal(t, "/work/demo/app", root.Path)

	err := c.SetRoot(context.Background(), "/work/nowhere")
	assert.ErrorIs(t, err, ErrResourceUnavailable)
}

func TestFileOpenEvent(t *testing.T) {
	h := newHarness(t)
	c := h.start(t, projectRoot)

	opened := make(chan event.Event, 4)
	unsub := h.bus.Subscribe(event.EditorOpened, func(e event.Event) { opened <- e })
	defer unsub()

	h.bus.Publish(event.Event{Type: event.FileOpen, Data: event.OpenFileData{Path: buildGradle}})

	select {
	case e := <-opened:
		assert.Equal(t, buildGradle, e.Data.(event.EditorData).Path)
	case <-time.After(2 * time.Second):
		t.Fatal("file.open did not open the file")
	}
	assert.Equal(t, buildGradle, c.ActiveEditor().Get().Path)
}

func TestBootstrapFailureLeavesStateInitial(t *testing.T) {
	h := newHarness(t)
	c := h.start(t, "/work/missing")

	require.Eventually(t, func() bool {
		return c.Status().Get().Stage == bootstrap.Failed
	}, 2*time.Second, 5*time.Millisecond)

	assert.ErrorIs(t, c.Status().Get().Err, ErrConfiguration)
	waitRestored(t, c)
	ps := c.ProjectState().Get()
	assert.False(t, ps.Initialized)
	assert.True(t, ps.ShowProgressBar)

	// The session stays usable for inspection.
	s, err := c.OpenFile(context.Background(), mainJava)
	require.NoError(t, err)
	assert.NotNil(t, s)
}

func TestNewRequiresAppEnvironment(t *testing.T) {
	_, err := New(context.Background(), Options{ProjectPath: projectRoot})
	assert.ErrorIs(t, err, ErrConfiguration)
}

func TestCloseIsIdempotent(t *testing.T) {
	h := newHarness(t)
	c := h.start(t, projectRoot)
	waitReady(t, c)

	require.NoError(t, c.Close())
	require.NoError(t, c.Close())

	assert.Equal(t, 0, h.bus.SubscriberCount(event.FileOpen))
	assert.Equal(t, 0, h.bus.SubscriberCount(event.RootRefresh))
	assert.True(t, c.Environment().Disposed())

	_, err := c.OpenFile(context.Background(), mainJava)
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, c.SelectTab(0), ErrClosed)
	assert.ErrorIs(t, c.SetRoot(context.Background(), projectRoot), ErrClosed)
}

func TestCloseBeforeBootstrapCompletes(t *testing.T) {
	h := newHarness(t)
	c := h.start(t, projectRoot)

	require.NoError(t, c.Close())
	assert.Equal(t, 0, h.bus.SubscriberCount(event.FileOpen))
	assert.True(t, c.Status().Get().Stage.Terminal())

	h.bus.PublishSync(event.Event{Type: event.FileOpen, Data: event.OpenFileData{Path: mainJava}})
	assert.Empty(t, c.Editors().Get().Editors)
}

// gatedFs blocks Stat of one path while armed, until release is closed.
type gatedFs struct {
	afero.Fs
	path    string
	armed   atomic.Bool
	once    sync.Once
	entered chan struct{}
	release chan struct{}
}

func newGatedFs(base afero.Fs, path string) *gatedFs {
	return &gatedFs{Fs: base, path: path, entered: make(chan struct{}), release: make(chan struct{})}
}

func (g *gatedFs) Stat(name string) (os.FileInfo, error) {
	if g.armed.Load() && name == g.path {
		g.once.Do(func() { close(g.entered) })
		<-g.release
	}
	return g.Fs.Stat(name)
}

func (g *gatedFs) open() {
	select {
	case <-g.release:
	default:
		close(g.release)
	}
}

func (g *gatedFs) waitEntered(t *testing.T) {
	t.Helper()
	select {
	case <-g.entered:
	case <-time.After(2 * time.Second):
		t.Fatalf("%s was never reached", g.path)
	}
}

func waitTree(t *testing.T, c *Coordinator) {
	t.Helper()
	require.Eventually(t, func() bool {
		return c.Tree().Get() != nil
	}, 2*time.Second, 5*time.Millisecond)
}

func TestRefreshForOtherProjectIgnored(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, afero.WriteFile(h.fs, "/work/other/Other.java", []byte("class Other {}\n"), 0644))

	a := h.start(t, projectRoot)
	waitReady(t, a)
	waitTree(t, a)

	b := h.start(t, "/work/other")
	waitReady(t, b)
	waitTree(t, b)
	assert.Equal(t, "/work/other", b.Tree().Get().Path)

	h.bus.Publish(event.Event{Type: event.RootRefresh, Data: event.RefreshRootData{Root: "/work/other"}})
	assert.Never(t, func() bool {
		return a.Tree().Get().Path != projectRoot
	}, 200*time.Millisecond, 5*time.Millisecond)
	assert.Equal(t, "/work/other", b.Tree().Get().Path)
}

func TestOwns(t *testing.T) {
	h := newHarness(t)
	c := h.start(t, projectRoot)

	assert.True(t, c.owns(projectRoot))
	assert.True(t, c.owns("/work/demo/app/src"))
	assert.True(t, c.owns("/work/demo/app/../build.gradle"))
	assert.False(t, c.owns("/work/demo2"))
	assert.False(t, c.owns("/work"))
	assert.False(t, c.owns("/work/other"))
}

func TestSharedOpenSurvivesFirstCallerCancel(t *testing.T) {
	h := newHarness(t)
	gate := newGatedFs(h.fs, buildGradle)
	h.fs = gate
	c := h.start(t, projectRoot)
	t.Cleanup(gate.open)
	waitReady(t, c)
	waitRestored(t, c)
	waitTree(t, c)
	gate.armed.Store(true)

	first, cancelFirst := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := c.OpenFile(first, buildGradle)
		firstErr <- err
	}()
	gate.waitEntered(t)

	type result struct {
		s   *editor.Session
		err error
	}
	second := make(chan result, 1)
	go func() {
		s, err := c.OpenFile(context.Background(), buildGradle)
		second <- result{s, err}
	}()
	// let the second caller join the load in flight
	time.Sleep(50 * time.Millisecond)

	cancelFirst()
	select {
	case err := <-firstErr:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("cancelled caller kept waiting on the shared load")
	}

	gate.open()
	select {
	case r := <-second:
		require.NoError(t, r.err)
		require.NotNil(t, r.s)
		assert.Equal(t, buildGradle, r.s.Path)
	case <-time.After(2 * time.Second):
		t.Fatal("second caller never returned")
	}
	assert.Contains(t, paths(c), buildGradle)
	assert.Equal(t, buildGradle, c.ActiveEditor().Get().Path)
}

func TestSetRootDropsStaleRebuild(t *testing.T) {
	h := newHarness(t)
	gate := newGatedFs(h.fs, projectRoot)
	h.fs = gate
	c := h.start(t, projectRoot)
	t.Cleanup(gate.open)
	waitReady(t, c)
	waitTree(t, c)
	gate.armed.Store(true)

	older := make(chan error, 1)
	go func() { older <- c.SetRoot(context.Background(), projectRoot) }()
	gate.waitEntered(t)

	require.NoError(t, c.SetRoot(context.Background(), "/work/demo/app"))
	assert.Equal(t, "/work/demo/app", c.Tree().Get().Path)

	gate.open()
	select {
	case err := <-older:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("older rebuild never finished")
	}
	assert.Equal(t, "/work/demo/app", c.Tree().Get().Path)
}
