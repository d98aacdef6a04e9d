// Package analysis hosts the in-process analysis environments a session
// brings up: a shared application environment and one disposable project
// environment per session, with its services, extension points and classpath.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"

	"github.com/opencode-ai/workbench/internal/logging"
	"github.com/opencode-ai/workbench/internal/project"
)

var (
	ErrDisposed          = errors.New("project environment is disposed")
	ErrDuplicateService  = errors.New("service already registered")
	ErrServiceNotPresent = errors.New("service not registered")
)

// AppEnvironment is the process-wide environment shared by all sessions.
// Sessions only read from it and never dispose it.
type AppEnvironment struct {
	fs        afero.Fs
	fileTypes *FileTypeRegistry
	projects  *project.Resolver
}

// NewAppEnvironment creates the shared environment over fs.
func NewAppEnvironment(fs afero.Fs) *AppEnvironment {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	return &AppEnvironment{
		fs:        fs,
		fileTypes: NewFileTypeRegistry(),
		projects:  project.NewResolver(fs),
	}
}

func (a *AppEnvironment) Fs() afero.Fs { return a.fs }

func (a *AppEnvironment) FileTypes() *FileTypeRegistry { return a.fileTypes }

func (a *AppEnvironment) Projects() *project.Resolver { return a.projects }

// ProjectEnvironment is the analysis environment owned by one session.
type ProjectEnvironment struct {
	app *AppEnvironment

	mu        sync.RWMutex
	services  map[ServiceKey]any
	points    map[ExtensionPointName]*extensionPoint
	files     *FileManager
	disposers []func()
	disposed  bool
}

// NewProjectEnvironment creates an empty project environment backed by app.
func NewProjectEnvironment(app *AppEnvironment) *ProjectEnvironment {
	return &ProjectEnvironment{
		app:      app,
		services: make(map[ServiceKey]any),
		points:   make(map[ExtensionPointName]*extensionPoint),
		files:    NewFileManager(app.Fs()),
	}
}

// App returns the shared environment this project environment reads from.
func (e *ProjectEnvironment) App() *AppEnvironment { return e.app }

// FileManager returns the classpath index.
func (e *ProjectEnvironment) FileManager() *FileManager { return e.files }

// RegisterService binds impl to key. Each key can be bound once.
func (e *ProjectEnvironment) RegisterService(key ServiceKey, impl any) error {
	if impl == nil {
		return fmt.Errorf("nil implementation for service %s", key)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.disposed {
		return ErrDisposed
	}
	if _, ok := e.services[key]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateService, key)
	}
	e.services[key] = impl
	return nil
}

// Service returns the implementation bound to key.
func (e *ProjectEnvironment) Service(key ServiceKey) (any, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	s, ok := e.services[key]
	return s, ok
}

// ServiceAs returns the service bound to key as T.
func ServiceAs[T any](env *ProjectEnvironment, key ServiceKey) (T, error) {
	var zero T
	s, ok := env.Service(key)
	if !ok {
		return zero, fmt.Errorf("%w: %s", ErrServiceNotPresent, key)
	}
	v, ok := s.(T)
	if !ok {
		return zero, fmt.Errorf("service %s has type %T", key, s)
	}
	return v, nil
}

// AddSourcesToClasspath adds each directory as a source root. Roots are
// indexed in parallel but appear on the classpath in argument order.
func (e *ProjectEnvironment) AddSourcesToClasspath(ctx context.Context, dirs ...string) error {
	if e.isDisposed() {
		return ErrDisposed
	}

	indexes := make([]*FileManager, len(dirs))
	g, gctx := errgroup.WithContext(ctx)
	for i, dir := range dirs {
		g.Go(func() error {
			fm := NewFileManager(e.app.Fs())
			if err := fm.AddSourceRoot(gctx, dir); err != nil {
				return err
			}
			indexes[i] = fm
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for _, fm := range indexes {
		e.files.merge(fm)
	}
	logging.Debug().Strs("dirs", dirs).Int("classes", e.files.ClassCount()).Msg("Source roots added to classpath")
	return nil
}

// AddJarToClasspath indexes an archive and appends it to the classpath.
func (e *ProjectEnvironment) AddJarToClasspath(ctx context.Context, path string) error {
	if e.isDisposed() {
		return ErrDisposed
	}
	if err := e.files.AddArchive(ctx, path); err != nil {
		return err
	}
	logging.Debug().Str("archive", path).Int("classes", e.files.ClassCount()).Msg("Archive added to classpath")
	return nil
}

// OnDispose registers fn to run when the environment is disposed.
func (e *ProjectEnvironment) OnDispose(fn func()) {
	e.mu.Lock()
	if e.disposed {
		e.mu.Unlock()
		fn()
		return
	}
	e.disposers = append(e.disposers, fn)
	e.mu.Unlock()
}

// Dispose releases the environment. Disposers run in reverse order of
// registration. Calling Dispose again is a no-op.
func (e *ProjectEnvironment) Dispose() {
	e.mu.Lock()
	if e.disposed {
		e.mu.Unlock()
		return
	}
	e.disposed = true
	disposers := e.disposers
	e.disposers = nil
	e.services = make(map[ServiceKey]any)
	e.points = make(map[ExtensionPointName]*extensionPoint)
	e.mu.Unlock()

	for i := len(disposers) - 1; i >= 0; i-- {
		disposers[i]()
	}
}

// Disposed reports whether Dispose has been called.
func (e *ProjectEnvironment) Disposed() bool { return e.isDisposed() }

func (e *ProjectEnvironment) isDisposed() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.disposed
}
