// Package bootstrap brings up a project's analysis environment in a fixed
// order of steps and reports progress as an observable stage.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"

	"github.com/opencode-ai/workbench/internal/analysis"
	"github.com/opencode-ai/workbench/internal/config"
	"github.com/opencode-ai/workbench/internal/event"
	"github.com/opencode-ai/workbench/internal/logging"
	"github.com/opencode-ai/workbench/internal/prefs"
	"github.com/opencode-ai/workbench/internal/project"
	"github.com/opencode-ai/workbench/internal/state"
)

var (
	// ErrConfiguration marks a missing or unusable project path.
	ErrConfiguration = errors.New("configuration fault")
	// ErrAlreadyRun is returned when Run is called a second time.
	ErrAlreadyRun = errors.New("bootstrap already ran")
)

// Options configures a pipeline.
type Options struct {
	// App is the shared environment. The pipeline never disposes it.
	App         *analysis.AppEnvironment
	Bus         *event.Bus
	Prefs       prefs.Store
	Config      *config.Config
	ProjectPath string

	// OnReady runs after the last step succeeded and before the pipeline
	// reports Ready. An error fails the bootstrap.
	OnReady func(ctx context.Context, r *Result) error
}

// Result is what a successful bootstrap produced.
type Result struct {
	Env     *analysis.ProjectEnvironment
	Project *project.Info
	// Remembered are files opened in a previous session of this project.
	Remembered []string
	// DefaultFile is the absolute path of the configured entry file, if any.
	DefaultFile string
}

// Pipeline runs the bootstrap steps once.
type Pipeline struct {
	opts   Options
	log    zerolog.Logger
	status *state.Value[Status]

	started atomic.Bool
	tasks   sync.WaitGroup

	mu  sync.Mutex
	env *analysis.ProjectEnvironment
}

// New creates a pipeline in the NotStarted stage.
func New(opts Options) *Pipeline {
	if opts.Config == nil {
		opts.Config = config.Default()
	}
	return &Pipeline{
		opts:   opts,
		log:    logging.Component("bootstrap").With().Str("project", opts.ProjectPath).Logger(),
		status: state.NewValue(Status{Stage: NotStarted}),
	}
}

// Stage returns the current stage.
func (p *Pipeline) Stage() Stage {
	return p.status.Get().Stage
}

// Status returns the observable status.
func (p *Pipeline) Status() *state.Value[Status] {
	return p.status
}

// Environment returns the project environment once step one has run. The
// caller owns it and disposes it, whether or not the bootstrap succeeded.
func (p *Pipeline) Environment() *analysis.ProjectEnvironment {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.env
}

// Wait blocks until side tasks started by Run have finished.
func (p *Pipeline) Wait() {
	p.tasks.Wait()
}

type step struct {
	reaches Stage
	run     func(ctx context.Context, r *Result) error
}

// Run executes the steps in order. On failure the pipeline moves to Failed,
// logs the error and publishes it on the bus; the returned error is a
// *StageError. Panics inside a step are reported the same way.
func (p *Pipeline) Run(ctx context.Context) (res *Result, err error) {
	if !p.started.CompareAndSwap(false, true) {
		return nil, ErrAlreadyRun
	}

	r := &Result{}
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic during bootstrap: %v", rec)
		}
		if err != nil {
			res, err = nil, p.fail(err)
		}
	}()

	steps := []step{
		{EnvironmentCreated, p.createEnvironment},
		{ServicesRegistered, p.registerServices},
		{ExtensionPointsRegistered, p.registerExtensionPoints},
		{ClasspathSeeded, p.seedClasspath},
		{Ready, p.loadState},
	}
	for _, s := range steps {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := s.run(ctx, r); err != nil {
			return nil, err
		}
		p.transition(s.reaches)
	}
	return r, nil
}

func (p *Pipeline) createEnvironment(_ context.Context, r *Result) error {
	if p.opts.App == nil {
		return fmt.Errorf("%w: no application environment", ErrConfiguration)
	}
	env := analysis.NewProjectEnvironment(p.opts.App)
	p.mu.Lock()
	p.env = env
	p.mu.Unlock()
	r.Env = env
	return nil
}

func (p *Pipeline) registerServices(_ context.Context, r *Result) error {
	services := []struct {
		key  analysis.ServiceKey
		impl any
	}{
		{analysis.BlockSupportKey, analysis.NewBlockSupport()},
		{analysis.NameHelperKey, analysis.NewNameHelper()},
		{analysis.CodeStyleManagerKey, analysis.NewCodeStyleManager()},
		{analysis.FileManagerKey, r.Env.FileManager()},
	}
	for _, s := range services {
		if err := r.Env.RegisterService(s.key, s.impl); err != nil {
			return fmt.Errorf("failed to register service %s: %w", s.key, err)
		}
	}
	return nil
}

func (p *Pipeline) registerExtensionPoints(_ context.Context, r *Result) error {
	env := r.Env
	if err := analysis.DeclareExtensionPoint[analysis.TreeChangePreprocessor](env, analysis.TreeChangePreprocessorEP); err != nil {
		return err
	}
	if err := analysis.DeclareExtensionPoint[analysis.JvmElementProvider](env, analysis.JvmElementProviderEP); err != nil {
		return err
	}
	if err := analysis.DeclareExtensionPoint[analysis.ElementFinder](env, analysis.ElementFinderEP); err != nil {
		return err
	}

	finder := analysis.NewFileManagerFinder(env.FileManager())
	if err := analysis.InstallExtension[analysis.ElementFinder](env, analysis.ElementFinderEP, finder); err != nil {
		return fmt.Errorf("failed to install element finder: %w", err)
	}
	return nil
}

func (p *Pipeline) seedClasspath(ctx context.Context, r *Result) error {
	info, err := p.opts.App.Projects().Resolve(p.opts.ProjectPath)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrConfiguration, err)
	}
	r.Project = info

	p.publishRefresh(ctx, info.Root)

	fs := p.opts.App.Fs()
	var dirs []string
	for _, rel := range p.opts.Config.SourceRoots {
		dir := resolve(info.Root, rel)
		if ok, _ := afero.DirExists(fs, dir); ok {
			dirs = append(dirs, dir)
		} else {
			p.log.Debug().Str("dir", dir).Msg("Source root not present, skipping")
		}
	}
	dirs = append(dirs, info.Root)
	if err := r.Env.AddSourcesToClasspath(ctx, dirs...); err != nil {
		return err
	}

	for _, archive := range p.opts.Config.StubArchives {
		if err := r.Env.AddJarToClasspath(ctx, resolve(info.Root, archive)); err != nil {
			return err
		}
	}
	return nil
}

// publishRefresh announces the root without holding up classpath seeding.
// The task is tracked so Wait covers it, and it is dropped if ctx ends first.
func (p *Pipeline) publishRefresh(ctx context.Context, root string) {
	if p.opts.Bus == nil {
		return
	}
	p.tasks.Add(1)
	go func() {
		defer p.tasks.Done()
		select {
		case <-ctx.Done():
			return
		default:
		}
		p.opts.Bus.Publish(event.Event{
			Type: event.RootRefresh,
			Data: event.RefreshRootData{Root: root},
		})
	}()
}

func (p *Pipeline) loadState(ctx context.Context, r *Result) error {
	r.Remembered = []string{}
	if p.opts.Prefs != nil {
		remembered, err := p.opts.Prefs.GetStringSet(ctx, r.Project.Root)
		switch {
		case err == nil:
			r.Remembered = remembered
		case ctx.Err() != nil:
			return ctx.Err()
		default:
			p.log.Warn().Err(err).Str("root", r.Project.Root).Msg("Ignoring unreadable remembered files")
		}
	}
	if f := p.opts.Config.DefaultFile; f != "" {
		r.DefaultFile = resolve(r.Project.Root, f)
	}

	if p.opts.OnReady != nil {
		return p.opts.OnReady(ctx, r)
	}
	return nil
}

func (p *Pipeline) transition(to Stage) {
	p.status.Set(Status{Stage: to})
	p.log.Debug().Stringer("stage", to).Msg("Bootstrap stage reached")
	if p.opts.Bus != nil {
		p.opts.Bus.Publish(event.Event{
			Type: event.BootstrapStage,
			Data: event.BootstrapStageData{Project: p.opts.ProjectPath, Stage: to.String()},
		})
	}
}

func (p *Pipeline) fail(err error) error {
	last := p.Stage()
	serr := &StageError{Stage: last, Err: err}
	p.status.Set(Status{Stage: Failed, Err: serr})

	if errors.Is(err, context.Canceled) {
		p.log.Debug().Stringer("stage", last).Msg("Bootstrap cancelled")
	} else {
		p.log.Error().Err(err).Stringer("stage", last).Msg("Bootstrap failed")
	}
	if p.opts.Bus != nil {
		p.opts.Bus.Publish(event.Event{
			Type: event.BootstrapFailed,
			Data: event.BootstrapFailedData{Project: p.opts.ProjectPath, Stage: last.String(), Error: err.Error()},
		})
	}
	return serr
}

func resolve(root, path string) string {
	if filepath.IsAbs(path) {
		return filepath.Clean(path)
	}
	return filepath.Join(root, filepath.FromSlash(path))
}
