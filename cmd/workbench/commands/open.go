package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/opencode-ai/workbench/internal/analysis"
	"github.com/opencode-ai/workbench/internal/bootstrap"
	"github.com/opencode-ai/workbench/internal/config"
	"github.com/opencode-ai/workbench/internal/event"
	"github.com/opencode-ai/workbench/internal/logging"
	"github.com/opencode-ai/workbench/internal/prefs"
	"github.com/opencode-ai/workbench/internal/session"
	"github.com/opencode-ai/workbench/internal/storage"
)

var (
	openDir     string
	openEvents  bool
	openTimeout time.Duration
)

var openCmd = &cobra.Command{
	Use:   "open [files...]",
	Short: "Open a project session",
	Long: `Open a project directory, run the bootstrap and open the given files.

Relative file arguments are resolved against the project directory. With
--events the session stays up and every bus event is printed as a JSON line
until interrupted.`,
	RunE: runOpen,
}

func init() {
	openCmd.Flags().StringVarP(&openDir, "dir", "d", "", "Project directory (default: current directory)")
	openCmd.Flags().BoolVar(&openEvents, "events", false, "Stream session events as JSON lines until interrupted")
	openCmd.Flags().DurationVar(&openTimeout, "timeout", 30*time.Second, "Maximum time to wait for the bootstrap")
}

func runOpen(cmd *cobra.Command, args []string) error {
	dir, err := GetWorkDir(openDir)
	if err != nil {
		return err
	}

	cfg, err := config.Load(dir)
	if err != nil {
		return err
	}

	paths := config.GetPaths()
	if err := paths.EnsurePaths(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	bus := event.NewBus()
	defer bus.Close()

	out := cmd.OutOrStdout()
	if openEvents {
		messages, err := bus.Messages(ctx)
		if err != nil {
			return err
		}
		go streamEvents(out, messages)
	}

	c, err := session.New(ctx, session.Options{
		App:         analysis.NewAppEnvironment(afero.NewOsFs()),
		Bus:         bus,
		Prefs:       prefs.NewFileStore(storage.New(paths.PrefsPath())),
		Config:      cfg,
		ProjectPath: dir,
	})
	if err != nil {
		return err
	}
	defer c.Close()

	status, err := waitTerminal(ctx, c, openTimeout)
	if err != nil {
		return err
	}
	if status.Stage == bootstrap.Failed {
		return fmt.Errorf("bootstrap failed: %w", status.Err)
	}

	select {
	case <-c.Restored():
	case <-ctx.Done():
		return ctx.Err()
	}

	root := *c.ProjectState().Get().ProjectPath
	for _, arg := range args {
		path := arg
		if !filepath.IsAbs(path) {
			path = filepath.Join(root, path)
		}
		s, err := c.OpenFile(ctx, path)
		if err != nil {
			return err
		}
		if s == nil {
			logging.Warn().Str("path", path).Msg("Skipping missing file")
		}
	}

	if openEvents {
		<-ctx.Done()
		return nil
	}

	printEditors(out, c)
	return nil
}

func waitTerminal(ctx context.Context, c *session.Coordinator, timeout time.Duration) (bootstrap.Status, error) {
	ch, cancel := c.Status().Watch()
	defer cancel()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		select {
		case st, ok := <-ch:
			if !ok {
				return c.Status().Get(), nil
			}
			if st.Stage.Terminal() {
				return st, nil
			}
		case <-timer.C:
			return bootstrap.Status{}, fmt.Errorf("bootstrap did not finish within %s", timeout)
		case <-ctx.Done():
			return bootstrap.Status{}, ctx.Err()
		}
	}
}

func printEditors(w io.Writer, c *session.Coordinator) {
	ps := c.ProjectState().Get()
	if ps.ProjectName != nil {
		fmt.Fprintf(w, "Project: %s (%s)\n", *ps.ProjectName, *ps.ProjectPath)
	}

	var activeID string
	if a := c.ActiveEditor().Get(); a != nil {
		activeID = a.ID
	}
	editors := c.Editors().Get().Editors
	if len(editors) == 0 {
		fmt.Fprintln(w, "No open editors")
		return
	}
	for i, s := range editors {
		marker := " "
		if s.ID == activeID {
			marker = "*"
		}
		fmt.Fprintf(w, "%s %d  %-10s %s\n", marker, i, s.FileType.Name, s.Path)
	}
}

func streamEvents(w io.Writer, messages <-chan *message.Message) {
	for msg := range messages {
		fmt.Fprintln(w, string(msg.Payload))
		msg.Ack()
	}
}
