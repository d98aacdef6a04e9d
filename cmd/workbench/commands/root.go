// Package commands provides the CLI commands for workbench.
package commands

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/opencode-ai/workbench/internal/config"
	"github.com/opencode-ai/workbench/internal/logging"
)

var (
	// Version information set at build time
	Version   = "0.1.0"
	BuildTime = "dev"
)

// Global flags
var (
	printLogs bool
	logLevel  string
)

var rootCmd = &cobra.Command{
	Use:   "workbench",
	Short: "Workbench - project editing session host",
	Long: `Workbench opens a project directory, indexes its source roots and
hosts an editing session over it.

Run 'workbench open' to start a session, or 'workbench tree' to print the
project tree as the session would show it.`,
	Version:           Version,
	SilenceUsage:      true,
	PersistentPreRunE: initLogging,
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.Close()
	},
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&printLogs, "print-logs", false, "Print logs to stderr")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "INFO", "Log level (DEBUG|INFO|WARN|ERROR)")

	rootCmd.SetVersionTemplate(fmt.Sprintf("workbench %s (%s)\n", Version, BuildTime))

	rootCmd.AddCommand(openCmd)
	rootCmd.AddCommand(treeCmd)
	rootCmd.AddCommand(digestCmd)
	rootCmd.AddCommand(tokenCmd)
	rootCmd.AddCommand(debugCmd)
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// initLogging sends logs to stderr with --print-logs and to a file under the
// state directory otherwise.
func initLogging(cmd *cobra.Command, args []string) error {
	cfg := logging.DefaultConfig()
	cfg.Level = logging.ParseLevel(logLevel)
	if printLogs {
		cfg.Pretty = true
		logging.Init(cfg)
		return nil
	}

	paths := config.GetPaths()
	if err := paths.EnsurePaths(); err != nil {
		return err
	}
	cfg.Output = io.Discard
	cfg.LogToFile = true
	cfg.LogDir = paths.LogPath()
	logging.Init(cfg)
	return nil
}

// GetWorkDir returns the working directory from flag or current directory.
func GetWorkDir(dir string) (string, error) {
	if dir != "" {
		return dir, nil
	}
	return os.Getwd()
}
