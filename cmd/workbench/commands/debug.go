package commands

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/opencode-ai/workbench/internal/config"
	"github.com/opencode-ai/workbench/internal/logging"
)

var debugCmd = &cobra.Command{
	Use:   "debug",
	Short: "Debug utilities",
	Long:  `Debug utilities for troubleshooting workbench configuration and setup.`,
}

var debugConfigCmd = &cobra.Command{
	Use:   "config",
	Short: "Show current configuration",
	RunE:  runDebugConfig,
}

var debugPathsCmd = &cobra.Command{
	Use:   "paths",
	Short: "Show system paths",
	RunE:  runDebugPaths,
}

func init() {
	debugCmd.AddCommand(debugConfigCmd)
	debugCmd.AddCommand(debugPathsCmd)
}

func runDebugConfig(cmd *cobra.Command, args []string) error {
	workDir, err := os.Getwd()
	if err != nil {
		return err
	}

	appConfig, err := config.Load(workDir)
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(appConfig, "", "  ")
	if err != nil {
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return nil
}

func runDebugPaths(cmd *cobra.Command, args []string) error {
	paths := config.GetPaths()
	out := cmd.OutOrStdout()

	workDir, err := os.Getwd()
	if err != nil {
		return err
	}

	fmt.Fprintln(out, "Workbench System Paths:")
	fmt.Fprintln(out)
	fmt.Fprintf(out, "  Config:   %s\n", paths.Config)
	fmt.Fprintf(out, "  Data:     %s\n", paths.Data)
	fmt.Fprintf(out, "  Cache:    %s\n", paths.Cache)
	fmt.Fprintf(out, "  State:    %s\n", paths.State)
	fmt.Fprintf(out, "  Prefs:    %s\n", paths.PrefsPath())
	fmt.Fprintf(out, "  Logs:     %s\n", paths.LogPath())
	if file := logging.GetLogFilePath(); file != "" {
		fmt.Fprintf(out, "  Log file: %s\n", file)
	}
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Config Files:")
	fmt.Fprintf(out, "  Global:   %s\n", config.GlobalConfigPath())
	fmt.Fprintf(out, "  Project:  %s\n", config.ProjectConfigPath(workDir))

	return nil
}
