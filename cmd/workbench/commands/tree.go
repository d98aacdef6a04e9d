package commands

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/opencode-ai/workbench/internal/config"
	"github.com/opencode-ai/workbench/internal/tree"
)

var (
	treeIgnore []string
	treeDepth  int
	treeAll    bool
	treeJSON   bool
)

var treeCmd = &cobra.Command{
	Use:   "tree [dir]",
	Short: "Print the project tree",
	Long: `Print the file tree of a directory the way an editing session shows it.

Build output and tool directories are hidden unless --all is given. Extra
patterns come from --ignore and from treeIgnore in the project config.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runTree,
}

func init() {
	treeCmd.Flags().StringSliceVar(&treeIgnore, "ignore", nil, "Additional glob patterns to hide")
	treeCmd.Flags().IntVar(&treeDepth, "depth", 0, "Maximum depth (0 for unlimited)")
	treeCmd.Flags().BoolVar(&treeAll, "all", false, "Do not apply the default ignore patterns")
	treeCmd.Flags().BoolVar(&treeJSON, "json", false, "Output the tree as JSON")
}

func runTree(cmd *cobra.Command, args []string) error {
	var dir string
	if len(args) > 0 {
		dir = args[0]
	}
	dir, err := GetWorkDir(dir)
	if err != nil {
		return err
	}

	cfg, err := config.Load(dir)
	if err != nil {
		return err
	}

	root, err := tree.Build(afero.NewOsFs(), dir, tree.Options{
		Ignore:           append(cfg.TreeIgnore, treeIgnore...),
		MaxDepth:         treeDepth,
		NoDefaultIgnores: treeAll,
	})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if treeJSON {
		data, err := json.MarshalIndent(root, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(out, string(data))
		return nil
	}
	fmt.Fprint(out, root.Render())
	return nil
}
