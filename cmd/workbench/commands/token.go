package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/opencode-ai/workbench/internal/digest"
)

var tokenCount int

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Print random opaque tokens",
	RunE: func(cmd *cobra.Command, args []string) error {
		if tokenCount < 1 {
			return fmt.Errorf("count must be positive, got %d", tokenCount)
		}
		for i := 0; i < tokenCount; i++ {
			fmt.Fprintln(cmd.OutOrStdout(), digest.RandomToken())
		}
		return nil
	},
}

func init() {
	tokenCmd.Flags().IntVarP(&tokenCount, "count", "n", 1, "Number of tokens")
}
