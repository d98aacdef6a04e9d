package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/opencode-ai/workbench/internal/digest"
)

var digestAlgorithm string

var digestCmd = &cobra.Command{
	Use:   "digest [files...]",
	Short: "Print content digests",
	Long: `Print the hex digest of each file, or of stdin when no file is given.

Supported algorithms: MD5, SHA-1, SHA-256, SHA-512. Names are matched
case-insensitively and the dash is optional.`,
	RunE: runDigest,
}

func init() {
	digestCmd.Flags().StringVarP(&digestAlgorithm, "algorithm", "a", string(digest.SHA256), "Digest algorithm")
}

func runDigest(cmd *cobra.Command, args []string) error {
	alg, err := digest.ParseAlgorithm(digestAlgorithm)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(args) == 0 {
		sum, err := digest.Reader(cmd.InOrStdin(), alg)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%s  -\n", sum)
		return nil
	}

	fs := afero.NewOsFs()
	var failed []string
	for _, path := range args {
		sum, err := digest.File(fs, path, alg)
		if err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "digest: %v\n", err)
			failed = append(failed, path)
			continue
		}
		fmt.Fprintf(out, "%s  %s\n", sum, path)
	}
	if len(failed) > 0 {
		return fmt.Errorf("could not digest %s", strings.Join(failed, ", "))
	}
	return nil
}
