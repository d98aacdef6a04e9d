// Package main provides the entry point for the workbench CLI.
package main

import (
	"fmt"
	"os"

	"github.com/opencode-ai/workbench/cmd/workbench/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
