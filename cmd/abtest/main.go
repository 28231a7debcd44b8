package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	version = "0.1.0-dev"
	commit  = "none"
	date    = "unknown"
)

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "abtest",
		Short: "Sticky A/B variant assignment",
		Long: `abtest buckets this origin into variant A or B of each configured
experiment and keeps the assignment stable across runs.

Experiments are read from .abtest/experiments.yaml under the project root.
Assignments are stored once per experiment and never overwritten.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().Bool("json", false, "Output as JSON")
	rootCmd.PersistentFlags().String("root", ".", "Project root directory")
	rootCmd.PersistentFlags().String("config", "", "Config file (default <root>/.abtest/experiments.yaml)")

	rootCmd.AddCommand(
		newVersionCmd(),
		newInitCmd(),
		newAssignCmd(),
		newGetCmd(),
		newListCmd(),
		newValidateCmd(),
		newResetCmd(),
		newWatchCmd(),
		newBackupCmd(),
		newRestoreCmd(),
	)

	return rootCmd
}

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
