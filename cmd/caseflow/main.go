package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/unkn0wn-root/caseflow/internal/commands"
)

// Version is set at build time via -ldflags "-X main.Version=X.Y.Z"
var Version = "0.0.0-dev"

var rootCmd = &cobra.Command{
	Use:   "caseflow",
	Short: "Walk imaging cohorts case by case",
	Long: `caseflow drives a task through every case of a cohort descriptor,
keeping a bounded number of cases in memory and saving edits before a case is
evicted.

Commands:
  validate   Parse a cohort descriptor and check its resources
  walk       Open a session and walk the cohort
  profile    Manage session profiles

Environment (also read from .env):
  CASEFLOW_USER     user recorded in provenance sidecars
  CASEFLOW_CONFIG   profile store path`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return commands.LoadEnv(cmd)
	},
}

func init() {
	commands.Version = Version
	commands.AddGlobalFlags(rootCmd)
	rootCmd.AddCommand(commands.ValidateCmd)
	rootCmd.AddCommand(commands.WalkCmd)
	rootCmd.AddCommand(commands.ProfileCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		fmt.Fprintln(os.Stderr, "caseflow:", err)
		os.Exit(1)
	}
}
