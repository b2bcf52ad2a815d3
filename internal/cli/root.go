// Package cli implements the ndrbatch command-line interface.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Exit codes.
const (
	exitSuccess  = 0
	exitSysError = 2
)

// rootFlags holds global flag values accessible to all subcommands.
type rootFlags struct {
	configPath   string
	workspaceDir string
	workers      int
	verbose      bool
}

var flags rootFlags

// NewRootCmd creates the top-level "ndrbatch" command with global flags
// and all subcommands registered.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "ndrbatch",
		Short: "Batch nutrient delivery ratio processing over watersheds",
		Long: "ndrbatch runs the nutrient delivery ratio model over a set of\n" +
			"watersheds, stitching elevation tiles, routing flow, and writing\n" +
			"per-scenario export totals to a result database.",
		// Do not print usage on errors returned by subcommands.
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(&flags.configPath, "config", "", "config file (default: $NDRBATCH_CONFIG or platform config dir)")
	root.PersistentFlags().StringVar(&flags.workspaceDir, "workspace", "", "workspace directory (default: $(CWD)/ndr_workspace)")
	root.PersistentFlags().IntVar(&flags.workers, "workers", 0, "worker count (default: number of CPUs)")
	root.PersistentFlags().BoolVar(&flags.verbose, "verbose", false, "enable debug logging")

	root.AddCommand(newRunCmd())
	root.AddCommand(newReportCmd())
	root.AddCommand(newVersionCmd())

	return root
}

// Execute runs the root command and returns the process exit code.
func Execute() int {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return exitSysError
	}
	return exitSuccess
}
