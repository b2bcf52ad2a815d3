// Run command for the ndrbatch CLI.
package cli

import (
	"fmt"

	"github.com/gosuri/uiprogress"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mesh-intelligence/ndrbatch/internal/pipeline"
	"github.com/mesh-intelligence/ndrbatch/internal/scheduler"
	"github.com/mesh-intelligence/ndrbatch/internal/store"
)

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Process every configured watershed",
		Long: "Build the tile index, schedule the processing graph for every\n" +
			"watershed, and drain it. Completed watersheds and existing\n" +
			"intermediate artifacts are skipped, so an interrupted run resumes\n" +
			"where it left off.",
		Args: cobra.NoArgs,
		RunE: runBatch,
	}
}

func runBatch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	log, err := newLogger(flags.verbose)
	if err != nil {
		return err
	}
	defer log.Sync()

	st, err := store.Open(cfg.DatabasePath())
	if err != nil {
		return err
	}
	defer st.Close()

	sched := scheduler.New(cfg.Workers, log)
	drv := pipeline.NewDriver(cfg, log, st, sched)

	terminals, err := drv.Run()
	if err != nil {
		sched.Close()
		return err
	}

	failed := 0
	if len(terminals) > 0 {
		uiprogress.Start()
		bar := uiprogress.AddBar(len(terminals)).AppendCompleted().PrependElapsed()
		for _, task := range terminals {
			if err := task.Join(); err != nil {
				failed++
			}
			bar.Incr()
		}
		uiprogress.Stop()
	}

	if err := sched.Close(); err != nil {
		return fmt.Errorf("draining scheduler: %w", err)
	}

	log.Info("batch complete",
		zap.Int("watersheds", len(terminals)),
		zap.Int("unresolved", failed))
	if failed > 0 {
		fmt.Fprintf(cmd.OutOrStdout(), "%d of %d watersheds unresolved; see log for details\n", failed, len(terminals))
	}
	return nil
}

// newLogger builds the process logger. Debug level when verbose, console
// encoding either way since this is an operator-facing batch tool.
func newLogger(verbose bool) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Encoding = "console"
	if verbose {
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}
	return cfg.Build()
}
