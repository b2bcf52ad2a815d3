// Report command for the ndrbatch CLI.
package cli

import (
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/ndrbatch/internal/pipeline"
	"github.com/mesh-intelligence/ndrbatch/internal/store"
)

func newReportCmd() *cobra.Command {
	var outPath string
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Export stored results as GeoJSON",
		Long: "Join the stored watershed geometries with their per-scenario\n" +
			"export totals and write a GeoJSON feature collection. Works on a\n" +
			"partially processed database.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
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

			if outPath == "" {
				outPath = filepath.Join(cfg.WorkspaceDir, "ndr_results.geojson")
			}
			return pipeline.WriteReport(st, outPath, log)
		},
	}
	cmd.Flags().StringVarP(&outPath, "out", "o", "", "output path (default: <workspace>/ndr_results.geojson)")
	return cmd
}
