// Version command for the ndrbatch CLI.
package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/ndrbatch/pkg/ndrbatch"
)

const modulePath = "github.com/mesh-intelligence/ndrbatch"

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the ndrbatch version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintf(cmd.OutOrStdout(), "ndrbatch v%s\nmodule: %s\n", ndrbatch.Version, modulePath)
			return nil
		},
	}
}
