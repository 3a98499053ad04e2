package cli

import (
	"github.com/spf13/cobra"

	"github.com/roach88/cfgmigrate/internal/platform/httpapi"
)

// NewRegionsCommand creates the regions command.
func NewRegionsCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "regions",
		Short:         "List known platform regions",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := rootOpts.formatter(cmd)
			if out.JSON() {
				return out.Success(httpapi.Regions)
			}
			renderRegions(cmd.OutOrStdout(), httpapi.Regions)
			return nil
		},
	}
}
