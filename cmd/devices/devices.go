package devices

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kappaborg/HIJACK-Audio/internal/conf"
	"github.com/kappaborg/HIJACK-Audio/internal/router"
)

// Command creates a new command listing the audio devices of the host.
func Command(settings *conf.Settings) *cobra.Command {
	var inputs, outputs, asJSON bool

	cmd := &cobra.Command{
		Use:   "devices",
		Short: "List audio devices",
		Long:  "Enumerate the audio devices of the configured host and print their capabilities.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			filter := router.AllDevices
			switch {
			case inputs && outputs:
				return fmt.Errorf("--inputs and --outputs are mutually exclusive")
			case inputs:
				filter = router.InputDevices
			case outputs:
				filter = router.OutputDevices
			}
			return router.ListDevices(cmd.Context(), settings, filter, asJSON, cmd.OutOrStdout())
		},
	}

	cmd.Flags().BoolVar(&inputs, "inputs", false, "List only devices that can capture")
	cmd.Flags().BoolVar(&outputs, "outputs", false, "List only devices that can play back")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the list as JSON")

	return cmd
}
