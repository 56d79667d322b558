package route

import (
	"github.com/spf13/cobra"

	"github.com/kappaborg/HIJACK-Audio/internal/conf"
	"github.com/kappaborg/HIJACK-Audio/internal/router"
)

// Command creates a new command that holds one virtual cable open.
func Command(settings *conf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "route SOURCE SINK",
		Short: "Route an input device to an output device",
		Long: "Connect SOURCE to SINK and keep the cable open until interrupted. " +
			"Devices are given by name or id; \"default\" selects the system default.",
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return router.Route(cmd.Context(), settings, args[0], args[1], cmd.OutOrStdout())
		},
	}

	return cmd
}
