package version

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/kappaborg/HIJACK-Audio/internal/buildinfo"
	"github.com/kappaborg/HIJACK-Audio/internal/conf"
)

// Command creates a new cobra.Command to print build information.
func Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print the version of HIJACK-Audio",
		RunE: func(cmd *cobra.Command, args []string) error {
			b := buildinfo.Current()
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s (built %s, %s %s/%s)\n",
				conf.AppName, b.Version(), b.BuildDate(), b.GoVersion(), runtime.GOOS, runtime.GOARCH)
			return nil
		},
	}

	return cmd
}
