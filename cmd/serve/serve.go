package serve

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/kappaborg/HIJACK-Audio/internal/conf"
	"github.com/kappaborg/HIJACK-Audio/internal/router"
)

// Command creates a new command running the router daemon.
func Command(settings *conf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the router daemon",
		Long:  "Start the configured routes and serve the control API until interrupted.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return router.Serve(cmd.Context(), settings)
		},
	}

	// Set up flags specific to the 'serve' command
	if err := setupFlags(cmd, settings); err != nil {
		fmt.Printf("error setting up flags: %v\n", err)
		os.Exit(1)
	}

	return cmd
}

// setupFlags configures flags specific to the serve command.
func setupFlags(cmd *cobra.Command, settings *conf.Settings) error {
	flags := cmd.Flags()
	flags.StringVar(&settings.WebServer.Listen, "listen", viper.GetString("webserver.listen"), "Listen address of the control API")
	flags.BoolVar(&settings.WebServer.Enabled, "api", viper.GetBool("webserver.enabled"), "Enable the control API")
	flags.BoolVar(&settings.MQTT.Enabled, "mqtt", viper.GetBool("mqtt.enabled"), "Publish route events to MQTT")
	flags.BoolVar(&settings.Audio.Watcher.Enabled, "watch", viper.GetBool("audio.watcher.enabled"), "Watch for removed devices")

	bindings := []struct{ key, flag string }{
		{"webserver.listen", "listen"},
		{"webserver.enabled", "api"},
		{"mqtt.enabled", "mqtt"},
		{"audio.watcher.enabled", "watch"},
	}
	for _, b := range bindings {
		if err := viper.BindPFlag(b.key, flags.Lookup(b.flag)); err != nil {
			return fmt.Errorf("error binding flags: %v", err)
		}
	}

	return nil
}
