package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/kappaborg/HIJACK-Audio/cmd/devices"
	"github.com/kappaborg/HIJACK-Audio/cmd/route"
	"github.com/kappaborg/HIJACK-Audio/cmd/serve"
	"github.com/kappaborg/HIJACK-Audio/cmd/version"
	"github.com/kappaborg/HIJACK-Audio/internal/conf"
	"github.com/kappaborg/HIJACK-Audio/internal/logging"
)

// RootCommand creates and returns the root command
func RootCommand(settings *conf.Settings) *cobra.Command {
	var configFile string
	closeLog := func() error { return nil }

	rootCmd := &cobra.Command{
		Use:           "hijack-audio",
		Short:         "HIJACK-Audio virtual audio cable router",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Set up the global flags for the root command.
	if err := setupFlags(rootCmd, settings, &configFile); err != nil {
		panic(err)
	}

	versionCmd := version.Command()
	rootCmd.AddCommand(
		devices.Command(settings),
		route.Command(settings),
		serve.Command(settings),
		versionCmd,
	)

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == versionCmd.Name() {
			return nil
		}

		if configFile != "" {
			conf.SetConfigFile(configFile)
		}

		// Reload so bound flags take precedence over the config file.
		loaded, err := conf.Load()
		if err != nil {
			return err
		}
		*settings = *loaded

		if closeLog, err = logging.Configure(settings); err != nil {
			return fmt.Errorf("error configuring logging: %w", err)
		}
		return nil
	}

	rootCmd.PersistentPostRunE = func(cmd *cobra.Command, args []string) error {
		return closeLog()
	}

	return rootCmd
}

// setupFlags defines flags that are global to the command line interface
func setupFlags(rootCmd *cobra.Command, settings *conf.Settings, configFile *string) error {
	flags := rootCmd.PersistentFlags()
	flags.StringVarP(configFile, "config", "c", "", "Path to the configuration file")
	flags.BoolVarP(&settings.Debug, "debug", "d", viper.GetBool("debug"), "Enable debug output")
	flags.StringVar(&settings.Audio.Backend, "backend", viper.GetString("audio.backend"), "Audio host backend (malgo or null)")

	if err := viper.BindPFlag("debug", flags.Lookup("debug")); err != nil {
		return fmt.Errorf("error binding flags: %w", err)
	}
	if err := viper.BindPFlag("audio.backend", flags.Lookup("backend")); err != nil {
		return fmt.Errorf("error binding flags: %w", err)
	}

	return nil
}
