// conf/env.go environment variable bindings
package conf

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// envBinding maps a config key to an environment variable
type envBinding struct {
	ConfigKey string
	EnvVar    string
}

// envBindings lists explicitly supported overrides. Secrets are kept out of
// config files by setting them here.
var envBindings = []envBinding{
	{"audio.backend", "HIJACK_AUDIO_BACKEND"},
	{"audio.defaultinput", "HIJACK_AUDIO_DEFAULTINPUT"},
	{"audio.defaultoutput", "HIJACK_AUDIO_DEFAULTOUTPUT"},
	{"webserver.listen", "HIJACK_WEBSERVER_LISTEN"},
	{"mqtt.broker", "HIJACK_MQTT_BROKER"},
	{"mqtt.username", "HIJACK_MQTT_USERNAME"},
	{"mqtt.password", "HIJACK_MQTT_PASSWORD"},
	{"telemetry.sentry.dsn", "HIJACK_SENTRY_DSN"},
}

// bindEnvVars binds the explicit overrides and enables HIJACK_ prefixed
// lookup for every other key.
func bindEnvVars() error {
	viper.SetEnvPrefix(EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	for _, b := range envBindings {
		if err := viper.BindEnv(b.ConfigKey, b.EnvVar); err != nil {
			return fmt.Errorf("failed to bind %s to %s: %w", b.EnvVar, b.ConfigKey, err)
		}
	}
	return nil
}
