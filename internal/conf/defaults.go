// conf/defaults.go default values for settings
package conf

import (
	"time"

	"github.com/spf13/viper"
)

// Sets default values for the configuration.
func setDefaultConfig() {
	viper.SetDefault("debug", false)

	viper.SetDefault("main.name", "HIJACK-Audio")
	viper.SetDefault("main.log.enabled", false)
	viper.SetDefault("main.log.path", "logs/hijack.log")
	viper.SetDefault("main.log.rotation", RotationDaily)
	viper.SetDefault("main.log.maxsize", 10485760)
	viper.SetDefault("main.log.level", "info")

	viper.SetDefault("audio.backend", BackendMalgo)
	viper.SetDefault("audio.samplerate", DefaultSampleRate)
	viper.SetDefault("audio.channels", DefaultChannels)
	viper.SetDefault("audio.bufferframes", DefaultBufferFrames)
	viper.SetDefault("audio.ringbuffer", 65536)
	viper.SetDefault("audio.defaultinput", "")
	viper.SetDefault("audio.defaultoutput", "")
	viper.SetDefault("audio.watcher.enabled", true)
	viper.SetDefault("audio.watcher.interval", 2*time.Second)
	viper.SetDefault("audio.watcher.udev", true)

	viper.SetDefault("routes", []map[string]string{})

	viper.SetDefault("webserver.enabled", true)
	viper.SetDefault("webserver.listen", "127.0.0.1:8089")
	viper.SetDefault("webserver.debug", false)

	viper.SetDefault("mqtt.enabled", false)
	viper.SetDefault("mqtt.broker", "tcp://localhost:1883")
	viper.SetDefault("mqtt.topic", "hijack-audio")
	viper.SetDefault("mqtt.clientid", "")
	viper.SetDefault("mqtt.username", "")
	viper.SetDefault("mqtt.password", "")
	viper.SetDefault("mqtt.retain", false)

	viper.SetDefault("telemetry.metrics", true)
	viper.SetDefault("telemetry.sentry.enabled", false)
	viper.SetDefault("telemetry.sentry.dsn", "")
}

// Defaults returns a Settings value populated with the built-in defaults,
// without reading any file or environment.
func Defaults() *Settings {
	s := &Settings{}
	s.Main.Name = "HIJACK-Audio"
	s.Main.Log = LogConfig{
		Path:     "logs/hijack.log",
		Rotation: RotationDaily,
		MaxSize:  10485760,
		Level:    "info",
	}
	s.Audio = AudioSettings{
		Backend:      BackendMalgo,
		SampleRate:   DefaultSampleRate,
		Channels:     DefaultChannels,
		BufferFrames: DefaultBufferFrames,
		RingBuffer:   65536,
		Watcher: WatcherSettings{
			Enabled:  true,
			Interval: 2 * time.Second,
			Udev:     true,
		},
	}
	s.WebServer = WebServerSettings{Enabled: true, Listen: "127.0.0.1:8089"}
	s.MQTT = MQTTSettings{Broker: "tcp://localhost:1883", Topic: "hijack-audio"}
	s.Telemetry.Metrics = true
	return s
}
