// conf/validate.go
package conf

import (
	"fmt"
	"net/url"
	"strings"
)

// ValidationError represents a collection of validation errors
type ValidationError struct {
	Errors []string
}

// Error returns a string representation of the validation errors
func (ve ValidationError) Error() string {
	return fmt.Sprintf("Validation errors: %v", ve.Errors)
}

// ValidateSettings validates the entire Settings struct
func ValidateSettings(settings *Settings) error {
	ve := ValidationError{}

	if err := validateAudioSettings(&settings.Audio); err != nil {
		ve.Errors = append(ve.Errors, err.Error())
	}

	for i, r := range settings.Routes {
		if strings.TrimSpace(r.Source) == "" || strings.TrimSpace(r.Sink) == "" {
			ve.Errors = append(ve.Errors, fmt.Sprintf("routes[%d]: source and sink are required", i))
		}
	}

	if err := validateLogSettings(&settings.Main.Log); err != nil {
		ve.Errors = append(ve.Errors, err.Error())
	}

	if err := validateWebServerSettings(&settings.WebServer); err != nil {
		ve.Errors = append(ve.Errors, err.Error())
	}

	if err := validateMQTTSettings(&settings.MQTT); err != nil {
		ve.Errors = append(ve.Errors, err.Error())
	}

	if settings.Telemetry.Sentry.Enabled && settings.Telemetry.Sentry.DSN == "" {
		ve.Errors = append(ve.Errors, "telemetry.sentry.dsn is required when sentry is enabled")
	}

	if len(ve.Errors) > 0 {
		return ve
	}

	return nil
}

func validateAudioSettings(settings *AudioSettings) error {
	switch settings.Backend {
	case BackendMalgo, BackendNull:
	default:
		return fmt.Errorf("audio.backend must be %q or %q, got %q", BackendMalgo, BackendNull, settings.Backend)
	}

	if settings.SampleRate < 8000 || settings.SampleRate > 384000 {
		return fmt.Errorf("audio.samplerate %d out of range", settings.SampleRate)
	}

	if settings.Channels < 1 || settings.Channels > 8 {
		return fmt.Errorf("audio.channels must be between 1 and 8, got %d", settings.Channels)
	}

	if settings.BufferFrames <= 0 {
		return fmt.Errorf("audio.bufferframes must be positive")
	}

	// Ring buffer must hold at least two periods of 16-bit audio
	minRing := settings.BufferFrames * settings.Channels * 2 * 2
	if settings.RingBuffer < minRing {
		return fmt.Errorf("audio.ringbuffer must be at least %d bytes", minRing)
	}

	if settings.Watcher.Enabled && settings.Watcher.Interval <= 0 {
		return fmt.Errorf("audio.watcher.interval must be positive")
	}

	return nil
}

func validateLogSettings(settings *LogConfig) error {
	if !settings.Enabled {
		return nil
	}
	if settings.Path == "" {
		return fmt.Errorf("main.log.path is required when file logging is enabled")
	}
	switch settings.Rotation {
	case RotationDaily, RotationWeekly, RotationSize, "":
	default:
		return fmt.Errorf("main.log.rotation %q is not supported", settings.Rotation)
	}
	if settings.Rotation == RotationSize && settings.MaxSize <= 0 {
		return fmt.Errorf("main.log.maxsize must be positive for size rotation")
	}
	return nil
}

func validateWebServerSettings(settings *WebServerSettings) error {
	if settings.Enabled && settings.Listen == "" {
		return fmt.Errorf("webserver.listen is required when the web server is enabled")
	}
	return nil
}

func validateMQTTSettings(settings *MQTTSettings) error {
	if !settings.Enabled {
		return nil
	}
	if settings.Broker == "" {
		return fmt.Errorf("mqtt.broker is required when MQTT is enabled")
	}
	u, err := url.Parse(settings.Broker)
	if err != nil || u.Host == "" {
		return fmt.Errorf("mqtt.broker %q is not a valid URL", settings.Broker)
	}
	switch u.Scheme {
	case "tcp", "ssl", "tls", "ws", "wss", "mqtt", "mqtts":
	default:
		return fmt.Errorf("mqtt.broker scheme %q is not supported", u.Scheme)
	}
	if settings.Topic == "" {
		return fmt.Errorf("mqtt.topic is required when MQTT is enabled")
	}
	return nil
}
