// conf/config.go
package conf

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

//go:embed config.yaml
var configFiles embed.FS

// LogConfig defines the configuration for a log file
type LogConfig struct {
	Enabled  bool         // true to enable file logging
	Path     string       // path to log file
	Rotation RotationType // Type of log rotation
	MaxSize  int64        // Max size in bytes for RotationSize
	Level    string       // debug, info, warn, error
}

// RotationType defines different types of log rotations.
type RotationType string

const (
	RotationDaily  RotationType = "daily"
	RotationWeekly RotationType = "weekly"
	RotationSize   RotationType = "size"
)

// WatcherSettings controls device hotplug detection
type WatcherSettings struct {
	Enabled  bool          // true to watch for device removal
	Interval time.Duration // enumeration poll interval
	Udev     bool          // also listen for udev sound events (linux only)
}

// AudioSettings contains host backend and stream format settings
type AudioSettings struct {
	Backend       string          // malgo or null
	SampleRate    int             // stream sample rate in Hz
	Channels      int             // stream channel count
	BufferFrames  int             // period size in frames
	RingBuffer    int             // per route buffer between capture and playback, in bytes
	DefaultInput  string          // name or id of the default input device, empty for system default
	DefaultOutput string          // name or id of the default output device, empty for system default
	Watcher       WatcherSettings // device removal detection
}

// RoutePreset is a virtual cable activated on daemon startup
type RoutePreset struct {
	Source string // input device name or id
	Sink   string // output device name or id
}

// WebServerSettings contains settings for the HTTP control API
type WebServerSettings struct {
	Enabled bool   // true to enable the control API
	Listen  string // address to listen on
	Debug   bool   // true to log every request
}

// MQTTSettings contains settings for MQTT route event publishing
type MQTTSettings struct {
	Enabled  bool   // true to enable MQTT
	Broker   string // MQTT (tcp://host:port)
	Topic    string // MQTT topic prefix
	ClientID string // client id, defaults to main.name
	Username string // MQTT username
	Password string // MQTT password
	Retain   bool   // true to retain messages
}

// SentrySettings contains settings for error telemetry
type SentrySettings struct {
	Enabled bool   // true to enable error reporting
	DSN     string // sentry DSN
}

// TelemetrySettings contains metrics and error reporting settings
type TelemetrySettings struct {
	Metrics bool           // true to expose prometheus metrics on the control API
	Sentry  SentrySettings // optional error reporting
}

// Settings contains all configuration options.
type Settings struct {
	Debug bool // true to enable debug mode

	Main struct {
		Name string    // name of this router instance
		Log  LogConfig // file logging
	}

	Audio AudioSettings // host backend and stream format

	Routes []RoutePreset // virtual cables activated by serve

	WebServer WebServerSettings // control API

	MQTT MQTTSettings // route event publishing

	Telemetry TelemetrySettings // metrics and error reporting
}

var (
	settingsInstance *Settings
	once             sync.Once
	settingsMutex    sync.RWMutex
	configFileFlag   string
)

// SetConfigFile forces a specific config file instead of the search path.
func SetConfigFile(path string) {
	settingsMutex.Lock()
	defer settingsMutex.Unlock()
	configFileFlag = path
}

// Load reads the configuration file and environment variables into settings.
func Load() (*Settings, error) {
	settingsMutex.Lock()
	defer settingsMutex.Unlock()

	settings := &Settings{}

	if err := initViper(); err != nil {
		return nil, fmt.Errorf("error initializing viper: %w", err)
	}

	if err := viper.Unmarshal(settings); err != nil {
		return nil, fmt.Errorf("error unmarshaling config into struct: %w", err)
	}

	if err := ValidateSettings(settings); err != nil {
		return nil, fmt.Errorf("error validating settings: %w", err)
	}

	settingsInstance = settings
	return settingsInstance, nil
}

// initViper initializes viper with default values and reads the configuration file.
func initViper() error {
	viper.SetConfigType("yaml")

	setDefaultConfig()

	if err := bindEnvVars(); err != nil {
		return err
	}

	if configFileFlag != "" {
		viper.SetConfigFile(configFileFlag)
		if err := viper.ReadInConfig(); err != nil {
			return fmt.Errorf("error reading config file %s: %w", configFileFlag, err)
		}
		return nil
	}

	viper.SetConfigName("config")

	configPaths, err := GetDefaultConfigPaths()
	if err != nil {
		return fmt.Errorf("error getting default config paths: %w", err)
	}
	for _, path := range configPaths {
		viper.AddConfigPath(path)
	}

	err = viper.ReadInConfig()
	if err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if errors.As(err, &configFileNotFoundError) {
			return createDefaultConfig()
		}
		return fmt.Errorf("fatal error reading config file: %w", err)
	}

	return nil
}

// createDefaultConfig creates a default config file and writes it to the default config path
func createDefaultConfig() error {
	configPaths, err := GetDefaultConfigPaths()
	if err != nil {
		return fmt.Errorf("error getting default config paths: %w", err)
	}
	configPath := filepath.Join(configPaths[0], "config.yaml")

	if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
		// Read-only home directories are common on appliances; run on defaults.
		return nil
	}

	if err := os.WriteFile(configPath, []byte(getDefaultConfig()), 0o644); err != nil {
		return nil
	}

	return viper.ReadInConfig()
}

// getDefaultConfig reads the default configuration from the embedded config.yaml file.
func getDefaultConfig() string {
	data, err := fs.ReadFile(configFiles, "config.yaml")
	if err != nil {
		panic(fmt.Sprintf("embedded config.yaml missing: %v", err))
	}
	return string(data)
}

// GetSettings returns the current settings instance
func GetSettings() *Settings {
	settingsMutex.RLock()
	defer settingsMutex.RUnlock()
	return settingsInstance
}

// Setting returns the current settings instance, initializing it if necessary.
// When loading fails the built-in defaults are used.
func Setting() *Settings {
	once.Do(func() {
		if GetSettings() == nil {
			if _, err := Load(); err != nil {
				settingsMutex.Lock()
				settingsInstance = Defaults()
				settingsMutex.Unlock()
			}
		}
	})
	return GetSettings()
}

// SaveYAMLConfig writes settings to configPath atomically.
// It overwrites the existing file, not preserving comments or structure.
func SaveYAMLConfig(configPath string, settings *Settings) error {
	yamlData, err := yaml.Marshal(settings)
	if err != nil {
		return fmt.Errorf("error marshaling settings to YAML: %w", err)
	}

	tempFile, err := os.CreateTemp(filepath.Dir(configPath), "config-*.yaml")
	if err != nil {
		return fmt.Errorf("error creating temporary file: %w", err)
	}
	tempFileName := tempFile.Name()
	defer os.Remove(tempFileName)

	if _, err := tempFile.Write(yamlData); err != nil {
		tempFile.Close()
		return fmt.Errorf("error writing to temporary file: %w", err)
	}
	if err := tempFile.Close(); err != nil {
		return fmt.Errorf("error closing temporary file: %w", err)
	}

	if err := os.Rename(tempFileName, configPath); err != nil {
		return fmt.Errorf("error replacing config file: %w", err)
	}

	return nil
}
