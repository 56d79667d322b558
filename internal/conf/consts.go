// conf/consts.go hard coded constants
package conf

const (
	AppName = "hijack-audio"

	DefaultSampleRate   = 48000 // Sample rate negotiated with capture and playback devices
	DefaultChannels     = 2     // Channel count of the routed stream
	DefaultBufferFrames = 512   // Period size requested from the host backend

	BackendMalgo = "malgo"
	BackendNull  = "null"

	EnvPrefix = "HIJACK"
)
