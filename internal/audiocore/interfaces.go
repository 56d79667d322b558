package audiocore

import "context"

// Host is the platform audio subsystem. Implementations must be safe for
// concurrent use.
type Host interface {
	// EnumerateDevices returns the current device set.
	EnumerateDevices(ctx context.Context) ([]DeviceDescriptor, error)

	// AttachCapture opens the capture side of a device.
	AttachCapture(id DeviceID) (Endpoint, error)

	// AttachPlayback opens the playback side of a device.
	AttachPlayback(id DeviceID) (Endpoint, error)

	// Connect wires capture into the mixer bus of playback. The returned link
	// carries no audio until enabled.
	Connect(capture, playback Endpoint) (Link, error)

	// StartEngine and StopEngine drive the shared processing engine.
	StartEngine() error
	StopEngine() error

	// SetDefaultDevice makes id the system endpoint for dir.
	SetDefaultDevice(dir Direction, id DeviceID) error

	// OnDeviceRemoved registers fn to be called when a device disappears.
	// fn must not block.
	OnDeviceRemoved(fn func(DeviceID))

	// Close releases the host session.
	Close() error
}

// Endpoint is an attached capture or playback stream.
type Endpoint interface {
	DeviceID() DeviceID
	Direction() Direction
	Close() error
}

// Link is one capture→playback segment of the audio graph.
type Link interface {
	// Enable starts carrying audio. An error leaves the link disabled.
	Enable() error
	Disable()
	Close() error
}

// MetricsRecorder receives routing metrics. The observability package
// provides the Prometheus implementation.
type MetricsRecorder interface {
	SetActiveRoutes(n int)
	SetEngineUsers(n int)
	RecordTransition(state string)
	RecordError(kind string)
	RecordEnumeration(ok bool)
	RecordDeviceRemoval()
}

type noopMetrics struct{}

func (noopMetrics) SetActiveRoutes(int)     {}
func (noopMetrics) SetEngineUsers(int)      {}
func (noopMetrics) RecordTransition(string) {}
func (noopMetrics) RecordError(string)      {}
func (noopMetrics) RecordEnumeration(bool)  {}
func (noopMetrics) RecordDeviceRemoval()    {}
