// Package events provides an asynchronous event bus that decouples route and
// device notifications from slow consumers such as MQTT publishing.
package events

import (
	"time"
)

// Kind identifies what a RouteEvent describes.
type Kind string

const (
	KindRouteState       Kind = "route_state"       // a route changed lifecycle state
	KindDeviceRemoved    Kind = "device_removed"    // a device disappeared from the host
	KindDevicesRefreshed Kind = "devices_refreshed" // the device set was re-enumerated
	KindEndpointChanged  Kind = "endpoint_changed"  // a system default endpoint was changed
)

// RouteEvent is a notification emitted by the routing core.
type RouteEvent struct {
	Kind       Kind      `json:"kind"`
	Handle     string    `json:"handle,omitempty"`
	Source     uint32    `json:"source,omitempty"`
	Sink       uint32    `json:"sink,omitempty"`
	SourceName string    `json:"source_name,omitempty"`
	SinkName   string    `json:"sink_name,omitempty"`
	Device     uint32    `json:"device,omitempty"`
	State      string    `json:"state,omitempty"`
	Error      string    `json:"error,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// EventConsumer represents a consumer that processes route events
type EventConsumer interface {
	// Name returns the consumer name for identification
	Name() string

	// ProcessEvent processes a single event
	ProcessEvent(event RouteEvent) error
}

// Publisher is the producer side of the bus.
type Publisher interface {
	TryPublish(event RouteEvent) bool
}

// EventBusStats contains runtime statistics for monitoring
type EventBusStats struct {
	EventsReceived   uint64
	EventsSuppressed uint64
	EventsProcessed  uint64
	EventsDropped    uint64
	ConsumerErrors   uint64
}
