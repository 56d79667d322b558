package audiocore

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DeviceID is the host's handle for a hardware endpoint. It is stable while
// the hardware stays present.
type DeviceID uint32

// DefaultDevice refers to the active endpoint of the requested direction.
const DefaultDevice DeviceID = 0

// Direction selects the capture or playback side of a device.
type Direction int

const (
	DirectionInput Direction = iota
	DirectionOutput
)

func (d Direction) String() string {
	switch d {
	case DirectionInput:
		return "input"
	case DirectionOutput:
		return "output"
	default:
		return fmt.Sprintf("direction(%d)", int(d))
	}
}

// ParseDirection accepts "input"/"in"/"capture" and "output"/"out"/"playback".
func ParseDirection(s string) (Direction, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "input", "in", "capture", "source":
		return DirectionInput, nil
	case "output", "out", "playback", "sink":
		return DirectionOutput, nil
	default:
		return 0, fmt.Errorf("invalid direction %q", s)
	}
}

// DeviceDescriptor is a device as reported by the Host.
type DeviceDescriptor struct {
	ID            DeviceID
	Name          string
	InputStreams  int
	OutputStreams int
	DefaultInput  bool // host's current default capture device
	DefaultOutput bool // host's current default playback device
}

// Capability tells which directions a device can serve.
type Capability struct {
	IsInput  bool `json:"is_input"`
	IsOutput bool `json:"is_output"`
}

// Device is a discovered audio endpoint.
type Device struct {
	ID            DeviceID `json:"id"`
	Name          string   `json:"name"`
	InputStreams  int      `json:"input_streams"`
	OutputStreams int      `json:"output_streams"`
	DefaultInput  bool     `json:"default_input,omitempty"`
	DefaultOutput bool     `json:"default_output,omitempty"`
}

// Classify reports the device capabilities derived from its stream counts.
func (d Device) Classify() Capability {
	return Capability{
		IsInput:  d.InputStreams > 0,
		IsOutput: d.OutputStreams > 0,
	}
}

// Supports reports whether the device can serve dir.
func (d Device) Supports(dir Direction) bool {
	c := d.Classify()
	if dir == DirectionInput {
		return c.IsInput
	}
	return c.IsOutput
}

// RouteKey is the natural key of a route.
type RouteKey struct {
	Source DeviceID `json:"source"`
	Sink   DeviceID `json:"sink"`
}

// String is for logs only; it is never parsed back.
func (k RouteKey) String() string {
	return fmt.Sprintf("%d→%d", k.Source, k.Sink)
}

// RouteHandle identifies one route instance. A new request for the same key
// after a terminal state gets a new handle.
type RouteHandle uuid.UUID

// NewRouteHandle returns a random handle.
func NewRouteHandle() RouteHandle {
	return RouteHandle(uuid.New())
}

// ParseRouteHandle parses the textual form produced by String.
func ParseRouteHandle(s string) (RouteHandle, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return RouteHandle{}, fmt.Errorf("invalid route handle %q: %w", s, err)
	}
	return RouteHandle(id), nil
}

func (h RouteHandle) String() string {
	return uuid.UUID(h).String()
}

// IsZero reports whether h is the zero handle.
func (h RouteHandle) IsZero() bool {
	return h == RouteHandle{}
}

// MarshalText implements encoding.TextMarshaler.
func (h RouteHandle) MarshalText() ([]byte, error) {
	return []byte(h.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (h *RouteHandle) UnmarshalText(b []byte) error {
	parsed, err := ParseRouteHandle(string(b))
	if err != nil {
		return err
	}
	*h = parsed
	return nil
}

// RouteState is a step of the route lifecycle.
type RouteState int

const (
	RouteRequested RouteState = iota
	RouteConstructed
	RouteActive
	RouteStopped
	RouteFailed
)

func (s RouteState) String() string {
	switch s {
	case RouteRequested:
		return "requested"
	case RouteConstructed:
		return "constructed"
	case RouteActive:
		return "active"
	case RouteStopped:
		return "stopped"
	case RouteFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// IsTerminal reports whether no further transitions are possible.
func (s RouteState) IsTerminal() bool {
	return s == RouteStopped || s == RouteFailed
}

// MarshalText implements encoding.TextMarshaler.
func (s RouteState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Route is a point-in-time copy of a route's public state.
type Route struct {
	Handle    RouteHandle `json:"handle"`
	Key       RouteKey    `json:"key"`
	State     RouteState  `json:"state"`
	CreatedAt time.Time   `json:"created_at"`
	StartedAt time.Time   `json:"started_at,omitzero"`
	EndedAt   time.Time   `json:"ended_at,omitzero"`
	Err       error       `json:"-"`
}

// ConnectionRecord is the external projection of an active route.
type ConnectionRecord struct {
	Key         RouteKey    `json:"key"`
	Handle      RouteHandle `json:"handle"`
	SourceName  string      `json:"source_name"`
	SinkName    string      `json:"sink_name"`
	ActivatedAt time.Time   `json:"activated_at"`
}
