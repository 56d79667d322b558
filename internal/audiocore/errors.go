package audiocore

import (
	"github.com/kappaborg/HIJACK-Audio/internal/errors"
)

// Component identifier for audiocore errors
const ComponentAudioCore = "audiocore"

// Routing error taxonomy. Errors returned by this package match these with
// errors.Is; a construction failure caused by an unknown device matches both
// ErrConstruction and ErrUnknownDevice.
var (
	// ErrEnumerationFailure is logged when the host cannot list devices
	ErrEnumerationFailure = errors.New(nil).
		Component(ComponentAudioCore).
		Category(errors.CategoryEnumeration).
		Build()

	// ErrUnknownDevice is returned when a device id or name does not resolve
	ErrUnknownDevice = errors.New(nil).
		Component(ComponentAudioCore).
		Category(errors.CategoryUnknownDevice).
		Build()

	// ErrDuplicateRoute is returned when a live route already exists for the pair
	ErrDuplicateRoute = errors.New(nil).
		Component(ComponentAudioCore).
		Category(errors.CategoryDuplicateRoute).
		Build()

	// ErrConstruction is returned when the audio graph for a route cannot be built
	ErrConstruction = errors.New(nil).
		Component(ComponentAudioCore).
		Category(errors.CategoryConstruction).
		Build()

	// ErrNotConstructed is returned by Start outside the Constructed state
	ErrNotConstructed = errors.New(nil).
		Component(ComponentAudioCore).
		Category(errors.CategoryNotConstructed).
		Build()

	// ErrRouteNotFound is returned for unknown or terminal routes
	ErrRouteNotFound = errors.New(nil).
		Component(ComponentAudioCore).
		Category(errors.CategoryRouteNotFound).
		Build()

	// ErrDeviceUnavailable is returned when the host rejects a device
	ErrDeviceUnavailable = errors.New(nil).
		Component(ComponentAudioCore).
		Category(errors.CategoryDeviceUnavailable).
		Build()

	// ErrDeviceRemovedMidRoute is recorded on routes torn down by device removal
	ErrDeviceRemovedMidRoute = errors.New(nil).
		Component(ComponentAudioCore).
		Category(errors.CategoryDeviceRemoved).
		Build()

	// ErrEngineClosed is returned after the routing engine has been closed
	ErrEngineClosed = errors.New(nil).
		Component(ComponentAudioCore).
		Category(errors.CategoryState).
		Context("resource", "routing_engine").
		Build()
)

// ErrorKind returns a short stable label for a routing error, used in
// metrics and events.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrDuplicateRoute):
		return "duplicate_route"
	case errors.Is(err, ErrDeviceRemovedMidRoute):
		return "device_removed"
	case errors.Is(err, ErrUnknownDevice):
		return "unknown_device"
	case errors.Is(err, ErrDeviceUnavailable):
		return "device_unavailable"
	case errors.Is(err, ErrNotConstructed):
		return "not_constructed"
	case errors.Is(err, ErrRouteNotFound):
		return "not_found"
	case errors.Is(err, ErrEnumerationFailure):
		return "enumeration_failure"
	case errors.Is(err, ErrConstruction):
		return "construction_failed"
	case errors.Is(err, ErrEngineClosed):
		return "closed"
	default:
		return "internal"
	}
}
