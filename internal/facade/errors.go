package facade

import (
	"github.com/kappaborg/HIJACK-Audio/internal/audiocore"
	"github.com/kappaborg/HIJACK-Audio/internal/errors"
)

// Codes carried by UserError.
const (
	CodeUnknownDevice      = "unknown_device"
	CodeDuplicateRoute     = "duplicate_route"
	CodeConstructionFailed = "construction_failed"
	CodeNotConstructed     = "not_constructed"
	CodeNotFound           = "not_found"
	CodeDeviceUnavailable  = "device_unavailable"
	CodeInternal           = "internal"
)

// UserError is a routing failure phrased for the person who asked for it.
type UserError struct {
	Code    string
	Message string
	Err     error
}

func (e *UserError) Error() string {
	return e.Message
}

func (e *UserError) Unwrap() error {
	return e.Err
}

var messages = map[string]string{
	CodeUnknownDevice:      "That device is not available. Refresh the device list and try again.",
	CodeDuplicateRoute:     "These devices are already connected.",
	CodeConstructionFailed: "The connection could not be set up.",
	CodeNotConstructed:     "The connection is not ready to start.",
	CodeNotFound:           "There is no such connection.",
	CodeDeviceUnavailable:  "The audio device is busy or was disconnected.",
	CodeInternal:           "Something went wrong while routing audio.",
}

// translate wraps a core error in a UserError. Nil and UserError values
// pass through.
func translate(err error) error {
	if err == nil {
		return nil
	}
	var ue *UserError
	if errors.As(err, &ue) {
		return err
	}
	code := codeFor(audiocore.ErrorKind(err))
	return &UserError{Code: code, Message: messages[code], Err: err}
}

func codeFor(kind string) string {
	switch kind {
	case "unknown_device":
		return CodeUnknownDevice
	case "duplicate_route":
		return CodeDuplicateRoute
	case "construction_failed":
		return CodeConstructionFailed
	case "not_constructed":
		return CodeNotConstructed
	case "not_found":
		return CodeNotFound
	case "device_unavailable", "device_removed", "enumeration_failure":
		return CodeDeviceUnavailable
	default:
		return CodeInternal
	}
}

// Code extracts the UserError code from err, or CodeInternal.
func Code(err error) string {
	var ue *UserError
	if errors.As(err, &ue) {
		return ue.Code
	}
	return CodeInternal
}

// Message returns the user-facing text for err, or "" for nil.
func Message(err error) string {
	var ue *UserError
	if errors.As(translate(err), &ue) {
		return ue.Message
	}
	return ""
}
