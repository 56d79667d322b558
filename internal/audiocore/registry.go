package audiocore

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"strings"

	"github.com/kappaborg/HIJACK-Audio/internal/errors"
	"github.com/kappaborg/HIJACK-Audio/internal/logging"
)

// DeviceRegistry lists and classifies host devices. It keeps no state between
// calls; callers needing a stable view hold on to a Snapshot.
type DeviceRegistry struct {
	host    Host
	logger  *slog.Logger
	metrics MetricsRecorder
}

// RegistryOption configures a DeviceRegistry.
type RegistryOption func(*DeviceRegistry)

// WithRegistryMetrics sets the metrics recorder.
func WithRegistryMetrics(m MetricsRecorder) RegistryOption {
	return func(r *DeviceRegistry) {
		if m != nil {
			r.metrics = m
		}
	}
}

// NewDeviceRegistry creates a registry over host.
func NewDeviceRegistry(host Host, opts ...RegistryOption) *DeviceRegistry {
	r := &DeviceRegistry{
		host:    host,
		logger:  logging.ForService("audiocore").With("component", "registry"),
		metrics: noopMetrics{},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// enumerate queries the host once and returns devices sorted by id.
func (r *DeviceRegistry) enumerate(ctx context.Context) ([]Device, error) {
	descs, err := r.host.EnumerateDevices(ctx)
	if err != nil {
		r.metrics.RecordEnumeration(false)
		return nil, errors.New(fmt.Errorf("%w: %w", ErrEnumerationFailure, err)).
			Component(ComponentAudioCore).
			Category(errors.CategoryEnumeration).
			Build()
	}
	r.metrics.RecordEnumeration(true)

	devices := make([]Device, 0, len(descs))
	for _, d := range descs {
		devices = append(devices, Device{
			ID:            d.ID,
			Name:          strings.TrimSpace(d.Name),
			InputStreams:  d.InputStreams,
			OutputStreams: d.OutputStreams,
			DefaultInput:  d.DefaultInput,
			DefaultOutput: d.DefaultOutput,
		})
	}
	slices.SortFunc(devices, func(a, b Device) int {
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		default:
			return 0
		}
	})
	return devices, nil
}

// ListDevices returns every device the host reports, ascending by id.
// Enumeration failure is logged and yields an empty list.
func (r *DeviceRegistry) ListDevices(ctx context.Context) []Device {
	devices, err := r.enumerate(ctx)
	if err != nil {
		r.logger.Warn("device enumeration failed", "error", err)
		return []Device{}
	}
	return devices
}

// Snapshot captures the current device set.
func (r *DeviceRegistry) Snapshot(ctx context.Context) *Snapshot {
	return NewSnapshot(r.ListDevices(ctx))
}

// Classify reports the capabilities of d.
func (r *DeviceRegistry) Classify(d Device) Capability {
	return d.Classify()
}

// NameOf returns the display name of id, or UnknownDeviceName. It never fails.
func (r *DeviceRegistry) NameOf(ctx context.Context, id DeviceID) string {
	for _, d := range r.ListDevices(ctx) {
		if d.ID == id {
			return displayName(d)
		}
	}
	return UnknownDeviceName
}

// Inputs filters devices with at least one input stream.
func Inputs(devices []Device) []Device {
	return filter(devices, DirectionInput)
}

// Outputs filters devices with at least one output stream.
func Outputs(devices []Device) []Device {
	return filter(devices, DirectionOutput)
}

func filter(devices []Device, dir Direction) []Device {
	out := make([]Device, 0, len(devices))
	for _, d := range devices {
		if d.Supports(dir) {
			out = append(out, d)
		}
	}
	return out
}

func displayName(d Device) string {
	if d.Name == "" {
		return UnknownDeviceName
	}
	return d.Name
}

// Snapshot is an immutable device listing.
type Snapshot struct {
	devices []Device
	byID    map[DeviceID]Device
}

// NewSnapshot wraps devices, which must not be modified afterwards.
func NewSnapshot(devices []Device) *Snapshot {
	byID := make(map[DeviceID]Device, len(devices))
	for _, d := range devices {
		byID[d.ID] = d
	}
	return &Snapshot{devices: devices, byID: byID}
}

// Devices returns a copy of the listing.
func (s *Snapshot) Devices() []Device {
	return slices.Clone(s.devices)
}

// Inputs returns the input-capable devices.
func (s *Snapshot) Inputs() []Device { return Inputs(s.devices) }

// Outputs returns the output-capable devices.
func (s *Snapshot) Outputs() []Device { return Outputs(s.devices) }

// Len returns the number of devices.
func (s *Snapshot) Len() int { return len(s.devices) }

// Lookup returns the device with id.
func (s *Snapshot) Lookup(id DeviceID) (Device, bool) {
	d, ok := s.byID[id]
	return d, ok
}

// NameOf returns the display name of id or UnknownDeviceName.
func (s *Snapshot) NameOf(id DeviceID) string {
	if d, ok := s.byID[id]; ok {
		return displayName(d)
	}
	return UnknownDeviceName
}

// Default picks the device the host flags as default for dir, or the
// first capable one.
func (s *Snapshot) Default(dir Direction) (Device, error) {
	candidates := filter(s.devices, dir)
	for _, d := range candidates {
		if (dir == DirectionInput && d.DefaultInput) || (dir == DirectionOutput && d.DefaultOutput) {
			return d, nil
		}
	}
	if len(candidates) > 0 {
		return candidates[0], nil
	}
	return Device{}, unknownDevice("default", fmt.Sprintf("no %s device available", dir))
}

// Find resolves a device reference in this order: numeric id, exact name,
// case-insensitive name, unique case-insensitive substring. Devices not
// supporting dir are skipped.
func (s *Snapshot) Find(ref string, dir Direction) (Device, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return Device{}, unknownDevice(ref, "empty reference")
	}

	candidates := filter(s.devices, dir)

	// A numeric miss falls through so devices named with digits resolve.
	n, err := strconv.ParseUint(ref, 10, 32)
	numeric := err == nil
	if numeric {
		if d, ok := s.byID[DeviceID(n)]; ok && d.Supports(dir) {
			return d, nil
		}
	}

	for _, d := range candidates {
		if d.Name == ref {
			return d, nil
		}
	}

	var folded []Device
	for _, d := range candidates {
		if strings.EqualFold(d.Name, ref) {
			folded = append(folded, d)
		}
	}
	if len(folded) == 1 {
		return folded[0], nil
	}

	lower := strings.ToLower(ref)
	var partial []Device
	for _, d := range candidates {
		if strings.Contains(strings.ToLower(d.Name), lower) {
			partial = append(partial, d)
		}
	}
	switch len(partial) {
	case 1:
		return partial[0], nil
	case 0:
		if numeric {
			return Device{}, unknownDevice(ref, fmt.Sprintf("no %s device with id or name %q", dir, ref))
		}
		return Device{}, unknownDevice(ref, fmt.Sprintf("no %s device named %q", dir, ref))
	default:
		return Device{}, unknownDevice(ref, fmt.Sprintf("%q matches %d %s devices", ref, len(partial), dir))
	}
}

func unknownDevice(ref, reason string) error {
	return errors.New(fmt.Errorf("%s: %w", reason, ErrUnknownDevice)).
		Component(ComponentAudioCore).
		Category(errors.CategoryUnknownDevice).
		Context("device_ref", ref).
		Build()
}
