// Package null provides an in-memory audio host. It backs dry runs of the
// router and serves as the test double for the routing core.
package null

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/kappaborg/HIJACK-Audio/internal/audiocore"
)

// Host is an audiocore.Host with a scripted device set.
type Host struct {
	mu       sync.Mutex
	devices  map[audiocore.DeviceID]audiocore.DeviceDescriptor
	defaults [2]audiocore.DeviceID

	running      bool
	engineStarts int
	engineStops  int

	endpoints map[*endpoint]struct{}
	links     map[*link]struct{}

	enumerateErr  error
	captureErr    map[audiocore.DeviceID]error
	playbackErr   map[audiocore.DeviceID]error
	connectErr    error
	startErr      error
	enableErr     error
	setDefaultErr error

	removalFns []func(audiocore.DeviceID)
	closed     bool
}

var _ audiocore.Host = (*Host)(nil)

// New creates a host reporting devices.
func New(devices ...audiocore.DeviceDescriptor) *Host {
	h := &Host{
		devices:     make(map[audiocore.DeviceID]audiocore.DeviceDescriptor),
		endpoints:   make(map[*endpoint]struct{}),
		links:       make(map[*link]struct{}),
		captureErr:  make(map[audiocore.DeviceID]error),
		playbackErr: make(map[audiocore.DeviceID]error),
	}
	for _, d := range devices {
		h.devices[d.ID] = d
	}
	return h
}

// NewDemo creates a host with a microphone, speakers and a duplex interface.
func NewDemo() *Host {
	return New(
		audiocore.DeviceDescriptor{ID: 1, Name: "Null Microphone", InputStreams: 1, DefaultInput: true},
		audiocore.DeviceDescriptor{ID: 2, Name: "Null Speakers", OutputStreams: 1, DefaultOutput: true},
		audiocore.DeviceDescriptor{ID: 3, Name: "Null Duplex Interface", InputStreams: 2, OutputStreams: 2},
	)
}

// EnumerateDevices implements audiocore.Host.
func (h *Host) EnumerateDevices(ctx context.Context) ([]audiocore.DeviceDescriptor, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.enumerateErr != nil {
		return nil, h.enumerateErr
	}
	out := make([]audiocore.DeviceDescriptor, 0, len(h.devices))
	for _, d := range h.devices {
		out = append(out, d)
	}
	// Unordered; the registry sorts.
	return out, nil
}

// AttachCapture implements audiocore.Host.
func (h *Host) AttachCapture(id audiocore.DeviceID) (audiocore.Endpoint, error) {
	return h.attach(id, audiocore.DirectionInput)
}

// AttachPlayback implements audiocore.Host.
func (h *Host) AttachPlayback(id audiocore.DeviceID) (audiocore.Endpoint, error) {
	return h.attach(id, audiocore.DirectionOutput)
}

func (h *Host) attach(id audiocore.DeviceID, dir audiocore.Direction) (audiocore.Endpoint, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	failures := h.captureErr
	if dir == audiocore.DirectionOutput {
		failures = h.playbackErr
	}
	if err := failures[id]; err != nil {
		return nil, err
	}

	d, ok := h.devices[id]
	if !ok {
		return nil, fmt.Errorf("device %d not present", id)
	}
	streams := d.InputStreams
	if dir == audiocore.DirectionOutput {
		streams = d.OutputStreams
	}
	if streams == 0 {
		return nil, fmt.Errorf("device %d has no %s streams", id, dir)
	}

	ep := &endpoint{host: h, id: id, dir: dir}
	h.endpoints[ep] = struct{}{}
	return ep, nil
}

// Connect implements audiocore.Host.
func (h *Host) Connect(capture, playback audiocore.Endpoint) (audiocore.Link, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.connectErr != nil {
		return nil, h.connectErr
	}
	if capture.Direction() != audiocore.DirectionInput || playback.Direction() != audiocore.DirectionOutput {
		return nil, fmt.Errorf("connect needs capture then playback endpoints")
	}

	l := &link{host: h, source: capture.DeviceID(), sink: playback.DeviceID()}
	h.links[l] = struct{}{}
	return l, nil
}

// StartEngine implements audiocore.Host.
func (h *Host) StartEngine() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.startErr != nil {
		return h.startErr
	}
	if h.running {
		return fmt.Errorf("engine already running")
	}
	h.running = true
	h.engineStarts++
	return nil
}

// StopEngine implements audiocore.Host.
func (h *Host) StopEngine() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.running {
		return fmt.Errorf("engine not running")
	}
	h.running = false
	h.engineStops++
	return nil
}

// SetDefaultDevice implements audiocore.Host.
func (h *Host) SetDefaultDevice(dir audiocore.Direction, id audiocore.DeviceID) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.setDefaultErr != nil {
		return h.setDefaultErr
	}
	if _, ok := h.devices[id]; !ok {
		return fmt.Errorf("device %d not present", id)
	}
	h.defaults[dir] = id
	return nil
}

// OnDeviceRemoved implements audiocore.Host.
func (h *Host) OnDeviceRemoved(fn func(audiocore.DeviceID)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removalFns = append(h.removalFns, fn)
}

// Close implements audiocore.Host.
func (h *Host) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	return nil
}

// AddDevice makes d visible to enumeration.
func (h *Host) AddDevice(d audiocore.DeviceDescriptor) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.devices[d.ID] = d
}

// RemoveDevice unplugs id and notifies removal subscribers.
func (h *Host) RemoveDevice(id audiocore.DeviceID) {
	h.mu.Lock()
	delete(h.devices, id)
	fns := slices.Clone(h.removalFns)
	h.mu.Unlock()

	for _, fn := range fns {
		fn(id)
	}
}

// FailEnumeration makes EnumerateDevices return err; nil clears it.
func (h *Host) FailEnumeration(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.enumerateErr = err
}

// FailCapture makes AttachCapture(id) return err; nil clears it.
func (h *Host) FailCapture(id audiocore.DeviceID, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.captureErr[id] = err
}

// FailPlayback makes AttachPlayback(id) return err; nil clears it.
func (h *Host) FailPlayback(id audiocore.DeviceID, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.playbackErr[id] = err
}

// FailConnect makes Connect return err; nil clears it.
func (h *Host) FailConnect(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.connectErr = err
}

// FailStart makes StartEngine return err; nil clears it.
func (h *Host) FailStart(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.startErr = err
}

// FailEnable makes Link.Enable return err; nil clears it.
func (h *Host) FailEnable(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.enableErr = err
}

// FailSetDefault makes SetDefaultDevice return err; nil clears it.
func (h *Host) FailSetDefault(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.setDefaultErr = err
}

// EngineRunning reports whether the shared engine is started.
func (h *Host) EngineRunning() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.running
}

// EngineStarts returns how many times the engine was started.
func (h *Host) EngineStarts() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.engineStarts
}

// EngineStops returns how many times the engine was stopped.
func (h *Host) EngineStops() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.engineStops
}

// OpenEndpoints returns the number of attached, unclosed endpoints.
func (h *Host) OpenEndpoints() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.endpoints)
}

// LinkInfo describes an open link.
type LinkInfo struct {
	Source  audiocore.DeviceID
	Sink    audiocore.DeviceID
	Enabled bool
	// Toggles counts Enable and Disable calls; an untouched link stays at 1.
	Toggles int
}

// Links returns the open links ordered by source then sink.
func (h *Host) Links() []LinkInfo {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make([]LinkInfo, 0, len(h.links))
	for l := range h.links {
		out = append(out, LinkInfo{Source: l.source, Sink: l.sink, Enabled: l.enabled, Toggles: l.toggles})
	}
	slices.SortFunc(out, func(a, b LinkInfo) int {
		if a.Source != b.Source {
			return int(a.Source) - int(b.Source)
		}
		return int(a.Sink) - int(b.Sink)
	})
	return out
}

// DefaultDevice returns the id last set with SetDefaultDevice.
func (h *Host) DefaultDevice(dir audiocore.Direction) audiocore.DeviceID {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.defaults[dir]
}

type endpoint struct {
	host   *Host
	id     audiocore.DeviceID
	dir    audiocore.Direction
	closed bool
}

func (e *endpoint) DeviceID() audiocore.DeviceID   { return e.id }
func (e *endpoint) Direction() audiocore.Direction { return e.dir }

func (e *endpoint) Close() error {
	e.host.mu.Lock()
	defer e.host.mu.Unlock()
	if e.closed {
		return fmt.Errorf("endpoint already closed")
	}
	e.closed = true
	delete(e.host.endpoints, e)
	return nil
}

type link struct {
	host    *Host
	source  audiocore.DeviceID
	sink    audiocore.DeviceID
	enabled bool
	toggles int
	closed  bool
}

func (l *link) Enable() error {
	l.host.mu.Lock()
	defer l.host.mu.Unlock()
	if l.host.enableErr != nil {
		return l.host.enableErr
	}
	l.enabled = true
	l.toggles++
	return nil
}

func (l *link) Disable() {
	l.host.mu.Lock()
	defer l.host.mu.Unlock()
	l.enabled = false
	l.toggles++
}

func (l *link) Close() error {
	l.host.mu.Lock()
	defer l.host.mu.Unlock()
	if l.closed {
		return fmt.Errorf("link already closed")
	}
	l.closed = true
	delete(l.host.links, l)
	return nil
}
