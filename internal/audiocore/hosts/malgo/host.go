// Package malgo implements the audio host on miniaudio through malgo. Each
// hardware device is opened at most once per direction: capture streams
// fan out into per-link ring buffers and every playback device owns a bus
// that sums the rings feeding it.
package malgo

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sync"

	"github.com/gen2brain/malgo"
	"github.com/smallnest/ringbuffer"

	"github.com/kappaborg/HIJACK-Audio/internal/audiocore"
	"github.com/kappaborg/HIJACK-Audio/internal/conf"
	"github.com/kappaborg/HIJACK-Audio/internal/errors"
	"github.com/kappaborg/HIJACK-Audio/internal/logging"
)

var (
	errHostClosed   = errors.NewStd("malgo host closed")
	errLinkClosed   = errors.NewStd("link already closed")
	errEndpointGone = errors.NewStd("endpoint already closed")
)

// Config controls the streams the host opens.
type Config struct {
	SampleRate   uint32
	Channels     uint32
	BufferFrames uint32
	// RingBuffer is the per-link buffer size in bytes.
	RingBuffer int
	// Backends overrides the platform backend choice.
	Backends []malgo.Backend
}

// ConfigFromSettings maps the audio settings onto a host config.
func ConfigFromSettings(s *conf.AudioSettings) Config {
	return Config{
		SampleRate:   uint32(s.SampleRate),
		Channels:     uint32(s.Channels),
		BufferFrames: uint32(s.BufferFrames),
		RingBuffer:   s.RingBuffer,
	}
}

// platformBackends picks the native backend, leaving the rest to miniaudio.
func platformBackends() []malgo.Backend {
	switch runtime.GOOS {
	case "linux":
		return []malgo.Backend{malgo.BackendAlsa}
	case "windows":
		return []malgo.Backend{malgo.BackendWasapi}
	case "darwin":
		return []malgo.Backend{malgo.BackendCoreaudio}
	default:
		return nil
	}
}

type lister func(kind malgo.DeviceType) ([]probe, error)

type opener func(cfg malgo.DeviceConfig, cb malgo.DeviceCallbacks) (stream, streamInfo, error)

// Host is an audiocore.Host backed by miniaudio.
type Host struct {
	cfg    Config
	logger *slog.Logger
	ids    *idTable
	list   lister
	open   opener
	free   func()

	mu       sync.Mutex
	devices  map[audiocore.DeviceID]*hwDevice
	taps     map[audiocore.DeviceID]*tap
	buses    map[audiocore.DeviceID]*bus
	links    map[*link]struct{}
	running  bool
	defaults [2]audiocore.DeviceID
	closed   bool

	fnMu       sync.Mutex
	removalFns []func(audiocore.DeviceID)
	stallFns   []func()
}

var _ audiocore.Host = (*Host)(nil)

// New opens a miniaudio context.
func New(cfg Config) (*Host, error) {
	backends := cfg.Backends
	if backends == nil {
		backends = platformBackends()
	}
	logger := logging.ForService("malgo")

	mctx, err := malgo.InitContext(backends, malgo.ContextConfig{}, func(msg string) {
		logger.Debug("miniaudio", "message", msg)
	})
	if err != nil {
		return nil, errors.New(fmt.Errorf("init audio context: %w", err)).
			Component("malgo").
			Category(errors.CategoryAudioSource).
			Build()
	}

	list := func(kind malgo.DeviceType) ([]probe, error) {
		infos, err := mctx.Devices(kind)
		if err != nil {
			return nil, err
		}
		return probesFrom(infos), nil
	}
	open := func(dc malgo.DeviceConfig, cb malgo.DeviceCallbacks) (stream, streamInfo, error) {
		dev, err := malgo.InitDevice(mctx.Context, dc, cb)
		if err != nil {
			return nil, streamInfo{}, err
		}
		info := streamInfo{rate: dev.SampleRate(), format: dev.PlaybackFormat()}
		if dc.DeviceType == malgo.Capture {
			info.format = dev.CaptureFormat()
		}
		return dev, info, nil
	}
	free := func() {
		_ = mctx.Uninit()
		mctx.Free()
	}

	return newHost(cfg, logger, list, open, free), nil
}

func newHost(cfg Config, logger *slog.Logger, list lister, open opener, free func()) *Host {
	if logger == nil {
		logger = logging.ForService("malgo")
	}
	if cfg.RingBuffer <= 0 {
		cfg.RingBuffer = int(conf.DefaultBufferFrames * conf.DefaultChannels * 2 * 8)
	}
	return &Host{
		cfg:     cfg,
		logger:  logger,
		ids:     newIDTable(),
		list:    list,
		open:    open,
		free:    free,
		devices: make(map[audiocore.DeviceID]*hwDevice),
		taps:    make(map[audiocore.DeviceID]*tap),
		buses:   make(map[audiocore.DeviceID]*bus),
		links:   make(map[*link]struct{}),
	}
}

// EnumerateDevices implements audiocore.Host.
func (h *Host) EnumerateDevices(ctx context.Context) ([]audiocore.DeviceDescriptor, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	capture, err := h.list(malgo.Capture)
	if err != nil {
		return nil, fmt.Errorf("list capture devices: %w", err)
	}
	playback, err := h.list(malgo.Playback)
	if err != nil {
		return nil, fmt.Errorf("list playback devices: %w", err)
	}
	devices := merge(h.ids, capture, playback)

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, errHostClosed
	}
	h.devices = devices
	h.applyDefaultsLocked()

	out := make([]audiocore.DeviceDescriptor, 0, len(devices))
	for _, d := range devices {
		out = append(out, d.desc)
	}
	return out, nil
}

// applyDefaultsLocked lets a preferred device override the backend's
// default flags.
func (h *Host) applyDefaultsLocked() {
	if pref := h.defaults[audiocore.DirectionInput]; pref != audiocore.DefaultDevice {
		if d, ok := h.devices[pref]; ok && d.capture != nil {
			for _, o := range h.devices {
				o.desc.DefaultInput = o == d
			}
		}
	}
	if pref := h.defaults[audiocore.DirectionOutput]; pref != audiocore.DefaultDevice {
		if d, ok := h.devices[pref]; ok && d.playback != nil {
			for _, o := range h.devices {
				o.desc.DefaultOutput = o == d
			}
		}
	}
}

// AttachCapture implements audiocore.Host.
func (h *Host) AttachCapture(id audiocore.DeviceID) (audiocore.Endpoint, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil, errHostClosed
	}
	if t, ok := h.taps[id]; ok {
		t.refs++
		return &endpoint{host: h, tap: t}, nil
	}
	d, ok := h.devices[id]
	if !ok || d.capture == nil {
		return nil, fmt.Errorf("device %d has no capture stream", id)
	}

	t := &tap{node: node{id: id, dir: audiocore.DirectionInput, hw: *d.capture}}
	dc := malgo.DefaultDeviceConfig(malgo.Capture)
	dc.Capture.Format = malgo.FormatS16
	dc.Capture.Channels = h.cfg.Channels
	dc.Capture.DeviceID = t.hw.Pointer()
	h.applyStreamConfig(&dc)

	dev, info, err := h.open(dc, malgo.DeviceCallbacks{
		Data: t.onData,
		Stop: func() { h.onStreamStopped(&t.node) },
	})
	if err != nil {
		return nil, fmt.Errorf("open capture device %d: %w", id, err)
	}
	if bytesPerSample(info.format) == 0 {
		dev.Uninit()
		return nil, fmt.Errorf("capture device %d opened with unsupported format %s", id, formatName(info.format))
	}
	t.dev, t.info, t.refs = dev, info, 1
	h.taps[id] = t

	h.logger.Debug("capture stream opened",
		"device_id", id,
		"device", d.desc.Name,
		"hw_id", decodeID(t.hw.String()),
		"format", formatName(info.format),
		"sample_rate", info.rate)
	return &endpoint{host: h, tap: t}, nil
}

// AttachPlayback implements audiocore.Host.
func (h *Host) AttachPlayback(id audiocore.DeviceID) (audiocore.Endpoint, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil, errHostClosed
	}
	if b, ok := h.buses[id]; ok {
		b.refs++
		return &endpoint{host: h, bus: b}, nil
	}
	d, ok := h.devices[id]
	if !ok || d.playback == nil {
		return nil, fmt.Errorf("device %d has no playback stream", id)
	}

	b := &bus{node: node{id: id, dir: audiocore.DirectionOutput, hw: *d.playback}}
	dc := malgo.DefaultDeviceConfig(malgo.Playback)
	dc.Playback.Format = malgo.FormatS16
	dc.Playback.Channels = h.cfg.Channels
	dc.Playback.DeviceID = b.hw.Pointer()
	h.applyStreamConfig(&dc)

	dev, info, err := h.open(dc, malgo.DeviceCallbacks{
		Data: b.onData,
		Stop: func() { h.onStreamStopped(&b.node) },
	})
	if err != nil {
		return nil, fmt.Errorf("open playback device %d: %w", id, err)
	}
	if info.format != malgo.FormatS16 {
		dev.Uninit()
		return nil, fmt.Errorf("playback device %d opened with format %s, want S16", id, formatName(info.format))
	}
	b.dev, b.info, b.refs = dev, info, 1
	h.buses[id] = b

	h.logger.Debug("playback stream opened",
		"device_id", id,
		"device", d.desc.Name,
		"hw_id", decodeID(b.hw.String()),
		"sample_rate", info.rate)
	return &endpoint{host: h, bus: b}, nil
}

func (h *Host) applyStreamConfig(dc *malgo.DeviceConfig) {
	dc.SampleRate = h.cfg.SampleRate
	dc.PeriodSizeInFrames = h.cfg.BufferFrames
	dc.Alsa.NoMMap = 1
}

// Connect implements audiocore.Host. The capture and playback streams must
// run at the same rate; sample format differences are converted.
func (h *Host) Connect(capture, playback audiocore.Endpoint) (audiocore.Link, error) {
	src, ok := capture.(*endpoint)
	if !ok || src.tap == nil || src.host != h {
		return nil, fmt.Errorf("capture endpoint does not belong to this host")
	}
	dst, ok := playback.(*endpoint)
	if !ok || dst.bus == nil || dst.host != h {
		return nil, fmt.Errorf("playback endpoint does not belong to this host")
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil, errHostClosed
	}
	if src.closed || dst.closed {
		return nil, errEndpointGone
	}
	if src.tap.info.rate != dst.bus.info.rate {
		return nil, fmt.Errorf("sample rate mismatch: capture %d Hz, playback %d Hz",
			src.tap.info.rate, dst.bus.info.rate)
	}

	l := &link{
		host: h,
		tap:  src.tap,
		bus:  dst.bus,
		ring: ringbuffer.New(h.cfg.RingBuffer),
	}
	h.links[l] = struct{}{}
	return l, nil
}

// StartEngine implements audiocore.Host.
func (h *Host) StartEngine() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return errHostClosed
	}
	h.running = true
	if err := h.syncAllLocked(); err != nil {
		h.running = false
		_ = h.syncAllLocked()
		return err
	}
	h.logger.Debug("engine started", "streams", len(h.taps)+len(h.buses))
	return nil
}

// StopEngine implements audiocore.Host.
func (h *Host) StopEngine() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.running = false
	err := h.syncAllLocked()
	h.logger.Debug("engine stopped")
	return err
}

func (h *Host) syncAllLocked() error {
	var errs []error
	for _, t := range h.taps {
		if err := t.sync(h.running); err != nil {
			errs = append(errs, fmt.Errorf("capture device %d: %w", t.id, err))
		}
	}
	for _, b := range h.buses {
		if err := b.sync(h.running); err != nil {
			errs = append(errs, fmt.Errorf("playback device %d: %w", b.id, err))
		}
	}
	return errors.Join(errs...)
}

// syncLocked stops a stream whose last link went away. Disable has no
// error result, so a failed stop is only logged.
func (h *Host) syncLocked(n *node) {
	if err := n.sync(h.running); err != nil {
		h.logger.Warn("failed to stop stream",
			"device_id", n.id,
			"direction", n.dir.String(),
			"error", err)
	}
}

// SetDefaultDevice implements audiocore.Host. miniaudio cannot change the
// system default, so the preference is applied to the flags this host
// reports.
func (h *Host) SetDefaultDevice(dir audiocore.Direction, id audiocore.DeviceID) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return errHostClosed
	}
	if id != audiocore.DefaultDevice {
		d, ok := h.devices[id]
		if !ok {
			return fmt.Errorf("device %d not present", id)
		}
		if (dir == audiocore.DirectionInput && d.capture == nil) ||
			(dir == audiocore.DirectionOutput && d.playback == nil) {
			return fmt.Errorf("device %d has no %s stream", id, dir)
		}
	}
	h.defaults[dir] = id
	h.applyDefaultsLocked()
	return nil
}

// OnDeviceRemoved implements audiocore.Host. The host does not watch for
// hotplug itself; NotifyRemoved feeds it.
func (h *Host) OnDeviceRemoved(fn func(audiocore.DeviceID)) {
	h.fnMu.Lock()
	defer h.fnMu.Unlock()
	h.removalFns = append(h.removalFns, fn)
}

// NotifyRemoved reports a vanished device to the removal subscribers.
func (h *Host) NotifyRemoved(id audiocore.DeviceID) {
	h.fnMu.Lock()
	fns := append([]func(audiocore.DeviceID){}, h.removalFns...)
	h.fnMu.Unlock()
	for _, fn := range fns {
		fn(id)
	}
}

// OnStreamStalled registers fn to run when a stream stops without being
// asked to, which usually means the device is going away.
func (h *Host) OnStreamStalled(fn func()) {
	h.fnMu.Lock()
	defer h.fnMu.Unlock()
	h.stallFns = append(h.stallFns, fn)
}

func (h *Host) notifyStalled() {
	h.fnMu.Lock()
	fns := append([]func(){}, h.stallFns...)
	h.fnMu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

// onStreamStopped runs on a miniaudio thread and must not take h.mu. A
// stream that dies under enabled links is treated as a removed device: a
// replugged device keeps its id, so a later scan would not report it.
func (h *Host) onStreamStopped(n *node) {
	if n.stopping.Load() {
		return
	}
	linked := len(n.links.load()) > 0
	h.logger.Warn("stream stopped unexpectedly",
		"device_id", n.id,
		"direction", n.dir.String(),
		"linked", linked)
	go func() {
		if linked {
			h.NotifyRemoved(n.id)
		}
		h.notifyStalled()
	}()
}

// Close implements audiocore.Host.
func (h *Host) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil
	}
	h.closed = true
	h.running = false
	for l := range h.links {
		l.disableLocked()
		l.closed = true
	}
	clear(h.links)
	for id, t := range h.taps {
		t.uninit()
		delete(h.taps, id)
	}
	for id, b := range h.buses {
		b.uninit()
		delete(h.buses, id)
	}
	if h.free != nil {
		h.free()
	}
	return nil
}

// endpoint is a reference to a shared tap or bus.
type endpoint struct {
	host   *Host
	tap    *tap
	bus    *bus
	closed bool
}

func (e *endpoint) node() *node {
	if e.tap != nil {
		return &e.tap.node
	}
	return &e.bus.node
}

// DeviceID implements audiocore.Endpoint.
func (e *endpoint) DeviceID() audiocore.DeviceID { return e.node().id }

// Direction implements audiocore.Endpoint.
func (e *endpoint) Direction() audiocore.Direction { return e.node().dir }

// Close implements audiocore.Endpoint. The stream is released with its
// last endpoint.
func (e *endpoint) Close() error {
	h := e.host
	h.mu.Lock()
	defer h.mu.Unlock()

	if e.closed {
		return errEndpointGone
	}
	e.closed = true
	if h.closed {
		return nil
	}

	n := e.node()
	n.refs--
	if n.refs > 0 {
		return nil
	}
	n.uninit()
	if e.tap != nil {
		delete(h.taps, n.id)
	} else {
		delete(h.buses, n.id)
	}
	h.logger.Debug("stream closed", "device_id", n.id, "direction", n.dir.String())
	return nil
}
