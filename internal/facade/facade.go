// Package facade is the entry point for user-facing surfaces. It resolves
// device names against a cached snapshot, validates requests before they
// reach the routing engine and turns engine errors into messages a person
// can act on.
package facade

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/kappaborg/HIJACK-Audio/internal/audiocore"
	"github.com/kappaborg/HIJACK-Audio/internal/errors"
	"github.com/kappaborg/HIJACK-Audio/internal/logging"
)

// DefaultSnapshotTTL bounds how stale a cached device list may get.
const DefaultSnapshotTTL = 30 * time.Second

// DefaultRef names the active endpoint instead of a specific device.
const DefaultRef = "default"

const snapshotKey = "devices"

// Facade fronts the registry and the routing engine.
type Facade struct {
	registry *audiocore.DeviceRegistry
	engine   *audiocore.RoutingEngine
	ttl      time.Duration
	logger   *slog.Logger

	snapshots *cache.Cache
	refreshMu sync.Mutex
}

// Option configures a Facade.
type Option func(*Facade)

// WithSnapshotTTL sets how long a device snapshot is reused.
func WithSnapshotTTL(d time.Duration) Option {
	return func(f *Facade) {
		if d > 0 {
			f.ttl = d
		}
	}
}

// WithLogger sets the facade logger.
func WithLogger(l *slog.Logger) Option {
	return func(f *Facade) {
		if l != nil {
			f.logger = l
		}
	}
}

// New creates a facade over registry and engine.
func New(registry *audiocore.DeviceRegistry, engine *audiocore.RoutingEngine, opts ...Option) *Facade {
	f := &Facade{
		registry: registry,
		engine:   engine,
		ttl:      DefaultSnapshotTTL,
		logger:   logging.ForService("facade"),
	}
	for _, opt := range opts {
		opt(f)
	}
	// No janitor: the single entry is checked for expiry on every Get.
	f.snapshots = cache.New(f.ttl, cache.NoExpiration)
	return f
}

// Refresh enumerates devices now and replaces the cached snapshot.
func (f *Facade) Refresh(ctx context.Context) *audiocore.Snapshot {
	f.refreshMu.Lock()
	defer f.refreshMu.Unlock()

	snap := f.registry.Snapshot(ctx)
	f.snapshots.SetDefault(snapshotKey, snap)
	f.logger.Debug("device snapshot refreshed", "devices", snap.Len())
	return snap
}

// Invalidate drops the cached snapshot so the next read enumerates.
func (f *Facade) Invalidate() {
	f.snapshots.Delete(snapshotKey)
}

func (f *Facade) snapshot(ctx context.Context) *audiocore.Snapshot {
	if v, ok := f.snapshots.Get(snapshotKey); ok {
		return v.(*audiocore.Snapshot)
	}
	return f.Refresh(ctx)
}

// Devices lists every device, ascending by id.
func (f *Facade) Devices(ctx context.Context) []audiocore.Device {
	return f.snapshot(ctx).Devices()
}

// Inputs lists the input-capable devices.
func (f *Facade) Inputs(ctx context.Context) []audiocore.Device {
	return f.snapshot(ctx).Inputs()
}

// Outputs lists the output-capable devices.
func (f *Facade) Outputs(ctx context.Context) []audiocore.Device {
	return f.snapshot(ctx).Outputs()
}

// Connections lists the active cables.
func (f *Facade) Connections() []audiocore.ConnectionRecord {
	return f.engine.Catalog().List()
}

// Routes lists live and recently ended routes.
func (f *Facade) Routes() []audiocore.Route {
	return f.engine.Routes()
}

// resolve maps a user reference to a device id. A miss refreshes the
// snapshot once, since the device may have just been plugged in.
func (f *Facade) resolve(ctx context.Context, ref string, dir audiocore.Direction) (audiocore.DeviceID, error) {
	if strings.EqualFold(strings.TrimSpace(ref), DefaultRef) {
		return audiocore.DefaultDevice, nil
	}
	d, err := f.snapshot(ctx).Find(ref, dir)
	if err == nil {
		return d.ID, nil
	}
	if !errors.Is(err, audiocore.ErrUnknownDevice) {
		return 0, err
	}
	d, err = f.Refresh(ctx).Find(ref, dir)
	if err != nil {
		return 0, err
	}
	return d.ID, nil
}

// RequestRoute connects source to sink and starts the cable. Both are
// names or ids; "default" selects the active endpoint. Unknown devices are
// rejected before the engine is involved.
func (f *Facade) RequestRoute(ctx context.Context, source, sink string) (audiocore.Route, error) {
	src, err := f.resolve(ctx, source, audiocore.DirectionInput)
	if err != nil {
		return audiocore.Route{}, translate(err)
	}
	dst, err := f.resolve(ctx, sink, audiocore.DirectionOutput)
	if err != nil {
		return audiocore.Route{}, translate(err)
	}

	h, err := f.engine.CreateRoute(ctx, src, dst)
	if err != nil {
		f.logger.Warn("route request failed", "source", source, "sink", sink, "error", err)
		return audiocore.Route{}, translate(err)
	}
	if err := f.engine.Start(h); err != nil {
		f.logger.Warn("route start failed", "source", source, "sink", sink, "error", err)
		return audiocore.Route{}, translate(err)
	}

	r, _ := f.engine.Route(h)
	return r, nil
}

// StopRoute stops the cable between source and sink.
func (f *Facade) StopRoute(ctx context.Context, source, sink string) error {
	src, err := f.resolveLive(ctx, source, audiocore.DirectionInput)
	if err != nil {
		return translate(err)
	}
	dst, err := f.resolveLive(ctx, sink, audiocore.DirectionOutput)
	if err != nil {
		return translate(err)
	}
	return translate(f.engine.StopPair(src, dst))
}

// resolveLive is resolve with "default" pinned to the device currently
// serving dir, which is what a live route was built against.
func (f *Facade) resolveLive(ctx context.Context, ref string, dir audiocore.Direction) (audiocore.DeviceID, error) {
	id, err := f.resolve(ctx, ref, dir)
	if err != nil || id != audiocore.DefaultDevice {
		return id, err
	}
	if active := f.engine.ActiveEndpoint(dir); active != audiocore.DefaultDevice {
		return active, nil
	}
	d, err := f.snapshot(ctx).Default(dir)
	if err != nil {
		return 0, err
	}
	return d.ID, nil
}

// StopConnection stops the cable behind a catalog record.
func (f *Facade) StopConnection(rec audiocore.ConnectionRecord) error {
	if !rec.Handle.IsZero() {
		if err := f.engine.Stop(rec.Handle); err == nil || !errors.Is(err, audiocore.ErrRouteNotFound) {
			return translate(err)
		}
	}
	return translate(f.engine.StopPair(rec.Key.Source, rec.Key.Sink))
}

// SetDefault makes the referenced device the active endpoint for dir.
// "default" reverts to the system default.
func (f *Facade) SetDefault(ctx context.Context, dir audiocore.Direction, ref string) error {
	id, err := f.resolve(ctx, ref, dir)
	if err != nil {
		return translate(err)
	}
	if err := f.engine.SetActiveEndpoint(ctx, dir, id); err != nil {
		return translate(err)
	}
	f.Invalidate()
	return nil
}

// ActiveEndpoint returns the device currently used for dir, with
// ok false when no device can serve it.
func (f *Facade) ActiveEndpoint(ctx context.Context, dir audiocore.Direction) (audiocore.Device, bool) {
	snap := f.snapshot(ctx)
	if id := f.engine.ActiveEndpoint(dir); id != audiocore.DefaultDevice {
		return snap.Lookup(id)
	}
	d, err := snap.Default(dir)
	return d, err == nil
}
