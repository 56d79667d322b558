package audiocore

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/kappaborg/HIJACK-Audio/internal/errors"
	"github.com/kappaborg/HIJACK-Audio/internal/events"
	"github.com/kappaborg/HIJACK-Audio/internal/logging"
)

// routeEntry is the engine-owned state of one route.
type routeEntry struct {
	Route
	sourceName string
	sinkName   string

	capture  Endpoint
	playback Endpoint
	link     Link

	// seq orders routes created at the same instant.
	seq uint64
}

// RoutingEngine owns the virtual cables and the shared processing engine.
type RoutingEngine struct {
	host     Host
	registry *DeviceRegistry
	catalog  *ConnectionCatalog
	bus      events.Publisher
	logger   *slog.Logger
	metrics  MetricsRecorder
	now      func() time.Time
	history  int

	// mu serializes every route transition, the engine refcount and catalog
	// mutations.
	mu        sync.Mutex
	routes    map[RouteHandle]*routeEntry
	live      map[RouteKey]*routeEntry
	terminal  []RouteHandle
	engine    sharedEngine
	endpoints [2]DeviceID
	nextSeq   uint64
	closed    bool

	removalMu sync.Mutex
	removals  []DeviceID
	wake      chan struct{}
	quit      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

// Option configures a RoutingEngine.
type Option func(*RoutingEngine)

// WithLogger sets the engine logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *RoutingEngine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m MetricsRecorder) Option {
	return func(e *RoutingEngine) {
		if m != nil {
			e.metrics = m
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *RoutingEngine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithPublisher sets where route events are published.
func WithPublisher(p events.Publisher) Option {
	return func(e *RoutingEngine) {
		if p != nil {
			e.bus = p
		}
	}
}

// WithHistoryLimit sets how many terminal routes are retained.
func WithHistoryLimit(n int) Option {
	return func(e *RoutingEngine) {
		if n >= 0 {
			e.history = n
		}
	}
}

type nopPublisher struct{}

func (nopPublisher) TryPublish(events.RouteEvent) bool { return false }

// NewRoutingEngine creates an engine over host and subscribes to its device
// removal notifications. A nil registry or catalog is created on demand.
func NewRoutingEngine(host Host, registry *DeviceRegistry, catalog *ConnectionCatalog, opts ...Option) *RoutingEngine {
	if registry == nil {
		registry = NewDeviceRegistry(host)
	}
	if catalog == nil {
		catalog = NewConnectionCatalog()
	}

	e := &RoutingEngine{
		host:     host,
		registry: registry,
		catalog:  catalog,
		bus:      nopPublisher{},
		logger:   logging.ForService("audiocore").With("component", "routing"),
		metrics:  noopMetrics{},
		now:      time.Now,
		history:  DefaultHistoryLimit,
		routes:   make(map[RouteHandle]*routeEntry),
		live:     make(map[RouteKey]*routeEntry),
		engine:   sharedEngine{host: host},
		wake:     make(chan struct{}, 1),
		quit:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}

	host.OnDeviceRemoved(e.enqueueRemoval)
	go e.removalLoop()

	return e
}

// Catalog returns the connection catalog kept in sync with this engine.
func (e *RoutingEngine) Catalog() *ConnectionCatalog { return e.catalog }

// Registry returns the device registry used for validation.
func (e *RoutingEngine) Registry() *DeviceRegistry { return e.registry }

// CreateRoute builds the audio graph for source→sink and returns the route
// handle in the Constructed state. DefaultDevice selects the active endpoint
// of the respective direction. On failure nothing stays attached.
func (e *RoutingEngine) CreateRoute(ctx context.Context, source, sink DeviceID) (RouteHandle, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return RouteHandle{}, ErrEngineClosed
	}

	devices, err := e.registry.enumerate(ctx)
	if err != nil {
		e.metrics.RecordError(ErrorKind(err))
		return RouteHandle{}, constructionError(RouteKey{Source: source, Sink: sink}, "enumerate devices", err)
	}
	snap := NewSnapshot(devices)

	src, err := e.resolveLocked(snap, DirectionInput, source)
	if err != nil {
		e.metrics.RecordError(ErrorKind(err))
		return RouteHandle{}, constructionError(RouteKey{Source: source, Sink: sink}, "resolve source", err)
	}
	dst, err := e.resolveLocked(snap, DirectionOutput, sink)
	if err != nil {
		e.metrics.RecordError(ErrorKind(err))
		return RouteHandle{}, constructionError(RouteKey{Source: src.ID, Sink: sink}, "resolve sink", err)
	}

	key := RouteKey{Source: src.ID, Sink: dst.ID}
	if existing, ok := e.live[key]; ok {
		err := errors.New(fmt.Errorf("route %s already %s: %w", key, existing.State, ErrDuplicateRoute)).
			Component(ComponentAudioCore).
			Category(errors.CategoryDuplicateRoute).
			Context("source_id", key.Source).
			Context("sink_id", key.Sink).
			Context("route_id", existing.Handle.String()).
			Build()
		e.metrics.RecordError(ErrorKind(err))
		return RouteHandle{}, err
	}

	entry := &routeEntry{
		Route: Route{
			Handle:    NewRouteHandle(),
			Key:       key,
			State:     RouteRequested,
			CreatedAt: e.now(),
		},
		sourceName: displayName(src),
		sinkName:   displayName(dst),
		seq:        e.nextSeq,
	}
	e.nextSeq++
	e.routes[entry.Handle] = entry
	e.live[key] = entry
	e.transitionLocked(entry, RouteRequested)

	capture, err := e.host.AttachCapture(key.Source)
	if err != nil {
		return RouteHandle{}, e.failLocked(entry, constructionError(key, "attach capture", err))
	}
	entry.capture = capture

	playback, err := e.host.AttachPlayback(key.Sink)
	if err != nil {
		return RouteHandle{}, e.failLocked(entry, constructionError(key, "attach playback", err))
	}
	entry.playback = playback

	link, err := e.host.Connect(capture, playback)
	if err != nil {
		return RouteHandle{}, e.failLocked(entry, constructionError(key, "connect", err))
	}
	entry.link = link

	e.transitionLocked(entry, RouteConstructed)

	e.logger.Debug("route constructed",
		"route_id", entry.Handle.String(),
		"source_id", key.Source,
		"sink_id", key.Sink)

	return entry.Handle, nil
}

// Start begins audio flow on a Constructed route. The shared engine is
// started only if no other route is active; active routes are untouched.
func (e *RoutingEngine) Start(h RouteHandle) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return ErrEngineClosed
	}

	entry, ok := e.routes[h]
	if !ok {
		return e.notFound(h)
	}
	if entry.State != RouteConstructed {
		err := errors.New(fmt.Errorf("route %s is %s: %w", entry.Key, entry.State, ErrNotConstructed)).
			Component(ComponentAudioCore).
			Category(errors.CategoryNotConstructed).
			Context("route_id", h.String()).
			Context("state", entry.State.String()).
			Build()
		e.metrics.RecordError(ErrorKind(err))
		return err
	}

	if err := e.engine.acquire(); err != nil {
		return e.failLocked(entry, constructionError(entry.Key, "start engine", err))
	}

	if err := entry.link.Enable(); err != nil {
		if rerr := e.engine.release(); rerr != nil {
			e.logger.Warn("failed to stop shared engine", "error", rerr)
		}
		return e.failLocked(entry, constructionError(entry.Key, "enable link", err))
	}
	entry.StartedAt = e.now()
	e.transitionLocked(entry, RouteActive)
	e.catalog.OnRouteActivated(entry.Route, entry.sourceName, entry.sinkName)
	e.updateGaugesLocked()

	e.logger.Info("route active",
		"route_id", h.String(),
		"source_id", entry.Key.Source,
		"source", entry.sourceName,
		"sink_id", entry.Key.Sink,
		"sink", entry.sinkName,
		"engine_users", e.engine.users)

	return nil
}

// Stop tears down one route. Other routes keep running on the shared engine.
func (e *RoutingEngine) Stop(h RouteHandle) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	entry, ok := e.routes[h]
	if !ok || entry.State.IsTerminal() {
		return e.notFound(h)
	}
	e.stopLocked(entry)
	return nil
}

// StopPair stops the live route for source→sink.
func (e *RoutingEngine) StopPair(source, sink DeviceID) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	key := RouteKey{Source: source, Sink: sink}
	entry, ok := e.live[key]
	if !ok {
		err := errors.New(fmt.Errorf("no live route %s: %w", key, ErrRouteNotFound)).
			Component(ComponentAudioCore).
			Category(errors.CategoryRouteNotFound).
			Context("source_id", source).
			Context("sink_id", sink).
			Build()
		e.metrics.RecordError(ErrorKind(err))
		return err
	}
	e.stopLocked(entry)
	return nil
}

// SetActiveEndpoint selects the device used when a route names
// DefaultDevice for dir. Active routes are not affected. DefaultDevice
// reverts to the host default.
func (e *RoutingEngine) SetActiveEndpoint(ctx context.Context, dir Direction, id DeviceID) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return ErrEngineClosed
	}

	if id == DefaultDevice {
		e.endpoints[dir] = DefaultDevice
		e.publishEndpointLocked(dir, id)
		return nil
	}

	devices, err := e.registry.enumerate(ctx)
	if err != nil {
		return e.unavailable(dir, id, err)
	}
	d, ok := NewSnapshot(devices).Lookup(id)
	if !ok || !d.Supports(dir) {
		return e.unavailable(dir, id, fmt.Errorf("no %s device with id %d: %w", dir, id, ErrUnknownDevice))
	}

	if err := e.host.SetDefaultDevice(dir, id); err != nil {
		return e.unavailable(dir, id, err)
	}

	e.endpoints[dir] = id
	e.publishEndpointLocked(dir, id)

	e.logger.Info("active endpoint changed", "direction", dir.String(), "device_id", id, "device", displayName(d))
	return nil
}

// ActiveEndpoint returns the device selected for dir, or DefaultDevice when
// the host default is used.
func (e *RoutingEngine) ActiveEndpoint(dir Direction) DeviceID {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.endpoints[dir]
}

// Route returns a copy of the route state for h.
func (e *RoutingEngine) Route(h RouteHandle) (Route, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	entry, ok := e.routes[h]
	if !ok {
		return Route{}, false
	}
	return entry.Route, true
}

// Routes returns live routes and recently terminated ones, oldest first.
func (e *RoutingEngine) Routes() []Route {
	e.mu.Lock()
	entries := make([]*routeEntry, 0, len(e.routes))
	for _, entry := range e.routes {
		entries = append(entries, entry)
	}
	slices.SortFunc(entries, compareEntries)
	out := make([]Route, len(entries))
	for i, entry := range entries {
		out[i] = entry.Route
	}
	e.mu.Unlock()
	return out
}

// compareEntries orders by creation time, then by creation order.
func compareEntries(a, b *routeEntry) int {
	if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
		return c
	}
	return cmp.Compare(a.seq, b.seq)
}

// EngineUsers returns the shared engine reference count.
func (e *RoutingEngine) EngineUsers() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.engine.users
}

// Close stops every live route and the removal worker. The host itself is
// left open for its owner to close.
func (e *RoutingEngine) Close() error {
	e.mu.Lock()
	if !e.closed {
		e.closed = true
		live := make([]*routeEntry, 0, len(e.live))
		for _, entry := range e.live {
			live = append(live, entry)
		}
		slices.SortFunc(live, compareEntries)
		for _, entry := range live {
			e.stopLocked(entry)
		}
	}
	e.mu.Unlock()

	e.closeOnce.Do(func() { close(e.quit) })
	<-e.done
	return nil
}

// resolveLocked maps ref to a device supporting dir.
func (e *RoutingEngine) resolveLocked(snap *Snapshot, dir Direction, ref DeviceID) (Device, error) {
	if ref == DefaultDevice {
		ref = e.endpoints[dir]
	}
	if ref == DefaultDevice {
		return snap.Default(dir)
	}
	d, ok := snap.Lookup(ref)
	if !ok || !d.Supports(dir) {
		return Device{}, unknownDevice(fmt.Sprint(ref), fmt.Sprintf("no %s device with id %d", dir, ref))
	}
	return d, nil
}

// stopLocked moves a live route to Stopped and releases its resources.
func (e *RoutingEngine) stopLocked(entry *routeEntry) {
	wasActive := entry.State == RouteActive
	e.releaseLocked(entry, wasActive)

	entry.EndedAt = e.now()
	e.transitionLocked(entry, RouteStopped)
	e.retireLocked(entry)
	if wasActive {
		e.catalog.OnRouteStopped(entry.Key.Source, entry.Key.Sink)
	}
	e.updateGaugesLocked()

	e.logger.Info("route stopped",
		"route_id", entry.Handle.String(),
		"source_id", entry.Key.Source,
		"sink_id", entry.Key.Sink)
}

// failLocked moves a non-terminal route to Failed, releasing whatever part
// of its graph exists, and returns err.
func (e *RoutingEngine) failLocked(entry *routeEntry, err error) error {
	wasActive := entry.State == RouteActive
	e.releaseLocked(entry, wasActive)

	entry.Err = err
	entry.EndedAt = e.now()
	e.transitionLocked(entry, RouteFailed)
	e.retireLocked(entry)
	if wasActive {
		e.catalog.OnRouteFailed(entry.Key, err)
	}
	e.metrics.RecordError(ErrorKind(err))
	e.updateGaugesLocked()

	e.logger.Warn("route failed",
		"route_id", entry.Handle.String(),
		"source_id", entry.Key.Source,
		"sink_id", entry.Key.Sink,
		"error", err)

	return err
}

// releaseLocked detaches the route's graph segment. The shared engine is
// released only for routes that had acquired it.
func (e *RoutingEngine) releaseLocked(entry *routeEntry, wasActive bool) {
	if entry.link != nil {
		if wasActive {
			entry.link.Disable()
		}
		if err := entry.link.Close(); err != nil {
			e.logger.Warn("failed to close route link", "route_id", entry.Handle.String(), "error", err)
		}
		entry.link = nil
	}
	for _, ep := range []Endpoint{entry.capture, entry.playback} {
		if ep == nil {
			continue
		}
		if err := ep.Close(); err != nil {
			e.logger.Warn("failed to close endpoint",
				"route_id", entry.Handle.String(),
				"device_id", ep.DeviceID(),
				"direction", ep.Direction().String(),
				"error", err)
		}
	}
	entry.capture, entry.playback = nil, nil

	if wasActive {
		if err := e.engine.release(); err != nil {
			e.logger.Warn("failed to stop shared engine", "error", err)
		}
	}
}

// retireLocked removes the pair reservation and trims terminal history.
func (e *RoutingEngine) retireLocked(entry *routeEntry) {
	if cur, ok := e.live[entry.Key]; ok && cur == entry {
		delete(e.live, entry.Key)
	}
	e.terminal = append(e.terminal, entry.Handle)
	for len(e.terminal) > e.history {
		delete(e.routes, e.terminal[0])
		e.terminal = e.terminal[1:]
	}
}

func (e *RoutingEngine) transitionLocked(entry *routeEntry, state RouteState) {
	entry.State = state
	e.metrics.RecordTransition(state.String())

	ev := events.RouteEvent{
		Kind:       events.KindRouteState,
		Handle:     entry.Handle.String(),
		Source:     uint32(entry.Key.Source),
		Sink:       uint32(entry.Key.Sink),
		SourceName: entry.sourceName,
		SinkName:   entry.sinkName,
		State:      state.String(),
		Timestamp:  e.now(),
	}
	if entry.Err != nil {
		ev.Error = entry.Err.Error()
	}
	e.bus.TryPublish(ev)
}

func (e *RoutingEngine) publishEndpointLocked(dir Direction, id DeviceID) {
	ev := events.RouteEvent{
		Kind:      events.KindEndpointChanged,
		Device:    uint32(id),
		State:     dir.String(),
		Timestamp: e.now(),
	}
	e.bus.TryPublish(ev)
}

func (e *RoutingEngine) updateGaugesLocked() {
	e.metrics.SetActiveRoutes(e.catalog.Len())
	e.metrics.SetEngineUsers(e.engine.users)
}

func (e *RoutingEngine) notFound(h RouteHandle) error {
	err := errors.New(fmt.Errorf("route %s: %w", h, ErrRouteNotFound)).
		Component(ComponentAudioCore).
		Category(errors.CategoryRouteNotFound).
		Context("route_id", h.String()).
		Build()
	e.metrics.RecordError(ErrorKind(err))
	return err
}

func (e *RoutingEngine) unavailable(dir Direction, id DeviceID, cause error) error {
	err := errors.New(fmt.Errorf("%s device %d: %w: %w", dir, id, ErrDeviceUnavailable, cause)).
		Component(ComponentAudioCore).
		Category(errors.CategoryDeviceUnavailable).
		Context("direction", dir.String()).
		Context("device_id", id).
		Build()
	e.metrics.RecordError(ErrorKind(err))
	return err
}

func constructionError(key RouteKey, op string, cause error) error {
	return errors.New(fmt.Errorf("%s: %w", op, cause)).
		Component(ComponentAudioCore).
		Category(errors.CategoryConstruction).
		Context("source_id", key.Source).
		Context("sink_id", key.Sink).
		Context("operation", op).
		Build()
}
