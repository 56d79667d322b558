package audiocore_test

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/kappaborg/HIJACK-Audio/internal/audiocore"
	"github.com/kappaborg/HIJACK-Audio/internal/audiocore/hosts/null"
	"github.com/kappaborg/HIJACK-Audio/internal/events"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// recordingPublisher captures route events synchronously.
type recordingPublisher struct {
	mu     sync.Mutex
	events []events.RouteEvent
}

func (p *recordingPublisher) TryPublish(ev events.RouteEvent) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return true
}

func (p *recordingPublisher) states(handle audiocore.RouteHandle) []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []string
	for _, ev := range p.events {
		if ev.Kind == events.KindRouteState && ev.Handle == handle.String() {
			out = append(out, ev.State)
		}
	}
	return out
}

func (p *recordingPublisher) count(kind events.Kind) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, ev := range p.events {
		if ev.Kind == kind {
			n++
		}
	}
	return n
}

// countingMetrics records what the engine reports.
type countingMetrics struct {
	mu          sync.Mutex
	transitions map[string]int
	errs        map[string]int
	active      int
	users       int
	removals    int
}

func newCountingMetrics() *countingMetrics {
	return &countingMetrics{transitions: map[string]int{}, errs: map[string]int{}}
}

func (m *countingMetrics) SetActiveRoutes(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.active = n
}

func (m *countingMetrics) SetEngineUsers(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users = n
}

func (m *countingMetrics) RecordTransition(s string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transitions[s]++
}

func (m *countingMetrics) RecordError(k string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errs[k]++
}

func (m *countingMetrics) RecordEnumeration(bool) {}

func (m *countingMetrics) RecordDeviceRemoval() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.removals++
}

type fixture struct {
	host    *null.Host
	engine  *audiocore.RoutingEngine
	catalog *audiocore.ConnectionCatalog
	bus     *recordingPublisher
	metrics *countingMetrics
}

func newFixture(t *testing.T, opts ...audiocore.Option) *fixture {
	t.Helper()
	host := null.New(
		audiocore.DeviceDescriptor{ID: 1, Name: "Mic", InputStreams: 1, DefaultInput: true},
		audiocore.DeviceDescriptor{ID: 2, Name: "Speakers", OutputStreams: 1, DefaultOutput: true},
		audiocore.DeviceDescriptor{ID: 3, Name: "Interface", InputStreams: 2, OutputStreams: 2},
		audiocore.DeviceDescriptor{ID: 4, Name: "Headphones", OutputStreams: 1},
		audiocore.DeviceDescriptor{ID: 12, Name: "Line In", InputStreams: 1},
		audiocore.DeviceDescriptor{ID: 23, Name: "Monitor", OutputStreams: 1},
	)
	f := &fixture{
		host:    host,
		catalog: audiocore.NewConnectionCatalog(),
		bus:     &recordingPublisher{},
		metrics: newCountingMetrics(),
	}
	opts = append([]audiocore.Option{audiocore.WithPublisher(f.bus), audiocore.WithMetrics(f.metrics)}, opts...)
	f.engine = audiocore.NewRoutingEngine(host, nil, f.catalog, opts...)
	t.Cleanup(func() { _ = f.engine.Close() })
	return f
}

func (f *fixture) activate(t *testing.T, src, sink audiocore.DeviceID) audiocore.RouteHandle {
	t.Helper()
	h, err := f.engine.CreateRoute(t.Context(), src, sink)
	require.NoError(t, err)
	require.NoError(t, f.engine.Start(h))
	return h
}

func TestRoutingScenario_CreateDuplicateStop(t *testing.T) {
	f := newFixture(t)

	h, err := f.engine.CreateRoute(t.Context(), 1, 2)
	require.NoError(t, err)
	require.NoError(t, f.engine.Start(h))

	list := f.catalog.List()
	require.Len(t, list, 1)
	assert.Equal(t, audiocore.RouteKey{Source: 1, Sink: 2}, list[0].Key)
	assert.Equal(t, "Mic", list[0].SourceName)
	assert.Equal(t, "Speakers", list[0].SinkName)

	_, err = f.engine.CreateRoute(t.Context(), 1, 2)
	require.ErrorIs(t, err, audiocore.ErrDuplicateRoute)

	require.NoError(t, f.engine.StopPair(1, 2))
	assert.Empty(t, f.catalog.List())

	r, ok := f.engine.Route(h)
	require.True(t, ok)
	assert.Equal(t, audiocore.RouteStopped, r.State)
	assert.Equal(t, []string{"requested", "constructed", "active", "stopped"}, f.bus.states(h))
	assert.Zero(t, f.host.OpenEndpoints())
	assert.Empty(t, f.host.Links())
	assert.False(t, f.host.EngineRunning())
}

func TestCreateRoute_UnknownSourceLeavesCatalogUnchanged(t *testing.T) {
	f := newFixture(t)
	f.activate(t, 1, 2)
	before := f.catalog.List()

	_, err := f.engine.CreateRoute(t.Context(), 99, 2)
	require.Error(t, err)
	assert.ErrorIs(t, err, audiocore.ErrUnknownDevice)
	assert.ErrorIs(t, err, audiocore.ErrConstruction)
	assert.Equal(t, "unknown_device", audiocore.ErrorKind(err))

	assert.Equal(t, before, f.catalog.List())
	assert.Equal(t, 2, f.host.OpenEndpoints(), "only the first route's endpoints are attached")
}

func TestCreateRoute_WrongCapabilityIsUnknown(t *testing.T) {
	f := newFixture(t)

	_, err := f.engine.CreateRoute(t.Context(), 2, 1)
	require.ErrorIs(t, err, audiocore.ErrUnknownDevice, "speakers cannot capture")
}

func TestCreateRoute_ConcurrentDuplicates(t *testing.T) {
	f := newFixture(t)

	const callers = 16
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		dups      int
	)
	start := make(chan struct{})
	for range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := f.engine.CreateRoute(t.Context(), 3, 4)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case errors.Is(err, audiocore.ErrDuplicateRoute):
				dups++
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, 1, successes)
	assert.Equal(t, callers-1, dups)
	assert.Len(t, f.host.Links(), 1)
}

func TestStart_DoesNotDisturbActiveRoutes(t *testing.T) {
	f := newFixture(t)

	b := f.activate(t, 1, 2)
	require.Equal(t, 1, f.host.EngineStarts())
	bLink := f.host.Links()[0]

	a := f.activate(t, 3, 4)

	rb, ok := f.engine.Route(b)
	require.True(t, ok)
	assert.Equal(t, audiocore.RouteActive, rb.State)
	assert.Equal(t, 1, f.host.EngineStarts(), "engine is not restarted for the second route")
	assert.Zero(t, f.host.EngineStops())
	assert.Equal(t, 2, f.engine.EngineUsers())

	links := f.host.Links()
	require.Len(t, links, 2)
	assert.Equal(t, bLink, links[0], "route B's link was not toggled")

	require.NoError(t, f.engine.Stop(a))
	rb, _ = f.engine.Route(b)
	assert.Equal(t, audiocore.RouteActive, rb.State)
	assert.True(t, f.host.EngineRunning(), "stopping A keeps the engine running for B")
	assert.Equal(t, 1, f.engine.EngineUsers())

	require.NoError(t, f.engine.Stop(b))
	assert.False(t, f.host.EngineRunning())
	assert.Equal(t, 1, f.host.EngineStops())
}

func TestStop_RemovesExactlyOneEntry(t *testing.T) {
	f := newFixture(t)

	f.activate(t, 1, 2)
	mid := f.activate(t, 1, 4)
	f.activate(t, 3, 2)

	require.NoError(t, f.engine.Stop(mid))

	keys := make([]audiocore.RouteKey, 0)
	for _, r := range f.catalog.List() {
		keys = append(keys, r.Key)
	}
	assert.Equal(t, []audiocore.RouteKey{{Source: 1, Sink: 2}, {Source: 3, Sink: 2}}, keys)
}

func TestCompositeKeysDoNotCollide(t *testing.T) {
	f := newFixture(t)

	// 12→3 and 1→23 would both render as "123" with naive concatenation.
	f.activate(t, 12, 3)
	_, err := f.engine.CreateRoute(t.Context(), 1, 23)
	require.NoError(t, err)
}

func TestFanInAndFanOut(t *testing.T) {
	f := newFixture(t)

	f.activate(t, 1, 2)
	f.activate(t, 12, 2)
	f.activate(t, 1, 4)
	f.activate(t, 3, 3)

	assert.Equal(t, 4, f.catalog.Len())
	assert.Equal(t, 4, f.engine.EngineUsers())
}

func TestStart_StateChecks(t *testing.T) {
	f := newFixture(t)

	err := f.engine.Start(audiocore.NewRouteHandle())
	require.ErrorIs(t, err, audiocore.ErrRouteNotFound)

	h := f.activate(t, 1, 2)
	err = f.engine.Start(h)
	require.ErrorIs(t, err, audiocore.ErrNotConstructed, "already active")

	require.NoError(t, f.engine.Stop(h))
	err = f.engine.Start(h)
	require.ErrorIs(t, err, audiocore.ErrNotConstructed, "terminal")
}

func TestStop_UnknownOrTerminal(t *testing.T) {
	f := newFixture(t)

	require.ErrorIs(t, f.engine.Stop(audiocore.NewRouteHandle()), audiocore.ErrRouteNotFound)
	require.ErrorIs(t, f.engine.StopPair(1, 2), audiocore.ErrRouteNotFound)

	h := f.activate(t, 1, 2)
	require.NoError(t, f.engine.Stop(h))
	require.ErrorIs(t, f.engine.Stop(h), audiocore.ErrRouteNotFound)
}

func TestStop_ConstructedRouteLeavesEngineAlone(t *testing.T) {
	f := newFixture(t)
	f.activate(t, 1, 2)

	h, err := f.engine.CreateRoute(t.Context(), 3, 4)
	require.NoError(t, err)
	require.NoError(t, f.engine.Stop(h))

	assert.Equal(t, 1, f.engine.EngineUsers())
	assert.True(t, f.host.EngineRunning())
	assert.Equal(t, 2, f.host.OpenEndpoints())
	assert.Equal(t, 1, f.catalog.Len())
}

func TestCreateRoute_PartialGraphReleased(t *testing.T) {
	tests := []struct {
		name   string
		inject func(h *null.Host)
	}{
		{"capture fails", func(h *null.Host) { h.FailCapture(1, errors.New("busy")) }},
		{"playback fails", func(h *null.Host) { h.FailPlayback(2, errors.New("format mismatch")) }},
		{"connect fails", func(h *null.Host) { h.FailConnect(errors.New("no mixer slot")) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			tt.inject(f.host)

			_, err := f.engine.CreateRoute(t.Context(), 1, 2)
			require.ErrorIs(t, err, audiocore.ErrConstruction)
			assert.Zero(t, f.host.OpenEndpoints())
			assert.Empty(t, f.host.Links())
			assert.Zero(t, f.catalog.Len())

			routes := f.engine.Routes()
			require.Len(t, routes, 1)
			assert.Equal(t, audiocore.RouteFailed, routes[0].State)
			assert.ErrorIs(t, routes[0].Err, audiocore.ErrConstruction)

			// The pair is free again once the failed attempt is terminal.
			f.host.FailCapture(1, nil)
			f.host.FailPlayback(2, nil)
			f.host.FailConnect(nil)
			_, err = f.engine.CreateRoute(t.Context(), 1, 2)
			require.NoError(t, err)
		})
	}
}

func TestCreateRoute_EnumerationFailure(t *testing.T) {
	f := newFixture(t)
	f.host.FailEnumeration(errors.New("subsystem unavailable"))

	_, err := f.engine.CreateRoute(t.Context(), 1, 2)
	require.ErrorIs(t, err, audiocore.ErrConstruction)
	assert.ErrorIs(t, err, audiocore.ErrEnumerationFailure)
}

func TestStart_EngineFailureFailsRoute(t *testing.T) {
	f := newFixture(t)
	f.host.FailStart(errors.New("render thread refused"))

	h, err := f.engine.CreateRoute(t.Context(), 1, 2)
	require.NoError(t, err)

	err = f.engine.Start(h)
	require.ErrorIs(t, err, audiocore.ErrConstruction)

	r, _ := f.engine.Route(h)
	assert.Equal(t, audiocore.RouteFailed, r.State)
	assert.Zero(t, f.engine.EngineUsers())
	assert.Zero(t, f.host.OpenEndpoints())
	assert.Zero(t, f.catalog.Len())
}

func TestStart_LinkFailureFailsRoute(t *testing.T) {
	f := newFixture(t)
	other := f.activate(t, 3, 4)
	f.host.FailEnable(errors.New("device busy"))

	h, err := f.engine.CreateRoute(t.Context(), 1, 2)
	require.NoError(t, err)

	err = f.engine.Start(h)
	require.ErrorIs(t, err, audiocore.ErrConstruction)
	assert.ErrorContains(t, err, "device busy")

	r, _ := f.engine.Route(h)
	assert.Equal(t, audiocore.RouteFailed, r.State)
	assert.Equal(t, 1, f.engine.EngineUsers())
	assert.True(t, f.host.EngineRunning(), "other route keeps the engine")
	assert.Equal(t, 1, f.catalog.Len())
	_, listed := f.catalog.Get(audiocore.RouteKey{Source: 1, Sink: 2})
	assert.False(t, listed)

	require.NoError(t, f.engine.Stop(other))
	assert.False(t, f.host.EngineRunning())
	assert.Zero(t, f.host.OpenEndpoints())
}

func TestDeviceRemoval_FailsAffectedRoutes(t *testing.T) {
	f := newFixture(t)
	changes, cancel := f.catalog.Subscribe(8)
	defer cancel()

	viaMic := f.activate(t, 1, 2)
	constructed, err := f.engine.CreateRoute(t.Context(), 1, 4)
	require.NoError(t, err)
	other := f.activate(t, 3, 4)
	// drain the two activation notices
	<-changes
	<-changes

	f.host.RemoveDevice(1)

	require.Eventually(t, func() bool {
		r, _ := f.engine.Route(viaMic)
		return r.State == audiocore.RouteFailed
	}, time.Second, 5*time.Millisecond)

	r, _ := f.engine.Route(viaMic)
	assert.ErrorIs(t, r.Err, audiocore.ErrDeviceRemovedMidRoute)
	rc, _ := f.engine.Route(constructed)
	assert.Equal(t, audiocore.RouteFailed, rc.State)
	ro, _ := f.engine.Route(other)
	assert.Equal(t, audiocore.RouteActive, ro.State)

	_, listed := f.catalog.Get(audiocore.RouteKey{Source: 1, Sink: 2})
	assert.False(t, listed)
	assert.Equal(t, 1, f.catalog.Len())

	change := <-changes
	assert.False(t, change.Added)
	assert.Equal(t, viaMic, change.Record.Handle)
	assert.ErrorIs(t, change.Err, audiocore.ErrDeviceRemovedMidRoute)

	assert.Equal(t, 1, f.engine.EngineUsers())
	assert.Equal(t, 2, f.host.OpenEndpoints())
	assert.Equal(t, 1, f.bus.count(events.KindDeviceRemoved))

	_, err = f.engine.CreateRoute(t.Context(), 1, 2)
	require.ErrorIs(t, err, audiocore.ErrUnknownDevice, "removed handle is invalid on next use")
}

func TestSetActiveEndpoint(t *testing.T) {
	f := newFixture(t)

	active := f.activate(t, audiocore.DefaultDevice, audiocore.DefaultDevice)
	r, _ := f.engine.Route(active)
	assert.Equal(t, audiocore.RouteKey{Source: 1, Sink: 2}, r.Key, "host defaults are used")

	require.NoError(t, f.engine.SetActiveEndpoint(t.Context(), audiocore.DirectionOutput, 4))
	assert.Equal(t, audiocore.DeviceID(4), f.engine.ActiveEndpoint(audiocore.DirectionOutput))
	assert.Equal(t, audiocore.DeviceID(4), f.host.DefaultDevice(audiocore.DirectionOutput))

	r, _ = f.engine.Route(active)
	assert.Equal(t, audiocore.RouteActive, r.State, "active routes are not retargeted")

	h, err := f.engine.CreateRoute(t.Context(), audiocore.DefaultDevice, audiocore.DefaultDevice)
	require.NoError(t, err)
	r, _ = f.engine.Route(h)
	assert.Equal(t, audiocore.RouteKey{Source: 1, Sink: 4}, r.Key)

	err = f.engine.SetActiveEndpoint(t.Context(), audiocore.DirectionInput, 2)
	require.ErrorIs(t, err, audiocore.ErrDeviceUnavailable, "speakers cannot be an input")

	f.host.FailSetDefault(errors.New("rejected"))
	err = f.engine.SetActiveEndpoint(t.Context(), audiocore.DirectionInput, 3)
	require.ErrorIs(t, err, audiocore.ErrDeviceUnavailable)
	assert.Equal(t, audiocore.DefaultDevice, f.engine.ActiveEndpoint(audiocore.DirectionInput))

	require.NoError(t, f.engine.SetActiveEndpoint(t.Context(), audiocore.DirectionOutput, audiocore.DefaultDevice))
	assert.Equal(t, audiocore.DefaultDevice, f.engine.ActiveEndpoint(audiocore.DirectionOutput))
}

func TestDeviceRemoval_ResetsActiveEndpoint(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.engine.SetActiveEndpoint(t.Context(), audiocore.DirectionOutput, 23))

	f.host.RemoveDevice(23)

	require.Eventually(t, func() bool {
		return f.engine.ActiveEndpoint(audiocore.DirectionOutput) == audiocore.DefaultDevice
	}, time.Second, 5*time.Millisecond)
}

func TestHistoryLimit(t *testing.T) {
	f := newFixture(t, audiocore.WithHistoryLimit(2))

	var handles []audiocore.RouteHandle
	for range 4 {
		h := f.activate(t, 1, 2)
		require.NoError(t, f.engine.Stop(h))
		handles = append(handles, h)
	}

	assert.Len(t, f.engine.Routes(), 2)
	_, ok := f.engine.Route(handles[0])
	assert.False(t, ok, "oldest terminal route is pruned")
	_, ok = f.engine.Route(handles[3])
	assert.True(t, ok)
}

func TestClose_StopsEverything(t *testing.T) {
	f := newFixture(t)
	f.activate(t, 1, 2)
	f.activate(t, 3, 4)
	_, err := f.engine.CreateRoute(t.Context(), 12, 23)
	require.NoError(t, err)

	require.NoError(t, f.engine.Close())
	require.NoError(t, f.engine.Close(), "close is idempotent")

	assert.Zero(t, f.catalog.Len())
	assert.Zero(t, f.host.OpenEndpoints())
	assert.False(t, f.host.EngineRunning())

	_, err = f.engine.CreateRoute(t.Context(), 1, 2)
	require.ErrorIs(t, err, audiocore.ErrEngineClosed)
}

func TestMetricsRecorded(t *testing.T) {
	f := newFixture(t)
	h := f.activate(t, 1, 2)
	_, _ = f.engine.CreateRoute(t.Context(), 1, 2)

	f.metrics.mu.Lock()
	assert.Equal(t, 1, f.metrics.transitions["active"])
	assert.Equal(t, 1, f.metrics.errs["duplicate_route"])
	assert.Equal(t, 1, f.metrics.active)
	assert.Equal(t, 1, f.metrics.users)
	f.metrics.mu.Unlock()

	require.NoError(t, f.engine.Stop(h))
	f.metrics.mu.Lock()
	assert.Zero(t, f.metrics.active)
	assert.Zero(t, f.metrics.users)
	f.metrics.mu.Unlock()
}

func TestRouteTimestampsUseClock(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	var mu sync.Mutex
	tick := 0
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}
	f := newFixture(t, audiocore.WithClock(clock))

	h := f.activate(t, 1, 2)
	r, ok := f.engine.Route(h)
	require.True(t, ok)
	assert.True(t, r.CreatedAt.After(base))
	assert.True(t, r.StartedAt.After(r.CreatedAt))

	rec, ok := f.catalog.Get(audiocore.RouteKey{Source: 1, Sink: 2})
	require.True(t, ok)
	assert.Equal(t, r.StartedAt, rec.ActivatedAt)

	require.NoError(t, f.engine.Stop(h))
	r, _ = f.engine.Route(h)
	assert.True(t, r.EndedAt.After(r.StartedAt))
}

func TestRoutesOrderStableWithFrozenClock(t *testing.T) {
	frozen := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	f := newFixture(t, audiocore.WithClock(func() time.Time { return frozen }))

	want := []audiocore.RouteHandle{
		f.activate(t, 1, 2),
		f.activate(t, 3, 4),
		f.activate(t, 12, 23),
		f.activate(t, 1, 4),
	}

	for range 5 {
		routes := f.engine.Routes()
		got := make([]audiocore.RouteHandle, 0, len(routes))
		for _, r := range routes {
			got = append(got, r.Handle)
		}
		require.Equal(t, want, got)
	}
}
