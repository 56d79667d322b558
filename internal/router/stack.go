// Package router assembles the routing core with its host backend and the
// optional control surfaces.
package router

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/kappaborg/HIJACK-Audio/internal/audiocore"
	"github.com/kappaborg/HIJACK-Audio/internal/audiocore/hosts/malgo"
	"github.com/kappaborg/HIJACK-Audio/internal/audiocore/hosts/null"
	"github.com/kappaborg/HIJACK-Audio/internal/conf"
	"github.com/kappaborg/HIJACK-Audio/internal/errors"
	"github.com/kappaborg/HIJACK-Audio/internal/events"
	"github.com/kappaborg/HIJACK-Audio/internal/facade"
	"github.com/kappaborg/HIJACK-Audio/internal/hotplug"
	"github.com/kappaborg/HIJACK-Audio/internal/logging"
	"github.com/kappaborg/HIJACK-Audio/internal/observability"
)

const busShutdownTimeout = 2 * time.Second

// HostFactory opens the audio host described by the audio settings.
type HostFactory func(*conf.AudioSettings) (audiocore.Host, error)

// NewHost opens the backend named by audio.Backend.
func NewHost(audio *conf.AudioSettings) (audiocore.Host, error) {
	switch strings.ToLower(audio.Backend) {
	case conf.BackendNull:
		return null.NewDemo(), nil
	case conf.BackendMalgo, "":
		h, err := malgo.New(malgo.ConfigFromSettings(audio))
		if err != nil {
			return nil, err
		}
		return h, nil
	default:
		return nil, errors.Newf("unsupported audio backend %q", audio.Backend).
			Component("router").
			Category(errors.CategoryConfiguration).
			Context("backend", audio.Backend).
			Build()
	}
}

// Option configures Open.
type Option func(*options)

type options struct {
	newHost HostFactory
}

// WithHostFactory replaces NewHost.
func WithHostFactory(f HostFactory) Option {
	return func(o *options) {
		o.newHost = f
	}
}

// Stack is a wired routing core.
type Stack struct {
	Settings *conf.Settings
	Host     audiocore.Host
	Registry *audiocore.DeviceRegistry
	Catalog  *audiocore.ConnectionCatalog
	Engine   *audiocore.RoutingEngine
	Facade   *facade.Facade
	Bus      *events.EventBus
	Metrics  *observability.Metrics // nil unless telemetry.metrics is set

	logger *slog.Logger
}

// Open creates the host and the routing core on top of it.
func Open(settings *conf.Settings, opts ...Option) (*Stack, error) {
	o := options{newHost: NewHost}
	for _, opt := range opts {
		opt(&o)
	}

	host, err := o.newHost(&settings.Audio)
	if err != nil {
		return nil, err
	}

	var m *observability.Metrics
	if settings.Telemetry.Metrics {
		if m, err = observability.NewMetrics(); err != nil {
			_ = host.Close()
			return nil, err
		}
	}

	bus := events.New(events.DefaultConfig())

	var registryOpts []audiocore.RegistryOption
	engineOpts := []audiocore.Option{
		audiocore.WithLogger(logging.ForService("routing")),
		audiocore.WithPublisher(bus),
	}
	if m != nil {
		registryOpts = append(registryOpts, audiocore.WithRegistryMetrics(m.Routing))
		engineOpts = append(engineOpts, audiocore.WithMetrics(m.Routing))
	}

	registry := audiocore.NewDeviceRegistry(host, registryOpts...)
	catalog := audiocore.NewConnectionCatalog()
	engine := audiocore.NewRoutingEngine(host, registry, catalog, engineOpts...)

	return &Stack{
		Settings: settings,
		Host:     host,
		Registry: registry,
		Catalog:  catalog,
		Engine:   engine,
		Facade:   facade.New(registry, engine),
		Bus:      bus,
		Metrics:  m,
		logger:   logging.ForService("router"),
	}, nil
}

// ApplyDefaults makes the configured default input and output the active
// endpoints. Every failure is reported.
func (s *Stack) ApplyDefaults(ctx context.Context) error {
	var errs []error
	refs := [...]string{
		audiocore.DirectionInput:  s.Settings.Audio.DefaultInput,
		audiocore.DirectionOutput: s.Settings.Audio.DefaultOutput,
	}
	for i, ref := range refs {
		dir := audiocore.Direction(i)
		if ref == "" {
			continue
		}
		if err := s.Facade.SetDefault(ctx, dir, ref); err != nil {
			s.logger.Warn("default endpoint not applied", "direction", dir, "device", ref, "error", err)
			errs = append(errs, err)
			continue
		}
		s.logger.Info("default endpoint applied", "direction", dir, "device", ref)
	}
	return errors.Join(errs...)
}

// ActivatePresets starts the configured routes. A preset that fails does
// not keep the rest from starting.
func (s *Stack) ActivatePresets(ctx context.Context) (int, error) {
	var errs []error
	started := 0
	for _, p := range s.Settings.Routes {
		r, err := s.Facade.RequestRoute(ctx, p.Source, p.Sink)
		if err != nil {
			s.logger.Warn("route preset not started", "source", p.Source, "sink", p.Sink, "error", err)
			errs = append(errs, err)
			continue
		}
		s.logger.Info("route preset started", "route", r.Key.String(), "handle", r.Handle.String())
		started++
	}
	return started, errors.Join(errs...)
}

// NewWatcher returns a hotplug watcher feeding device removals into the
// host and device set changes into the facade cache and the event bus.
// The caller starts and stops it.
func (s *Stack) NewWatcher() *hotplug.Watcher {
	w := hotplug.New(s.Host,
		hotplug.WithInterval(s.Settings.Audio.Watcher.Interval),
		hotplug.WithUdev(s.Settings.Audio.Watcher.Udev),
	)

	if n, ok := s.Host.(interface{ NotifyRemoved(audiocore.DeviceID) }); ok {
		w.OnRemoved(n.NotifyRemoved)
	}
	if st, ok := s.Host.(interface{ OnStreamStalled(func()) }); ok {
		st.OnStreamStalled(w.Trigger)
	}
	w.OnChange(func(c hotplug.Change) {
		s.Facade.Invalidate()
		s.Bus.TryPublish(events.RouteEvent{Kind: events.KindDevicesRefreshed, Timestamp: time.Now()})
		s.logger.Debug("device set changed", "added", len(c.Added), "removed", len(c.Removed))
	})
	return w
}

// Close stops every route, then releases the bus and the host.
func (s *Stack) Close() error {
	return errors.Join(
		s.Engine.Close(),
		s.Bus.Shutdown(busShutdownTimeout),
		s.Host.Close(),
	)
}
