package router

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kappaborg/HIJACK-Audio/internal/api"
	"github.com/kappaborg/HIJACK-Audio/internal/buildinfo"
	"github.com/kappaborg/HIJACK-Audio/internal/conf"
	"github.com/kappaborg/HIJACK-Audio/internal/errors"
	"github.com/kappaborg/HIJACK-Audio/internal/logging"
	"github.com/kappaborg/HIJACK-Audio/internal/mqtt"
	"github.com/kappaborg/HIJACK-Audio/internal/observability/metrics"
)

const sentryFlushTimeout = 2 * time.Second

// Serve runs the router daemon until ctx ends: it applies the configured
// default endpoints, starts the route presets and runs the device watcher,
// the control API and the MQTT publisher as configured.
func Serve(ctx context.Context, settings *conf.Settings, opts ...Option) error {
	logger := logging.ForService("router")

	if settings.Telemetry.Sentry.Enabled {
		if err := errors.InitSentry(settings.Telemetry.Sentry.DSN, buildinfo.Current().Release(conf.AppName)); err != nil {
			logger.Warn("error reporting disabled", "error", err)
		} else {
			defer errors.FlushSentry(sentryFlushTimeout)
		}
	}

	stack, err := Open(settings, opts...)
	if err != nil {
		return err
	}
	defer func() {
		if err := stack.Close(); err != nil {
			logger.Warn("shutdown incomplete", "error", err)
		}
	}()

	// Misconfigured defaults and presets are logged; the daemon still
	// serves the devices that are present.
	_ = stack.ApplyDefaults(ctx)
	started, _ := stack.ActivatePresets(ctx)

	g, gctx := errgroup.WithContext(ctx)

	if settings.Audio.Watcher.Enabled {
		w := stack.NewWatcher()
		if err := w.Start(gctx); err != nil {
			return err
		}
		defer w.Stop()
	}

	if settings.MQTT.Enabled {
		cfg := mqtt.ConfigFromSettings(settings)
		client, err := mqtt.NewClient(cfg, stack.mqttMetrics())
		if err != nil {
			return err
		}
		pub := mqtt.NewPublisher(client, cfg)
		if err := stack.Bus.RegisterConsumer(pub); err != nil {
			return err
		}
		g.Go(func() error { return pub.Run(gctx) })
	}

	if settings.WebServer.Enabled {
		var apiOpts []api.Option
		if stack.Metrics != nil {
			apiOpts = append(apiOpts, api.WithMetricsHandler(stack.Metrics.Handler()))
		}
		srv := api.NewServer(settings, stack.Facade, apiOpts...)
		g.Go(func() error { return srv.Run(gctx) })
	}

	logger.Info("router running",
		"backend", settings.Audio.Backend,
		"routes", started,
		"api", settings.WebServer.Enabled,
		"mqtt", settings.MQTT.Enabled)

	g.Go(func() error {
		<-gctx.Done()
		return nil
	})

	err = g.Wait()
	logger.Info("router stopping", "connections", stack.Catalog.Len())
	return err
}

func (s *Stack) mqttMetrics() *metrics.MQTTMetrics {
	if s.Metrics == nil {
		return nil
	}
	return s.Metrics.MQTT
}
