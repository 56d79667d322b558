package router

import (
	"context"
	"fmt"
	"io"

	"github.com/kappaborg/HIJACK-Audio/internal/audiocore"
	"github.com/kappaborg/HIJACK-Audio/internal/conf"
	"github.com/kappaborg/HIJACK-Audio/internal/errors"
	"github.com/kappaborg/HIJACK-Audio/internal/facade"
)

// Hold starts a cable from source to sink and keeps it up until ctx ends
// or the route is torn down underneath it. An involuntary teardown is
// reported on out and returned.
func (s *Stack) Hold(ctx context.Context, source, sink string, out io.Writer) error {
	changes, unsubscribe := s.Catalog.Subscribe(8)
	defer unsubscribe()

	r, err := s.Facade.RequestRoute(ctx, source, sink)
	if err != nil {
		return err
	}

	srcName, sinkName := source, sink
	if rec, ok := s.Catalog.Get(r.Key); ok {
		srcName, sinkName = rec.SourceName, rec.SinkName
	}
	fmt.Fprintf(out, "Routing %s -> %s (%s). Press Ctrl+C to stop.\n", srcName, sinkName, r.Handle)

	for {
		select {
		case <-ctx.Done():
			if err := s.Engine.Stop(r.Handle); err != nil && !errors.Is(err, audiocore.ErrRouteNotFound) {
				return err
			}
			fmt.Fprintln(out, "Route stopped.")
			return nil
		case c, ok := <-changes:
			if !ok {
				return nil
			}
			if c.Added || c.Record.Handle != r.Handle {
				continue
			}
			if c.Err == nil {
				fmt.Fprintln(out, "Route stopped.")
				return nil
			}
			fmt.Fprintf(out, "Route ended: %s\n", facade.Message(c.Err))
			return c.Err
		}
	}
}

// Route opens the configured host, holds a single cable until ctx ends and
// closes everything again. The device watcher runs when enabled so an
// unplugged device ends the cable.
func Route(ctx context.Context, settings *conf.Settings, source, sink string, out io.Writer, opts ...Option) error {
	stack, err := Open(settings, opts...)
	if err != nil {
		return err
	}
	defer stack.Close()

	if settings.Audio.Watcher.Enabled {
		w := stack.NewWatcher()
		if err := w.Start(ctx); err != nil {
			return err
		}
		defer w.Stop()
	}

	return stack.Hold(ctx, source, sink, out)
}
