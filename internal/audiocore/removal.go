package audiocore

import (
	"fmt"
	"slices"

	"github.com/kappaborg/HIJACK-Audio/internal/errors"
	"github.com/kappaborg/HIJACK-Audio/internal/events"
)

// enqueueRemoval is registered with the host. It never blocks, so hosts may
// call it from any goroutine.
func (e *RoutingEngine) enqueueRemoval(id DeviceID) {
	e.removalMu.Lock()
	e.removals = append(e.removals, id)
	e.removalMu.Unlock()

	select {
	case e.wake <- struct{}{}:
	default:
	}
}

func (e *RoutingEngine) removalLoop() {
	defer close(e.done)
	for {
		select {
		case <-e.quit:
			return
		case <-e.wake:
			e.removalMu.Lock()
			pending := e.removals
			e.removals = nil
			e.removalMu.Unlock()

			for _, id := range pending {
				e.handleDeviceRemoved(id)
			}
		}
	}
}

// handleDeviceRemoved fails every live route using id and drops id as an
// active endpoint.
func (e *RoutingEngine) handleDeviceRemoved(id DeviceID) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return
	}

	e.metrics.RecordDeviceRemoval()
	e.bus.TryPublish(events.RouteEvent{
		Kind:      events.KindDeviceRemoved,
		Device:    uint32(id),
		Timestamp: e.now(),
	})

	for dir := range e.endpoints {
		if e.endpoints[dir] == id {
			e.endpoints[dir] = DefaultDevice
			e.logger.Info("active endpoint removed, reverting to host default",
				"direction", Direction(dir).String(),
				"device_id", id)
		}
	}

	var affected []*routeEntry
	for key, entry := range e.live {
		if key.Source == id || key.Sink == id {
			affected = append(affected, entry)
		}
	}
	slices.SortFunc(affected, func(a, b *routeEntry) int { return a.CreatedAt.Compare(b.CreatedAt) })

	for _, entry := range affected {
		err := errors.New(fmt.Errorf("device %d removed while route %s was %s: %w",
			id, entry.Key, entry.State, ErrDeviceRemovedMidRoute)).
			Component(ComponentAudioCore).
			Category(errors.CategoryDeviceRemoved).
			Context("device_id", id).
			Context("route_id", entry.Handle.String()).
			Build()
		e.failLocked(entry, err)
	}

	if len(affected) > 0 {
		e.logger.Warn("device removed, routes torn down", "device_id", id, "routes", len(affected))
	}
}
