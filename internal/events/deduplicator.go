package events

import (
	"sync"
	"time"
)

// dedupKey identifies events that describe the same occurrence.
type dedupKey struct {
	kind   Kind
	handle string
	source uint32
	sink   uint32
	device uint32
	state  string
}

// Deduplicator suppresses identical events seen within a time window. The
// hotplug poller and the udev listener can both observe one removal; only the
// first notification is forwarded.
type Deduplicator struct {
	window time.Duration
	now    func() time.Time

	mu   sync.Mutex
	seen map[dedupKey]time.Time
}

// NewDeduplicator creates a deduplicator with the given suppression window.
func NewDeduplicator(window time.Duration) *Deduplicator {
	return &Deduplicator{
		window: window,
		now:    time.Now,
		seen:   make(map[dedupKey]time.Time),
	}
}

// ShouldProcess reports whether event is new within the window. A nil
// deduplicator accepts everything.
func (d *Deduplicator) ShouldProcess(event RouteEvent) bool {
	if d == nil {
		return true
	}

	key := dedupKey{
		kind:   event.Kind,
		handle: event.Handle,
		source: event.Source,
		sink:   event.Sink,
		device: event.Device,
		state:  event.State,
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	if last, ok := d.seen[key]; ok && now.Sub(last) < d.window {
		return false
	}
	d.seen[key] = now

	// Expired entries are pruned opportunistically; the map stays small
	// because keys are bounded by live routes and devices.
	if len(d.seen) > 256 {
		for k, ts := range d.seen {
			if now.Sub(ts) >= d.window {
				delete(d.seen, k)
			}
		}
	}
	return true
}
