// Package hotplug detects audio devices disappearing from the host. The
// watcher rescans the device set on a timer and whenever it is triggered,
// diffing against the previous scan. On Linux udev sound events trigger
// a rescan.
package hotplug

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/kappaborg/HIJACK-Audio/internal/audiocore"
	"github.com/kappaborg/HIJACK-Audio/internal/logging"
)

// DefaultInterval is the rescan period when none is configured.
const DefaultInterval = 2 * time.Second

// Enumerator lists the current devices. audiocore.Host satisfies it.
type Enumerator interface {
	EnumerateDevices(ctx context.Context) ([]audiocore.DeviceDescriptor, error)
}

// Change is the difference between two consecutive scans.
type Change struct {
	Added   []audiocore.DeviceID
	Removed []audiocore.DeviceID
}

// Empty reports whether the scan changed nothing.
func (c Change) Empty() bool { return len(c.Added) == 0 && len(c.Removed) == 0 }

// Watcher reports devices that vanish between scans.
type Watcher struct {
	src      Enumerator
	interval time.Duration
	useUdev  bool
	logger   *slog.Logger
	limiter  *rate.Limiter

	trigger chan struct{}

	mu        sync.Mutex
	known     map[audiocore.DeviceID]string
	primed    bool
	onRemoved []func(audiocore.DeviceID)
	onChange  []func(Change)
	cancel    context.CancelFunc
	done      chan struct{}
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithInterval sets the rescan period.
func WithInterval(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.interval = d
		}
	}
}

// WithUdev enables the udev trigger where the platform has one.
func WithUdev(enabled bool) Option {
	return func(w *Watcher) { w.useUdev = enabled }
}

// WithLogger sets the watcher logger.
func WithLogger(l *slog.Logger) Option {
	return func(w *Watcher) {
		if l != nil {
			w.logger = l
		}
	}
}

// WithTriggerRate limits how often triggers may force a rescan. Bursts of
// udev events for one unplug collapse into a single scan.
func WithTriggerRate(every time.Duration) Option {
	return func(w *Watcher) {
		if every > 0 {
			w.limiter = rate.NewLimiter(rate.Every(every), 1)
		}
	}
}

// New creates a stopped watcher over src.
func New(src Enumerator, opts ...Option) *Watcher {
	w := &Watcher{
		src:      src,
		interval: DefaultInterval,
		logger:   logging.ForService("hotplug"),
		limiter:  rate.NewLimiter(rate.Every(250*time.Millisecond), 1),
		trigger:  make(chan struct{}, 1),
		known:    make(map[audiocore.DeviceID]string),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// OnRemoved registers fn for every vanished device. Handlers run on the
// watcher goroutine in registration order.
func (w *Watcher) OnRemoved(fn func(audiocore.DeviceID)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onRemoved = append(w.onRemoved, fn)
}

// OnChange registers fn for every scan that changes the device set.
func (w *Watcher) OnChange(fn func(Change)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onChange = append(w.onChange, fn)
}

// Trigger asks for a rescan without waiting for the next tick. It never
// blocks and is safe to call from audio threads.
func (w *Watcher) Trigger() {
	select {
	case w.trigger <- struct{}{}:
	default:
	}
}

// Scan enumerates once and dispatches the difference to the previous
// scan. The first scan only records the baseline. A failed enumeration
// changes nothing: a host that cannot list devices has not lost them.
func (w *Watcher) Scan(ctx context.Context) (Change, error) {
	devs, err := w.src.EnumerateDevices(ctx)
	if err != nil {
		w.logger.Warn("device scan failed", "error", err)
		return Change{}, err
	}

	current := make(map[audiocore.DeviceID]string, len(devs))
	for _, d := range devs {
		current[d.ID] = d.Name
	}

	w.mu.Lock()
	var change Change
	if w.primed {
		for id := range w.known {
			if _, ok := current[id]; !ok {
				change.Removed = append(change.Removed, id)
			}
		}
		for id := range current {
			if _, ok := w.known[id]; !ok {
				change.Added = append(change.Added, id)
			}
		}
	}
	previous := w.known
	w.known = current
	w.primed = true
	removedFns := slices.Clone(w.onRemoved)
	changeFns := slices.Clone(w.onChange)
	w.mu.Unlock()

	if change.Empty() {
		return change, nil
	}
	slices.Sort(change.Added)
	slices.Sort(change.Removed)

	for _, id := range change.Removed {
		w.logger.Info("audio device removed", "device_id", id, "device", previous[id])
		for _, fn := range removedFns {
			fn(id)
		}
	}
	for _, id := range change.Added {
		w.logger.Info("audio device added", "device_id", id, "device", current[id])
	}
	for _, fn := range changeFns {
		fn(change)
	}
	return change, nil
}

// Start primes the baseline and begins watching. It is a no-op on a
// running watcher.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.cancel != nil {
		w.mu.Unlock()
		return nil
	}
	ctx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.done = make(chan struct{})
	done := w.done
	w.mu.Unlock()

	// A failed baseline is retried by the loop.
	_, _ = w.Scan(ctx)

	stopUdev := func() {}
	if w.useUdev {
		stop, err := startUdev(ctx, w.logger, w.Trigger)
		if err != nil {
			w.logger.Warn("udev monitor unavailable; relying on polling", "error", err)
		} else {
			stopUdev = stop
		}
	}

	go func() {
		defer close(done)
		defer stopUdev()
		w.loop(ctx)
	}()

	w.logger.Info("device watcher started", "interval", w.interval, "udev", w.useUdev)
	return nil
}

func (w *Watcher) loop(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-w.trigger:
			if err := w.limiter.Wait(ctx); err != nil {
				return
			}
		}
		_, _ = w.Scan(ctx)
	}
}

// Stop ends watching and waits for the loop to exit.
func (w *Watcher) Stop() {
	w.mu.Lock()
	cancel, done := w.cancel, w.done
	w.cancel, w.done = nil, nil
	w.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	w.logger.Info("device watcher stopped")
}
