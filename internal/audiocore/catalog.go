package audiocore

import (
	"slices"
	"sync"
	"sync/atomic"
	"time"
)

// CatalogChange is delivered to catalog subscribers.
type CatalogChange struct {
	Added   bool             // true when Record was inserted, false when removed
	Record  ConnectionRecord // the record added or removed
	Err     error            // cause of an involuntary removal
	Version uint64           // catalog version after the change
}

// ConnectionCatalog is the observable set of active connections.
//
// Readers get lock-free snapshots. Writers replace the record slice
// copy-on-write; the routing engine calls the mutators from inside its own
// critical section so catalog contents never lag route state.
type ConnectionCatalog struct {
	records atomic.Pointer[[]ConnectionRecord]
	version atomic.Uint64

	mu      sync.Mutex
	subs    map[int]chan CatalogChange
	nextSub int
	dropped atomic.Uint64
}

// NewConnectionCatalog creates an empty catalog.
func NewConnectionCatalog() *ConnectionCatalog {
	c := &ConnectionCatalog{subs: make(map[int]chan CatalogChange)}
	empty := []ConnectionRecord{}
	c.records.Store(&empty)
	return c
}

// OnRouteActivated inserts or replaces the record for r.Key.
func (c *ConnectionCatalog) OnRouteActivated(r Route, sourceName, sinkName string) {
	rec := ConnectionRecord{
		Key:         r.Key,
		Handle:      r.Handle,
		SourceName:  sourceName,
		SinkName:    sinkName,
		ActivatedAt: r.StartedAt,
	}
	if rec.ActivatedAt.IsZero() {
		rec.ActivatedAt = time.Now()
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	cur := *c.records.Load()
	next := make([]ConnectionRecord, 0, len(cur)+1)
	for _, existing := range cur {
		if existing.Key != rec.Key {
			next = append(next, existing)
		}
	}
	next = append(next, rec)
	slices.SortFunc(next, compareRecords)
	c.records.Store(&next)

	c.notify(CatalogChange{Added: true, Record: rec, Version: c.version.Add(1)})
}

// OnRouteStopped removes the record for the pair. Absent records are ignored.
func (c *ConnectionCatalog) OnRouteStopped(source, sink DeviceID) bool {
	return c.remove(RouteKey{Source: source, Sink: sink}, nil)
}

// OnRouteFailed removes the record for key and tells subscribers why.
func (c *ConnectionCatalog) OnRouteFailed(key RouteKey, cause error) bool {
	return c.remove(key, cause)
}

func (c *ConnectionCatalog) remove(key RouteKey, cause error) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	cur := *c.records.Load()
	idx := slices.IndexFunc(cur, func(r ConnectionRecord) bool { return r.Key == key })
	if idx < 0 {
		return false
	}

	removed := cur[idx]
	next := slices.Delete(slices.Clone(cur), idx, idx+1)
	c.records.Store(&next)

	c.notify(CatalogChange{Record: removed, Err: cause, Version: c.version.Add(1)})
	return true
}

// List returns a snapshot of all records ordered by key.
func (c *ConnectionCatalog) List() []ConnectionRecord {
	return slices.Clone(*c.records.Load())
}

// Get returns the record for key.
func (c *ConnectionCatalog) Get(key RouteKey) (ConnectionRecord, bool) {
	for _, r := range *c.records.Load() {
		if r.Key == key {
			return r, true
		}
	}
	return ConnectionRecord{}, false
}

// Len returns the number of records.
func (c *ConnectionCatalog) Len() int {
	return len(*c.records.Load())
}

// Version increases with every mutation.
func (c *ConnectionCatalog) Version() uint64 {
	return c.version.Load()
}

// Subscribe returns a channel receiving every change and a function that
// cancels the subscription. Changes are dropped for a subscriber whose
// buffer is full; mutators never wait for observers.
func (c *ConnectionCatalog) Subscribe(buffer int) (<-chan CatalogChange, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan CatalogChange, buffer)

	c.mu.Lock()
	id := c.nextSub
	c.nextSub++
	c.subs[id] = ch
	c.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.subs, id)
			c.mu.Unlock()
			close(ch)
		})
	}
}

// Dropped returns how many changes were discarded for slow subscribers.
func (c *ConnectionCatalog) Dropped() uint64 {
	return c.dropped.Load()
}

// notify must be called with c.mu held.
func (c *ConnectionCatalog) notify(change CatalogChange) {
	for _, ch := range c.subs {
		select {
		case ch <- change:
		default:
			c.dropped.Add(1)
		}
	}
}

func compareRecords(a, b ConnectionRecord) int {
	switch {
	case a.Key.Source != b.Key.Source:
		if a.Key.Source < b.Key.Source {
			return -1
		}
		return 1
	case a.Key.Sink < b.Key.Sink:
		return -1
	case a.Key.Sink > b.Key.Sink:
		return 1
	default:
		return 0
	}
}
