package malgo

import (
	"fmt"
	"slices"
	"sync/atomic"

	"github.com/gen2brain/malgo"
	"github.com/smallnest/ringbuffer"

	"github.com/kappaborg/HIJACK-Audio/internal/audiocore"
)

// stream is the part of *malgo.Device the graph drives.
type stream interface {
	Start() error
	Stop() error
	Uninit()
}

// streamInfo describes what a device actually opened with.
type streamInfo struct {
	format malgo.FormatType
	rate   uint32
}

// linkSet is a copy-on-write list of links. Writers hold the host lock;
// the audio callbacks only load.
type linkSet struct {
	p atomic.Pointer[[]*link]
}

func (s *linkSet) load() []*link {
	if p := s.p.Load(); p != nil {
		return *p
	}
	return nil
}

func (s *linkSet) add(l *link) {
	next := append(slices.Clone(s.load()), l)
	s.p.Store(&next)
}

func (s *linkSet) remove(l *link) {
	next := slices.DeleteFunc(slices.Clone(s.load()), func(x *link) bool { return x == l })
	s.p.Store(&next)
}

// node is one opened hardware stream shared by every endpoint attached to
// the same device and direction.
type node struct {
	id      audiocore.DeviceID
	dir     audiocore.Direction
	hw      malgo.DeviceID
	dev     stream
	info    streamInfo
	refs    int
	started bool
	links   linkSet

	// set while the host stops the stream on purpose
	stopping atomic.Bool
}

// sync starts the stream when the engine runs and a link is enabled, and
// stops it otherwise.
func (n *node) sync(running bool) error {
	want := running && len(n.links.load()) > 0
	switch {
	case want && !n.started:
		if err := n.dev.Start(); err != nil {
			return err
		}
		n.started = true
	case !want && n.started:
		n.stopping.Store(true)
		err := n.dev.Stop()
		n.stopping.Store(false)
		n.started = false
		return err
	}
	return nil
}

func (n *node) uninit() {
	n.stopping.Store(true)
	n.dev.Uninit()
	n.started = false
}

// tap fans captured audio out to the rings of its enabled links.
type tap struct {
	node
	scratch []byte
}

func (t *tap) onData(_, input []byte, _ uint32) {
	links := t.links.load()
	if len(links) == 0 || len(input) == 0 {
		return
	}
	pcm := input
	if t.info.format != malgo.FormatS16 {
		out, err := convertToS16(input, t.info.format, t.scratch)
		if err != nil {
			return
		}
		t.scratch = out
		pcm = out
	}
	for _, l := range links {
		l.push(pcm)
	}
}

// bus sums the rings of its enabled links into the playback buffer.
type bus struct {
	node
	scratch []byte
}

func (b *bus) onData(output, _ []byte, _ uint32) {
	clear(output)
	links := b.links.load()
	if len(links) == 0 {
		return
	}
	if cap(b.scratch) < len(output) {
		b.scratch = make([]byte, len(output))
	}
	buf := b.scratch[:len(output)]
	for _, l := range links {
		n, _ := l.ring.Read(buf)
		mixS16(output[:n], buf[:n])
	}
}

// link carries one capture stream into one playback bus.
type link struct {
	host *Host
	tap  *tap
	bus  *bus
	ring *ringbuffer.RingBuffer

	// guarded by host.mu
	enabled bool
	closed  bool

	overruns atomic.Uint64
}

var _ audiocore.Link = (*link)(nil)

// push never blocks; audio that does not fit is dropped.
func (l *link) push(pcm []byte) {
	if n, err := l.ring.Write(pcm); err != nil || n < len(pcm) {
		l.overruns.Add(1)
	}
}

// Enable implements audiocore.Link. If either stream fails to start the
// link is detached again and the error returned.
func (l *link) Enable() error {
	l.host.mu.Lock()
	defer l.host.mu.Unlock()

	if l.closed {
		return errLinkClosed
	}
	if l.enabled {
		return nil
	}
	l.ring.Reset()
	l.enabled = true
	l.tap.links.add(l)
	l.bus.links.add(l)

	err := l.tap.sync(l.host.running)
	if err != nil {
		err = fmt.Errorf("start capture device %d: %w", l.tap.id, err)
	} else if err = l.bus.sync(l.host.running); err != nil {
		err = fmt.Errorf("start playback device %d: %w", l.bus.id, err)
	}
	if err != nil {
		l.disableLocked()
		return err
	}
	return nil
}

// Disable implements audiocore.Link.
func (l *link) Disable() {
	l.host.mu.Lock()
	defer l.host.mu.Unlock()
	l.disableLocked()
}

func (l *link) disableLocked() {
	if !l.enabled {
		return
	}
	l.enabled = false
	l.tap.links.remove(l)
	l.bus.links.remove(l)
	l.host.syncLocked(&l.tap.node)
	l.host.syncLocked(&l.bus.node)
	if n := l.overruns.Swap(0); n > 0 {
		l.host.logger.Debug("link dropped audio",
			"source_id", l.tap.id,
			"sink_id", l.bus.id,
			"overruns", n)
	}
}

// Close implements audiocore.Link.
func (l *link) Close() error {
	l.host.mu.Lock()
	defer l.host.mu.Unlock()

	if l.closed {
		return errLinkClosed
	}
	l.disableLocked()
	l.closed = true
	delete(l.host.links, l)
	return nil
}
