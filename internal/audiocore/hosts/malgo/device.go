package malgo

import (
	"encoding/hex"
	"strings"
	"sync"

	"github.com/gen2brain/malgo"

	"github.com/kappaborg/HIJACK-Audio/internal/audiocore"
)

// nullDeviceName is the ALSA null sink, which is never worth routing to.
const nullDeviceName = "Discard all samples"

// probe is one entry of a capture or playback device list.
type probe struct {
	key       string
	name      string
	isDefault bool
	hw        malgo.DeviceID
}

func probesFrom(infos []malgo.DeviceInfo) []probe {
	out := make([]probe, 0, len(infos))
	for i := range infos {
		name := infos[i].Name()
		if strings.Contains(name, nullDeviceName) {
			continue
		}
		out = append(out, probe{
			key:       infos[i].ID.String(),
			name:      name,
			isDefault: infos[i].IsDefault == 1,
			hw:        infos[i].ID,
		})
	}
	return out
}

// hwDevice is what the host remembers about an enumerated device.
type hwDevice struct {
	desc     audiocore.DeviceDescriptor
	capture  *malgo.DeviceID
	playback *malgo.DeviceID
}

// idTable hands out numeric device ids. A hardware key keeps its id for
// the lifetime of the host, so a device that disappears and returns is
// reported under the same id.
type idTable struct {
	mu   sync.Mutex
	next audiocore.DeviceID
	ids  map[string]audiocore.DeviceID
}

func newIDTable() *idTable {
	return &idTable{next: 1, ids: make(map[string]audiocore.DeviceID)}
}

func (t *idTable) idFor(key string) audiocore.DeviceID {
	t.mu.Lock()
	defer t.mu.Unlock()
	if id, ok := t.ids[key]; ok {
		return id
	}
	id := t.next
	t.next++
	t.ids[key] = id
	return id
}

// merge folds the capture and playback lists into one device per
// hardware key. Backends that expose a duplex card under one id yield a
// single device with both stream kinds.
func merge(ids *idTable, capture, playback []probe) map[audiocore.DeviceID]*hwDevice {
	devices := make(map[audiocore.DeviceID]*hwDevice, len(capture)+len(playback))
	get := func(p probe) *hwDevice {
		id := ids.idFor(p.key)
		d, ok := devices[id]
		if !ok {
			d = &hwDevice{desc: audiocore.DeviceDescriptor{ID: id, Name: p.name}}
			devices[id] = d
		}
		return d
	}
	for _, p := range capture {
		d := get(p)
		hw := p.hw
		d.capture = &hw
		d.desc.InputStreams++
		d.desc.DefaultInput = d.desc.DefaultInput || p.isDefault
	}
	for _, p := range playback {
		d := get(p)
		hw := p.hw
		d.playback = &hw
		d.desc.OutputStreams++
		d.desc.DefaultOutput = d.desc.DefaultOutput || p.isDefault
	}
	return devices
}

// decodeID renders a hex-encoded hardware id as text when it is printable,
// as ALSA ids are. Other backends use opaque binary ids.
func decodeID(key string) string {
	raw, err := hex.DecodeString(key)
	if err != nil {
		return key
	}
	s := strings.TrimRight(string(raw), "\x00")
	for _, r := range s {
		if r < 0x20 || r > 0x7e {
			return key
		}
	}
	return s
}
