package null

import (
	"errors"
	"testing"

	"github.com/kappaborg/HIJACK-Audio/internal/audiocore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHost_AttachChecksCapability(t *testing.T) {
	t.Parallel()
	h := NewDemo()

	_, err := h.AttachCapture(2)
	require.Error(t, err, "speakers have no input streams")

	_, err = h.AttachPlayback(99)
	require.Error(t, err)

	ep, err := h.AttachCapture(3)
	require.NoError(t, err)
	assert.Equal(t, audiocore.DeviceID(3), ep.DeviceID())
	assert.Equal(t, audiocore.DirectionInput, ep.Direction())
	assert.Equal(t, 1, h.OpenEndpoints())

	require.NoError(t, ep.Close())
	assert.Error(t, ep.Close(), "double close is reported")
	assert.Zero(t, h.OpenEndpoints())
}

func TestHost_EngineStartStop(t *testing.T) {
	t.Parallel()
	h := NewDemo()

	require.NoError(t, h.StartEngine())
	assert.Error(t, h.StartEngine(), "restarting a running engine is a caller bug")
	require.NoError(t, h.StopEngine())
	assert.Error(t, h.StopEngine())
	assert.Equal(t, 1, h.EngineStarts())
	assert.Equal(t, 1, h.EngineStops())
}

func TestHost_RemoveDeviceNotifies(t *testing.T) {
	t.Parallel()
	h := NewDemo()

	var got []audiocore.DeviceID
	h.OnDeviceRemoved(func(id audiocore.DeviceID) { got = append(got, id) })
	h.RemoveDevice(1)

	assert.Equal(t, []audiocore.DeviceID{1}, got)
	devs, err := h.EnumerateDevices(t.Context())
	require.NoError(t, err)
	assert.Len(t, devs, 2)
}

func TestHost_InjectedFailures(t *testing.T) {
	t.Parallel()
	h := NewDemo()
	boom := errors.New("boom")

	h.FailEnumeration(boom)
	_, err := h.EnumerateDevices(t.Context())
	require.ErrorIs(t, err, boom)
	h.FailEnumeration(nil)

	h.FailCapture(1, boom)
	_, err = h.AttachCapture(1)
	require.ErrorIs(t, err, boom)

	h.FailSetDefault(boom)
	require.ErrorIs(t, h.SetDefaultDevice(audiocore.DirectionOutput, 2), boom)
	h.FailSetDefault(nil)
	require.NoError(t, h.SetDefaultDevice(audiocore.DirectionOutput, 2))
	assert.Equal(t, audiocore.DeviceID(2), h.DefaultDevice(audiocore.DirectionOutput))
}

func TestHost_LinkLifecycle(t *testing.T) {
	t.Parallel()
	h := NewDemo()

	capture, err := h.AttachCapture(1)
	require.NoError(t, err)
	playback, err := h.AttachPlayback(2)
	require.NoError(t, err)

	_, err = h.Connect(playback, capture)
	require.Error(t, err, "endpoints in the wrong order")

	l, err := h.Connect(capture, playback)
	require.NoError(t, err)

	h.FailEnable(errors.New("device busy"))
	require.Error(t, l.Enable())
	assert.False(t, h.Links()[0].Enabled)
	h.FailEnable(nil)
	require.NoError(t, l.Enable())

	links := h.Links()
	require.Len(t, links, 1)
	assert.Equal(t, LinkInfo{Source: 1, Sink: 2, Enabled: true, Toggles: 1}, links[0])

	l.Disable()
	require.NoError(t, l.Close())
	assert.Empty(t, h.Links())
}
