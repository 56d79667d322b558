package mqtt

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kappaborg/HIJACK-Audio/internal/conf"
	"github.com/kappaborg/HIJACK-Audio/internal/errors"
	"github.com/kappaborg/HIJACK-Audio/internal/events"
)

type message struct {
	topic   string
	payload []byte
}

type fakeClient struct {
	mu           sync.Mutex
	connected    bool
	failConnects int
	connects     int
	disconnects  int
	messages     []message
}

func (f *fakeClient) Connect(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connects++
	if f.failConnects > 0 {
		f.failConnects--
		return errors.NewStd("broker unreachable")
	}
	f.connected = true
	return nil
}

func (f *fakeClient) Publish(_ context.Context, topic string, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.connected {
		return errors.NewStd("not connected")
	}
	f.messages = append(f.messages, message{topic: topic, payload: payload})
	return nil
}

func (f *fakeClient) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeClient) Disconnect() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = false
	f.disconnects++
}

func (f *fakeClient) sent() []message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]message(nil), f.messages...)
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Broker = "tcp://localhost:1883"
	cfg.Topic = "hijack-audio/"
	cfg.ReconnectDelay = time.Millisecond
	cfg.ReconnectCooldown = 0
	cfg.MaxReconnectDelay = 4 * time.Millisecond
	return cfg
}

func TestProcessEventPublishesRouteStates(t *testing.T) {
	t.Parallel()
	fc := &fakeClient{connected: true}
	p := NewPublisher(fc, testConfig())
	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, p.ProcessEvent(events.RouteEvent{
		Kind: events.KindRouteState, Handle: "h1", Source: 1, Sink: 2,
		SourceName: "USB Mic", SinkName: "Speakers", State: "active", Timestamp: ts,
	}))
	require.NoError(t, p.ProcessEvent(events.RouteEvent{
		Kind: events.KindRouteState, Handle: "h1", State: "constructed", Timestamp: ts,
	}))
	require.NoError(t, p.ProcessEvent(events.RouteEvent{
		Kind: events.KindRouteState, Handle: "h1", Source: 1, Sink: 2,
		State: "failed", Error: "device removed", Timestamp: ts,
	}))

	sent := fc.sent()
	require.Len(t, sent, 2, "transitional states are not published")
	assert.Equal(t, "hijack-audio/routes", sent[0].topic)

	var msg RouteMessage
	require.NoError(t, json.Unmarshal(sent[0].payload, &msg))
	assert.Equal(t, RouteMessage{
		Event: "activated", RouteID: "h1", Source: 1, Sink: 2,
		SourceName: "USB Mic", SinkName: "Speakers", Timestamp: ts,
	}, msg)

	require.NoError(t, json.Unmarshal(sent[1].payload, &msg))
	assert.Equal(t, "failed", msg.Event)
	assert.Equal(t, "device removed", msg.Reason)
}

func TestProcessEventDeviceTopic(t *testing.T) {
	t.Parallel()
	fc := &fakeClient{connected: true}
	p := NewPublisher(fc, testConfig())

	require.NoError(t, p.ProcessEvent(events.RouteEvent{Kind: events.KindDeviceRemoved, Device: 4}))
	sent := fc.sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "hijack-audio/devices", sent[0].topic)
	assert.JSONEq(t, `{"event":"device_removed","device":4,"timestamp":"0001-01-01T00:00:00Z"}`, string(sent[0].payload))
}

func TestProcessEventDisconnected(t *testing.T) {
	t.Parallel()
	p := NewPublisher(&fakeClient{}, testConfig())
	err := p.ProcessEvent(events.RouteEvent{Kind: events.KindRouteState, State: "stopped"})
	require.Error(t, err)
}

func TestRunRetriesUntilConnected(t *testing.T) {
	t.Parallel()
	fc := &fakeClient{failConnects: 3}
	p := NewPublisher(fc, testConfig())

	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	assert.Eventually(t, fc.IsConnected, time.Second, time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	fc.mu.Lock()
	defer fc.mu.Unlock()
	assert.Equal(t, 4, fc.connects)
	assert.Equal(t, 1, fc.disconnects)
}

func TestRunStopsWhileRetrying(t *testing.T) {
	t.Parallel()
	fc := &fakeClient{failConnects: 1 << 30}
	p := NewPublisher(fc, testConfig())

	ctx, cancel := context.WithTimeout(t.Context(), 20*time.Millisecond)
	defer cancel()
	require.NoError(t, p.Run(ctx))
	assert.False(t, fc.IsConnected())
}

func TestConfigFromSettings(t *testing.T) {
	t.Parallel()
	s := conf.Defaults()
	s.MQTT.Broker = "tcp://broker:1883"
	s.MQTT.ClientID = ""
	s.MQTT.Retain = true

	cfg := ConfigFromSettings(s)
	assert.Equal(t, "tcp://broker:1883", cfg.Broker)
	assert.Equal(t, s.Main.Name, cfg.ClientID)
	assert.True(t, cfg.Retain)
	assert.Equal(t, 10*time.Second, cfg.PublishTimeout)
}

func TestNewClientRequiresBroker(t *testing.T) {
	t.Parallel()
	_, err := NewClient(DefaultConfig(), nil)
	require.Error(t, err)

	c, err := NewClient(testConfig(), nil)
	require.NoError(t, err)
	assert.False(t, c.IsConnected())
	err = c.Publish(t.Context(), "t", []byte("x"))
	require.Error(t, err)
}
