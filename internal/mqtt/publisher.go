package mqtt

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/kappaborg/HIJACK-Audio/internal/events"
	"github.com/kappaborg/HIJACK-Audio/internal/logging"
)

// RouteMessage is the payload published for route and device events.
type RouteMessage struct {
	Event      string    `json:"event"`
	RouteID    string    `json:"route_id,omitempty"`
	Source     uint32    `json:"source,omitempty"`
	Sink       uint32    `json:"sink,omitempty"`
	SourceName string    `json:"source_name,omitempty"`
	SinkName   string    `json:"sink_name,omitempty"`
	Device     uint32    `json:"device,omitempty"`
	Reason     string    `json:"reason,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// eventName maps a bus event to the published event name. Transitional
// states are not published.
func eventName(ev events.RouteEvent) (string, bool) {
	switch ev.Kind {
	case events.KindRouteState:
		switch ev.State {
		case "active":
			return "activated", true
		case "stopped":
			return "stopped", true
		case "failed":
			return "failed", true
		}
		return "", false
	case events.KindDeviceRemoved:
		return "device_removed", true
	case events.KindEndpointChanged:
		return "endpoint_changed", true
	case events.KindDevicesRefreshed:
		return "devices_refreshed", true
	}
	return "", false
}

// Publisher forwards bus events to the broker. It implements
// events.EventConsumer.
type Publisher struct {
	client Client
	topic  string
	config Config
	logger *slog.Logger
}

var _ events.EventConsumer = (*Publisher)(nil)

// NewPublisher publishes through client under cfg.Topic.
func NewPublisher(client Client, cfg Config) *Publisher {
	return &Publisher{
		client: client,
		topic:  strings.TrimSuffix(cfg.Topic, "/"),
		config: cfg,
		logger: logging.ForService("mqtt"),
	}
}

// Name implements events.EventConsumer.
func (p *Publisher) Name() string { return "mqtt" }

// Topic returns the topic ev is published on.
func (p *Publisher) Topic(ev events.RouteEvent) string {
	if ev.Kind == events.KindRouteState {
		return p.topic + "/routes"
	}
	return p.topic + "/devices"
}

// ProcessEvent implements events.EventConsumer. A disconnected broker is
// reported as an error and the event is dropped.
func (p *Publisher) ProcessEvent(ev events.RouteEvent) error {
	name, ok := eventName(ev)
	if !ok {
		return nil
	}
	payload, err := json.Marshal(RouteMessage{
		Event:      name,
		RouteID:    ev.Handle,
		Source:     ev.Source,
		Sink:       ev.Sink,
		SourceName: ev.SourceName,
		SinkName:   ev.SinkName,
		Device:     ev.Device,
		Reason:     ev.Error,
		Timestamp:  ev.Timestamp,
	})
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), p.config.PublishTimeout)
	defer cancel()
	topic := p.Topic(ev)
	if err := p.client.Publish(ctx, topic, payload); err != nil {
		p.logger.Debug("event not published", "topic", topic, "event", name, "error", err)
		return err
	}
	return nil
}

// Run connects with exponential backoff until it succeeds or ctx ends,
// then holds the connection until ctx ends. paho reconnects on its own
// once a first connection has been made.
func (p *Publisher) Run(ctx context.Context) error {
	backoff := max(p.config.ReconnectDelay, p.config.ReconnectCooldown)
	maxBackoff := max(p.config.MaxReconnectDelay, backoff)

	for {
		err := p.client.Connect(ctx)
		if err == nil {
			break
		}
		p.logger.Warn("MQTT connect failed", "broker", p.config.Broker, "retry_in", backoff, "error", err)

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(backoff):
			backoff = min(backoff*2, maxBackoff)
		}
	}

	<-ctx.Done()
	p.client.Disconnect()
	return nil
}
