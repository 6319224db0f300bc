package mqttnode

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/nugget/eventgraph/internal/engine"
)

// Publisher is a sink node: every event it receives is published to the
// broker, either because the event explicitly carries MQTT_PUBLISH
// routing fields or, for any other event type, by publishing the
// event's data as JSON to the configured default topic.
type Publisher struct {
	*engine.BaseNode

	manager *Manager
	publish PublishSettings
	logger  *slog.Logger
}

// NewPublisher builds a Publisher node bound to broker.
func NewPublisher(id string, cred CredentialConfig, client ClientSettings, retry RetrySettings, publish PublishSettings, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Publisher{
		BaseNode: engine.NewBaseNode(id, "mqtt_publisher", nil, logger),
		manager:  NewManager(cred, client, retry, nil, logger),
		publish:  mergePublishSettings(publish),
		logger:   logger,
	}
	p.AddProcessor(p)
	return p
}

// Start connects to the broker.
func (p *Publisher) Start(ctx context.Context) error { return p.manager.Start(ctx) }

// Stop disconnects from the broker.
func (p *Publisher) Stop(ctx context.Context) error { return p.manager.Stop(ctx) }

// IsRunning reports whether the broker connection is currently live.
func (p *Publisher) IsRunning() bool { return p.manager.IsRunning() }

// CanHandle accepts every event; a Publisher is a terminal sink.
func (p *Publisher) CanHandle(event *engine.Event) bool { return true }

// Process publishes event to the broker and reports the outcome as a
// computation_result (success) or returns an error (converted by the
// owning node into an ERROR event).
func (p *Publisher) Process(ctx context.Context, event *engine.Event, _ *engine.Context) (*engine.Event, error) {
	topic, payload, qos, retain, err := p.resolvePublish(event)
	if err != nil {
		return nil, err
	}

	if err := p.manager.Publish(ctx, topic, payload, qos, retain); err != nil {
		return nil, fmt.Errorf("mqttnode: publish: %w", err)
	}

	return engine.NewEvent(engine.EventComputationResult, map[string]any{
		"topic":  topic,
		"status": "published",
	}), nil
}

// resolvePublish extracts the topic/payload/qos/retain to publish for
// event. MQTT_PUBLISH events carry explicit routing fields, falling back
// to the publisher's configured defaults for any field left unset;
// every other event type is published as JSON to the default topic.
func (p *Publisher) resolvePublish(event *engine.Event) (topic string, payload []byte, qos byte, retain bool, err error) {
	qos = p.publish.QoS
	retain = p.publish.Retain
	topic = p.publish.DefaultTopic

	if event.Type != engine.EventMQTTPublish {
		body, err := json.Marshal(event.Data)
		if err != nil {
			return "", nil, 0, false, fmt.Errorf("mqttnode: encode publish payload: %w", err)
		}
		if topic == "" {
			return "", nil, 0, false, fmt.Errorf("mqttnode: no topic configured for non-mqtt_publish event")
		}
		return topic, body, qos, retain, nil
	}

	data, ok := event.DataMap()
	if !ok {
		return "", nil, 0, false, fmt.Errorf("mqttnode: mqtt_publish event data must be an object")
	}

	if t, ok := data["topic"].(string); ok && t != "" {
		topic = t
	}
	if topic == "" {
		return "", nil, 0, false, fmt.Errorf("mqttnode: mqtt_publish event missing topic and no default_topic configured")
	}

	switch v := data["qos"].(type) {
	case int:
		qos = byte(v)
	case float64:
		qos = byte(v)
	}
	if r, ok := data["retain"].(bool); ok {
		retain = r
	}

	switch v := data["payload"].(type) {
	case string:
		payload = []byte(v)
	case nil:
		payload = nil
	default:
		body, err := json.Marshal(v)
		if err != nil {
			return "", nil, 0, false, fmt.Errorf("mqttnode: encode publish payload: %w", err)
		}
		payload = body
	}

	return topic, payload, qos, retain, nil
}
