package mqttnode

import (
	"context"
	"encoding/json"
	"log/slog"
	"unicode/utf8"

	"github.com/nugget/eventgraph/internal/engine"
)

// Subscriber is a source node: it holds no incoming edges and emits
// MQTT_MESSAGE events as the broker delivers them, plus MQTT_CONNECTED
// and MQTT_DISCONNECTED lifecycle events.
type Subscriber struct {
	*engine.BaseNode

	manager *Manager
	broker  string
	logger  *slog.Logger
}

// NewSubscriber builds a Subscriber node bound to broker, subscribing to
// topics on every (re)connect.
func NewSubscriber(id string, cred CredentialConfig, client ClientSettings, retry RetrySettings, topics []TopicSubscription, logger *slog.Logger) *Subscriber {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Subscriber{
		BaseNode: engine.NewBaseNode(id, "mqtt_subscriber", nil, logger),
		manager:  NewManager(cred, client, retry, topics, logger),
		broker:   client.Broker,
		logger:   logger,
	}

	s.manager.OnMessage(s.handleMessage)
	s.manager.OnConnected(s.handleConnected)
	s.manager.OnDisconnect(s.handleDisconnect)

	return s
}

// Start connects to the broker and subscribes to the configured topics.
func (s *Subscriber) Start(ctx context.Context) error {
	return s.manager.Start(ctx)
}

// Stop disconnects from the broker.
func (s *Subscriber) Stop(ctx context.Context) error {
	return s.manager.Stop(ctx)
}

// IsRunning reports whether the broker connection is currently live.
func (s *Subscriber) IsRunning() bool {
	return s.manager.IsRunning()
}

// Subscribe adds a topic subscription to the running connection, beyond
// the set configured at construction.
func (s *Subscriber) Subscribe(ctx context.Context, topic string, qos byte) error {
	return s.manager.Subscribe(ctx, topic, qos)
}

// Unsubscribe removes a topic subscription from the running connection.
func (s *Subscriber) Unsubscribe(ctx context.Context, topic string) error {
	return s.manager.Unsubscribe(ctx, topic)
}

// handleMessage decodes an inbound broker message and emits an
// MQTT_MESSAGE event. Decoding tries, in order: valid UTF-8 parsed as
// JSON, valid UTF-8 kept as a raw string, and finally the decoded text
// falls back to the raw bytes for anything that is neither. raw_payload
// always carries the untouched bytes alongside the decoded payload.
func (s *Subscriber) handleMessage(topic string, payload []byte, qos byte, retain bool) {
	data := map[string]any{
		"topic":       topic,
		"raw_payload": payload,
	}

	if utf8.Valid(payload) {
		text := string(payload)
		var parsed any
		if err := json.Unmarshal(payload, &parsed); err == nil {
			data["payload"] = parsed
		} else {
			data["payload"] = text
		}
	} else {
		data["payload"] = payload
	}

	event := engine.NewEvent(engine.EventMQTTMessage, data).WithMetadata(map[string]any{
		"qos":    qos,
		"retain": retain,
		"broker": s.broker,
	})
	s.Emit(context.Background(), event)
}

func (s *Subscriber) handleConnected() {
	event := engine.NewEvent(engine.EventMQTTConnected, map[string]any{"broker": s.broker})
	s.Emit(context.Background(), event)
}

func (s *Subscriber) handleDisconnect(cause error) {
	data := map[string]any{"broker": s.broker}
	if cause != nil {
		data["error"] = cause.Error()
	}
	event := engine.NewEvent(engine.EventMQTTDisconnected, data)
	s.Emit(context.Background(), event)
}
