package mqttnode

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"

	"github.com/nugget/eventgraph/internal/engine"
)

// LoggingMiddleware logs every event a node processes, truncating the
// data payload so a large MQTT message doesn't flood the log.
type LoggingMiddleware struct {
	logger    *slog.Logger
	maxPayload int
}

// NewLoggingMiddleware builds a LoggingMiddleware. maxPayload <= 0 uses
// a 256-byte default.
func NewLoggingMiddleware(logger *slog.Logger, maxPayload int) *LoggingMiddleware {
	if logger == nil {
		logger = slog.Default()
	}
	if maxPayload <= 0 {
		maxPayload = 256
	}
	return &LoggingMiddleware{logger: logger, maxPayload: maxPayload}
}

func (m *LoggingMiddleware) BeforeProcess(ctx context.Context, event *engine.Event, nodeID string) (*engine.Event, error) {
	m.logger.Debug("mqtt event in", "node_id", nodeID, "event_type", event.Type, "payload", m.truncate(event))
	return event, nil
}

func (m *LoggingMiddleware) AfterProcess(ctx context.Context, original, result *engine.Event, nodeID string) (*engine.Event, error) {
	if result == nil {
		return result, nil
	}
	m.logger.Debug("mqtt event out", "node_id", nodeID, "event_type", result.Type, "payload", m.truncate(result))
	return result, nil
}

func (m *LoggingMiddleware) truncate(event *engine.Event) string {
	s := fmt.Sprintf("%v", event.Data)
	if len(s) > m.maxPayload {
		return s[:m.maxPayload] + "...(truncated)"
	}
	return s
}

// TopicGuardMiddleware rejects outbound publishes whose topic fails an
// allow/block regex pair, converting the rejection into an ERROR event
// instead of letting it reach the broker.
type TopicGuardMiddleware struct {
	allow *regexp.Regexp
	block *regexp.Regexp
}

// NewTopicGuardMiddleware builds a guard from optional allow/block
// regex patterns. An empty pattern disables that check.
func NewTopicGuardMiddleware(allow, block string) (*TopicGuardMiddleware, error) {
	g := &TopicGuardMiddleware{}
	if allow != "" {
		re, err := regexp.Compile(allow)
		if err != nil {
			return nil, fmt.Errorf("mqttnode: compile allow pattern: %w", err)
		}
		g.allow = re
	}
	if block != "" {
		re, err := regexp.Compile(block)
		if err != nil {
			return nil, fmt.Errorf("mqttnode: compile block pattern: %w", err)
		}
		g.block = re
	}
	return g, nil
}

func (g *TopicGuardMiddleware) BeforeProcess(ctx context.Context, event *engine.Event, nodeID string) (*engine.Event, error) {
	topic, ok := publishTopic(event)
	if !ok {
		return event, nil
	}

	if g.block != nil && g.block.MatchString(topic) {
		return nil, fmt.Errorf("mqttnode: topic %q is blocked", topic)
	}
	if g.allow != nil && !g.allow.MatchString(topic) {
		return nil, fmt.Errorf("mqttnode: topic %q is not in the allow list", topic)
	}
	return event, nil
}

func (g *TopicGuardMiddleware) AfterProcess(ctx context.Context, original, result *engine.Event, nodeID string) (*engine.Event, error) {
	return result, nil
}

func publishTopic(event *engine.Event) (string, bool) {
	if event.Type != engine.EventMQTTPublish {
		return "", false
	}
	data, ok := event.DataMap()
	if !ok {
		return "", false
	}
	topic, ok := data["topic"].(string)
	return topic, ok
}
