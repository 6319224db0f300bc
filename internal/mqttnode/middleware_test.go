package mqttnode

import (
	"context"
	"testing"

	"github.com/nugget/eventgraph/internal/engine"
)

func TestTopicGuardBlocksMatchingPattern(t *testing.T) {
	guard, err := NewTopicGuardMiddleware("", `^internal/.*`)
	if err != nil {
		t.Fatalf("NewTopicGuardMiddleware() error = %v", err)
	}

	event := engine.NewEvent(engine.EventMQTTPublish, map[string]any{"topic": "internal/secrets"})
	if _, err := guard.BeforeProcess(context.Background(), event, "node"); err == nil {
		t.Errorf("BeforeProcess() error = nil, want rejection for blocked topic")
	}
}

func TestTopicGuardRequiresAllowMatch(t *testing.T) {
	guard, err := NewTopicGuardMiddleware(`^sensors/.*`, "")
	if err != nil {
		t.Fatalf("NewTopicGuardMiddleware() error = %v", err)
	}

	blocked := engine.NewEvent(engine.EventMQTTPublish, map[string]any{"topic": "other/topic"})
	if _, err := guard.BeforeProcess(context.Background(), blocked, "node"); err == nil {
		t.Errorf("BeforeProcess() error = nil, want rejection for non-allowed topic")
	}

	allowed := engine.NewEvent(engine.EventMQTTPublish, map[string]any{"topic": "sensors/temp"})
	if _, err := guard.BeforeProcess(context.Background(), allowed, "node"); err != nil {
		t.Errorf("BeforeProcess() error = %v, want nil for allowed topic", err)
	}
}

func TestTopicGuardIgnoresNonPublishEvents(t *testing.T) {
	guard, err := NewTopicGuardMiddleware("", `.*`)
	if err != nil {
		t.Fatalf("NewTopicGuardMiddleware() error = %v", err)
	}

	event := engine.NewEvent(engine.EventDataChange, map[string]any{"x": 1})
	if _, err := guard.BeforeProcess(context.Background(), event, "node"); err != nil {
		t.Errorf("BeforeProcess() error = %v, want nil for non-publish event", err)
	}
}

func TestLoggingMiddlewareTruncatesLongPayload(t *testing.T) {
	mw := NewLoggingMiddleware(nil, 8)
	long := make([]byte, 100)
	for i := range long {
		long[i] = 'a'
	}
	event := engine.NewEvent(engine.EventDataChange, string(long))

	got := mw.truncate(event)
	if len(got) == 0 || len(got) > 8+len("...(truncated)") {
		t.Errorf("truncate() length = %d, want <= %d", len(got), 8+len("...(truncated)"))
	}
}
