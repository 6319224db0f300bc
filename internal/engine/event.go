// Package engine implements the event-driven graph execution runtime: the
// event model, the node processing pipeline, and the observer graph that
// wires nodes together.
package engine

import (
	"time"

	"github.com/google/uuid"
)

// EventType is a closed enumeration of the event kinds the engine and its
// nodes produce. Values are stable strings so they round-trip cleanly
// through JSON and YAML configuration.
type EventType string

const (
	EventDataChange       EventType = "data_change"
	EventComputationResult EventType = "computation_result"
	EventLLMRequest       EventType = "llm_request"
	EventLLMResponse      EventType = "llm_response"
	EventLLMToken         EventType = "llm_token"
	EventError            EventType = "error"
	EventAlert            EventType = "alert"
	EventNotification     EventType = "notification"
	EventRoutingDecision  EventType = "routing_decision"
	EventMQTTMessage      EventType = "mqtt_message"
	EventMQTTPublish      EventType = "mqtt_publish"
	EventMQTTConnected    EventType = "mqtt_connected"
	EventMQTTDisconnected EventType = "mqtt_disconnected"
	EventFileConverted    EventType = "file_converted"
	EventCustom           EventType = "custom"
)

// Event is an immutable message threaded through the graph. "Immutable"
// means by convention, not by the type system: once an event is handed to
// notify, callers must treat it as read-only and produce a new Event for
// any transform.
type Event struct {
	ID        string         `json:"id"`
	Type      EventType      `json:"type"`
	SourceID  string         `json:"source_id"`
	TargetID  string         `json:"target_id,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
	Data      any            `json:"data"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Priority  int            `json:"priority"`
}

// NewEvent builds an Event with a fresh ID and the current timestamp.
// SourceID is typically left empty by the caller and overwritten by the
// node that actually emits it (see BaseNode.notifyObservers).
func NewEvent(typ EventType, data any) *Event {
	return &Event{
		ID:        uuid.NewString(),
		Type:      typ,
		Timestamp: time.Now(),
		Data:      data,
	}
}

// WithMetadata returns a shallow copy of e with md merged over any
// existing metadata (md wins on key collision).
func (e *Event) WithMetadata(md map[string]any) *Event {
	merged := make(map[string]any, len(e.Metadata)+len(md))
	for k, v := range e.Metadata {
		merged[k] = v
	}
	for k, v := range md {
		merged[k] = v
	}
	cp := *e
	cp.Metadata = merged
	return &cp
}

// DataMap returns e.Data as a map[string]any if it is one, and ok=false
// otherwise. Most node payloads in this engine are object-shaped; this is
// a convenience for processors and the condition interpreter.
func (e *Event) DataMap() (map[string]any, bool) {
	m, ok := e.Data.(map[string]any)
	return m, ok
}

// NodeState is the closed set of states a BaseNode's processing pipeline
// can be in.
type NodeState string

const (
	StateIdle       NodeState = "idle"
	StateProcessing NodeState = "processing"
	StateError      NodeState = "error"
	StateDisabled   NodeState = "disabled"
)
