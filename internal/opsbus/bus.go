// Package opsbus provides a publish/subscribe event bus for graph
// introspection. It is deliberately separate from the engine's own
// domain Event type (internal/engine): opsbus carries operational
// events about the graph itself — nodes starting, erroring, routing
// decisions being made — for consumers like a CLI inspector or a
// metrics exporter, not the graph's own data flow.
package opsbus

import (
	"sync"
	"time"
)

// Source identifies which part of the runtime published an event.
const (
	SourceGraph  = "graph"
	SourceNode   = "node"
	SourceMQTT   = "mqtt"
	SourceHTTP   = "http"
	SourceEmail  = "email"
	SourceConfig = "config"
)

// Kind describes the type of event within a source.
const (
	// KindGraphStarted signals a graph's Start completed.
	// Data: node_count.
	KindGraphStarted = "graph_started"
	// KindGraphStopped signals a graph's Stop completed.
	KindGraphStopped = "graph_stopped"

	// KindNodeStateChanged signals a node transitioned state.
	// Data: node_id, to.
	KindNodeStateChanged = "node_state_changed"
	// KindNodeError signals a node's pipeline produced an error.
	// Data: node_id, error.
	KindNodeError = "node_error"
	// KindRoutingDecision signals a SwitchNode routed an event.
	// Data: node_id, target_node, rule_name.
	KindRoutingDecision = "routing_decision"

	// KindMQTTConnected signals a broker connection came up.
	// Data: node_id, broker.
	KindMQTTConnected = "mqtt_connected"
	// KindMQTTDisconnected signals a broker connection dropped.
	// Data: node_id, broker, error.
	KindMQTTDisconnected = "mqtt_disconnected"
)

// Event represents a single operational event published by a component.
type Event struct {
	Timestamp time.Time      `json:"ts"`
	Source    string         `json:"source"`
	Kind      string         `json:"kind"`
	Data      map[string]any `json:"data,omitempty"`
}

// Bus is a non-blocking broadcast event bus. Subscribers receive events
// on buffered channels; slow subscribers miss events rather than
// blocking publishers.
type Bus struct {
	mu         sync.RWMutex
	subs       map[chan Event]struct{}
	recvToSend map[<-chan Event]chan Event
}

// New creates a new event bus ready for use.
func New() *Bus {
	return &Bus{
		subs:       make(map[chan Event]struct{}),
		recvToSend: make(map[<-chan Event]chan Event),
	}
}

// Publish sends an event to all subscribers. Non-blocking: if a
// subscriber's channel is full, the event is dropped for that
// subscriber. Safe to call on a nil receiver (no-op).
func (b *Bus) Publish(e Event) {
	if b == nil {
		return
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.subs {
		select {
		case ch <- e:
		default:
		}
	}
}

// Subscribe returns a channel that receives published events. The
// caller must eventually call Unsubscribe to avoid resource leaks.
func (b *Bus) Subscribe(bufSize int) <-chan Event {
	ch := make(chan Event, bufSize)
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs[ch] = struct{}{}
	b.recvToSend[ch] = ch
	return ch
}

// Unsubscribe removes a subscription and closes the channel. Safe to
// call with a channel that is already unsubscribed (no-op).
func (b *Bus) Unsubscribe(ch <-chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	sendCh, ok := b.recvToSend[ch]
	if !ok {
		return
	}
	delete(b.subs, sendCh)
	delete(b.recvToSend, ch)
	close(sendCh)
}

// SubscriberCount returns the number of active subscribers.
func (b *Bus) SubscriberCount() int {
	if b == nil {
		return 0
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
