package opsbus

import (
	"context"

	"github.com/nugget/eventgraph/internal/engine"
)

// NodeObserverMiddleware is an engine.Middleware that republishes a
// node's pipeline activity onto an opsbus.Bus: routing decisions, data
// results, and error-typed result events each become one opsbus Event.
// AfterProcess does not run when a middleware or processor fails (the
// node turns that failure into its own ERROR event), so such failures
// are not published here. Install it
// with ObserverGraph.AddGlobalMiddleware so every node reports, or
// GraphNode.AddMiddleware for a single node.
type NodeObserverMiddleware struct {
	Bus *Bus
}

// NewNodeObserverMiddleware returns middleware that republishes node
// pipeline activity onto bus.
func NewNodeObserverMiddleware(bus *Bus) *NodeObserverMiddleware {
	return &NodeObserverMiddleware{Bus: bus}
}

// BeforeProcess passes the event through unchanged; its only job is to
// record that the node started processing.
func (m *NodeObserverMiddleware) BeforeProcess(_ context.Context, event *engine.Event, nodeID string) (*engine.Event, error) {
	m.Bus.Publish(Event{
		Source: SourceNode,
		Kind:   KindNodeStateChanged,
		Data: map[string]any{
			"node_id": nodeID,
			"to":      "processing",
		},
	})
	return event, nil
}

// AfterProcess inspects result and publishes the matching opsbus event:
// a routing_decision result becomes KindRoutingDecision, an error result
// becomes KindNodeError, anything else is a plain state transition back
// to idle.
func (m *NodeObserverMiddleware) AfterProcess(_ context.Context, _ *engine.Event, result *engine.Event, nodeID string) (*engine.Event, error) {
	switch {
	case result == nil:
		m.Bus.Publish(Event{
			Source: SourceNode,
			Kind:   KindNodeStateChanged,
			Data:   map[string]any{"node_id": nodeID, "to": "idle"},
		})
	case result.Type == engine.EventRoutingDecision:
		data, _ := result.DataMap()
		m.Bus.Publish(Event{
			Source: SourceGraph,
			Kind:   KindRoutingDecision,
			Data: map[string]any{
				"node_id":     nodeID,
				"target_node": data["target_node"],
				"rule_name":   data["rule_name"],
			},
		})
	case result.Type == engine.EventError:
		data, _ := result.DataMap()
		m.Bus.Publish(Event{
			Source: SourceNode,
			Kind:   KindNodeError,
			Data: map[string]any{
				"node_id": nodeID,
				"error":   data["error"],
			},
		})
	default:
		m.Bus.Publish(Event{
			Source: SourceNode,
			Kind:   KindNodeStateChanged,
			Data:   map[string]any{"node_id": nodeID, "to": "idle"},
		})
	}
	return result, nil
}
