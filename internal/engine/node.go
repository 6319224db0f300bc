package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

const historyCapacity = 100

// BaseNode is the processing state machine every node in the graph
// embeds. It owns the observer/edge sets, the processor and middleware
// chains, the bounded history ring, and the per-node metrics counters.
//
// The mutex guards the node's state, counters, data and history; it is
// released while middleware, processors and observers run, so concurrent
// Update calls on the same node are not serialized against each other.
type BaseNode struct {
	id       string
	nodeType string
	data     any
	config   map[string]any
	logger   *slog.Logger

	mu    sync.Mutex
	state NodeState

	processors []Processor
	middleware []Middleware
	filters    []FilterFunc

	history *historyRing

	eventsProcessed uint64
	eventsSent      uint64
	errors          uint64
	lastActivity    time.Time

	outgoing  *nodeSet
	incoming  *nodeSet
	observers *nodeSet

	createdAt time.Time

	// routingFanout, when true, makes notifyObservers deliver a
	// routing_decision event only to the observer named in
	// event.Data["target_node"] instead of broadcasting to all observers.
	// SwitchNode sets this.
	routingFanout bool
}

// NewBaseNode constructs a node in the IDLE state with empty collections.
func NewBaseNode(id, nodeType string, config map[string]any, logger *slog.Logger) *BaseNode {
	if logger == nil {
		logger = slog.Default()
	}
	if config == nil {
		config = map[string]any{}
	}
	return &BaseNode{
		id:        id,
		nodeType:  nodeType,
		config:    config,
		logger:    logger,
		state:     StateIdle,
		history:   newHistoryRing(historyCapacity),
		outgoing:  newNodeSet(),
		incoming:  newNodeSet(),
		observers: newNodeSet(),
		createdAt: time.Now(),
	}
}

func (n *BaseNode) ID() string         { return n.id }
func (n *BaseNode) Type() string       { return n.nodeType }
func (n *BaseNode) Data() any          { return n.data }
func (n *BaseNode) SetData(data any)   { n.mu.Lock(); n.data = data; n.mu.Unlock() }
func (n *BaseNode) CreatedAt() time.Time { return n.createdAt }

func (n *BaseNode) State() NodeState {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.state
}

// Disable transitions the node to DISABLED; every subsequent update()
// call is a no-op until re-enabled.
func (n *BaseNode) Disable() {
	n.mu.Lock()
	n.state = StateDisabled
	n.mu.Unlock()
}

// Enable transitions a DISABLED node back to IDLE.
func (n *BaseNode) Enable() {
	n.mu.Lock()
	if n.state == StateDisabled {
		n.state = StateIdle
	}
	n.mu.Unlock()
}

// AddProcessor appends to the processor chain.
func (n *BaseNode) AddProcessor(p Processor) { n.processors = append(n.processors, p) }

// AddMiddleware appends to the middleware chain.
func (n *BaseNode) AddMiddleware(m Middleware) { n.middleware = append(n.middleware, m) }

// AddFilter appends a filter predicate. All filters must pass for an
// event to be processed.
func (n *BaseNode) AddFilter(f FilterFunc) { n.filters = append(n.filters, f) }

// EnableRoutingFanout switches notifyObservers to single-target delivery
// for routing_decision events. Used by SwitchNode.
func (n *BaseNode) EnableRoutingFanout() { n.routingFanout = true }

// AddEdgeTo installs a directed edge from n to target: target is added to
// n's outgoing set and observers, and n is added to target's incoming
// set. Idempotent.
func (n *BaseNode) AddEdgeTo(target Observer) {
	n.outgoing.add(target)
	n.observers.add(target)
	if bn, ok := target.(interface{ addIncoming(Observer) }); ok {
		bn.addIncoming(n)
	}
}

// RemoveEdgeTo reverses AddEdgeTo.
func (n *BaseNode) RemoveEdgeTo(target Observer) {
	n.outgoing.remove(target.ID())
	n.observers.remove(target.ID())
	if bn, ok := target.(interface{ removeIncoming(id string) }); ok {
		bn.removeIncoming(n.ID())
	}
}

func (n *BaseNode) addIncoming(o Observer)      { n.incoming.add(o) }
func (n *BaseNode) removeIncoming(id string)    { n.incoming.remove(id) }

func (n *BaseNode) OutgoingIDs() []string  { return n.outgoing.ids() }
func (n *BaseNode) IncomingIDs() []string  { return n.incoming.ids() }
func (n *BaseNode) ObserverIDs() []string  { return n.observers.ids() }

// Update is the single entry point every observer exposes. It implements
// the filter -> middleware -> processor -> fan-out pipeline described in
// the node processing contract.
func (n *BaseNode) Update(ctx context.Context, event *Event) error {
	n.mu.Lock()
	if n.state == StateDisabled {
		n.mu.Unlock()
		return nil
	}
	n.mu.Unlock()

	for _, f := range n.filters {
		if !f(event) {
			return nil
		}
	}

	n.mu.Lock()
	n.state = StateProcessing
	n.eventsProcessed++
	n.mu.Unlock()

	result, err := n.runPipeline(ctx, event)
	if err != nil {
		n.fail(ctx, event, err)
		return nil
	}

	if result != nil {
		n.notifyObservers(ctx, result)
	}

	n.mu.Lock()
	n.state = StateIdle
	n.lastActivity = time.Now()
	n.mu.Unlock()
	return nil
}

func (n *BaseNode) runPipeline(ctx context.Context, event *Event) (*Event, error) {
	current := event
	for _, mw := range n.middleware {
		next, err := mw.BeforeProcess(ctx, current, n.id)
		if err != nil {
			return nil, fmt.Errorf("before_process: %w", err)
		}
		current = next
	}

	nodeCtx := n.snapshot()

	var result *Event
	for _, p := range n.processors {
		if p.CanHandle(current) {
			r, err := p.Process(ctx, current, nodeCtx)
			if err != nil {
				return nil, fmt.Errorf("process: %w", err)
			}
			result = r
			break
		}
	}

	for _, mw := range n.middleware {
		r, err := mw.AfterProcess(ctx, event, result, n.id)
		if err != nil {
			return nil, fmt.Errorf("after_process: %w", err)
		}
		result = r
	}

	return result, nil
}

// snapshot builds the read-only Context handed to processors.
func (n *BaseNode) snapshot() *Context {
	n.mu.Lock()
	m := Metrics{
		EventsProcessed: n.eventsProcessed,
		EventsSent:      n.eventsSent,
		Errors:          n.errors,
		LastActivity:    n.lastActivity.Format(time.RFC3339),
	}
	data := n.data
	n.mu.Unlock()

	return &Context{
		NodeID:        n.id,
		NodeType:      n.nodeType,
		Config:        n.config,
		CurrentData:   data,
		IncomingNodes: n.incoming.ids(),
		OutgoingNodes: n.outgoing.ids(),
		Metrics:       m,
		History:       n.history.last(10),
	}
}

// fail converts a pipeline error into an ERROR event and fans it out,
// matching the failure model: nothing unwinds past the node boundary.
func (n *BaseNode) fail(ctx context.Context, original *Event, cause error) {
	n.mu.Lock()
	n.errors++
	n.state = StateError
	n.mu.Unlock()

	n.logger.Error("node pipeline error", "node_id", n.id, "error", cause)

	errEvent := n.createErrorEvent(cause, original)
	n.notifyObservers(ctx, errEvent)
}

// createErrorEvent builds the ERROR event synthesized on pipeline
// failure, per the node contract.
func (n *BaseNode) createErrorEvent(cause error, original *Event) *Event {
	var originalData any
	if original != nil {
		originalData = original.Data
	}
	md := map[string]any{"status": "error"}
	if original != nil {
		for k, v := range original.Metadata {
			if _, exists := md[k]; !exists {
				md[k] = v
			}
		}
	}
	return &Event{
		ID:        uuid.NewString(),
		Type:      EventError,
		SourceID:  n.id,
		Timestamp: time.Now(),
		Data: map[string]any{
			"error":            cause.Error(),
			"original_request": originalData,
		},
		Metadata: md,
	}
}

// notifyObservers sets event.SourceID, appends to history, increments
// the sent counter, then delivers to each observer in order. A failing
// observer does not prevent delivery to the rest.
func (n *BaseNode) notifyObservers(ctx context.Context, event *Event) {
	event.SourceID = n.id

	n.mu.Lock()
	n.history.push(event)
	n.eventsSent++
	n.mu.Unlock()

	if n.routingFanout && event.Type == EventRoutingDecision {
		n.deliverRouted(ctx, event)
		return
	}

	for _, obs := range n.observers.list() {
		if err := obs.Update(ctx, event); err != nil {
			n.logger.Error("observer delivery failed", "node_id", n.id, "observer_id", obs.ID(), "error", err)
		}
	}
}

func (n *BaseNode) deliverRouted(ctx context.Context, event *Event) {
	data, ok := event.DataMap()
	if !ok {
		return
	}
	target, _ := data["target_node"].(string)
	if target == "" {
		return
	}
	obs, ok := n.observers.get(target)
	if !ok {
		n.logger.Warn("routing decision targets unknown observer", "node_id", n.id, "target", target)
		return
	}
	if err := obs.Update(ctx, event); err != nil {
		n.logger.Error("observer delivery failed", "node_id", n.id, "observer_id", obs.ID(), "error", err)
	}
}

// Emit fans out event as if it were the result of this node's own
// pipeline. Source nodes that generate events outside of an incoming
// Update call (an MQTT subscriber delivering a broker message, for
// instance) use this instead of routing a synthetic event through
// Update.
func (n *BaseNode) Emit(ctx context.Context, event *Event) {
	n.notifyObservers(ctx, event)
}

// Info returns the introspection snapshot exposed by ObserverGraph.Summary.
func (n *BaseNode) Info() NodeInfo {
	n.mu.Lock()
	defer n.mu.Unlock()
	return NodeInfo{
		ID:       n.id,
		Type:     n.nodeType,
		State:    n.state,
		Data:     n.data,
		Config:   n.config,
		Incoming: n.incoming.ids(),
		Outgoing: n.outgoing.ids(),
		Metrics: Metrics{
			EventsProcessed: n.eventsProcessed,
			EventsSent:      n.eventsSent,
			Errors:          n.errors,
			LastActivity:    n.lastActivity.Format(time.RFC3339),
		},
		Processors: len(n.processors),
		Middleware: len(n.middleware),
	}
}

// NodeInfo is the introspection payload for a single node, recovered
// from the original engine's get_info method.
type NodeInfo struct {
	ID         string
	Type       string
	State      NodeState
	Data       any
	Config     map[string]any
	Incoming   []string
	Outgoing   []string
	Metrics    Metrics
	Processors int
	Middleware int
}

// GraphNode is the capability set ObserverGraph operates on: every node
// registered with the graph must satisfy it.
type GraphNode interface {
	Observer
	AddEdgeTo(Observer)
	RemoveEdgeTo(Observer)
	AddMiddleware(Middleware)
	Info() NodeInfo
}
