package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// ObserverGraph is the node registry and event entry point. Nodes are
// created by callers and registered once; edges are installed by id
// lookup so neither side of an edge "owns" the other.
type ObserverGraph struct {
	logger *slog.Logger

	mu               sync.RWMutex
	nodes            map[string]GraphNode
	order            []string // insertion order, for deterministic start/stop and summary
	globalMiddleware []Middleware
}

// NewObserverGraph returns an empty graph.
func NewObserverGraph(logger *slog.Logger) *ObserverGraph {
	if logger == nil {
		logger = slog.Default()
	}
	return &ObserverGraph{
		logger: logger,
		nodes:  make(map[string]GraphNode),
	}
}

// AddNode registers n. Every currently-installed global middleware is
// attached to n before it is inserted. Returns an error if n.ID() is
// already registered.
func (g *ObserverGraph) AddNode(n GraphNode) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, exists := g.nodes[n.ID()]; exists {
		return fmt.Errorf("node %q already registered", n.ID())
	}

	for _, mw := range g.globalMiddleware {
		n.AddMiddleware(mw)
	}

	g.nodes[n.ID()] = n
	g.order = append(g.order, n.ID())
	return nil
}

// GetNode looks up a registered node by id.
func (g *ObserverGraph) GetNode(id string) (GraphNode, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	n, ok := g.nodes[id]
	return n, ok
}

// AddEdge installs a directed edge fromID -> toID. Both nodes must
// already be registered.
func (g *ObserverGraph) AddEdge(fromID, toID string) error {
	g.mu.RLock()
	from, fromOK := g.nodes[fromID]
	to, toOK := g.nodes[toID]
	g.mu.RUnlock()

	if !fromOK {
		return fmt.Errorf("add edge: node %q not found", fromID)
	}
	if !toOK {
		return fmt.Errorf("add edge: node %q not found", toID)
	}

	from.AddEdgeTo(to)
	return nil
}

// RemoveEdge reverses AddEdge.
func (g *ObserverGraph) RemoveEdge(fromID, toID string) error {
	g.mu.RLock()
	from, fromOK := g.nodes[fromID]
	to, toOK := g.nodes[toID]
	g.mu.RUnlock()

	if !fromOK || !toOK {
		return fmt.Errorf("remove edge: node not found (%s -> %s)", fromID, toID)
	}

	from.RemoveEdgeTo(to)
	return nil
}

// AddGlobalMiddleware appends m to the graph's global list and to every
// currently-registered node. Nodes registered afterward pick it up
// automatically in AddNode.
func (g *ObserverGraph) AddGlobalMiddleware(m Middleware) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.globalMiddleware = append(g.globalMiddleware, m)
	for _, n := range g.nodes {
		n.AddMiddleware(m)
	}
}

// TriggerEvent dispatches event to the named node's Update method. An
// unknown node id is a silent no-op: the source design leaves this
// choice open, and this implementation follows the silent-drop default
// while logging at debug level so operators can still see it happen.
func (g *ObserverGraph) TriggerEvent(ctx context.Context, nodeID string, event *Event) {
	g.mu.RLock()
	n, ok := g.nodes[nodeID]
	g.mu.RUnlock()

	if !ok {
		g.logger.Debug("trigger_event: unknown node, dropping", "node_id", nodeID)
		return
	}

	if err := n.Update(ctx, event); err != nil {
		g.logger.Error("trigger_event: node returned error", "node_id", nodeID, "error", err)
	}
}

// Start invokes Start on every lifecycle-capable node, in registration
// order.
func (g *ObserverGraph) Start(ctx context.Context) error {
	g.mu.RLock()
	ids := append([]string(nil), g.order...)
	g.mu.RUnlock()

	for _, id := range ids {
		g.mu.RLock()
		n := g.nodes[id]
		g.mu.RUnlock()

		lc, ok := n.(Lifecycle)
		if !ok {
			continue
		}
		if err := lc.Start(ctx); err != nil {
			return fmt.Errorf("start node %q: %w", id, err)
		}
	}
	return nil
}

// Stop invokes Stop on every lifecycle-capable node, in registration
// order. Errors are collected and logged but do not stop the remaining
// nodes from being given a chance to shut down.
func (g *ObserverGraph) Stop(ctx context.Context) error {
	g.mu.RLock()
	ids := append([]string(nil), g.order...)
	g.mu.RUnlock()

	var firstErr error
	for _, id := range ids {
		g.mu.RLock()
		n := g.nodes[id]
		g.mu.RUnlock()

		lc, ok := n.(Lifecycle)
		if !ok {
			continue
		}
		if err := lc.Stop(ctx); err != nil {
			g.logger.Error("stop node failed", "node_id", id, "error", err)
			if firstErr == nil {
				firstErr = fmt.Errorf("stop node %q: %w", id, err)
			}
		}
	}
	return firstErr
}

// Summary is the graph-level introspection payload.
type Summary struct {
	TotalNodes int
	Nodes      map[string]NodeInfo
	Edges      []Edge
}

// Edge is a directed adjacency pair reported by Summary.
type Edge struct {
	From string
	To   string
}

// Summary returns a point-in-time introspection snapshot of the whole
// graph: every node's Info() plus the full edge list.
func (g *ObserverGraph) Summary() Summary {
	g.mu.RLock()
	defer g.mu.RUnlock()

	s := Summary{
		TotalNodes: len(g.nodes),
		Nodes:      make(map[string]NodeInfo, len(g.nodes)),
	}
	for _, id := range g.order {
		info := g.nodes[id].Info()
		s.Nodes[id] = info
		for _, to := range info.Outgoing {
			s.Edges = append(s.Edges, Edge{From: id, To: to})
		}
	}
	return s
}
