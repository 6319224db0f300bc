package engine

import (
	"context"
	"testing"
)

type countingMiddleware struct {
	before, after int
}

func (m *countingMiddleware) BeforeProcess(_ context.Context, e *Event, _ string) (*Event, error) {
	m.before++
	return e, nil
}

func (m *countingMiddleware) AfterProcess(_ context.Context, _ *Event, result *Event, _ string) (*Event, error) {
	m.after++
	return result, nil
}

func TestGraphAddNodeDuplicate(t *testing.T) {
	g := NewObserverGraph(nil)
	n := NewBaseNode("a", "test", nil, nil)
	if err := g.AddNode(n); err != nil {
		t.Fatalf("AddNode() error = %v", err)
	}
	if err := g.AddNode(NewBaseNode("a", "test", nil, nil)); err == nil {
		t.Errorf("AddNode() with duplicate id did not error")
	}
}

func TestGraphAddEdgeUnknownNode(t *testing.T) {
	g := NewObserverGraph(nil)
	n := NewBaseNode("a", "test", nil, nil)
	_ = g.AddNode(n)

	if err := g.AddEdge("a", "missing"); err == nil {
		t.Errorf("AddEdge() to unknown node did not error")
	}
}

func TestGraphTriggerEventUnknownNodeIsNoop(t *testing.T) {
	g := NewObserverGraph(nil)
	// Must not panic or block.
	g.TriggerEvent(context.Background(), "missing", NewEvent(EventCustom, nil))
}

func TestGlobalMiddlewareAppliesToAllNodes(t *testing.T) {
	g := NewObserverGraph(nil)
	n1 := NewBaseNode("n1", "test", nil, nil)
	_ = g.AddNode(n1)

	mw := &countingMiddleware{}
	g.AddGlobalMiddleware(mw)

	n2 := NewBaseNode("n2", "test", nil, nil)
	_ = g.AddNode(n2)

	n1.AddProcessor(&funcProcessor{handle: alwaysHandle, fn: func(e *Event, _ *Context) (*Event, error) { return nil, nil }})
	n2.AddProcessor(&funcProcessor{handle: alwaysHandle, fn: func(e *Event, _ *Context) (*Event, error) { return nil, nil }})

	g.TriggerEvent(context.Background(), "n1", NewEvent(EventDataChange, 1))
	g.TriggerEvent(context.Background(), "n2", NewEvent(EventDataChange, 1))

	if mw.before != 2 || mw.after != 2 {
		t.Errorf("middleware before=%d after=%d, want 2 and 2", mw.before, mw.after)
	}
}

func TestGraphSummary(t *testing.T) {
	g := NewObserverGraph(nil)
	a := NewBaseNode("a", "test", nil, nil)
	b := NewBaseNode("b", "test", nil, nil)
	_ = g.AddNode(a)
	_ = g.AddNode(b)
	_ = g.AddEdge("a", "b")

	s := g.Summary()
	if s.TotalNodes != 2 {
		t.Errorf("TotalNodes = %d, want 2", s.TotalNodes)
	}
	if len(s.Edges) != 1 || s.Edges[0].From != "a" || s.Edges[0].To != "b" {
		t.Errorf("Edges = %+v, want single a->b edge", s.Edges)
	}
}
