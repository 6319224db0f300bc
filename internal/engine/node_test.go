package engine

import (
	"context"
	"fmt"
	"testing"
)

// funcProcessor adapts a plain function to the Processor interface for
// tests.
type funcProcessor struct {
	handle func(*Event) bool
	fn     func(*Event, *Context) (*Event, error)
}

func (p *funcProcessor) CanHandle(e *Event) bool { return p.handle(e) }
func (p *funcProcessor) Process(_ context.Context, e *Event, c *Context) (*Event, error) {
	return p.fn(e, c)
}

func alwaysHandle(*Event) bool { return true }

// collector records every event it receives.
type collector struct {
	id       string
	received []*Event
}

func (c *collector) ID() string { return c.id }
func (c *collector) Update(_ context.Context, e *Event) error {
	c.received = append(c.received, e)
	return nil
}

func TestDoubleFanOut(t *testing.T) {
	double := NewBaseNode("double", "test", nil, nil)
	double.AddProcessor(&funcProcessor{
		handle: alwaysHandle,
		fn: func(e *Event, _ *Context) (*Event, error) {
			n := e.Data.(int)
			return NewEvent(EventComputationResult, n*2), nil
		},
	})

	addTenA := NewBaseNode("add_ten_a", "test", nil, nil)
	addTenA.AddProcessor(&funcProcessor{
		handle: alwaysHandle,
		fn: func(e *Event, _ *Context) (*Event, error) {
			n := e.Data.(int)
			return NewEvent(EventComputationResult, n+10), nil
		},
	})

	addTenB := NewBaseNode("add_ten_b", "test", nil, nil)
	addTenB.AddProcessor(&funcProcessor{
		handle: alwaysHandle,
		fn: func(e *Event, _ *Context) (*Event, error) {
			n := e.Data.(int)
			return NewEvent(EventComputationResult, n+10), nil
		},
	})

	col := &collector{id: "collector"}

	double.AddEdgeTo(addTenA)
	double.AddEdgeTo(addTenB)
	addTenA.AddEdgeTo(col)
	addTenB.AddEdgeTo(col)

	ctx := context.Background()
	if err := double.Update(ctx, NewEvent(EventDataChange, 5)); err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	if len(col.received) != 2 {
		t.Fatalf("collector received %d events, want 2", len(col.received))
	}
	for _, e := range col.received {
		if e.Data.(int) != 20 {
			t.Errorf("collector event data = %v, want 20", e.Data)
		}
	}
}

func TestDisabledNodeDropsEvents(t *testing.T) {
	n := NewBaseNode("n", "test", nil, nil)
	called := false
	n.AddProcessor(&funcProcessor{
		handle: alwaysHandle,
		fn: func(e *Event, _ *Context) (*Event, error) {
			called = true
			return nil, nil
		},
	})
	n.Disable()

	if err := n.Update(context.Background(), NewEvent(EventCustom, nil)); err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if called {
		t.Errorf("processor ran on a DISABLED node")
	}
	if n.State() != StateDisabled {
		t.Errorf("State() = %v, want disabled", n.State())
	}
}

func TestFilterSuppressesEvent(t *testing.T) {
	n := NewBaseNode("n", "test", nil, nil)
	n.AddFilter(func(e *Event) bool { return e.Type == EventDataChange })
	called := false
	n.AddProcessor(&funcProcessor{
		handle: alwaysHandle,
		fn: func(e *Event, _ *Context) (*Event, error) {
			called = true
			return nil, nil
		},
	})

	if err := n.Update(context.Background(), NewEvent(EventCustom, nil)); err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if called {
		t.Errorf("processor ran despite filter rejecting the event")
	}
}

func TestProcessorErrorProducesErrorEvent(t *testing.T) {
	n := NewBaseNode("n", "test", nil, nil)
	n.AddProcessor(&funcProcessor{
		handle: alwaysHandle,
		fn: func(*Event, *Context) (*Event, error) {
			return nil, fmt.Errorf("boom")
		},
	})
	col := &collector{id: "collector"}
	n.AddEdgeTo(col)

	if err := n.Update(context.Background(), NewEvent(EventDataChange, 1)); err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if n.State() != StateIdle && n.State() != StateError {
		t.Errorf("State() = %v, want idle or error", n.State())
	}
	if len(col.received) != 1 {
		t.Fatalf("collector received %d events, want 1", len(col.received))
	}
	if col.received[0].Type != EventError {
		t.Errorf("event type = %v, want error", col.received[0].Type)
	}
}

func TestAddRemoveEdgeRoundTrip(t *testing.T) {
	a := NewBaseNode("a", "test", nil, nil)
	b := NewBaseNode("b", "test", nil, nil)

	a.AddEdgeTo(b)
	if !a.outgoing.has("b") || !b.incoming.has("a") || !a.observers.has("b") {
		t.Fatalf("AddEdgeTo did not install all three collections")
	}

	a.RemoveEdgeTo(b)
	if a.outgoing.has("b") || b.incoming.has("a") || a.observers.has("b") {
		t.Fatalf("RemoveEdgeTo did not reverse all three collections")
	}
}

func TestHistoryRingBounded(t *testing.T) {
	n := NewBaseNode("n", "test", nil, nil)
	n.AddProcessor(&funcProcessor{
		handle: alwaysHandle,
		fn: func(e *Event, _ *Context) (*Event, error) {
			return NewEvent(EventComputationResult, e.Data), nil
		},
	})

	for i := 0; i < historyCapacity+20; i++ {
		_ = n.Update(context.Background(), NewEvent(EventDataChange, i))
	}

	if n.history.len() != historyCapacity {
		t.Errorf("history.len() = %d, want %d", n.history.len(), historyCapacity)
	}
}
