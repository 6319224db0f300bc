package switchnode

import (
	"context"
	"testing"

	"github.com/nugget/eventgraph/internal/engine"
)

type recorder struct {
	id       string
	received []*engine.Event
}

func (r *recorder) ID() string { return r.id }
func (r *recorder) Update(_ context.Context, e *engine.Event) error {
	r.received = append(r.received, e)
	return nil
}

func TestSwitchRoutesToFirstMatch(t *testing.T) {
	rules := []RuleConfig{
		{Name: "r1", Condition: map[string]any{">": []any{map[string]any{"var": "value"}, 5.0}}, Then: "big"},
		{Name: "r2", Condition: map[string]any{"<=": []any{map[string]any{"var": "value"}, 5.0}}, Then: "small"},
	}
	sw := New("switch", rules, "", nil)

	big := &recorder{id: "big"}
	small := &recorder{id: "small"}
	sw.AddEdgeTo(big)
	sw.AddEdgeTo(small)

	ctx := context.Background()

	if err := sw.Update(ctx, engine.NewEvent(engine.EventDataChange, map[string]any{"value": 7.0})); err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if len(big.received) != 1 || len(small.received) != 0 {
		t.Fatalf("value=7: big=%d small=%d, want 1 and 0", len(big.received), len(small.received))
	}

	if err := sw.Update(ctx, engine.NewEvent(engine.EventDataChange, map[string]any{"value": 3.0})); err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if len(big.received) != 1 || len(small.received) != 1 {
		t.Fatalf("value=3: big=%d small=%d, want 1 and 1", len(big.received), len(small.received))
	}
}

func TestSwitchNoMatchNoDefault(t *testing.T) {
	rules := []RuleConfig{
		{Name: "r1", Condition: map[string]any{">": []any{map[string]any{"var": "value"}, 100.0}}, Then: "big"},
	}
	sw := New("switch", rules, "", nil)
	big := &recorder{id: "big"}
	sw.AddEdgeTo(big)

	if err := sw.Update(context.Background(), engine.NewEvent(engine.EventDataChange, map[string]any{"value": 1.0})); err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if len(big.received) != 0 {
		t.Errorf("big received %d events on no-match, want 0", len(big.received))
	}
}

func TestSwitchDefaultTarget(t *testing.T) {
	rules := []RuleConfig{
		{Name: "r1", Condition: map[string]any{">": []any{map[string]any{"var": "value"}, 100.0}}, Then: "big"},
	}
	sw := New("switch", rules, "fallback", nil)
	fallback := &recorder{id: "fallback"}
	sw.AddEdgeTo(fallback)

	if err := sw.Update(context.Background(), engine.NewEvent(engine.EventDataChange, map[string]any{"value": 1.0})); err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if len(fallback.received) != 1 {
		t.Errorf("fallback received %d events, want 1", len(fallback.received))
	}
}
