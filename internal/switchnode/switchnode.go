// Package switchnode implements SwitchNode, the rule-based selective
// fan-out node: it evaluates an ordered list of JsonLogic-compatible
// rules against an event's data and routes a routing_decision event to
// the single observer named by the first match.
package switchnode

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/nugget/eventgraph/internal/engine"
	"github.com/nugget/eventgraph/internal/engine/condition"
)

// RuleConfig describes one routing rule as it would be decoded from
// YAML/JSON: {name, condition, then}.
type RuleConfig struct {
	Name      string `yaml:"name"`
	Condition any    `yaml:"condition"`
	Then      string `yaml:"then"`
}

type compiledRule struct {
	name string
	cond *condition.Condition
	raw  any
	then string
}

// SwitchNode is a graph node whose single processor evaluates rules in
// registration order and whose fan-out is overridden to deliver the
// resulting routing_decision event to exactly one observer.
type SwitchNode struct {
	*engine.BaseNode

	rules         []compiledRule
	defaultTarget string
	logger        *slog.Logger
}

// New builds a SwitchNode with rules evaluated first-match-wins and an
// optional defaultTarget used when no rule matches.
func New(id string, rules []RuleConfig, defaultTarget string, logger *slog.Logger) *SwitchNode {
	if logger == nil {
		logger = slog.Default()
	}

	compiled := make([]compiledRule, len(rules))
	for i, r := range rules {
		compiled[i] = compiledRule{
			name: r.Name,
			cond: condition.Compile(r.Condition),
			raw:  r.Condition,
			then: r.Then,
		}
	}

	sw := &SwitchNode{
		BaseNode:      engine.NewBaseNode(id, "switch", nil, logger),
		rules:         compiled,
		defaultTarget: defaultTarget,
		logger:        logger,
	}
	sw.EnableRoutingFanout()
	sw.AddProcessor(sw)
	return sw
}

// CanHandle evaluates every incoming event; routing decisions are made
// for whatever reaches the node.
func (sw *SwitchNode) CanHandle(event *engine.Event) bool {
	return true
}

// Process evaluates the rule list against event.Data and returns a
// routing_decision event.
func (sw *SwitchNode) Process(_ context.Context, event *engine.Event, _ *engine.Context) (*engine.Event, error) {
	data, ok := event.DataMap()
	if !ok {
		data = map[string]any{}
	}

	for _, r := range sw.rules {
		matched, err := r.cond.Truthy(data)
		if err != nil {
			return nil, fmt.Errorf("switch rule %q: %w", r.name, err)
		}
		if matched {
			return sw.routingEvent(event.Data, r.then, r.name, r.raw, ""), nil
		}
	}

	if sw.defaultTarget != "" {
		return sw.routingEvent(event.Data, sw.defaultTarget, "", nil, ""), nil
	}

	return sw.routingEvent(event.Data, "", "", nil, "no_match"), nil
}

func (sw *SwitchNode) routingEvent(originalData any, target, ruleName string, cond any, status string) *engine.Event {
	var targetNode any = target
	if target == "" {
		targetNode = nil
	}
	payload := map[string]any{
		"original_data": originalData,
		"target_node":   targetNode,
		"routing_type":  "jsonlogic_switch",
	}
	if ruleName != "" {
		payload["rule_name"] = ruleName
	}
	if cond != nil {
		payload["condition"] = cond
	}
	if status != "" {
		payload["status"] = status
	}
	return engine.NewEvent(engine.EventRoutingDecision, payload)
}
