package mapper

import (
	"context"
	"testing"

	"github.com/nugget/eventgraph/internal/engine"
)

func TestObjectMappingBasic(t *testing.T) {
	m, err := New(ModeObject, []Mapping{
		{Source: "user.name", Target: "n"},
		{Source: "user.email", Target: "e", Required: true},
	}, nil, ErrorHandling{}, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	data := map[string]any{"user": map[string]any{"name": "Ada", "email": "a@x"}}
	result, err := m.applyObjectMappings(m.mappings, data)
	if err != nil {
		t.Fatalf("applyObjectMappings() error = %v", err)
	}
	if result["n"] != "Ada" || result["e"] != "a@x" {
		t.Errorf("result = %+v, want n=Ada e=a@x", result)
	}
}

func TestObjectMappingMissingRequiredErrors(t *testing.T) {
	m, err := New(ModeObject, []Mapping{
		{Source: "user.name", Target: "n"},
		{Source: "user.email", Target: "e", Required: true},
	}, nil, ErrorHandling{OnMissingRequired: OnMissingError}, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	data := map[string]any{"user": map[string]any{"name": "Ada"}}
	ctx := context.Background()
	_, procErr := m.Process(ctx, engine.NewEvent(engine.EventDataChange, data), nil)
	if procErr == nil {
		t.Fatalf("Process() error = nil, want missing-required error")
	}
}

func TestObjectMappingTransforms(t *testing.T) {
	m, err := New(ModeObject, []Mapping{
		{Source: "name", Target: "name", Transform: "uppercase"},
		{Source: "count", Target: "count", Transform: "integer"},
	}, nil, ErrorHandling{}, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	data := map[string]any{"name": "ada", "count": "3"}
	result, err := m.applyObjectMappings(m.mappings, data)
	if err != nil {
		t.Fatalf("applyObjectMappings() error = %v", err)
	}
	if result["name"] != "ADA" {
		t.Errorf("name = %v, want ADA", result["name"])
	}
	if result["count"] != int64(3) {
		t.Errorf("count = %v (%T), want int64(3)", result["count"], result["count"])
	}
}

func TestArrayMappingWithFilter(t *testing.T) {
	m, err := New(ModeArray, nil, &ArraySettings{
		SourcePath: "items",
		Filter:     map[string]any{">": []any{map[string]any{"var": "qty"}, 1.0}},
		ItemMappings: []Mapping{
			{Source: "sku", Target: "sku"},
		},
	}, ErrorHandling{}, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	data := map[string]any{
		"items": []any{
			map[string]any{"sku": "a", "qty": 1.0},
			map[string]any{"sku": "b", "qty": 2.0},
		},
	}
	out, err := m.processArray(data)
	if err != nil {
		t.Fatalf("processArray() error = %v", err)
	}
	if len(out) != 1 || out[0]["sku"] != "b" {
		t.Errorf("processArray() = %+v, want single item sku=b", out)
	}
}
