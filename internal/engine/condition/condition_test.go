package condition

import "testing"

func TestEvalComparisons(t *testing.T) {
	tests := []struct {
		name string
		tree any
		data map[string]any
		want bool
	}{
		{
			name: "greater than true",
			tree: map[string]any{">": []any{map[string]any{"var": "value"}, 5.0}},
			data: map[string]any{"value": 7.0},
			want: true,
		},
		{
			name: "greater than false",
			tree: map[string]any{">": []any{map[string]any{"var": "value"}, 5.0}},
			data: map[string]any{"value": 3.0},
			want: false,
		},
		{
			name: "less than or equal true",
			tree: map[string]any{"<=": []any{map[string]any{"var": "value"}, 5.0}},
			data: map[string]any{"value": 3.0},
			want: true,
		},
		{
			name: "equality across numeric types",
			tree: map[string]any{"==": []any{map[string]any{"var": "n"}, 3.0}},
			data: map[string]any{"n": 3},
			want: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Compile(tt.tree)
			got, err := c.Truthy(tt.data)
			if err != nil {
				t.Fatalf("Truthy() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("Truthy() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestEvalAndOrNot(t *testing.T) {
	data := map[string]any{"a": true, "b": false}

	and := Compile(map[string]any{"and": []any{map[string]any{"var": "a"}, map[string]any{"var": "b"}}})
	if got, _ := and.Truthy(data); got {
		t.Errorf("and(true,false) = true, want false")
	}

	or := Compile(map[string]any{"or": []any{map[string]any{"var": "a"}, map[string]any{"var": "b"}}})
	if got, _ := or.Truthy(data); !got {
		t.Errorf("or(true,false) = false, want true")
	}

	not := Compile(map[string]any{"!": []any{map[string]any{"var": "b"}}})
	if got, _ := not.Truthy(data); !got {
		t.Errorf("!(false) = false, want true")
	}
}

func TestEvalIn(t *testing.T) {
	tree := map[string]any{"in": []any{map[string]any{"var": "status"}, []any{"open", "pending"}}}

	c := Compile(tree)
	if got, _ := c.Truthy(map[string]any{"status": "open"}); !got {
		t.Errorf("in(open, [open,pending]) = false, want true")
	}
	if got, _ := c.Truthy(map[string]any{"status": "closed"}); got {
		t.Errorf("in(closed, [open,pending]) = true, want false")
	}
}

func TestEvalNestedVar(t *testing.T) {
	data := map[string]any{"user": map[string]any{"name": "Ada"}}
	c := Compile(map[string]any{"==": []any{map[string]any{"var": "user.name"}, "Ada"}})
	got, err := c.Truthy(data)
	if err != nil {
		t.Fatalf("Truthy() error = %v", err)
	}
	if !got {
		t.Errorf("nested var equality = false, want true")
	}
}

func TestEvalMissingVarDefault(t *testing.T) {
	c := Compile(map[string]any{"var": []any{"missing", "fallback"}})
	v, err := c.Eval(map[string]any{})
	if err != nil {
		t.Fatalf("Eval() error = %v", err)
	}
	if v != "fallback" {
		t.Errorf("Eval() = %v, want fallback", v)
	}
}

func TestUnknownOperator(t *testing.T) {
	c := Compile(map[string]any{"bogus": []any{1, 2}})
	if _, err := c.Eval(nil); err == nil {
		t.Errorf("expected error for unknown operator")
	}
}

func TestArithmetic(t *testing.T) {
	c := Compile(map[string]any{"+": []any{1.0, 2.0, 3.0}})
	v, err := c.Eval(nil)
	if err != nil {
		t.Fatalf("Eval() error = %v", err)
	}
	if v != int64(6) {
		t.Errorf("Eval() = %v (%T), want int64(6)", v, v)
	}
}
